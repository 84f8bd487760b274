package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_OpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestStore_UserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, User{
		Username:     "alice",
		PasswordHash: "hash",
		Name:         "Alice",
		UniqueCode:   "abcd1234",
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "user", created.Role, "role defaults to user")

	loaded, err := s.UserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, loaded.ID)
	assert.Equal(t, "Alice", loaded.Name)
	assert.Equal(t, "abcd1234", loaded.UniqueCode)
	assert.False(t, loaded.RegisteredAt.IsZero())

	_, err = s.CreateUser(ctx, User{Username: "alice", PasswordHash: "other"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = s.UserByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GroupUpsertAndLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, User{Username: "alice", PasswordHash: "hash"})
	require.NoError(t, err)

	group, err := s.UpsertGroup(ctx, Group{VKGroupID: 123, Name: "Club", ScreenName: "club"})
	require.NoError(t, err)
	assert.NotZero(t, group.ID)

	// Upserting the same remote id reuses the row and refreshes metadata.
	again, err := s.UpsertGroup(ctx, Group{VKGroupID: 123, Name: "Club Renamed", ScreenName: "club"})
	require.NoError(t, err)
	assert.Equal(t, group.ID, again.ID)
	assert.Equal(t, "Club Renamed", again.Name)

	require.NoError(t, s.LinkGroup(ctx, user.ID, group.ID))
	assert.ErrorIs(t, s.LinkGroup(ctx, user.ID, group.ID), ErrAlreadyExists)

	groups, err := s.GroupsForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(123), groups[0].VKGroupID)

	require.NoError(t, s.UnlinkGroup(ctx, user.ID, group.ID))
	assert.ErrorIs(t, s.UnlinkGroup(ctx, user.ID, group.ID), ErrNotFound)

	// The group row survives unlinking.
	_, err = s.GroupByVKID(ctx, 123)
	assert.NoError(t, err)
}

func TestStore_DeleteGroupCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, User{Username: "alice", PasswordHash: "hash"})
	require.NoError(t, err)
	group, err := s.UpsertGroup(ctx, Group{VKGroupID: 5, ScreenName: "five"})
	require.NoError(t, err)
	require.NoError(t, s.LinkGroup(ctx, user.ID, group.ID))

	require.NoError(t, s.DeleteGroup(ctx, group.ID))
	assert.ErrorIs(t, s.DeleteGroup(ctx, group.ID), ErrNotFound)

	groups, err := s.GroupsForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, groups, "links are removed with the group")
}

func TestStore_UpdateGroupInfoAndAllGroups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g1, err := s.UpsertGroup(ctx, Group{VKGroupID: 1, Name: "One", ScreenName: "one"})
	require.NoError(t, err)
	_, err = s.UpsertGroup(ctx, Group{VKGroupID: 2, Name: "Two", ScreenName: "two"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateGroupInfo(ctx, g1.ID, "One Renamed", "one_renamed"))

	all, err := s.AllGroups(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "One Renamed", all[0].Name)
	assert.Equal(t, "one_renamed", all[0].ScreenName)
}
