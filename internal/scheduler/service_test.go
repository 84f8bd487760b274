package scheduler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/smmtools/vk-insight-bot/internal/models"
	"github.com/smmtools/vk-insight-bot/internal/store"
	"github.com/smmtools/vk-insight-bot/internal/vk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapResolver struct {
	groups map[string]models.GroupInfo
}

func (r *mapResolver) GroupByName(ctx context.Context, name string) (models.GroupInfo, error) {
	if g, ok := r.groups[name]; ok {
		return g, nil
	}
	return models.GroupInfo{}, vk.ErrGroupNotFound
}

func TestRefreshGroups(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	renamed, err := st.UpsertGroup(ctx, store.Group{VKGroupID: 1, Name: "Old Name", ScreenName: "club_one"})
	require.NoError(t, err)
	unchanged, err := st.UpsertGroup(ctx, store.Group{VKGroupID: 2, Name: "Stable", ScreenName: "club_two"})
	require.NoError(t, err)
	vanished, err := st.UpsertGroup(ctx, store.Group{VKGroupID: 3, Name: "Gone", ScreenName: "club_three"})
	require.NoError(t, err)

	resolver := &mapResolver{groups: map[string]models.GroupInfo{
		"club_one": {ID: 1, Name: "New Name", ScreenName: "club_one"},
		"club_two": {ID: 2, Name: "Stable", ScreenName: "club_two"},
		// club_three no longer resolves
	}}

	s := NewService(st, resolver, "0 0 6 * * *")
	require.NoError(t, s.RefreshGroups())

	got, err := st.GroupByVKID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "New Name", got.Name)
	assert.Equal(t, renamed.ID, got.ID)

	got, err = st.GroupByVKID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Stable", got.Name)
	assert.Equal(t, unchanged.ID, got.ID)

	got, err = st.GroupByVKID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Gone", got.Name, "unresolvable group keeps stored metadata")
	assert.Equal(t, vanished.ID, got.ID)
}

func TestSchedulerStartStop(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	s := NewService(st, &mapResolver{}, "0 0 6 * * *")
	require.NoError(t, s.Start())
	s.Stop()
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	s := NewService(st, &mapResolver{}, "not a cron expression")
	assert.Error(t, s.Start())
}
