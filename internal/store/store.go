package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrAlreadyExists is returned on unique-constraint conflicts the
// caller can act on (duplicate username, duplicate group link).
var ErrAlreadyExists = errors.New("store: already exists")

// Store persists users, tracked groups and their associations in SQLite.
type Store struct {
	db *sql.DB
}

// User is an account that tracks communities.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	Name         string
	Telegram     string
	UniqueCode   string
	RegisteredAt time.Time
}

// Group is a tracked VK community.
type Group struct {
	ID         int64  `json:"id"`
	VKGroupID  int64  `json:"vk_group_id"`
	Name       string `json:"name"`
	ScreenName string `json:"screen_name"`
}

// Open opens (creating if necessary) the database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateUser inserts a new account.
func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	if strings.TrimSpace(u.Username) == "" {
		return User{}, errors.New("store: username is required")
	}
	if u.Role == "" {
		u.Role = "user"
	}
	u.RegisteredAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role, name, telegram, unique_code, registered_at)
		 VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?)`,
		u.Username, u.PasswordHash, u.Role, u.Name, u.Telegram, u.UniqueCode, u.RegisteredAt)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, fmt.Errorf("user %q: %w", u.Username, ErrAlreadyExists)
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("insert user id: %w", err)
	}
	return u, nil
}

// UserByUsername fetches an account by login.
func (s *Store) UserByUsername(ctx context.Context, username string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, COALESCE(name, ''), COALESCE(telegram, ''), COALESCE(unique_code, ''), registered_at
		 FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Name, &u.Telegram, &u.UniqueCode, &u.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// UpsertGroup stores a VK community by its remote id and returns the
// local row, reusing an existing one when present.
func (s *Store) UpsertGroup(ctx context.Context, g Group) (Group, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (vk_group_id, name, screen_name) VALUES (?, ?, ?)
		 ON CONFLICT(vk_group_id) DO UPDATE SET name = excluded.name, screen_name = excluded.screen_name`,
		g.VKGroupID, g.Name, g.ScreenName)
	if err != nil {
		return Group{}, fmt.Errorf("upsert group: %w", err)
	}
	return s.GroupByVKID(ctx, g.VKGroupID)
}

// GroupByVKID fetches a tracked community by its remote id.
func (s *Store) GroupByVKID(ctx context.Context, vkGroupID int64) (Group, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, vk_group_id, COALESCE(name, ''), COALESCE(screen_name, '') FROM groups WHERE vk_group_id = ?`,
		vkGroupID)
	return scanGroup(row)
}

func scanGroup(row *sql.Row) (Group, error) {
	var g Group
	err := row.Scan(&g.ID, &g.VKGroupID, &g.Name, &g.ScreenName)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, ErrNotFound
	}
	if err != nil {
		return Group{}, fmt.Errorf("scan group: %w", err)
	}
	return g, nil
}

// LinkGroup associates a user with a tracked group.
func (s *Store) LinkGroup(ctx context.Context, userID, groupID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_groups (user_id, group_id) VALUES (?, ?)`, userID, groupID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("link group: %w", err)
	}
	return nil
}

// UnlinkGroup removes the association between a user and a group. The
// group row itself is kept.
func (s *Store) UnlinkGroup(ctx context.Context, userID, groupID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_groups WHERE user_id = ? AND group_id = ?`, userID, groupID)
	if err != nil {
		return fmt.Errorf("unlink group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unlink group: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GroupsForUser lists the communities a user tracks.
func (s *Store) GroupsForUser(ctx context.Context, userID int64) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.vk_group_id, COALESCE(g.name, ''), COALESCE(g.screen_name, '')
		 FROM groups g JOIN user_groups ug ON ug.group_id = g.id
		 WHERE ug.user_id = ? ORDER BY g.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups for user: %w", err)
	}
	defer rows.Close()
	return collectGroups(rows)
}

// AllGroups lists every tracked community, used by the metadata
// refresh job.
func (s *Store) AllGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vk_group_id, COALESCE(name, ''), COALESCE(screen_name, '') FROM groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()
	return collectGroups(rows)
}

func collectGroups(rows *sql.Rows) ([]Group, error) {
	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.VKGroupID, &g.Name, &g.ScreenName); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// UpdateGroupInfo refreshes the stored name and screen name.
func (s *Store) UpdateGroupInfo(ctx context.Context, groupID int64, name, screenName string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE groups SET name = ?, screen_name = ? WHERE id = ?`, name, screenName, groupID)
	if err != nil {
		return fmt.Errorf("update group info: %w", err)
	}
	return nil
}

// DeleteGroup removes a tracked community and, via cascade, all its
// user associations.
func (s *Store) DeleteGroup(ctx context.Context, groupID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, groupID)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
