// Package sqlite provides the SQLite-backed message store used by the gateway
// to make thread messages durable before they are broadcast.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Tyrowin/forumchat/internal/storage"
	"github.com/Tyrowin/forumchat/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Store persists directories and messages in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite message store and applies embedded migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{sqlDB: sqlDB, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateMessage durably writes one message. It fails with
// storage.ErrDirectoryNotFound or storage.ErrParentNotFound when a reference
// does not exist; nothing is written in that case.
func (s *Store) CreateMessage(ctx context.Context, msg storage.NewMessage) (storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return storage.Message{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Message{}, fmt.Errorf("storage is not configured")
	}
	author := strings.TrimSpace(msg.Author)
	if author == "" {
		return storage.Message{}, fmt.Errorf("author is required")
	}
	if strings.TrimSpace(msg.Content) == "" {
		return storage.Message{}, fmt.Errorf("content is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Message{}, fmt.Errorf("begin create message: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if ok, err := exists(ctx, tx, `SELECT 1 FROM directory WHERE id = ?`, msg.DirectoryID); err != nil {
		return storage.Message{}, fmt.Errorf("check directory %d: %w", msg.DirectoryID, err)
	} else if !ok {
		return storage.Message{}, fmt.Errorf("directory %d: %w", msg.DirectoryID, storage.ErrDirectoryNotFound)
	}

	var parent sql.NullInt64
	if msg.ParentID != nil {
		if ok, err := exists(ctx, tx, `SELECT 1 FROM messages WHERE id = ?`, *msg.ParentID); err != nil {
			return storage.Message{}, fmt.Errorf("check parent %d: %w", *msg.ParentID, err)
		} else if !ok {
			return storage.Message{}, fmt.Errorf("message %d: %w", *msg.ParentID, storage.ErrParentNotFound)
		}
		parent = sql.NullInt64{Int64: *msg.ParentID, Valid: true}
	}

	createdAt := s.now().UTC().Truncate(time.Millisecond)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (content, author_username, directory_id, created_at, parent_id)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.Content, author, msg.DirectoryID, toMillis(createdAt), parent,
	)
	if err != nil {
		return storage.Message{}, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storage.Message{}, fmt.Errorf("read message id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Message{}, fmt.Errorf("commit create message: %w", err)
	}

	created := storage.Message{
		ID:             id,
		Content:        msg.Content,
		AuthorUsername: author,
		DirectoryID:    msg.DirectoryID,
		CreatedAt:      createdAt,
	}
	if parent.Valid {
		parentID := parent.Int64
		created.ParentID = &parentID
	}
	return created, nil
}

// GetMessage returns one message by id.
func (s *Store) GetMessage(ctx context.Context, id int64) (storage.Message, error) {
	if s == nil || s.sqlDB == nil {
		return storage.Message{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, content, author_username, directory_id, created_at, parent_id
		 FROM messages WHERE id = ?`, id)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Message{}, fmt.Errorf("message %d: %w", id, storage.ErrNotFound)
		}
		return storage.Message{}, fmt.Errorf("get message %d: %w", id, err)
	}
	return msg, nil
}

// ListThread returns up to limit messages of a directory, oldest first.
// A non-positive limit means defaultListLimit.
func (s *Store) ListThread(ctx context.Context, directoryID int64, limit int) ([]storage.Message, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, content, author_username, directory_id, created_at, parent_id
		 FROM messages WHERE directory_id = ?
		 ORDER BY created_at, id
		 LIMIT ?`, directoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("list thread %d: %w", directoryID, err)
	}
	defer rows.Close()

	messages := make([]storage.Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread %d: %w", directoryID, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list thread %d: %w", directoryID, err)
	}
	return messages, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (storage.Message, error) {
	var (
		msg       storage.Message
		createdAt int64
		parent    sql.NullInt64
	)
	if err := row.Scan(&msg.ID, &msg.Content, &msg.AuthorUsername, &msg.DirectoryID, &createdAt, &parent); err != nil {
		return storage.Message{}, err
	}
	msg.CreatedAt = fromMillis(createdAt)
	if parent.Valid {
		parentID := parent.Int64
		msg.ParentID = &parentID
	}
	return msg, nil
}

// CreateDirectory inserts a directory node and returns it with its id.
func (s *Store) CreateDirectory(ctx context.Context, dir storage.Directory) (storage.Directory, error) {
	if s == nil || s.sqlDB == nil {
		return storage.Directory{}, fmt.Errorf("storage is not configured")
	}
	name := strings.TrimSpace(dir.Name)
	if name == "" {
		return storage.Directory{}, fmt.Errorf("directory name is required")
	}
	kind := strings.TrimSpace(dir.Type)
	if kind == "" {
		kind = "thread"
	}

	var parent sql.NullInt64
	if dir.ParentID != nil {
		parent = sql.NullInt64{Int64: *dir.ParentID, Valid: true}
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO directory (name, type, parent_id) VALUES (?, ?, ?)`, name, kind, parent)
	if err != nil {
		return storage.Directory{}, fmt.Errorf("insert directory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storage.Directory{}, fmt.Errorf("read directory id: %w", err)
	}
	return storage.Directory{ID: id, Name: name, Type: kind, ParentID: dir.ParentID}, nil
}

func exists(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	var found int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
