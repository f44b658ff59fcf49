// Package sqlite implements the timeline storage contracts on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	sqlitemigrate "github.com/learning-layers/Timeliner/internal/platform/storage/sqlitemigrate"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage/sqlite/migrations"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store provides SQLite-backed persistence for the timeline service.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// Open opens a timeline SQLite store at the provided path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	store, err := OpenWithoutMigrations(path)
	if err != nil {
		return nil, err
	}
	if _, err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// OpenWithoutMigrations opens the database without touching the schema.
func OpenWithoutMigrations(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := ensureForeignKeysEnabled(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := ensureBusyTimeout(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Migrate applies pending migrations and returns their names.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	return sqlitemigrate.ApplyMigrations(ctx, s.sqlDB, migrations.FS, "")
}

// PendingMigrations lists migrations not yet applied.
func (s *Store) PendingMigrations(ctx context.Context) ([]string, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	return sqlitemigrate.Pending(ctx, s.sqlDB, migrations.FS, "")
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func ensureForeignKeysEnabled(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("sqlite db is required")
	}
	var enabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		return fmt.Errorf("check sqlite foreign key pragma: %w", err)
	}
	if enabled != 1 {
		return fmt.Errorf("sqlite foreign keys are disabled")
	}
	return nil
}

// ensureBusyTimeout fails when the driver ignored the connection pragmas,
// which would let concurrent writers fail with SQLITE_BUSY.
func ensureBusyTimeout(db *sql.DB) error {
	var timeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		return fmt.Errorf("check sqlite busy timeout: %w", err)
	}
	if timeout <= 0 {
		return fmt.Errorf("sqlite busy timeout is not set")
	}
	return nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// withTx runs fn in one transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, label string, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", label, err)
	}
	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback %s: %v", err, label, rollbackErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", label, err)
	}
	return nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isForeignKeyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

// mapWriteError turns constraint violations into storage sentinels.
func mapWriteError(label string, err error) error {
	switch {
	case err == nil:
		return nil
	case isForeignKeyError(err):
		return storage.ErrNotFound
	case isConstraintError(err):
		return storage.ErrConflict
	default:
		return fmt.Errorf("%s: %w", label, err)
	}
}

func mapReadError(label string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return fmt.Errorf("%s: %w", label, err)
}

// versionedUpdate runs an UPDATE guarded by version and tells a stale write
// apart from a missing row.
func versionedUpdate(ctx context.Context, q queryer, table string, id string, expectedVersion int64, builder squirrel.UpdateBuilder) error {
	query, args, err := builder.
		Set("version", expectedVersion+1).
		Where(squirrel.Eq{"id": id, "version": expectedVersion}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s update: %w", table, err)
	}
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteError("update "+table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s rows affected: %w", table, err)
	}
	if affected == 1 {
		return nil
	}
	var found int
	err = q.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check %s existence: %w", table, err)
	}
	return storage.ErrVersionConflict
}

// applyCursor adds newest-first paging to a select.
func applyCursor(builder squirrel.SelectBuilder, column string, cursor storage.Cursor) squirrel.SelectBuilder {
	switch {
	case cursor.Before != nil && cursor.BeforeID != "":
		before := toMillis(*cursor.Before)
		builder = builder.Where(squirrel.Or{
			squirrel.Lt{column: before},
			squirrel.And{squirrel.Eq{column: before}, squirrel.Lt{"id": cursor.BeforeID}},
		})
	case cursor.Before != nil:
		builder = builder.Where(squirrel.Lt{column: toMillis(*cursor.Before)})
	}
	builder = builder.OrderBy(column+" DESC", "id DESC")
	if cursor.Limit > 0 {
		builder = builder.Limit(uint64(cursor.Limit))
	}
	return builder
}
