package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/storage"
)

const userColumns = `id, email, password_hash, activated, admin, name_first, name_middle, name_last,
confirmation_key, confirmation_created_at, last_login_at, created_at, updated_at`

// PutUser inserts a user. A taken email fails with storage.ErrConflict.
func (s *Store) PutUser(ctx context.Context, user domain.User) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(user.ID) == "" || strings.TrimSpace(user.Email) == "" {
		return fmt.Errorf("user id and email are required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		user.ID,
		user.Email,
		user.PasswordHash,
		boolToInt(user.Activated),
		boolToInt(user.Admin),
		user.Name.First,
		user.Name.Middle,
		user.Name.Last,
		nullString(user.ConfirmationKey),
		toNullMillis(user.ConfirmationCreatedAt),
		toNullMillis(user.LastLogin),
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	return mapWriteError("put user", err)
}

// UpdateUser rewrites every mutable user column.
func (s *Store) UpdateUser(ctx context.Context, user domain.User) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE users SET
    email = ?, password_hash = ?, activated = ?, admin = ?,
    name_first = ?, name_middle = ?, name_last = ?,
    confirmation_key = ?, confirmation_created_at = ?, last_login_at = ?, updated_at = ?
WHERE id = ?
`,
		user.Email,
		user.PasswordHash,
		boolToInt(user.Activated),
		boolToInt(user.Admin),
		user.Name.First,
		user.Name.Middle,
		user.Name.Last,
		nullString(user.ConfirmationKey),
		toNullMillis(user.ConfirmationCreatedAt),
		toNullMillis(user.LastLogin),
		toMillis(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		return mapWriteError("update user", err)
	}
	return requireAffected(result, "update user")
}

// GetUser loads one user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return s.getUserWhere(ctx, "id = ?", userID)
}

// GetUserByEmail loads one user by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.getUserWhere(ctx, "email = ?", email)
}

// GetUserByConfirmationKey loads the registration waiting on key.
func (s *Store) GetUserByConfirmationKey(ctx context.Context, key string) (domain.User, error) {
	if strings.TrimSpace(key) == "" {
		return domain.User{}, storage.ErrNotFound
	}
	return s.getUserWhere(ctx, "confirmation_key = ?", key)
}

func (s *Store) getUserWhere(ctx context.Context, where string, arg any) (domain.User, error) {
	if err := s.ready(ctx); err != nil {
		return domain.User{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg)
	user, err := scanUser(row.Scan)
	if err != nil {
		return domain.User{}, mapReadError("get user", err)
	}
	return user, nil
}

// GetUsers loads the users with the given ids, keyed by id. Unknown ids
// are skipped.
func (s *Store) GetUsers(ctx context.Context, userIDs []string) (map[string]domain.User, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	users := make(map[string]domain.User, len(userIDs))
	if len(userIDs) == 0 {
		return users, nil
	}
	query, args, err := squirrel.Select(userColumns).From("users").Where(squirrel.Eq{"id": userIDs}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get users: %w", err)
	}
	list, err := s.queryUsers(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	for _, user := range list {
		users[user.ID] = user
	}
	return users, nil
}

// ListUsers lists every account by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.queryUsers(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at, rowid")
}

// SearchUsers finds activated users whose email or name contains term.
func (s *Store) SearchUsers(ctx context.Context, term string, limit int) ([]domain.User, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return []domain.User{}, nil
	}
	pattern := "%" + escapeLike(term) + "%"
	builder := squirrel.Select(userColumns).
		From("users").
		Where(squirrel.Eq{"activated": 1}).
		Where(squirrel.Or{
			squirrel.Expr("LOWER(email) LIKE ? ESCAPE '\\'", pattern),
			squirrel.Expr("LOWER(name_first || ' ' || name_middle || ' ' || name_last) LIKE ? ESCAPE '\\'", pattern),
		}).
		OrderBy("email")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build search users: %w", err)
	}
	return s.queryUsers(ctx, query, args...)
}

// DeleteUnconfirmedUsers removes registrations never confirmed whose key
// was issued before createdBefore.
func (s *Store) DeleteUnconfirmedUsers(ctx context.Context, createdBefore time.Time) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM users
WHERE activated = 0 AND confirmation_key IS NOT NULL AND confirmation_created_at < ?
`, toMillis(createdBefore))
	if err != nil {
		return 0, fmt.Errorf("delete unconfirmed users: %w", err)
	}
	return result.RowsAffected()
}

// PutSocialIdentity links an external account to a user.
func (s *Store) PutSocialIdentity(ctx context.Context, identity domain.SocialIdentity) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO social_identities (provider, subject, user_id, created_at) VALUES (?, ?, ?, ?)
`, identity.Provider, identity.Subject, identity.UserID, toMillis(identity.CreatedAt))
	return mapWriteError("put social identity", err)
}

// GetSocialIdentity loads the link for one provider subject.
func (s *Store) GetSocialIdentity(ctx context.Context, provider string, subject string) (domain.SocialIdentity, error) {
	if err := s.ready(ctx); err != nil {
		return domain.SocialIdentity{}, err
	}
	var (
		identity  domain.SocialIdentity
		createdAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT provider, subject, user_id, created_at FROM social_identities WHERE provider = ? AND subject = ?
`, provider, subject).Scan(&identity.Provider, &identity.Subject, &identity.UserID, &createdAt)
	if err != nil {
		return domain.SocialIdentity{}, mapReadError("get social identity", err)
	}
	identity.CreatedAt = fromMillis(createdAt)
	return identity, nil
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		user, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var (
		user                  domain.User
		activated, admin      int
		confirmationKey       sql.NullString
		confirmationCreatedAt sql.NullInt64
		lastLogin             sql.NullInt64
		createdAt, updatedAt  int64
	)
	if err := scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&activated,
		&admin,
		&user.Name.First,
		&user.Name.Middle,
		&user.Name.Last,
		&confirmationKey,
		&confirmationCreatedAt,
		&lastLogin,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.User{}, err
	}
	user.Activated = activated == 1
	user.Admin = admin == 1
	user.ConfirmationKey = confirmationKey.String
	user.ConfirmationCreatedAt = fromNullMillis(confirmationCreatedAt)
	user.LastLogin = fromNullMillis(lastLogin)
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(strings.ToLower(value))
}

func requireAffected(result sql.Result, label string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", label, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
