package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	authcore "github.com/vidyalay/authcore"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = authcore.ErrUserNotFound

// ErrDuplicateIdentifier is returned by CreateUser when the identifier is taken.
var ErrDuplicateIdentifier = authcore.ErrAccountExists

// DB is the subset of pgxpool.Pool the store needs. pgxmock satisfies it in
// tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a PostgreSQL-backed [authcore.UserStore]. Refresh tokens live in a
// text[] column on the user row; rotation is a conditional array_replace so a
// single UPDATE forms the compare-and-swap.
type Store struct {
	db DB
}

// NewStore creates a [Store] on the given connection pool.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, name, identifier, password_hash, roles, refresh_tokens`

// FindByIdentifier looks a user up by login identifier.
func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*authcore.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE identifier = $1`
	return s.scanUser(ctx, query, identifier)
}

// FindByID loads the full user record including its refresh token array.
func (s *Store) FindByID(ctx context.Context, userID string) (*authcore.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.scanUser(ctx, query, userID)
}

// FindByRefreshToken resolves a refresh token to its owning user.
func (s *Store) FindByRefreshToken(ctx context.Context, token string) (*authcore.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE $1 = ANY(refresh_tokens)`
	return s.scanUser(ctx, query, token)
}

// CreateUser inserts a new user. A taken identifier returns
// [ErrDuplicateIdentifier].
func (s *Store) CreateUser(ctx context.Context, user *authcore.UserRecord) error {
	query := `
		INSERT INTO users (id, name, identifier, password_hash, roles, refresh_tokens)
		VALUES ($1, $2, $3, $4, $5, $6)`

	tokens := user.RefreshTokens
	if tokens == nil {
		tokens = []string{}
	}

	_, err := s.db.Exec(ctx, query,
		user.UserID,
		user.Name,
		user.Identifier,
		user.PasswordHash,
		user.Roles,
		tokens,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateIdentifier
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// ReplaceRefreshTokens overwrites the user's token array in a single write.
func (s *Store) ReplaceRefreshTokens(ctx context.Context, userID string, tokens []string) error {
	if tokens == nil {
		tokens = []string{}
	}

	query := `UPDATE users SET refresh_tokens = $2 WHERE id = $1`
	ct, err := s.db.Exec(ctx, query, userID, tokens)
	if err != nil {
		return fmt.Errorf("replace tokens: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateRefreshToken swaps presented for next only while presented is still
// in the array. The membership predicate is re-evaluated under the row lock,
// so concurrent rotations of the same token admit exactly one winner.
func (s *Store) RotateRefreshToken(ctx context.Context, userID, presented, next string) (authcore.RotateOutcome, error) {
	query := `
		UPDATE users
		SET refresh_tokens = array_replace(refresh_tokens, $2, $3)
		WHERE id = $1 AND $2 = ANY(refresh_tokens)`

	ct, err := s.db.Exec(ctx, query, userID, presented, next)
	if err != nil {
		return authcore.RotateTokenMissing, fmt.Errorf("rotate token: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return authcore.RotateOK, nil
	}

	var exists bool
	err = s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return authcore.RotateTokenMissing, fmt.Errorf("rotate token: %w", err)
	}
	if !exists {
		return authcore.RotateUserMissing, nil
	}
	return authcore.RotateTokenMissing, nil
}

// RemoveRefreshToken deletes one token from the array. Removing a token that
// is not present is a no-op.
func (s *Store) RemoveRefreshToken(ctx context.Context, userID, token string) error {
	query := `UPDATE users SET refresh_tokens = array_remove(refresh_tokens, $2) WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, userID, token); err != nil {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// ClearRefreshTokens drops every live token for the user.
func (s *Store) ClearRefreshTokens(ctx context.Context, userID string) error {
	query := `UPDATE users SET refresh_tokens = '{}' WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}

// UpdatePasswordHash rewrites the stored password hash, implementing
// [authcore.PasswordHashUpdater] for transparent parameter upgrades.
func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	query := `UPDATE users SET password_hash = $2 WHERE id = $1`
	ct, err := s.db.Exec(ctx, query, userID, hash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) scanUser(ctx context.Context, query string, args ...any) (*authcore.UserRecord, error) {
	var u authcore.UserRecord

	err := s.db.QueryRow(ctx, query, args...).Scan(
		&u.UserID,
		&u.Name,
		&u.Identifier,
		&u.PasswordHash,
		&u.Roles,
		&u.RefreshTokens,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
