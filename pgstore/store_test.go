package pgstore

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authcore "github.com/vidyalay/authcore"
)

func newTestFixture(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewStore(mock), mock
}

func sampleUser() *authcore.UserRecord {
	return &authcore.UserRecord{
		UserID:        "u-1234",
		Name:          "Asha Verma",
		Identifier:    "9876500001",
		PasswordHash:  "hash-abc",
		Roles:         authcore.RoleStudent,
		RefreshTokens: []string{"tok-a", "tok-b"},
	}
}

func userColumnNames() []string {
	return []string{"id", "name", "identifier", "password_hash", "roles", "refresh_tokens"}
}

func userRow(u *authcore.UserRecord) *pgxmock.Rows {
	return pgxmock.NewRows(userColumnNames()).AddRow(
		u.UserID, u.Name, u.Identifier, u.PasswordHash, u.Roles, u.RefreshTokens,
	)
}

func TestCreateUser(t *testing.T) {
	store, mock := newTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(u.UserID, u.Name, u.Identifier, u.PasswordHash, u.Roles, u.RefreshTokens).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.CreateUser(context.Background(), u)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicateIdentifier(t *testing.T) {
	store, mock := newTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(u.UserID, u.Name, u.Identifier, u.PasswordHash, u.Roles, u.RefreshTokens).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.CreateUser(context.Background(), u)
	assert.ErrorIs(t, err, ErrDuplicateIdentifier)
	assert.ErrorIs(t, err, authcore.ErrAccountExists)
}

func TestFindByIdentifier(t *testing.T) {
	store, mock := newTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE identifier").
		WithArgs(u.Identifier).
		WillReturnRows(userRow(u))

	got, err := store.FindByIdentifier(context.Background(), u.Identifier)
	require.NoError(t, err)
	assert.Equal(t, u.UserID, got.UserID)
	assert.Equal(t, u.RefreshTokens, got.RefreshTokens)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	store, mock := newTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows(userColumnNames()))

	_, err := store.FindByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, authcore.ErrUserNotFound)
}

func TestFindByRefreshToken(t *testing.T) {
	store, mock := newTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE (.+) ANY\\(refresh_tokens\\)").
		WithArgs("tok-a").
		WillReturnRows(userRow(u))

	got, err := store.FindByRefreshToken(context.Background(), "tok-a")
	require.NoError(t, err)
	assert.Equal(t, u.UserID, got.UserID)
}

func TestRotateRefreshTokenWins(t *testing.T) {
	store, mock := newTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE users").
		WithArgs("u-1234", "tok-a", "tok-next").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	outcome, err := store.RotateRefreshToken(context.Background(), "u-1234", "tok-a", "tok-next")
	require.NoError(t, err)
	assert.Equal(t, authcore.RotateOK, outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRotateRefreshTokenMissing(t *testing.T) {
	store, mock := newTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE users").
		WithArgs("u-1234", "tok-spent", "tok-next").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("u-1234").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	outcome, err := store.RotateRefreshToken(context.Background(), "u-1234", "tok-spent", "tok-next")
	require.NoError(t, err)
	assert.Equal(t, authcore.RotateTokenMissing, outcome)
}

func TestRotateRefreshTokenUserMissing(t *testing.T) {
	store, mock := newTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE users").
		WithArgs("ghost", "tok-a", "tok-next").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	outcome, err := store.RotateRefreshToken(context.Background(), "ghost", "tok-a", "tok-next")
	require.NoError(t, err)
	assert.Equal(t, authcore.RotateUserMissing, outcome)
}

func TestReplaceAndClearTokens(t *testing.T) {
	store, mock := newTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE users SET refresh_tokens").
		WithArgs("u-1234", []string{"tok-c"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.ReplaceRefreshTokens(context.Background(), "u-1234", []string{"tok-c"})
	assert.NoError(t, err)

	mock.ExpectExec("UPDATE users SET refresh_tokens").
		WithArgs("u-1234").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.ClearRefreshTokens(context.Background(), "u-1234")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePasswordHashMissingUser(t *testing.T) {
	store, mock := newTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs("ghost", "new-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdatePasswordHash(context.Background(), "ghost", "new-hash")
	assert.ErrorIs(t, err, ErrNotFound)
}
