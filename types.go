package authcore

import "context"

// Role bits carried in the access token. A user may hold several roles at
// once; the marketplace checks them as a bitmask.
const (
	// RoleStudent is an exported constant or variable used by the authentication engine.
	RoleStudent = 1 << iota
	// RoleInstructor is an exported constant or variable used by the authentication engine.
	RoleInstructor
	// RoleAdmin is an exported constant or variable used by the authentication engine.
	RoleAdmin
)

// UserRecord is the full account record exchanged with a [UserStore].
// RefreshTokens holds every currently valid refresh token for the user,
// one per active device session.
type UserRecord struct {
	UserID        string
	Name          string
	Identifier    string
	PasswordHash  string
	Roles         int
	RefreshTokens []string
}

// RotateOutcome reports the result of a compare-and-swap refresh rotation.
type RotateOutcome uint8

const (
	// RotateOK is an exported constant or variable used by the authentication engine.
	RotateOK RotateOutcome = iota
	// RotateTokenMissing is an exported constant or variable used by the authentication engine.
	RotateTokenMissing
	// RotateUserMissing is an exported constant or variable used by the authentication engine.
	RotateUserMissing
)

// UserStore is the credential backend contract that callers must implement
// (or take from the userstore / pgstore packages) to integrate authcore with
// their user database.
//
// RotateRefreshToken must be atomic: it replaces presented with next only if
// presented is still in the user's token set, and concurrent calls for the
// same presented token must let at most one succeed. ReplaceRefreshTokens
// overwrites the user's token set in a single write.
//
// Lookup misses must return an error matching [ErrUserNotFound] and
// CreateUser must return an error matching [ErrAccountExists] for a taken
// identifier; the engine treats every other store error as backend failure.
type UserStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*UserRecord, error)
	FindByID(ctx context.Context, userID string) (*UserRecord, error)
	FindByRefreshToken(ctx context.Context, token string) (*UserRecord, error)
	CreateUser(ctx context.Context, user *UserRecord) error
	ReplaceRefreshTokens(ctx context.Context, userID string, tokens []string) error
	RotateRefreshToken(ctx context.Context, userID, presented, next string) (RotateOutcome, error)
	RemoveRefreshToken(ctx context.Context, userID, token string) error
	ClearRefreshTokens(ctx context.Context, userID string) error
}

// PasswordHashUpdater is an optional [UserStore] capability. Stores that
// implement it get transparent hash upgrades on login when
// [PasswordConfig.UpgradeOnLogin] is set.
type PasswordHashUpdater interface {
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// LoginResult is returned by [Engine.Login]. ClearPresentedCookie is true
// when the caller sent a refresh cookie that must be cleared before the new
// one is set.
type LoginResult struct {
	AccessToken  string
	RefreshToken string

	UserID string
	Name   string
	Roles  int

	ClearPresentedCookie bool
}

// RefreshResult is returned by [Engine.Refresh] after a successful rotation.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string

	UserID string
	Name   string
	Roles  int
}

// AuthResult is returned by [Engine.Validate]. It contains the identity
// decoded from a verified access token.
type AuthResult struct {
	UserID string
	Name   string
	Roles  int
}

// Identity is returned by [Engine.Me].
type Identity struct {
	UserID string
	Name   string
	Roles  int
}

// RegisterRequest is the input for [Engine.Register]. Name, Identifier, and
// Password are required; Roles defaults to [Config.Account.DefaultRoles]
// when zero.
type RegisterRequest struct {
	Name       string
	Identifier string
	Password   string
	Roles      int
}
