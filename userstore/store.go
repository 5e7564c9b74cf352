package userstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	authcore "github.com/vidyalay/authcore"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = authcore.ErrUserNotFound

// ErrDuplicateIdentifier is returned by CreateUser when the identifier is taken.
var ErrDuplicateIdentifier = authcore.ErrAccountExists

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	rotateStatusTokenMissing int64 = 0
	rotateStatusUserMissing  int64 = 1
	rotateStatusRotated      int64 = 2
)

const rotateTokenScript = `
local removed = redis.call("SREM", KEYS[1], ARGV[1])
if removed == 1 then
  redis.call("SADD", KEYS[1], ARGV[2])
  redis.call("DEL", KEYS[3])
  redis.call("SET", KEYS[4], ARGV[3], "PX", ARGV[4])
  return 2
end
if redis.call("EXISTS", KEYS[2]) == 0 then
  return 1
end
return 0
`

var rotateTokenLua = redis.NewScript(rotateTokenScript)

const replaceTokensScript = `
local old = redis.call("SMEMBERS", KEYS[1])
for _, tok in ipairs(old) do
  redis.call("DEL", ARGV[1] .. redis.sha1hex(tok))
end
redis.call("DEL", KEYS[1])
local n = tonumber(ARGV[2])
for i = 1, n do
  local tok = ARGV[2 + i]
  redis.call("SADD", KEYS[1], tok)
  redis.call("SET", ARGV[1] .. redis.sha1hex(tok), ARGV[2 + n + 1], "PX", ARGV[2 + n + 2])
end
return n
`

var replaceTokensLua = redis.NewScript(replaceTokensScript)

const removeTokenScript = `
local removed = redis.call("SREM", KEYS[1], ARGV[1])
if removed == 1 then
  redis.call("DEL", KEYS[2])
end
return removed
`

var removeTokenLua = redis.NewScript(removeTokenScript)

const createUserScript = `
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[2],
  "name", ARGV[2],
  "identifier", ARGV[3],
  "password_hash", ARGV[4],
  "roles", ARGV[5])
return 1
`

var createUserLua = redis.NewScript(createUserScript)

// Store is a Redis-backed [authcore.UserStore]. Each user is a hash plus a
// set of live refresh tokens; a per-token reverse index supports owner
// lookup by token value. Rotation runs as a single Lua compare-and-swap so
// concurrent refreshes for the same token admit exactly one winner.
type Store struct {
	redis    redis.UniversalClient
	prefix   string
	tokenTTL time.Duration
}

// NewStore creates a [Store] backed by the given Redis client. prefix sets
// the key namespace; tokenTTL bounds the lifetime of the reverse token
// index and should match the refresh token TTL.
func NewStore(redis redis.UniversalClient, prefix string, tokenTTL time.Duration) *Store {
	if prefix == "" {
		prefix = "ac"
	}
	if tokenTTL <= 0 {
		tokenTTL = 15 * 24 * time.Hour
	}
	return &Store{
		redis:    redis,
		prefix:   prefix,
		tokenTTL: tokenTTL,
	}
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *Store) identKey(identifier string) string {
	return s.prefix + ":ident:" + identifier
}

func (s *Store) tokensKey(userID string) string {
	return s.prefix + ":rt:" + userID
}

func (s *Store) tokenIndexPrefix() string {
	return s.prefix + ":tok:"
}

// tokenIndexKey uses the same digest the Lua scripts compute with
// redis.sha1hex so both sides agree on the index key for a token. SHA-1 is
// an index key here, not an integrity check.
func (s *Store) tokenIndexKey(token string) string {
	sum := sha1.Sum([]byte(token))
	return s.tokenIndexPrefix() + hex.EncodeToString(sum[:])
}

// FindByIdentifier looks a user up by login identifier.
func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*authcore.UserRecord, error) {
	userID, err := s.redis.Get(ctx, s.identKey(identifier)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.FindByID(ctx, userID)
}

// FindByID loads the full user record including its refresh token set.
func (s *Store) FindByID(ctx context.Context, userID string) (*authcore.UserRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	tokens, err := s.redis.SMembers(ctx, s.tokensKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	roles, _ := strconv.Atoi(fields["roles"])

	return &authcore.UserRecord{
		UserID:        userID,
		Name:          fields["name"],
		Identifier:    fields["identifier"],
		PasswordHash:  fields["password_hash"],
		Roles:         roles,
		RefreshTokens: tokens,
	}, nil
}

// FindByRefreshToken resolves a refresh token to its owning user through the
// reverse index.
func (s *Store) FindByRefreshToken(ctx context.Context, token string) (*authcore.UserRecord, error) {
	userID, err := s.redis.Get(ctx, s.tokenIndexKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	user, err := s.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	// The index can briefly outlive set membership; trust the set.
	for _, t := range user.RefreshTokens {
		if t == token {
			return user, nil
		}
	}
	return nil, ErrNotFound
}

// CreateUser persists a new user. The identifier claim and the record write
// happen atomically; a taken identifier returns [ErrDuplicateIdentifier].
func (s *Store) CreateUser(ctx context.Context, user *authcore.UserRecord) error {
	created, err := createUserLua.Run(
		ctx,
		s.redis,
		[]string{s.identKey(user.Identifier), s.userKey(user.UserID)},
		user.UserID,
		user.Name,
		user.Identifier,
		user.PasswordHash,
		strconv.Itoa(user.Roles),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if created == 0 {
		return ErrDuplicateIdentifier
	}
	return nil
}

// ReplaceRefreshTokens overwrites the user's token set with tokens in a
// single atomic script, rebuilding the reverse index as it goes.
func (s *Store) ReplaceRefreshTokens(ctx context.Context, userID string, tokens []string) error {
	argv := make([]interface{}, 0, len(tokens)+4)
	argv = append(argv, s.tokenIndexPrefix(), strconv.Itoa(len(tokens)))
	for _, tok := range tokens {
		argv = append(argv, tok)
	}
	argv = append(argv, userID, strconv.FormatInt(s.tokenTTL.Milliseconds(), 10))

	if err := replaceTokensLua.Run(ctx, s.redis, []string{s.tokensKey(userID)}, argv...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RotateRefreshToken atomically swaps presented for next in the user's token
// set. Exactly one concurrent caller observes [authcore.RotateOK]; the rest
// see [authcore.RotateTokenMissing].
func (s *Store) RotateRefreshToken(ctx context.Context, userID, presented, next string) (authcore.RotateOutcome, error) {
	code, err := rotateTokenLua.Run(
		ctx,
		s.redis,
		[]string{
			s.tokensKey(userID),
			s.userKey(userID),
			s.tokenIndexKey(presented),
			s.tokenIndexKey(next),
		},
		presented,
		next,
		userID,
		strconv.FormatInt(s.tokenTTL.Milliseconds(), 10),
	).Int64()
	if err != nil {
		return authcore.RotateTokenMissing, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch code {
	case rotateStatusRotated:
		return authcore.RotateOK, nil
	case rotateStatusUserMissing:
		return authcore.RotateUserMissing, nil
	default:
		return authcore.RotateTokenMissing, nil
	}
}

// UpdatePasswordHash rewrites the stored password hash, implementing
// [authcore.PasswordHashUpdater] for transparent parameter upgrades.
func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	exists, err := s.redis.Exists(ctx, s.userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	if err := s.redis.HSet(ctx, s.userKey(userID), "password_hash", hash).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RemoveRefreshToken deletes a single token from the user's set. Removing a
// token that is not present is a no-op.
func (s *Store) RemoveRefreshToken(ctx context.Context, userID, token string) error {
	err := removeTokenLua.Run(
		ctx,
		s.redis,
		[]string{s.tokensKey(userID), s.tokenIndexKey(token)},
		token,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ClearRefreshTokens drops every live token for the user.
func (s *Store) ClearRefreshTokens(ctx context.Context, userID string) error {
	return s.ReplaceRefreshTokens(ctx, userID, nil)
}
