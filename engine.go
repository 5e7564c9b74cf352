package authcore

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/vidyalay/authcore/internal/rate"
	"github.com/vidyalay/authcore/password"
	"github.com/vidyalay/authcore/token"
)

// Engine is the authentication engine. It owns credential verification,
// token issuance, refresh rotation, and logout against a pluggable
// [UserStore]. Construct one with [Builder.Build]; the zero value is not
// usable.
//
// All methods are safe for concurrent use once the engine is built.
type Engine struct {
	config      Config
	store       UserStore
	codec       *token.Codec
	passwords   *password.Hasher
	rateLimiter *rate.Limiter
	audit       *auditDispatcher
	metrics     *Metrics
}

// Close releases engine resources. It stops the audit dispatcher after
// draining buffered events. Close is idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were discarded because the
// audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// storeFailure records a backend failure and maps it to the public
// [ErrStoreUnavailable] sentinel.
func (e *Engine) storeFailure(ctx context.Context, eventType string, userID string, metadataBuilder func() map[string]string) error {
	e.metricInc(MetricStoreFailure)
	e.emitAudit(ctx, eventType, false, userID, ErrStoreUnavailable, metadataBuilder)
	return ErrStoreUnavailable
}

/*
====================================
LOGIN
====================================
*/

// Login verifies the identifier/password pair and starts a new device
// session. presentedRefresh is the refresh token the client sent with the
// request, or "" when none was sent; Login consumes it so the superseded
// session cannot be resumed, and clears the user's whole token set when the
// presented token is not recognized.
//
// On success the returned [LoginResult] carries a fresh access/refresh pair.
// Failed credential checks return [ErrInvalidCredentials] without revealing
// whether the account exists.
func (e *Engine) Login(ctx context.Context, identifier, password, presentedRefresh string) (*LoginResult, error) {
	if identifier == "" || password == "" {
		e.metricInc(MetricLoginRejected)
		e.emitAudit(ctx, auditEventLoginRejected, false, "", ErrValidation, func() map[string]string {
			return map[string]string{
				"reason": "empty_input",
			}
		})
		return nil, ErrValidation
	}

	ip := clientIPFromContext(ctx)

	if err := e.rateLimiter.CheckLogin(ctx, identifier, ip); err != nil {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", ErrLoginRateLimited, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
			}
		})
		return nil, ErrLoginRateLimited
	}

	user, err := e.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, e.storeFailure(ctx, auditEventLoginFailure, "", func() map[string]string {
				return map[string]string{
					"identifier": identifier,
					"reason":     "store_lookup_failed",
				}
			})
		}
		_ = e.rateLimiter.IncrementLogin(ctx, identifier, ip)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "user_not_found",
			}
		})
		return nil, ErrInvalidCredentials
	}

	match, err := e.passwords.Verify(password, user.PasswordHash)
	if err != nil || !match {
		reason := "password_mismatch"
		if err != nil {
			reason = "hash_parse_failed"
		}
		_ = e.rateLimiter.IncrementLogin(ctx, identifier, ip)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     reason,
			}
		})
		return nil, ErrInvalidCredentials
	}

	if e.config.Password.UpgradeOnLogin {
		e.maybeUpgradeHash(ctx, user, password)
	}
	password = ""

	kept, clearPresented, err := e.reconcilePresentedToken(ctx, user, presentedRefresh)
	if err != nil {
		return nil, err
	}

	access, err := e.codec.IssueAccess(user.UserID, user.Name, user.Roles)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_access_failed",
			}
		})
		return nil, err
	}
	refresh, err := e.codec.IssueRefresh(user.UserID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_refresh_failed",
			}
		})
		return nil, err
	}

	if err := e.store.ReplaceRefreshTokens(ctx, user.UserID, append(kept, refresh)); err != nil {
		return nil, e.storeFailure(ctx, auditEventLoginFailure, user.UserID, func() map[string]string {
			return map[string]string{
				"reason": "token_write_failed",
			}
		})
	}

	if err := e.rateLimiter.ResetLogin(ctx, identifier, ip); err != nil {
		log.Print("authcore: login limiter reset failed")
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
		}
	})

	return &LoginResult{
		AccessToken:          access,
		RefreshToken:         refresh,
		UserID:               user.UserID,
		Name:                 user.Name,
		Roles:                user.Roles,
		ClearPresentedCookie: clearPresented,
	}, nil
}

// reconcilePresentedToken decides which of the user's refresh tokens survive
// a login. The presented token is consumed; an unrecognized presented token
// is treated as possible theft and voids every live session for the user.
// Expired tokens are pruned while we are here. A store transport failure
// during the ownership lookup is not a reuse signal and aborts the login.
func (e *Engine) reconcilePresentedToken(ctx context.Context, user *UserRecord, presented string) (kept []string, clearPresented bool, err error) {
	live := user.RefreshTokens

	if presented != "" {
		clearPresented = true
		owner, lookupErr := e.store.FindByRefreshToken(ctx, presented)
		switch {
		case lookupErr == nil && owner.UserID == user.UserID:
			live = removeToken(live, presented)
		case lookupErr == nil || errors.Is(lookupErr, ErrUserNotFound):
			// The cookie does not map to a live session of this user. Either
			// it was already consumed (possible replay) or it belongs to
			// someone else. Void everything rather than guess.
			e.metricInc(MetricLoginDefensiveClear)
			e.emitAudit(ctx, auditEventLoginDefensiveClear, false, user.UserID, ErrRefreshReuse, nil)
			return nil, true, nil
		default:
			return nil, false, e.storeFailure(ctx, auditEventLoginFailure, user.UserID, func() map[string]string {
				return map[string]string{
					"reason": "store_lookup_failed",
				}
			})
		}
	}

	for _, t := range live {
		if _, parseErr := e.codec.ParseRefresh(t); parseErr != nil {
			continue
		}
		kept = append(kept, t)
	}
	return kept, clearPresented, nil
}

// maybeUpgradeHash transparently rehashes the password when the stored hash
// was produced with weaker parameters. Best effort: login proceeds on any
// failure here.
func (e *Engine) maybeUpgradeHash(ctx context.Context, user *UserRecord, password string) {
	needs, err := e.passwords.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}

	updater, ok := e.store.(PasswordHashUpdater)
	if !ok {
		return
	}

	rehashed, err := e.passwords.Hash(password)
	if err != nil {
		log.Print("authcore: password upgrade rehash failed")
		return
	}
	if err := updater.UpdatePasswordHash(ctx, user.UserID, rehashed); err != nil {
		log.Print("authcore: password upgrade write failed")
		return
	}
	user.PasswordHash = rehashed
}

func removeToken(tokens []string, token string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != token {
			out = append(out, t)
		}
	}
	return out
}

/*
====================================
REFRESH
====================================
*/

// Refresh rotates a refresh token: the presented token is atomically
// replaced with a fresh one and a new access token is issued.
//
// Presenting a token that was already rotated out is treated as reuse: the
// user's entire token set is cleared and [ErrRefreshReuse] is returned.
// Under concurrent refreshes of the same token at most one caller wins the
// rotation.
func (e *Engine) Refresh(ctx context.Context, presentedRefresh string) (*RefreshResult, error) {
	if presentedRefresh == "" {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", ErrUnauthorized, func() map[string]string {
			return map[string]string{
				"reason": "missing_cookie",
			}
		})
		return nil, ErrUnauthorized
	}

	claims, err := e.codec.ParseRefresh(presentedRefresh)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", ErrSessionExpired, func() map[string]string {
				return map[string]string{
					"reason": "token_expired",
				}
			})
			return nil, ErrSessionExpired
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "token_malformed",
			}
		})
		return nil, ErrTokenInvalid
	}
	userID := claims.Subject

	if err := e.rateLimiter.CheckRefresh(ctx, userID); err != nil {
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditEventRefreshRateLimited, false, userID, ErrRefreshRateLimited, nil)
		return nil, ErrRefreshRateLimited
	}

	user, err := e.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// The subject account is gone but its token state may linger.
			// Best effort: drop whatever is left before rejecting.
			if clearErr := e.store.ClearRefreshTokens(ctx, userID); clearErr != nil && !errors.Is(clearErr, ErrUserNotFound) {
				log.Print("authcore: orphaned token clear failed")
			}
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, ErrSessionExpired, func() map[string]string {
				return map[string]string{
					"reason": "user_missing",
				}
			})
			return nil, ErrSessionExpired
		}
		return nil, e.storeFailure(ctx, auditEventRefreshInvalid, userID, func() map[string]string {
			return map[string]string{
				"reason": "store_lookup_failed",
			}
		})
	}

	next, err := e.codec.IssueRefresh(userID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_refresh_failed",
			}
		})
		return nil, err
	}

	outcome, err := e.store.RotateRefreshToken(ctx, userID, presentedRefresh, next)
	if err != nil {
		return nil, e.storeFailure(ctx, auditEventRefreshInvalid, userID, func() map[string]string {
			return map[string]string{
				"reason": "rotate_failed",
			}
		})
	}

	switch outcome {
	case RotateOK:
		// fall through to issuance
	case RotateTokenMissing:
		// The token verified but is no longer in the live set: it was
		// already spent. Someone is replaying it, so void every session.
		if clearErr := e.store.ClearRefreshTokens(ctx, userID); clearErr != nil {
			log.Print("authcore: defensive token clear failed")
		}
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, userID, ErrRefreshReuse, nil)
		return nil, ErrRefreshReuse
	case RotateUserMissing:
		if clearErr := e.store.ClearRefreshTokens(ctx, userID); clearErr != nil && !errors.Is(clearErr, ErrUserNotFound) {
			log.Print("authcore: orphaned token clear failed")
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, ErrSessionExpired, func() map[string]string {
			return map[string]string{
				"reason": "user_missing",
			}
		})
		return nil, ErrSessionExpired
	}

	access, err := e.codec.IssueAccess(user.UserID, user.Name, user.Roles)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_access_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, userID, nil, nil)

	return &RefreshResult{
		AccessToken:  access,
		RefreshToken: next,
		UserID:       user.UserID,
		Name:         user.Name,
		Roles:        user.Roles,
	}, nil
}

/*
====================================
VALIDATE / ME / LOGOUT
====================================
*/

// Validate verifies an access token and returns the identity it carries.
// This is the hot path: it never touches the store, so revocation takes
// effect only when the access token expires.
//
// Missing tokens return [ErrUnauthorized], expired ones [ErrSessionExpired],
// everything else [ErrTokenInvalid].
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e.metrics.Enabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	if accessToken == "" {
		e.metricInc(MetricValidateFailure)
		return nil, ErrUnauthorized
	}

	claims, err := e.codec.ParseAccess(accessToken)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrTokenInvalid
	}

	e.metricInc(MetricValidateSuccess)
	return &AuthResult{
		UserID: claims.Subject,
		Name:   claims.Name,
		Roles:  claims.Roles,
	}, nil
}

// Me resolves an access token to the caller's identity. Like
// [Engine.Validate] it never reads the store: the identity is exactly what
// the verified token carries, so the endpoint stays answerable during a
// backend outage. Name or role changes become visible once a refresh
// mints a new access token.
func (e *Engine) Me(ctx context.Context, accessToken string) (*Identity, error) {
	auth, err := e.Validate(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	return &Identity{
		UserID: auth.UserID,
		Name:   auth.Name,
		Roles:  auth.Roles,
	}, nil
}

// Logout revokes the session identified by presentedRefresh. It is
// idempotent: an empty, unknown, or already-revoked token succeeds without
// touching anything. The caller clears the cookies either way.
func (e *Engine) Logout(ctx context.Context, presentedRefresh string) error {
	if presentedRefresh == "" {
		return nil
	}

	owner, err := e.store.FindByRefreshToken(ctx, presentedRefresh)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		e.metricInc(MetricStoreFailure)
		return ErrStoreUnavailable
	}

	if err := e.store.RemoveRefreshToken(ctx, owner.UserID, presentedRefresh); err != nil {
		e.metricInc(MetricStoreFailure)
		return ErrStoreUnavailable
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, owner.UserID, nil, nil)
	return nil
}
