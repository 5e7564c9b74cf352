package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	authcore "github.com/vidyalay/authcore"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the identity injected by [Guard], if any.
func AuthResultFromContext(ctx context.Context) (*authcore.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*authcore.AuthResult)
	return res, ok
}

// Guard returns middleware that authenticates each request against the
// engine. The access token is read from the access cookie first, then from
// the Authorization header for non-browser clients.
//
// Missing or expired tokens get 401; structurally invalid ones get 403. On
// success the verified [authcore.AuthResult] is placed in the request
// context.
func Guard(engine *authcore.Engine, cookieName string) func(http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = "accessToken"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := accessToken(r, cookieName)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.Validate(r.Context(), token)
			if err != nil {
				if errors.Is(err, authcore.ErrTokenInvalid) || errors.Is(err, authcore.ErrForbidden) {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles returns middleware that rejects authenticated requests whose
// identity holds none of the given role bits. It must run inside [Guard].
func RequireRoles(roles int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if res.Roles&roles == 0 {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// accessToken extracts the access token from the request. The cookie wins so
// a stale Authorization header cannot shadow a browser session.
func accessToken(r *http.Request, cookieName string) (string, bool) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
