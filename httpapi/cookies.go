package httpapi

import (
	"net/http"
)

// setAuthCookies writes the access and refresh cookies. MaxAge follows the
// token TTLs so the browser drops them in step with expiry.
func (h *Handler) setAuthCookies(w http.ResponseWriter, access, refresh string) {
	cookies := h.config.Cookies
	tokens := h.config.Tokens

	http.SetCookie(w, &http.Cookie{
		Name:     cookies.AccessName,
		Value:    access,
		Path:     cookies.Path,
		Domain:   cookies.Domain,
		MaxAge:   int(tokens.AccessTTL.Seconds()),
		Secure:   cookies.Secure,
		HttpOnly: cookies.HTTPOnly,
		SameSite: cookies.SameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     cookies.RefreshName,
		Value:    refresh,
		Path:     cookies.Path,
		Domain:   cookies.Domain,
		MaxAge:   int(tokens.RefreshTTL.Seconds()),
		Secure:   cookies.Secure,
		HttpOnly: cookies.HTTPOnly,
		SameSite: cookies.SameSite,
	})
}

// clearAuthCookies expires both cookies. Attributes must match the set path
// or browsers keep the stale copies.
func (h *Handler) clearAuthCookies(w http.ResponseWriter) {
	cookies := h.config.Cookies

	for _, name := range []string{cookies.AccessName, cookies.RefreshName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     cookies.Path,
			Domain:   cookies.Domain,
			MaxAge:   -1,
			Secure:   cookies.Secure,
			HttpOnly: cookies.HTTPOnly,
			SameSite: cookies.SameSite,
		})
	}
}

func (h *Handler) refreshCookie(r *http.Request) string {
	c, err := r.Cookie(h.config.Cookies.RefreshName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *Handler) accessCookie(r *http.Request) string {
	c, err := r.Cookie(h.config.Cookies.AccessName)
	if err != nil {
		return ""
	}
	return c.Value
}
