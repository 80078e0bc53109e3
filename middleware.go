package whisperwall

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type sessionUserKey string

const loggedInUserKey = sessionUserKey("loggedInUser")

// DefaultCallbackURLParam is the query/form parameter carrying the URL a
// login flow should land on once the session is established.
const DefaultCallbackURLParam = "callbackURL"

// Middleware restores the logged in user on every request and gates the
// protected routes. The gate itself is a pure function of session presence:
// it never re-verifies credentials.
type Middleware struct {
	// CurrentUser restores the session projection for a request.
	// Usually Sessions.Current.
	CurrentUser func(r *http.Request) *SessionUser

	// VerifyToken is the fallback for requests carrying an auth token cookie
	// or header but no live session (e.g. API calls). Optional.
	VerifyToken func(tokenString string) (loggedInUserId string, token any, err error)

	// LookupUser rehydrates the full session projection for a user restored
	// from a bare auth token, which only vouches for the id. Optional; when
	// nil or failing the projection carries the id alone.
	LookupUser func(userId string) (*SessionUser, error)

	AuthTokenHeaderName string
	AuthTokenCookieName string

	// Where RequireUser sends anonymous callers, with the original URL
	// appended as CallbackURLParam.
	LoginURL         string
	CallbackURLParam string
}

func (m *Middleware) EnsureReasonableDefaults() {
	if m.CallbackURLParam == "" {
		m.CallbackURLParam = DefaultCallbackURLParam
	}
	if m.AuthTokenHeaderName == "" {
		m.AuthTokenHeaderName = "Authorization"
	}
	if m.LoginURL == "" {
		m.LoginURL = "/login"
	}
}

// ExtractUser loads the session user (if any) into the request context for
// downstream handlers. It never redirects; use RequireUser to enforce login.
func (m *Middleware) ExtractUser(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, m.withLoggedInUser(m.resolveUser(r), r))
	})
}

// RequireUser is the authorization gate: anonymous callers are redirected to
// the login page, everyone else proceeds with the user in context.
func (m *Middleware) RequireUser(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		su := m.resolveUser(r)
		if su == nil {
			originalUrl := r.URL.Path
			encodedUrl := strings.Replace(url.QueryEscape(originalUrl), "+", "%20", -1)
			target := fmt.Sprintf("%s?%s=%s", m.LoginURL, m.CallbackURLParam, encodedUrl)
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		next.ServeHTTP(w, m.withLoggedInUser(su, r))
	})
}

// LoggedInUser returns the session user placed in the request context by
// ExtractUser/RequireUser, or nil for anonymous requests.
func (m *Middleware) LoggedInUser(r *http.Request) *SessionUser {
	if v := r.Context().Value(loggedInUserKey); v != nil {
		if su, ok := v.(*SessionUser); ok {
			return su
		}
	}
	return nil
}

func (m *Middleware) resolveUser(r *http.Request) *SessionUser {
	if su := m.LoggedInUser(r); su != nil {
		return su
	}
	if m.CurrentUser != nil {
		if su := m.CurrentUser(r); su != nil {
			return su
		}
	}

	// Fall back to the signed auth token, from header or cookie.
	if m.VerifyToken == nil {
		return nil
	}
	authTokens := m.candidateTokens(r)
	for _, authToken := range authTokens {
		loggedInUserId, _, err := m.VerifyToken(authToken)
		if err == nil && loggedInUserId != "" {
			if m.LookupUser != nil {
				if su, err := m.LookupUser(loggedInUserId); err == nil && su != nil {
					return su
				}
			}
			return &SessionUser{ID: loggedInUserId}
		} else if err != nil {
			slog.Warn("error verifying auth token", "err", err)
		}
	}
	return nil
}

func (m *Middleware) candidateTokens(r *http.Request) []string {
	var authTokens []string
	for _, header := range r.Header.Values(m.AuthTokenHeaderName) {
		authTokens = append(authTokens, strings.TrimPrefix(header, "Bearer "))
	}
	if m.AuthTokenCookieName != "" {
		for _, cookie := range r.Cookies() {
			if cookie.Name == m.AuthTokenCookieName && len(cookie.Value) > 0 {
				authTokens = append(authTokens, cookie.Value)
			}
		}
	}
	return authTokens
}

func (m *Middleware) withLoggedInUser(su *SessionUser, r *http.Request) *http.Request {
	if su == nil {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), loggedInUserKey, su))
}
