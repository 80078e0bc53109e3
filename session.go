package whisperwall

import (
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Sessions serializes authenticated identities into scs-backed sessions and
// restores them on every request. The only states are Anonymous and
// Authenticated: login moves forward, logout or expiry moves back.
type Sessions struct {
	Manager *scs.SessionManager

	// Optional name used as a prefix for derived defaults
	AppName string

	// Session key under which the SessionUser projection is stored
	SessionUserVar string

	// Name of the session variable and cookie where the auth token is stored
	AuthTokenVar string

	// All the domains the auth token cookies are set on at login/logout
	CookieDomains []string

	// JWT related fields
	JwtIssuer    string
	JWTSecretKey string

	// How long a session is valid for. Defaults to 1 day.
	SessionTimeoutInSeconds int
}

// NewSessions creates a session manager with defaults filled in.
func NewSessions(appName string) *Sessions {
	out := (&Sessions{AppName: appName}).EnsureDefaults()
	return out
}

func (s *Sessions) EnsureDefaults() *Sessions {
	if s.AppName == "" {
		s.AppName = "WhisperWall"
	}
	if s.SessionTimeoutInSeconds <= 0 {
		s.SessionTimeoutInSeconds = 86400
	}
	if s.SessionUserVar == "" {
		s.SessionUserVar = "sessionUser"
	}
	if s.AuthTokenVar == "" {
		s.AuthTokenVar = fmt.Sprintf("%sAuthToken", s.AppName)
	}
	if s.JwtIssuer == "" {
		s.JwtIssuer = fmt.Sprintf("%s-Issuer", s.AppName)
	}
	if s.JWTSecretKey == "" {
		s.JWTSecretKey = strings.TrimSpace(os.Getenv("WHISPERWALL_SESSION_SECRET"))
		if s.JWTSecretKey == "" {
			s.JWTSecretKey = "MyTestSessionSecretKey123456"
		}
	}
	if s.Manager == nil {
		s.Manager = scs.New()
		s.Manager.Lifetime = time.Duration(s.SessionTimeoutInSeconds) * time.Second
	}
	return s
}

// LoadAndSave wraps a handler with the scs session middleware. Every request
// below it can restore the logged in user via Current.
func (s *Sessions) LoadAndSave(next http.Handler) http.Handler {
	s.EnsureDefaults()
	return s.Manager.LoadAndSave(next)
}

// Login serializes the user's projection into the session and issues the
// signed auth token cookie. Returns the signed token.
func (s *Sessions) Login(user *User, w http.ResponseWriter, r *http.Request) string {
	return s.setLoggedInUser(user, w, r)
}

// Logout destroys the session and expires the auth cookies.
func (s *Sessions) Logout(w http.ResponseWriter, r *http.Request) {
	s.setLoggedInUser(nil, w, r)
}

// Current restores the SessionUser projection for this request. A missing,
// malformed or stale projection is anonymous: the return is nil, never an
// error, and no credentials are re-verified here.
func (s *Sessions) Current(r *http.Request) *SessionUser {
	s.EnsureDefaults()
	serialized := s.Manager.GetString(r.Context(), s.SessionUserVar)
	if serialized == "" {
		return nil
	}
	var su SessionUser
	if err := json.Unmarshal([]byte(serialized), &su); err != nil || su.ID == "" {
		slog.Warn("discarding undecodable session payload", "err", ErrInvalidSession)
		return nil
	}
	return &su
}

// VerifyToken checks a signed auth token and returns the user id it vouches
// for. Used by the middleware's cookie/header fallback and by the gRPC
// interceptors.
func (s *Sessions) VerifyToken(tokenString string) (loggedInUserId string, t any, err error) {
	s.EnsureDefaults()
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(s.JWTSecretKey), nil
	})
	if err != nil {
		return "", nil, err
	}
	if !token.Valid {
		return "", nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return "", nil, fmt.Errorf("claims is not a map")
	}
	sub, err := claims.GetSubject()
	if sub == "" {
		return "", nil, fmt.Errorf("subject not found")
	} else if err != nil {
		return "", nil, err
	}
	return sub, token, nil
}

// Sets (or with a nil user, clears) the session projection and the auth token
// cookie on every configured cookie domain.
func (s *Sessions) setLoggedInUser(user *User, w http.ResponseWriter, r *http.Request) string {
	s.EnsureDefaults()
	domains := s.CookieDomains
	if slices.Index(domains, "") < 0 { // default domain
		domains = append(domains, "")
	}

	if user == nil {
		if err := s.Manager.Clear(r.Context()); err != nil {
			slog.Warn("error clearing session", "err", err)
		}
		for _, cookieDomain := range domains {
			http.SetCookie(w, &http.Cookie{
				Name:    s.AuthTokenVar,
				Domain:  cookieDomain,
				Path:    "/",
				MaxAge:  -1,
				Expires: time.Now(),
			})
		}
		return ""
	}

	projection, err := json.Marshal(user.SessionUser())
	if err != nil {
		slog.Warn("error serializing session user", "err", err)
		return ""
	}
	s.Manager.Put(r.Context(), s.SessionUserVar, string(projection))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": user.ID,
		"iss": s.JwtIssuer,
		"aud": "web",
		"exp": time.Now().Add(time.Second * time.Duration(s.SessionTimeoutInSeconds)).Unix(),
		"iat": time.Now().Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.JWTSecretKey))
	if err != nil {
		slog.Warn("error signing token", "err", err)
		return ""
	}

	s.Manager.Put(r.Context(), s.AuthTokenVar, tokenString)
	for _, cookieDomain := range domains {
		http.SetCookie(w, &http.Cookie{
			Name:    s.AuthTokenVar,
			Value:   tokenString,
			Domain:  cookieDomain,
			Path:    "/",
			Expires: time.Now().Add(time.Second * time.Duration(s.SessionTimeoutInSeconds)),
			MaxAge:  s.SessionTimeoutInSeconds,
		})
	}
	log.Println("session established for user: ", user.ID)
	return tokenString
}
