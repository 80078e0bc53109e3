// Package oauth2 holds the provider-backed credential strategies. Each
// strategy serves its begin route at / and its authorization callback at
// /secrets relative to where the registry mounts it, so a google strategy
// mounted under /auth answers /auth/google and /auth/google/secrets.
package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"

	ww "github.com/whisperwall/whisperwall"
)

// Profile is the normalized identity a provider callback yields: the
// provider-scoped subject id plus whatever of email/name the provider shared.
type Profile struct {
	ID    string
	Email string
	Name  string
}

// HandleUserFunc receives the provider token and normalized profile after a
// successful callback. Identity resolution and session establishment happen
// in this callback, in that order.
type HandleUserFunc func(authtype string, provider string, token *oauth2.Token, profile *Profile, w http.ResponseWriter, r *http.Request)

// DefaultUpstreamTimeout bounds the code exchange and the profile fetch. The
// provider hanging must not hold the request forever.
const DefaultUpstreamTimeout = 10 * time.Second

type BaseOAuth2 struct {
	ClientId     string
	ClientSecret string
	CallbackURL  string
	HandleUser   HandleUserFunc

	// AuthFailureUrl is where callback failures redirect. Defaults to /login.
	AuthFailureUrl string

	// UpstreamTimeout bounds every call made to the provider.
	UpstreamTimeout time.Duration

	// HTTPClient can be injected for testing. Defaults to a client bounded
	// by UpstreamTimeout.
	HTTPClient *http.Client

	oauthConfig oauth2.Config
	mux         *http.ServeMux
}

func NewBaseOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *BaseOAuth2 {
	if clientId == "" {
		clientId = os.Getenv("OAUTH2_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("OAUTH2_CLIENT_SECRET")
	}
	if callbackUrl == "" {
		callbackUrl = os.Getenv("OAUTH2_CALLBACK_URL")
	}
	out := &BaseOAuth2{
		ClientId:        clientId,
		ClientSecret:    clientSecret,
		CallbackURL:     callbackUrl,
		HandleUser:      handleUser,
		AuthFailureUrl:  "/login",
		UpstreamTimeout: DefaultUpstreamTimeout,
		mux:             http.NewServeMux(),
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
		},
	}
	out.mux.HandleFunc("/", exactPath("/", getOnly(OauthRedirector(&out.oauthConfig))))
	return out
}

// getOnly replicates the "GET pattern" method matching of the Go 1.22+
// ServeMux on Go 1.21: GET and HEAD pass through, anything else gets 405.
func getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// exactPath replicates the "/{$}" exact-match pattern of the Go 1.22+
// ServeMux on Go 1.21: anything but the exact path gets 404.
func exactPath(path string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}
}

func (b *BaseOAuth2) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

// SetEndpoint overrides the provider endpoint, mainly for tests that point
// the strategy at a fake provider.
func (b *BaseOAuth2) SetEndpoint(endpoint oauth2.Endpoint) {
	b.oauthConfig.Endpoint = endpoint
}

// exchangeContext bounds the token exchange.
func (b *BaseOAuth2) exchangeContext() (context.Context, context.CancelFunc) {
	timeout := b.UpstreamTimeout
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}

func (b *BaseOAuth2) getHTTPClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	timeout := b.UpstreamTimeout
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	return &http.Client{Timeout: timeout}
}

// checkState verifies the anti-forgery state cookie against the callback's
// state param, clearing the cookie on mismatch.
func checkState(w http.ResponseWriter, r *http.Request) error {
	oauthState, _ := r.Cookie("oauthstate")
	if oauthState == nil {
		return fmt.Errorf("oauth state cookie missing")
	}
	if r.FormValue("state") != oauthState.Value {
		http.SetCookie(w, &http.Cookie{
			Name:   "oauthstate",
			MaxAge: 0,
		})
		return fmt.Errorf("oauth state mismatch")
	}
	return nil
}

// upstreamErr classifies a provider failure as a timeout or a generic
// upstream failure so callers can branch with errors.Is.
func upstreamErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return fmt.Errorf("%w: %v", ww.ErrUpstreamTimeout, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ww.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", ww.ErrUpstreamProvider, err)
}

// fetchJSONProfile performs an authorized GET against the provider's
// userinfo endpoint and decodes the JSON payload.
func (b *BaseOAuth2) fetchJSONProfile(url string, token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	response, err := b.getHTTPClient().Do(req)
	if err != nil {
		return nil, upstreamErr(err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo returned status %d", ww.ErrUpstreamProvider, response.StatusCode)
	}

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, upstreamErr(err)
	}

	var userInfo map[string]any
	if err := json.Unmarshal(contents, &userInfo); err != nil {
		return nil, fmt.Errorf("%w: failed to parse user info: %v", ww.ErrUpstreamProvider, err)
	}
	return userInfo, nil
}

func stringField(userInfo map[string]any, field string) string {
	v, _ := userInfo[field].(string)
	return v
}
