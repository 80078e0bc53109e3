package oauth2

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2/google"

	ww "github.com/whisperwall/whisperwall"
)

type GoogleOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL is the URL to fetch user info from. Defaults to Google's
	// userinfo endpoint. Can be overridden for testing.
	UserInfoURL string
}

func NewGoogleOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *GoogleOAuth2 {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv("OAUTH2_GOOGLE_CALLBACK_URL"))
	}

	out := GoogleOAuth2{
		BaseOAuth2:  NewBaseOAuth2(clientId, clientSecret, callbackUrl, handleUser),
		UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
	}
	out.BaseOAuth2.oauthConfig.Endpoint = google.Endpoint
	out.BaseOAuth2.oauthConfig.Scopes = []string{
		"https://www.googleapis.com/auth/userinfo.email",
		"https://www.googleapis.com/auth/userinfo.profile",
	}

	out.mux.HandleFunc("/secrets", getOnly(out.handleCallback))

	return &out
}

func (g *GoogleOAuth2) Provider() string { return ww.ProviderGoogle }

func (g *GoogleOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
	if err := checkState(w, r); err != nil {
		slog.Info("rejecting google callback", "err", err)
		http.Redirect(w, r, g.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}

	ctx, cancel := g.exchangeContext()
	defer cancel()
	token, err := g.oauthConfig.Exchange(ctx, r.FormValue("code"))
	if err != nil {
		slog.Info("invalid code exchange", "provider", "google", "err", upstreamErr(err))
		http.Redirect(w, r, g.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}

	userInfo, err := g.fetchJSONProfile(g.UserInfoURL, token)
	if err != nil {
		slog.Info("failed fetching google profile", "err", err)
		http.Redirect(w, r, g.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}

	profile := &Profile{
		ID:    stringField(userInfo, "id"),
		Email: stringField(userInfo, "email"),
		Name:  stringField(userInfo, "name"),
	}
	// Subject id only - the raw profile stays out of the logs.
	log.Println("google callback for subject: ", profile.ID)
	g.HandleUser("oauth", ww.ProviderGoogle, token, profile, w, r)
}
