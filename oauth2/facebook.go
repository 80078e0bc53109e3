package oauth2

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2/facebook"

	ww "github.com/whisperwall/whisperwall"
)

type FacebookOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL is the Graph API URL user info is fetched from.
	// Can be overridden for testing.
	UserInfoURL string
}

func NewFacebookOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *FacebookOAuth2 {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_FACEBOOK_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_FACEBOOK_CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv("OAUTH2_FACEBOOK_CALLBACK_URL"))
	}

	out := FacebookOAuth2{
		BaseOAuth2:  NewBaseOAuth2(clientId, clientSecret, callbackUrl, handleUser),
		UserInfoURL: "https://graph.facebook.com/me?fields=id,name,email",
	}
	out.BaseOAuth2.oauthConfig.Endpoint = facebook.Endpoint
	out.BaseOAuth2.oauthConfig.Scopes = []string{"public_profile", "email"}

	out.mux.HandleFunc("/secrets", getOnly(out.handleCallback))

	return &out
}

func (f *FacebookOAuth2) Provider() string { return ww.ProviderFacebook }

func (f *FacebookOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
	if err := checkState(w, r); err != nil {
		slog.Info("rejecting facebook callback", "err", err)
		http.Redirect(w, r, f.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}

	ctx, cancel := f.exchangeContext()
	defer cancel()
	token, err := f.oauthConfig.Exchange(ctx, r.FormValue("code"))
	if err != nil {
		slog.Info("invalid code exchange", "provider", "facebook", "err", upstreamErr(err))
		http.Redirect(w, r, f.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}

	userInfo, err := f.fetchJSONProfile(f.UserInfoURL, token)
	if err != nil {
		slog.Info("failed fetching facebook profile", "err", err)
		http.Redirect(w, r, f.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}

	profile := &Profile{
		ID:    stringField(userInfo, "id"),
		Email: stringField(userInfo, "email"),
		Name:  stringField(userInfo, "name"),
	}
	log.Println("facebook callback for subject: ", profile.ID)
	f.HandleUser("oauth", ww.ProviderFacebook, token, profile, w, r)
}
