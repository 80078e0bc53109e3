// The whisperwall command runs the secret-sharing site: local
// username/password auth plus Google and Facebook login, a protected
// submission page and a public wall of secrets.
//
// Configuration is by environment variables:
//
//	WHISPERWALL_ADDR            listen address, defaults to :3000
//	WHISPERWALL_SESSION_SECRET  key used to sign session auth tokens
//	WHISPERWALL_DATA_DIR        directory for the file-backed store
//	DATABASE_URL                postgres DSN; when set, overrides the
//	                            file-backed store
//	OAUTH2_GOOGLE_CLIENT_ID     / OAUTH2_GOOGLE_CLIENT_SECRET
//	OAUTH2_GOOGLE_CALLBACK_URL  e.g. http://localhost:3000/auth/google/secrets
//	OAUTH2_FACEBOOK_CLIENT_ID   / OAUTH2_FACEBOOK_CLIENT_SECRET
//	OAUTH2_FACEBOOK_CALLBACK_URL
package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"

	"gorm.io/driver/postgres"
	gormlib "gorm.io/gorm"

	ww "github.com/whisperwall/whisperwall"
	"github.com/whisperwall/whisperwall/oauth2"
	"github.com/whisperwall/whisperwall/stores"
	gormstore "github.com/whisperwall/whisperwall/stores/gorm"
	"github.com/whisperwall/whisperwall/web"
)

func main() {
	addr := os.Getenv("WHISPERWALL_ADDR")
	if addr == "" {
		addr = ":3000"
	}

	store, err := openStore()
	if err != nil {
		log.Fatal("error opening user store: ", err)
	}

	sessions := ww.NewSessions("WhisperWall")
	registry := ww.NewRegistry()
	srv := web.NewServer(store, sessions, registry)

	registry.Add(oauth2.NewGoogleOAuth2("", "", "", srv.HandleOAuthUser))
	registry.Add(oauth2.NewFacebookOAuth2("", "", "", srv.HandleOAuthUser))

	slog.Info("starting whisperwall", "addr", addr, "providers", registry.Providers())
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatal(err)
	}
}

// openStore picks the backend: postgres when DATABASE_URL is set, otherwise
// the file-backed store.
func openStore() (ww.UserStore, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		// TranslateError is required so duplicate-key violations surface as
		// gorm.ErrDuplicatedKey during find-or-create races.
		db, err := gormlib.Open(postgres.Open(dsn), &gormlib.Config{TranslateError: true})
		if err != nil {
			return nil, err
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, err
		}
		return gormstore.NewUserStore(db), nil
	}

	dataDir := os.Getenv("WHISPERWALL_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	return stores.NewFSUserStore(dataDir), nil
}
