// Package web is the route controller for the secret-sharing site. It owns
// the HTTP surface: pages, the local credential endpoints, the strategy
// mount under /auth/, the protected submission route and the metrics
// endpoint. Authentication strategies and stores are injected; the server
// never constructs its own.
package web

import (
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	xoauth2 "golang.org/x/oauth2"

	ww "github.com/whisperwall/whisperwall"
	wwoauth "github.com/whisperwall/whisperwall/oauth2"
)

// oauthCallbackCookie is set by the strategies' begin route so the post-login
// redirect survives the round trip through the provider.
const oauthCallbackCookie = "oauthCallbackURL"

// Server wires stores, sessions and strategies into the site's routes.
type Server struct {
	Store      ww.UserStore
	Sessions   *ww.Sessions
	Registry   *ww.Registry
	Local      *ww.LocalAuth
	Middleware *ww.Middleware
	Metrics    *Metrics

	// Gatherer backs the /metrics endpoint.
	Gatherer prometheus.Gatherer

	resolver *ww.Resolver
	views    *Views
	router   *mux.Router
}

// NewServer builds a server around the given store, session manager and
// strategy registry. Local auth, middleware and metrics are constructed
// here and exposed as fields for further tuning.
func NewServer(store ww.UserStore, sessions *ww.Sessions, registry *ww.Registry) *Server {
	promReg := prometheus.NewRegistry()
	s := &Server{
		Store:    store,
		Sessions: sessions,
		Registry: registry,
		Metrics:  NewMetrics(promReg),
		Gatherer: promReg,
		resolver: &ww.Resolver{Store: store},
		views:    NewViews(),
	}

	s.Local = &ww.LocalAuth{
		Store:       store,
		HandleUser:  s.completeLogin,
		LoginURL:    "/login",
		RegisterURL: "/register",
		OnLoginError: func(err *ww.AuthError, w http.ResponseWriter, r *http.Request) bool {
			s.Metrics.RecordLogin(ww.ProviderLocal, "failure")
			return false
		},
		OnRegisterError: func(err *ww.AuthError, w http.ResponseWriter, r *http.Request) bool {
			s.Metrics.RecordLogin(ww.ProviderLocal, "failure")
			return false
		},
	}

	s.Middleware = &ww.Middleware{
		CurrentUser: sessions.Current,
		VerifyToken: sessions.VerifyToken,
		// Session expiry leaves the auth cookie behind; accept it as a
		// fallback credential since the same key signed it. The store lookup
		// restores the full projection the expired session carried.
		AuthTokenCookieName: sessions.AuthTokenVar,
		LoginURL:            "/login",
		LookupUser: func(userId string) (*ww.SessionUser, error) {
			user, err := store.GetUserById(userId)
			if err != nil {
				return nil, err
			}
			su := user.SessionUser()
			return &su, nil
		},
	}

	s.router = s.buildRouter()
	return s
}

// Handler returns the full middleware-wrapped handler: session restore,
// then user extraction, then routing.
func (s *Server) Handler() http.Handler {
	return s.Sessions.LoadAndSave(s.Middleware.ExtractUser(s.router))
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleHome).Methods("GET")
	r.HandleFunc("/login", s.handleLoginPage).Methods("GET")
	r.HandleFunc("/login", s.Local.HandleLogin).Methods("POST")
	r.HandleFunc("/register", s.handleRegisterPage).Methods("GET")
	r.HandleFunc("/register", s.Local.HandleRegister).Methods("POST")
	r.HandleFunc("/logout", s.handleLogout).Methods("GET", "POST")

	r.HandleFunc("/submit", s.handleSubmitPage).Methods("GET")
	r.Handle("/submit", s.Middleware.RequireUser(http.HandlerFunc(s.handleSubmit))).Methods("POST")
	r.HandleFunc("/secrets", s.handleSecrets).Methods("GET")

	r.PathPrefix("/auth/").Handler(s.Registry.Handler("/auth"))
	r.Handle("/metrics", MetricsHandler(s.Gatherer)).Methods("GET")

	return r
}

// HandleOAuthUser is the callback every OAuth strategy is constructed with.
// It resolves the provider profile to a canonical user, then establishes
// the session exactly the way a local login would.
func (s *Server) HandleOAuthUser(authtype string, provider string, token *xoauth2.Token, profile *wwoauth.Profile, w http.ResponseWriter, r *http.Request) {
	user, _, err := s.resolver.Resolve(provider, profile.ID, profile.Email, profile.Name)
	if err != nil {
		log.Println("error resolving oauth user: ", err)
		s.Metrics.RecordLogin(provider, "failure")
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	s.completeLogin(authtype, provider, token, user, w, r)
}

// completeLogin establishes the session for an already-verified user and
// redirects to wherever the login flow was meant to land.
func (s *Server) completeLogin(authtype string, provider string, token *xoauth2.Token, user *ww.User, w http.ResponseWriter, r *http.Request) {
	s.Metrics.RecordLogin(provider, "success")
	if provider == ww.ProviderLocal && strings.HasSuffix(r.URL.Path, "/register") {
		s.Metrics.RecordRegistration()
	}
	s.Sessions.Login(user, w, r)
	http.Redirect(w, r, s.callbackTarget(w, r), http.StatusFound)
}

// callbackTarget picks the post-login destination: the form's callbackURL,
// then the cookie the OAuth begin route stashed, then /secrets. Only local
// paths are honored.
func (s *Server) callbackTarget(w http.ResponseWriter, r *http.Request) string {
	target := r.FormValue(ww.DefaultCallbackURLParam)
	if target == "" {
		if cookie, err := r.Cookie(oauthCallbackCookie); err == nil {
			target = cookie.Value
			http.SetCookie(w, &http.Cookie{Name: oauthCallbackCookie, Path: "/", MaxAge: -1})
		}
	}
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/secrets"
	}
	return target
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.views.Render(w, "home.html", PageData{User: s.Middleware.LoggedInUser(r)})
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.views.Render(w, "login.html", PageData{
		User:        s.Middleware.LoggedInUser(r),
		CallbackURL: r.URL.Query().Get(ww.DefaultCallbackURLParam),
	})
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.views.Render(w, "register.html", PageData{User: s.Middleware.LoggedInUser(r)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Sessions.Logout(w, r)
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleSubmitPage shows the submission form to logged in users and the
// login page to everyone else.
func (s *Server) handleSubmitPage(w http.ResponseWriter, r *http.Request) {
	su := s.Middleware.LoggedInUser(r)
	if su == nil {
		s.views.Render(w, "login.html", PageData{CallbackURL: "/submit"})
		return
	}
	s.views.Render(w, "submit.html", PageData{User: su})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	su := s.Middleware.LoggedInUser(r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	secret := r.FormValue("secret")
	if secret == "" {
		http.Redirect(w, r, "/submit", http.StatusFound)
		return
	}
	if err := s.Store.SetSecret(su.ID, secret); err != nil {
		log.Println("error saving secret: ", err)
		http.Error(w, "could not save secret", http.StatusInternalServerError)
		return
	}
	s.Metrics.RecordSecretSubmitted()
	http.Redirect(w, r, "/secrets", http.StatusFound)
}

// handleSecrets lists everyone's secrets. Deliberately public: reading does
// not require an account.
func (s *Server) handleSecrets(w http.ResponseWriter, r *http.Request) {
	users, err := s.Store.UsersWithSecrets()
	if err != nil {
		log.Println("error listing secrets: ", err)
		http.Error(w, "could not load secrets", http.StatusInternalServerError)
		return
	}
	s.views.Render(w, "secrets.html", PageData{
		User:    s.Middleware.LoggedInUser(r),
		Secrets: users,
	})
}
