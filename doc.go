// Package whisperwall implements a session-based web authentication gateway
// with three credential sources - local password, Google OAuth2 and Facebook
// OAuth2 - unified behind one user record and one protected resource (the
// user's "secret").
//
// # Architecture
//
// User: the canonical account record. A user carries at most one local
// password credential plus optional provider-scoped subject ids (GoogleID,
// FacebookID). Provider keys are looked up independently; the gateway does
// not merge records across providers.
//
// Strategy: a pluggable credential-verification method. LocalAuth verifies
// username/password against the stored bcrypt hash; the oauth2 subpackage
// provides the Google and Facebook strategies. Strategies are registered in
// an explicit Registry passed into the route controller - there is no
// package-level registration.
//
// Resolver: turns a provider profile into a canonical user via the store's
// atomic FindOrCreate.
//
// Sessions: serializes the minimal {id, username, name} projection of an
// authenticated user into an scs-backed session and a signed JWT cookie, and
// restores it on every request. Malformed or stale session state is treated
// as anonymous, never as an error.
//
// # Basic Usage
//
// Pick a store, build the session manager and registry, and hand them to the
// web server:
//
//	store := stores.NewFSUserStore("/var/lib/whisperwall")
//	sessions := whisperwall.NewSessions("WhisperWall")
//	registry := whisperwall.NewRegistry()
//	srv := web.NewServer(store, sessions, registry)
//	registry.Add(oauth2.NewGoogleOAuth2("", "", "", srv.HandleOAuthUser))
//	registry.Add(oauth2.NewFacebookOAuth2("", "", "", srv.HandleOAuthUser))
//	http.ListenAndServe(":3000", srv.Handler())
//
// # Store Implementations
//
// The stores package holds a file-backed UserStore suitable for development
// and tests. stores/gorm is the production implementation (Postgres via
// GORM, relying on unique indexes for the find-or-create race), and
// stores/gae backs the same contract with Cloud Datastore.
//
// # Security
//
// Passwords are hashed with bcrypt at the default cost and never stored or
// logged in plaintext. A failed login is indistinguishable between "no such
// user" and "wrong password", and the unknown-user path performs the same
// bcrypt work as a mismatch. OAuth exchanges are bounded by a timeout; only
// the provider name and subject id are ever logged, never profile payloads
// or tokens.
package whisperwall
