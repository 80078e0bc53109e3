package whisperwall

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

// HandleUserFunc is called after a strategy has produced a canonical user.
// Session establishment happens here, strictly after identity resolution.
// token is nil for local auth.
type HandleUserFunc func(authtype string, provider string, token *oauth2.Token, user *User, w http.ResponseWriter, r *http.Request)

// dummyHash keeps the unknown-username path doing the same bcrypt work as a
// real password mismatch, so the two failures are not distinguishable by
// timing.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("whisperwall.no-such-user"), bcrypt.DefaultCost)

// LocalAuth is the username/password strategy.
type LocalAuth struct {
	// Store persists and looks up user records
	Store UserStore

	// Handler called after successful authentication or registration
	HandleUser HandleUserFunc

	// OnLoginError is called when login fails. If nil, redirects to LoginURL.
	OnLoginError AuthErrorHandler

	// OnRegisterError is called when registration fails. If nil, redirects
	// to RegisterURL.
	OnRegisterError AuthErrorHandler

	// Redirect targets on error
	LoginURL    string
	RegisterURL string

	// Form field names
	UsernameField string
	PasswordField string
}

// Register creates a new user with a bcrypt credential derived from the
// plaintext password. The plaintext is never stored.
func (a *LocalAuth) Register(username, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:           NewUserID(),
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := a.Store.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate verifies a username/password pair. A missing user and a wrong
// password both come back as ErrInvalidCredentials; only store connectivity
// failures surface differently.
func (a *LocalAuth) Authenticate(username, password string) (*User, error) {
	user, err := a.Store.GetUserByUsername(username)
	if err != nil || user == nil || user.PasswordHash == "" {
		// Burn the same bcrypt cost as the mismatch path below.
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// HandleLogin handles POST /login.
func (a *LocalAuth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	username, password, err := a.parseCredentialsForm(r)
	if err != nil {
		a.handleLoginError(NewAuthError(ErrCodeMissingField, err.Error(), "username"), w, r)
		return
	}

	user, err := a.Authenticate(username, password)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			log.Println("error validating user: ", err)
			a.handleLoginError(NewAuthError(ErrCodeStoreFailure, "Login failed", ""), w, r)
			return
		}
		// Deliberately generic: no hint about which field was wrong.
		a.handleLoginError(NewAuthError(ErrCodeInvalidCreds, "Invalid credentials", ""), w, r)
		return
	}

	a.HandleUser("local", ProviderLocal, nil, user, w, r)
}

// HandleRegister handles POST /register.
func (a *LocalAuth) HandleRegister(w http.ResponseWriter, r *http.Request) {
	username, password, err := a.parseCredentialsForm(r)
	if err != nil {
		a.handleRegisterError(NewAuthError(ErrCodeMissingField, err.Error(), "username"), w, r)
		return
	}

	user, err := a.Register(username, password)
	if err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			a.handleRegisterError(NewAuthError(ErrCodeUsernameTaken, "Username is already taken", "username"), w, r)
			return
		}
		log.Println("error creating user: ", err)
		a.handleRegisterError(NewAuthError(ErrCodeStoreFailure, "Registration failed", ""), w, r)
		return
	}

	a.HandleUser("local", ProviderLocal, nil, user, w, r)
}

func (a *LocalAuth) parseCredentialsForm(r *http.Request) (username, password string, err error) {
	contentType := r.Header.Get("Content-Type")
	usernameField := a.getUsernameField()
	passwordField := a.getPasswordField()

	if strings.HasPrefix(contentType, "application/json") {
		var data map[string]any
		if err = json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return "", "", fmt.Errorf("invalid post body")
		}
		if u, ok := data[usernameField].(string); ok {
			username = u
		}
		if p, ok := data[passwordField].(string); ok {
			password = p
		}
	} else {
		if err = r.ParseForm(); err != nil {
			return "", "", fmt.Errorf("error parsing form")
		}
		username = r.FormValue(usernameField)
		password = r.FormValue(passwordField)
	}

	if username == "" || password == "" {
		return "", "", fmt.Errorf("username and password required")
	}

	return username, password, nil
}

func (a *LocalAuth) getUsernameField() string {
	if a.UsernameField != "" {
		return a.UsernameField
	}
	return "username"
}

func (a *LocalAuth) getPasswordField() string {
	if a.PasswordField != "" {
		return a.PasswordField
	}
	return "password"
}

func (a *LocalAuth) handleLoginError(err *AuthError, w http.ResponseWriter, r *http.Request) {
	if a.OnLoginError != nil && a.OnLoginError(err, w, r) {
		return
	}
	if a.LoginURL != "" {
		http.Redirect(w, r, a.LoginURL, http.StatusFound)
		return
	}
	writeAuthError(w, err, http.StatusUnauthorized)
}

func (a *LocalAuth) handleRegisterError(err *AuthError, w http.ResponseWriter, r *http.Request) {
	if a.OnRegisterError != nil && a.OnRegisterError(err, w, r) {
		return
	}
	if a.RegisterURL != "" {
		http.Redirect(w, r, a.RegisterURL, http.StatusFound)
		return
	}
	writeAuthError(w, err, http.StatusBadRequest)
}

func writeAuthError(w http.ResponseWriter, err *AuthError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(err)
}
