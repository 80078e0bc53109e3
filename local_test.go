package whisperwall_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	ww "github.com/whisperwall/whisperwall"
	"github.com/whisperwall/whisperwall/stores"
)

func newLocalAuth(t *testing.T) *ww.LocalAuth {
	t.Helper()
	return &ww.LocalAuth{
		Store: stores.NewFSUserStore(t.TempDir()),
		HandleUser: func(authtype, provider string, token *oauth2.Token, user *ww.User, w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"success": true, "userId": user.ID})
		},
	}
}

func postForm(handler http.HandlerFunc, path string, values map[string]string) *httptest.ResponseRecorder {
	form := url.Values{}
	for k, v := range values {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func TestRegisterFlow(t *testing.T) {
	localAuth := newLocalAuth(t)

	tests := []struct {
		name           string
		formData       map[string]string
		expectedStatus int
		checkError     string
	}{
		{
			name:           "successful registration",
			formData:       map[string]string{"username": "alice", "password": "password123"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "duplicate username",
			formData:       map[string]string{"username": "alice", "password": "different456"},
			expectedStatus: http.StatusBadRequest,
			checkError:     "already taken",
		},
		{
			name:           "duplicate username different case",
			formData:       map[string]string{"username": "ALICE", "password": "different456"},
			expectedStatus: http.StatusBadRequest,
			checkError:     "already taken",
		},
		{
			name:           "missing password",
			formData:       map[string]string{"username": "bob"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postForm(localAuth.HandleRegister, "/register", tt.formData)

			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d. Body: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
			if tt.checkError != "" && !strings.Contains(rr.Body.String(), tt.checkError) {
				t.Errorf("Expected error containing %q, got: %s", tt.checkError, rr.Body.String())
			}
		})
	}
}

func TestLoginFlow(t *testing.T) {
	localAuth := newLocalAuth(t)

	if _, err := localAuth.Register("alice", "password123"); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	tests := []struct {
		name           string
		username       string
		password       string
		expectedStatus int
	}{
		{
			name:           "successful login",
			username:       "alice",
			password:       "password123",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "wrong password",
			username:       "alice",
			password:       "wrongpassword",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "non-existent user",
			username:       "mallory",
			password:       "password123",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postForm(localAuth.HandleLogin, "/login", map[string]string{
				"username": tt.username,
				"password": tt.password,
			})
			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d. Body: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
		})
	}
}

// The response for a wrong password and an unknown username must be
// indistinguishable, otherwise login probes can enumerate accounts.
func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	localAuth := newLocalAuth(t)

	if _, err := localAuth.Register("alice", "password123"); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	wrongPassword := postForm(localAuth.HandleLogin, "/login", map[string]string{
		"username": "alice",
		"password": "wrongpassword",
	})
	unknownUser := postForm(localAuth.HandleLogin, "/login", map[string]string{
		"username": "mallory",
		"password": "wrongpassword",
	})

	if wrongPassword.Code != unknownUser.Code {
		t.Errorf("Status codes differ: wrong password %d, unknown user %d", wrongPassword.Code, unknownUser.Code)
	}
	if wrongPassword.Body.String() != unknownUser.Body.String() {
		t.Errorf("Bodies differ: wrong password %q, unknown user %q", wrongPassword.Body.String(), unknownUser.Body.String())
	}
}

func TestAuthenticate(t *testing.T) {
	localAuth := newLocalAuth(t)

	created, err := localAuth.Register("alice", "password123")
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	if created.PasswordHash == "password123" || created.PasswordHash == "" {
		t.Error("Expected stored credential to be a hash, not the plaintext")
	}

	user, err := localAuth.Authenticate("alice", "password123")
	if err != nil {
		t.Fatalf("Expected successful authentication, got: %v", err)
	}
	if user.ID != created.ID {
		t.Errorf("Expected user %s, got %s", created.ID, user.ID)
	}

	if _, err := localAuth.Authenticate("alice", "nope"); !errors.Is(err, ww.ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for wrong password, got: %v", err)
	}
	if _, err := localAuth.Authenticate("mallory", "nope"); !errors.Is(err, ww.ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown user, got: %v", err)
	}
}

func TestLoginErrorRedirect(t *testing.T) {
	localAuth := newLocalAuth(t)
	localAuth.LoginURL = "/login"

	rr := postForm(localAuth.HandleLogin, "/login", map[string]string{
		"username": "ghost",
		"password": "whatever",
	})

	if rr.Code != http.StatusFound {
		t.Errorf("Expected redirect status %d, got %d", http.StatusFound, rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/login" {
		t.Errorf("Expected redirect to /login, got %q", loc)
	}
}

func TestLoginErrorHook(t *testing.T) {
	localAuth := newLocalAuth(t)

	var hookErr *ww.AuthError
	localAuth.OnLoginError = func(err *ww.AuthError, w http.ResponseWriter, r *http.Request) bool {
		hookErr = err
		w.WriteHeader(http.StatusTeapot)
		return true
	}

	rr := postForm(localAuth.HandleLogin, "/login", map[string]string{
		"username": "ghost",
		"password": "whatever",
	})

	if rr.Code != http.StatusTeapot {
		t.Errorf("Expected hook to own the response, got status %d", rr.Code)
	}
	if hookErr == nil || hookErr.Code != ww.ErrCodeInvalidCreds {
		t.Errorf("Expected invalid-credentials error in hook, got: %+v", hookErr)
	}
}
