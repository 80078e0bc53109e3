package whisperwall_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	ww "github.com/whisperwall/whisperwall"
)

func currentUserStub(su *ww.SessionUser) func(r *http.Request) *ww.SessionUser {
	return func(r *http.Request) *ww.SessionUser { return su }
}

func TestRequireUserRedirectsAnonymous(t *testing.T) {
	m := &ww.Middleware{CurrentUser: currentUserStub(nil)}

	handler := m.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run for anonymous requests")
	}))

	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("Expected status %d, got %d", http.StatusFound, rr.Code)
	}
	expected := "/login?callbackURL=%2Fsubmit"
	if loc := rr.Header().Get("Location"); loc != expected {
		t.Errorf("Expected redirect to %q, got %q", expected, loc)
	}
}

func TestRequireUserPassesLoggedIn(t *testing.T) {
	su := &ww.SessionUser{ID: "user-1", Username: "alice"}
	m := &ww.Middleware{CurrentUser: currentUserStub(su)}

	handlerCalled := false
	handler := m.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		got := m.LoggedInUser(r)
		if got == nil || got.ID != su.ID {
			t.Errorf("Expected user %s in context, got %+v", su.ID, got)
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !handlerCalled {
		t.Error("Expected handler to run for logged in user")
	}
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestExtractUserNeverRedirects(t *testing.T) {
	m := &ww.Middleware{CurrentUser: currentUserStub(nil)}

	handlerCalled := false
	handler := m.ExtractUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		if m.LoggedInUser(r) != nil {
			t.Error("Expected anonymous request")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/secrets", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !handlerCalled {
		t.Error("Expected handler to run for anonymous request")
	}
}

// A user restored from a bare auth token gets the full projection back when
// a lookup is configured, not just the id.
func TestAuthTokenFallbackHydration(t *testing.T) {
	verify := func(token string) (string, any, error) {
		if token == "good-token" {
			return "user-42", nil, nil
		}
		return "", nil, fmt.Errorf("bad token")
	}

	t.Run("lookup restores the projection", func(t *testing.T) {
		m := &ww.Middleware{
			CurrentUser: currentUserStub(nil),
			VerifyToken: verify,
			LookupUser: func(userId string) (*ww.SessionUser, error) {
				return &ww.SessionUser{ID: userId, Username: "alice", Name: "Alice"}, nil
			},
		}

		var got *ww.SessionUser
		handler := m.ExtractUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = m.LoggedInUser(r)
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if got == nil || got.Username != "alice" || got.Name != "Alice" {
			t.Errorf("Expected hydrated projection, got %+v", got)
		}
	})

	t.Run("failed lookup degrades to id only", func(t *testing.T) {
		m := &ww.Middleware{
			CurrentUser: currentUserStub(nil),
			VerifyToken: verify,
			LookupUser: func(userId string) (*ww.SessionUser, error) {
				return nil, fmt.Errorf("store down")
			},
		}

		var got *ww.SessionUser
		handler := m.ExtractUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = m.LoggedInUser(r)
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if got == nil || got.ID != "user-42" || got.Username != "" {
			t.Errorf("Expected id-only projection, got %+v", got)
		}
	})
}

func TestAuthTokenFallback(t *testing.T) {
	verify := func(token string) (string, any, error) {
		if token == "good-token" {
			return "user-42", nil, nil
		}
		return "", nil, fmt.Errorf("bad token")
	}

	tests := []struct {
		name       string
		setRequest func(r *http.Request)
		expectUser string
	}{
		{
			name: "bearer header",
			setRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer good-token")
			},
			expectUser: "user-42",
		},
		{
			name: "auth cookie",
			setRequest: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "TestAuthToken", Value: "good-token"})
			},
			expectUser: "user-42",
		},
		{
			name: "invalid token",
			setRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer forged")
			},
			expectUser: "",
		},
		{
			name:       "no credentials",
			setRequest: func(r *http.Request) {},
			expectUser: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &ww.Middleware{
				CurrentUser:         currentUserStub(nil),
				VerifyToken:         verify,
				AuthTokenCookieName: "TestAuthToken",
			}

			var got *ww.SessionUser
			handler := m.ExtractUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = m.LoggedInUser(r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setRequest(req)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if tt.expectUser == "" {
				if got != nil {
					t.Errorf("Expected anonymous, got %+v", got)
				}
			} else if got == nil || got.ID != tt.expectUser {
				t.Errorf("Expected user %s, got %+v", tt.expectUser, got)
			}
		})
	}
}
