package whisperwall

import (
	"net/http"
	"strings"
)

// Strategy is a credential-verification method mounted under its provider
// name. A strategy serves its own begin/callback routes relative to the
// mount point.
type Strategy interface {
	http.Handler

	// Provider returns the name the strategy is mounted and keyed by.
	Provider() string
}

// Registry is an explicit, dependency-injected set of strategies keyed by
// provider name. It is built at wiring time and passed into the route
// controller; nothing registers itself through package-level state.
type Registry struct {
	strategies map[string]Strategy
	order      []string
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Add registers a strategy under its provider name. Re-adding a provider
// replaces the previous strategy.
func (rg *Registry) Add(s Strategy) *Registry {
	name := s.Provider()
	if _, exists := rg.strategies[name]; !exists {
		rg.order = append(rg.order, name)
	}
	rg.strategies[name] = s
	return rg
}

// Get returns the strategy for a provider, or nil.
func (rg *Registry) Get(provider string) Strategy {
	return rg.strategies[provider]
}

// Providers returns provider names in registration order.
func (rg *Registry) Providers() []string {
	return append([]string(nil), rg.order...)
}

// Handler serves every registered strategy under prefix/<provider>/. The
// prefix is stripped before the strategy sees the request, so a google
// strategy mounted at /auth sees /auth/google/secrets as /secrets.
func (rg *Registry) Handler(prefix string) http.Handler {
	prefix = strings.TrimSuffix(prefix, "/")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, prefix+"/")
		name, _, _ := strings.Cut(rest, "/")
		s := rg.strategies[name]
		if s == nil {
			http.NotFound(w, r)
			return
		}
		// Strip the mount point, keeping a rooted path so /auth/google and
		// /auth/google/ both reach the strategy's begin route.
		r2 := r.Clone(r.Context())
		r2.URL.Path = strings.TrimPrefix(r.URL.Path, prefix+"/"+name)
		if r2.URL.Path == "" {
			r2.URL.Path = "/"
		}
		s.ServeHTTP(w, r2)
	})
}
