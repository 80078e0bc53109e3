package whisperwall

import (
	"fmt"
	"log"
)

// Resolver turns provider profiles into canonical users via the store's
// atomic find-or-create. One resolver serves every OAuth strategy.
type Resolver struct {
	Store UserStore
}

// Resolve looks up the user owning the provider-scoped subject, creating a
// record on first login. The Google path seeds the username from the primary
// email so OAuth-only accounts don't collide on an empty username; the
// Facebook path leaves it unset. Returns whether a record was created.
func (rv *Resolver) Resolve(provider, subject, email, name string) (*User, bool, error) {
	if subject == "" {
		return nil, false, fmt.Errorf("%w: %s profile carried no subject id", ErrUpstreamProvider, provider)
	}

	seed := &User{Name: name}
	switch provider {
	case ProviderGoogle:
		seed.GoogleID = subject
		seed.Username = email
	case ProviderFacebook:
		seed.FacebookID = subject
	default:
		return nil, false, fmt.Errorf("unknown provider %q", provider)
	}

	key := ProviderKey{Provider: provider, Subject: subject}
	user, created, err := rv.Store.FindOrCreate(key, seed)
	if err != nil {
		return nil, false, err
	}
	if created {
		// Only the provider and subject - never the raw profile.
		log.Printf("created user %s from %s subject %s", user.ID, provider, subject)
	}
	return user, created, nil
}
