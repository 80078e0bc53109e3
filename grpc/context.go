// Package grpc lets internal services act on behalf of a browser-
// authenticated user. Callers forward the gateway's signed auth token in
// request metadata; the interceptors verify it with the same key the session
// manager signs with and expose the user id through the context.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// DefaultMetadataKeyAuthToken is the default gRPC metadata key carrying the
// signed auth token.
const DefaultMetadataKeyAuthToken = "authorization"

type userIDKey struct{}

// VerifyTokenFunc checks a signed auth token and returns the user id it
// vouches for. Usually Sessions.VerifyToken with the extra return dropped.
type VerifyTokenFunc func(tokenString string) (userID string, err error)

// Config holds the metadata key and token verifier for auth context.
type Config struct {
	// MetadataKeyAuthToken is the gRPC metadata key holding the auth token.
	// Defaults to "authorization". A "Bearer " prefix is tolerated.
	MetadataKeyAuthToken string

	// VerifyToken validates the token. Required for the interceptors to
	// authenticate anyone.
	VerifyToken VerifyTokenFunc
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthToken == "" {
		c.MetadataKeyAuthToken = DefaultMetadataKeyAuthToken
	}
}

// UserIDFromContext returns the user id the interceptor authenticated, or
// empty string for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns a context carrying an authenticated user id. Exposed
// for handler tests.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// IsAuthenticated returns true if the context carries an authenticated user.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}

// AuthTokenToOutgoingContext attaches the signed auth token to an outgoing
// request so the receiving interceptor can verify it.
func AuthTokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthToken, "Bearer "+token)
}

// authenticate pulls the token out of incoming metadata and verifies it.
func (c *Config) authenticate(ctx context.Context) string {
	if c.VerifyToken == nil {
		return ""
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, value := range md.Get(c.MetadataKeyAuthToken) {
		token := strings.TrimPrefix(value, "Bearer ")
		if token == "" {
			continue
		}
		if userID, err := c.VerifyToken(token); err == nil && userID != "" {
			return userID
		}
	}
	return ""
}
