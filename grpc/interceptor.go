package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key and token verifier.
	*Config

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but UserIDFromContext returns empty.
	RequireAuth bool

	// PublicMethods is a set of full method names ("/pkg.Service/Method")
	// that skip the auth requirement. Only used when RequireAuth is true.
	PublicMethods map[string]bool
}

// NewInterceptorConfig returns a config that requires auth for all methods
// except the listed public ones.
func NewInterceptorConfig(verify VerifyTokenFunc, publicMethods ...string) *InterceptorConfig {
	config := &InterceptorConfig{
		Config:        &Config{VerifyToken: verify},
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that lets unauthenticated requests
// through with an empty user id.
func OptionalAuthConfig(verify VerifyTokenFunc) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        &Config{VerifyToken: verify},
		RequireAuth:   false,
		PublicMethods: make(map[string]bool),
	}
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that verifies the
// auth token from metadata and places the user id into the handler context.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = ensureInterceptorConfig(config)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		userID := config.Config.authenticate(ctx)

		if config.RequireAuth && !config.PublicMethods[info.FullMethod] {
			if userID == "" {
				return nil, status.Error(codes.Unauthenticated, "authentication required")
			}
		}

		if userID != "" {
			ctx = WithUserID(ctx, userID)
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns the stream flavor of UnaryAuthInterceptor.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = ensureInterceptorConfig(config)

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()
		userID := config.Config.authenticate(ctx)

		if config.RequireAuth && !config.PublicMethods[info.FullMethod] {
			if userID == "" {
				return status.Error(codes.Unauthenticated, "authentication required")
			}
		}

		if userID != "" {
			ss = &userStream{ServerStream: ss, ctx: WithUserID(ctx, userID)}
		}
		return handler(srv, ss)
	}
}

func ensureInterceptorConfig(config *InterceptorConfig) *InterceptorConfig {
	if config == nil {
		config = &InterceptorConfig{RequireAuth: true}
	}
	if config.Config == nil {
		config.Config = &Config{}
	}
	if config.PublicMethods == nil {
		config.PublicMethods = make(map[string]bool)
	}
	config.Config.EnsureDefaults()
	return config
}

// userStream overrides the stream context with the authenticated user id.
type userStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *userStream) Context() context.Context { return s.ctx }
