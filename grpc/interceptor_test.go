package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestNewInterceptorConfig(t *testing.T) {
	config := NewInterceptorConfig(stubVerify, "/pkg.Svc/Method1", "/pkg.Svc/Method2")
	if !config.RequireAuth {
		t.Error("expected RequireAuth to be true")
	}
	if !config.PublicMethods["/pkg.Svc/Method1"] || !config.PublicMethods["/pkg.Svc/Method2"] {
		t.Error("expected listed methods to be public")
	}
	if config.PublicMethods["/pkg.Svc/Method3"] {
		t.Error("expected unlisted method to not be public")
	}
}

func TestOptionalAuthConfigFlag(t *testing.T) {
	config := OptionalAuthConfig(stubVerify)
	if config.RequireAuth {
		t.Error("expected RequireAuth to be false")
	}
}

func TestUnaryInterceptorRejectsAnonymous(t *testing.T) {
	interceptor := UnaryAuthInterceptor(NewInterceptorConfig(stubVerify))

	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}
	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})

	if err == nil {
		t.Fatal("expected error for unauthenticated request")
	}
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected grpc status error, got %v", err)
	}
	if st.Code() != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated code, got %v", st.Code())
	}
}

func TestUnaryInterceptorAcceptsToken(t *testing.T) {
	interceptor := UnaryAuthInterceptor(NewInterceptorConfig(stubVerify))

	md := metadata.Pairs(DefaultMetadataKeyAuthToken, "Bearer good-token")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	handlerCalled := false
	_, err := interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		if got := UserIDFromContext(ctx); got != "user-42" {
			t.Errorf("expected user-42 in handler context, got %q", got)
		}
		return "result", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler should have been called")
	}
}

func TestUnaryInterceptorRejectsForgedToken(t *testing.T) {
	interceptor := UnaryAuthInterceptor(NewInterceptorConfig(stubVerify))

	md := metadata.Pairs(DefaultMetadataKeyAuthToken, "Bearer forged")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	_, err := interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})

	if st, ok := status.FromError(err); !ok || st.Code() != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated, got %v", err)
	}
}

func TestUnaryInterceptorPublicMethod(t *testing.T) {
	interceptor := UnaryAuthInterceptor(NewInterceptorConfig(stubVerify, "/pkg.Svc/PublicMethod"))

	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/PublicMethod"}
	handlerCalled := false
	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		return "result", nil
	})

	if err != nil {
		t.Fatalf("unexpected error for public method: %v", err)
	}
	if !handlerCalled {
		t.Error("handler should have been called for public method")
	}
}

func TestUnaryInterceptorOptionalAuth(t *testing.T) {
	interceptor := UnaryAuthInterceptor(OptionalAuthConfig(stubVerify))

	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}
	handlerCalled := false
	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		if UserIDFromContext(ctx) != "" {
			t.Error("expected anonymous context")
		}
		return "result", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler should have been called")
	}
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeServerStream) Context() context.Context { return s.ctx }

func TestStreamInterceptor(t *testing.T) {
	interceptor := StreamAuthInterceptor(NewInterceptorConfig(stubVerify))
	info := &grpc.StreamServerInfo{FullMethod: "/pkg.Svc/Stream"}

	t.Run("rejects anonymous", func(t *testing.T) {
		stream := &fakeServerStream{ctx: context.Background()}
		err := interceptor(nil, stream, info, func(srv any, ss grpc.ServerStream) error {
			t.Error("handler should not be called")
			return nil
		})
		if st, ok := status.FromError(err); !ok || st.Code() != codes.Unauthenticated {
			t.Errorf("expected Unauthenticated, got %v", err)
		}
	})

	t.Run("propagates user into stream context", func(t *testing.T) {
		md := metadata.Pairs(DefaultMetadataKeyAuthToken, "Bearer good-token")
		stream := &fakeServerStream{ctx: metadata.NewIncomingContext(context.Background(), md)}

		handlerCalled := false
		err := interceptor(nil, stream, info, func(srv any, ss grpc.ServerStream) error {
			handlerCalled = true
			if got := UserIDFromContext(ss.Context()); got != "user-42" {
				t.Errorf("expected user-42 in stream context, got %q", got)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !handlerCalled {
			t.Error("handler should have been called")
		}
	})
}
