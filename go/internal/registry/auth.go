package registry

import (
	"context"
	"crypto/subtle"
	"strings"

	"connectrpc.com/connect"
)

const bearerPrefix = "Bearer "

type callerKey struct{}

// WithCaller returns ctx carrying the authenticated caller identity.
func WithCaller(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, callerKey{}, NormalizeIdentity(identity))
}

// CallerFrom returns the authenticated caller, or "" for anonymous requests.
func CallerFrom(ctx context.Context) string {
	caller, _ := ctx.Value(callerKey{}).(string)
	return caller
}

// NewAdminInterceptor authenticates incoming requests. A request whose
// Authorization header carries token runs as owner; every other request is
// anonymous. An empty token authenticates nobody.
func NewAdminInterceptor(token, owner string) connect.UnaryInterceptorFunc {
	expected := []byte(token)
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				return next(ctx, req)
			}

			ctx = context.WithValue(ctx, callerKey{}, "")
			if presented, ok := bearerToken(req.Header().Get("Authorization")); ok && len(expected) > 0 &&
				subtle.ConstantTimeCompare([]byte(presented), expected) == 1 {
				ctx = WithCaller(ctx, owner)
			}
			return next(ctx, req)
		}
	}
}

// WithAdminToken makes a Client send token on every request.
func WithAdminToken(token string) connect.ClientOption {
	return connect.WithInterceptors(connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				req.Header().Set("Authorization", bearerPrefix+token)
			}
			return next(ctx, req)
		}
	}))
}

func bearerToken(header string) (string, bool) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(bearerPrefix):]), true
}
