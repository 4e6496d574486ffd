package auth

import "context"

type requestContextKey struct{}

// ContextWithRequest attaches the transport-derived request context.
func ContextWithRequest(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, &rc)
}

// RequestFromContext extracts the request context if the transport attached
// one.
func RequestFromContext(ctx context.Context) (RequestContext, bool) {
	if ctx == nil {
		return RequestContext{}, false
	}
	v, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	if !ok || v == nil {
		return RequestContext{}, false
	}
	return *v, true
}
