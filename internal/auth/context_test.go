package auth

import (
	"context"
	"testing"
)

func TestRequestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := RequestFromContext(ctx); ok {
		t.Fatal("empty context must not carry a request context")
	}
	ctx = ContextWithRequest(ctx, RequestContext{IsAdmin: true, TokenID: "tok-1"})
	rc, ok := RequestFromContext(ctx)
	if !ok {
		t.Fatal("request context not found")
	}
	if !rc.IsAdmin || rc.TokenID != "tok-1" {
		t.Fatalf("round trip mangled: %+v", rc)
	}
}
