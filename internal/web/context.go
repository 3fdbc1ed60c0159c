package web

import (
	"context"
	"net/http"

	"github.com/jsguru-git/api/internal/acl"
)

type contextKey string

const aclKey contextKey = "acl"

// WithACL stores the resolved access policy on a request context.
// Authentication middleware populates it; requests without one run public.
func WithACL(ctx context.Context, a *acl.ACL) context.Context {
	return context.WithValue(ctx, aclKey, a)
}

// ACLFrom resolves the access policy for a request
func ACLFrom(r *http.Request) *acl.ACL {
	if a, ok := r.Context().Value(aclKey).(*acl.ACL); ok && a != nil {
		return a
	}
	return acl.NewPublic()
}
