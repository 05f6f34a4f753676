package reqctx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

type key int

const requestKey key = 0

// RequestContext travels with one API request through middleware,
// handlers, and the extraction workflow.
type RequestContext struct {
	RequestID string
	ClientIP  string
	StartTime time.Time
}

// Elapsed returns how long the request has been running.
func (rc *RequestContext) Elapsed() time.Duration {
	return time.Since(rc.StartTime)
}

// WithRequest attaches a fresh request context carrying the client's
// address.
func WithRequest(ctx context.Context, clientIP string) context.Context {
	return context.WithValue(ctx, requestKey, &RequestContext{
		RequestID: generateID(),
		ClientIP:  clientIP,
		StartTime: time.Now(),
	})
}

// FromContext retrieves the request context, or a placeholder when the
// call did not arrive through the API.
func FromContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestKey).(*RequestContext); ok {
		return rc
	}
	return &RequestContext{
		RequestID: "internal",
		StartTime: time.Now(),
	}
}

func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
