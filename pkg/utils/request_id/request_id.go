package request_id

import (
	"context"

	"github.com/google/uuid"
)

type ctxRequestIDKey struct{}

func With(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey{}, requestID)
}

// FromContext returns the request ID, or an empty string.
func FromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ctxRequestIDKey{}).(string); ok {
		return requestID
	}
	return ""
}

// Generate assigns a fresh request ID to ctx.
func Generate(ctx context.Context) (context.Context, string) {
	requestID := uuid.New().String()
	return With(ctx, requestID), requestID
}
