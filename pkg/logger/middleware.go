package logger

import (
	"context"

	"github.com/google/uuid"
)

// ContextWithRequestID stores id in ctx, generating a new one when id is empty.
// It returns the new context and the id actually stored.
func ContextWithRequestID(ctx context.Context, id string) (context.Context, string) {
	if id == "" {
		id = uuid.New().String()
	}
	return context.WithValue(ctx, RequestIDKey, id), id
}
