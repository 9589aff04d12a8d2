// Package fallback substitutes a fixed value for a failed operation.
//
// Every call attempts the real operation first. There is no shared state
// between calls: no failure counting, no open or half-open state and no
// cooldown window.
package fallback

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"user-service/pkg/logger"
)

// Options configures a single fallback-wrapped call.
type Options struct {
	// Passthrough reports errors that must reach the caller unchanged
	// instead of being replaced by the fallback value.
	Passthrough func(error) bool
	// Logger receives a warning each time the fallback value is used.
	Logger *zap.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithPassthrough sets the predicate for errors that bypass the fallback.
func WithPassthrough(fn func(error) bool) Option {
	return func(o *Options) {
		o.Passthrough = fn
	}
}

// WithLogger sets the logger used to report fallback activations.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// Do runs fn. If fn fails with an error that is not passed through, the
// error is swallowed and fb(err) is returned with a nil error. A panic in fn
// is treated as a failure.
func Do[T any](ctx context.Context, name string, fn func(context.Context) (T, error), fb func(error) T, opts ...Option) (T, error) {
	o := Options{Logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	res, err := call(ctx, fn)
	if err == nil {
		return res, nil
	}

	if o.Passthrough != nil && o.Passthrough(err) {
		return res, err
	}

	logger.WithContext(ctx, o.Logger).Warn("operation failed, returning fallback value",
		zap.String("operation", name),
		zap.Error(err),
	)
	return fb(err), nil
}

// Run is Do for operations without passthrough errors. It never fails.
func Run[T any](ctx context.Context, name string, fn func(context.Context) (T, error), fb func(error) T, opts ...Option) T {
	opts = append(opts, WithPassthrough(nil))
	res, _ := Do(ctx, name, fn, fb, opts...)
	return res
}

func call[T any](ctx context.Context, fn func(context.Context) (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			res = zero
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
