// Package groutine runs goroutines under pprof labels so long-lived tasks can be
// told apart in profiles and goroutine dumps.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn on a new goroutine labelled with name.
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	go pprof.Do(parentCtx, pprof.Labels("goroutine_name", name), func(ctx context.Context) {
		fn(context.WithValue(ctx, goroutineNameKey, name))
	})
}

// Run calls fn on the current goroutine under the label and returns its error.
// It is meant for errgroup members.
func Run(parentCtx context.Context, name string, fn func(ctx context.Context) error) error {
	var err error
	pprof.Do(parentCtx, pprof.Labels("goroutine_name", name), func(ctx context.Context) {
		err = fn(context.WithValue(ctx, goroutineNameKey, name))
	})
	return err
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(goroutineNameKey).(string); ok {
		return v
	}
	return ""
}
