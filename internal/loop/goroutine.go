package loop

import (
	"context"
	"runtime/pprof"
)

type nameKey struct{}

// Go runs fn on a new goroutine labelled name. The label shows up in pprof
// goroutine dumps; fn can read it back with GoroutineName. A nil parent
// means context.Background().
func Go(parent context.Context, name string, fn func(ctx context.Context)) {
	if parent == nil {
		parent = context.Background()
	}
	go pprof.Do(parent, pprof.Labels("goroutine_name", name), func(ctx context.Context) {
		fn(context.WithValue(ctx, nameKey{}, name))
	})
}

// GoroutineName returns the name given to Go, or "" outside such a goroutine.
func GoroutineName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(nameKey{}).(string)
	return name
}
