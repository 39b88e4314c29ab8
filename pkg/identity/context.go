package identity

import (
	"context"
)

// contextKey is the type for context keys
type contextKey string

const (
	frameKey      contextKey = "identity_frame"
	suppressedKey contextKey = "checks_suppressed"
)

// frame is one entry of the execution-scoped caller stack. Frames are
// immutable; a derived context holds a new frame pointing at its parent, so
// discarding the derived context restores the previous frame on every exit
// path, including panics.
type frame struct {
	identity Identity
	elevated bool
	parent   *frame
}

func currentFrame(ctx context.Context) *frame {
	f, _ := ctx.Value(frameKey).(*frame)
	return f
}

// Push returns a context with the given identity as the current caller.
// The new frame inherits the elevation state of the current frame.
func Push(ctx context.Context, id Identity) context.Context {
	parent := currentFrame(ctx)
	f := &frame{identity: id, parent: parent}
	if parent != nil {
		f.elevated = parent.elevated
	}
	return context.WithValue(ctx, frameKey, f)
}

// Pop returns a context with the current frame removed. Most callers never
// need this: scoping the pushed context to a closure pops implicitly.
func Pop(ctx context.Context) context.Context {
	f := currentFrame(ctx)
	if f == nil {
		return ctx
	}
	return context.WithValue(ctx, frameKey, f.parent)
}

// Current returns the identity of the top frame, if any
func Current(ctx context.Context) (Identity, bool) {
	f := currentFrame(ctx)
	if f == nil {
		return Identity{}, false
	}
	return f.identity, true
}

// Elevate returns a context whose current frame is a copy with elevation
// forced on. While elevated, a Read document check is downgraded to Use.
func Elevate(ctx context.Context) context.Context {
	f := currentFrame(ctx)
	next := &frame{elevated: true, parent: f}
	if f != nil {
		next.identity = f.identity
	}
	return context.WithValue(ctx, frameKey, next)
}

// IsElevated reports whether the current frame has elevated permissions
func IsElevated(ctx context.Context) bool {
	f := currentFrame(ctx)
	return f != nil && f.elevated
}

// WithChecksSuppressed returns a context in which permission checks that
// have already been satisfied are not re-run by nested secured calls.
func WithChecksSuppressed(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppressedKey, true)
}

// WithChecksEnabled returns a context with check suppression cleared
func WithChecksEnabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppressedKey, false)
}

// ChecksSuppressed reports whether permission checking is suppressed
func ChecksSuppressed(ctx context.Context) bool {
	v, _ := ctx.Value(suppressedKey).(bool)
	return v
}
