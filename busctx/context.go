// Package busctx carries bus tracing switches through a context.
package busctx

import "context"

type ctxIndex int

const (
	ctxIndexVerbose ctxIndex = iota
	ctxIndexTraceRx
)

// IsVerbose reports whether transports should dump every transfer.
func IsVerbose(ctx context.Context) bool {
	val := ctx.Value(ctxIndexVerbose)
	if val == nil {
		return false
	}
	return val.(bool)
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexVerbose, value)
}

// IsTracingRx reports whether bytes clocked in should be dumped as well.
// It only has effect together with IsVerbose.
func IsTracingRx(ctx context.Context) bool {
	val := ctx.Value(ctxIndexTraceRx)
	if val == nil {
		return false
	}
	return val.(bool)
}

func SetTraceRx(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexTraceRx, value)
}
