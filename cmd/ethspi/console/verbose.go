package console

import (
	"context"

	"github.com/mklimuk/ethspi/busctx"
)

// SetVerbose also turns on debug output of the console.
func SetVerbose(parent context.Context, value bool) context.Context {
	Trace = value
	return busctx.SetVerbose(parent, value)
}

func IsVerbose(ctx context.Context) bool {
	return busctx.IsVerbose(ctx)
}
