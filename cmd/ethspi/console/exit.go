package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Exit codes, from sysexits.
const (
	ExitFailure     = 1
	ExitUsage       = 64
	ExitUnavailable = 69
)

func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}
