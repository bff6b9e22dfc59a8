package console

import (
	"strings"

	"github.com/chzyer/readline"
)

// Confirm asks before a write that changes the chip. Only an explicit yes
// confirms, an empty answer declines.
func Confirm(question string) (bool, error) {
	rl, err := readline.New(question + " [y/N]: ")
	if err != nil {
		return false, err
	}
	defer func() { _ = rl.Close() }()
	answer, err := rl.Readline()
	if err != nil {
		return false, err
	}
	return confirmed(answer), nil
}

func confirmed(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
