package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfirmed(t *testing.T) {
	for _, answer := range []string{"y", "Y", "yes", " YES "} {
		assert.True(t, confirmed(answer), answer)
	}
	for _, answer := range []string{"", "n", "no", "yep", "1"} {
		assert.False(t, confirmed(answer), answer)
	}
}

func TestLink(t *testing.T) {
	up := Link("link 100M full", true)
	assert.Contains(t, up, PictoLink)
	assert.Contains(t, up, "link 100M full")

	down := Link("link down", false)
	assert.Contains(t, down, PictoBroken)
	assert.Contains(t, down, "link down")
}

func TestExit(t *testing.T) {
	err := Exit(ExitUnavailable, "could not open device: %s", "no bridge")
	assert.Equal(t, ExitUnavailable, err.ExitCode())
	assert.Equal(t, "could not open device: no bridge", err.Error())
}
