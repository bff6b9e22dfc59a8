package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/ethspi/ksz8851"
)

func configuredDevice(t *testing.T, chip *ksz8851.MockChip) *ksz8851.Device {
	t.Helper()
	d := ksz8851.New(chip, ksz8851.WithResetHold(0), ksz8851.WithResetPoll(5, 0))
	ctx := context.Background()
	require.NoError(t, d.Reset(ctx))
	require.NoError(t, d.Configure(ctx, ksz8851.DefaultConfig(ksz8851.MAC{0x02, 0x00, 0x5e, 0x01, 0x02, 0x03})))
	return d
}

func TestLoopback(t *testing.T) {
	chip := ksz8851.NewMockChip(ksz8851.WithMACLoopback())
	d := configuredDevice(t, chip)

	results, err := Loopback(context.Background(), d, []int{60, 1514, ksz8851.MaxFrameLen}, 3, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.True(t, r.OK(), "frame %d", i)
		assert.Equal(t, uint8(i), r.FrameID)
	}
	assert.Equal(t, 1514, results[1].Size)
	require.Len(t, chip.Sent(), 3)
	assert.Len(t, chip.Sent()[2], ksz8851.MaxFrameLen)
}

func TestLoopbackLostFrames(t *testing.T) {
	chip := ksz8851.NewMockChip()
	d := configuredDevice(t, chip)

	results, err := Loopback(context.Background(), d, []int{60, 128}, 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Received)
		assert.False(t, r.OK())
	}

	_, err = Loopback(context.Background(), d, []int{10}, 1, 0)
	assert.Error(t, err)
}
