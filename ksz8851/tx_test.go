package ksz8851

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransmitRejectsBadLengths(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)
	before := chip.Stats().Transactions

	_, err := d.Transmit(context.Background(), make([]byte, MinFrameLen-1))
	assert.ErrorIs(t, err, ErrFrameTooSmall)
	_, err = d.Transmit(context.Background(), make([]byte, MaxFrameLen+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Equal(t, before, chip.Stats().Transactions, "length checks happen before any bus traffic")
}

func TestTransmitFrame(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)
	frame := testFrame(60, 4)

	id, err := d.Transmit(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), id)
	assert.Equal(t, [][]byte{frame}, chip.Sent())
	assert.Equal(t, 1, chip.Stats().TxBursts)
	assert.Zero(t, chip.Stats().Misalignments)
	assert.Zero(t, chip.Register(regRXQCR)&rxqcrStartDMA)

	st := d.Stats()
	assert.Equal(t, uint64(1), st.TxFrames)
	assert.Equal(t, uint64(60), st.TxBytes)
}

func TestTransmitEverySize(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)
	ctx := context.Background()

	for n := MinFrameLen; n <= MaxFrameLen; n++ {
		_, err := d.Transmit(ctx, testFrame(n, byte(n)))
		require.NoError(t, err, "frame of %d bytes", n)
	}
	sent := chip.Sent()
	require.Len(t, sent, MaxFrameLen-MinFrameLen+1)
	for i, f := range sent {
		require.Equal(t, testFrame(MinFrameLen+i, byte(MinFrameLen+i)), f)
	}
	assert.Zero(t, chip.Stats().Misalignments)
}

func TestTransmitFrameIDWraps(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)
	ctx := context.Background()

	for i := 0; i < 70; i++ {
		id, err := d.Transmit(ctx, testFrame(60, 0))
		require.NoError(t, err)
		assert.Equal(t, uint8(i%64), id)
	}
}

func TestTransmitBufferFull(t *testing.T) {
	chip := NewMockChip(WithTxMemory(100))
	d := newTestDevice(t, chip)
	ctx := context.Background()

	_, err := d.Transmit(ctx, testFrame(200, 1))
	require.ErrorIs(t, err, ErrTxBufferFull)
	assert.Zero(t, chip.Stats().TxBursts)
	assert.Empty(t, chip.Sent())
	assert.Equal(t, uint16(txBurstLen(200)), chip.Register(regTXNTFSR))
	assert.NotZero(t, chip.Register(regTXQCR)&txqcrMemMonitor)
	assert.Equal(t, uint64(1), d.Stats().TxBufferFull)

	// memory frees up, the chip reports it through the interrupt
	chip.SetTxMemory(txQueueSize)
	ev, err := d.ServiceInterrupts(ctx)
	require.NoError(t, err)
	assert.True(t, ev.TxSpace)
	assert.Equal(t, IRQTxSpace, ev.Acknowledged)

	_, err = d.Transmit(ctx, testFrame(200, 1))
	require.NoError(t, err)
	assert.Len(t, chip.Sent(), 1)
}

func TestTransmitCompletion(t *testing.T) {
	chip := NewMockChip()
	var done []TxStatus
	d := newTestDevice(t, chip, WithTxDoneHandler(func(st TxStatus) {
		done = append(done, st)
	}))
	ctx := context.Background()

	_, err := d.Transmit(ctx, testFrame(60, 1))
	require.NoError(t, err)
	id, err := d.Transmit(ctx, testFrame(60, 2))
	require.NoError(t, err)

	ev, err := d.ServiceInterrupts(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev.TxDone)
	assert.Equal(t, id, ev.TxDone.FrameID)
	assert.Equal(t, []TxStatus{{FrameID: id}}, done)
	assert.False(t, chip.Asserted())
}

func TestTransmitWithoutCompletionInterrupt(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)
	ctx := context.Background()
	cfg := DefaultConfig(testMAC)
	cfg.TxDoneInterrupt = false
	require.NoError(t, d.Configure(ctx, cfg))

	_, err := d.Transmit(ctx, testFrame(60, 1))
	require.NoError(t, err)
	ev, err := d.ServiceInterrupts(ctx)
	require.NoError(t, err)
	assert.True(t, ev.Idle())
}

func TestTransmitLoopback(t *testing.T) {
	chip := NewMockChip(WithMACLoopback())
	d := newTestDevice(t, chip)
	ctx := context.Background()

	frame := testFrame(128, 7)
	_, err := d.Transmit(ctx, frame)
	require.NoError(t, err)
	f, err := d.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, frame, f.Data)
}
