package ksz8851

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceInterruptsIdle(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)

	ev, err := d.ServiceInterrupts(context.Background())
	require.NoError(t, err)
	assert.True(t, ev.Idle())
	h := chip.History()
	require.Len(t, h, 1, "an idle call only reads ISR")
	assert.Equal(t, regISR, h[0].Addr)
	assert.Equal(t, uint64(1), d.Stats().IdleInterrupt)
}

func TestServiceInterruptsIdleAfterHandling(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)
	ctx := context.Background()
	chip.mu.Lock()
	chip.raise(IRQRxOverrun)
	chip.mu.Unlock()

	ev, err := d.ServiceInterrupts(ctx)
	require.NoError(t, err)
	assert.False(t, ev.Idle())
	assert.Equal(t, IRQRxOverrun, ev.Acknowledged)

	chip.ClearHistory()
	ev, err = d.ServiceInterrupts(ctx)
	require.NoError(t, err)
	assert.True(t, ev.Idle())
	assert.Zero(t, ev.Acknowledged)
	h := chip.History()
	require.Len(t, h, 1, "the second call only reads ISR")
	assert.Equal(t, MockAccess{Addr: regISR, Width: Width16, Value: 0}, h[0])
	assert.Equal(t, uint64(1), d.Stats().IdleInterrupt)
}

func TestServiceInterruptsLeavesUnhandledBits(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)
	ctx := context.Background()
	chip.mu.Lock()
	chip.raise(IRQWakeFrame | IRQTxStopped | IRQRxOverrun)
	chip.mu.Unlock()

	ev, err := d.ServiceInterrupts(ctx)
	require.NoError(t, err)
	assert.Equal(t, IRQWakeFrame|IRQTxStopped|IRQRxOverrun, ev.Status)
	assert.Equal(t, IRQRxOverrun, ev.Acknowledged)
	assert.Equal(t, IRQWakeFrame|IRQTxStopped, chip.PendingIRQ())

	// latched events nobody services do not turn every call into a full pass
	chip.ClearHistory()
	ev, err = d.ServiceInterrupts(ctx)
	require.NoError(t, err)
	assert.True(t, ev.Idle())
	assert.Equal(t, IRQWakeFrame|IRQTxStopped, ev.Status)
	assert.Len(t, chip.History(), 1)
	assert.Equal(t, IRQWakeFrame|IRQTxStopped, chip.PendingIRQ())
}

func TestServiceInterruptsMasksWhileHandling(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)
	chip.mu.Lock()
	chip.raise(IRQRxOverrun | IRQSPIBusError)
	chip.mu.Unlock()

	ev, err := d.ServiceInterrupts(context.Background())
	require.NoError(t, err)
	assert.True(t, ev.RxOverrun)
	assert.True(t, ev.SPIBusError)
	assert.Equal(t, IRQRxOverrun|IRQSPIBusError, ev.Acknowledged)
	assert.False(t, chip.Asserted())

	h := chip.History()
	require.Len(t, h, 4)
	assert.Equal(t, MockAccess{Addr: regISR, Width: Width16, Value: uint16(IRQRxOverrun | IRQSPIBusError)}, h[0])
	assert.Equal(t, MockAccess{Write: true, Addr: regIER, Width: Width16, Value: 0}, h[1])
	assert.Equal(t, MockAccess{Write: true, Addr: regISR, Width: Width16, Value: uint16(IRQRxOverrun | IRQSPIBusError)}, h[2])
	assert.Equal(t, MockAccess{Write: true, Addr: regIER, Width: Width16, Value: uint16(DefaultIRQMask)}, h[3])

	st := d.Stats()
	assert.Equal(t, uint64(1), st.RxOverruns)
	assert.Equal(t, uint64(1), st.SPIBusErrors)
}

func TestServiceInterruptsReportsBacklog(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)
	ctx := context.Background()
	chip.InjectFrame(MockFrame{Data: testFrame(60, 1)}, MockFrame{Data: testFrame(61, 2)}, MockFrame{Data: testFrame(62, 3)})

	ev, err := d.ServiceInterrupts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, ev.RxBacklog)
	assert.False(t, ev.Acknowledged.Has(IRQRx), "rx stays pending until the queue is drained")
	assert.True(t, chip.Asserted())
	assert.Zero(t, chip.Stats().RxBursts)

	assert.Len(t, receiveAll(t, d), 3)
	ev, err = d.ServiceInterrupts(ctx)
	require.NoError(t, err)
	assert.Zero(t, ev.RxBacklog)
	assert.True(t, ev.Acknowledged.Has(IRQRx))
	assert.False(t, chip.Asserted())
}

func TestServiceInterruptsDrainsIntoHandler(t *testing.T) {
	chip := NewMockChip()
	var got [][]byte
	var d *Device
	d = newTestDevice(t, chip, WithMaxFramesPerCall(2), WithFrameHandler(func(f *Frame) {
		got = append(got, f.Data)
		// handlers run without the device lock
		_ = d.Stats()
	}))
	ctx := context.Background()

	var want [][]byte
	for i := 0; i < 5; i++ {
		f := testFrame(60+i, byte(i))
		want = append(want, f)
		chip.InjectFrame(MockFrame{Data: f})
	}
	chip.InjectFrame(MockFrame{Data: testFrame(70, 9), Status: RxValid | RxCRCErr})

	backlogs := []int{}
	for i := 0; i < 10 && chip.Asserted(); i++ {
		ev, err := d.ServiceInterrupts(ctx)
		require.NoError(t, err)
		backlogs = append(backlogs, ev.RxBacklog)
	}
	assert.Equal(t, want, got)
	assert.Equal(t, []int{4, 2, 0}, backlogs)
	assert.False(t, chip.Asserted())
	assert.Equal(t, uint64(1), d.Stats().RxDropped)
	assert.Zero(t, chip.PendingFrames())
}

func TestServiceInterruptsRecoversFromDesync(t *testing.T) {
	chip := NewMockChip()
	var got int
	d := newTestDevice(t, chip, WithFrameHandler(func(*Frame) { got++ }))
	chip.InjectFrame(MockFrame{Data: testFrame(60, 1)}, MockFrame{Data: testFrame(60, 2), BadEcho: true})

	_, err := d.ServiceInterrupts(context.Background())
	require.ErrorIs(t, err, ErrFifoDesync)
	assert.Equal(t, 1, got, "frames read before the fault are still delivered")
	assert.Equal(t, 2, chip.Stats().Resets)
	assert.Equal(t, uint16(DefaultIRQMask), chip.Register(regIER))
	assert.Equal(t, uint64(1), d.Stats().Recoveries)
}

func TestServiceInterruptsBusError(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)
	chip.InjectFrame(MockFrame{Data: testFrame(60, 1)})
	wire := errors.New("ftdi: timeout")
	chip.FailAfter(1, wire)

	_, err := d.ServiceInterrupts(context.Background())
	assert.ErrorIs(t, err, ErrBus)
	assert.ErrorIs(t, err, wire)
	assert.Equal(t, 1, chip.Stats().Resets, "transport errors do not reset the chip")
}
