package ksz8851

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"log/slog"
)

const maxRxByteCount = MaxFrameLen + fcsLen + ipOffsetLen

type rxState uint8

const (
	rxIdle rxState = iota
	rxHeaderPending
	rxPayloadPending
	rxDelivered
)

func (s rxState) String() string {
	switch s {
	case rxIdle:
		return "idle"
	case rxHeaderPending:
		return "header-pending"
	case rxPayloadPending:
		return "payload-pending"
	case rxDelivered:
		return "delivered"
	default:
		return "unknown"
	}
}

// Frame is one received Ethernet frame. Data excludes the alignment offset
// and the FCS and belongs to the caller.
type Frame struct {
	Status    RxStatus
	ByteCount uint16
	Data      []byte
	FCS       uint32
}

// Receive reads the next frame from the RX queue. It returns nil, nil when
// the queue is empty; in that case no burst is issued. Frames the chip
// flagged as bad are released and skipped.
func (d *Device) Receive(ctx context.Context) (*Frame, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.operating(); err != nil {
		return nil, err
	}
	t, err := d.acquireFIFO(ctx)
	if err != nil {
		return nil, err
	}
	defer d.releaseFIFO(t)
	for {
		f, dropped, err := d.receiveOne(ctx, t)
		if err != nil {
			return nil, d.afterFault(ctx, err)
		}
		if !dropped {
			return f, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// pendingFrames returns the frames left from the last RXFCTR snapshot,
// taking a new snapshot when the previous one is used up.
func (d *Device) pendingFrames(ctx context.Context) (int, error) {
	if d.rxPending > 0 {
		return d.rxPending, nil
	}
	v, err := d.read16(ctx, regRXFCTR)
	if err != nil {
		return 0, fmt.Errorf("ksz8851: read frame count: %w", err)
	}
	d.rxPending = int(fieldRxFrameCount.Get(v))
	return d.rxPending, nil
}

// receiveOne advances the RX state machine over a single queued frame.
// dropped is set when the frame was consumed without being delivered.
func (d *Device) receiveOne(ctx context.Context, t fifoToken) (f *Frame, dropped bool, err error) {
	defer func() {
		if err != nil {
			d.rxState = rxIdle
			d.rxPending = 0
		}
	}()
	n, err := d.pendingFrames(ctx)
	if err != nil || n == 0 {
		return nil, false, err
	}

	d.rxState = rxHeaderPending
	st, err := d.read16(ctx, regRXFHSR)
	if err != nil {
		return nil, false, fmt.Errorf("ksz8851: read frame status: %w", err)
	}
	bc, err := d.read16(ctx, regRXFHBCR)
	if err != nil {
		return nil, false, fmt.Errorf("ksz8851: read frame byte count: %w", err)
	}
	hdr := rxHeader{status: RxStatus(st), byteCount: fieldRxByteCount.Get(bc)}
	if hdr.status == 0 && hdr.byteCount == 0 {
		// the count snapshot was stale, nothing left in the queue
		d.rxPending = 0
		d.rxState = rxIdle
		return nil, false, nil
	}
	d.rxPending--

	if !hdr.status.OK() {
		if err := d.dropFrame(ctx, hdr); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}
	off := 0
	if d.rxqcr&rxqcrIPHeaderOff != 0 {
		off = ipOffsetLen
	}
	if int(hdr.byteCount) < off+fcsLen+MinFrameLen || hdr.byteCount > maxRxByteCount {
		return nil, false, desyncf("implausible byte count %d for status %s", hdr.byteCount, hdr.status)
	}

	d.rxState = rxPayloadPending
	burst, err := d.fifoRead(ctx, t, hdr, d.rxBuf)
	if err != nil {
		return nil, false, err
	}
	body := burst[rxPreambleLn+off : rxPreambleLn+int(hdr.byteCount)]
	data := body[:len(body)-fcsLen]
	fcs := binary.LittleEndian.Uint32(body[len(body)-fcsLen:])
	if d.config.VerifyFCS && crc32.ChecksumIEEE(data) != fcs {
		d.stats.RxFCSErrors++
		d.stats.RxDropped++
		d.rxState = rxIdle
		d.log.Debug("frame dropped", slog.Any("reason", ErrFCSMismatch), slog.Int("len", len(data)))
		return nil, true, nil
	}

	d.rxState = rxDelivered
	f = &Frame{
		Status:    hdr.status,
		ByteCount: hdr.byteCount,
		Data:      append([]byte(nil), data...),
		FCS:       fcs,
	}
	d.stats.RxFrames++
	d.stats.RxBytes += uint64(len(data))
	d.rxState = rxIdle
	return f, false, nil
}

// dropFrame releases the frame at the head of the queue with RRXEF. The chip
// skips exactly the declared byte count; the bit clears once it is done.
func (d *Device) dropFrame(ctx context.Context, hdr rxHeader) error {
	d.stats.RxDropped++
	d.log.Debug("frame dropped", slog.String("status", hdr.status.String()), slog.Int("byte_count", int(hdr.byteCount)))
	if err := d.write16(ctx, regRXQCR, d.rxqcr|rxqcrRelease); err != nil {
		return fmt.Errorf("ksz8851: release frame: %w", err)
	}
	for i := 0; i < d.opts.ReleasePollAttempts; i++ {
		v, err := d.read16(ctx, regRXQCR)
		if err != nil {
			return fmt.Errorf("ksz8851: release poll: %w", err)
		}
		if v&rxqcrRelease == 0 {
			d.rxState = rxIdle
			return nil
		}
	}
	return fmt.Errorf("%w after %d polls", ErrReleaseTimeout, d.opts.ReleasePollAttempts)
}
