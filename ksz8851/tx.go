package ksz8851

import (
	"context"
	"fmt"
	"log/slog"
)

// TxStatus is the completion report read from TXSR.
type TxStatus struct {
	FrameID       uint8 `yaml:"frame_id"`
	LateCollision bool  `yaml:"late_collision"`
	MaxCollision  bool  `yaml:"max_collision"`
}

// Transmit queues frame for transmission and returns the 6-bit frame id the
// completion will carry. It does not wait for the frame to leave the wire.
// ErrTxBufferFull means the chip will raise IRQTxSpace once enough queue
// memory is free.
func (d *Device) Transmit(ctx context.Context, frame []byte) (uint8, error) {
	switch {
	case len(frame) < MinFrameLen:
		return 0, fmt.Errorf("%w: %d bytes, minimum is %d", ErrFrameTooSmall, len(frame), MinFrameLen)
	case len(frame) > MaxFrameLen:
		return 0, fmt.Errorf("%w: %d bytes, maximum is %d", ErrFrameTooLarge, len(frame), MaxFrameLen)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.operating(); err != nil {
		return 0, err
	}
	t, err := d.acquireFIFO(ctx)
	if err != nil {
		return 0, err
	}
	defer d.releaseFIFO(t)

	need := txBurstLen(len(frame))
	mir, err := d.read16(ctx, regTXMIR)
	if err != nil {
		return 0, fmt.Errorf("ksz8851: read tx memory: %w", err)
	}
	if free := int(fieldTxMemAvail.Get(mir)); need > free {
		d.stats.TxBufferFull++
		if err := d.write16(ctx, regTXNTFSR, uint16(need)); err != nil {
			return 0, fmt.Errorf("ksz8851: arm tx memory monitor: %w", err)
		}
		if err := d.write16(ctx, regTXQCR, txqcrMemMonitor); err != nil {
			return 0, fmt.Errorf("ksz8851: arm tx memory monitor: %w", err)
		}
		return 0, fmt.Errorf("%w: need %d bytes, %d free", ErrTxBufferFull, need, free)
	}

	id := d.nextID
	ctrl := newTxControl(id, d.config.TxDoneInterrupt)
	if _, err := d.fifoWrite(ctx, t, ctrl, frame); err != nil {
		return 0, fmt.Errorf("ksz8851: write frame: %w", err)
	}
	if err := d.write16(ctx, regTXQCR, txqcrManualEnq); err != nil {
		return 0, fmt.Errorf("ksz8851: enqueue frame: %w", err)
	}
	d.nextID = (id + 1) & uint8(txFrameIDMask)
	d.stats.TxFrames++
	d.stats.TxBytes += uint64(len(frame))
	d.log.Debug("frame queued", slog.Int("id", int(id)), slog.Int("len", len(frame)))
	return id, nil
}

func (d *Device) txStatus(ctx context.Context) (TxStatus, error) {
	v, err := d.read16(ctx, regTXSR)
	if err != nil {
		return TxStatus{}, fmt.Errorf("ksz8851: read tx status: %w", err)
	}
	st := TxStatus{
		FrameID:       uint8(fieldTxFrameID.Get(v)),
		LateCollision: v&txsrLateCollision != 0,
		MaxCollision:  v&txsrMaxCollision != 0,
	}
	if st.LateCollision || st.MaxCollision {
		d.stats.TxCollisions++
	}
	return st, nil
}
