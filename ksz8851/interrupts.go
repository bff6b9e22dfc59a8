package ksz8851

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Events reports what one ServiceInterrupts call found and handled.
type Events struct {
	Status         IRQ        `yaml:"status"`
	Acknowledged   IRQ        `yaml:"acknowledged"`
	FramesReceived int        `yaml:"frames_received"`
	FramesDropped  int        `yaml:"frames_dropped"`
	RxBacklog      int        `yaml:"rx_backlog"`
	TxDone         *TxStatus  `yaml:"tx_done,omitempty"`
	Link           *LinkState `yaml:"link,omitempty"`
	RxOverrun      bool       `yaml:"rx_overrun"`
	TxSpace        bool       `yaml:"tx_space"`
	SPIBusError    bool       `yaml:"spi_bus_error"`
}

// Idle reports whether the call found nothing it services.
func (e Events) Idle() bool { return e.Status&handledIRQ == 0 }

// ServiceInterrupts is the single entry point for the chip's interrupt
// line. ISR is read once; when no serviced source is pending nothing else
// touches the bus. Otherwise interrupts are masked, every pending source is handled, the
// handled bits are acknowledged and the mask is restored. RX is only
// acknowledged once the queue is drained; frames beyond MaxFramesPerCall
// keep the interrupt asserted.
//
// Handlers passed with WithFrameHandler, WithTxDoneHandler and
// WithLinkHandler run after the device lock is released.
func (d *Device) ServiceInterrupts(ctx context.Context) (Events, error) {
	d.mx.Lock()
	ev, frames, err := d.serviceInterrupts(ctx)
	d.mx.Unlock()

	if h := d.opts.FrameHandler; h != nil {
		for _, f := range frames {
			h(f)
		}
	}
	if h := d.opts.TxDoneHandler; h != nil && ev.TxDone != nil {
		h(*ev.TxDone)
	}
	if h := d.opts.LinkHandler; h != nil && ev.Link != nil {
		h(*ev.Link)
	}
	return ev, err
}

func (d *Device) serviceInterrupts(ctx context.Context) (ev Events, frames []*Frame, err error) {
	if err := d.operating(); err != nil {
		return ev, nil, err
	}
	d.stats.ServiceCalls++
	isr, err := d.read16(ctx, regISR)
	if err != nil {
		return ev, nil, fmt.Errorf("ksz8851: read interrupt status: %w", err)
	}
	ev.Status = IRQ(isr)
	// wake-up and stop events stay latched in ISR for the caller
	if ev.Status&handledIRQ == 0 {
		d.stats.IdleInterrupt++
		return ev, nil, nil
	}

	if err := d.write16(ctx, regIER, 0); err != nil {
		return ev, nil, fmt.Errorf("ksz8851: mask interrupts: %w", err)
	}
	ack := ev.Status & handledIRQ

	frames, err = d.dispatch(ctx, &ev)
	if err != nil {
		// a recovery rewrote IER already, otherwise put the mask back
		if errors.Is(err, ErrFifoDesync) || errors.Is(err, ErrReleaseTimeout) {
			return ev, frames, d.afterFault(ctx, err)
		}
		if rerr := d.write16(ctx, regIER, uint16(d.ier)); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return ev, frames, err
	}
	if ev.RxBacklog > 0 {
		ack &^= IRQRx
	}
	if ack != 0 {
		if err := d.write16(ctx, regISR, uint16(ack)); err != nil {
			return ev, frames, fmt.Errorf("ksz8851: acknowledge %s: %w", ack, err)
		}
	}
	ev.Acknowledged = ack
	if err := d.write16(ctx, regIER, uint16(d.ier)); err != nil {
		return ev, frames, fmt.Errorf("ksz8851: unmask interrupts: %w", err)
	}
	return ev, frames, nil
}

func (d *Device) dispatch(ctx context.Context, ev *Events) ([]*Frame, error) {
	var frames []*Frame
	if ev.Status.Has(IRQRx) {
		var err error
		frames, err = d.drainRx(ctx, ev)
		if err != nil {
			return frames, err
		}
	}
	if ev.Status.Has(IRQTxDone) {
		st, err := d.txStatus(ctx)
		if err != nil {
			return frames, err
		}
		ev.TxDone = &st
	}
	if ev.Status.Has(IRQLinkChange) {
		d.stats.LinkChanges++
		st, err := d.linkStatus(ctx)
		if err != nil {
			return frames, err
		}
		if st.Up != d.link.Up {
			d.log.Info("link changed", slog.String("state", st.String()))
		}
		d.link = st
		ev.Link = &st
	}
	if ev.Status.Has(IRQRxOverrun) {
		d.stats.RxOverruns++
		ev.RxOverrun = true
		d.log.Warn("rx queue overrun")
	}
	if ev.Status.Has(IRQTxSpace) {
		ev.TxSpace = true
	}
	if ev.Status.Has(IRQSPIBusError) {
		d.stats.SPIBusErrors++
		ev.SPIBusError = true
		d.log.Warn("chip reported spi bus error")
	}
	return frames, nil
}

// drainRx delivers up to MaxFramesPerCall frames when a frame handler is
// installed. Without one it only reports the backlog for Receive callers.
func (d *Device) drainRx(ctx context.Context, ev *Events) ([]*Frame, error) {
	if d.opts.FrameHandler == nil {
		n, err := d.pendingFrames(ctx)
		ev.RxBacklog = n
		return nil, err
	}
	t, err := d.acquireFIFO(ctx)
	if err != nil {
		return nil, err
	}
	defer d.releaseFIFO(t)
	var frames []*Frame
	empty := false
	for i := 0; i < d.opts.MaxFramesPerCall; i++ {
		f, dropped, err := d.receiveOne(ctx, t)
		if err != nil {
			return frames, err
		}
		if dropped {
			ev.FramesDropped++
			continue
		}
		if f == nil {
			empty = true
			break
		}
		frames = append(frames, f)
	}
	ev.FramesReceived = len(frames)
	if !empty {
		n, err := d.pendingFrames(ctx)
		if err != nil {
			return frames, err
		}
		ev.RxBacklog = n
	}
	return frames, nil
}
