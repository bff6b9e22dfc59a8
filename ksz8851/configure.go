package ksz8851

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soypat/lneto/phy"
)

// Configure applies cfg to a chip that went through Reset. TX and RX are
// disabled while the registers are written and enabled last.
func (d *Device) Configure(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.state == stateUninit {
		return fmt.Errorf("%w: reset the chip first", ErrNotConfigured)
	}
	return d.configure(ctx, cfg)
}

func (d *Device) configure(ctx context.Context, cfg Config) error {
	d.state = stateReset
	if err := d.write16(ctx, regIER, 0); err != nil {
		return fmt.Errorf("ksz8851: mask interrupts: %w", err)
	}
	d.ier = 0
	d.txcr &^= txcrEnable
	d.rxcr1 &^= rxcr1Enable
	if err := d.write16(ctx, regTXCR, d.txcr); err != nil {
		return fmt.Errorf("ksz8851: disable tx: %w", err)
	}
	if err := d.write16(ctx, regRXCR1, d.rxcr1); err != nil {
		return fmt.Errorf("ksz8851: disable rx: %w", err)
	}

	if !cfg.MAC.IsZero() {
		if err := d.writeMAC(ctx, cfg.MAC); err != nil {
			return err
		}
	}

	rxcr1 := cfg.Filter.rxcr1()
	if cfg.FlowControl.Enabled {
		rxcr1 |= rxcr1FlowControl
	}
	if cfg.Checksum.RxCheck {
		rxcr1 |= rxcr1CheckIP | rxcr1CheckTCP | rxcr1CheckUDP
	}
	rxcr2 := fieldRxBurstLength.Set(rxcr2IPv4Frag|rxcr2UDPZeroSum|rxcr2UDPLite, rxcr2SingleFrame)
	if cfg.Checksum.RxCheck {
		rxcr2 |= rxcr2CheckICMP
	}
	txcr := txcrCRC | txcrPad
	if cfg.FlowControl.Enabled {
		txcr |= txcrFlowControl
	}
	if cfg.Checksum.TxGenerate {
		txcr |= txcrGenIP | txcrGenTCP | txcrGenICMP
	}
	rxqcr := rxqcrCountThresh | rxqcrAutoDequeue
	if cfg.IPHeaderOffset {
		rxqcr |= rxqcrIPHeaderOff
	}
	hash := cfg.Filter.hashTable()

	writes := []struct {
		addr  uint8
		value uint16
	}{
		{regRXCR1, rxcr1},
		{regRXCR2, rxcr2},
		{regMAHTR0, hash[0]},
		{regMAHTR1, hash[1]},
		{regMAHTR2, hash[2]},
		{regMAHTR3, hash[3]},
		{regRXFCTR, fieldRxFrameThresh.Set(0, uint16(cfg.RxFrameThreshold))},
		{regRXQCR, rxqcr},
		{regTXCR, txcr},
		{regTXQCR, 0},
	}
	for _, wm := range []struct {
		addr  uint8
		value uint16
	}{
		{regFCLWR, cfg.FlowControl.LowWatermark},
		{regFCHWR, cfg.FlowControl.HighWatermark},
		{regFCOWR, cfg.FlowControl.OverrunWatermark},
	} {
		if wm.value != 0 {
			writes = append(writes, wm)
		}
	}
	for _, w := range writes {
		if err := d.write16(ctx, w.addr, w.value); err != nil {
			return fmt.Errorf("ksz8851: configure %s: %w", regName(w.addr), err)
		}
	}
	d.rxcr1 = rxcr1
	d.txcr = txcr
	d.rxqcr = rxqcr

	if cfg.Advertisement != 0 {
		if err := d.advertise(ctx, cfg.Advertisement); err != nil {
			return err
		}
	}

	// clear stale status before unmasking
	if err := d.write16(ctx, regISR, uint16(irqAll)); err != nil {
		return fmt.Errorf("ksz8851: clear interrupts: %w", err)
	}
	if err := d.write16(ctx, regIER, uint16(cfg.InterruptMask)); err != nil {
		return fmt.Errorf("ksz8851: unmask interrupts: %w", err)
	}
	d.ier = cfg.InterruptMask

	d.txcr |= txcrEnable
	if err := d.write16(ctx, regTXCR, d.txcr); err != nil {
		return fmt.Errorf("ksz8851: enable tx: %w", err)
	}
	d.rxcr1 |= rxcr1Enable
	if err := d.write16(ctx, regRXCR1, d.rxcr1); err != nil {
		return fmt.Errorf("ksz8851: enable rx: %w", err)
	}

	d.config = cfg
	d.state = stateOperating
	d.rxState = rxIdle
	d.rxPending = 0
	d.log.Debug("controller configured",
		slog.String("mac", cfg.MAC.String()),
		slog.String("rxcr1", hex16(d.rxcr1)),
		slog.String("txcr", hex16(d.txcr)),
		slog.String("irq", cfg.InterruptMask.String()))
	return nil
}

// advertise updates P1ANAR and restarts negotiation only when the
// advertised abilities change.
func (d *Device) advertise(ctx context.Context, want phy.ANAR) error {
	return d.withPHY(ctx, func(p *phy.Device) error {
		have, err := p.Advertisement()
		if err != nil {
			return fmt.Errorf("ksz8851: read advertisement: %w", err)
		}
		const mask = phy.ANARSpeedMask | phy.ANARPauseMask
		if have&mask == want&mask {
			return nil
		}
		if err := p.SetAdvertisement(want); err != nil {
			return fmt.Errorf("ksz8851: write advertisement: %w", err)
		}
		if err := p.RestartAutoNeg(); err != nil {
			return fmt.Errorf("ksz8851: restart auto-negotiation: %w", err)
		}
		return nil
	})
}
