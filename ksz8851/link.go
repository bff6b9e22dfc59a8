package ksz8851

import (
	"context"
	"fmt"
	"time"

	"github.com/soypat/lneto/phy"
)

// mdioBridge exposes the port 1 PHY registers of the chip as a clause 22
// MDIO bus. The device lock must be held and ctx set around every use.
type mdioBridge struct {
	d   *Device
	ctx context.Context
}

const (
	mdioRegPHYID1 = 0x02
	mdioRegPHYID2 = 0x03
)

var mdioRegisters = map[uint16]uint8{
	phy.AddrBMCR:   regP1MBCR,
	phy.AddrBMSR:   regP1MBSR,
	mdioRegPHYID1:  regPHY1IHR,
	mdioRegPHYID2:  regPHY1ILR,
	phy.AddrANAR:   regP1ANAR,
	phy.AddrANLPAR: regP1ANLPR,
}

func (b *mdioBridge) Read(phyAddr, devAddr uint8, reg uint16) (uint16, error) {
	addr, ok := mdioRegisters[reg]
	if !ok || devAddr != 0 {
		return 0, fmt.Errorf("ksz8851: mdio register %d not mapped", reg)
	}
	return b.d.read16(b.context(), addr)
}

func (b *mdioBridge) Write(phyAddr, devAddr uint8, reg, value uint16) error {
	addr, ok := mdioRegisters[reg]
	if !ok || devAddr != 0 {
		return fmt.Errorf("ksz8851: mdio register %d not mapped", reg)
	}
	if reg == phy.AddrBMCR && value&uint16(phy.BMCRReset) != 0 {
		// P1MBCR has no reset bit, PHYRR does the job
		if err := b.d.write16(b.context(), regPHYRR, phyrrReset); err != nil {
			return err
		}
		value &^= uint16(phy.BMCRReset)
	}
	return b.d.write16(b.context(), addr, value)
}

func (b *mdioBridge) context() context.Context {
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

// withPHY runs fn against the PHY with ctx bound to the MDIO bridge.
func (d *Device) withPHY(ctx context.Context, fn func(p *phy.Device) error) error {
	d.mdio.ctx = ctx
	defer func() { d.mdio.ctx = nil }()
	return fn(&d.phy)
}

// LinkState is a snapshot of the port 1 link.
type LinkState struct {
	Up             bool         `yaml:"up"`
	Mode           phy.LinkMode `yaml:"mode"`
	AutoNegotiated bool         `yaml:"auto_negotiated"`
	Partner        phy.ANAR     `yaml:"partner"`
}

// Err returns ErrLinkDown when the link is down.
func (s LinkState) Err() error {
	if !s.Up {
		return ErrLinkDown
	}
	return nil
}

func (s LinkState) Speed() int { return s.Mode.SpeedMbps() }

func (s LinkState) FullDuplex() bool { return s.Mode.IsFullDuplex() }

func (s LinkState) String() string {
	if !s.Up {
		return "down"
	}
	duplex := "half-duplex"
	if s.FullDuplex() {
		duplex = "full-duplex"
	}
	how := "forced"
	if s.AutoNegotiated {
		how = "auto"
	}
	return fmt.Sprintf("up %dMbps %s (%s)", s.Speed(), duplex, how)
}

// LinkStatus reads the current link state. A down link is reported in the
// state, not as an error.
func (d *Device) LinkStatus(ctx context.Context) (LinkState, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.linkStatus(ctx)
}

func (d *Device) linkStatus(ctx context.Context) (LinkState, error) {
	var st LinkState
	err := d.withPHY(ctx, func(p *phy.Device) error {
		bmsr, err := p.BasicStatus()
		if err != nil {
			return err
		}
		if bmsr&phy.BMSRLinkStatus == 0 {
			return nil
		}
		st.Up = true
		bmcr, err := p.BasicControl()
		if err != nil {
			return err
		}
		if bmcr&phy.BMCRANEnable != 0 && bmsr&phy.BMSRANComplete != 0 {
			mode, err := p.NegotiatedLink()
			if err != nil {
				return err
			}
			partner, err := p.LinkPartnerAdvertisement()
			if err != nil {
				return err
			}
			st.Mode, st.Partner, st.AutoNegotiated = mode, partner, true
			return nil
		}
		// forced or still negotiating, the port status has the resolved mode
		p1sr, err := d.read16(ctx, regP1SR)
		if err != nil {
			return err
		}
		st.Mode = portMode(p1sr)
		return nil
	})
	if err != nil {
		return LinkState{}, fmt.Errorf("ksz8851: link status: %w", err)
	}
	return st, nil
}

func portMode(p1sr uint16) phy.LinkMode {
	full := p1sr&p1srFullDuplex != 0
	switch {
	case p1sr&p1srSpeed100 != 0 && full:
		return phy.Link100FDX
	case p1sr&p1srSpeed100 != 0:
		return phy.Link100HDX
	case full:
		return phy.Link10FDX
	default:
		return phy.Link10HDX
	}
}

// SetLoopback switches the PHY near-end loopback.
func (d *Device) SetLoopback(ctx context.Context, on bool) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.withPHY(ctx, func(p *phy.Device) error {
		if err := p.SetLoopback(on); err != nil {
			return fmt.Errorf("ksz8851: set loopback: %w", err)
		}
		return nil
	})
}

func (d *Device) RestartAutoNegotiation(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.withPHY(ctx, func(p *phy.Device) error {
		if err := p.RestartAutoNeg(); err != nil {
			return fmt.Errorf("ksz8851: restart auto-negotiation: %w", err)
		}
		return nil
	})
}

// ForceLink disables auto-negotiation and fixes speed and duplex.
func (d *Device) ForceLink(ctx context.Context, mode phy.LinkMode) error {
	if s := mode.SpeedMbps(); s != 10 && s != 100 {
		return fmt.Errorf("ksz8851: unsupported link mode %d Mbps", s)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.withPHY(ctx, func(p *phy.Device) error {
		if err := p.SetupForced(mode); err != nil {
			return fmt.Errorf("ksz8851: force link: %w", err)
		}
		return nil
	})
}

// ResetPHY resets the port 1 PHY through PHYRR.
func (d *Device) ResetPHY(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.write16(ctx, regPHYRR, phyrrReset); err != nil {
		return fmt.Errorf("ksz8851: reset phy: %w", err)
	}
	return nil
}

// WaitLink polls the link until it is up or timeout passes. The device lock
// is released between polls.
func (d *Device) WaitLink(ctx context.Context, timeout time.Duration) (LinkState, error) {
	deadline := time.Now().Add(timeout)
	for {
		st, err := d.LinkStatus(ctx)
		if err != nil || st.Up {
			return st, err
		}
		if !time.Now().Before(deadline) {
			return st, fmt.Errorf("%w after %s", ErrLinkDown, timeout)
		}
		if err := sleep(ctx, d.opts.LinkPollInterval); err != nil {
			return st, err
		}
	}
}
