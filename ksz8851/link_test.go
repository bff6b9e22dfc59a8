package ksz8851

import (
	"context"
	"testing"
	"time"

	"github.com/soypat/lneto/phy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkStatus(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)
	ctx := context.Background()

	st, err := d.LinkStatus(ctx)
	require.NoError(t, err)
	assert.False(t, st.Up)
	assert.ErrorIs(t, st.Err(), ErrLinkDown)
	assert.Equal(t, "down", st.String())

	chip.SetLink(phy.Link100FDX)
	st, err = d.LinkStatus(ctx)
	require.NoError(t, err)
	assert.NoError(t, st.Err())
	assert.Equal(t, phy.Link100FDX, st.Mode)
	assert.True(t, st.AutoNegotiated)
	assert.Equal(t, phy.ANAR100Full|phy.ANARSelector8023|phy.ANARAck, st.Partner)
	assert.Equal(t, 100, st.Speed())
	assert.Equal(t, "up 100Mbps full-duplex (auto)", st.String())
}

func TestForceLink(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)
	ctx := context.Background()

	require.NoError(t, d.ForceLink(ctx, phy.Link10HDX))
	assert.Zero(t, chip.Register(regP1MBCR)&uint16(phy.BMCRANEnable))
	chip.SetLink(phy.Link10HDX)

	st, err := d.LinkStatus(ctx)
	require.NoError(t, err)
	assert.True(t, st.Up)
	assert.False(t, st.AutoNegotiated)
	assert.Equal(t, phy.Link10HDX, st.Mode)
	assert.Equal(t, "up 10Mbps half-duplex (forced)", st.String())

	chip.ClearHistory()
	err = d.ForceLink(ctx, phy.Link1000FDX)
	assert.Error(t, err)
	assert.Empty(t, chip.History())
}

func TestRestartAutoNegotiation(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)
	ctx := context.Background()

	require.NoError(t, d.ForceLink(ctx, phy.Link100FDX))
	chip.ClearHistory()
	require.NoError(t, d.RestartAutoNegotiation(ctx))
	h := chip.History()
	require.Len(t, h, 2)
	assert.True(t, h[1].Write)
	assert.Equal(t, regP1MBCR, h[1].Addr)
	assert.NotZero(t, h[1].Value&uint16(phy.BMCRANRestart))
	assert.NotZero(t, chip.Register(regP1MBCR)&uint16(phy.BMCRANEnable))
}

func TestAdvertisementOnlyRewrittenOnChange(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)
	ctx := context.Background()

	require.NoError(t, d.Configure(ctx, DefaultConfig(testMAC)))
	assert.Zero(t, countAccesses(chip.History(), true, regP1ANAR))

	cfg := DefaultConfig(testMAC)
	cfg.Advertisement = phy.NewANAR().With10M().FullDuplexOnly()
	require.NoError(t, d.Configure(ctx, cfg))
	assert.Equal(t, uint16(cfg.Advertisement), chip.Register(regP1ANAR))
	assert.Equal(t, 1, countAccesses(chip.History(), true, regP1ANAR))
}

func TestSetLoopback(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)
	ctx := context.Background()

	require.NoError(t, d.SetLoopback(ctx, true))
	assert.NotZero(t, chip.Register(regP1MBCR)&p1mbcrLoopback)
	require.NoError(t, d.SetLoopback(ctx, false))
	assert.Zero(t, chip.Register(regP1MBCR)&p1mbcrLoopback)
}

func TestMDIOBridge(t *testing.T) {
	chip := NewMockChip()
	d := New(chip)

	id1, err := d.mdio.Read(0, 0, mdioRegPHYID1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0022), id1)

	_, err = d.mdio.Read(0, 0, 0x1F)
	assert.Error(t, err)
	_, err = d.mdio.Read(0, 1, phy.AddrBMCR)
	assert.Error(t, err, "clause 45 access")

	// a BMCR soft reset goes through PHYRR
	require.NoError(t, d.mdio.Write(0, 0, phy.AddrBMCR, uint16(phy.BMCRReset|phy.BMCRANEnable)))
	h := chip.History()
	require.Len(t, h, 3)
	assert.Equal(t, MockAccess{Write: true, Addr: regPHYRR, Width: Width16, Value: phyrrReset}, h[1])
	assert.Equal(t, MockAccess{Write: true, Addr: regP1MBCR, Width: Width16, Value: uint16(phy.BMCRANEnable)}, h[2])
}

func TestResetPHY(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)
	require.NoError(t, d.ResetPHY(context.Background()))
	assert.Equal(t, 1, countAccesses(chip.History(), true, regPHYRR))
}

func TestWaitLink(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip, WithLinkPollInterval(time.Millisecond))
	ctx := context.Background()

	_, err := d.WaitLink(ctx, 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrLinkDown)

	go func() {
		time.Sleep(10 * time.Millisecond)
		chip.SetLink(phy.Link100HDX)
	}()
	st, err := d.WaitLink(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, phy.Link100HDX, st.Mode)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	chip.SetLink(phy.LinkDown)
	_, err = d.WaitLink(cctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLinkChangeInterrupt(t *testing.T) {
	chip := NewMockChip()
	var changes []LinkState
	d := newTestDevice(t, chip, WithLinkHandler(func(st LinkState) {
		changes = append(changes, st)
	}))
	ctx := context.Background()

	chip.SetLink(phy.Link100FDX)
	ev, err := d.ServiceInterrupts(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev.Link)
	assert.True(t, ev.Link.Up)

	chip.SetLink(phy.LinkDown)
	_, err = d.ServiceInterrupts(ctx)
	require.NoError(t, err)

	require.Len(t, changes, 2)
	assert.True(t, changes[0].Up)
	assert.False(t, changes[1].Up)
	assert.Equal(t, uint64(2), d.Stats().LinkChanges)
}
