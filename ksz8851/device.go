package ksz8851

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/soypat/lneto/phy"

	"github.com/mklimuk/ethspi"
)

type lifecycle uint8

const (
	stateUninit lifecycle = iota
	stateReset
	stateOperating
)

type Opts struct {
	ResetHold           time.Duration
	ResetPollAttempts   int
	ResetPollInterval   time.Duration
	ReleasePollAttempts int
	LinkPollInterval    time.Duration
	MaxFramesPerCall    int
	Logger              *slog.Logger
	FrameHandler        func(*Frame)
	LinkHandler         func(LinkState)
	TxDoneHandler       func(TxStatus)
}

type Opt func(*Opts)

// WithResetHold sets how long GRR is held asserted and how long the chip is
// given after release before polling starts.
func WithResetHold(d time.Duration) Opt {
	return func(o *Opts) {
		o.ResetHold = d
	}
}

func WithResetPoll(attempts int, interval time.Duration) Opt {
	return func(o *Opts) {
		o.ResetPollAttempts = attempts
		o.ResetPollInterval = interval
	}
}

func WithReleasePollAttempts(attempts int) Opt {
	return func(o *Opts) {
		o.ReleasePollAttempts = attempts
	}
}

func WithLinkPollInterval(d time.Duration) Opt {
	return func(o *Opts) {
		o.LinkPollInterval = d
	}
}

// WithMaxFramesPerCall bounds the frames one ServiceInterrupts call drains.
func WithMaxFramesPerCall(n int) Opt {
	return func(o *Opts) {
		o.MaxFramesPerCall = n
	}
}

func WithLogger(l *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = l
	}
}

// WithFrameHandler makes ServiceInterrupts drain the RX queue into h.
// h runs without the device lock held.
func WithFrameHandler(h func(*Frame)) Opt {
	return func(o *Opts) {
		o.FrameHandler = h
	}
}

func WithLinkHandler(h func(LinkState)) Opt {
	return func(o *Opts) {
		o.LinkHandler = h
	}
}

func WithTxDoneHandler(h func(TxStatus)) Opt {
	return func(o *Opts) {
		o.TxDoneHandler = h
	}
}

// Stats are counters kept by the driver since New.
type Stats struct {
	Transactions  uint64 `yaml:"transactions"`
	RxBursts      uint64 `yaml:"rx_bursts"`
	TxBursts      uint64 `yaml:"tx_bursts"`
	RxFrames      uint64 `yaml:"rx_frames"`
	RxBytes       uint64 `yaml:"rx_bytes"`
	RxDropped     uint64 `yaml:"rx_dropped"`
	RxFCSErrors   uint64 `yaml:"rx_fcs_errors"`
	RxOverruns    uint64 `yaml:"rx_overruns"`
	TxFrames      uint64 `yaml:"tx_frames"`
	TxBytes       uint64 `yaml:"tx_bytes"`
	TxBufferFull  uint64 `yaml:"tx_buffer_full"`
	TxCollisions  uint64 `yaml:"tx_collisions"`
	SPIBusErrors  uint64 `yaml:"spi_bus_errors"`
	LinkChanges   uint64 `yaml:"link_changes"`
	Desyncs       uint64 `yaml:"desyncs"`
	Recoveries    uint64 `yaml:"recoveries"`
	ServiceCalls  uint64 `yaml:"service_calls"`
	IdleInterrupt uint64 `yaml:"idle_interrupts"`
}

// ChipInfo identifies the controller and its embedded PHY.
type ChipInfo struct {
	Family   uint8  `yaml:"family"`
	Chip     uint8  `yaml:"chip"`
	Revision uint8  `yaml:"revision"`
	PHYID    uint32 `yaml:"phy_id"`
}

// Device drives a KSZ8851SNL over an SPI device.
// Typical usage:
//
//	d := ksz8851.New(bus)
//	err := d.Reset(ctx)
//	err = d.Configure(ctx, ksz8851.DefaultConfig(mac))
//	id, err := d.Transmit(ctx, frame)
//
// Every exported method takes the device lock, so at most one SPI
// transaction is in flight at a time.
type Device struct {
	mx   sync.Mutex
	bus  ethspi.SPIDevice
	opts Opts
	log  *slog.Logger
	fifo chan fifoToken

	state  lifecycle
	config Config
	ier    IRQ
	rxqcr  uint16 // SDA is write only, the last written value is kept here
	txcr   uint16
	rxcr1  uint16

	rxState   rxState
	rxPending int
	rxBuf     []byte
	txBuf     []byte
	nextID    uint8
	regBuf    [2]byte

	mdio mdioBridge
	phy  phy.Device
	link LinkState

	stats Stats
}

func New(bus ethspi.SPIDevice, opts ...Opt) *Device {
	config := Opts{
		ResetHold:           10 * time.Millisecond,
		ResetPollAttempts:   10,
		ResetPollInterval:   time.Millisecond,
		ReleasePollAttempts: 100,
		LinkPollInterval:    50 * time.Millisecond,
		MaxFramesPerCall:    8,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxFramesPerCall < 1 {
		config.MaxFramesPerCall = 1
	}
	d := &Device{
		bus:   bus,
		opts:  config,
		log:   config.Logger.With(slog.String("chip", "ksz8851")),
		fifo:  make(chan fifoToken, 1),
		rxBuf: make([]byte, rxBurstLen(maxRxByteCount)),
		txBuf: make([]byte, txBurstLen(MaxFrameLen)),
	}
	d.fifo <- fifoToken{owner: d}
	d.mdio.d = d
	// the port 1 PHY answers at a fixed address on the internal bridge
	d.phy.ConfigureAs22(&d.mdio, 0)
	return d
}

// Reset performs a global soft reset, verifies the chip identity and memory
// self test and programs the queue management baseline. Configure must be
// called afterwards.
func (d *Device) Reset(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.reset(ctx)
}

func (d *Device) reset(ctx context.Context) error {
	d.state = stateUninit
	d.rxState = rxIdle
	d.rxPending = 0
	d.link = LinkState{}

	if err := d.write16(ctx, regGRR, grrGlobalReset); err != nil {
		return fmt.Errorf("ksz8851: reset assert: %w", err)
	}
	if err := sleep(ctx, d.opts.ResetHold); err != nil {
		return err
	}
	if err := d.write16(ctx, regGRR, 0); err != nil {
		return fmt.Errorf("ksz8851: reset release: %w", err)
	}
	if err := sleep(ctx, d.opts.ResetHold); err != nil {
		return err
	}
	// GRR is plain RW, the chip is ready once its SPI slave answers CIDER.
	// A floating or held bus reads all zeros or all ones.
	var cider uint16
	ready := false
	for i := 0; i < d.opts.ResetPollAttempts; i++ {
		var err error
		cider, err = d.read16(ctx, regCIDER)
		if err != nil {
			return fmt.Errorf("ksz8851: reset poll: %w", err)
		}
		if cider != 0 && cider != 0xFFFF {
			ready = true
			break
		}
		if err := sleep(ctx, d.opts.ResetPollInterval); err != nil {
			return err
		}
	}
	if !ready {
		return fmt.Errorf("%w after %d attempts", ErrResetTimeout, d.opts.ResetPollAttempts)
	}
	if fieldFamilyID.Get(cider) != familyKSZ8851 || fieldChipID.Get(cider) != chipKSZ8851 {
		return &ChipIDError{Value: cider}
	}
	mbir, err := d.read16(ctx, regMBIR)
	if err != nil {
		return fmt.Errorf("ksz8851: read self test: %w", err)
	}
	if mbir&(mbirTxFail|mbirRxFail) != 0 {
		return &SelfTestError{MBIR: mbir}
	}
	d.log.Debug("chip reset", slog.Int("revision", int(fieldRevisionID.Get(cider))))

	if err := d.baseline(ctx); err != nil {
		return fmt.Errorf("ksz8851: queue baseline: %w", err)
	}
	d.state = stateReset
	return nil
}

// baseline leaves the chip with interrupts masked, TX and RX disabled and
// the queue manager in the mode the FIFO layer expects.
func (d *Device) baseline(ctx context.Context) error {
	d.ier = 0
	d.txcr = txcrCRC | txcrPad
	d.rxcr1 = 0
	d.rxqcr = rxqcrCountThresh | rxqcrAutoDequeue
	writes := []struct {
		addr  uint8
		value uint16
	}{
		{regIER, 0},
		{regISR, uint16(irqAll)},
		{regTXFDPR, fdprAutoIncrement},
		{regRXFDPR, fdprAutoIncrement},
		{regTXCR, d.txcr},
		{regRXCR1, d.rxcr1},
		{regRXCR2, fieldRxBurstLength.Set(0, rxcr2SingleFrame)},
		{regRXFCTR, 1},
		{regRXQCR, d.rxqcr},
		// manual enqueue, auto enqueue is unreliable on this part
		{regTXQCR, 0},
	}
	for _, w := range writes {
		if err := d.write16(ctx, w.addr, w.value); err != nil {
			return err
		}
	}
	return nil
}

// Recover resets the chip and re-applies the last configuration.
func (d *Device) Recover(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.recover(ctx)
}

func (d *Device) recover(ctx context.Context) error {
	d.stats.Recoveries++
	configured := d.state == stateOperating
	cfg := d.config
	d.log.Warn("reinitializing controller")
	if err := d.reset(ctx); err != nil {
		return fmt.Errorf("ksz8851: recover: %w", err)
	}
	if !configured {
		return nil
	}
	if err := d.configure(ctx, cfg); err != nil {
		return fmt.Errorf("ksz8851: recover: %w", err)
	}
	return nil
}

// afterFault recovers from errors that leave the RX pointer in an unknown
// place. The original error is always returned.
func (d *Device) afterFault(ctx context.Context, err error) error {
	if !errors.Is(err, ErrFifoDesync) && !errors.Is(err, ErrReleaseTimeout) {
		return err
	}
	if errors.Is(err, ErrFifoDesync) {
		d.stats.Desyncs++
	}
	d.log.Error("rx queue out of sync", slog.Any("error", err))
	if rerr := d.recover(ctx); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}

func (d *Device) operating() error {
	if d.state != stateOperating {
		return ErrNotConfigured
	}
	return nil
}

// MAC reads back the station address from MARH/MARM/MARL.
func (d *Device) MAC(ctx context.Context) (MAC, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	var mac MAC
	for i, addr := range []uint8{regMARH, regMARM, regMARL} {
		v, err := d.read16(ctx, addr)
		if err != nil {
			return MAC{}, fmt.Errorf("ksz8851: read mac: %w", err)
		}
		mac[2*i] = byte(v >> 8)
		mac[2*i+1] = byte(v)
	}
	return mac, nil
}

// SetMAC programs the station address without touching the rest of the
// configuration.
func (d *Device) SetMAC(ctx context.Context, mac MAC) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.writeMAC(ctx, mac); err != nil {
		return err
	}
	d.config.MAC = mac
	return nil
}

func (d *Device) writeMAC(ctx context.Context, mac MAC) error {
	for i, addr := range []uint8{regMARH, regMARM, regMARL} {
		v := uint16(mac[2*i])<<8 | uint16(mac[2*i+1])
		if err := d.write16(ctx, addr, v); err != nil {
			return fmt.Errorf("ksz8851: write mac: %w", err)
		}
	}
	return nil
}

// SetLEDs turns the port LEDs on or off.
func (d *Device) SetLEDs(ctx context.Context, on bool) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	clr, set := p1mbcrDisableLED, uint16(0)
	if !on {
		clr, set = 0, p1mbcrDisableLED
	}
	if err := d.modifyReg(ctx, regP1MBCR, Width16, clr, set); err != nil {
		return fmt.Errorf("ksz8851: set leds: %w", err)
	}
	return nil
}

func (d *Device) ChipInfo(ctx context.Context) (ChipInfo, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	cider, err := d.read16(ctx, regCIDER)
	if err != nil {
		return ChipInfo{}, fmt.Errorf("ksz8851: read chip id: %w", err)
	}
	hi, err := d.read16(ctx, regPHY1IHR)
	if err != nil {
		return ChipInfo{}, fmt.Errorf("ksz8851: read phy id: %w", err)
	}
	lo, err := d.read16(ctx, regPHY1ILR)
	if err != nil {
		return ChipInfo{}, fmt.Errorf("ksz8851: read phy id: %w", err)
	}
	return ChipInfo{
		Family:   uint8(fieldFamilyID.Get(cider)),
		Chip:     uint8(fieldChipID.Get(cider)),
		Revision: uint8(fieldRevisionID.Get(cider)),
		PHYID:    uint32(hi)<<16 | uint32(lo),
	}, nil
}

func (d *Device) Stats() Stats {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.stats
}

// Config returns the configuration last applied with Configure.
func (d *Device) Config() Config {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.config
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
