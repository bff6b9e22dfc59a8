package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/ethspi"
	"github.com/mklimuk/ethspi/busctx"
	"github.com/mklimuk/ethspi/cmd/ethspi/console"
)

const VendorID = 0x04D8
const ProductID = 0x00DE

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")
var ErrTransferStalled = errors.New("spi transfer made no progress")

var _ ethspi.SPIBus = &MCP2210{}

const (
	cmdStatus      = 0x10
	cmdCancel      = 0x11
	cmdSetSPI      = 0x40
	cmdGetSPI      = 0x41
	cmdTransferSPI = 0x42
)

const (
	statusOK             = 0x00
	statusBusUnavailable = 0xF7
	statusInProgress     = 0xF8
)

// SPI engine state reported with every transfer response
const (
	engineFinished = 0x10
	engineStarted  = 0x20
	enginePending  = 0x30
)

const (
	reportLen = 64
	maxChunk  = 60
	// the MCP2210 has 9 general purpose pins, any of them can drive CS
	gpioPins = 9
)

// hidDevice is the part of hid.Device the adapter talks to.
type hidDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

type MCP2210SPISettings struct {
	BitRate         uint32 `yaml:"bit_rate"`
	IdleCS          uint16 `yaml:"idle_cs"`
	ActiveCS        uint16 `yaml:"active_cs"`
	CSToDataDelay   uint16 `yaml:"cs_to_data_delay"`
	DataToCSDelay   uint16 `yaml:"data_to_cs_delay"`
	ByteDelay       uint16 `yaml:"byte_delay"`
	TransactionSize uint16 `yaml:"transaction_size"`
	Mode            byte   `yaml:"mode"`
}

type BusOwner byte

const (
	BusOwnerNone     BusOwner = 0x00
	BusOwnerUSB      BusOwner = 0x01
	BusOwnerExternal BusOwner = 0x02
)

func (o BusOwner) String() string {
	switch o {
	case BusOwnerNone:
		return "none"
	case BusOwnerUSB:
		return "usb"
	case BusOwnerExternal:
		return "external"
	default:
		return fmt.Sprintf("unknown(%#x)", byte(o))
	}
}

func (o BusOwner) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

type MCP2210Status struct {
	ExternalRequestPending bool     `yaml:"external_request_pending"`
	BusOwner               BusOwner `yaml:"bus_owner"`
	PasswordAttempts       int      `yaml:"password_attempts"`
	PasswordGuessed        bool     `yaml:"password_guessed"`
}

type MCP2210Opts struct {
	BitRate      uint32
	ChipSelect   int
	Mode         byte
	DeviceIndex  int
	ResponseWait time.Duration
	MaxStalls    int
}

type MCP2210Opt func(*MCP2210Opts)

// WithBitRate sets the SPI clock in bits per second.
func WithBitRate(bps uint32) MCP2210Opt {
	return func(o *MCP2210Opts) {
		o.BitRate = bps
	}
}

// WithChipSelect picks the GP pin wired to the chip's CSN. The pin must be
// designated as chip select in the bridge's power-up settings.
func WithChipSelect(pin int) MCP2210Opt {
	return func(o *MCP2210Opts) {
		o.ChipSelect = pin
	}
}

// WithDeviceIndex selects one of several attached bridges, in enumeration
// order.
func WithDeviceIndex(i int) MCP2210Opt {
	return func(o *MCP2210Opts) {
		o.DeviceIndex = i
	}
}

func WithResponseWait(d time.Duration) MCP2210Opt {
	return func(o *MCP2210Opts) {
		o.ResponseWait = d
	}
}

// WithMaxStalls bounds the consecutive transfer reports that move no data.
func WithMaxStalls(n int) MCP2210Opt {
	return func(o *MCP2210Opts) {
		o.MaxStalls = n
	}
}

// MCP2210 is a Microchip USB to SPI bridge. It implements ethspi.SPIBus:
// chip select stays active for the whole transaction, which the bridge
// splits into 60 byte reports.
type MCP2210 struct {
	mx       sync.Mutex
	opts     MCP2210Opts
	dev      hidDevice
	request  []byte
	response []byte
	tx       []byte
	rx       []byte
	settings MCP2210SPISettings
}

func NewMCP2210(opts ...MCP2210Opt) *MCP2210 {
	config := MCP2210Opts{
		BitRate:     6_000_000,
		ChipSelect:  0,
		DeviceIndex: -1,
		MaxStalls:   100,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &MCP2210{
		opts:     config,
		request:  make([]byte, reportLen),
		response: make([]byte, reportLen),
	}
}

// Open finds the bridge on USB, opens it and loads the SPI settings.
func (d *MCP2210) Open(ctx context.Context) error {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return fmt.Errorf("MCP2210 device not found")
	}
	idx := d.opts.DeviceIndex
	if idx < 0 {
		if len(devs) > 1 {
			return fmt.Errorf("ambiguous device identification: %d bridges attached", len(devs))
		}
		idx = 0
	}
	if idx >= len(devs) {
		return fmt.Errorf("no device with id %d", idx)
	}
	dev, err := devs[idx].Open()
	if err != nil {
		return fmt.Errorf("error opening device: %w", err)
	}
	return d.attach(ctx, dev)
}

func (d *MCP2210) attach(ctx context.Context, dev hidDevice) error {
	if d.opts.ChipSelect < 0 || d.opts.ChipSelect >= gpioPins {
		return fmt.Errorf("invalid chip select pin GP%d", d.opts.ChipSelect)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.dev = dev
	idle := uint16(1)<<gpioPins - 1
	d.settings = MCP2210SPISettings{
		BitRate:  d.opts.BitRate,
		IdleCS:   idle,
		ActiveCS: idle &^ (1 << d.opts.ChipSelect),
		Mode:     d.opts.Mode,
	}
	return d.writeSettings(ctx, d.settings)
}

func (d *MCP2210) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.dev == nil {
		return nil
	}
	err := d.dev.Close()
	d.dev = nil
	return err
}

// Transaction clocks all segments under one chip select. The bridge is full
// duplex: bytes clocked in during write legs are dropped and read legs clock
// out zeros.
func (d *MCP2210) Transaction(ctx context.Context, segments ...ethspi.Segment) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.dev == nil {
		return fmt.Errorf("MCP2210 not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n := ethspi.Len(segments)
	if n == 0 {
		return nil
	}
	if n > 0xFFFF {
		return fmt.Errorf("transaction of %d bytes exceeds the bridge limit", n)
	}
	if cap(d.tx) < n {
		d.tx = make([]byte, n)
		d.rx = make([]byte, n)
	}
	tx := ethspi.Flatten(d.tx[:0], segments)
	rx := d.rx[:n]
	if d.settings.TransactionSize != uint16(n) {
		s := d.settings
		s.TransactionSize = uint16(n)
		if err := d.writeSettings(ctx, s); err != nil {
			return err
		}
	}
	if err := d.transfer(ctx, tx, rx); err != nil {
		return err
	}
	ethspi.Scatter(rx, segments)
	return nil
}

func (d *MCP2210) transfer(ctx context.Context, tx, rx []byte) error {
	sent, got, stalls := 0, 0, 0
	for got < len(rx) {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := tx[sent:min(sent+maxChunk, len(tx))]
		d.resetBuffers()
		d.request[0] = cmdTransferSPI
		d.request[1] = byte(len(chunk))
		copy(d.request[4:], chunk)
		if err := d.send(ctx); err != nil {
			return fmt.Errorf("spi transfer at byte %d failed: %w", sent, err)
		}
		switch d.response[1] {
		case statusOK:
			sent += len(chunk)
		case statusInProgress:
			console.Debug("bridge busy, repeating report")
		case statusBusUnavailable:
			return ethspi.ErrBusBusy
		default:
			return fmt.Errorf("%w: transfer status %#x", ErrCommandFailed, d.response[1])
		}
		received := int(d.response[2])
		if received > maxChunk || got+received > len(rx) {
			return fmt.Errorf("bridge returned %d bytes with %d of %d received", received, got, len(rx))
		}
		copy(rx[got:], d.response[4:4+received])
		got += received
		if d.response[3] == engineFinished && got < len(rx) && sent == len(tx) {
			return fmt.Errorf("bridge finished after %d of %d bytes", got, len(rx))
		}
		if len(chunk) == 0 && received == 0 || d.response[1] != statusOK {
			stalls++
			if stalls > d.opts.MaxStalls {
				return fmt.Errorf("%w after %d reports", ErrTransferStalled, stalls)
			}
			continue
		}
		stalls = 0
	}
	return nil
}

func (d *MCP2210) Status(ctx context.Context) (*MCP2210Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return &MCP2210Status{
		ExternalRequestPending: d.response[2] == 0x00,
		BusOwner:               BusOwner(d.response[3]),
		PasswordAttempts:       int(d.response[4]),
		PasswordGuessed:        d.response[5] == 0x01,
	}, nil
}

// Cancel aborts the current SPI transfer and releases the bus.
func (d *MCP2210) Cancel(ctx context.Context) (*MCP2210Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdCancel
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("cancel request failed: %w", err)
	}
	return &MCP2210Status{
		ExternalRequestPending: d.response[2] == 0x00,
		BusOwner:               BusOwner(d.response[3]),
		PasswordAttempts:       int(d.response[4]),
		PasswordGuessed:        d.response[5] == 0x01,
	}, nil
}

// SPISettings reads the transfer settings currently active in the bridge.
func (d *MCP2210) SPISettings(ctx context.Context) (MCP2210SPISettings, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGetSPI
	if err := d.send(ctx); err != nil {
		return MCP2210SPISettings{}, fmt.Errorf("get SPI settings command failed: %w", err)
	}
	if d.response[1] != statusOK {
		return MCP2210SPISettings{}, ErrCommandUnsupported
	}
	return decodeSettings(d.response[4:]), nil
}

func (d *MCP2210) writeSettings(ctx context.Context, s MCP2210SPISettings) error {
	d.resetBuffers()
	d.request[0] = cmdSetSPI
	encodeSettings(d.request[4:], s)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("set SPI settings command failed: %w", err)
	}
	switch d.response[1] {
	case statusOK:
		d.settings = s
		return nil
	case statusBusUnavailable, statusInProgress:
		return ethspi.ErrBusBusy
	default:
		return ErrCommandFailed
	}
}

func encodeSettings(buf []byte, s MCP2210SPISettings) {
	binary.LittleEndian.PutUint32(buf[0:4], s.BitRate)
	binary.LittleEndian.PutUint16(buf[4:6], s.IdleCS)
	binary.LittleEndian.PutUint16(buf[6:8], s.ActiveCS)
	binary.LittleEndian.PutUint16(buf[8:10], s.CSToDataDelay)
	binary.LittleEndian.PutUint16(buf[10:12], s.DataToCSDelay)
	binary.LittleEndian.PutUint16(buf[12:14], s.ByteDelay)
	binary.LittleEndian.PutUint16(buf[14:16], s.TransactionSize)
	buf[16] = s.Mode
}

func decodeSettings(buf []byte) MCP2210SPISettings {
	return MCP2210SPISettings{
		BitRate:         binary.LittleEndian.Uint32(buf[0:4]),
		IdleCS:          binary.LittleEndian.Uint16(buf[4:6]),
		ActiveCS:        binary.LittleEndian.Uint16(buf[6:8]),
		CSToDataDelay:   binary.LittleEndian.Uint16(buf[8:10]),
		DataToCSDelay:   binary.LittleEndian.Uint16(buf[10:12]),
		ByteDelay:       binary.LittleEndian.Uint16(buf[12:14]),
		TransactionSize: binary.LittleEndian.Uint16(buf[14:16]),
		Mode:            buf[16],
	}
}

func (d *MCP2210) send(ctx context.Context) error {
	if d.dev == nil {
		return fmt.Errorf("MCP2210 not open")
	}
	verbose := busctx.IsVerbose(ctx)
	if verbose {
		console.Printf("sending message to adapter:\n%s\n", hex.Dump(d.request))
	}
	n, err := d.dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportLen {
		return fmt.Errorf("short write: %d", n)
	}
	if d.opts.ResponseWait > 0 {
		time.Sleep(d.opts.ResponseWait)
	}
	n, err = d.dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportLen {
		return fmt.Errorf("short read: %d", n)
	}
	if d.response[0] != d.request[0] {
		return fmt.Errorf("response to command %#x answers %#x", d.request[0], d.response[0])
	}
	if verbose && busctx.IsTracingRx(ctx) {
		console.Printf("read message from adapter:\n%s\n", hex.Dump(d.response))
	}
	return nil
}

func (d *MCP2210) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
