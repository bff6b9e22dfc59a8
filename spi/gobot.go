package spi

import (
	"context"
	"fmt"

	"gobot.io/x/gobot/v2/drivers/spi"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/ethspi"
)

var _ ethspi.SPIBus = &GobotBus{}

// gobotOps is the subset of the gobot SPI connection the bus needs.
// ReadCommandData clocks out command and then clocks in data under one chip
// select.
type gobotOps interface {
	ReadCommandData(command []byte, data []byte) error
	WriteBytes(data []byte) error
}

// GobotBus runs transactions through a gobot SPI driver, for boards where
// gobot provides the adaptor (NanoPi and friends).
//
// Example usage:
//
//	adaptor := nanopi.NewNeoAdaptor()
//	bus := spi.NewGobotBus(adaptor, gspi.WithBusNumber(0))
//	if err := bus.Start(); err != nil { log.Fatal(err) }
//	dev := ksz8851.New(bus)
type GobotBus struct {
	*spi.Driver
	ops gobotOps
	buf []byte
}

// NewGobotBus binds to a gobot SPI connector. The chip needs mode 0; the
// speed defaults to 10 MHz unless an option sets it.
func NewGobotBus(adaptor spi.Connector, opts ...func(spi.Config)) *GobotBus {
	d := spi.NewDriver(adaptor, "ksz8851", opts...)
	d.SetMode(0)
	if d.GetSpeedOrDefault(0) == 0 {
		d.SetSpeed(int64(DefaultSpeed / physic.Hertz))
	}
	return &GobotBus{Driver: d}
}

// Start connects the driver and checks the connection supports the
// operations the bus uses.
func (b *GobotBus) Start() error {
	if err := b.Driver.Start(); err != nil {
		return fmt.Errorf("spi driver start error: %w", err)
	}
	ops, ok := b.Driver.Connection().(gobotOps)
	if !ok {
		return fmt.Errorf("spi connection does not support required operations")
	}
	b.ops = ops
	return nil
}

// Transaction sends every write segment and then reads every read segment.
// gobot has no scatter support, so the reads land in one buffer first.
func (b *GobotBus) Transaction(ctx context.Context, segments ...ethspi.Segment) error {
	if b.ops == nil {
		return fmt.Errorf("spi driver not started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w, reads, err := ethspi.Split(segments)
	if err != nil {
		return err
	}
	if len(reads) == 0 {
		if len(w) == 0 {
			return nil
		}
		return b.ops.WriteBytes(w)
	}
	n := 0
	for _, r := range reads {
		n += len(r.R)
	}
	if cap(b.buf) < n {
		b.buf = make([]byte, n)
	}
	data := b.buf[:n]
	if err := b.ops.ReadCommandData(w, data); err != nil {
		return fmt.Errorf("spi read error: %w", err)
	}
	off := 0
	for _, r := range reads {
		off += copy(r.R, data[off:])
	}
	return nil
}

func (b *GobotBus) Close() error {
	return b.Driver.Halt()
}
