package spi

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/mklimuk/ethspi"
	"github.com/mklimuk/ethspi/busctx"
)

var _ ethspi.SPIBus = &GenericBus{}

// DefaultSpeed is safe for the KSZ8851SNL on short wires; the chip is rated
// for 40 MHz.
const DefaultSpeed = 10 * physic.MegaHertz

// GenericBus is an SPI device behind a Linux spidev node, opened through
// periph.io. Each Transaction keeps chip select asserted across segments.
type GenericBus struct {
	port spi.PortCloser
	conn spi.Conn
}

// NewGenericBus opens dev ("" picks the first registered port, otherwise a
// name such as "/dev/spidev0.0" or "SPI0.0") in mode 0 at speed.
func NewGenericBus(dev string, speed physic.Frequency) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", slog.String("driver", driver.String()))
	}
	port, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open spi port %q: %w", dev, err)
	}
	if speed == 0 {
		speed = DefaultSpeed
	}
	conn, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("could not connect to spi port %q: %w", dev, err)
	}
	return &GenericBus{
		port: port,
		conn: conn,
	}, nil
}

func (b *GenericBus) Transaction(ctx context.Context, segments ...ethspi.Segment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	packets := packetsFor(segments)
	if len(packets) == 0 {
		return nil
	}
	if busctx.IsVerbose(ctx) {
		slog.Debug("spi transaction", slog.Int("packets", len(packets)), slog.Int("bytes", ethspi.Len(segments)))
	}
	if err := b.conn.TxPackets(packets); err != nil {
		return fmt.Errorf("could not transfer on spi bus: %w", err)
	}
	return nil
}

// packetsFor maps segments to spidev packets. Chip select is held between
// packets and released after the last one.
func packetsFor(segments []ethspi.Segment) []spi.Packet {
	packets := make([]spi.Packet, 0, len(segments))
	for _, s := range segments {
		if len(s.W) == 0 && len(s.R) == 0 {
			continue
		}
		packets = append(packets, spi.Packet{W: s.W, R: s.R, KeepCS: true})
	}
	if n := len(packets); n > 0 {
		packets[n-1].KeepCS = false
	}
	return packets
}

func (b *GenericBus) String() string {
	return b.conn.String()
}

func (b *GenericBus) Close() error {
	return b.port.Close()
}
