package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"
	gspi "gobot.io/x/gobot/v2/drivers/spi"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/mklimuk/ethspi"
	"github.com/mklimuk/ethspi/adapter"
	"github.com/mklimuk/ethspi/busctx"
	"github.com/mklimuk/ethspi/ksz8851"
	"github.com/mklimuk/ethspi/spi"
)

const (
	AdapterMCP2210 = "mcp2210"
	AdapterPeriph  = "periph"
	AdapterNanoPi  = "nanopi"
	AdapterMock    = "mock"
)

// BusFlags select the transport. They are global so every command talks to
// the chip the same way.
var BusFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "adapter",
		Aliases: []string{"a"},
		Usage:   "spi transport: mcp2210, periph, nanopi or mock",
		Value:   AdapterMCP2210,
		EnvVars: []string{"ETHSPI_ADAPTER"},
	},
	&cli.StringFlag{
		Name:    "device",
		Usage:   "spidev port for periph (e.g. /dev/spidev0.0), empty picks the first one",
		EnvVars: []string{"ETHSPI_DEVICE"},
	},
	&cli.IntFlag{
		Name:  "bridge",
		Usage: "MCP2210 index from 'usb detect' when several are attached",
		Value: -1,
	},
	&cli.IntFlag{
		Name:  "bus",
		Usage: "spi bus number for nanopi",
	},
	&cli.IntFlag{
		Name:  "chip-select",
		Usage: "MCP2210 GP pin or nanopi chip select wired to CSN",
	},
	&cli.Int64Flag{
		Name:  "speed",
		Usage: "spi clock in Hz",
		Value: int64(spi.DefaultSpeed / physic.Hertz),
	},
	&cli.BoolFlag{
		Name:  "trace-rx",
		Usage: "with --verbose also dump bytes clocked in",
	},
	&cli.BoolFlag{
		Name:  "no-reset",
		Usage: "talk to the chip as it is, without the soft reset",
	},
	&cli.StringFlag{
		Name:  "reset-pin",
		Usage: "gpio driving RSTN, toggled before the soft reset",
	},
}

// Context returns the command context with the bus tracing switches set.
func Context(c *cli.Context) context.Context {
	ctx := busctx.SetVerbose(c.Context, c.Bool("verbose"))
	return busctx.SetTraceRx(ctx, c.Bool("trace-rx"))
}

type nopCloser struct {
	ethspi.SPIDevice
}

func (nopCloser) Close() error { return nil }

func (b nopCloser) Unwrap() ethspi.SPIDevice { return b.SPIDevice }

// OpenBus opens the transport selected with --adapter.
func OpenBus(c *cli.Context) (ethspi.SPIBus, error) {
	switch c.String("adapter") {
	case AdapterMCP2210:
		a, err := OpenMCP2210(c)
		if err != nil {
			return nil, err
		}
		return a, nil
	case AdapterPeriph:
		bus, err := spi.NewGenericBus(c.String("device"), physic.Frequency(c.Int64("speed"))*physic.Hertz)
		if err != nil {
			return nil, err
		}
		return bus, nil
	case AdapterNanoPi:
		bus := spi.NewGobotBus(nanopi.NewNeoAdaptor(),
			gspi.WithBusNumber(c.Int("bus")),
			gspi.WithChipNumber(c.Int("chip-select")),
			gspi.WithSpeed(c.Int64("speed")),
		)
		if err := bus.Start(); err != nil {
			return nil, err
		}
		return bus, nil
	case AdapterMock:
		return nopCloser{ksz8851.NewMockChip(ksz8851.WithMACLoopback())}, nil
	default:
		return nil, fmt.Errorf("unknown adapter %q", c.String("adapter"))
	}
}

// OpenMCP2210 opens the USB bridge picked with --bridge.
func OpenMCP2210(c *cli.Context) (*adapter.MCP2210, error) {
	a := adapter.NewMCP2210(
		adapter.WithBitRate(uint32(c.Int64("speed"))),
		adapter.WithChipSelect(c.Int("chip-select")),
		adapter.WithDeviceIndex(c.Int("bridge")),
	)
	if err := a.Open(Context(c)); err != nil {
		return nil, err
	}
	return a, nil
}

// OpenDevice opens the bus and resets the chip.
func OpenDevice(c *cli.Context, opts ...ksz8851.Opt) (*ksz8851.Device, ethspi.SPIBus, error) {
	if err := hardReset(c.String("reset-pin")); err != nil {
		return nil, nil, err
	}
	bus, err := OpenBus(c)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open %s bus: %w", c.String("adapter"), err)
	}
	opts = append([]ksz8851.Opt{ksz8851.WithLogger(slog.Default())}, opts...)
	d := ksz8851.New(bus, opts...)
	if c.Bool("no-reset") {
		return d, bus, nil
	}
	if err := d.Reset(Context(c)); err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	return d, bus, nil
}

// OpenConfigured opens the device and brings it to the operating state with
// the file passed in --config. Without one the default configuration is
// applied to the address the chip already holds.
func OpenConfigured(c *cli.Context, opts ...ksz8851.Opt) (*ksz8851.Device, ethspi.SPIBus, error) {
	d, bus, err := OpenDevice(c, opts...)
	if err != nil {
		return nil, nil, err
	}
	ctx := Context(c)
	var cfg ksz8851.Config
	if path := c.String("config"); path != "" {
		cfg, err = ksz8851.LoadConfig(path)
	} else {
		var mac ksz8851.MAC
		mac, err = d.MAC(ctx)
		cfg = ksz8851.DefaultConfig(mac)
	}
	if err == nil {
		err = d.Configure(ctx, cfg)
	}
	if err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	return d, bus, nil
}

// hardReset pulses RSTN low. The chip needs 10ms in reset.
func hardReset(name string) error {
	if name == "" {
		return nil
	}
	if err := initHost(); err != nil {
		return err
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return fmt.Errorf("unknown gpio %q", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("could not drive %s low: %w", name, err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := pin.Out(gpio.High); err != nil {
		return fmt.Errorf("could not release %s: %w", name, err)
	}
	time.Sleep(time.Millisecond)
	return nil
}

func initHost() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("could not init host: %w", err)
	}
	return nil
}
