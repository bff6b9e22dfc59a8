package command

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/mklimuk/ethspi"
	"github.com/mklimuk/ethspi/cmd/ethspi/console"
	"github.com/mklimuk/ethspi/ksz8851"
)

var MonitorCmd = &cli.Command{
	Name:  "monitor",
	Usage: "service chip interrupts and print received frames",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "irq-pin", Usage: "gpio wired to INTRN, polling is used when empty"},
		&cli.DurationFlag{Name: "interval", Usage: "interrupt wait timeout or poll period", Value: 100 * time.Millisecond},
		&cli.DurationFlag{Name: "duration", Usage: "stop after this long, 0 runs until interrupted"},
		&cli.BoolFlag{Name: "dump", Usage: "hex dump every frame"},
	},
	Action: func(c *cli.Context) error {
		dump := c.Bool("dump")
		d, bus, err := OpenConfigured(c,
			ksz8851.WithFrameHandler(func(f *ksz8851.Frame) {
				console.PInfof(console.PictoInbox, "%s", describeFrame(f.Data))
				if dump {
					console.Print(hex.Dump(f.Data))
				}
			}),
			ksz8851.WithLinkHandler(func(st ksz8851.LinkState) {
				console.Print(console.Link("link "+st.String(), st.Up))
			}),
		)
		if err != nil {
			return console.Exit(console.ExitUnavailable, "could not open device: %v", err)
		}
		defer func() { _ = bus.Close() }()

		line, err := interruptLine(c.String("irq-pin"), bus)
		if err != nil {
			return console.Exit(console.ExitFailure, "interrupt line error: %v", err)
		}
		ctx, stop := signal.NotifyContext(Context(c), os.Interrupt)
		defer stop()
		if limit := c.Duration("duration"); limit > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}
		err = monitor(ctx, d, line, c.Duration("interval"))
		stats, _ := yaml.Marshal(d.Stats())
		fmt.Printf("\n%s\n", stats)
		if err != nil {
			return console.Exit(console.ExitFailure, "monitor stopped: %v", err)
		}
		return nil
	},
}

// polling treats every timeout as a possible interrupt.
type polling struct {
	interval time.Duration
}

func (p polling) WaitForEdge(timeout time.Duration) bool {
	time.Sleep(min(p.interval, timeout))
	return true
}

// interruptLine picks the INTRN gpio, the bus itself when it can signal
// interrupts, or polling.
func interruptLine(name string, bus ethspi.SPIBus) (ethspi.InterruptLine, error) {
	if name == "" {
		if line, ok := bus.(interface{ Unwrap() ethspi.SPIDevice }); ok {
			if irq, ok := line.Unwrap().(ethspi.InterruptLine); ok {
				return irq, nil
			}
		}
		return polling{interval: 100 * time.Millisecond}, nil
	}
	if err := initHost(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("unknown gpio %q", name)
	}
	// INTRN is active low and open drain
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("could not configure %s: %w", name, err)
	}
	return pin, nil
}

func monitor(ctx context.Context, d *ksz8851.Device, line ethspi.InterruptLine, wait time.Duration) error {
	for ctx.Err() == nil {
		if !line.WaitForEdge(wait) {
			continue
		}
		for {
			ev, err := d.ServiceInterrupts(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if ev.RxOverrun {
				console.Warn("rx queue overrun")
			}
			if ev.SPIBusError {
				console.Warn("chip reported an spi bus error")
			}
			if ev.RxBacklog == 0 {
				break
			}
		}
	}
	return nil
}
