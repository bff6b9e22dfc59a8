package main

import (
	"fmt"
	"os"
	"time"

	"github.com/soypat/lneto/phy"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/ethspi/cmd/ethspi/command"
	"github.com/mklimuk/ethspi/cmd/ethspi/console"
)

var linkCmd = cli.Command{
	Name:  "link",
	Usage: "port 1 PHY link control",
	Subcommands: cli.Commands{
		&linkStatusCmd,
		&linkForceCmd,
		&linkAutonegCmd,
		&linkResetCmd,
	},
}

var linkStatusCmd = cli.Command{
	Name: "status",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "wait", Usage: "wait this long for the link to come up"},
	},
	Action: func(c *cli.Context) error {
		d, bus, err := command.OpenDevice(c)
		if err != nil {
			return console.Exit(console.ExitUnavailable, "could not open device: %s", console.Red(err))
		}
		defer func() { _ = bus.Close() }()
		ctx := command.Context(c)
		st, err := d.LinkStatus(ctx)
		if wait := c.Duration("wait"); err == nil && wait > 0 && !st.Up {
			st, err = d.WaitLink(ctx, wait)
			if err != nil {
				console.Warnf("%v", err)
				err = nil
			}
		}
		if err != nil {
			return console.Exit(console.ExitFailure, "link status error: %s", console.Red(err))
		}
		console.Print(console.Link("link "+st.String(), st.Up))
		if st.AutoNegotiated {
			_ = yaml.NewEncoder(os.Stdout).Encode(map[string]any{
				"partner_advertisement": fmt.Sprintf("%#04x", uint16(st.Partner)),
			})
		}
		return nil
	},
}

func parseLinkMode(speed, duplex string) (phy.LinkMode, error) {
	full := false
	switch duplex {
	case "full", "fdx", "f":
		full = true
	case "half", "hdx", "h":
	default:
		return phy.LinkDown, fmt.Errorf("invalid duplex %q", duplex)
	}
	switch speed {
	case "10":
		if full {
			return phy.Link10FDX, nil
		}
		return phy.Link10HDX, nil
	case "100":
		if full {
			return phy.Link100FDX, nil
		}
		return phy.Link100HDX, nil
	default:
		return phy.LinkDown, fmt.Errorf("invalid speed %q, the chip does 10 or 100", speed)
	}
}

var linkForceCmd = cli.Command{
	Name:      "force",
	ArgsUsage: "<10|100> <half|full>",
	Usage:     "disable auto-negotiation and fix speed and duplex",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(console.ExitUsage, "expected 2 arguments, got %d", c.NArg())
		}
		mode, err := parseLinkMode(c.Args().Get(0), c.Args().Get(1))
		if err != nil {
			return console.Exit(console.ExitUsage, "%v", err)
		}
		d, bus, err := command.OpenDevice(c)
		if err != nil {
			return console.Exit(console.ExitUnavailable, "could not open device: %s", console.Red(err))
		}
		defer func() { _ = bus.Close() }()
		if err := d.ForceLink(command.Context(c), mode); err != nil {
			return console.Exit(console.ExitFailure, "force link error: %s", console.Red(err))
		}
		console.PInfof(console.PictoLink, "link forced to %s Mbps %s duplex", c.Args().Get(0), c.Args().Get(1))
		return nil
	},
}

var linkAutonegCmd = cli.Command{
	Name:  "autoneg",
	Usage: "restart auto-negotiation",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "wait", Usage: "wait for the link to come up", Value: 5 * time.Second},
	},
	Action: func(c *cli.Context) error {
		d, bus, err := command.OpenDevice(c)
		if err != nil {
			return console.Exit(console.ExitUnavailable, "could not open device: %s", console.Red(err))
		}
		defer func() { _ = bus.Close() }()
		ctx := command.Context(c)
		if err := d.RestartAutoNegotiation(ctx); err != nil {
			return console.Exit(console.ExitFailure, "auto-negotiation error: %s", console.Red(err))
		}
		st, err := d.WaitLink(ctx, c.Duration("wait"))
		if err != nil {
			return console.Exit(console.ExitFailure, "link did not come up: %s", console.Red(err))
		}
		console.PInfof(console.PictoLink, "link %s", console.Green(st))
		return nil
	},
}

var linkResetCmd = cli.Command{
	Name:  "reset",
	Usage: "reset the PHY",
	Action: func(c *cli.Context) error {
		d, bus, err := command.OpenDevice(c)
		if err != nil {
			return console.Exit(console.ExitUnavailable, "could not open device: %s", console.Red(err))
		}
		defer func() { _ = bus.Close() }()
		if err := d.ResetPHY(command.Context(c)); err != nil {
			return console.Exit(console.ExitFailure, "phy reset error: %s", console.Red(err))
		}
		console.PInfof(console.PictoLink, "phy reset")
		return nil
	},
}
