package main

import (
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/ethspi/cmd/ethspi/command"
	"github.com/mklimuk/ethspi/cmd/ethspi/console"
	"github.com/mklimuk/ethspi/ksz8851"
)

type probeReport struct {
	Chip ksz8851.ChipInfo  `yaml:"chip"`
	MAC  ksz8851.MAC       `yaml:"mac"`
	Link ksz8851.LinkState `yaml:"link"`
}

var probeCmd = cli.Command{
	Name:  "probe",
	Usage: "reset the chip and report its identity",
	Action: func(c *cli.Context) error {
		d, bus, err := command.OpenDevice(c)
		if err != nil {
			return console.Exit(console.ExitFailure, "probe failed: %s", console.Red(err))
		}
		defer func() { _ = bus.Close() }()
		ctx := command.Context(c)
		var report probeReport
		if report.Chip, err = d.ChipInfo(ctx); err != nil {
			return console.Exit(console.ExitFailure, "chip id error: %s", console.Red(err))
		}
		if report.MAC, err = d.MAC(ctx); err != nil {
			return console.Exit(console.ExitFailure, "mac read error: %s", console.Red(err))
		}
		if report.Link, err = d.LinkStatus(ctx); err != nil {
			return console.Exit(console.ExitFailure, "link status error: %s", console.Red(err))
		}
		console.PInfof(console.PictoChip, "KSZ8851 found on %s bus", console.Green(c.String("adapter")))
		enc := yaml.NewEncoder(os.Stdout)
		if err := enc.Encode(report); err != nil {
			return console.Exit(console.ExitFailure, "encoding error: %s", console.Red(err))
		}
		return nil
	},
}
