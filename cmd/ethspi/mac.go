package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/ethspi/cmd/ethspi/command"
	"github.com/mklimuk/ethspi/cmd/ethspi/console"
	"github.com/mklimuk/ethspi/ksz8851"
)

var macCmd = cli.Command{
	Name:  "mac",
	Usage: "station address",
	Subcommands: cli.Commands{
		&macGetCmd,
		&macSetCmd,
	},
}

var macGetCmd = cli.Command{
	Name: "get",
	Action: func(c *cli.Context) error {
		d, bus, err := command.OpenDevice(c)
		if err != nil {
			return console.Exit(console.ExitUnavailable, "could not open device: %s", console.Red(err))
		}
		defer func() { _ = bus.Close() }()
		mac, err := d.MAC(command.Context(c))
		if err != nil {
			return console.Exit(console.ExitFailure, "mac read error: %s", console.Red(err))
		}
		fmt.Println(mac)
		return nil
	},
}

var macSetCmd = cli.Command{
	Name:      "set",
	ArgsUsage: "<address>",
	Usage:     "program the station address (lost on reset unless an EEPROM holds it)",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(console.ExitUsage, "expected 1 argument, got %d", c.NArg())
		}
		mac, err := ksz8851.ParseMAC(c.Args().Get(0))
		if err != nil {
			return console.Exit(console.ExitUsage, "invalid address: %v", err)
		}
		if mac.IsMulticast() {
			return console.Exit(console.ExitUsage, "%s is a group address", mac)
		}
		if !c.Bool("yes") {
			ok, err := console.Confirm(fmt.Sprintf("set station address to %s?", mac))
			if err != nil {
				return console.Exit(console.ExitFailure, "prompt error: %v", err)
			}
			if !ok {
				console.PInfof(console.PictoStop, "aborted")
				return nil
			}
		}
		d, bus, err := command.OpenDevice(c)
		if err != nil {
			return console.Exit(console.ExitUnavailable, "could not open device: %s", console.Red(err))
		}
		defer func() { _ = bus.Close() }()
		ctx := command.Context(c)
		if err := d.SetMAC(ctx, mac); err != nil {
			return console.Exit(console.ExitFailure, "mac write error: %s", console.Red(err))
		}
		back, err := d.MAC(ctx)
		if err != nil {
			return console.Exit(console.ExitFailure, "mac read error: %s", console.Red(err))
		}
		console.PInfof(console.PictoKey, "station address %s", console.Green(back))
		return nil
	},
}
