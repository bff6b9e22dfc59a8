package main

import (
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/ethspi/cmd/ethspi/command"
	"github.com/mklimuk/ethspi/cmd/ethspi/console"
)

var mcp2210Cmd = cli.Command{
	Name:  "mcp2210",
	Usage: "USB to SPI bridge maintenance",
	Subcommands: cli.Commands{
		&mcp2210StatusCmd,
		&mcp2210SettingsCmd,
		&mcp2210CancelCmd,
	},
}

func encode(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	if err := enc.Encode(v); err != nil {
		return console.Exit(console.ExitFailure, "encoding error: %s", console.Red(err))
	}
	return nil
}

var mcp2210StatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		a, err := command.OpenMCP2210(c)
		if err != nil {
			return console.Exit(console.ExitUnavailable, "adapter initialization error: %s", console.Red(err))
		}
		defer func() { _ = a.Close() }()
		status, err := a.Status(command.Context(c))
		if err != nil {
			return console.Exit(console.ExitFailure, "adapter communication error: %s", console.Red(err))
		}
		return encode(status)
	},
}

var mcp2210SettingsCmd = cli.Command{
	Name: "settings",
	Action: func(c *cli.Context) error {
		a, err := command.OpenMCP2210(c)
		if err != nil {
			return console.Exit(console.ExitUnavailable, "adapter initialization error: %s", console.Red(err))
		}
		defer func() { _ = a.Close() }()
		settings, err := a.SPISettings(command.Context(c))
		if err != nil {
			return console.Exit(console.ExitFailure, "adapter communication error: %s", console.Red(err))
		}
		return encode(settings)
	},
}

var mcp2210CancelCmd = cli.Command{
	Name:  "cancel",
	Usage: "abort a stuck transfer and release the bus",
	Action: func(c *cli.Context) error {
		a, err := command.OpenMCP2210(c)
		if err != nil {
			return console.Exit(console.ExitUnavailable, "adapter initialization error: %s", console.Red(err))
		}
		defer func() { _ = a.Close() }()
		status, err := a.Cancel(command.Context(c))
		if err != nil {
			return console.Exit(console.ExitFailure, "adapter communication error: %s", console.Red(err))
		}
		return encode(status)
	},
}
