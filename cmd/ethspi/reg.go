package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/ethspi/cmd/ethspi/command"
	"github.com/mklimuk/ethspi/cmd/ethspi/console"
	"github.com/mklimuk/ethspi/ksz8851"
)

var regCmd = cli.Command{
	Name:    "register",
	Aliases: []string{"reg"},
	Usage:   "inspect and modify chip registers",
	Subcommands: cli.Commands{
		&regReadCmd,
		&regWriteCmd,
		&regDumpCmd,
		&regListCmd,
	},
}

var widthFlag = &cli.IntFlag{Name: "width", Usage: "access width in bits, 8 or 16", Value: 16}

func accessWidth(c *cli.Context) (ksz8851.Width, error) {
	switch c.Int("width") {
	case 8:
		return ksz8851.Width8, nil
	case 16:
		return ksz8851.Width16, nil
	default:
		return 0, fmt.Errorf("unsupported width %d", c.Int("width"))
	}
}

var regReadCmd = cli.Command{
	Name:      "read",
	ArgsUsage: "<name|address>",
	Flags:     []cli.Flag{widthFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(console.ExitUsage, "expected 1 argument, got %d", c.NArg())
		}
		reg, err := ksz8851.LookupRegister(c.Args().Get(0))
		if err != nil {
			return console.Exit(console.ExitUsage, "%v", err)
		}
		w, err := accessWidth(c)
		if err != nil {
			return console.Exit(console.ExitUsage, "%v", err)
		}
		d, bus, err := command.OpenDevice(c)
		if err != nil {
			return console.Exit(console.ExitUnavailable, "could not open device: %s", console.Red(err))
		}
		defer func() { _ = bus.Close() }()
		v, err := d.ReadRegister(command.Context(c), reg.Addr, w)
		if err != nil {
			return console.Exit(console.ExitFailure, "read error: %s", console.Red(err))
		}
		printRegister(reg, v)
		return nil
	},
}

var regWriteCmd = cli.Command{
	Name:      "write",
	ArgsUsage: "<name|address> <value>",
	Flags: []cli.Flag{
		widthFlag,
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(console.ExitUsage, "expected 2 arguments, got %d", c.NArg())
		}
		reg, err := ksz8851.LookupRegister(c.Args().Get(0))
		if err != nil {
			return console.Exit(console.ExitUsage, "%v", err)
		}
		if !reg.Writable() {
			return console.Exit(console.ExitUsage, "register %s is read only", reg.Name)
		}
		v, err := strconv.ParseUint(c.Args().Get(1), 0, 16)
		if err != nil {
			return console.Exit(console.ExitUsage, "invalid value: %v", err)
		}
		w, err := accessWidth(c)
		if err != nil {
			return console.Exit(console.ExitUsage, "%v", err)
		}
		if !c.Bool("yes") {
			ok, err := console.Confirm(fmt.Sprintf("write %#04x to %s (%#02x)?", v, reg.Name, reg.Addr))
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
		if err := d.WriteRegister(ctx, reg.Addr, w, uint16(v)); err != nil {
			return console.Exit(console.ExitFailure, "write error: %s", console.Red(err))
		}
		back, err := d.ReadRegister(ctx, reg.Addr, w)
		if err != nil {
			return console.Exit(console.ExitFailure, "read back error: %s", console.Red(err))
		}
		printRegister(reg, back)
		return nil
	},
}

var regDumpCmd = cli.Command{
	Name:  "dump",
	Usage: "read every readable register",
	Action: func(c *cli.Context) error {
		d, bus, err := command.OpenDevice(c)
		if err != nil {
			return console.Exit(console.ExitUnavailable, "could not open device: %s", console.Red(err))
		}
		defer func() { _ = bus.Close() }()
		ctx := command.Context(c)
		w := tabwriter.NewWriter(os.Stdout, 8, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "ADDR\tNAME\tVALUE\tDESCRIPTION\n")
		for _, reg := range ksz8851.Registers() {
			if !readable(reg) {
				continue
			}
			v, err := d.ReadRegister(ctx, reg.Addr, reg.Width)
			if err != nil {
				_ = w.Flush()
				return console.Exit(console.ExitFailure, "read %s error: %s", reg.Name, console.Red(err))
			}
			_, _ = fmt.Fprintf(w, "%#02x\t%s\t%#04x\t%s\n", reg.Addr, reg.Name, v, reg.Desc)
		}
		_ = w.Flush()
		return nil
	},
}

var regListCmd = cli.Command{
	Name:  "ls",
	Usage: "list known registers without touching the chip",
	Action: func(c *cli.Context) error {
		w := tabwriter.NewWriter(os.Stdout, 8, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "ADDR\tNAME\tFIELDS\tDESCRIPTION\n")
		for _, reg := range ksz8851.Registers() {
			_, _ = fmt.Fprintf(w, "%#02x\t%s\t%d\t%s\n", reg.Addr, reg.Name, len(reg.Fields), reg.Desc)
		}
		_ = w.Flush()
		return nil
	},
}

func readable(reg ksz8851.Register) bool {
	for _, f := range reg.Fields {
		if f.Access != ksz8851.WO {
			return true
		}
	}
	return false
}

func printRegister(reg ksz8851.Register, v uint16) {
	fmt.Printf("%s %s (%#02x) = %s\n", console.PictoPin, console.Bold(reg.Name), reg.Addr, console.White(fmt.Sprintf("%#04x", v)))
	w := tabwriter.NewWriter(os.Stdout, 8, 0, 1, ' ', 0)
	for _, f := range reg.Decode(v) {
		_, _ = fmt.Fprintf(w, "  %s\t[%d:%d]\t%s\t%#x\n", f.Name, f.Offset+f.Width-1, f.Offset, f.Access, f.Value)
	}
	_ = w.Flush()
}
