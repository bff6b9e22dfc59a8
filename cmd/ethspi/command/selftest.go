package command

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/ethspi/cmd/ethspi/console"
	"github.com/mklimuk/ethspi/ksz8851"
)

type LoopbackResult struct {
	Size     int    `yaml:"size"`
	FrameID  uint8  `yaml:"frame_id"`
	Received bool   `yaml:"received"`
	Match    bool   `yaml:"match"`
	Status   string `yaml:"status,omitempty"`
}

func (r LoopbackResult) OK() bool { return r.Received && r.Match }

// Loopback sends one frame of every size to the station address and checks
// it comes back unchanged. Arranging the loop (PHY loopback, a loopback plug
// or a mirroring switch port) is up to the caller.
func Loopback(ctx context.Context, d *ksz8851.Device, sizes []int, polls int, interval time.Duration) ([]LoopbackResult, error) {
	mac, err := d.MAC(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]LoopbackResult, 0, len(sizes))
	for i, size := range sizes {
		if size < ksz8851.MinFrameLen {
			return results, fmt.Errorf("frame size %d below the header size", size)
		}
		payload := make([]byte, size-ksz8851.MinFrameLen)
		for j := range payload {
			payload[j] = byte(i + j)
		}
		frame := buildFrame(mac, mac, EtherTypeLocal, payload)
		id, err := d.Transmit(ctx, frame)
		if err != nil {
			return results, err
		}
		r := LoopbackResult{Size: size, FrameID: id}
		for p := 0; p < polls && !r.Received; p++ {
			f, err := d.Receive(ctx)
			if err != nil {
				return results, err
			}
			if f == nil {
				time.Sleep(interval)
				continue
			}
			r.Received = true
			r.Match = bytes.Equal(f.Data, frame)
			r.Status = f.Status.String()
		}
		results = append(results, r)
	}
	return results, nil
}

var SelftestCmd = &cli.Command{
	Name:  "selftest",
	Usage: "loop frames through the PHY and compare what comes back",
	Flags: []cli.Flag{
		&cli.IntSliceFlag{Name: "size", Usage: "frame sizes to try", Value: cli.NewIntSlice(60, 128, 512, 1514)},
		&cli.BoolFlag{Name: "external", Usage: "the loop is outside the chip, leave PHY loopback off"},
		&cli.DurationFlag{Name: "timeout", Usage: "wait for each frame this long", Value: 200 * time.Millisecond},
	},
	Action: func(c *cli.Context) error {
		d, bus, err := OpenConfigured(c)
		if err != nil {
			return console.Exit(console.ExitUnavailable, "could not open device: %s", console.Red(err))
		}
		defer func() { _ = bus.Close() }()
		ctx := Context(c)
		if !c.Bool("external") {
			if err := d.SetLoopback(ctx, true); err != nil {
				return console.Exit(console.ExitFailure, "loopback error: %s", console.Red(err))
			}
			defer func() { _ = d.SetLoopback(ctx, false) }()
		}
		const interval = 5 * time.Millisecond
		polls := max(1, int(c.Duration("timeout")/interval))
		results, err := Loopback(ctx, d, c.IntSlice("size"), polls, interval)
		if err != nil {
			return console.Exit(console.ExitFailure, "selftest error: %s", console.Red(err))
		}
		w := tabwriter.NewWriter(os.Stdout, 8, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "SIZE\tID\tRESULT\tSTATUS\n")
		failed := 0
		for _, r := range results {
			result := console.Green("ok")
			switch {
			case !r.Received:
				result = console.Red("lost")
				failed++
			case !r.Match:
				result = console.Red("corrupted")
				failed++
			}
			_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", r.Size, r.FrameID, result, r.Status)
		}
		_ = w.Flush()
		if failed > 0 {
			return console.Exit(console.ExitFailure, "%d of %d frames failed", failed, len(results))
		}
		console.PInfof(console.PictoPackage, "all %d frames came back", len(results))
		return nil
	},
}
