package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/ethspi/cmd/ethspi/console"
	"github.com/mklimuk/ethspi/ksz8851"
)

var SendCmd = &cli.Command{
	Name:      "send",
	Usage:     "transmit test frames",
	ArgsUsage: "[hex payload]",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "dst", Usage: "destination address", Value: "ff:ff:ff:ff:ff:ff"},
		&cli.UintFlag{Name: "type", Usage: "ethertype", Value: EtherTypeLocal},
		&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Usage: "number of frames", Value: 1},
		&cli.IntFlag{Name: "size", Usage: "pad the payload to this many bytes"},
		&cli.DurationFlag{Name: "interval", Usage: "delay between frames", Value: 10 * time.Millisecond},
		&cli.DurationFlag{Name: "link-timeout", Usage: "wait for link up before sending", Value: 3 * time.Second},
	},
	Action: func(c *cli.Context) error {
		dst, err := ksz8851.ParseMAC(c.String("dst"))
		if err != nil {
			return console.Exit(console.ExitUsage, "invalid destination: %v", err)
		}
		var payload []byte
		if c.NArg() > 0 {
			payload, err = hexStringToBytes(c.Args().Get(0))
			if err != nil {
				return console.Exit(console.ExitUsage, "could not decode payload: %v", err)
			}
		}
		if n := c.Int("size"); n > len(payload) {
			payload = append(payload, make([]byte, n-len(payload))...)
		}
		var done []ksz8851.TxStatus
		d, bus, err := OpenConfigured(c, ksz8851.WithTxDoneHandler(func(st ksz8851.TxStatus) {
			done = append(done, st)
		}))
		if err != nil {
			return console.Exit(console.ExitUnavailable, "could not open device: %v", err)
		}
		defer func() { _ = bus.Close() }()
		ctx := Context(c)

		link, err := d.WaitLink(ctx, c.Duration("link-timeout"))
		if err != nil {
			console.Warnf("sending without link: %v", err)
		} else {
			console.PInfof(console.PictoLink, "link %s", console.Green(link))
		}
		src, err := d.MAC(ctx)
		if err != nil {
			return console.Exit(console.ExitFailure, "could not read station address: %v", err)
		}
		frame := buildFrame(dst, src, uint16(c.Uint("type")), payload)
		for i := 0; i < c.Int("count"); i++ {
			id, err := d.Transmit(ctx, frame)
			for errors.Is(err, ksz8851.ErrTxBufferFull) {
				if _, err = d.ServiceInterrupts(ctx); err != nil {
					break
				}
				time.Sleep(c.Duration("interval"))
				id, err = d.Transmit(ctx, frame)
			}
			if err != nil {
				return console.Exit(console.ExitFailure, "transmit error: %v", err)
			}
			console.PInfof(console.PictoOutbox, "frame %s queued: %s", console.White(id), describeFrame(frame))
			if i+1 < c.Int("count") {
				time.Sleep(c.Duration("interval"))
			}
		}
		ev, err := d.ServiceInterrupts(ctx)
		if err != nil {
			return console.Exit(console.ExitFailure, "interrupt service error: %v", err)
		}
		for _, st := range done {
			if st.LateCollision || st.MaxCollision {
				console.Warnf("frame %d collided", st.FrameID)
			}
		}
		if ev.RxBacklog > 0 {
			console.Infof("%d frames waiting in the rx queue", ev.RxBacklog)
		}
		for {
			f, err := d.Receive(ctx)
			if err != nil {
				return console.Exit(console.ExitFailure, "receive error: %v", err)
			}
			if f == nil {
				break
			}
			console.PInfof(console.PictoInbox, "%s", describeFrame(f.Data))
		}
		fmt.Printf("%s %d frames sent\n", console.PictoPackage, c.Int("count"))
		return nil
	},
}
