package ethspi

import (
	"context"
	"fmt"
	"time"
)

var ErrBusBusy = fmt.Errorf("SPI engine is busy (transfer not completed)")
var ErrSegmentOrder = fmt.Errorf("read segment followed by write segment in one transaction")

// Segment is one leg of an SPI transaction. Exactly one of W or R should be set:
// W is clocked out, R is filled with the bytes clocked in.
type Segment struct {
	W []byte
	R []byte
}

// Write returns a transmit-only segment.
func Write(b []byte) Segment { return Segment{W: b} }

// Read returns a receive-only segment.
func Read(b []byte) Segment { return Segment{R: b} }

// SPIDevice is a single chip on an SPI bus. Chip select stays asserted for the
// whole Transaction call and is released when it returns.
type SPIDevice interface {
	Transaction(ctx context.Context, segments ...Segment) error
}

// SPIBus is an SPIDevice owning an OS or USB resource.
type SPIBus interface {
	SPIDevice
	Close() error
}

// InterruptLine is the host side of the chip's interrupt output.
// periph.io gpio.PinIn satisfies it.
type InterruptLine interface {
	WaitForEdge(timeout time.Duration) bool
}

// Len returns the number of clock bytes a transaction of segments takes on the wire.
func Len(segments []Segment) int {
	n := 0
	for _, s := range segments {
		n += len(s.W) + len(s.R)
	}
	return n
}

// Flatten lays out segments for a full-duplex controller. Write bytes are copied
// into tx, read legs are clocked out as zeros. tx must hold Len(segments) bytes.
func Flatten(tx []byte, segments []Segment) []byte {
	tx = tx[:0]
	for _, s := range segments {
		tx = append(tx, s.W...)
		for range s.R {
			tx = append(tx, 0)
		}
	}
	return tx
}

// Scatter copies the bytes clocked in during read legs from rx into the
// segments' R buffers. rx is the full-duplex receive buffer matching Flatten.
func Scatter(rx []byte, segments []Segment) {
	off := 0
	for _, s := range segments {
		off += len(s.W)
		off += copy(s.R, rx[off:])
	}
}

// Split returns the concatenated write prefix and the read legs of a
// half-duplex transaction (all writes first, then all reads).
func Split(segments []Segment) (w []byte, reads []Segment, err error) {
	seenRead := false
	for _, s := range segments {
		if len(s.R) > 0 {
			seenRead = true
			reads = append(reads, s)
		}
		if len(s.W) > 0 {
			if seenRead {
				return nil, nil, ErrSegmentOrder
			}
			w = append(w, s.W...)
		}
	}
	return w, reads, nil
}
