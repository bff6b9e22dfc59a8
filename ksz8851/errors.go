package ksz8851

import (
	"fmt"
)

var (
	ErrBus             = fmt.Errorf("ksz8851: spi transaction failed")
	ErrFifoDesync      = fmt.Errorf("ksz8851: fifo desynchronized")
	ErrTxBufferFull    = fmt.Errorf("ksz8851: not enough tx queue memory")
	ErrFrameTooLarge   = fmt.Errorf("ksz8851: frame too large")
	ErrFrameTooSmall   = fmt.Errorf("ksz8851: frame too small")
	ErrLinkDown        = fmt.Errorf("ksz8851: link down")
	ErrResetTimeout    = fmt.Errorf("ksz8851: chip did not come out of reset")
	ErrReleaseTimeout  = fmt.Errorf("ksz8851: rx frame release did not complete")
	ErrNotConfigured   = fmt.Errorf("ksz8851: device not configured")
	ErrUnalignedAccess = fmt.Errorf("ksz8851: unaligned register access")
	ErrFCSMismatch     = fmt.Errorf("ksz8851: frame check sequence mismatch")
)

// BusError wraps a transport failure with the operation that issued it.
type BusError struct {
	Op   string
	Addr uint8
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("ksz8851: %s %#02x: %v", e.Op, e.Addr, e.Err)
}

func (e *BusError) Unwrap() []error { return []error{ErrBus, e.Err} }

// UnalignedError is returned before any bus traffic when the width does not
// fit the address lane.
type UnalignedError struct {
	Addr  uint8
	Width Width
}

func (e *UnalignedError) Error() string {
	return fmt.Sprintf("ksz8851: %d-bit access at %#02x", e.Width, e.Addr)
}

func (e *UnalignedError) Unwrap() error { return ErrUnalignedAccess }

// ChipIDError reports an unexpected CIDER value after reset.
type ChipIDError struct {
	Value uint16
}

func (e *ChipIDError) Error() string {
	return fmt.Sprintf("ksz8851: unexpected chip id %#04x (family %#02x chip %#x)",
		e.Value, fieldFamilyID.Get(e.Value), fieldChipID.Get(e.Value))
}

// SelfTestError reports a failed memory built-in self test.
type SelfTestError struct {
	MBIR uint16
}

func (e *SelfTestError) Error() string {
	var which string
	switch {
	case e.MBIR&mbirTxFail != 0 && e.MBIR&mbirRxFail != 0:
		which = "tx and rx"
	case e.MBIR&mbirTxFail != 0:
		which = "tx"
	default:
		which = "rx"
	}
	return fmt.Sprintf("ksz8851: %s memory self test failed (mbir %#04x)", which, e.MBIR)
}

// desyncError carries the mismatch that caused ErrFifoDesync.
type desyncError struct {
	reason string
}

func (e *desyncError) Error() string {
	return fmt.Sprintf("%v: %s", ErrFifoDesync, e.reason)
}

func (e *desyncError) Unwrap() error { return ErrFifoDesync }

func desyncf(format string, args ...any) error {
	return &desyncError{reason: fmt.Sprintf(format, args...)}
}
