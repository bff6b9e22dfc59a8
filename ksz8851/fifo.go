package ksz8851

import (
	"context"
	"encoding/binary"
	"errors"

	"github.com/mklimuk/ethspi"
)

const (
	rxDummyLen   = 4
	rxEchoLen    = 4 // status + byte count
	rxPreambleLn = rxDummyLen + rxEchoLen
	txHeaderLen  = 4 // control word + byte count
	fcsLen       = 4
	ipOffsetLen  = 2

	MaxFrameLen = 2000 // chip limit for a single frame, FCS excluded
	MinFrameLen = 14   // ethernet header; the chip pads short frames

	rxQueueSize = 12 * 1024
	txQueueSize = 6 * 1024
)

// fifoToken is held by whoever owns the chip's frame data pointers. A burst
// cannot be issued without it and the token is never handed back mid-burst.
type fifoToken struct {
	owner *Device
}

func (d *Device) acquireFIFO(ctx context.Context) (fifoToken, error) {
	select {
	case t := <-d.fifo:
		return t, nil
	case <-ctx.Done():
		return fifoToken{}, ctx.Err()
	}
}

func (d *Device) releaseFIFO(t fifoToken) {
	d.fifo <- t
}

func (d *Device) checkToken(t fifoToken) {
	if t.owner != d {
		panic("ksz8851: fifo access without ownership token")
	}
}

// rxHeader is the frame header the chip reports in RXFHSR/RXFHBCR.
type rxHeader struct {
	status    RxStatus
	byteCount uint16
}

// rxBurstLen is the number of bytes clocked in after the command byte.
func rxBurstLen(byteCount uint16) int {
	return rxPreambleLn + align4(int(byteCount))
}

// txBurstLen is the number of bytes clocked out after the command byte.
func txBurstLen(frameLen int) int {
	return txHeaderLen + align4(frameLen)
}

// fifoRead reads the frame described by hdr into dst with one burst. dst must
// hold rxBurstLen(hdr.byteCount) bytes; it receives the whole burst including
// the dummy bytes and the header echo.
func (d *Device) fifoRead(ctx context.Context, t fifoToken, hdr rxHeader, dst []byte) ([]byte, error) {
	d.checkToken(t)
	n := rxBurstLen(hdr.byteCount)
	if len(dst) < n {
		return nil, desyncf("byte count %d exceeds staging buffer", hdr.byteCount)
	}
	dst = dst[:n]
	// frame pointer back to 0 with auto increment
	if err := d.write16(ctx, regRXFDPR, fdprAutoIncrement); err != nil {
		return nil, err
	}
	if err := d.write16(ctx, regRXQCR, d.rxqcr|rxqcrStartDMA); err != nil {
		return nil, err
	}
	d.stats.Transactions++
	d.stats.RxBursts++
	cmd := [1]byte{fifoCommand(opRxRead)}
	burstErr := d.bus.Transaction(ctx, ethspi.Write(cmd[:]), ethspi.Read(dst))
	if burstErr != nil {
		burstErr = &BusError{Op: "rx burst", Addr: regRXFDPR, Err: burstErr}
	}
	// chip select already dropped, end the DMA window even if the burst failed
	endErr := d.write16(ctx, regRXQCR, d.rxqcr)
	if err := errors.Join(burstErr, endErr); err != nil {
		return nil, err
	}
	echo := rxHeader{
		status:    RxStatus(binary.LittleEndian.Uint16(dst[rxDummyLen:])),
		byteCount: binary.LittleEndian.Uint16(dst[rxDummyLen+2:]) & uint16(fieldRxByteCount.Mask()),
	}
	if echo != hdr {
		return nil, desyncf("header echo status %#04x count %d, registers status %#04x count %d",
			uint16(echo.status), echo.byteCount, uint16(hdr.status), hdr.byteCount)
	}
	return dst, nil
}

// fifoWrite writes ctrl, the frame length, the frame and padding to the TX
// queue in one burst and returns the number of bytes written after the command.
func (d *Device) fifoWrite(ctx context.Context, t fifoToken, ctrl TxControl, frame []byte) (int, error) {
	d.checkToken(t)
	n := txBurstLen(len(frame))
	buf := d.txBuf[:n]
	binary.LittleEndian.PutUint16(buf[0:], uint16(ctrl))
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(frame)))
	copy(buf[txHeaderLen:], frame)
	clear(buf[txHeaderLen+len(frame):])

	if err := d.write16(ctx, regRXQCR, d.rxqcr|rxqcrStartDMA); err != nil {
		return 0, err
	}
	d.stats.Transactions++
	d.stats.TxBursts++
	cmd := [1]byte{fifoCommand(opTxWrite)}
	burstErr := d.bus.Transaction(ctx, ethspi.Write(cmd[:]), ethspi.Write(buf))
	if burstErr != nil {
		burstErr = &BusError{Op: "tx burst", Addr: regTXFDPR, Err: burstErr}
	}
	endErr := d.write16(ctx, regRXQCR, d.rxqcr)
	if err := errors.Join(burstErr, endErr); err != nil {
		return 0, err
	}
	return n, nil
}
