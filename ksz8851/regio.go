package ksz8851

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/mklimuk/ethspi"
	"github.com/mklimuk/ethspi/busctx"
)

// ReadRegister reads an 8 or 16 bit register in a single transaction.
func (d *Device) ReadRegister(ctx context.Context, addr uint8, w Width) (uint16, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.readReg(ctx, addr, w)
}

// WriteRegister writes an 8 or 16 bit register in a single transaction.
func (d *Device) WriteRegister(ctx context.Context, addr uint8, w Width, value uint16) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.writeReg(ctx, addr, w, value)
}

// ModifyRegister clears then sets bits with a read followed by a write.
// The pair is not atomic with respect to the chip itself.
func (d *Device) ModifyRegister(ctx context.Context, addr uint8, w Width, clear, set uint16) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.modifyReg(ctx, addr, w, clear, set)
}

func (d *Device) readReg(ctx context.Context, addr uint8, w Width) (uint16, error) {
	cmd, err := regCommand(opRegRead, addr, w)
	if err != nil {
		return 0, err
	}
	buf := d.regBuf[:w/8]
	d.stats.Transactions++
	if err := d.bus.Transaction(ctx, ethspi.Write(cmd[:]), ethspi.Read(buf)); err != nil {
		return 0, &BusError{Op: "read", Addr: addr, Err: err}
	}
	var v uint16
	if w == Width8 {
		v = uint16(buf[0])
	} else {
		v = binary.LittleEndian.Uint16(buf)
	}
	if busctx.IsVerbose(ctx) {
		d.log.Debug("register read", slog.String("reg", regName(addr)), slog.String("value", hex16(v)))
	}
	return v, nil
}

func (d *Device) writeReg(ctx context.Context, addr uint8, w Width, value uint16) error {
	cmd, err := regCommand(opRegWrite, addr, w)
	if err != nil {
		return err
	}
	buf := d.regBuf[:w/8]
	if w == Width8 {
		buf[0] = byte(value)
	} else {
		binary.LittleEndian.PutUint16(buf, value)
	}
	if busctx.IsVerbose(ctx) {
		d.log.Debug("register write", slog.String("reg", regName(addr)), slog.String("value", hex16(value)))
	}
	d.stats.Transactions++
	if err := d.bus.Transaction(ctx, ethspi.Write(cmd[:]), ethspi.Write(buf)); err != nil {
		return &BusError{Op: "write", Addr: addr, Err: err}
	}
	return nil
}

func (d *Device) modifyReg(ctx context.Context, addr uint8, w Width, clear, set uint16) error {
	v, err := d.readReg(ctx, addr, w)
	if err != nil {
		return err
	}
	return d.writeReg(ctx, addr, w, v&^clear|set)
}

func (d *Device) read16(ctx context.Context, addr uint8) (uint16, error) {
	return d.readReg(ctx, addr, Width16)
}

func (d *Device) write16(ctx context.Context, addr uint8, value uint16) error {
	return d.writeReg(ctx, addr, Width16, value)
}

func regName(addr uint8) string {
	if r, ok := registerByAddr[addr&^1]; ok {
		if addr&1 != 0 {
			return r.Name + "+1"
		}
		return r.Name
	}
	return hex8(addr)
}

func hex8(v uint8) string {
	return fmt.Sprintf("%#02x", v)
}

func hex16(v uint16) string {
	return fmt.Sprintf("%#04x", v)
}
