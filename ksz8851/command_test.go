package ksz8851

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegCommand(t *testing.T) {
	tests := []struct {
		name  string
		op    byte
		addr  uint8
		width Width
		want  [2]byte
	}{
		{name: "read CIDER", op: opRegRead, addr: regCIDER, width: Width16, want: [2]byte{0x0F, 0x00}},
		{name: "read ISR upper half", op: opRegRead, addr: regISR, width: Width16, want: [2]byte{0x32, 0x40}},
		{name: "write TXQCR", op: opRegWrite, addr: regTXQCR, width: Width16, want: [2]byte{0x4E, 0x00}},
		{name: "write GRR", op: opRegWrite, addr: regGRR, width: Width16, want: [2]byte{0x70, 0x90}},
		{name: "read CCR low byte", op: opRegRead, addr: regCCR, width: Width8, want: [2]byte{0x04, 0x20}},
		{name: "read P1SR high byte", op: opRegRead, addr: regP1SR + 1, width: Width8, want: [2]byte{0x0B, 0xE0}},
		{name: "write MARH", op: opRegWrite, addr: regMARH, width: Width16, want: [2]byte{0x4C, 0x50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := regCommand(tt.op, tt.addr, tt.width)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "command %#02x %#02x", got[0], got[1])
		})
	}
}

func TestByteEnable(t *testing.T) {
	for lane := uint8(0); lane < 4; lane++ {
		be, err := byteEnable(0x10+lane, Width8)
		require.NoError(t, err)
		assert.Equal(t, byte(1)<<lane, be)
	}
	be, err := byteEnable(0x10, Width16)
	require.NoError(t, err)
	assert.Equal(t, byte(0b0011), be)
	be, err = byteEnable(0x12, Width16)
	require.NoError(t, err)
	assert.Equal(t, byte(0b1100), be)

	for _, addr := range []uint8{0x11, 0x13} {
		_, err := regCommand(opRegRead, addr, Width16)
		assert.ErrorIs(t, err, ErrUnalignedAccess)
		var ue *UnalignedError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, addr, ue.Addr)
	}
	_, err = byteEnable(0x10, Width(32))
	assert.ErrorIs(t, err, ErrUnalignedAccess)
}

func TestFifoCommand(t *testing.T) {
	assert.Equal(t, byte(0x80), fifoCommand(opRxRead))
	assert.Equal(t, byte(0xC0), fifoCommand(opTxWrite))
}

func TestBurstLengths(t *testing.T) {
	assert.Equal(t, 0, align4(0))
	assert.Equal(t, 4, align4(1))
	assert.Equal(t, 4, align4(4))
	assert.Equal(t, 8, align4(5))

	// 60 byte frame + FCS + IP offset
	assert.Equal(t, 8+68, rxBurstLen(66))
	assert.Equal(t, 8+64, rxBurstLen(64))
	assert.Equal(t, 4+16, txBurstLen(14))
	assert.Equal(t, 4+2000, txBurstLen(MaxFrameLen))
	for n := MinFrameLen; n <= MaxFrameLen; n++ {
		l := txBurstLen(n)
		require.Zero(t, l%4, "frame of %d bytes", n)
		require.GreaterOrEqual(t, l, n+4)
		require.Less(t, l, n+8)
	}
}
