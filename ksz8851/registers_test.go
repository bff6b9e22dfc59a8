package ksz8851

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterTable(t *testing.T) {
	seen := map[uint8]string{}
	for _, r := range Registers() {
		prev, dup := seen[r.Addr]
		require.False(t, dup, "%s and %s share address %#02x", r.Name, prev, r.Addr)
		seen[r.Addr] = r.Name
		assert.Zero(t, r.Addr%2, "%s is not 16-bit aligned", r.Name)
		var used uint16
		for _, f := range r.Fields {
			assert.Zero(t, used&f.Mask(), "%s.%s overlaps another field", r.Name, f.Name)
			used |= f.Mask()
		}
	}
	regs := Registers()
	for i := 1; i < len(regs); i++ {
		assert.Less(t, regs[i-1].Addr, regs[i].Addr)
	}
}

func TestLookupRegister(t *testing.T) {
	r, err := LookupRegister("cider")
	require.NoError(t, err)
	assert.Equal(t, regCIDER, r.Addr)

	r, err = LookupRegister("0x7C")
	require.NoError(t, err)
	assert.Equal(t, "RXFHSR", r.Name)

	r, err = LookupRegister("146")
	require.NoError(t, err)
	assert.Equal(t, "ISR", r.Name)

	_, err = LookupRegister("0x7D")
	assert.Error(t, err)
	_, err = LookupRegister("NOPE")
	assert.Error(t, err)
}

func TestFieldGetSet(t *testing.T) {
	assert.Equal(t, uint16(0x88), fieldFamilyID.Get(0x8872))
	assert.Equal(t, uint16(0x7), fieldChipID.Get(0x8872))
	assert.Equal(t, uint16(0x1), fieldRevisionID.Get(0x8872))
	assert.Equal(t, uint16(0x0FFF), fieldRxByteCount.Mask())
	assert.Equal(t, uint16(0x0180), fieldRxBurstLength.Set(0x0160, rxcr2SingleFrame))
	assert.Equal(t, uint16(0x0301), fieldRxFrameCount.Set(0x0001, 3))
	// bits beyond the field are dropped
	assert.Equal(t, uint16(0x0000), fieldTxFrameID.Set(0, 0x40))
}

func TestRegisterDecode(t *testing.T) {
	r, err := LookupRegister("P1SR")
	require.NoError(t, err)
	values := map[string]uint16{}
	for _, fv := range r.Decode(p1srSpeed100 | p1srFullDuplex | p1srLinkGood) {
		values[fv.Name] = fv.Value
	}
	assert.Equal(t, uint16(1), values["operation_speed"])
	assert.Equal(t, uint16(1), values["operation_duplex"])
	assert.Equal(t, uint16(1), values["link_good"])
	assert.Equal(t, uint16(0), values["an_done"])

	f, ok := r.Field("LINK_GOOD")
	require.True(t, ok)
	assert.Equal(t, p1srLinkGood, f.Mask())
	assert.False(t, mustLookup(t, "CIDER").Writable())
	assert.True(t, mustLookup(t, "TXCR").Writable())
}

func TestIRQString(t *testing.T) {
	assert.Equal(t, "none", IRQ(0).String())
	assert.Equal(t, "link|rx", (IRQLinkChange | IRQRx).String())
	assert.True(t, DefaultIRQMask.Has(IRQSPIBusError))
	assert.False(t, DefaultIRQMask.Has(IRQWakeFrame))
}

func TestRxStatus(t *testing.T) {
	assert.True(t, (RxValid | RxUnicast).OK())
	assert.False(t, RxUnicast.OK())
	assert.False(t, (RxValid | RxCRCErr).OK())
	assert.False(t, (RxValid | RxUDPSumErr).OK())
	assert.Equal(t, "valid|bcast", (RxValid | RxBroadcast).String())
}

func mustLookup(t *testing.T, name string) Register {
	t.Helper()
	r, err := LookupRegister(name)
	require.NoError(t, err)
	return r
}
