package ksz8851

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulticastHash(t *testing.T) {
	tests := []struct {
		mac  string
		want uint8
	}{
		{"01:00:5e:00:00:01", 31},
		{"33:33:00:00:00:01", 62},
		{"01:00:5e:7f:ff:fa", 43},
		{"01:80:c2:00:00:00", 25},
		{"33:33:ff:00:00:01", 29},
	}
	for _, tt := range tests {
		t.Run(tt.mac, func(t *testing.T) {
			m, err := ParseMAC(tt.mac)
			require.NoError(t, err)
			assert.Equal(t, tt.want, multicastHash(m))
			assert.Equal(t, uint8(shiftRegisterCRC(m[:])>>26), multicastHash(m))
		})
	}
}

// shiftRegisterCRC runs the 802.3 CRC the way the MAC does: LSB of each
// byte first into an MSB first register preset to all ones, no final
// inversion.
func shiftRegisterCRC(b []byte) uint32 {
	crc := ^uint32(0)
	for _, c := range b {
		for i := 0; i < 8; i++ {
			fb := (crc>>31 ^ uint32(c>>i)) & 1
			crc <<= 1
			if fb != 0 {
				crc ^= 0x04C11DB7
			}
		}
	}
	return crc
}

func TestFilterHashTable(t *testing.T) {
	f := Filter{Multicast: []MAC{
		{0x01, 0x00, 0x5e, 0x00, 0x00, 0x01},
		{0x33, 0x33, 0x00, 0x00, 0x00, 0x01},
		{0x01, 0x00, 0x5e, 0x7f, 0xff, 0xfa},
	}}
	assert.Equal(t, [4]uint16{0, 1 << 15, 1 << 11, 1 << 14}, f.hashTable())

	f.AllMulticast = true
	assert.Equal(t, [4]uint16{}, f.hashTable())
}

func TestFilterModes(t *testing.T) {
	tests := []struct {
		name    string
		filter  Filter
		set     uint16
		cleared uint16
	}{
		{
			name:    "unicast only",
			filter:  Filter{},
			set:     rxcr1PhysicalAF | rxcr1Unicast,
			cleared: rxcr1Broadcast | rxcr1Multicast | rxcr1All | rxcr1Inverse,
		},
		{
			name:    "broadcast",
			filter:  Filter{Broadcast: true},
			set:     rxcr1PhysicalAF | rxcr1Unicast | rxcr1Broadcast,
			cleared: rxcr1Multicast | rxcr1All,
		},
		{
			name:    "hash",
			filter:  Filter{Multicast: []MAC{{0x01, 0x00, 0x5e, 0x00, 0x00, 0x01}}},
			set:     rxcr1PhysicalAF | rxcr1Multicast | rxcr1MulticastAF,
			cleared: rxcr1All,
		},
		{
			name:    "all multicast",
			filter:  Filter{AllMulticast: true},
			set:     rxcr1All | rxcr1Multicast | rxcr1Unicast,
			cleared: rxcr1PhysicalAF | rxcr1Inverse,
		},
		{
			name:    "promiscuous",
			filter:  Filter{Promiscuous: true, Multicast: []MAC{{0x01, 0x00, 0x5e, 0x00, 0x00, 0x01}}},
			set:     rxcr1All | rxcr1Inverse,
			cleared: rxcr1PhysicalAF | rxcr1MulticastAF,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.filter.rxcr1()
			assert.Equal(t, tt.set, v&tt.set, "rxcr1 %#04x", v)
			assert.Zero(t, v&tt.cleared, "rxcr1 %#04x", v)
			assert.Zero(t, v&rxcr1Enable, "filter never enables rx")
		})
	}
}

func TestConfigureMulticastFilter(t *testing.T) {
	chip := NewMockChip()
	d := newTestDevice(t, chip)

	cfg := DefaultConfig(testMAC)
	cfg.Filter.Multicast = []MAC{{0x01, 0x00, 0x5e, 0x00, 0x00, 0x01}}
	require.NoError(t, d.Configure(context.Background(), cfg))
	assert.Equal(t, uint16(0), chip.Register(regMAHTR0))
	assert.Equal(t, uint16(0x8000), chip.Register(regMAHTR1))
	assert.Equal(t, uint16(0), chip.Register(regMAHTR2))
	assert.NotZero(t, chip.Register(regRXCR1)&rxcr1MulticastAF)

	require.NoError(t, d.Configure(context.Background(), DefaultConfig(testMAC)))
	assert.Zero(t, chip.Register(regMAHTR1), "the table is rewritten on every configure")
}
