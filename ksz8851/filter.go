package ksz8851

import (
	"hash/crc32"
	"math/bits"
)

// rxcr1 returns the receive control word for the filter, without RXE.
func (f Filter) rxcr1() uint16 {
	var v uint16
	switch {
	case f.Promiscuous:
		v = rxcr1All | rxcr1Inverse
	case f.AllMulticast:
		v = rxcr1All | rxcr1Multicast | rxcr1Unicast
	case len(f.Multicast) > 0:
		v = rxcr1Multicast | rxcr1PhysicalAF | rxcr1MulticastAF
	default:
		v = rxcr1PhysicalAF
	}
	v |= rxcr1Unicast
	if f.Broadcast {
		v |= rxcr1Broadcast
	}
	return v
}

// hashTable returns MAHTR0..3 for the multicast list.
func (f Filter) hashTable() [4]uint16 {
	var table [4]uint16
	if f.Promiscuous || f.AllMulticast {
		return table
	}
	for _, m := range f.Multicast {
		h := multicastHash(m)
		table[h>>4] |= 1 << (h & 0xf)
	}
	return table
}

// multicastHash is the top 6 bits of the Ethernet CRC register over the
// address, shifted out MSB first and without the final inversion.
func multicastHash(m MAC) uint8 {
	crc := bits.Reverse32(^crc32.ChecksumIEEE(m[:]))
	return uint8(crc >> 26)
}
