package command

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/soypat/lneto/ethernet"

	"github.com/mklimuk/ethspi/ksz8851"
)

// EtherTypeLocal is the IEEE local experimental ethertype used for test
// traffic.
const EtherTypeLocal = 0x88B5

// Helper to parse hex string to bytes. Colons, dashes and spaces between
// bytes are ignored.
func hexStringToBytes(s string) ([]byte, error) {
	s = strings.NewReplacer(":", "", "-", "", " ", "").Replace(s)
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even length")
	}
	b := make([]byte, len(s)/2)
	for i := 0; i < len(b); i++ {
		v, err := strconv.ParseUint(s[2*i:2*i+2], 16, 8)
		if err != nil {
			return nil, err
		}
		b[i] = byte(v)
	}
	return b, nil
}

// buildFrame lays out an untagged ethernet frame. The chip pads it to the
// minimum size on the wire.
func buildFrame(dst, src ksz8851.MAC, etherType uint16, payload []byte) []byte {
	frame := make([]byte, 14, 14+len(payload))
	copy(frame[0:6], dst[:])
	copy(frame[6:12], src[:])
	binary.BigEndian.PutUint16(frame[12:14], etherType)
	return append(frame, payload...)
}

// describeFrame renders the header of a received frame in one line.
func describeFrame(data []byte) string {
	f, err := ethernet.NewFrame(data)
	if err != nil {
		return fmt.Sprintf("runt frame (%d bytes)", len(data))
	}
	line := make([]byte, 0, 64)
	line = ethernet.AppendAddr(line, *f.SourceHardwareAddr())
	line = append(line, " > "...)
	line = ethernet.AppendAddr(line, *f.DestinationHardwareAddr())
	et := f.EtherTypeOrSize()
	switch {
	case f.IsVLAN():
		line = append(line, " vlan"...)
	case et.IsSize():
		line = fmt.Appendf(line, " 802.3 length %d", uint16(et))
	default:
		line = fmt.Appendf(line, " type %#04x", uint16(et))
	}
	line = fmt.Appendf(line, " %d bytes", len(data))
	return string(line)
}
