package ksz8851

// SPI opcodes, top two bits of the first command byte.
const (
	opRegRead  byte = 0b00
	opRegWrite byte = 0b01
	opRxRead   byte = 0b10
	opTxWrite  byte = 0b11
)

// byteEnable returns the 4-bit byte-lane mask for an access of width w at
// addr. The lane is selected by the two low address bits.
func byteEnable(addr uint8, w Width) (byte, error) {
	lane := addr & 0x3
	switch w {
	case Width8:
		return 1 << lane, nil
	case Width16:
		switch lane {
		case 0:
			return 0b0011, nil
		case 2:
			return 0b1100, nil
		}
	}
	return 0, &UnalignedError{Addr: addr, Width: w}
}

// regCommand builds the two byte register command:
//
//	byte 0: op[7:6] be[5:2] a7 a6
//	byte 1: a5 a4 a3 a2 0 0 0 0
func regCommand(op byte, addr uint8, w Width) ([2]byte, error) {
	be, err := byteEnable(addr, w)
	if err != nil {
		return [2]byte{}, err
	}
	return [2]byte{
		op<<6 | be<<2 | addr>>6,
		(addr & 0x3C) << 2,
	}, nil
}

// fifoCommand is the single byte that starts an RX or TX burst.
func fifoCommand(op byte) byte {
	return op << 6
}

func align4(n int) int {
	return (n + 3) &^ 3
}
