package ksz8851

import (
	"strings"
)

// Width is a register access width in bits.
type Width uint8

const (
	Width8  Width = 8
	Width16 Width = 16
)

// IRQ is a set of IER/ISR interrupt bits. ISR bits are cleared by writing 1.
type IRQ uint16

const (
	IRQLinkChange    IRQ = 1 << 15 // LCIS
	IRQTxDone        IRQ = 1 << 14 // TXIS
	IRQRx            IRQ = 1 << 13 // RXIS
	IRQRxOverrun     IRQ = 1 << 11 // RXOIS
	IRQTxStopped     IRQ = 1 << 9  // TXPSIS
	IRQRxStopped     IRQ = 1 << 8  // RXPSIS
	IRQTxSpace       IRQ = 1 << 6  // TXSAIS
	IRQWakeFrame     IRQ = 1 << 5  // RXWFDIS
	IRQMagicPacket   IRQ = 1 << 4  // RXMPDIS
	IRQLinkUpWake    IRQ = 1 << 3  // LDIS
	IRQEnergyDetect  IRQ = 1 << 2  // EDIS
	IRQSPIBusError   IRQ = 1 << 1  // SPIBEIS
	IRQDelayedEnergy IRQ = 1 << 0  // DEDIE, enable register only
	DefaultIRQMask       = IRQLinkChange | IRQTxDone | IRQRx | IRQRxOverrun | IRQTxSpace | IRQSPIBusError
	handledIRQ           = IRQLinkChange | IRQTxDone | IRQRx | IRQRxOverrun | IRQTxSpace | IRQSPIBusError
	irqAll           IRQ = 0xFFFF
)

var irqNames = []struct {
	bit  IRQ
	name string
}{
	{IRQLinkChange, "link"}, {IRQTxDone, "tx"}, {IRQRx, "rx"}, {IRQRxOverrun, "rx-overrun"},
	{IRQTxStopped, "tx-stopped"}, {IRQRxStopped, "rx-stopped"}, {IRQTxSpace, "tx-space"},
	{IRQWakeFrame, "wake-frame"}, {IRQMagicPacket, "magic-packet"}, {IRQLinkUpWake, "linkup-wake"},
	{IRQEnergyDetect, "energy"}, {IRQSPIBusError, "spi-error"}, {IRQDelayedEnergy, "delayed-energy"},
}

func (i IRQ) Has(b IRQ) bool { return i&b != 0 }

func (i IRQ) String() string {
	if i == 0 {
		return "none"
	}
	var parts []string
	for _, n := range irqNames {
		if i&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// RxStatus is the RXFHSR frame header status word.
type RxStatus uint16

const (
	RxValid       RxStatus = 1 << 15
	RxICMPSumErr  RxStatus = 1 << 13
	RxIPSumErr    RxStatus = 1 << 12
	RxTCPSumErr   RxStatus = 1 << 11
	RxUDPSumErr   RxStatus = 1 << 10
	RxBroadcast   RxStatus = 1 << 7
	RxMulticast   RxStatus = 1 << 6
	RxUnicast     RxStatus = 1 << 5
	RxMIIErr      RxStatus = 1 << 4
	RxFrameType   RxStatus = 1 << 3
	RxTooLong     RxStatus = 1 << 2
	RxRunt        RxStatus = 1 << 1
	RxCRCErr      RxStatus = 1 << 0
	rxErrorStatus          = RxICMPSumErr | RxIPSumErr | RxTCPSumErr | RxUDPSumErr | RxMIIErr | RxTooLong | RxRunt | RxCRCErr
)

// OK reports whether the chip marked the frame valid and error free.
func (s RxStatus) OK() bool {
	return s&RxValid != 0 && s&rxErrorStatus == 0
}

func (s RxStatus) String() string {
	names := []struct {
		bit  RxStatus
		name string
	}{
		{RxValid, "valid"}, {RxICMPSumErr, "icmp-sum"}, {RxIPSumErr, "ip-sum"}, {RxTCPSumErr, "tcp-sum"},
		{RxUDPSumErr, "udp-sum"}, {RxBroadcast, "bcast"}, {RxMulticast, "mcast"}, {RxUnicast, "ucast"},
		{RxMIIErr, "mii"}, {RxFrameType, "ethertype"}, {RxTooLong, "too-long"}, {RxRunt, "runt"}, {RxCRCErr, "crc"},
	}
	var parts []string
	for _, n := range names {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// TxControl is the first word of a TX burst.
type TxControl uint16

const (
	TxInterruptOnDone TxControl = 1 << 15
	txFrameIDMask     TxControl = 0x3F
)

func newTxControl(id uint8, irq bool) TxControl {
	c := TxControl(id) & txFrameIDMask
	if irq {
		c |= TxInterruptOnDone
	}
	return c
}

// FrameID returns the 6-bit frame id echoed back in TXSR.
func (c TxControl) FrameID() uint8 { return uint8(c & txFrameIDMask) }

// register bits used on the driver paths
const (
	grrGlobalReset uint16 = 1 << 0
	grrQMUReset    uint16 = 1 << 1

	mbirTxFail uint16 = 1 << 11
	mbirRxFail uint16 = 1 << 3

	txcrEnable      uint16 = 1 << 0
	txcrCRC         uint16 = 1 << 1
	txcrPad         uint16 = 1 << 2
	txcrFlowControl uint16 = 1 << 3
	txcrFlush       uint16 = 1 << 4
	txcrGenIP       uint16 = 1 << 5
	txcrGenTCP      uint16 = 1 << 6
	txcrGenICMP     uint16 = 1 << 8

	txsrMaxCollision  uint16 = 1 << 12
	txsrLateCollision uint16 = 1 << 13

	rxcr1Enable       uint16 = 1 << 0
	rxcr1Inverse      uint16 = 1 << 1
	rxcr1All          uint16 = 1 << 4
	rxcr1Unicast      uint16 = 1 << 5
	rxcr1Multicast    uint16 = 1 << 6
	rxcr1Broadcast    uint16 = 1 << 7
	rxcr1MulticastAF  uint16 = 1 << 8
	rxcr1ErrorFrames  uint16 = 1 << 9
	rxcr1FlowControl  uint16 = 1 << 10
	rxcr1PhysicalAF   uint16 = 1 << 11
	rxcr1CheckIP      uint16 = 1 << 12
	rxcr1CheckTCP     uint16 = 1 << 13
	rxcr1CheckUDP     uint16 = 1 << 14
	rxcr1Flush        uint16 = 1 << 15
	rxcr2CheckICMP    uint16 = 1 << 1
	rxcr2UDPLite      uint16 = 1 << 2
	rxcr2UDPZeroSum   uint16 = 1 << 3
	rxcr2IPv4Frag     uint16 = 1 << 4
	rxcr2SingleFrame  uint16 = 4 // SRDBL value
	txqcrManualEnq    uint16 = 1 << 0
	txqcrMemMonitor   uint16 = 1 << 1
	txqcrAutoEnq      uint16 = 1 << 2
	rxqcrRelease      uint16 = 1 << 0
	rxqcrStartDMA     uint16 = 1 << 3
	rxqcrAutoDequeue  uint16 = 1 << 4
	rxqcrCountThresh  uint16 = 1 << 5
	rxqcrIPHeaderOff  uint16 = 1 << 9
	fdprAutoIncrement uint16 = 1 << 14

	p1mbcrDisableLED uint16 = 1 << 0
	p1mbcrLoopback   uint16 = 1 << 14
	p1mbsrLinkUp     uint16 = 1 << 2
	p1mbsrANDone     uint16 = 1 << 5
	p1srLinkGood     uint16 = 1 << 5
	p1srANDone       uint16 = 1 << 6
	p1srFullDuplex   uint16 = 1 << 9
	p1srSpeed100     uint16 = 1 << 10
	phyrrReset       uint16 = 1 << 0
)

// chip identity
const (
	familyKSZ8851 = 0x88
	chipKSZ8851   = 0x7
)
