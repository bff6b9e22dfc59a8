package ksz8851

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Register addresses (KSZ8851SNL datasheet, section 4 register map).
const (
	regCCR     uint8 = 0x08
	regMARL    uint8 = 0x10
	regMARM    uint8 = 0x12
	regMARH    uint8 = 0x14
	regOBCR    uint8 = 0x20
	regEEPCR   uint8 = 0x22
	regMBIR    uint8 = 0x24
	regGRR     uint8 = 0x26
	regWFCR    uint8 = 0x2A
	regTXCR    uint8 = 0x70
	regTXSR    uint8 = 0x72
	regRXCR1   uint8 = 0x74
	regRXCR2   uint8 = 0x76
	regTXMIR   uint8 = 0x78
	regRXFHSR  uint8 = 0x7C
	regRXFHBCR uint8 = 0x7E
	regTXQCR   uint8 = 0x80
	regRXQCR   uint8 = 0x82
	regTXFDPR  uint8 = 0x84
	regRXFDPR  uint8 = 0x86
	regRXDTTR  uint8 = 0x8C
	regRXDBCTR uint8 = 0x8E
	regIER     uint8 = 0x90
	regISR     uint8 = 0x92
	regRXFCTR  uint8 = 0x9C
	regTXNTFSR uint8 = 0x9E
	regMAHTR0  uint8 = 0xA0
	regMAHTR1  uint8 = 0xA2
	regMAHTR2  uint8 = 0xA4
	regMAHTR3  uint8 = 0xA6
	regFCLWR   uint8 = 0xB0
	regFCHWR   uint8 = 0xB2
	regFCOWR   uint8 = 0xB4
	regCIDER   uint8 = 0xC0
	regCGCR    uint8 = 0xC6
	regIACR    uint8 = 0xC8
	regPMECR   uint8 = 0xD4
	regPHYRR   uint8 = 0xD8
	regPHY1ILR uint8 = 0xE0
	regPHY1IHR uint8 = 0xE2
	regP1MBCR  uint8 = 0xE4
	regP1MBSR  uint8 = 0xE6
	regP1ANAR  uint8 = 0xE8
	regP1ANLPR uint8 = 0xEA
	regP1SCLMD uint8 = 0xF4
	regP1CR    uint8 = 0xF6
	regP1SR    uint8 = 0xF8
)

// Access describes what the host may do with a register or field.
type Access uint8

const (
	RO Access = iota + 1
	WO
	RW
)

func (a Access) String() string {
	switch a {
	case RO:
		return "RO"
	case WO:
		return "WO"
	case RW:
		return "RW"
	default:
		return "??"
	}
}

// Field is a named bit range inside a register value.
type Field struct {
	Name   string
	Offset uint8
	Width  uint8
	Access Access
}

func bit(name string, offset uint8, access Access) Field {
	return Field{Name: name, Offset: offset, Width: 1, Access: access}
}

func bitRange(name string, lo, hi uint8, access Access) Field {
	return Field{Name: name, Offset: lo, Width: hi - lo + 1, Access: access}
}

// Mask returns the field bits in register position.
func (f Field) Mask() uint16 {
	return uint16(1<<f.Width-1) << f.Offset
}

// Get extracts the field from a register value.
func (f Field) Get(v uint16) uint16 {
	return (v & f.Mask()) >> f.Offset
}

// Set returns v with the field replaced by x. Bits of x beyond the field width are dropped.
func (f Field) Set(v, x uint16) uint16 {
	return v&^f.Mask() | (x<<f.Offset)&f.Mask()
}

// Register is the static description of one chip register.
type Register struct {
	Name   string
	Addr   uint8
	Width  Width
	Desc   string
	Fields []Field
}

// FieldValue is one decoded field of a register value.
type FieldValue struct {
	Field
	Value uint16
}

// Decode splits a raw register value into its fields.
func (r Register) Decode(v uint16) []FieldValue {
	out := make([]FieldValue, 0, len(r.Fields))
	for _, f := range r.Fields {
		out = append(out, FieldValue{Field: f, Value: f.Get(v)})
	}
	return out
}

// Field returns the named field of the register.
func (r Register) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// Writable reports whether any field of the register accepts host writes.
func (r Register) Writable() bool {
	for _, f := range r.Fields {
		if f.Access != RO {
			return true
		}
	}
	return false
}

// Multi-bit fields the driver works with directly.
var (
	fieldRxByteCount   = bitRange("rxbc", 0, 11, RO)
	fieldRxFrameCount  = bitRange("rxfc", 8, 15, RO)
	fieldRxFrameThresh = bitRange("rxfct", 0, 7, RW)
	fieldTxMemAvail    = bitRange("txma", 0, 12, RO)
	fieldTxFrameID     = bitRange("txfid", 0, 5, RO)
	fieldFamilyID      = bitRange("family_id", 8, 15, RO)
	fieldChipID        = bitRange("chip_id", 4, 7, RO)
	fieldRevisionID    = bitRange("revision_id", 1, 3, RO)
	fieldRxBurstLength = bitRange("srdbl", 5, 7, WO)
	fieldWatermark     = bitRange("watermark", 0, 11, RW)
)

var registers = []Register{
	{Name: "CCR", Addr: regCCR, Width: Width16, Desc: "Chip Configuration", Fields: []Field{
		bit("eeprom_presence", 9, RO), bit("spi_bus_mode", 8, RO), bit("x32_pin_package", 0, RO),
	}},
	{Name: "MARL", Addr: regMARL, Width: Width16, Desc: "Host MAC Address Low", Fields: []Field{
		bitRange("ma0", 0, 7, RW), bitRange("ma1", 8, 15, RW),
	}},
	{Name: "MARM", Addr: regMARM, Width: Width16, Desc: "Host MAC Address Middle", Fields: []Field{
		bitRange("ma2", 0, 7, RW), bitRange("ma3", 8, 15, RW),
	}},
	{Name: "MARH", Addr: regMARH, Width: Width16, Desc: "Host MAC Address High", Fields: []Field{
		bitRange("ma4", 0, 7, RW), bitRange("ma5", 8, 15, RW),
	}},
	{Name: "OBCR", Addr: regOBCR, Width: Width16, Desc: "On-chip Bus Control", Fields: []Field{
		bit("output_pin_drive_strength", 6, RW), bit("on_chip_bus_clock_selection", 2, RW),
		bitRange("on_chip_bus_clock_divider", 0, 1, RW),
	}},
	{Name: "EEPCR", Addr: regEEPCR, Width: Width16, Desc: "EEPROM Control", Fields: []Field{
		bit("eesrwa", 5, WO), bit("eesa", 4, RW), bit("eesb", 3, RO),
		bit("eecb_data_transmit", 2, RW), bit("eecb_serial_clock", 1, RW), bit("eecb_chip_select", 0, RW),
	}},
	{Name: "MBIR", Addr: regMBIR, Width: Width16, Desc: "Memory BIST Info", Fields: []Field{
		bit("txmbf", 12, RO), bit("txmbfa", 11, RO), bitRange("txmbfc", 8, 10, RO),
		bit("rxmbf", 4, RO), bit("rxmbfa", 3, RO), bitRange("rxmbfc", 0, 2, RO),
	}},
	{Name: "GRR", Addr: regGRR, Width: Width16, Desc: "Global Reset", Fields: []Field{
		bit("qmu_module_soft_reset", 1, RW), bit("global_soft_reset", 0, RW),
	}},
	{Name: "WFCR", Addr: regWFCR, Width: Width16, Desc: "Wakeup Frame Control", Fields: []Field{
		bit("mprxe", 7, RW), bit("wf3e", 3, RW), bit("wf2e", 2, RW), bit("wf1e", 1, RW), bit("wf0e", 0, RW),
	}},
	{Name: "TXCR", Addr: regTXCR, Width: Width16, Desc: "Transmit Control", Fields: []Field{
		bit("tcgicmp", 8, RW), bit("tcgtcp", 6, RW), bit("tcgip", 5, RW), bit("ftxq", 4, RW),
		bit("txfce", 3, RW), bit("txpe", 2, RW), bit("txce", 1, RW), bit("txe", 0, RW),
	}},
	{Name: "TXSR", Addr: regTXSR, Width: Width16, Desc: "Transmit Status", Fields: []Field{
		bit("txlc", 13, RO), bit("txmc", 12, RO), fieldTxFrameID,
	}},
	{Name: "RXCR1", Addr: regRXCR1, Width: Width16, Desc: "Receive Control 1", Fields: []Field{
		bit("frxq", 15, RW), bit("rxudpfcc", 14, RW), bit("rxtcpfcc", 13, RW), bit("rxipfcc", 12, RW),
		bit("rxpafma", 11, RW), bit("rxfce", 10, RW), bit("rxefe", 9, RW), bit("rxmafma", 8, RW),
		bit("rxbe", 7, RW), bit("rxme", 6, RW), bit("rxue", 5, RW), bit("rxae", 4, RW),
		bit("rxinvf", 1, RW), bit("rxe", 0, RW),
	}},
	{Name: "RXCR2", Addr: regRXCR2, Width: Width16, Desc: "Receive Control 2", Fields: []Field{
		fieldRxBurstLength, bit("iufpp", 4, RW), bit("rxiufcez", 3, RW), bit("udplfe", 2, RW),
		bit("rxicmpfcc", 1, RW), bit("rxsaf", 0, RW),
	}},
	{Name: "TXMIR", Addr: regTXMIR, Width: Width16, Desc: "TXQ Memory Information", Fields: []Field{
		fieldTxMemAvail,
	}},
	{Name: "RXFHSR", Addr: regRXFHSR, Width: Width16, Desc: "Receive Frame Header Status", Fields: []Field{
		bit("rxfv", 15, RO), bit("rxicmpfcs", 13, RO), bit("rxipfcs", 12, RO), bit("rxtcpfcs", 11, RO),
		bit("rxudpfcs", 10, RO), bit("rxbf", 7, RO), bit("rxmf", 6, RO), bit("rxuf", 5, RO),
		bit("rxmr", 4, RO), bit("rxft", 3, RO), bit("rxftl", 2, RO), bit("rxrf", 1, RO), bit("rxce", 0, RO),
	}},
	{Name: "RXFHBCR", Addr: regRXFHBCR, Width: Width16, Desc: "Receive Frame Header Byte Count", Fields: []Field{
		fieldRxByteCount,
	}},
	{Name: "TXQCR", Addr: regTXQCR, Width: Width16, Desc: "TXQ Command", Fields: []Field{
		bit("aetfe", 2, RW), bit("txqmam", 1, RW), bit("metfe", 0, RW),
	}},
	{Name: "RXQCR", Addr: regRXQCR, Width: Width16, Desc: "RXQ Command", Fields: []Field{
		bit("rxdtts", 12, RO), bit("rxdbcts", 11, RO), bit("rxfcts", 10, RO), bit("rxiphtoe", 9, RW),
		bit("rxdtte", 7, RW), bit("rxdbcte", 6, RW), bit("rxfcte", 5, RW), bit("adrfe", 4, RW),
		bit("sda", 3, WO), bit("rrxef", 0, RW),
	}},
	{Name: "TXFDPR", Addr: regTXFDPR, Width: Width16, Desc: "TX Frame Data Pointer", Fields: []Field{
		bit("txfpai", 14, RW), bitRange("txfp", 0, 10, RO),
	}},
	{Name: "RXFDPR", Addr: regRXFDPR, Width: Width16, Desc: "RX Frame Data Pointer", Fields: []Field{
		bit("rxfpai", 14, RW), bitRange("rxfp", 0, 10, WO),
	}},
	{Name: "RXDTTR", Addr: regRXDTTR, Width: Width16, Desc: "RX Duration Timer Threshold", Fields: []Field{
		bitRange("rxdtt", 0, 15, RW),
	}},
	{Name: "RXDBCTR", Addr: regRXDBCTR, Width: Width16, Desc: "RX Data Byte Count Threshold", Fields: []Field{
		bitRange("rxdbct", 0, 15, RW),
	}},
	{Name: "IER", Addr: regIER, Width: Width16, Desc: "Interrupt Enable", Fields: irqFields(RW, true)},
	{Name: "ISR", Addr: regISR, Width: Width16, Desc: "Interrupt Status", Fields: irqFields(RW, false)},
	{Name: "RXFCTR", Addr: regRXFCTR, Width: Width16, Desc: "RX Frame Count & Threshold", Fields: []Field{
		fieldRxFrameCount, fieldRxFrameThresh,
	}},
	{Name: "TXNTFSR", Addr: regTXNTFSR, Width: Width16, Desc: "TX Next Total Frames Size", Fields: []Field{
		bitRange("txntfs", 0, 15, RW),
	}},
	{Name: "MAHTR0", Addr: regMAHTR0, Width: Width16, Desc: "MAC Address Hash Table 0", Fields: []Field{bitRange("ht0", 0, 15, RW)}},
	{Name: "MAHTR1", Addr: regMAHTR1, Width: Width16, Desc: "MAC Address Hash Table 1", Fields: []Field{bitRange("ht1", 0, 15, RW)}},
	{Name: "MAHTR2", Addr: regMAHTR2, Width: Width16, Desc: "MAC Address Hash Table 2", Fields: []Field{bitRange("ht2", 0, 15, RW)}},
	{Name: "MAHTR3", Addr: regMAHTR3, Width: Width16, Desc: "MAC Address Hash Table 3", Fields: []Field{bitRange("ht3", 0, 15, RW)}},
	{Name: "FCLWR", Addr: regFCLWR, Width: Width16, Desc: "Flow Control Low Watermark", Fields: []Field{fieldWatermark}},
	{Name: "FCHWR", Addr: regFCHWR, Width: Width16, Desc: "Flow Control High Watermark", Fields: []Field{fieldWatermark}},
	{Name: "FCOWR", Addr: regFCOWR, Width: Width16, Desc: "Flow Control Overrun Watermark", Fields: []Field{fieldWatermark}},
	{Name: "CIDER", Addr: regCIDER, Width: Width16, Desc: "Chip ID and Enable", Fields: []Field{
		fieldFamilyID, fieldChipID, fieldRevisionID,
	}},
	{Name: "CGCR", Addr: regCGCR, Width: Width16, Desc: "Chip Global Control", Fields: []Field{
		bit("ledsel0", 9, RW),
	}},
	{Name: "IACR", Addr: regIACR, Width: Width16, Desc: "Indirect Access Control", Fields: []Field{
		bit("read_enable", 12, RW), bitRange("table_select", 10, 11, RW), bitRange("indirect_address", 0, 4, RW),
	}},
	{Name: "PMECR", Addr: regPMECR, Width: Width16, Desc: "Power Management Event Control", Fields: []Field{
		bit("pme_delay_enable", 14, RW), bit("pme_output_polarity", 12, RW),
		bitRange("wake_up_event_enable", 8, 11, RW), bitRange("wake_up_event_status", 2, 5, RW),
		bitRange("power_management_mode", 0, 1, RW),
	}},
	{Name: "PHYRR", Addr: regPHYRR, Width: Width16, Desc: "PHY Reset", Fields: []Field{
		bit("phy_reset", 0, WO),
	}},
	{Name: "PHY1ILR", Addr: regPHY1ILR, Width: Width16, Desc: "PHY 1 ID Low", Fields: []Field{bitRange("phy_id_low", 0, 15, RO)}},
	{Name: "PHY1IHR", Addr: regPHY1IHR, Width: Width16, Desc: "PHY 1 ID High", Fields: []Field{bitRange("phy_id_high", 0, 15, RO)}},
	{Name: "P1MBCR", Addr: regP1MBCR, Width: Width16, Desc: "Port 1 MII Basic Control", Fields: []Field{
		bit("local_far_end_loopback", 14, RW), bit("force_100", 13, RW), bit("an_enable", 12, RW),
		bit("power_down", 11, RW), bit("isolate", 10, RW), bit("restart_an", 9, RW),
		bit("force_full_duplex", 8, RW), bit("collision_test", 7, RW), bit("hp_mdix", 5, RW),
		bit("force_mdix", 4, RW), bit("disable_mdix", 3, RW), bit("disable_far_end_fault", 2, RW),
		bit("disable_transmit", 1, RW), bit("disable_led", 0, RW),
	}},
	{Name: "P1MBSR", Addr: regP1MBSR, Width: Width16, Desc: "Port 1 MII Basic Status", Fields: []Field{
		bit("t4_capable", 15, RO), bit("x100_full_capable", 14, RO), bit("x100_half_capable", 13, RO),
		bit("x10_full_capable", 12, RO), bit("x10_half_capable", 11, RO), bit("an_complete", 5, RO),
		bit("an_capable", 3, RO), bit("link_status", 2, RO), bit("extended_capable", 0, RO),
	}},
	{Name: "P1ANAR", Addr: regP1ANAR, Width: Width16, Desc: "Port 1 Auto-Negotiation Advertisement", Fields: []Field{
		bit("next_page", 15, RO), bit("remote_fault", 13, RO), bit("pause", 10, RW),
		bit("adv_100_full", 8, RW), bit("adv_100_half", 7, RW), bit("adv_10_full", 6, RW),
		bit("adv_10_half", 5, RW), bitRange("selector", 0, 4, RO),
	}},
	{Name: "P1ANLPR", Addr: regP1ANLPR, Width: Width16, Desc: "Port 1 Auto-Negotiation Link Partner Ability", Fields: []Field{
		bit("next_page", 15, RO), bit("lp_ack", 14, RO), bit("remote_fault", 13, RO), bit("pause", 10, RO),
		bit("adv_100_full", 8, RO), bit("adv_100_half", 7, RO), bit("adv_10_full", 6, RO),
		bit("adv_10_half", 5, RO), bitRange("selector", 0, 4, RO),
	}},
	{Name: "P1SCLMD", Addr: regP1SCLMD, Width: Width16, Desc: "Port 1 PHY Special Control/Status, LinkMD", Fields: []Field{
		bit("vct_result", 13, RO), bit("vct_enable", 12, RW), bit("force_link", 11, RW),
		bit("remote_loopback", 9, RW), bitRange("vct_fault_count", 0, 8, RO),
	}},
	{Name: "P1CR", Addr: regP1CR, Width: Width16, Desc: "Port 1 Control", Fields: []Field{
		bit("led_off", 15, RW), bit("txids", 14, RW), bit("restart_an", 13, RW), bit("disable_auto_mdix", 10, RW),
		bit("force_mdix", 9, RW), bit("auto_neg_enable", 7, RW), bit("force_speed", 6, RW),
		bit("force_duplex", 5, RW), bit("adv_flow_control", 4, RW), bit("adv_100_full", 3, RW),
		bit("adv_100_half", 2, RW), bit("adv_10_full", 1, RW), bit("adv_10_half", 0, RW),
	}},
	{Name: "P1SR", Addr: regP1SR, Width: Width16, Desc: "Port 1 Status", Fields: []Field{
		bit("hp_mdix", 15, RO), bit("polarity_reverse", 13, RO), bit("operation_speed", 10, RO),
		bit("operation_duplex", 9, RO), bit("mdix_status", 7, RO), bit("an_done", 6, RO),
		bit("link_good", 5, RO), bit("partner_flow_control", 4, RO), bit("partner_100_full", 3, RO),
		bit("partner_100_half", 2, RO), bit("partner_10_full", 1, RO), bit("partner_10_half", 0, RO),
	}},
}

func irqFields(access Access, withDelayedEnergy bool) []Field {
	fs := []Field{
		bit("lci", 15, access), bit("txi", 14, access), bit("rxi", 13, access), bit("rxoi", 11, access),
		bit("txpsi", 9, access), bit("rxpsi", 8, access), bit("txsai", 6, access), bit("rxwfdi", 5, access),
		bit("rxmpdi", 4, access), bit("ldi", 3, access), bit("edi", 2, access), bit("spibei", 1, access),
	}
	if withDelayedEnergy {
		fs = append(fs, bit("dedi", 0, access))
	}
	return fs
}

var registerByAddr = func() map[uint8]Register {
	m := make(map[uint8]Register, len(registers))
	for _, r := range registers {
		m[r.Addr] = r
	}
	return m
}()

// Registers returns the register table ordered by address.
func Registers() []Register {
	out := make([]Register, len(registers))
	copy(out, registers)
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// LookupRegister finds a register by name (case insensitive) or by address
// written as a Go integer literal (0x7C, 124).
func LookupRegister(key string) (Register, error) {
	for _, r := range registers {
		if strings.EqualFold(r.Name, key) {
			return r, nil
		}
	}
	addr, err := strconv.ParseUint(key, 0, 8)
	if err != nil {
		return Register{}, fmt.Errorf("ksz8851: unknown register %q", key)
	}
	if r, ok := registerByAddr[uint8(addr)]; ok {
		return r, nil
	}
	return Register{}, fmt.Errorf("ksz8851: no register at %#02x", addr)
}
