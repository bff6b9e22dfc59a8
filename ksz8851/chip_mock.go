package ksz8851

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math/bits"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soypat/lneto/phy"

	"github.com/mklimuk/ethspi"
)

// MockFrame is a frame queued in the simulated RX queue.
type MockFrame struct {
	Data []byte
	// Status defaults to RxValid|RxUnicast.
	Status RxStatus
	// ByteCount overrides the byte count the chip reports.
	ByteCount uint16
	// BadEcho makes the burst header disagree with RXFHSR/RXFHBCR.
	BadEcho bool
	// BadFCS corrupts the frame check sequence.
	BadFCS bool
}

// MockAccess is one register access seen by MockChip.
type MockAccess struct {
	Write bool
	Addr  uint8
	Width Width
	Value uint16
}

type MockChipStats struct {
	Transactions  int
	RegReads      int
	RegWrites     int
	RxBursts      int
	TxBursts      int
	RxDrops       int
	Misalignments int
	Resets        int
}

type MockChipOpts struct {
	StuckReset   bool
	StuckRelease bool
	ResetLatency int
	ChipID       uint16
	MBIR         uint16
	TxMemory     int
	Loopback     bool
}

type MockChipOpt func(*MockChipOpts)

// WithStuckReset keeps the chip in reset forever: CIDER reads as zero.
func WithStuckReset() MockChipOpt {
	return func(o *MockChipOpts) {
		o.StuckReset = true
	}
}

// WithResetLatency makes CIDER read as zero for the first n reads after a
// reset.
func WithResetLatency(n int) MockChipOpt {
	return func(o *MockChipOpts) {
		o.ResetLatency = n
	}
}

// WithStuckRelease keeps RXQCR.RRXEF set after a frame release.
func WithStuckRelease() MockChipOpt {
	return func(o *MockChipOpts) {
		o.StuckRelease = true
	}
}

func WithChipID(v uint16) MockChipOpt {
	return func(o *MockChipOpts) {
		o.ChipID = v
	}
}

func WithSelfTestResult(mbir uint16) MockChipOpt {
	return func(o *MockChipOpts) {
		o.MBIR = mbir
	}
}

func WithTxMemory(n int) MockChipOpt {
	return func(o *MockChipOpts) {
		o.TxMemory = n
	}
}

// WithMACLoopback feeds every transmitted frame back into the RX queue.
func WithMACLoopback() MockChipOpt {
	return func(o *MockChipOpts) {
		o.Loopback = true
	}
}

// MockChip simulates a KSZ8851SNL behind an SPI device. It decodes register
// commands, keeps the RX and TX queues and the interrupt status, and can be
// used wherever an ethspi.SPIDevice is expected.
//
// Example usage:
//
//	chip := NewMockChip()
//	dev := New(chip)
//	chip.InjectFrame(MockFrame{Data: frame})
type MockChip struct {
	mu   sync.Mutex
	opts MockChipOpts

	regs    [256]byte
	isr     IRQ
	rxQueue []MockFrame
	txQueue [][]byte
	txsr    uint16
	txFree  int
	sda     bool
	link    phy.LinkMode

	sent      [][]byte
	history   []MockAccess
	stats     MockChipStats
	rxRead    int
	bootReads int
	failAfter int
	failErr   error

	notify        chan struct{}
	concurrent    int32
	maxConcurrent int32
}

func NewMockChip(opts ...MockChipOpt) *MockChip {
	config := MockChipOpts{
		ChipID:   0x8872,
		TxMemory: txQueueSize,
	}
	for _, opt := range opts {
		opt(&config)
	}
	m := &MockChip{
		opts:   config,
		notify: make(chan struct{}, 1),
	}
	m.powerOn()
	return m
}

func (m *MockChip) powerOn() {
	m.regs = [256]byte{}
	m.isr = 0
	m.rxQueue = nil
	m.txQueue = nil
	m.txsr = 0
	m.txFree = m.opts.TxMemory
	m.sda = false
	m.bootReads = m.opts.ResetLatency
	m.set16(regCIDER, m.opts.ChipID)
	m.set16(regMBIR, m.opts.MBIR)
	m.set16(regPHY1IHR, 0x0022)
	m.set16(regPHY1ILR, 0x1430)
	m.set16(regP1MBCR, 0x3100)
	m.set16(regP1ANAR, 0x05E1)
	m.set16(regRXFCTR, 1)
	m.set16(regTXFDPR, fdprAutoIncrement)
	m.set16(regRXFDPR, fdprAutoIncrement)
	m.applyLink()
}

func (m *MockChip) get16(addr uint8) uint16 {
	return binary.LittleEndian.Uint16(m.regs[addr:])
}

func (m *MockChip) set16(addr uint8, v uint16) {
	binary.LittleEndian.PutUint16(m.regs[addr:], v)
}

// Transaction implements ethspi.SPIDevice.
func (m *MockChip) Transaction(ctx context.Context, segments ...ethspi.Segment) error {
	c := atomic.AddInt32(&m.concurrent, 1)
	for {
		mx := atomic.LoadInt32(&m.maxConcurrent)
		if c <= mx || atomic.CompareAndSwapInt32(&m.maxConcurrent, mx, c) {
			break
		}
	}
	defer atomic.AddInt32(&m.concurrent, -1)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Transactions++
	if m.failErr != nil {
		if m.failAfter == 0 {
			err := m.failErr
			m.failErr = nil
			return err
		}
		m.failAfter--
	}
	w, reads, err := ethspi.Split(segments)
	if err != nil {
		return err
	}
	if len(w) == 0 {
		return fmt.Errorf("mock chip: transaction without command")
	}
	switch w[0] >> 6 {
	case opRegRead, opRegWrite:
		return m.register(w, reads)
	case opRxRead:
		return m.rxBurst(reads)
	default:
		return m.txBurst(w[1:])
	}
}

func (m *MockChip) register(w []byte, reads []ethspi.Segment) error {
	if len(w) < 2 {
		return fmt.Errorf("mock chip: short register command")
	}
	op := w[0] >> 6
	be := (w[0] >> 2) & 0xF
	base := (w[0]&0x3)<<6 | (w[1]>>4)<<2
	lanes := bits.OnesCount8(be)
	var lane uint8
	switch be {
	case 0b0001, 0b0011:
		lane = 0
	case 0b0010:
		lane = 1
	case 0b0100, 0b1100:
		lane = 2
	case 0b1000:
		lane = 3
	default:
		return fmt.Errorf("mock chip: unsupported byte enable %04b", be)
	}
	addr := base + lane
	width := Width(lanes * 8)

	if op == opRegWrite {
		data := w[2:]
		if len(data) != lanes {
			return fmt.Errorf("mock chip: %d data bytes for %d lanes", len(data), lanes)
		}
		var v uint16
		for i, b := range data {
			v |= uint16(b) << (8 * i)
		}
		m.stats.RegWrites++
		m.history = append(m.history, MockAccess{Write: true, Addr: addr, Width: width, Value: v})
		m.write(addr, width, v)
		return nil
	}

	total := 0
	for _, r := range reads {
		total += len(r.R)
	}
	if total != lanes {
		return fmt.Errorf("mock chip: %d read bytes for %d lanes", total, lanes)
	}
	v := m.read(addr, width)
	m.stats.RegReads++
	m.history = append(m.history, MockAccess{Addr: addr, Width: width, Value: v})
	i := 0
	for _, r := range reads {
		for j := range r.R {
			r.R[j] = byte(v >> (8 * i))
			i++
		}
	}
	return nil
}

func (m *MockChip) read(addr uint8, w Width) uint16 {
	reg := addr &^ 1
	v := m.live16(reg)
	if w == Width8 {
		return (v >> (8 * (addr & 1))) & 0xFF
	}
	return v
}

func (m *MockChip) live16(reg uint8) uint16 {
	switch reg {
	case regCIDER:
		if m.opts.StuckReset {
			return 0
		}
		if m.bootReads > 0 {
			m.bootReads--
			return 0
		}
	case regISR:
		return uint16(m.isr)
	case regRXFCTR:
		return fieldRxFrameCount.Set(m.get16(reg), uint16(len(m.rxQueue)))
	case regRXFHSR:
		if len(m.rxQueue) == 0 {
			return 0
		}
		return uint16(m.rxQueue[0].Status)
	case regRXFHBCR:
		if len(m.rxQueue) == 0 {
			return 0
		}
		return m.rxQueue[0].ByteCount
	case regTXMIR:
		return uint16(m.txFree)
	case regTXSR:
		return m.txsr
	case regRXQCR:
		v := m.get16(reg) &^ rxqcrStartDMA
		if !m.opts.StuckRelease {
			v &^= rxqcrRelease
		}
		return v
	}
	return m.get16(reg)
}

func (m *MockChip) write(addr uint8, w Width, v uint16) {
	reg := addr &^ 1
	if w == Width8 {
		shift := 8 * (addr & 1)
		v = m.get16(reg)&^(0xFF<<shift) | (v&0xFF)<<shift
	}
	switch reg {
	case regGRR:
		if v&grrGlobalReset != 0 {
			m.stats.Resets++
			m.powerOn()
		}
		m.set16(reg, v)
	case regISR:
		m.isr &^= IRQ(v)
	case regRXQCR:
		m.sda = v&rxqcrStartDMA != 0
		m.set16(reg, v)
		if v&rxqcrRelease != 0 {
			m.release()
		}
	case regTXQCR:
		m.set16(reg, v&^txqcrManualEnq)
		if v&txqcrManualEnq != 0 {
			m.enqueue()
		}
		m.checkTxSpace()
	case regP1MBCR:
		m.set16(reg, v&^uint16(phy.BMCRANRestart|phy.BMCRReset))
	case regPHYRR:
		m.applyLink()
	default:
		m.set16(reg, v)
	}
}

func (m *MockChip) byteCount(f MockFrame) uint16 {
	if f.ByteCount != 0 {
		return f.ByteCount
	}
	n := len(f.Data) + fcsLen
	if m.get16(regRXQCR)&rxqcrIPHeaderOff != 0 {
		n += ipOffsetLen
	}
	return uint16(n)
}

// release drops the head frame the way RRXEF does.
func (m *MockChip) release() {
	if len(m.rxQueue) == 0 {
		return
	}
	m.rxRead += align4(int(m.rxQueue[0].ByteCount))
	m.rxQueue = m.rxQueue[1:]
	m.stats.RxDrops++
}

func (m *MockChip) rxBurst(reads []ethspi.Segment) error {
	m.stats.RxBursts++
	if !m.sda {
		m.stats.Misalignments++
		return fmt.Errorf("mock chip: rx burst without SDA")
	}
	if len(m.rxQueue) == 0 {
		m.stats.Misalignments++
		return fmt.Errorf("mock chip: rx burst on empty queue")
	}
	f := m.rxQueue[0]
	m.rxQueue = m.rxQueue[1:]
	bc := int(f.ByteCount)
	stream := make([]byte, rxPreambleLn, rxPreambleLn+align4(bc))
	status, count := f.Status, f.ByteCount
	if f.BadEcho {
		count++
	}
	binary.LittleEndian.PutUint16(stream[4:], uint16(status))
	binary.LittleEndian.PutUint16(stream[6:], count)
	if m.get16(regRXQCR)&rxqcrIPHeaderOff != 0 {
		stream = append(stream, 0, 0)
	}
	stream = append(stream, f.Data...)
	fcs := crc32.ChecksumIEEE(f.Data)
	if f.BadFCS {
		fcs = ^fcs
	}
	stream = binary.LittleEndian.AppendUint32(stream, fcs)
	for len(stream) < rxPreambleLn+align4(bc) {
		stream = append(stream, 0)
	}
	stream = stream[:rxPreambleLn+align4(bc)]

	total := 0
	for _, r := range reads {
		total += copy(r.R, stream[total:])
	}
	if total != len(stream) {
		m.stats.Misalignments++
	}
	m.rxRead += align4(bc)
	return nil
}

func (m *MockChip) txBurst(data []byte) error {
	m.stats.TxBursts++
	if !m.sda {
		m.stats.Misalignments++
		return fmt.Errorf("mock chip: tx burst without SDA")
	}
	if len(data) < txHeaderLen {
		return fmt.Errorf("mock chip: short tx burst")
	}
	n := int(binary.LittleEndian.Uint16(data[2:]))
	if len(data) != txHeaderLen+align4(n) {
		m.stats.Misalignments++
		return fmt.Errorf("mock chip: tx burst of %d bytes for frame of %d", len(data), n)
	}
	m.txQueue = append(m.txQueue, append([]byte(nil), data...))
	m.txFree -= len(data)
	return nil
}

// enqueue transmits every frame written since the last METFE.
func (m *MockChip) enqueue() {
	for _, burst := range m.txQueue {
		ctrl := TxControl(binary.LittleEndian.Uint16(burst))
		n := int(binary.LittleEndian.Uint16(burst[2:]))
		frame := append([]byte(nil), burst[txHeaderLen:txHeaderLen+n]...)
		m.sent = append(m.sent, frame)
		m.txFree += len(burst)
		m.txsr = uint16(ctrl.FrameID())
		if ctrl&TxInterruptOnDone != 0 {
			m.raise(IRQTxDone)
		}
		if m.opts.Loopback {
			m.inject(MockFrame{Data: frame})
		}
	}
	m.txQueue = nil
}

func (m *MockChip) checkTxSpace() {
	if m.get16(regTXQCR)&txqcrMemMonitor == 0 {
		return
	}
	if m.txFree >= int(m.get16(regTXNTFSR)) {
		m.set16(regTXQCR, m.get16(regTXQCR)&^txqcrMemMonitor)
		m.raise(IRQTxSpace)
	}
}

func (m *MockChip) raise(b IRQ) {
	m.isr |= b
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *MockChip) inject(f MockFrame) {
	if f.Status == 0 {
		f.Status = RxValid | RxUnicast
	}
	if len(f.Data) >= 6 && f.Data[0]&1 != 0 {
		f.Status &^= RxUnicast
		if MAC(f.Data[:6]) == (MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}) {
			f.Status |= RxBroadcast
		} else {
			f.Status |= RxMulticast
		}
	}
	f.ByteCount = m.byteCount(f)
	f.Data = append([]byte(nil), f.Data...)
	m.rxQueue = append(m.rxQueue, f)
	m.raise(IRQRx)
}

// InjectFrame queues frames as if they arrived from the wire.
func (m *MockChip) InjectFrame(frames ...MockFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range frames {
		m.inject(f)
	}
}

// SetLink changes the PHY state and raises a link change interrupt.
// phy.LinkDown takes the link down.
func (m *MockChip) SetLink(mode phy.LinkMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.link = mode
	m.applyLink()
	m.raise(IRQLinkChange)
}

func (m *MockChip) applyLink() {
	bmsr := uint16(phy.BMSR100Full | phy.BMSR100Half | phy.BMSR10Full | phy.BMSR10Half | phy.BMSRANCap | phy.BMSRExtCap)
	var p1sr, anlpr uint16
	if m.link != phy.LinkDown {
		bmsr |= uint16(phy.BMSRLinkStatus | phy.BMSRANComplete)
		anlpr = uint16(m.link.ANAR() | phy.ANARSelector8023 | phy.ANARAck)
		p1sr = p1srLinkGood | p1srANDone
		if m.link.SpeedMbps() == 100 {
			p1sr |= p1srSpeed100
		}
		if m.link.IsFullDuplex() {
			p1sr |= p1srFullDuplex
		}
	}
	m.set16(regP1MBSR, bmsr)
	m.set16(regP1SR, p1sr)
	m.set16(regP1ANLPR, anlpr)
}

// SetTxMemory sets the free TX queue memory TXMIR reports.
func (m *MockChip) SetTxMemory(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txFree = n
	m.checkTxSpace()
}

// FailAfter makes the transaction after the next n ones fail with err.
func (m *MockChip) FailAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.failErr = err
}

// Sent returns the frames transmitted so far.
func (m *MockChip) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.sent...)
}

func (m *MockChip) Stats() MockChipStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// History returns the register accesses since the last ClearHistory.
func (m *MockChip) History() []MockAccess {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockAccess(nil), m.history...)
}

func (m *MockChip) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
}

// Register returns the stored value of a register without side effects.
func (m *MockChip) Register(addr uint8) uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get16(addr &^ 1)
}

// PendingIRQ returns the latched ISR bits.
func (m *MockChip) PendingIRQ() IRQ {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isr
}

// PendingFrames is the number of frames still in the RX queue.
func (m *MockChip) PendingFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rxQueue)
}

// RxBytesConsumed is how far the RX read pointer has advanced, in 4-byte
// aligned units of frame byte counts.
func (m *MockChip) RxBytesConsumed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rxRead
}

func (m *MockChip) MaxConcurrent() int {
	return int(atomic.LoadInt32(&m.maxConcurrent))
}

// Asserted reports the level of the simulated INTRN line.
func (m *MockChip) Asserted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isr&IRQ(m.get16(regIER)) != 0
}

// WaitForEdge implements ethspi.InterruptLine.
func (m *MockChip) WaitForEdge(timeout time.Duration) bool {
	if m.Asserted() {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-m.notify:
		return m.Asserted()
	case <-timer.C:
		return false
	}
}
