package spi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/spi"

	"github.com/mklimuk/ethspi"
)

type MockConn struct {
	mock.Mock
}

func (m *MockConn) String() string       { return "mock spi" }
func (m *MockConn) Halt() error          { return nil }
func (m *MockConn) Duplex() conn.Duplex  { return conn.Full }
func (m *MockConn) Tx(w, r []byte) error { return m.Called(w, r).Error(0) }
func (m *MockConn) TxPackets(p []spi.Packet) error {
	args := m.Called(p)
	// simulate the chip answering on the read legs
	for _, pk := range p {
		for i := range pk.R {
			pk.R[i] = byte(0xA0 + i)
		}
	}
	return args.Error(0)
}

func TestPacketsKeepChipSelect(t *testing.T) {
	cmd := []byte{0x0F, 0x00}
	buf := make([]byte, 2)
	p := packetsFor([]ethspi.Segment{ethspi.Write(cmd), {}, ethspi.Read(buf)})
	require.Len(t, p, 2)
	assert.True(t, p[0].KeepCS)
	assert.False(t, p[1].KeepCS)
	assert.Equal(t, cmd, p[0].W)
	assert.Nil(t, p[0].R)
	assert.Len(t, p[1].R, 2)

	assert.Empty(t, packetsFor(nil))
}

func TestGenericBusTransaction(t *testing.T) {
	c := new(MockConn)
	b := &GenericBus{conn: c}
	ctx := context.Background()

	buf := make([]byte, 3)
	c.On("TxPackets", mock.MatchedBy(func(p []spi.Packet) bool {
		return len(p) == 2 && p[0].KeepCS && !p[1].KeepCS
	})).Return(nil).Once()
	require.NoError(t, b.Transaction(ctx, ethspi.Write([]byte{0x80}), ethspi.Read(buf)))
	assert.Equal(t, []byte{0xA0, 0xA1, 0xA2}, buf)

	wire := errors.New("spidev: EIO")
	c.On("TxPackets", mock.Anything).Return(wire).Once()
	err := b.Transaction(ctx, ethspi.Write([]byte{0x4E, 0x00, 0x01, 0x00}))
	assert.ErrorIs(t, err, wire)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, b.Transaction(cctx, ethspi.Write([]byte{0})), context.Canceled)
	c.AssertNumberOfCalls(t, "TxPackets", 2)
}

type fakeGobotConn struct {
	writes   [][]byte
	commands [][]byte
	answer   []byte
}

func (f *fakeGobotConn) ReadCommandData(command []byte, data []byte) error {
	f.commands = append(f.commands, append([]byte(nil), command...))
	copy(data, f.answer)
	return nil
}

func (f *fakeGobotConn) WriteBytes(data []byte) error {
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func TestGobotBusTransaction(t *testing.T) {
	f := &fakeGobotConn{answer: []byte{1, 2, 3, 4, 5, 6}}
	b := &GobotBus{ops: f}
	ctx := context.Background()

	require.NoError(t, b.Transaction(ctx, ethspi.Write([]byte{0x4C, 0x50}), ethspi.Write([]byte{0x34, 0x12})))
	assert.Equal(t, [][]byte{{0x4C, 0x50, 0x34, 0x12}}, f.writes)

	first, second := make([]byte, 2), make([]byte, 4)
	require.NoError(t, b.Transaction(ctx, ethspi.Write([]byte{0x80}), ethspi.Read(first), ethspi.Read(second)))
	assert.Equal(t, [][]byte{{0x80}}, f.commands)
	assert.Equal(t, []byte{1, 2}, first)
	assert.Equal(t, []byte{3, 4, 5, 6}, second)

	err := b.Transaction(ctx, ethspi.Read(first), ethspi.Write([]byte{1}))
	assert.ErrorIs(t, err, ethspi.ErrSegmentOrder)

	assert.Error(t, (&GobotBus{}).Transaction(ctx, ethspi.Write([]byte{1})))
}
