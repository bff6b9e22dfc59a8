package ethspi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenScatter(t *testing.T) {
	hdr := make([]byte, 2)
	data := make([]byte, 3)
	segs := []Segment{Write([]byte{0xAA, 0xBB}), Read(hdr), Read(data)}
	tx := Flatten(make([]byte, 0, Len(segs)), segs)
	assert.Equal(t, []byte{0xAA, 0xBB, 0, 0, 0, 0, 0}, tx)

	rx := []byte{0xFF, 0xFF, 1, 2, 3, 4, 5}
	Scatter(rx, segs)
	assert.Equal(t, []byte{1, 2}, hdr)
	assert.Equal(t, []byte{3, 4, 5}, data)
}

func TestSplit(t *testing.T) {
	r := make([]byte, 2)
	w, reads, err := Split([]Segment{Write([]byte{1}), Write([]byte{2, 3}), Read(r)})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, w)
	assert.Len(t, reads, 1)

	_, _, err = Split([]Segment{Read(r), Write([]byte{1})})
	assert.ErrorIs(t, err, ErrSegmentOrder)
}
