package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVLQInt(t *testing.T) {
	testCases := []struct {
		value int32
		size  int
	}{
		{0, 1},
		{1, 1},
		{-1, 1},
		{95, 1},
		{96, 2},
		{-32, 1},
		{-33, 2},
		{127, 2},
		{-128, 2},
		{1000, 2},
		{-65535, 3},
		{1000000, 3},
		{-1000000, 4},
		{1 << 30, 5},
		{-1 << 31, 5},
	}

	for _, tc := range testCases {
		encoded := AppendVLQ(nil, tc.value)
		assert.Len(t, encoded, tc.size, "value %d", tc.value)

		data := encoded
		decoded, err := ReadVLQ(&data)
		require.NoError(t, err, "value %d", tc.value)
		assert.Equal(t, tc.value, decoded)
		assert.Empty(t, data)
	}
}

func TestVLQUint(t *testing.T) {
	for _, expected := range []uint32{0, 127, 128, 65535, 0x80000000, 0xffffffff} {
		data := AppendVLQUint(nil, expected)
		decoded, err := ReadVLQUint(&data)
		require.NoError(t, err)
		assert.Equal(t, expected, decoded)
	}

	data := AppendVLQUint64(nil, 0x0123456789abcdef)
	v, err := ReadVLQUint64(&data)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0123456789abcdef), v)
}

func TestVLQSequence(t *testing.T) {
	var buf []byte
	buf = AppendVLQ(buf, -5)
	buf = AppendVLQBytes(buf, []byte("pio"))
	buf = AppendVLQUint(buf, 300)

	v, err := ReadVLQ(&buf)
	require.NoError(t, err)
	assert.Equal(t, int32(-5), v)
	b, err := ReadVLQBytes(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("pio"), b)
	u, err := ReadVLQUint(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(300), u)
}

func TestVLQErrors(t *testing.T) {
	data := []byte{0x80}
	_, err := ReadVLQ(&data)
	assert.ErrorIs(t, err, ErrBufferTooSmall)

	data = []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}
	_, err = ReadVLQ(&data)
	assert.ErrorIs(t, err, ErrInvalidVLQ)

	data = []byte{0x05, 'a'}
	_, err = ReadVLQBytes(&data)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
}
