package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16(t *testing.T) {
	assert.Equal(t, uint16(0xFFFF), CRC16(nil))
	assert.Equal(t, uint16(0x6F91), CRC16([]byte("123456789")))
	assert.Equal(t, CRC16([]byte{1, 2, 3, 4, 5}), CRC16([]byte{1, 2, 3, 4, 5}))
	assert.NotEqual(t, CRC16([]byte{1, 2, 3}), CRC16([]byte{1, 2, 4}))
}
