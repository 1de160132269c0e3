package protocol

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pioemu/core"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		WallClock: 1 << 40,
		Ctrl:      0x5,
		FStat:     0x0f000f00,
		FLevel:    0x00030000,
		PadOut:    0xa5a5a5a5,
		PadOE:     0xffffffff,
		SMs: [core.SMCount]SMSnapshot{
			{PC: 3, ClkDiv: core.SM_CLKDIV_Reset},
			{PC: 31, ClkDiv: 0xffffff00},
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := sampleSnapshot()
	data, err := s.MarshalBinary()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), MessagePayloadMax)

	var got Snapshot
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, s, got)
}

func TestSnapshotRejectsBadInput(t *testing.T) {
	s := sampleSnapshot()
	data, err := s.MarshalBinary()
	require.NoError(t, err)

	var got Snapshot
	assert.ErrorIs(t, got.UnmarshalBinary(data[:len(data)-1]), ErrBufferTooSmall)
	assert.ErrorIs(t, got.UnmarshalBinary(append(data, 0)), ErrInvalidVLQ)

	s.SMs[0].PC = 0
	data, err = s.MarshalBinary()
	require.NoError(t, err)
	// patch the encoded pc of sm0 (follows 2+5 values) to 40
	var prefix []byte
	prefix = AppendVLQUint64(prefix, s.WallClock)
	for _, v := range []uint32{s.Ctrl, s.FStat, s.FLevel, s.PadOut, s.PadOE} {
		prefix = AppendVLQUint(prefix, v)
	}
	data[len(prefix)] = 40
	assert.ErrorIs(t, got.UnmarshalBinary(data), core.ErrOutOfRange)
}

func TestSnapshotReader(t *testing.T) {
	pr, pw := io.Pipe()
	reader := NewSnapshotReader(pr, nil)
	defer reader.Close()

	s := sampleSnapshot()
	payload, err := s.MarshalBinary()
	require.NoError(t, err)

	go func() {
		for seq := uint8(0); seq < 3; seq++ {
			if seq == 1 {
				continue // lost frame
			}
			f, _ := EncodeFrame(seq, payload)
			_, _ = pw.Write(f)
		}
		_ = pw.Close()
	}()

	for i := 0; i < 2; i++ {
		got, err := reader.Receive(time.Second)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err = reader.Receive(time.Second)
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.Equal(t, 1, reader.Missed())
}
