package protocol

import (
	"github.com/pkg/errors"

	"pioemu/core"
)

// SMSnapshot is the per state machine part of a Snapshot.
type SMSnapshot struct {
	PC     uint8
	ClkDiv uint32
}

// Snapshot is the register state the monitor streams each period.
type Snapshot struct {
	WallClock uint64
	Ctrl      uint32
	FStat     uint32
	FLevel    uint32
	PadOut    uint32
	PadOE     uint32
	SMs       [core.SMCount]SMSnapshot
}

// MarshalBinary encodes s as a sequence of VLQ values.
func (s *Snapshot) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = AppendVLQUint64(buf, s.WallClock)
	for _, v := range []uint32{s.Ctrl, s.FStat, s.FLevel, s.PadOut, s.PadOE} {
		buf = AppendVLQUint(buf, v)
	}
	for _, sm := range s.SMs {
		buf = AppendVLQUint(buf, uint32(sm.PC))
		buf = AppendVLQUint(buf, sm.ClkDiv)
	}
	return buf, nil
}

// UnmarshalBinary decodes the output of MarshalBinary. Trailing bytes are
// an error.
func (s *Snapshot) UnmarshalBinary(data []byte) error {
	var err error
	if s.WallClock, err = ReadVLQUint64(&data); err != nil {
		return errors.Wrap(err, "wall clock")
	}
	for _, field := range []*uint32{&s.Ctrl, &s.FStat, &s.FLevel, &s.PadOut, &s.PadOE} {
		if *field, err = ReadVLQUint(&data); err != nil {
			return errors.Wrap(err, "snapshot register")
		}
	}
	for i := range s.SMs {
		pc, err := ReadVLQUint(&data)
		if err != nil {
			return errors.Wrapf(err, "sm%d pc", i)
		}
		if pc >= core.MemorySize {
			return errors.Wrapf(core.ErrOutOfRange, "sm%d pc=%d", i, pc)
		}
		s.SMs[i].PC = uint8(pc)
		if s.SMs[i].ClkDiv, err = ReadVLQUint(&data); err != nil {
			return errors.Wrapf(err, "sm%d clkdiv", i)
		}
	}
	if len(data) != 0 {
		return errors.Wrapf(ErrInvalidVLQ, "%d trailing bytes", len(data))
	}
	return nil
}
