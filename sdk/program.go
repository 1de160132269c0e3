package sdk

import (
	"math/bits"

	"github.com/pkg/errors"

	"pioemu/core"
)

// Program is a block of PIO instructions ready to be loaded.
type Program interface {
	// Origin is the fixed load offset, or -1 if the program may be
	// loaded anywhere.
	Origin() int

	// AllocationMask has one bit per instruction memory slot used. For
	// a fixed origin it is absolute, otherwise relative to offset 0.
	AllocationMask() uint32

	Length() int
	Instruction(i int) uint16
}

// BasicProgram is a Program held in memory.
type BasicProgram struct {
	Name   string
	Code   []uint16
	origin int
}

// NewProgram wraps up to 32 instructions. origin is -1 for a relocatable
// program.
func NewProgram(name string, code []uint16, origin int) (*BasicProgram, error) {
	if err := core.CheckRange("program length", len(code), 1, core.MemorySize); err != nil {
		return nil, err
	}
	if err := core.CheckRange("origin", origin, -1, core.MemorySize-1); err != nil {
		return nil, err
	}
	return &BasicProgram{Name: name, Code: code, origin: origin}, nil
}

func (p *BasicProgram) Origin() int              { return p.origin }
func (p *BasicProgram) Length() int              { return len(p.Code) }
func (p *BasicProgram) Instruction(i int) uint16 { return p.Code[i] }

func (p *BasicProgram) AllocationMask() uint32 {
	mask := uint32(1)<<len(p.Code) - 1
	if len(p.Code) >= 32 {
		mask = 0xffffffff
	}
	if p.origin >= 0 {
		mask = bits.RotateLeft32(mask, p.origin)
	}
	return mask
}

func (p *BasicProgram) String() string {
	if p.Name != "" {
		return p.Name
	}
	return "program"
}

// maskAt places a program's allocation mask at offset.
func maskAt(program Program, offset int) uint32 {
	if program.Origin() >= 0 {
		return program.AllocationMask()
	}
	return bits.RotateLeft32(program.AllocationMask(), offset)
}

// allocate finds room for mask. A non-negative origin is the only offset
// tried; otherwise offsets 0..31 are scanned with the mask rotated around
// the memory. Unless checkOnly, the placed mask is committed. Must be
// called with s.allocMu held.
func (s *SDK) allocate(mask uint32, origin int, checkOnly bool) (int, error) {
	if origin >= 0 {
		if busy := s.allocated & mask; busy != 0 {
			return -1, errors.Wrapf(ErrAllocation, "at 0x%02x: slots %s in use", origin, listMaskBits(busy))
		}
		if !checkOnly {
			s.allocated |= mask
		}
		return origin, nil
	}
	for offset := 0; offset < core.MemorySize; offset++ {
		placed := bits.RotateLeft32(mask, offset)
		if s.allocated&placed == 0 {
			if !checkOnly {
				s.allocated |= placed
			}
			return offset, nil
		}
	}
	return -1, errors.Wrapf(ErrAllocation, "no room for mask 0x%08x", mask)
}

func checkProgram(program Program) error {
	if program == nil {
		return errors.Wrap(core.ErrNilArgument, "program")
	}
	return nil
}

// originAllows rejects loading a fixed origin program elsewhere.
func originAllows(program Program, offset int) error {
	if origin := program.Origin(); origin >= 0 && origin != offset {
		return errors.Wrapf(ErrAllocation, "%v: offset 0x%02x conflicts with origin 0x%02x", program, offset, origin)
	}
	return nil
}

// CanAddProgram reports whether program fits.
func (s *SDK) CanAddProgram(program Program) (bool, error) {
	if err := checkProgram(program); err != nil {
		return false, err
	}
	s.allocMu.Lock()
	defer s.allocMu.Unlock()
	_, err := s.allocate(program.AllocationMask(), program.Origin(), true)
	return err == nil, nil
}

// CanAddProgramAtOffset reports whether program fits at offset.
func (s *SDK) CanAddProgramAtOffset(program Program, offset int) (bool, error) {
	if err := checkProgram(program); err != nil {
		return false, err
	}
	if err := core.CheckRange("offset", offset, 0, core.MemorySize-1); err != nil {
		return false, err
	}
	if originAllows(program, offset) != nil {
		return false, nil
	}
	s.allocMu.Lock()
	defer s.allocMu.Unlock()
	_, err := s.allocate(maskAt(program, offset), offset, true)
	return err == nil, nil
}

// AddProgram loads program wherever it fits and returns its offset.
func (s *SDK) AddProgram(program Program) (int, error) {
	if err := checkProgram(program); err != nil {
		return -1, err
	}
	s.allocMu.Lock()
	defer s.allocMu.Unlock()
	offset, err := s.allocate(program.AllocationMask(), program.Origin(), false)
	if err != nil {
		return -1, errors.Wrapf(err, "%v", program)
	}
	if err := s.writeProgram(program, offset); err != nil {
		return -1, err
	}
	s.log().Debug("program loaded", "program", program, "offset", offset)
	return offset, nil
}

// AddProgramAtOffset loads program at offset.
func (s *SDK) AddProgramAtOffset(program Program, offset int) (int, error) {
	if err := checkProgram(program); err != nil {
		return -1, err
	}
	if err := core.CheckRange("offset", offset, 0, core.MemorySize-1); err != nil {
		return -1, err
	}
	if err := originAllows(program, offset); err != nil {
		return -1, err
	}
	s.allocMu.Lock()
	defer s.allocMu.Unlock()
	if _, err := s.allocate(maskAt(program, offset), offset, false); err != nil {
		return -1, errors.Wrapf(err, "%v", program)
	}
	if err := s.writeProgram(program, offset); err != nil {
		return -1, err
	}
	s.log().Debug("program loaded", "program", program, "offset", offset)
	return offset, nil
}

// writeProgram copies the instructions into memory starting at offset,
// relocating jump targets by offset. Fixed origin programs load at their
// origin, so their targets are origin relative. Must be called with
// s.allocMu held.
func (s *SDK) writeProgram(program Program, offset int) error {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	for i := 0; i < program.Length(); i++ {
		instr := Relocate(program.Instruction(i), offset)
		if err := s.write(core.InstrMem(offset+i), uint32(instr)); err != nil {
			return err
		}
	}
	return nil
}

// RemoveProgram releases the slots program holds at loadedOffset and
// zeroes them. Releasing slots that are not all allocated is reported
// as ErrCorruption.
func (s *SDK) RemoveProgram(program Program, loadedOffset int) error {
	if err := checkProgram(program); err != nil {
		return err
	}
	if err := core.CheckRange("loaded offset", loadedOffset, 0, core.MemorySize-1); err != nil {
		return err
	}
	if err := originAllows(program, loadedOffset); err != nil {
		return err
	}
	mask := maskAt(program, loadedOffset)

	s.allocMu.Lock()
	defer s.allocMu.Unlock()
	if s.allocated&mask != mask {
		s.log().Error("deallocation of unallocated slots",
			"program", program, "offset", loadedOffset, "missing", mask&^s.allocated)
		return errors.Wrapf(ErrCorruption, "%v at 0x%02x: slots %s not allocated",
			program, loadedOffset, listMaskBits(mask&^s.allocated))
	}
	s.allocated &^= mask

	s.regMu.Lock()
	defer s.regMu.Unlock()
	for i := 0; i < program.Length(); i++ {
		if err := s.write(core.InstrMem(loadedOffset+i), 0); err != nil {
			return err
		}
	}
	return nil
}

// ClearInstructionMemory frees and zeroes every slot.
func (s *SDK) ClearInstructionMemory() error {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()
	s.allocated = 0

	s.regMu.Lock()
	defer s.regMu.Unlock()
	for i := 0; i < core.MemorySize; i++ {
		if err := s.write(core.InstrMem(i), 0); err != nil {
			return err
		}
	}
	return nil
}

// Allocated returns the allocation bitmap.
func (s *SDK) Allocated() uint32 {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()
	return s.allocated
}
