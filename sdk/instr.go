package sdk

import (
	"math"

	"github.com/pkg/errors"
)

// Major opcode bits of the instructions the SDK synthesizes.
const (
	InstrJMP  uint16 = 0x0000
	InstrWAIT uint16 = 0x2000
	InstrIN   uint16 = 0x4000
	InstrOUT  uint16 = 0x6000
	InstrPUSH uint16 = 0x8000
	InstrPULL uint16 = 0x8080
	InstrMOV  uint16 = 0xa000
	InstrIRQ  uint16 = 0xc000
	InstrSET  uint16 = 0xe000

	InstrMsk uint16 = 0xe000
)

// SrcDest is the source or destination field of IN, OUT, MOV and SET.
type SrcDest uint16

const (
	SrcDestPins    SrcDest = 0
	SrcDestX       SrcDest = 1
	SrcDestY       SrcDest = 2
	SrcDestNull    SrcDest = 3
	SrcDestPinDirs SrcDest = 4
	SrcDestPC      SrcDest = 5
	SrcDestISR     SrcDest = 6
	SrcDestOSR     SrcDest = 7
	SrcDestExec    SrcDest = 7
)

// JmpCond is the condition field of JMP.
type JmpCond uint16

const (
	JmpAlways JmpCond = iota
	JmpXZero
	JmpXNotZeroDec
	JmpYZero
	JmpYNotZeroDec
	JmpXNotEqualY
	JmpPin
	JmpOSRNotEmpty
)

// MajorInstrBits returns the opcode bits of instr.
func MajorInstrBits(instr uint16) uint16 {
	return instr & InstrMsk
}

func encodeArgs(instr, arg1, arg2 uint16) uint16 {
	return instr | (arg1&7)<<5 | arg2&0x1f
}

// EncodeJmp is an unconditional jump with no delay or side-set.
func EncodeJmp(addr uint16) uint16 {
	return EncodeJmpCond(JmpAlways, addr)
}

func EncodeJmpCond(cond JmpCond, addr uint16) uint16 {
	return encodeArgs(InstrJMP, uint16(cond), addr)
}

// EncodeSet encodes SET dest, value with a 5 bit value.
func EncodeSet(dest SrcDest, value uint16) uint16 {
	return encodeArgs(InstrSET, uint16(dest), value)
}

// EncodeOut encodes OUT dest, bitCount; a count of 32 encodes as 0.
func EncodeOut(dest SrcDest, bitCount uint16) uint16 {
	return encodeArgs(InstrOUT, uint16(dest), bitCount)
}

func EncodeIn(src SrcDest, bitCount uint16) uint16 {
	return encodeArgs(InstrIN, uint16(src), bitCount)
}

func EncodePull(ifEmpty, block bool) uint16 {
	var arg uint16
	if ifEmpty {
		arg |= 2
	}
	if block {
		arg |= 1
	}
	return encodeArgs(InstrPULL, arg, 0)
}

func EncodePush(ifFull, block bool) uint16 {
	var arg uint16
	if ifFull {
		arg |= 2
	}
	if block {
		arg |= 1
	}
	return encodeArgs(InstrPUSH, arg, 0)
}

// EncodeNOP is mov y, y.
func EncodeNOP() uint16 {
	return encodeArgs(InstrMOV, uint16(SrcDestY), uint16(SrcDestY))
}

// Relocate shifts the target of a JMP by offset, wrapping inside the 32
// word instruction memory. Other instructions are returned unchanged.
func Relocate(instr uint16, offset int) uint16 {
	if MajorInstrBits(instr) != InstrJMP {
		return instr
	}
	addr := (int(instr&0x1f) + offset) & 0x1f
	return instr&^0x1f | uint16(addr)
}

// ClkDivFromPeriod computes the divider giving a state machine cycle of
// period nanoseconds at system clock freq Hz.
func ClkDivFromPeriod(period, freq uint32) (whole uint16, frac uint8, err error) {
	clkdiv := 256 * int64(period) * int64(freq) / int64(1e9)
	if clkdiv > 256*math.MaxUint16 {
		return 0, 0, errors.New("period or frequency too large for divider")
	} else if clkdiv < 256 {
		return 0, 0, errors.New("period or frequency too small for divider")
	}
	return uint16(clkdiv / 256), uint8(clkdiv % 256), nil
}
