// Package registers defines the memory-mapped register contract shared by
// every emulated peripheral and the drivers built on top of it.
//
// Each register is reachable through four alias windows. A write through
// the XOR, SET or CLR window is an atomic read-modify-write of the RW
// register; a single backing store serves all four.
package registers

import (
	"time"

	"github.com/pkg/errors"
)

// Alias selects the write semantics of an address window.
type Alias uint32

const (
	RW  Alias = 0
	XOR Alias = 1
	SET Alias = 2
	CLR Alias = 3
)

// Window offsets added to a register address.
const (
	AliasRW  uint32 = 0x0000
	AliasXOR uint32 = 0x1000
	AliasSET uint32 = 0x2000
	AliasCLR uint32 = 0x3000

	aliasShift        = 12
	aliasMask  uint32 = 0x3000
	regMask    uint32 = 0x0fff
)

var (
	// ErrUnmapped is returned for an address outside a peripheral's windows.
	ErrUnmapped = errors.New("address not provided by peripheral")

	// ErrTimeout is returned when Wait runs out of its cycle or wall
	// clock budget. It is not fatal; callers may retry.
	ErrTimeout = errors.New("wait timed out")
)

// Registers is the capability every emulated peripheral exposes.
type Registers interface {
	// BaseAddress returns the address of the first register.
	BaseAddress() uint32

	// ProvidesAddress reports whether addr falls in any alias window.
	ProvidesAddress(addr uint32) bool

	// AddressLabel names the register at addr, for diagnostics.
	AddressLabel(addr uint32) string

	// ReadAddress loads a register. Every window reads the RW value.
	ReadAddress(addr uint32) (uint32, error)

	// WriteAddress stores value with the semantics of addr's window.
	WriteAddress(addr, value uint32) error

	HWSetBits(addr, mask uint32) error
	HWClearBits(addr, mask uint32) error
	HWXorBits(addr, mask uint32) error

	// HWWriteMasked replaces the bits of writeMask with those of values.
	HWWriteMasked(addr, values, writeMask uint32) error

	// Wait blocks until (read(addr) & mask) == (expected & mask) and
	// returns the satisfying value. Either budget expiring yields
	// ErrTimeout; zero means unlimited for that budget.
	Wait(addr, expected, mask uint32, cyclesTimeout uint64, timeout time.Duration) (uint32, error)
}

// Decode splits addr into its RW register address and alias window.
func Decode(addr uint32) (uint32, Alias) {
	return addr &^ aliasMask, Alias((addr & aliasMask) >> aliasShift)
}

// Offset returns addr relative to base with the alias bits stripped.
func Offset(base, addr uint32) uint32 {
	return (addr - base) & regMask
}

// Address returns the address of reg within window a.
func (a Alias) Address(reg uint32) uint32 {
	return reg&^aliasMask | uint32(a)<<aliasShift
}

// Apply combines the current register value with a written value.
func (a Alias) Apply(current, value uint32) uint32 {
	switch a {
	case XOR:
		return current ^ value
	case SET:
		return current | value
	case CLR:
		return current &^ value
	}
	return value
}

func (a Alias) String() string {
	switch a {
	case RW:
		return "RW"
	case XOR:
		return "XOR"
	case SET:
		return "SET"
	case CLR:
		return "CLR"
	}
	return "?"
}

// SetAlias returns the SET window address of reg.
func SetAlias(reg uint32) uint32 { return SET.Address(reg) }

// ClearAlias returns the CLR window address of reg.
func ClearAlias(reg uint32) uint32 { return CLR.Address(reg) }

// XorAlias returns the XOR window address of reg.
func XorAlias(reg uint32) uint32 { return XOR.Address(reg) }
