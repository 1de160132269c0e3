package core

import "github.com/pkg/errors"

// Bit is the logical level of a pin.
type Bit int

const (
	Low  Bit = 0
	High Bit = 1
)

// BitFromValue converts 0/1 to a Bit.
func BitFromValue(v int) (Bit, error) {
	if err := CheckRange("bit", v, 0, 1); err != nil {
		return Low, err
	}
	return Bit(v), nil
}

// BitOf converts a boolean.
func BitOf(b bool) Bit {
	if b {
		return High
	}
	return Low
}

func (b Bit) Value() int  { return int(b) }
func (b Bit) Valid() bool { return b == Low || b == High }

func (b Bit) String() string {
	switch b {
	case Low:
		return "0"
	case High:
		return "1"
	}
	return "?"
}

// Direction is the output-enable state of a pin.
type Direction int

const (
	In  Direction = 0
	Out Direction = 1
)

// DirectionFromValue converts 0/1 to a Direction.
func DirectionFromValue(v int) (Direction, error) {
	if err := CheckRange("direction", v, 0, 1); err != nil {
		return In, err
	}
	return Direction(v), nil
}

func (d Direction) Value() int  { return int(d) }
func (d Direction) Valid() bool { return d == In || d == Out }

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	}
	return "?"
}

// Function selects which peripheral drives a GPIO pad.
type Function int

const (
	FuncXIP  Function = 0
	FuncSPI  Function = 1
	FuncUART Function = 2
	FuncI2C  Function = 3
	FuncPWM  Function = 4
	FuncSIO  Function = 5
	FuncPIO0 Function = 6
	FuncPIO1 Function = 7
	FuncGPCK Function = 8
	FuncUSB  Function = 9
	FuncNULL Function = 15
)

var functionLabels = map[Function]string{
	FuncXIP:  "XIP",
	FuncSPI:  "SPI",
	FuncUART: "UART",
	FuncI2C:  "I2C",
	FuncPWM:  "PWM",
	FuncSIO:  "SIO",
	FuncPIO0: "PIO0",
	FuncPIO1: "PIO1",
	FuncGPCK: "GPCK",
	FuncUSB:  "USB",
	FuncNULL: "NULL",
}

// FunctionFromValue converts a raw FUNCSEL value.
func FunctionFromValue(v int) (Function, error) {
	f := Function(v)
	if !f.Valid() {
		return FuncNULL, errors.Wrapf(ErrOutOfRange, "function=%d", v)
	}
	return f, nil
}

// PIOFunction returns the function selecting the given PIO block.
func PIOFunction(index int) (Function, error) {
	switch index {
	case 0:
		return FuncPIO0, nil
	case 1:
		return FuncPIO1, nil
	}
	return FuncNULL, errors.Wrapf(ErrOutOfRange, "pio index=%d", index)
}

func (f Function) Value() int { return int(f) }

func (f Function) Valid() bool {
	_, ok := functionLabels[f]
	return ok
}

func (f Function) String() string {
	if s, ok := functionLabels[f]; ok {
		return s
	}
	return "?"
}
