// GPIO crossbar emulation: 32 pad terminals, each carrying the selected
// peripheral function, the output enable and the pin level.
package core

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

type terminal struct {
	fn    Function
	dir   Direction
	value Bit
}

// GPIO owns the 32 terminals. All methods are safe for concurrent use.
type GPIO struct {
	mu              sync.RWMutex
	pins            [GPIONum]terminal
	inputSyncBypass uint32
}

// NewGPIO returns a crossbar in its reset state.
func NewGPIO() *GPIO {
	g := &GPIO{}
	g.Reset()
	return g
}

// Reset sets every terminal to (NULL, In, Low).
func (g *GPIO) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.pins {
		g.pins[i] = terminal{fn: FuncNULL, dir: In, value: Low}
	}
	g.inputSyncBypass = 0
}

func checkPin(pin GPIOPin) error {
	if pin >= GPIONum {
		return errors.Wrapf(ErrOutOfRange, "gpio=%d not in [0,%d]", pin, GPIONum-1)
	}
	return nil
}

// count is limited to 31; a full 32 pin transfer is rejected.
func checkSpan(base, count int) error {
	if err := CheckRange("base", base, 0, GPIONum-1); err != nil {
		return err
	}
	return CheckRange("count", count, 0, GPIONum-1)
}

// SetFunction selects the peripheral owning pin.
func (g *GPIO) SetFunction(pin GPIOPin, fn Function) error {
	if err := checkPin(pin); err != nil {
		return err
	}
	if !fn.Valid() {
		return errors.Wrapf(ErrUndefined, "function=%d", int(fn))
	}
	g.mu.Lock()
	g.pins[pin].fn = fn
	g.mu.Unlock()
	return nil
}

// GetFunction returns the peripheral owning pin.
func (g *GPIO) GetFunction(pin GPIOPin) (Function, error) {
	if err := checkPin(pin); err != nil {
		return FuncNULL, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pins[pin].fn, nil
}

// SetDirection sets the output enable of pin.
func (g *GPIO) SetDirection(pin GPIOPin, dir Direction) error {
	if err := checkPin(pin); err != nil {
		return err
	}
	if !dir.Valid() {
		return errors.Wrapf(ErrUndefined, "direction=%d", int(dir))
	}
	g.mu.Lock()
	g.pins[pin].dir = dir
	g.mu.Unlock()
	return nil
}

// GetDirection returns the output enable of pin.
func (g *GPIO) GetDirection(pin GPIOPin) (Direction, error) {
	if err := checkPin(pin); err != nil {
		return In, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pins[pin].dir, nil
}

// SetBit sets the level of pin.
func (g *GPIO) SetBit(pin GPIOPin, value Bit) error {
	if err := checkPin(pin); err != nil {
		return err
	}
	if !value.Valid() {
		return errors.Wrapf(ErrUndefined, "bit=%d", int(value))
	}
	g.mu.Lock()
	g.pins[pin].value = value
	g.mu.Unlock()
	return nil
}

// GetBit returns the level of pin.
func (g *GPIO) GetBit(pin GPIOPin) (Bit, error) {
	if err := checkPin(pin); err != nil {
		return Low, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pins[pin].value, nil
}

// GetPins packs the levels of count pins starting at base into the low bits
// of the result: bit i holds pin (base+i) mod 32.
func (g *GPIO) GetPins(base, count int) (uint32, error) {
	if err := checkSpan(base, count); err != nil {
		return 0, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	var pins uint32
	for i := 0; i < count; i++ {
		if g.pins[(base+i)&0x1f].value == High {
			pins |= 1 << i
		}
	}
	return pins, nil
}

// SetPins is the inverse of GetPins.
func (g *GPIO) SetPins(pins uint32, base, count int) error {
	if err := checkSpan(base, count); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := 0; i < count; i++ {
		g.pins[(base+i)&0x1f].value = Bit((pins >> i) & 1)
	}
	return nil
}

// GetPinDirs packs output enables the same way GetPins packs levels.
func (g *GPIO) GetPinDirs(base, count int) (uint32, error) {
	if err := checkSpan(base, count); err != nil {
		return 0, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	var dirs uint32
	for i := 0; i < count; i++ {
		if g.pins[(base+i)&0x1f].dir == Out {
			dirs |= 1 << i
		}
	}
	return dirs, nil
}

// SetPinDirs is the inverse of GetPinDirs.
func (g *GPIO) SetPinDirs(dirs uint32, base, count int) error {
	if err := checkSpan(base, count); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := 0; i < count; i++ {
		g.pins[(base+i)&0x1f].dir = Direction((dirs >> i) & 1)
	}
	return nil
}

func (g *GPIO) Values() uint32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var v uint32
	for i, p := range g.pins {
		if p.value == High {
			v |= 1 << i
		}
	}
	return v
}

func (g *GPIO) Directions() uint32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var v uint32
	for i, p := range g.pins {
		if p.dir == Out {
			v |= 1 << i
		}
	}
	return v
}

func (g *GPIO) WriteMasked(values, mask uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.pins {
		if mask&(1<<i) != 0 {
			g.pins[i].value = Bit((values >> i) & 1)
		}
	}
}

func (g *GPIO) WriteDirsMasked(dirs, mask uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.pins {
		if mask&(1<<i) != 0 {
			g.pins[i].dir = Direction((dirs >> i) & 1)
		}
	}
}

// SetInputSyncBypass stores the bypass mask. It has no effect on levels.
func (g *GPIO) SetInputSyncBypass(bypass uint32) {
	g.mu.Lock()
	g.inputSyncBypass = bypass
	g.mu.Unlock()
}

func (g *GPIO) InputSyncBypass() uint32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.inputSyncBypass
}

// String renders the levels as 32 characters, pin 31 first, with a dot for
// pins owned by no peripheral.
func (g *GPIO) String() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var sb strings.Builder
	for i := GPIONum - 1; i >= 0; i-- {
		p := g.pins[i]
		switch {
		case p.fn == FuncNULL:
			sb.WriteByte('.')
		case p.value == High:
			sb.WriteByte('1')
		default:
			sb.WriteByte('0')
		}
		if i > 0 && i%8 == 0 {
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}
