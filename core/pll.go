package core

import "sync"

// PLL is the fractional clock divider of one state machine. On every
// rising edge of the master clock it decides whether the state machine
// executes during that cycle.
//
// The fractional accumulator carries into the integer counter at 0x10000.
type PLL struct {
	mu      sync.Mutex
	divInt  int
	divFrac int
	counter int
	frac    int
	enabled bool
}

// NewPLL returns a divider with a zero divisor in its reset phase.
func NewPLL() *PLL {
	p := &PLL{}
	p.Reset()
	return p
}

// Reset restarts the divider phase without changing the divisor.
func (p *PLL) Reset() {
	p.mu.Lock()
	p.counter = 1
	p.frac = 0
	p.enabled = false
	p.mu.Unlock()
}

// SetCLKDIV loads INT from bits 31..16 and FRAC from bits 15..8.
func (p *PLL) SetCLKDIV(clkdiv uint32) {
	p.mu.Lock()
	p.divInt = int((clkdiv & SM_CLKDIV_INT_Msk) >> SM_CLKDIV_INT_Pos)
	p.divFrac = int((clkdiv & SM_CLKDIV_FRAC_Msk) >> SM_CLKDIV_FRAC_Pos)
	p.mu.Unlock()
}

// CLKDIV returns the divisor in register layout.
func (p *PLL) CLKDIV() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint32(p.divInt)<<SM_CLKDIV_INT_Pos | uint32(p.divFrac)<<SM_CLKDIV_FRAC_Pos
}

// SetDivIntegerBits sets INT, 0..0xffff.
func (p *PLL) SetDivIntegerBits(v int) error {
	if err := CheckRange("clkdiv int", v, 0, 0xffff); err != nil {
		return err
	}
	p.mu.Lock()
	p.divInt = v
	p.mu.Unlock()
	return nil
}

// SetDivFractionalBits sets FRAC, 0..0xff.
func (p *PLL) SetDivFractionalBits(v int) error {
	if err := CheckRange("clkdiv frac", v, 0, 0xff); err != nil {
		return err
	}
	p.mu.Lock()
	p.divFrac = v
	p.mu.Unlock()
	return nil
}

// RisingEdge advances the divider by one master cycle. The enable pulse is
// emitted when the counter has run down to 1.
func (p *PLL) RisingEdge(wallClock uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counter <= 1 {
		p.counter += p.divInt
		p.frac += p.divFrac
		if p.frac >= 0x10000 {
			p.frac -= 0x10000
			p.counter++
		}
		p.enabled = true
	} else {
		p.enabled = false
	}
	p.counter--
}

// FallingEdge does not change divider state.
func (p *PLL) FallingEdge(wallClock uint64) {}

// ClockEnable reports whether the state machine runs in the current cycle.
func (p *PLL) ClockEnable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Counter returns the integer counter after the last edge.
func (p *PLL) Counter() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counter
}
