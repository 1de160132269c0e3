// Package pio emulates one RP2040 PIO block behind the register contract:
// instruction memory, four state machines with their FIFOs and clock
// dividers, and the status and debug registers derived from them.
package pio

import (
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"pioemu/core"
	"pioemu/registers"
)

// PIO is an in-process PIO block. All register access is serialized by
// a single lock owned by the instance.
type PIO struct {
	mu     sync.Mutex
	index  int
	base   uint32
	gpio   core.PinDriver
	logger *slog.Logger
	trace  *core.Trace
	engine Engine

	warnedEngine bool

	ctrl     uint32
	fdebug   uint32
	irq      uint32
	irqInte  [2]uint32
	irqIntf  [2]uint32
	instrMem [core.MemorySize]uint16
	sms      [core.SMCount]*SM

	cycles atomic.Uint64
}

var (
	_ registers.Registers     = (*PIO)(nil)
	_ core.TransitionListener = (*PIO)(nil)
)

// New creates PIO block index (0 or 1) wired to gpio.
func New(index int, gpio core.PinDriver) (*PIO, error) {
	base, err := core.PIOBase(index)
	if err != nil {
		return nil, err
	}
	if gpio == nil {
		return nil, errors.Wrap(core.ErrNilArgument, "gpio")
	}
	p := &PIO{
		index:  index,
		base:   base,
		gpio:   gpio,
		logger: core.LoggerOrDiscard(nil),
	}
	for i := range p.sms {
		p.sms[i] = newSM(i)
	}
	return p, nil
}

// SetLogger sets the logger for diagnostics. nil discards.
func (p *PIO) SetLogger(l *slog.Logger) {
	p.mu.Lock()
	p.logger = core.LoggerOrDiscard(l).With(slog.String("pio", strconv.Itoa(p.index)))
	p.mu.Unlock()
}

// SetTrace attaches a ring recording register writes and FIFO events.
func (p *PIO) SetTrace(t *core.Trace) {
	p.mu.Lock()
	p.trace = t
	p.mu.Unlock()
}

// SetEngine installs the executor for instructions outside the built-in
// subset.
func (p *PIO) SetEngine(e Engine) {
	p.mu.Lock()
	p.engine = e
	p.mu.Unlock()
}

// Index returns the block number.
func (p *PIO) Index() int { return p.index }

// Cycles returns the number of master clock cycles seen.
func (p *PIO) Cycles() uint64 { return p.cycles.Load() }

// Reset returns every register, FIFO and state machine to power-on state.
// Instruction memory is cleared.
func (p *PIO) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctrl, p.fdebug, p.irq = 0, 0, 0
	p.irqInte = [2]uint32{}
	p.irqIntf = [2]uint32{}
	p.instrMem = [core.MemorySize]uint16{}
	for _, sm := range p.sms {
		sm.reset()
	}
}

// GPIOInit hands pin over to this PIO block.
func (p *PIO) GPIOInit(pin int) error {
	if err := core.CheckRange("pin", pin, 0, core.GPIONum-1); err != nil {
		return err
	}
	fn, err := core.PIOFunction(p.index)
	if err != nil {
		return err
	}
	return p.gpio.SetFunction(core.GPIOPin(pin), fn)
}

// SMState returns a copy of a state machine's internal state.
func (p *PIO) SMState(sm int) (SM, error) {
	if err := core.CheckRange("sm", sm, 0, core.SMCount-1); err != nil {
		return SM{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.sms[sm], nil
}

// RisingEdge ticks every clock divider and runs each enabled state
// machine whose divider fires this cycle.
func (p *PIO) RisingEdge(wallClock uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cycles.Add(1)
	for i, sm := range p.sms {
		sm.pll.RisingEdge(wallClock)
		if p.ctrl&(1<<(core.CTRL_SM_ENABLE_Pos+i)) != 0 && sm.pll.ClockEnable() {
			p.step(sm)
		}
	}
}

func (p *PIO) FallingEdge(wallClock uint64) {
	for _, sm := range p.sms {
		sm.pll.FallingEdge(wallClock)
	}
}

func (p *PIO) BaseAddress() uint32 { return p.base }

func (p *PIO) ProvidesAddress(addr uint32) bool {
	_, _, err := p.resolve(addr)
	return err == nil
}

func (p *PIO) AddressLabel(addr uint32) string {
	off, alias, err := p.resolve(addr)
	if err != nil {
		return "?"
	}
	label := "PIO" + strconv.Itoa(p.index) + "_" + core.RegisterLabel(off)
	if alias != registers.RW {
		label += " (" + alias.String() + ")"
	}
	return label
}

// resolve maps addr to a register offset and alias window.
func (p *PIO) resolve(addr uint32) (uint32, registers.Alias, error) {
	if addr < p.base || addr-p.base >= 4*core.BlockSize {
		return 0, 0, errors.Wrapf(registers.ErrUnmapped, "address 0x%08x", addr)
	}
	_, alias := registers.Decode(addr - p.base)
	off := registers.Offset(p.base, addr)
	if off >= core.RegisterSpan || off&3 != 0 {
		return 0, 0, errors.Wrapf(registers.ErrUnmapped, "address 0x%08x", addr)
	}
	return off, alias, nil
}

func (p *PIO) ReadAddress(addr uint32) (uint32, error) {
	off, _, err := p.resolve(addr)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readReg(off, true), nil
}

func (p *PIO) WriteAddress(addr, value uint32) error {
	off, alias, err := p.resolve(addr)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeReg(off, alias, value)
	return nil
}

func (p *PIO) HWSetBits(addr, mask uint32) error {
	reg, _ := registers.Decode(addr)
	return p.WriteAddress(registers.SetAlias(reg), mask)
}

func (p *PIO) HWClearBits(addr, mask uint32) error {
	reg, _ := registers.Decode(addr)
	return p.WriteAddress(registers.ClearAlias(reg), mask)
}

func (p *PIO) HWXorBits(addr, mask uint32) error {
	reg, _ := registers.Decode(addr)
	return p.WriteAddress(registers.XorAlias(reg), mask)
}

func (p *PIO) HWWriteMasked(addr, values, writeMask uint32) error {
	off, _, err := p.resolve(addr)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	current := p.readReg(off, false)
	p.writeReg(off, registers.RW, current&^writeMask|values&writeMask)
	return nil
}

func (p *PIO) Wait(addr, expected, mask uint32, cyclesTimeout uint64, timeout time.Duration) (uint32, error) {
	if _, _, err := p.resolve(addr); err != nil {
		return 0, err
	}
	read := func() (uint32, error) { return p.ReadAddress(addr) }
	return registers.Poll(read, p.Cycles, expected, mask, cyclesTimeout, timeout)
}

func (p *PIO) smAt(off, sm0 uint32) (*SM, bool) {
	if off < core.SM0_CLKDIV || off >= core.INTR {
		return nil, false
	}
	rel := off - core.SM0_CLKDIV
	if rel%core.SM_SIZE != sm0-core.SM0_CLKDIV {
		return nil, false
	}
	return p.sms[rel/core.SM_SIZE], true
}

// readReg returns the value of a register. With consume set, reading an
// RX FIFO pops it. Must be called with p.mu held.
func (p *PIO) readReg(off uint32, consume bool) uint32 {
	switch {
	case off == core.CTRL:
		return p.ctrl & core.CTRL_SM_ENABLE_Msk
	case off == core.FSTAT:
		return p.fstat()
	case off == core.FDEBUG:
		return p.fdebug
	case off == core.FLEVEL:
		return p.flevel()
	case off >= core.TXF0 && off < core.RXF0:
		return 0
	case off >= core.RXF0 && off < core.IRQ:
		sm := p.sms[(off-core.RXF0)/4]
		if !consume {
			return sm.RX.Peek()
		}
		return p.popRX(sm)
	case off == core.IRQ:
		return p.irq
	case off == core.IRQ_FORCE:
		return 0
	case off == core.INPUT_SYNC_BYPASS:
		return p.gpio.InputSyncBypass()
	case off == core.DBG_PADOUT:
		return p.gpio.Values()
	case off == core.DBG_PADOE:
		return p.gpio.Directions()
	case off == core.DBG_CFGINFO:
		return core.DBGCfgInfo
	case off >= core.INSTR_MEM0 && off < core.SM0_CLKDIV:
		return uint32(p.instrMem[(off-core.INSTR_MEM0)/4])
	case off == core.INTR:
		return p.intr()
	case off == core.IRQ0_INTE:
		return p.irqInte[0]
	case off == core.IRQ0_INTF:
		return p.irqIntf[0]
	case off == core.IRQ0_INTS:
		return p.intr()&p.irqInte[0] | p.irqIntf[0]
	case off == core.IRQ1_INTE:
		return p.irqInte[1]
	case off == core.IRQ1_INTF:
		return p.irqIntf[1]
	case off == core.IRQ1_INTS:
		return p.intr()&p.irqInte[1] | p.irqIntf[1]
	}

	if sm, ok := p.smAt(off, core.SM0_CLKDIV); ok {
		return sm.ClkDiv
	}
	if sm, ok := p.smAt(off, core.SM0_EXECCTRL); ok {
		v := sm.ExecCtrl
		if sm.pending {
			v |= core.SM_EXECCTRL_EXEC_STALLED_Msk
		}
		return v
	}
	if sm, ok := p.smAt(off, core.SM0_SHIFTCTRL); ok {
		return sm.ShiftCtrl
	}
	if sm, ok := p.smAt(off, core.SM0_ADDR); ok {
		return uint32(sm.PC)
	}
	if sm, ok := p.smAt(off, core.SM0_INSTR); ok {
		if sm.pending {
			return uint32(sm.pendingInstr)
		}
		return uint32(p.instrMem[sm.PC])
	}
	if sm, ok := p.smAt(off, core.SM0_PINCTRL); ok {
		return sm.PinCtrl
	}
	return 0
}

// writeReg stores value through an alias window. Must be called with p.mu
// held.
func (p *PIO) writeReg(off uint32, alias registers.Alias, value uint32) {
	p.trace.Record(core.EvtWrite, 0, p.cycles.Load(), off|uint32(alias)<<12, value)

	// Write-1-to-clear registers: every window but CLR clears the
	// written bits.
	switch off {
	case core.FDEBUG:
		if alias != registers.CLR {
			p.fdebug &^= value
		}
		return
	case core.IRQ:
		if alias != registers.CLR {
			p.irq &^= value & 0xff
		}
		return
	}

	v := alias.Apply(p.readReg(off, false), value)

	switch {
	case off == core.CTRL:
		p.writeCTRL(v)
		return
	case off >= core.TXF0 && off < core.RXF0:
		p.pushTX(p.sms[(off-core.TXF0)/4], v)
		return
	case off == core.IRQ_FORCE:
		p.irq |= v & 0xff
		return
	case off == core.INPUT_SYNC_BYPASS:
		p.gpio.SetInputSyncBypass(v)
		return
	case off >= core.INSTR_MEM0 && off < core.SM0_CLKDIV:
		p.instrMem[(off-core.INSTR_MEM0)/4] = uint16(v)
		return
	case off == core.IRQ0_INTE:
		p.irqInte[0] = v & 0xfff
		return
	case off == core.IRQ0_INTF:
		p.irqIntf[0] = v & 0xfff
		return
	case off == core.IRQ1_INTE:
		p.irqInte[1] = v & 0xfff
		return
	case off == core.IRQ1_INTF:
		p.irqIntf[1] = v & 0xfff
		return
	}

	if sm, ok := p.smAt(off, core.SM0_CLKDIV); ok {
		sm.ClkDiv = v & (core.SM_CLKDIV_INT_Msk | core.SM_CLKDIV_FRAC_Msk)
		sm.pll.SetCLKDIV(sm.ClkDiv)
		return
	}
	if sm, ok := p.smAt(off, core.SM0_EXECCTRL); ok {
		sm.ExecCtrl = v &^ core.SM_EXECCTRL_EXEC_STALLED_Msk
		return
	}
	if sm, ok := p.smAt(off, core.SM0_SHIFTCTRL); ok {
		const join = core.SM_SHIFTCTRL_FJOIN_RX_Msk | core.SM_SHIFTCTRL_FJOIN_TX_Msk
		changed := (sm.ShiftCtrl^v)&join != 0
		sm.ShiftCtrl = v
		if changed {
			sm.resizeFIFOs()
		}
		return
	}
	if sm, ok := p.smAt(off, core.SM0_INSTR); ok {
		p.forceExec(sm, uint16(v))
		return
	}
	if sm, ok := p.smAt(off, core.SM0_PINCTRL); ok {
		sm.PinCtrl = v
		return
	}
	// Remaining registers are read-only.
}

func (p *PIO) writeCTRL(v uint32) {
	p.ctrl = v & core.CTRL_SM_ENABLE_Msk
	restart := (v & core.CTRL_SM_RESTART_Msk) >> core.CTRL_SM_RESTART_Pos
	clkRestart := (v & core.CTRL_CLKDIV_RESTART_Msk) >> core.CTRL_CLKDIV_RESTART_Pos
	for i, sm := range p.sms {
		if restart&(1<<i) != 0 {
			sm.restart()
		}
		if clkRestart&(1<<i) != 0 {
			sm.pll.Reset()
		}
	}
	if restart|clkRestart != 0 {
		p.trace.Record(core.EvtRestart, 0, p.cycles.Load(), v, 0)
	}
}

func (p *PIO) pushTX(sm *SM, w uint32) {
	if !sm.TX.Push(w) {
		p.fdebug |= 1 << (core.FDEBUG_TXOVER_Pos + sm.Index)
		p.trace.Record(core.EvtOverflow, uint8(sm.Index), p.cycles.Load(), core.FDEBUG_TXOVER_Pos, w)
		return
	}
	p.trace.Record(core.EvtTXPush, uint8(sm.Index), p.cycles.Load(), w, uint32(sm.TX.Level()))
	p.retryPending(sm)
}

func (p *PIO) popRX(sm *SM) uint32 {
	w, ok := sm.RX.Pop()
	if !ok {
		p.fdebug |= 1 << (core.FDEBUG_RXUNDER_Pos + sm.Index)
		p.trace.Record(core.EvtOverflow, uint8(sm.Index), p.cycles.Load(), core.FDEBUG_RXUNDER_Pos, 0)
		return 0
	}
	p.trace.Record(core.EvtRXPop, uint8(sm.Index), p.cycles.Load(), w, uint32(sm.RX.Level()))
	p.retryPending(sm)
	return w
}

func (p *PIO) fstat() uint32 {
	var v uint32
	for i, sm := range p.sms {
		if sm.RX.IsFull() {
			v |= 1 << (core.FSTAT_RXFULL_Pos + i)
		}
		if sm.RX.IsEmpty() {
			v |= 1 << (core.FSTAT_RXEMPTY_Pos + i)
		}
		if sm.TX.IsFull() {
			v |= 1 << (core.FSTAT_TXFULL_Pos + i)
		}
		if sm.TX.IsEmpty() {
			v |= 1 << (core.FSTAT_TXEMPTY_Pos + i)
		}
	}
	return v
}

func (p *PIO) flevel() uint32 {
	var v uint32
	for i, sm := range p.sms {
		shift := i * core.FLEVEL_SM_Step
		v |= uint32(sm.TX.Level()&core.FLEVEL_Msk) << (shift + core.FLEVEL_TX0_Pos)
		v |= uint32(sm.RX.Level()&core.FLEVEL_Msk) << (shift + core.FLEVEL_RX0_Pos)
	}
	return v
}

// intr packs RXNEMPTY[3:0], TXNFULL[7:4] and SM IRQ flags 0..3 [11:8].
func (p *PIO) intr() uint32 {
	var v uint32
	for i, sm := range p.sms {
		if !sm.RX.IsEmpty() {
			v |= 1 << i
		}
		if !sm.TX.IsFull() {
			v |= 1 << (4 + i)
		}
	}
	return v | (p.irq&0xf)<<8
}
