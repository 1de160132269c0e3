package pio

import (
	"math/bits"

	"pioemu/core"
)

// Major opcodes, instruction bits 15..13.
const (
	opJMP      = 0
	opWAIT     = 1
	opIN       = 2
	opOUT      = 3
	opPUSHPULL = 4
	opMOV      = 5
	opIRQ      = 6
	opSET      = 7
)

// Outcome tells the sequencer what to do after an instruction.
type Outcome int

const (
	// Next advances PC, honouring the wrap window.
	Next Outcome = iota
	// Jumped leaves PC as the instruction set it.
	Jumped
	// Stalled retries the same instruction on the next cycle.
	Stalled
)

// Engine executes the instructions the built-in sequencer leaves out
// (WAIT, MOV, IRQ and delay/side-set handling). It is called with the PIO
// locked and must not call back into the PIO.
type Engine interface {
	Execute(sm *SM, instr uint16, pins core.PinDriver) Outcome
}

// execute runs one instruction on sm. Must be called with p.mu held.
func (p *PIO) execute(sm *SM, instr uint16) Outcome {
	op := instr >> 13
	arg1 := int(instr>>5) & 0x7
	arg2 := int(instr) & 0x1f

	switch op {
	case opJMP:
		return p.execJMP(sm, arg1, uint8(arg2))
	case opIN:
		return p.execIN(sm, arg1, bitCount(arg2))
	case opOUT:
		return p.execOUT(sm, arg1, bitCount(arg2))
	case opPUSHPULL:
		ifFlag := instr&0x40 != 0
		block := instr&0x20 != 0
		if instr&0x80 != 0 {
			return p.execPULL(sm, ifFlag, block)
		}
		return p.execPUSH(sm, ifFlag, block)
	case opSET:
		return p.execSET(sm, arg1, uint32(arg2))
	}

	if p.engine != nil {
		return p.engine.Execute(sm, instr, p.gpio)
	}
	if !p.warnedEngine {
		p.warnedEngine = true
		p.logger.Warn("instruction needs an external engine, treating as nop",
			"sm", sm.Index, "instr", instr)
	}
	return Next
}

func bitCount(v int) int {
	if v == 0 {
		return 32
	}
	return v
}

func (p *PIO) execJMP(sm *SM, cond int, addr uint8) Outcome {
	take := false
	switch cond {
	case 0:
		take = true
	case 1:
		take = sm.X == 0
	case 2:
		take = sm.X != 0
		sm.X--
	case 3:
		take = sm.Y == 0
	case 4:
		take = sm.Y != 0
		sm.Y--
	case 5:
		take = sm.X != sm.Y
	case 6:
		level, err := p.gpio.GetBit(sm.jmpPin())
		take = err == nil && level == core.High
	case 7:
		take = sm.OSRCount < sm.pullThreshold()
	}
	if !take {
		return Next
	}
	sm.PC = addr & 0x1f
	return Jumped
}

func (p *PIO) execSET(sm *SM, dest int, data uint32) Outcome {
	switch dest {
	case 0, 4:
		base := sm.pinField(core.SM_PINCTRL_SET_BASE_Msk, core.SM_PINCTRL_SET_BASE_Pos)
		count := sm.pinField(core.SM_PINCTRL_SET_COUNT_Msk, core.SM_PINCTRL_SET_COUNT_Pos)
		mask := pinSpan(base, count)
		values := bits.RotateLeft32(data, base)
		if dest == 0 {
			p.gpio.WriteMasked(values, mask)
		} else {
			p.gpio.WriteDirsMasked(values, mask)
		}
	case 1:
		sm.X = data
	case 2:
		sm.Y = data
	}
	return Next
}

// refill pulls a word from TX into OSR. It reports false if TX is empty.
func (p *PIO) refill(sm *SM) bool {
	w, ok := sm.TX.Pop()
	if !ok {
		return false
	}
	sm.OSR = w
	sm.OSRCount = 0
	return true
}

func (p *PIO) execPULL(sm *SM, ifEmpty, block bool) Outcome {
	if ifEmpty && sm.OSRCount < sm.pullThreshold() {
		return Next
	}
	if p.refill(sm) {
		return Next
	}
	if block {
		p.fdebug |= 1 << (core.FDEBUG_TXSTALL_Pos + sm.Index)
		return Stalled
	}
	// Non-blocking pull from an empty FIFO copies X.
	sm.OSR = sm.X
	sm.OSRCount = 0
	return Next
}

func (p *PIO) execPUSH(sm *SM, ifFull, block bool) Outcome {
	if ifFull && sm.ISRCount < sm.pushThreshold() {
		return Next
	}
	if !sm.RX.Push(sm.ISR) {
		if block {
			p.fdebug |= 1 << (core.FDEBUG_RXSTALL_Pos + sm.Index)
			return Stalled
		}
	}
	sm.ISR, sm.ISRCount = 0, 0
	return Next
}

func (p *PIO) execOUT(sm *SM, dest, n int) Outcome {
	if sm.autopull() && sm.OSRCount >= sm.pullThreshold() {
		if !p.refill(sm) {
			p.fdebug |= 1 << (core.FDEBUG_TXSTALL_Pos + sm.Index)
			return Stalled
		}
	}
	data := sm.shiftOut(n)

	switch dest {
	case 0, 4:
		base := sm.pinField(core.SM_PINCTRL_OUT_BASE_Msk, core.SM_PINCTRL_OUT_BASE_Pos)
		count := sm.pinField(core.SM_PINCTRL_OUT_COUNT_Msk, core.SM_PINCTRL_OUT_COUNT_Pos)
		mask := pinSpan(base, count)
		values := bits.RotateLeft32(data, base)
		if dest == 0 {
			p.gpio.WriteMasked(values, mask)
		} else {
			p.gpio.WriteDirsMasked(values, mask)
		}
	case 1:
		sm.X = data
	case 2:
		sm.Y = data
	case 5:
		sm.PC = uint8(data) & 0x1f
		return Jumped
	case 6:
		sm.ISR = data
		sm.ISRCount = n
	case 7:
		return p.execute(sm, uint16(data))
	}
	return Next
}

func (p *PIO) execIN(sm *SM, src, n int) Outcome {
	if sm.autopush() && sm.ISRCount+n >= sm.pushThreshold() && sm.RX.IsFull() {
		p.fdebug |= 1 << (core.FDEBUG_RXSTALL_Pos + sm.Index)
		return Stalled
	}

	var data uint32
	switch src {
	case 0:
		base := sm.pinField(core.SM_PINCTRL_IN_BASE_Msk, core.SM_PINCTRL_IN_BASE_Pos)
		data = bits.RotateLeft32(p.gpio.Values(), -base)
	case 1:
		data = sm.X
	case 2:
		data = sm.Y
	case 6:
		data = sm.ISR
	case 7:
		data = sm.OSR
	}
	sm.shiftIn(data, n)

	if sm.autopush() && sm.ISRCount >= sm.pushThreshold() {
		sm.RX.Push(sm.ISR)
		sm.ISR, sm.ISRCount = 0, 0
	}
	return Next
}

// forceExec runs an instruction written to SMx_INSTR. A stalled forced
// instruction is latched and retried until it completes. Forced
// instructions do not advance PC. Must be called with p.mu held.
func (p *PIO) forceExec(sm *SM, instr uint16) {
	sm.pending = false
	if p.execute(sm, instr) == Stalled {
		sm.pendingInstr = instr
		sm.pending = true
		p.trace.Record(core.EvtStall, uint8(sm.Index), p.cycles.Load(), uint32(instr), 0)
		return
	}
	p.trace.Record(core.EvtExec, uint8(sm.Index), p.cycles.Load(), uint32(instr), uint32(sm.PC))
}

// retryPending re-executes a latched forced instruction. It reports
// whether the state machine is still stalled.
func (p *PIO) retryPending(sm *SM) bool {
	if !sm.pending {
		return false
	}
	if p.execute(sm, sm.pendingInstr) == Stalled {
		return true
	}
	sm.pending = false
	p.trace.Record(core.EvtExec, uint8(sm.Index), p.cycles.Load(), uint32(sm.pendingInstr), uint32(sm.PC))
	return false
}

// step runs one enabled cycle of sm. Must be called with p.mu held.
func (p *PIO) step(sm *SM) {
	if sm.pending {
		p.retryPending(sm)
		return
	}
	switch p.execute(sm, p.instrMem[sm.PC]) {
	case Next:
		sm.advance()
	case Jumped, Stalled:
	}
}
