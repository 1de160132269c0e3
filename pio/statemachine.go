package pio

import (
	"math/bits"

	"pioemu/core"
)

// SM is the internal state of one state machine. An Engine receives a
// pointer to it while the owning PIO is locked.
type SM struct {
	Index int

	PC  uint8
	X   uint32
	Y   uint32
	ISR uint32
	OSR uint32

	// ISRCount is the number of bits shifted into ISR since it was last
	// emptied; OSRCount the number shifted out of OSR since it was last
	// filled. OSRCount 32 means OSR is empty.
	ISRCount int
	OSRCount int

	TX FIFO
	RX FIFO

	ClkDiv    uint32
	ExecCtrl  uint32
	ShiftCtrl uint32
	PinCtrl   uint32

	pll *core.PLL

	// Forced instruction latched because it stalled.
	pendingInstr uint16
	pending      bool
}

func newSM(index int) *SM {
	sm := &SM{
		Index: index,
		pll:   core.NewPLL(),
	}
	sm.reset()
	return sm
}

func (sm *SM) reset() {
	sm.PC = 0
	sm.X, sm.Y = 0, 0
	sm.ClkDiv = core.SM_CLKDIV_Reset
	sm.ExecCtrl = core.SM_EXECCTRL_Reset
	sm.ShiftCtrl = core.SM_SHIFTCTRL_Reset
	sm.PinCtrl = core.SM_PINCTRL_Reset
	sm.pll.SetCLKDIV(sm.ClkDiv)
	sm.pll.Reset()
	sm.resizeFIFOs()
	sm.restart()
}

// restart clears the shift counters, the shift registers and any latched
// forced instruction. PC, X, Y and configuration survive.
func (sm *SM) restart() {
	sm.ISR, sm.ISRCount = 0, 0
	sm.OSR, sm.OSRCount = 0, 32
	sm.pending = false
}

// resizeFIFOs empties both FIFOs and distributes storage per FJOIN.
func (sm *SM) resizeFIFOs() {
	tx, rx := core.FIFODepth, core.FIFODepth
	joinTX := sm.ShiftCtrl&core.SM_SHIFTCTRL_FJOIN_TX_Msk != 0
	joinRX := sm.ShiftCtrl&core.SM_SHIFTCTRL_FJOIN_RX_Msk != 0
	switch {
	case joinTX && !joinRX:
		tx, rx = maxFIFODepth, 0
	case joinRX && !joinTX:
		tx, rx = 0, maxFIFODepth
	}
	sm.TX.Reset(tx)
	sm.RX.Reset(rx)
}

// Stalled reports whether a forced instruction is waiting to complete.
func (sm *SM) Stalled() bool { return sm.pending }

func (sm *SM) wrapTop() uint8 {
	return uint8((sm.ExecCtrl & core.SM_EXECCTRL_WRAP_TOP_Msk) >> core.SM_EXECCTRL_WRAP_TOP_Pos)
}

func (sm *SM) wrapBottom() uint8 {
	return uint8((sm.ExecCtrl & core.SM_EXECCTRL_WRAP_BOTTOM_Msk) >> core.SM_EXECCTRL_WRAP_BOTTOM_Pos)
}

// advance moves PC to the next instruction honouring the wrap window.
func (sm *SM) advance() {
	if sm.PC == sm.wrapTop() {
		sm.PC = sm.wrapBottom()
		return
	}
	sm.PC = (sm.PC + 1) & 0x1f
}

func (sm *SM) jmpPin() core.GPIOPin {
	return core.GPIOPin((sm.ExecCtrl & core.SM_EXECCTRL_JMP_PIN_Msk) >> core.SM_EXECCTRL_JMP_PIN_Pos)
}

func (sm *SM) autopull() bool { return sm.ShiftCtrl&core.SM_SHIFTCTRL_AUTOPULL_Msk != 0 }
func (sm *SM) autopush() bool { return sm.ShiftCtrl&core.SM_SHIFTCTRL_AUTOPUSH_Msk != 0 }

func (sm *SM) outShiftRight() bool { return sm.ShiftCtrl&core.SM_SHIFTCTRL_OUT_SHIFTDIR_Msk != 0 }
func (sm *SM) inShiftRight() bool  { return sm.ShiftCtrl&core.SM_SHIFTCTRL_IN_SHIFTDIR_Msk != 0 }

// threshold fields encode 32 as 0.
func threshold(v uint32) int {
	if v == 0 {
		return 32
	}
	return int(v)
}

func (sm *SM) pullThreshold() int {
	return threshold((sm.ShiftCtrl & core.SM_SHIFTCTRL_PULL_THRESH_Msk) >> core.SM_SHIFTCTRL_PULL_THRESH_Pos)
}

func (sm *SM) pushThreshold() int {
	return threshold((sm.ShiftCtrl & core.SM_SHIFTCTRL_PUSH_THRESH_Msk) >> core.SM_SHIFTCTRL_PUSH_THRESH_Pos)
}

func (sm *SM) pinField(msk, pos uint32) int {
	return int((sm.PinCtrl & msk) >> pos)
}

// shiftOut removes n bits from OSR in the configured direction.
func (sm *SM) shiftOut(n int) uint32 {
	var data uint32
	if n == 32 {
		data = sm.OSR
		sm.OSR = 0
	} else if sm.outShiftRight() {
		data = sm.OSR & (1<<n - 1)
		sm.OSR >>= n
	} else {
		data = sm.OSR >> (32 - n)
		sm.OSR <<= n
	}
	sm.OSRCount = min(sm.OSRCount+n, 32)
	return data
}

// shiftIn feeds the low n bits of data into ISR in the configured direction.
func (sm *SM) shiftIn(data uint32, n int) {
	if n == 32 {
		sm.ISR = data
	} else {
		data &= 1<<n - 1
		if sm.inShiftRight() {
			sm.ISR = sm.ISR>>n | data<<(32-n)
		} else {
			sm.ISR = sm.ISR<<n | data
		}
	}
	sm.ISRCount = min(sm.ISRCount+n, 32)
}

// pinSpan returns the mask of count pins starting at base, wrapping at 32.
func pinSpan(base, count int) uint32 {
	if count >= 32 {
		return 0xffffffff
	}
	return bits.RotateLeft32(uint32(1)<<count-1, base)
}
