package sdk

import (
	"math/bits"

	"github.com/pkg/errors"

	"pioemu/core"
)

// SMSetConfig writes all four configuration registers as one unit.
func (s *SDK) SMSetConfig(sm int, cfg *SMConfig) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	if cfg == nil {
		return errors.Wrap(core.ErrNilArgument, "config")
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()
	for _, w := range []struct{ reg, value uint32 }{
		{core.SM0_CLKDIV, cfg.ClkDiv},
		{core.SM0_EXECCTRL, cfg.ExecCtrl},
		{core.SM0_SHIFTCTRL, cfg.ShiftCtrl},
		{core.SM0_PINCTRL, cfg.PinCtrl},
	} {
		if err := s.regs.WriteAddress(s.smAddr(w.reg, sm), w.value); err != nil {
			return err
		}
	}
	return nil
}

// SMInit resets a state machine into a known state: disabled, configured
// with cfg (the default when nil), FIFOs and debug flags cleared,
// restarted and about to execute initialPC.
func (s *SDK) SMInit(sm, initialPC int, cfg *SMConfig) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	if err := core.CheckRange("initial pc", initialPC, 0, core.MemorySize-1); err != nil {
		return err
	}
	if cfg == nil {
		cfg = DefaultSMConfig()
	}
	if err := s.SMSetEnabled(sm, false); err != nil {
		return err
	}
	if err := s.SMSetConfig(sm, cfg); err != nil {
		return err
	}
	if err := s.SMClearFIFOs(sm); err != nil {
		return err
	}
	fdebug := uint32(1<<core.FDEBUG_TXSTALL_Pos|
		1<<core.FDEBUG_TXOVER_Pos|
		1<<core.FDEBUG_RXUNDER_Pos|
		1<<core.FDEBUG_RXSTALL_Pos) << sm
	if err := s.write(core.FDEBUG, fdebug); err != nil {
		return err
	}
	if err := s.SMRestart(sm); err != nil {
		return err
	}
	if err := s.SMClkDivRestart(sm); err != nil {
		return err
	}
	return s.SMExec(sm, EncodeJmp(uint16(initialPC&0x1f)))
}

// SMSetEnabled starts or stops a state machine.
func (s *SDK) SMSetEnabled(sm int, enabled bool) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	return s.SetSMMaskEnabled(1<<sm, enabled)
}

// SetSMMaskEnabled starts or stops every state machine in mask.
func (s *SDK) SetSMMaskEnabled(mask int, enabled bool) error {
	if err := checkMask(mask); err != nil {
		return err
	}
	bits := uint32(mask) << core.CTRL_SM_ENABLE_Pos
	if enabled {
		return s.regs.HWSetBits(s.addr(core.CTRL), bits)
	}
	return s.regs.HWClearBits(s.addr(core.CTRL), bits)
}

// SMRestart clears a state machine's internal execution state.
func (s *SDK) SMRestart(sm int) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	return s.RestartSMMask(1 << sm)
}

func (s *SDK) RestartSMMask(mask int) error {
	if err := checkMask(mask); err != nil {
		return err
	}
	return s.regs.HWSetBits(s.addr(core.CTRL), uint32(mask)<<core.CTRL_SM_RESTART_Pos)
}

// SMClkDivRestart restarts a clock divider's phase.
func (s *SDK) SMClkDivRestart(sm int) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	return s.ClkDivRestartSMMask(1 << sm)
}

func (s *SDK) ClkDivRestartSMMask(mask int) error {
	if err := checkMask(mask); err != nil {
		return err
	}
	return s.regs.HWSetBits(s.addr(core.CTRL), uint32(mask)<<core.CTRL_CLKDIV_RESTART_Pos)
}

// EnableSMMaskInSync restarts the dividers of and enables every state
// machine in mask with a single CTRL write, so they run in lock step.
func (s *SDK) EnableSMMaskInSync(mask int) error {
	if err := checkMask(mask); err != nil {
		return err
	}
	m := uint32(mask)
	return s.regs.HWSetBits(s.addr(core.CTRL),
		m<<core.CTRL_CLKDIV_RESTART_Pos|m<<core.CTRL_SM_ENABLE_Pos)
}

// SMGetPC returns the current program counter.
func (s *SDK) SMGetPC(sm int) (int, error) {
	if err := checkSM(sm); err != nil {
		return 0, err
	}
	pc, err := s.regs.ReadAddress(s.smAddr(core.SM0_ADDR, sm))
	return int(pc), err
}

// SMExec executes instr immediately on a state machine.
func (s *SDK) SMExec(sm int, instr uint16) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	return s.regs.WriteAddress(s.smAddr(core.SM0_INSTR, sm), uint32(instr))
}

// SMIsExecStalled reports whether an executed instruction is stalled.
func (s *SDK) SMIsExecStalled(sm int) (bool, error) {
	if err := checkSM(sm); err != nil {
		return false, err
	}
	v, err := s.regs.ReadAddress(s.smAddr(core.SM0_EXECCTRL, sm))
	return v&core.SM_EXECCTRL_EXEC_STALLED_Msk != 0, err
}

// SMExecWaitBlocking executes instr and waits, without limit, for it to
// complete.
func (s *SDK) SMExecWaitBlocking(sm int, instr uint16) error {
	if err := s.SMExec(sm, instr); err != nil {
		return err
	}
	_, err := s.regs.Wait(s.smAddr(core.SM0_EXECCTRL, sm), 0, core.SM_EXECCTRL_EXEC_STALLED_Msk, 0, 0)
	return err
}

// SMSetWrap sets the wrap window of a running state machine.
func (s *SDK) SMSetWrap(sm, wrapTarget, wrap int) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	cfg := SMConfig{}
	if err := cfg.SetWrap(wrapTarget, wrap); err != nil {
		return err
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()
	return s.regs.HWWriteMasked(s.smAddr(core.SM0_EXECCTRL, sm), cfg.ExecCtrl,
		core.SM_EXECCTRL_WRAP_TOP_Msk|core.SM_EXECCTRL_WRAP_BOTTOM_Msk)
}

// updatePinCtrl applies f to PINCTRL under the register lock.
func (s *SDK) updatePinCtrl(sm int, f func(uint32) uint32) error {
	addr := s.smAddr(core.SM0_PINCTRL, sm)
	s.regMu.Lock()
	defer s.regMu.Unlock()
	v, err := s.regs.ReadAddress(addr)
	if err != nil {
		return err
	}
	return s.regs.WriteAddress(addr, f(v))
}

// SMSetOutPins sets the OUT pin mapping, count 0..32.
func (s *SDK) SMSetOutPins(sm, outBase, outCount int) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	cfg := SMConfig{}
	if err := cfg.SetOutPins(outBase, outCount); err != nil {
		return err
	}
	return s.updatePinCtrl(sm, func(v uint32) uint32 { return setOutPins(v, outBase, outCount) })
}

// SMSetSetPins sets the SET pin mapping, count 0..5.
func (s *SDK) SMSetSetPins(sm, setBase, setCount int) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	cfg := SMConfig{}
	if err := cfg.SetSetPins(setBase, setCount); err != nil {
		return err
	}
	return s.updatePinCtrl(sm, func(v uint32) uint32 { return setSetPins(v, setBase, setCount) })
}

func (s *SDK) SMSetInPins(sm, inBase int) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	if err := checkPinArg("in base", inBase); err != nil {
		return err
	}
	return s.updatePinCtrl(sm, func(v uint32) uint32 {
		return v&^core.SM_PINCTRL_IN_BASE_Msk | uint32(inBase)<<core.SM_PINCTRL_IN_BASE_Pos
	})
}

func (s *SDK) SMSetSideSetPins(sm, sideSetBase int) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	if err := checkPinArg("sideset base", sideSetBase); err != nil {
		return err
	}
	return s.updatePinCtrl(sm, func(v uint32) uint32 {
		return v&^core.SM_PINCTRL_SIDESET_BASE_Msk | uint32(sideSetBase)<<core.SM_PINCTRL_SIDESET_BASE_Pos
	})
}

// SMSetClkDiv sets the divider from a value in [0, 65536).
func (s *SDK) SMSetClkDiv(sm int, div float32) error {
	divInt, divFrac, err := splitClkDiv(div)
	if err != nil {
		return err
	}
	return s.SMSetClkDivIntFrac(sm, divInt, divFrac)
}

// SMSetClkDivIntFrac sets INT (0..0xffff) and FRAC (0..0xff).
func (s *SDK) SMSetClkDivIntFrac(sm, divInt, divFrac int) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	if err := core.CheckRange("clkdiv int", divInt, 0, 0xffff); err != nil {
		return err
	}
	if err := core.CheckRange("clkdiv frac", divFrac, 0, 0xff); err != nil {
		return err
	}
	cfg := SMConfig{}
	cfg.SetClkDivIntFrac(uint16(divInt), uint8(divFrac))
	return s.regs.WriteAddress(s.smAddr(core.SM0_CLKDIV, sm), cfg.ClkDiv)
}

// SMClearFIFOs empties both FIFOs by toggling the RX join bit twice.
func (s *SDK) SMClearFIFOs(sm int) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	addr := s.smAddr(core.SM0_SHIFTCTRL, sm)
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if err := s.regs.HWXorBits(addr, core.SM_SHIFTCTRL_FJOIN_RX_Msk); err != nil {
		return err
	}
	return s.regs.HWXorBits(addr, core.SM_SHIFTCTRL_FJOIN_RX_Msk)
}

// SMPut writes a word to the TX FIFO without checking for room.
func (s *SDK) SMPut(sm int, data uint32) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	return s.write(core.TXF(sm), data)
}

// SMGet reads a word from the RX FIFO without checking for data.
func (s *SDK) SMGet(sm int) (uint32, error) {
	if err := checkSM(sm); err != nil {
		return 0, err
	}
	return s.read(core.RXF(sm))
}

func (s *SDK) fstat(sm, pos int) (bool, error) {
	if err := checkSM(sm); err != nil {
		return false, err
	}
	v, err := s.read(core.FSTAT)
	return v&(1<<(pos+sm)) != 0, err
}

func (s *SDK) SMIsRXFIFOFull(sm int) (bool, error)  { return s.fstat(sm, core.FSTAT_RXFULL_Pos) }
func (s *SDK) SMIsRXFIFOEmpty(sm int) (bool, error) { return s.fstat(sm, core.FSTAT_RXEMPTY_Pos) }
func (s *SDK) SMIsTXFIFOFull(sm int) (bool, error)  { return s.fstat(sm, core.FSTAT_TXFULL_Pos) }
func (s *SDK) SMIsTXFIFOEmpty(sm int) (bool, error) { return s.fstat(sm, core.FSTAT_TXEMPTY_Pos) }

func (s *SDK) flevel(sm, pos int) (int, error) {
	if err := checkSM(sm); err != nil {
		return 0, err
	}
	v, err := s.read(core.FLEVEL)
	return int(v>>(pos+sm*core.FLEVEL_SM_Step)) & core.FLEVEL_Msk, err
}

func (s *SDK) SMGetRXFIFOLevel(sm int) (int, error) { return s.flevel(sm, core.FLEVEL_RX0_Pos) }
func (s *SDK) SMGetTXFIFOLevel(sm int) (int, error) { return s.flevel(sm, core.FLEVEL_TX0_Pos) }

// SMPutBlocking waits, without limit, for room in the TX FIFO and
// writes data.
func (s *SDK) SMPutBlocking(sm int, data uint32) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	full := uint32(1) << (core.FSTAT_TXFULL_Pos + sm)
	if _, err := s.regs.Wait(s.addr(core.FSTAT), 0, full, 0, 0); err != nil {
		return err
	}
	return s.SMPut(sm, data)
}

// SMGetBlocking waits, without limit, for a word in the RX FIFO.
func (s *SDK) SMGetBlocking(sm int) (uint32, error) {
	if err := checkSM(sm); err != nil {
		return 0, err
	}
	empty := uint32(1) << (core.FSTAT_RXEMPTY_Pos + sm)
	if _, err := s.regs.Wait(s.addr(core.FSTAT), 0, empty, 0, 0); err != nil {
		return 0, err
	}
	return s.SMGet(sm)
}

// SMDrainTXFIFO discards the TX FIFO contents by executing OUT NULL, 32
// (with autopull) or PULL NOBLOCK until the FIFO is empty.
func (s *SDK) SMDrainTXFIFO(sm int) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	shiftCtrl, err := s.regs.ReadAddress(s.smAddr(core.SM0_SHIFTCTRL, sm))
	if err != nil {
		return err
	}
	instr := EncodePull(false, false)
	if shiftCtrl&core.SM_SHIFTCTRL_AUTOPULL_Msk != 0 {
		instr = EncodeOut(SrcDestNull, 32)
	}
	for {
		empty, err := s.SMIsTXFIFOEmpty(sm)
		if err != nil || empty {
			return err
		}
		if err := s.SMExec(sm, instr); err != nil {
			return err
		}
	}
}

// withSetPins saves PINCTRL, runs f with the register lock held and
// restores PINCTRL afterwards.
func (s *SDK) withSetPins(sm int, f func(setPins func(base, count int) error) error) error {
	addr := s.smAddr(core.SM0_PINCTRL, sm)
	s.regMu.Lock()
	defer s.regMu.Unlock()
	saved, err := s.regs.ReadAddress(addr)
	if err != nil {
		return err
	}
	setPins := func(base, count int) error {
		return s.regs.WriteAddress(addr, setSetPins(0, base, count))
	}
	ferr := f(setPins)
	if err := s.regs.WriteAddress(addr, saved); err != nil && ferr == nil {
		ferr = err
	}
	return ferr
}

// SMSetPins drives all 32 pins to the levels in pins, five at a time.
func (s *SDK) SMSetPins(sm int, pins uint32) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	return s.withSetPins(sm, func(setPins func(base, count int) error) error {
		for base, remaining := 0, core.GPIONum; remaining > 0; {
			n := min(remaining, 5)
			if err := setPins(base, n); err != nil {
				return err
			}
			if err := s.SMExec(sm, EncodeSet(SrcDestPins, uint16(pins&0x1f))); err != nil {
				return err
			}
			remaining -= n
			base += n
			pins >>= 5
		}
		return nil
	})
}

// SMSetPinsWithMask drives the pins in pinMask to the matching levels in
// pinValues, one pin at a time.
func (s *SDK) SMSetPinsWithMask(sm int, pinValues, pinMask uint32) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	return s.setEachPin(sm, SrcDestPins, pinValues, pinMask)
}

// SMSetPinDirsWithMask sets the output enables of the pins in pinMask to
// the matching bits of pinDirs.
func (s *SDK) SMSetPinDirsWithMask(sm int, pinDirs, pinMask uint32) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	return s.setEachPin(sm, SrcDestPinDirs, pinDirs, pinMask)
}

func (s *SDK) setEachPin(sm int, dest SrcDest, values, mask uint32) error {
	return s.withSetPins(sm, func(setPins func(base, count int) error) error {
		for mask != 0 {
			base := bits.TrailingZeros32(mask)
			if err := setPins(base, 1); err != nil {
				return err
			}
			if err := s.SMExec(sm, EncodeSet(dest, uint16(values>>base)&1)); err != nil {
				return err
			}
			mask &= mask - 1
		}
		return nil
	})
}

// SMSetConsecutivePinDirs makes pinCount pins from pinBase outputs or
// inputs. pinCount is limited to 31.
func (s *SDK) SMSetConsecutivePinDirs(sm, pinBase, pinCount int, isOut bool) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	if err := checkPinArg("pin base", pinBase); err != nil {
		return err
	}
	if err := checkPinArg("pin count", pinCount); err != nil {
		return err
	}
	var value uint16
	if isOut {
		value = 0x1f
	}
	instr := EncodeSet(SrcDestPinDirs, value)
	return s.withSetPins(sm, func(setPins func(base, count int) error) error {
		for pinCount > 5 {
			if err := setPins(pinBase, 5); err != nil {
				return err
			}
			if err := s.SMExec(sm, instr); err != nil {
				return err
			}
			pinCount -= 5
			pinBase = (pinBase + 5) & 0x1f
		}
		if err := setPins(pinBase, pinCount); err != nil {
			return err
		}
		return s.SMExec(sm, instr)
	})
}

