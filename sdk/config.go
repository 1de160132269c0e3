package sdk

import (
	"github.com/pkg/errors"

	"pioemu/core"
)

// SMConfig holds the four configuration registers of a state machine.
// It is built off-line and applied in one step by SMSetConfig.
type SMConfig struct {
	// Frequency = clock freq / (CLKDIV_INT + CLKDIV_FRAC / 256)
	ClkDiv    uint32
	ExecCtrl  uint32
	ShiftCtrl uint32
	PinCtrl   uint32
}

// DefaultSMConfig mirrors pio_get_default_sm_config: divider 1, wrap over
// the whole memory, both shift registers shifting right without
// autopush/autopull and thresholds of 32.
func DefaultSMConfig() *SMConfig {
	cfg := &SMConfig{}
	cfg.ClkDiv = 1 << core.SM_CLKDIV_INT_Pos
	cfg.ExecCtrl = 0x1f << core.SM_EXECCTRL_WRAP_TOP_Pos
	cfg.ShiftCtrl = core.SM_SHIFTCTRL_OUT_SHIFTDIR_Msk | core.SM_SHIFTCTRL_IN_SHIFTDIR_Msk
	return cfg
}

func boolToBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func checkPinArg(name string, v int) error {
	return core.CheckRange(name, v, 0, core.GPIONum-1)
}

// SetClkDivIntFrac sets the divider from whole and fractional parts.
func (cfg *SMConfig) SetClkDivIntFrac(div uint16, frac uint8) {
	cfg.ClkDiv = uint32(frac)<<core.SM_CLKDIV_FRAC_Pos |
		uint32(div)<<core.SM_CLKDIV_INT_Pos
}

// SetClkDiv sets the divider from a value in [0, 65536).
func (cfg *SMConfig) SetClkDiv(div float32) error {
	divInt, divFrac, err := splitClkDiv(div)
	if err != nil {
		return err
	}
	cfg.SetClkDivIntFrac(uint16(divInt), uint8(divFrac))
	return nil
}

func splitClkDiv(div float32) (int, int, error) {
	if !(div >= 0 && div < 65536) {
		return 0, 0, errors.Wrapf(core.ErrOutOfRange, "clkdiv=%v not in [0,65536)", div)
	}
	divInt := int(div)
	divFrac := int((div - float32(divInt)) * 256)
	return divInt, divFrac, nil
}

// SetWrap sets the wrap window: after executing wrap, continue at
// wrapTarget.
func (cfg *SMConfig) SetWrap(wrapTarget, wrap int) error {
	if err := core.CheckRange("wrap target", wrapTarget, 0, core.MemorySize-1); err != nil {
		return err
	}
	if err := core.CheckRange("wrap", wrap, 0, core.MemorySize-1); err != nil {
		return err
	}
	cfg.ExecCtrl = cfg.ExecCtrl&^(core.SM_EXECCTRL_WRAP_TOP_Msk|core.SM_EXECCTRL_WRAP_BOTTOM_Msk) |
		uint32(wrapTarget)<<core.SM_EXECCTRL_WRAP_BOTTOM_Pos |
		uint32(wrap)<<core.SM_EXECCTRL_WRAP_TOP_Pos
	return nil
}

// SetJmpPin selects the pin tested by JMP PIN.
func (cfg *SMConfig) SetJmpPin(pin int) error {
	if err := checkPinArg("jmp pin", pin); err != nil {
		return err
	}
	cfg.ExecCtrl = cfg.ExecCtrl&^core.SM_EXECCTRL_JMP_PIN_Msk |
		uint32(pin)<<core.SM_EXECCTRL_JMP_PIN_Pos
	return nil
}

// SetInShift sets the ISR shift direction, autopush and push threshold
// (1..32).
func (cfg *SMConfig) SetInShift(shiftRight, autoPush bool, pushThreshold int) error {
	if err := core.CheckRange("push threshold", pushThreshold, 1, 32); err != nil {
		return err
	}
	cfg.ShiftCtrl = cfg.ShiftCtrl&^(core.SM_SHIFTCTRL_IN_SHIFTDIR_Msk|
		core.SM_SHIFTCTRL_AUTOPUSH_Msk|
		core.SM_SHIFTCTRL_PUSH_THRESH_Msk) |
		boolToBit(shiftRight)<<core.SM_SHIFTCTRL_IN_SHIFTDIR_Pos |
		boolToBit(autoPush)<<core.SM_SHIFTCTRL_AUTOPUSH_Pos |
		uint32(pushThreshold&0x1f)<<core.SM_SHIFTCTRL_PUSH_THRESH_Pos
	return nil
}

// SetOutShift sets the OSR shift direction, autopull and pull threshold
// (1..32).
func (cfg *SMConfig) SetOutShift(shiftRight, autoPull bool, pullThreshold int) error {
	if err := core.CheckRange("pull threshold", pullThreshold, 1, 32); err != nil {
		return err
	}
	cfg.ShiftCtrl = cfg.ShiftCtrl&^(core.SM_SHIFTCTRL_OUT_SHIFTDIR_Msk|
		core.SM_SHIFTCTRL_AUTOPULL_Msk|
		core.SM_SHIFTCTRL_PULL_THRESH_Msk) |
		boolToBit(shiftRight)<<core.SM_SHIFTCTRL_OUT_SHIFTDIR_Pos |
		boolToBit(autoPull)<<core.SM_SHIFTCTRL_AUTOPULL_Pos |
		uint32(pullThreshold&0x1f)<<core.SM_SHIFTCTRL_PULL_THRESH_Pos
	return nil
}

// FIFOJoin selects how the eight FIFO words are split.
type FIFOJoin int

const (
	FIFOJoinNone FIFOJoin = iota
	FIFOJoinTX
	FIFOJoinRX
)

func (cfg *SMConfig) SetFIFOJoin(join FIFOJoin) error {
	if err := core.CheckRange("fifo join", int(join), int(FIFOJoinNone), int(FIFOJoinRX)); err != nil {
		return err
	}
	cfg.ShiftCtrl = cfg.ShiftCtrl&^(core.SM_SHIFTCTRL_FJOIN_TX_Msk|core.SM_SHIFTCTRL_FJOIN_RX_Msk) |
		uint32(join)<<core.SM_SHIFTCTRL_FJOIN_TX_Pos
	return nil
}

// SetOutPins sets the pins driven by OUT PINS and OUT PINDIRS, count 0..32.
func (cfg *SMConfig) SetOutPins(base, count int) error {
	if err := checkPinArg("out base", base); err != nil {
		return err
	}
	if err := core.CheckRange("out count", count, 0, core.GPIONum); err != nil {
		return err
	}
	cfg.PinCtrl = setOutPins(cfg.PinCtrl, base, count)
	return nil
}

// SetSetPins sets the pins driven by SET PINS and SET PINDIRS, count 0..5.
func (cfg *SMConfig) SetSetPins(base, count int) error {
	if err := checkPinArg("set base", base); err != nil {
		return err
	}
	if err := core.CheckRange("set count", count, 0, 5); err != nil {
		return err
	}
	cfg.PinCtrl = setSetPins(cfg.PinCtrl, base, count)
	return nil
}

// SetInPins sets the pin mapped to bit 0 of IN PINS.
func (cfg *SMConfig) SetInPins(base int) error {
	if err := checkPinArg("in base", base); err != nil {
		return err
	}
	cfg.PinCtrl = cfg.PinCtrl&^core.SM_PINCTRL_IN_BASE_Msk | uint32(base)<<core.SM_PINCTRL_IN_BASE_Pos
	return nil
}

// SetSidesetPins sets the lowest pin affected by side-set.
func (cfg *SMConfig) SetSidesetPins(base int) error {
	if err := checkPinArg("sideset base", base); err != nil {
		return err
	}
	cfg.PinCtrl = cfg.PinCtrl&^core.SM_PINCTRL_SIDESET_BASE_Msk | uint32(base)<<core.SM_PINCTRL_SIDESET_BASE_Pos
	return nil
}

// SetSidesetParams sets the number of delay bits used for side-set (0..5),
// whether the top one is an enable flag and whether side-set drives
// pin directions.
func (cfg *SMConfig) SetSidesetParams(bitCount int, optional, pindirs bool) error {
	if err := core.CheckRange("sideset bit count", bitCount, 0, 5); err != nil {
		return err
	}
	cfg.PinCtrl = cfg.PinCtrl&^core.SM_PINCTRL_SIDESET_COUNT_Msk |
		uint32(bitCount)<<core.SM_PINCTRL_SIDESET_COUNT_Pos
	cfg.ExecCtrl = cfg.ExecCtrl&^(core.SM_EXECCTRL_SIDE_EN_Msk|core.SM_EXECCTRL_SIDE_PINDIR_Msk) |
		boolToBit(optional)<<core.SM_EXECCTRL_SIDE_EN_Pos |
		boolToBit(pindirs)<<core.SM_EXECCTRL_SIDE_PINDIR_Pos
	return nil
}

func setOutPins(pinCtrl uint32, base, count int) uint32 {
	return pinCtrl&^(core.SM_PINCTRL_OUT_COUNT_Msk|core.SM_PINCTRL_OUT_BASE_Msk) |
		uint32(count)<<core.SM_PINCTRL_OUT_COUNT_Pos |
		uint32(base)<<core.SM_PINCTRL_OUT_BASE_Pos
}

func setSetPins(pinCtrl uint32, base, count int) uint32 {
	return pinCtrl&^(core.SM_PINCTRL_SET_COUNT_Msk|core.SM_PINCTRL_SET_BASE_Msk) |
		uint32(count)<<core.SM_PINCTRL_SET_COUNT_Pos |
		uint32(base)<<core.SM_PINCTRL_SET_BASE_Pos
}
