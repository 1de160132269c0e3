package sdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pioemu/core"
)

func TestEncodings(t *testing.T) {
	tests := []struct {
		name  string
		instr uint16
		want  uint16
	}{
		{"jmp 5", EncodeJmp(5), 0x0005},
		{"jmp !x 3", EncodeJmpCond(JmpXZero, 3), 0x0023},
		{"jmp pin 31", EncodeJmpCond(JmpPin, 31), 0x00df},
		{"set pins 31", EncodeSet(SrcDestPins, 0x1f), 0xe01f},
		{"set pindirs 1", EncodeSet(SrcDestPinDirs, 1), 0xe081},
		{"out null 32", EncodeOut(SrcDestNull, 32), 0x6060},
		{"out pc 5", EncodeOut(SrcDestPC, 5), 0x60a5},
		{"in pins 8", EncodeIn(SrcDestPins, 8), 0x4008},
		{"pull noblock", EncodePull(false, false), 0x8080},
		{"pull ifempty block", EncodePull(true, true), 0x80e0},
		{"push block", EncodePush(false, true), 0x8020},
		{"nop", EncodeNOP(), 0xa042},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.instr)
		})
	}
}

func TestRelocate(t *testing.T) {
	assert.Equal(t, uint16(0x0047), Relocate(EncodeJmpCond(JmpXNotZeroDec, 3), 4))
	assert.Equal(t, uint16(0x0001), Relocate(EncodeJmp(30), 3))
	assert.Equal(t, uint16(0xe001), Relocate(0xe001, 9))
	assert.Equal(t, InstrSET, MajorInstrBits(0xe081))
}

func TestClkDivFromPeriod(t *testing.T) {
	whole, frac, err := ClkDivFromPeriod(1000, 125_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint16(125), whole)
	assert.Zero(t, frac)

	_, _, err = ClkDivFromPeriod(1, 1000)
	assert.Error(t, err)
}

func TestDefaultSMConfig(t *testing.T) {
	cfg := DefaultSMConfig()
	assert.Equal(t, core.SM_CLKDIV_Reset, cfg.ClkDiv)
	assert.Equal(t, core.SM_EXECCTRL_Reset, cfg.ExecCtrl)
	assert.Equal(t, core.SM_SHIFTCTRL_Reset, cfg.ShiftCtrl)
	assert.Zero(t, cfg.PinCtrl)

	require.NoError(t, cfg.SetFIFOJoin(FIFOJoinTX))
	assert.Equal(t, core.SM_SHIFTCTRL_Reset|core.SM_SHIFTCTRL_FJOIN_TX_Msk, cfg.ShiftCtrl)
	require.NoError(t, cfg.SetInShift(false, true, 8))
	assert.NotZero(t, cfg.ShiftCtrl&core.SM_SHIFTCTRL_AUTOPUSH_Msk)
	assert.Zero(t, cfg.ShiftCtrl&core.SM_SHIFTCTRL_IN_SHIFTDIR_Msk)
	assert.ErrorIs(t, cfg.SetInShift(true, false, 0), core.ErrOutOfRange)

	require.NoError(t, cfg.SetSidesetParams(2, true, false))
	assert.NotZero(t, cfg.ExecCtrl&core.SM_EXECCTRL_SIDE_EN_Msk)
	assert.Equal(t, uint32(2)<<core.SM_PINCTRL_SIDESET_COUNT_Pos, cfg.PinCtrl)

	require.NoError(t, cfg.SetJmpPin(17))
	assert.Equal(t, uint32(17), (cfg.ExecCtrl&core.SM_EXECCTRL_JMP_PIN_Msk)>>core.SM_EXECCTRL_JMP_PIN_Pos)
}
