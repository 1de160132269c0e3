package core

import "strconv"

// RP2040 PIO block geometry.
const (
	GPIONum    = 32
	SMCount    = 4
	MemorySize = 32
	FIFODepth  = 4

	PIO0Base uint32 = 0x50200000
	PIO1Base uint32 = 0x50300000

	// BlockSize is the span of one alias window.
	BlockSize uint32 = 0x1000

	// DBGCfgInfo reports IMEM_SIZE=32, SM_COUNT=4, FIFO_DEPTH=4.
	DBGCfgInfo uint32 = 0x00200404
)

// Register offsets from the PIO base address.
const (
	CTRL              uint32 = 0x000
	FSTAT             uint32 = 0x004
	FDEBUG            uint32 = 0x008
	FLEVEL            uint32 = 0x00c
	TXF0              uint32 = 0x010
	RXF0              uint32 = 0x020
	IRQ               uint32 = 0x030
	IRQ_FORCE         uint32 = 0x034
	INPUT_SYNC_BYPASS uint32 = 0x038
	DBG_PADOUT        uint32 = 0x03c
	DBG_PADOE         uint32 = 0x040
	DBG_CFGINFO       uint32 = 0x044
	INSTR_MEM0        uint32 = 0x048
	SM0_CLKDIV        uint32 = 0x0c8
	SM0_EXECCTRL      uint32 = 0x0cc
	SM0_SHIFTCTRL     uint32 = 0x0d0
	SM0_ADDR          uint32 = 0x0d4
	SM0_INSTR         uint32 = 0x0d8
	SM0_PINCTRL       uint32 = 0x0dc
	SM_SIZE           uint32 = 0x018
	INTR              uint32 = 0x128
	IRQ0_INTE         uint32 = 0x12c
	IRQ0_INTF         uint32 = 0x130
	IRQ0_INTS         uint32 = 0x134
	IRQ1_INTE         uint32 = 0x138
	IRQ1_INTF         uint32 = 0x13c
	IRQ1_INTS         uint32 = 0x140

	// RegisterSpan is the first offset past the register file.
	RegisterSpan uint32 = 0x144
)

// CTRL fields.
const (
	CTRL_SM_ENABLE_Pos      = 0
	CTRL_SM_ENABLE_Msk      = 0xf << CTRL_SM_ENABLE_Pos
	CTRL_SM_RESTART_Pos     = 4
	CTRL_SM_RESTART_Msk     = 0xf << CTRL_SM_RESTART_Pos
	CTRL_CLKDIV_RESTART_Pos = 8
	CTRL_CLKDIV_RESTART_Msk = 0xf << CTRL_CLKDIV_RESTART_Pos
)

// FSTAT fields.
const (
	FSTAT_RXFULL_Pos  = 0
	FSTAT_RXEMPTY_Pos = 8
	FSTAT_TXFULL_Pos  = 16
	FSTAT_TXEMPTY_Pos = 24
)

// FDEBUG fields, write-1-to-clear.
const (
	FDEBUG_RXSTALL_Pos = 0
	FDEBUG_RXUNDER_Pos = 8
	FDEBUG_TXOVER_Pos  = 16
	FDEBUG_TXSTALL_Pos = 24
)

// FLEVEL packs a 4 bit level per FIFO, TX then RX, per state machine.
const (
	FLEVEL_TX0_Pos = 0
	FLEVEL_RX0_Pos = 4
	FLEVEL_SM_Step = 8
	FLEVEL_Msk     = 0xf
)

// SMx_CLKDIV fields.
const (
	SM_CLKDIV_FRAC_Pos = 8
	SM_CLKDIV_FRAC_Msk = 0xff << SM_CLKDIV_FRAC_Pos
	SM_CLKDIV_INT_Pos  = 16
	SM_CLKDIV_INT_Msk  = 0xffff << SM_CLKDIV_INT_Pos
)

// SMx_EXECCTRL fields.
const (
	SM_EXECCTRL_EXEC_STALLED_Pos  = 31
	SM_EXECCTRL_EXEC_STALLED_Msk  = 1 << SM_EXECCTRL_EXEC_STALLED_Pos
	SM_EXECCTRL_SIDE_EN_Pos       = 30
	SM_EXECCTRL_SIDE_EN_Msk       = 1 << SM_EXECCTRL_SIDE_EN_Pos
	SM_EXECCTRL_SIDE_PINDIR_Pos   = 29
	SM_EXECCTRL_SIDE_PINDIR_Msk   = 1 << SM_EXECCTRL_SIDE_PINDIR_Pos
	SM_EXECCTRL_JMP_PIN_Pos       = 24
	SM_EXECCTRL_JMP_PIN_Msk       = 0x1f << SM_EXECCTRL_JMP_PIN_Pos
	SM_EXECCTRL_OUT_EN_SEL_Pos    = 19
	SM_EXECCTRL_OUT_EN_SEL_Msk    = 0x1f << SM_EXECCTRL_OUT_EN_SEL_Pos
	SM_EXECCTRL_INLINE_OUT_EN_Pos = 18
	SM_EXECCTRL_INLINE_OUT_EN_Msk = 1 << SM_EXECCTRL_INLINE_OUT_EN_Pos
	SM_EXECCTRL_OUT_STICKY_Pos    = 17
	SM_EXECCTRL_OUT_STICKY_Msk    = 1 << SM_EXECCTRL_OUT_STICKY_Pos
	SM_EXECCTRL_WRAP_TOP_Pos      = 12
	SM_EXECCTRL_WRAP_TOP_Msk      = 0x1f << SM_EXECCTRL_WRAP_TOP_Pos
	SM_EXECCTRL_WRAP_BOTTOM_Pos   = 7
	SM_EXECCTRL_WRAP_BOTTOM_Msk   = 0x1f << SM_EXECCTRL_WRAP_BOTTOM_Pos
	SM_EXECCTRL_STATUS_SEL_Pos    = 4
	SM_EXECCTRL_STATUS_SEL_Msk    = 1 << SM_EXECCTRL_STATUS_SEL_Pos
	SM_EXECCTRL_STATUS_N_Pos      = 0
	SM_EXECCTRL_STATUS_N_Msk      = 0xf << SM_EXECCTRL_STATUS_N_Pos
)

// SMx_SHIFTCTRL fields.
const (
	SM_SHIFTCTRL_FJOIN_RX_Pos     = 31
	SM_SHIFTCTRL_FJOIN_RX_Msk     = 1 << SM_SHIFTCTRL_FJOIN_RX_Pos
	SM_SHIFTCTRL_FJOIN_TX_Pos     = 30
	SM_SHIFTCTRL_FJOIN_TX_Msk     = 1 << SM_SHIFTCTRL_FJOIN_TX_Pos
	SM_SHIFTCTRL_PULL_THRESH_Pos  = 25
	SM_SHIFTCTRL_PULL_THRESH_Msk  = 0x1f << SM_SHIFTCTRL_PULL_THRESH_Pos
	SM_SHIFTCTRL_PUSH_THRESH_Pos  = 20
	SM_SHIFTCTRL_PUSH_THRESH_Msk  = 0x1f << SM_SHIFTCTRL_PUSH_THRESH_Pos
	SM_SHIFTCTRL_OUT_SHIFTDIR_Pos = 19
	SM_SHIFTCTRL_OUT_SHIFTDIR_Msk = 1 << SM_SHIFTCTRL_OUT_SHIFTDIR_Pos
	SM_SHIFTCTRL_IN_SHIFTDIR_Pos  = 18
	SM_SHIFTCTRL_IN_SHIFTDIR_Msk  = 1 << SM_SHIFTCTRL_IN_SHIFTDIR_Pos
	SM_SHIFTCTRL_AUTOPULL_Pos     = 17
	SM_SHIFTCTRL_AUTOPULL_Msk     = 1 << SM_SHIFTCTRL_AUTOPULL_Pos
	SM_SHIFTCTRL_AUTOPUSH_Pos     = 16
	SM_SHIFTCTRL_AUTOPUSH_Msk     = 1 << SM_SHIFTCTRL_AUTOPUSH_Pos
)

// SMx_PINCTRL fields.
const (
	SM_PINCTRL_SIDESET_COUNT_Pos = 29
	SM_PINCTRL_SIDESET_COUNT_Msk = 0x7 << SM_PINCTRL_SIDESET_COUNT_Pos
	SM_PINCTRL_SET_COUNT_Pos     = 26
	SM_PINCTRL_SET_COUNT_Msk     = 0x7 << SM_PINCTRL_SET_COUNT_Pos
	SM_PINCTRL_OUT_COUNT_Pos     = 20
	SM_PINCTRL_OUT_COUNT_Msk     = 0x3f << SM_PINCTRL_OUT_COUNT_Pos
	SM_PINCTRL_IN_BASE_Pos       = 15
	SM_PINCTRL_IN_BASE_Msk       = 0x1f << SM_PINCTRL_IN_BASE_Pos
	SM_PINCTRL_SIDESET_BASE_Pos  = 10
	SM_PINCTRL_SIDESET_BASE_Msk  = 0x1f << SM_PINCTRL_SIDESET_BASE_Pos
	SM_PINCTRL_SET_BASE_Pos      = 5
	SM_PINCTRL_SET_BASE_Msk      = 0x1f << SM_PINCTRL_SET_BASE_Pos
	SM_PINCTRL_OUT_BASE_Pos      = 0
	SM_PINCTRL_OUT_BASE_Msk      = 0x1f << SM_PINCTRL_OUT_BASE_Pos
)

// Reset values of the per state machine registers.
const (
	SM_CLKDIV_Reset    uint32 = 0x00010000
	SM_EXECCTRL_Reset  uint32 = 0x0001f000
	SM_SHIFTCTRL_Reset uint32 = 0x000c0000
	SM_PINCTRL_Reset   uint32 = 0x14000000
)

// SMRegister returns the offset of a per state machine register given the
// SM0 offset.
func SMRegister(sm0 uint32, sm int) uint32 {
	return sm0 + uint32(sm)*SM_SIZE
}

// TXF returns the offset of a state machine's TX FIFO register.
func TXF(sm int) uint32 { return TXF0 + uint32(sm)*4 }

// RXF returns the offset of a state machine's RX FIFO register.
func RXF(sm int) uint32 { return RXF0 + uint32(sm)*4 }

// InstrMem returns the offset of an instruction memory slot.
func InstrMem(i int) uint32 { return INSTR_MEM0 + uint32(i&0x1f)*4 }

// PIOBase returns the base address of a PIO block.
func PIOBase(index int) (uint32, error) {
	switch index {
	case 0:
		return PIO0Base, nil
	case 1:
		return PIO1Base, nil
	}
	return 0, CheckRange("pio index", index, 0, 1)
}

// PIOIndex maps a base address back to its block number, -1 if unknown.
func PIOIndex(base uint32) int {
	switch base {
	case PIO0Base:
		return 0
	case PIO1Base:
		return 1
	}
	return -1
}

var topLabels = map[uint32]string{
	CTRL:              "CTRL",
	FSTAT:             "FSTAT",
	FDEBUG:            "FDEBUG",
	FLEVEL:            "FLEVEL",
	IRQ:               "IRQ",
	IRQ_FORCE:         "IRQ_FORCE",
	INPUT_SYNC_BYPASS: "INPUT_SYNC_BYPASS",
	DBG_PADOUT:        "DBG_PADOUT",
	DBG_PADOE:         "DBG_PADOE",
	DBG_CFGINFO:       "DBG_CFGINFO",
	INTR:              "INTR",
	IRQ0_INTE:         "IRQ0_INTE",
	IRQ0_INTF:         "IRQ0_INTF",
	IRQ0_INTS:         "IRQ0_INTS",
	IRQ1_INTE:         "IRQ1_INTE",
	IRQ1_INTF:         "IRQ1_INTF",
	IRQ1_INTS:         "IRQ1_INTS",
}

var smLabels = [...]string{"CLKDIV", "EXECCTRL", "SHIFTCTRL", "ADDR", "INSTR", "PINCTRL"}

// RegisterLabel names a register offset, e.g. "SM2_PINCTRL". Offsets that
// do not name a register yield "".
func RegisterLabel(offset uint32) string {
	if s, ok := topLabels[offset]; ok {
		return s
	}
	switch {
	case offset&3 != 0:
		return ""
	case offset >= TXF0 && offset < RXF0:
		return "TXF" + strconv.Itoa(int((offset-TXF0)/4))
	case offset >= RXF0 && offset < IRQ:
		return "RXF" + strconv.Itoa(int((offset-RXF0)/4))
	case offset >= INSTR_MEM0 && offset < SM0_CLKDIV:
		return "INSTR_MEM" + strconv.Itoa(int((offset-INSTR_MEM0)/4))
	case offset >= SM0_CLKDIV && offset < INTR:
		rel := offset - SM0_CLKDIV
		return "SM" + strconv.Itoa(int(rel/SM_SIZE)) + "_" + smLabels[(rel%SM_SIZE)/4]
	}
	return ""
}
