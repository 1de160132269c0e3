// Package script runs Lua controller programs against an emulated PIO
// block. Scripts see the SDK through a global "pio" table.
package script

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	lua "github.com/yuin/gopher-lua"

	"pioemu/core"
	"pioemu/sdk"
)

// Runtime is one Lua interpreter bound to an SDK. It is not safe for
// concurrent use.
type Runtime struct {
	L      *lua.LState
	sdk    *sdk.SDK
	gpio   *core.GPIO
	clock  *core.Clock
	out    io.Writer
	logger *slog.Logger

	programs map[int]sdk.Program
}

// New creates a runtime. Output of the Lua print function goes to out.
func New(s *sdk.SDK, gpio *core.GPIO, clock *core.Clock, out io.Writer, logger *slog.Logger) (*Runtime, error) {
	if s == nil || gpio == nil || clock == nil {
		return nil, errors.Wrap(core.ErrNilArgument, "script needs an sdk, gpio and clock")
	}
	if out == nil {
		out = io.Discard
	}
	r := &Runtime{
		L:        lua.NewState(),
		sdk:      s,
		gpio:     gpio,
		clock:    clock,
		out:      out,
		logger:   core.LoggerOrDiscard(logger),
		programs: make(map[int]sdk.Program),
	}
	r.L.SetGlobal("print", r.L.NewFunction(r.print))
	r.register()
	return r, nil
}

// Close releases the interpreter.
func (r *Runtime) Close() {
	r.L.Close()
}

// RunFile executes a Lua file. The script is interrupted when ctx is
// done.
func (r *Runtime) RunFile(ctx context.Context, path string) error {
	r.L.SetContext(ctx)
	r.logger.Info("running script", "path", path)
	if err := r.L.DoFile(path); err != nil {
		return errors.Wrapf(err, "script %s", path)
	}
	return nil
}

// RunString executes Lua source.
func (r *Runtime) RunString(ctx context.Context, src string) error {
	r.L.SetContext(ctx)
	if err := r.L.DoString(src); err != nil {
		return errors.Wrap(err, "script")
	}
	return nil
}

func (r *Runtime) print(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	fmt.Fprintln(r.out, strings.Join(parts, "\t"))
	return 0
}

// check raises err as a Lua error.
func check(L *lua.LState, err error) {
	if err != nil {
		L.RaiseError("%v", err)
	}
}

func checkU32(L *lua.LState, n int) uint32 {
	return uint32(L.CheckInt64(n))
}

func pushInt(L *lua.LState, v int) int {
	L.Push(lua.LNumber(v))
	return 1
}

func (r *Runtime) register() {
	L := r.L
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"claim":          r.claim,
		"unclaim":        r.unclaim,
		"add_program":    r.addProgram,
		"remove_program": r.removeProgram,
		"init":           r.initSM,
		"enable":         r.enable,
		"restart":        r.restart,
		"exec":           r.exec,
		"stalled":        r.stalled,
		"pc":             r.pc,
		"put":            r.put,
		"get":            r.get,
		"put_blocking":   r.putBlocking,
		"get_blocking":   r.getBlocking,
		"level":          r.level,
		"set_pins":       r.setPins,
		"set_pindirs":    r.setPinDirs,
		"gpio_init":      r.gpioInit,
		"gpio":           r.gpioGet,
		"read":           r.read,
		"write":          r.write,
		"wait":           r.wait,
		"tick":           r.tick,
		"clock":          r.wallClock,
		"log":            r.log,

		"encode_jmp":  encodeJmp,
		"encode_set":  encodeSet,
		"encode_out":  encodeOut,
		"encode_in":   encodeIn,
		"encode_pull": encodePull,
		"encode_push": encodePush,
		"encode_nop":  encodeNOP,
	})
	for name, v := range map[string]sdk.SrcDest{
		"PINS": sdk.SrcDestPins, "X": sdk.SrcDestX, "Y": sdk.SrcDestY, "NULL": sdk.SrcDestNull,
		"PINDIRS": sdk.SrcDestPinDirs, "PC": sdk.SrcDestPC, "ISR": sdk.SrcDestISR, "OSR": sdk.SrcDestOSR,
	} {
		mod.RawSetString(name, lua.LNumber(v))
	}
	L.SetGlobal("pio", mod)
}

// claim([sm]) claims sm, or the lowest free state machine, and returns it.
func (r *Runtime) claim(L *lua.LState) int {
	if L.GetTop() >= 1 {
		sm := L.CheckInt(1)
		check(L, r.sdk.SMClaim(sm))
		return pushInt(L, sm)
	}
	sm, err := r.sdk.ClaimUnusedSM(true)
	check(L, err)
	return pushInt(L, sm)
}

func (r *Runtime) unclaim(L *lua.LState) int {
	check(L, r.sdk.SMUnclaim(L.CheckInt(1)))
	return 0
}

// add_program(instrs [, origin]) loads a program and returns its offset.
func (r *Runtime) addProgram(L *lua.LState) int {
	tbl := L.CheckTable(1)
	origin := L.OptInt(2, -1)
	code := make([]uint16, 0, tbl.Len())
	for i := 1; i <= tbl.Len(); i++ {
		n, ok := tbl.RawGetInt(i).(lua.LNumber)
		if !ok {
			L.ArgError(1, "instructions must be numbers")
		}
		code = append(code, uint16(n))
	}
	prog, err := sdk.NewProgram(fmt.Sprintf("lua%d", len(r.programs)), code, origin)
	check(L, err)
	offset, err := r.sdk.AddProgram(prog)
	check(L, err)
	r.programs[offset] = prog
	return pushInt(L, offset)
}

func (r *Runtime) removeProgram(L *lua.LState) int {
	offset := L.CheckInt(1)
	prog, ok := r.programs[offset]
	if !ok {
		L.ArgError(1, "no program loaded by this script at that offset")
	}
	check(L, r.sdk.RemoveProgram(prog, offset))
	delete(r.programs, offset)
	return 0
}

func optField(L *lua.LState, t *lua.LTable, key string) (float64, bool) {
	switch v := t.RawGetString(key).(type) {
	case lua.LNumber:
		return float64(v), true
	case *lua.LNilType:
		return 0, false
	default:
		L.ArgError(3, key+" must be a number")
		return 0, false
	}
}

// smConfig builds a config from an optional table of settings on top of
// the default config.
func smConfig(L *lua.LState, t *lua.LTable) *sdk.SMConfig {
	cfg := sdk.DefaultSMConfig()
	if t == nil {
		return cfg
	}
	if v, ok := optField(L, t, "clkdiv"); ok {
		check(L, cfg.SetClkDiv(float32(v)))
	}
	target, hasTarget := optField(L, t, "wrap_target")
	wrap, hasWrap := optField(L, t, "wrap")
	if hasTarget || hasWrap {
		if !hasWrap {
			wrap = core.MemorySize - 1
		}
		check(L, cfg.SetWrap(int(target), int(wrap)))
	}
	if v, ok := optField(L, t, "out_base"); ok {
		count, _ := optField(L, t, "out_count")
		check(L, cfg.SetOutPins(int(v), int(count)))
	}
	if v, ok := optField(L, t, "set_base"); ok {
		count, _ := optField(L, t, "set_count")
		check(L, cfg.SetSetPins(int(v), int(count)))
	}
	if v, ok := optField(L, t, "in_base"); ok {
		check(L, cfg.SetInPins(int(v)))
	}
	if v, ok := optField(L, t, "sideset_base"); ok {
		check(L, cfg.SetSidesetPins(int(v)))
	}
	if v, ok := optField(L, t, "jmp_pin"); ok {
		check(L, cfg.SetJmpPin(int(v)))
	}
	return cfg
}

// init(sm, pc [, config]) initializes a state machine, disabled.
func (r *Runtime) initSM(L *lua.LState) int {
	sm := L.CheckInt(1)
	pc := L.CheckInt(2)
	cfg := smConfig(L, L.OptTable(3, nil))
	check(L, r.sdk.SMInit(sm, pc, cfg))
	return 0
}

func (r *Runtime) enable(L *lua.LState) int {
	enabled := true
	if L.GetTop() >= 2 {
		enabled = L.CheckBool(2)
	}
	check(L, r.sdk.SMSetEnabled(L.CheckInt(1), enabled))
	return 0
}

func (r *Runtime) restart(L *lua.LState) int {
	check(L, r.sdk.SMRestart(L.CheckInt(1)))
	return 0
}

func (r *Runtime) exec(L *lua.LState) int {
	check(L, r.sdk.SMExec(L.CheckInt(1), uint16(L.CheckInt(2))))
	return 0
}

func (r *Runtime) stalled(L *lua.LState) int {
	stalled, err := r.sdk.SMIsExecStalled(L.CheckInt(1))
	check(L, err)
	L.Push(lua.LBool(stalled))
	return 1
}

func (r *Runtime) pc(L *lua.LState) int {
	pc, err := r.sdk.SMGetPC(L.CheckInt(1))
	check(L, err)
	return pushInt(L, pc)
}

func (r *Runtime) put(L *lua.LState) int {
	check(L, r.sdk.SMPut(L.CheckInt(1), checkU32(L, 2)))
	return 0
}

// get(sm) pops a word, or returns nil if the RX FIFO is empty.
func (r *Runtime) get(L *lua.LState) int {
	sm := L.CheckInt(1)
	empty, err := r.sdk.SMIsRXFIFOEmpty(sm)
	check(L, err)
	if empty {
		L.Push(lua.LNil)
		return 1
	}
	v, err := r.sdk.SMGet(sm)
	check(L, err)
	L.Push(lua.LNumber(v))
	return 1
}

// The blocking calls only return while the clock is advancing on another
// goroutine.
func (r *Runtime) putBlocking(L *lua.LState) int {
	check(L, r.sdk.SMPutBlocking(L.CheckInt(1), checkU32(L, 2)))
	return 0
}

func (r *Runtime) getBlocking(L *lua.LState) int {
	v, err := r.sdk.SMGetBlocking(L.CheckInt(1))
	check(L, err)
	L.Push(lua.LNumber(v))
	return 1
}

// level(sm) returns the TX and RX FIFO levels.
func (r *Runtime) level(L *lua.LState) int {
	sm := L.CheckInt(1)
	tx, err := r.sdk.SMGetTXFIFOLevel(sm)
	check(L, err)
	rx, err := r.sdk.SMGetRXFIFOLevel(sm)
	check(L, err)
	L.Push(lua.LNumber(tx))
	L.Push(lua.LNumber(rx))
	return 2
}

func (r *Runtime) setPins(L *lua.LState) int {
	sm := L.CheckInt(1)
	values := checkU32(L, 2)
	if L.GetTop() >= 3 {
		check(L, r.sdk.SMSetPinsWithMask(sm, values, checkU32(L, 3)))
		return 0
	}
	check(L, r.sdk.SMSetPins(sm, values))
	return 0
}

func (r *Runtime) setPinDirs(L *lua.LState) int {
	check(L, r.sdk.SMSetPinDirsWithMask(L.CheckInt(1), checkU32(L, 2), checkU32(L, 3)))
	return 0
}

func (r *Runtime) gpioInit(L *lua.LState) int {
	check(L, r.sdk.GPIOInit(L.CheckInt(1)))
	return 0
}

// gpio(pin) returns the level of a pin.
func (r *Runtime) gpioGet(L *lua.LState) int {
	pin := L.CheckInt(1)
	check(L, core.CheckRange("pin", pin, 0, core.GPIONum-1))
	bit, err := r.gpio.GetBit(core.GPIOPin(pin))
	check(L, err)
	return pushInt(L, bit.Value())
}

// Register offsets passed to read, write and wait are relative to the
// PIO base address and may include an alias window.
func (r *Runtime) regAddr(L *lua.LState, n int) uint32 {
	return r.sdk.Registers().BaseAddress() + checkU32(L, n)
}

func (r *Runtime) read(L *lua.LState) int {
	v, err := r.sdk.Registers().ReadAddress(r.regAddr(L, 1))
	check(L, err)
	L.Push(lua.LNumber(v))
	return 1
}

func (r *Runtime) write(L *lua.LState) int {
	check(L, r.sdk.Registers().WriteAddress(r.regAddr(L, 1), checkU32(L, 2)))
	return 0
}

// wait(offset, expected, mask [, cycles]) polls a register.
func (r *Runtime) wait(L *lua.LState) int {
	addr := r.regAddr(L, 1)
	expected := checkU32(L, 2)
	mask := checkU32(L, 3)
	cycles := uint64(L.OptInt64(4, 0))
	v, err := r.sdk.Registers().Wait(addr, expected, mask, cycles, 0)
	check(L, err)
	L.Push(lua.LNumber(v))
	return 1
}

// tick([n]) advances the clock and returns the wall clock.
func (r *Runtime) tick(L *lua.LState) int {
	n := L.OptInt(1, 1)
	if n < 0 {
		L.ArgError(1, "negative cycle count")
	}
	r.clock.Cycles(n)
	L.Push(lua.LNumber(r.clock.WallClock()))
	return 1
}

func (r *Runtime) wallClock(L *lua.LState) int {
	L.Push(lua.LNumber(r.clock.WallClock()))
	return 1
}

func (r *Runtime) log(L *lua.LState) int {
	r.logger.Info(L.CheckString(1), "clock", r.clock.WallClock())
	return 0
}

func encodeJmp(L *lua.LState) int {
	cond := sdk.JmpCond(L.OptInt(2, int(sdk.JmpAlways)))
	return pushInt(L, int(sdk.EncodeJmpCond(cond, uint16(L.CheckInt(1)))))
}

func encodeSet(L *lua.LState) int {
	return pushInt(L, int(sdk.EncodeSet(sdk.SrcDest(L.CheckInt(1)), uint16(L.CheckInt(2)))))
}

func encodeOut(L *lua.LState) int {
	return pushInt(L, int(sdk.EncodeOut(sdk.SrcDest(L.CheckInt(1)), uint16(L.CheckInt(2)))))
}

func encodeIn(L *lua.LState) int {
	return pushInt(L, int(sdk.EncodeIn(sdk.SrcDest(L.CheckInt(1)), uint16(L.CheckInt(2)))))
}

func encodePull(L *lua.LState) int {
	return pushInt(L, int(sdk.EncodePull(L.OptBool(1, false), L.OptBool(2, true))))
}

func encodePush(L *lua.LState) int {
	return pushInt(L, int(sdk.EncodePush(L.OptBool(1, false), L.OptBool(2, true))))
}

func encodeNOP(L *lua.LState) int {
	return pushInt(L, int(sdk.EncodeNOP()))
}
