package sdk

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"pioemu/core"
	"pioemu/pio"
)

type fixture struct {
	gpio  *core.GPIO
	pio   *pio.PIO
	clock *core.Clock
	sdk   *SDK
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gpio := core.NewGPIO()
	p, err := pio.New(0, gpio)
	require.NoError(t, err)
	clock := core.NewClock()
	clock.AddListener(p)
	s, err := New(p, gpio)
	require.NoError(t, err)
	return &fixture{gpio: gpio, pio: p, clock: clock, sdk: s}
}

// runClock ticks the clock freely until the test ends.
func (f *fixture) runClock(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = f.clock.Run(ctx, 0)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (f *fixture) read(t *testing.T, off uint32) uint32 {
	t.Helper()
	v, err := f.sdk.read(off)
	require.NoError(t, err)
	return v
}

func TestNewRequiresRegisters(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, core.ErrNilArgument)
}

func TestGPIOInitSelectsPIOFunction(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sdk.GPIOInit(12))
	fn, err := f.gpio.GetFunction(12)
	require.NoError(t, err)
	assert.Equal(t, core.FuncPIO0, fn)
	assert.ErrorIs(t, f.sdk.GPIOInit(32), core.ErrOutOfRange)
}

func TestGetDREQ(t *testing.T) {
	f := newFixture(t)
	dreq, err := f.sdk.GetDREQ(2, true)
	require.NoError(t, err)
	assert.Equal(t, 2, dreq)
	dreq, err = f.sdk.GetDREQ(2, false)
	require.NoError(t, err)
	assert.Equal(t, 6, dreq)
	_, err = f.sdk.GetDREQ(4, true)
	assert.ErrorIs(t, err, core.ErrOutOfRange)
}

func TestClaims(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sdk.SMClaim(1))
	assert.ErrorIs(t, f.sdk.SMClaim(1), ErrClaim)

	// all or nothing
	assert.ErrorIs(t, f.sdk.ClaimSMMask(0b0110), ErrClaim)
	claimed, err := f.sdk.SMIsClaimed(2)
	require.NoError(t, err)
	assert.False(t, claimed)

	sm, err := f.sdk.ClaimUnusedSM(true)
	require.NoError(t, err)
	assert.Equal(t, 0, sm)

	require.NoError(t, f.sdk.ClaimSMMask(0b1100))
	sm, err = f.sdk.ClaimUnusedSM(false)
	require.NoError(t, err)
	assert.Equal(t, -1, sm)
	_, err = f.sdk.ClaimUnusedSM(true)
	assert.ErrorIs(t, err, ErrClaim)

	require.NoError(t, f.sdk.SMUnclaim(2))
	sm, err = f.sdk.ClaimUnusedSM(true)
	require.NoError(t, err)
	assert.Equal(t, 2, sm)

	assert.ErrorIs(t, f.sdk.ClaimSMMask(16), core.ErrOutOfRange)
}

func TestConcurrentClaimsAreExclusive(t *testing.T) {
	f := newFixture(t)
	results := make([]int, 8)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			sm, err := f.sdk.ClaimUnusedSM(false)
			results[i] = sm
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := map[int]int{}
	for _, sm := range results {
		seen[sm]++
	}
	assert.Equal(t, map[int]int{-1: 4, 0: 1, 1: 1, 2: 1, 3: 1}, seen)
}

func TestProgramAllocation(t *testing.T) {
	f := newFixture(t)
	blink, err := NewProgram("blink", []uint16{0xe001, 0x0000}, -1)
	require.NoError(t, err)

	offset, err := f.sdk.AddProgram(blink)
	require.NoError(t, err)
	assert.Equal(t, 0, offset)

	offset, err = f.sdk.AddProgram(blink)
	require.NoError(t, err)
	assert.Equal(t, 2, offset)
	// the jump is relocated to the load offset
	assert.Equal(t, uint32(0x0002), f.read(t, core.InstrMem(3)))
	assert.Equal(t, uint32(0xe001), f.read(t, core.InstrMem(2)))
	assert.Equal(t, uint32(0xf), f.sdk.Allocated())

	fixed, err := NewProgram("fixed", []uint16{0xa042, 0xa042}, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x6), fixed.AllocationMask())
	ok, err := f.sdk.CanAddProgram(fixed)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.sdk.AddProgram(fixed)
	assert.ErrorIs(t, err, ErrAllocation)

	_, err = f.sdk.AddProgramAtOffset(fixed, 8)
	assert.ErrorIs(t, err, ErrAllocation)

	ok, err = f.sdk.CanAddProgramAtOffset(blink, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	offset, err = f.sdk.AddProgramAtOffset(blink, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, offset)
	assert.Equal(t, uint32(0xc0f), f.sdk.Allocated())

	require.NoError(t, f.sdk.RemoveProgram(blink, 2))
	assert.Equal(t, uint32(0xc03), f.sdk.Allocated())
	assert.Zero(t, f.read(t, core.InstrMem(3)))
	assert.ErrorIs(t, f.sdk.RemoveProgram(blink, 2), ErrCorruption)
	assert.ErrorIs(t, f.sdk.RemoveProgram(fixed, 4), ErrAllocation)

	// released slots can be allocated again at the same offset
	offset, err = f.sdk.AddProgramAtOffset(blink, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, offset)
	assert.Equal(t, uint32(0xc0f), f.sdk.Allocated())
	assert.Equal(t, uint32(0x0002), f.read(t, core.InstrMem(3)))

	require.NoError(t, f.sdk.ClearInstructionMemory())
	assert.Zero(t, f.sdk.Allocated())
	assert.Zero(t, f.read(t, core.InstrMem(0)))
}

func TestSetLoggerWhileLoadingPrograms(t *testing.T) {
	f := newFixture(t)
	one, err := NewProgram("one", []uint16{0xa042}, -1)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < 16; i++ {
			if _, err := f.sdk.AddProgram(one); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < 16; i++ {
			f.sdk.SetLogger(nil)
		}
		return nil
	})
	require.NoError(t, g.Wait())
	assert.Equal(t, uint32(0xffff), f.sdk.Allocated())

	f.sdk.SetLogger(logger)
	_, err = f.sdk.AddProgram(one)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "program loaded")
	assert.Contains(t, buf.String(), "sdk=pio0")
}

func TestFixedOriginProgramIsRelocatedByOrigin(t *testing.T) {
	f := newFixture(t)
	loop, err := NewProgram("loop", []uint16{0xe001, 0x0000}, 4)
	require.NoError(t, err)
	offset, err := f.sdk.AddProgram(loop)
	require.NoError(t, err)
	assert.Equal(t, 4, offset)
	assert.Equal(t, uint32(0xe001), f.read(t, core.InstrMem(4)))
	assert.Equal(t, uint32(0x0004), f.read(t, core.InstrMem(5)))
}

func TestProgramAllocationWraps(t *testing.T) {
	f := newFixture(t)
	code := make([]uint16, 30)
	for i := range code {
		code[i] = 0xa042
	}
	big, err := NewProgram("big", code, 1)
	require.NoError(t, err)
	_, err = f.sdk.AddProgram(big)
	require.NoError(t, err)

	pair, err := NewProgram("pair", []uint16{0xa042, 0xa042}, -1)
	require.NoError(t, err)
	offset, err := f.sdk.AddProgram(pair)
	require.NoError(t, err)
	assert.Equal(t, 31, offset)
	assert.Equal(t, uint32(0xffffffff), f.sdk.Allocated())

	_, err = f.sdk.AddProgram(pair)
	assert.ErrorIs(t, err, ErrAllocation)
}

func TestNewProgramValidation(t *testing.T) {
	_, err := NewProgram("empty", nil, -1)
	assert.ErrorIs(t, err, core.ErrOutOfRange)
	_, err = NewProgram("huge", make([]uint16, 33), -1)
	assert.ErrorIs(t, err, core.ErrOutOfRange)
	_, err = NewProgram("origin", []uint16{0}, 32)
	assert.ErrorIs(t, err, core.ErrOutOfRange)
	_, err = newFixture(t).sdk.AddProgram(nil)
	assert.ErrorIs(t, err, core.ErrNilArgument)
}

func TestSMInit(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.sdk.SMPut(1, 0x11))
	_, err := fx.sdk.SMGet(1) // underflow sets FDEBUG
	require.NoError(t, err)
	require.NotZero(t, fx.read(t, core.FDEBUG))

	cfg := DefaultSMConfig()
	require.NoError(t, cfg.SetWrap(5, 9))
	require.NoError(t, fx.sdk.SMInit(1, 5, cfg))

	pc, err := fx.sdk.SMGetPC(1)
	require.NoError(t, err)
	assert.Equal(t, 5, pc)

	empty, err := fx.sdk.SMIsTXFIFOEmpty(1)
	require.NoError(t, err)
	assert.True(t, empty)
	empty, err = fx.sdk.SMIsRXFIFOEmpty(1)
	require.NoError(t, err)
	assert.True(t, empty)
	assert.Zero(t, fx.read(t, core.FDEBUG))
	assert.Equal(t, cfg.ExecCtrl, fx.read(t, core.SMRegister(core.SM0_EXECCTRL, 1)))
	assert.Zero(t, fx.read(t, core.CTRL))

	assert.ErrorIs(t, fx.sdk.SMInit(1, 32, nil), core.ErrOutOfRange)
	assert.ErrorIs(t, fx.sdk.SMSetConfig(1, nil), core.ErrNilArgument)
}

func TestEnableAndRestart(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.sdk.SMSetEnabled(2, true))
	assert.Equal(t, uint32(0x4), fx.read(t, core.CTRL))
	require.NoError(t, fx.sdk.EnableSMMaskInSync(0b0011))
	assert.Equal(t, uint32(0x7), fx.read(t, core.CTRL))
	require.NoError(t, fx.sdk.SetSMMaskEnabled(0b0110, false))
	assert.Equal(t, uint32(0x1), fx.read(t, core.CTRL))

	require.NoError(t, fx.sdk.RestartSMMask(0xf))
	require.NoError(t, fx.sdk.ClkDivRestartSMMask(0xf))
	assert.Equal(t, uint32(0x1), fx.read(t, core.CTRL))
	assert.ErrorIs(t, fx.sdk.RestartSMMask(0x10), core.ErrOutOfRange)
}

func TestExecAndStall(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.sdk.SMExec(0, EncodeJmp(7)))
	pc, err := fx.sdk.SMGetPC(0)
	require.NoError(t, err)
	assert.Equal(t, 7, pc)

	require.NoError(t, fx.sdk.SMExec(0, EncodePull(false, true)))
	stalled, err := fx.sdk.SMIsExecStalled(0)
	require.NoError(t, err)
	assert.True(t, stalled)

	require.NoError(t, fx.sdk.SMPut(0, 42))
	stalled, err = fx.sdk.SMIsExecStalled(0)
	require.NoError(t, err)
	assert.False(t, stalled)

	require.NoError(t, fx.sdk.SMExecWaitBlocking(0, EncodeSet(SrcDestX, 9)))
	st, err := fx.pio.SMState(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), st.X)
	assert.Equal(t, uint32(42), st.OSR)
}

func TestClockDividerAndPinConfig(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.sdk.SMSetClkDiv(3, 2.5))
	assert.Equal(t, uint32(2<<16|128<<8), fx.read(t, core.SMRegister(core.SM0_CLKDIV, 3)))
	assert.ErrorIs(t, fx.sdk.SMSetClkDiv(3, 65536), core.ErrOutOfRange)
	assert.ErrorIs(t, fx.sdk.SMSetClkDivIntFrac(3, 1, 256), core.ErrOutOfRange)

	require.NoError(t, fx.sdk.SMSetWrap(3, 4, 20))
	execctrl := fx.read(t, core.SMRegister(core.SM0_EXECCTRL, 3))
	assert.Equal(t, uint32(20<<core.SM_EXECCTRL_WRAP_TOP_Pos|4<<core.SM_EXECCTRL_WRAP_BOTTOM_Pos), execctrl)

	require.NoError(t, fx.sdk.SMSetOutPins(3, 10, 32))
	require.NoError(t, fx.sdk.SMSetSetPins(3, 2, 5))
	require.NoError(t, fx.sdk.SMSetInPins(3, 7))
	require.NoError(t, fx.sdk.SMSetSideSetPins(3, 31))
	pinctrl := fx.read(t, core.SMRegister(core.SM0_PINCTRL, 3))
	want := uint32(32<<core.SM_PINCTRL_OUT_COUNT_Pos | 10<<core.SM_PINCTRL_OUT_BASE_Pos |
		5<<core.SM_PINCTRL_SET_COUNT_Pos | 2<<core.SM_PINCTRL_SET_BASE_Pos |
		7<<core.SM_PINCTRL_IN_BASE_Pos | 31<<core.SM_PINCTRL_SIDESET_BASE_Pos)
	assert.Equal(t, want, pinctrl)

	assert.ErrorIs(t, fx.sdk.SMSetSetPins(3, 0, 6), core.ErrOutOfRange)
	assert.ErrorIs(t, fx.sdk.SMSetOutPins(3, 32, 1), core.ErrOutOfRange)
}

func TestFIFOLevels(t *testing.T) {
	fx := newFixture(t)
	for i := 0; i < 4; i++ {
		require.NoError(t, fx.sdk.SMPut(3, uint32(i)))
	}
	full, err := fx.sdk.SMIsTXFIFOFull(3)
	require.NoError(t, err)
	assert.True(t, full)
	level, err := fx.sdk.SMGetTXFIFOLevel(3)
	require.NoError(t, err)
	assert.Equal(t, 4, level)
	level, err = fx.sdk.SMGetRXFIFOLevel(3)
	require.NoError(t, err)
	assert.Zero(t, level)
	full, err = fx.sdk.SMIsRXFIFOFull(3)
	require.NoError(t, err)
	assert.False(t, full)

	require.NoError(t, fx.sdk.SMClearFIFOs(3))
	level, err = fx.sdk.SMGetTXFIFOLevel(3)
	require.NoError(t, err)
	assert.Zero(t, level)
}

func TestDrainTXFIFO(t *testing.T) {
	for _, autopull := range []bool{false, true} {
		fx := newFixture(t)
		cfg := DefaultSMConfig()
		require.NoError(t, cfg.SetOutShift(true, autopull, 32))
		require.NoError(t, fx.sdk.SMInit(0, 0, cfg))
		for i := 0; i < 3; i++ {
			require.NoError(t, fx.sdk.SMPut(0, uint32(i+1)))
		}
		require.NoError(t, fx.sdk.SMDrainTXFIFO(0))
		empty, err := fx.sdk.SMIsTXFIFOEmpty(0)
		require.NoError(t, err)
		assert.True(t, empty, "autopull=%v", autopull)
	}
}

func TestSetPinHelpers(t *testing.T) {
	fx := newFixture(t)
	pinctrl := core.SMRegister(core.SM0_PINCTRL, 0)
	before := fx.read(t, pinctrl)

	require.NoError(t, fx.sdk.SMSetPins(0, 0xa5a5a5a5))
	assert.Equal(t, uint32(0xa5a5a5a5), fx.gpio.Values())
	assert.Equal(t, before, fx.read(t, pinctrl))

	require.NoError(t, fx.sdk.SMSetPinsWithMask(0, 0x00000000, 0x80000001))
	assert.Equal(t, uint32(0x25a5a5a4), fx.gpio.Values())
	require.NoError(t, fx.sdk.SMSetPinsWithMask(0, 0xffffffff, 0x00000010))
	assert.Equal(t, uint32(0x25a5a5b4), fx.gpio.Values())

	require.NoError(t, fx.sdk.SMSetPinDirsWithMask(0, 0x00000100, 0x00000300))
	assert.Equal(t, uint32(0x00000100), fx.gpio.Directions())

	require.NoError(t, fx.sdk.SMSetConsecutivePinDirs(0, 28, 7, true))
	assert.Equal(t, uint32(0xf0000107), fx.gpio.Directions())
	require.NoError(t, fx.sdk.SMSetConsecutivePinDirs(0, 0, 3, false))
	assert.Equal(t, uint32(0xf0000100), fx.gpio.Directions())
	assert.Equal(t, before, fx.read(t, pinctrl))

	assert.ErrorIs(t, fx.sdk.SMSetConsecutivePinDirs(0, 0, 32, true), core.ErrOutOfRange)
}

func TestBlockingFIFOEcho(t *testing.T) {
	fx := newFixture(t)
	echo, err := NewProgram("echo", []uint16{
		EncodePull(false, true),
		EncodeOut(SrcDestX, 32),
		EncodeIn(SrcDestX, 32),
		EncodePush(false, true),
	}, -1)
	require.NoError(t, err)
	offset, err := fx.sdk.AddProgram(echo)
	require.NoError(t, err)

	sm, err := fx.sdk.ClaimUnusedSM(true)
	require.NoError(t, err)
	cfg := DefaultSMConfig()
	require.NoError(t, cfg.SetWrap(offset, offset+echo.Length()-1))
	require.NoError(t, fx.sdk.SMInit(sm, offset, cfg))
	require.NoError(t, fx.sdk.SMSetEnabled(sm, true))
	fx.runClock(t)

	done := make(chan []uint32, 1)
	go func() {
		var got []uint32
		for i := 0; i < 16; i++ {
			v, err := fx.sdk.SMGetBlocking(sm)
			if err != nil {
				break
			}
			got = append(got, v)
		}
		done <- got
	}()
	for i := uint32(0); i < 16; i++ {
		require.NoError(t, fx.sdk.SMPutBlocking(sm, i*0x01010101))
	}
	select {
	case got := <-done:
		require.Len(t, got, 16)
		for i, v := range got {
			assert.Equal(t, uint32(i)*0x01010101, v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("echo program did not return all words")
	}
}
