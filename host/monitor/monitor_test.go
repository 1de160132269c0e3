package monitor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pioemu/core"
	"pioemu/pio"
	"pioemu/protocol"
)

func newPIO(t *testing.T) (*pio.PIO, *core.Clock) {
	t.Helper()
	p, err := pio.New(0, core.NewGPIO())
	require.NoError(t, err)
	clock := core.NewClock()
	clock.AddListener(p)
	return p, clock
}

func TestNewValidates(t *testing.T) {
	p, clock := newPIO(t)
	_, err := New(nil, p, 1, nil)
	assert.ErrorIs(t, err, core.ErrNilArgument)
	_, err = New(clock, nil, 1, nil)
	assert.ErrorIs(t, err, core.ErrNilArgument)
	_, err = New(clock, p, 0, nil)
	assert.ErrorIs(t, err, core.ErrOutOfRange)
}

func TestCapture(t *testing.T) {
	p, _ := newPIO(t)
	require.NoError(t, p.WriteAddress(core.PIO0Base+core.TXF(1), 9))
	require.NoError(t, p.WriteAddress(core.PIO0Base+core.SMRegister(core.SM0_INSTR, 2), 0x0007))

	snap, err := Capture(p, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), snap.WallClock)
	assert.Equal(t, uint32(1)<<core.FLEVEL_SM_Step, snap.FLevel)
	assert.Equal(t, uint8(7), snap.SMs[2].PC)
	assert.Equal(t, core.SM_CLKDIV_Reset, snap.SMs[3].ClkDiv)

	// sampling leaves the FIFOs alone
	st, err := p.SMState(1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TX.Level())
}

func TestStreamerPeriodicFrames(t *testing.T) {
	p, clock := newPIO(t)
	s, err := New(clock, p, 10, nil)
	require.NoError(t, err)
	s.Start()
	s.Start()
	clock.Cycles(35)

	pr, pw := io.Pipe()
	reader := protocol.NewSnapshotReader(pr, nil)
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, pw) }()

	for _, want := range []uint64{10, 20, 30} {
		snap, err := reader.Receive(time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, snap.WallClock)
	}
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 3, s.Sent())
	assert.Zero(t, reader.Missed())

	s.Stop()
	clock.Cycles(50)
	assert.Zero(t, len(s.queue))
}

func TestStreamerDropsWhenQueueFull(t *testing.T) {
	p, clock := newPIO(t)
	s, err := New(clock, p, 1, nil)
	require.NoError(t, err)
	s.Start()
	clock.Cycles(queueDepth + 5)
	assert.Equal(t, 5, s.Dropped())
	s.Stop()
}

func TestStreamerRestartRetiresOldTimer(t *testing.T) {
	p, clock := newPIO(t)
	s, err := New(clock, p, 10, nil)
	require.NoError(t, err)

	s.Start()
	stale := s.timer
	s.Stop()
	s.Start()
	require.NotSame(t, stale, s.timer)

	// a dispatch of the stopped timer that was already under way
	assert.Equal(t, uint8(core.SF_DONE), stale.Handler(stale))
	assert.Zero(t, len(s.queue))

	clock.Cycles(25)
	assert.Equal(t, 2, len(s.queue))
	s.Stop()
}
