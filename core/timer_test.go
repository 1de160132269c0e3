package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type edgeRecorder struct {
	name  string
	log   *[]string
	edges []uint64
}

func (r *edgeRecorder) RisingEdge(wallClock uint64) {
	*r.log = append(*r.log, r.name+"+")
	r.edges = append(r.edges, wallClock)
}

func (r *edgeRecorder) FallingEdge(wallClock uint64) {
	*r.log = append(*r.log, r.name+"-")
}

func TestClockEdgeOrder(t *testing.T) {
	var log []string
	a := &edgeRecorder{name: "a", log: &log}
	b := &edgeRecorder{name: "b", log: &log}

	c := NewClock()
	c.AddListener(a)
	c.AddListener(b)

	assert.Equal(t, uint64(1), c.Tick())
	assert.Equal(t, []string{"a+", "b+", "a-", "b-"}, log)

	c.Cycles(2)
	assert.Equal(t, uint64(3), c.WallClock())
	assert.Equal(t, []uint64{1, 2, 3}, a.edges)
}

func TestClockTimers(t *testing.T) {
	c := NewClock()
	var fired []uint64

	once := &Timer{WakeTime: 3, Handler: func(tm *Timer) uint8 {
		fired = append(fired, c.WallClock())
		return SF_DONE
	}}
	periodic := &Timer{WakeTime: 2, Handler: func(tm *Timer) uint8 {
		fired = append(fired, 100+c.WallClock())
		tm.WakeTime += 4
		return SF_RESCHEDULE
	}}
	c.ScheduleTimer(once)
	c.ScheduleTimer(periodic)

	c.Cycles(10)
	assert.Equal(t, []uint64{102, 3, 106, 110}, fired)

	c.CancelTimer(periodic)
	c.Cycles(10)
	assert.Len(t, fired, 4)
}

func TestClockTimerScheduledFromHandler(t *testing.T) {
	c := NewClock()
	var second bool
	c.ScheduleTimer(&Timer{WakeTime: 1, Handler: func(*Timer) uint8 {
		c.ScheduleTimer(&Timer{WakeTime: 2, Handler: func(*Timer) uint8 {
			second = true
			return SF_DONE
		}})
		return SF_DONE
	}})
	c.Cycles(2)
	assert.True(t, second)
}

func TestClockRunStopsOnCancel(t *testing.T) {
	c := NewClock()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, time.Millisecond) }()

	require.Eventually(t, func() bool { return c.WallClock() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTraceRing(t *testing.T) {
	var nilTrace *Trace
	nilTrace.Record(EvtWrite, 0, 0, 0, 0)

	tr := NewTrace()
	for i := 0; i < TraceRingSize+5; i++ {
		tr.Record(EvtTXPush, 1, uint64(i), uint32(i), 0)
	}
	events := tr.Events()
	require.Len(t, events, TraceRingSize)
	assert.Equal(t, uint64(5), events[0].Clock)

	tr.SetEnabled(false)
	tr.Record(EvtWrite, 0, 999, 0, 0)
	assert.Equal(t, uint64(TraceRingSize+4), tr.Events()[TraceRingSize-1].Clock)

	tr.Clear()
	assert.Empty(t, tr.Events())
}
