// Package monitor streams periodic register snapshots of a PIO block.
package monitor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"pioemu/core"
	"pioemu/protocol"
	"pioemu/registers"
)

const queueDepth = 64

// Streamer samples a PIO block every N master clock cycles from a clock
// timer and hands the encoded frames to a writer goroutine. Sampling never
// blocks the clock: frames that do not fit in the queue are dropped.
type Streamer struct {
	clock  *core.Clock
	regs   registers.Registers
	every  uint64
	logger *slog.Logger

	mu sync.Mutex
	// timer is replaced on every Start. A retired timer whose dispatch was
	// already in flight finds itself stale and is not rescheduled, so one
	// Timer is never in the clock list twice.
	timer   *core.Timer
	running bool
	seq     uint8

	queue   chan []byte
	sent    atomic.Int64
	dropped atomic.Int64
}

// New returns a streamer sampling regs every cycles clock cycles.
func New(clock *core.Clock, regs registers.Registers, cycles uint64, logger *slog.Logger) (*Streamer, error) {
	if clock == nil {
		return nil, errors.Wrap(core.ErrNilArgument, "clock")
	}
	if regs == nil {
		return nil, errors.Wrap(core.ErrNilArgument, "registers")
	}
	if cycles == 0 {
		return nil, errors.Wrap(core.ErrOutOfRange, "snapshot period must be at least one cycle")
	}
	s := &Streamer{
		clock:  clock,
		regs:   regs,
		every:  cycles,
		logger: core.LoggerOrDiscard(logger),
		queue:  make(chan []byte, queueDepth),
	}
	return s, nil
}

// Start schedules the first sample one period from now.
func (s *Streamer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.timer = &core.Timer{
		WakeTime: s.clock.WallClock() + s.every,
		Handler:  s.sample,
	}
	s.clock.ScheduleTimer(s.timer)
}

// Stop cancels sampling. Queued frames are still written by Run.
func (s *Streamer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.clock.CancelTimer(s.timer)
	s.timer = nil
}

// Sent returns the number of frames written.
func (s *Streamer) Sent() int { return int(s.sent.Load()) }

// Dropped returns the number of frames discarded because the writer fell
// behind or a sample failed.
func (s *Streamer) Dropped() int { return int(s.dropped.Load()) }

func (s *Streamer) sample(t *core.Timer) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || t != s.timer {
		return core.SF_DONE
	}

	frame, err := s.encode(t.WakeTime)
	if err != nil {
		s.dropped.Add(1)
		s.logger.Warn("snapshot failed", "error", err)
	} else {
		select {
		case s.queue <- frame:
			s.seq++
		default:
			s.dropped.Add(1)
		}
	}

	t.WakeTime += s.every
	return core.SF_RESCHEDULE
}

func (s *Streamer) encode(wallClock uint64) ([]byte, error) {
	snap, err := Capture(s.regs, wallClock)
	if err != nil {
		return nil, err
	}
	payload, err := snap.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return protocol.EncodeFrame(s.seq, payload)
}

// Capture reads a snapshot through the register contract. It never reads
// a FIFO register, so sampling has no side effects.
func Capture(regs registers.Registers, wallClock uint64) (protocol.Snapshot, error) {
	base := regs.BaseAddress()
	snap := protocol.Snapshot{WallClock: wallClock}
	for _, r := range []struct {
		off uint32
		dst *uint32
	}{
		{core.CTRL, &snap.Ctrl},
		{core.FSTAT, &snap.FStat},
		{core.FLEVEL, &snap.FLevel},
		{core.DBG_PADOUT, &snap.PadOut},
		{core.DBG_PADOE, &snap.PadOE},
	} {
		v, err := regs.ReadAddress(base + r.off)
		if err != nil {
			return snap, err
		}
		*r.dst = v
	}
	for sm := range snap.SMs {
		pc, err := regs.ReadAddress(base + core.SMRegister(core.SM0_ADDR, sm))
		if err != nil {
			return snap, err
		}
		clkdiv, err := regs.ReadAddress(base + core.SMRegister(core.SM0_CLKDIV, sm))
		if err != nil {
			return snap, err
		}
		snap.SMs[sm] = protocol.SMSnapshot{PC: uint8(pc), ClkDiv: clkdiv}
	}
	return snap, nil
}

// Run writes queued frames to w until ctx is done.
func (s *Streamer) Run(ctx context.Context, w io.Writer) error {
	s.logger.Info("snapshot stream started", "every", s.every, "format", protocol.Version)
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-s.queue:
			if _, err := w.Write(frame); err != nil {
				return errors.Wrap(err, "write snapshot frame")
			}
			s.sent.Add(1)
		}
	}
}
