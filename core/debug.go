package core

import (
	"log/slog"
	"sync"
)

// TraceEvent captures one peripheral event for post-mortem analysis.
type TraceEvent struct {
	EventType uint8  // Event type code
	SM        uint8  // State machine, if any
	Clock     uint64 // Wall clock at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtWrite    = 1 // register write: Value1=offset Value2=value
	EvtExec     = 2 // forced instruction: Value1=instr Value2=pc after
	EvtTXPush   = 3 // TX FIFO push: Value1=word Value2=level
	EvtRXPop    = 4 // RX FIFO pop: Value1=word Value2=level
	EvtStall    = 5 // forced instruction stalled: Value1=instr
	EvtRestart  = 6 // SM or clock divider restart: Value1=CTRL bits
	EvtOverflow = 7 // TX overflow or RX underflow: Value1=FDEBUG bit
)

var eventNames = map[uint8]string{
	EvtWrite:    "WRITE",
	EvtExec:     "EXEC",
	EvtTXPush:   "TX_PUSH",
	EvtRXPop:    "RX_POP",
	EvtStall:    "STALL",
	EvtRestart:  "RESTART",
	EvtOverflow: "OVERFLOW!",
}

const (
	TraceRingSize = 32 // Keep last 32 events for post-mortem
)

// Trace is a fixed size ring of recent events. Recording never blocks
// on output; the ring is dumped on request.
type Trace struct {
	mu      sync.Mutex
	ring    [TraceRingSize]TraceEvent
	head    uint8
	enabled bool
}

// NewTrace returns an enabled, empty trace ring.
func NewTrace() *Trace {
	return &Trace{enabled: true}
}

// SetEnabled turns capture on or off.
func (t *Trace) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// Record captures an event. Safe on a nil Trace.
func (t *Trace) Record(eventType, sm uint8, clock uint64, value1, value2 uint32) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	idx := t.head
	t.ring[idx] = TraceEvent{
		EventType: eventType,
		SM:        sm,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	t.head = (idx + 1) % TraceRingSize
}

// Events returns the captured events oldest first.
func (t *Trace) Events() []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	events := make([]TraceEvent, 0, TraceRingSize)
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := t.ring[(t.head+i)%TraceRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		events = append(events, evt)
	}
	return events
}

// EventName returns the label of an event type code.
func EventName(eventType uint8) string {
	if name, ok := eventNames[eventType]; ok {
		return name
	}
	return "UNKNOWN"
}

// Dump writes the ring to logger, oldest event first.
func (t *Trace) Dump(logger *slog.Logger) {
	if logger == nil {
		return
	}
	logger.Info("trace dump begin")
	for _, evt := range t.Events() {
		logger.Info("trace",
			slog.String("event", EventName(evt.EventType)),
			slog.Int("sm", int(evt.SM)),
			slog.Uint64("clock", evt.Clock),
			slog.Any("v1", evt.Value1),
			slog.Any("v2", evt.Value2))
	}
	logger.Info("trace dump end")
}

// Clear empties the ring.
func (t *Trace) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.ring {
		t.ring[i] = TraceEvent{}
	}
	t.head = 0
}

// LoggerOrDiscard returns l, or a logger that drops everything if l is nil.
func LoggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
