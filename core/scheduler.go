package core

// Timer is a callback scheduled against the master clock's wall clock.
type Timer struct {
	WakeTime uint64
	Handler  func(*Timer) uint8
	Next     *Timer
}

// Handler results.
const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// ScheduleTimer adds a timer to the clock's schedule. A handler returning
// SF_RESCHEDULE is inserted again with whatever WakeTime it set.
func (c *Clock) ScheduleTimer(t *Timer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertTimer(t)
}

// CancelTimer removes t if it is still pending.
func (c *Clock) CancelTimer(t *Timer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for p := &c.timerList; *p != nil; p = &(*p).Next {
		if *p == t {
			*p = t.Next
			t.Next = nil
			return
		}
	}
}

// insertTimer inserts a timer in sorted order by WakeTime.
// Must be called with c.mu held.
func (c *Clock) insertTimer(t *Timer) {
	if c.timerList == nil || t.WakeTime < c.timerList.WakeTime {
		t.Next = c.timerList
		c.timerList = t
		return
	}

	current := c.timerList
	for current.Next != nil && current.Next.WakeTime <= t.WakeTime {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// popDue detaches the first timer due at now, nil if none.
func (c *Clock) popDue(now uint64) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.timerList
	if t == nil || t.WakeTime > now {
		return nil
	}
	c.timerList = t.Next
	t.Next = nil
	return t
}

// timerDispatch runs every timer due at now. Handlers run without the
// clock lock held so they may schedule further timers.
func (c *Clock) timerDispatch(now uint64) {
	for t := c.popDue(now); t != nil; t = c.popDue(now) {
		if t.Handler(t) == SF_RESCHEDULE {
			if t.WakeTime <= now {
				t.WakeTime = now + 1
			}
			c.ScheduleTimer(t)
		}
	}
}
