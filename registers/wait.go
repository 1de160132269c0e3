package registers

import (
	"runtime"
	"time"

	"github.com/pkg/errors"
)

// PollInterval is the sleep between polling attempts once the first few
// attempts, which only yield, have failed.
var PollInterval = 50 * time.Microsecond

const yieldAttempts = 16

// Poll repeatedly calls read until (v & mask) == (expected & mask).
// cycles reports the emulated cycle count and may be nil when
// cyclesTimeout is 0. A zero budget is unlimited.
func Poll(read func() (uint32, error), cycles func() uint64,
	expected, mask uint32, cyclesTimeout uint64, timeout time.Duration) (uint32, error) {
	if read == nil {
		return 0, errors.New("nil read function")
	}
	if cyclesTimeout > 0 && cycles == nil {
		return 0, errors.New("cycle budget without cycle source")
	}

	var startCycles uint64
	if cycles != nil {
		startCycles = cycles()
	}
	start := time.Now()
	want := expected & mask

	for attempt := 0; ; attempt++ {
		v, err := read()
		if err != nil {
			return 0, err
		}
		if v&mask == want {
			return v, nil
		}
		if cyclesTimeout > 0 && cycles()-startCycles >= cyclesTimeout {
			return v, errors.Wrapf(ErrTimeout, "after %d cycles", cyclesTimeout)
		}
		if timeout > 0 && time.Since(start) >= timeout {
			return v, errors.Wrapf(ErrTimeout, "after %s", timeout)
		}
		if attempt < yieldAttempts {
			runtime.Gosched()
		} else {
			time.Sleep(PollInterval)
		}
	}
}
