// Package sdk is a driver-level resource manager for an emulated PIO
// block, modelled on the Pico SDK's hardware_pio API. It reaches the
// hardware only through the register contract.
package sdk

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"pioemu/core"
	"pioemu/registers"
)

var (
	// ErrAllocation reports an instruction memory conflict.
	ErrAllocation = errors.New("instruction memory allocation failed")

	// ErrClaim reports a state machine claim conflict.
	ErrClaim = errors.New("state machine claim failed")

	// ErrCorruption reports that the allocation bitmap no longer matches
	// what a caller releases. The instance should not be used further.
	ErrCorruption = errors.New("allocation bits corrupted")
)

// SDK manages one PIO block. Register sequences, the instruction memory
// allocation bitmap and the claim bitmap are guarded by separate locks;
// when more than one is needed they are taken in that order: allocMu,
// regMu.
type SDK struct {
	regs   registers.Registers
	gpio   core.PinDriver
	base   uint32
	index  int

	logMu  sync.RWMutex
	logger *slog.Logger

	regMu sync.Mutex

	allocMu   sync.Mutex
	allocated uint32

	claimMu sync.Mutex
	claimed uint32
}

// New returns a resource manager for the PIO behind regs. gpio may be nil
// when GPIOInit is not needed.
func New(regs registers.Registers, gpio core.PinDriver) (*SDK, error) {
	if regs == nil {
		return nil, errors.Wrap(core.ErrNilArgument, "registers")
	}
	base := regs.BaseAddress()
	index := core.PIOIndex(base)
	if index < 0 {
		return nil, errors.Errorf("base address 0x%08x is not a PIO block", base)
	}
	return &SDK{
		regs:   regs,
		gpio:   gpio,
		base:   base,
		index:  index,
		logger: core.LoggerOrDiscard(nil),
	}, nil
}

// SetLogger sets the logger for diagnostics. nil discards. It may be
// called while other goroutines use the SDK.
func (s *SDK) SetLogger(l *slog.Logger) {
	logger := core.LoggerOrDiscard(l).With(slog.String("sdk", "pio"+strconv.Itoa(s.index)))
	s.logMu.Lock()
	s.logger = logger
	s.logMu.Unlock()
}

func (s *SDK) log() *slog.Logger {
	s.logMu.RLock()
	defer s.logMu.RUnlock()
	return s.logger
}

// Registers returns the underlying register contract.
func (s *SDK) Registers() registers.Registers { return s.regs }

// Index returns the PIO block number.
func (s *SDK) Index() int { return s.index }

// GPIOInit selects this PIO block as the function of pin.
func (s *SDK) GPIOInit(pin int) error {
	if err := checkPinArg("pin", pin); err != nil {
		return err
	}
	if s.gpio == nil {
		return errors.Wrap(core.ErrNilArgument, "gpio")
	}
	fn, err := core.PIOFunction(s.index)
	if err != nil {
		return err
	}
	return s.gpio.SetFunction(core.GPIOPin(pin), fn)
}

// GetDREQ returns the DMA request number of a state machine FIFO.
func (s *SDK) GetDREQ(sm int, isTX bool) (int, error) {
	if err := checkSM(sm); err != nil {
		return 0, err
	}
	dreq := s.index<<3 | sm
	if !isTX {
		dreq |= core.SMCount
	}
	return dreq, nil
}

func checkSM(sm int) error {
	return core.CheckRange("sm", sm, 0, core.SMCount-1)
}

func checkMask(mask int) error {
	return core.CheckRange("sm mask", mask, 0, 1<<core.SMCount-1)
}

func (s *SDK) addr(off uint32) uint32 { return s.base + off }

func (s *SDK) smAddr(sm0 uint32, sm int) uint32 {
	return s.base + core.SMRegister(sm0, sm)
}

func (s *SDK) read(off uint32) (uint32, error) {
	return s.regs.ReadAddress(s.addr(off))
}

func (s *SDK) write(off, value uint32) error {
	return s.regs.WriteAddress(s.addr(off), value)
}

// listMaskBits renders the set bits of mask as "0, 2, 3".
func listMaskBits(mask uint32) string {
	var parts []string
	for i := 0; i < 32; i++ {
		if mask&(1<<i) != 0 {
			parts = append(parts, strconv.Itoa(i))
		}
	}
	return strings.Join(parts, ", ")
}
