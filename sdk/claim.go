package sdk

import (
	"github.com/pkg/errors"

	"pioemu/core"
)

// SMClaim marks a state machine as in use.
func (s *SDK) SMClaim(sm int) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	return s.ClaimSMMask(1 << sm)
}

// ClaimSMMask claims every state machine in mask, or none of them.
func (s *SDK) ClaimSMMask(mask int) error {
	if err := checkMask(mask); err != nil {
		return err
	}
	s.claimMu.Lock()
	defer s.claimMu.Unlock()
	if busy := s.claimed & uint32(mask); busy != 0 {
		return errors.Wrapf(ErrClaim, "state machine(s) already in use: %s", listMaskBits(busy))
	}
	s.claimed |= uint32(mask)
	return nil
}

// SMUnclaim releases a state machine.
func (s *SDK) SMUnclaim(sm int) error {
	if err := checkSM(sm); err != nil {
		return err
	}
	s.claimMu.Lock()
	s.claimed &^= 1 << sm
	s.claimMu.Unlock()
	return nil
}

// SMIsClaimed reports whether a state machine is claimed.
func (s *SDK) SMIsClaimed(sm int) (bool, error) {
	if err := checkSM(sm); err != nil {
		return false, err
	}
	s.claimMu.Lock()
	defer s.claimMu.Unlock()
	return s.claimed&(1<<sm) != 0, nil
}

// ClaimUnusedSM claims and returns the lowest unclaimed state machine.
// When all are in use it fails if required, else returns -1.
func (s *SDK) ClaimUnusedSM(required bool) (int, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()
	for sm := 0; sm < core.SMCount; sm++ {
		if s.claimed&(1<<sm) == 0 {
			s.claimed |= 1 << sm
			return sm, nil
		}
	}
	if required {
		return -1, errors.Wrap(ErrClaim, "all state machines already in use")
	}
	return -1, nil
}
