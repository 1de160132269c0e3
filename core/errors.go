package core

import "github.com/pkg/errors"

var (
	// ErrOutOfRange is returned when an index or argument lies outside its domain.
	ErrOutOfRange = errors.New("argument out of range")

	// ErrUndefined is returned for an enumerated value outside its defined set.
	ErrUndefined = errors.New("undefined enumeration value")

	// ErrNilArgument is returned when a required reference is absent.
	ErrNilArgument = errors.New("nil argument")
)

// CheckRange returns ErrOutOfRange wrapped with the argument name unless
// min <= value <= max.
func CheckRange(name string, value, min, max int) error {
	if value < min || value > max {
		return errors.Wrapf(ErrOutOfRange, "%s=%d not in [%d,%d]", name, value, min, max)
	}
	return nil
}
