package core

// GPIOPin identifies a GPIO terminal number (0..31).
type GPIOPin uint32

// PinDriver is the view of the pad crossbar a peripheral drives. The PIO
// uses it to read input levels and drive pins and output enables.
type PinDriver interface {
	// GetBit reads the current level of a pin.
	GetBit(pin GPIOPin) (Bit, error)

	// SetFunction selects the peripheral that owns a pin.
	SetFunction(pin GPIOPin, fn Function) error

	// Values returns all 32 pin levels, bit i for pin i.
	Values() uint32

	// Directions returns all 32 output enables, bit i for pin i.
	Directions() uint32

	// WriteMasked drives the levels of the pins selected by mask.
	WriteMasked(values, mask uint32)

	// WriteDirsMasked drives the output enables of the pins selected by mask.
	WriteDirsMasked(dirs, mask uint32)

	// SetInputSyncBypass stores the input synchronizer bypass mask.
	SetInputSyncBypass(bypass uint32)

	// InputSyncBypass returns the stored bypass mask.
	InputSyncBypass() uint32
}

var _ PinDriver = (*GPIO)(nil)
