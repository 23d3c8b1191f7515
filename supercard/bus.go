package supercard

// Geometry and well known values of the SuperCard flash cartridge.
const (
	// The firmware flash chip is 512KiB, addressed as 16 bit words
	// through the slot-2 ROM window.
	FlashSize  = 512 * 1024
	FlashWords = FlashSize / 2

	// Battery backed SRAM window (bytes).
	SramSize = 64 * 1024

	// Value every word reads as after a successful chip erase.
	ErasedWord = 0xFFFF
)

// Which CPU currently owns the external cartridge bus. Saved before any
// flash operation and unconditionally restored afterwards.
type BusOwner uint8

const (
	OwnerArm7 BusOwner = iota // cart parked on the coprocessor
	OwnerArm9                 // host CPU, required for any flash access
)

func (o BusOwner) String() string {
	if o == OwnerArm9 {
		return "ARM9"
	}
	return "ARM7"
}

// Bus is the cartridge seen from the host: 16 bit word accesses in the
// ROM window, byte accesses in the SRAM window, plus bus arbitration.
// Word addresses are word indexes from the base of the ROM window, so
// byte offset 2*addr.
//
// Memory-style accessors cannot return errors inline; transports that
// can fail (the serial link) latch their first failure instead and
// surface it through Err, which callers check once per operation.
type Bus interface {
	ReadROM16(addr uint32) uint16
	WriteROM16(addr uint32, value uint16)

	ReadSRAM8(off uint32) uint8
	WriteSRAM8(off uint32, value uint8)

	CartOwner() BusOwner
	SetCartOwner(owner BusOwner)

	// Request the slowest bus timings. Flash command sequences are not
	// reliable at the default access times.
	UseSlowTiming()

	// First access failure, if any. Nil for transports that cannot fail.
	Err() error
}
