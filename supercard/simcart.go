package supercard

// SimCart is a behavioral model of the SuperCard cartridge as seen from
// the host side of the bus: the mapping/mode latch, bus ownership
// gating, and an AMD-style command state machine for the flash chip,
// including the toggling busy bit. The wire permutation is part of what
// the host sees, so the model matches command addresses against their
// permuted form, exactly like the real chip behind the scrambled traces.
//
// It implements Bus and is used by tests and by the CLI dry-run mode.

// Default JEDEC ID the model answers with (Spansion-style).
const DefaultSimDeviceID = 0x0001227E

const (
	simIdle = iota
	simUnlock1
	simUnlock2
	simAutoselect
	simProgram
	simEraseSetup
	simEraseU1
	simEraseU2
)

type SimCart struct {
	mem  []byte
	sram []byte

	owner BusOwner
	slow  bool

	// Mapping mode latch and handshake progress.
	mode        uint16
	modeStage   int
	modePending uint16

	// Flash command state machine.
	state int
	id    uint32

	// Busy emulation: reads remaining until the toggle bit stops.
	// Negative means the operation never finishes.
	busy   int
	toggle bool

	// Knobs for fault injection.
	EraseBusyReads   int  // reads an erase stays busy for
	ProgramBusyReads int  // reads a word program stays busy for
	NeverFinish      bool // erase never stabilizes its toggle bit
	BadWord          int  // word index with a stuck-at-zero bit 0, -1 for none
}

func NewSimCart() *SimCart {
	mem := make([]byte, FlashSize)
	for i := range mem {
		mem[i] = 0xFF
	}
	return &SimCart{
		mem:              mem,
		sram:             make([]byte, SramSize),
		owner:            OwnerArm7,
		id:               DefaultSimDeviceID,
		EraseBusyReads:   8,
		ProgramBusyReads: 2,
		BadWord:          -1,
	}
}

func (s *SimCart) SetID(id uint32) { s.id = id }

// LoadImage presets the flash contents, as if the image had been
// programmed previously. The rest of the chip stays erased.
func (s *SimCart) LoadImage(data []byte) {
	for i := range s.mem {
		s.mem[i] = 0xFF
	}
	copy(s.mem, data)
}

// Bytes exposes the raw flash array for assertions and dry-run saves.
func (s *SimCart) Bytes() []byte { return s.mem }

// Mode returns the latched mapping mode bits.
func (s *SimCart) Mode() uint16 { return s.mode }

func (s *SimCart) CartOwner() BusOwner     { return s.owner }
func (s *SimCart) SetCartOwner(o BusOwner) { s.owner = o }
func (s *SimCart) UseSlowTiming()          { s.slow = true }
func (s *SimCart) Err() error              { return nil }

func (s *SimCart) writable() bool {
	return s.owner == OwnerArm9 &&
		s.mode&modeWriteAccess != 0 &&
		s.mode&modeMapSDRAM == 0
}

// The mode latch wants the magic sentinel twice, then the mode value
// twice. Anything off-script aborts the handshake.
func (s *SimCart) modeWrite(v uint16) {
	switch {
	case s.modeStage < 2:
		if v == modeswitchMagic {
			s.modeStage++
		} else {
			s.modeStage = 0
		}
	case s.modeStage == 2:
		s.modePending = v
		s.modeStage = 3
	default:
		if v == s.modePending {
			s.mode = s.modePending
		}
		s.modeStage = 0
	}
}

func (s *SimCart) startBusy(reads int) {
	s.busy = reads
	s.toggle = false
}

func (s *SimCart) WriteROM16(addr uint32, value uint16) {
	if s.owner != OwnerArm9 {
		return
	}
	// The mapping latch is SuperCard logic, reachable regardless of the
	// write-enable bit (it has to be, or the cart could never leave
	// read-only mode).
	if addr == modeRegWord {
		s.modeWrite(value)
		return
	}
	if !s.writable() {
		return
	}
	if s.busy != 0 {
		// The chip ignores the bus while an internal operation runs.
		return
	}

	// Reset is honored from any state except the program data cycle,
	// where the written value is data, whatever it looks like.
	if value == cmdReset && s.state != simProgram {
		s.state = simIdle
		return
	}

	switch s.state {
	case simIdle:
		if addr == AddrPerm(addrUnlock1) && value == unlockData1 {
			s.state = simUnlock1
		}
	case simUnlock1:
		if addr == AddrPerm(addrUnlock2) && value == unlockData2 {
			s.state = simUnlock2
		} else {
			s.state = simIdle
		}
	case simUnlock2:
		if addr != AddrPerm(addrUnlock1) {
			s.state = simIdle
			break
		}
		switch value {
		case cmdAutoselect:
			s.state = simAutoselect
		case cmdProgram:
			s.state = simProgram
		case cmdEraseSetup:
			s.state = simEraseSetup
		default:
			s.state = simIdle
		}
	case simProgram:
		s.programWord(addr, value)
		s.state = simIdle
	case simEraseSetup:
		if addr == AddrPerm(addrUnlock1) && value == unlockData1 {
			s.state = simEraseU1
		} else {
			s.state = simIdle
		}
	case simEraseU1:
		if addr == AddrPerm(addrUnlock2) && value == unlockData2 {
			s.state = simEraseU2
		} else {
			s.state = simIdle
		}
	case simEraseU2:
		if addr == AddrPerm(addrUnlock1) && value == cmdEraseChip {
			s.eraseChip()
		}
		s.state = simIdle
	case simAutoselect:
		// Only reset leaves autoselect, handled above.
	}
}

// NOR programming can only clear bits, which is exactly why writing over
// a non-erased region shows up as a readback mismatch.
func (s *SimCart) programWord(addr uint32, value uint16) {
	if addr >= FlashWords {
		return
	}
	lo := s.mem[addr*2] & byte(value)
	hi := s.mem[addr*2+1] & byte(value>>8)
	if int(addr) == s.BadWord {
		lo &^= 0x01
	}
	s.mem[addr*2] = lo
	s.mem[addr*2+1] = hi
	s.startBusy(s.ProgramBusyReads)
}

func (s *SimCart) eraseChip() {
	for i := range s.mem {
		s.mem[i] = 0xFF
	}
	if s.NeverFinish {
		s.startBusy(-1)
	} else {
		s.startBusy(s.EraseBusyReads)
	}
}

func (s *SimCart) ReadROM16(addr uint32) uint16 {
	if s.owner != OwnerArm9 || s.mode&modeMapSDRAM != 0 {
		return 0xFFFF // open bus
	}
	if s.busy != 0 {
		// Status read: the toggle bit flips on every read while busy.
		v := uint16(0x0000)
		if s.toggle {
			v |= 0x0040
		}
		s.toggle = !s.toggle
		if s.busy > 0 {
			s.busy--
		}
		return v
	}
	if s.state == simAutoselect {
		switch addr {
		case AddrPerm(0x000):
			return uint16(s.id >> 16)
		case AddrPerm(0x001):
			return uint16(s.id)
		}
		return 0
	}
	if addr >= FlashWords {
		return 0xFFFF
	}
	return uint16(s.mem[addr*2]) | uint16(s.mem[addr*2+1])<<8
}

func (s *SimCart) ReadSRAM8(off uint32) uint8 {
	if s.owner != OwnerArm9 || off >= SramSize {
		return 0xFF
	}
	return s.sram[off]
}

func (s *SimCart) WriteSRAM8(off uint32, value uint8) {
	if s.owner != OwnerArm9 || off >= SramSize {
		return
	}
	s.sram[off] = value
}
