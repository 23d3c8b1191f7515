package supercard

import (
	"fmt"
	"time"
)

// Flash command set. The chip speaks the classic JEDEC dialect: a three
// write unlock prefix, then a command byte, all at fixed addresses that
// must go through the wire permutation.
const (
	cmdReset      = 0x00F0
	cmdAutoselect = 0x0090
	cmdEraseSetup = 0x0080
	cmdEraseChip  = 0x0010
	cmdProgram    = 0x00A0

	unlockData1 = 0x00AA
	unlockData2 = 0x0055

	addrUnlock1 = 0x555
	addrUnlock2 = 0x2AA
)

// Mode switch register. Lives at the very top of the ROM window
// (byte address 0x09FFFFFE from the slot-2 base, hence this word index).
// The magic value and the mode value must each be written twice for the
// latch to take; this is a hardware quirk, not a protocol to optimize.
const (
	modeRegWord     = 0x00FFFFFF
	modeswitchMagic = 0xA55A

	modeMapSDRAM    = 0x0001 // SDRAM instead of internal flash
	modeMapSDCard   = 0x0002 // SD card interface in the ROM space
	modeWriteAccess = 0x0004 // write enable
)

const (
	defaultEraseBudget   = 60 * time.Second
	defaultErasePollTick = time.Millisecond
	// Per-word program polls. Each word usually settles in the order of
	// microseconds, so this is already generous.
	defaultProgramPollReads = 32 * 1024
)

// Controller drives the firmware flash chip over a Bus. All public
// operations leave the cart exactly as found: bus owner saved/restored
// and mapping back to read-only firmware, on every exit path.
//
// Operations are strictly sequential; the Controller is not safe for
// concurrent use, mirroring the single-owner hardware bus.
type Controller struct {
	bus Bus

	// Poll budgets, overridable (mostly by tests).
	EraseBudget      time.Duration
	ErasePollTick    time.Duration
	ProgramPollReads int
}

func NewController(bus Bus) *Controller {
	return &Controller{
		bus:              bus,
		EraseBudget:      defaultEraseBudget,
		ErasePollTick:    defaultErasePollTick,
		ProgramPollReads: defaultProgramPollReads,
	}
}

// Latch a new mapping mode: magic sentinel twice, then the value twice.
func (c *Controller) setMode(mapSDRAM, writeAccess, sdcardInterface bool) {
	var value uint16
	if mapSDRAM {
		value |= modeMapSDRAM
	}
	if sdcardInterface {
		value |= modeMapSDCard
	}
	if writeAccess {
		value |= modeWriteAccess
	}
	c.bus.WriteROM16(modeRegWord, modeswitchMagic)
	c.bus.WriteROM16(modeRegWord, modeswitchMagic)
	c.bus.WriteROM16(modeRegWord, value)
	c.bus.WriteROM16(modeRegWord, value)
}

// Run op with the cart claimed for the host and the firmware flash
// mapped (write enabled or not). The previous bus owner and the
// read-only firmware mapping are restored on every exit path, and any
// latched bus error surfaces after the restore.
func (c *Controller) withFlashAccess(writeEnable bool, op func() error) (err error) {
	prev := c.bus.CartOwner()
	c.bus.SetCartOwner(OwnerArm9)
	c.bus.UseSlowTiming()
	c.setMode(false, writeEnable, false)

	defer func() {
		c.setMode(false, false, false)
		c.bus.SetCartOwner(prev)
		if err == nil {
			err = c.bus.Err()
		}
	}()

	return op()
}

// Hold reset for a few cycles so the chip settles back into read mode.
func (c *Controller) resetDevice() {
	for i := 0; i < 32; i++ {
		c.bus.WriteROM16(0, cmdReset)
	}
}

func (c *Controller) unlock() {
	c.bus.WriteROM16(AddrPerm(addrUnlock1), unlockData1)
	c.bus.WriteROM16(AddrPerm(addrUnlock2), unlockData2)
}

// The chip signals a busy internal operation by toggling a status bit
// on successive reads. Two consecutive identical reads mean done. This
// does not isolate the DQ6 bit itself, which is fine for the SuperCard
// silicon but should be revisited if this ever drives a different chip.
func (c *Controller) stableRead() bool {
	return c.bus.ReadROM16(0) == c.bus.ReadROM16(0)
}

// Identify reads the JEDEC manufacturer/device ID, packed high word
// first. The value is returned as-is; matching it against a vendor
// table is the caller's business.
func (c *Controller) Identify() (uint32, error) {
	var id uint32
	err := c.withFlashAccess(true, func() error {
		c.resetDevice()

		c.unlock()
		c.bus.WriteROM16(AddrPerm(addrUnlock1), cmdAutoselect)

		id = uint32(c.bus.ReadROM16(AddrPerm(0x000))) << 16
		id |= uint32(c.bus.ReadROM16(AddrPerm(0x001)))

		c.resetDevice()
		return nil
	})
	return id, err
}

// Erase performs a full chip erase. The device has no sector granularity
// so this is all or nothing. Completion is polled under EraseBudget;
// running out of budget reports ErrPollTimeout without retrying.
func (c *Controller) Erase() error {
	return c.withFlashAccess(true, func() error {
		c.resetDevice()

		c.unlock()
		c.bus.WriteROM16(AddrPerm(addrUnlock1), cmdEraseSetup)
		c.unlock()
		c.bus.WriteROM16(AddrPerm(addrUnlock1), cmdEraseChip)

		deadline := time.Now().Add(c.EraseBudget)
		for time.Now().Before(deadline) {
			time.Sleep(c.ErasePollTick)
			if c.stableRead() {
				break
			}
		}
		done := c.stableRead()

		c.resetDevice()
		if !done {
			return fmt.Errorf("chip erase did not settle in %v: %w", c.EraseBudget, ErrPollTimeout)
		}
		return nil
	})
}

// EraseVerify scans the whole device for the erased pattern, stopping at
// the first word that is not 0xFFFF. Returns whether the device is
// dirty.
func (c *Controller) EraseVerify() (bool, error) {
	dirty := false
	err := c.withFlashAccess(true, func() error {
		for w := uint32(0); w < FlashWords; w++ {
			if c.bus.ReadROM16(w) != ErasedWord {
				dirty = true
				break
			}
		}
		return nil
	})
	return dirty, err
}

// Program writes data word by word in ascending address order, assuming
// the target range is already erased (flash programming can only clear
// bits). Every word is polled and read back; the first timeout or
// mismatch aborts the whole operation with no partial-success report
// and no resumption.
func (c *Controller) Program(data []byte) error {
	if len(data) > FlashSize {
		return fmt.Errorf("cannot program %d bytes: %w", len(data), ErrImageTooBig)
	}
	if len(data)%2 != 0 {
		// Word programming; pad the dangling byte with the erased value.
		data = append(append([]byte{}, data...), 0xFF)
	}

	return c.withFlashAccess(true, func() error {
		c.bus.WriteROM16(0, cmdReset) // force idle

		for i := 0; i < len(data); i += 2 {
			value := uint16(data[i]) | uint16(data[i+1])<<8
			word := uint32(i / 2)

			c.unlock()
			c.bus.WriteROM16(AddrPerm(addrUnlock1), cmdProgram)
			c.bus.WriteROM16(word, value)

			settled := false
			for j := 0; j < c.ProgramPollReads; j++ {
				if c.stableRead() {
					settled = true
					break
				}
			}

			c.bus.WriteROM16(0, cmdReset) // finish the operation, or abort it

			if !settled {
				return fmt.Errorf("programming word %#x did not settle: %w", word, ErrPollTimeout)
			}
			if got := c.bus.ReadROM16(word); got != value {
				return fmt.Errorf("word %#x: wrote %#04x, read back %#04x: %w",
					word, value, got, ErrVerifyMismatch)
			}
		}
		return nil
	})
}

// ReadBack copies len(dst) bytes from the start of the flash, with the
// cart mapped read-only. Used both for dumps and for validate-after-write.
func (c *Controller) ReadBack(dst []byte) error {
	if len(dst) > FlashSize {
		return fmt.Errorf("cannot read %d bytes: %w", len(dst), ErrImageTooBig)
	}
	return c.withFlashAccess(false, func() error {
		for i := 0; i+1 < len(dst); i += 2 {
			v := c.bus.ReadROM16(uint32(i / 2))
			dst[i] = byte(v)
			dst[i+1] = byte(v >> 8)
		}
		if len(dst)%2 != 0 {
			dst[len(dst)-1] = byte(c.bus.ReadROM16(uint32(len(dst) / 2)))
		}
		return nil
	})
}

// TestSRAM writes a well known pattern over the whole SRAM window and
// counts readback mismatches. Only bus ownership is touched; the SRAM
// window is independent of the flash mapping mode.
func (c *Controller) TestSRAM() (int, error) {
	prev := c.bus.CartOwner()
	c.bus.SetCartOwner(OwnerArm9)
	c.bus.UseSlowTiming()
	defer c.bus.SetCartOwner(prev)

	for i := 0; i < SramSize; i++ {
		c.bus.WriteSRAM8(uint32(i), 0x00)
	}
	for i := 0; i < SramSize; i++ {
		c.bus.WriteSRAM8(uint32(i), uint8(i^(i*i)^0x5A))
	}
	numerrs := 0
	for i := 0; i < SramSize; i++ {
		if c.bus.ReadSRAM8(uint32(i)) != uint8(i^(i*i)^0x5A) {
			numerrs++
		}
	}
	return numerrs, c.bus.Err()
}
