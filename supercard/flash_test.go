package supercard

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func newTestController(bus Bus) *Controller {
	c := NewController(bus)
	// Shrink the budgets so failure paths stay fast.
	c.EraseBudget = 50 * time.Millisecond
	c.ErasePollTick = time.Millisecond
	c.ProgramPollReads = 64
	return c
}

// Every operation must leave the cart as it found it: previous owner
// back on the bus, mapping back to read-only firmware.
func checkRestored(t *testing.T, sim *SimCart) {
	t.Helper()
	if sim.CartOwner() != OwnerArm7 {
		t.Fatalf("Bus owner not restored: %s", sim.CartOwner())
	}
	if sim.Mode() != 0 {
		t.Fatalf("Mapping mode not restored: %#04x", sim.Mode())
	}
}

func TestIdentify(t *testing.T) {
	sim := NewSimCart()
	sim.SetID(0x00C2AB99)
	c := newTestController(sim)

	id, err := c.Identify()
	if err != nil {
		t.Fatalf("Identify failed: %s", err)
	}
	if id != 0x00C2AB99 {
		t.Fatalf("Expected ID 0x00C2AB99, got %#08x", id)
	}
	checkRestored(t, sim)
}

func TestEraseAndVerify(t *testing.T) {
	sim := NewSimCart()
	junk := bytes.Repeat([]byte{0x12, 0x34, 0x00, 0xAB}, 1024)
	sim.LoadImage(junk)
	c := newTestController(sim)

	dirty, err := c.EraseVerify()
	if err != nil {
		t.Fatalf("EraseVerify failed: %s", err)
	}
	if !dirty {
		t.Fatalf("Expected a dirty device before erasing")
	}

	if err := c.Erase(); err != nil {
		t.Fatalf("Erase failed: %s", err)
	}
	dirty, err = c.EraseVerify()
	if err != nil {
		t.Fatalf("EraseVerify failed: %s", err)
	}
	if dirty {
		t.Fatalf("Device still dirty after erase")
	}
	checkRestored(t, sim)
}

func TestErase_Timeout(t *testing.T) {
	sim := NewSimCart()
	sim.NeverFinish = true
	c := newTestController(sim)

	start := time.Now()
	err := c.Erase()
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("Expected ErrPollTimeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("Erase did not respect its time budget")
	}
	checkRestored(t, sim)
}

func TestProgramAndReadBack(t *testing.T) {
	sim := NewSimCart()
	c := newTestController(sim)

	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i * 31)
	}
	if err := c.Program(data); err != nil {
		t.Fatalf("Program failed: %s", err)
	}

	readback := make([]byte, len(data))
	if err := c.ReadBack(readback); err != nil {
		t.Fatalf("ReadBack failed: %s", err)
	}
	if !bytes.Equal(readback, data) {
		t.Fatalf("Readback differs from the programmed data")
	}
	checkRestored(t, sim)
}

func TestProgram_OddLength(t *testing.T) {
	sim := NewSimCart()
	c := newTestController(sim)

	data := []byte{0x11, 0x22, 0x33}
	if err := c.Program(data); err != nil {
		t.Fatalf("Program failed: %s", err)
	}
	readback := make([]byte, 4)
	if err := c.ReadBack(readback); err != nil {
		t.Fatalf("ReadBack failed: %s", err)
	}
	if !bytes.Equal(readback, []byte{0x11, 0x22, 0x33, 0xFF}) {
		t.Fatalf("Expected dangling byte padded with 0xFF, got %v", readback)
	}
}

func TestProgram_AbortsOnFirstMismatch(t *testing.T) {
	sim := NewSimCart()
	// Word 4 already holds zeroes; programming cannot set bits back, so
	// the readback there must mismatch and abort the whole run.
	sim.Bytes()[8] = 0x00
	sim.Bytes()[9] = 0x00
	c := newTestController(sim)

	data := bytes.Repeat([]byte{0xA5, 0x3C}, 16)
	err := c.Program(data)
	if !errors.Is(err, ErrVerifyMismatch) {
		t.Fatalf("Expected ErrVerifyMismatch, got %v", err)
	}

	// Words before the bad one programmed, words after untouched.
	mem := sim.Bytes()
	for i := 0; i < 8; i++ {
		if mem[i] != data[i] {
			t.Fatalf("Byte %d before the failure not programmed: %#02x", i, mem[i])
		}
	}
	for i := 10; i < len(data); i++ {
		if mem[i] != 0xFF {
			t.Fatalf("Byte %d after the failure was touched: %#02x", i, mem[i])
		}
	}
	checkRestored(t, sim)
}

func TestProgram_PollTimeout(t *testing.T) {
	sim := NewSimCart()
	sim.ProgramBusyReads = 1 << 30
	c := newTestController(sim)

	err := c.Program([]byte{0x00, 0x11})
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("Expected ErrPollTimeout, got %v", err)
	}
	checkRestored(t, sim)
}

func TestProgram_TooBig(t *testing.T) {
	c := newTestController(NewSimCart())
	err := c.Program(make([]byte, FlashSize+2))
	if !errors.Is(err, ErrImageTooBig) {
		t.Fatalf("Expected ErrImageTooBig, got %v", err)
	}
}

func TestReadBack_OddLength(t *testing.T) {
	sim := NewSimCart()
	sim.LoadImage([]byte{0xDE, 0xAD, 0xBE})
	c := newTestController(sim)

	dst := make([]byte, 3)
	if err := c.ReadBack(dst); err != nil {
		t.Fatalf("ReadBack failed: %s", err)
	}
	if !bytes.Equal(dst, []byte{0xDE, 0xAD, 0xBE}) {
		t.Fatalf("Expected DE AD BE, got %v", dst)
	}
}

func TestTestSRAM(t *testing.T) {
	sim := NewSimCart()
	c := newTestController(sim)

	numerrs, err := c.TestSRAM()
	if err != nil {
		t.Fatalf("TestSRAM failed: %s", err)
	}
	if numerrs != 0 {
		t.Fatalf("Expected a clean SRAM check, got %d mismatches", numerrs)
	}
	if sim.CartOwner() != OwnerArm7 {
		t.Fatalf("Bus owner not restored after SRAM test")
	}
}
