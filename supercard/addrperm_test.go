package supercard

import (
	"testing"
)

// Independent copy of the wiring table: wiring[src] = dst. Bit 1 is one
// of the straight-through lines.
var wiring = [9]uint{0: 7, 1: 1, 2: 6, 3: 5, 4: 0, 5: 2, 6: 8, 7: 4, 8: 3}

func permByTable(addr uint32) uint32 {
	out := addr &^ 0x1FF
	out |= addr & 0x002
	for src, dst := range wiring {
		if src == 1 {
			continue
		}
		if addr&(1<<uint(src)) != 0 {
			out |= 1 << dst
		}
	}
	return out
}

func TestAddrPerm_Exhaustive9Bit(t *testing.T) {
	for v := uint32(0); v < 512; v++ {
		expected := permByTable(v)
		if got := AddrPerm(v); got != expected {
			t.Fatalf("AddrPerm(%#03x): expected %#03x, got %#03x", v, expected, got)
		}
	}
}

func TestAddrPerm_UnlockAddresses(t *testing.T) {
	// The two addresses the command sequences actually use.
	if got := AddrPerm(0x555); got != 0x5C9 {
		t.Fatalf("AddrPerm(0x555): expected 0x5C9, got %#x", got)
	}
	if got := AddrPerm(0x2AA); got != 0x236 {
		t.Fatalf("AddrPerm(0x2AA): expected 0x236, got %#x", got)
	}
}

func TestAddrPerm_HighBitsUntouched(t *testing.T) {
	highs := []uint32{0x00000000, 0x00000200, 0x0003FE00, 0xABCDE000, 0xFFFFFE00}
	for _, high := range highs {
		for v := uint32(0); v < 512; v++ {
			got := AddrPerm(high | v)
			if got&^0x1FF != high&^0x1FF {
				t.Fatalf("AddrPerm(%#x) disturbed the high bits: got %#x", high|v, got)
			}
			if got&0x002 != v&0x002 {
				t.Fatalf("AddrPerm(%#x) disturbed bit 1: got %#x", high|v, got)
			}
		}
	}
}

func TestAddrPerm_Bijective(t *testing.T) {
	seen := make(map[uint32]uint32)
	for v := uint32(0); v < 512; v++ {
		got := AddrPerm(v)
		if prev, dup := seen[got]; dup {
			t.Fatalf("AddrPerm maps both %#x and %#x to %#x", prev, v, got)
		}
		seen[got] = v
	}
}
