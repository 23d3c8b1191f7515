package supercard

// The flash device address bus reaches the chip through permutated PCB
// traces. The scramble only affects the 9 low address lines (and skips
// bit 1); everything above passes straight through. This is physical
// wiring, not a formula, so the mapping is kept as a literal table:
//
//	host bit  0 -> chip bit 7
//	host bit  1 -> chip bit 1
//	host bit  2 -> chip bit 6
//	host bit  3 -> chip bit 5
//	host bit  4 -> chip bit 0
//	host bit  5 -> chip bit 2
//	host bit  6 -> chip bit 8
//	host bit  7 -> chip bit 4
//	host bit  8 -> chip bit 3
//
// Any address the tool needs the chip to see (unlock and command
// addresses mostly) must go through AddrPerm first. The scramble is not
// its own inverse; it is only ever applied in this one direction.
func AddrPerm(addr uint32) uint32 {
	return (addr & 0xFFFFFE02) |
		((addr & 0x001) << 7) |
		((addr & 0x004) << 4) |
		((addr & 0x008) << 2) |
		((addr & 0x010) >> 4) |
		((addr & 0x020) >> 3) |
		((addr & 0x040) << 2) |
		((addr & 0x080) >> 3) |
		((addr & 0x100) >> 5)
}
