package supercard

import (
	"encoding/binary"
)

// Minimal from-scratch SHA256. The flashing tool uses it to fingerprint
// firmware images and to validate the boot logo region of a header, so
// it must match the standard bit-for-bit. Digest words are emitted
// big-endian regardless of host byte order.

const Sha256Size = 32

var sha256Init = [8]uint32{
	0x6a09e667, 0xbb67ae85, 0x3c6ef372, 0xa54ff53a,
	0x510e527f, 0x9b05688c, 0x1f83d9ab, 0x5be0cd19,
}

// The 64 standard round constants. These are not derivable and must be
// reproduced exactly.
var sha256K = [64]uint32{
	0x428a2f98, 0x71374491, 0xb5c0fbcf, 0xe9b5dba5, 0x3956c25b, 0x59f111f1, 0x923f82a4, 0xab1c5ed5,
	0xd807aa98, 0x12835b01, 0x243185be, 0x550c7dc3, 0x72be5d74, 0x80deb1fe, 0x9bdc06a7, 0xc19bf174,
	0xe49b69c1, 0xefbe4786, 0x0fc19dc6, 0x240ca1cc, 0x2de92c6f, 0x4a7484aa, 0x5cb0a9dc, 0x76f988da,
	0x983e5152, 0xa831c66d, 0xb00327c8, 0xbf597fc7, 0xc6e00bf3, 0xd5a79147, 0x06ca6351, 0x14292967,
	0x27b70a85, 0x2e1b2138, 0x4d2c6dfc, 0x53380d13, 0x650a7354, 0x766a0abb, 0x81c2c92e, 0x92722c85,
	0xa2bfe8a1, 0xa81a664b, 0xc24b8b70, 0xc76c51a3, 0xd192e819, 0xd6990624, 0xf40e3585, 0x106aa070,
	0x19a4c116, 0x1e376c08, 0x2748774c, 0x34b0bcb5, 0x391c0cb3, 0x4ed8aa4a, 0x5b9cca4f, 0x682e6ff3,
	0x748f82ee, 0x78a5636f, 0x84c87814, 0x8cc70208, 0x90befffa, 0xa4506ceb, 0xbef9a3f7, 0xc67178f2,
}

func rotr(x uint32, n uint) uint32 {
	return (x >> n) | (x << (32 - n))
}

// One compression round over a 64 byte block, using a rolling 16 word
// message schedule instead of the fully expanded 64 word one.
func sha256Transform(state *[8]uint32, block []byte) {
	var w [16]uint32
	for i := 0; i < 16; i++ {
		w[i] = binary.BigEndian.Uint32(block[i*4:])
	}

	ls := *state

	for i := 0; i < 64; i++ {
		widx := i & 15

		s1 := rotr(ls[4], 6) ^ rotr(ls[4], 11) ^ rotr(ls[4], 25)
		ch := (ls[4] & ls[5]) ^ (^ls[4] & ls[6])
		t1 := ls[7] + s1 + ch + sha256K[i] + w[widx]
		s0 := rotr(ls[0], 2) ^ rotr(ls[0], 13) ^ rotr(ls[0], 22)
		mj := (ls[0] & ls[1]) ^ (ls[0] & ls[2]) ^ (ls[1] & ls[2])
		t2 := s0 + mj

		w1 := w[(i+1)&15]
		w9 := w[(i+9)&15]
		w14 := w[(i+14)&15]

		// Schedule the word 16 rounds ahead in place.
		w[widx] += w9 +
			(rotr(w1, 7) ^ rotr(w1, 18) ^ (w1 >> 3)) +
			(rotr(w14, 17) ^ rotr(w14, 19) ^ (w14 >> 10))

		ls[7] = ls[6]
		ls[6] = ls[5]
		ls[5] = ls[4]
		ls[4] = ls[3] + t1
		ls[3] = ls[2]
		ls[2] = ls[1]
		ls[1] = ls[0]
		ls[0] = t1 + t2
	}

	for i := range state {
		state[i] += ls[i]
	}
}

// Streaming hash state: running digest words plus the accumulated
// length. Sum finalizes the state, so it must not be reused afterwards
// without a Reset.
type Sha256 struct {
	state  [8]uint32
	buf    [64]byte
	fill   int
	length uint64
}

func NewSha256() *Sha256 {
	h := &Sha256{}
	h.Reset()
	return h
}

func (h *Sha256) Reset() {
	h.state = sha256Init
	h.fill = 0
	h.length = 0
}

func (h *Sha256) Update(data []byte) {
	h.length += uint64(len(data))
	if h.fill > 0 {
		n := copy(h.buf[h.fill:], data)
		h.fill += n
		data = data[n:]
		if h.fill == 64 {
			sha256Transform(&h.state, h.buf[:])
			h.fill = 0
		}
	}
	for len(data) >= 64 {
		sha256Transform(&h.state, data[:64])
		data = data[64:]
	}
	h.fill += copy(h.buf[h.fill:], data)
}

// Sum pads and finalizes, consuming the state. A single 0x80 byte, zero
// fill, then the 64 bit big-endian bit length; when 56 or more bytes of
// the final block are message bytes the length does not fit and a full
// extra block is flushed first.
func (h *Sha256) Sum() [Sha256Size]byte {
	bitlen := h.length << 3

	h.buf[h.fill] = 0x80
	for i := h.fill + 1; i < 64; i++ {
		h.buf[i] = 0
	}

	if h.fill >= 56 {
		sha256Transform(&h.state, h.buf[:])
		for i := range h.buf {
			h.buf[i] = 0
		}
	}

	binary.BigEndian.PutUint64(h.buf[56:], bitlen)
	sha256Transform(&h.state, h.buf[:])

	var out [Sha256Size]byte
	for i, word := range h.state {
		binary.BigEndian.PutUint32(out[i*4:], word)
	}
	return out
}

// Sha256Sum is the whole-buffer entry point: full blocks are compressed
// straight from the input and only the final partial block goes through
// the padding path.
func Sha256Sum(data []byte) [Sha256Size]byte {
	state := sha256Init
	bitlen := uint64(len(data)) << 3

	for len(data) >= 64 {
		sha256Transform(&state, data[:64])
		data = data[64:]
	}

	var tmp [64]byte
	copy(tmp[:], data)
	tmp[len(data)] = 0x80

	if len(data) >= 56 {
		sha256Transform(&state, tmp[:])
		tmp = [64]byte{}
	}

	binary.BigEndian.PutUint64(tmp[56:], bitlen)
	sha256Transform(&state, tmp[:])

	var out [Sha256Size]byte
	for i, word := range state {
		binary.BigEndian.PutUint32(out[i*4:], word)
	}
	return out
}
