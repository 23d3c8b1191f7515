package supercard

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func checkDigest(t *testing.T, msg []byte, expected string) {
	t.Helper()
	got := hex.EncodeToString(sumSlice(Sha256Sum(msg)))
	if got != expected {
		t.Fatalf("Digest of %d byte message: expected %s, got %s", len(msg), expected, got)
	}
}

func sumSlice(sum [Sha256Size]byte) []byte {
	return sum[:]
}

func TestSha256_KnownVectors(t *testing.T) {
	checkDigest(t, []byte{},
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	checkDigest(t, []byte("abc"),
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")
	// 56 byte message: forces the extra zero padding block.
	checkDigest(t, []byte("abcdbcdecdefdefgefghfghighijhijkijkljklmklmnlmnomnopnopq"),
		"248d6a61d20638b8e5c026930c3e6039a33ce45964ff2167f6ecedd419db06c1")
}

// The <56 / >=56 remaining-bytes boundary is the classic off-by-one in
// the padding path, so lengths around it get checked one by one against
// the stdlib as an independent reference.
func TestSha256_PaddingBoundary(t *testing.T) {
	for _, length := range []int{55, 56, 57} {
		msg := bytes.Repeat([]byte{0x61}, length)
		expected := sha256.Sum256(msg)
		got := Sha256Sum(msg)
		if got != expected {
			t.Fatalf("Length %d: expected %x, got %x", length, expected, got)
		}
	}
}

func TestSha256_MatchesReferenceAllSmallLengths(t *testing.T) {
	msg := make([]byte, 130)
	for i := range msg {
		msg[i] = byte(i*7 + 13)
	}
	for length := 0; length <= len(msg); length++ {
		expected := sha256.Sum256(msg[:length])
		got := Sha256Sum(msg[:length])
		if got != expected {
			t.Fatalf("Length %d: expected %x, got %x", length, expected, got)
		}
	}
}

func TestSha256_StreamingMatchesOneShot(t *testing.T) {
	msg := make([]byte, 300)
	for i := range msg {
		msg[i] = byte(i ^ 0xA5)
	}
	for _, chunk := range []int{1, 3, 63, 64, 65, 300} {
		h := NewSha256()
		for off := 0; off < len(msg); off += chunk {
			end := off + chunk
			if end > len(msg) {
				end = len(msg)
			}
			h.Update(msg[off:end])
		}
		if got, expected := h.Sum(), Sha256Sum(msg); got != expected {
			t.Fatalf("Chunk size %d: streaming %x != one-shot %x", chunk, got, expected)
		}
	}
}

func TestSha256_ResetReusesState(t *testing.T) {
	h := NewSha256()
	h.Update([]byte("garbage to poison the state"))
	h.Sum()
	h.Reset()
	h.Update([]byte("abc"))
	got := h.Sum()
	if got != Sha256Sum([]byte("abc")) {
		t.Fatalf("Reset did not reinitialize the state")
	}
}

func TestSha256_BigBuffer(t *testing.T) {
	// Whole-image sized input, the fingerprinting use case.
	msg := make([]byte, FlashSize)
	expected := sha256.Sum256(msg)
	if got := Sha256Sum(msg); got != expected {
		t.Fatalf("512KiB zero buffer: expected %x, got %x", expected, got)
	}
}
