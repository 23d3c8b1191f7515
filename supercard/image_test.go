package supercard

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0660); err != nil {
		t.Fatalf("Error writing temp file: %s", err)
	}
	return path
}

func TestTrimUnused(t *testing.T) {
	data := []byte{0x01, 0x02, 0xFF, 0xFF, 0xFF}
	trimmed := TrimUnused(data, 2)
	if !bytes.Equal(trimmed, []byte{0x01, 0x02, 0xFF}) {
		t.Fatalf("Expected word-aligned trim, got %v", trimmed)
	}
	trimmed = TrimUnused(data, 1)
	if !bytes.Equal(trimmed, []byte{0x01, 0x02}) {
		t.Fatalf("Expected full trim, got %v", trimmed)
	}
	all := bytes.Repeat([]byte{0xFF}, 8)
	if len(TrimUnused(all, 1)) != 0 {
		t.Fatalf("Expected an all-0xFF buffer to trim to nothing")
	}
}

func TestLoadFirmwareImage_Raw(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB, 0xCD}, 100)
	path := writeTempFile(t, "fw.bin", data)

	img, err := LoadFirmwareImage(path)
	if err != nil {
		t.Fatalf("Error loading raw image: %s", err)
	}
	if !bytes.Equal(img, data) {
		t.Fatalf("Raw image loaded incorrectly")
	}
}

func TestLoadFirmwareImage_RawTooBig(t *testing.T) {
	path := writeTempFile(t, "big.bin", make([]byte, FlashSize+1))
	if _, err := LoadFirmwareImage(path); err == nil {
		t.Fatalf("Expected an error for an oversized image")
	}
}

func TestLoadFirmwareImage_Hex(t *testing.T) {
	// 16 bytes 00..0F at address 0, then EOF.
	hexfile := ":10000000000102030405060708090A0B0C0D0E0F78\n:00000001FF\n"
	path := writeTempFile(t, "fw.hex", []byte(hexfile))

	img, err := LoadFirmwareImage(path)
	if err != nil {
		t.Fatalf("Error loading hex image: %s", err)
	}
	expected := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 0xA, 0xB, 0xC, 0xD, 0xE, 0xF}
	if !bytes.Equal(img, expected) {
		t.Fatalf("Hex image loaded incorrectly: %v", img)
	}
}
