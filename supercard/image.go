package supercard

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
)

// TrimUnused removes trailing 0xFF (erased) sections from the end of the
// data, aligned down to blocksize. There is no point programming words
// that already hold the erased pattern.
func TrimUnused(data []byte, blocksize int) []byte {
	unusedLength := 0
	dlen := len(data)
	for ; unusedLength < dlen; unusedLength++ {
		if data[dlen-1-unusedLength] != 0xFF {
			break
		}
	}
	trim := (unusedLength / blocksize) * blocksize
	return data[:dlen-trim]
}

// LoadFirmwareImage reads a candidate firmware image from disk. Files
// with a .hex extension are parsed as Intel HEX and flattened onto an
// erased (0xFF) background; anything else is taken as a raw binary.
// Images over the 512KiB device capacity are rejected outright.
func LoadFirmwareImage(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".hex") {
		return loadHexImage(f)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) > FlashSize {
		return nil, fmt.Errorf("%s is %d bytes: %w", path, len(data), ErrImageTooBig)
	}
	return data, nil
}

func loadHexImage(r io.Reader) ([]byte, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("parsing hex image: %w", err)
	}

	buf := make([]byte, FlashSize)
	for i := range buf {
		buf[i] = 0xFF
	}
	for _, seg := range mem.GetDataSegments() {
		end := int(seg.Address) + len(seg.Data)
		if end > FlashSize {
			return nil, fmt.Errorf("hex segment at %#x ends at %#x: %w",
				seg.Address, end, ErrImageTooBig)
		}
		copy(buf[seg.Address:], seg.Data)
	}

	// Keep word alignment for the programmer.
	return TrimUnused(buf, 2), nil
}
