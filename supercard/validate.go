package supercard

import (
	"encoding/hex"
	"fmt"

	"github.com/pelletier/go-toml"
)

// Firmware images carry the standard GBA-style header: a boot logo
// bitmap at 0x04 and a complement checksum over the header fields.
const (
	HeaderSize = 0xC0

	logoOffset = 0x04
	logoLength = 156

	checksumStart = 0xA0
	checksumEnd   = 0xBD // exclusive; the checksum byte itself is at 0xBD
	checksumSeed  = 0x19
)

// FingerprintSize bytes of a SHA256 digest are enough to tell known
// firmware builds apart.
const FingerprintSize = 16

type Fingerprint [FingerprintSize]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// FingerprintOf is the truncated whole-buffer hash used for known-image
// matching.
func FingerprintOf(data []byte) Fingerprint {
	sum := Sha256Sum(data)
	var fp Fingerprint
	copy(fp[:], sum[:FingerprintSize])
	return fp
}

// Truncated hash of the boot logo region of a valid header. A var so the
// accept path is testable without shipping the logo bitmap itself.
var bootLogoDigest = Fingerprint{
	0x08, 0xa0, 0x15, 0x3c, 0xfd, 0x6b, 0x0e, 0xa5,
	0x4b, 0x93, 0x8f, 0x7d, 0x20, 0x99, 0x33, 0xfa,
}

// HeaderChecksum computes the expected complement checksum byte for the
// header fields in [0xA0, 0xBD).
func HeaderChecksum(fw []byte) byte {
	sum := byte(checksumSeed)
	for _, b := range fw[checksumStart:checksumEnd] {
		sum += b
	}
	return -sum
}

// LogoDigest is the truncated hash of the header's boot logo region.
func LogoDigest(fw []byte) Fingerprint {
	return FingerprintOf(fw[logoOffset : logoOffset+logoLength])
}

// ValidHeader checks the candidate image's header: the logo region must
// hash to the known-good digest AND the complement checksum must match
// the byte at 0xBD. Either failing alone fails the whole check. A bad
// header is advisory information, not an error; whether to flash anyway
// is the caller's call.
func ValidHeader(fw []byte) bool {
	if len(fw) < HeaderSize {
		return false
	}
	return LogoDigest(fw) == bootLogoDigest && HeaderChecksum(fw) == fw[0xBD]
}

// KnownImage is one (name, truncated hash) entry of the known firmware
// table.
type KnownImage struct {
	Name   string
	Digest Fingerprint
}

// Fingerprints of well known full-size (512KiB) images, consulted in
// order. Append-only; extending the table never changes the matching
// logic.
var knownImages = []KnownImage{
	{
		"Empty/Zeroed", // all 0x00
		Fingerprint{0x07, 0x85, 0x4d, 0x2f, 0xef, 0x29, 0x7a, 0x06, 0xba, 0x81, 0x68, 0x5e, 0x66, 0x0c, 0x33, 0x2d},
	},
	{
		"Empty/Cleared", // all 0xFF
		Fingerprint{0x04, 0x3e, 0x23, 0x8a, 0x76, 0x5f, 0x7c, 0xfb, 0xc6, 0x25, 0x96, 0xa5, 0x0e, 0x53, 0xc8, 0xff},
	},
	{
		"Official firmware v1.85 (EN)",
		Fingerprint{0xc1, 0x1d, 0x86, 0x4d, 0x39, 0xa4, 0x58, 0x60, 0xa7, 0xc5, 0xc3, 0x4c, 0xa6, 0x65, 0xa9, 0xc1},
	},
}

// KnownImages returns a copy of the current table.
func KnownImages() []KnownImage {
	out := make([]KnownImage, len(knownImages))
	copy(out, knownImages)
	return out
}

// IdentifyImage matches the buffer's fingerprint against the known
// table, first match wins. Best effort only: no match just means "not
// recognized", it says nothing about validity.
func IdentifyImage(data []byte) (string, bool) {
	fp := FingerprintOf(data)
	for _, k := range knownImages {
		if k.Digest == fp {
			return k.Name, true
		}
	}
	return "", false
}

type knownImagesConfig struct {
	Image []struct {
		Name   string `toml:"name"`
		Sha256 string `toml:"sha256"`
	} `toml:"image"`
}

// LoadKnownImages appends entries from a TOML document to the known
// table. Expected shape:
//
//	[[image]]
//	name = "SuperFW v1.2"
//	sha256 = "c11d864d39a45860a7c5c34ca665a9c1"
//
// The digest may be the full 32 byte hash or just its first 16 bytes.
// Returns the number of entries added.
func LoadKnownImages(data []byte) (int, error) {
	var cfg knownImagesConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return 0, fmt.Errorf("parsing known image list: %w", err)
	}
	for i, img := range cfg.Image {
		raw, err := hex.DecodeString(img.Sha256)
		if err != nil || len(raw) < FingerprintSize {
			return 0, fmt.Errorf("image %d (%s): sha256 must be at least %d hex bytes",
				i, img.Name, FingerprintSize)
		}
		var fp Fingerprint
		copy(fp[:], raw)
		knownImages = append(knownImages, KnownImage{Name: img.Name, Digest: fp})
	}
	return len(cfg.Image), nil
}
