package supercard

import (
	"bytes"
	"fmt"
)

// Session sequences full flashing operations and the identify/dump
// entry points. It is the only surface the tool's UI layer talks to;
// everything below reports structured pass/fail, rendering is not its
// business.
type Session struct {
	ctrl *Controller
}

func NewSession(bus Bus) *Session {
	return &Session{ctrl: NewController(bus)}
}

// Controller exposes the underlying flash controller, mostly so callers
// can adjust poll budgets.
func (s *Session) Controller() *Controller {
	return s.ctrl
}

// FlashReport carries every stage's outcome independently. There is no
// rollback: after a failed stage the chip holds whatever the last
// successful stage left, and that is surfaced here rather than hidden.
type FlashReport struct {
	Erased     bool // full chip erase completed
	EraseClean bool // erase-verify found no stray words
	Programmed bool // every word programmed and read back fine
	Verified   bool // final whole-image byte compare passed

	// First hard error hit along the way, if any. Not serialized;
	// errors do not survive json round trips, callers report it.
	Err error `json:"-"`
}

// Success means every stage passed.
func (r FlashReport) Success() bool {
	return r.Erased && r.EraseClean && r.Programmed && r.Verified
}

// Flash runs erase, erase-verify, program and a final read-back compare
// over image. An erase failure or a dirty erase-verify aborts; a program
// failure is recorded but the final verification still runs, since the
// caller wants to know what state the chip was actually left in.
func (s *Session) Flash(image []byte) FlashReport {
	var rep FlashReport

	if len(image) > FlashSize {
		rep.Err = fmt.Errorf("image is %d bytes: %w", len(image), ErrImageTooBig)
		return rep
	}

	if err := s.ctrl.Erase(); err != nil {
		rep.Err = err
		return rep
	}
	rep.Erased = true

	dirty, err := s.ctrl.EraseVerify()
	if err != nil {
		rep.Err = err
		return rep
	}
	if dirty {
		return rep
	}
	rep.EraseClean = true

	if err := s.ctrl.Program(image); err != nil {
		rep.Err = err
	} else {
		rep.Programmed = true
	}

	ok, err := s.Verify(image)
	if err != nil {
		if rep.Err == nil {
			rep.Err = err
		}
		return rep
	}
	rep.Verified = ok
	return rep
}

// Verify reads back len(image) bytes and compares them literally. A
// plain byte compare on purpose: it catches partial-corruption patterns
// a digest comparison would only report as "something differs".
func (s *Session) Verify(image []byte) (bool, error) {
	if len(image) > FlashSize {
		return false, fmt.Errorf("image is %d bytes: %w", len(image), ErrImageTooBig)
	}
	buf := make([]byte, len(image))
	if err := s.ctrl.ReadBack(buf); err != nil {
		return false, err
	}
	return bytes.Equal(buf, image), nil
}

// Dump snapshots the whole 512KiB flash contents.
func (s *Session) Dump() ([]byte, error) {
	buf := make([]byte, FlashSize)
	if err := s.ctrl.ReadBack(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// IdentifyReport is what identify surfaces to the UI boundary.
type IdentifyReport struct {
	DeviceID    uint32
	Firmware    string // known firmware name, empty when unrecognized
	Recognized  bool
	ValidHeader bool // header of the on-cart image checks out
}

// Identify reads the device ID and fingerprints the current flash
// contents against the known firmware table.
func (s *Session) Identify() (IdentifyReport, error) {
	id, err := s.ctrl.Identify()
	if err != nil {
		return IdentifyReport{}, err
	}
	img, err := s.Dump()
	if err != nil {
		return IdentifyReport{}, err
	}
	name, ok := IdentifyImage(img)
	return IdentifyReport{
		DeviceID:    id,
		Firmware:    name,
		Recognized:  ok,
		ValidHeader: ValidHeader(img),
	}, nil
}
