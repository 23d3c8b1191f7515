package supercard

import "errors"

var (
	// ErrPollTimeout means a polled device condition (erase or program
	// completion) did not settle within its budget. Retrying against a
	// possibly wedged chip is left to the user, never done automatically.
	ErrPollTimeout = errors.New("timed out waiting for the flash device")

	// ErrVerifyMismatch means a readback disagreed with what was written.
	ErrVerifyMismatch = errors.New("readback does not match written data")

	// ErrImageTooBig means a candidate image exceeds the 512KiB device.
	ErrImageTooBig = errors.New("image exceeds the flash device capacity")
)
