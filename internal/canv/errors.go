package canv

import "errors"

var (
	// ErrFormat marks a malformed metadata/imagery pair. Fatal before
	// any network activity.
	ErrFormat = errors.New("video format error")

	// ErrSequence marks an out-of-order write attempt. Always a defect,
	// never expected in normal operation.
	ErrSequence = errors.New("frame sequence error")
)
