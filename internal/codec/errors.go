package codec

import (
	"errors"
	"fmt"
)

// ErrMalformedFrame is the root of every framing error. A FrameReader that
// returns it has already dropped everything it had buffered.
var ErrMalformedFrame = errors.New("malformed frame")

var (
	ErrBadPreamble      = fmt.Errorf("%w: invalid preamble", ErrMalformedFrame)
	ErrFrameTooShort    = fmt.Errorf("%w: frame shorter than minimum", ErrMalformedFrame)
	ErrFrameTooLarge    = fmt.Errorf("%w: frame exceeds buffer limit", ErrMalformedFrame)
	ErrChecksum         = fmt.Errorf("%w: checksum mismatch", ErrMalformedFrame)
	ErrCountMismatch    = fmt.Errorf("%w: record count mismatch", ErrMalformedFrame)
	ErrUnsupportedCodec = fmt.Errorf("%w: unsupported codec", ErrMalformedFrame)
	ErrZeroTimestamp    = fmt.Errorf("%w: zero timestamp", ErrMalformedFrame)
	ErrCoordinateRange  = fmt.Errorf("%w: coordinate out of range", ErrMalformedFrame)
	ErrTruncated        = fmt.Errorf("%w: truncated record data", ErrMalformedFrame)
	ErrTrailingBytes    = fmt.Errorf("%w: trailing bytes after records", ErrMalformedFrame)
	ErrDuplicateID      = fmt.Errorf("%w: repeated io element id", ErrMalformedFrame)
)

// ErrBadHandshake reports an IMEI greeting that cannot be parsed.
var ErrBadHandshake = errors.New("invalid imei handshake")
