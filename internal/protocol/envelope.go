// Package protocol defines the envelope that carries one encrypted packet
// over a peer stream.
package protocol

import (
	"errors"
	"fmt"
)

// Version is the only envelope version this build understands.
const Version uint8 = 0x01

// HeaderSize is the fixed header size: Version(1) + Length(4).
const HeaderSize = 5

// MaxPayloadSize bounds the length field. Anything larger means the stream
// has lost alignment.
const MaxPayloadSize = 64*1024 - 1

// Envelope is one relayed payload after encryption.
type Envelope struct {
	Data []byte
}

// Sentinel causes wrapped by FormatError.
var (
	ErrTruncated      = errors.New("envelope truncated")
	ErrTooLarge       = errors.New("envelope length exceeds limit")
	ErrBadVersion     = errors.New("unknown envelope version")
	ErrLengthMismatch = errors.New("envelope length does not match frame")
)

// FormatError reports a malformed or truncated envelope.
type FormatError struct {
	Err    error
	Detail string
}

func (e *FormatError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("format error: %v", e.Err)
	}
	return fmt.Sprintf("format error: %v (%s)", e.Err, e.Detail)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Recoverable reports whether the stream is still aligned on an envelope
// boundary after this error, so the reader may continue with the next one.
func (e *FormatError) Recoverable() bool {
	return errors.Is(e.Err, ErrBadVersion)
}

func formatErr(err error, format string, args ...interface{}) *FormatError {
	return &FormatError{Err: err, Detail: fmt.Sprintf(format, args...)}
}
