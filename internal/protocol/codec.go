package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

// Encode serializes a payload into a self-delimiting envelope frame.
func Encode(data []byte) []byte {
	buf := make([]byte, HeaderSize+len(data))
	buf[0] = Version
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(data)))
	copy(buf[HeaderSize:], data)
	return buf
}

// Decode validates a complete frame and returns a copy of its payload.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < HeaderSize {
		return nil, formatErr(ErrTruncated, "%d bytes, need at least %d", len(frame), HeaderSize)
	}
	length := binary.BigEndian.Uint32(frame[1:5])
	if length > MaxPayloadSize {
		return nil, formatErr(ErrTooLarge, "length %d", length)
	}
	if int(length) != len(frame)-HeaderSize {
		if int(length) > len(frame)-HeaderSize {
			return nil, formatErr(ErrTruncated, "length %d, have %d", length, len(frame)-HeaderSize)
		}
		return nil, formatErr(ErrLengthMismatch, "length %d, have %d", length, len(frame)-HeaderSize)
	}
	if frame[0] != Version {
		return nil, formatErr(ErrBadVersion, "version 0x%02x", frame[0])
	}
	data := make([]byte, length)
	copy(data, frame[HeaderSize:])
	return data, nil
}

// ReadEnvelope reads exactly one envelope from r and returns its payload.
//
// io.EOF is returned unchanged only when the stream ends cleanly between two
// envelopes; an EOF inside a frame is reported as a FormatError wrapping
// ErrTruncated.
func ReadEnvelope(r io.Reader) ([]byte, error) {
	var hdr [HeaderSize]byte
	if n, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, formatErr(ErrTruncated, "header cut after %d bytes", n)
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(hdr[1:5])
	if length > MaxPayloadSize {
		return nil, formatErr(ErrTooLarge, "length %d", length)
	}

	frame := make([]byte, HeaderSize+int(length))
	copy(frame, hdr[:])
	if n, err := io.ReadFull(r, frame[HeaderSize:]); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, formatErr(ErrTruncated, "body cut after %d of %d bytes", n, length)
		}
		return nil, err
	}
	return Decode(frame)
}

// WriteEnvelope encodes data and writes the whole frame with a single Write,
// so message-oriented transports carry exactly one envelope per message.
func WriteEnvelope(w io.Writer, data []byte) error {
	if len(data) > MaxPayloadSize {
		return formatErr(ErrTooLarge, "length %d", len(data))
	}
	_, err := w.Write(Encode(data))
	return err
}
