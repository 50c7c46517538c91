package packer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNoDataToUnpack is returned if the buffer does not have any data left to unpack
	ErrNoDataToUnpack = fmt.Errorf("%w: no data", io.EOF)

	// ErrNotAString if no separator after a string is found, the string cannot be unpacked, as there is no string
	ErrNotAString = errors.New("could not unpack string: terminator not found")

	// ErrNotEnoughData is used when the user tries to retrieve more data than there is available.
	ErrNotEnoughData = errors.New("trying to read more data than available")
)

// NewUnpacker constructs a new Unpacker
func NewUnpacker(data []byte) *Unpacker {
	return &Unpacker{data}
}

// Unpacker reads big endian encoded values from a buffer
type Unpacker struct {
	buffer []byte
}

func (u *Unpacker) next(size int) ([]byte, error) {
	if len(u.buffer) == 0 {
		return nil, ErrNoDataToUnpack
	} else if len(u.buffer) < size {
		return nil, fmt.Errorf("%w: requesting %d, got %d", ErrNotEnoughData, size, len(u.buffer))
	}
	b := u.buffer[:size]
	u.buffer = u.buffer[size:]
	return b, nil
}

// NextByte returns the next byte.
func (u *Unpacker) NextByte() (byte, error) {
	b, err := u.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (u *Unpacker) NextUint16() (uint16, error) {
	b, err := u.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (u *Unpacker) NextUint32() (uint32, error) {
	b, err := u.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (u *Unpacker) NextUint64() (uint64, error) {
	b, err := u.next(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// NextString unpacks the next string from the message
func (u *Unpacker) NextString() (s string, err error) {
	if len(u.buffer) == 0 {
		return "", ErrNoDataToUnpack
	}

	i := bytes.IndexByte(u.buffer, StringTerminator)
	if i < 0 {
		return "", ErrNotAString
	}

	s = string(u.buffer[:i])
	u.buffer = u.buffer[i+1:] // skip separator
	return
}
