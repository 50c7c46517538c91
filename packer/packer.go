package packer

import "encoding/binary"

const (
	// StringTerminator is the zero byte that terminates the string
	StringTerminator byte = 0

	// with how many bytes the packer is initialized
	PackerBufferSize = 256
)

// NewPacker ceates a new Packer with a given default buffer size.
// You can provide ONE optional buffer that is used instead of the default one
func NewPacker(buf ...[]byte) *Packer {
	var internalBuf []byte
	if len(buf) > 0 {
		internalBuf = buf[0]
	} else {
		internalBuf = make([]byte, 0, PackerBufferSize)
	}

	return &Packer{
		buffer: internalBuf,
	}
}

// Packer appends big endian encoded values to a buffer
type Packer struct {
	buffer []byte
}

// Bytes returns the underlying buffer
func (p *Packer) Bytes() []byte {
	return p.buffer
}

func (p *Packer) AddByte(b byte) {
	p.buffer = append(p.buffer, b)
}

func (p *Packer) AddUint16(i uint16) {
	p.buffer = binary.BigEndian.AppendUint16(p.buffer, i)
}

func (p *Packer) AddUint32(i uint32) {
	p.buffer = binary.BigEndian.AppendUint32(p.buffer, i)
}

func (p *Packer) AddUint64(i uint64) {
	p.buffer = binary.BigEndian.AppendUint64(p.buffer, i)
}

// AddString appends the string followed by a StringTerminator.
// The string itself must not contain a StringTerminator.
func (p *Packer) AddString(s string) {
	p.buffer = append(p.buffer, s...)
	p.buffer = append(p.buffer, StringTerminator)
}
