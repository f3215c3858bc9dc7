// Package bcs implements the Binary Canonical Serialization primitives used
// for Move values: little-endian fixed-width integers, ULEB128 lengths and
// length-prefixed byte strings.
package bcs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrUnexpectedEOF   = errors.New("bcs: unexpected end of input")
	ErrInvalidBool     = errors.New("bcs: invalid bool encoding")
	ErrULEBOverflow    = errors.New("bcs: uleb128 overflows u32")
	ErrNonCanonical    = errors.New("bcs: non-canonical uleb128")
	ErrTrailingBytes   = errors.New("bcs: trailing bytes")
	ErrIntegerTooLarge = errors.New("bcs: integer does not fit width")
)

// MaxSequenceLength bounds every length prefix
const MaxSequenceLength = (1 << 31) - 1

// Encoder accumulates BCS bytes
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 64)}
}

// Bytes returns the encoded bytes
func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) Len() int {
	return len(e.buf)
}

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

func (e *Encoder) WriteU8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) WriteU16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *Encoder) WriteU32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) WriteU64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// WriteBigUint writes v as an unsigned little-endian integer of size bytes
func (e *Encoder) WriteBigUint(v *big.Int, size int) error {
	if v.Sign() < 0 || v.BitLen() > size*8 {
		return ErrIntegerTooLarge
	}

	be := v.FillBytes(make([]byte, size))
	for i := len(be) - 1; i >= 0; i-- {
		e.buf = append(e.buf, be[i])
	}

	return nil
}

// WriteULEB128 writes a variable-length unsigned integer
func (e *Encoder) WriteULEB128(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7

		if v == 0 {
			e.buf = append(e.buf, b)

			return
		}

		e.buf = append(e.buf, b|0x80)
	}
}

// WriteFixedBytes writes raw bytes without a length prefix
func (e *Encoder) WriteFixedBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

// WriteBytes writes a length-prefixed byte string
func (e *Encoder) WriteBytes(b []byte) {
	e.WriteULEB128(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *Encoder) WriteString(s string) {
	e.WriteBytes([]byte(s))
}

// WriteOption writes the option tag and, when present, calls write
func (e *Encoder) WriteOption(present bool, write func(*Encoder)) {
	e.WriteBool(present)

	if present {
		write(e)
	}
}

// Decoder consumes BCS bytes
type Decoder struct {
	buf []byte
	off int
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Offset returns the number of bytes consumed so far
func (d *Decoder) Offset() int {
	return d.off
}

// Remaining returns the number of unread bytes
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

// Finish fails if there are unread bytes
func (d *Decoder) Finish() error {
	if d.Remaining() != 0 {
		return fmt.Errorf("%w: %d", ErrTrailingBytes, d.Remaining())
	}

	return nil
}

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, ErrUnexpectedEOF
	}

	b := d.buf[d.off : d.off+n]
	d.off += n

	return b, nil
}

func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.take(1)
	if err != nil {
		return false, err
	}

	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrInvalidBool
	}
}

func (d *Decoder) ReadU8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

func (d *Decoder) ReadU16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(b), nil
}

func (d *Decoder) ReadU32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) ReadU64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b), nil
}

// ReadBigUint reads an unsigned little-endian integer of size bytes
func (d *Decoder) ReadBigUint(size int) (*big.Int, error) {
	b, err := d.take(size)
	if err != nil {
		return nil, err
	}

	be := make([]byte, size)
	for i := 0; i < size; i++ {
		be[size-1-i] = b[i]
	}

	return new(big.Int).SetBytes(be), nil
}

// ReadULEB128 reads a variable-length unsigned integer bounded to u32
func (d *Decoder) ReadULEB128() (uint64, error) {
	var (
		value uint64
		shift uint
	)

	for {
		b, err := d.ReadU8()
		if err != nil {
			return 0, err
		}

		digit := uint64(b & 0x7f)
		value |= digit << shift

		if value > 0xffffffff {
			return 0, ErrULEBOverflow
		}

		if b&0x80 == 0 {
			if shift > 0 && digit == 0 {
				return 0, ErrNonCanonical
			}

			return value, nil
		}

		shift += 7
		if shift > 28 {
			return 0, ErrULEBOverflow
		}
	}
}

// ReadLength reads a sequence length prefix
func (d *Decoder) ReadLength() (int, error) {
	n, err := d.ReadULEB128()
	if err != nil {
		return 0, err
	}

	if n > MaxSequenceLength {
		return 0, ErrULEBOverflow
	}

	return int(n), nil
}

// ReadFixedBytes reads n raw bytes; the result is a copy
func (d *Decoder) ReadFixedBytes(n int) ([]byte, error) {
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}

	out := make([]byte, n)
	copy(out, b)

	return out, nil
}

// ReadBytes reads a length-prefixed byte string
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadLength()
	if err != nil {
		return nil, err
	}

	return d.ReadFixedBytes(n)
}

func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// ReadOption reads the option tag and, when present, calls read
func (d *Decoder) ReadOption(read func(*Decoder) error) (bool, error) {
	present, err := d.ReadBool()
	if err != nil || !present {
		return false, err
	}

	return true, read(d)
}

// EncodeU64 is a shorthand for the BCS encoding of a u64
func EncodeU64(v uint64) []byte {
	e := NewEncoder()
	e.WriteU64(v)

	return e.Bytes()
}

// ULEB128Size returns the encoded size of v
func ULEB128Size(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}

	return n
}
