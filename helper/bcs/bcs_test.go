package bcs

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadULEB128(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input []byte
		value uint64
		err   error
	}{
		{"zero", []byte{0x00}, 0, nil},
		{"one byte max", []byte{0x7f}, 127, nil},
		{"two bytes", []byte{0x80, 0x01}, 128, nil},
		{"u32 max", []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xffffffff, nil},
		{"padded zero", []byte{0x80, 0x00}, 0, ErrNonCanonical},
		{"padded value", []byte{0xff, 0x80, 0x00}, 0, ErrNonCanonical},
		{"above u32", []byte{0xff, 0xff, 0xff, 0xff, 0x1f}, 0, ErrULEBOverflow},
		{"six bytes", []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}, 0, ErrULEBOverflow},
		{"truncated", []byte{0x80}, 0, ErrUnexpectedEOF},
		{"empty", nil, 0, ErrUnexpectedEOF},
	}

	for _, c := range cases {
		c := c

		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			v, err := NewDecoder(c.input).ReadULEB128()
			if c.err != nil {
				assert.ErrorIs(t, err, c.err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, c.value, v)
		})
	}
}

func TestULEB128Encoding(t *testing.T) {
	t.Parallel()

	for _, v := range []uint64{0, 1, 127, 128, 300, 16_383, 16_384, 1 << 28, 0xffffffff} {
		e := NewEncoder()
		e.WriteULEB128(v)

		assert.Equal(t, ULEB128Size(v), e.Len(), v)

		d := NewDecoder(e.Bytes())

		got, err := d.ReadULEB128()
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.NoError(t, d.Finish())
	}
}

func TestReadLength(t *testing.T) {
	t.Parallel()

	n, err := NewDecoder([]byte{0xff, 0xff, 0xff, 0xff, 0x07}).ReadLength()
	require.NoError(t, err)
	assert.Equal(t, MaxSequenceLength, n)

	_, err = NewDecoder([]byte{0x80, 0x80, 0x80, 0x80, 0x08}).ReadLength()
	assert.ErrorIs(t, err, ErrULEBOverflow)

	// a length prefix larger than the input fails without allocating it
	_, err = NewDecoder([]byte{0xff, 0xff, 0xff, 0xff, 0x07, 0x01}).ReadBytes()
	assert.ErrorIs(t, err, ErrUnexpectedEOF)

	_, err = NewDecoder([]byte{0x05, 'a', 'b'}).ReadString()
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestDecoderPrimitives(t *testing.T) {
	t.Parallel()

	e := NewEncoder()
	e.WriteBool(true)
	e.WriteU8(7)
	e.WriteU16(0x0102)
	e.WriteU32(0x01020304)
	e.WriteU64(0x0102030405060708)
	e.WriteString("coin")
	e.WriteOption(true, func(e *Encoder) { e.WriteU8(9) })
	e.WriteOption(false, nil)

	d := NewDecoder(e.Bytes())

	b, err := d.ReadBool()
	require.NoError(t, err)
	assert.True(t, b)

	u8, err := d.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(7), u8)

	u16, err := d.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), u16)

	u32, err := d.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01020304), u32)

	u64, err := d.ReadU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), u64)

	s, err := d.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "coin", s)

	var inner uint8

	present, err := d.ReadOption(func(d *Decoder) error {
		inner, err = d.ReadU8()

		return err
	})
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, uint8(9), inner)

	present, err = d.ReadOption(func(*Decoder) error {
		t.Fatal("absent option was read")

		return nil
	})
	require.NoError(t, err)
	assert.False(t, present)

	assert.NoError(t, d.Finish())

	_, err = d.ReadU8()
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestDecoderErrors(t *testing.T) {
	t.Parallel()

	_, err := NewDecoder([]byte{0x02}).ReadBool()
	assert.ErrorIs(t, err, ErrInvalidBool)

	_, err = NewDecoder([]byte{1, 2, 3}).ReadU64()
	assert.ErrorIs(t, err, ErrUnexpectedEOF)

	_, err = NewDecoder([]byte{1}).ReadFixedBytes(-1)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)

	d := NewDecoder([]byte{1, 2})

	_, err = d.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, 1, d.Offset())
	assert.Equal(t, 1, d.Remaining())
	assert.ErrorIs(t, d.Finish(), ErrTrailingBytes)
}

func TestReadFixedBytesCopies(t *testing.T) {
	t.Parallel()

	raw := []byte{1, 2, 3}

	b, err := NewDecoder(raw).ReadFixedBytes(3)
	require.NoError(t, err)

	raw[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, b)
}

func TestBigUint(t *testing.T) {
	t.Parallel()

	v, ok := new(big.Int).SetString("0102030405060708090a0b0c0d0e0f10", 16)
	require.True(t, ok)

	e := NewEncoder()
	require.NoError(t, e.WriteBigUint(v, 16))
	assert.Equal(t, byte(0x10), e.Bytes()[0])

	got, err := NewDecoder(e.Bytes()).ReadBigUint(16)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Cmp(got))

	assert.ErrorIs(t, NewEncoder().WriteBigUint(v, 8), ErrIntegerTooLarge)
	assert.ErrorIs(t, NewEncoder().WriteBigUint(big.NewInt(-1), 8), ErrIntegerTooLarge)
}
