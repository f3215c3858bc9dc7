package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// AddressLength is the size of an address or object ID in bytes
	AddressLength = 32

	canonicalHexLength = AddressLength * 2
)

var (
	ErrEmptyAddress   = errors.New("empty address")
	ErrAddressTooLong = errors.New("address longer than 32 bytes")
	ErrInvalidHex     = errors.New("invalid hex in address")
)

// Address is a 32-byte account address or object identifier
type Address [AddressLength]byte

// ObjectID identifies an object. It shares the address space.
type ObjectID = Address

var (
	ZeroAddress      = Address{}
	StdlibAddress    = addressFromUint(0x1)
	FrameworkAddress = addressFromUint(0x2)
	SystemAddress    = addressFromUint(0x3)
	ClockObjectID    = addressFromUint(0x6)
	RandomObjectID   = addressFromUint(0x8)
)

func addressFromUint(v uint64) Address {
	var a Address
	for i := 0; i < 8; i++ {
		a[AddressLength-1-i] = byte(v >> (8 * i))
	}

	return a
}

// ParseAddress accepts canonical and short forms, with or without 0x
func ParseAddress(s string) (Address, error) {
	var a Address

	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")

	if raw == "" {
		return a, ErrEmptyAddress
	}

	if len(raw) > canonicalHexLength {
		return a, fmt.Errorf("%w: %q", ErrAddressTooLong, s)
	}

	padded := strings.Repeat("0", canonicalHexLength-len(raw)) + strings.ToLower(raw)

	b, err := hex.DecodeString(padded)
	if err != nil {
		return a, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}

	copy(a[:], b)

	return a, nil
}

// MustParseAddress panics on malformed input. Intended for constants.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}

	return a
}

// NormalizeAddress returns "0x" followed by 64 lowercase hex characters
func NormalizeAddress(s string) (string, error) {
	a, err := ParseAddress(s)
	if err != nil {
		return "", err
	}

	return a.String(), nil
}

// BytesToAddress left-pads b into an address, keeping the last 32 bytes
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}

	copy(a[AddressLength-len(b):], b)

	return a
}

// String returns the canonical form
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// ShortString trims leading zeroes, e.g. 0x2 for the framework
func (a Address) ShortString() string {
	s := strings.TrimLeft(hex.EncodeToString(a[:]), "0")
	if s == "" {
		s = "0"
	}

	return "0x" + s
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// IsFramework reports whether a is one of the system package addresses
func (a Address) IsFramework() bool {
	return a == StdlibAddress || a == FrameworkAddress || a == SystemAddress
}

// IsFrameworkAddress is the string form of Address.IsFramework
func IsFrameworkAddress(s string) bool {
	a, err := ParseAddress(s)
	if err != nil {
		return false
	}

	return a.IsFramework()
}

// Less orders addresses by canonical form
func (a Address) Less(b Address) bool {
	for i := 0; i < AddressLength; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}

	return false
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}
