package types

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const DigestLength = 32

var ErrInvalidDigest = errors.New("invalid digest")

// Digest is a 32-byte hash rendered in base58
type Digest [DigestLength]byte

var ZeroDigest = Digest{}

func ParseDigest(s string) (Digest, error) {
	var d Digest

	b, err := base58.Decode(s)
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}

	if len(b) != DigestLength {
		return d, fmt.Errorf("%w: length %d", ErrInvalidDigest, len(b))
	}

	copy(d[:], b)

	return d, nil
}

func (d Digest) String() string {
	return base58.Encode(d[:])
}

func (d Digest) IsZero() bool {
	return d == ZeroDigest
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = ZeroDigest

		return nil
	}

	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}

	*d = parsed

	return nil
}

// Blake2b256 hashes the concatenation of parts
func Blake2b256(parts ...[]byte) [32]byte {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}

	var out [32]byte

	copy(out[:], h.Sum(nil))

	return out
}
