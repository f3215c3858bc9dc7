package types

// CopyBytes returns an exact copy of the provided bytes. Object contents
// and module bytecode are copied at every store boundary so callers
// cannot mutate cached values.
func CopyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}

	out := make([]byte, len(b))
	copy(out, b)

	return out
}
