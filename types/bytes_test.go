package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCopyBytes(t *testing.T) {
	t.Parallel()

	assert.Nil(t, CopyBytes(nil))
	assert.Equal(t, []byte{}, CopyBytes([]byte{}))

	src := []byte{0xa1, 0x1c, 0xeb, 0x0b}
	dst := CopyBytes(src)
	assert.Equal(t, src, dst)

	dst[0] = 0
	assert.Equal(t, byte(0xa1), src[0])
}
