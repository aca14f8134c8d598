package hash

import (
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC32C(t *testing.T) {
	// Known vector from RFC 3720 (iSCSI): "123456789" -> 0xE3069283
	sum := CRC32C([]byte("123456789"))
	assert.Equal(t, uint32(0xE3069283), sum)

	h := NewCRC32C()
	_, err := h.Write([]byte("1234"))
	require.NoError(t, err)
	_, err = h.Write([]byte("56789"))
	require.NoError(t, err)
	assert.Equal(t, sum, h.Sum32())
}

func TestFNV1a64_MatchesStdlib(t *testing.T) {
	for _, s := range []string{"", "a", "cat", "data", "science", "2024", "längere"} {
		h := fnv.New64a()
		_, _ = h.Write([]byte(s))
		assert.Equal(t, h.Sum64(), FNV1a64(s), "input %q", s)
	}
}

func TestFNV1a64_Stable(t *testing.T) {
	assert.Equal(t, FNV1a64("term"), FNV1a64("term"))
	assert.NotEqual(t, FNV1a64("term"), FNV1a64("Term"))
}
