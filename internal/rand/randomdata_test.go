package rand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandLetterBytes(t *testing.T) {
	name := LetterString(20)
	require.Len(t, name, 20)
	for _, r := range name {
		assert.Contains(t, "abcdefghijklmnopqrstuvwxyz0123456789", string(r))
	}
}

func TestRepeated(t *testing.T) {
	buf := Repeated(1025, 512)
	require.Len(t, buf, 1025)
	assert.Equal(t, buf[:512], buf[512:1024])
	assert.Equal(t, buf[0], buf[1024])

	assert.Len(t, Repeated(10, 0), 10)
	assert.Empty(t, Repeated(0, 4))
}

func benchmarkRandBytes(b *testing.B, size int) {
	for n := 0; n < b.N; n++ {
		_ = randBytes(size)
	}
}

func BenchmarkRandBytes512(b *testing.B)     { benchmarkRandBytes(b, 512) }
func BenchmarkRandBytes1000000(b *testing.B) { benchmarkRandBytes(b, 1000000) }
