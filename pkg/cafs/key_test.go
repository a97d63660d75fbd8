package cafs

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sha3-256("abc")
const testKey = "3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532"

func TestKey_FailsOnIncorrectSize(t *testing.T) {
	data1 := make([]byte, 31)
	data2 := make([]byte, 33)
	data3 := make([]byte, 32)

	_, err := rand.Read(data1)
	require.NoError(t, err)
	_, err = rand.Read(data2)
	require.NoError(t, err)
	_, err = rand.Read(data3)
	require.NoError(t, err)

	_, err = NewKey(data1)
	require.Error(t, err)
	var bad *BadKeySize
	require.ErrorAs(t, err, &bad)

	_, err = NewKey(data2)
	require.Error(t, err)

	k, err := NewKey(data3)
	require.NoError(t, err)
	assert.Len(t, k, KeySize)

	assert.Panics(t, func() { MustNewKey(data1) })
	assert.NotPanics(t, func() { MustNewKey(data3) })
}

func TestKey_Succeeds(t *testing.T) {
	data, err := hex.DecodeString(testKey)
	require.NoError(t, err)

	key, err := NewKey(data)
	require.NoError(t, err)
	assert.Equal(t, testKey, key.String())
	assert.Len(t, key.String(), KeySizeHex)
	assert.Equal(t, "blobs/"+testKey, key.StringWithPrefix("blobs/"))

	parsed, err := KeyFromString(testKey)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(key))
	assert.False(t, parsed.IsZero())
	assert.True(t, Key{}.IsZero())
}

func TestKey_StringIsZeroPadded(t *testing.T) {
	var k Key
	k[0] = 0x0a
	k[31] = 0x01
	s := k.String()
	assert.Equal(t, "0a", s[:2])
	assert.Equal(t, "01", s[len(s)-2:])
	assert.Len(t, s, KeySizeHex)
}

func TestKeyFromString_Errors(t *testing.T) {
	_, err := KeyFromString("abc")
	require.Error(t, err)

	_, err = KeyFromString(string(make([]byte, KeySizeHex)))
	require.Error(t, err)
}

func TestUniqueKeys(t *testing.T) {
	a, b, c := Hash([]byte("a")), Hash([]byte("b")), Hash([]byte("c"))
	assert.Equal(t, []Key{a, b, c}, UniqueKeys([]Key{a, b, a, c, b}))
	assert.Empty(t, UniqueKeys(nil))
}
