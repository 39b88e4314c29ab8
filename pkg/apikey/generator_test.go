package apikey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyShape(t *testing.T) {
	gen := NewGenerator()
	key, err := gen.GenerateKey()
	require.NoError(t, err)

	assert.Len(t, key, KeyLength)
	assert.True(t, strings.HasPrefix(key, "sak_"))
	parts := strings.Split(key, "_")
	require.Len(t, parts, 3)
	assert.Len(t, parts[1], 7)
	assert.Len(t, parts[2], 96)
}

func TestGeneratedKeysAreWellFormed(t *testing.T) {
	gen := NewGenerator()
	for i := 0; i < 20; i++ {
		key, err := gen.GenerateKey()
		require.NoError(t, err)
		assert.True(t, IsWellFormed(key))
	}
}

func TestGeneratedKeysAreUnique(t *testing.T) {
	gen := NewGenerator()
	a, err := gen.GenerateKey()
	require.NoError(t, err)
	b, err := gen.GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestIsWellFormedRejectsTampering(t *testing.T) {
	gen := NewGenerator()
	key, err := gen.GenerateKey()
	require.NoError(t, err)

	// Flip one body character to a different alphabet member
	last := key[len(key)-1]
	replacement := byte('2')
	if last == replacement {
		replacement = '3'
	}
	tampered := key[:len(key)-1] + string(replacement)
	assert.False(t, IsWellFormed(tampered), "checksum must catch a body edit")
}

func TestIsWellFormedRejectsGarbage(t *testing.T) {
	cases := []struct {
		name      string
		candidate string
	}{
		{"empty", ""},
		{"short", "sak_abc"},
		{"wrong type", "tok_" + strings.Repeat("a", 104)},
		{"wrong separator", "sak_aaaaaaa." + strings.Repeat("a", 96)},
		{"excluded glyphs", "sak_O0Il000_" + strings.Repeat("a", 96)},
		{"bearer token", strings.Repeat("x", KeyLength)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, IsWellFormed(tc.candidate))
		})
	}
}

func TestExtractPrefix(t *testing.T) {
	gen := NewGenerator()
	key, err := gen.GenerateKey()
	require.NoError(t, err)

	prefix := ExtractPrefix(key)
	assert.Len(t, prefix, PrefixLength)
	assert.True(t, strings.HasPrefix(key, prefix))
	assert.True(t, strings.HasSuffix(prefix, "_"))

	assert.Empty(t, ExtractPrefix("short"))
}

func TestChecksumIsDeterministic(t *testing.T) {
	body := strings.Repeat("a", 96)
	assert.Equal(t, checksum(body), checksum(body))
	assert.NotEqual(t, checksum(body), checksum(strings.Repeat("b", 96)))
}

func TestGenerateSalt(t *testing.T) {
	gen := NewGenerator()
	salt, err := gen.GenerateSalt()
	require.NoError(t, err)
	assert.Len(t, salt, 48)
	assert.True(t, allBase58(salt))
}

func TestHashKey(t *testing.T) {
	hash := HashKey("salt", "key")
	assert.Len(t, hash, 64, "hex encoded sha3-256")
	assert.Equal(t, hash, HashKey("salt", "key"))
	assert.NotEqual(t, hash, HashKey("other", "key"), "salt must change the hash")
	assert.NotEqual(t, hash, HashKey("salt", "other"))
}
