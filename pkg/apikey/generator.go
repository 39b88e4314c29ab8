package apikey

import (
	"crypto/rand"
	"crypto/sha1"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// Key layout: sak_<7 char checksum>_<96 char random body>.
const (
	keyType      = "sak"
	checksumLen  = 7
	bodyLen      = 96
	saltLen      = 48
	KeyLength    = len(keyType) + 2 + checksumLen + bodyLen
	PrefixLength = len(keyType) + 1 + checksumLen + 1
)

// base58Alphabet drops the visually ambiguous glyphs 0, O, I and l.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// Generator builds and validates API key strings. The zero-value random
// source is crypto/rand.
type Generator struct {
	random io.Reader
}

func NewGenerator() *Generator {
	return &Generator{random: rand.Reader}
}

// NewGeneratorWithRandom exists for deterministic tests.
func NewGeneratorWithRandom(random io.Reader) *Generator {
	return &Generator{random: random}
}

// GenerateKey draws a fresh random key. The checksum segment is derived
// from the body, so a key validates offline via IsWellFormed.
func (g *Generator) GenerateKey() (string, error) {
	body, err := g.randomString(bodyLen)
	if err != nil {
		return "", fmt.Errorf("generating key body: %w", err)
	}
	return keyType + "_" + checksum(body) + "_" + body, nil
}

// GenerateSalt draws the per-key hashing salt.
func (g *Generator) GenerateSalt() (string, error) {
	salt, err := g.randomString(saltLen)
	if err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

func (g *Generator) randomString(n int) (string, error) {
	random := g.random
	if random == nil {
		random = rand.Reader
	}
	max := big.NewInt(int64(len(base58Alphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(random, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(base58Alphabet[idx.Int64()])
	}
	return b.String(), nil
}

// IsWellFormed reports whether the candidate has the exact shape of a
// generated key, including a valid checksum. Pure, no I/O; used to reject
// arbitrary bearer tokens before any storage lookup.
func IsWellFormed(candidate string) bool {
	if len(candidate) != KeyLength {
		return false
	}
	if !strings.HasPrefix(candidate, keyType+"_") {
		return false
	}
	sumStart := len(keyType) + 1
	bodyStart := sumStart + checksumLen + 1
	if candidate[bodyStart-1] != '_' {
		return false
	}
	sum := candidate[sumStart : sumStart+checksumLen]
	body := candidate[bodyStart:]
	if !allBase58(sum) || !allBase58(body) {
		return false
	}
	return checksum(body) == sum
}

// ExtractPrefix returns the stored-lookup prefix of a key: the type and
// checksum segments including both separators.
func ExtractPrefix(key string) string {
	if len(key) < PrefixLength {
		return ""
	}
	return key[:PrefixLength]
}

func allBase58(s string) bool {
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(base58Alphabet, rune(s[i])) {
			return false
		}
	}
	return true
}

// checksum is base58(sha1(body)) truncated to the checksum segment length.
func checksum(body string) string {
	digest := sha1.Sum([]byte(body))
	encoded := encodeBase58(digest[:])
	return encoded[:checksumLen]
}

// encodeBase58 renders raw bytes in the bitcoin base58 style. A sha1 digest
// always encodes to well over the checksum length, so truncation is safe.
func encodeBase58(data []byte) string {
	n := new(big.Int).SetBytes(data)
	radix := big.NewInt(int64(len(base58Alphabet)))
	mod := new(big.Int)

	var out []byte
	for n.Sign() > 0 {
		n.DivMod(n, radix, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	for _, b := range data {
		if b != 0 {
			break
		}
		out = append(out, base58Alphabet[0])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
