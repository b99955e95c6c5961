package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"strings"
)

// Algorithm names a content hash as the API spells it.
type Algorithm string

const (
	SHA256 Algorithm = "SHA256"
	// AutoV2 is the first 10 hex characters of the SHA256 digest.
	AutoV2 Algorithm = "AutoV2"
	CRC32  Algorithm = "CRC32"
)

// preference lists supported algorithms strongest first.
var preference = []Algorithm{SHA256, AutoV2, CRC32}

// Hash is an expected digest. The zero value means "do not verify".
type Hash struct {
	Algorithm Algorithm
	Hex       string
}

// IsZero reports whether no digest is set.
func (h Hash) IsZero() bool { return h.Hex == "" }

// SelectHash picks the strongest supported digest from an API hash map.
// Keys are matched case-insensitively.
func SelectHash(hashes map[string]string) Hash {
	for _, alg := range preference {
		for k, v := range hashes {
			if strings.EqualFold(k, string(alg)) && strings.TrimSpace(v) != "" {
				return Hash{Algorithm: alg, Hex: strings.TrimSpace(v)}
			}
		}
	}
	return Hash{}
}

// Verification is the outcome of a post-transfer hash check.
type Verification struct {
	Algorithm Algorithm
	Expected  string
	Actual    string
	// Checked is false when no expected hash was available.
	Checked bool
	OK      bool
}

// Mismatch returns a HashMismatchError for a failed check, nil otherwise.
func (v Verification) Mismatch(path string) error {
	if !v.Checked || v.OK {
		return nil
	}
	return &HashMismatchError{Path: path, Algorithm: v.Algorithm, Expected: v.Expected, Actual: v.Actual}
}

// FileDigest hashes the file at path with alg and returns lower-case hex.
func FileDigest(path string, alg Algorithm) (string, error) {
	var h hash.Hash
	switch alg {
	case SHA256, AutoV2:
		h = sha256.New()
	case CRC32:
		h = crc32.NewIEEE()
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", alg)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if alg == AutoV2 {
		sum = sum[:10]
	}
	return sum, nil
}

// VerifyFile compares the digest of path against want, ignoring case.
func VerifyFile(path string, want Hash) (Verification, error) {
	v := Verification{Algorithm: want.Algorithm, Expected: want.Hex}
	if want.IsZero() {
		return v, nil
	}
	got, err := FileDigest(path, want.Algorithm)
	if err != nil {
		return v, err
	}
	v.Checked = true
	v.Actual = got
	v.OK = strings.EqualFold(got, want.Hex)
	return v, nil
}
