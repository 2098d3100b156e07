// Package fingerprint computes the fixed-width content hashes used as a cheap
// proxy for entry equality. None of the algorithms are cryptographic; a
// collision makes two different contents look unchanged, which is accepted.
package fingerprint

import (
	"fmt"
	"hash"
	"hash/adler32"
	"io"
	"strconv"
	"strings"

	"github.com/minio/highwayhash"
	"github.com/zeebo/xxh3"
)

// Fingerprint is a content hash widened to 64 bits. Narrower algorithms
// (Adler-32) occupy the low bits.
type Fingerprint uint64

// String renders the fingerprint as 16 lowercase hex digits.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// MarshalText encodes the fingerprint as hex so JSON consumers do not lose
// precision on 64-bit values.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText parses the hex form written by MarshalText.
func (f *Fingerprint) UnmarshalText(b []byte) error {
	v, err := strconv.ParseUint(string(b), 16, 64)
	if err != nil {
		return fmt.Errorf("fingerprint %q: %w", b, err)
	}
	*f = Fingerprint(v)
	return nil
}

// Algorithm names a hash function.
type Algorithm string

const (
	// Adler32 is the RFC 1950 checksum (rolling sum-of-sums). Empty input
	// hashes to 1.
	Adler32 Algorithm = "adler32"
	// Highway64 is HighwayHash-64 keyed with a fixed, public key.
	Highway64 Algorithm = "highway64"
	// XXH3 is the 64-bit XXH3 hash.
	XXH3 Algorithm = "xxh3"

	// Default is the algorithm used when none is configured.
	Default = Adler32
)

// highwayKey is fixed so fingerprints are comparable across runs and hosts.
var highwayKey = []byte("zimcompare-fingerprint-key-00001")

// Algorithms lists the supported algorithms in a stable order.
func Algorithms() []Algorithm {
	return []Algorithm{Adler32, Highway64, XXH3}
}

// Parse resolves a user-supplied algorithm name (case-insensitive).
// The empty string selects Default.
func Parse(s string) (Algorithm, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Default, nil
	}
	for _, a := range Algorithms() {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown fingerprint algorithm %q (want one of %s)", s, joinAlgorithms())
}

func joinAlgorithms() string {
	names := make([]string, 0, 3)
	for _, a := range Algorithms() {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}

// Hasher is a streaming hash producing a Fingerprint.
type Hasher interface {
	io.Writer
	Sum64() uint64
	Reset()
}

type adlerHasher struct{ hash.Hash32 }

func (a adlerHasher) Sum64() uint64 { return uint64(a.Sum32()) }

// New returns a fresh streaming hasher for the algorithm.
func (a Algorithm) New() (Hasher, error) {
	switch a {
	case Adler32, "":
		return adlerHasher{adler32.New()}, nil
	case Highway64:
		h, err := highwayhash.New64(highwayKey)
		if err != nil {
			return nil, err
		}
		return h, nil
	case XXH3:
		return xxh3.New(), nil
	default:
		return nil, fmt.Errorf("unknown fingerprint algorithm %q", string(a))
	}
}

// Sum hashes data in one shot.
func (a Algorithm) Sum(data []byte) (Fingerprint, error) {
	h, err := a.New()
	if err != nil {
		return 0, err
	}
	_, _ = h.Write(data)
	return Of(h), nil
}

// Of returns the current value of h.
func Of(h Hasher) Fingerprint {
	return Fingerprint(h.Sum64())
}

// Reader streams r into a fresh hasher and returns the fingerprint together
// with the number of bytes consumed. A read error is returned as is; the
// partial fingerprint is meaningless in that case.
func (a Algorithm) Reader(r io.Reader) (Fingerprint, int64, error) {
	h, err := a.New()
	if err != nil {
		return 0, 0, err
	}
	n, err := io.Copy(h, r)
	if err != nil {
		return 0, n, err
	}
	return Of(h), n, nil
}
