// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"crypto/sha1" //nolint:gosec // legacy npm shasum, only used when no SRI digest is published
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
)

var (
	// ErrIntegrityMismatch indicates a downloaded tarball does not match its published digest.
	ErrIntegrityMismatch = errors.New("integrity mismatch")

	// ErrNoIntegrity indicates the registry published neither an SRI digest nor a shasum.
	ErrNoIntegrity = errors.New("no integrity metadata published")
)

type (
	// IntegrityError describes a digest mismatch for a tarball.
	// It wraps ErrIntegrityMismatch so callers can use errors.Is for classification.
	IntegrityError struct {
		Resource  string
		Algorithm string
		Expected  string
		Got       string
	}

	// Verifier hashes a tarball as it is written and checks it against the
	// digest published in Dist.
	Verifier struct {
		algorithm string
		expected  []byte
		encode    func([]byte) string
		h         hash.Hash
	}
)

// algorithms lists supported SRI algorithms, strongest first.
var algorithms = []struct {
	name string
	new  func() hash.Hash
}{
	{"sha512", sha512.New},
	{"sha384", sha512.New384},
	{"sha256", sha256.New},
	{"sha1", sha1.New},
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s (%s)\nExpected: %s\nGot:      %s",
		e.Resource, e.Algorithm, e.Expected, e.Got)
}

// Unwrap returns ErrIntegrityMismatch so callers can use errors.Is.
func (e *IntegrityError) Unwrap() error { return ErrIntegrityMismatch }

// NewVerifier picks the strongest digest available in dist. SRI strings may
// list several space-separated digests; unknown algorithms are skipped.
// The hex shasum is used only when no usable SRI digest exists.
func NewVerifier(dist Dist) (*Verifier, error) {
	if v := parseSRI(dist.Integrity); v != nil {
		return v, nil
	}

	if sum := strings.TrimSpace(dist.Shasum); sum != "" {
		raw, err := hex.DecodeString(sum)
		if err != nil || len(raw) != sha1.Size {
			return nil, fmt.Errorf("malformed shasum %q", sum)
		}
		return &Verifier{algorithm: "sha1", expected: raw, encode: hex.EncodeToString, h: sha1.New()}, nil
	}

	if strings.TrimSpace(dist.Integrity) != "" {
		return nil, fmt.Errorf("unsupported integrity %q", dist.Integrity)
	}
	return nil, ErrNoIntegrity
}

func parseSRI(integrity string) *Verifier {
	digests := make(map[string][]byte)
	for _, field := range strings.Fields(integrity) {
		algo, encoded, ok := strings.Cut(field, "-")
		if !ok {
			continue
		}
		// Options after '?' are reserved by SRI and ignored.
		encoded, _, _ = strings.Cut(encoded, "?")
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}
		digests[strings.ToLower(algo)] = raw
	}

	for _, a := range algorithms {
		raw, ok := digests[a.name]
		if !ok {
			continue
		}
		h := a.new()
		if len(raw) != h.Size() {
			continue
		}
		return &Verifier{algorithm: a.name, expected: raw, encode: base64.StdEncoding.EncodeToString, h: h}
	}
	return nil
}

// Algorithm returns the digest algorithm in use.
func (v *Verifier) Algorithm() string { return v.algorithm }

// Write feeds tarball bytes into the digest.
func (v *Verifier) Write(p []byte) (int, error) { return v.h.Write(p) }

// Verify compares the accumulated digest with the expected one.
func (v *Verifier) Verify(resource string) error {
	got := v.h.Sum(nil)
	if subtle.ConstantTimeCompare(got, v.expected) == 1 {
		return nil
	}
	return &IntegrityError{
		Resource:  resource,
		Algorithm: v.algorithm,
		Expected:  v.encode(v.expected),
		Got:       v.encode(got),
	}
}
