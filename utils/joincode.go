// utils/joincode.go
package utils

import (
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/gosimple/unidecode"
)

// Unambiguous when read aloud or typed on a phone: no 0/O, 1/I/L.
const joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	joinCodePrefixLen = 4
	joinCodeSuffixLen = 6
)

// NewJoinCode returns a short human-typable alias such as "MORN-7KQ2XD".
// The prefix is taken from the pact name, the suffix is random.
func NewJoinCode(name string) string {
	var prefix strings.Builder
	for _, r := range strings.ToUpper(unidecode.Unidecode(name)) {
		if prefix.Len() == joinCodePrefixLen {
			break
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			prefix.WriteRune(r)
		}
	}
	if prefix.Len() == 0 {
		prefix.WriteString("PACT")
	}

	return prefix.String() + "-" + joinCodeSuffix(randomUUIDBytes)
}

// Bytes at or above this limit would favour the first letters of the
// alphabet and are discarded.
const joinCodeByteLimit = 256 - 256%len(joinCodeAlphabet)

// joinCodeSuffix draws from next until it has enough unbiased bytes.
func joinCodeSuffix(next func() []byte) string {
	suffix := make([]byte, 0, joinCodeSuffixLen)
	for len(suffix) < joinCodeSuffixLen {
		for _, b := range next() {
			if int(b) >= joinCodeByteLimit {
				continue
			}
			suffix = append(suffix, joinCodeAlphabet[int(b)%len(joinCodeAlphabet)])
			if len(suffix) == joinCodeSuffixLen {
				break
			}
		}
	}
	return string(suffix)
}

// randomUUIDBytes returns the bytes of a v4 UUID that carry no version or
// variant bits.
func randomUUIDBytes() []byte {
	id := uuid.New()
	out := make([]byte, 0, 13)
	out = append(out, id[0:6]...)
	out = append(out, id[7])
	return append(out, id[9:]...)
}

// NormalizeJoinCode makes lookups case- and whitespace-insensitive.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PactSlug is the URL-friendly form of a pact name.
func PactSlug(name string) string {
	return slug.Make(name)
}
