package codec

import (
	"encoding/binary"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxFacetValueLength bounds the byte length of a normalised string facet
// value used as a key (spec §4.1 "truncated to MAX_FACET_VALUE_LENGTH bytes
// on a character boundary").
const MaxFacetValueLength = 1000

// EncodeF64FacetKey encodes an f64 facet value in sign-preserving
// big-endian form so lexicographic byte order matches numeric order over
// [-inf, +inf], collapsing +0 and -0 to the same key.
//
// IEEE-754 doubles already sort correctly as big-endian unsigned integers
// for non-negative values; negative values sort in reverse. Flipping the
// sign bit for positives and inverting all bits for negatives restores a
// monotonic unsigned ordering across the whole range.
func EncodeF64FacetKey(v float64) [8]byte {
	if v == 0 {
		v = 0 // collapse -0 to +0 before bit conversion
	}
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], bits)
	return out
}

// DecodeF64FacetKey inverts EncodeF64FacetKey.
func DecodeF64FacetKey(key [8]byte) float64 {
	bits := binary.BigEndian.Uint64(key[:])
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

// NormalizeFacetString applies NFKC normalisation, lowercasing, and a best
// effort diacritic fold, then truncates to MaxFacetValueLength bytes on a
// rune boundary, matching the spec's string facet key normalisation.
func NormalizeFacetString(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	s = foldDiacritics(s)
	return truncateOnRuneBoundary(s, MaxFacetValueLength)
}

// foldDiacritics strips combining marks after an NFD pass, approximating
// locale-agnostic diacritic folding (e.g. "café" -> "cafe").
func foldDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

func truncateOnRuneBoundary(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	b := s[:maxBytes]
	for len(b) > 0 {
		if r, _ := lastRuneValid(b); r {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

// lastRuneValid reports whether b ends on a complete, valid UTF-8 rune
// boundary rather than splitting one mid-sequence.
func lastRuneValid(b string) (bool, rune) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-4; i-- {
		if b[i]&0xC0 != 0x80 { // not a continuation byte: start of last rune
			r := []rune(b[i:])
			if len(r) == 1 && len(string(r[0])) == len(b)-i {
				return true, r[0]
			}
			return false, 0
		}
	}
	return false, 0
}
