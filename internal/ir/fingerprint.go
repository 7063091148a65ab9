package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DomainFingerprint prefixes every key hash. The version suffix allows a
// future change of the key algorithm without colliding with old history.
const DomainFingerprint = "recon/fingerprint/v1"

// MaxNormalizedLen bounds normalized title and location text, in runes.
const MaxNormalizedLen = 200

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeText folds s for comparison: NFC, case-folded, whitespace
// collapsed to single spaces, trimmed, bounded to MaxNormalizedLen runes.
func NormalizeText(s string) string {
	s = cases.Fold().String(norm.NFC.String(s))
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > MaxNormalizedLen {
		s = strings.TrimSpace(string([]rune(s)[:MaxNormalizedLen]))
	}
	return s
}

// TimeBucket renders the temporal part of a key. Precise start/end instants
// win; otherwise the deadline; otherwise empty.
func TimeBucket(item ProposedItem) string {
	switch {
	case item.Start != nil:
		b := formatInstant(item.Start) + "/" + formatInstant(item.End)
		if item.AllDay {
			return "allday:" + b
		}
		return b
	case item.Deadline != nil:
		return "due:" + formatInstant(item.Deadline)
	}
	return ""
}

func formatInstant(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Fingerprint computes the idempotency key of an item from its normalized
// kind, title, time bucket and location. It is pure: no clock, no history.
func Fingerprint(item ProposedItem) (Key, error) {
	obj := map[string]any{
		"kind":     string(item.Kind),
		"title":    NormalizeText(item.Title),
		"time":     TimeBucket(item),
		"location": NormalizeText(item.Location),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("fingerprint: failed to marshal: %w", err)
	}
	return Key(hashWithDomain(DomainFingerprint, canonical)), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFingerprint(item ProposedItem) Key {
	k, err := Fingerprint(item)
	if err != nil {
		panic(err)
	}
	return k
}
