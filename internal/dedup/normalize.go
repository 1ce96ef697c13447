// Package dedup implements the identity normalization, duplicate
// classification, and group ranking rules for scraped job postings.
// Everything in this package is pure: no database access, no clocks.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// canonicalSeparator joins the normalized company and title components.
const canonicalSeparator = "|"

// fingerprintDescRunes bounds how much of the description participates in
// the content hash. Postings routinely differ in trailing boilerplate
// (EEO statements, tracking footers) that should not defeat
// update-vs-duplicate discrimination.
const fingerprintDescRunes = 512

// NormalizeText lowercases s, strips punctuation, and collapses runs of
// whitespace into single spaces.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true // also trims leading whitespace
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimRight(b.String(), " ")
}

// CanonicalKey derives the cross-site identity key for a posting:
// normalized company and title joined by a fixed separator. Two postings
// with the same employer and role title produce the same key regardless of
// source site, case, whitespace, or punctuation.
//
// When both company and title normalize to empty, the fallback (the row's
// own id) is returned so degenerate records never collide with each other.
func CanonicalKey(company, title, fallback string) string {
	c := NormalizeText(company)
	t := NormalizeText(title)
	if c == "" && t == "" {
		return fallback
	}
	return c + canonicalSeparator + t
}

// Fingerprint computes a stable content hash over the normalized title,
// company, and a bounded prefix of the normalized description. It changes
// only when content genuinely differs, so it discriminates refreshes from
// unchanged re-scrapes within a duplicate group.
func Fingerprint(title, company, description string) string {
	desc := NormalizeText(description)
	if runes := []rune(desc); len(runes) > fingerprintDescRunes {
		desc = string(runes[:fingerprintDescRunes])
	}

	sum := sha256.Sum256([]byte(NormalizeText(title) + "\t" + NormalizeText(company) + "\t" + desc))
	return hex.EncodeToString(sum[:])
}
