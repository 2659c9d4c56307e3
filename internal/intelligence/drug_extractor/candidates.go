// Package drug_extractor turns free text from OCR into drug registry
// names: candidate extraction, dispatch filtering, registry resolution,
// ingredient parsing and registry document cleanup.
package drug_extractor

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// wordPattern matches runs of letters, digits and underscore in any script.
// Combining marks split words; after NFC, Hangul carries none.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

const (
	capsuleOld = "캅셀"
	capsuleNew = "캡슐"
)

// ExtractCandidates returns the ordered set of candidate terms in text:
// distinct tokens plus their 캅셀/캡슐 spelling siblings, longest first, with
// every token that is a strict substring of another token removed.
func ExtractCandidates(text string) []string {
	text = norm.NFC.String(text)
	tokens := wordPattern.FindAllString(text, -1)
	if len(tokens) == 0 {
		return []string{}
	}

	set := make(map[string]struct{}, len(tokens)*2)
	for _, tok := range tokens {
		set[tok] = struct{}{}
		if sib, ok := scriptSibling(tok); ok {
			set[sib] = struct{}{}
		}
	}

	words := make([]string, 0, len(set))
	for w := range set {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(words[i]), utf8.RuneCountInString(words[j])
		if li != lj {
			return li > lj
		}
		return words[i] < words[j]
	})

	out := make([]string, 0, len(words))
	for i, w := range words {
		if !subsumed(w, words[:i]) {
			out = append(out, w)
		}
	}
	return out
}

// scriptSibling returns tok with the alternate capsule spelling.
func scriptSibling(tok string) (string, bool) {
	switch {
	case strings.Contains(tok, capsuleOld):
		return strings.ReplaceAll(tok, capsuleOld, capsuleNew), true
	case strings.Contains(tok, capsuleNew):
		return strings.ReplaceAll(tok, capsuleNew, capsuleOld), true
	default:
		return "", false
	}
}

// subsumed reports whether w is contained in one of the longer-or-equal
// words before it. Equal strings never occur since words is a set.
func subsumed(w string, longer []string) bool {
	for _, other := range longer {
		if strings.Contains(other, w) {
			return true
		}
	}
	return false
}

// tabletAfterDose matches a tablet form marker written straight after the
// dose, as in 타이레놀500정 or 타이레놀５００정.
var tabletAfterDose = regexp.MustCompile(`(\p{Nd})정$`)

// DispatchTerms filters candidates down to the terms worth a registry
// lookup and normalises dosage suffixes. Terms of two runes or fewer,
// all-digit terms and ASCII-only terms are dropped. 밀리그램 and mg are
// removed everywhere, a 정 directly after the dose is removed, and trailing
// underscores are trimmed.
func DispatchTerms(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if utf8.RuneCountInString(c) <= 2 || allDigits(c) || isASCII(c) {
			continue
		}
		term := strings.ReplaceAll(c, "밀리그램", "")
		term = strings.ReplaceAll(term, "mg", "")
		term = strings.TrimRight(term, "_")
		term = tabletAfterDose.ReplaceAllString(term, "$1")
		if term == "" {
			continue
		}
		out = append(out, term)
	}
	return out
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}
