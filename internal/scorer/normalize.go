package scorer

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTerm lower-cases s, strips accents and collapses punctuation to single
// spaces so "Débris Removal" and "debris-removal" compare equal.
func foldTerm(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

// foldAll folds and dedupes a list, dropping empties. Order is preserved.
func foldAll(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		f := foldTerm(s)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// termsMatch reports whether two folded service terms refer to the same
// service. Containment on word boundaries lets "hvac" match
// "commercial hvac" without letting "art" match "parts".
func termsMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return containsWords(a, b) || containsWords(b, a)
}

func containsWords(haystack, needle string) bool {
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

// firstMatch returns the first term in set matching s.
func firstMatch(s string, set []string) (string, bool) {
	for _, t := range set {
		if termsMatch(s, t) {
			return t, true
		}
	}
	return "", false
}

// excludedBy returns the first excluded term contained in the deal service
// svc. Containment runs one way only: excluding "heavy duty towing" does not
// exclude a deal offering plain "towing".
func excludedBy(svc string, excluded []string) (string, bool) {
	for _, ex := range excluded {
		if ex != "" && containsWords(svc, ex) {
			return ex, true
		}
	}
	return "", false
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
