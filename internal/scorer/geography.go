package scorer

import (
	"sort"
	"strings"
	"unicode"
)

var stateNames = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"district of columbia": "DC", "florida": "FL", "georgia": "GA", "hawaii": "HI",
	"idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME",
	"maryland": "MD", "massachusetts": "MA", "michigan": "MI", "minnesota": "MN",
	"mississippi": "MS", "missouri": "MO", "montana": "MT", "nebraska": "NE",
	"nevada": "NV", "new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM",
	"new york": "NY", "north carolina": "NC", "north dakota": "ND", "ohio": "OH",
	"oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA", "rhode island": "RI",
	"south carolina": "SC", "south dakota": "SD", "tennessee": "TN", "texas": "TX",
	"utah": "UT", "vermont": "VT", "virginia": "VA", "washington": "WA",
	"west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
}

var stateCodes = func() map[string]bool {
	m := make(map[string]bool, len(stateNames))
	for _, code := range stateNames {
		m[code] = true
	}
	return m
}()

var regions = map[string][]string{
	"new england":       {"CT", "ME", "MA", "NH", "RI", "VT"},
	"northeast":         {"CT", "ME", "MA", "NH", "RI", "VT", "NJ", "NY", "PA"},
	"mid atlantic":      {"DE", "DC", "MD", "NJ", "NY", "PA", "VA", "WV"},
	"southeast":         {"AL", "FL", "GA", "KY", "MS", "NC", "SC", "TN", "VA", "WV", "AR", "LA"},
	"gulf coast":        {"TX", "LA", "MS", "AL", "FL"},
	"midwest":           {"IL", "IN", "IA", "KS", "MI", "MN", "MO", "NE", "ND", "OH", "SD", "WI"},
	"great lakes":       {"IL", "IN", "MI", "MN", "OH", "WI", "NY", "PA"},
	"southwest":         {"AZ", "NM", "OK", "TX"},
	"mountain west":     {"AZ", "CO", "ID", "MT", "NV", "NM", "UT", "WY"},
	"west":              {"AK", "AZ", "CA", "CO", "HI", "ID", "MT", "NV", "NM", "OR", "UT", "WA", "WY"},
	"west coast":        {"CA", "OR", "WA"},
	"pacific northwest": {"OR", "WA", "ID"},
	"sunbelt":           {"AL", "AZ", "CA", "FL", "GA", "LA", "MS", "NV", "NM", "NC", "SC", "TN", "TX"},
}

// geoPhrases holds every state and region name, longest first.
var geoPhrases = func() []string {
	out := make([]string, 0, len(stateNames)+len(regions))
	for name := range stateNames {
		out = append(out, name)
	}
	for name := range regions {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}()

var nationalTerms = map[string]bool{
	"national": true, "nationwide": true, "us": true, "usa": true,
	"united states": true, "all states": true, "continental us": true,
}

// expandStates resolves a mixed list of state codes, state names, regions and
// "National" into a sorted set of two-letter codes. Unknown terms (cities,
// countries) are dropped.
func expandStates(terms []string) []string {
	set := make(map[string]bool)
	for _, raw := range terms {
		for _, code := range resolveGeoTerm(raw) {
			set[code] = true
		}
	}
	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func resolveGeoTerm(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) == 2 {
		code := strings.ToUpper(trimmed)
		if stateCodes[code] {
			return []string{code}
		}
	}
	f := foldTerm(trimmed)
	if f == "" {
		return nil
	}
	if nationalTerms[f] {
		all := make([]string, 0, len(stateCodes))
		for code := range stateCodes {
			all = append(all, code)
		}
		return all
	}
	if code, ok := stateNames[f]; ok {
		return []string{code}
	}
	if r, ok := regions[f]; ok {
		return r
	}
	// Compound phrases such as "Southeast US" or "Texas and Oklahoma". Longer
	// names are consumed first so "west virginia" never reads as "west".
	var out []string
	rest := " " + f + " "
	for _, name := range geoPhrases {
		needle := " " + name + " "
		if !strings.Contains(rest, needle) {
			continue
		}
		rest = strings.ReplaceAll(rest, needle, " ")
		if code, ok := stateNames[name]; ok {
			out = append(out, code)
		} else {
			out = append(out, regions[name]...)
		}
	}
	// Upper-case codes inside phrases, e.g. "Dallas, TX". Lower-case tokens
	// are skipped since "in", "or" and "me" are also codes.
	for _, tok := range strings.FieldsFunc(trimmed, func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if len(tok) == 2 && tok == strings.ToUpper(tok) && stateCodes[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// hqStateCode resolves a single HQ state value to its code.
func hqStateCode(raw string) string {
	codes := resolveGeoTerm(raw)
	if len(codes) == 1 {
		return codes[0]
	}
	return ""
}
