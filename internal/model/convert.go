package model

import (
	"strconv"
	"strings"
)

// millionsThreshold separates values already in USD millions from raw dollar
// amounts. Nobody tracks a $10B+ deal by revenue in millions here.
const millionsThreshold = 10_000

// ToMillions converts an ingested money value into USD millions. It accepts
// numbers and strings such as "12.5", "$12.5M", "$750K", "1.2B" and
// "12,500,000". ok is false when nothing usable was found.
func ToMillions(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return normalizeMillions(n), true
	case float32:
		return normalizeMillions(float64(n)), true
	case int:
		return normalizeMillions(float64(n)), true
	case int64:
		return normalizeMillions(float64(n)), true
	case string:
		return parseMoney(n)
	default:
		return 0, false
	}
}

func normalizeMillions(f float64) float64 {
	if f >= millionsThreshold {
		return f / 1_000_000
	}
	return f
}

func parseMoney(raw string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("$", "", ",", "", "usd", "", " ", "").Replace(s)
	if s == "" {
		return 0, false
	}

	mul := 0.0
	switch {
	case strings.HasSuffix(s, "mm"):
		s, mul = strings.TrimSuffix(s, "mm"), 1
	case strings.HasSuffix(s, "m"):
		s, mul = strings.TrimSuffix(s, "m"), 1
	case strings.HasSuffix(s, "k"):
		s, mul = strings.TrimSuffix(s, "k"), 0.001
	case strings.HasSuffix(s, "b"):
		s, mul = strings.TrimSuffix(s, "b"), 1000
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if mul > 0 {
		return f * mul, true
	}
	return normalizeMillions(f), true
}

// ToInt converts an ingested count ("12", 12.0, "12 locations") to an int.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case string:
		fields := strings.Fields(strings.ReplaceAll(n, ",", ""))
		if len(fields) == 0 {
			return 0, false
		}
		i, err := strconv.Atoi(fields[0])
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// ToString converts an ingested scalar to a trimmed string.
func ToString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	default:
		return ""
	}
}

// ToStringSlice converts an ingested list. Strings are split on commas,
// semicolons, pipes and newlines.
func ToStringSlice(v any) []string {
	var raw []string
	switch l := v.(type) {
	case []string:
		raw = l
	case []any:
		for _, item := range l {
			raw = append(raw, ToString(item))
		}
	case string:
		raw = strings.FieldsFunc(l, func(r rune) bool {
			return r == ',' || r == ';' || r == '|' || r == '\n'
		})
	default:
		return nil
	}

	seen := make(map[string]bool, len(raw))
	var out []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }

// Int returns a pointer to n.
func Int(n int) *int { return &n }
