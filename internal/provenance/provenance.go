// Package provenance tracks which ingestion channel supplied each field of a
// buyer or deal, and decides whether a new ingestion may overwrite it.
//
// The entry list is append-only. Every write path asks Partition (or
// CanOverwrite) before touching a field and then records what it wrote with
// AppendEntry, so the full history of any field can be replayed later.
package provenance

import (
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Source is an ingestion channel.
type Source string

const (
	SourceTranscript Source = "transcript"
	SourceNotes      Source = "notes"
	SourceWebsite    Source = "website"
	SourceCSV        Source = "csv"
	SourceManual     Source = "manual"
)

// sourcePriority is the fixed trust order. Higher wins.
var sourcePriority = map[Source]int{
	SourceTranscript: 100,
	SourceNotes:      80,
	SourceWebsite:    60,
	SourceCSV:        40,
	SourceManual:     20,
}

// Sources returns every known source, highest priority first.
func Sources() []Source {
	return []Source{SourceTranscript, SourceNotes, SourceWebsite, SourceCSV, SourceManual}
}

// Priority returns the fixed trust priority of s, or 0 for an unknown source.
func (s Source) Priority() int {
	return sourcePriority[s]
}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	_, ok := sourcePriority[s]
	return ok
}

// ParseSource converts a raw string (case-insensitive) into a Source.
func ParseSource(raw string) (Source, error) {
	s := Source(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", eris.Errorf("provenance: unknown source %q", raw)
	}
	return s, nil
}

// Entry records one ingestion: which source wrote which fields, and when.
type Entry struct {
	Source    Source    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Fields    []string  `json:"fields"`
}

// Names reports whether the entry touched field.
func (e Entry) Names(field string) bool {
	for _, f := range e.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Entries is the ordered provenance log attached to a buyer or deal.
type Entries []Entry

// EffectiveSource returns the entry that most recently supplied field: the
// latest timestamp among entries naming it, with later list position winning
// ties. ok is false when no entry names the field.
func EffectiveSource(entries Entries, field string) (Entry, bool) {
	var (
		best  Entry
		found bool
	)
	for _, e := range entries {
		if !e.Names(field) {
			continue
		}
		if !found || !e.Timestamp.Before(best.Timestamp) {
			best = e
			found = true
		}
	}
	return best, found
}

// guardPriority is the highest priority among entries naming field. When every
// write went through CanOverwrite this equals the effective source's priority;
// taking the maximum keeps the guarantee even if a lower-trust entry was
// recorded out of band.
func guardPriority(entries Entries, field string) (int, bool) {
	max, found := 0, false
	for _, e := range entries {
		if !e.Names(field) {
			continue
		}
		if p := e.Source.Priority(); !found || p > max {
			max = p
		}
		found = true
	}
	return max, found
}

// CanOverwrite reports whether candidate may write field. Equal priority is
// allowed so that fresher data from an equally trusted channel wins.
func CanOverwrite(entries Entries, field string, candidate Source) bool {
	p, found := guardPriority(entries, field)
	if !found {
		return true
	}
	return p <= candidate.Priority()
}

// AppendEntry returns a new list with an entry for fields appended. The input
// slice is never modified. Empty or blank field lists are a no-op.
func AppendEntry(entries Entries, source Source, fields []string, ts time.Time) Entries {
	clean := dedupeFields(fields)
	if len(clean) == 0 {
		return entries
	}
	out := make(Entries, len(entries), len(entries)+1)
	copy(out, entries)
	return append(out, Entry{
		Source:    source,
		Timestamp: ts.UTC(),
		Fields:    clean,
	})
}

// ProtectedFields returns, sorted, every recorded field that candidate may not
// overwrite.
func ProtectedFields(entries Entries, candidate Source) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		for _, f := range e.Fields {
			if seen[f] {
				continue
			}
			seen[f] = true
			if !CanOverwrite(entries, f, candidate) {
				out = append(out, f)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Partition splits the fields an ingestion wants to write into those it may
// write and those held by a higher-trust source.
func Partition(entries Entries, candidate Source, fields []string) (writable, protected []string) {
	for _, f := range dedupeFields(fields) {
		if CanOverwrite(entries, f, candidate) {
			writable = append(writable, f)
		} else {
			protected = append(protected, f)
		}
	}
	return writable, protected
}

// History returns, in list order, every entry that named field.
func History(entries Entries, field string) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Names(field) {
			out = append(out, e)
		}
	}
	return out
}

// Snapshot maps every recorded field to its effective source.
func Snapshot(entries Entries) map[string]Source {
	out := make(map[string]Source)
	for _, e := range entries {
		for _, f := range e.Fields {
			if _, done := out[f]; done {
				continue
			}
			if eff, ok := EffectiveSource(entries, f); ok {
				out[f] = eff.Source
			}
		}
	}
	return out
}

func dedupeFields(fields []string) []string {
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
