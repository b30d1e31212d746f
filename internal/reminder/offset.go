// Package reminder models reminder offsets — the configured lead times
// before an event's start or end at which a reminder fires — and the
// tolerance windows that decide when an offset is due.
//
// Offsets are a closed set mirroring the persisted tokens: persistence
// serializes them as comma-joined strings, everything above the store edge
// works with typed values.
package reminder

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Offset is one configurable reminder lead time.
type Offset int

const (
	Start24h Offset = iota // 24 hours before start
	Start12h               // 12 hours before start
	Start1h                // 1 hour before start
	End1h                  // 1 hour before end
	End30m                 // 30 minutes before end
	End10m                 // 10 minutes before end
)

// BeforeStart reports whether the offset is measured from the start instant.
func (o Offset) BeforeStart() bool {
	return o == Start24h || o == Start12h || o == Start1h
}

// Lead is the nominal duration before the reference instant.
func (o Offset) Lead() time.Duration {
	switch o {
	case Start24h:
		return 24 * time.Hour
	case Start12h:
		return 12 * time.Hour
	case Start1h, End1h:
		return time.Hour
	case End30m:
		return 30 * time.Minute
	case End10m:
		return 10 * time.Minute
	}
	return 0
}

// Window is the symmetric tolerance half-width around the nominal lead.
// The 10-minute end offset uses a narrower window so it cannot overlap the
// 30-minute one. The sweep interval must exceed the widest window's full
// span (see scheduler.DefaultConfig), otherwise an offset is due on more
// than one consecutive tick.
func (o Offset) Window() time.Duration {
	if o == End10m {
		return 2 * time.Minute
	}
	return 5 * time.Minute
}

// Due reports whether a time-to-target delta falls inside the offset's
// tolerance window. Bounds are inclusive: for the 1h offset a delta of
// exactly 55 or 65 minutes is due, 54 or 66 is not.
func (o Offset) Due(delta time.Duration) bool {
	lo := o.Lead() - o.Window()
	hi := o.Lead() + o.Window()
	return delta >= lo && delta <= hi
}

// Label is the human-readable phrasing used in reminder messages.
func (o Offset) Label() string {
	switch o {
	case Start24h:
		return "24 hours"
	case Start12h:
		return "12 hours"
	case Start1h, End1h:
		return "1 hour"
	case End30m:
		return "30 minutes"
	case End10m:
		return "10 minutes"
	}
	return "unknown"
}

// Token is the persisted identifier for the offset.
func (o Offset) Token() string {
	switch o {
	case Start24h:
		return "24h_before"
	case Start12h:
		return "12h_before"
	case Start1h:
		return "1h_before"
	case End1h:
		return "1h_before_end"
	case End30m:
		return "30m_before_end"
	case End10m:
		return "10m_before_end"
	}
	return fmt.Sprintf("offset(%d)", int(o))
}

func (o Offset) String() string { return o.Token() }

// ParseOffset maps a persisted token back to its offset.
// Unknown tokens are a validation error and must be rejected before they
// can reach the sweep.
func ParseOffset(token string) (Offset, error) {
	switch strings.TrimSpace(token) {
	case "24h_before":
		return Start24h, nil
	case "12h_before":
		return Start12h, nil
	case "1h_before":
		return Start1h, nil
	case "1h_before_end":
		return End1h, nil
	case "30m_before_end":
		return End30m, nil
	case "10m_before_end":
		return End10m, nil
	}
	return 0, fmt.Errorf("reminder: unknown offset token %q", token)
}

// StartOffsets and EndOffsets enumerate the closed sets, in firing order.
var (
	StartOffsets = []Offset{Start24h, Start12h, Start1h}
	EndOffsets   = []Offset{End1h, End30m, End10m}
)

// Prefs is one user's offset selection for one event.
type Prefs struct {
	BeforeStart []Offset
	BeforeEnd   []Offset
}

// Empty reports whether no offset is selected in either direction.
func (p Prefs) Empty() bool {
	return len(p.BeforeStart) == 0 && len(p.BeforeEnd) == 0
}

// Defaults is the system fallback applied when a user has stored nothing:
// 24h and 1h before start, 1h and 10m before end.
func Defaults() Prefs {
	return Prefs{
		BeforeStart: []Offset{Start24h, Start1h},
		BeforeEnd:   []Offset{End1h, End10m},
	}
}

// Resolve returns the effective offsets for a stored preference tuple.
// An entirely empty tuple means "use defaults"; a non-empty tuple is used
// exactly as stored, with no merging.
func Resolve(stored Prefs, found bool) Prefs {
	if !found || stored.Empty() {
		return Defaults()
	}
	return stored
}

// EncodeOffsets serializes offsets to the comma-joined token form used at
// the persistence edge. Output is deduplicated and ordered by firing order.
func EncodeOffsets(offsets []Offset) string {
	seen := make(map[Offset]bool, len(offsets))
	uniq := make([]Offset, 0, len(offsets))
	for _, o := range offsets {
		if !seen[o] {
			seen[o] = true
			uniq = append(uniq, o)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })

	tokens := make([]string, len(uniq))
	for i, o := range uniq {
		tokens[i] = o.Token()
	}
	return strings.Join(tokens, ",")
}

// DecodeOffsets parses the comma-joined token form. An empty string decodes
// to an empty set, not an error.
func DecodeOffsets(s string) ([]Offset, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var offsets []Offset
	for _, token := range strings.Split(s, ",") {
		o, err := ParseOffset(token)
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, o)
	}
	return offsets, nil
}
