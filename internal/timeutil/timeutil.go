// Package timeutil converts absolute instants into a user's preferred zone
// for display. Zone resolution failures degrade to UTC — never an error, so
// a bad stored zone name can not break a reminder sweep.
package timeutil

import "time"

// ToZone returns t in the named IANA zone. Unknown or empty names fall back
// to UTC; the instant itself is never changed.
func ToZone(t time.Time, name string) time.Time {
	if name == "" {
		return t.UTC()
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return t.UTC()
	}
	return t.In(loc)
}

// FormatLocal renders an instant for user-facing messages, with the zone
// abbreviation so recipients can tell which clock it refers to.
func FormatLocal(t time.Time, zone string) string {
	return ToZone(t, zone).Format("2006-01-02 15:04 MST")
}
