// Package event defines the CTF competition event model. An event's
// lifecycle state is never stored — it is derived from the clock and the
// start/end instants, so it can never drift from reality.
package event

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an event at a given instant.
type Status int

const (
	// Announced: the event has not started yet.
	Announced Status = iota
	// Active: the event is running.
	Active
	// Ended: the event is over.
	Ended
)

func (s Status) String() string {
	switch s {
	case Announced:
		return "announced"
	case Active:
		return "active"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Event is a CTF competition tracked for one guild. Identity is the
// (ID, GuildID) pair; the same CTFtime event may be tracked independently
// by multiple guilds.
type Event struct {
	ID          string    `json:"event_id"`
	GuildID     string    `json:"guild_id"`
	Name        string    `json:"name"`
	Start       time.Time `json:"start_time"`
	End         time.Time `json:"end_time"`
	Format      string    `json:"format"`
	Weight      float64   `json:"weight"`
	Location    string    `json:"location"`
	OfficialURL string    `json:"official_url"`
	CTFtimeURL  string    `json:"ctftime_url"`
	InviteLink  string    `json:"invite_link"`
	AddedAt     time.Time `json:"added_at"`
	AddedBy     string    `json:"added_by"`
}

// Validate checks the invariants required before an event may be persisted.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event: missing id")
	}
	if e.GuildID == "" {
		return fmt.Errorf("event: missing guild id")
	}
	if e.Name == "" {
		return fmt.Errorf("event: missing name")
	}
	if e.Start.IsZero() || e.End.IsZero() {
		return fmt.Errorf("event %s: missing start or end time", e.ID)
	}
	if !e.Start.Before(e.End) {
		return fmt.Errorf("event %s: start %s is not before end %s",
			e.ID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
	return nil
}

// StatusAt derives the lifecycle state at the given instant.
// Announced: now < start. Active: start <= now < end. Ended: now >= end.
func (e *Event) StatusAt(now time.Time) Status {
	switch {
	case now.Before(e.Start):
		return Announced
	case now.Before(e.End):
		return Active
	default:
		return Ended
	}
}

// RoleName is the guild role created for an event's participants.
func (e *Event) RoleName() string {
	return "CTF-" + e.Name
}
