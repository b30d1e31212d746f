// Package memory is a mutex-guarded in-memory implementation of every store
// interface. It backs the test suite and the database-free run mode; the
// semantics (key uniqueness, cascade deletes, row-absence behavior) match
// the postgres backend exactly.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/event"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/reminder"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/store"
)

type eventKey struct {
	eventID string
	guildID string
}

type userKey struct {
	eventID string
	guildID string
	userID  string
}

type zoneKey struct {
	userID  string
	guildID string
}

// Store is the in-memory backend. The zero value is not usable; call New.
type Store struct {
	mu           sync.RWMutex
	events       map[eventKey]*event.Event
	participants map[userKey]store.Participant
	prefs        map[userKey]reminder.Prefs
	settings     map[string]store.Settings
	zones        map[zoneKey]string
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		events:       make(map[eventKey]*event.Event),
		participants: make(map[userKey]store.Participant),
		prefs:        make(map[userKey]reminder.Prefs),
		settings:     make(map[string]store.Settings),
		zones:        make(map[zoneKey]string),
	}
}

var _ store.Store = (*Store)(nil)

// --------------------------------------------------------------------------
// EventStore
// --------------------------------------------------------------------------

func (s *Store) Put(_ context.Context, e *event.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := eventKey{e.ID, e.GuildID}
	if _, exists := s.events[key]; exists {
		return store.ErrDuplicate
	}
	cp := *e
	s.events[key] = &cp
	return nil
}

func (s *Store) Get(_ context.Context, eventID, guildID string) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventKey{eventID, guildID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) ListByGuild(_ context.Context, guildID string) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var events []*event.Event
	for _, e := range s.events {
		if e.GuildID == guildID {
			cp := *e
			events = append(events, &cp)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

func (s *Store) Delete(_ context.Context, eventID, guildID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := eventKey{eventID, guildID}
	if _, ok := s.events[key]; !ok {
		return false, nil
	}
	delete(s.events, key)
	// Cascade: membership and preference rows die with the event.
	for k := range s.participants {
		if k.eventID == eventID && k.guildID == guildID {
			delete(s.participants, k)
		}
	}
	for k := range s.prefs {
		if k.eventID == eventID && k.guildID == guildID {
			delete(s.prefs, k)
		}
	}
	return true, nil
}

func (s *Store) SetInviteLink(_ context.Context, eventID, guildID, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventKey{eventID, guildID}]
	if !ok {
		return store.ErrNotFound
	}
	e.InviteLink = link
	return nil
}

func (s *Store) ListGuilds(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	for _, e := range s.events {
		seen[e.GuildID] = true
	}
	for guildID := range s.settings {
		seen[guildID] = true
	}
	guilds := make([]string, 0, len(seen))
	for guildID := range seen {
		guilds = append(guilds, guildID)
	}
	sort.Strings(guilds)
	return guilds, nil
}

// --------------------------------------------------------------------------
// ParticipantStore
// --------------------------------------------------------------------------

func (s *Store) Join(_ context.Context, eventID, guildID, userID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventKey{eventID, guildID}]; !ok {
		return store.ErrEventNotFound
	}
	key := userKey{eventID, guildID, userID}
	if _, ok := s.participants[key]; ok {
		return store.ErrAlreadyJoined
	}
	s.participants[key] = store.Participant{
		EventID:  eventID,
		GuildID:  guildID,
		UserID:   userID,
		JoinedAt: now,
	}
	return nil
}

func (s *Store) Leave(_ context.Context, eventID, guildID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userKey{eventID, guildID, userID}
	if _, ok := s.participants[key]; !ok {
		return store.ErrNotJoined
	}
	delete(s.participants, key)
	return nil
}

func (s *Store) List(_ context.Context, eventID, guildID string) ([]store.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var participants []store.Participant
	for k, p := range s.participants {
		if k.eventID == eventID && k.guildID == guildID {
			participants = append(participants, p)
		}
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})
	return participants, nil
}

func (s *Store) IsJoined(_ context.Context, eventID, guildID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.participants[userKey{eventID, guildID, userID}]
	return ok, nil
}

func (s *Store) ListByUser(_ context.Context, guildID, userID string) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var events []*event.Event
	for k := range s.participants {
		if k.guildID != guildID || k.userID != userID {
			continue
		}
		if e, ok := s.events[eventKey{k.eventID, k.guildID}]; ok {
			cp := *e
			events = append(events, &cp)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

// --------------------------------------------------------------------------
// ReminderStore
// --------------------------------------------------------------------------

func (s *Store) SetPrefs(_ context.Context, eventID, guildID, userID string, prefs reminder.Prefs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventKey{eventID, guildID}]; !ok {
		return store.ErrEventNotFound
	}
	s.prefs[userKey{eventID, guildID, userID}] = clonePrefs(prefs)
	return nil
}

func (s *Store) Prefs(_ context.Context, eventID, guildID, userID string) (reminder.Prefs, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefs, ok := s.prefs[userKey{eventID, guildID, userID}]
	return clonePrefs(prefs), ok, nil
}

// clonePrefs copies the offset slices so callers and store never alias,
// the same way Put/Get copy events.
func clonePrefs(p reminder.Prefs) reminder.Prefs {
	var cp reminder.Prefs
	if p.BeforeStart != nil {
		cp.BeforeStart = append([]reminder.Offset(nil), p.BeforeStart...)
	}
	if p.BeforeEnd != nil {
		cp.BeforeEnd = append([]reminder.Offset(nil), p.BeforeEnd...)
	}
	return cp
}

// --------------------------------------------------------------------------
// SettingsStore
// --------------------------------------------------------------------------

func (s *Store) SetNotificationChannel(_ context.Context, guildID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.settings[guildID]
	cfg.GuildID = guildID
	cfg.NotificationChannel = channelID
	s.settings[guildID] = cfg
	return nil
}

func (s *Store) NotificationChannel(_ context.Context, guildID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings[guildID].NotificationChannel, nil
}

func (s *Store) SetTeamID(_ context.Context, guildID, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.settings[guildID]
	cfg.GuildID = guildID
	cfg.CTFtimeTeamID = teamID
	s.settings[guildID] = cfg
	return nil
}

func (s *Store) TeamID(_ context.Context, guildID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings[guildID].CTFtimeTeamID, nil
}

// --------------------------------------------------------------------------
// TimezoneStore
// --------------------------------------------------------------------------

func (s *Store) SetTimezone(_ context.Context, userID, guildID, zone string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones[zoneKey{userID, guildID}] = zone
	return nil
}

func (s *Store) Timezone(_ context.Context, userID, guildID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	zone, ok := s.zones[zoneKey{userID, guildID}]
	if !ok {
		return "UTC", nil
	}
	return zone, nil
}
