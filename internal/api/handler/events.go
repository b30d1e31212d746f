package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/api/respond"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/event"
	"github.com/guan4tou2/discord-ctf-remind-bot/internal/store"
)

// eventView is the wire shape for one event, with the status derived at
// request time rather than stored.
type eventView struct {
	*event.Event
	Status       string `json:"status"`
	Participants int    `json:"participants"`
}

func (h *Handler) view(r *http.Request, e *event.Event) eventView {
	count := 0
	if list, err := h.st.List(r.Context(), e.ID, e.GuildID); err == nil {
		count = len(list)
	}
	return eventView{
		Event:        e,
		Status:       e.StatusAt(h.now()).String(),
		Participants: count,
	}
}

// ListGuilds returns every guild the engine tracks.
func (h *Handler) ListGuilds(w http.ResponseWriter, r *http.Request) {
	guilds, err := h.st.ListGuilds(r.Context())
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"guilds": guilds,
		"count":  len(guilds),
	})
}

// ListEvents returns all events for one guild with derived status.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	events, err := h.st.ListByGuild(r.Context(), guildID)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, h.view(r, e))
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"guild_id": guildID,
		"events":   views,
		"count":    len(views),
	})
}

// GetEvent returns one event with its participant list.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	eventID := chi.URLParam(r, "eventID")

	e, err := h.st.Get(r.Context(), eventID, guildID)
	if errors.Is(err, store.ErrNotFound) {
		respond.WriteError(w, http.StatusNotFound, "EVENT_NOT_FOUND", "No such event in this guild")
		return
	}
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	participants, err := h.st.List(r.Context(), eventID, guildID)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	userIDs := make([]string, 0, len(participants))
	for _, p := range participants {
		userIDs = append(userIDs, p.UserID)
	}

	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"event":        h.view(r, e),
		"participants": userIDs,
		"now":          h.now().UTC().Format(time.RFC3339),
	})
}
