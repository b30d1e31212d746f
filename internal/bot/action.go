package bot

import (
	"fmt"
	"strings"

	"github.com/guan4tou2/discord-ctf-remind-bot/internal/reminder"
)

// Interactive buttons carry their intent in the component custom ID. The ID
// round-trips through Discord, so the encoding is versioned by the leading
// "ctf" tag and kept strictly additive.
const actionPrefix = "ctf"

// Action is the decoded intent of one button press.
type Action interface {
	isAction()
}

// JoinAction joins the pressing user to an event.
type JoinAction struct {
	EventID string
}

// LeaveAction removes the pressing user from an event.
type LeaveAction struct {
	EventID string
}

// ToggleOffsetAction flips one reminder offset in the user's stored
// preferences for an event.
type ToggleOffsetAction struct {
	EventID string
	Offset  reminder.Offset
}

func (JoinAction) isAction()         {}
func (LeaveAction) isAction()        {}
func (ToggleOffsetAction) isAction() {}

// EncodeAction renders an action as a component custom ID.
func EncodeAction(a Action) string {
	switch v := a.(type) {
	case JoinAction:
		return strings.Join([]string{actionPrefix, "join", v.EventID}, "|")
	case LeaveAction:
		return strings.Join([]string{actionPrefix, "leave", v.EventID}, "|")
	case ToggleOffsetAction:
		return strings.Join([]string{actionPrefix, "offset", v.EventID, v.Offset.Token()}, "|")
	default:
		return ""
	}
}

// DecodeAction parses a component custom ID back into an action. IDs from
// other components (or stale encodings) return an error and are ignored by
// the interaction handler.
func DecodeAction(customID string) (Action, error) {
	parts := strings.Split(customID, "|")
	if len(parts) < 3 || parts[0] != actionPrefix {
		return nil, fmt.Errorf("not a ctf action: %q", customID)
	}

	switch parts[1] {
	case "join":
		return JoinAction{EventID: parts[2]}, nil
	case "leave":
		return LeaveAction{EventID: parts[2]}, nil
	case "offset":
		if len(parts) != 4 {
			return nil, fmt.Errorf("malformed offset action: %q", customID)
		}
		off, err := reminder.ParseOffset(parts[3])
		if err != nil {
			return nil, fmt.Errorf("offset action %q: %w", customID, err)
		}
		return ToggleOffsetAction{EventID: parts[2], Offset: off}, nil
	default:
		return nil, fmt.Errorf("unknown action kind %q", parts[1])
	}
}
