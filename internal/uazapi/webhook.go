package uazapi

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Event kinds surfaced to the application.
const (
	EventMessage    = "message"
	EventConnection = "connection"
	EventOther      = "other"
)

// Event is a decoded webhook delivery.
type Event struct {
	Kind    string
	ChatID  string
	Sender  string
	Text    string
	FromMe  bool
	IsGroup bool
	// Status is set on connection events.
	Status string
}

// ParseEvent decodes a webhook body. Unknown event types come back as EventOther.
func ParseEvent(body []byte) (*Event, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(err, "decode webhook")
	}
	kind := strings.ToLower(pickString(doc, "EventType", "event", "type"))
	switch {
	case strings.Contains(kind, "message"):
		msg, _ := field(doc, "message", "data").(map[string]any)
		if msg == nil {
			msg = doc
		}
		ev := &Event{
			Kind:   EventMessage,
			ChatID: strings.TrimSpace(cast.ToString(field(msg, "chatid", "chatId", "remoteJid", "from"))),
			Sender: strings.TrimSpace(cast.ToString(field(msg, "sender", "senderName", "participant", "author"))),
			Text:   strings.TrimSpace(cast.ToString(field(msg, "text", "content", "body", "conversation"))),
			FromMe: cast.ToBool(field(msg, "fromMe", "from_me")),
		}
		ev.IsGroup = cast.ToBool(field(msg, "isGroup", "is_group")) || strings.HasSuffix(ev.ChatID, "@g.us")
		return ev, nil
	case strings.Contains(kind, "connection"):
		return &Event{Kind: EventConnection, Status: NormalizeStatus(pickString(doc, "status", "state", "connection"))}, nil
	default:
		return &Event{Kind: EventOther}, nil
	}
}
