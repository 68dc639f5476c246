package uazapi

import (
	"strings"

	"github.com/spf13/cast"
)

// Gateway responses differ between server versions (camelCase vs snake_case,
// nested "instance" objects), so fields are looked up by any of several keys
// anywhere in the document.
func pickString(node any, keys ...string) string {
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[strings.ToLower(k)] = struct{}{}
	}
	var walk func(any) string
	walk = func(cur any) string {
		switch t := cur.(type) {
		case map[string]any:
			for k, v := range t {
				if _, ok := want[strings.ToLower(k)]; !ok {
					continue
				}
				switch v.(type) {
				case map[string]any, []any, nil:
					continue
				}
				if s := strings.TrimSpace(cast.ToString(v)); s != "" {
					return s
				}
			}
			for _, v := range t {
				if s := walk(v); s != "" {
					return s
				}
			}
		case []any:
			for _, v := range t {
				if s := walk(v); s != "" {
					return s
				}
			}
		}
		return ""
	}
	return walk(node)
}

func field(m map[string]any, keys ...string) any {
	for _, k := range keys {
		for mk, v := range m {
			if strings.EqualFold(mk, k) && v != nil {
				return v
			}
		}
	}
	return nil
}

// NormalizeStatus folds the gateway's status vocabulary into
// connected, connecting, disconnected or pending.
func NormalizeStatus(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch {
	case raw == "":
		return "pending"
	case strings.Contains(raw, "disconnect"), strings.Contains(raw, "offline"),
		strings.Contains(raw, "close"), strings.Contains(raw, "logout"):
		return "disconnected"
	case strings.Contains(raw, "connecting"):
		return "connecting"
	case strings.Contains(raw, "connected"), strings.Contains(raw, "online"), raw == "open", strings.Contains(raw, "ready"):
		return "connected"
	case strings.Contains(raw, "qr"), strings.Contains(raw, "pair"):
		return "pending"
	default:
		return raw
	}
}

func stateFrom(body map[string]any) *State {
	s := &State{
		Status:   NormalizeStatus(pickString(body, "status", "state", "connection_status", "connectionState")),
		Phone:    pickString(body, "phone", "number", "owner", "connected_phone"),
		QRCode:   pickString(body, "qrcode", "qr", "qr_code", "qrCode", "base64"),
		PairCode: pickString(body, "paircode", "pair_code", "pairCode"),
	}
	// Some versions only report a boolean.
	if s.Status == "pending" && s.QRCode == "" && s.PairCode == "" {
		if v := pickString(body, "connected", "loggedIn"); cast.ToBool(v) {
			s.Status = "connected"
		}
	}
	return s
}

func groupsFrom(body map[string]any) []Group {
	var items []any
	for _, k := range []string{"groups", "items", "data"} {
		if v, ok := field(body, k).([]any); ok {
			items = v
			break
		}
	}
	out := make([]Group, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		g := Group{
			JID:  strings.TrimSpace(cast.ToString(field(m, "JID", "jid", "id", "groupJid"))),
			Name: strings.TrimSpace(cast.ToString(field(m, "Name", "subject", "name"))),
		}
		switch p := field(m, "Participants", "participants").(type) {
		case []any:
			g.Participants = len(p)
		default:
			g.Participants = cast.ToInt(p)
		}
		if g.Participants == 0 {
			g.Participants = cast.ToInt(field(m, "size", "ParticipantCount", "participantsCount"))
		}
		if g.JID == "" || !strings.HasSuffix(g.JID, "@g.us") {
			continue
		}
		out = append(out, g)
	}
	return out
}
