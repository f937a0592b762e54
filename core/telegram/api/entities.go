package api

import (
	"strings"
	"unicode/utf16"
)

// Entity types used by the runtime. The wire format defines more; they pass
// through untouched.
const (
	EntityBotCommand = "bot_command"
	EntityMention    = "mention"
	EntityURL        = "url"
)

// MessageEntity marks a range of a message's text. Offset and Length are
// UTF-16 code units, not bytes and not runes.
type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	URL    string `json:"url,omitempty"`
	User   *User  `json:"user,omitempty"`
}

// EntityText extracts the substring the entity covers, indexing by UTF-16
// code units as the wire format requires.
func EntityText(text string, e MessageEntity) string {
	if e.Offset < 0 || e.Length <= 0 {
		return ""
	}
	units := utf16.Encode([]rune(text))
	if e.Offset >= len(units) {
		return ""
	}
	end := e.Offset + e.Length
	if end > len(units) {
		end = len(units)
	}
	return string(utf16.Decode(units[e.Offset:end]))
}

// Command returns the bot command carried by the message, lower-cased and
// with any @botname suffix removed, e.g. "/start". It prefers a bot_command
// entity; with no entities present it falls back to a leading slash whose
// first whitespace is beyond position 1, or absent.
func (m *Message) Command() (string, bool) {
	if m == nil {
		return "", false
	}
	for _, e := range m.Entities {
		if e.Type != EntityBotCommand {
			continue
		}
		cmd := EntityText(m.Text, e)
		if cmd == "" {
			continue
		}
		return normalizeCommand(cmd), true
	}
	if len(m.Entities) > 0 || !strings.HasPrefix(m.Text, "/") {
		return "", false
	}
	ws := strings.IndexFunc(m.Text, isCommandBoundary)
	switch {
	case ws < 0:
		if len(m.Text) < 2 {
			return "", false
		}
		return normalizeCommand(m.Text), true
	case ws > 1:
		return normalizeCommand(m.Text[:ws]), true
	default:
		return "", false
	}
}

// CommandArgs returns the text that follows the command, trimmed.
func (m *Message) CommandArgs() string {
	if _, ok := m.Command(); !ok {
		return ""
	}
	if idx := strings.IndexFunc(m.Text, isCommandBoundary); idx >= 0 {
		return strings.TrimSpace(m.Text[idx:])
	}
	return ""
}

func isCommandBoundary(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}

func normalizeCommand(cmd string) string {
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}
