// Package callbacks implements the <key>|<payload> convention for inline
// button callback data, shared by the keyboard builders and chat handlers.
package callbacks

import (
	"strconv"
	"strings"

	"github.com/m3rciful/botcore/core/telegram/api"
)

// Encode joins a callback key with an optional payload.
func Encode(key, payload string) string {
	if payload == "" {
		return key
	}
	return key + "|" + payload
}

// Parse splits callback data into its key and payload (may be empty).
func Parse(cb *api.CallbackQuery) (string, string) {
	if cb == nil {
		return "", ""
	}
	parts := strings.SplitN(cb.Data, "|", 2)
	key := strings.TrimSpace(parts[0])
	payload := ""
	if len(parts) == 2 {
		payload = parts[1]
	}
	return key, payload
}

// Key returns the callback key parsed from Data.
func Key(cb *api.CallbackQuery) string {
	k, _ := Parse(cb)
	return k
}

// Payload returns the payload (after '|') parsed from Data.
func Payload(cb *api.CallbackQuery) string {
	_, payload := Parse(cb)
	return payload
}

// PayloadInt64 parses the callback payload as int64.
func PayloadInt64(cb *api.CallbackQuery) (int64, error) {
	return strconv.ParseInt(Payload(cb), 10, 64)
}

// PayloadInt parses the callback payload as int.
func PayloadInt(cb *api.CallbackQuery) (int, error) {
	return strconv.Atoi(Payload(cb))
}

// PayloadParts splits the callback payload using the given separator.
func PayloadParts(cb *api.CallbackQuery, sep string) ([]string, error) {
	p := Payload(cb)
	if p == "" {
		return nil, strconv.ErrSyntax
	}
	return strings.Split(p, sep), nil
}
