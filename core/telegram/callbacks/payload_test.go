package callbacks

import (
	"testing"

	"github.com/m3rciful/botcore/core/telegram/api"
)

func TestEncodeParseRoundTrip(t *testing.T) {
	data := Encode("vote", "42")
	if data != "vote|42" {
		t.Fatalf("Encode = %q", data)
	}
	key, payload := Parse(&api.CallbackQuery{Data: data})
	if key != "vote" || payload != "42" {
		t.Fatalf("Parse = %q, %q", key, payload)
	}

	if Encode("menu", "") != "menu" {
		t.Fatal("empty payload must not add a separator")
	}
	key, payload = Parse(&api.CallbackQuery{Data: "menu"})
	if key != "menu" || payload != "" {
		t.Fatalf("Parse = %q, %q", key, payload)
	}
}

func TestParseNil(t *testing.T) {
	key, payload := Parse(nil)
	if key != "" || payload != "" {
		t.Fatal("nil callback must parse to empty values")
	}
}

func TestPayloadHelpers(t *testing.T) {
	cb := &api.CallbackQuery{Data: "page|7"}
	if n, err := PayloadInt64(cb); err != nil || n != 7 {
		t.Fatalf("PayloadInt64 = %d, %v", n, err)
	}
	if n, err := PayloadInt(cb); err != nil || n != 7 {
		t.Fatalf("PayloadInt = %d, %v", n, err)
	}

	cb = &api.CallbackQuery{Data: "pair|3:4"}
	parts, err := PayloadParts(cb, ":")
	if err != nil || len(parts) != 2 || parts[0] != "3" || parts[1] != "4" {
		t.Fatalf("PayloadParts = %v, %v", parts, err)
	}

	if _, err := PayloadParts(&api.CallbackQuery{Data: "bare"}, ":"); err == nil {
		t.Fatal("empty payload must error")
	}
}
