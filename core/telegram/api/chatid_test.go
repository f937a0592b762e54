package api

import (
	"encoding/json"
	"testing"
)

func TestParseChatID(t *testing.T) {
	cases := []struct {
		in     string
		isName bool
		render string
	}{
		{"42", false, "42"},
		{"-1001234567890", false, "-1001234567890"},
		{"durov", true, "@durov"},
		{"@durov", true, "@durov"},
		{"4you", true, "@4you"},
	}
	for _, tc := range cases {
		id, err := ParseChatID(tc.in)
		if err != nil {
			t.Fatalf("ParseChatID(%q): %v", tc.in, err)
		}
		if id.IsName() != tc.isName {
			t.Fatalf("ParseChatID(%q).IsName() = %v, want %v", tc.in, id.IsName(), tc.isName)
		}
		if id.String() != tc.render {
			t.Fatalf("ParseChatID(%q).String() = %q, want %q", tc.in, id.String(), tc.render)
		}
	}

	if _, err := ParseChatID("  "); err == nil {
		t.Fatal("expected error for blank input")
	}
}

func TestChatIDEqualityCaseInsensitive(t *testing.T) {
	a := ChatName("Durov")
	b := ChatName("@durov")
	if !a.Equal(b) {
		t.Fatal("names must compare case-insensitively")
	}
	if a.Key() != b.Key() {
		t.Fatalf("keys differ: %q vs %q", a.Key(), b.Key())
	}
	if a.Equal(ChatInt(7)) {
		t.Fatal("different variants must not be equal")
	}
	if !ChatInt(7).Equal(ChatInt(7)) {
		t.Fatal("equal integers must be equal")
	}
}

func TestChatIDCompare(t *testing.T) {
	if ChatInt(1).Compare(ChatName("zzz")) <= 0 {
		t.Fatal("integer must sort after any name")
	}
	if ChatName("alpha").Compare(ChatInt(-5)) >= 0 {
		t.Fatal("name must sort before any integer")
	}
	if ChatName("Alpha").Compare(ChatName("beta")) >= 0 {
		t.Fatal("names must order ordinally ignoring case")
	}
	if ChatInt(2).Compare(ChatInt(10)) >= 0 {
		t.Fatal("integers must order numerically")
	}
	if ChatInt(3).Compare(ChatInt(3)) != 0 {
		t.Fatal("equal integers must compare 0")
	}
}

func TestChatIDJSONRoundTrip(t *testing.T) {
	num := ChatInt(-100500)
	data, err := json.Marshal(num)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "-100500" {
		t.Fatalf("integer variant must marshal as a number, got %s", data)
	}
	var back ChatID
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(num) {
		t.Fatalf("round trip lost value: %s", back)
	}

	name := ChatName("durov")
	data, err = json.Marshal(name)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"@durov"` {
		t.Fatalf("name variant must marshal as @-token, got %s", data)
	}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.IsName() || back.String() != "@durov" {
		t.Fatalf("round trip lost variant: %s", back)
	}

	// numeric string token keeps the integer variant
	if err := json.Unmarshal([]byte(`"77"`), &back); err != nil {
		t.Fatal(err)
	}
	if back.IsName() {
		t.Fatal("numeric string token must parse as integer variant")
	}
	if n, _ := back.Int(); n != 77 {
		t.Fatalf("unexpected value %d", n)
	}
}
