package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Update is one envelope returned by getUpdates. At most one of the event
// fields is set.
type Update struct {
	ID                int64          `json:"update_id"`
	Message           *Message       `json:"message,omitempty"`
	EditedMessage     *Message       `json:"edited_message,omitempty"`
	ChannelPost       *Message       `json:"channel_post,omitempty"`
	EditedChannelPost *Message       `json:"edited_channel_post,omitempty"`
	CallbackQuery     *CallbackQuery `json:"callback_query,omitempty"`
}

// Content returns the message carried by any of the message-shaped variants,
// or nil when the update is not message-shaped.
func (u *Update) Content() *Message {
	switch {
	case u.Message != nil:
		return u.Message
	case u.EditedMessage != nil:
		return u.EditedMessage
	case u.ChannelPost != nil:
		return u.ChannelPost
	case u.EditedChannelPost != nil:
		return u.EditedChannelPost
	default:
		return nil
	}
}

// Message is an incoming or outgoing chat message.
type Message struct {
	MessageID      int64           `json:"message_id"`
	From           *User           `json:"from,omitempty"`
	Chat           Chat            `json:"chat"`
	Date           UnixTime        `json:"date,omitempty"`
	EditDate       UnixTime        `json:"edit_date,omitempty"`
	Text           string          `json:"text,omitempty"`
	Caption        string          `json:"caption,omitempty"`
	Entities       []MessageEntity `json:"entities,omitempty"`
	ReplyToMessage *Message        `json:"reply_to_message,omitempty"`
}

// User is a Telegram account.
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot,omitempty"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// FullName returns first and last name joined with a space.
func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}

// Chat describes the conversation a message belongs to.
type Chat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type,omitempty"`
	Title     string `json:"title,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// CallbackQuery is an inline keyboard button press.
type CallbackQuery struct {
	ID              string   `json:"id"`
	From            User     `json:"from"`
	Message         *Message `json:"message,omitempty"`
	InlineMessageID string   `json:"inline_message_id,omitempty"`
	ChatInstance    string   `json:"chat_instance,omitempty"`
	Data            string   `json:"data,omitempty"`
}

// BotCommand is one entry of the published command menu.
type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// InlineKeyboardMarkup is an inline keyboard attached to a message.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton is a single inline keyboard button.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// maxUnixSeconds is the last second representable as a calendar date
// (9999-12-31T23:59:59Z). Larger magnitudes on the wire are treated as
// millisecond timestamps.
const maxUnixSeconds = 253402300799

// UnixTime decodes the API's date fields, which are Unix seconds on the wire.
type UnixTime struct {
	time.Time
}

// UnmarshalJSON accepts an integer timestamp in seconds, or in milliseconds
// when the magnitude does not fit the second range.
func (t *UnixTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == "0" {
		t.Time = time.Time{}
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("api: invalid timestamp %s: %w", s, err)
	}
	if v > maxUnixSeconds || v < -maxUnixSeconds {
		t.Time = time.UnixMilli(v).UTC()
		return nil
	}
	t.Time = time.Unix(v, 0).UTC()
	return nil
}

// MarshalJSON writes Unix seconds; the zero time is written as 0.
func (t UnixTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("0"), nil
	}
	return json.Marshal(t.Unix())
}

// IsZero reports whether the timestamp was absent on the wire.
func (t UnixTime) IsZero() bool {
	return t.Time.IsZero()
}
