package api

// Request is a typed API call. Each request value knows its wire method name;
// the payload shape is the value itself serialized with snake_case keys,
// empty fields omitted.
type Request interface {
	Method() string
}

// GetUpdates long-polls for new updates starting at Offset.
type GetUpdates struct {
	Offset         int64    `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

func (GetUpdates) Method() string { return "getUpdates" }

// SendMessage posts a text message to a chat.
type SendMessage struct {
	ChatID              ChatID                `json:"chat_id"`
	Text                string                `json:"text"`
	ParseMode           string                `json:"parse_mode,omitempty"`
	DisableNotification bool                  `json:"disable_notification,omitempty"`
	ReplyToMessageID    int64                 `json:"reply_to_message_id,omitempty"`
	ReplyMarkup         *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (SendMessage) Method() string { return "sendMessage" }

// AnswerCallbackQuery acknowledges an inline keyboard press.
type AnswerCallbackQuery struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

func (AnswerCallbackQuery) Method() string { return "answerCallbackQuery" }

// SetMyCommands publishes the bot command menu.
type SetMyCommands struct {
	Commands []BotCommand `json:"commands"`
}

func (SetMyCommands) Method() string { return "setMyCommands" }

// DeleteWebhook removes a webhook registration so long polling can proceed.
type DeleteWebhook struct {
	DropPendingUpdates bool `json:"drop_pending_updates,omitempty"`
}

func (DeleteWebhook) Method() string { return "deleteWebhook" }

// GetMe fetches the bot's own account.
type GetMe struct{}

func (GetMe) Method() string { return "getMe" }
