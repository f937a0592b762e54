package keyboard

import (
	"github.com/m3rciful/botcore/core/telegram/api"
	"github.com/m3rciful/botcore/core/telegram/callbacks"
)

// InlineBtn describes a convenience wrapper for inline button properties.
// Unique becomes the callback key; Data is carried as its payload. URL
// buttons leave both empty.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
	URL    string
}

// InlineButtons builds an inline keyboard where each provided button is
// placed on its own row.
func InlineButtons(buttons []InlineBtn) *api.InlineKeyboardMarkup {
	rows := make([][]InlineBtn, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []InlineBtn{b})
	}
	return InlineButtonsRows(rows...)
}

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn.
func InlineButtonsRows(rows ...[]InlineBtn) *api.InlineKeyboardMarkup {
	markup := &api.InlineKeyboardMarkup{}
	for _, row := range rows {
		var line []api.InlineKeyboardButton
		for _, b := range row {
			btn := api.InlineKeyboardButton{Text: b.Text, URL: b.URL}
			if b.Unique != "" {
				btn.CallbackData = callbacks.Encode(b.Unique, b.Data)
			}
			line = append(line, btn)
		}
		if len(line) > 0 {
			markup.InlineKeyboard = append(markup.InlineKeyboard, line)
		}
	}
	return markup
}
