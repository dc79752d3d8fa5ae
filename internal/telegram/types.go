package telegram

import (
	"encoding/json"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Update is one incoming update from getUpdates or the webhook.
type Update struct {
	tgbotapi.Update

	// Raw holds the undecoded update when it was parsed with DecodeUpdate.
	Raw json.RawMessage `json:"-"`
}

// DecodeUpdate parses an update and keeps the raw bytes for journaling.
func DecodeUpdate(data []byte) (Update, error) {
	var update Update
	if err := json.Unmarshal(data, &update.Update); err != nil {
		return Update{}, err
	}
	update.Raw = append(json.RawMessage(nil), data...)
	return update, nil
}
