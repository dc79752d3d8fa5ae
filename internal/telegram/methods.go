package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// CreateChatInviteLink creates an additional instant-join invite link for the chat.
func (c *Client) CreateChatInviteLink(ctx context.Context, chatID, name string) (tgbotapi.ChatInviteLink, error) {
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:         chatConfig(chatID),
		Name:               truncate(name, 32),
		CreatesJoinRequest: false,
	}

	var link tgbotapi.ChatInviteLink
	resp, err := c.request(ctx, "createChatInviteLink", cfg)
	if err != nil {
		return link, err
	}
	return link, decodeResult("createChatInviteLink", resp, &link)
}

// SendMessage sends msg and returns the delivered message.
func (c *Client) SendMessage(ctx context.Context, msg tgbotapi.MessageConfig) (tgbotapi.Message, error) {
	var message tgbotapi.Message
	resp, err := c.request(ctx, "sendMessage", msg)
	if err != nil {
		return message, err
	}
	return message, decodeResult("sendMessage", resp, &message)
}

// AnswerCallbackQuery acknowledges a button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	_, err := c.request(ctx, "answerCallbackQuery", tgbotapi.NewCallback(callbackID, ""))
	return err
}

// SetMyCommands replaces the bot's command menu.
func (c *Client) SetMyCommands(ctx context.Context, commands ...tgbotapi.BotCommand) error {
	_, err := c.request(ctx, "setMyCommands", tgbotapi.NewSetMyCommands(commands...))
	return err
}

// SetWebhook registers url for update delivery. secret is echoed back in the
// X-Telegram-Bot-Api-Secret-Token header of every delivery. tgbotapi.WebhookConfig
// has no secret_token field, so the parameters are built by hand.
func (c *Client) SetWebhook(ctx context.Context, url, secret string, allowedUpdates []string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return fmt.Errorf("telegram: encode allowed updates: %w", err)
	}
	_, err := c.call(ctx, "setWebhook", params)
	return err
}

// DeleteWebhook switches the bot back to getUpdates delivery.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := c.request(ctx, "deleteWebhook", tgbotapi.DeleteWebhookConfig{DropPendingUpdates: false})
	return err
}

// GetUpdates long-polls for updates starting at offset. Each update keeps its raw JSON.
func (c *Client) GetUpdates(ctx context.Context, offset int, wait time.Duration, allowedUpdates []string) ([]Update, error) {
	cfg := tgbotapi.NewUpdate(offset)
	cfg.Timeout = int(wait / time.Second)
	cfg.AllowedUpdates = allowedUpdates

	resp, err := c.request(ctx, "getUpdates", cfg)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := decodeResult("getUpdates", resp, &raw); err != nil {
		return nil, err
	}

	updates := make([]Update, 0, len(raw))
	for _, item := range raw {
		update, err := DecodeUpdate(item)
		if err != nil {
			return nil, fmt.Errorf("telegram: decode update: %w", err)
		}
		updates = append(updates, update)
	}
	return updates, nil
}

// GetMe returns the bot's own account.
func (c *Client) GetMe(ctx context.Context) (tgbotapi.User, error) {
	var me tgbotapi.User
	resp, err := c.call(ctx, "getMe", nil)
	if err != nil {
		return me, err
	}
	return me, decodeResult("getMe", resp, &me)
}

// chatConfig addresses numeric chat ids directly and anything else as an @username.
func chatConfig(chatID string) tgbotapi.ChatConfig {
	chatID = strings.TrimSpace(chatID)
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return tgbotapi.ChatConfig{ChatID: id}
	}
	return tgbotapi.ChatConfig{SuperGroupUsername: chatID}
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
