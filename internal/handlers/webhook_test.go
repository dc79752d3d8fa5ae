package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/refledger/internal/handlers/testutil"
	"github.com/charlesng35/refledger/internal/models"
)

const memberUpdate = `{
  "update_id": 501,
  "chat_member": {
    "chat": {"id": -100123, "type": "supergroup"},
    "from": {"id": 7, "first_name": "Bob"},
    "date": 1714564800,
    "old_chat_member": {"status": "left", "user": {"id": 7, "first_name": "Bob"}},
    "new_chat_member": {"status": "member", "user": {"id": 7, "first_name": "Bob"}},
    "invite_link": {"invite_link": "https://t.me/+abc", "creator": {"id": 1, "first_name": "Alice"}}
  }
}`

func TestWebhookDeliversUpdate(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Webhook([]byte(memberUpdate), testutil.WebhookSecret)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	received := env.Updates.Received()
	require.Len(t, received, 1)
	require.Equal(t, 501, received[0].UpdateID)
	require.NotNil(t, received[0].ChatMember)
	require.JSONEq(t, memberUpdate, string(received[0].Raw))
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Webhook([]byte(memberUpdate), "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = env.Webhook([]byte(memberUpdate), "guess")
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	require.Empty(t, env.Updates.Received())
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Webhook([]byte("{not json"), testutil.WebhookSecret)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Empty(t, env.Updates.Received())
}

func TestWebhookProcessingErrorRequestsRedelivery(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Updates.Fail(errors.New("database locked"))

	resp := env.Webhook([]byte(memberUpdate), testutil.WebhookSecret)
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.Len(t, env.Updates.Received(), 1)
}

var errBlocked = &tgbotapi.Error{Code: http.StatusForbidden, Message: "Forbidden: bot was blocked by the user"}

type blockedMessenger struct{}

func (blockedMessenger) SendMessage(context.Context, tgbotapi.MessageConfig) (tgbotapi.Message, error) {
	return tgbotapi.Message{}, errBlocked
}

func (blockedMessenger) AnswerCallbackQuery(context.Context, string) error {
	return errBlocked
}

func (blockedMessenger) SetMyCommands(context.Context, ...tgbotapi.BotCommand) error {
	return nil
}

func TestWebhookUndeliverableReplyIsAcknowledged(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithBot(blockedMessenger{}))

	command := `{"update_id":601,"message":{"message_id":1,"date":1714564800,"text":"/link",` +
		`"from":{"id":7,"is_bot":false,"first_name":"Alice","username":"alice"},"chat":{"id":7,"type":"private"}}}`
	resp := env.Webhook([]byte(command), testutil.WebhookSecret)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Equal(t, 1, env.Authority.Calls())

	var token models.InvitationToken
	require.NoError(t, env.DB.Where("community_id = ? AND owner_id = ?", testutil.BotCommunity, "7").First(&token).Error)

	callback := `{"update_id":602,"callback_query":{"id":"cb-1","data":"act:stats","from":{"id":7,"is_bot":false,"first_name":"Alice"}}}`
	resp = env.Webhook([]byte(callback), testutil.WebhookSecret)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	join := fmt.Sprintf(`{"update_id":603,"chat_member":{"chat":{"id":%s,"type":"supergroup"},"from":{"id":8,"first_name":"Bob"},"date":1714564900,`+
		`"old_chat_member":{"status":"left","user":{"id":8,"first_name":"Bob"}},"new_chat_member":{"status":"member","user":{"id":8,"first_name":"Bob"}},`+
		`"invite_link":{"invite_link":%q,"creates_join_request":false}}}`, testutil.BotCommunity, token.Token)
	resp = env.Webhook([]byte(join), testutil.WebhookSecret)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var credits int64
	require.NoError(t, env.DB.Model(&models.ReferralCredit{}).Where("referred_id = ?", "8").Count(&credits).Error)
	require.EqualValues(t, 1, credits)
}
