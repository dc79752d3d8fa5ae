package telegram

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/charlesng35/refledger/internal/models"
	"github.com/charlesng35/refledger/internal/services"
)

// ChatID formats a Telegram chat id the way communities are keyed in storage.
func ChatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Individual converts a Telegram user into a directory entry.
func Individual(user tgbotapi.User) models.Individual {
	name := strings.TrimSpace(strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.LastName))
	return models.Individual{
		ID:          strconv.FormatInt(user.ID, 10),
		Handle:      user.UserName,
		DisplayName: name,
	}
}

// MemberStatus maps a chat member onto the closed status enumeration.
func MemberStatus(member tgbotapi.ChatMember) models.MemberStatus {
	return models.ParseMemberStatus(member.Status)
}

// TransitionFromUpdate extracts a membership transition for communityID. It reports false
// for updates that are not chat_member changes of that community.
func TransitionFromUpdate(update Update, communityID string) (services.TransitionEvent, bool) {
	change := update.ChatMember
	if change == nil || change.NewChatMember.User == nil || ChatID(change.Chat.ID) != strings.TrimSpace(communityID) {
		return services.TransitionEvent{}, false
	}

	event := services.TransitionEvent{
		CommunityID: ChatID(change.Chat.ID),
		Subject:     Individual(*change.NewChatMember.User),
		OldStatus:   MemberStatus(change.OldChatMember),
		NewStatus:   MemberStatus(change.NewChatMember),
		Payload:     update.Raw,
	}
	if change.InviteLink != nil {
		event.Token = change.InviteLink.InviteLink
	}
	return event, true
}
