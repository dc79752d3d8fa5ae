package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/charlesng35/refledger/internal/services"
)

const (
	textWelcome = "Welcome to the referral contest!\n\n" +
		"Get your personal invite link, share it with friends, and climb the leaderboard.\n\n" +
		"/link - your personal invite link\n" +
		"/mystats - people who joined through your link\n" +
		"/leaderboard - top inviters\n\n" +
		"Each person is counted once. Leaving and joining again does not count a second time."
	textCommandsBelow  = "Commands are below."
	textYourLink       = "Your personal invite link:"
	textLinkWarning    = "Share this exact link or button. Joins through the public channel name are not counted."
	textJoinButton     = "Join the channel"
	textNeedAdmin      = "The bot must be an admin of the channel with the 'Invite users' right. Ask a channel admin to grant it, then try again."
	textLinkRetryLater = "Could not create your invite link right now. Please try again in a moment."
	textRetryLater     = "Something went wrong. Please try again later."
	textStatsTitle     = "People who joined with your link: %d"
	textStatsRecent    = "Recent joins:"
	textTopTitle       = "Top inviters:"
	textEmptyBoard     = "-"
	creditTimeLayout   = "2006-01-02 15:04 UTC"
)

var commands = []tgbotapi.BotCommand{
	{Command: "start", Description: "How the contest works"},
	{Command: "link", Description: "Your personal invite link"},
	{Command: "mystats", Description: "Your referral stats"},
	{Command: "leaderboard", Description: "Top inviters"},
}

func actionKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("My link", CallbackLink),
			tgbotapi.NewInlineKeyboardButtonData("My stats", CallbackStats),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Leaderboard", CallbackLeaderboard),
		),
	)
}

func commandKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton("/link"), tgbotapi.NewKeyboardButton("/mystats")),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton("/leaderboard")),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

// newReply builds a message; markup may be nil.
func newReply(chatID int64, text string, markup any) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	return msg
}

func linkReply(chatID int64, link string) tgbotapi.MessageConfig {
	text := fmt.Sprintf("%s\n%s\n\n%s", textYourLink, link, textLinkWarning)
	msg := newReply(chatID, text, tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(textJoinButton, link)),
	))
	msg.DisableWebPagePreview = true
	return msg
}

func statsReply(stats *services.OwnerStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, textStatsTitle, stats.Count)
	if len(stats.Recent) > 0 {
		b.WriteString("\n\n")
		b.WriteString(textStatsRecent)
		for _, entry := range stats.Recent {
			fmt.Fprintf(&b, "\n• %s (%s)", entry.Display, entry.CreditedAt.UTC().Format(creditTimeLayout))
		}
	}
	return b.String()
}

func leaderboardReply(entries []services.LeaderboardEntry) string {
	lines := []string{textTopTitle}
	if len(entries) == 0 {
		lines = append(lines, textEmptyBoard)
	}
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("%d. %s - %d", entry.Rank, entry.Display, entry.Count))
	}
	return strings.Join(lines, "\n")
}
