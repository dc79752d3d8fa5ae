package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/charlesng35/refledger/internal/models"
	"github.com/charlesng35/refledger/internal/services"
	"github.com/charlesng35/refledger/internal/telegram"
	"github.com/charlesng35/refledger/pkg/logger"
)

// Messenger sends replies back to Telegram users.
type Messenger interface {
	SendMessage(ctx context.Context, msg tgbotapi.MessageConfig) (tgbotapi.Message, error)
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
	SetMyCommands(ctx context.Context, commands ...tgbotapi.BotCommand) error
}

// Directory records individuals who talk to the bot.
type Directory interface {
	Upsert(ctx context.Context, individual models.Individual) (bool, error)
}

// TokenIssuer hands out invitation tokens.
type TokenIssuer interface {
	GetOrCreateToken(ctx context.Context, communityID, ownerID string) (*models.InvitationToken, bool, error)
}

// StatsReader answers aggregate queries.
type StatsReader interface {
	StatsFor(ctx context.Context, communityID, ownerID string, limit int) (*services.OwnerStats, error)
	Leaderboard(ctx context.Context, communityID string, topK int) ([]services.LeaderboardEntry, error)
}

// TransitionHandler processes membership transitions.
type TransitionHandler interface {
	HandleTransition(ctx context.Context, event services.TransitionEvent) (services.AttributionResult, error)
}

// Deps groups the collaborators of a Bot.
type Deps struct {
	Messenger   Messenger
	Directory   Directory
	Tokens      TokenIssuer
	Stats       StatsReader
	Transitions TransitionHandler
}

// Option customises a Bot.
type Option func(*Bot)

// WithRecentLimit sets how many recent invitees /mystats lists. Zero keeps the stats default.
func WithRecentLimit(limit int) Option {
	return func(b *Bot) {
		b.recentLimit = limit
	}
}

// WithLeaderboardSize sets how many rows /leaderboard lists. Zero keeps the stats default.
func WithLeaderboardSize(size int) Option {
	return func(b *Bot) {
		b.leaderboardSize = size
	}
}

// Bot is the chat front end of a single community.
type Bot struct {
	community       string
	deps            Deps
	recentLimit     int
	leaderboardSize int
	log             *zap.Logger
}

var _ telegram.UpdateHandler = (*Bot)(nil)

// New constructs a Bot for communityID.
func New(communityID string, deps Deps, opts ...Option) (*Bot, error) {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return nil, errors.New("bot: community id is required")
	}
	if deps.Messenger == nil || deps.Directory == nil || deps.Tokens == nil || deps.Stats == nil || deps.Transitions == nil {
		return nil, errors.New("bot: all dependencies are required")
	}

	b := &Bot{
		community: communityID,
		deps:      deps,
		log:       logger.WithModule("bot"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Commands returns the command menu of the bot.
func Commands() []tgbotapi.BotCommand {
	return append([]tgbotapi.BotCommand(nil), commands...)
}

// RegisterCommands publishes the command menu. Failure is logged and otherwise ignored.
func (b *Bot) RegisterCommands(ctx context.Context) {
	if err := b.deps.Messenger.SetMyCommands(ctx, Commands()...); err != nil {
		b.log.Warn("set commands failed", zap.Error(err))
	}
}

// HandleUpdate routes one update to membership processing or to an action. Only
// storage failures are returned; a reply that cannot be delivered is logged, since
// redelivering the update would not make it deliverable.
func (b *Bot) HandleUpdate(ctx context.Context, update telegram.Update) error {
	switch {
	case update.ChatMember != nil:
		return b.handleChatMember(ctx, update)
	case update.CallbackQuery != nil:
		return b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		return b.handleMessage(ctx, update.Message)
	}
	return nil
}

func (b *Bot) handleChatMember(ctx context.Context, update telegram.Update) error {
	event, ok := telegram.TransitionFromUpdate(update, b.community)
	if !ok {
		return nil
	}
	if _, err := b.deps.Transitions.HandleTransition(ctx, event); err != nil {
		return fmt.Errorf("bot: chat member update %d: %w", update.UpdateID, err)
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	if message.From == nil || message.From.IsBot {
		return nil
	}
	action := ParseCommand(message.Text)
	if action == ActionNone {
		return nil
	}

	chatID := message.From.ID
	if message.Chat != nil {
		chatID = message.Chat.ID
	}
	return b.Perform(ctx, action, *message.From, chatID)
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if err := b.deps.Messenger.AnswerCallbackQuery(ctx, query.ID); err != nil {
		b.log.Warn("answer callback failed", zap.Error(err))
	}

	action := ParseCallback(query.Data)
	if action == ActionNone || query.From == nil {
		return nil
	}

	chatID := query.From.ID
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	}
	return b.Perform(ctx, action, *query.From, chatID)
}

// Perform runs action for user and replies in chatID. The invoker is recorded in the
// directory first; if that fails the action is not run.
func (b *Bot) Perform(ctx context.Context, action Action, user tgbotapi.User, chatID int64) error {
	invoker := telegram.Individual(user)
	if _, err := b.deps.Directory.Upsert(ctx, invoker); err != nil {
		b.log.Error("record invoker failed", zap.String("user", invoker.ID), zap.Error(err))
		b.reply(ctx, newReply(chatID, textRetryLater, nil))
		return fmt.Errorf("bot: record invoker %s: %w", invoker.ID, err)
	}

	switch action {
	case ActionStart:
		b.start(ctx, chatID)
		return nil
	case ActionLink:
		return b.link(ctx, invoker.ID, chatID)
	case ActionStats:
		return b.stats(ctx, invoker.ID, chatID)
	case ActionLeaderboard:
		return b.leaderboard(ctx, chatID)
	}
	return nil
}

func (b *Bot) start(ctx context.Context, chatID int64) {
	b.reply(ctx, newReply(chatID, textWelcome, actionKeyboard()))
	b.reply(ctx, newReply(chatID, textCommandsBelow, commandKeyboard()))
}

// link answers authority failures with guidance. Anything else is a storage fault.
func (b *Bot) link(ctx context.Context, ownerID string, chatID int64) error {
	token, _, err := b.deps.Tokens.GetOrCreateToken(ctx, b.community, ownerID)
	if err == nil {
		b.reply(ctx, linkReply(chatID, token.Token))
		return nil
	}

	b.log.Warn("invite link request failed", zap.String("owner", ownerID), zap.Error(err))
	var authErr *services.AuthorityError
	switch {
	case errors.Is(err, services.ErrInvitePermissionDenied) || errors.Is(err, services.ErrNoAuthority):
		b.reply(ctx, newReply(chatID, textNeedAdmin, commandKeyboard()))
		return nil
	case errors.As(err, &authErr) || errors.Is(err, services.ErrTokenCollision):
		b.reply(ctx, newReply(chatID, textLinkRetryLater, commandKeyboard()))
		return nil
	}
	b.reply(ctx, newReply(chatID, textRetryLater, nil))
	return fmt.Errorf("bot: invite link for %s: %w", ownerID, err)
}

func (b *Bot) stats(ctx context.Context, ownerID string, chatID int64) error {
	stats, err := b.deps.Stats.StatsFor(ctx, b.community, ownerID, b.recentLimit)
	if err != nil {
		b.reply(ctx, newReply(chatID, textRetryLater, nil))
		return fmt.Errorf("bot: stats for %s: %w", ownerID, err)
	}
	b.reply(ctx, newReply(chatID, statsReply(stats), commandKeyboard()))
	return nil
}

func (b *Bot) leaderboard(ctx context.Context, chatID int64) error {
	entries, err := b.deps.Stats.Leaderboard(ctx, b.community, b.leaderboardSize)
	if err != nil {
		b.reply(ctx, newReply(chatID, textRetryLater, nil))
		return fmt.Errorf("bot: leaderboard: %w", err)
	}
	b.reply(ctx, newReply(chatID, leaderboardReply(entries), commandKeyboard()))
	return nil
}

// reply delivers msg. Users who blocked the bot or deleted the chat make this fail
// permanently, so the error stops here.
func (b *Bot) reply(ctx context.Context, msg tgbotapi.MessageConfig) {
	if _, err := b.deps.Messenger.SendMessage(ctx, msg); err != nil {
		b.log.Warn("send reply failed", zap.Int64("chat", msg.ChatID), zap.Error(err))
	}
}
