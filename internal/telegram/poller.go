package telegram

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/refledger/pkg/logger"
)

// AllowedUpdates lists the update kinds the bot consumes. chat_member must be requested
// explicitly; Telegram omits it by default.
var AllowedUpdates = []string{"message", "callback_query", "chat_member"}

// UpdateHandler consumes updates from the poller or the webhook.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update Update) error
}

// UpdateHandlerFunc adapts a function to UpdateHandler.
type UpdateHandlerFunc func(ctx context.Context, update Update) error

// HandleUpdate calls f.
func (f UpdateHandlerFunc) HandleUpdate(ctx context.Context, update Update) error {
	return f(ctx, update)
}

// PollerOption customises a Poller.
type PollerOption func(*Poller)

// WithPollWait sets the long-poll wait. Keep it below the client's HTTP timeout.
func WithPollWait(wait time.Duration) PollerOption {
	return func(p *Poller) {
		if wait > 0 {
			p.wait = wait
		}
	}
}

// WithRetryBackoff sets the pause after a failed getUpdates call.
func WithRetryBackoff(backoff time.Duration) PollerOption {
	return func(p *Poller) {
		if backoff > 0 {
			p.backoff = backoff
		}
	}
}

// Poller delivers updates from getUpdates to a handler, one at a time. Unlike
// tgbotapi's GetUpdatesChan it stops with ctx and waits out retry_after.
type Poller struct {
	client  *Client
	handler UpdateHandler
	wait    time.Duration
	backoff time.Duration
	offset  int
	log     *zap.Logger
}

// NewPoller constructs a Poller.
func NewPoller(client *Client, handler UpdateHandler, opts ...PollerOption) *Poller {
	poller := &Poller{
		client:  client,
		handler: handler,
		wait:    10 * time.Second,
		backoff: 3 * time.Second,
		log:     logger.WithModule("telegram.poller"),
	}
	for _, opt := range opts {
		opt(poller)
	}
	return poller
}

// Run polls until ctx is cancelled. Handler errors are logged and the update is acknowledged
// anyway so one bad update cannot wedge delivery.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.client.DeleteWebhook(ctx); err != nil {
		p.log.Warn("delete webhook failed", zap.Error(err))
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := p.client.GetUpdates(ctx, p.offset, p.wait, AllowedUpdates)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			pause := p.backoff
			if wait := RetryAfter(err); wait > 0 {
				pause = wait
			}
			p.log.Warn("get updates failed", zap.Error(err), zap.Duration("retry_in", pause))
			if !sleep(ctx, pause) {
				return nil
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= p.offset {
				p.offset = update.UpdateID + 1
			}
			if err := p.handler.HandleUpdate(ctx, update); err != nil {
				p.log.Error("update handling failed", zap.Int("update_id", update.UpdateID), zap.Error(err))
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
