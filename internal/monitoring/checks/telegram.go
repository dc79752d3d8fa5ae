package checks

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/charlesng35/refledger/internal/monitoring"
)

const defaultTelegramTimeout = 5 * time.Second

// BotIdentity is implemented by the Telegram client.
type BotIdentity interface {
	GetMe(ctx context.Context) (tgbotapi.User, error)
}

// Telegram calls getMe on the Bot API. An unreachable API degrades readiness without failing it.
func Telegram(client BotIdentity, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("telegram", func(ctx context.Context) monitoring.CheckResult {
		start := time.Now()
		if client == nil {
			return monitoring.CheckResult{
				Status:   monitoring.StatusDegraded,
				Details:  "telegram not configured",
				Duration: time.Since(start),
			}
		}

		checkCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultTelegramTimeout))
		defer cancel()

		me, err := client.GetMe(checkCtx)
		if err != nil {
			return monitoring.CheckResult{
				Status:   monitoring.StatusDegraded,
				Details:  err.Error(),
				Duration: time.Since(start),
			}
		}
		return monitoring.CheckResult{
			Status:   monitoring.StatusUp,
			Details:  "@" + me.UserName,
			Duration: time.Since(start),
		}
	})
}
