package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/refledger/internal/api"
	"github.com/charlesng35/refledger/internal/app"
	"github.com/charlesng35/refledger/internal/app/maintenance"
	iauth "github.com/charlesng35/refledger/internal/auth"
	"github.com/charlesng35/refledger/internal/bot"
	"github.com/charlesng35/refledger/internal/database"
	"github.com/charlesng35/refledger/internal/middleware"
	"github.com/charlesng35/refledger/internal/monitoring"
	"github.com/charlesng35/refledger/internal/monitoring/checks"
	"github.com/charlesng35/refledger/internal/services"
	"github.com/charlesng35/refledger/internal/telegram"
	"github.com/charlesng35/refledger/pkg/logger"
)

const (
	jobsMaxAge        = 48 * time.Hour
	pollTimeoutMargin = 5 * time.Second
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Services   api.Services
	Telegram   *telegram.Client
	Bot        *bot.Bot
	Poller     *telegram.Poller
	Scheduler  *maintenance.Scheduler
	Monitoring *monitoring.Module
	RateStore  middleware.RateStore
	Router     *gin.Engine

	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// bootstrapRuntime initialises the database, services, the optional Telegram front end and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			if shutdownErr := stack.Shutdown(context.Background(), log); shutdownErr != nil {
				log.Warn("partial bootstrap cleanup failed", zap.Error(shutdownErr))
			}
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	var runCtx context.Context
	runCtx, stack.cancel = context.WithCancel(ctx)

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	var authority services.InviteAuthority
	if cfg.Telegram.Enabled() {
		stack.Telegram, err = telegram.NewClient(cfg.Telegram.BotToken,
			telegram.WithBaseURL(cfg.Telegram.APIBaseURL),
			telegram.WithTimeout(clientTimeout(cfg.Telegram)),
			telegram.WithLifetime(runCtx),
		)
		if err != nil {
			return nil, fmt.Errorf("initialise telegram client: %w", err)
		}
		authority = telegram.NewInviteAuthority(stack.Telegram)
	} else {
		log.Info("telegram disabled; tokens can only be read, not minted")
	}

	stack.Services, err = buildServices(stack.DB, authority, cfg.Referrals)
	if err != nil {
		return nil, err
	}
	if stack.Telegram != nil {
		stack.Services.Telegram = stack.Telegram
	}

	stack.Monitoring = monitoring.NewModule()
	monitoring.SetModule(stack.Monitoring)
	health := stack.Monitoring.Health()
	health.RegisterLiveness(monitoring.NewCheck("process", func(context.Context) monitoring.CheckResult {
		return monitoring.CheckResult{Status: monitoring.StatusUp}
	}))
	health.RegisterReadiness(checks.Database(stack.DB, 0))
	health.RegisterReadiness(checks.Jobs(stack.Monitoring.Jobs(), jobsMaxAge))

	if stack.Telegram != nil {
		if err := stack.startTelegram(runCtx, cfg, log); err != nil {
			return nil, err
		}
	}

	stack.Scheduler = maintenance.NewScheduler(stack.DB, stack.Services.Stats,
		maintenance.WithGaugeSchedule(cfg.Maintenance.GaugeSchedule),
		maintenance.WithPruneSchedule(cfg.Maintenance.PruneSchedule),
		maintenance.WithJournalRetentionDays(cfg.Maintenance.JournalRetentionDays),
		maintenance.WithJobTracker(stack.Monitoring.Jobs()),
	)
	if err := stack.Scheduler.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.RateStore = middleware.NewMemoryRateStore(runCtx)

	stack.Router, err = api.NewRouter(cfg, jwtSvc, stack.Services, stack.RateStore, stack.Monitoring)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// clientTimeout keeps the HTTP timeout above the long-poll wait.
func clientTimeout(cfg app.TelegramConfig) time.Duration {
	timeout := cfg.Timeout
	if !cfg.UsesWebhook() && timeout <= cfg.PollWait {
		timeout = cfg.PollWait + pollTimeoutMargin
	}
	return timeout
}

func buildServices(db *gorm.DB, authority services.InviteAuthority, cfg app.ReferralsConfig) (api.Services, error) {
	var svc api.Services
	var err error

	if svc.Identity, err = services.NewIdentityService(db); err != nil {
		return svc, fmt.Errorf("initialise identity service: %w", err)
	}

	if svc.Invitations, err = services.NewInvitationService(db, authority, services.WithInviteLabelPrefix(cfg.LinkLabelPrefix)); err != nil {
		return svc, fmt.Errorf("initialise invitation service: %w", err)
	}

	var attributionOpts []services.AttributionOption
	if cfg.Journal {
		if svc.Journal, err = services.NewJournalService(db); err != nil {
			return svc, fmt.Errorf("initialise journal service: %w", err)
		}
		attributionOpts = append(attributionOpts, services.WithJournal(svc.Journal))
	}
	if svc.Attribution, err = services.NewAttributionService(db, attributionOpts...); err != nil {
		return svc, fmt.Errorf("initialise attribution service: %w", err)
	}

	svc.Stats, err = services.NewReferralStatsService(db,
		services.WithRecentLimit(cfg.RecentLimit),
		services.WithLeaderboardSize(cfg.LeaderboardSize),
	)
	if err != nil {
		return svc, fmt.Errorf("initialise referral stats service: %w", err)
	}

	return svc, nil
}

// startTelegram builds the bot and connects it to either the webhook route or a long-polling worker.
func (s *runtimeStack) startTelegram(ctx context.Context, cfg *app.Config, log *zap.Logger) error {
	community := strings.TrimSpace(cfg.Telegram.CommunityID)
	if community == "" {
		return errors.New("telegram.community_id must be configured when telegram.bot_token is set")
	}

	var err error
	s.Bot, err = bot.New(community, bot.Deps{
		Messenger:   s.Telegram,
		Directory:   s.Services.Identity,
		Tokens:      s.Services.Invitations,
		Stats:       s.Services.Stats,
		Transitions: s.Services.Attribution,
	},
		bot.WithRecentLimit(cfg.Referrals.RecentLimit),
		bot.WithLeaderboardSize(cfg.Referrals.LeaderboardSize),
	)
	if err != nil {
		return fmt.Errorf("initialise bot: %w", err)
	}

	s.Bot.RegisterCommands(ctx)

	if cfg.Telegram.UsesWebhook() {
		if err := s.Telegram.SetWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret, telegram.AllowedUpdates); err != nil {
			return fmt.Errorf("register telegram webhook: %w", err)
		}
		s.Services.Updates = s.Bot
		log.Info("telegram webhook registered", zap.String("url", cfg.Telegram.WebhookURL))
		return nil
	}

	s.Poller = telegram.NewPoller(s.Telegram, s.Bot, telegram.WithPollWait(cfg.Telegram.PollWait))
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		if err := s.Poller.Run(ctx); err != nil {
			log.Error("telegram poller stopped", zap.Error(err))
		}
	}()
	log.Info("telegram long polling started", zap.String("community", community))
	return nil
}

// Shutdown gracefully stops background work and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.workers.Wait()

	var errs error
	if s.Scheduler != nil {
		stopCtx := s.Scheduler.Stop()
		<-stopCtx.Done()
		errs = multierr.Append(errs, s.Scheduler.RunOnce(ctx))
	}

	if s.DB != nil {
		errs = multierr.Append(errs, database.Close(s.DB))
	}

	if errs != nil {
		log.Warn("runtime shutdown reported errors", zap.Error(errs))
	}
	return errs
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.OpenAndMigrate(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}
