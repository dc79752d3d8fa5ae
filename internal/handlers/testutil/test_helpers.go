package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/refledger/internal/api"
	"github.com/charlesng35/refledger/internal/app"
	iauth "github.com/charlesng35/refledger/internal/auth"
	"github.com/charlesng35/refledger/internal/bot"
	sharedtestutil "github.com/charlesng35/refledger/internal/database/testutil"
	"github.com/charlesng35/refledger/internal/middleware"
	"github.com/charlesng35/refledger/internal/monitoring"
	"github.com/charlesng35/refledger/internal/services"
	"github.com/charlesng35/refledger/internal/telegram"
	"github.com/charlesng35/refledger/pkg/response"
)

const (
	// WebhookSecret is the secret the test router expects on webhook deliveries.
	WebhookSecret = "test-webhook-secret"
	// BotCommunity is the community served by the bot of WithBot.
	BotCommunity = "-100123"
)

// Authority is a controllable invitation authority.
type Authority struct {
	calls atomic.Int64

	mu  sync.Mutex
	err error
}

// CreateInviteLink returns a deterministic link unless a failure is configured.
func (a *Authority) CreateInviteLink(_ context.Context, communityID, label string) (string, error) {
	n := a.calls.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	return fmt.Sprintf("https://t.me/+%s-%s-%d", communityID, label, n), nil
}

// Fail makes subsequent calls return err; nil restores success.
func (a *Authority) Fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Calls reports how many links were requested.
func (a *Authority) Calls() int {
	return int(a.calls.Load())
}

// Updates records webhook deliveries.
type Updates struct {
	mu       sync.Mutex
	received []telegram.Update
	err      error
}

// HandleUpdate stores the update and returns the configured error.
func (u *Updates) HandleUpdate(_ context.Context, update telegram.Update) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.received = append(u.received, update)
	return u.err
}

// Fail makes subsequent deliveries return err.
func (u *Updates) Fail(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.err = err
}

// Received returns a copy of every delivered update.
func (u *Updates) Received() []telegram.Update {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]telegram.Update(nil), u.received...)
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T         *testing.T
	DB        *gorm.DB
	Router    *gin.Engine
	JWT       *iauth.JWTService
	Config    *app.Config
	Authority *Authority
	Updates   *Updates
	Bot       *bot.Bot
	Jobs      *monitoring.JobTracker
}

type envSettings struct {
	cfg       *app.Config
	messenger bot.Messenger
}

// EnvOption customises NewEnv.
type EnvOption func(*envSettings)

// WithTokenRateLimit limits token issuance per client.
func WithTokenRateLimit(requests int, window time.Duration) EnvOption {
	return func(s *envSettings) {
		s.cfg.Server.RateLimit = app.RateLimitConfig{Requests: requests, Window: window}
	}
}

// WithBot routes webhook deliveries to a real bot for BotCommunity that replies
// through messenger, instead of recording them in Env.Updates.
func WithBot(messenger bot.Messenger) EnvOption {
	return func(s *envSettings) {
		s.messenger = messenger
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Telegram: app.TelegramConfig{WebhookSecret: WebhookSecret},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	settings := envSettings{cfg: cfg}
	for _, opt := range opts {
		opt(&settings)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	authority := &Authority{}
	updates := &Updates{}

	identity, err := services.NewIdentityService(db)
	require.NoError(t, err)
	invitations, err := services.NewInvitationService(db, authority)
	require.NoError(t, err)
	journal, err := services.NewJournalService(db)
	require.NoError(t, err)
	attribution, err := services.NewAttributionService(db, services.WithJournal(journal))
	require.NoError(t, err)
	stats, err := services.NewReferralStatsService(db)
	require.NoError(t, err)

	var handler telegram.UpdateHandler = updates
	var referralBot *bot.Bot
	if settings.messenger != nil {
		referralBot, err = bot.New(BotCommunity, bot.Deps{
			Messenger:   settings.messenger,
			Directory:   identity,
			Tokens:      invitations,
			Stats:       stats,
			Transitions: attribution,
		})
		require.NoError(t, err)
		handler = referralBot
	}

	mon := monitoring.NewModule()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	router, err := api.NewRouter(cfg, jwtSvc, api.Services{
		Identity:    identity,
		Invitations: invitations,
		Attribution: attribution,
		Stats:       stats,
		Journal:     journal,
		Updates:     handler,
	}, middleware.NewMemoryRateStore(ctx), mon)
	require.NoError(t, err)

	return &Env{
		T:         t,
		DB:        db,
		Router:    router,
		JWT:       jwtSvc,
		Config:    cfg,
		Authority: authority,
		Updates:   updates,
		Bot:       referralBot,
		Jobs:      mon.Jobs(),
	}
}

// AccessToken issues a bearer token for clientID with the given scopes.
func (e *Env) AccessToken(clientID string, scopes ...string) string {
	e.T.Helper()
	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{ClientID: clientID, Scopes: scopes})
	require.NoError(e.T, err)
	return token
}

// FullAccessToken issues a token carrying every scope.
func (e *Env) FullAccessToken() string {
	return e.AccessToken("test-client", iauth.AllScopes...)
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// Webhook posts a raw update body with the given secret header.
func (e *Env) Webhook(body []byte, secret string) *httptest.ResponseRecorder {
	e.T.Helper()

	req, err := http.NewRequest(http.MethodPost, "/telegram/webhook", bytes.NewReader(body))
	require.NoError(e.T, err)
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(middleware.WebhookSecretHeader, secret)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
