package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/refledger/internal/app"
	iauth "github.com/charlesng35/refledger/internal/auth"
	"github.com/charlesng35/refledger/internal/database/testutil"
	"github.com/charlesng35/refledger/internal/monitoring"
	"github.com/charlesng35/refledger/internal/monitoring/checks"
	"github.com/charlesng35/refledger/internal/services"
	"github.com/charlesng35/refledger/internal/telegram"
)

func newTestServices(t *testing.T, db *gorm.DB) Services {
	t.Helper()

	identity, err := services.NewIdentityService(db)
	require.NoError(t, err)
	invitations, err := services.NewInvitationService(db, nil)
	require.NoError(t, err)
	attribution, err := services.NewAttributionService(db)
	require.NoError(t, err)
	stats, err := services.NewReferralStatsService(db)
	require.NoError(t, err)

	return Services{
		Identity:    identity,
		Invitations: invitations,
		Attribution: attribution,
		Stats:       stats,
	}
}

func newTestConfig() *app.Config {
	return &app.Config{
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
}

func newTestJWT(t *testing.T) *iauth.JWTService {
	t.Helper()
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-test-secret", Issuer: "test"})
	require.NoError(t, err)
	return jwtSvc
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouterPublicAndProtectedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	mon := monitoring.NewModule()
	mon.Health().RegisterReadiness(checks.Database(db, 0))

	router, err := NewRouter(newTestConfig(), newTestJWT(t), newTestServices(t, db), nil, mon)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health").Code)
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/ready").Code)
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/health/live").Code)

	require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/api/communities/c1/leaderboard").Code)
	require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodPost, "/api/communities/c1/tokens").Code)

	require.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/nope").Code)
}

func TestRouterWebhookMountedOnlyWithHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	cfg := newTestConfig()
	cfg.Telegram.WebhookSecret = "s3cret"

	router, err := NewRouter(cfg, newTestJWT(t), newTestServices(t, db), nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, serve(router, http.MethodPost, "/telegram/webhook").Code)

	svc := newTestServices(t, db)
	svc.Updates = telegram.UpdateHandlerFunc(func(context.Context, telegram.Update) error { return nil })
	router, err = NewRouter(cfg, newTestJWT(t), svc, nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodPost, "/telegram/webhook").Code)
}

func TestRouterMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	router, err := NewRouter(newTestConfig(), newTestJWT(t), newTestServices(t, db), nil, monitoring.NewModule())
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health").Code)

	rec := serve(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "refledger_api_latency_seconds")
}

type stubBot struct {
	err error
}

func (s stubBot) GetMe(context.Context) (tgbotapi.User, error) {
	return tgbotapi.User{ID: 1, IsBot: true, UserName: "ledger_bot"}, s.err
}

func TestRouterReadinessChecksTelegram(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc := newTestServices(t, db)
	svc.Telegram = stubBot{}

	router, err := NewRouter(newTestConfig(), newTestJWT(t), svc, nil, monitoring.NewModule())
	require.NoError(t, err)

	rec := serve(router, http.MethodGet, "/health/ready")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"component":"telegram"`)
	require.Contains(t, rec.Body.String(), "@ledger_bot")

	summary := serve(router, http.MethodGet, "/health")
	require.NotContains(t, summary.Body.String(), `"checks"`)

	svc.Telegram = stubBot{err: errors.New("connection refused")}
	router, err = NewRouter(newTestConfig(), newTestJWT(t), svc, nil, monitoring.NewModule())
	require.NoError(t, err)

	rec = serve(router, http.MethodGet, "/api/health/ready")
	require.Equal(t, http.StatusOK, rec.Code, "a degraded Bot API does not fail readiness")
	require.Contains(t, rec.Body.String(), "connection refused")
}

func TestRouterHealthDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	cfg := newTestConfig()
	cfg.Monitoring.Health.Enabled = false

	router, err := NewRouter(cfg, newTestJWT(t), newTestServices(t, db), nil, monitoring.NewModule())
	require.NoError(t, err)

	rec := serve(router, http.MethodGet, "/health")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "disabled")
}

func TestNewRouterValidatesDependencies(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	_, err := NewRouter(nil, newTestJWT(t), newTestServices(t, db), nil, nil)
	require.Error(t, err)

	_, err = NewRouter(newTestConfig(), nil, newTestServices(t, db), nil, nil)
	require.Error(t, err)

	_, err = NewRouter(newTestConfig(), newTestJWT(t), Services{}, nil, nil)
	require.ErrorContains(t, err, "identity service")
}
