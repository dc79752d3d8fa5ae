package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/refledger/internal/app"
	iauth "github.com/charlesng35/refledger/internal/auth"
	"github.com/charlesng35/refledger/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	issueClient string
	issueScopes string
	issueTTL    time.Duration
}

func parseFlags(args []string, out io.Writer) (options, error) {
	fs := flag.NewFlagSet("refledger-server", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts options
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration directory or file")
	fs.StringVar(&opts.issueClient, "issue-token", "", "Print an API access token for the named client and exit")
	fs.StringVar(&opts.issueScopes, "scopes", strings.Join(iauth.AllScopes, ","), "Comma separated scopes for -issue-token")
	fs.DurationVar(&opts.issueTTL, "ttl", 0, "Lifetime of the token printed by -issue-token (default auth.jwt.access_token_ttl)")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args, os.Stdout)
	if err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(opts.configPath)
	if err != nil {
		return err
	}

	if opts.issueClient != "" {
		return issueAccessToken(os.Stdout, cfg, opts)
	}

	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")
	for key := range generated {
		log.Info("generated runtime secret", zap.String("key", key))
	}
	if generated["auth.jwt.secret"] {
		log.Warn("auth.jwt.secret was generated; API tokens will not survive a restart")
	}

	stack, err := bootstrapRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           stack.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		runErr = multierr.Append(runErr, fmt.Errorf("graceful shutdown: %w", err))
	}
	if err, ok := <-serverErr; ok && err != nil {
		runErr = multierr.Append(runErr, fmt.Errorf("server error: %w", err))
	}

	runErr = multierr.Append(runErr, stack.Shutdown(shutdownCtx, log))
	if runErr == nil {
		log.Info("server stopped gracefully")
	}
	return runErr
}

// issueAccessToken prints a bearer token signed with the configured secret.
func issueAccessToken(out io.Writer, cfg *app.Config, opts options) error {
	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		return errors.New("auth.jwt.secret must be configured to issue tokens")
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	var scopes []string
	for _, scope := range strings.Split(opts.issueScopes, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			scopes = append(scopes, scope)
		}
	}

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{
		ClientID: opts.issueClient,
		Scopes:   scopes,
		TTL:      opts.issueTTL,
	})
	if err != nil {
		return fmt.Errorf("issue access token: %w", err)
	}

	_, err = fmt.Fprintln(out, token)
	return err
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}
