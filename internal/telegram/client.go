package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	// DefaultBaseURL is the public Bot API endpoint.
	DefaultBaseURL = "https://api.telegram.org"
	defaultTimeout = 15 * time.Second
)

type clientSettings struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	lifetime   context.Context
}

// ClientOption customises a Client.
type ClientOption func(*clientSettings)

// WithBaseURL points the client at another Bot API server, such as a local one or a test server.
func WithBaseURL(baseURL string) ClientOption {
	return func(s *clientSettings) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			s.baseURL = trimmed
		}
	}
}

// WithHTTPClient overrides the HTTP client used for requests. The client is used as given.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(s *clientSettings) {
		if httpClient != nil {
			s.httpClient = httpClient
		}
	}
}

// WithTimeout sets the request timeout of the default HTTP client. It has no effect
// together with WithHTTPClient.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(s *clientSettings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithLifetime bounds every request by ctx. Cancelling it aborts in-flight long polls.
func WithLifetime(ctx context.Context) ClientOption {
	return func(s *clientSettings) {
		s.lifetime = ctx
	}
}

// Client adapts tgbotapi.BotAPI to the calls the service makes.
type Client struct {
	api   *tgbotapi.BotAPI
	token string
}

// NewClient constructs a Client for the bot token. No request is made until the first call.
func NewClient(token string, opts ...ClientOption) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("telegram: bot token is required")
	}

	settings := clientSettings{baseURL: DefaultBaseURL, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&settings)
	}

	httpClient := settings.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: settings.timeout}
	}

	var doer tgbotapi.HTTPClient = httpClient
	if settings.lifetime != nil {
		doer = lifetimeClient{ctx: settings.lifetime, client: httpClient}
	}

	// NewBotAPIWithClient would call getMe here; the readiness check does that instead.
	api := &tgbotapi.BotAPI{Token: token, Client: doer, Buffer: 100}
	api.SetAPIEndpoint(settings.baseURL + "/bot%s/%s")

	return &Client{api: api, token: token}, nil
}

// request sends a library config. tgbotapi calls are not context aware, so ctx is
// only checked before sending; WithLifetime covers cancellation of running calls.
func (c *Client) request(ctx context.Context, method string, cfg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if ctx != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	resp, err := c.api.Request(cfg)
	if err != nil {
		return nil, c.wrap(method, err)
	}
	return resp, nil
}

func (c *Client) call(ctx context.Context, method string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	if ctx != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	resp, err := c.api.MakeRequest(method, params)
	if err != nil {
		return nil, c.wrap(method, err)
	}
	return resp, nil
}

func (c *Client) wrap(method string, err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	return fmt.Errorf("telegram: %s: %w", method, c.redact(err))
}

// redact strips the bot token from transport errors, which embed the request URL.
func (c *Client) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = strings.ReplaceAll(urlErr.URL, c.token, "<token>")
		return err
	}
	if msg := err.Error(); strings.Contains(msg, c.token) {
		return errors.New(strings.ReplaceAll(msg, c.token, "<token>"))
	}
	return err
}

func decodeResult(method string, resp *tgbotapi.APIResponse, out any) error {
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("telegram: decode %s result: %w", method, err)
	}
	return nil
}

type lifetimeClient struct {
	ctx    context.Context
	client *http.Client
}

func (l lifetimeClient) Do(req *http.Request) (*http.Response, error) {
	return l.client.Do(req.WithContext(l.ctx))
}
