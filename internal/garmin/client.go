package garmin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/fitupload/internal/tokenfile"
)

// Defaults used when no Option overrides them.
const (
	DefaultBaseURL   = "https://connectapi.garmin.com"
	DefaultTokenURL  = "https://diauth.garmin.com/di-oauth2-service/oauth/token"
	DefaultClientID  = "GARMIN_CONNECT_MOBILE_ANDROID_DI"
	DefaultUserAgent = "fitupload/0.1"
	DefaultTimeout   = 2 * time.Minute
)

// maxErrorBody caps how much of an error response body is kept in APIError.
const maxErrorBody = 4096

// Client is an authenticated Garmin Connect session restored from a token
// directory. It is not safe for concurrent use.
type Client struct {
	baseURL    string
	tokenURL   string
	clientID   string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger

	token  *oauth2.Token
	oauth1 json.RawMessage

	// nowFunc is injectable for deterministic tests.
	nowFunc func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the connectapi base URL. Tests point it at httptest.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithTokenURL sets the OAuth2 token endpoint used by RefreshOAuth2.
func WithTokenURL(u string) Option {
	return func(c *Client) { c.tokenURL = u }
}

// WithClientID sets the OAuth2 client ID sent with refresh requests.
func WithClientID(id string) Option {
	return func(c *Client) { c.clientID = id }
}

// WithUserAgent sets the User-Agent header for every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithHTTPClient sets the HTTP client used for uploads and refreshes.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Load restores a session from the token directory. Returns ErrNoTokens if
// the directory holds no OAuth2 token file.
func Load(_ context.Context, dir string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    DefaultBaseURL,
		tokenURL:   DefaultTokenURL,
		clientID:   DefaultClientID,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
		nowFunc:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	set, err := tokenfile.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("garmin: loading tokens: %w", err)
	}

	if set == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoTokens, dir)
	}

	c.token = set.OAuth2
	c.oauth1 = set.OAuth1

	expired := !c.token.Expiry.IsZero() && c.token.Expiry.Before(c.nowFunc())
	c.logger.Info("loaded saved tokens",
		slog.String("dir", dir),
		slog.Time("expiry", c.token.Expiry),
		slog.Bool("expired", expired),
		slog.Bool("has_oauth1", c.oauth1 != nil),
	)

	return c, nil
}

// Dump persists the session's tokens to dir. With oauth2Only set, only
// oauth2_token.json is written and any OAuth1 file is left untouched.
func (c *Client) Dump(dir string, oauth2Only bool) error {
	if err := tokenfile.SaveOAuth2(dir, c.token, c.nowFunc()); err != nil {
		return fmt.Errorf("garmin: saving oauth2 token: %w", err)
	}

	if !oauth2Only && c.oauth1 != nil {
		if err := tokenfile.SaveOAuth1(dir, c.oauth1); err != nil {
			return fmt.Errorf("garmin: saving oauth1 token: %w", err)
		}
	}

	c.logger.Info("persisted tokens",
		slog.String("dir", dir),
		slog.Bool("oauth2_only", oauth2Only),
	)

	return nil
}

// do executes a single authenticated request against the base URL. The
// caller closes the response body on success. Non-2xx responses are
// returned as *APIError.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	if c.token.AccessToken == "" {
		return nil, fmt.Errorf("garmin: %s %s: %w", method, path, ErrUnauthorized)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("garmin: creating request: %w", err)
	}

	req.Header.Set("Authorization", tokenType(c.token)+" "+c.token.AccessToken)
	req.Header.Set("User-Agent", c.userAgent)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("garmin: %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	defer resp.Body.Close()

	errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Path:       path,
		Message:    string(errBody),
		Err:        classifyStatus(resp.StatusCode),
	}

	c.logger.Warn("request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return nil, apiErr
}

// tokenType returns the Authorization scheme, normalizing the lowercase
// "bearer" some token endpoints return.
func tokenType(tok *oauth2.Token) string {
	if tok.TokenType == "" || tok.TokenType == "bearer" {
		return "Bearer"
	}

	return tok.TokenType
}
