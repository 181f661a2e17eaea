package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/pkg/utils"
)

const (
	defaultRateLimitRetries = 2
	defaultMaxRetryWait     = 30 * time.Second
	defaultGraphVersion     = "v21.0"
	maxResponseBody         = 1 << 20
)

// Publisher pushes one post to one connected account on an external platform.
// Publish returns the platform-assigned post identifier.
type Publisher interface {
	Platform() models.Platform
	Publish(ctx context.Context, account *models.SocialAccount, content Content) (string, error)
	ValidateToken(ctx context.Context, account *models.SocialAccount) bool
}

// TokenRefresher is implemented by publishers whose platform issues refreshable credentials.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, account *models.SocialAccount) (*Token, error)
}

// InsightsFetcher is implemented by publishers that can report engagement for a published post.
type InsightsFetcher interface {
	FetchMetrics(ctx context.Context, account *models.SocialAccount, platformPostID string) (*Metrics, error)
}

type Content struct {
	Caption string
	Title   string
	Media   []MediaRef
}

// Token holds plaintext credentials; callers encrypt before persisting.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type Metrics struct {
	Views    int64
	Likes    int64
	Comments int64
	Shares   int64
}

type Options struct {
	SecretKey    string
	ClientID     string
	ClientSecret string
	GraphVersion string
	BaseURL      string
	HTTPClient   *http.Client
	// RateLimitRetries is the number of extra attempts after a rate-limited response.
	RateLimitRetries int
	MaxRetryWait     time.Duration
	PollInterval     time.Duration
	Logger           *slog.Logger
	Now              func() time.Time
}

type base struct {
	platform models.Platform
	opts     Options
	baseURL  string
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
	// parseError turns a non-2xx response into a typed error.
	parseError func(resp *http.Response, body []byte) error
}

func newBase(platform models.Platform, opts Options, defaultBaseURL string) base {
	b := base{
		platform: platform,
		opts:     opts,
		baseURL:  opts.BaseURL,
		client:   opts.HTTPClient,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if b.baseURL == "" {
		b.baseURL = defaultBaseURL
	}
	if b.client == nil {
		b.client = &http.Client{Timeout: 2 * time.Minute}
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.opts.RateLimitRetries <= 0 {
		b.opts.RateLimitRetries = defaultRateLimitRetries
	}
	if b.opts.MaxRetryWait <= 0 {
		b.opts.MaxRetryWait = defaultMaxRetryWait
	}
	if b.opts.GraphVersion == "" {
		b.opts.GraphVersion = defaultGraphVersion
	}
	b.parseError = func(resp *http.Response, body []byte) error {
		return statusError(platform, resp, string(body))
	}
	return b
}

func (b *base) Platform() models.Platform {
	return b.platform
}

// accessToken checks expiry before decrypting so an expired account never reaches the network.
func (b *base) accessToken(account *models.SocialAccount) (string, error) {
	if account == nil {
		return "", fmt.Errorf("%w: account is nil", ErrInvalidToken)
	}
	if account.Expired(b.now()) {
		return "", fmt.Errorf("%w: %s account %d expired at %s", ErrTokenExpired, b.platform, account.ID,
			account.TokenExpiresAt.Format(time.RFC3339))
	}
	return b.decrypt(account.AccessToken)
}

func (b *base) decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", fmt.Errorf("%w: empty credential", ErrInvalidToken)
	}
	plain, err := utils.Decrypt(ciphertext, []byte(b.opts.SecretKey))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if plain == "" {
		return "", fmt.Errorf("%w: empty credential", ErrInvalidToken)
	}
	return plain, nil
}

func (b *base) ValidateToken(ctx context.Context, account *models.SocialAccount) bool {
	_, err := b.accessToken(account)
	return err == nil
}

// do executes req and decodes a 2xx JSON body into out.
func (b *base) do(req *http.Request, out any) error {
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", b.platform, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%s read response: %w", b.platform, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return b.parseError(resp, body)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s decode response: %w", b.platform, err)
	}
	return nil
}

func newGet(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	return req, nil
}
