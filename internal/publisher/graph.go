package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

// Graph API error codes that signal throttling.
var graphRateLimitCodes = map[int]struct{}{
	4: {}, 17: {}, 32: {}, 613: {}, 80001: {}, 80002: {},
}

const graphInvalidTokenCode = 190

func graphError(platform models.Platform) func(resp *http.Response, body []byte) error {
	return func(resp *http.Response, body []byte) error {
		var ge transfer.GraphErrorResponse
		if err := json.Unmarshal(body, &ge); err != nil || ge.Error.Message == "" {
			return statusError(platform, resp, string(body))
		}

		if _, ok := graphRateLimitCodes[ge.Error.Code]; ok {
			return &RateLimitError{
				Platform:   platform,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				Message:    ge.Error.Message,
			}
		}
		if ge.Error.Code == graphInvalidTokenCode {
			return fmt.Errorf("%w: %s", ErrInvalidToken, ge.Error.Message)
		}
		return statusError(platform, resp, ge.Error.Message)
	}
}

func (b *base) graphURL(path string) string {
	return fmt.Sprintf("%s/%s/%s", b.baseURL, b.opts.GraphVersion, path)
}

func (b *base) graphPost(ctx context.Context, path string, payload map[string]any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling payload: %w", err)
	}

	return b.withRateLimitRetry(ctx, path, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.graphURL(path), bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("error creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return b.do(req, out)
	})
}

func (b *base) graphGet(ctx context.Context, path, query, accessToken string, out any) error {
	url := b.graphURL(path) + "?access_token=" + accessToken
	if query != "" {
		url += "&" + query
	}

	return b.withRateLimitRetry(ctx, path, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("error creating request: %w", err)
		}
		return b.do(req, out)
	})
}
