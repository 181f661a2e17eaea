package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const tiktokAPIURL = "https://open.tiktokapis.com"

type TiktokPublisher struct {
	base
}

func NewTiktokPublisher(opts Options) *TiktokPublisher {
	p := &TiktokPublisher{base: newBase(models.PlatformTiktok, opts, tiktokAPIURL)}
	p.parseError = tiktokError
	return p
}

func tiktokError(resp *http.Response, body []byte) error {
	var result transfer.TikTokUploadResponse
	if err := json.Unmarshal(body, &result); err != nil || result.Error.Code == "" {
		return statusError(models.PlatformTiktok, resp, string(body))
	}
	if err := tiktokErrorCode(result.Error, resp.Header); err != nil {
		return err
	}
	return statusError(models.PlatformTiktok, resp, result.Error.Message)
}

func tiktokErrorCode(e transfer.TiktokError, header http.Header) error {
	switch e.Code {
	case "", "ok":
		return nil
	case "rate_limit_exceeded", "spam_risk_too_many_posts":
		return &RateLimitError{
			Platform:   models.PlatformTiktok,
			RetryAfter: parseRetryAfter(header.Get("Retry-After")),
			Message:    e.Message,
		}
	case "access_token_invalid", "scope_not_authorized":
		return fmt.Errorf("%w: %s", ErrInvalidToken, e.Message)
	}
	return fmt.Errorf("tiktok error %s: %s", e.Code, e.Message)
}

// Publish posts a single video, or a photo post when every media item is an image.
// The returned identifier is TikTok's publish_id.
func (p *TiktokPublisher) Publish(ctx context.Context, account *models.SocialAccount, content Content) (string, error) {
	accessToken, err := p.accessToken(account)
	if err != nil {
		return "", err
	}

	if video, ok := firstOfKind(content.Media, MediaVideo); ok {
		return p.postVideo(ctx, accessToken, content, video)
	}
	if allOfKind(content.Media, MediaImage) {
		return p.postPhotos(ctx, accessToken, content)
	}
	return "", fmt.Errorf("%w: tiktok requires a video or images", ErrNoMedia)
}

func (p *TiktokPublisher) postVideo(ctx context.Context, accessToken string, content Content, video MediaRef) (string, error) {
	request := transfer.VideoUploadRequest{
		PostInfo: transfer.VideoPostInfo{
			Title:                 content.Caption,
			PrivacyLevel:          "PUBLIC_TO_EVERYONE",
			VideoCoverTimestampMs: 1000,
		},
		SourceInfo: transfer.VideoSourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: video.URL,
		},
	}
	return p.initPublish(ctx, "/v2/post/publish/video/init/", accessToken, request)
}

func (p *TiktokPublisher) postPhotos(ctx context.Context, accessToken string, content Content) (string, error) {
	photos := make([]string, 0, len(content.Media))
	for _, m := range content.Media {
		photos = append(photos, m.URL)
	}

	request := transfer.PhotoUploadRequest{
		PostInfo: transfer.PhotoPostInfo{
			Title:        content.Title,
			Description:  content.Caption,
			PrivacyLevel: "PUBLIC_TO_EVERYONE",
			AutoAddMusic: true,
		},
		SourceInfo: transfer.PhotoSourceInfo{
			Source:          "PULL_FROM_URL",
			PhotoCoverIndex: 0,
			PhotoImages:     photos,
		},
		PostMode:  "DIRECT_POST",
		MediaType: "PHOTO",
	}
	return p.initPublish(ctx, "/v2/post/publish/content/init/", accessToken, request)
}

func (p *TiktokPublisher) initPublish(ctx context.Context, path, accessToken string, request any) (string, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("error marshalling data: %w", err)
	}

	var result transfer.TikTokUploadResponse
	err = p.withRateLimitRetry(ctx, path, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("error creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")

		result = transfer.TikTokUploadResponse{}
		if err := p.do(req, &result); err != nil {
			return err
		}
		return tiktokErrorCode(result.Error, http.Header{})
	})
	if err != nil {
		return "", err
	}

	if result.Data.PublishID == "" {
		return "", fmt.Errorf("no publish ID returned from TikTok")
	}
	return result.Data.PublishID, nil
}

func (p *TiktokPublisher) RefreshToken(ctx context.Context, account *models.SocialAccount) (*Token, error) {
	refreshToken, err := p.decrypt(account.RefreshToken)
	if err != nil {
		return nil, err
	}

	data := url.Values{}
	data.Set("client_key", p.opts.ClientID)
	data.Set("client_secret", p.opts.ClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	var tokenResponse transfer.TiktokTokenResponse
	err = p.withRateLimitRetry(ctx, "oauth/token", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/oauth/token/", strings.NewReader(data.Encode()))
		if err != nil {
			return fmt.Errorf("error creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return p.do(req, &tokenResponse)
	})
	if err != nil {
		return nil, err
	}
	if tokenResponse.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty token in refresh response", ErrInvalidToken)
	}

	return &Token{
		AccessToken:  tokenResponse.AccessToken,
		RefreshToken: tokenResponse.RefreshToken,
		ExpiresAt:    p.now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second),
	}, nil
}
