package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	instagramGraphURL   = "https://graph.instagram.com"
	instagramMaxPolls   = 20
	instagramPollPeriod = 5 * time.Second
)

// InstagramPublisher publishes through the Instagram Graph API content publishing flow:
// create a media container, wait until it is ready, then publish it.
type InstagramPublisher struct {
	base
}

func NewInstagramPublisher(opts Options) *InstagramPublisher {
	p := &InstagramPublisher{base: newBase(models.PlatformInstagram, opts, instagramGraphURL)}
	p.parseError = graphError(models.PlatformInstagram)
	if p.opts.PollInterval <= 0 {
		p.opts.PollInterval = instagramPollPeriod
	}
	return p
}

func (p *InstagramPublisher) Publish(ctx context.Context, account *models.SocialAccount, content Content) (string, error) {
	accessToken, err := p.accessToken(account)
	if err != nil {
		return "", err
	}
	if len(content.Media) == 0 {
		return "", fmt.Errorf("%w: instagram requires at least one image or video", ErrNoMedia)
	}

	var containerID string
	if len(content.Media) == 1 {
		containerID, err = p.createContainer(ctx, account.AccountID, accessToken, content.Media[0], content.Caption, false)
	} else {
		containerID, err = p.createCarousel(ctx, account.AccountID, accessToken, content)
	}
	if err != nil {
		return "", err
	}

	if err := p.waitUntilReady(ctx, containerID, accessToken); err != nil {
		return "", err
	}

	return p.publishContainer(ctx, account.AccountID, containerID, accessToken)
}

func (p *InstagramPublisher) createContainer(ctx context.Context, accountID, accessToken string, media MediaRef, caption string, carouselItem bool) (string, error) {
	payload := map[string]any{"access_token": accessToken}
	switch media.Kind {
	case MediaVideo:
		payload["media_type"] = "REELS"
		payload["video_url"] = media.URL
	case MediaImage:
		payload["image_url"] = media.URL
	default:
		return "", fmt.Errorf("%w: unsupported media type %q", ErrNoMedia, media.MIME)
	}
	if carouselItem {
		payload["is_carousel_item"] = true
	} else {
		payload["caption"] = caption
	}

	var result transfer.GraphIDResponse
	if err := p.graphPost(ctx, accountID+"/media", payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("no media ID returned from Instagram")
	}
	return result.ID, nil
}

func (p *InstagramPublisher) createCarousel(ctx context.Context, accountID, accessToken string, content Content) (string, error) {
	children := make([]string, 0, len(content.Media))
	for _, m := range content.Media {
		id, err := p.createContainer(ctx, accountID, accessToken, m, "", true)
		if err != nil {
			return "", fmt.Errorf("carousel item: %w", err)
		}
		children = append(children, id)
	}

	var result transfer.GraphIDResponse
	err := p.graphPost(ctx, accountID+"/media", map[string]any{
		"media_type":   "CAROUSEL",
		"caption":      content.Caption,
		"children":     children,
		"access_token": accessToken,
	}, &result)
	if err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("no carousel ID returned from Instagram")
	}
	return result.ID, nil
}

// waitUntilReady polls the container until Instagram has finished processing it.
func (p *InstagramPublisher) waitUntilReady(ctx context.Context, containerID, accessToken string) error {
	for i := 0; i < instagramMaxPolls; i++ {
		var status transfer.GraphContainerStatus
		if err := p.graphGet(ctx, containerID, "fields=status_code,status", accessToken, &status); err != nil {
			return err
		}

		switch status.StatusCode {
		case "", "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			return fmt.Errorf("instagram container %s: %s %s", containerID, status.StatusCode, status.Status)
		}

		timer := time.NewTimer(p.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("instagram container %s not ready after %d polls", containerID, instagramMaxPolls)
}

func (p *InstagramPublisher) publishContainer(ctx context.Context, accountID, containerID, accessToken string) (string, error) {
	var result transfer.GraphIDResponse
	err := p.graphPost(ctx, accountID+"/media_publish", map[string]any{
		"creation_id":  containerID,
		"access_token": accessToken,
	}, &result)
	if err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("no published media ID returned from Instagram")
	}
	return result.ID, nil
}

// RefreshToken exchanges a still-valid long-lived token for a new one.
func (p *InstagramPublisher) RefreshToken(ctx context.Context, account *models.SocialAccount) (*Token, error) {
	current, err := p.decrypt(account.AccessToken)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/refresh_access_token?grant_type=ig_refresh_token&access_token=%s", p.baseURL, current)

	var result transfer.InstagramToken
	err = p.withRateLimitRetry(ctx, "refresh_access_token", func() error {
		req, err := newGet(ctx, url)
		if err != nil {
			return err
		}
		return p.do(req, &result)
	})
	if err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty token in refresh response", ErrInvalidToken)
	}

	return &Token{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresAt:    p.now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}, nil
}

func (p *InstagramPublisher) FetchMetrics(ctx context.Context, account *models.SocialAccount, platformPostID string) (*Metrics, error) {
	accessToken, err := p.accessToken(account)
	if err != nil {
		return nil, err
	}

	var stats transfer.InstagramMediaStats
	if err := p.graphGet(ctx, platformPostID, "fields=like_count,comments_count", accessToken, &stats); err != nil {
		return nil, err
	}

	metrics := &Metrics{Likes: stats.LikeCount, Comments: stats.CommentsCount}

	// Insights are unavailable for some media types; counts above are still valid.
	var insights transfer.InstagramInsights
	if err := p.graphGet(ctx, platformPostID+"/insights", "metric=views,shares", accessToken, &insights); err != nil {
		p.logger.Info("instagram insights unavailable", "platform_post_id", platformPostID, "error", err)
		return metrics, nil
	}
	for _, d := range insights.Data {
		if len(d.Values) == 0 {
			continue
		}
		switch d.Name {
		case "views":
			metrics.Views = d.Values[0].Value
		case "shares":
			metrics.Shares = d.Values[0].Value
		}
	}
	return metrics, nil
}
