package publisher

import (
	"context"
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const facebookGraphURL = "https://graph.facebook.com"

// FacebookPublisher publishes to a Facebook Page. The account's AccountID is the page ID and its
// access token a page token.
type FacebookPublisher struct {
	base
}

func NewFacebookPublisher(opts Options) *FacebookPublisher {
	p := &FacebookPublisher{base: newBase(models.PlatformFacebook, opts, facebookGraphURL)}
	p.parseError = graphError(models.PlatformFacebook)
	return p
}

func (p *FacebookPublisher) Publish(ctx context.Context, account *models.SocialAccount, content Content) (string, error) {
	accessToken, err := p.accessToken(account)
	if err != nil {
		return "", err
	}

	pageID := account.AccountID
	switch {
	case len(content.Media) == 0:
		return p.postFeed(ctx, pageID, accessToken, content.Caption, nil)
	case len(content.Media) == 1 && content.Media[0].Kind == MediaVideo:
		return p.postVideo(ctx, pageID, accessToken, content)
	case allOfKind(content.Media, MediaImage):
		if len(content.Media) == 1 {
			return p.postPhoto(ctx, pageID, accessToken, content.Media[0].URL, content.Caption)
		}
		return p.postAlbum(ctx, pageID, accessToken, content)
	}
	return "", fmt.Errorf("%w: facebook accepts a single video or images only", ErrNoMedia)
}

func (p *FacebookPublisher) postFeed(ctx context.Context, pageID, accessToken, message string, attached []transfer.GraphAttachedMedia) (string, error) {
	payload := map[string]any{
		"message":      message,
		"access_token": accessToken,
	}
	if len(attached) > 0 {
		payload["attached_media"] = attached
	}

	var result transfer.GraphIDResponse
	if err := p.graphPost(ctx, pageID+"/feed", payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("no post ID returned from Facebook")
	}
	return result.ID, nil
}

func (p *FacebookPublisher) postPhoto(ctx context.Context, pageID, accessToken, url, caption string) (string, error) {
	var result transfer.GraphIDResponse
	err := p.graphPost(ctx, pageID+"/photos", map[string]any{
		"url":          url,
		"caption":      caption,
		"access_token": accessToken,
	}, &result)
	if err != nil {
		return "", err
	}

	// post_id is the feed story; id is the photo object.
	if result.PostID != "" {
		return result.PostID, nil
	}
	if result.ID == "" {
		return "", fmt.Errorf("no photo ID returned from Facebook")
	}
	return result.ID, nil
}

func (p *FacebookPublisher) postAlbum(ctx context.Context, pageID, accessToken string, content Content) (string, error) {
	attached := make([]transfer.GraphAttachedMedia, 0, len(content.Media))
	for _, m := range content.Media {
		var result transfer.GraphIDResponse
		err := p.graphPost(ctx, pageID+"/photos", map[string]any{
			"url":          m.URL,
			"published":    false,
			"access_token": accessToken,
		}, &result)
		if err != nil {
			return "", fmt.Errorf("upload unpublished photo: %w", err)
		}
		if result.ID == "" {
			return "", fmt.Errorf("no photo ID returned from Facebook")
		}
		attached = append(attached, transfer.GraphAttachedMedia{MediaFBID: result.ID})
	}
	return p.postFeed(ctx, pageID, accessToken, content.Caption, attached)
}

func (p *FacebookPublisher) postVideo(ctx context.Context, pageID, accessToken string, content Content) (string, error) {
	var result transfer.GraphIDResponse
	err := p.graphPost(ctx, pageID+"/videos", map[string]any{
		"file_url":     content.Media[0].URL,
		"title":        content.Title,
		"description":  content.Caption,
		"access_token": accessToken,
	}, &result)
	if err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("no video ID returned from Facebook")
	}
	return result.ID, nil
}
