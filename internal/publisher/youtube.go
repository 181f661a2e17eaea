package publisher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/maheshrc27/postflow/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const sniffLen = 512

// YouTubePublisher uploads the post's first video. BaseURL, when set, overrides the API endpoint.
type YouTubePublisher struct {
	base
	oauth *oauth2.Config
}

func NewYouTubePublisher(opts Options) *YouTubePublisher {
	return &YouTubePublisher{
		base: newBase(models.PlatformYoutube, opts, ""),
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope},
			Endpoint:     google.Endpoint,
		},
	}
}

func (p *YouTubePublisher) service(ctx context.Context, accessToken string) (*youtube.Service, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))

	clientOpts := []option.ClientOption{option.WithHTTPClient(client)}
	if p.baseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(p.baseURL))
	}

	service, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("error creating YouTube service: %w", err)
	}
	return service, nil
}

func (p *YouTubePublisher) Publish(ctx context.Context, account *models.SocialAccount, content Content) (string, error) {
	accessToken, err := p.accessToken(account)
	if err != nil {
		return "", err
	}

	video, ok := firstOfKind(content.Media, MediaVideo)
	if !ok {
		return "", fmt.Errorf("%w: youtube requires a video", ErrNoMedia)
	}

	service, err := p.service(ctx, accessToken)
	if err != nil {
		return "", err
	}

	title := content.Title
	if title == "" {
		title = truncate(content.Caption, 100)
	}

	var videoID string
	err = p.withRateLimitRetry(ctx, "videos.insert", func() error {
		id, err := p.upload(ctx, service, video.URL, title, content.Caption)
		if err != nil {
			return youtubeError(err)
		}
		videoID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return videoID, nil
}

// upload streams the media URL straight into the insert call.
func (p *YouTubePublisher) upload(ctx context.Context, service *youtube.Service, mediaURL, title, description string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating download request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error downloading video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected download status: %d", resp.StatusCode)
	}

	reader := bufio.NewReaderSize(resp.Body, sniffLen)
	head, _ := reader.Peek(sniffLen)
	if DetectKind(head) != MediaVideo {
		return "", fmt.Errorf("%w: %s is not a video", ErrNoMedia, mediaURL)
	}

	metadata := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: description,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	response, err := service.Videos.Insert([]string{"snippet", "status"}, metadata).Media(reader).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if response.Id == "" {
		return "", fmt.Errorf("no video ID returned from YouTube")
	}
	return response.Id, nil
}

func youtubeError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}

	rateLimited := gerr.Code == http.StatusTooManyRequests
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded":
			rateLimited = true
		}
	}
	if rateLimited {
		return &RateLimitError{
			Platform:   models.PlatformYoutube,
			RetryAfter: parseRetryAfter(gerr.Header.Get("Retry-After")),
			Message:    gerr.Message,
		}
	}
	if gerr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrInvalidToken, gerr.Message)
	}
	return &APIError{Platform: models.PlatformYoutube, StatusCode: gerr.Code, Message: gerr.Message}
}

func (p *YouTubePublisher) RefreshToken(ctx context.Context, account *models.SocialAccount) (*Token, error) {
	refreshToken, err := p.decrypt(account.RefreshToken)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	// Google keeps the refresh token unless it rotates it.
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return &Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}

func (p *YouTubePublisher) FetchMetrics(ctx context.Context, account *models.SocialAccount, platformPostID string) (*Metrics, error) {
	accessToken, err := p.accessToken(account)
	if err != nil {
		return nil, err
	}

	service, err := p.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var response *youtube.VideoListResponse
	err = p.withRateLimitRetry(ctx, "videos.list", func() error {
		var err error
		response, err = service.Videos.List([]string{"statistics"}).Id(platformPostID).Context(ctx).Do()
		return youtubeError(err)
	})
	if err != nil {
		return nil, err
	}
	if len(response.Items) == 0 || response.Items[0].Statistics == nil {
		return nil, fmt.Errorf("youtube video %s not found", platformPostID)
	}

	stats := response.Items[0].Statistics
	return &Metrics{
		Views:    int64(stats.ViewCount),
		Likes:    int64(stats.LikeCount),
		Comments: int64(stats.CommentCount),
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
