package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTiktokPublisher_Video(t *testing.T) {
	var request transfer.VideoUploadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/post/publish/video/init/", r.URL.Path)
		assert.Equal(t, "Bearer plain-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		w.Write([]byte(`{"data":{"publish_id":"v_pub_1"},"error":{"code":"ok","message":""}}`))
	}))
	defer srv.Close()

	p := NewTiktokPublisher(testOptions(srv.URL))
	id, err := p.Publish(context.Background(), testAccount(t, models.PlatformTiktok, time.Hour), Content{
		Caption: "dance",
		Media:   []MediaRef{{URL: "https://cdn/v.mp4", MIME: "video/mp4", Kind: MediaVideo}},
	})

	require.NoError(t, err)
	assert.Equal(t, "v_pub_1", id)
	assert.Equal(t, "PULL_FROM_URL", request.SourceInfo.Source)
	assert.Equal(t, "https://cdn/v.mp4", request.SourceInfo.VideoURL)
}

func TestTiktokPublisher_Photos(t *testing.T) {
	var request transfer.PhotoUploadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/post/publish/content/init/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		w.Write([]byte(`{"data":{"publish_id":"p_pub_1"},"error":{"code":"ok"}}`))
	}))
	defer srv.Close()

	p := NewTiktokPublisher(testOptions(srv.URL))
	id, err := p.Publish(context.Background(), testAccount(t, models.PlatformTiktok, time.Hour), Content{
		Media: []MediaRef{{URL: "https://cdn/1.jpg", Kind: MediaImage}, {URL: "https://cdn/2.jpg", Kind: MediaImage}},
	})

	require.NoError(t, err)
	assert.Equal(t, "p_pub_1", id)
	assert.Equal(t, []string{"https://cdn/1.jpg", "https://cdn/2.jpg"}, request.SourceInfo.PhotoImages)
	assert.Equal(t, "PHOTO", request.MediaType)
}

func TestTiktokPublisher_RateLimitExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":"rate_limit_exceeded","message":"slow down"}}`))
	}))
	defer srv.Close()

	p := NewTiktokPublisher(testOptions(srv.URL))
	_, err := p.Publish(context.Background(), testAccount(t, models.PlatformTiktok, time.Hour), Content{
		Media: []MediaRef{{URL: "https://cdn/v.mp4", Kind: MediaVideo}},
	})

	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestTiktokPublisher_ErrorInOKResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":"access_token_invalid","message":"token revoked"}}`))
	}))
	defer srv.Close()

	p := NewTiktokPublisher(testOptions(srv.URL))
	_, err := p.Publish(context.Background(), testAccount(t, models.PlatformTiktok, time.Hour), Content{
		Media: []MediaRef{{URL: "https://cdn/v.mp4", Kind: MediaVideo}},
	})

	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTiktokPublisher_NoMedia(t *testing.T) {
	p := NewTiktokPublisher(testOptions("http://unused"))
	_, err := p.Publish(context.Background(), testAccount(t, models.PlatformTiktok, time.Hour), Content{Caption: "x"})
	require.ErrorIs(t, err, ErrNoMedia)
}
