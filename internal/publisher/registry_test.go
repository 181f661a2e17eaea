package publisher

import (
	"testing"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Get(t *testing.T) {
	fb := NewFacebookPublisher(testOptions(""))
	registry := NewRegistry(fb)

	p, err := registry.Get(models.PlatformFacebook)
	require.NoError(t, err)
	assert.Equal(t, models.PlatformFacebook, p.Platform())

	_, err = registry.Get(models.Platform("myspace"))
	require.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestRegistry_List(t *testing.T) {
	opts := testOptions("")
	registry := NewRegistry(NewYouTubePublisher(opts), NewFacebookPublisher(opts), NewTiktokPublisher(opts), NewInstagramPublisher(opts))

	assert.Equal(t, []models.Platform{
		models.PlatformFacebook,
		models.PlatformInstagram,
		models.PlatformTiktok,
		models.PlatformYoutube,
	}, registry.List())
}
