package publisher

import (
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"github.com/maheshrc27/postflow/internal/models"
)

type MediaKind string

const (
	MediaImage   MediaKind = "image"
	MediaVideo   MediaKind = "video"
	MediaUnknown MediaKind = "unknown"
)

type MediaRef struct {
	URL  string
	MIME string
	Kind MediaKind
}

// ClassifyMedia resolves the stored MIME value of an asset to a media kind.
func ClassifyMedia(mime string) MediaKind {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if mime == "" {
		return MediaUnknown
	}
	for t := range matchers.Video {
		if t.MIME.Value == mime {
			return MediaVideo
		}
	}
	for t := range matchers.Image {
		if t.MIME.Value == mime {
			return MediaImage
		}
	}
	switch {
	case strings.HasPrefix(mime, "video/"):
		return MediaVideo
	case strings.HasPrefix(mime, "image/"):
		return MediaImage
	}
	return MediaUnknown
}

// DetectKind sniffs the leading bytes of a file.
func DetectKind(head []byte) MediaKind {
	switch {
	case filetype.IsVideo(head):
		return MediaVideo
	case filetype.IsImage(head):
		return MediaImage
	}
	return MediaUnknown
}

func MediaRefs(media []*models.PostMedia) []MediaRef {
	refs := make([]MediaRef, 0, len(media))
	for _, m := range media {
		if m == nil || m.FileURL == "" {
			continue
		}
		refs = append(refs, MediaRef{URL: m.FileURL, MIME: m.FileType, Kind: ClassifyMedia(m.FileType)})
	}
	return refs
}

func firstOfKind(media []MediaRef, kind MediaKind) (MediaRef, bool) {
	for _, m := range media {
		if m.Kind == kind {
			return m, true
		}
	}
	return MediaRef{}, false
}

func allOfKind(media []MediaRef, kind MediaKind) bool {
	if len(media) == 0 {
		return false
	}
	for _, m := range media {
		if m.Kind != kind {
			return false
		}
	}
	return true
}
