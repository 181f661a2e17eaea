package models

import "time"

type Post struct {
	ID            int64      `db:"id" json:"id"`
	UserID        int64      `db:"user_id" json:"user_id"`
	TeamID        int64      `db:"team_id" json:"team_id"`
	Caption       string     `db:"caption" json:"caption"`
	Title         string     `db:"title" json:"title"`
	ScheduledTime time.Time  `db:"scheduled_time" json:"scheduled_time"`
	PublishedAt   *time.Time `db:"published_at" json:"published_at,omitempty"`
	Status        string     `db:"status" json:"status"` // draft, scheduled, published, partially_published, failed
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// PostAccountLink is the per-account publishing record of a post.
// PlatformPostID is non-empty only when Status is published.
type PostAccountLink struct {
	PostID         int64      `db:"post_id" json:"post_id"`
	AccountID      int64      `db:"account_id" json:"account_id"`
	Status         string     `db:"status" json:"status"` // draft, published, failed
	PublishedAt    *time.Time `db:"published_at" json:"published_at,omitempty"`
	PlatformPostID string     `db:"platform_post_id" json:"platform_post_id,omitempty"`
	ErrorMessage   string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

type PostMedia struct {
	PostID       int64  `db:"post_id"`
	AssetID      int64  `db:"asset_id"`
	DisplayOrder int    `db:"display_order"`
	FileURL      string `db:"file_url"`
	FileType     string `db:"file_type"`
}

const (
	PostStatusDraft              = "draft"
	PostStatusScheduled          = "scheduled"
	PostStatusPublished          = "published"
	PostStatusPartiallyPublished = "partially_published"
	PostStatusFailed             = "failed"
)

const (
	LinkStatusDraft     = "draft"
	LinkStatusPublished = "published"
	LinkStatusFailed    = "failed"
)

type PostWithAccount struct {
	Post    Post
	Account SocialAccount
}
