package models

import "time"

type PostMetrics struct {
	PostID      int64     `db:"post_id" json:"post_id"`
	AccountID   int64     `db:"account_id" json:"account_id"`
	Views       int64     `db:"views" json:"views"`
	Likes       int64     `db:"likes" json:"likes"`
	Comments    int64     `db:"comments" json:"comments"`
	Shares      int64     `db:"shares" json:"shares"`
	CollectedAt time.Time `db:"collected_at" json:"collected_at"`
}
