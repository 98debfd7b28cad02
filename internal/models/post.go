package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post is one feed entry. Author name and avatar are snapshotted at creation
// so the feed renders without per-row profile lookups.
type Post struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	PostID          string             `bson:"postId" json:"id"`
	AuthorUID       string             `bson:"authorUid" json:"authorUid"`
	AuthorName      string             `bson:"authorName,omitempty" json:"authorName,omitempty"`
	AuthorAvatarURL string             `bson:"authorAvatarUrl,omitempty" json:"authorAvatarUrl,omitempty"`
	Text            string             `bson:"text" json:"text"`
	HTML            string             `bson:"-" json:"html,omitempty"`
	Likes           []string           `bson:"likes,omitempty" json:"-"`
	LikeCount       int                `bson:"-" json:"likeCount"`
	CreatedAt       time.Time          `bson:"createdAt" json:"-"`
	CreatedAtISO    string             `bson:"-" json:"createdAt"`
}

// CreatePostRequest is the POST body for publishing a post.
type CreatePostRequest struct {
	Text string `json:"text"`
}
