package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"neuro/internal/database"
	"neuro/internal/models"
)

var (
	ErrEmptyPost    = errors.New("empty post")
	ErrPostNotFound = errors.New("post not found")
	ErrNotAuthor    = errors.New("only the author can do that")
)

// PostService handles the feed.
type PostService struct {
	mongoDB  *database.MongoDB
	profiles *ProfileService
}

// NewPostService creates a new post service
func NewPostService(mongoDB *database.MongoDB, profiles *ProfileService) *PostService {
	return &PostService{mongoDB: mongoDB, profiles: profiles}
}

func (s *PostService) postsCollection() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionPosts)
}

// decorate fills the derived fields a stored post does not carry.
func decorate(p *models.Post) *models.Post {
	p.HTML = RenderMarkdown(p.Text)
	p.LikeCount = len(p.Likes)
	p.CreatedAtISO = p.CreatedAt.UTC().Format(time.RFC3339Nano)
	return p
}

// Create publishes a post, snapshotting the author's display fields.
func (s *PostService) Create(authorUID, text string) (*models.Post, error) {
	text = cleanText(text)
	if text == "" {
		return nil, ErrEmptyPost
	}

	authorName, authorAvatar := "", ""
	if author, err := s.profiles.GetByUID(authorUID); err == nil {
		authorName = author.FullName
		authorAvatar = author.AvatarURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	post := &models.Post{
		PostID:          uuid.New().String(),
		AuthorUID:       authorUID,
		AuthorName:      authorName,
		AuthorAvatarURL: authorAvatar,
		Text:            text,
		CreatedAt:       time.Now(),
	}
	if _, err := s.postsCollection().InsertOne(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	log.Printf("📝 [POST] %s published %s", authorUID, post.PostID)
	return decorate(post), nil
}

// Feed returns posts newest first. Pass a non-zero before to page further
// back in time.
func (s *PostService) Feed(limit int, before time.Time) ([]*models.Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{}
	if !before.IsZero() {
		filter["createdAt"] = bson.M{"$lt": before}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.postsCollection().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed: %w", err)
	}
	defer cursor.Close(ctx)

	var posts []*models.Post
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}
	for _, p := range posts {
		decorate(p)
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return posts, nil
}

// ByAuthor returns one user's posts, newest first.
func (s *PostService) ByAuthor(authorUID string, limit int) ([]*models.Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.postsCollection().Find(ctx, bson.M{"authorUid": authorUID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load posts: %w", err)
	}
	defer cursor.Close(ctx)

	var posts []*models.Post
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("failed to decode posts: %w", err)
	}
	for _, p := range posts {
		decorate(p)
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return posts, nil
}

// Like records uid's like on a post. Idempotent. Returns the new count.
func (s *PostService) Like(postID, uid string) (int, error) {
	return s.setLike(postID, uid, true)
}

// Unlike removes uid's like from a post. Idempotent. Returns the new count.
func (s *PostService) Unlike(postID, uid string) (int, error) {
	return s.setLike(postID, uid, false)
}

func (s *PostService) setLike(postID, uid string, liked bool) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	update := bson.M{"$addToSet": bson.M{"likes": uid}}
	if !liked {
		update = bson.M{"$pull": bson.M{"likes": uid}}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var post models.Post
	err := s.postsCollection().FindOneAndUpdate(ctx, bson.M{"postId": postID}, update, opts).Decode(&post)
	if err == mongo.ErrNoDocuments {
		return 0, ErrPostNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update likes: %w", err)
	}
	return len(post.Likes), nil
}

// Delete removes a post. Only the author may delete it.
func (s *PostService) Delete(postID, requesterUID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var post models.Post
	err := s.postsCollection().FindOne(ctx, bson.M{"postId": postID}).Decode(&post)
	if err == mongo.ErrNoDocuments {
		return ErrPostNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load post: %w", err)
	}
	if post.AuthorUID != requesterUID {
		return ErrNotAuthor
	}

	if _, err := s.postsCollection().DeleteOne(ctx, bson.M{"postId": postID}); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}
