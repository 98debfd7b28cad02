package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"neuro/internal/database"
	"neuro/internal/models"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrSelfFollow         = errors.New("cannot follow yourself")
	ErrInvalidExperience  = errors.New("experience entries need a title and a company")
	ErrExperienceNotFound = errors.New("experience entry not found")
)

// UserRecord is the MongoDB representation of a profile. Auth credentials
// live in the relational accounts store, this document is everything the
// social surface shows.
type UserRecord struct {
	ID             primitive.ObjectID      `bson:"_id,omitempty"`
	UID            string                  `bson:"uid"`
	Email          string                  `bson:"email,omitempty"`
	FullName       string                  `bson:"fullName,omitempty"`
	FullNameLower  string                  `bson:"fullNameLower,omitempty"`
	NameTokens     []string                `bson:"nameTokens,omitempty"`
	Slug           string                  `bson:"slug,omitempty"`
	AvatarURL      string                  `bson:"avatarUrl,omitempty"`
	Occupation     string                  `bson:"occupation,omitempty"`
	Headline       string                  `bson:"headline,omitempty"`
	Bio            string                  `bson:"bio,omitempty"`
	Interests      []string                `bson:"interests,omitempty"`
	Skills         []string                `bson:"skills,omitempty"`
	Tags           []string                `bson:"tags,omitempty"`
	Topics         []string                `bson:"topics,omitempty"`
	Website        string                  `bson:"website,omitempty"`
	GitHub         string                  `bson:"github,omitempty"`
	Followers      []string                `bson:"followers,omitempty"`
	Following      []string                `bson:"following,omitempty"`
	FollowersCount int                     `bson:"followersCount"`
	About          *models.UserAbout       `bson:"about,omitempty"`
	Experience     []models.ExperienceItem `bson:"experience,omitempty"`
	CreatedAt      time.Time               `bson:"createdAt"`
	UpdatedAt      time.Time               `bson:"updatedAt"`
}

// ToModel converts UserRecord to models.User
func (r *UserRecord) ToModel() *models.User {
	return &models.User{
		UID:            r.UID,
		Email:          r.Email,
		FullName:       r.FullName,
		FullNameLower:  r.FullNameLower,
		NameTokens:     r.NameTokens,
		Slug:           r.Slug,
		AvatarURL:      r.AvatarURL,
		Occupation:     r.Occupation,
		Headline:       r.Headline,
		Bio:            r.Bio,
		Interests:      r.Interests,
		Skills:         r.Skills,
		Tags:           r.Tags,
		Topics:         r.Topics,
		Website:        r.Website,
		GitHub:         r.GitHub,
		Followers:      r.Followers,
		Following:      r.Following,
		FollowersCount: r.FollowersCount,
		About:          r.About,
		Experience:     r.Experience,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// RelationRecord is one follower edge in the relations collection, the
// source of truth for the social graph.
type RelationRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Follower  string             `bson:"follower"`
	Followee  string             `bson:"followee"`
	CreatedAt time.Time          `bson:"createdAt"`
}

// ProfileService handles user profiles, slugs and the follow graph.
type ProfileService struct {
	mongoDB *database.MongoDB
}

// NewProfileService creates a new profile service
func NewProfileService(mongoDB *database.MongoDB) *ProfileService {
	return &ProfileService{mongoDB: mongoDB}
}

func (s *ProfileService) usersCollection() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionUsers)
}

func (s *ProfileService) relationsCollection() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionRelations)
}

// EnsureProfile creates the profile document for a freshly registered
// account, or backfills name fields on login if they are missing.
func (s *ProfileService) EnsureProfile(uid, email, fullName string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now()
	fullName = strings.TrimSpace(fullName)

	set := bson.M{
		"email":     email,
		"updatedAt": now,
	}
	if fullName != "" {
		set["fullName"] = fullName
		set["fullNameLower"] = strings.ToLower(fullName)
		set["nameTokens"] = nameTokens(fullName)
		if slug := kebabName("", "", fullName); slug != "" && slug != "user" {
			set["slug"] = slug
		}
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	var record UserRecord
	err := s.usersCollection().FindOneAndUpdate(ctx,
		bson.M{"uid": uid},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"uid": uid, "createdAt": now, "followersCount": 0},
		},
		opts,
	).Decode(&record)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure profile: %w", err)
	}
	return record.ToModel(), nil
}

// GetByUID returns a profile by uid.
func (s *ProfileService) GetByUID(uid string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var record UserRecord
	err := s.usersCollection().FindOne(ctx, bson.M{"uid": uid}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return record.ToModel(), nil
}

// GetBySlug resolves a profile by slug. The fast path hits the slug index.
// Legacy profiles without a stored slug are found by scanning and deriving
// the slug from the name on the fly.
func (s *ProfileService) GetBySlug(slug string) (*models.User, error) {
	target := strings.ToLower(strings.TrimSpace(slug))
	if target == "" {
		return nil, ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var record UserRecord
	err := s.usersCollection().FindOne(ctx, bson.M{"slug": target}).Decode(&record)
	if err == nil {
		return record.ToModel(), nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to get user by slug: %w", err)
	}

	cursor, err := s.usersCollection().Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var u UserRecord
		if err := cursor.Decode(&u); err != nil {
			continue
		}
		if strings.ToLower(strings.TrimSpace(u.Slug)) == target {
			return u.ToModel(), nil
		}
		full := strings.TrimSpace(u.FullName)
		if full == "" {
			continue
		}
		if kebabName("", "", full) == target {
			return u.ToModel(), nil
		}
		// Split heuristic: first word as first name, rest as last name.
		parts := strings.Fields(full)
		if len(parts) > 1 && kebabName(parts[0], strings.Join(parts[1:], " "), "") == target {
			return u.ToModel(), nil
		}
	}
	return nil, ErrUserNotFound
}

// UpdateProfile merges the provided fields into the profile and keeps the
// derived fields (slug, name tokens) in sync.
func (s *ProfileService) UpdateProfile(uid string, req *models.UpdateProfileRequest) (*models.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	set := bson.M{"updatedAt": time.Now()}
	if req.FullName != nil {
		full := strings.TrimSpace(*req.FullName)
		set["fullName"] = full
		set["fullNameLower"] = strings.ToLower(full)
		set["nameTokens"] = nameTokens(full)
	}
	if req.AvatarURL != nil {
		set["avatarUrl"] = *req.AvatarURL
	}
	if req.Occupation != nil {
		set["occupation"] = *req.Occupation
	}
	if req.Headline != nil {
		set["headline"] = *req.Headline
	}
	if req.Bio != nil {
		set["bio"] = *req.Bio
	}
	if req.Website != nil {
		set["website"] = *req.Website
	}
	if req.GitHub != nil {
		set["github"] = *req.GitHub
	}
	if req.Interests != nil {
		set["interests"] = req.Interests
	}
	if req.Skills != nil {
		set["skills"] = req.Skills
	}
	if req.Tags != nil {
		set["tags"] = req.Tags
	}
	if req.Topics != nil {
		set["topics"] = req.Topics
	}
	if req.About != nil {
		set["about"] = req.About
	}
	if req.Experience != nil {
		set["experience"] = req.Experience
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var record UserRecord
	err := s.usersCollection().FindOneAndUpdate(ctx, bson.M{"uid": uid}, bson.M{"$set": set}, opts).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	// A name change can invalidate the slug, re-derive when missing.
	if record.Slug == "" {
		if slug := kebabName("", "", record.FullName); slug != "" && slug != "user" {
			if _, err := s.usersCollection().UpdateOne(ctx, bson.M{"uid": uid}, bson.M{"$set": bson.M{"slug": slug}}); err == nil {
				record.Slug = slug
			}
		}
	}
	return record.ToModel(), nil
}

// SetAbout replaces the profile's about section. Passing nil clears it.
func (s *ProfileService) SetAbout(uid string, about *models.UserAbout) (*models.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{"updatedAt": time.Now()}}
	if about == nil {
		update["$unset"] = bson.M{"about": ""}
	} else {
		update["$set"].(bson.M)["about"] = about
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var record UserRecord
	err := s.usersCollection().FindOneAndUpdate(ctx, bson.M{"uid": uid}, update, opts).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update about section: %w", err)
	}
	return record.ToModel(), nil
}

// AddExperience appends an experience entry and returns the updated profile.
func (s *ProfileService) AddExperience(uid string, item models.ExperienceItem) (*models.User, error) {
	item.Title = strings.TrimSpace(item.Title)
	item.Company = strings.TrimSpace(item.Company)
	if item.Title == "" || item.Company == "" {
		return nil, ErrInvalidExperience
	}
	item.ID = uuid.New().String()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var record UserRecord
	err := s.usersCollection().FindOneAndUpdate(ctx,
		bson.M{"uid": uid},
		bson.M{
			"$push": bson.M{"experience": item},
			"$set":  bson.M{"updatedAt": time.Now()},
		}, opts).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add experience: %w", err)
	}
	return record.ToModel(), nil
}

// UpdateExperience rewrites one experience entry in place, keyed by its id.
func (s *ProfileService) UpdateExperience(uid, itemID string, item models.ExperienceItem) (*models.User, error) {
	item.Title = strings.TrimSpace(item.Title)
	item.Company = strings.TrimSpace(item.Company)
	if item.Title == "" || item.Company == "" {
		return nil, ErrInvalidExperience
	}
	item.ID = itemID

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var record UserRecord
	err := s.usersCollection().FindOneAndUpdate(ctx,
		bson.M{"uid": uid, "experience.id": itemID},
		bson.M{
			"$set": bson.M{
				"experience.$": item,
				"updatedAt":    time.Now(),
			},
		}, opts).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, ErrExperienceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update experience: %w", err)
	}
	return record.ToModel(), nil
}

// DeleteExperience removes one experience entry by id.
func (s *ProfileService) DeleteExperience(uid, itemID string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var record UserRecord
	err := s.usersCollection().FindOneAndUpdate(ctx,
		bson.M{"uid": uid},
		bson.M{
			"$pull": bson.M{"experience": bson.M{"id": itemID}},
			"$set":  bson.M{"updatedAt": time.Now()},
		}, opts).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete experience: %w", err)
	}
	return record.ToModel(), nil
}

// IsFollowing reports whether viewer follows target.
func (s *ProfileService) IsFollowing(viewerUID, targetUID string) bool {
	if viewerUID == "" || targetUID == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.relationsCollection().FindOne(ctx, bson.M{
		"follower": viewerUID,
		"followee": targetUID,
	}).Err()
	return err == nil
}

// Follow makes viewer follow the profile behind targetSlug. Idempotent.
// Returns the target's follower count after the operation.
func (s *ProfileService) Follow(viewerUID, targetSlug string) (int, error) {
	if viewerUID == "" {
		return 0, ErrUnauthorized
	}
	target, err := s.GetBySlug(targetSlug)
	if err != nil {
		return 0, err
	}
	if target.UID == viewerUID {
		return 0, ErrSelfFollow
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = s.mongoDB.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		res, err := s.relationsCollection().UpdateOne(sessCtx,
			bson.M{"follower": viewerUID, "followee": target.UID},
			bson.M{"$setOnInsert": bson.M{
				"follower":  viewerUID,
				"followee":  target.UID,
				"createdAt": time.Now(),
			}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("failed to record relation: %w", err)
		}
		if res.UpsertedCount == 0 {
			return nil // already following
		}

		if _, err := s.usersCollection().UpdateOne(sessCtx,
			bson.M{"uid": viewerUID},
			bson.M{"$addToSet": bson.M{"following": target.UID}},
		); err != nil {
			return fmt.Errorf("failed to update follower: %w", err)
		}
		if _, err := s.usersCollection().UpdateOne(sessCtx,
			bson.M{"uid": target.UID},
			bson.M{
				"$addToSet": bson.M{"followers": viewerUID},
				"$inc":      bson.M{"followersCount": 1},
			},
		); err != nil {
			return fmt.Errorf("failed to update followee: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Printf("🤝 [FOLLOW] %s -> %s", viewerUID, target.UID)
	return s.followersCount(ctx, target.UID), nil
}

// followersCount reads back the denormalized count, clamped at zero.
func (s *ProfileService) followersCount(ctx context.Context, uid string) int {
	var record struct {
		FollowersCount int `bson:"followersCount"`
	}
	if err := s.usersCollection().FindOne(ctx, bson.M{"uid": uid},
		options.FindOne().SetProjection(bson.M{"followersCount": 1})).Decode(&record); err != nil {
		return 0
	}
	if record.FollowersCount < 0 {
		return 0
	}
	return record.FollowersCount
}

// Unfollow removes viewer's follow on the profile behind targetSlug.
// Idempotent; the follower count never drops below zero.
func (s *ProfileService) Unfollow(viewerUID, targetSlug string) (int, error) {
	if viewerUID == "" {
		return 0, ErrUnauthorized
	}
	target, err := s.GetBySlug(targetSlug)
	if err != nil {
		return 0, err
	}
	if target.UID == viewerUID {
		return 0, ErrSelfFollow
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = s.mongoDB.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		res, err := s.relationsCollection().DeleteOne(sessCtx, bson.M{
			"follower": viewerUID,
			"followee": target.UID,
		})
		if err != nil {
			return fmt.Errorf("failed to delete relation: %w", err)
		}
		if res.DeletedCount == 0 {
			return nil // was not following
		}

		if _, err := s.usersCollection().UpdateOne(sessCtx,
			bson.M{"uid": viewerUID},
			bson.M{"$pull": bson.M{"following": target.UID}},
		); err != nil {
			return fmt.Errorf("failed to update follower: %w", err)
		}

		// Clamp the denormalized count at zero inside the transaction.
		count := s.followersCount(sessCtx, target.UID) - 1
		if count < 0 {
			count = 0
		}
		if _, err := s.usersCollection().UpdateOne(sessCtx,
			bson.M{"uid": target.UID},
			bson.M{
				"$pull": bson.M{"followers": viewerUID},
				"$set":  bson.M{"followersCount": count},
			},
		); err != nil {
			return fmt.Errorf("failed to update followee: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Printf("👋 [UNFOLLOW] %s -> %s", viewerUID, target.UID)
	return s.followersCount(ctx, target.UID), nil
}

// BackfillSlugs derives and stores slugs for profiles that lack one.
// Returns the number of updated documents.
func (s *ProfileService) BackfillSlugs() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cursor, err := s.usersCollection().Find(ctx, bson.M{
		"$or": []bson.M{
			{"slug": bson.M{"$exists": false}},
			{"slug": ""},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan users: %w", err)
	}
	defer cursor.Close(ctx)

	updated := 0
	for cursor.Next(ctx) {
		var u UserRecord
		if err := cursor.Decode(&u); err != nil {
			continue
		}
		slug := kebabName("", "", u.FullName)
		if slug == "" || slug == "user" {
			continue
		}
		if _, err := s.usersCollection().UpdateOne(ctx,
			bson.M{"uid": u.UID},
			bson.M{"$set": bson.M{"slug": slug}},
		); err == nil {
			updated++
		}
	}

	if updated > 0 {
		log.Printf("🔧 [SLUGS] Backfilled %d profile slugs", updated)
	}
	return updated, nil
}
