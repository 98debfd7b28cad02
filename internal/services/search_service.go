package services

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"neuro/internal/database"
	"neuro/internal/models"
)

const (
	searchMinQueryLen  = 2
	searchDefaultLimit = 8
	searchScanCap      = 400
)

var nameCleaner = regexp.MustCompile(`[^a-zA-Z0-9\s-]`)

// nameTokens breaks a name into lowercased words plus progressive prefixes
// (2 up to 6 chars) so short queries hit the token index.
// "Diego Cicotoste" -> ["diego","di","die","dieg","cicotoste","ci",...]
func nameTokens(fullName string) []string {
	clean := strings.ToLower(strings.TrimSpace(nameCleaner.ReplaceAllString(fullName, " ")))
	parts := strings.Fields(clean)

	var toks []string
	for _, p := range parts {
		toks = append(toks, p)
		max := len(p)
		if max > 6 {
			max = 6
		}
		for k := 2; k <= max; k++ {
			toks = append(toks, p[:k])
		}
	}

	seen := map[string]bool{}
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// SearchService finds users by name.
type SearchService struct {
	mongoDB *database.MongoDB
}

// NewSearchService creates a new search service
func NewSearchService(mongoDB *database.MongoDB) *SearchService {
	return &SearchService{mongoDB: mongoDB}
}

func (s *SearchService) searchUsers() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionUsers)
}

// SearchUsers searches profiles by name and returns minimal cards,
// name-prefix matches ranked ahead of substring matches. Queries under
// two characters return nothing.
func (s *SearchService) SearchUsers(query string, limit int) ([]models.SearchCard, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if len(q) < searchMinQueryLen {
		return []models.SearchCard{}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = searchDefaultLimit
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Fast path: the token index covers prefixes up to six chars.
	token := q
	if len(token) > 6 {
		token = token[:6]
	}
	records, err := s.findUsers(ctx, bson.M{"nameTokens": token}, limit*2)
	if err != nil {
		log.Printf("⚠️ [SEARCH] Token query failed: %v", err)
	}
	if cards := rankCards(records, q, limit); len(cards) > 0 {
		return cards, nil
	}

	// Prefix on the lowered name, for queries longer than the token cap.
	records, err = s.findUsers(ctx, bson.M{
		"fullNameLower": bson.M{"$regex": "^" + regexp.QuoteMeta(q)},
	}, limit*2)
	if err != nil {
		log.Printf("⚠️ [SEARCH] Prefix query failed: %v", err)
	}
	if cards := rankCards(records, q, limit); len(cards) > 0 {
		return cards, nil
	}

	// Last resort: bounded scan with substring matching.
	records, err = s.findUsers(ctx, bson.M{}, searchScanCap)
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	return rankCards(records, q, limit), nil
}

func (s *SearchService) findUsers(ctx context.Context, filter bson.M, limit int) ([]UserRecord, error) {
	opts := options.Find().SetLimit(int64(limit))
	cursor, err := s.searchUsers().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []UserRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// rankCards filters records to substring matches on the lowered name and
// orders prefix matches first.
func rankCards(records []UserRecord, q string, limit int) []models.SearchCard {
	var starts, subs []models.SearchCard
	for i := range records {
		u := &records[i]
		lower := u.FullNameLower
		if lower == "" {
			lower = strings.ToLower(u.FullName)
		}
		if !strings.Contains(lower, q) {
			continue
		}
		card := models.SearchCard{
			ID:        u.UID,
			FullName:  u.FullName,
			Slug:      u.Slug,
			AvatarURL: u.AvatarURL,
		}
		if card.Slug == "" {
			card.Slug = kebabName("", "", u.FullName)
		}
		if strings.HasPrefix(lower, q) {
			starts = append(starts, card)
		} else {
			subs = append(subs, card)
		}
	}

	ranked := append(starts, subs...)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	if ranked == nil {
		ranked = []models.SearchCard{}
	}
	return ranked
}

// Backfill recomputes fullNameLower, nameTokens and slug for up to limit
// profiles that are missing them. Dev helper behind the superadmin API.
func (s *SearchService) Backfill(limit int) (int, error) {
	if limit <= 0 || limit > 2000 {
		limit = 500
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cursor, err := s.searchUsers().Find(ctx, bson.M{}, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return 0, fmt.Errorf("failed to scan users: %w", err)
	}
	defer cursor.Close(ctx)

	updated := 0
	for cursor.Next(ctx) {
		var u struct {
			ID            primitive.ObjectID `bson:"_id"`
			UID           string             `bson:"uid"`
			FullName      string             `bson:"fullName"`
			FullNameLower string             `bson:"fullNameLower"`
			NameTokens    []string           `bson:"nameTokens"`
			Slug          string             `bson:"slug"`
		}
		if err := cursor.Decode(&u); err != nil {
			continue
		}

		set := bson.M{}
		if lower := strings.ToLower(u.FullName); u.FullNameLower != lower {
			set["fullNameLower"] = lower
		}
		if len(u.NameTokens) == 0 && u.FullName != "" {
			set["nameTokens"] = nameTokens(u.FullName)
		}
		if u.Slug == "" {
			if slug := kebabName("", "", u.FullName); slug != "" && slug != "user" {
				set["slug"] = slug
			}
		}
		if len(set) == 0 {
			continue
		}
		if _, err := s.searchUsers().UpdateOne(ctx, bson.M{"_id": u.ID}, bson.M{"$set": set}); err == nil {
			updated++
		}
	}

	if updated > 0 {
		log.Printf("🔧 [SEARCH] Backfilled search fields on %d profiles", updated)
	}
	return updated, nil
}
