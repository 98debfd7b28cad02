package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"neuro/internal/database"
	"neuro/internal/enrich"
	"neuro/internal/models"
)

// profileChunkSize bounds the $in batches when hydrating follower profiles.
const profileChunkSize = 10

// NetworkService resolves a user's follower network and answers questions
// about it (grouping, free-text matching, flow audiences).
type NetworkService struct {
	mongoDB  *database.MongoDB
	llm      *LLMService
	enricher *enrich.Service
	limiter  *aiCallLimiter
	cache    *cache.Cache
}

// NewNetworkService creates a new network service. enricher may be nil,
// which turns interest backfill into a no-op.
func NewNetworkService(mongoDB *database.MongoDB, llm *LLMService, enricher *enrich.Service) *NetworkService {
	return &NetworkService{
		mongoDB:  mongoDB,
		llm:      llm,
		enricher: enricher,
		limiter:  newAICallLimiter(800 * time.Millisecond),
		cache:    cache.New(60*time.Second, 5*time.Minute),
	}
}

func (s *NetworkService) networkUsers() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionUsers)
}

func (s *NetworkService) networkRelations() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionRelations)
}

// FollowerUIDs unions every follower schema still in the wild: the
// relations collection (follower/followee and the legacy from/to keys)
// plus the embedded followers array on the profile. Deduped and sorted.
func (s *NetworkService) FollowerUIDs(uid string) []string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	set := map[string]bool{}

	var profile struct {
		Followers []string `bson:"followers"`
	}
	if err := s.networkUsers().FindOne(ctx, bson.M{"uid": uid}).Decode(&profile); err == nil {
		for _, f := range profile.Followers {
			if f = strings.TrimSpace(f); f != "" {
				set[f] = true
			}
		}
	}

	s.collectRelations(ctx, bson.M{"followee": uid}, "follower", set)
	s.collectRelations(ctx, bson.M{"to": uid}, "from", set)

	uids := make([]string, 0, len(set))
	for u := range set {
		uids = append(uids, u)
	}
	sort.Strings(uids)
	return uids
}

func (s *NetworkService) collectRelations(ctx context.Context, filter bson.M, field string, into map[string]bool) {
	cursor, err := s.networkRelations().Find(ctx, filter)
	if err != nil {
		log.Printf("⚠️ [NETWORK] Relation query failed: %v", err)
		return
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		if v, ok := doc[field].(string); ok && v != "" {
			into[v] = true
		}
	}
}

// loadProfiles hydrates uids into full profile records, batched.
func (s *NetworkService) loadProfiles(ctx context.Context, uids []string) map[string]*models.User {
	profiles := make(map[string]*models.User, len(uids))
	for start := 0; start < len(uids); start += profileChunkSize {
		end := start + profileChunkSize
		if end > len(uids) {
			end = len(uids)
		}
		batch := uids[start:end]

		cursor, err := s.networkUsers().Find(ctx, bson.M{"uid": bson.M{"$in": batch}})
		if err != nil {
			log.Printf("⚠️ [NETWORK] Profile batch failed: %v", err)
			continue
		}
		for cursor.Next(ctx) {
			var record UserRecord
			if err := cursor.Decode(&record); err != nil {
				continue
			}
			profiles[record.UID] = record.ToModel()
		}
		cursor.Close(ctx)
	}
	return profiles
}

// Network returns the user's followers shaped for the network surface, in
// uid order. Results are cached briefly since the flow engine and the
// network page both hammer this.
func (s *NetworkService) Network(uid string) ([]models.NetworkPerson, error) {
	cacheKey := "network:" + uid
	if cached, found := s.cache.Get(cacheKey); found {
		return cached.([]models.NetworkPerson), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	uids := s.FollowerUIDs(uid)
	profiles := s.loadProfiles(ctx, uids)

	people := make([]models.NetworkPerson, 0, len(uids))
	for _, u := range uids {
		p, ok := profiles[u]
		if !ok {
			continue
		}
		people = append(people, shapePerson(u, p))
	}

	s.cache.Set(cacheKey, people, cache.DefaultExpiration)
	return people, nil
}

// shapePerson fills in the fallbacks the clients rely on: a display name,
// a slug, and non-nil interest arrays.
func shapePerson(uid string, p *models.User) models.NetworkPerson {
	full := strings.TrimSpace(p.FullName)
	if full == "" {
		full = "User"
	}
	slug := p.Slug
	if slug == "" {
		slug = kebabName("", "", full)
	}
	occ := p.Occupation
	if occ == "" {
		occ = p.Headline
	}
	return models.NetworkPerson{
		UID:        uid,
		FullName:   full,
		Slug:       slug,
		AvatarURL:  p.AvatarURL,
		Occupation: occ,
		Interests:  emptyIfNil(p.Interests),
		Skills:     emptyIfNil(p.Skills),
		Tags:       emptyIfNil(p.Tags),
		Topics:     emptyIfNil(p.Topics),
		Headline:   p.Headline,
		Bio:        p.Bio,
		Email:      p.Email,
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Audience returns the user's network in the shape flow runs consume.
func (s *NetworkService) Audience(uid string) ([]models.AudiencePerson, error) {
	people, err := s.Network(uid)
	if err != nil {
		return nil, err
	}
	audience := make([]models.AudiencePerson, 0, len(people))
	for i := range people {
		audience = append(audience, people[i].AudiencePerson())
	}
	return audience, nil
}

// OccGroup is one occupation bucket of the network with its interest
// frequencies, most common first.
type OccGroup struct {
	Name      string          `json:"name"`
	Count     int             `json:"count"`
	Interests []InterestCount `json:"interests"`
}

// Groups buckets the user's network by normalized occupation and counts
// derived interests inside each bucket. Buckets come back largest first.
func (s *NetworkService) Groups(uid string) ([]OccGroup, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	uids := s.FollowerUIDs(uid)
	profiles := s.loadProfiles(ctx, uids)

	counts := map[string]int{}
	interestCounts := map[string]map[string]int{}
	for _, u := range uids {
		p, ok := profiles[u]
		if !ok {
			continue
		}
		occSource := p.Occupation
		if occSource == "" {
			occSource = p.Headline
		}
		occ := normalizeOcc(occSource)
		counts[occ]++
		if interestCounts[occ] == nil {
			interestCounts[occ] = map[string]int{}
		}
		for _, it := range deriveInterests(p) {
			interestCounts[occ][it]++
		}
	}

	groups := make([]OccGroup, 0, len(counts))
	for occ, n := range counts {
		interests := make([]InterestCount, 0, len(interestCounts[occ]))
		for label, c := range interestCounts[occ] {
			interests = append(interests, InterestCount{Label: label, Count: c})
		}
		sort.Slice(interests, func(i, j int) bool {
			if interests[i].Count != interests[j].Count {
				return interests[i].Count > interests[j].Count
			}
			return interests[i].Label < interests[j].Label
		})
		groups = append(groups, OccGroup{Name: occ, Count: n, Interests: interests})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Name < groups[j].Name
	})
	return groups, nil
}

// Match finds the occupation bucket (and interest) in the user's network
// that best fits a free-text query. Asks the LLM first when one is
// configured, otherwise scores locally.
func (s *NetworkService) Match(uid, query, extra string) (*MatchResult, error) {
	groups, err := s.Groups(uid)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("network is empty")
	}

	occs := make([]string, 0, len(groups))
	interestsByOcc := make(map[string][]InterestCount, len(groups))
	for _, g := range groups {
		occs = append(occs, g.Name)
		interestsByOcc[g.Name] = g.Interests
	}

	if s.llm != nil && s.llm.Configured() {
		if err := s.limiter.Allow(uid); err != nil {
			return nil, err
		}
		if res := s.llmMatch(query, extra, occs); res != nil {
			return res, nil
		}
		// Model output was unusable, score locally instead.
	}

	res := localMatch(query, extra, occs, interestsByOcc)
	if res == nil {
		return nil, fmt.Errorf("no match for query")
	}
	return res, nil
}

func (s *NetworkService) llmMatch(query, extra string, occs []string) *MatchResult {
	prompt := fmt.Sprintf(`Pick the best audience group for a request.

Request: %s
%s
Groups: %s

Respond with only a JSON object: {"occupation": "<one of the groups verbatim>", "interest": "<short topic or empty>"}`,
		strings.TrimSpace(query), strings.TrimSpace(extra), strings.Join(occs, ", "))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	raw, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		log.Printf("⚠️ [NETWORK] LLM match failed: %v", err)
		return nil
	}
	obj, ok := ExtractJSONObject(raw)
	if !ok {
		return nil
	}

	occ, _ := obj["occupation"].(string)
	interest, _ := obj["interest"].(string)
	for _, o := range occs {
		if strings.EqualFold(strings.TrimSpace(occ), o) {
			return &MatchResult{Occupation: o, Interest: strings.TrimSpace(interest), Source: "llm"}
		}
	}
	return nil
}

// BackfillInterests scans members who list a website but expose no
// interests, pulls readable text from the site, and stores keyword hits
// back on the profile. Returns the number of profiles updated. No-op
// when no enricher is wired.
func (s *NetworkService) BackfillInterests(ctx context.Context, limit int) int {
	if s.enricher == nil {
		return 0
	}
	if limit <= 0 {
		limit = 20
	}

	filter := bson.M{
		"website": bson.M{"$exists": true, "$ne": ""},
		"$or": bson.A{
			bson.M{"interests": bson.M{"$exists": false}},
			bson.M{"interests": bson.M{"$size": 0}},
		},
	}
	findOpts := options.Find().
		SetLimit(int64(limit)).
		SetProjection(bson.M{"uid": 1, "website": 1})

	cursor, err := s.networkUsers().Find(ctx, filter, findOpts)
	if err != nil {
		log.Printf("❌ [ENRICH] Backfill query failed: %v", err)
		return 0
	}
	var members []models.User
	if err := cursor.All(ctx, &members); err != nil {
		log.Printf("❌ [ENRICH] Backfill decode failed: %v", err)
		return 0
	}

	updated := 0
	for _, m := range members {
		text, err := s.enricher.PageText(ctx, m.UID, m.Website)
		if err != nil {
			log.Printf("⚠️ [ENRICH] Skipping %s (%s): %v", m.UID, m.Website, err)
			continue
		}
		hits := keywordHits(text)
		if len(hits) == 0 {
			continue
		}

		_, err = s.networkUsers().UpdateOne(ctx, bson.M{"uid": m.UID}, bson.M{
			"$addToSet": bson.M{"interests": bson.M{"$each": hits}},
			"$set":      bson.M{"updatedAt": time.Now()},
		})
		if err != nil {
			log.Printf("❌ [ENRICH] Failed to store interests for %s: %v", m.UID, err)
			continue
		}
		updated++
	}
	if updated > 0 {
		log.Printf("✅ [ENRICH] Backfilled interests for %d profile(s)", updated)
	}
	return updated
}
