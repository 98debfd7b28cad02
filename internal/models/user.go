package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a member profile as stored in MongoDB. Auth credentials live in the
// SQL accounts table; this document is everything social.
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UID           string             `bson:"uid" json:"uid"`
	Email         string             `bson:"email,omitempty" json:"email,omitempty"`
	FullName      string             `bson:"fullName,omitempty" json:"fullName,omitempty"`
	FullNameLower string             `bson:"fullNameLower,omitempty" json:"-"` // lowercased copy for substring search
	NameTokens    []string           `bson:"nameTokens,omitempty" json:"-"`    // word prefixes for progressive search
	Slug          string             `bson:"slug,omitempty" json:"slug,omitempty"`
	AvatarURL     string             `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`

	Occupation string   `bson:"occupation,omitempty" json:"occupation,omitempty"`
	Headline   string   `bson:"headline,omitempty" json:"headline,omitempty"`
	Bio        string   `bson:"bio,omitempty" json:"bio,omitempty"`
	Interests  []string `bson:"interests,omitempty" json:"interests,omitempty"`
	Skills     []string `bson:"skills,omitempty" json:"skills,omitempty"`
	Tags       []string `bson:"tags,omitempty" json:"tags,omitempty"`
	Topics     []string `bson:"topics,omitempty" json:"topics,omitempty"`
	Website    string   `bson:"website,omitempty" json:"website,omitempty"`
	GitHub     string   `bson:"github,omitempty" json:"github,omitempty"` // username or profile URL

	// Denormalized follow graph. The relations collection is the source of
	// truth; these are kept in step inside the same transaction.
	Followers      []string `bson:"followers,omitempty" json:"-"`
	Following      []string `bson:"following,omitempty" json:"-"`
	FollowersCount int      `bson:"followersCount" json:"followersCount"`

	About      *UserAbout       `bson:"about,omitempty" json:"about,omitempty"`
	Experience []ExperienceItem `bson:"experience,omitempty" json:"experience,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// UserAbout is the free-form "about" section of a profile.
type UserAbout struct {
	Bio      string `bson:"bio,omitempty" json:"bio,omitempty"`
	Location string `bson:"location,omitempty" json:"location,omitempty"`
	Website  string `bson:"website,omitempty" json:"website,omitempty"`
	Company  string `bson:"company,omitempty" json:"company,omitempty"`
	Position string `bson:"position,omitempty" json:"position,omitempty"`
}

// ExperienceItem is one entry of a profile's experience list.
type ExperienceItem struct {
	ID          string `bson:"id" json:"id"`
	Title       string `bson:"title" json:"title"`
	Company     string `bson:"company" json:"company"`
	StartDate   string `bson:"startDate,omitempty" json:"startDate,omitempty"`
	EndDate     string `bson:"endDate,omitempty" json:"endDate,omitempty"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
}

// NetworkPerson is a follower shaped for audience building: occupation
// normalized into buckets and interests backfilled from profile text.
type NetworkPerson struct {
	UID        string   `json:"uid"`
	FullName   string   `json:"fullName"`
	Slug       string   `json:"slug,omitempty"`
	AvatarURL  string   `json:"avatarUrl,omitempty"`
	Occupation string   `json:"occupation,omitempty"`
	Interests  []string `json:"interests,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Topics     []string `json:"topics,omitempty"`
	Headline   string   `json:"headline,omitempty"`
	Bio        string   `json:"bio,omitempty"`
	Email      string   `json:"email,omitempty"`
}

// AudiencePerson flattens a NetworkPerson to what the flow engine consumes.
func (p *NetworkPerson) AudiencePerson() AudiencePerson {
	return AudiencePerson{
		UID:        p.UID,
		FullName:   p.FullName,
		Slug:       p.Slug,
		AvatarURL:  p.AvatarURL,
		Occupation: p.Occupation,
		Email:      p.Email,
	}
}

// SearchCard is the compact search result the people picker renders.
type SearchCard struct {
	ID        string `json:"id"`
	FullName  string `json:"fullName"`
	Slug      string `json:"slug,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// UpdateProfileRequest carries the editable profile fields. Pointer and
// nil-slice fields distinguish "leave unchanged" from "clear".
type UpdateProfileRequest struct {
	FullName   *string          `json:"fullName,omitempty"`
	AvatarURL  *string          `json:"avatarUrl,omitempty"`
	Occupation *string          `json:"occupation,omitempty"`
	Headline   *string          `json:"headline,omitempty"`
	Bio        *string          `json:"bio,omitempty"`
	Website    *string          `json:"website,omitempty"`
	GitHub     *string          `json:"github,omitempty"`
	Interests  []string         `json:"interests,omitempty"`
	Skills     []string         `json:"skills,omitempty"`
	Tags       []string         `json:"tags,omitempty"`
	Topics     []string         `json:"topics,omitempty"`
	About      *UserAbout       `json:"about,omitempty"`
	Experience []ExperienceItem `json:"experience,omitempty"`
}
