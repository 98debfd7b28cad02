package services

import (
	"strings"
	"testing"

	"neuro/internal/models"
)

func TestKebabName(t *testing.T) {
	tests := []struct {
		name  string
		first string
		last  string
		full  string
		want  string
	}{
		{"full name wins", "x", "y", "Ana Silva", "ana-silva"},
		{"first and last", "Ana", "Silva", "", "ana-silva"},
		{"punctuation stripped", "", "", "J. R. O'Neil", "j-r-oneil"},
		{"extra whitespace", "", "", "  Ana   Silva  ", "ana-silva"},
		{"everything empty", "", "", "", "user"},
		{"only symbols", "", "", "!!!", "user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := kebabName(tt.first, tt.last, tt.full); got != tt.want {
				t.Errorf("kebabName(%q, %q, %q) = %q, want %q", tt.first, tt.last, tt.full, got, tt.want)
			}
		})
	}
}

func TestNormalizeOcc(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "Other"},
		{"   ", "Other"},
		{"Senior Backend Developer", "Software Engineer"},
		{"full stack engineer", "Software Engineer"},
		{"Machine Learning Scientist", "Data / AI"},
		{"UX Designer", "Design"},
		{"Product Manager", "Product"},
		{"Site Reliability Engineer", "Software Engineer"}, // engineer hits first
		{"SRE", "DevOps / Infra"},
		{"infosec analyst", "Security"},
		{"CS student", "Student / Intern"},
		{"startup CTO", "Founder"},
		{"barista", "Barista"},
	}
	for _, tt := range tests {
		if got := normalizeOcc(tt.in); got != tt.want {
			t.Errorf("normalizeOcc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeriveInterests(t *testing.T) {
	u := &models.User{
		Interests:  []string{"hiking", " hiking ", ""},
		Skills:     []string{"golang"},
		Headline:   "Building with Kubernetes and Postgres",
		Occupation: "Platform Engineer",
	}
	got := deriveInterests(u)

	want := map[string]bool{}
	for _, g := range got {
		want[g] = true
	}
	for _, expect := range []string{"Hiking", "Golang", "Kubernetes", "Postgres"} {
		if !want[expect] {
			t.Errorf("deriveInterests missing %q, got %v", expect, got)
		}
	}
	// "hiking" appears twice in the input but only once derived.
	count := 0
	for _, g := range got {
		if g == "Hiking" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected deduped interests, Hiking appeared %d times", count)
	}
}

func TestDeriveInterestsFallsBackToOccupation(t *testing.T) {
	u := &models.User{Occupation: "Beekeeper / Cheesemonger / Juggler / Acrobat"}
	got := deriveInterests(u)
	if len(got) != 3 {
		t.Fatalf("occupation fallback should cap at 3 pieces, got %v", got)
	}
	if got[0] != "Beekeeper" || got[1] != "Cheesemonger" || got[2] != "Juggler" {
		t.Errorf("unexpected fallback interests %v", got)
	}
}

func TestDeriveInterestsCap(t *testing.T) {
	u := &models.User{}
	for i := 0; i < 60; i++ {
		u.Interests = append(u.Interests, "topic"+strings.Repeat("x", i+1))
	}
	if got := deriveInterests(u); len(got) != 40 {
		t.Errorf("interests should cap at 40, got %d", len(got))
	}
}

func TestKeywordHits(t *testing.T) {
	text := "We run everything on Kubernetes, and ship Go services against Postgres."
	got := keywordHits(text)

	set := map[string]bool{}
	for _, g := range got {
		set[g] = true
	}
	for _, expect := range []string{"Kubernetes", "Go", "Postgres"} {
		if !set[expect] {
			t.Errorf("keywordHits missing %q, got %v", expect, got)
		}
	}
}

func TestKeywordHitsWholeTokensOnly(t *testing.T) {
	got := keywordHits("The cargo cult of modern javascript frameworks.")
	for _, g := range got {
		if g == "Go" {
			t.Errorf("'cargo' must not hit the go keyword, got %v", got)
		}
	}
	found := false
	for _, g := range got {
		if g == "Javascript" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a Javascript hit, got %v", got)
	}
}

func TestExpandTokensPullsSynonymFamilies(t *testing.T) {
	expanded := expandTokens([]string{"kubernetes"})
	set := map[string]bool{}
	for _, tok := range expanded {
		set[tok] = true
	}
	if !set["devops"] || !set["docker"] || !set["terraform"] {
		t.Errorf("kubernetes should expand into the devops family, got %v", expanded)
	}
}

func TestScoreText(t *testing.T) {
	q := expandTokens(tokenize("backend api"))
	if s := scoreText(q, "backend"); s < 2 {
		t.Errorf("exact token hit should score at least 2, got %v", s)
	}
	if s := scoreText(q, "gardening"); s != 0 {
		t.Errorf("unrelated target should score 0, got %v", s)
	}
}

func TestLocalMatchPicksBestBucket(t *testing.T) {
	occs := []string{"Software Engineer", "Design"}
	interests := map[string][]InterestCount{
		"Software Engineer": {{Label: "Kubernetes", Count: 4}, {Label: "Postgres", Count: 2}},
		"Design":            {{Label: "Figma", Count: 3}},
	}

	res := localMatch("looking for kubernetes folks", "", occs, interests)
	if res == nil {
		t.Fatal("expected a match")
	}
	if res.Occupation != "Software Engineer" {
		t.Errorf("matched %q, want Software Engineer", res.Occupation)
	}
	if res.Interest != "Kubernetes" {
		t.Errorf("matched interest %q, want Kubernetes", res.Interest)
	}
	if res.Scores["Software Engineer"] <= res.Scores["Design"] {
		t.Errorf("scores should favor the engineer bucket: %v", res.Scores)
	}
}

func TestLocalMatchEmptyInputs(t *testing.T) {
	if res := localMatch("", "", []string{"Design"}, nil); res != nil {
		t.Errorf("empty query should not match, got %+v", res)
	}
	if res := localMatch("query", "", nil, nil); res != nil {
		t.Errorf("no buckets should not match, got %+v", res)
	}
}
