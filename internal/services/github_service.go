package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"

	"neuro/internal/models"
)

const githubAPIBase = "https://api.github.com"

var githubURLPattern = regexp.MustCompile(`github\.com/([^/?#]+)`)

// GitHubRepo is one public repository on a profile's showcase.
type GitHubRepo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	HTMLURL     string `json:"html_url"`
	Description string `json:"description,omitempty"`
	Stars       int    `json:"stargazers_count"`
	Forks       int    `json:"forks_count"`
	Language    string `json:"language,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	Private     bool   `json:"private"`
	Archived    bool   `json:"archived"`
}

// GitHubService fetches public repos for profile showcases. Unauthenticated
// GitHub API calls are heavily rate limited, so results are cached.
type GitHubService struct {
	profiles *ProfileService
	client   *http.Client
	cache    *cache.Cache
}

// NewGitHubService creates a new GitHub showcase service
func NewGitHubService(profiles *ProfileService) *GitHubService {
	return &GitHubService{
		profiles: profiles,
		client:   &http.Client{Timeout: 15 * time.Second},
		cache:    cache.New(10*time.Minute, 5*time.Minute),
	}
}

// githubUsername digs the GitHub handle out of a profile: the dedicated
// field first (handle or full URL), then a github.com website link.
func githubUsername(u *models.User) string {
	if gh := strings.TrimSpace(u.GitHub); gh != "" {
		if m := githubURLPattern.FindStringSubmatch(gh); m != nil {
			return m[1]
		}
		return gh
	}
	if m := githubURLPattern.FindStringSubmatch(u.Website); m != nil {
		return m[1]
	}
	if u.About != nil {
		if m := githubURLPattern.FindStringSubmatch(u.About.Website); m != nil {
			return m[1]
		}
	}
	return ""
}

// ReposForSlug returns the newest public repos for the profile behind slug.
// Profiles without a discoverable GitHub handle get an empty list.
func (s *GitHubService) ReposForSlug(slug string, limit int) ([]GitHubRepo, error) {
	if limit <= 0 || limit > 30 {
		limit = 10
	}

	user, err := s.profiles.GetBySlug(slug)
	if err != nil {
		return nil, err
	}
	username := githubUsername(user)
	if username == "" {
		return []GitHubRepo{}, nil
	}

	cacheKey := fmt.Sprintf("repos:%s:%d", username, limit)
	if cached, found := s.cache.Get(cacheKey); found {
		return cached.([]GitHubRepo), nil
	}

	repos, err := s.fetchRepos(username, limit)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey, repos, cache.DefaultExpiration)
	return repos, nil
}

func (s *GitHubService) fetchRepos(username string, limit int) ([]GitHubRepo, error) {
	endpoint := fmt.Sprintf("%s/users/%s/repos?sort=updated&per_page=%d",
		githubAPIBase, url.PathEscape(username), limit)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "neuro/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error contacting GitHub: %w", err)
	}
	defer resp.Body.Close()

	// Unknown user or API trouble both render as an empty showcase.
	if resp.StatusCode == http.StatusNotFound {
		return []GitHubRepo{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️ [GITHUB] API returned %d for %s", resp.StatusCode, username)
		return []GitHubRepo{}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read GitHub response: %w", err)
	}

	var repos []GitHubRepo
	if err := json.Unmarshal(body, &repos); err != nil {
		return nil, fmt.Errorf("failed to decode GitHub response: %w", err)
	}

	sort.Slice(repos, func(i, j int) bool { return repos[i].UpdatedAt > repos[j].UpdatedAt })
	if len(repos) > limit {
		repos = repos[:limit]
	}
	return repos, nil
}
