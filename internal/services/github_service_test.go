package services

import (
	"testing"

	"neuro/internal/models"
)

func TestGitHubUsername(t *testing.T) {
	tests := []struct {
		name string
		user models.User
		want string
	}{
		{"plain handle", models.User{GitHub: "diego"}, "diego"},
		{"profile url", models.User{GitHub: "https://github.com/diego"}, "diego"},
		{"url with trailing path", models.User{GitHub: "https://github.com/diego/repo"}, "diego"},
		{"website fallback", models.User{Website: "https://github.com/ana?tab=repos"}, "ana"},
		{"about website fallback", models.User{About: &models.UserAbout{Website: "http://github.com/bo#x"}}, "bo"},
		{"nothing", models.User{Website: "https://example.com"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := githubUsername(&tt.user); got != tt.want {
				t.Errorf("githubUsername() = %q, want %q", got, tt.want)
			}
		})
	}
}
