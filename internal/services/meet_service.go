package services

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"

	"neuro/internal/config"
)

const (
	googleTokenURL      = "https://oauth2.googleapis.com/token"
	googleCalendarScope = "https://www.googleapis.com/auth/calendar"
	googleCalendarBase  = "https://www.googleapis.com/calendar/v3"

	defaultMeetTimezone = "America/New_York"
	accessTokenCacheKey = "calendar_access_token"
)

// MeetEvent is the outcome of a scheduling attempt. OK stays true on the
// unconfigured fallback path so flows keep moving with a placeholder link.
type MeetEvent struct {
	OK         bool   `json:"ok"`
	MeetURL    string `json:"meetUrl"`
	EventID    string `json:"eventId,omitempty"`
	CalendarID string `json:"calendarId,omitempty"`
	Note       string `json:"note,omitempty"`
	Error      string `json:"error,omitempty"`
}

// MeetService creates Google Calendar events with Meet links, using a
// service account. Without credentials it hands back placeholder links.
type MeetService struct {
	saEmail     string
	impersonate string
	calendarID  string
	privateKey  *rsa.PrivateKey
	client      *http.Client
	tokens      *cache.Cache
}

// NewMeetService creates a new meet service from the Google settings in cfg.
func NewMeetService(cfg *config.Config) *MeetService {
	s := &MeetService{
		saEmail:     cfg.GoogleSAEmail,
		impersonate: cfg.GoogleImpersonateEmail,
		calendarID:  cfg.GoogleCalendarID,
		client:      &http.Client{Timeout: 15 * time.Second},
		tokens:      cache.New(50*time.Minute, 10*time.Minute),
	}
	if s.calendarID == "" {
		s.calendarID = "primary"
	}

	if cfg.GoogleSAEmail != "" && cfg.GoogleSAPrivateKey != "" {
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.GoogleSAPrivateKey))
		if err != nil {
			log.Printf("⚠️ Google service account key is invalid, meet links will use fallback URLs: %v", err)
		} else {
			s.privateKey = key
			log.Printf("✅ Google Calendar configured (service account: %s)", cfg.GoogleSAEmail)
		}
	} else {
		log.Println("⚠️ Google Calendar not configured, meet links will use fallback URLs")
	}
	return s
}

// Configured reports whether real Calendar API calls can be made.
func (s *MeetService) Configured() bool {
	return s.privateKey != nil
}

// Schedule creates a calendar event with a Meet link. The event runs from
// startISO for max(15, durationMins) minutes, defaulting to 30. Attendees
// that fail light email validation are dropped.
func (s *MeetService) Schedule(ctx context.Context, title, startISO string, durationMins int, attendees []string) MeetEvent {
	start, err := time.Parse(time.RFC3339, startISO)
	if err != nil {
		log.Printf("⚠️ Unparseable meet start %q, using now: %v", startISO, err)
		start = time.Now()
	}
	if durationMins <= 0 {
		durationMins = 30
	}
	if durationMins < 15 {
		durationMins = 15
	}
	end := start.Add(time.Duration(durationMins) * time.Minute)

	if title == "" {
		title = "Intro chat"
	}

	if !s.Configured() {
		return MeetEvent{
			OK:      true,
			MeetURL: fallbackMeetURL(),
			Note:    "Fallback (no Google API configured)",
		}
	}

	type eventTime struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	}
	body := map[string]any{
		"summary": title,
		"start":   eventTime{DateTime: start.Format(time.RFC3339), TimeZone: defaultMeetTimezone},
		"end":     eventTime{DateTime: end.Format(time.RFC3339), TimeZone: defaultMeetTimezone},
		"conferenceData": map[string]any{
			"createRequest": map[string]any{
				"requestId":             strings.ReplaceAll(uuid.New().String(), "-", ""),
				"conferenceSolutionKey": map[string]string{"type": "hangoutsMeet"},
			},
		},
	}
	var list []map[string]string
	for _, e := range attendees {
		if safe := safeEmail(e); safe != "" {
			list = append(list, map[string]string{"email": safe})
		}
	}
	if len(list) > 0 {
		body["attendees"] = list
	}

	created, err := s.insertEvent(ctx, body)
	if err != nil {
		log.Printf("⚠️ Calendar event creation failed: %v", err)
		return MeetEvent{OK: false, MeetURL: fallbackMeetURL(), Error: err.Error()}
	}

	meetURL := ""
	for _, ep := range created.ConferenceData.EntryPoints {
		if ep.EntryPointType == "video" {
			meetURL = ep.URI
			break
		}
	}
	// Some tenants only expose the link as hangoutLink.
	if meetURL == "" {
		meetURL = created.HangoutLink
	}
	calendarID := created.Organizer.Email
	if calendarID == "" {
		calendarID = s.calendarID
	}

	return MeetEvent{
		OK:         true,
		MeetURL:    meetURL,
		EventID:    created.ID,
		CalendarID: calendarID,
	}
}

type calendarEvent struct {
	ID             string `json:"id"`
	HangoutLink    string `json:"hangoutLink"`
	ConferenceData struct {
		EntryPoints []struct {
			EntryPointType string `json:"entryPointType"`
			URI            string `json:"uri"`
		} `json:"entryPoints"`
	} `json:"conferenceData"`
	Organizer struct {
		Email string `json:"email"`
	} `json:"organizer"`
}

func (s *MeetService) insertEvent(ctx context.Context, body map[string]any) (*calendarEvent, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events?conferenceDataVersion=1",
		googleCalendarBase, url.PathEscape(s.calendarID))
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("calendar API returned %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}

	var created calendarEvent
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("failed to decode calendar response: %w", err)
	}
	return &created, nil
}

// accessToken exchanges a signed service-account assertion for an OAuth
// access token, caching it until shortly before expiry.
func (s *MeetService) accessToken(ctx context.Context) (string, error) {
	if cached, found := s.tokens.Get(accessTokenCacheKey); found {
		return cached.(string), nil
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   s.saEmail,
		"scope": googleCalendarScope,
		"aud":   googleTokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	if s.impersonate != "" {
		claims["sub"] = s.impersonate
	}

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, "POST", googleTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access token")
	}

	ttl := time.Duration(tok.ExpiresIn)*time.Second - time.Minute
	if ttl < time.Minute {
		ttl = time.Minute
	}
	s.tokens.Set(accessTokenCacheKey, tok.AccessToken, ttl)
	return tok.AccessToken, nil
}

// fallbackMeetURL builds a stable-looking placeholder link so downstream
// blocks have something to send when the Calendar API is unavailable.
func fallbackMeetURL() string {
	a := strings.ReplaceAll(uuid.New().String(), "-", "")
	b := strings.ReplaceAll(uuid.New().String(), "-", "")
	c := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("https://meet.google.com/%s-%s-%s", a[:3], b[4:7], c[8:12])
}

// safeEmail applies extremely light validation: an "@" plus a dot in the
// domain part. Returns "" for anything else.
func safeEmail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	at := strings.LastIndex(s, "@")
	if at < 0 || !strings.Contains(s[at+1:], ".") {
		return ""
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
