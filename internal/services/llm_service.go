package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"neuro/internal/config"
)

// ErrLLMNotConfigured is returned when no provider is set up and a caller
// insists on a completion instead of using its local fallback.
var ErrLLMNotConfigured = errors.New("LLM provider not configured")

// LLMService talks to an OpenAI-compatible chat completions endpoint.
type LLMService struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewLLMService creates a new LLM service from cfg.
func NewLLMService(cfg *config.Config) *LLMService {
	s := &LLMService{
		baseURL: strings.TrimRight(cfg.LLMBaseURL, "/"),
		apiKey:  cfg.LLMAPIKey,
		model:   cfg.LLMModel,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	if s.Configured() {
		log.Printf("✅ LLM provider configured (model: %s)", s.model)
	} else {
		log.Println("⚠️ No LLM provider configured, AI features fall back to local rules")
	}
	return s
}

// Configured reports whether completions can be requested.
func (s *LLMService) Configured() bool {
	return s.baseURL != "" && s.apiKey != ""
}

// Complete sends a single-turn prompt and returns the model's reply text.
func (s *LLMService) Complete(ctx context.Context, prompt string) (string, error) {
	if !s.Configured() {
		return "", ErrLLMNotConfigured
	}

	requestBody := map[string]interface{}{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"stream":      false,
		"temperature": 0.4,
	}
	reqBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(body), 256))
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", fmt.Errorf("failed to parse API response: %w", err)
	}
	if len(apiResponse.Choices) == 0 {
		return "", fmt.Errorf("no choices in model response")
	}

	text := strings.TrimSpace(apiResponse.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSONObject pulls the first JSON object out of free-form model
// output. Returns false when nothing parseable is found.
func ExtractJSONObject(s string) (map[string]any, bool) {
	m := jsonObjectPattern.FindString(s)
	if m == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(m), &obj); err != nil {
		return nil, false
	}
	return obj, true
}
