package services

import (
	"regexp"
	"strings"
)

// Rule tables for reply classification. Negative phrases are checked first
// so "not interested" lands on no rather than matching "interested".
var (
	negWords   = regexp.MustCompile(`(?i)\b(no|not interested|stop|unsubscribe|never|remove me|pass)\b`)
	laterWords = regexp.MustCompile(`(?i)\b(later|busy|another time|next week|follow up|remind)\b`)
	posWords   = regexp.MustCompile(`(?i)\b(yes|interested|sounds good|great|awesome|sure|let'?s do it|keen)\b`)

	goodWords = regexp.MustCompile(`(?i)\b(good|great|thanks|thank you|helpful|love)\b`)
	badWords  = regexp.MustCompile(`(?i)\b(bad|hate|terrible|annoyed|spam)\b`)
)

// Analysis is the classification of one reply.
type Analysis struct {
	Sentiment string `json:"sentiment"`
	Intent    string `json:"intent"`
}

// AnalyzeService classifies free-text replies into sentiment and intent.
type AnalyzeService struct{}

// NewAnalyzeService creates a new analyze service.
func NewAnalyzeService() *AnalyzeService {
	return &AnalyzeService{}
}

// Analyze classifies a reply. Intent is one of yes, no, later, unknown.
// Sentiment is one of positive, negative, neutral.
func (s *AnalyzeService) Analyze(text string) Analysis {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return Analysis{Sentiment: "neutral", Intent: "unknown"}
	}

	if negWords.MatchString(t) {
		return Analysis{Sentiment: "negative", Intent: "no"}
	}
	if laterWords.MatchString(t) {
		return Analysis{Sentiment: "neutral", Intent: "later"}
	}
	if posWords.MatchString(t) {
		return Analysis{Sentiment: "positive", Intent: "yes"}
	}

	// No intent phrase hit. Fall back to counting sentiment words.
	good := len(goodWords.FindAllString(t, -1))
	bad := len(badWords.FindAllString(t, -1))
	sentiment := "neutral"
	if good > bad {
		sentiment = "positive"
	} else if bad > good {
		sentiment = "negative"
	}
	return Analysis{Sentiment: sentiment, Intent: "unknown"}
}
