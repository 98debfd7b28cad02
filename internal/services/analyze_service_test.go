package services

import "testing"

func TestAnalyzeIntentPhrases(t *testing.T) {
	svc := NewAnalyzeService()

	tests := []struct {
		name      string
		text      string
		sentiment string
		intent    string
	}{
		{"empty", "", "neutral", "unknown"},
		{"whitespace only", "   \n\t ", "neutral", "unknown"},
		{"plain yes", "Yes, let's talk", "positive", "yes"},
		{"keen", "I'm keen to hear more", "positive", "yes"},
		{"lets do it with apostrophe", "let's do it", "positive", "yes"},
		{"lets do it without apostrophe", "lets do it", "positive", "yes"},
		{"plain no", "No thanks", "negative", "no"},
		{"unsubscribe", "please UNSUBSCRIBE me", "negative", "no"},
		{"not interested beats interested", "I'm not interested", "negative", "no"},
		{"later", "maybe later this month", "neutral", "later"},
		{"busy beats sounds good", "busy right now but sounds good", "neutral", "later"},
		{"remind", "can you remind me next quarter", "neutral", "later"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.Analyze(tt.text)
			if got.Sentiment != tt.sentiment || got.Intent != tt.intent {
				t.Errorf("Analyze(%q) = %s/%s, want %s/%s",
					tt.text, got.Sentiment, got.Intent, tt.sentiment, tt.intent)
			}
		})
	}
}

func TestAnalyzeSentimentFallback(t *testing.T) {
	svc := NewAnalyzeService()

	tests := []struct {
		name      string
		text      string
		sentiment string
	}{
		{"good words win", "thanks, this was really helpful", "positive"},
		{"bad words win", "terrible, feels like spam", "negative"},
		{"tie stays neutral", "good but bad", "neutral"},
		{"no signal", "we moved offices in March", "neutral"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.Analyze(tt.text)
			if got.Sentiment != tt.sentiment {
				t.Errorf("Analyze(%q) sentiment = %s, want %s", tt.text, got.Sentiment, tt.sentiment)
			}
			if got.Intent != "unknown" {
				t.Errorf("Analyze(%q) intent = %s, want unknown", tt.text, got.Intent)
			}
		})
	}
}
