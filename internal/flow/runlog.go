package flow

import (
	"fmt"
	"sync"
	"time"
)

// LogLine is one timestamped entry in a run's log.
type LogLine struct {
	At   time.Time `bson:"at" json:"at"`
	Text string    `bson:"text" json:"text"`
}

// RunLog collects a run's log lines in order. It is safe for concurrent use.
// The optional forward hook sees each line as it lands and is called outside
// the lock, so it may log back without deadlocking.
type RunLog struct {
	mu      sync.Mutex
	lines   []LogLine
	forward func(LogLine)
}

// NewRunLog returns an empty log. forward may be nil.
func NewRunLog(forward func(LogLine)) *RunLog {
	return &RunLog{forward: forward}
}

// Logf appends a formatted line.
func (l *RunLog) Logf(format string, args ...any) {
	line := LogLine{At: time.Now(), Text: fmt.Sprintf(format, args...)}
	l.mu.Lock()
	l.lines = append(l.lines, line)
	forward := l.forward
	l.mu.Unlock()
	if forward != nil {
		forward(line)
	}
}

// Lines returns a copy of everything logged so far.
func (l *RunLog) Lines() []LogLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogLine, len(l.lines))
	copy(out, l.lines)
	return out
}

// Len reports how many lines have been logged.
func (l *RunLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}
