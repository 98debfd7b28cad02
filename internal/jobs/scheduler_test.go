package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeJob struct {
	calls atomic.Int32
	next  time.Time
	err   error
}

func (f *fakeJob) Run(ctx context.Context) error {
	f.calls.Add(1)
	return f.err
}

func (f *fakeJob) GetNextRunTime() time.Time { return f.next }

func TestRunNowExecutesRegisteredJob(t *testing.T) {
	s := NewJobScheduler()
	j := &fakeJob{next: time.Now().Add(time.Hour)}
	s.Register("sweep", j)

	if err := s.RunNow("sweep"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if got := j.calls.Load(); got != 1 {
		t.Errorf("job ran %d times, want 1", got)
	}

	if err := s.RunNow("missing"); err != nil {
		t.Errorf("unknown job should be a logged no-op, got %v", err)
	}
}

func TestRunNowPropagatesJobError(t *testing.T) {
	s := NewJobScheduler()
	boom := errors.New("boom")
	s.Register("sweep", &fakeJob{next: time.Now().Add(time.Hour), err: boom})

	if err := s.RunNow("sweep"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	s := NewJobScheduler()
	j := &fakeJob{next: time.Now().Add(time.Hour)}
	s.Register("sweep", j)

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()

	// The timer was armed an hour out and then stopped; the job must not
	// have fired.
	if got := j.calls.Load(); got != 0 {
		t.Errorf("job ran %d times before its timer", got)
	}
}
