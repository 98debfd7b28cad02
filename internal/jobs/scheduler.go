package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// Job is one recurring maintenance task.
type Job interface {
	Run(ctx context.Context) error
	GetNextRunTime() time.Time
}

// JobScheduler runs registered jobs on their own timers. It is separate
// from the user-facing schedule service: these are internal sweeps, not
// user automations.
type JobScheduler struct {
	jobs    map[string]Job
	timers  map[string]*time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewJobScheduler creates an empty scheduler.
func NewJobScheduler() *JobScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		jobs:   make(map[string]Job),
		timers: make(map[string]*time.Timer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a job under a stable name.
func (s *JobScheduler) Register(name string, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[name] = job
	log.Printf("✅ [JOBS] Registered job: %s", name)
}

// Start arms a timer for every registered job.
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	log.Printf("🚀 [JOBS] Starting job scheduler with %d job(s)", len(s.jobs))

	for name, job := range s.jobs {
		s.scheduleJob(name, job)
	}
}

// scheduleJob arms the timer for one job. Caller holds the lock.
func (s *JobScheduler) scheduleJob(name string, job Job) {
	nextRun := job.GetNextRunTime()
	wait := time.Until(nextRun)

	log.Printf("⏰ [JOBS] Job '%s' next run at %s (in %v)",
		name, nextRun.Format(time.RFC3339), wait.Round(time.Second))

	s.timers[name] = time.AfterFunc(wait, func() {
		s.runJob(name, job)
	})
}

// runJob executes one job and re-arms its timer.
func (s *JobScheduler) runJob(name string, job Job) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	start := time.Now()
	if err := job.Run(s.ctx); err != nil {
		log.Printf("❌ [JOBS] Job '%s' failed: %v", name, err)
	} else {
		log.Printf("✅ [JOBS] Job '%s' completed in %v", name, time.Since(start).Round(time.Millisecond))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.scheduleJob(name, job)
	}
}

// RunNow executes a job immediately, outside its timer.
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()

	if !ok {
		log.Printf("⚠️ [JOBS] Job '%s' not found", name)
		return nil
	}
	return job.Run(s.ctx)
}

// Stop cancels all timers and waits for in-flight jobs.
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for _, timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[string]*time.Timer)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Println("🛑 [JOBS] Job scheduler stopped")
}
