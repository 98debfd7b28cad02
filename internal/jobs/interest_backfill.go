package jobs

import (
	"context"
	"log"
	"time"

	"neuro/internal/services"
)

// InterestBackfillJob walks profiles that list a website but no interests
// and lets the enrich pipeline mine keywords from the site. Budgeted per
// sweep so one pass never hammers members' hosts.
type InterestBackfillJob struct {
	network *services.NetworkService
	budget  int
	lastRun time.Time
}

// NewInterestBackfillJob creates the backfill sweep. budget <= 0 selects
// the 20-profile default.
func NewInterestBackfillJob(network *services.NetworkService, budget int) *InterestBackfillJob {
	if budget <= 0 {
		budget = 20
	}
	return &InterestBackfillJob{network: network, budget: budget}
}

// Run backfills up to budget profiles. The network service is a no-op
// when no enricher is wired, so this is safe to register unconditionally.
func (j *InterestBackfillJob) Run(ctx context.Context) error {
	j.lastRun = time.Now()

	if j.network == nil {
		log.Println("⚠️ [INTEREST-BACKFILL] Skipped: network service not available")
		return nil
	}

	updated := j.network.BackfillInterests(ctx, j.budget)
	if updated > 0 {
		log.Printf("✅ [INTEREST-BACKFILL] Enriched %d profile(s)", updated)
	}
	return nil
}

// GetNextRunTime schedules the sweep daily at 4 AM UTC, off-peak for the
// sites being fetched.
func (j *InterestBackfillJob) GetNextRunTime() time.Time {
	now := time.Now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), 4, 0, 0, 0, time.UTC)
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
