package jobs

import (
	"context"
	"log"
	"time"

	"neuro/internal/services"
)

// AccountPruneJob clears expired and revoked refresh tokens out of the
// accounts database.
type AccountPruneJob struct {
	accounts *services.AccountService
	interval time.Duration
	lastRun  time.Time
}

// NewAccountPruneJob creates the token prune sweep.
func NewAccountPruneJob(accounts *services.AccountService, interval time.Duration) *AccountPruneJob {
	return &AccountPruneJob{accounts: accounts, interval: interval}
}

// Run deletes dead refresh token rows.
func (j *AccountPruneJob) Run(ctx context.Context) error {
	j.lastRun = time.Now()

	if j.accounts == nil {
		log.Println("⚠️ [ACCOUNT-PRUNE] Skipped: accounts database not available")
		return nil
	}

	pruned, err := j.accounts.PruneRefreshTokens()
	if err != nil {
		log.Printf("❌ [ACCOUNT-PRUNE] Prune failed: %v", err)
		return err
	}
	if pruned > 0 {
		log.Printf("🧹 [ACCOUNT-PRUNE] Removed %d dead refresh token(s)", pruned)
	}
	return nil
}

// GetNextRunTime runs shortly after startup, then on the interval.
func (j *AccountPruneJob) GetNextRunTime() time.Time {
	if j.lastRun.IsZero() {
		return time.Now().Add(2 * time.Minute)
	}
	return j.lastRun.Add(j.interval)
}
