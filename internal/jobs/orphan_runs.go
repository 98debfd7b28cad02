package jobs

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"neuro/internal/database"
	"neuro/internal/models"
)

// OrphanRunCleanupJob fails runs left in "running" state by a crash or
// restart. A live run keeps its runner in process memory; a document
// stuck running past maxAge with no process behind it is an orphan.
type OrphanRunCleanupJob struct {
	runs     *mongo.Collection
	interval time.Duration
	maxAge   time.Duration
	lastRun  time.Time
}

// NewOrphanRunCleanupJob creates the orphan sweep. interval is how often
// it runs; runs older than maxAge and still "running" get failed.
func NewOrphanRunCleanupJob(mongoDB *database.MongoDB, interval, maxAge time.Duration) *OrphanRunCleanupJob {
	j := &OrphanRunCleanupJob{interval: interval, maxAge: maxAge}
	if mongoDB != nil {
		j.runs = mongoDB.Collection(database.CollectionRuns)
	}
	return j
}

// Run marks orphaned runs failed and stamps a final log line.
func (j *OrphanRunCleanupJob) Run(ctx context.Context) error {
	j.lastRun = time.Now()

	if j.runs == nil {
		log.Println("⚠️ [ORPHAN-RUNS] Skipped: MongoDB not available")
		return nil
	}

	now := time.Now()
	cutoff := now.Add(-j.maxAge)

	result, err := j.runs.UpdateMany(ctx,
		bson.M{
			"status":    models.RunStatusRunning,
			"startedAt": bson.M{"$lt": cutoff},
		},
		bson.M{
			"$set": bson.M{
				"status":     models.RunStatusFailed,
				"finishedAt": now,
			},
			"$push": bson.M{
				"log": models.RunLogEntry{At: now, Text: "run interrupted: server restart"},
			},
		},
	)
	if err != nil {
		log.Printf("❌ [ORPHAN-RUNS] Sweep failed: %v", err)
		return err
	}

	if result.ModifiedCount > 0 {
		log.Printf("🧹 [ORPHAN-RUNS] Failed %d orphaned run(s) started before %s",
			result.ModifiedCount, cutoff.Format(time.RFC3339))
	}
	return nil
}

// GetNextRunTime runs shortly after startup, then on the interval.
func (j *OrphanRunCleanupJob) GetNextRunTime() time.Time {
	if j.lastRun.IsZero() {
		return time.Now().Add(1 * time.Minute)
	}
	return j.lastRun.Add(j.interval)
}
