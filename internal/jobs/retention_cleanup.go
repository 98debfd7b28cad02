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

// RetentionCleanupJob deletes finished runs and accepted agent tasks past
// their retention window. Running runs are never touched here; the orphan
// job owns those.
type RetentionCleanupJob struct {
	runs          *mongo.Collection
	tasks         *mongo.Collection
	retentionDays int
}

// NewRetentionCleanupJob creates the retention sweep. retentionDays <= 0
// selects the 30-day default.
func NewRetentionCleanupJob(mongoDB *database.MongoDB, retentionDays int) *RetentionCleanupJob {
	if retentionDays <= 0 {
		retentionDays = 30
	}

	j := &RetentionCleanupJob{retentionDays: retentionDays}
	if mongoDB != nil {
		j.runs = mongoDB.Collection(database.CollectionRuns)
		j.tasks = mongoDB.Collection(database.CollectionAgentTasks)
	}
	return j
}

// Run deletes run documents whose finishedAt and task documents whose
// createdAt fall before the cutoff.
func (j *RetentionCleanupJob) Run(ctx context.Context) error {
	if j.runs == nil {
		log.Println("⚠️ [RETENTION] Skipped: MongoDB not available")
		return nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -j.retentionDays)

	runsRes, err := j.runs.DeleteMany(ctx, bson.M{
		"status":     bson.M{"$ne": models.RunStatusRunning},
		"finishedAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		log.Printf("❌ [RETENTION] Run sweep failed: %v", err)
		return err
	}

	tasksRes, err := j.tasks.DeleteMany(ctx, bson.M{
		"createdAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		log.Printf("❌ [RETENTION] Task sweep failed: %v", err)
		return err
	}

	if runsRes.DeletedCount > 0 || tasksRes.DeletedCount > 0 {
		log.Printf("🧹 [RETENTION] Deleted %d run(s) and %d task(s) older than %s",
			runsRes.DeletedCount, tasksRes.DeletedCount, cutoff.Format(time.RFC3339))
	}
	return nil
}

// GetNextRunTime schedules the sweep daily at 2 AM UTC.
func (j *RetentionCleanupJob) GetNextRunTime() time.Time {
	now := time.Now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), 2, 0, 0, 0, time.UTC)
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
