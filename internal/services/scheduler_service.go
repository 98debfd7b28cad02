package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"neuro/internal/database"
	"neuro/internal/models"
)

var (
	ErrScheduleNotFound = errors.New("schedule not found")

	// maxEnabledSchedules caps enabled schedules per owner.
	maxEnabledSchedules int64 = 20
)

// cronParser accepts standard five-field expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ScheduleRecord is the schedule document as stored in MongoDB.
type ScheduleRecord struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	ScheduleID   string             `bson:"scheduleId"`
	AutomationID string             `bson:"automationId"`
	OwnerUID     string             `bson:"ownerUid"`
	CronExpr     string             `bson:"cronExpr"`
	Timezone     string             `bson:"timezone"`
	Enabled      bool               `bson:"enabled"`
	LastRunAt    *time.Time         `bson:"lastRunAt,omitempty"`
	NextRunAt    *time.Time         `bson:"nextRunAt,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

// ToModel converts the record to the API model.
func (r *ScheduleRecord) ToModel() *models.Schedule {
	return &models.Schedule{
		ID:           r.ScheduleID,
		AutomationID: r.AutomationID,
		OwnerUID:     r.OwnerUID,
		CronExpr:     r.CronExpr,
		Timezone:     r.Timezone,
		Enabled:      r.Enabled,
		LastRunAt:    r.LastRunAt,
		NextRunAt:    r.NextRunAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// SchedulerService triggers automation runs on cron cadences. A Redis lock
// keyed to the execution minute keeps multi-instance deployments from
// double-running the same schedule. redis may be nil; single-instance
// deployments then run without the lock.
type SchedulerService struct {
	scheduler  gocron.Scheduler
	mongoDB    *database.MongoDB
	redis      *RedisService
	runs       *RunService
	instanceID string
	mu         sync.RWMutex
	jobs       map[string]gocron.Job // scheduleID -> job
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(mongoDB *database.MongoDB, redis *RedisService, runs *RunService) (*SchedulerService, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &SchedulerService{
		scheduler:  scheduler,
		mongoDB:    mongoDB,
		redis:      redis,
		runs:       runs,
		instanceID: uuid.New().String(),
		jobs:       make(map[string]gocron.Job),
	}, nil
}

func (s *SchedulerService) schedules() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionSchedules)
}

// Start loads every enabled schedule and starts ticking.
func (s *SchedulerService) Start(ctx context.Context) error {
	log.Println("⏰ Starting scheduler service...")

	if err := s.loadSchedules(ctx); err != nil {
		log.Printf("⚠️ Failed to load schedules: %v", err)
	}

	s.scheduler.Start()
	log.Println("✅ Scheduler service started")
	return nil
}

// Stop stops the scheduler
func (s *SchedulerService) Stop() error {
	log.Println("⏹️ Stopping scheduler service...")
	return s.scheduler.Shutdown()
}

// loadSchedules registers all enabled schedules from MongoDB.
func (s *SchedulerService) loadSchedules(ctx context.Context) error {
	cursor, err := s.schedules().Find(ctx, bson.M{"enabled": true})
	if err != nil {
		return fmt.Errorf("failed to query schedules: %w", err)
	}
	defer cursor.Close(ctx)

	var count int
	for cursor.Next(ctx) {
		var record ScheduleRecord
		if err := cursor.Decode(&record); err != nil {
			log.Printf("⚠️ Failed to decode schedule: %v", err)
			continue
		}
		if err := s.registerJob(&record); err != nil {
			log.Printf("⚠️ Failed to register schedule %s: %v", record.ScheduleID, err)
			continue
		}
		count++
	}

	log.Printf("✅ Loaded %d schedules", count)
	return nil
}

// registerJob registers a schedule with gocron.
func (s *SchedulerService) registerJob(record *ScheduleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := time.LoadLocation(record.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %s: %w", record.Timezone, err)
	}

	// Cron expression with timezone prefix (CRON_TZ=America/New_York 0 9 * * *)
	cronWithTZ := fmt.Sprintf("CRON_TZ=%s %s", record.Timezone, record.CronExpr)

	scheduleID := record.ScheduleID
	job, err := s.scheduler.NewJob(
		gocron.CronJob(cronWithTZ, false),
		gocron.NewTask(func() {
			s.executeScheduledJob(scheduleID)
		}),
		gocron.WithName(scheduleID),
		gocron.WithTags(record.AutomationID, record.OwnerUID),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.jobs[scheduleID] = job
	log.Printf("📅 Registered schedule %s for automation %s (cron: %s, tz: %s)",
		scheduleID, record.AutomationID, record.CronExpr, record.Timezone)
	return nil
}

// unregisterJob removes a job from the scheduler.
func (s *SchedulerService) unregisterJob(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[scheduleID]
	if !exists {
		return
	}
	if err := s.scheduler.RemoveJob(job.ID()); err != nil {
		log.Printf("⚠️ Failed to remove job %s: %v", scheduleID, err)
	}
	delete(s.jobs, scheduleID)
	log.Printf("🗑️ Unregistered schedule %s", scheduleID)
}

// executeScheduledJob starts the schedule's automation run. The schedule is
// re-read so a just-disabled or just-edited schedule fires with fresh state.
func (s *SchedulerService) executeScheduledJob(scheduleID string) {
	ctx := context.Background()

	if s.redis != nil {
		// Minute-level lock window keeps other instances from double-running.
		lockKey := fmt.Sprintf("schedule-lock:%s:%d", scheduleID, time.Now().Unix()/60)

		acquired, err := s.redis.AcquireLock(ctx, lockKey, s.instanceID, 5*time.Minute)
		if err != nil {
			log.Printf("❌ Failed to acquire lock for schedule %s: %v", scheduleID, err)
			return
		}
		if !acquired {
			log.Printf("⏭️ Schedule %s already being executed by another instance", scheduleID)
			return
		}
		defer func() {
			if _, err := s.redis.ReleaseLock(ctx, lockKey, s.instanceID); err != nil {
				log.Printf("⚠️ Failed to release lock for schedule %s: %v", scheduleID, err)
			}
		}()
	}

	record, err := s.getRecord(scheduleID)
	if err != nil {
		log.Printf("❌ Schedule %s vanished before execution: %v", scheduleID, err)
		return
	}
	if !record.Enabled {
		log.Printf("⏭️ Schedule %s is disabled, skipping", scheduleID)
		return
	}

	log.Printf("▶️ Executing schedule %s (automation %s)", scheduleID, record.AutomationID)

	run, err := s.runs.Start(record.OwnerUID, record.AutomationID, "schedule")
	if err != nil {
		log.Printf("❌ Scheduled run failed to start for automation %s: %v", record.AutomationID, err)
	} else {
		log.Printf("✅ Schedule %s started run %s", scheduleID, run.ID)
	}

	s.updateRunTimes(ctx, record)
}

// updateRunTimes stamps lastRunAt and the freshly computed nextRunAt.
func (s *SchedulerService) updateRunTimes(ctx context.Context, record *ScheduleRecord) {
	now := time.Now()
	update := bson.M{"lastRunAt": now, "updatedAt": now}
	if next, ok := nextRunTime(record.CronExpr, record.Timezone, now); ok {
		update["nextRunAt"] = next
	}

	if _, err := s.schedules().UpdateOne(ctx,
		bson.M{"scheduleId": record.ScheduleID},
		bson.M{"$set": update},
	); err != nil {
		log.Printf("⚠️ Failed to update schedule run times: %v", err)
	}
}

// nextRunTime computes the next firing after now, in the schedule's timezone.
func nextRunTime(expr, timezone string, now time.Time) (time.Time, bool) {
	cronSchedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, false
	}
	if loc, err := time.LoadLocation(timezone); err == nil {
		now = now.In(loc)
	}
	return cronSchedule.Next(now), true
}

// Create validates and stores a new schedule, registering it when enabled.
func (s *SchedulerService) Create(ownerUID string, req models.CreateScheduleRequest) (*models.Schedule, error) {
	if strings.TrimSpace(ownerUID) == "" {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(req.AutomationID) == "" {
		return nil, ErrAutomationNotFound
	}
	if _, err := cronParser.Parse(req.CronExpr); err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if enabled {
		count, err := s.schedules().CountDocuments(ctx, bson.M{"ownerUid": ownerUID, "enabled": true})
		if err != nil {
			return nil, fmt.Errorf("failed to check schedule limit: %w", err)
		}
		if count >= maxEnabledSchedules {
			return nil, fmt.Errorf("enabled schedule limit reached (%d). Pause one to create another", maxEnabledSchedules)
		}
	}

	now := time.Now()
	record := &ScheduleRecord{
		ScheduleID:   uuid.New().String(),
		AutomationID: req.AutomationID,
		OwnerUID:     ownerUID,
		CronExpr:     req.CronExpr,
		Timezone:     timezone,
		Enabled:      enabled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if next, ok := nextRunTime(record.CronExpr, record.Timezone, now); ok {
		record.NextRunAt = &next
	}

	if _, err := s.schedules().InsertOne(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	if enabled {
		if err := s.registerJob(record); err != nil {
			log.Printf("⚠️ Failed to register new schedule: %v", err)
		}
	}

	log.Printf("✅ Created schedule %s for automation %s", record.ScheduleID, record.AutomationID)
	return record.ToModel(), nil
}

func (s *SchedulerService) getRecord(scheduleID string) (*ScheduleRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var record ScheduleRecord
	err := s.schedules().FindOne(ctx, bson.M{"scheduleId": scheduleID}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &record, nil
}

// Get returns one schedule the caller owns.
func (s *SchedulerService) Get(ownerUID, scheduleID string) (*models.Schedule, error) {
	record, err := s.getRecord(scheduleID)
	if err != nil {
		return nil, err
	}
	if record.OwnerUID != ownerUID {
		return nil, ErrScheduleNotFound
	}
	return record.ToModel(), nil
}

// List returns the owner's schedules. automationID narrows when non-empty.
func (s *SchedulerService) List(ownerUID, automationID string) ([]*models.Schedule, error) {
	filter := bson.M{"ownerUid": ownerUID}
	if automationID != "" {
		filter["automationId"] = automationID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.schedules().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer cursor.Close(ctx)

	var records []ScheduleRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode schedules: %w", err)
	}

	result := make([]*models.Schedule, len(records))
	for i := range records {
		result[i] = records[i].ToModel()
	}
	return result, nil
}

// Update applies partial edits and re-registers the job to match.
func (s *SchedulerService) Update(ownerUID, scheduleID string, req models.UpdateScheduleRequest) (*models.Schedule, error) {
	record, err := s.getRecord(scheduleID)
	if err != nil {
		return nil, err
	}
	if record.OwnerUID != ownerUID {
		return nil, ErrScheduleNotFound
	}

	now := time.Now()
	update := bson.M{"updatedAt": now}

	if req.CronExpr != nil {
		if _, err := cronParser.Parse(*req.CronExpr); err != nil {
			return nil, fmt.Errorf("invalid cron expression: %w", err)
		}
		update["cronExpr"] = *req.CronExpr
		record.CronExpr = *req.CronExpr
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone: %w", err)
		}
		update["timezone"] = *req.Timezone
		record.Timezone = *req.Timezone
	}
	if req.Enabled != nil {
		update["enabled"] = *req.Enabled
		record.Enabled = *req.Enabled
	}
	if next, ok := nextRunTime(record.CronExpr, record.Timezone, now); ok {
		update["nextRunAt"] = next
		record.NextRunAt = &next
	}
	record.UpdatedAt = now

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.schedules().UpdateOne(ctx,
		bson.M{"scheduleId": scheduleID},
		bson.M{"$set": update},
	); err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}

	// Re-register so cron, timezone, and enabled edits take effect.
	s.unregisterJob(scheduleID)
	if record.Enabled {
		if err := s.registerJob(record); err != nil {
			log.Printf("⚠️ Failed to re-register schedule: %v", err)
		}
	}

	return record.ToModel(), nil
}

// Delete removes a schedule and its registered job.
func (s *SchedulerService) Delete(ownerUID, scheduleID string) error {
	s.unregisterJob(scheduleID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := s.schedules().DeleteOne(ctx, bson.M{
		"scheduleId": scheduleID,
		"ownerUid":   ownerUID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrScheduleNotFound
	}
	log.Printf("🗑️ Deleted schedule %s", scheduleID)
	return nil
}

// TriggerNow fires a schedule immediately, outside its cadence.
func (s *SchedulerService) TriggerNow(ownerUID, scheduleID string) error {
	record, err := s.getRecord(scheduleID)
	if err != nil {
		return err
	}
	if record.OwnerUID != ownerUID {
		return ErrScheduleNotFound
	}

	go s.executeScheduledJob(scheduleID)
	return nil
}
