package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"neuro/internal/database"
	"neuro/internal/flow"
	"neuro/internal/models"
)

var (
	ErrRunNotFound   = errors.New("run not found")
	ErrRunNotRunning = errors.New("run is not running")
)

// RunRecord is the run document as stored in MongoDB.
type RunRecord struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty"`
	RunID        string               `bson:"runId"`
	AutomationID string               `bson:"automationId"`
	OwnerUID     string               `bson:"ownerUid"`
	Status       string               `bson:"status"`
	AudienceSize int                  `bson:"audienceSize"`
	Iterations   int                  `bson:"iterations"`
	StartedAt    time.Time            `bson:"startedAt"`
	FinishedAt   *time.Time           `bson:"finishedAt,omitempty"`
	Log          []models.RunLogEntry `bson:"log,omitempty"`
}

// ToModel converts the record to the API model.
func (r *RunRecord) ToModel() *models.Run {
	return &models.Run{
		ID:           r.RunID,
		AutomationID: r.AutomationID,
		OwnerUID:     r.OwnerUID,
		Status:       r.Status,
		AudienceSize: r.AudienceSize,
		Iterations:   r.Iterations,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Log:          r.Log,
	}
}

// localFacade adapts the in-process services to the engine's action gateway.
// Methods never return errors: a failure collapses to the operation's zero
// result, the same contract a remote backend gets.
type localFacade struct {
	ownerUID string
	analyze  *AnalyzeService
	dispatch *DispatchService
	meet     *MeetService
	outreach *OutreachService
	metrics  *Metrics
}

func (f *localFacade) AnalyzeReply(ctx context.Context, text string) flow.AnalyzeResult {
	a := f.analyze.Analyze(text)
	return flow.AnalyzeResult{Sentiment: a.Sentiment, Intent: a.Intent}
}

func (f *localFacade) DispatchAgent(ctx context.Context, agent string, payload map[string]any) flow.DispatchResult {
	task, err := f.dispatch.Dispatch(agent, f.ownerUID, payload)
	if err != nil {
		f.fail("dispatch", err)
		return flow.DispatchResult{}
	}
	raw, err := json.Marshal(task)
	if err != nil {
		f.fail("dispatch", err)
		return flow.DispatchResult{}
	}
	return flow.DispatchResult{Result: raw}
}

func (f *localFacade) ScheduleMeet(ctx context.Context, req flow.MeetRequest) flow.MeetResult {
	ev := f.meet.Schedule(ctx, req.Title, req.StartAtISO, req.DurationMins, req.Attendees)
	if !ev.OK {
		f.fail("meet", errors.New(ev.Error))
	}
	return flow.MeetResult{
		OK:         ev.OK,
		MeetURL:    ev.MeetURL,
		CalendarID: ev.CalendarID,
		EventID:    ev.EventID,
		Note:       ev.Note,
	}
}

func (f *localFacade) SendOutreach(ctx context.Context, req flow.SendRequest) flow.SendResult {
	res, err := f.outreach.Send(ctx, f.ownerUID, models.OutreachSendRequest{
		Channel: req.Channel,
		ToUID:   req.ToUID,
		Subject: req.Subject,
		Body:    req.Body,
	})
	if err != nil {
		f.fail("send", err)
		return flow.SendResult{}
	}
	if res.OK && f.metrics != nil {
		f.metrics.RecordMessageSent()
	}
	return flow.SendResult{OK: res.OK}
}

func (f *localFacade) fail(op string, err error) {
	if f.metrics != nil {
		f.metrics.RecordFacadeFailure(op)
	}
	log.Printf("⚠️ [RUN] Facade %s failed: %v", op, err)
}

// RunService executes automations server-side, records their runs, and
// streams the live log to WebSocket subscribers.
type RunService struct {
	mongoDB     *database.MongoDB
	automations *AutomationService
	network     *NetworkService
	analyze     *AnalyzeService
	dispatch    *DispatchService
	meet        *MeetService
	outreach    *OutreachService
	conns       *ConnectionManager
	pubsub      *PubSubService
	metrics     *Metrics

	mu      sync.Mutex
	active  map[string]*flow.Runner
	stopped map[string]bool
}

// NewRunService creates a new run service. pubsub and metrics may be nil.
func NewRunService(
	mongoDB *database.MongoDB,
	automations *AutomationService,
	network *NetworkService,
	analyze *AnalyzeService,
	dispatch *DispatchService,
	meet *MeetService,
	outreach *OutreachService,
	conns *ConnectionManager,
	pubsub *PubSubService,
	metrics *Metrics,
) *RunService {
	return &RunService{
		mongoDB:     mongoDB,
		automations: automations,
		network:     network,
		analyze:     analyze,
		dispatch:    dispatch,
		meet:        meet,
		outreach:    outreach,
		conns:       conns,
		pubsub:      pubsub,
		metrics:     metrics,
		active:      make(map[string]*flow.Runner),
		stopped:     make(map[string]bool),
	}
}

func (s *RunService) runsCollection() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionRuns)
}

// Start launches one run of the automation over the owner's follower
// audience and returns the created run while it executes in the background.
// trigger names what kicked it off ("api", "schedule").
func (s *RunService) Start(ownerUID, automationID, trigger string) (*models.Run, error) {
	automation, err := s.automations.Get(ownerUID, automationID)
	if err != nil {
		return nil, err
	}

	// A missing audience is not fatal, the run logs its zero selection.
	audience, err := s.network.Audience(ownerUID)
	if err != nil {
		log.Printf("⚠️ [RUN] Audience load failed for %s: %v", ownerUID, err)
		audience = nil
	}

	record := &RunRecord{
		RunID:        uuid.New().String(),
		AutomationID: automation.ID,
		OwnerUID:     ownerUID,
		Status:       models.RunStatusRunning,
		AudienceSize: len(audience),
		StartedAt:    time.Now(),
		Log:          []models.RunLogEntry{},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.runsCollection().InsertOne(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	runner := flow.NewRunner(automation.Graph, &localFacade{
		ownerUID: ownerUID,
		analyze:  s.analyze,
		dispatch: s.dispatch,
		meet:     s.meet,
		outreach: s.outreach,
		metrics:  s.metrics,
	})

	s.mu.Lock()
	s.active[record.RunID] = runner
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordRunStarted(trigger)
	}
	log.Printf("▶️ [RUN] Started %s for automation %s (%d people)", record.RunID, automation.ID, len(audience))

	go s.execute(runner, record.RunID, audience, record.StartedAt)

	return record.ToModel(), nil
}

// execute drives one run to completion in the background.
func (s *RunService) execute(runner *flow.Runner, runID string, audience []models.AudiencePerson, startedAt time.Time) {
	runLog := flow.NewRunLog(func(line flow.LogLine) {
		s.appendLogLine(runID, line)
		s.publish(models.RunEvent{Type: models.RunEventLog, RunID: runID, At: line.At, Text: line.Text})
	})

	// Wait blocks can stretch a run over days, the cancel token is the only
	// way out.
	passes := runner.Run(context.Background(), audience, runLog)

	s.mu.Lock()
	status := models.RunStatusFinished
	if s.stopped[runID] {
		status = models.RunStatusCancelled
	}
	delete(s.active, runID)
	delete(s.stopped, runID)
	s.mu.Unlock()

	s.finish(runID, status, passes, startedAt)
}

// finish stamps the run's terminal state and tells everyone watching.
func (s *RunService) finish(runID, status string, passes int, startedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now()
	_, err := s.runsCollection().UpdateOne(ctx,
		bson.M{"runId": runID},
		bson.M{"$set": bson.M{
			"status":     status,
			"iterations": passes,
			"finishedAt": now,
		}},
	)
	if err != nil {
		log.Printf("⚠️ [RUN] Failed to finalize run %s: %v", runID, err)
	}

	s.publish(models.RunEvent{Type: models.RunEventStatus, RunID: runID, At: now, Status: status})
	if s.metrics != nil {
		s.metrics.RecordRunFinished(status, now.Sub(startedAt).Seconds())
	}
	log.Printf("✅ [RUN] Run %s %s after %d pass(es)", runID, status, passes)
}

// appendLogLine persists one log line onto the run document.
func (s *RunService) appendLogLine(runID string, line flow.LogLine) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.runsCollection().UpdateOne(ctx,
		bson.M{"runId": runID},
		bson.M{"$push": bson.M{"log": models.RunLogEntry{At: line.At, Text: line.Text}}},
	)
	if err != nil {
		log.Printf("⚠️ [RUN] Failed to append log line to %s: %v", runID, err)
	}
}

// publish fans an event out to local subscribers and to other instances.
func (s *RunService) publish(evt models.RunEvent) {
	if s.conns != nil {
		s.conns.Broadcast(evt)
	}
	if s.pubsub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.pubsub.PublishRunEvent(ctx, evt); err != nil {
			log.Printf("⚠️ [RUN] Failed to publish run event: %v", err)
		}
	}
}

// Stop cancels a running run the caller owns. Runs marked running with no
// live runner here (another instance, or a restart) are finalized directly.
func (s *RunService) Stop(ownerUID, runID string) error {
	record, err := s.getRecord(ownerUID, runID, true)
	if err != nil {
		return err
	}
	if record.Status != models.RunStatusRunning {
		return ErrRunNotRunning
	}

	s.mu.Lock()
	runner := s.active[runID]
	if runner != nil {
		s.stopped[runID] = true
	}
	s.mu.Unlock()

	if runner == nil {
		s.finish(runID, models.RunStatusCancelled, record.Iterations, record.StartedAt)
		return nil
	}

	runner.Stop()
	log.Printf("🛑 [RUN] Stop requested for %s", runID)
	return nil
}

// StopByAutomation cancels every running run of one automation. Returns the
// number of runs a stop was issued for.
func (s *RunService) StopByAutomation(ownerUID, automationID string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Find().SetProjection(bson.M{"log": 0})
	cursor, err := s.runsCollection().Find(ctx, bson.M{
		"automationId": automationID,
		"ownerUid":     ownerUID,
		"status":       models.RunStatusRunning,
	}, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to list running runs: %w", err)
	}
	defer cursor.Close(ctx)

	var records []RunRecord
	if err := cursor.All(ctx, &records); err != nil {
		return 0, fmt.Errorf("failed to decode runs: %w", err)
	}

	stopped := 0
	for i := range records {
		if err := s.Stop(ownerUID, records[i].RunID); err == nil {
			stopped++
		}
	}
	return stopped, nil
}

// Get returns one run with its full log.
func (s *RunService) Get(ownerUID, runID string) (*models.Run, error) {
	record, err := s.getRecord(ownerUID, runID, false)
	if err != nil {
		return nil, err
	}
	return record.ToModel(), nil
}

// Meta returns one run without its log. Subscribers use it to verify
// ownership before attaching to the live stream.
func (s *RunService) Meta(ownerUID, runID string) (*models.Run, error) {
	record, err := s.getRecord(ownerUID, runID, true)
	if err != nil {
		return nil, err
	}
	return record.ToModel(), nil
}

func (s *RunService) getRecord(ownerUID, runID string, skipLog bool) (*RunRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.FindOne()
	if skipLog {
		opts.SetProjection(bson.M{"log": 0})
	}

	var record RunRecord
	err := s.runsCollection().FindOne(ctx,
		bson.M{"runId": runID, "ownerUid": ownerUID},
		opts,
	).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &record, nil
}

// List returns the owner's runs, newest first, without their logs.
// automationID narrows to one automation when non-empty.
func (s *RunService) List(ownerUID, automationID string, limit int) ([]*models.Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	filter := bson.M{"ownerUid": ownerUID}
	if automationID != "" {
		filter["automationId"] = automationID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "startedAt", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"log": 0})
	cursor, err := s.runsCollection().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer cursor.Close(ctx)

	var records []RunRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode runs: %w", err)
	}

	runs := make([]*models.Run, len(records))
	for i := range records {
		runs[i] = records[i].ToModel()
	}
	return runs, nil
}

// ActiveCount reports how many runs this instance is executing right now.
func (s *RunService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
