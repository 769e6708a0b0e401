// Package gormdb implements the storage.Backend interface using GORM
// with internal write queues and a background DB writer goroutine.
package gormdb

import (
	"fmt"
	"sync"
	"time"

	"github.com/repcoach/engine/internal/cache"
	"github.com/repcoach/engine/internal/logging"
	"github.com/repcoach/engine/internal/model"
	"github.com/repcoach/engine/internal/model/convert"
	"github.com/repcoach/engine/internal/pose"
	"github.com/repcoach/engine/internal/queue"
	"github.com/repcoach/engine/pkg/core"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/gorm"
)

// maxTrailFrames caps the per-session frame buffer used for trajectory
// building. Two minutes at 30 fps.
const maxTrailFrames = 3600

// Dependencies holds all dependencies for the GORM storage backend.
// DB and the validity callbacks come from the database manager owned by
// the caller; a nil DB runs the backend in queue-only mode.
type Dependencies struct {
	DB            *gorm.DB
	Sessions      *cache.IDCache
	LogManager    *logging.SlogManager
	DatabaseReady func() bool
	LocalOnly     func() bool
	InsertsPaused func() bool
}

// queues holds all the write buffers for batch DB insertion.
type queues struct {
	FrameSamples   *queue.Buffer[model.FrameSample]
	Reps           *queue.Buffer[model.Rep]
	FeedbackEvents *queue.Buffer[model.FeedbackEvent]
	Performances   *queue.Buffer[model.EnginePerformance]
}

func newQueues() *queues {
	return &queues{
		FrameSamples:   queue.NewBuffer[model.FrameSample](),
		Reps:           queue.NewBuffer[model.Rep](),
		FeedbackEvents: queue.NewBuffer[model.FeedbackEvent](),
		Performances:   queue.NewBuffer[model.EnginePerformance](),
	}
}

// repTrail buffers recent frames for one session so completed reps can
// extract the primary landmark trajectory over their time window.
type repTrail struct {
	exercise core.Exercise
	frames   []core.Frame
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	queues *queues

	trails map[string]*repTrail
	mu     sync.Mutex

	stopChan chan struct{}

	lastDBWriteDuration time.Duration
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	return &Backend{
		deps: deps,
	}
}

// Init resets the write queues and the session ID map, finalizes
// sessions a previous run left open, and starts the DB writer
// goroutine.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.trails = make(map[string]*repTrail)
	b.stopChan = make(chan struct{})
	b.deps.Sessions.Reset()

	if b.databaseValid() {
		if err := b.recoverOpenSessions(); err != nil {
			b.deps.LogManager.WriteLog("Init", fmt.Sprintf("Failed to finalize interrupted sessions: %v", err), "WARN")
		}
	}

	b.startDBWriters()
	return nil
}

// Close stops the DB writer goroutine.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
	}
	return nil
}

// databaseValid reports whether queued rows can actually be written.
func (b *Backend) databaseValid() bool {
	if b.deps.DB == nil {
		return false
	}
	if b.deps.DatabaseReady == nil {
		return true
	}
	return b.deps.DatabaseReady()
}

func (b *Backend) insertsPaused() bool {
	if b.deps.InsertsPaused == nil {
		return false
	}
	return b.deps.InsertsPaused()
}

func (b *Backend) saveLocal() bool {
	if b.deps.LocalOnly == nil {
		return false
	}
	return b.deps.LocalOnly()
}

// StartSession inserts the session row synchronously and caches its
// database ID for stamping queued rows. Reconnects resolve to the
// existing row via the wire session ID.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	b.trails[s.ID] = &repTrail{exercise: s.Exercise}
	b.mu.Unlock()

	if !b.databaseValid() {
		return nil
	}

	gormSession := convert.CoreToSession(*s)
	created, err := gormSession.GetOrInsert(b.deps.DB)
	if err != nil {
		return fmt.Errorf("failed to get or insert session: %w", err)
	}
	if !created {
		b.deps.LogManager.WriteLog("StartSession", fmt.Sprintf("Session %s resumed existing row %d", s.ID, gormSession.ID), "INFO")
	}

	b.deps.Sessions.Set(s.ID, gormSession.ID)
	return nil
}

// EndSession writes the summary columns onto the session row and drops
// the session's frame trail.
func (b *Backend) EndSession(summary *core.SessionSummary) error {
	if summary == nil {
		return nil
	}

	b.mu.Lock()
	delete(b.trails, summary.SessionID)
	b.mu.Unlock()

	// Queued rows already carry the row ID stamp, so the mapping can go
	// as soon as the session is final.
	rowID, ok := b.deps.Sessions.Get(summary.SessionID)
	b.deps.Sessions.Delete(summary.SessionID)

	if !b.databaseValid() {
		return nil
	}
	if !ok {
		return nil // session never reached the database
	}

	err := b.deps.DB.Model(&model.Session{}).
		Where("id = ?", rowID).
		Updates(convert.SummaryToUpdates(*summary)).Error
	if err != nil {
		return fmt.Errorf("failed to finalize session %s: %w", summary.SessionID, err)
	}
	return nil
}

// RecordFrame converts and queues a frame sample, and appends the frame
// to the session's trajectory trail.
func (b *Backend) RecordFrame(sessionID string, f core.Frame, res core.FrameResult) error {
	b.mu.Lock()
	if trail, ok := b.trails[sessionID]; ok {
		trail.frames = append(trail.frames, f)
		if len(trail.frames) > maxTrailFrames {
			trail.frames = trail.frames[len(trail.frames)-maxTrailFrames:]
		}
	}
	b.mu.Unlock()

	rowID, ok := b.deps.Sessions.Get(sessionID)
	if !ok && b.databaseValid() {
		return nil // session never reached the database
	}

	sample := convert.CoreToFrameSample(f, res)
	sample.Time = time.Now()
	sample.SessionID = rowID
	b.queues.FrameSamples.Add(sample)
	return nil
}

// RecordRep converts and queues a completed rep with its landmark
// trajectory.
func (b *Backend) RecordRep(sessionID string, r core.Rep, frameIndex uint) error {
	trajectory := b.takeTrajectory(sessionID, r)

	rowID, ok := b.deps.Sessions.Get(sessionID)
	if !ok && b.databaseValid() {
		return nil
	}

	gormRep := convert.CoreToRep(r)
	gormRep.Time = time.Now()
	gormRep.SessionID = rowID
	gormRep.CaptureFrame = frameIndex
	gormRep.Trajectory = trajectory
	b.queues.Reps.Add(gormRep)
	return nil
}

// takeTrajectory builds the primary landmark path over the rep's time
// window and trims the trail to frames after the rep. Local-save mode
// skips trajectory building; SQLite has no geometry type.
func (b *Backend) takeTrajectory(sessionID string, r core.Rep) geom.Geometry {
	if b.saveLocal() {
		return geom.Geometry{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	trail, ok := b.trails[sessionID]
	if !ok {
		return geom.Geometry{}
	}

	var window, rest []core.Frame
	for _, f := range trail.frames {
		switch {
		case f.RelativeTime < r.StartTime:
			// before the rep, no longer needed
		case f.RelativeTime <= r.EndTime:
			window = append(window, f)
		default:
			rest = append(rest, f)
		}
	}
	trail.frames = rest

	ls := pose.LandmarkTrack(window, pose.PrimaryLandmark(trail.exercise))
	if ls.Coordinates().Length() < 2 {
		return geom.Geometry{}
	}
	return ls.AsGeometry()
}

// RecordFeedback converts and queues a coaching cue.
func (b *Backend) RecordFeedback(sessionID string, e core.FeedbackEvent) error {
	rowID, ok := b.deps.Sessions.Get(sessionID)
	if !ok && b.databaseValid() {
		return nil
	}

	gormEvent := convert.CoreToFeedbackEvent(e)
	gormEvent.Time = time.Now()
	gormEvent.SessionID = rowID
	b.queues.FeedbackEvents.Add(gormEvent)
	return nil
}

// RecordPerformance converts and queues an engine health sample.
func (b *Backend) RecordPerformance(p core.EnginePerformance) error {
	b.queues.Performances.Add(convert.CoreToPerformance(p))
	return nil
}

// QueueDepths reports the current length of each write queue.
func (b *Backend) QueueDepths() core.QueueDepths {
	return core.QueueDepths{
		FrameSamples:   b.queues.FrameSamples.Len(),
		Reps:           b.queues.Reps.Len(),
		FeedbackEvents: b.queues.FeedbackEvents.Len(),
		Performances:   b.queues.Performances.Len(),
	}
}

// LastWriteDuration returns how long the most recent write cycle took.
func (b *Backend) LastWriteDuration() time.Duration {
	return b.lastDBWriteDuration
}

// recoverOpenSessions finalizes sessions a previous run left open. The
// summary is rebuilt from whatever rows reached the database before the
// interruption.
func (b *Backend) recoverOpenSessions() error {
	db := b.deps.DB
	log := b.deps.LogManager

	var open []model.Session
	if err := db.Where("end_time IS NULL").Find(&open).Error; err != nil {
		return fmt.Errorf("failed to list open sessions: %w", err)
	}

	recovered := 0
	for _, s := range open {
		var reps []model.Rep
		if err := db.Where("session_id = ?", s.ID).Order("capture_frame").Find(&reps).Error; err != nil {
			log.WriteLog("recoverOpenSessions", fmt.Sprintf("Failed to load reps for session %s: %v", s.SessionID, err), "WARN")
			continue
		}

		var events []model.FeedbackEvent
		if err := db.Where("session_id = ?", s.ID).Order("capture_frame").Find(&events).Error; err != nil {
			log.WriteLog("recoverOpenSessions", fmt.Sprintf("Failed to load feedback for session %s: %v", s.SessionID, err), "WARN")
			continue
		}

		var frameCount int64
		if err := db.Model(&model.FrameSample{}).Where("session_id = ?", s.ID).Count(&frameCount).Error; err != nil {
			log.WriteLog("recoverOpenSessions", fmt.Sprintf("Failed to count frames for session %s: %v", s.SessionID, err), "WARN")
			continue
		}

		summary := convert.SessionToSummary(s, reps, events)
		summary.FrameCount = uint(frameCount)
		summary.EndedAt = s.StartTime.Add(time.Duration(summary.Duration * float64(time.Second)))

		err := db.Model(&model.Session{}).
			Where("id = ?", s.ID).
			Updates(convert.SummaryToUpdates(summary)).Error
		if err != nil {
			log.WriteLog("recoverOpenSessions", fmt.Sprintf("Failed to finalize session %s: %v", s.SessionID, err), "WARN")
			continue
		}
		recovered++
	}

	if len(open) > 0 {
		log.WriteLog("recoverOpenSessions", fmt.Sprintf("Finalized %d interrupted sessions", recovered), "INFO")
	}
	return nil
}

// writeQueue drains one buffer into the database in a single transaction.
// Failed batches are re-queued for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Buffer[T], name string, log func(string, string, string)) bool {
	items := q.Drain()
	if len(items) == 0 {
		return false
	}

	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Add(items...)
		return false
	}

	tx.Commit()
	return true
}

// startDBWriters starts the background goroutine that periodically drains
// queues into the DB.
func (b *Backend) startDBWriters() {
	log := b.deps.LogManager.WriteLog

	go func() {
		for {
			select {
			case <-b.stopChan:
				return
			default:
			}

			if !b.databaseValid() || b.insertsPaused() {
				time.Sleep(1 * time.Second)
				continue
			}

			start := time.Now()
			wrote := false

			wrote = writeQueue(b.deps.DB, b.queues.FrameSamples, "frame samples", log) || wrote
			wrote = writeQueue(b.deps.DB, b.queues.Reps, "reps", log) || wrote
			wrote = writeQueue(b.deps.DB, b.queues.FeedbackEvents, "feedback events", log) || wrote
			wrote = writeQueue(b.deps.DB, b.queues.Performances, "engine performances", log) || wrote

			if wrote {
				b.lastDBWriteDuration = time.Since(start)
			}

			time.Sleep(2 * time.Second)
		}
	}()
}
