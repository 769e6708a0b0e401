// internal/session/recorder.go

package session

import (
	"sync"
	"time"

	"github.com/repcoach/engine/internal/analyzer"
	"github.com/repcoach/engine/pkg/core"
)

// Recorder accumulates per-frame analyzer output for one session and
// produces the final summary when the session ends.
type Recorder struct {
	mu       sync.Mutex
	session  core.Session
	log      *analyzer.Log
	reps     []core.Rep
	frames   uint
	skipped  uint
	lastTime float64
	repCount int
}

// NewRecorder starts recording for the given session.
func NewRecorder(s core.Session) *Recorder {
	return &Recorder{
		session: s,
		log:     analyzer.NewLog(),
	}
}

// Observe folds one frame result into the running totals.
func (r *Recorder) Observe(res core.FrameResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frames++
	r.lastTime = res.RelativeTime
	r.repCount = res.RepCount
	for _, ev := range res.NewFeedback {
		r.log.Add(ev)
	}
	if res.CompletedRep != nil {
		r.reps = append(r.reps, *res.CompletedRep)
	}
}

// ObserveSkipped counts a frame rejected before analysis, typically for
// a missing landmark.
func (r *Recorder) ObserveSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
}

// Session returns the session this recorder was started for.
func (r *Recorder) Session() core.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Counts returns the processed and skipped frame totals so far.
func (r *Recorder) Counts() (frames uint, skipped uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames, r.skipped
}

// RepCount returns the rep total as of the last observed frame.
func (r *Recorder) RepCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.repCount
}

// Summary builds the final session summary.
func (r *Recorder) Summary(endedAt time.Time) core.SessionSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	reps := make([]core.Rep, len(r.reps))
	copy(reps, r.reps)

	return core.SessionSummary{
		SessionID:   r.session.ID,
		Exercise:    r.session.Exercise,
		StartedAt:   r.session.StartedAt,
		EndedAt:     endedAt,
		Duration:    r.lastTime,
		FrameCount:  r.frames,
		SkippedBad:  r.skipped,
		RepCount:    r.repCount,
		Reps:        reps,
		Feedback:    r.log.Messages(),
		FeedbackLog: r.log.Events(),
	}
}
