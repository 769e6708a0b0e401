// Package convert maps between the GORM table models and the
// wire-facing core structs. Each direction lives in its own file.
package convert

import (
	"encoding/json"

	"github.com/repcoach/engine/internal/model"
	"github.com/repcoach/engine/pkg/core"
)

// landmarksFromJSON restores a landmark map from its stored JSON snapshot
func landmarksFromJSON(data []byte) map[string]core.Landmark {
	if len(data) == 0 {
		return nil
	}
	var landmarks map[string]core.Landmark
	if err := json.Unmarshal(data, &landmarks); err != nil {
		return nil
	}
	return landmarks
}

// SessionToCore converts a GORM Session to a core.Session.
// GORM Session.SessionID maps to core Session.ID.
func SessionToCore(s model.Session) core.Session {
	return core.Session{
		ID:            s.SessionID,
		Exercise:      core.Exercise(s.Exercise),
		Subject:       s.Subject,
		Source:        s.Source,
		StartedAt:     s.StartTime,
		CaptureFPS:    s.CaptureFps,
		EngineVersion: s.EngineVersion,
		Tag:           s.Tag,
	}
}

// RepToCore converts a GORM Rep to a core.Rep. The trajectory geometry
// is database-only and does not round-trip.
func RepToCore(r model.Rep) core.Rep {
	return core.Rep{
		Index:     r.RepIndex,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Duration:  r.Duration,
		MinAngle:  r.MinAngle,
	}
}

// FeedbackEventToCore converts a GORM FeedbackEvent to a core.FeedbackEvent
func FeedbackEventToCore(e model.FeedbackEvent) core.FeedbackEvent {
	return core.FeedbackEvent{
		Kind:         core.FeedbackKind(e.Kind),
		Message:      e.Message,
		FrameIndex:   e.CaptureFrame,
		RelativeTime: e.RelativeTime,
	}
}

// FrameSampleToFrame restores the pose frame stored with a sample
func FrameSampleToFrame(s model.FrameSample) core.Frame {
	return core.Frame{
		RelativeTime: s.RelativeTime,
		Landmarks:    landmarksFromJSON(s.Landmarks),
	}
}

// FrameSampleToResult converts a GORM FrameSample back to the engine
// result it recorded. Feedback and completed-rep details live in their
// own tables and are not restored here.
func FrameSampleToResult(s model.FrameSample) core.FrameResult {
	var phase core.Phase
	_ = phase.UnmarshalText([]byte(s.Phase))
	var cls core.Classification
	_ = cls.UnmarshalText([]byte(s.Classification))

	return core.FrameResult{
		FrameIndex:     s.CaptureFrame,
		RelativeTime:   s.RelativeTime,
		Angle:          s.Angle,
		Classification: cls,
		Phase:          phase,
		RepCount:       s.RepCount,
		GoodForm:       s.GoodForm,
	}
}

// SessionToSummary rebuilds a session summary from stored rows, for
// sessions that never received their end-of-session aggregates. Counts
// come from the rows rather than the session columns; Duration is the
// latest relative time any row observed, a lower bound for a session
// cut off mid-stream.
func SessionToSummary(s model.Session, reps []model.Rep, events []model.FeedbackEvent) core.SessionSummary {
	sum := core.SessionSummary{
		SessionID:  s.SessionID,
		Exercise:   core.Exercise(s.Exercise),
		StartedAt:  s.StartTime,
		Duration:   s.Duration,
		FrameCount: s.FrameCount,
		SkippedBad: s.SkippedFrames,
		RepCount:   len(reps),
		Feedback:   []string{},
	}
	if s.EndTime.Valid {
		sum.EndedAt = s.EndTime.Time
	}

	for _, r := range reps {
		sum.Reps = append(sum.Reps, RepToCore(r))
		if r.EndTime > sum.Duration {
			sum.Duration = r.EndTime
		}
	}

	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		ev := FeedbackEventToCore(e)
		sum.FeedbackLog = append(sum.FeedbackLog, ev)
		if ev.RelativeTime > sum.Duration {
			sum.Duration = ev.RelativeTime
		}
		if _, dup := seen[ev.Message]; !dup {
			seen[ev.Message] = struct{}{}
			sum.Feedback = append(sum.Feedback, ev.Message)
		}
	}

	return sum
}
