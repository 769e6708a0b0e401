package convert

import (
	"encoding/json"

	"github.com/repcoach/engine/internal/model"
	"github.com/repcoach/engine/pkg/core"
	"gorm.io/datatypes"
)

// landmarksToJSON converts a landmark map to datatypes.JSON for DB storage.
func landmarksToJSON(landmarks map[string]core.Landmark) datatypes.JSON {
	if len(landmarks) == 0 {
		return datatypes.JSON("{}")
	}
	data, _ := json.Marshal(landmarks)
	return datatypes.JSON(data)
}

// CoreToSession converts a core.Session to a GORM model.Session.
// core.Session.ID maps to GORM Session.SessionID; the database row ID
// is assigned on insert.
func CoreToSession(s core.Session) model.Session {
	return model.Session{
		SessionID:     s.ID,
		Exercise:      string(s.Exercise),
		Subject:       s.Subject,
		Source:        s.Source,
		StartTime:     s.StartedAt,
		CaptureFps:    s.CaptureFPS,
		EngineVersion: s.EngineVersion,
		Tag:           s.Tag,
	}
}

// CoreToRep converts a core.Rep to a GORM model.Rep.
// Time, SessionID, CaptureFrame and Trajectory are stamped by the caller.
func CoreToRep(r core.Rep) model.Rep {
	return model.Rep{
		RepIndex:  r.Index,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Duration:  r.Duration,
		MinAngle:  r.MinAngle,
	}
}

// CoreToFeedbackEvent converts a core.FeedbackEvent to a GORM
// model.FeedbackEvent. Time and SessionID are stamped by the caller.
func CoreToFeedbackEvent(e core.FeedbackEvent) model.FeedbackEvent {
	return model.FeedbackEvent{
		CaptureFrame: e.FrameIndex,
		RelativeTime: e.RelativeTime,
		Kind:         string(e.Kind),
		Message:      e.Message,
	}
}

// CoreToFrameSample converts one processed frame and its result to a GORM
// model.FrameSample. Time and SessionID are stamped by the caller.
func CoreToFrameSample(f core.Frame, res core.FrameResult) model.FrameSample {
	return model.FrameSample{
		CaptureFrame:   res.FrameIndex,
		RelativeTime:   res.RelativeTime,
		Angle:          res.Angle,
		Classification: res.Classification.String(),
		Phase:          res.Phase.String(),
		RepCount:       res.RepCount,
		GoodForm:       res.GoodForm,
		Landmarks:      landmarksToJSON(f.Landmarks),
	}
}

// CoreToPerformance converts a core.EnginePerformance to a GORM
// model.EnginePerformance.
func CoreToPerformance(p core.EnginePerformance) model.EnginePerformance {
	return model.EnginePerformance{
		Time:           p.Time,
		ActiveSessions: uint16(p.ActiveSessions),
		Goroutines:     uint16(p.Goroutines),
		QueueDepths: model.QueueDepths{
			FrameSamples:   uint16(p.QueueDepths.FrameSamples),
			Reps:           uint16(p.QueueDepths.Reps),
			FeedbackEvents: uint16(p.QueueDepths.FeedbackEvents),
			Performances:   uint16(p.QueueDepths.Performances),
		},
		LastWriteMs: float32(p.LastWriteDurationMs),
	}
}

// SummaryToUpdates converts end-of-session aggregates to a column update
// map for the session row, including the full summary JSON blob.
func SummaryToUpdates(sum core.SessionSummary) map[string]interface{} {
	blob, _ := json.Marshal(sum)
	return map[string]interface{}{
		"end_time":       sum.EndedAt,
		"duration":       sum.Duration,
		"frame_count":    sum.FrameCount,
		"skipped_frames": sum.SkippedBad,
		"rep_count":      sum.RepCount,
		"summary":        datatypes.JSON(blob),
	}
}
