package convert

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/repcoach/engine/pkg/core"
)

func TestLandmarksToJSON(t *testing.T) {
	landmarks := map[string]core.Landmark{
		"right_elbow": {X: 0.5, Y: 0.4, Z: -0.1, Visibility: 0.95},
	}

	blob := landmarksToJSON(landmarks)

	var restored map[string]core.Landmark
	require.NoError(t, json.Unmarshal(blob, &restored))
	assert.Equal(t, landmarks, restored)
}

func TestLandmarksToJSON_Empty(t *testing.T) {
	assert.Equal(t, datatypes.JSON("{}"), landmarksToJSON(nil))
	assert.Equal(t, datatypes.JSON("{}"), landmarksToJSON(map[string]core.Landmark{}))
}

// Round-trip: core → GORM → core
func TestSessionRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)

	original := core.Session{
		ID:            "pushup_1700000000000",
		Exercise:      core.ExercisePushup,
		Subject:       "alice",
		Source:        "webcam",
		StartedAt:     now,
		CaptureFPS:    30,
		EngineVersion: "1.0.0",
		Tag:           "Training",
	}

	roundTripped := SessionToCore(CoreToSession(original))

	assert.Equal(t, original, roundTripped)
}

func TestRepRoundTrip(t *testing.T) {
	original := core.Rep{
		Index:     5,
		StartTime: 10.0,
		EndTime:   12.4,
		Duration:  2.4,
		MinAngle:  79.5,
	}

	roundTripped := RepToCore(CoreToRep(original))

	assert.Equal(t, original, roundTripped)
}

func TestFeedbackEventRoundTrip(t *testing.T) {
	original := core.FeedbackEvent{
		Kind:         core.FeedbackStraightness,
		Message:      core.MsgKeepBackStraight,
		FrameIndex:   88,
		RelativeTime: 2.9,
	}

	roundTripped := FeedbackEventToCore(CoreToFeedbackEvent(original))

	assert.Equal(t, original, roundTripped)
}

func TestCoreToFrameSample(t *testing.T) {
	frame := core.Frame{
		RelativeTime: 3.2,
		Landmarks: map[string]core.Landmark{
			"right_elbow": {X: 0.5, Y: 0.4, Z: -0.1, Visibility: 0.9},
		},
	}
	res := core.FrameResult{
		FrameIndex:     96,
		RelativeTime:   3.2,
		Angle:          142.7,
		Classification: core.ClassificationLow,
		Phase:          core.PhaseDown,
		RepCount:       3,
		GoodForm:       true,
	}

	sample := CoreToFrameSample(frame, res)

	assert.Equal(t, uint(96), sample.CaptureFrame)
	assert.Equal(t, 3.2, sample.RelativeTime)
	assert.Equal(t, 142.7, sample.Angle)
	assert.Equal(t, "low", sample.Classification)
	assert.Equal(t, "down", sample.Phase)
	assert.Equal(t, 3, sample.RepCount)
	assert.True(t, sample.GoodForm)

	// Landmark snapshot and result survive the store format.
	assert.Equal(t, frame, FrameSampleToFrame(sample))
	assert.Equal(t, res, FrameSampleToResult(sample))
}

func TestCoreToPerformance(t *testing.T) {
	now := time.Now()

	p := core.EnginePerformance{
		Time:           now,
		ActiveSessions: 3,
		Goroutines:     42,
		QueueDepths: core.QueueDepths{
			FrameSamples:   120,
			Reps:           2,
			FeedbackEvents: 5,
			Performances:   1,
		},
		LastWriteDurationMs: 17.5,
	}

	perf := CoreToPerformance(p)

	assert.Equal(t, now, perf.Time)
	assert.Equal(t, uint16(3), perf.ActiveSessions)
	assert.Equal(t, uint16(42), perf.Goroutines)
	assert.Equal(t, uint16(120), perf.QueueDepths.FrameSamples)
	assert.Equal(t, uint16(2), perf.QueueDepths.Reps)
	assert.Equal(t, uint16(5), perf.QueueDepths.FeedbackEvents)
	assert.Equal(t, uint16(1), perf.QueueDepths.Performances)
	assert.Equal(t, float32(17.5), perf.LastWriteMs)
}

func TestSummaryToUpdates(t *testing.T) {
	ended := time.Now().Truncate(time.Millisecond)

	sum := core.SessionSummary{
		SessionID:  "squat_1",
		Exercise:   core.ExerciseSquat,
		EndedAt:    ended,
		Duration:   63.2,
		FrameCount: 1890,
		SkippedBad: 4,
		RepCount:   21,
		Feedback:   []string{core.MsgGoDeeperSquat},
	}

	updates := SummaryToUpdates(sum)

	assert.Equal(t, ended, updates["end_time"])
	assert.Equal(t, 63.2, updates["duration"])
	assert.Equal(t, uint(1890), updates["frame_count"])
	assert.Equal(t, uint(4), updates["skipped_frames"])
	assert.Equal(t, 21, updates["rep_count"])

	blob, ok := updates["summary"].(datatypes.JSON)
	require.True(t, ok)
	var restored core.SessionSummary
	require.NoError(t, json.Unmarshal(blob, &restored))
	assert.Equal(t, sum.SessionID, restored.SessionID)
	assert.Equal(t, sum.RepCount, restored.RepCount)
	assert.Equal(t, sum.Feedback, restored.Feedback)
}
