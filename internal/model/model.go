package model

import (
	"database/sql"
	"errors"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseModels lists every exported table struct. Setup feeds this
// slice to AutoMigrate, so a struct missing here never gets a table.
var DatabaseModels = []interface{}{
	&EngineInfo{},
	&Session{},
	&Rep{},
	&FeedbackEvent{},
	&FrameSample{},
	&EnginePerformance{},
}

//////////////////////////////
// TELEMETRY MODELS
//////////////////////////////

// EngineInfo contains identity information about the deployment,
// written once when the schema is created
type EngineInfo struct {
	gorm.Model
	InstanceName        string `json:"instanceName" gorm:"size:127"`
	InstanceDescription string `json:"instanceDescription" gorm:"size:255"`
	InstanceWebsite     string `json:"instanceURL" gorm:"size:255"`
	EngineVersion       string `json:"engineVersion" gorm:"size:64"`
}

func (*EngineInfo) TableName() string {
	return "engine_infos"
}

// EnginePerformance is one health sample from the status monitor
type EnginePerformance struct {
	Time           time.Time   `json:"time" gorm:"type:timestamptz;index:idx_perf_time"`
	ActiveSessions uint16      `json:"activeSessions"`
	Goroutines     uint16      `json:"goroutines"`
	QueueDepths    QueueDepths `json:"queueDepths" gorm:"embedded;embeddedPrefix:queue_"`
	LastWriteMs    float32     `json:"lastWriteMs"`
}

func (*EnginePerformance) TableName() string {
	return "engine_performances"
}

// QueueDepths mirrors core.QueueDepths at the uint16 column widths the
// schema uses
type QueueDepths struct {
	FrameSamples   uint16 `json:"frameSamples"`
	Reps           uint16 `json:"reps"`
	FeedbackEvents uint16 `json:"feedbackEvents"`
	Performances   uint16 `json:"performances"`
}

//////////////////////////////
// SESSION MODELS
//////////////////////////////

// Session is the main model for one analysis run. SessionID is the
// engine-assigned string identifier from the wire protocol; summary
// columns stay zero until the session ends.
type Session struct {
	gorm.Model
	SessionID     string       `json:"sessionId" gorm:"size:127;index:idx_session_session_id"`
	Exercise      string       `json:"exercise" gorm:"size:32;index:idx_session_exercise"`
	Subject       string       `json:"subject" gorm:"size:127"`
	Source        string       `json:"source" gorm:"size:127"`
	StartTime     time.Time    `json:"startedAt" gorm:"type:timestamptz;index:idx_session_start"`
	EndTime       sql.NullTime `json:"endedAt" gorm:"type:timestamptz;default:NULL"`
	CaptureFps    float64      `json:"captureFps"`
	EngineVersion string       `json:"engineVersion" gorm:"size:64;default:1.0.0"`
	Tag           string       `json:"tag" gorm:"size:127"`

	Duration      float64        `json:"duration"`
	FrameCount    uint           `json:"frameCount"`
	SkippedFrames uint           `json:"skippedFrames"`
	RepCount      int            `json:"repCount"`
	Summary       datatypes.JSON `json:"summary" gorm:"type:jsonb;default:'{}'"`

	Reps           []Rep
	FeedbackEvents []FeedbackEvent
	FrameSamples   []FrameSample
}

func (*Session) TableName() string {
	return "sessions"
}

// GetOrInsert looks the session up by its wire SessionID and inserts it
// when absent. A session replayed after a reconnect resolves to the
// existing row instead of a duplicate.
func (s *Session) GetOrInsert(db *gorm.DB) (created bool, err error) {
	var existing Session
	err = db.Where("session_id = ?", s.SessionID).First(&existing).Error
	switch {
	case err == nil:
		*s = existing
		return false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return true, db.Create(s).Error
	default:
		return false, err
	}
}

// Rep records one counted repetition
type Rep struct {
	ID           uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time `json:"time" gorm:"type:timestamptz;"`
	SessionID    uint      `json:"sessionId" gorm:"index:idx_rep_session_id"`
	Session      Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	CaptureFrame uint      `json:"captureFrame" gorm:"index:idx_rep_capture_frame;"`

	RepIndex  int     `json:"repIndex"`
	StartTime float64 `json:"startTime"` // session-relative seconds
	EndTime   float64 `json:"endTime"`
	Duration  float64 `json:"duration"`
	MinAngle  float64 `json:"minAngle"`

	Trajectory geom.Geometry `json:"-"` // LineStringZM of the primary landmark over the rep [x,y,z,relativeTime]
}

func (*Rep) TableName() string {
	return "reps"
}

// FeedbackEvent records one coaching cue
type FeedbackEvent struct {
	ID           uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time `json:"time" gorm:"type:timestamptz;"`
	SessionID    uint      `json:"sessionId" gorm:"index:idx_feedbackevent_session_id"`
	Session      Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	CaptureFrame uint      `json:"captureFrame" gorm:"index:idx_feedbackevent_capture_frame;"`

	RelativeTime float64 `json:"relativeTime"`
	Kind         string  `json:"kind" gorm:"size:32;index:idx_feedbackevent_kind"`
	Message      string  `json:"message" gorm:"size:127"`
}

func (*FeedbackEvent) TableName() string {
	return "feedback_events"
}

// FrameSample tracks the engine reading for one processed frame.
// This is the high-volume table; rows arrive at capture rate.
type FrameSample struct {
	ID           uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time `json:"time" gorm:"type:timestamptz;"`                           // Server time when the frame was processed
	SessionID    uint      `json:"sessionId" gorm:"index:idx_framesample_session_id"`
	Session      Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	CaptureFrame uint      `json:"captureFrame" gorm:"index:idx_framesample_capture_frame"` // Frame index in the session timeline

	RelativeTime   float64        `json:"relativeTime"`                               // Seconds since session start
	Angle          float64        `json:"angle"`                                      // Smoothed primary joint angle
	Classification string         `json:"classification" gorm:"size:8"`               // Instantaneous reading: low, high
	Phase          string         `json:"phase" gorm:"size:8"`                        // Debounced phase: up, down
	RepCount       int            `json:"repCount"`                                   // Running rep count after this frame
	GoodForm       bool           `json:"goodForm" gorm:"default:true"`               // No form rule fired this frame
	Landmarks      datatypes.JSON `json:"landmarks" gorm:"type:jsonb;default:'{}'"`   // Raw landmark map snapshot
}

func (*FrameSample) TableName() string {
	return "frame_samples"
}
