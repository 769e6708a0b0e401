// pkg/core/feedback.go
package core

// FeedbackKind categorizes a coaching cue for storage and metrics.
type FeedbackKind string

const (
	FeedbackStraightness FeedbackKind = "straightness"
	FeedbackElbowFlare   FeedbackKind = "elbow_flare"
	FeedbackDepth        FeedbackKind = "depth"
	FeedbackTempo        FeedbackKind = "tempo"
	FeedbackKneeTracking FeedbackKind = "knee_tracking"
	FeedbackPraise       FeedbackKind = "praise"
)

// Coaching cue vocabulary. These exact strings are what clients display
// and what session summaries deduplicate on.
const (
	MsgKeepBackStraight = "Keep your back straight!"
	MsgTuckElbows       = "Tuck your elbows in a bit!"
	MsgGoDeeperPushup   = "Go deeper on your push-ups!"
	MsgSlowDown         = "Slow down your reps!"
	MsgGreatForm        = "Great form! Keep it up!"
	MsgGoDeeperSquat    = "Go deeper!"
	MsgKneesOut         = "Push your knees out!"
	MsgKneesTooWide     = "Don't let your knees flare out too wide!"
)

// FeedbackEvent is a single coaching cue emitted while processing a frame.
type FeedbackEvent struct {
	Kind         FeedbackKind `json:"kind"`
	Message      string       `json:"message"`
	FrameIndex   uint         `json:"frame_index"`
	RelativeTime float64      `json:"relative_time"`
}
