// pkg/core/result.go
package core

import "fmt"

// FrameResult is the per-frame output of an analyzer.
// NewFeedback holds only cues emitted for this frame, in emission order.
// CompletedRep is non-nil exactly when this frame finished a counted rep.
type FrameResult struct {
	FrameIndex     uint            `json:"frame_index"`
	RelativeTime   float64         `json:"relative_time"`
	Angle          float64         `json:"angle"`
	Classification Classification  `json:"classification"`
	Phase          Phase           `json:"phase"`
	RepCount       int             `json:"rep_count"`
	GoodForm       bool            `json:"good_form"`
	NewFeedback    []FeedbackEvent `json:"new_feedback,omitempty"`
	CompletedRep   *Rep            `json:"completed_rep,omitempty"`
}

// MissingLandmarkError reports a frame that lacked a landmark the
// exercise requires. The frame is skipped; analyzer state is unchanged.
type MissingLandmarkError struct {
	Landmark   string
	FrameIndex uint
}

func (e *MissingLandmarkError) Error() string {
	return fmt.Sprintf("frame %d missing required landmark %q", e.FrameIndex, e.Landmark)
}
