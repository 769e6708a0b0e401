// internal/analyzer/rules.go
package analyzer

import (
	"math"

	"github.com/repcoach/engine/internal/pose"
	"github.com/repcoach/engine/pkg/core"
)

// ruleResult is one form rule's read of a frame. Valid is false when the
// rule's landmarks were absent or its geometry degenerate, in which case
// the rule is skipped silently for this frame.
type ruleResult struct {
	Violated bool
	Valid    bool
}

// checkStraightness reads the shoulder-hip-ankle body line. Angles below
// the configured minimum mean the hips are sagging or piking.
func checkStraightness(cfg Config, f core.Frame) ruleResult {
	s, okS := f.Landmarks[pose.RightShoulder]
	h, okH := f.Landmarks[pose.RightHip]
	a, okA := f.Landmarks[pose.RightAnkle]
	if !okS || !okH || !okA {
		return ruleResult{}
	}
	angle, err := pose.JointAngle(s, h, a)
	if err != nil {
		return ruleResult{}
	}
	return ruleResult{Valid: true, Violated: angle < cfg.StraightnessMin}
}

// checkElbowFlare reads the hip-shoulder-elbow angle. Angles above the
// configured maximum mean the elbow drifts away from the torso.
func checkElbowFlare(cfg Config, f core.Frame) ruleResult {
	h, okH := f.Landmarks[pose.RightHip]
	s, okS := f.Landmarks[pose.RightShoulder]
	e, okE := f.Landmarks[pose.RightElbow]
	if !okH || !okS || !okE {
		return ruleResult{}
	}
	angle, err := pose.JointAngle(h, s, e)
	if err != nil {
		return ruleResult{}
	}
	return ruleResult{Valid: true, Violated: angle > cfg.ElbowFlareMax}
}

// kneeRatio measures knee spread over ankle spread on the x axis.
// Invalid when the ankles share an x coordinate.
func kneeRatio(f core.Frame) (float64, ruleResult) {
	lk, okLK := f.Landmarks[pose.LeftKnee]
	rk, okRK := f.Landmarks[pose.RightKnee]
	la, okLA := f.Landmarks[pose.LeftAnkle]
	ra, okRA := f.Landmarks[pose.RightAnkle]
	if !okLK || !okRK || !okLA || !okRA {
		return 0, ruleResult{}
	}

	ankleSpread := math.Abs(la.X - ra.X)
	if ankleSpread == 0 {
		return 0, ruleResult{}
	}

	ratio := math.Abs(lk.X-rk.X) / ankleSpread
	return ratio, ruleResult{Valid: true}
}
