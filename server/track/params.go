package track

import (
	"fmt"
)

// ExtrapolationPolicy controls how a dynamic track behaves on scene frames
// before its first detection and after its last.
type ExtrapolationPolicy string

const (
	// ExtrapolateHold repeats the nearest known box. Default.
	ExtrapolateHold ExtrapolationPolicy = "hold"

	// ExtrapolateConstantVelocity continues the per-coordinate delta of the
	// two nearest detections. Smoother at scene edges, but a subject that was
	// accelerating when the detections stop will overshoot.
	ExtrapolateConstantVelocity ExtrapolationPolicy = "constant_velocity"
)

func ParseExtrapolationPolicy(s string) (ExtrapolationPolicy, error) {
	switch ExtrapolationPolicy(s) {
	case ExtrapolateHold, ExtrapolateConstantVelocity:
		return ExtrapolationPolicy(s), nil
	}
	return "", fmt.Errorf("Unknown extrapolation policy '%v' (expected 'hold' or 'constant_velocity')", s)
}

// Params are the resolved tracking parameters for one scene run.
// Build them with DefaultParams and adjust, or from config.Tuning.
type Params struct {
	// MatchThresholdFactor scales the adaptive matching gate. A track accepts
	// a detection whose center is closer than
	// MatchThresholdFactor * max(width, height) of the track's last box.
	// The allowed displacement grows as the subject appears larger (closer to
	// camera), so a subject walking toward the camera is not split into
	// multiple tracks.
	MatchThresholdFactor float32

	// MinHitsToConfirm is the number of detections a tentative track needs
	// before it is trusted.
	MinHitsToConfirm int

	// MaxMissedBeforeEnd ends a track once it has gone unmatched for more
	// than this many keyframes.
	MaxMissedBeforeEnd int

	// MinTrackDurationSeconds drops ended tracks whose first-to-last
	// detection span is shorter than this. Excludes flash-frame false
	// positives.
	MinTrackDurationSeconds float64

	// MinTrackDetections drops ended tracks with fewer detections than this.
	MinTrackDetections int

	// MinPersistenceRatio drops ended tracks seen in less than this fraction
	// of the scene's sampled keyframes. Zero disables the ratio test.
	MinPersistenceRatio float64

	// Extrapolation selects the scene-edge behavior of dynamic tracks.
	Extrapolation ExtrapolationPolicy
}

func DefaultParams() Params {
	return Params{
		MatchThresholdFactor:    0.7,
		MinHitsToConfirm:        2,
		MaxMissedBeforeEnd:      3,
		MinTrackDurationSeconds: 0.5,
		MinTrackDetections:      2,
		MinPersistenceRatio:     0.4,
		Extrapolation:           ExtrapolateHold,
	}
}

// Validate returns an error describing the first nonsensical parameter.
// Callers treat a failure as fatal at startup, never mid-scene.
func (p *Params) Validate() error {
	if p.MatchThresholdFactor <= 0 {
		return fmt.Errorf("matchThresholdFactor must be > 0, got %v", p.MatchThresholdFactor)
	}
	if p.MinHitsToConfirm < 1 {
		return fmt.Errorf("minHitsToConfirm must be >= 1, got %v", p.MinHitsToConfirm)
	}
	if p.MaxMissedBeforeEnd < 0 {
		return fmt.Errorf("maxMissedBeforeEnd must be >= 0, got %v", p.MaxMissedBeforeEnd)
	}
	if p.MinTrackDurationSeconds < 0 {
		return fmt.Errorf("minTrackDurationSeconds must be >= 0, got %v", p.MinTrackDurationSeconds)
	}
	if p.MinTrackDetections < 1 {
		return fmt.Errorf("minTrackDetections must be >= 1, got %v", p.MinTrackDetections)
	}
	if p.MinPersistenceRatio < 0 || p.MinPersistenceRatio > 1 {
		return fmt.Errorf("minPersistenceRatio must be in [0,1], got %v", p.MinPersistenceRatio)
	}
	if _, err := ParseExtrapolationPolicy(string(p.Extrapolation)); err != nil {
		return err
	}
	return nil
}
