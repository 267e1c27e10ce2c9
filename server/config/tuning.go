package config

import (
	"fmt"

	"github.com/reframelab/reframer/server/scout"
	"github.com/reframelab/reframer/server/track"
)

// Tuning is the adjustable surface of the tracking pipeline. All fields are
// pointers so that a partial JSON document only overrides what it mentions;
// nil means "use the built-in default". The same schema is accepted in the
// config file and as a per-request override on the process API.
type Tuning struct {
	// Gate radius as a fraction of the track's last box size (max of width
	// and height).
	MatchThresholdFactor *float32 `json:"match_threshold_factor,omitempty"`

	// Detections on this many keyframes before a track is trusted.
	MinHitsToConfirm *int `json:"min_hits_to_confirm,omitempty"`

	// Keyframes a confirmed track may go unseen before it is closed.
	MaxMissedBeforeEnd *int `json:"max_missed_before_end,omitempty"`

	// Tracks spanning less wall-clock time than this are discarded.
	MinTrackDurationSeconds *float64 `json:"min_track_duration_seconds,omitempty"`

	// Tracks with fewer detections than this are discarded.
	MinTrackDetections *int `json:"min_track_detections,omitempty"`

	// Tracks detected on less than this fraction of the scene's sampled
	// keyframes are discarded. Zero disables the ratio test.
	MinPersistenceRatio *float64 `json:"min_persistence_ratio,omitempty"`

	// "hold" or "constant_velocity".
	ExtrapolationPolicy *string `json:"extrapolation_policy,omitempty"`

	// Keyframe sampling density.
	SamplesPerSecond   *float64 `json:"samples_per_second,omitempty"`
	MinSamplesPerScene *int     `json:"min_samples_per_scene,omitempty"`
	MaxSamplesPerScene *int     `json:"max_samples_per_scene,omitempty"`
}

// Merged returns a copy of t with every non-nil field of override applied on
// top. Either receiver or override may be nil.
func (t *Tuning) Merged(override *Tuning) *Tuning {
	out := Tuning{}
	for _, layer := range []*Tuning{t, override} {
		if layer == nil {
			continue
		}
		if layer.MatchThresholdFactor != nil {
			out.MatchThresholdFactor = layer.MatchThresholdFactor
		}
		if layer.MinHitsToConfirm != nil {
			out.MinHitsToConfirm = layer.MinHitsToConfirm
		}
		if layer.MaxMissedBeforeEnd != nil {
			out.MaxMissedBeforeEnd = layer.MaxMissedBeforeEnd
		}
		if layer.MinTrackDurationSeconds != nil {
			out.MinTrackDurationSeconds = layer.MinTrackDurationSeconds
		}
		if layer.MinTrackDetections != nil {
			out.MinTrackDetections = layer.MinTrackDetections
		}
		if layer.MinPersistenceRatio != nil {
			out.MinPersistenceRatio = layer.MinPersistenceRatio
		}
		if layer.ExtrapolationPolicy != nil {
			out.ExtrapolationPolicy = layer.ExtrapolationPolicy
		}
		if layer.SamplesPerSecond != nil {
			out.SamplesPerSecond = layer.SamplesPerSecond
		}
		if layer.MinSamplesPerScene != nil {
			out.MinSamplesPerScene = layer.MinSamplesPerScene
		}
		if layer.MaxSamplesPerScene != nil {
			out.MaxSamplesPerScene = layer.MaxSamplesPerScene
		}
	}
	return &out
}

// TrackParams resolves the tracking parameters, falling back to the defaults
// for absent fields. A nil receiver yields pure defaults.
func (t *Tuning) TrackParams() (track.Params, error) {
	p := track.DefaultParams()
	if t == nil {
		return p, nil
	}
	if t.MatchThresholdFactor != nil {
		p.MatchThresholdFactor = *t.MatchThresholdFactor
	}
	if t.MinHitsToConfirm != nil {
		p.MinHitsToConfirm = *t.MinHitsToConfirm
	}
	if t.MaxMissedBeforeEnd != nil {
		p.MaxMissedBeforeEnd = *t.MaxMissedBeforeEnd
	}
	if t.MinTrackDurationSeconds != nil {
		p.MinTrackDurationSeconds = *t.MinTrackDurationSeconds
	}
	if t.MinTrackDetections != nil {
		p.MinTrackDetections = *t.MinTrackDetections
	}
	if t.MinPersistenceRatio != nil {
		p.MinPersistenceRatio = *t.MinPersistenceRatio
	}
	if t.ExtrapolationPolicy != nil {
		policy, err := track.ParseExtrapolationPolicy(*t.ExtrapolationPolicy)
		if err != nil {
			return p, err
		}
		p.Extrapolation = policy
	}
	return p, p.Validate()
}

// SamplePolicy resolves the keyframe sampling policy, falling back to the
// defaults for absent fields.
func (t *Tuning) SamplePolicy() (scout.Policy, error) {
	p := scout.DefaultPolicy()
	if t == nil {
		return p, nil
	}
	if t.SamplesPerSecond != nil {
		p.SamplesPerSecond = *t.SamplesPerSecond
	}
	if t.MinSamplesPerScene != nil {
		p.MinSamples = *t.MinSamplesPerScene
	}
	if t.MaxSamplesPerScene != nil {
		p.MaxSamples = *t.MaxSamplesPerScene
	}
	return p, p.Validate()
}

// Resolved returns a copy with every field populated, defaults filled in.
// This is what we show clients asking what their jobs will actually run with.
func (t *Tuning) Resolved() (*Tuning, error) {
	params, err := t.TrackParams()
	if err != nil {
		return nil, err
	}
	policy, err := t.SamplePolicy()
	if err != nil {
		return nil, err
	}
	extrapolation := string(params.Extrapolation)
	return &Tuning{
		MatchThresholdFactor:    &params.MatchThresholdFactor,
		MinHitsToConfirm:        &params.MinHitsToConfirm,
		MaxMissedBeforeEnd:      &params.MaxMissedBeforeEnd,
		MinTrackDurationSeconds: &params.MinTrackDurationSeconds,
		MinTrackDetections:      &params.MinTrackDetections,
		MinPersistenceRatio:     &params.MinPersistenceRatio,
		ExtrapolationPolicy:     &extrapolation,
		SamplesPerSecond:        &policy.SamplesPerSecond,
		MinSamplesPerScene:      &policy.MinSamples,
		MaxSamplesPerScene:      &policy.MaxSamples,
	}, nil
}

// Validate resolves both parameter sets and reports the first problem.
// Configuration errors are fatal at startup, never discovered mid-scene.
func (t *Tuning) Validate() error {
	if _, err := t.TrackParams(); err != nil {
		return fmt.Errorf("tracking tuning: %w", err)
	}
	if _, err := t.SamplePolicy(); err != nil {
		return fmt.Errorf("sampling tuning: %w", err)
	}
	return nil
}
