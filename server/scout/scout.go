// Package scout decides which frames of a scene get sampled for detection.
// The tracker interprets every planned frame as a keyframe, including the
// ones where detection finds nothing, so the plan drives both where we look
// and how fast unseen tracks age.
package scout

import (
	"fmt"
	"math"

	"github.com/reframelab/reframer/pkg/gen"
	"github.com/reframelab/reframer/pkg/vision"
	"gonum.org/v1/gonum/floats"
)

// Policy controls how densely a scene is sampled.
type Policy struct {
	// Target number of sampled keyframes per second of scene footage.
	SamplesPerSecond float64

	// Never plan fewer keyframes than this, no matter how short the scene.
	// A scene with fewer frames than MinSamples samples every frame.
	MinSamples int

	// Never plan more keyframes than this, no matter how long the scene.
	MaxSamples int
}

func DefaultPolicy() Policy {
	return Policy{
		SamplesPerSecond: 1.0,
		MinSamples:       4,
		MaxSamples:       60,
	}
}

func (p *Policy) Validate() error {
	if p.SamplesPerSecond <= 0 {
		return fmt.Errorf("samples_per_second must be greater than zero (have %v)", p.SamplesPerSecond)
	}
	if p.MinSamples < 1 {
		return fmt.Errorf("min_samples_per_scene must be at least 1 (have %v)", p.MinSamples)
	}
	if p.MaxSamples < p.MinSamples {
		return fmt.Errorf("max_samples_per_scene %v is less than min_samples_per_scene %v", p.MaxSamples, p.MinSamples)
	}
	return nil
}

// Plan returns the frames of the scene to sample, evenly spaced, strictly
// increasing, always including the scene's first and last frame.
// If fps is unknown (zero or negative), the plan falls back to MinSamples.
func (p *Policy) Plan(scene vision.Scene, fps float64) []int {
	want := p.MinSamples
	if fps > 0 {
		want = int(math.Ceil(scene.DurationSeconds(fps) * p.SamplesPerSecond))
	}
	want = gen.Clamp(want, p.MinSamples, p.MaxSamples)
	want = gen.Min(want, scene.NumFrames())
	if want <= 1 {
		return []int{scene.StartFrame}
	}

	pts := make([]float64, want)
	floats.Span(pts, float64(scene.StartFrame), float64(scene.EndFrame))
	frames := make([]int, 0, want)
	last := scene.StartFrame - 1
	for _, x := range pts {
		f := int(math.Round(x))
		if f > last {
			frames = append(frames, f)
			last = f
		}
	}
	return frames
}
