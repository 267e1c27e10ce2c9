package track

import (
	"github.com/reframelab/reframer/pkg/vision"
)

// FrameBox is one entry of a dense per-frame trajectory.
type FrameBox struct {
	FrameIndex int        `json:"frameIndex"`
	Box        vision.Box `json:"box"`
}

// FixedBoxOutput is the static form of a track: the minimal axis-aligned box
// containing every member detection's box.
type FixedBoxOutput struct {
	TrackID int64        `json:"trackId"`
	SceneID int64        `json:"sceneId"`
	Class   vision.Class `json:"class"`
	Box     vision.Box   `json:"box"`
}

// DynamicTrackOutput is the dense form of a track: one box per scene frame,
// interpolated between detections and extrapolated out to the scene edges.
type DynamicTrackOutput struct {
	TrackID int64        `json:"trackId"`
	SceneID int64        `json:"sceneId"`
	Class   vision.Class `json:"class"`
	Frames  []FrameBox   `json:"frames"`
}

// FixedBox computes the union of every member detection's box.
func FixedBox(tr *Track) vision.Box {
	box := tr.Detections[0].Box
	for _, d := range tr.Detections[1:] {
		box = box.Union(d.Box)
	}
	return box
}

// DynamicTrack computes a box for every frame of the scene.
//
// Between two consecutive detections, each coordinate is interpolated
// linearly and independently. On a frame where the track has a detection, the
// emitted box is that detection's box, exactly: no smoothing at sample
// points. Frames before the first detection and after the last are filled
// according to the extrapolation policy.
func DynamicTrack(tr *Track, scene vision.Scene, policy ExtrapolationPolicy) []FrameBox {
	dets := tr.Detections
	first := dets[0].FrameIndex
	last := dets[len(dets)-1].FrameIndex

	frames := make([]FrameBox, 0, scene.NumFrames())
	seg := 0
	for f := scene.StartFrame; f <= scene.EndFrame; f++ {
		var box vision.Box
		switch {
		case f < first:
			box = extrapolateEdge(dets[0], dets[min(1, len(dets)-1)], f, policy)
		case f > last:
			box = extrapolateEdge(dets[max(len(dets)-2, 0)], dets[len(dets)-1], f, policy)
		default:
			for seg+1 < len(dets) && f >= dets[seg+1].FrameIndex {
				seg++
			}
			if f == dets[seg].FrameIndex {
				box = dets[seg].Box
			} else {
				a, b := &dets[seg], &dets[seg+1]
				t := float32(f-a.FrameIndex) / float32(b.FrameIndex-a.FrameIndex)
				box = a.Box.Lerp(b.Box, t)
			}
		}
		frames = append(frames, FrameBox{FrameIndex: f, Box: box})
	}
	return frames
}

// extrapolateEdge fills frames outside the track's detection span. With the
// hold policy the nearest detection box repeats unchanged. With the
// constant-velocity policy the per-frame delta of the segment (a,b) continues
// past its ends, with dimensions clamped so a long run cannot invert the box.
func extrapolateEdge(a, b vision.Detection, f int, policy ExtrapolationPolicy) vision.Box {
	if policy != ExtrapolateConstantVelocity || a.FrameIndex == b.FrameIndex {
		if f < a.FrameIndex {
			return a.Box
		}
		return b.Box
	}
	t := float32(f-a.FrameIndex) / float32(b.FrameIndex-a.FrameIndex)
	box := a.Box.Lerp(b.Box, t)
	box.Width = max(box.Width, 1)
	box.Height = max(box.Height, 1)
	return box
}

// Synthesize produces both output forms for each track, preserving track
// order. The returned slices are non-nil even when empty, so an empty scene
// serializes as [] rather than null.
func Synthesize(tracks []*Track, scene vision.Scene, policy ExtrapolationPolicy) ([]FixedBoxOutput, []DynamicTrackOutput) {
	fixed := []FixedBoxOutput{}
	dynamic := []DynamicTrackOutput{}
	for _, tr := range tracks {
		fixed = append(fixed, FixedBoxOutput{
			TrackID: tr.ID,
			SceneID: tr.SceneID,
			Class:   tr.Class,
			Box:     FixedBox(tr),
		})
		dynamic = append(dynamic, DynamicTrackOutput{
			TrackID: tr.ID,
			SceneID: tr.SceneID,
			Class:   tr.Class,
			Frames:  DynamicTrack(tr, scene, policy),
		})
	}
	return fixed, dynamic
}
