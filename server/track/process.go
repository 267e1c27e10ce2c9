package track

import (
	"fmt"
	"sort"

	"github.com/cyclopcam/logs"
	"github.com/reframelab/reframer/pkg/vision"
)

// SceneStats summarizes one scene run, for logging and persistence.
type SceneStats struct {
	Keyframes         int `json:"keyframes"`
	DetectionsIn      int `json:"detectionsIn"`
	DroppedMalformed  int `json:"droppedMalformed"`
	DroppedOutOfScene int `json:"droppedOutOfScene"`
	TracksCreated     int `json:"tracksCreated"`
	TracksConfirmed   int `json:"tracksConfirmed"`
	TracksEmitted     int `json:"tracksEmitted"`
}

// SceneOutput is the complete tracking result of one scene.
type SceneOutput struct {
	SceneID       int64                `json:"sceneId"`
	FixedBoxes    []FixedBoxOutput     `json:"fixedBoxes"`
	DynamicTracks []DynamicTrackOutput `json:"dynamicTracks"`
	Stats         SceneStats           `json:"stats"`
}

// ProcessScene runs the full per-scene computation: group detections by
// keyframe, link them into tracks, age and close tracks, filter out weak
// tracks, and synthesize the fixed and dynamic outputs.
//
// plan is the scene's sampled keyframe list. Keyframes with no detections
// still age the active tracks, which is how a track's missed count reflects
// the number of keyframes it went unseen, not the number of detection
// batches. Detections on frames outside the plan are processed on their own
// frames, merged into the keyframe order.
//
// Detections that violate the scene contract (wrong scene ID, or a frame
// outside the scene range) are dropped and logged; they mean the upstream
// detector and segmenter disagree, which is not fatal to this scene.
func ProcessScene(log logs.Log, params Params, scene vision.Scene, fps float64, plan []int, dets []vision.Detection) (*SceneOutput, error) {
	tracker, err := NewTracker(log, params, scene)
	if err != nil {
		return nil, err
	}

	stats := SceneStats{DetectionsIn: len(dets)}

	byFrame := map[int][]vision.Detection{}
	for i := range dets {
		d := dets[i]
		if d.SceneID != scene.ID {
			stats.DroppedOutOfScene++
			tracker.log.Warnf("Detection at frame %v belongs to scene %v, not scene %v. Dropping", d.FrameIndex, d.SceneID, scene.ID)
			continue
		}
		if !scene.Contains(d.FrameIndex) {
			stats.DroppedOutOfScene++
			tracker.log.Warnf("Detection at frame %v is outside scene range [%v..%v]. Dropping", d.FrameIndex, scene.StartFrame, scene.EndFrame)
			continue
		}
		byFrame[d.FrameIndex] = append(byFrame[d.FrameIndex], d)
	}

	stepSet := map[int]bool{}
	for _, f := range plan {
		if !scene.Contains(f) {
			return nil, fmt.Errorf("Keyframe plan contains frame %v, which is outside scene %v [%v..%v]", f, scene.ID, scene.StartFrame, scene.EndFrame)
		}
		stepSet[f] = true
	}
	for f := range byFrame {
		stepSet[f] = true
	}
	steps := make([]int, 0, len(stepSet))
	for f := range stepSet {
		steps = append(steps, f)
	}
	sort.Ints(steps)

	for _, f := range steps {
		if err := tracker.ObserveKeyframe(f, byFrame[f]); err != nil {
			return nil, err
		}
	}

	ended := tracker.EndScene()
	kept := FilterTracks(ended, params, fps, len(plan))
	fixed, dynamic := Synthesize(kept, scene, params.Extrapolation)

	stats.Keyframes = tracker.keyframesObserved
	stats.DroppedMalformed = tracker.droppedMalformed
	stats.DroppedOutOfScene += tracker.droppedBoundary
	stats.TracksCreated = len(tracker.tracks)
	stats.TracksConfirmed = tracker.confirmed
	stats.TracksEmitted = len(kept)

	return &SceneOutput{
		SceneID:       scene.ID,
		FixedBoxes:    fixed,
		DynamicTracks: dynamic,
		Stats:         stats,
	}, nil
}
