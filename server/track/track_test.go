package track

import (
	"github.com/reframelab/reframer/pkg/vision"
)

// makeDet builds a valid detection for tests.
func makeDet(sceneID int64, frame int, class vision.Class, x, y, w, h float32) vision.Detection {
	return vision.Detection{
		SceneID:    sceneID,
		FrameIndex: frame,
		Class:      class,
		Box:        vision.Box{X: x, Y: y, Width: w, Height: h},
		Score:      0.9,
	}
}

// makeTrack builds an ended track from a list of detections.
func makeTrack(id int64, state TrackState, dets ...vision.Detection) *Track {
	tr := &Track{
		ID:            id,
		SceneID:       dets[0].SceneID,
		Class:         dets[0].Class,
		State:         state,
		Detections:    dets,
		CreatedFrame:  dets[0].FrameIndex,
		LastSeenFrame: dets[len(dets)-1].FrameIndex,
	}
	return tr
}
