// Package track turns a sparse, per-keyframe stream of subject detections into
// persistent, filtered tracks, and synthesizes the two delivery forms of each
// track: a static union box and a dense per-frame trajectory.
//
// All state is scoped to a single scene. Separate scenes can be processed on
// separate goroutines with no synchronization.
package track

import (
	"github.com/reframelab/reframer/pkg/vision"
)

type TrackState string

const (
	// TrackStateTentative is the initial state. A tentative track that ends
	// before confirming is silently discarded.
	TrackStateTentative TrackState = "tentative"

	// TrackStateConfirmed means the track has accumulated enough detections
	// to be trusted as a real subject.
	TrackStateConfirmed TrackState = "confirmed"

	// TrackStateEnded is terminal. Only confirmed tracks reach it.
	TrackStateEnded TrackState = "ended"
)

// Track is a temporally ordered set of detections believed to belong to the
// same physical subject within one scene. Owned by the Tracker while the scene
// is processed, and read-only afterwards.
type Track struct {
	ID            int64              `json:"id"`
	SceneID       int64              `json:"sceneId"`
	Class         vision.Class       `json:"class"`
	State         TrackState         `json:"state"`
	Detections    []vision.Detection `json:"detections"` // strictly increasing FrameIndex, never two per frame
	MissedCount   int                `json:"missedCount"`
	CreatedFrame  int                `json:"createdFrame"`
	LastSeenFrame int                `json:"lastSeenFrame"`
}

// LastBox is the track's predicted position: its last known box.
func (t *Track) LastBox() vision.Box {
	return t.Detections[len(t.Detections)-1].Box
}

func (t *Track) FirstFrame() int {
	return t.Detections[0].FrameIndex
}

func (t *Track) LastFrame() int {
	return t.Detections[len(t.Detections)-1].FrameIndex
}

// SpanFrames is the number of frames between the first and last detection.
func (t *Track) SpanFrames() int {
	return t.LastFrame() - t.FirstFrame()
}

func (t *Track) append(det vision.Detection) {
	t.Detections = append(t.Detections, det)
	t.LastSeenFrame = det.FrameIndex
	t.MissedCount = 0
}
