package track

import (
	"fmt"

	"github.com/cyclopcam/logs"
	"github.com/reframelab/reframer/pkg/vision"
)

// Tracker owns the track registry of one scene. It is fed keyframes in
// strictly increasing frame order, and closes all surviving tracks when the
// scene ends. Not safe for concurrent use; run one Tracker per scene.
type Tracker struct {
	log    logs.Log
	params Params
	scene  vision.Scene

	tracks []*Track // every track ever created, in creation order
	active []int    // indices into tracks of tracks that can still match
	nextID int64

	lastKeyframe int
	sawKeyframe  bool
	ended        bool

	keyframesObserved int
	droppedMalformed  int
	droppedBoundary   int
	confirmed         int
}

func NewTracker(log logs.Log, params Params, scene vision.Scene) (*Tracker, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid tracking parameters: %w", err)
	}
	if scene.EndFrame < scene.StartFrame {
		return nil, fmt.Errorf("Scene %v has endFrame %v before startFrame %v", scene.ID, scene.EndFrame, scene.StartFrame)
	}
	return &Tracker{
		log:    logs.NewPrefixLogger(log, fmt.Sprintf("Scene %v:", scene.ID)),
		params: params,
		scene:  scene,
	}, nil
}

// ObserveKeyframe advances the scene by one keyframe. dets are the detections
// sampled at 'frame'; an empty slice is a valid keyframe where every active
// track ages by one miss. Keyframes must arrive in strictly increasing frame
// order, inside the scene.
//
// Malformed detections (bad dimensions or score) are dropped and counted;
// they never abort the scene.
func (t *Tracker) ObserveKeyframe(frame int, dets []vision.Detection) error {
	if t.ended {
		return fmt.Errorf("ObserveKeyframe after EndScene")
	}
	if !t.scene.Contains(frame) {
		return fmt.Errorf("Keyframe %v is outside scene %v [%v..%v]", frame, t.scene.ID, t.scene.StartFrame, t.scene.EndFrame)
	}
	if t.sawKeyframe && frame <= t.lastKeyframe {
		return fmt.Errorf("Keyframe %v is not after previous keyframe %v", frame, t.lastKeyframe)
	}
	t.sawKeyframe = true
	t.lastKeyframe = frame
	t.keyframesObserved++

	valid := make([]vision.Detection, 0, len(dets))
	for i := range dets {
		d := dets[i]
		if !d.Valid() {
			t.droppedMalformed++
			t.log.Debugf("Dropping malformed detection at frame %v (box %v,%v %vx%v score %v)", frame, d.Box.X, d.Box.Y, d.Box.Width, d.Box.Height, d.Score)
			continue
		}
		if d.FrameIndex != frame {
			t.droppedBoundary++
			t.log.Warnf("Detection frame %v does not match keyframe %v. Dropping", d.FrameIndex, frame)
			continue
		}
		valid = append(valid, d)
	}

	activeTracks := make([]*Track, len(t.active))
	for i, idx := range t.active {
		activeTracks[i] = t.tracks[idx]
	}

	matches, unmatchedDets, unmatchedTracks := matchDetections(activeTracks, valid, t.params.MatchThresholdFactor)

	for _, m := range matches {
		tr := activeTracks[m.trackIdx]
		tr.append(valid[m.detIdx])
		t.maybeConfirm(tr)
	}

	// Unmatched tracks age by one keyframe. Tracks that have now been missing
	// for too many keyframes are closed.
	for _, ti := range unmatchedTracks {
		activeTracks[ti].MissedCount++
	}
	stillActive := make([]int, 0, len(t.active))
	for _, idx := range t.active {
		tr := t.tracks[idx]
		if tr.MissedCount > t.params.MaxMissedBeforeEnd {
			t.endTrack(tr)
		} else {
			stillActive = append(stillActive, idx)
		}
	}
	t.active = stillActive

	// Unmatched detections spawn new tentative tracks, in input order so that
	// track IDs are deterministic.
	for _, di := range unmatchedDets {
		d := valid[di]
		t.nextID++
		tr := &Track{
			ID:            t.nextID,
			SceneID:       t.scene.ID,
			Class:         d.Class,
			State:         TrackStateTentative,
			Detections:    []vision.Detection{d},
			CreatedFrame:  frame,
			LastSeenFrame: frame,
		}
		t.tracks = append(t.tracks, tr)
		t.active = append(t.active, len(t.tracks)-1)
		t.maybeConfirm(tr)
	}

	return nil
}

// EndScene closes every remaining track and returns the ended tracks in
// creation order. Tentative tracks that never confirmed are discarded.
// The Tracker must not be used after EndScene.
func (t *Tracker) EndScene() []*Track {
	for _, idx := range t.active {
		t.endTrack(t.tracks[idx])
	}
	t.active = nil
	t.ended = true

	ended := []*Track{}
	for _, tr := range t.tracks {
		if tr.State == TrackStateEnded {
			ended = append(ended, tr)
		}
	}
	t.log.Infof("Scene complete: %v keyframes, %v tracks created, %v confirmed, %v malformed detections dropped", t.keyframesObserved, len(t.tracks), t.confirmed, t.droppedMalformed)
	return ended
}

func (t *Tracker) maybeConfirm(tr *Track) {
	if tr.State == TrackStateTentative && len(tr.Detections) >= t.params.MinHitsToConfirm {
		tr.State = TrackStateConfirmed
		t.confirmed++
	}
}

// endTrack transitions a confirmed track to Ended. A tentative track stays
// tentative, which excludes it from all output.
func (t *Tracker) endTrack(tr *Track) {
	if tr.State == TrackStateConfirmed {
		tr.State = TrackStateEnded
	}
}
