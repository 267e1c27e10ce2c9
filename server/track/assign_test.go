package track

import (
	"testing"

	"github.com/reframelab/reframer/pkg/vision"
	"github.com/stretchr/testify/require"
)

func TestMatchGateScalesWithSize(t *testing.T) {
	// Same center displacement of 100 pixels. The small subject's gate is
	// 0.7 * 100 = 70, so it refuses the match. The large subject's gate is
	// 0.7 * 200 = 140, so it accepts.
	small := makeTrack(1, TrackStateConfirmed, makeDet(1, 0, vision.ClassFace, 0, 0, 100, 100))
	dets := []vision.Detection{makeDet(1, 20, vision.ClassFace, 100, 0, 100, 100)}
	matches, unmatchedDets, unmatchedTracks := matchDetections([]*Track{small}, dets, 0.7)
	require.Empty(t, matches)
	require.Equal(t, []int{0}, unmatchedDets)
	require.Equal(t, []int{0}, unmatchedTracks)

	large := makeTrack(2, TrackStateConfirmed, makeDet(1, 0, vision.ClassFace, 0, 0, 200, 200))
	dets = []vision.Detection{makeDet(1, 20, vision.ClassFace, 100, 0, 200, 200)}
	matches, unmatchedDets, unmatchedTracks = matchDetections([]*Track{large}, dets, 0.7)
	require.Len(t, matches, 1)
	require.Equal(t, 0, matches[0].trackIdx)
	require.Equal(t, 0, matches[0].detIdx)
	require.Empty(t, unmatchedDets)
	require.Empty(t, unmatchedTracks)
}

func TestMatchGateIsExclusive(t *testing.T) {
	// Distance exactly equal to the gate is a miss.
	tr := makeTrack(1, TrackStateConfirmed, makeDet(1, 0, vision.ClassFace, 0, 0, 100, 100))
	dets := []vision.Detection{makeDet(1, 20, vision.ClassFace, 50, 0, 100, 100)}
	matches, _, _ := matchDetections([]*Track{tr}, dets, 0.5)
	require.Empty(t, matches)

	// A hair inside the gate is a hit.
	dets[0].Box.X = 49
	matches, _, _ = matchDetections([]*Track{tr}, dets, 0.5)
	require.Len(t, matches, 1)
}

func TestMatchPrefersNearestDetection(t *testing.T) {
	tr := makeTrack(1, TrackStateConfirmed, makeDet(1, 0, vision.ClassFace, 0, 0, 100, 100))
	far := makeDet(1, 20, vision.ClassFace, 50, 0, 100, 100)
	near := makeDet(1, 20, vision.ClassFace, 10, 0, 100, 100)
	matches, unmatchedDets, _ := matchDetections([]*Track{tr}, []vision.Detection{far, near}, 0.7)
	require.Len(t, matches, 1)
	require.Equal(t, 1, matches[0].detIdx)
	require.Equal(t, []int{0}, unmatchedDets)
}

func TestMatchTieBreakIsDeterministic(t *testing.T) {
	// Two detections at identical distance from one track. The earlier
	// detection in input order wins, every time.
	tr := makeTrack(1, TrackStateConfirmed, makeDet(1, 0, vision.ClassFace, 0, 0, 100, 100))
	left := makeDet(1, 20, vision.ClassFace, -30, 0, 100, 100)
	right := makeDet(1, 20, vision.ClassFace, 30, 0, 100, 100)
	for i := 0; i < 20; i++ {
		matches, _, _ := matchDetections([]*Track{tr}, []vision.Detection{left, right}, 0.7)
		require.Len(t, matches, 1)
		require.Equal(t, 0, matches[0].detIdx)
	}

	// Two tracks at identical distance from one detection. The track created
	// earlier wins.
	trA := makeTrack(1, TrackStateConfirmed, makeDet(1, 0, vision.ClassFace, -30, 0, 100, 100))
	trB := makeTrack(2, TrackStateConfirmed, makeDet(1, 0, vision.ClassFace, 30, 0, 100, 100))
	det := makeDet(1, 20, vision.ClassFace, 0, 0, 100, 100)
	for i := 0; i < 20; i++ {
		matches, _, unmatchedTracks := matchDetections([]*Track{trA, trB}, []vision.Detection{det}, 0.7)
		require.Len(t, matches, 1)
		require.Equal(t, 0, matches[0].trackIdx)
		require.Equal(t, []int{1}, unmatchedTracks)
	}
}

func TestMatchRespectsClass(t *testing.T) {
	tr := makeTrack(1, TrackStateConfirmed, makeDet(1, 0, vision.ClassFace, 0, 0, 100, 100))
	dets := []vision.Detection{makeDet(1, 20, vision.ClassPerson, 5, 0, 100, 100)}
	matches, unmatchedDets, unmatchedTracks := matchDetections([]*Track{tr}, dets, 0.7)
	require.Empty(t, matches)
	require.Equal(t, []int{0}, unmatchedDets)
	require.Equal(t, []int{0}, unmatchedTracks)
}

func TestMatchCrossingSubjects(t *testing.T) {
	// Two large subjects walk toward each other. At the next keyframe both
	// detections are inside both gates, but greedy nearest-pair commits the
	// two closest pairs first, so each track keeps its own side.
	trLeft := makeTrack(1, TrackStateConfirmed, makeDet(1, 0, vision.ClassPerson, 0, 0, 400, 400))
	trRight := makeTrack(2, TrackStateConfirmed, makeDet(1, 0, vision.ClassPerson, 300, 0, 400, 400))
	detLeft := makeDet(1, 20, vision.ClassPerson, 80, 0, 400, 400)
	detRight := makeDet(1, 20, vision.ClassPerson, 220, 0, 400, 400)
	matches, unmatchedDets, unmatchedTracks := matchDetections([]*Track{trLeft, trRight}, []vision.Detection{detLeft, detRight}, 0.7)
	require.Len(t, matches, 2)
	require.Empty(t, unmatchedDets)
	require.Empty(t, unmatchedTracks)
	byTrack := map[int]int{}
	for _, m := range matches {
		byTrack[m.trackIdx] = m.detIdx
	}
	require.Equal(t, map[int]int{0: 0, 1: 1}, byTrack)
}

func TestMatchEmptyInputs(t *testing.T) {
	tr := makeTrack(1, TrackStateConfirmed, makeDet(1, 0, vision.ClassFace, 0, 0, 100, 100))
	det := makeDet(1, 20, vision.ClassFace, 0, 0, 100, 100)

	matches, unmatchedDets, unmatchedTracks := matchDetections(nil, []vision.Detection{det}, 0.7)
	require.Empty(t, matches)
	require.Equal(t, []int{0}, unmatchedDets)
	require.Empty(t, unmatchedTracks)

	matches, unmatchedDets, unmatchedTracks = matchDetections([]*Track{tr}, nil, 0.7)
	require.Empty(t, matches)
	require.Empty(t, unmatchedDets)
	require.Equal(t, []int{0}, unmatchedTracks)
}
