package track

import (
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
	"github.com/chewxy/math32"
	"github.com/reframelab/reframer/pkg/vision"
)

// candidatePair couples an active track with a detection whose center lies
// within the track's adaptive gate.
type candidatePair struct {
	trackIdx int
	detIdx   int
	distance float32
}

// matchDetections produces a one-to-one matching between active tracks and the
// detections of one keyframe, plus the leftovers on both sides.
//
// A track only accepts a detection of its own class, and only if the distance
// between the detection's center and the track's last known center is below
// the track's gate: MatchThresholdFactor * max(width, height) of the last box.
// Candidate pairs are committed greedily in ascending distance order. Ties are
// broken by track creation order, then detection input order, so the result is
// deterministic for identical input.
//
// Greedy nearest-pair is not a globally optimal assignment, but it is stable
// in the crossing-subjects case: the closest pair wins first, which keeps two
// crossing tracks continuous instead of swapping them.
func matchDetections(tracks []*Track, dets []vision.Detection, matchThresholdFactor float32) (matches []candidatePair, unmatchedDets []int, unmatchedTracks []int) {
	if len(tracks) == 0 || len(dets) == 0 {
		for i := range dets {
			unmatchedDets = append(unmatchedDets, i)
		}
		for i := range tracks {
			unmatchedTracks = append(unmatchedTracks, i)
		}
		return nil, unmatchedDets, unmatchedTracks
	}

	// Spatial index over the detection boxes, so that each track only scans
	// detections near its gate window instead of every detection. The index
	// is an optimization only: the window is a superset of the gate circle,
	// and the exact distance test below decides membership.
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(dets))
	for i := range dets {
		b := dets[i].Box
		fb.Add(floorI32(b.X), floorI32(b.Y), ceilI32(b.X2()), ceilI32(b.Y2()))
	}
	fb.Finish()

	candidates := []candidatePair{}
	nearby := []int{}
	for ti, tr := range tracks {
		last := tr.LastBox()
		center := last.Center()
		gate := matchThresholdFactor * last.MaxDim()
		nearby = fb.SearchFast(floorI32(center.X-gate), floorI32(center.Y-gate), ceilI32(center.X+gate), ceilI32(center.Y+gate), nearby)
		for _, di := range nearby {
			if dets[di].Class != tr.Class {
				continue
			}
			distance := dets[di].Box.Center().Distance(center)
			if distance < gate {
				candidates = append(candidates, candidatePair{trackIdx: ti, detIdx: di, distance: distance})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		if a.trackIdx != b.trackIdx {
			return a.trackIdx < b.trackIdx
		}
		return a.detIdx < b.detIdx
	})

	trackTaken := make([]bool, len(tracks))
	detTaken := make([]bool, len(dets))
	for _, c := range candidates {
		if trackTaken[c.trackIdx] || detTaken[c.detIdx] {
			continue
		}
		trackTaken[c.trackIdx] = true
		detTaken[c.detIdx] = true
		matches = append(matches, c)
	}

	for i := range dets {
		if !detTaken[i] {
			unmatchedDets = append(unmatchedDets, i)
		}
	}
	for i := range tracks {
		if !trackTaken[i] {
			unmatchedTracks = append(unmatchedTracks, i)
		}
	}
	return matches, unmatchedDets, unmatchedTracks
}

func floorI32(v float32) int32 {
	return int32(math32.Floor(v))
}

func ceilI32(v float32) int32 {
	return int32(math32.Ceil(v))
}
