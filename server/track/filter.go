package track

import (
	"math"
	"sort"
)

// FilterTracks drops ended tracks whose evidence is too sparse to trust, and
// orders the survivors by creation frame then track ID so downstream output
// is deterministic.
//
// A track survives when all of these hold:
//   - it has at least MinTrackDetections detections,
//   - it was detected in at least MinPersistenceRatio of the scene's sampled
//     keyframes (planSamples; pass 0 to skip),
//   - its first-to-last detection span is at least MinTrackDurationSeconds.
func FilterTracks(ended []*Track, params Params, fps float64, planSamples int) []*Track {
	minDetections := params.MinTrackDetections
	if params.MinPersistenceRatio > 0 && planSamples > 0 {
		ratioMin := int(math.Ceil(params.MinPersistenceRatio * float64(planSamples)))
		if ratioMin > minDetections {
			minDetections = ratioMin
		}
	}

	kept := []*Track{}
	for _, tr := range ended {
		if tr.State != TrackStateEnded {
			continue
		}
		if len(tr.Detections) < minDetections {
			continue
		}
		if fps > 0 && float64(tr.SpanFrames())/fps < params.MinTrackDurationSeconds {
			continue
		}
		kept = append(kept, tr)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].CreatedFrame != kept[j].CreatedFrame {
			return kept[i].CreatedFrame < kept[j].CreatedFrame
		}
		return kept[i].ID < kept[j].ID
	})
	return kept
}
