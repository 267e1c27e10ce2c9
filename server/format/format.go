// Package format shapes raw tracking output into the delivery document that
// clients consume. Pixel boxes become fractions of the frame, so the consumer
// never needs to know the source resolution, and every scene carries wall
// clock timestamps alongside frame numbers.
package format

import (
	"fmt"

	"github.com/reframelab/reframer/pkg/gen"
	"github.com/reframelab/reframer/pkg/vision"
	"github.com/reframelab/reframer/server/track"
)

// VideoMeta describes the source footage.
type VideoMeta struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
}

func (m *VideoMeta) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("Video dimensions %vx%v are invalid", m.Width, m.Height)
	}
	if m.FPS <= 0 {
		return fmt.Errorf("Video fps %v is invalid", m.FPS)
	}
	return nil
}

// Result is the complete delivery document for one video.
type Result struct {
	Video  VideoMeta     `json:"video"`
	Scenes []SceneResult `json:"scenes"`
}

type SceneResult struct {
	SceneID    int64   `json:"sceneId"`
	StartFrame int     `json:"startFrame"`
	EndFrame   int     `json:"endFrame"`
	StartTime  float64 `json:"startTime"` // Seconds, start of the first frame
	EndTime    float64 `json:"endTime"`   // Seconds, end of the last frame

	FixedBoxes    []FixedBox       `json:"fixedBoxes"`
	DynamicTracks []DynamicTrack   `json:"dynamicTracks"`
	Stats         track.SceneStats `json:"stats"`
}

// FixedBox is one subject's static crop window.
type FixedBox struct {
	TrackID int64        `json:"trackId"`
	Class   vision.Class `json:"class"`
	Box     [4]float32   `json:"box"` // x, y, width, height as fractions of the frame
}

// DynamicTrack is one subject's per-frame trajectory. Frames are dense and
// always span the whole scene.
type DynamicTrack struct {
	TrackID int64        `json:"trackId"`
	Class   vision.Class `json:"class"`
	Frames  []FrameBox   `json:"frames"`
}

// FrameBox is a track's position on one frame.
type FrameBox struct {
	FrameIndex int        `json:"frameIndex"`
	Time       float64    `json:"time"` // Seconds
	Box        [4]float32 `json:"box"`
}

// Build assembles the delivery document. outputs[i] is the tracking result of
// scenes[i].
func Build(meta VideoMeta, scenes []vision.Scene, outputs []*track.SceneOutput) (*Result, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if len(scenes) != len(outputs) {
		return nil, fmt.Errorf("Have %v scenes but %v scene outputs", len(scenes), len(outputs))
	}

	result := &Result{
		Video:  meta,
		Scenes: make([]SceneResult, 0, len(scenes)),
	}
	for i, scene := range scenes {
		out := outputs[i]
		if out.SceneID != scene.ID {
			return nil, fmt.Errorf("Scene output %v does not belong to scene %v", out.SceneID, scene.ID)
		}
		sr := SceneResult{
			SceneID:    scene.ID,
			StartFrame: scene.StartFrame,
			EndFrame:   scene.EndFrame,
			StartTime:  float64(scene.StartFrame) / meta.FPS,
			EndTime:    float64(scene.EndFrame+1) / meta.FPS,
			FixedBoxes:    make([]FixedBox, 0, len(out.FixedBoxes)),
			DynamicTracks: make([]DynamicTrack, 0, len(out.DynamicTracks)),
			Stats:         out.Stats,
		}
		for _, fb := range out.FixedBoxes {
			sr.FixedBoxes = append(sr.FixedBoxes, FixedBox{
				TrackID: fb.TrackID,
				Class:   fb.Class,
				Box:     normBox(fb.Box, meta),
			})
		}
		for _, dt := range out.DynamicTracks {
			frames := make([]FrameBox, 0, len(dt.Frames))
			for _, fr := range dt.Frames {
				frames = append(frames, FrameBox{
					FrameIndex: fr.FrameIndex,
					Time:       float64(fr.FrameIndex) / meta.FPS,
					Box:        normBox(fr.Box, meta),
				})
			}
			sr.DynamicTracks = append(sr.DynamicTracks, DynamicTrack{
				TrackID: dt.TrackID,
				Class:   dt.Class,
				Frames:  frames,
			})
		}
		result.Scenes = append(result.Scenes, sr)
	}
	return result, nil
}

// normBox converts a pixel box to frame fractions. Detectors sometimes emit
// boxes that poke past the frame edge, so the result is clamped back inside
// the unit square.
func normBox(b vision.Box, meta VideoMeta) [4]float32 {
	w := float32(meta.Width)
	h := float32(meta.Height)
	x := gen.Clamp(b.X/w, 0, 1)
	y := gen.Clamp(b.Y/h, 0, 1)
	return [4]float32{
		x,
		y,
		gen.Clamp(b.Width/w, 0, 1-x),
		gen.Clamp(b.Height/h, 0, 1-y),
	}
}
