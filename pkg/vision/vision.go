// Package vision holds the shared vocabulary of the reframing pipeline:
// detection boxes, subject classes and scene boundaries.
package vision

import (
	"encoding/json"
	"fmt"

	"github.com/chewxy/math32"
)

// Class of a detected subject. This is a closed set, because the downstream
// reframing rules (framing priority, matching, filtering) are written per class.
type Class int32

const (
	ClassFace Class = iota
	ClassPerson
)

var classNames = []string{"face", "person"}

// AllClasses lists every valid class, in stable order.
var AllClasses = []Class{ClassFace, ClassPerson}

func (c Class) String() string {
	if int(c) < 0 || int(c) >= len(classNames) {
		return fmt.Sprintf("class(%v)", int32(c))
	}
	return classNames[c]
}

func ParseClass(s string) (Class, error) {
	for i, name := range classNames {
		if s == name {
			return Class(i), nil
		}
	}
	return 0, fmt.Errorf("Unknown subject class '%v'", s)
}

func (c Class) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Class) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseClass(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Detection is a single-frame, single-subject bounding box produced by the
// external detector. Immutable once created.
type Detection struct {
	SceneID    int64   `json:"sceneId"`
	FrameIndex int     `json:"frameIndex"`
	Class      Class   `json:"class"`
	Box        Box     `json:"box"`
	Score      float32 `json:"score"`
}

// Valid is false for detections that must be excluded from matching:
// non-finite or non-positive box dimensions, or a score outside [0,1].
func (d *Detection) Valid() bool {
	if !d.Box.IsFinite() {
		return false
	}
	if d.Box.Width <= 0 || d.Box.Height <= 0 {
		return false
	}
	if math32.IsNaN(d.Score) || d.Score < 0 || d.Score > 1 {
		return false
	}
	return true
}

// Scene is a contiguous frame range with no camera cut, supplied by external
// shot segmentation. StartFrame and EndFrame are both inclusive.
type Scene struct {
	ID         int64 `json:"id"`
	StartFrame int   `json:"startFrame"`
	EndFrame   int   `json:"endFrame"`
}

func (s *Scene) Contains(frame int) bool {
	return frame >= s.StartFrame && frame <= s.EndFrame
}

// NumFrames includes both endpoints, so a scene [0,100] has 101 frames.
func (s *Scene) NumFrames() int {
	return s.EndFrame - s.StartFrame + 1
}

func (s *Scene) DurationSeconds(fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(s.NumFrames()) / fps
}

// ValidateScenes checks that scenes are ordered, non-overlapping and have
// sane frame ranges.
func ValidateScenes(scenes []Scene) error {
	for i := range scenes {
		s := &scenes[i]
		if s.EndFrame < s.StartFrame {
			return fmt.Errorf("Scene %v has endFrame %v before startFrame %v", s.ID, s.EndFrame, s.StartFrame)
		}
		if i > 0 && s.StartFrame <= scenes[i-1].EndFrame {
			return fmt.Errorf("Scene %v overlaps scene %v", s.ID, scenes[i-1].ID)
		}
	}
	return nil
}
