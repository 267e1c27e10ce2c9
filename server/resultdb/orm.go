package resultdb

import (
	"github.com/cyclopcam/dbh"
	"github.com/reframelab/reframer/server/config"
	"github.com/reframelab/reframer/server/format"
	"github.com/reframelab/reframer/server/pipeline"
	"github.com/reframelab/reframer/server/track"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

type JobState string

const (
	JobStateQueued   JobState = "queued"
	JobStateRunning  JobState = "running"
	JobStateComplete JobState = "complete"
	JobStateFailed   JobState = "failed"
)

// Job is one processing request, from submission to result.
type Job struct {
	BaseModel
	PublicID    string      `json:"publicId"` // Opaque ID handed to clients, so DB row IDs stay internal
	State       JobState    `json:"state"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   dbh.IntTime `json:"createdAt"`
	StartedAt   dbh.IntTime `json:"startedAt,omitempty"`
	FinishedAt  dbh.IntTime `json:"finishedAt,omitempty"`
	ScenesTotal int         `json:"scenesTotal"`
	ScenesDone  int         `json:"scenesDone"`
	ResultFile  string      `json:"-"` // Name of the result document in blob storage

	Tuning    *dbh.JSONField[config.Tuning]     `json:"tuning,omitempty"`
	Stats     *dbh.JSONField[pipeline.RunStats] `json:"stats,omitempty"`
	VideoMeta *dbh.JSONField[format.VideoMeta]  `json:"video,omitempty"`
}

func (j *Job) Finished() bool {
	return j.State == JobStateComplete || j.State == JobStateFailed
}

// JobScene is the per-scene summary of a finished job.
type JobScene struct {
	BaseModel
	JobID         int64 `json:"-"`
	SceneID       int64 `json:"sceneId"`
	StartFrame    int   `json:"startFrame"`
	EndFrame      int   `json:"endFrame"`
	TracksEmitted int   `json:"tracksEmitted"`

	Stats *dbh.JSONField[track.SceneStats] `json:"stats,omitempty"`
}
