// Package resultdb persists processing jobs: their lifecycle state, progress,
// per-scene summaries and a pointer to the result document in blob storage.
package resultdb

import (
	"errors"
	"fmt"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
	"github.com/reframelab/reframer/server/config"
	"github.com/reframelab/reframer/server/format"
	"github.com/reframelab/reframer/server/pipeline"
	"gorm.io/gorm"
)

var ErrJobNotFound = errors.New("Job not found")

// ResultDB stores jobs in SQL
type ResultDB struct {
	log logs.Log
	db  *gorm.DB
}

// Open or create the jobs DB
func Open(log logs.Log, cfg dbh.DBConfig) (*ResultDB, error) {
	log = logs.NewPrefixLogger(log, "resultdb:")
	db, err := dbh.OpenDB(log, cfg, Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open jobs database: %w", err)
	}
	return &ResultDB{
		log: log,
		db:  db,
	}, nil
}

// CreateJob registers a new queued job and returns it.
func (r *ResultDB) CreateJob(video format.VideoMeta, tuning *config.Tuning) (*Job, error) {
	job := &Job{
		PublicID:  uuid.NewString(),
		State:     JobStateQueued,
		CreatedAt: dbh.MakeIntTime(time.Now()),
		VideoMeta: dbh.MakeJSONField(video),
	}
	if tuning != nil {
		job.Tuning = dbh.MakeJSONField(*tuning)
	}
	if err := r.db.Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *ResultDB) SetJobRunning(jobID int64, scenesTotal int) error {
	return r.db.Model(&Job{}).Where("id = ?", jobID).Updates(map[string]any{
		"state":        JobStateRunning,
		"started_at":   dbh.MakeIntTime(time.Now()),
		"scenes_total": scenesTotal,
	}).Error
}

func (r *ResultDB) SetJobProgress(jobID int64, scenesDone int) error {
	return r.db.Model(&Job{}).Where("id = ?", jobID).Update("scenes_done", scenesDone).Error
}

// SetJobComplete marks the job complete and records its per-scene summaries.
func (r *ResultDB) SetJobComplete(jobID int64, resultFile string, stats *pipeline.RunStats, scenes []JobScene) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&Job{}).Where("id = ?", jobID).Updates(map[string]any{
			"state":       JobStateComplete,
			"finished_at": dbh.MakeIntTime(time.Now()),
			"scenes_done": len(scenes),
			"result_file": resultFile,
			"stats":       dbh.MakeJSONField(*stats),
		}).Error
		if err != nil {
			return err
		}
		for i := range scenes {
			scenes[i].JobID = jobID
			if err := tx.Create(&scenes[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ResultDB) SetJobFailed(jobID int64, jobErr error) error {
	return r.db.Model(&Job{}).Where("id = ?", jobID).Updates(map[string]any{
		"state":       JobStateFailed,
		"finished_at": dbh.MakeIntTime(time.Now()),
		"error":       jobErr.Error(),
	}).Error
}

// FailAbandonedJobs marks every queued or running job as failed. Jobs only
// run inside this process, so after a restart any such state is a lie.
// Call this at startup, before accepting new work.
func (r *ResultDB) FailAbandonedJobs() (int64, error) {
	res := r.db.Model(&Job{}).
		Where("state IN ?", []JobState{JobStateQueued, JobStateRunning}).
		Updates(map[string]any{
			"state":       JobStateFailed,
			"finished_at": dbh.MakeIntTime(time.Now()),
			"error":       "Interrupted by server restart",
		})
	return res.RowsAffected, res.Error
}

// GetJob fetches a job by its public ID.
func (r *ResultDB) GetJob(publicID string) (*Job, error) {
	job := &Job{}
	err := r.db.Where("public_id = ?", publicID).First(job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	} else if err != nil {
		return nil, err
	}
	return job, nil
}

// GetJobScenes fetches the per-scene summaries of a job, in scene order.
func (r *ResultDB) GetJobScenes(jobID int64) ([]JobScene, error) {
	scenes := []JobScene{}
	if err := r.db.Where("job_id = ?", jobID).Order("start_frame").Find(&scenes).Error; err != nil {
		return nil, err
	}
	return scenes, nil
}

// RecentJobs returns the newest jobs, newest first.
func (r *ResultDB) RecentJobs(limit int) ([]Job, error) {
	jobs := []Job{}
	if err := r.db.Order("created_at DESC, id DESC").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
