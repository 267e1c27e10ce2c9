package resultdb

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/reframelab/reframer/server/config"
	"github.com/reframelab/reframer/server/format"
	"github.com/reframelab/reframer/server/pipeline"
	"github.com/reframelab/reframer/server/track"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *ResultDB {
	logger := logs.NewTestingLog(t)
	rdb, err := Open(logger, dbh.MakeSqliteConfig(filepath.Join(t.TempDir(), "jobs.sqlite")))
	require.NoError(t, err)
	return rdb
}

func testMeta() format.VideoMeta {
	return format.VideoMeta{Width: 1920, Height: 1080, FPS: 25}
}

func TestJobLifecycle(t *testing.T) {
	rdb := openTestDB(t)

	hits := 3
	job, err := rdb.CreateJob(testMeta(), &config.Tuning{MinHitsToConfirm: &hits})
	require.NoError(t, err)
	require.NotEmpty(t, job.PublicID)
	require.Equal(t, JobStateQueued, job.State)
	require.False(t, job.Finished())

	require.NoError(t, rdb.SetJobRunning(job.ID, 2))
	require.NoError(t, rdb.SetJobProgress(job.ID, 1))

	fetched, err := rdb.GetJob(job.PublicID)
	require.NoError(t, err)
	require.Equal(t, JobStateRunning, fetched.State)
	require.Equal(t, 2, fetched.ScenesTotal)
	require.Equal(t, 1, fetched.ScenesDone)
	require.Equal(t, 3, *fetched.Tuning.Data.MinHitsToConfirm)
	require.Equal(t, 1920, fetched.VideoMeta.Data.Width)

	scenes := []JobScene{
		{SceneID: 1, StartFrame: 0, EndFrame: 100, TracksEmitted: 1, Stats: dbh.MakeJSONField(track.SceneStats{Keyframes: 5})},
		{SceneID: 2, StartFrame: 101, EndFrame: 250, TracksEmitted: 2, Stats: dbh.MakeJSONField(track.SceneStats{Keyframes: 6})},
	}
	stats := &pipeline.RunStats{Scenes: 2, TracksEmitted: 3}
	require.NoError(t, rdb.SetJobComplete(job.ID, "jobs/"+job.PublicID+"/result.json", stats, scenes))

	fetched, err = rdb.GetJob(job.PublicID)
	require.NoError(t, err)
	require.Equal(t, JobStateComplete, fetched.State)
	require.True(t, fetched.Finished())
	require.Equal(t, 2, fetched.ScenesDone)
	require.Equal(t, "jobs/"+job.PublicID+"/result.json", fetched.ResultFile)
	require.Equal(t, 3, fetched.Stats.Data.TracksEmitted)
	require.False(t, fetched.FinishedAt.IsZero())

	gotScenes, err := rdb.GetJobScenes(job.ID)
	require.NoError(t, err)
	require.Len(t, gotScenes, 2)
	require.Equal(t, int64(1), gotScenes[0].SceneID)
	require.Equal(t, 5, gotScenes[0].Stats.Data.Keyframes)
}

func TestJobFailure(t *testing.T) {
	rdb := openTestDB(t)

	job, err := rdb.CreateJob(testMeta(), nil)
	require.NoError(t, err)
	require.NoError(t, rdb.SetJobRunning(job.ID, 1))
	require.NoError(t, rdb.SetJobFailed(job.ID, errors.New("scene 3 is invalid")))

	fetched, err := rdb.GetJob(job.PublicID)
	require.NoError(t, err)
	require.Equal(t, JobStateFailed, fetched.State)
	require.Equal(t, "scene 3 is invalid", fetched.Error)
	require.True(t, fetched.Finished())
}

func TestFailAbandonedJobs(t *testing.T) {
	rdb := openTestDB(t)

	queued, err := rdb.CreateJob(testMeta(), nil)
	require.NoError(t, err)
	running, err := rdb.CreateJob(testMeta(), nil)
	require.NoError(t, err)
	require.NoError(t, rdb.SetJobRunning(running.ID, 4))
	finished, err := rdb.CreateJob(testMeta(), nil)
	require.NoError(t, err)
	require.NoError(t, rdb.SetJobRunning(finished.ID, 1))
	require.NoError(t, rdb.SetJobComplete(finished.ID, "jobs/x/result.json", &pipeline.RunStats{Scenes: 1}, nil))

	n, err := rdb.FailAbandonedJobs()
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	for _, id := range []string{queued.PublicID, running.PublicID} {
		job, err := rdb.GetJob(id)
		require.NoError(t, err)
		require.Equal(t, JobStateFailed, job.State)
		require.Equal(t, "Interrupted by server restart", job.Error)
	}
	job, err := rdb.GetJob(finished.PublicID)
	require.NoError(t, err)
	require.Equal(t, JobStateComplete, job.State)
}

func TestGetJobUnknown(t *testing.T) {
	rdb := openTestDB(t)
	_, err := rdb.GetJob("no-such-job")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestRecentJobs(t *testing.T) {
	rdb := openTestDB(t)

	ids := []string{}
	for i := 0; i < 5; i++ {
		job, err := rdb.CreateJob(testMeta(), nil)
		require.NoError(t, err)
		ids = append(ids, job.PublicID)
	}

	recent, err := rdb.RecentJobs(3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	// Newest first.
	require.Equal(t, ids[4], recent[0].PublicID)
	require.Equal(t, ids[3], recent[1].PublicID)
	require.Equal(t, ids[2], recent[2].PublicID)
}
