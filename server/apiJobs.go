package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
	"github.com/reframelab/reframer/pkg/fetch"
	"github.com/reframelab/reframer/pkg/gen"
	"github.com/reframelab/reframer/pkg/vision"
	"github.com/reframelab/reframer/server/config"
	"github.com/reframelab/reframer/server/pipeline"
	"github.com/reframelab/reframer/server/resultdb"
	"github.com/reframelab/reframer/server/storage"
)

// processRequest is the body of POST /api/process. The detection payload is
// either inline (video + scenes + detections) or fetched from inputUrl, which
// must serve the same JSON document.
type processRequest struct {
	pipeline.Input
	InputURL string         `json:"inputUrl,omitempty"`
	Tuning   *config.Tuning `json:"tuning,omitempty"`
}

func jobResultFilename(publicID string) string {
	return "jobs/" + publicID + "/result.json"
}

func jobEventFrom(job *resultdb.Job) JobEvent {
	return JobEvent{
		JobID:       job.PublicID,
		State:       job.State,
		ScenesTotal: job.ScenesTotal,
		ScenesDone:  job.ScenesDone,
		Error:       job.Error,
	}
}

func (s *Server) getJobOrPanic(publicID string) *resultdb.Job {
	job, err := s.DB.GetJob(publicID)
	if errors.Is(err, resultdb.ErrJobNotFound) {
		www.PanicNotFound()
	}
	www.Check(err)
	return job
}

// httpProcess accepts a job, queues it, and returns immediately. Progress is
// available on /api/job/:id and /api/job/:id/watch.
func (s *Server) httpProcess(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	req := processRequest{}
	www.ReadJSON(w, r, &req, s.maxFetchBytes())

	if req.InputURL != "" {
		if err := fetch.JSON(r.Context(), req.InputURL, s.maxFetchBytes(), &req.Input); err != nil {
			www.PanicBadRequestf("Failed to fetch input from %v: %v", req.InputURL, err)
		}
	}
	if err := req.Video.Validate(); err != nil {
		www.PanicBadRequestf("%v", err)
	}
	if err := vision.ValidateScenes(req.Scenes); err != nil {
		www.PanicBadRequestf("%v", err)
	}
	tune := s.cfg.Tuning.Merged(req.Tuning)
	if err := tune.Validate(); err != nil {
		www.PanicBadRequestf("%v", err)
	}

	job, err := s.DB.CreateJob(req.Video, tune)
	www.Check(err)
	s.watchers.publish(jobEventFrom(job))
	go s.runJob(job, &req.Input, tune)

	s.Log.Infof("Queued job %v: %v scenes, %v detections", job.PublicID, len(req.Scenes), len(req.Detections))
	www.SendJSON(w, job)
}

// runJob executes one job to completion. It owns all state transitions after
// "queued", writing each one to the DB before announcing it to watchers.
func (s *Server) runJob(job *resultdb.Job, input *pipeline.Input, tune *config.Tuning) {
	fail := func(jobErr error) {
		s.Log.Errorf("Job %v failed: %v", job.PublicID, jobErr)
		if err := s.DB.SetJobFailed(job.ID, jobErr); err != nil {
			s.Log.Errorf("Failed to record failure of job %v: %v", job.PublicID, err)
		}
		s.watchers.publish(JobEvent{
			JobID:       job.PublicID,
			State:       resultdb.JobStateFailed,
			ScenesTotal: len(input.Scenes),
			Error:       jobErr.Error(),
		})
	}

	if err := s.DB.SetJobRunning(job.ID, len(input.Scenes)); err != nil {
		fail(err)
		return
	}
	s.watchers.publish(JobEvent{
		JobID:       job.PublicID,
		State:       resultdb.JobStateRunning,
		ScenesTotal: len(input.Scenes),
	})

	progress := func(done, total int) {
		if err := s.DB.SetJobProgress(job.ID, done); err != nil {
			s.Log.Warnf("Failed to record progress of job %v: %v", job.PublicID, err)
		}
		s.watchers.publish(JobEvent{
			JobID:       job.PublicID,
			State:       resultdb.JobStateRunning,
			ScenesTotal: total,
			ScenesDone:  done,
		})
	}

	result, stats, err := s.pipeline.Process(context.Background(), input, tune, progress)
	if err != nil {
		fail(err)
		return
	}

	resultFile := jobResultFilename(job.PublicID)
	if err := storage.WriteJSON(s.storage, resultFile, result); err != nil {
		fail(err)
		return
	}

	scenes := make([]resultdb.JobScene, 0, len(result.Scenes))
	for _, sc := range result.Scenes {
		scenes = append(scenes, resultdb.JobScene{
			SceneID:       sc.SceneID,
			StartFrame:    sc.StartFrame,
			EndFrame:      sc.EndFrame,
			TracksEmitted: sc.Stats.TracksEmitted,
			Stats:         dbh.MakeJSONField(sc.Stats),
		})
	}
	s.Log.Infof("Job %v complete: %v tracks across %v scenes", job.PublicID, stats.TracksEmitted, stats.Scenes)
	if err := s.DB.SetJobComplete(job.ID, resultFile, stats, scenes); err != nil {
		fail(err)
		return
	}
	s.watchers.publish(JobEvent{
		JobID:       job.PublicID,
		State:       resultdb.JobStateComplete,
		ScenesTotal: len(input.Scenes),
		ScenesDone:  len(input.Scenes),
	})
}

func (s *Server) httpGetJob(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	job := s.getJobOrPanic(params.ByName("id"))
	scenes, err := s.DB.GetJobScenes(job.ID)
	www.Check(err)
	type jobDetailJSON struct {
		Job    *resultdb.Job       `json:"job"`
		Scenes []resultdb.JobScene `json:"scenes"`
	}
	www.SendJSON(w, &jobDetailJSON{Job: job, Scenes: scenes})
}

// httpGetJobResult returns the delivery document. If the blob store can hand
// out public URLs, the client is redirected there instead of streaming the
// document through us.
func (s *Server) httpGetJobResult(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	job := s.getJobOrPanic(params.ByName("id"))
	switch job.State {
	case resultdb.JobStateComplete:
	case resultdb.JobStateFailed:
		www.PanicBadRequestf("Job %v failed: %v", job.PublicID, job.Error)
	default:
		www.PanicBadRequestf("Job %v is still %v", job.PublicID, job.State)
	}

	url, err := s.storage.URL(job.ResultFile)
	if err == nil {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	if !errors.Is(err, storage.ErrNoPublicUrl) {
		www.Check(err)
	}

	file, err := s.storage.ReadFile(job.ResultFile)
	www.Check(err)
	defer file.Reader.Close()
	w.Header().Set("Content-Type", "application/json")
	io.Copy(w, file.Reader)
}

func (s *Server) httpRecentJobs(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	limit := www.QueryInt(r, "limit")
	if limit <= 0 {
		limit = 20
	}
	jobs, err := s.DB.RecentJobs(gen.Min(limit, 100))
	www.Check(err)
	www.SendJSON(w, jobs)
}

// httpActiveJobs reports what is happening right now: the live jobs, plus the
// last few terminal events so a poller never misses a short-lived job.
func (s *Server) httpActiveJobs(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type activityJSON struct {
		Active           []JobEvent `json:"active"`
		RecentlyFinished []JobEvent `json:"recentlyFinished"`
	}
	www.SendJSON(w, &activityJSON{
		Active:           s.watchers.active(),
		RecentlyFinished: s.watchers.recentlyFinished(),
	})
}
