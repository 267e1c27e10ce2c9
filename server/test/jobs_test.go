package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/reframelab/reframer/pkg/vision"
	"github.com/reframelab/reframer/server"
	"github.com/reframelab/reframer/server/config"
	"github.com/reframelab/reframer/server/format"
	"github.com/reframelab/reframer/server/pipeline"
	"github.com/reframelab/reframer/server/resultdb"
	"github.com/stretchr/testify/require"
)

// startServer brings up a fully wired server on a throwaway directory and
// returns it together with an HTTP test listener.
func startServer(t *testing.T) (*server.Server, *httptest.Server) {
	dir := t.TempDir()
	cfg := config.Config{
		DB: dbh.MakeSqliteConfig(filepath.Join(dir, "jobs.sqlite")),
		Results: config.StorageConfig{
			Filesystem: &config.StorageConfigFS{Root: filepath.Join(dir, "results")},
		},
		Cache: filepath.Join(dir, "cache"),
	}
	raw, err := json.Marshal(&cfg)
	require.NoError(t, err)
	cfgFile := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgFile, raw, 0644))

	srv, err := server.NewServer(logs.NewTestingLog(t), cfgFile)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func makeDet(sceneID int64, frame int, class vision.Class, x, y, w, h float32) vision.Detection {
	return vision.Detection{
		SceneID:    sceneID,
		FrameIndex: frame,
		Class:      class,
		Box:        vision.Box{X: x, Y: y, Width: w, Height: h},
		Score:      0.9,
	}
}

// makeInput builds a 1920x1080 @ 25fps video with two scenes, each carrying
// one steady subject.
func makeInput() *pipeline.Input {
	input := &pipeline.Input{
		Video: format.VideoMeta{Width: 1920, Height: 1080, FPS: 25},
		Scenes: []vision.Scene{
			{ID: 1, StartFrame: 0, EndFrame: 100},
			{ID: 2, StartFrame: 101, EndFrame: 250},
		},
	}
	for f := 0; f <= 100; f += 20 {
		input.Detections = append(input.Detections, makeDet(1, f, vision.ClassPerson, float32(100+f), 50, 100, 200))
	}
	for f := 110; f <= 235; f += 25 {
		input.Detections = append(input.Detections, makeDet(2, f, vision.ClassFace, 300, float32(f-110), 80, 80))
	}
	return input
}

type jobDetail struct {
	Job    resultdb.Job        `json:"job"`
	Scenes []resultdb.JobScene `json:"scenes"`
}

func getJSON(t *testing.T, url string, out any) int {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJob(t *testing.T, ts *httptest.Server, body any) resultdb.Job {
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/process", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	job := resultdb.Job{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	require.NotEmpty(t, job.PublicID)
	return job
}

func waitForJob(t *testing.T, ts *httptest.Server, publicID string) jobDetail {
	deadline := time.Now().Add(15 * time.Second)
	detail := jobDetail{}
	for {
		status := getJSON(t, ts.URL+"/api/job/"+publicID, &detail)
		require.Equal(t, http.StatusOK, status)
		if detail.Job.State == resultdb.JobStateComplete {
			break
		}
		require.NotEqual(t, resultdb.JobStateFailed, detail.Job.State, "Job failed: %v", detail.Job.Error)
		require.True(t, time.Now().Before(deadline), "Timed out waiting for job %v", publicID)
		time.Sleep(10 * time.Millisecond)
	}
	// Also wait for the job to leave the live set, so watcher state is settled.
	for {
		activity := struct {
			Active []server.JobEvent `json:"active"`
		}{}
		require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/jobs/active", &activity))
		busy := false
		for _, ev := range activity.Active {
			if ev.JobID == publicID {
				busy = true
			}
		}
		if !busy {
			return detail
		}
		require.True(t, time.Now().Before(deadline), "Timed out waiting for job %v to retire", publicID)
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProcessJobEndToEnd(t *testing.T) {
	_, ts := startServer(t)

	type processBody struct {
		pipeline.Input
		Tuning *config.Tuning `json:"tuning,omitempty"`
	}
	job := postJob(t, ts, &processBody{Input: *makeInput()})

	detail := waitForJob(t, ts, job.PublicID)
	require.Equal(t, 2, detail.Job.ScenesTotal)
	require.Equal(t, 2, detail.Job.ScenesDone)
	require.Len(t, detail.Scenes, 2)
	require.Equal(t, int64(1), detail.Scenes[0].SceneID)
	require.Equal(t, 1, detail.Scenes[0].TracksEmitted)
	require.Equal(t, 1, detail.Scenes[1].TracksEmitted)
	require.Equal(t, 2, detail.Job.Stats.Data.TracksEmitted)

	result := format.Result{}
	status := getJSON(t, ts.URL+"/api/job/"+job.PublicID+"/result", &result)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, result.Scenes, 2)
	require.Len(t, result.Scenes[0].DynamicTracks, 1)
	require.Len(t, result.Scenes[0].DynamicTracks[0].Frames, 101)
	require.Len(t, result.Scenes[1].DynamicTracks, 1)
	require.Len(t, result.Scenes[1].DynamicTracks[0].Frames, 150)

	// The job shows up in the listings.
	recent := []resultdb.Job{}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/jobs/recent", &recent))
	require.Len(t, recent, 1)
	require.Equal(t, job.PublicID, recent[0].PublicID)

	activity := struct {
		Active           []server.JobEvent `json:"active"`
		RecentlyFinished []server.JobEvent `json:"recentlyFinished"`
	}{}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/jobs/active", &activity))
	require.Empty(t, activity.Active)
	require.Len(t, activity.RecentlyFinished, 1)
	require.Equal(t, resultdb.JobStateComplete, activity.RecentlyFinished[0].State)
}

func TestProcessJobFromURL(t *testing.T) {
	_, ts := startServer(t)

	inputJSON, err := json.Marshal(makeInput())
	require.NoError(t, err)
	inputServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(inputJSON)
	}))
	defer inputServer.Close()

	job := postJob(t, ts, map[string]any{"inputUrl": inputServer.URL})
	detail := waitForJob(t, ts, job.PublicID)
	require.Equal(t, 2, detail.Job.ScenesTotal)
}

func TestWatchFinishedJob(t *testing.T) {
	_, ts := startServer(t)

	type processBody struct {
		pipeline.Input
	}
	job := postJob(t, ts, &processBody{Input: *makeInput()})
	waitForJob(t, ts, job.PublicID)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/job/" + job.PublicID + "/watch"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// A watcher of a finished job gets exactly one terminal snapshot.
	ev := server.JobEvent{}
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, job.PublicID, ev.JobID)
	require.Equal(t, resultdb.JobStateComplete, ev.State)
	require.Equal(t, 2, ev.ScenesDone)
}

func TestProcessRejectsBadRequests(t *testing.T) {
	_, ts := startServer(t)

	post := func(body string) int {
		resp, err := http.Post(ts.URL+"/api/process", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	// No video metadata.
	require.Equal(t, http.StatusBadRequest, post(`{"scenes":[]}`))
	// Bad tuning.
	require.Equal(t, http.StatusBadRequest, post(
		`{"video":{"width":1920,"height":1080,"fps":25},"scenes":[],"tuning":{"match_threshold_factor":-1}}`))
	// Overlapping scenes.
	require.Equal(t, http.StatusBadRequest, post(
		`{"video":{"width":1920,"height":1080,"fps":25},"scenes":[{"id":1,"startFrame":0,"endFrame":50},{"id":2,"startFrame":40,"endFrame":90}]}`))

	require.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/job/no-such-job", nil))
}

func TestPingAndConfig(t *testing.T) {
	_, ts := startServer(t)

	ping := struct {
		Time int64 `json:"time"`
	}{}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/ping", &ping))
	require.NotZero(t, ping.Time)

	cfg := struct {
		Tuning     *config.Tuning `json:"tuning"`
		MaxFetchMB int64          `json:"maxFetchMB"`
	}{}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/config", &cfg))
	require.NotNil(t, cfg.Tuning)
	require.Equal(t, float32(0.7), *cfg.Tuning.MatchThresholdFactor)
	require.Equal(t, "hold", *cfg.Tuning.ExtrapolationPolicy)
	require.Equal(t, int64(64), cfg.MaxFetchMB)
}
