// Package pipeline runs the whole reframing computation for one video:
// partition detections by scene, track every scene, and assemble the
// delivery document. Scenes never interact, so they are processed on a
// worker pool, and each scene's result is memoized in the result cache.
package pipeline

import (
	"context"
	"fmt"
	"runtime"

	"github.com/cyclopcam/logs"
	"github.com/reframelab/reframer/pkg/gen"
	"github.com/reframelab/reframer/pkg/vision"
	"github.com/reframelab/reframer/server/cache"
	"github.com/reframelab/reframer/server/config"
	"github.com/reframelab/reframer/server/format"
	"github.com/reframelab/reframer/server/scout"
	"github.com/reframelab/reframer/server/track"
)

// resultSchema identifies the shape and semantics of cached scene results.
// Bump it whenever either changes, so stale cache entries never resurface.
const resultSchema = 1

// Input is one processing request: the video's metadata, its scene
// boundaries from shot segmentation, and the raw detections.
type Input struct {
	Video      format.VideoMeta   `json:"video"`
	Scenes     []vision.Scene     `json:"scenes"`
	Detections []vision.Detection `json:"detections"`
}

// RunStats summarizes one pipeline run.
type RunStats struct {
	Scenes         int `json:"scenes"`
	CacheHits      int `json:"cacheHits"`
	OrphanDropped  int `json:"orphanDropped"` // detections whose scene ID matched no scene
	TracksEmitted  int `json:"tracksEmitted"`
	DetectionsUsed int `json:"detectionsUsed"`
}

// Progress is called after each scene finishes, from a single goroutine.
type Progress func(scenesDone, scenesTotal int)

type Pipeline struct {
	log     logs.Log
	results cache.ResultCache
}

func NewPipeline(log logs.Log, results cache.ResultCache) *Pipeline {
	if results == nil {
		results = cache.NewNullCache()
	}
	return &Pipeline{
		log:     logs.NewPrefixLogger(log, "pipeline:"),
		results: results,
	}
}

// Process runs the full computation. tune may be nil for defaults, and
// progress may be nil. Identical inputs produce identical results.
func (p *Pipeline) Process(ctx context.Context, input *Input, tune *config.Tuning, progress Progress) (*format.Result, *RunStats, error) {
	if err := input.Video.Validate(); err != nil {
		return nil, nil, err
	}
	if err := vision.ValidateScenes(input.Scenes); err != nil {
		return nil, nil, err
	}
	params, err := tune.TrackParams()
	if err != nil {
		return nil, nil, err
	}
	policy, err := tune.SamplePolicy()
	if err != nil {
		return nil, nil, err
	}

	stats := &RunStats{Scenes: len(input.Scenes)}

	// Partition detections by scene, preserving input order within each.
	sceneIndex := map[int64]int{}
	for i := range input.Scenes {
		sceneIndex[input.Scenes[i].ID] = i
	}
	bySceneIdx := make([][]vision.Detection, len(input.Scenes))
	for _, d := range input.Detections {
		idx, ok := sceneIndex[d.SceneID]
		if !ok {
			stats.OrphanDropped++
			p.log.Warnf("Detection at frame %v references unknown scene %v. Dropping", d.FrameIndex, d.SceneID)
			continue
		}
		bySceneIdx[idx] = append(bySceneIdx[idx], d)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type sceneResult struct {
		index  int
		out    *track.SceneOutput
		cached bool
		err    error
	}
	jobs := make(chan int, len(input.Scenes))
	for i := range input.Scenes {
		jobs <- i
	}
	close(jobs)
	results := make(chan sceneResult, len(input.Scenes))

	nWorkers := gen.Max(1, gen.Min(runtime.NumCPU(), len(input.Scenes)))
	for w := 0; w < nWorkers; w++ {
		go func() {
			for i := range jobs {
				if runCtx.Err() != nil {
					results <- sceneResult{index: i, err: runCtx.Err()}
					continue
				}
				out, cached, err := p.processScene(params, policy, input.Video.FPS, input.Scenes[i], bySceneIdx[i])
				results <- sceneResult{index: i, out: out, cached: cached, err: err}
			}
		}()
	}

	outputs := make([]*track.SceneOutput, len(input.Scenes))
	var firstErr error
	done := 0
	for range input.Scenes {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
				cancel()
			}
			continue
		}
		outputs[r.index] = r.out
		if r.cached {
			stats.CacheHits++
		}
		done++
		if progress != nil {
			progress(done, len(input.Scenes))
		}
	}
	if firstErr != nil {
		return nil, nil, firstErr
	}

	for i, out := range outputs {
		if out == nil {
			return nil, nil, fmt.Errorf("Scene %v produced no output", input.Scenes[i].ID)
		}
		stats.TracksEmitted += out.Stats.TracksEmitted
		stats.DetectionsUsed += out.Stats.DetectionsIn - out.Stats.DroppedMalformed - out.Stats.DroppedOutOfScene
	}

	result, err := format.Build(input.Video, input.Scenes, outputs)
	if err != nil {
		return nil, nil, err
	}
	return result, stats, nil
}

// fingerprint is the identity of one scene's computation. Two equal
// fingerprints always produce equal results.
type fingerprint struct {
	Schema     int                `json:"schema"`
	FPS        float64            `json:"fps"`
	Scene      vision.Scene       `json:"scene"`
	Detections []vision.Detection `json:"detections"`
	Params     track.Params       `json:"params"`
	Policy     scout.Policy       `json:"policy"`
}

func (p *Pipeline) processScene(params track.Params, policy scout.Policy, fps float64, scene vision.Scene, dets []vision.Detection) (*track.SceneOutput, bool, error) {
	key, err := cache.Key(fingerprint{
		Schema:     resultSchema,
		FPS:        fps,
		Scene:      scene,
		Detections: dets,
		Params:     params,
		Policy:     policy,
	})
	if err != nil {
		return nil, false, err
	}

	cached := &track.SceneOutput{}
	hit, err := p.results.Lookup(key, cached)
	if err != nil {
		// A broken cache slows us down but must never fail a run.
		p.log.Warnf("Result cache lookup for scene %v failed: %v", scene.ID, err)
	} else if hit {
		return cached, true, nil
	}

	plan := policy.Plan(scene, fps)
	out, err := track.ProcessScene(p.log, params, scene, fps, plan, dets)
	if err != nil {
		return nil, false, err
	}
	if err := p.results.Store(key, out); err != nil {
		p.log.Warnf("Result cache store for scene %v failed: %v", scene.ID, err)
	}
	return out, false, nil
}
