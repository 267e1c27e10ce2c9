package server

import (
	"sort"
	"sync"

	"github.com/bmharper/ringbuffer"
	"github.com/reframelab/reframer/server/resultdb"
)

// JobEvent is a progress snapshot of one job, pushed to websocket watchers
// and returned by the activity API.
type JobEvent struct {
	JobID       string            `json:"jobId"`
	State       resultdb.JobState `json:"state"`
	ScenesTotal int               `json:"scenesTotal"`
	ScenesDone  int               `json:"scenesDone"`
	Error       string            `json:"error,omitempty"`
}

// Subscriber channels are buffered this much. A publish to a full channel is
// dropped, so a slow watcher only loses intermediate progress, never the
// terminal state (that is re-read from the DB when the channel closes).
const watcherChanBuffer = 16

// Number of terminal events we remember, so a poller that missed a job's
// entire lifetime between two polls still sees that it finished.
const recentEventCount = 32

// watcherHub tracks the live state of queued and running jobs, and fans
// progress events out to websocket subscribers. Finished jobs leave the hub;
// the DB is their source of truth.
type watcherHub struct {
	lock   sync.Mutex
	jobs   map[string]*liveJob
	recent ringbuffer.RingP[JobEvent]
}

type liveJob struct {
	last        JobEvent
	subscribers []chan JobEvent
}

func newWatcherHub() *watcherHub {
	return &watcherHub{
		jobs:   map[string]*liveJob{},
		recent: ringbuffer.NewRingP[JobEvent](recentEventCount),
	}
}

// publish records ev as the job's latest state and notifies subscribers.
// A terminal event (complete or failed) retires the job from the hub and
// closes all of its subscriber channels.
func (h *watcherHub) publish(ev JobEvent) {
	h.lock.Lock()
	defer h.lock.Unlock()
	job := h.jobs[ev.JobID]
	if job == nil {
		job = &liveJob{}
		h.jobs[ev.JobID] = job
	}
	job.last = ev
	for _, ch := range job.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	if ev.State == resultdb.JobStateComplete || ev.State == resultdb.JobStateFailed {
		h.recent.Add(ev)
		for _, ch := range job.subscribers {
			close(ch)
		}
		delete(h.jobs, ev.JobID)
	}
}

// subscribe returns a channel of progress events for a live job, or ok=false
// if the job is not live (never submitted here, or already finished).
func (h *watcherHub) subscribe(jobID string) (chan JobEvent, bool) {
	h.lock.Lock()
	defer h.lock.Unlock()
	job := h.jobs[jobID]
	if job == nil {
		return nil, false
	}
	ch := make(chan JobEvent, watcherChanBuffer)
	ch <- job.last
	job.subscribers = append(job.subscribers, ch)
	return ch, true
}

// unsubscribe detaches ch. Safe to call after the job has finished, in which
// case it does nothing.
func (h *watcherHub) unsubscribe(jobID string, ch chan JobEvent) {
	h.lock.Lock()
	defer h.lock.Unlock()
	job := h.jobs[jobID]
	if job == nil {
		return
	}
	for i, other := range job.subscribers {
		if other == ch {
			job.subscribers = append(job.subscribers[:i], job.subscribers[i+1:]...)
			break
		}
	}
}

// active returns the latest event of every live job.
func (h *watcherHub) active() []JobEvent {
	h.lock.Lock()
	defer h.lock.Unlock()
	evs := make([]JobEvent, 0, len(h.jobs))
	for _, job := range h.jobs {
		evs = append(evs, job.last)
	}
	sort.Slice(evs, func(i, j int) bool { return evs[i].JobID < evs[j].JobID })
	return evs
}

// recentlyFinished returns remembered terminal events, oldest first.
func (h *watcherHub) recentlyFinished() []JobEvent {
	h.lock.Lock()
	defer h.lock.Unlock()
	evs := make([]JobEvent, 0, h.recent.Len())
	for i := 0; i < h.recent.Len(); i++ {
		evs = append(evs, h.recent.Peek(i))
	}
	return evs
}
