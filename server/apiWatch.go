package server

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// httpWatchJob streams JobEvent JSON messages over a websocket until the job
// reaches a terminal state or the client goes away. The first message is
// always the job's current state, so a watcher of a finished job still gets
// one snapshot.
func (s *Server) httpWatchJob(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	publicID := params.ByName("id")
	job := s.getJobOrPanic(publicID)

	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("httpWatchJob websocket upgrade failed: %v", err)
		return
	}
	defer c.Close()

	// Subscribe before reading the snapshot, so a transition between the two
	// is seen on at least one of the paths.
	events, live := s.watchers.subscribe(publicID)
	if live {
		defer s.watchers.unsubscribe(publicID, events)
	} else {
		// Job already finished (or predates this process). Send its final
		// state and hang up.
		if job, err = s.DB.GetJob(publicID); err != nil {
			s.Log.Errorf("httpWatchJob failed to re-read job %v: %v", publicID, err)
			return
		}
		c.WriteJSON(jobEventFrom(job))
		return
	}

	// Drain client messages so that control frames are processed and closure
	// is detected.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, more := <-events:
			if !more {
				// Terminal state reached. The final event may have been
				// dropped on a full buffer, so re-read it from the DB.
				if job, err := s.DB.GetJob(publicID); err == nil {
					c.WriteJSON(jobEventFrom(job))
				}
				return
			}
			if err := c.WriteJSON(ev); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}
