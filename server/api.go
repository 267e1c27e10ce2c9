package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
	"github.com/reframelab/reframer/server/config"
)

func (s *Server) setupHttpRoutes() error {
	router := httprouter.New()

	open := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	// Job submission kicks off real compute, so it gets a per-IP rate limit.
	ratelimited := func(method, route string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	open("GET", "/api/ping", s.httpPing)
	open("GET", "/api/config", s.httpGetConfig)

	ratelimited("POST", "/api/process", s.httpProcess, 10, time.Minute)
	open("GET", "/api/job/:id", s.httpGetJob)
	open("GET", "/api/job/:id/result", s.httpGetJobResult)
	open("GET", "/api/job/:id/watch", s.httpWatchJob)
	open("GET", "/api/jobs/recent", s.httpRecentJobs)
	open("GET", "/api/jobs/active", s.httpActiveJobs)

	s.httpRouter = router
	return nil
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type pingJSON struct {
		Time int64 `json:"time"`
	}
	ping := &pingJSON{
		Time: time.Now().Unix(),
	}
	www.SendJSON(w, ping)
}

// httpGetConfig returns the effective tuning, with every default resolved, so
// clients can see exactly what their jobs will run with.
func (s *Server) httpGetConfig(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type configJSON struct {
		Tuning     *config.Tuning `json:"tuning"`
		MaxFetchMB int64          `json:"maxFetchMB"`
	}
	tuning, err := s.cfg.Tuning.Resolved()
	www.Check(err)
	www.SendJSON(w, &configJSON{
		Tuning:     tuning,
		MaxFetchMB: s.maxFetchBytes() / (1024 * 1024),
	})
}
