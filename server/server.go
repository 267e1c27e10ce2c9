// Package server is the reframer service: it accepts processing jobs over
// HTTP, runs them through the tracking pipeline, and stores the delivery
// documents in blob storage.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/reframelab/reframer/server/cache"
	"github.com/reframelab/reframer/server/config"
	"github.com/reframelab/reframer/server/pipeline"
	"github.com/reframelab/reframer/server/resultdb"
	"github.com/reframelab/reframer/server/storage"
)

const defaultMaxFetchMB = 64

type Server struct {
	Log logs.Log
	DB  *resultdb.ResultDB

	cfg        *config.Config
	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router
	storage    storage.Storage
	pipeline   *pipeline.Pipeline
	watchers   *watcherHub
	wsUpgrader websocket.Upgrader
}

func NewServer(logger logs.Log, configFile string) (*Server, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	db, err := resultdb.Open(logger, cfg.DB)
	if err != nil {
		return nil, err
	}
	if n, err := db.FailAbandonedJobs(); err != nil {
		return nil, err
	} else if n != 0 {
		logger.Warnf("Failed %v jobs that were abandoned by a previous run", n)
	}

	// Open blob store
	var storageServer storage.Storage
	if cfg.Results.GCS != nil {
		// Google Cloud Storage
		storageServer, err = storage.NewStorageGCS(logger, cfg.Results.GCS.Bucket, cfg.Results.GCS.Public)
		if err != nil {
			return nil, err
		}
	} else if cfg.Results.Filesystem != nil {
		// Filesystem
		storageServer, err = storage.NewStorageFS(logger, cfg.Results.Filesystem.Root)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')")
	}

	var results cache.ResultCache
	if cfg.Cache != "" {
		cacheFS, err := storage.NewStorageFS(logger, cfg.Cache)
		if err != nil {
			return nil, err
		}
		results = cache.NewStorageCache(logger, cacheFS)
	}

	s := &Server{
		Log:      logger,
		DB:       db,
		cfg:      cfg,
		storage:  storageServer,
		pipeline: pipeline.NewPipeline(logger, results),
		watchers: newWatcherHub(),
	}
	if err := s.setupHttpRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) maxFetchBytes() int64 {
	mb := s.cfg.MaxFetchMB
	if mb <= 0 {
		mb = defaultMaxFetchMB
	}
	return int64(mb) * 1024 * 1024
}

// Router exposes the HTTP API for tests and for embedding in another process.
func (s *Server) Router() http.Handler {
	return s.httpRouter
}

// port example: ":8095"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.Log.Infof("ListenForKillSignals starting")
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. ListenForKillSignals will exit after shutdown", sig.String())
			s.Shutdown()
		} else {
			// This path gets hit when Shutdown() is called by something other than ourselves, and Shutdown() closes the signalIn channel.
			s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
		}
	}()
}

func (s *Server) Shutdown() {
	s.Log.Infof("Shutdown")
	signal.Stop(s.signalIn)
	close(s.signalIn)
	s.Log.Infof("Closing HTTP server")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	err := s.httpServer.Shutdown(ctx)
	defer cancel()
	if err != nil {
		s.Log.Warnf("Shutdown complete, with error: %v", err)
	} else {
		s.Log.Infof("Shutdown complete")
	}
	s.Log.Close()
}
