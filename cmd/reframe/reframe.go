package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/reframelab/reframer/pkg/fetch"
	"github.com/reframelab/reframer/server/cache"
	"github.com/reframelab/reframer/server/config"
	"github.com/reframelab/reframer/server/pipeline"
	"github.com/reframelab/reframer/server/storage"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

const maxInputBytes = 256 * 1024 * 1024

func main() {
	parser := argparse.NewParser("reframe", "Track subjects in a landscape video and synthesize vertical crop tracks")
	input := parser.String("i", "input", &argparse.Options{Help: "Input JSON (file path or http(s) URL) with video metadata, scenes and detections", Required: true})
	output := parser.File("o", "output", os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0664, &argparse.Options{Help: "Output result file", Required: true})
	tuningFile := parser.String("t", "tuning", &argparse.Options{Help: "Tuning overrides JSON file", Required: false, Default: ""})
	cacheDir := parser.String("", "cache", &argparse.Options{Help: "Scene result cache directory", Required: false, Default: ""})
	quiet := parser.Flag("q", "quiet", &argparse.Options{Help: "No progress output", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	in := pipeline.Input{}
	if strings.HasPrefix(*input, "http://") || strings.HasPrefix(*input, "https://") {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		check(fetch.JSON(ctx, *input, maxInputBytes, &in))
	} else {
		raw, err := os.ReadFile(*input)
		check(err)
		check(json.Unmarshal(raw, &in))
	}

	var tune *config.Tuning
	if *tuningFile != "" {
		raw, err := os.ReadFile(*tuningFile)
		check(err)
		tune = &config.Tuning{}
		check(json.Unmarshal(raw, tune))
	}

	var results cache.ResultCache
	if *cacheDir != "" {
		store, err := storage.NewStorageFS(logger, *cacheDir)
		check(err)
		results = cache.NewStorageCache(logger, store)
	}

	var progress pipeline.Progress
	if !*quiet {
		progress = func(done, total int) {
			fmt.Printf("Scene %v/%v\n", done, total)
		}
	}

	pipe := pipeline.NewPipeline(logger, results)
	result, stats, err := pipe.Process(context.Background(), &in, tune, progress)
	check(err)

	if !*quiet {
		fmt.Printf("Emitted %v tracks across %v scenes (%v cache hits)\n", stats.TracksEmitted, stats.Scenes, stats.CacheHits)
	}

	encoder := json.NewEncoder(output)
	encoder.SetIndent("", "  ")
	check(encoder.Encode(result))
}
