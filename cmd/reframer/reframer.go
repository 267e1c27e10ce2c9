package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/reframelab/reframer/server"
)

func main() {
	parser := argparse.NewParser("reframer", "Vertical reframing service")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Config file path", Default: "reframer.json"})
	port := parser.String("p", "port", &argparse.Options{Help: "HTTP listen address", Default: ":8095"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(logger, *configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	srv.ListenForKillSignals()

	// Tell systemd that we're alive.
	daemon.SdNotify(false, daemon.SdNotifyReady)

	if err := srv.ListenHTTP(*port); err != nil {
		logger.Infof("ListenHTTP returned: %v", err)
	}
}
