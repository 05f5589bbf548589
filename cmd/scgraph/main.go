package main

import (
	"log"
	"os"

	"github.com/google/gops/agent"
	_ "github.com/viant/afsc/gs"
	_ "github.com/viant/afsc/s3"
)

func main() {
	startGops()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func startGops() {
	if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
		log.Printf("gops: %v", err)
	}
}
