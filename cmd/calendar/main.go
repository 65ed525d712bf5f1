// Package main starts the calendar real-time service and handles
// termination.
//
// The process is a transport adapter around session lifecycle and vote
// fan-out; all state lives in memory for the process lifetime.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	calendarcmd "github.com/kangpj/activeCal/internal/cmd/calendar"
)

func main() {
	cfg, err := calendarcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[CALENDAR] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := calendarcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
