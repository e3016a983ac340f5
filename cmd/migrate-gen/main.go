// Command migrate-gen writes the stream registry migration for an adapter.
//
// Usage:
//
//	go run github.com/getpup/pupstreams/cmd/migrate-gen -adapter sqlite -output migrations -filename init.sql
//
// Or with go generate:
//
//	//go:generate go run github.com/getpup/pupstreams/cmd/migrate-gen -adapter postgres -output migrations
//
// Stream tables are not part of the migration; the store creates them when a
// stream is created.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getpup/pupstreams/es/migrations"
)

func main() {
	var (
		adapter           = flag.String("adapter", "postgres", "Database adapter: postgres, mysql, or sqlite")
		outputFolder      = flag.String("output", "migrations", "Output folder for migration file")
		outputFilename    = flag.String("filename", "", "Output filename (default: timestamp-based)")
		eventStreamsTable = flag.String("event-streams-table", "event_streams", "Name of the stream registry table")
		checkpointsTable  = flag.String("checkpoints-table", "projection_checkpoints", "Name of the projection checkpoints table")
	)

	flag.Parse()

	config := migrations.DefaultConfig()
	config.OutputFolder = *outputFolder
	config.EventStreamsTable = *eventStreamsTable
	config.CheckpointsTable = *checkpointsTable

	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	if err := migrations.Generate(*adapter, &config); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", *adapter, config.OutputFolder, config.OutputFilename)
}
