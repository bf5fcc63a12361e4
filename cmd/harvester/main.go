// Package main is the harvester command line.
//
//   - pipeline: discovery, a worker pool and a single sink writer in one
//     process, harvesting the vendr catalog into the collection, Postgres and
//     Pub/Sub sinks that are configured.
//   - supervise: partitions the books categories into chunks, runs one unit per
//     chunk, restarts units that exit abnormally and writes the collected
//     records as a JSON array once every unit has finished.
//   - worker: hidden child entry point of supervise when
//     supervisor.isolation=process. Records go to stdout as JSON lines, logs to
//     stderr.
//
// Configuration comes from --config and HARVESTER_* environment variables;
// the environment names of earlier deployments (THREAD_COUNT, PROCESS_COUNT,
// CDP_ENDPOINT, DB_*, API_KEY) are honored as aliases.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		os.Exit(1)
	}
}
