// Command alertflow-process runs one pipeline pass over an extraction
// payload read from a file argument or stdin and prints the run summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/alertflow/alertflow/internal/config"
	"github.com/alertflow/alertflow/internal/dispatch"
	"github.com/alertflow/alertflow/internal/logging"
	"github.com/alertflow/alertflow/internal/normalize"
	"github.com/alertflow/alertflow/internal/observability"
	"github.com/alertflow/alertflow/internal/pipeline"
	"github.com/alertflow/alertflow/internal/push"
	"github.com/alertflow/alertflow/internal/repository"
)

const runTimeout = 2 * time.Minute

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [payload-file]\n\nReads the payload from stdin when no file is given.\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	payload, err := readPayload(flag.Arg(0))
	if err != nil {
		logging.Fatalf("Failed to read payload: %v", err)
	}

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	transport := push.NewLogTransport(logging.Component("push"))
	dispatcher := dispatch.NewDispatcher(transport, cfg.Push.MaxTokensPerBatch, cfg.Push.ChunkWorkers, cfg.Push.TopicPrefix)

	pipe := pipeline.New(
		normalize.NewNormalizer(clockwork.NewRealClock()),
		db,
		db,
		dispatcher,
		logging.Component("pipeline"),
		observability.NewMetrics(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	result, err := pipe.ProcessExtraction(ctx, payload)
	if err != nil {
		logging.Fatalf("Pipeline run failed: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logging.Fatalf("Failed to encode result: %v", err)
	}
	fmt.Println(string(out))

	if !result.Success {
		os.Exit(1)
	}
}

func readPayload(path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}
