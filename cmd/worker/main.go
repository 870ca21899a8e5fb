package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/finbase/receipt-insights/internal/classify"
	"github.com/finbase/receipt-insights/internal/config"
	"github.com/finbase/receipt-insights/internal/docsource"
	"github.com/finbase/receipt-insights/internal/extraction"
	"github.com/finbase/receipt-insights/internal/insights"
	"github.com/finbase/receipt-insights/internal/jobs"
	jobsmem "github.com/finbase/receipt-insights/internal/jobs/inmemory"
	"github.com/finbase/receipt-insights/internal/logger"
	"github.com/finbase/receipt-insights/internal/pipeline"
	"github.com/finbase/receipt-insights/internal/storage"
	"github.com/finbase/receipt-insights/internal/storage/bigquery"
	"github.com/finbase/receipt-insights/internal/storage/bolt"
	"github.com/finbase/receipt-insights/internal/storage/inmemory"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open receipt store")
	}
	defer store.Close()
	store = storage.WithTimeout(store, cfg.StorageTimeout)

	extractor := extraction.NewGeminiExtractor(cfg.GeminiModel)
	aggregator := insights.NewAggregator(classify.Default())
	pipe := pipeline.New(extractor, store, aggregator, log)

	// In production the in-memory queue would be replaced with Cloud
	// Tasks or Pub/Sub behind the same interfaces.
	jobStore := jobsmem.NewStore()
	jobQueue := jobsmem.NewQueue(cfg.JobBuffer, cfg.JobWorkers, jobStore)

	handler := func(ctx context.Context, job jobs.Job) error {
		ingestJob, ok := job.(*jobs.IngestReceiptJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", ingestJob.JobID).
			Str("source_ref", ingestJob.SourceRef).
			Msg("Processing ingestion job")

		doc, err := docsource.ForRef(ingestJob.SourceRef).Fetch(ctx, ingestJob.SourceRef)
		if err != nil {
			return err
		}
		if ingestJob.MIMEType != "" {
			doc.MIMEType = ingestJob.MIMEType
		}

		ingestCtx, cancelIngest := context.WithTimeout(ctx, cfg.ExtractionTimeout)
		defer cancelIngest()

		res, err := pipe.Ingest(ingestCtx, doc)
		if err != nil {
			return err
		}

		ingestJob.Outcome = string(res.Status)
		ingestJob.ReceiptID = res.ReceiptID

		log.Info().
			Str("job_id", ingestJob.JobID).
			Str("outcome", ingestJob.Outcome).
			Str("receipt_id", ingestJob.ReceiptID).
			Msg("Ingestion job finished")

		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Int("workers", cfg.JobWorkers).Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

func openStore(ctx context.Context, cfg *config.Config) (storage.ReceiptStore, error) {
	switch cfg.StorageBackend {
	case "memory":
		return inmemory.NewStore(), nil
	case "bolt":
		return bolt.Open(cfg.BoltPath)
	case "bigquery":
		return bigquery.NewStore(ctx, cfg.BQProject, cfg.BQDataset)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
