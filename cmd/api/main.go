package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/finbase/receipt-insights/internal/api/handlers"
	"github.com/finbase/receipt-insights/internal/api/middleware"
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

	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open receipt store")
	}
	defer store.Close()
	store = storage.WithTimeout(store, cfg.StorageTimeout)

	extractor := extraction.NewGeminiExtractor(cfg.GeminiModel)
	aggregator := insights.NewAggregator(classify.Default())
	pipe := pipeline.New(extractor, store, aggregator, log)

	var uploader docsource.Uploader = docsource.LocalUploader{Dir: cfg.UploadDir}
	if cfg.GCSBucket != "" {
		uploader = docsource.GCSUploader{Bucket: cfg.GCSBucket}
	} else {
		log.Warn().Str("dir", cfg.UploadDir).Msg("No GCS bucket configured, uploads stay on local disk")
	}

	// Job infrastructure. In production the in-memory queue would be
	// replaced with Cloud Tasks or Pub/Sub behind the same interfaces.
	jobStore := jobsmem.NewStore()
	jobQueue := jobsmem.NewQueue(cfg.JobBuffer, cfg.JobWorkers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	go func() {
		log.Info().Int("workers", cfg.JobWorkers).Msg("Starting job workers")
		if err := jobQueue.Start(workerCtx, ingestJobHandler(pipe, cfg, log)); err != nil {
			log.Error().Err(err).Msg("Job workers stopped with error")
		}
	}()

	receiptsHandler := handlers.NewReceiptsHandler(pipe, store, jobQueue, uploader, log)
	insightsHandler := handlers.NewInsightsHandler(pipe, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/receipts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			receiptsHandler.List(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/receipts/ingest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			receiptsHandler.Ingest(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/receipts/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			receiptsHandler.Upload(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/insights", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			insightsHandler.Report(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.List(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.Get(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("storage", cfg.StorageBackend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}

// openStore builds the receipt store named by the configuration.
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

// ingestJobHandler runs one queued document through the pipeline and
// records the terminal outcome on the job. A non-nil return schedules a
// retry; terminal outcomes (including Rejected and Duplicate) complete
// the job.
func ingestJobHandler(pipe *pipeline.Pipeline, cfg *config.Config, log zerolog.Logger) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
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

		ingestCtx, cancel := context.WithTimeout(ctx, cfg.ExtractionTimeout)
		defer cancel()

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
}
