// Command ingest runs one or more receipt documents through the
// ingestion pipeline and prints each terminal outcome.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/finbase/receipt-insights/internal/classify"
	"github.com/finbase/receipt-insights/internal/config"
	"github.com/finbase/receipt-insights/internal/docsource"
	"github.com/finbase/receipt-insights/internal/extraction"
	"github.com/finbase/receipt-insights/internal/insights"
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

	concurrency := flag.Int("concurrency", 4, "Maximum documents processed in parallel")
	flag.Parse()

	refs := flag.Args()
	if len(refs) == 0 {
		log.Fatal().Msg("Usage: ingest [flags] <source-ref> [<source-ref>...] (local path or gs:// URI)")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open receipt store")
	}
	defer store.Close()
	store = storage.WithTimeout(store, cfg.StorageTimeout)

	extractor := extraction.NewGeminiExtractor(cfg.GeminiModel)
	aggregator := insights.NewAggregator(classify.Default())
	pipe := pipeline.New(extractor, store, aggregator, log)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)

	for _, ref := range refs {
		g.Go(func() error {
			doc, err := docsource.ForRef(ref).Fetch(gctx, ref)
			if err != nil {
				return fmt.Errorf("%s: %w", ref, err)
			}

			ingestCtx, cancelIngest := context.WithTimeout(gctx, cfg.ExtractionTimeout)
			defer cancelIngest()

			res, err := pipe.Ingest(ingestCtx, doc)
			if err != nil {
				return fmt.Errorf("%s: %w", ref, err)
			}

			fmt.Printf("%s: %s (receipt %s, %d issues)\n", ref, res.Status, res.ReceiptID, len(res.Issues))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	fmt.Println("Ingestion completed successfully.")
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
