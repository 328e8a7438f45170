// Command indexer reads the configured corpus, builds the index and saves
// it to indexer.indexFile.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	docsPath := flag.String("docs", "", "corpus file, overrides corpus.documentsPath")
	outPath := flag.String("out", "", "index file, overrides indexer.indexFile")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *docsPath != "" {
		cfg.Corpus.DocumentsPath = *docsPath
	}
	indexPath := cfg.Indexer.IndexPath()
	if *outPath != "" {
		indexPath = *outPath
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, indexPath); err != nil {
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, indexPath string) error {
	ctx, span := tracing.StartSpan(ctx, "index-build", "")
	defer func() {
		span.End()
		span.Log(ctx, slog.LevelInfo, -1)
	}()
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	opts, err := indexer.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	engine, err := indexer.NewEngine(opts, m)
	if err != nil {
		return err
	}

	src, err := corpus.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()
	slog.Info("indexing corpus",
		"source", cfg.Corpus.Source,
		"path", cfg.Corpus.DocumentsPath,
		"scoring", cfg.Scoring.Model,
	)
	_, loadSpan := tracing.StartChildSpan(ctx, "load")
	stats, err := corpus.Load(ctx, src, engine)
	loadSpan.End()
	if err != nil {
		return err
	}
	_, finalizeSpan := tracing.StartChildSpan(ctx, "finalize")
	_, err = engine.Finalize()
	finalizeSpan.End()
	if err != nil {
		return err
	}
	if cfg.Indexer.Compact {
		_, compactSpan := tracing.StartChildSpan(ctx, "compact")
		err := engine.Compact()
		compactSpan.End()
		if err != nil {
			return err
		}
	}
	_, saveSpan := tracing.StartChildSpan(ctx, "save")
	header, err := engine.Save(indexPath)
	saveSpan.End()
	if err != nil {
		return err
	}
	slog.Info("indexing completed",
		"indexed", stats.Indexed,
		"rejected", stats.Rejected,
		"terms", header.TermCount,
		"index_file", indexPath,
		"trace_id", span.TraceID,
	)
	return nil
}
