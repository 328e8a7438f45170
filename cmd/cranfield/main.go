// Command cranfield runs the full Cranfield experiment: it indexes the
// corpus, runs every query of the query file and writes a TREC run file.
// With kafka.enabled the results are also published per query.
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
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/results"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	docsPath := flag.String("docs", "", "corpus file, overrides corpus.documentsPath")
	queriesPath := flag.String("queries", "", "query file, overrides corpus.queriesPath")
	outPath := flag.String("out", "", "run file, overrides corpus.resultsPath")
	save := flag.Bool("save", false, "also save the index to indexer.indexFile")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *docsPath != "" {
		cfg.Corpus.DocumentsPath = *docsPath
	}
	if *queriesPath != "" {
		cfg.Corpus.QueriesPath = *queriesPath
	}
	if *outPath != "" {
		cfg.Corpus.ResultsPath = *outPath
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *save); err != nil {
		slog.Error("cranfield run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, save bool) error {
	ctx, span := tracing.StartSpan(ctx, "cranfield-run", "")
	defer func() {
		span.End()
		span.Log(ctx, slog.LevelInfo, 2)
	}()
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	engine, err := buildIndex(ctx, cfg, m)
	if err != nil {
		return err
	}
	if save {
		_, saveSpan := tracing.StartChildSpan(ctx, "save")
		_, err := engine.Save(cfg.Indexer.IndexPath())
		saveSpan.End()
		if err != nil {
			return err
		}
	}

	_, querySpan := tracing.StartChildSpan(ctx, "load-queries")
	queries, err := corpus.LoadQueries(ctx, cfg.Corpus.QueriesPath, corpus.QueryOptions{
		Sequential: cfg.Corpus.SequentialQueryIDs,
	})
	querySpan.End()
	if err != nil {
		return err
	}
	batch := make([]executor.Query, len(queries))
	for i, q := range queries {
		batch[i] = executor.Query{ID: q.ID, Text: parser.Escape(q.Text)}
	}

	op, _ := query.ParseOp(cfg.Search.DefaultOperator)
	exec := executor.New(engine, executor.Options{
		Fields:          cfg.Search.Fields,
		DefaultOperator: op,
		IDField:         cfg.Search.IDField,
		MaxConcurrent:   cfg.Search.MaxConcurrentQueries,
		Timeout:         cfg.Search.Timeout,
	}, m)
	searchCtx, searchSpan := tracing.StartChildSpan(ctx, "search")
	out, err := exec.Run(searchCtx, batch, cfg.Search.MaxResults)
	searchSpan.End()
	if err != nil {
		return err
	}

	_, writeSpan := tracing.StartChildSpan(ctx, "write")
	defer writeSpan.End()
	w, err := openWriters(cfg, m)
	if err != nil {
		return err
	}
	written, failed := 0, 0
	for _, r := range out {
		if r.Err != nil {
			failed++
			continue
		}
		if err := w.Write(ctx, r.Query.ID, r.Result.Hits); err != nil {
			w.Close()
			return fmt.Errorf("writing results for query %s: %w", r.Query.ID, err)
		}
		written += len(r.Result.Hits)
	}
	if err := w.Close(); err != nil {
		return err
	}
	writeSpan.SetAttr("results", written)
	writeSpan.End()

	span.SetAttr("queries", len(batch))
	span.SetAttr("failed", failed)
	slog.Info("cranfield run completed",
		"queries", len(batch),
		"failed", failed,
		"results", written,
		"run_file", cfg.Corpus.ResultsPath,
		"trace_id", span.TraceID,
	)
	return nil
}

func buildIndex(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*indexer.Engine, error) {
	ctx, span := tracing.StartChildSpan(ctx, "index")
	defer span.End()
	opts, err := indexer.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	engine, err := indexer.NewEngine(opts, m)
	if err != nil {
		return nil, err
	}
	src, err := corpus.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	_, loadSpan := tracing.StartChildSpan(ctx, "load")
	stats, err := corpus.Load(ctx, src, engine)
	loadSpan.End()
	if err != nil {
		return nil, err
	}
	loadSpan.SetAttr("indexed", stats.Indexed)
	loadSpan.SetAttr("rejected", stats.Rejected)

	_, finalizeSpan := tracing.StartChildSpan(ctx, "finalize")
	store, err := engine.Finalize()
	finalizeSpan.End()
	if err != nil {
		return nil, err
	}
	finalizeSpan.SetAttr("segments", store.Segments())
	if cfg.Indexer.Compact {
		_, compactSpan := tracing.StartChildSpan(ctx, "compact")
		err := engine.Compact()
		compactSpan.End()
		if err != nil {
			return nil, err
		}
	}
	slog.Info("index ready",
		"indexed", stats.Indexed,
		"rejected", stats.Rejected,
		"documents", store.NumDocs(),
		"generation", store.Generation(),
	)
	return engine, nil
}

func openWriters(cfg *config.Config, m *metrics.Metrics) (results.Writer, error) {
	trec, err := results.CreateTRECFile(cfg.Corpus.ResultsPath, cfg.Corpus.RunTag, m)
	if err != nil {
		return nil, err
	}
	if !cfg.Kafka.Enabled {
		return trec, nil
	}
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchResults)
	slog.Info("publishing results to kafka", "topic", cfg.Kafka.Topics.SearchResults, "brokers", cfg.Kafka.Brokers)
	return results.MultiWriter{trec, results.NewKafkaWriter(producer, cfg.Corpus.RunTag, m)}, nil
}
