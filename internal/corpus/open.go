package corpus

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/resilience"
)

// Open returns the document source named by cfg.Corpus.Source. For the
// postgres source the connection is retried and owned by the returned
// Source; closing it closes the connection.
func Open(ctx context.Context, cfg *config.Config) (Source, error) {
	switch cfg.Corpus.Source {
	case "cranfield":
		r, err := OpenCranfield(cfg.Corpus.DocumentsPath)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "postgres":
		var client *postgres.Client
		err := resilience.Retry(ctx, "connect-postgres", resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 500 * time.Millisecond,
		}, func() error {
			var err error
			client, err = postgres.New(cfg.Postgres)
			return err
		})
		if err != nil {
			return nil, err
		}
		src, err := NewPostgresSource(ctx, client, cfg.Corpus.Table, cfg.Search.Fields)
		if err != nil {
			client.Close()
			return nil, err
		}
		return &ownedSource{Source: src, client: client}, nil
	default:
		return nil, fmt.Errorf("unknown corpus source %q", cfg.Corpus.Source)
	}
}

type ownedSource struct {
	Source
	client *postgres.Client
}

func (o *ownedSource) Close() error {
	err := o.Source.Close()
	if cerr := o.client.Close(); err == nil {
		err = cerr
	}
	return err
}
