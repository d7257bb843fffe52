package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashedsearch/retrieval-platform/internal/builder"
	"github.com/hashedsearch/retrieval-platform/internal/catalog"
	"github.com/hashedsearch/retrieval-platform/internal/corpus"
	"github.com/hashedsearch/retrieval-platform/internal/events"
	"github.com/hashedsearch/retrieval-platform/internal/index/artifact"
	"github.com/hashedsearch/retrieval-platform/pkg/config"
	"github.com/hashedsearch/retrieval-platform/pkg/kafka"
	"github.com/hashedsearch/retrieval-platform/pkg/logger"
	"github.com/hashedsearch/retrieval-platform/pkg/metrics"
	"github.com/hashedsearch/retrieval-platform/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting index builder",
		"buckets", cfg.Index.Buckets,
		"min_doc_freq", cfg.Index.MinDocFreq,
		"data_dir", cfg.Index.DataDir,
	)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *catalog.Store
	pgClient, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, builds will not be cataloged", "error", err)
	} else {
		defer pgClient.Close()
		store, err = catalog.NewStore(ctx, pgClient)
		if err != nil {
			slog.Error("failed to initialize build catalog", "error", err)
			os.Exit(1)
		}
	}

	b, err := builder.New(cfg.Index)
	if err != nil {
		slog.Error("invalid index configuration", "error", err)
		os.Exit(1)
	}

	feed := corpus.NewFeed(cfg.Kafka, cfg.Kafka.Topics.CorpusDocuments)
	slog.Info("waiting for corpus snapshot", "topic", cfg.Kafka.Topics.CorpusDocuments)
	docs, snapshotID, err := feed.Collect(ctx)
	if err != nil {
		slog.Error("corpus collection failed", "error", err)
		os.Exit(1)
	}

	ix, stats, err := b.Build(ctx, docs)
	if err != nil {
		if m != nil {
			m.BuildsTotal.WithLabelValues("failure").Inc()
		}
		slog.Error("index build failed", "snapshot_id", snapshotID, "error", err)
		os.Exit(1)
	}
	if m != nil {
		m.BuildsTotal.WithLabelValues("success").Inc()
		m.BuildDuration.Observe(stats.Duration.Seconds())
		m.DocsVectorizedTotal.Add(float64(stats.Docs))
	}

	name, err := artifact.Write(cfg.Index.DataDir, ix)
	if err != nil {
		slog.Error("failed to persist index artifact", "error", err)
		os.Exit(1)
	}
	slog.Info("index artifact written", "artifact", name, "documents", stats.Docs)

	var buildID int64
	if store != nil {
		buildID, err = store.Record(ctx, catalog.Build{
			SnapshotID:   snapshotID,
			Buckets:      cfg.Index.Buckets,
			MinDocFreq:   cfg.Index.MinDocFreq,
			DocCount:     stats.Docs,
			ArtifactName: name,
			BuildMillis:  stats.Duration.Milliseconds(),
		})
		if err != nil {
			slog.Error("failed to record build in catalog", "error", err)
		}
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	defer producer.Close()
	event := events.BuildEvent{
		BuildID:      buildID,
		SnapshotID:   snapshotID,
		ArtifactName: name,
		DocCount:     stats.Docs,
		Timestamp:    time.Now().UTC(),
	}
	if err := producer.Publish(ctx, kafka.Event{Key: snapshotID, Value: event}); err != nil {
		slog.Error("failed to publish build event", "error", err)
	}

	slog.Info("index build complete",
		"snapshot_id", snapshotID,
		"artifact", name,
		"documents", stats.Docs,
		"active_buckets", stats.ActiveBuckets,
		"suppressed_buckets", stats.SuppressedBuckets,
		"duration", stats.Duration,
	)
}
