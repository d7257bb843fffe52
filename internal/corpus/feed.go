package corpus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashedsearch/retrieval-platform/pkg/config"
	"github.com/hashedsearch/retrieval-platform/pkg/kafka"
)

// Feed consumes one corpus snapshot from the corpus-documents topic.
type Feed struct {
	cfg    config.KafkaConfig
	topic  string
	logger *slog.Logger
}

// NewFeed creates a Feed reading from the given topic.
func NewFeed(cfg config.KafkaConfig, topic string) *Feed {
	return &Feed{
		cfg:    cfg,
		topic:  topic,
		logger: slog.Default().With("component", "corpus-feed", "topic", topic),
	}
}

// Collect consumes document envelopes until the snapshot_complete marker and
// returns the closed corpus. Duplicate document IDs keep the last delivery;
// the preprocessor may redeliver on its own retries.
func (f *Feed) Collect(ctx context.Context) ([]Document, string, error) {
	byID := make(map[string]int)
	docs := make([]Document, 0, 1024)
	var snapshotID string

	handler := func(ctx context.Context, key []byte, value []byte) error {
		env, err := kafka.DecodeJSON[Envelope](value)
		if err != nil {
			f.logger.Error("failed to decode corpus envelope", "error", err, "key", string(key))
			return nil
		}
		switch env.Type {
		case EnvelopeDocument:
			if env.Document == nil {
				f.logger.Warn("document envelope without document", "key", string(key))
				return nil
			}
			if i, seen := byID[env.Document.ID]; seen {
				docs[i] = *env.Document
				return nil
			}
			byID[env.Document.ID] = len(docs)
			docs = append(docs, *env.Document)
			return nil
		case EnvelopeSnapshotComplete:
			snapshotID = env.SnapshotID
			return kafka.ErrStopConsuming
		default:
			f.logger.Warn("unknown envelope type", "type", env.Type)
			return nil
		}
	}

	consumer := kafka.NewConsumer(f.cfg, f.topic, handler)
	if err := consumer.Start(ctx); err != nil {
		return nil, "", fmt.Errorf("consuming corpus snapshot: %w", err)
	}
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}
	f.logger.Info("corpus snapshot collected",
		"snapshot_id", snapshotID,
		"documents", len(docs),
	)
	return docs, snapshotID, nil
}
