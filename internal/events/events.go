// Package events publishes search analytics events to Kafka. Tracking is
// fire-and-forget through a buffered channel: a slow broker degrades
// analytics, never query latency.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashedsearch/retrieval-platform/pkg/kafka"
)

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventCacheHit   EventType = "cache_hit"
	EventIndexSwap  EventType = "index_swap"
)

// QueryEvent describes one answered search query.
type QueryEvent struct {
	Type      EventType `json:"type"`
	Tokens    []string  `json:"tokens"`
	K         int       `json:"k"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// BuildEvent announces a completed index build on the index-complete topic.
// Searchers react by loading the named artifact and swapping it in
// wholesale; the previous index keeps serving in-flight queries untouched.
type BuildEvent struct {
	BuildID      int64     `json:"build_id"`
	SnapshotID   string    `json:"snapshot_id"`
	ArtifactName string    `json:"artifact_name"`
	DocCount     int       `json:"doc_count"`
	Timestamp    time.Time `json:"timestamp"`
}

// Collector forwards events from a bounded buffer to a Kafka producer.
type Collector struct {
	producer *kafka.Producer
	eventCh  chan any
	logger   *slog.Logger
	done     chan struct{}
}

// NewCollector creates a Collector with the given buffer size.
func NewCollector(producer *kafka.Producer, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		eventCh:  make(chan any, bufferSize),
		logger:   slog.Default().With("component", "query-events"),
		done:     make(chan struct{}),
	}
}

// Start launches the publish loop. On ctx cancellation it drains whatever
// is still buffered before returning.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				if err := c.producer.Publish(ctx, kafka.Event{Key: "query", Value: event}); err != nil {
					c.logger.Error("failed to publish query event", "error", err)
				}
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("query event collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues an event, dropping it if the buffer is full.
func (c *Collector) Track(event any) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("query event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the publish loop to exit.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			if err := c.producer.Publish(context.Background(), kafka.Event{Key: "query", Value: event}); err != nil {
				c.logger.Error("failed to publish remaining event", "error", err)
			}
		default:
			return
		}
	}
}
