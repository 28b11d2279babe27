package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andrewoneill45-ctrl/school-profile/pkg/config"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/kafka"
)

// Publisher is the subset of kafka.Producer the collector needs.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Collector buffers events in a channel and publishes them in batches, when a
// batch fills or when the flush interval passes. Tracking never blocks the
// request path: a full buffer drops the event.
type Collector struct {
	publisher     Publisher
	eventCh       chan kafka.Event
	batchSize     int
	flushInterval time.Duration

	mu      sync.RWMutex
	closed  bool
	started atomic.Bool

	dropped   atomic.Int64
	published atomic.Int64
	failed    atomic.Int64

	logger *slog.Logger
	done   chan struct{}
}

func NewCollector(publisher Publisher, cfg config.AnalyticsConfig) *Collector {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan kafka.Event, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. It runs until ctx is cancelled or Close
// is called, flushing whatever is buffered on the way out.
func (c *Collector) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.finalFlush(batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.batchSize {
				c.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			c.flush(ctx, batch)
			batch = batch[:0]
		case <-ctx.Done():
			c.finalFlush(c.drain(batch))
			return
		}
	}
}

func (c *Collector) TrackSearch(event SearchEvent) {
	if event.Type == "" {
		event.Type = EventSearch
		if event.TotalHits == 0 {
			event.Type = EventZeroResult
		}
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	c.track(kafka.Event{Key: string(event.Type), Value: event})
}

func (c *Collector) TrackProfile(event ProfileEvent) {
	event.Type = EventProfileView
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	// keyed by URN so views of one school stay on one partition
	c.track(kafka.Event{Key: event.URN, Value: event})
}

func (c *Collector) track(event kafka.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		c.logger.Warn("analytics event dropped (buffer full)", "key", event.Key)
	}
}

// Close stops accepting events, flushes the buffer and waits for the publish
// loop to exit. It is safe to call more than once.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()

	if c.started.Load() {
		<-c.done
	}
}

// Dropped is the number of events lost to a full buffer or a closed collector.
func (c *Collector) Dropped() int64 { return c.dropped.Load() }

// Published is the number of events the broker accepted.
func (c *Collector) Published() int64 { return c.published.Load() }

// Failed is the number of events in batches the broker rejected.
func (c *Collector) Failed() int64 { return c.failed.Load() }

func (c *Collector) drain(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, event)
		default:
			return batch
		}
	}
}

func (c *Collector) finalFlush(batch []kafka.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.flush(ctx, batch)
}

func (c *Collector) flush(ctx context.Context, batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	if err := c.publisher.Publish(ctx, batch...); err != nil {
		c.failed.Add(int64(len(batch)))
		c.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		return
	}
	c.published.Add(int64(len(batch)))
	c.logger.Debug("batch flushed", "events", len(batch))
}
