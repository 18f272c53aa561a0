// Package observer owns the live aggregation context: the event store, the
// projection index, the signal engine and the optional journal. Callers pass
// one Observer explicitly; there is no process-global state.
package observer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/davidahmann/observer/core/digest"
	"github.com/davidahmann/observer/core/event"
	"github.com/davidahmann/observer/core/projection"
	"github.com/davidahmann/observer/core/signal"
	"github.com/davidahmann/observer/core/store"
)

// Version is reported as observer_version on every live response.
const Version = 1

// Recorder archives ingested batches. *journal.Journal satisfies it.
type Recorder interface {
	Record(ctx context.Context, events []event.ObservedEvent) error
}

type Options struct {
	Logger  *slog.Logger
	Journal Recorder
	Tracer  trace.Tracer
}

type Observer struct {
	ingestMu sync.Mutex
	store    *store.Store
	index    *projection.Index
	engine   signal.Engine
	journal  Recorder
	logger   *slog.Logger
	tracer   trace.Tracer

	// journalMu is taken before ingestMu is released so batches reach the
	// journal in store order.
	journalMu sync.Mutex
}

func New(options Options) *Observer {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := options.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("observer")
	}
	return &Observer{
		store:   store.New(),
		index:   projection.New(),
		journal: options.Journal,
		logger:  logger.With("component", "observer"),
		tracer:  tracer,
	}
}

type IngestResult struct {
	ObserverVersion int `json:"observer_version"`
	Ingested        int `json:"ingested"`
	Total           int `json:"total"`
}

// IngestItems converts every object item with event.FromGatewayEvent and
// ingests the batch in the given order. Non-object items are skipped.
func (o *Observer) IngestItems(ctx context.Context, items []any) IngestResult {
	batch := make([]event.ObservedEvent, 0, len(items))
	for _, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		batch = append(batch, event.FromGatewayEvent(raw))
	}
	return o.Ingest(ctx, batch)
}

// Ingest appends each event to the store and feeds it to the index in
// order. Events are never reordered or rejected; a non-increasing index is
// logged and accepted.
func (o *Observer) Ingest(ctx context.Context, batch []event.ObservedEvent) IngestResult {
	ctx, span := o.tracer.Start(ctx, "observer.ingest", trace.WithAttributes(attribute.Int("observer.batch_size", len(batch))))
	defer span.End()

	o.ingestMu.Lock()
	for _, observed := range batch {
		if last, ok := o.store.LastIndex(); ok && observed.Index <= last {
			o.logger.WarnContext(ctx, "non-increasing gateway index",
				"index", observed.Index,
				"last_index", last,
				"thread_id", observed.ThreadID,
			)
		}
		o.store.Append(observed)
		o.index.Feed(observed)
	}
	total := o.store.Count()
	if o.journal != nil && len(batch) > 0 {
		o.journalMu.Lock()
		o.ingestMu.Unlock()
		o.record(ctx, span, batch)
		o.journalMu.Unlock()
	} else {
		o.ingestMu.Unlock()
	}
	span.SetAttributes(attribute.Int("observer.total", total))
	return IngestResult{ObserverVersion: Version, Ingested: len(batch), Total: total}
}

// record archives a batch that is already in memory, so it runs detached
// from the caller's cancellation.
func (o *Observer) record(ctx context.Context, span trace.Span, batch []event.ObservedEvent) {
	if err := o.journal.Record(context.WithoutCancel(ctx), batch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "journal record failed")
		o.logger.ErrorContext(ctx, "journal record failed", "error", err, "batch_size", len(batch))
	}
}

type Status struct {
	ObserverVersion int                       `json:"observer_version"`
	EventCount      int                       `json:"event_count"`
	LastIndex       *int64                    `json:"last_index"`
	ThreadCount     int                       `json:"thread_count"`
	TurnCount       int                       `json:"turn_count"`
	DenyRate        float64                   `json:"deny_rate"`
	LatencyMS       projection.LatencyMetrics `json:"latency_ms"`
	ActiveSignals   map[string]int            `json:"active_signals"`
	Metrics         projection.SystemMetrics  `json:"metrics"`
	SnapshotDigest  string                    `json:"snapshot_digest"`
}

// Status reports system metrics and signal counts. SnapshotDigest is the
// RFC 8785 fingerprint of the projection snapshot the status was built from.
func (o *Observer) Status() (Status, error) {
	snapshot := o.index.Snapshot()
	signals := o.engine.Evaluate(snapshot)
	snapshotDigest, err := digest.JCS(snapshot)
	if err != nil {
		return Status{}, fmt.Errorf("fingerprint snapshot: %w", err)
	}
	status := Status{
		ObserverVersion: Version,
		EventCount:      o.store.Count(),
		ThreadCount:     snapshot.Metrics.ThreadCount,
		TurnCount:       snapshot.Metrics.TurnCount,
		DenyRate:        snapshot.Metrics.DenyRate,
		LatencyMS:       snapshot.Metrics.Latency,
		ActiveSignals:   signal.CountBySeverity(signals),
		Metrics:         snapshot.Metrics,
		SnapshotDigest:  snapshotDigest,
	}
	if last, ok := o.store.LastIndex(); ok {
		status.LastIndex = &last
	}
	return status, nil
}

type ThreadList struct {
	ObserverVersion int                        `json:"observer_version"`
	Threads         []projection.ThreadSummary `json:"threads"`
}

func (o *Observer) Threads() ThreadList {
	return ThreadList{ObserverVersion: Version, Threads: o.index.ListThreads()}
}

type ThreadDetail struct {
	ObserverVersion int                      `json:"observer_version"`
	Thread          projection.ThreadSummary `json:"thread"`
	Turns           []projection.TurnSummary `json:"turns"`
}

// Thread returns one thread with its turns ordered by first index. The flag
// is false when the thread has never been seen.
func (o *Observer) Thread(threadID string) (ThreadDetail, bool) {
	thread, ok := o.index.Thread(threadID)
	if !ok {
		return ThreadDetail{}, false
	}
	return ThreadDetail{
		ObserverVersion: Version,
		Thread:          thread,
		Turns:           o.index.ListTurnsForThread(threadID),
	}, true
}

type SignalList struct {
	ObserverVersion int             `json:"observer_version"`
	Signals         []signal.Signal `json:"signals"`
}

func (o *Observer) Signals() SignalList {
	return SignalList{ObserverVersion: Version, Signals: o.engine.Evaluate(o.index.Snapshot())}
}

// events returns a copy of every stored event in ingestion order.
func (o *Observer) events() []event.ObservedEvent {
	return o.store.All()
}
