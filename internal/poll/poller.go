// Package poll implements the background polling engine. It tracks items
// whose remote ingestion is still in flight: while an item holds an operation
// handle and has not reached a terminal status, the poller asks the remote
// service for the operation's outcome and folds the answer back into the
// store.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/docmirror/docmirror/internal/events"
	"github.com/docmirror/docmirror/internal/model"
	"github.com/docmirror/docmirror/internal/remote"
	"github.com/docmirror/docmirror/internal/wake"
)

const (
	otelScope = "docmirror/poll"
	spanCycle = "poll.cycle"

	metricResolved = "docmirror.poll.operations.resolved"
	metricErrors   = "docmirror.poll.errors"

	// ActiveInterval is the wait while operations are outstanding.
	ActiveInterval = 5 * time.Second
	// IdleInterval is the wait when nothing is in flight.
	IdleInterval = 30 * time.Second
)

// Gateway is the subset of the remote client the poller needs.
// Implemented by [remote.Client].
type Gateway interface {
	GetOperation(ctx context.Context, name string) (*remote.Operation, error)
	GetItem(ctx context.Context, remoteName string) (*remote.Item, error)
}

// Store is the subset of the persistent store the poller needs.
// Implemented by [state.Store].
type Store interface {
	ItemsWithPendingOperations(ctx context.Context) ([]*model.Item, error)
	ResolveItemFromRemote(ctx context.Context, id, remoteName, mimeType string, status model.ItemStatus) error
	MarkItemOperationFailed(ctx context.Context, id, errMsg string) error
}

// Poller resolves outstanding remote operations. Create one with [NewPoller]
// and start it with [Poller.Start].
type Poller struct {
	store  Store
	gw     Gateway
	bus    *events.Bus
	signal *wake.Signal
	log    *slog.Logger

	activeInterval time.Duration
	idleInterval   time.Duration

	tracer      trace.Tracer
	cntResolved metric.Int64Counter
	cntErrors   metric.Int64Counter
}

// NewPoller creates a Poller. idleInterval is the wait when nothing is in
// flight; zero means [IdleInterval].
func NewPoller(store Store, gw Gateway, bus *events.Bus, signal *wake.Signal, idleInterval time.Duration, logger *slog.Logger) *Poller {
	if idleInterval == 0 {
		idleInterval = IdleInterval
	}
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Poller{
		store:  store,
		gw:     gw,
		bus:    bus,
		signal: signal,
		log:    logger,

		activeInterval: ActiveInterval,
		idleInterval:   idleInterval,

		tracer:      tracer,
		cntResolved: mustCounter(metricResolved, "Number of remote operations resolved"),
		cntErrors:   mustCounter(metricErrors, "Number of polling errors"),
	}
}

// Start launches the background loop. A second Start is a no-op.
func (p *Poller) Start(ctx context.Context) {
	if !p.signal.TryStart() {
		return
	}
	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	for {
		hadWork := p.Cycle(ctx)

		interval := p.idleInterval
		if hadWork {
			interval = p.activeInterval
		}
		if err := p.signal.Wait(ctx, interval); err != nil {
			p.log.Info("polling engine shutting down")
			return
		}
	}
}

// Cycle checks every outstanding operation once and reports whether any were
// found. Exported so sync-once mode can drive it to completion.
func (p *Poller) Cycle(ctx context.Context) bool {
	ctx, span := p.tracer.Start(ctx, spanCycle)
	defer span.End()

	items, err := p.store.ItemsWithPendingOperations(ctx)
	if err != nil {
		p.log.Error("scanning pending operations", "error", err)
		return false
	}
	span.SetAttributes(attribute.Int("poll.pending", len(items)))
	if len(items) == 0 {
		return false
	}

	for _, it := range items {
		if err := p.checkItem(ctx, it); err != nil {
			p.log.Error("checking operation", "item_id", it.ID, "operation", it.OperationName, "error", err)
			p.cntErrors.Add(ctx, 1)
		}
	}
	return true
}

// checkItem asks the remote service about one item's operation. Transport
// errors leave the item untouched for the next cycle; a finished operation
// resolves it one way or the other.
func (p *Poller) checkItem(ctx context.Context, it *model.Item) error {
	op, err := p.gw.GetOperation(ctx, it.OperationName)
	if err != nil {
		return fmt.Errorf("fetching operation: %w", err)
	}
	if !op.Done {
		return nil
	}

	if op.Error != nil {
		msg := op.Error.Message
		if msg == "" {
			msg = fmt.Sprintf("remote operation failed with code %d", op.Error.Code)
		}
		if err := p.store.MarkItemOperationFailed(ctx, it.ID, msg); err != nil {
			return fmt.Errorf("recording operation failure: %w", err)
		}
		p.cntResolved.Add(ctx, 1)
		p.log.Warn("item ingestion failed", "item_id", it.ID, "error", msg)
		p.bus.Publish(events.ItemStatusUpdated, events.ItemStatusPayload{
			ItemID:       it.ID,
			CollectionID: it.CollectionID,
			Status:       string(model.StatusFailed),
			Error:        msg,
		})
		return nil
	}

	remoteName := ""
	if op.Response != nil {
		remoteName = op.Response.DocumentName
	}
	if remoteName == "" {
		err := fmt.Errorf("operation finished without a document reference")
		if dbErr := p.store.MarkItemOperationFailed(ctx, it.ID, err.Error()); dbErr != nil {
			return fmt.Errorf("recording operation failure: %w", dbErr)
		}
		p.cntResolved.Add(ctx, 1)
		p.bus.Publish(events.ItemStatusUpdated, events.ItemStatusPayload{
			ItemID:       it.ID,
			CollectionID: it.CollectionID,
			Status:       string(model.StatusFailed),
			Error:        err.Error(),
		})
		return nil
	}

	// The operation only says the upload finished; the document's ingestion
	// state lives on the document itself. A failed metadata fetch leaves the
	// item in the polling set so the next cycle asks again.
	doc, err := p.gw.GetItem(ctx, remoteName)
	if err != nil {
		return fmt.Errorf("fetching remote document state: %w", err)
	}
	status := MapRemoteState(doc.State)
	mimeType := it.MIMEType
	if doc.MIMEType != "" {
		mimeType = doc.MIMEType
	}

	if err := p.store.ResolveItemFromRemote(ctx, it.ID, remoteName, mimeType, status); err != nil {
		return fmt.Errorf("recording resolved item: %w", err)
	}
	p.cntResolved.Add(ctx, 1)
	p.log.Info("item resolved", "item_id", it.ID, "remote_name", remoteName, "status", status)
	p.bus.Publish(events.ItemStatusUpdated, events.ItemStatusPayload{
		ItemID:       it.ID,
		CollectionID: it.CollectionID,
		Status:       string(status),
		RemoteName:   remoteName,
	})
	return nil
}

// MapRemoteState folds the remote service's document state strings into local
// statuses. The remote vocabulary drifts between API revisions, so matching
// is by substring: anything mentioning active counts as completed, pending as
// still processing, fail as failed. Unrecognized states count as completed so
// a new remote success vocabulary never wedges an item in processing.
func MapRemoteState(s string) model.ItemStatus {
	ls := strings.ToLower(s)
	switch {
	case strings.Contains(ls, "active"):
		return model.StatusCompleted
	case strings.Contains(ls, "pending"):
		return model.StatusProcessing
	case strings.Contains(ls, "fail"):
		return model.StatusFailed
	default:
		return model.StatusCompleted
	}
}
