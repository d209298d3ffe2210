package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/onnwee/docaudit/internal/audit"
	"github.com/onnwee/docaudit/internal/dispatch"
)

// Dispatcher records a change event. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev dispatch.Event) (audit.Record, error)
}

// Processor turns stream frames into dispatched events. Messages are handled
// one at a time in arrival order.
type Processor struct {
	dispatcher Dispatcher
	cursors    CursorTracker
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewProcessor creates a Processor. cursors and metrics may be nil.
func NewProcessor(d Dispatcher, cursors CursorTracker, metrics *Metrics, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		dispatcher: d,
		cursors:    cursors,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Handle implements MessageHandler.
//
// Malformed messages and failed records are logged and skipped; emission is
// never retried. Only a cursor store failure is returned, which makes the
// client reconnect.
func (p *Processor) Handle(ctx context.Context, messageType int, payload []byte) error {
	start := p.now()

	msg, err := DecodeMessage(messageType, payload)
	if err != nil {
		p.fail("failed to decode change message", err)
		return nil
	}

	ev, err := msg.Event()
	if err != nil {
		p.fail("invalid change message", err, slog.Int64("time_us", msg.TimeUS))
		return p.advance(ctx, msg.TimeUS)
	}

	_, err = p.dispatcher.Dispatch(ctx, ev)
	switch {
	case errors.Is(err, dispatch.ErrUnknownRoute):
		p.logger.Debug("skipping change with no route",
			slog.String("collection", ev.Collection),
			slog.String("operation", string(ev.Operation)))
		if p.metrics != nil {
			p.metrics.IncMessagesSkipped()
		}
	case err != nil:
		p.fail("failed to record change", err,
			slog.String("collection", ev.Collection),
			slog.String("doc_id", ev.DocID),
			slog.Int64("time_us", msg.TimeUS))
	default:
		if p.metrics != nil {
			p.metrics.IncMessagesProcessed()
		}
	}

	if p.metrics != nil {
		now := p.now()
		p.metrics.ObserveIngestLatency(now.Sub(start).Seconds())
		if msg.TimeUS > 0 {
			p.metrics.SetProcessingLag(now.Sub(time.UnixMicro(msg.TimeUS)).Seconds())
		}
	}

	return p.advance(ctx, msg.TimeUS)
}

func (p *Processor) advance(ctx context.Context, cursor int64) error {
	if p.cursors == nil || cursor <= 0 {
		return nil
	}
	return p.cursors.Advance(ctx, cursor)
}

func (p *Processor) fail(msg string, err error, attrs ...any) {
	if p.metrics != nil {
		p.metrics.IncMessagesError()
	}
	p.logger.Warn(msg, append([]any{slog.String("error", err.Error())}, attrs...)...)
}
