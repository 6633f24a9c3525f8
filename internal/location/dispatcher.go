package location

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eta/internal/auth"
	"eta/internal/constants"
	"eta/internal/metrics"
	"eta/internal/session"
)

// Writer stores one location for one participant of a session.
type Writer interface {
	WriteLocation(ctx context.Context, token, sessionID, userID string, loc session.Location) error
}

// Dispatcher writes a fix to every target session. Each batch fetches one
// token and then issues independent writes; a token failure drops the batch.
type Dispatcher struct {
	userID       string
	tokens       auth.TokenSource
	writer       Writer
	writeTimeout time.Duration
	tracer       trace.Tracer
	log          zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(userID string, tokens auth.TokenSource, writer Writer, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		userID:       userID,
		tokens:       tokens,
		writer:       writer,
		writeTimeout: constants.WriteTimeout,
		tracer:       otel.Tracer("eta/location"),
		log:          log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch starts a batch for loc and returns without waiting for it.
func (d *Dispatcher) Dispatch(loc session.Location, targets []session.Session) {
	if len(targets) == 0 {
		metrics.RecordBatch("empty")
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	ids := make([]string, len(targets))
	for i, s := range targets {
		ids[i] = s.Identifier
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(loc, ids)
	}()
}

// Close stops new writes. Writes already issued finish on their own.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// Wait blocks until every started batch and write has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(loc session.Location, ids []string) {
	ctx, span := d.tracer.Start(context.Background(), "location.dispatch",
		trace.WithAttributes(
			attribute.String("user.id", d.userID),
			attribute.Int("dispatch.targets", len(ids)),
		),
	)
	defer span.End()

	tokenCtx, cancel := context.WithTimeout(ctx, constants.AuthorizeTimeout)
	token, err := d.tokens.Token(tokenCtx)
	cancel()
	if err != nil {
		metrics.RecordBatch("unauthorized")
		span.RecordError(err)
		span.SetStatus(codes.Error, "authorization failed")
		d.log.Error().Err(err).Int("targets", len(ids)).Msg("authorization failed, dropping location batch")
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	var writes sync.WaitGroup
	for _, id := range ids {
		writes.Add(1)
		d.wg.Add(1)
		go func(id string) {
			defer d.wg.Done()
			defer writes.Done()
			d.write(ctx, token, id, loc)
		}(id)
	}
	d.mu.Unlock()

	metrics.RecordBatch("ok")
	writes.Wait()
}

func (d *Dispatcher) write(ctx context.Context, token, sessionID string, loc session.Location) {
	ctx, span := d.tracer.Start(ctx, "location.write",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, d.writeTimeout)
	defer cancel()

	start := time.Now()
	err := d.writer.WriteLocation(ctx, token, sessionID, d.userID, loc)
	metrics.RecordWrite(err == nil, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		d.log.Warn().Err(err).Str("session_id", sessionID).Msg("location write failed")
		return
	}
	d.log.Debug().Str("session_id", sessionID).Msg("location written")
}
