package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	boardEventName   = "board.request"
	boardEventDomain = "task-management"
	boardRoute       = "/projects/:id/board"
)

// boardRequestMetrics collects per-request timings for the board endpoint
// and emits one structured observability event plus a trace span when the
// request settles.
type boardRequestMetrics struct {
	logger          *log.Logger
	span            trace.Span
	start           time.Time
	authDuration    time.Duration
	fetchDuration   time.Duration
	columnsReturned int
	errorStage      string
}

func newBoardRequestMetrics(ctx context.Context, logger *log.Logger) *boardRequestMetrics {
	_, span := otel.Tracer("server/api").Start(ctx, boardEventName)
	return &boardRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}
}

func (m *boardRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *boardRequestMetrics) ObserveFetch(d time.Duration) {
	if d > 0 {
		m.fetchDuration = d
	}
}

func (m *boardRequestMetrics) SetColumnsReturned(n int) {
	if n < 0 {
		n = 0
	}
	m.columnsReturned = n
}

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finalizes the span and emits the observability event.
func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	attrs := map[string]any{
		"http.route":       boardRoute,
		"http.status_code": status,
		"board.columns":    m.columnsReturned,
		"request.total_ms": float64(time.Since(m.start)) / float64(time.Millisecond),
		"request.auth_ms":  float64(m.authDuration) / float64(time.Millisecond),
		"request.fetch_ms": float64(m.fetchDuration) / float64(time.Millisecond),
	}
	if m.errorStage != "" {
		attrs["error.stage"] = m.errorStage
	}

	if m.span != nil {
		m.span.SetAttributes(
			attribute.String("http.route", boardRoute),
			attribute.Int("http.status_code", status),
			attribute.Int("board.columns", m.columnsReturned),
		)
		if err != nil {
			m.span.SetStatus(codes.Error, err.Error())
			m.span.RecordError(err)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":   boardEventName,
		"event.domain": boardEventDomain,
		"attributes":   attrs,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("observability.event")
}
