// Package instrument records what the dashboard does: timed spans for HTTP
// requests and the operations under them, business events for every change
// to fields and leads, and Prometheus metrics. Spans and events land in the
// _events table through EventBuffer.
package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	parentSpanIDKey
	instrumenterKey
	userIDKey
	companyIDKey
)

// Span status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Instrumenter opens spans and emits business events.
type Instrumenter interface {
	StartSpan(ctx context.Context, source, component, action string) (context.Context, Span)
	EmitBusinessEvent(ctx context.Context, action, entity, recordID string, metadata map[string]any)
}

// Span is a timed operation. End is idempotent.
type Span interface {
	End()
	// EndWith sets the status from err, records its message and ends the span.
	EndWith(err error)
	SetStatus(status string)
	SetMetadata(key string, value any)
	SetEntity(entity, recordID string)
	// SetScope attaches the user and company once authentication resolved them.
	SetScope(userID, companyID string)
	TraceID() string
	SpanID() string
}

// Event is a row of the _events table.
type Event struct {
	ID           string         `json:"id"`
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID *string        `json:"parent_span_id"`
	EventType    string         `json:"event_type"`
	Source       string         `json:"source"`
	Component    string         `json:"component"`
	Action       string         `json:"action"`
	CompanyID    *string        `json:"company_id"`
	Entity       *string        `json:"entity"`
	RecordID     *string        `json:"record_id"`
	UserID       *string        `json:"user_id"`
	DurationMs   *float64       `json:"duration_ms"`
	Status       *string        `json:"status"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, instrumenterKey, inst)
}

// GetInstrumenter returns the request's instrumenter, or a no-op one when
// the request is not traced.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if v, ok := ctx.Value(instrumenterKey).(Instrumenter); ok {
		return v
	}
	return noop{}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithCompanyID scopes spans and events started from ctx to a company.
func WithCompanyID(ctx context.Context, companyID string) context.Context {
	return context.WithValue(ctx, companyIDKey, companyID)
}

// Start opens a span for a dashboard operation, nested under whatever span
// ctx carries.
func Start(ctx context.Context, component, action string) (context.Context, Span) {
	return GetInstrumenter(ctx).StartSpan(ctx, "dashboard", component, action)
}

func newID() string { return uuid.New().String() }

func optString(ctx context.Context, key ctxKey) *string {
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return &v
	}
	return nil
}

// Tracer writes spans and business events to an EventBuffer.
type Tracer struct {
	buffer *EventBuffer
}

func NewTracer(buffer *EventBuffer) *Tracer {
	return &Tracer{buffer: buffer}
}

// scopedEvent fills the fields every event shares: trace, parent span and
// the user and company carried by ctx.
func scopedEvent(ctx context.Context, eventType, source, component, action string) Event {
	ev := Event{
		TraceID:   GetTraceID(ctx),
		SpanID:    newID(),
		EventType: eventType,
		Source:    source,
		Component: component,
		Action:    action,
		UserID:    optString(ctx, userIDKey),
		CompanyID: optString(ctx, companyIDKey),
	}
	ev.ParentSpanID = optString(ctx, parentSpanIDKey)
	return ev
}

func (t *Tracer) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	s := &span{
		ev:       scopedEvent(ctx, "system", source, component, action),
		start:    time.Now(),
		metadata: make(map[string]any),
		buffer:   t.buffer,
	}
	return context.WithValue(ctx, parentSpanIDKey, s.ev.SpanID), s
}

// EmitBusinessEvent records a one-shot change such as "field.updated".
func (t *Tracer) EmitBusinessEvent(ctx context.Context, action, entity, recordID string, metadata map[string]any) {
	ev := scopedEvent(ctx, "business", "business", "api", action)
	ev.Metadata = metadata
	if entity != "" {
		ev.Entity = &entity
	}
	if recordID != "" {
		ev.RecordID = &recordID
	}
	t.buffer.Enqueue(ev)
}

type span struct {
	mu       sync.Mutex
	ev       Event
	start    time.Time
	metadata map[string]any
	buffer   *EventBuffer
	ended    bool
}

func (s *span) TraceID() string { return s.ev.TraceID }
func (s *span) SpanID() string  { return s.ev.SpanID }

func (s *span) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ev.Status = &status
}

func (s *span) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = value
}

func (s *span) SetEntity(entity, recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ev.Entity = &entity
	if recordID != "" {
		s.ev.RecordID = &recordID
	}
}

func (s *span) SetScope(userID, companyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID != "" {
		s.ev.UserID = &userID
	}
	if companyID != "" {
		s.ev.CompanyID = &companyID
	}
}

func (s *span) EndWith(err error) {
	if err != nil {
		s.SetMetadata("error", err.Error())
		s.SetStatus(StatusError)
	} else {
		s.SetStatus(StatusOK)
	}
	s.End()
}

func (s *span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true

	ms := float64(time.Since(s.start).Microseconds()) / 1000.0
	ev := s.ev
	ev.DurationMs = &ms
	ev.Metadata = s.metadata
	s.buffer.Enqueue(ev)
}
