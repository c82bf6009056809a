package instrument

import "context"

// noop is used for requests that are not traced: instrumentation disabled,
// sampled out, or work started outside an HTTP request (leadsctl).
type noop struct{}

func (noop) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (noop) EmitBusinessEvent(context.Context, string, string, string, map[string]any) {}

type noopSpan struct{}

func (noopSpan) End()                     {}
func (noopSpan) EndWith(error)            {}
func (noopSpan) SetStatus(string)         {}
func (noopSpan) SetMetadata(string, any)  {}
func (noopSpan) SetEntity(string, string) {}
func (noopSpan) SetScope(string, string)  {}
func (noopSpan) TraceID() string          { return "" }
func (noopSpan) SpanID() string           { return "" }
