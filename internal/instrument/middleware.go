package instrument

import (
	"math/rand"

	"github.com/gofiber/fiber/v2"

	"leads-dashboard/internal/config"
)

// Locals keys read after the request completes. The auth middleware sets them.
const (
	LocalUserID    = "user_id"
	LocalCompanyID = "company_id"
)

// TraceHeader carries the trace ID in and out of the service.
const TraceHeader = "X-Trace-ID"

// Middleware traces a sampled share of requests. The request span is the
// parent of every span the handler opens with Start; it is scoped to the
// user and company once the handler chain has run, since authentication
// happens further down.
func Middleware(cfg config.InstrumentationConfig, buffer *EventBuffer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.Enabled || buffer == nil {
			return c.Next()
		}
		if cfg.SamplingRate < 1.0 && rand.Float64() > cfg.SamplingRate {
			return c.Next()
		}

		traceID := c.Get(TraceHeader)
		if traceID == "" {
			traceID = newID()
		}
		c.Set(TraceHeader, traceID)

		tracer := NewTracer(buffer)
		ctx := WithInstrumenter(WithTraceID(c.UserContext(), traceID), tracer)
		ctx, span := tracer.StartSpan(ctx, "http", "api", c.Method())
		span.SetMetadata("path", c.Path())
		c.SetUserContext(ctx)

		err := c.Next()

		userID, _ := c.Locals(LocalUserID).(string)
		companyID, _ := c.Locals(LocalCompanyID).(string)
		span.SetScope(userID, companyID)
		span.SetMetadata("route", c.Route().Path)

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		span.SetMetadata("status_code", status)
		if err != nil || status >= 400 {
			span.SetStatus(StatusError)
		} else {
			span.SetStatus(StatusOK)
		}
		span.End()
		return err
	}
}
