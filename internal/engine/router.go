package engine

import (
	"github.com/gofiber/fiber/v2"

	"leads-dashboard/internal/instrument"
)

// RegisterRoutes mounts the dashboard API. Each route is guarded by authMW
// individually so the unauthenticated /api/auth routes stay reachable
// whatever the registration order.
func RegisterRoutes(app *fiber.App, h *Handler, events *instrument.EventHandler, authMW fiber.Handler) {
	api := app.Group("/api")

	api.Get("/overview", authMW, h.Overview)

	api.Get("/leads", authMW, h.ListLeads)
	api.Get("/leads/:id", authMW, h.GetLead)
	api.Put("/leads/:id", authMW, h.UpdateLead)

	api.Get("/contacts", authMW, h.ListContacts)

	api.Get("/fields", authMW, h.ListFields)
	api.Post("/fields", authMW, h.CreateField)
	api.Put("/fields/:id", authMW, h.UpdateField)
	api.Delete("/fields/:id", authMW, h.DeleteField)
	api.Get("/fields/:id/chart", authMW, h.FieldChart)

	api.Get("/company", authMW, h.GetCompany)

	api.Get("/events", authMW, events.List)
	api.Get("/events/trace/:traceId", authMW, events.GetTrace)
}
