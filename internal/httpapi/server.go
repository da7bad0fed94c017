// Package httpapi is a thin HTTP transport over the engine façade. It is
// a convenience shell, not part of the façade's specified contract: every
// handler does nothing but decode a request, call one Engine method, and
// encode the result.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bpmnkit/engine/pkg/bpmn"
)

// NewRouter builds the chi router exposing engine as JSON endpoints.
func NewRouter(engine *bpmn.Engine, logger *zap.Logger) http.Handler {
	h := &handlers{engine: engine, logger: logger}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/processes", func(r chi.Router) {
		r.Post("/", h.startProcess)
		r.Post("/{processId}/start", h.startProcessById)
	})
	r.Route("/instances", func(r chi.Router) {
		r.Get("/", h.listActiveInstances)
		r.Get("/{instanceId}", h.getState)
		r.Get("/{instanceId}/tasks", h.getActiveTasks)
		r.Post("/{instanceId}/tasks/{taskId}/complete", h.completeTask)
		r.Post("/{instanceId}/signal/{eventId}", h.signalEvent)
		r.Post("/{instanceId}/suspend", h.suspend)
		r.Post("/{instanceId}/resume", h.resume)
		r.Post("/{instanceId}/terminate", h.terminate)
	})

	return r
}
