// Package httpapi exposes the allocation service over a JSON HTTP API.
package httpapi

import (
	"assemblycore/docs/schema/openapi"
	"assemblycore/internal/core"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler wires the REST endpoints to the core service.
type Handler struct {
	service *core.Service
	logger  *zap.Logger
}

// NewHandler constructs a handler. A nil logger disables request logging.
func NewHandler(service *core.Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes builds the chi router serving every /api endpoint.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestLogger(h.logger))
	h.Register(r)
	return r
}

// Register mounts the API endpoints on an existing router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/openapi.yaml", serveSpec)
	r.Route("/api/parts", func(r chi.Router) {
		r.Get("/", h.listParts)
		r.Post("/", h.createPart)
		r.Get("/available", h.availableParts)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getPart)
			r.Patch("/", h.updatePart)
			r.Delete("/", h.deletePart)
			r.Get("/history", h.history(core.EntityPart))
			r.Post("/history/archive", h.archive(core.EntityPart))
		})
	})
	r.Route("/api/part-types", func(r chi.Router) {
		r.Get("/", h.listPartTypes)
		r.Post("/", h.addPartType)
		r.Delete("/{name}", h.deletePartType)
	})
	r.Route("/api/robot-designs", func(r chi.Router) {
		r.Get("/", h.listDesigns)
		r.Post("/", h.createDesign)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getDesign)
			r.Patch("/", h.updateDesign)
			r.Delete("/", h.deleteDesign)
		})
	})
	r.Route("/api/robot-instances", func(r chi.Router) {
		r.Get("/", h.listInstances)
		r.Post("/", h.createInstance)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getInstance)
			r.Patch("/", h.updateInstance)
			r.Delete("/", h.deleteInstance)
			r.Get("/status", h.instanceStatus)
			r.Post("/parts", h.assignPart)
			r.Delete("/parts/{partID}", h.removePart)
			r.Get("/history", h.history(core.EntityRobotInstance))
			r.Post("/history/archive", h.archive(core.EntityRobotInstance))
		})
	})
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid request payload", "invalid_input")
	return false
}

func serveSpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openapi.Spec())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
