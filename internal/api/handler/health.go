package handler

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kestrand/maintchat/internal/api/response"
	"github.com/kestrand/maintchat/internal/health"
)

// HealthHandler serves the liveness probe
type HealthHandler struct {
	reporter *health.Reporter
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(reporter *health.Reporter) *HealthHandler {
	return &HealthHandler{reporter: reporter}
}

// Check handles GET / without a sessionId parameter
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.reporter.Check(r.Context()))
}

func correlationID(r *http.Request) string {
	return chimiddleware.GetReqID(r.Context())
}
