package response

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/kestrand/maintchat/internal/domain"
)

// JSON sends a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// OK sends a 200 OK response with data
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// NoContent sends a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error converts err into the client-safe envelope and sends it with
// the status mapped from its kind. Internal detail stays server-side.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	de := domain.AsError(err)
	envelope := domain.NewEnvelope(de, middleware.GetReqID(r.Context()))
	JSON(w, de.HTTPStatus(), envelope)
}

// MethodNotAllowed sends a 405 envelope for unsupported methods
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	envelope := domain.NewEnvelope(
		domain.NewInputError("method not allowed").WithSuggestion("use POST, GET, DELETE or OPTIONS"),
		middleware.GetReqID(r.Context()),
	)
	JSON(w, http.StatusMethodNotAllowed, envelope)
}
