package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kestrand/maintchat/internal/api/response"
	"github.com/kestrand/maintchat/internal/domain"
	"github.com/kestrand/maintchat/internal/service"
)

var validate = validator.New()

// ChatHandler serves the query endpoint
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Query handles POST /: one chat query through the full lifecycle
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, domain.NewInputError("request body must be valid JSON"))
		return
	}

	if err := validate.Struct(req); err != nil {
		response.Error(w, r, domain.NewInputError("invalid request: "+err.Error()))
		return
	}

	result, err := h.chatService.Ask(r.Context(), correlationID(r), req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, result)
}

// sessionStateResponse is the GET / session-state contract
type sessionStateResponse struct {
	SessionID string    `json:"sessionId"`
	TurnCount int       `json:"turnCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// State handles GET /?sessionId=...: session-state retrieval
func (h *ChatHandler) State(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")

	sess, err := h.chatService.SessionState(r.Context(), sessionID)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, sessionStateResponse{
		SessionID: sess.ID,
		TurnCount: sess.TurnCount(),
		CreatedAt: sess.CreatedAt,
	})
}

type resetRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

type resetResponse struct {
	NewSessionID string `json:"newSessionId"`
}

// Reset handles DELETE /: discards a session and mints a fresh one
func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, domain.NewInputError("request body must be valid JSON"))
		return
	}

	if err := validate.Struct(req); err != nil {
		response.Error(w, r, domain.NewInputError("sessionId is required"))
		return
	}

	newID, err := h.chatService.Reset(r.Context(), req.SessionID)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, resetResponse{NewSessionID: newID})
}

// Preflight answers non-preflight OPTIONS and CORS passthrough with 204
func (h *ChatHandler) Preflight(w http.ResponseWriter, r *http.Request) {
	response.NoContent(w)
}
