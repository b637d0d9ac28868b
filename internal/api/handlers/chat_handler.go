package handlers

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/samurai-chat/internal/api/middlewares"
	"github.com/markdave123-py/samurai-chat/internal/core"
	"github.com/markdave123-py/samurai-chat/internal/core/dispatcher"
	"github.com/markdave123-py/samurai-chat/internal/services"
)

type ChatHandler struct {
	chat           *services.ChatService
	convs          *services.ConversationService
	responses      *services.ResponseService
	callbackSecret string
	logger         *slog.Logger
}

func NewChatHandler(chat *services.ChatService, convs *services.ConversationService, responses *services.ResponseService, callbackSecret string, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{
		chat:           chat,
		convs:          convs,
		responses:      responses,
		callbackSecret: callbackSecret,
		logger:         logger.With("component", "chat_handler"),
	}
}

type turnRequest struct {
	ConversationID string `json:"conversationId"`
	UserMessage    string `json:"userMessage"`
}

type turnResponse struct {
	OK bool `json:"ok"`
	*services.TurnResult
}

// SubmitTurn handles POST /api/chat/turn.
func (h *ChatHandler) SubmitTurn(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, core.ErrUnauthenticated, nil)
		return
	}

	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid body", err), nil)
		return
	}

	res, err := h.chat.SubmitTurn(r.Context(), userID, req.ConversationID, req.UserMessage)
	if err != nil {
		var extra map[string]any
		if res != nil {
			extra = map[string]any{"conversationId": res.ConversationID, "message": res.Message}
		}
		writeError(w, h.logger, err, extra)
		return
	}

	writeJSON(w, http.StatusOK, turnResponse{OK: true, TurnResult: res})
}

type callbackRequest struct {
	ResponseMessage string `json:"responseMessage"`
	ConversationID  string `json:"conversationId"`
}

// ReceiveResponse handles the engine callback POST /api/chat/receive-response.
func (h *ChatHandler) ReceiveResponse(w http.ResponseWriter, r *http.Request) {
	if h.callbackSecret != "" {
		got := r.Header.Get(dispatcher.SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.callbackSecret)) != 1 {
			writeError(w, h.logger, fmt.Errorf("%w: bad engine secret", core.ErrUnauthenticated), nil)
			return
		}
	}

	var req callbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid body", err), nil)
		return
	}

	msg, history, err := h.responses.Ingest(r.Context(), req.ConversationID, req.ResponseMessage)
	if err != nil {
		var extra map[string]any
		if msg != nil {
			extra = map[string]any{"message": msg}
		}
		writeError(w, h.logger, err, extra)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"conversationId": req.ConversationID,
		"message":        msg,
		"history":        history,
	})
}

// GetConversation handles GET /api/chat/conversation/{conversationId}.
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, core.ErrUnauthenticated, nil)
		return
	}

	id := chi.URLParam(r, "conversationId")
	if err := h.convs.Authorize(r.Context(), id, userID); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	msgs, err := h.convs.ListMessages(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"conversationId": id,
		"messages":       msgs,
	})
}
