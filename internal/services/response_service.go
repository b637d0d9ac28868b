package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/samurai-chat/internal/core"
	"github.com/markdave123-py/samurai-chat/internal/models"
)

var _ core.ResponseSink = (*ResponseService)(nil)

// ResponseService records the engine's replies and mirrors the latest one.
type ResponseService struct {
	convs  *ConversationService
	mirror core.ResponseMirror
	logger *slog.Logger
}

func NewResponseService(convs *ConversationService, mirror core.ResponseMirror, logger *slog.Logger) *ResponseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseService{convs: convs, mirror: mirror, logger: logger.With("component", "responses")}
}

// Ingest appends responseText as an assistant message, then overwrites the
// mirror. Both happen under the conversation lock, so the mirror holds the
// conversation's last stored reply. A mirror failure is reported as ErrStorage
// but the message stays.
func (s *ResponseService) Ingest(ctx context.Context, conversationID, responseText string) (*models.Message, []models.Message, error) {
	if conversationID == "" {
		return nil, nil, fmt.Errorf("%w: missing conversation id", core.ErrInvalidInput)
	}
	if responseText == "" {
		return nil, nil, fmt.Errorf("%w: empty response", core.ErrInvalidInput)
	}

	msg, mirrorErr := s.record(ctx, conversationID, responseText)
	if msg == nil {
		return nil, nil, mirrorErr
	}

	history, err := s.convs.ListMessages(ctx, conversationID)
	if err != nil {
		return msg, nil, err
	}

	s.logger.Info("response ingested", "conversation_id", conversationID, "message_id", msg.ID)
	return msg, history, mirrorErr
}

// record appends the reply and mirrors it. A nil message means the append
// failed; a message with an error means only the mirror did.
func (s *ResponseService) record(ctx context.Context, conversationID, responseText string) (*models.Message, error) {
	unlock := s.convs.lockConversation(conversationID)
	defer unlock()

	msg, err := s.convs.appendLocked(ctx, conversationID, models.RoleAssistant, responseText)
	if err != nil {
		return nil, err
	}
	if s.mirror == nil {
		return msg, nil
	}
	if err := s.mirror.WriteLatest(ctx, responseText); err != nil {
		s.logger.Error("mirroring latest response failed", "conversation_id", conversationID, "error", err)
		return msg, fmt.Errorf("%w: mirror: %v", core.ErrStorage, err)
	}
	return msg, nil
}
