package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/samurai-chat/internal/core"
	"github.com/markdave123-py/samurai-chat/internal/models"
)

// ConversationService resolves conversations and keeps their message logs.
type ConversationService struct {
	db     core.DbClient
	logger *slog.Logger
	now    func() time.Time
	locks  *keyedMutex
}

func NewConversationService(db core.DbClient, logger *slog.Logger) *ConversationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationService{
		db:     db,
		logger: logger.With("component", "conversations"),
		now:    func() time.Time { return time.Now().UTC() },
		locks:  newKeyedMutex(),
	}
}

// Resolve returns conversationID after checking that ownerUserID owns it.
// An empty id creates a new conversation together with its owner link.
func (s *ConversationService) Resolve(ctx context.Context, conversationID, ownerUserID string) (string, error) {
	if ownerUserID == "" {
		return "", fmt.Errorf("%w: missing user", core.ErrUnauthenticated)
	}
	if conversationID != "" {
		if err := s.Authorize(ctx, conversationID, ownerUserID); err != nil {
			return "", err
		}
		return conversationID, nil
	}

	conv := &models.Conversation{
		ID:          uuid.NewString(),
		OwnerUserID: ownerUserID,
		CreatedAt:   s.now(),
	}
	if err := s.db.CreateConversation(ctx, conv); err != nil {
		return "", err
	}
	s.logger.Info("conversation created", "conversation_id", conv.ID, "user_id", ownerUserID)
	return conv.ID, nil
}

// Authorize fails with ErrNotFound for unknown conversations and ErrForbidden
// when userID holds no ownership link to it.
func (s *ConversationService) Authorize(ctx context.Context, conversationID, userID string) error {
	conv, err := s.db.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.OwnerUserID == userID {
		return nil
	}

	owners, err := s.db.ListConversationOwners(ctx, conversationID)
	if err != nil {
		return err
	}
	for _, o := range owners {
		if o.UserID == userID {
			return nil
		}
	}

	s.logger.Warn("conversation access denied", "conversation_id", conversationID, "user_id", userID)
	return fmt.Errorf("conversation %s: %w", conversationID, core.ErrForbidden)
}

// AppendMessage stores one message at the end of the conversation's log.
func (s *ConversationService) AppendMessage(ctx context.Context, conversationID string, role models.Role, content string) (*models.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("%w: missing conversation id", core.ErrInvalidInput)
	}
	unlock := s.lockConversation(conversationID)
	defer unlock()
	return s.appendLocked(ctx, conversationID, role, content)
}

// lockConversation serializes appends to one conversation. Callers holding it
// must use appendLocked.
func (s *ConversationService) lockConversation(conversationID string) func() {
	return s.locks.lock(conversationID)
}

// appendLocked stamps and inserts in one step under the conversation lock, so
// stamp order and insertion order agree.
func (s *ConversationService) appendLocked(ctx context.Context, conversationID string, role models.Role, content string) (*models.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidRole, role)
	}
	if conversationID == "" {
		return nil, fmt.Errorf("%w: missing conversation id", core.ErrInvalidInput)
	}

	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      s.now(),
	}
	if err := s.db.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns the log oldest first; unknown conversations yield an empty slice.
func (s *ConversationService) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return s.db.ListMessages(ctx, conversationID)
}
