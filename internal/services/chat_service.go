package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/markdave123-py/samurai-chat/internal/core"
	"github.com/markdave123-py/samurai-chat/internal/core/codec"
	"github.com/markdave123-py/samurai-chat/internal/models"
)

const (
	inputTypeChat  = "chat"
	outputTypeChat = "chat"
)

// ContextBuilder turns catalog entries into context items.
type ContextBuilder interface {
	Build(ctx context.Context, files []models.UserDataFile) ([]models.ContextItem, []models.ContextFault, error)
}

// TurnResult is what the caller gets back from one submitted turn.
type TurnResult struct {
	ConversationID string                `json:"conversationId"`
	Message        *models.Message       `json:"message"`
	History        []models.Message      `json:"history"`
	Context        []models.ContextItem  `json:"userContext"`
	ContextFaults  []models.ContextFault `json:"contextFaults"`
	Acknowledgment models.Acknowledgment `json:"acknowledgment,omitempty"`
}

// ChatService runs a turn: resolve, record, assemble context, encode, dispatch.
type ChatService struct {
	convs     *ConversationService
	catalog   *CatalogService
	assembler ContextBuilder
	engine    core.InferenceEngine
	logger    *slog.Logger
}

func NewChatService(convs *ConversationService, catalog *CatalogService, assembler ContextBuilder, engine core.InferenceEngine, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		convs:     convs,
		catalog:   catalog,
		assembler: assembler,
		engine:    engine,
		logger:    logger.With("component", "chat"),
	}
}

// BuildContext reads the user's catalog and derives this turn's context items.
func (s *ChatService) BuildContext(ctx context.Context, userID string) ([]models.ContextItem, []models.ContextFault, error) {
	files, err := s.catalog.List(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return s.assembler.Build(ctx, files)
}

// SubmitTurn stores the user message before anything can fail downstream of it.
// Once the message is stored, the returned result is non-nil even on error so the
// caller can still report the conversation id and the stored message.
func (s *ChatService) SubmitTurn(ctx context.Context, userID, conversationID, userMessage string) (*TurnResult, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, fmt.Errorf("%w: empty message", core.ErrInvalidInput)
	}

	convID, err := s.convs.Resolve(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	msg, err := s.convs.AppendMessage(ctx, convID, models.RoleUser, userMessage)
	if err != nil {
		return nil, err
	}
	res := &TurnResult{ConversationID: convID, Message: msg}

	items, faults, err := s.BuildContext(ctx, userID)
	if err != nil {
		return res, err
	}
	res.Context, res.ContextFaults = items, faults
	for _, f := range faults {
		s.logger.Warn("context file left out", "conversation_id", convID, "filename", f.Filename, "kind", f.Kind)
	}

	history, err := s.convs.ListMessages(ctx, convID)
	if err != nil {
		return res, err
	}
	res.History = history

	payload := &models.EnginePayload{
		ConversationID:     convID,
		UserMessageHistory: codec.EncodeHistory(history),
		UserContext:        items,
		InputType:          inputTypeChat,
		OutputType:         outputTypeChat,
	}

	ack, dispatchErr := s.engine.Dispatch(ctx, payload)
	res.Acknowledgment = ack

	// The engine may already have answered in-process.
	if latest, err := s.convs.ListMessages(ctx, convID); err == nil {
		res.History = latest
	}

	if dispatchErr != nil {
		s.logger.Error("turn dispatch failed", "conversation_id", convID, "error", dispatchErr)
		return res, dispatchErr
	}
	s.logger.Info("turn submitted", "conversation_id", convID, "history", len(history), "context_items", len(items))
	return res, nil
}
