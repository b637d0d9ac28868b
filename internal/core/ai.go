package core

import (
	"context"

	"github.com/markdave123-py/samurai-chat/internal/models"
)

// InferenceEngine delivers a turn's payload to whatever produces the assistant reply.
// Dispatch returns the engine's synchronous acknowledgment; the reply itself arrives
// later through a ResponseSink.
type InferenceEngine interface {
	Dispatch(ctx context.Context, payload *models.EnginePayload) (models.Acknowledgment, error)
}

// ResponseSink receives the engine's asynchronous reply for a conversation.
type ResponseSink interface {
	Ingest(ctx context.Context, conversationID, responseText string) (*models.Message, []models.Message, error)
}

// LLMProvider generates text from a system instruction and a chat history.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, history []models.Message) (string, error)
}
