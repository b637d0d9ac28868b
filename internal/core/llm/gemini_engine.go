package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/markdave123-py/samurai-chat/internal/core"
	"github.com/markdave123-py/samurai-chat/internal/core/codec"
	"github.com/markdave123-py/samurai-chat/internal/models"
)

const systemPreamble = `You are Samurai, a concise and helpful assistant.
Answer using the user's reference data below when it is relevant.`

var acceptedAck = models.Acknowledgment(`{"status":"accepted"}`)

var _ core.InferenceEngine = (*GeminiEngine)(nil)

// GeminiEngine answers turns in-process. Dispatch acknowledges at once and the
// reply is delivered to the sink from a background goroutine.
type GeminiEngine struct {
	llm     core.LLMProvider
	sink    core.ResponseSink
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewGeminiEngine(llm core.LLMProvider, sink core.ResponseSink, timeout time.Duration, logger *slog.Logger) *GeminiEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiEngine{
		llm:     llm,
		sink:    sink,
		timeout: timeout,
		logger:  logger.With("component", "gemini_engine"),
	}
}

func (e *GeminiEngine) Dispatch(ctx context.Context, payload *models.EnginePayload) (models.Acknowledgment, error) {
	if payload == nil || payload.ConversationID == "" {
		return nil, fmt.Errorf("%w: missing conversation id", core.ErrDispatch)
	}
	history, err := codec.DecodeHistory(payload.UserMessageHistory)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDispatch, err)
	}
	prompt, err := renderSystemPrompt(payload.UserContext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDispatch, err)
	}

	conversationID := payload.ConversationID
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.generate(conversationID, prompt, history)
	}()

	return acceptedAck, nil
}

func (e *GeminiEngine) generate(conversationID, prompt string, history []models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	reply, err := e.llm.Generate(ctx, prompt, history)
	if err != nil {
		e.logger.Error("generation failed", "conversation_id", conversationID, "error", err)
		return
	}
	if strings.TrimSpace(reply) == "" {
		e.logger.Warn("empty generation", "conversation_id", conversationID)
		return
	}

	if _, _, err := e.sink.Ingest(ctx, conversationID, reply); err != nil {
		e.logger.Error("delivering reply failed", "conversation_id", conversationID, "error", err)
	}
}

// Wait blocks until every in-flight generation has finished.
func (e *GeminiEngine) Wait() {
	e.wg.Wait()
}

func renderSystemPrompt(items []models.ContextItem) (string, error) {
	if len(items) == 0 {
		return systemPreamble, nil
	}
	raw, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", err
	}
	return systemPreamble + "\n\nReference data:\n" + string(raw), nil
}
