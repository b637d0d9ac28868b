package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/markdave123-py/samurai-chat/internal/core"
	"github.com/markdave123-py/samurai-chat/internal/models"
)

// SecretHeader carries the shared secret between this service and the engine.
const SecretHeader = "X-Engine-Secret"

const maxAckBytes = 1 << 20

var _ core.InferenceEngine = (*WebhookEngine)(nil)

// WebhookOptions configures a WebhookEngine. Zero values fall back to defaults.
type WebhookOptions struct {
	URL        string
	Secret     string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Client     *http.Client
	Logger     *slog.Logger
}

// WebhookEngine posts turn payloads to an external engine over HTTP.
type WebhookEngine struct {
	url        string
	secret     string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	client     *http.Client
	logger     *slog.Logger
}

func NewWebhookEngine(opts WebhookOptions) (*WebhookEngine, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("%w: engine webhook url is empty", core.ErrConfig)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &WebhookEngine{
		url:        opts.URL,
		secret:     opts.Secret,
		timeout:    opts.Timeout,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		client:     opts.Client,
		logger:     opts.Logger.With("component", "dispatcher"),
	}, nil
}

// attemptError marks whether a failed attempt may be retried.
type attemptError struct {
	err       error
	retryable bool
}

func (e *attemptError) Error() string { return e.err.Error() }
func (e *attemptError) Unwrap() error { return e.err }

// Dispatch posts payload and returns the engine's JSON acknowledgment verbatim.
// Network errors, timeouts and 5xx replies are retried; 4xx and malformed bodies are not.
func (w *WebhookEngine) Dispatch(ctx context.Context, payload *models.EnginePayload) (models.Acknowledgment, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", core.ErrDispatch, err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			delay := backoff(w.retryDelay, attempt)
			w.logger.Warn("retrying dispatch",
				"conversation_id", payload.ConversationID, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", core.ErrDispatch, ctx.Err())
			}
		}

		ack, err := w.attempt(ctx, body)
		if err == nil {
			w.logger.Info("turn dispatched", "conversation_id", payload.ConversationID, "attempts", attempt+1)
			return ack, nil
		}
		lastErr = err

		var ae *attemptError
		if !errors.As(err, &ae) || !ae.retryable || ctx.Err() != nil {
			break
		}
	}

	w.logger.Error("dispatch failed", "conversation_id", payload.ConversationID, "error", lastErr)
	return nil, lastErr
}

func (w *WebhookEngine) attempt(ctx context.Context, body []byte) (models.Acknowledgment, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", core.ErrDispatch, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if w.secret != "" {
		req.Header.Set(SecretHeader, w.secret)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, w.transportError(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAckBytes))
	if err != nil {
		return nil, w.transportError(ctx, attemptCtx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &attemptError{
			err:       fmt.Errorf("%w: engine returned status %d", core.ErrDispatch, resp.StatusCode),
			retryable: resp.StatusCode >= 500,
		}
	}

	if !json.Valid(raw) {
		return nil, &attemptError{err: fmt.Errorf("%w: engine returned a malformed acknowledgment", core.ErrDispatch)}
	}
	return models.Acknowledgment(raw), nil
}

func (w *WebhookEngine) transportError(parent, attemptCtx context.Context, err error) error {
	if parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &attemptError{
			err:       fmt.Errorf("%w after %s", core.ErrDispatchTimeout, w.timeout),
			retryable: true,
		}
	}
	if errors.Is(parent.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", core.ErrDispatchTimeout, err)
	}
	return &attemptError{
		err:       fmt.Errorf("%w: %v", core.ErrDispatch, err),
		retryable: parent.Err() == nil,
	}
}
