package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"coursematch/src/log"
)

const (
	DefaultMaxRetries = 2
	DefaultBaseDelay  = 500 * time.Millisecond
)

// RetryPolicy is an exponential backoff capped at MaxRetries extra attempts.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	return retry.WithMaxRetries(p.MaxRetries, retry.NewExponential(base))
}

func withRetry[T any](ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	return retry.DoValue(ctx, p.backoff(), func(ctx context.Context) (T, error) {
		attempt++
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		// cancellation is final
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return v, err
		}
		log.V(1).Info("upstream call failed", "op", op, "attempt", attempt, "error", err.Error())
		return v, retry.RetryableError(err)
	})
}

// RetryingEmbedder retries failed embedder calls.
type RetryingEmbedder struct {
	inner  embeddings.Embedder
	policy RetryPolicy
}

var _ embeddings.Embedder = (*RetryingEmbedder)(nil)

func NewRetryingEmbedder(inner embeddings.Embedder, policy RetryPolicy) *RetryingEmbedder {
	return &RetryingEmbedder{inner: inner, policy: policy}
}

func (r *RetryingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return withRetry(ctx, r.policy, "embed_documents", func(ctx context.Context) ([][]float32, error) {
		return r.inner.EmbedDocuments(ctx, texts)
	})
}

func (r *RetryingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return withRetry(ctx, r.policy, "embed_query", func(ctx context.Context) ([]float32, error) {
		return r.inner.EmbedQuery(ctx, text)
	})
}

// RetryingModel retries failed generations. Call goes through GenerateContent.
type RetryingModel struct {
	inner  llms.Model
	policy RetryPolicy
}

var _ llms.Model = (*RetryingModel)(nil)

func NewRetryingModel(inner llms.Model, policy RetryPolicy) *RetryingModel {
	return &RetryingModel{inner: inner, policy: policy}
}

func (r *RetryingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return withRetry(ctx, r.policy, "generate", func(ctx context.Context) (*llms.ContentResponse, error) {
		return r.inner.GenerateContent(ctx, messages, options...)
	})
}

func (r *RetryingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, r, prompt, options...)
}
