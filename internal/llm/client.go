package llm

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Request is the uniform completion call: a prompt, an optional system
// preamble, and an optional schema hint. A non-empty SchemaHint switches
// the provider into strict-JSON output mode and the hint text describes
// the expected object to the model.
type Request struct {
	System      string
	Prompt      string
	SchemaHint  string
	MaxTokens   int
	Temperature float64
}

// Client adapts the external completion provider. It is the engine's only
// external dependency and is treated as slow and unreliable: every call is
// bounded by the configured timeout and failures come back as
// *ProviderError.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Embedder turns text into the vector space the knowledge index is built
// in. Retrieval correctness depends on queries and articles sharing one
// embedding model.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)
}

// Options tunes the OpenAI-backed client. Zero values fall back to the
// defaults below.
type Options struct {
	Model          string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration
	BaseURL        string
}

const (
	defaultModel          = "gpt-4o-mini"
	defaultEmbeddingModel = string(openai.SmallEmbedding3)
	defaultMaxTokens      = 600
	defaultTimeout        = 30 * time.Second
)

// OpenAI implements Client and Embedder on the OpenAI API.
type OpenAI struct {
	client         *openai.Client
	model          string
	embeddingModel openai.EmbeddingModel
	maxTokens      int
	temperature    float64
	timeout        time.Duration
	logger         *zap.Logger
}

func NewOpenAI(apiKey string, opts Options, logger *zap.Logger) *OpenAI {
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = defaultEmbeddingModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &OpenAI{
		client:         openai.NewClientWithConfig(cfg),
		model:          opts.Model,
		embeddingModel: openai.EmbeddingModel(opts.EmbeddingModel),
		maxTokens:      opts.MaxTokens,
		temperature:    opts.Temperature,
		timeout:        opts.Timeout,
		logger:         logger,
	}
}

// Complete sends a chat completion request and returns the raw content of
// the first choice.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.maxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = o.temperature
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	prompt := req.Prompt
	if req.SchemaHint != "" {
		prompt += "\n\nReturn a single JSON object with this structure:\n" + req.SchemaHint
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
	}
	if req.SchemaHint != "" {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		perr := classifyError(err)
		o.logger.Warn("completion failed",
			zap.String("model", o.model),
			zap.String("kind", string(perr.Kind)),
			zap.Int("status", perr.StatusCode),
			zap.Error(err))
		return "", perr
	}

	if len(resp.Choices) == 0 {
		return "", &ProviderError{Kind: KindMalformed, Message: "no choices in response"}
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	o.logger.Debug("completion ok",
		zap.String("model", o.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Int("response_len", len(content)),
		zap.Duration("elapsed", time.Since(start)))
	return content, nil
}

// EmbedText embeds a single text.
func (o *OpenAI) EmbedText(ctx context.Context, text string) ([]float64, error) {
	vecs, err := o.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts embeds a batch of texts in one provider call, preserving
// input order.
func (o *OpenAI) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: o.embeddingModel,
	})
	if err != nil {
		perr := classifyError(err)
		o.logger.Warn("embedding failed",
			zap.String("model", string(o.embeddingModel)),
			zap.Int("texts", len(texts)),
			zap.Error(err))
		return nil, perr
	}
	if len(resp.Data) != len(texts) {
		return nil, &ProviderError{Kind: KindMalformed, Message: "embedding count mismatch"}
	}

	vecs := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float64, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float64(v)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// classifyError maps transport and API errors onto the engine taxonomy.
func classifyError(err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Kind: KindTimeout, Message: "call exceeded deadline", Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &ProviderError{Kind: KindTimeout, Message: "transport timeout", Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		kind := KindProvider
		if apiErr.HTTPStatusCode == 429 {
			kind = KindRateLimited
		}
		return &ProviderError{
			Kind:       kind,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}

	return &ProviderError{Kind: KindProvider, Message: err.Error(), Err: err}
}
