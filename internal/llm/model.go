// Package llm provides the text generation capability for council stages
// using langchaingo.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/council-go/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Retry policy for transient generation failures. Any error still present
// after the last attempt becomes a fatal stage error for the caller.
const (
	maxAttempts = 3
	baseBackoff = 2 * time.Second
)

// Result is one completed generation call.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

// Client creates and caches one langchaingo model handle per model name,
// all backed by the configured provider.
type Client struct {
	cfg config.Config
	log *slog.Logger

	mu     sync.Mutex
	models map[string]llms.Model
}

// NewClient creates an LLM client based on configuration.
func NewClient(cfg config.Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		log:    log,
		models: make(map[string]llms.Model),
	}
}

// Generate produces text from a system and user prompt on the named model.
// Retryable failures (timeouts, rate limits) are retried with backoff up to
// maxAttempts; everything else fails immediately.
func (c *Client) Generate(ctx context.Context, modelName, systemPrompt, userPrompt string) (*Result, error) {
	model, err := c.model(ctx, modelName)
	if err != nil {
		return nil, err
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		response, err := model.GenerateContent(ctx, messages)
		latency := time.Since(start)

		if err == nil {
			if len(response.Choices) == 0 {
				return nil, fmt.Errorf("generate with %s: no response choices", modelName)
			}
			choice := response.Choices[0]
			in, out := tokenCounts(choice.GenerationInfo)
			c.log.Debug("generation complete",
				"model", modelName,
				"latency_ms", latency.Milliseconds(),
				"input_tokens", in,
				"output_tokens", out)
			return &Result{
				Text:         choice.Content,
				InputTokens:  in,
				OutputTokens: out,
				Latency:      latency,
			}, nil
		}

		lastErr = err
		if !isRetryable(err) || attempt == maxAttempts {
			break
		}

		wait := baseBackoff << (attempt - 1)
		c.log.Warn("generation failed, retrying",
			"model", modelName,
			"attempt", attempt,
			"wait", wait,
			"error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("generate with %s: %w", modelName, ctx.Err())
		case <-time.After(wait):
		}
	}

	return nil, fmt.Errorf("generate with %s: %w", modelName, lastErr)
}

// model returns the cached handle for a model name, creating it on first use.
func (c *Client) model(ctx context.Context, name string) (llms.Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.models[name]; ok {
		return m, nil
	}
	m, err := c.newModel(ctx, name)
	if err != nil {
		return nil, err
	}
	c.models[name] = m
	return m, nil
}

func (c *Client) newModel(ctx context.Context, name string) (llms.Model, error) {
	switch c.cfg.LLMProvider {
	case config.ProviderOllama:
		model, err := ollama.New(
			ollama.WithModel(name),
			ollama.WithServerURL(c.cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model %s: %w", name, err)
		}
		return model, nil

	case config.ProviderOpenAI:
		if c.cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err := openai.New(
			openai.WithToken(c.cfg.OpenAIAPIKey),
			openai.WithModel(name),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model %s: %w", name, err)
		}
		return model, nil

	case config.ProviderAnthropic:
		if c.cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err := anthropic.New(
			anthropic.WithToken(c.cfg.AnthropicAPIKey),
			anthropic.WithModel(name),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model %s: %w", name, err)
		}
		return model, nil

	case config.ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := bedrockruntime.NewFromConfig(awsCfg)
		model, err := bedrock.New(
			bedrock.WithModel(name),
			bedrock.WithClient(client),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model %s: %w", name, err)
		}
		return model, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", c.cfg.LLMProvider)
	}
}

// tokenCounts pulls prompt/completion token usage out of a provider's
// generation info. Key names differ per provider.
func tokenCounts(info map[string]any) (input, output int) {
	input = intValue(info, "PromptTokens", "InputTokens", "prompt_tokens", "input_tokens")
	output = intValue(info, "CompletionTokens", "OutputTokens", "completion_tokens", "output_tokens")
	return input, output
}

func intValue(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
