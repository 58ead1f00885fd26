// Package llm adapts a chat-completion model to the classifier port.
package llm

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
	"inbox_server/pkg/logger"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 10
	DefaultTemperature = 0.1
	DefaultTimeout     = 20 * time.Second

	providerOpenAI = "openai"
)

// ClassifierConfig configures the OpenAI classifier.
type ClassifierConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	RatePerSec  float64
	Timeout     time.Duration
}

// requestTemperature maps 0 to the smallest positive float32, since the
// request field is omitempty and an omitted temperature means 1.
func requestTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// OpenAIClassifier answers classification prompts with a chat completion.
// Calls are rate limited and guarded by a circuit breaker.
type OpenAIClassifier struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	limiter     *rate.Limiter
	cb          *gobreaker.CircuitBreaker
}

// NewOpenAIClassifier creates a classifier. Zero values take the defaults,
// except Temperature, where zero is deterministic and a negative value takes the default.
func NewOpenAIClassifier(cfg ClassifierConfig) *OpenAIClassifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature < 0 {
		temperature = DefaultTemperature
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	limit := rate.Inf
	burst := 1
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
		if b := int(cfg.RatePerSec); b > 1 {
			burst = b
		}
	}

	return &OpenAIClassifier{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: requestTemperature(temperature),
		timeout:     timeout,
		limiter:     rate.NewLimiter(limit, burst),
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openai-classifier",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || isClientError(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
			},
		}),
	}
}

var _ out.Classifier = (*OpenAIClassifier)(nil)

// Classify returns the model's trimmed answer.
func (c *OpenAIClassifier) Classify(ctx context.Context, req out.ClassifyRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", out.NewProviderError(providerOpenAI, out.ProviderErrRateLimit, 0, "rate limiter wait", err, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
		})
	})
	if err != nil {
		return "", wrapError(err)
	}

	resp, _ := res.(openai.ChatCompletionResponse)
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func isClientError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.HTTPStatusCode
		return code >= 400 && code < 500 && code != http.StatusTooManyRequests
	}
	return false
}

func wrapError(err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return out.NewProviderError(providerOpenAI, out.ProviderErrCircuitOpen, 0, "circuit open", err, domain.ErrProviderUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		return out.NewProviderError(providerOpenAI, out.ProviderErrTimeout, 0, "completion timed out", err, nil)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := out.ProviderErrServer
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			code = out.ProviderErrRateLimit
		case apiErr.HTTPStatusCode == http.StatusUnauthorized:
			code = out.ProviderErrAuth
		case apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500:
			code = out.ProviderErrInvalidInput
		}
		return out.NewProviderError(providerOpenAI, code, apiErr.HTTPStatusCode, apiErr.Message, err, nil)
	}
	return out.NewProviderError(providerOpenAI, out.ProviderErrNetwork, 0, "completion failed", err, nil)
}
