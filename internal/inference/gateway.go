// Package inference sends tutoring conversations to the chat completion
// service and classifies its failures.
package inference

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/mathtutor/internal/config"
	"github.com/ashureev/mathtutor/internal/domain"
	"github.com/sashabaranov/go-openai"
)

// credentialPrefix is the issuing service's key prefix convention.
const credentialPrefix = "sk-"

// Default generation parameters.
const (
	DefaultMaxTokens        = 300
	DefaultTemperature      = 0.7
	DefaultPresencePenalty  = 0.6
	DefaultFrequencyPenalty = 0.3
)

// Params are the generation parameters sent with every request.
type Params struct {
	MaxTokens        int
	Temperature      float32
	PresencePenalty  float32
	FrequencyPenalty float32
}

// DefaultParams returns the tutoring defaults.
func DefaultParams() Params {
	return Params{
		MaxTokens:        DefaultMaxTokens,
		Temperature:      DefaultTemperature,
		PresencePenalty:  DefaultPresencePenalty,
		FrequencyPenalty: DefaultFrequencyPenalty,
	}
}

// Usage is token accounting reported by the service.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a normalized successful completion.
type Result struct {
	Reply string
	Usage *Usage
}

// Completer performs one completion for an assembled message sequence.
type Completer interface {
	Complete(ctx context.Context, messages []domain.Message) (*Result, error)
}

// Gateway calls the chat completion API. It never retries.
type Gateway struct {
	credential string
	model      string
	params     Params
	client     *openai.Client
}

var _ Completer = (*Gateway)(nil)

// NewGateway creates a gateway from the inference configuration.
func NewGateway(cfg config.InferenceConfig) *Gateway {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Gateway{
		credential: cfg.APIKey,
		model:      cfg.Model,
		params:     DefaultParams(),
		client:     openai.NewClientWithConfig(clientCfg),
	}
}

// CheckCredential validates the configured credential without any network I/O.
func (g *Gateway) CheckCredential() error {
	if g.credential == "" {
		return &ConfigurationError{Reason: ReasonMissingCredential}
	}
	if !strings.HasPrefix(g.credential, credentialPrefix) {
		return &ConfigurationError{Reason: ReasonMalformedCredential}
	}
	return nil
}

// Complete sends messages to the service and returns the assistant reply.
func (g *Gateway) Complete(ctx context.Context, messages []domain.Message) (*Result, error) {
	if err := g.CheckCredential(); err != nil {
		return nil, err
	}

	req := openai.ChatCompletionRequest{
		Model:            g.model,
		Messages:         toChatMessages(messages),
		MaxTokens:        g.params.MaxTokens,
		Temperature:      g.params.Temperature,
		PresencePenalty:  g.params.PresencePenalty,
		FrequencyPenalty: g.params.FrequencyPenalty,
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &UpstreamError{Kind: KindUpstreamFailure, Detail: "no choices in response"}
	}

	res := &Result{Reply: resp.Choices[0].Message.Content}
	// A zero usage block means the service did not report one.
	if resp.Usage != (openai.Usage{}) {
		res.Usage = &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return res, nil
}

func toChatMessages(messages []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

// classify maps a client error to an UpstreamError.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fromStatus(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fromStatus(reqErr.HTTPStatusCode, "", err)
	}
	return &UpstreamError{Kind: KindUpstreamFailure, Detail: genericUpstreamMessage, Err: err}
}

func fromStatus(status int, message string, err error) *UpstreamError {
	switch status {
	case http.StatusUnauthorized:
		return &UpstreamError{Kind: KindUnauthorized, StatusCode: status, Detail: message, Err: err}
	case http.StatusTooManyRequests:
		return &UpstreamError{Kind: KindRateLimited, StatusCode: status, Detail: message, Err: err}
	}
	if strings.TrimSpace(message) == "" {
		message = genericUpstreamMessage
	}
	return &UpstreamError{Kind: KindUpstreamFailure, StatusCode: status, Detail: message, Err: err}
}
