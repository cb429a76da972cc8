package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/mathtutor/internal/config"
	"github.com/sashabaranov/go-openai"
)

// Synthesizer renders text to an encoded audio stream.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, rate float64) (io.ReadCloser, error)
}

// OpenAISynthesizer uses the OpenAI speech endpoint. It produces MP3.
type OpenAISynthesizer struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
}

// NewOpenAISynthesizer creates a synthesizer sharing the inference credential
// and base URL.
func NewOpenAISynthesizer(inf config.InferenceConfig, sp config.SpeechConfig) *OpenAISynthesizer {
	clientCfg := openai.DefaultConfig(inf.APIKey)
	if inf.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(inf.BaseURL, "/")
	}
	timeout := inf.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	model := openai.SpeechModel(sp.TTSModel)
	if sp.TTSModel == "" {
		model = openai.TTSModel1
	}

	return &OpenAISynthesizer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		voice:  voiceFor(sp.Voice),
	}
}

func voiceFor(name string) openai.SpeechVoice {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "echo":
		return openai.VoiceEcho
	case "fable":
		return openai.VoiceFable
	case "onyx":
		return openai.VoiceOnyx
	case "nova":
		return openai.VoiceNova
	case "shimmer":
		return openai.VoiceShimmer
	default:
		return openai.VoiceAlloy
	}
}

// Synthesize requests speech for text. rate maps onto the service's speed
// parameter; pitch has no equivalent there.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string, rate float64) (io.ReadCloser, error) {
	req := openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          clampSpeed(rate),
	}

	resp, err := s.client.CreateSpeech(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech: %w", err)
	}
	return resp, nil
}

// clampSpeed keeps rate inside the range the speech endpoint accepts.
func clampSpeed(rate float64) float64 {
	switch {
	case rate <= 0:
		return DefaultRate
	case rate < 0.25:
		return 0.25
	case rate > 4.0:
		return 4.0
	default:
		return rate
	}
}
