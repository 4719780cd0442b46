package nlu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/bookline-ai/bookline/pkg/logging"
)

// GeminiEngine implements Engine using Google's Gemini API.
type GeminiEngine struct {
	client      *genai.Client
	modelID     string
	timeout     time.Duration
	maxTokens   int32
	temperature float32
	logger      *logging.Logger
}

// GeminiConfig configures the Gemini engine.
type GeminiConfig struct {
	APIKey      string
	ModelID     string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// NewGeminiEngine creates a Gemini-backed NLU engine.
func NewGeminiEngine(ctx context.Context, cfg GeminiConfig, logger *logging.Logger) (*GeminiEngine, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("nlu: gemini api key is required")
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if logger == nil {
		logger = logging.Default()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("nlu: failed to create gemini client: %w", err)
	}

	return &GeminiEngine{
		client:      client,
		modelID:     cfg.ModelID,
		timeout:     cfg.Timeout,
		maxTokens:   int32(cfg.MaxTokens),
		temperature: float32(cfg.Temperature),
		logger:      logger,
	}, nil
}

// Interpret sends one turn to Gemini and parses the structured suggestion.
// The call is time-bounded here; the orchestrator treats failure as fatal to
// the turn.
func (e *GeminiEngine) Interpret(ctx context.Context, req Request) (*Suggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, err
	}

	model := e.client.GenerativeModel(e.modelID)
	model.SetMaxOutputTokens(e.maxTokens)
	if e.temperature >= 0 {
		model.SetTemperature(e.temperature)
	}
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineFailure, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: empty candidates", ErrEngineFailure)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	suggestion, err := parseSuggestion(sb.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineFailure, err)
	}

	if resp.UsageMetadata != nil {
		e.logger.Debug("nlu tokens",
			"conversation_id", req.ConversationID,
			"input", resp.UsageMetadata.PromptTokenCount,
			"output", resp.UsageMetadata.CandidatesTokenCount,
		)
	}
	return suggestion, nil
}

// Close releases the underlying client.
func (e *GeminiEngine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
