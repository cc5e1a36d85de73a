package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const DefaultOpenAIModel = "gpt-4.1-mini"

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIAnalyzer runs the JSON analysis operations against an
// OpenAI-compatible model. It only accepts transcript input for context
// analysis.
type OpenAIAnalyzer struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewOpenAIAnalyzer(cfg OpenAIConfig, logger *slog.Logger) *OpenAIAnalyzer {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OpenAIAnalyzer{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

const contextSystemPrompt = "You are a video editor analysing a transcript. Reply with JSON only."

const contextUserPrompt = `Analyse this transcript and return a JSON object with the keys:
script {summary, hook, tone, topics[]}, pacing {overallPace, wordsPerMinute, notes},
visuals {style, setting, colorPalette[]}, content {category, targetAudience, platform},
timing {pauses[], keyMoments[], sceneChanges[]} and recommendations {suggestedEdits[], notes[]}.
Each timing or suggested edit entry is {startTime, endTime, type, importance, description} in seconds.

Transcript:
`

const enhancementSystemPrompt = "You suggest audio and visual enhancements for short videos. Reply with JSON only."

const enhancementUserPrompt = `Suggest enhancements for this video. Return a JSON object:
{"suggestions":[{"type":"visual|sfx|graphic|animation","startTime":0,"endTime":0,"description":"","triggerText":"","reason":"","confidence":0.0,"prompt":""}],
"summary":"","videoStyle":"","density":"light|medium|heavy"}
Times are seconds and must lie inside the video.

Input:
`

const storyboardSystemPrompt = "You design animated text and graphic overlays for videos. Reply with JSON only."

const storyboardUserPrompt = `Create a storyboard in the given style. Return a JSON object:
{"title":"","style":"","scenes":[{"id":"","title":"","startTime":0,"endTime":0,
"elements":[{"id":"","kind":"text|graphic","content":"","startTime":0,"endTime":0,"position":{"x":0,"y":0},"animation":""}]}]}
Element times are relative to the scene start. Ids must be unique.

Input:
`

func (a *OpenAIAnalyzer) AnalyzeContext(ctx context.Context, in MediaInput) (*VideoContext, error) {
	if strings.TrimSpace(in.Transcript) == "" {
		return nil, fmt.Errorf("%s: %w: transcript required", OpAnalyzeContext, ErrUnsupportedInput)
	}
	var out VideoContext
	if err := a.complete(ctx, OpAnalyzeContext, contextSystemPrompt, contextUserPrompt+in.Transcript, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *OpenAIAnalyzer) AnalyzeEnhancements(ctx context.Context, req EnhancementRequest) (*EnhancementAnalysis, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s input: %w", OpAnalyzeEnhancements, err)
	}
	var out EnhancementAnalysis
	if err := a.complete(ctx, OpAnalyzeEnhancements, enhancementSystemPrompt, enhancementUserPrompt+string(input), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *OpenAIAnalyzer) GenerateStoryboard(ctx context.Context, req StoryboardRequest) (*Storyboard, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s input: %w", OpGenerateStoryboard, err)
	}
	var out Storyboard
	if err := a.complete(ctx, OpGenerateStoryboard, storyboardSystemPrompt, storyboardUserPrompt+string(input), &out); err != nil {
		return nil, err
	}
	if out.Style == "" {
		out.Style = req.Style
	}
	return &out, nil
}

func (a *OpenAIAnalyzer) complete(ctx context.Context, op, system, user string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       a.model,
		Temperature: openai.Float(0.2),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			remote := &RemoteError{Op: op, StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
			a.logger.Warn("analysis model call failed", "op", op, "status", apiErr.StatusCode, "category", string(remote.Category()))
			return remote
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("%s: %w: no choices", op, ErrMalformedResponse)
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		a.logger.Error("analysis model returned malformed JSON", "op", op, "error", err)
		return fmt.Errorf("%s: %w: %v", op, ErrMalformedResponse, err)
	}

	a.logger.Info("analysis model call succeeded",
		"op", op,
		"model", a.model,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Composite sends transcript-based analysis to an Analyzer and everything
// else to the base gateway.
type Composite struct {
	Gateway
	analyzer Analyzer
}

// Compose returns base with its analysis operations served by analyzer. A
// nil analyzer returns base unchanged.
func Compose(base Gateway, analyzer Analyzer) Gateway {
	if analyzer == nil {
		return base
	}
	return &Composite{Gateway: base, analyzer: analyzer}
}

func (c *Composite) AnalyzeContext(ctx context.Context, in MediaInput) (*VideoContext, error) {
	if strings.TrimSpace(in.Transcript) == "" {
		return c.Gateway.AnalyzeContext(ctx, in)
	}
	return c.analyzer.AnalyzeContext(ctx, in)
}

func (c *Composite) AnalyzeEnhancements(ctx context.Context, req EnhancementRequest) (*EnhancementAnalysis, error) {
	return c.analyzer.AnalyzeEnhancements(ctx, req)
}

func (c *Composite) GenerateStoryboard(ctx context.Context, req StoryboardRequest) (*Storyboard, error) {
	return c.analyzer.GenerateStoryboard(ctx, req)
}
