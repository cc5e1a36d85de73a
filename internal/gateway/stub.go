package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/framecraft/studio/internal/timeline"
)

// StubGateway returns canned, deterministic results so the studio works
// offline.
type StubGateway struct {
	logger *slog.Logger
}

func NewStubGateway(logger *slog.Logger) *StubGateway {
	return &StubGateway{logger: logger}
}

var stubLines = []string{
	"Welcome back to the channel.",
	"Today we are building a desk setup from scratch.",
	"First, the monitor arm.",
	"Then we tidy every cable.",
	"And here is the final result.",
}

func stubDuration(in MediaInput) float64 {
	if in.Duration > 0 {
		return in.Duration
	}
	return 30
}

func (s *StubGateway) Transcribe(ctx context.Context, in MediaInput) (*Transcription, error) {
	s.logger.Info("gateway stub: transcription requested", "input", in.Kind())

	duration := stubDuration(in)
	slot := duration / float64(len(stubLines))
	segs := make([]timeline.TranscriptSegment, len(stubLines))
	for i, line := range stubLines {
		start := float64(i) * slot
		segs[i] = timeline.TranscriptSegment{
			StartTime: start,
			EndTime:   start + slot*0.8,
			Text:      line,
			Speaker:   "A",
		}
	}
	return &Transcription{
		FullText:   strings.Join(stubLines, " "),
		Segments:   segs,
		Language:   "en",
		Confidence: 0.9,
	}, nil
}

func (s *StubGateway) AnalyzeContext(ctx context.Context, in MediaInput) (*VideoContext, error) {
	s.logger.Info("gateway stub: context analysis requested", "input", in.Kind())

	duration := stubDuration(in)
	slot := duration / float64(len(stubLines))
	var pauses, scenes []timeline.Annotation
	for i := 1; i < len(stubLines); i++ {
		start := float64(i)*slot - slot*0.2
		end := float64(i) * slot
		pauses = append(pauses, timeline.Annotation{
			StartTime: start, EndTime: &end, Type: "breath", Importance: "low",
			Description: "Natural breath between sentences",
		})
	}
	scenes = append(scenes, timeline.Annotation{StartTime: 2 * slot, Type: "cut", Description: "Cut to close-up"})

	return &VideoContext{
		Script: ScriptAnalysis{
			Summary: "A desk setup walkthrough.",
			Hook:    stubLines[0],
			Tone:    "friendly",
			Topics:  []string{"desk setup", "cable management"},
		},
		Pacing:  PacingAnalysis{OverallPace: "moderate", WordsPerMinute: 140},
		Visuals: VisualAnalysis{Style: "clean", Setting: "home office"},
		Content: ContentAnalysis{Category: "tutorial", TargetAudience: "creators", Platform: "youtube"},
		Timing: Timing{
			Pauses:       pauses,
			KeyMoments:   []timeline.Annotation{{StartTime: 4 * slot, Type: "reveal", Importance: "high", Description: "Final result"}},
			SceneChanges: scenes,
		},
		Recommendations: Recommendations{
			SuggestedEdits: []timeline.Annotation{{StartTime: 0, Type: "hook", Importance: "medium", Description: "Open on the final result"}},
		},
	}, nil
}

func (s *StubGateway) AnalyzeEnhancements(ctx context.Context, req EnhancementRequest) (*EnhancementAnalysis, error) {
	s.logger.Info("gateway stub: enhancement analysis requested", "transcript_chars", len(req.Transcript))

	suggestions := []EnhancementSuggestion{
		{Type: "graphic", StartTime: 0, EndTime: 3, Description: "Channel logo sting", TriggerText: "Welcome back", Reason: "Brand the intro", Confidence: 0.8},
		{Type: "sfx", StartTime: 6, EndTime: 7, Description: "Whoosh transition", TriggerText: "First", Reason: "Mark the first step", Confidence: 0.7},
		{Type: "visual", StartTime: 12, EndTime: 16, Description: "B-roll of cable ties", TriggerText: "cable", Reason: "Illustrate the step", Confidence: 0.65},
	}
	if req.Duration > 0 {
		kept := suggestions[:0]
		for _, sg := range suggestions {
			if sg.EndTime <= req.Duration {
				kept = append(kept, sg)
			}
		}
		suggestions = kept
	}
	return &EnhancementAnalysis{
		Suggestions: suggestions,
		Summary:     "Light enhancements for a tutorial.",
		VideoStyle:  "tutorial",
		Density:     "light",
	}, nil
}

func (s *StubGateway) GenerateStoryboard(ctx context.Context, req StoryboardRequest) (*Storyboard, error) {
	s.logger.Info("gateway stub: storyboard requested", "style", req.Style)

	return &Storyboard{
		Title: "Desk setup",
		Style: req.Style,
		Scenes: []StoryboardScene{
			{
				ID: "scene-1", Title: "Intro", StartTime: 0, EndTime: 6,
				Elements: []StoryboardElement{
					{ID: "el-1", Kind: "text", Content: "Desk Setup 2.0", StartTime: 0.5, EndTime: 3, Position: &Position{X: 0.5, Y: 0.2}, Animation: "fade-up"},
					{ID: "el-2", Kind: "graphic", Content: "logo", StartTime: 3, EndTime: 5.5, Position: &Position{X: 0.9, Y: 0.1, Scale: 0.5}, Animation: "pop"},
				},
			},
			{
				ID: "scene-2", Title: "Cables", StartTime: 12, EndTime: 18,
				Elements: []StoryboardElement{
					{ID: "el-3", Kind: "text", Content: "Step 2: cables", StartTime: 0, EndTime: 4, Position: &Position{X: 0.1, Y: 0.85}, Animation: "slide-left"},
				},
			},
		},
	}, nil
}

func (s *StubGateway) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	s.logger.Info("gateway stub: image requested", "prompt", req.Prompt)
	return &ImageResult{ImageURL: "stub://image/" + slug(req.Prompt), Prompt: req.Prompt}, nil
}

func (s *StubGateway) GenerateSFX(ctx context.Context, req SFXRequest) (*SFXResult, error) {
	d := ClampSFXDuration(req.Duration)
	s.logger.Info("gateway stub: sfx requested", "prompt", req.Prompt, "duration", d)
	return &SFXResult{AudioURL: "stub://sfx/" + slug(req.Prompt), Prompt: req.Prompt, Duration: d}, nil
}

// ChatStream replies with a short message split into token events, ending
// with a fenced edit action.
func (s *StubGateway) ChatStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	last := ""
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}
	s.logger.Info("gateway stub: chat requested", "messages", len(req.Messages))

	reply := fmt.Sprintf("Here is one idea for %q: add a title card over the intro.\n"+
		"```json\n{\"type\":\"graphic\",\"description\":\"Title card over the intro\",\"timestamps\":[{\"start\":0,\"end\":3}]}\n```", last)

	var sb strings.Builder
	for _, tok := range strings.SplitAfter(reply, " ") {
		b, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"delta": map[string]any{"content": tok}}},
		})
		sb.WriteString("data: ")
		sb.Write(b)
		sb.WriteString("\n\n")
	}
	sb.WriteString("data: [DONE]\n\n")
	return io.NopCloser(strings.NewReader(sb.String())), nil
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	dash := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
		} else if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 40 {
			break
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
