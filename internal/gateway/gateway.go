// Package gateway is the boundary to the hosted AI operations: transcription,
// context and enhancement analysis, storyboard generation, image and sound
// effect generation, and streamed chat.
package gateway

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/framecraft/studio/internal/timeline"
)

// Gateway is every remote capability the studio orchestrates.
type Gateway interface {
	Analyzer
	Transcribe(ctx context.Context, in MediaInput) (*Transcription, error)
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error)
	GenerateSFX(ctx context.Context, req SFXRequest) (*SFXResult, error)
	// ChatStream returns the raw server-sent-event body. The caller closes it.
	ChatStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error)
}

// Analyzer covers the operations that return structured JSON analysis.
type Analyzer interface {
	AnalyzeContext(ctx context.Context, in MediaInput) (*VideoContext, error)
	AnalyzeEnhancements(ctx context.Context, req EnhancementRequest) (*EnhancementAnalysis, error)
	GenerateStoryboard(ctx context.Context, req StoryboardRequest) (*Storyboard, error)
}

// MediaInput names the media an operation works on. Callers set exactly one
// of VideoBytes, VideoURL or Transcript.
type MediaInput struct {
	VideoBytes []byte  `json:"-"`
	VideoURL   string  `json:"videoUrl,omitempty"`
	Transcript string  `json:"transcript,omitempty"`
	FileName   string  `json:"fileName,omitempty"`
	MimeType   string  `json:"mimeType,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
}

// Provided counts the inputs that are set.
func (m MediaInput) Provided() int {
	n := 0
	if len(m.VideoBytes) > 0 {
		n++
	}
	if strings.TrimSpace(m.VideoURL) != "" {
		n++
	}
	if strings.TrimSpace(m.Transcript) != "" {
		n++
	}
	return n
}

// Kind describes which input is set, for logging.
func (m MediaInput) Kind() string {
	switch {
	case len(m.VideoBytes) > 0:
		return "video_bytes"
	case m.VideoURL != "":
		return "video_url"
	case m.Transcript != "":
		return "transcript"
	default:
		return "none"
	}
}

type Transcription struct {
	FullText   string                       `json:"fullText"`
	Segments   []timeline.TranscriptSegment `json:"segments"`
	Language   string                       `json:"language"`
	Confidence float64                      `json:"confidence"`
}

type ScriptAnalysis struct {
	Summary string   `json:"summary"`
	Hook    string   `json:"hook,omitempty"`
	Tone    string   `json:"tone,omitempty"`
	Topics  []string `json:"topics,omitempty"`
}

type PacingAnalysis struct {
	OverallPace    string  `json:"overallPace"`
	WordsPerMinute float64 `json:"wordsPerMinute,omitempty"`
	Notes          string  `json:"notes,omitempty"`
}

type VisualAnalysis struct {
	Style        string   `json:"style,omitempty"`
	Setting      string   `json:"setting,omitempty"`
	ColorPalette []string `json:"colorPalette,omitempty"`
}

type ContentAnalysis struct {
	Category       string `json:"category,omitempty"`
	TargetAudience string `json:"targetAudience,omitempty"`
	Platform       string `json:"platform,omitempty"`
}

type Timing struct {
	Pauses       []timeline.Annotation `json:"pauses"`
	KeyMoments   []timeline.Annotation `json:"keyMoments"`
	SceneChanges []timeline.Annotation `json:"sceneChanges"`
}

type Recommendations struct {
	SuggestedEdits []timeline.Annotation `json:"suggestedEdits"`
	Notes          []string              `json:"notes,omitempty"`
}

// VideoContext is the result of context analysis.
type VideoContext struct {
	Script          ScriptAnalysis  `json:"script"`
	Pacing          PacingAnalysis  `json:"pacing"`
	Visuals         VisualAnalysis  `json:"visuals"`
	Content         ContentAnalysis `json:"content"`
	Timing          Timing          `json:"timing"`
	Recommendations Recommendations `json:"recommendations"`
}

// Summary is a short plain-text digest used as chat context.
func (c *VideoContext) Summary() string {
	if c == nil {
		return ""
	}
	var parts []string
	if c.Script.Summary != "" {
		parts = append(parts, "Summary: "+c.Script.Summary)
	}
	if c.Script.Tone != "" {
		parts = append(parts, "Tone: "+c.Script.Tone)
	}
	if c.Pacing.OverallPace != "" {
		parts = append(parts, "Pacing: "+c.Pacing.OverallPace)
	}
	if c.Content.Category != "" {
		parts = append(parts, "Category: "+c.Content.Category)
	}
	parts = append(parts, fmt.Sprintf("Pauses: %d, key moments: %d, scene changes: %d",
		len(c.Timing.Pauses), len(c.Timing.KeyMoments), len(c.Timing.SceneChanges)))
	return strings.Join(parts, "\n")
}

type EnhancementRequest struct {
	Transcript string                       `json:"transcript"`
	Segments   []timeline.TranscriptSegment `json:"segments,omitempty"`
	Context    *VideoContext                `json:"videoContext,omitempty"`
	Duration   float64                      `json:"duration,omitempty"`
}

type EnhancementSuggestion struct {
	Type        string  `json:"type"`
	StartTime   float64 `json:"startTime"`
	EndTime     float64 `json:"endTime"`
	Description string  `json:"description"`
	TriggerText string  `json:"triggerText,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	Confidence  float64 `json:"confidence"`
	Prompt      string  `json:"prompt,omitempty"`
}

type EnhancementAnalysis struct {
	Suggestions []EnhancementSuggestion `json:"suggestions"`
	Summary     string                  `json:"summary"`
	VideoStyle  string                  `json:"videoStyle"`
	Density     string                  `json:"density"`
}

type StoryboardRequest struct {
	Context       VideoContext   `json:"videoContext"`
	Style         string         `json:"style"`
	StyleSettings map[string]any `json:"styleSettings,omitempty"`
	Duration      float64        `json:"duration,omitempty"`
}

type Position struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale,omitempty"`
}

// StoryboardElement timings are relative to the start of its scene.
type StoryboardElement struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Content   string         `json:"content"`
	StartTime float64        `json:"startTime"`
	EndTime   float64        `json:"endTime"`
	Position  *Position      `json:"position,omitempty"`
	Animation string         `json:"animation,omitempty"`
	Style     map[string]any `json:"style,omitempty"`
}

type StoryboardScene struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	StartTime float64             `json:"startTime"`
	EndTime   float64             `json:"endTime"`
	Elements  []StoryboardElement `json:"elements"`
}

type Storyboard struct {
	Title  string            `json:"title"`
	Style  string            `json:"style"`
	Scenes []StoryboardScene `json:"scenes"`
}

// ElementIDs lists every element id in scene order.
func (s *Storyboard) ElementIDs() []string {
	var ids []string
	for _, scene := range s.Scenes {
		for _, el := range scene.Elements {
			ids = append(ids, el.ID)
		}
	}
	return ids
}

type ImageRequest struct {
	Prompt      string `json:"prompt"`
	Style       string `json:"style,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type ImageResult struct {
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt"`
}

const (
	MinSFXDuration = 0.5
	MaxSFXDuration = 22.0
)

type SFXRequest struct {
	Prompt   string  `json:"prompt"`
	Duration float64 `json:"duration"`
}

type SFXResult struct {
	AudioURL string  `json:"audioUrl"`
	Prompt   string  `json:"prompt"`
	Duration float64 `json:"duration"`
}

// ClampSFXDuration limits d to the range the sound effect model accepts.
func ClampSFXDuration(d float64) float64 {
	if d < MinSFXDuration {
		return MinSFXDuration
	}
	if d > MaxSFXDuration {
		return MaxSFXDuration
	}
	return d
}

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages    []ChatTurn `json:"messages"`
	Context     string     `json:"analysisContext,omitempty"`
	Platform    string     `json:"platform,omitempty"`
	ContentType string     `json:"contentType,omitempty"`
}
