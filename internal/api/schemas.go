package api

import (
	"github.com/framecraft/studio/internal/editor"
	"github.com/framecraft/studio/internal/gateway"
	"github.com/framecraft/studio/internal/project"
	"github.com/framecraft/studio/internal/session"
	"github.com/framecraft/studio/internal/timeline"
	"github.com/framecraft/studio/internal/workflow"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State        string         `json:"state"`
	GatewayMode  string         `json:"gateway_mode"`
	SessionsOpen int            `json:"sessions_open"`
	Sessions     []session.Info `json:"sessions"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type ProjectsResponse struct {
	Projects []*project.Project `json:"projects"`
}

type HistoryResponse struct {
	Edits []*project.EditEntry `json:"edits"`
}

type CreateSessionRequest struct {
	ProjectID   string  `json:"project_id,omitempty"`
	Title       string  `json:"title,omitempty"`
	VideoPath   string  `json:"video_path,omitempty"`
	VideoURL    string  `json:"video_url,omitempty"`
	Duration    float64 `json:"duration,omitempty"`
	Platform    string  `json:"platform,omitempty"`
	ContentType string  `json:"content_type,omitempty"`
}

type SeekRequest struct {
	Time float64 `json:"time"`
}

type CaptionRequest struct {
	Text string `json:"text"`
}

type StoryboardRequest struct {
	Style    string         `json:"style"`
	Settings map[string]any `json:"settings,omitempty"`
}

type StepRequest struct {
	Step string `json:"step"`
}

type EnhancementPatch struct {
	StartTime *float64          `json:"startTime,omitempty"`
	EndTime   *float64          `json:"endTime,omitempty"`
	Position  *gateway.Position `json:"position,omitempty"`
}

type AddEnhancementRequest struct {
	Type        string  `json:"type"`
	StartTime   float64 `json:"startTime"`
	EndTime     float64 `json:"endTime"`
	Description string  `json:"description"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type PointerRequest struct {
	ClipID   string          `json:"clipId,omitempty"`
	X        float64         `json:"x"`
	Geometry editor.Geometry `json:"geometry"`
}

type PointerDownResponse struct {
	Zone string `json:"zone"`
}

type ClickResponse struct {
	Seeked bool             `json:"seeked"`
	Active *timeline.Active `json:"active,omitempty"`
}

type LayoutResponse struct {
	Tracks []editor.TrackLayout `json:"tracks"`
}

type BatchResponse struct {
	Result  workflow.BatchResult `json:"result"`
	Summary string               `json:"summary"`
}
