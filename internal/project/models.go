// Package project stores editing projects together with their analysis
// results and edit history.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	VideoPath string    `json:"video_path,omitempty"`
	VideoURL  string    `json:"video_url,omitempty"`
	Duration  float64   `json:"duration"`
	CreatedAt time.Time `json:"created_at"`
}

// AnalysisKind names what an AnalysisResult holds.
type AnalysisKind string

const (
	KindTranscription AnalysisKind = "transcription"
	KindVideoContext  AnalysisKind = "video_context"
	KindEnhancements  AnalysisKind = "enhancements"
	KindStoryboard    AnalysisKind = "storyboard"
)

// AnalysisResult is the stored payload of one successful remote analysis.
type AnalysisResult struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Kind      AnalysisKind    `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EditEntry is one user edit applied in a session.
type EditEntry struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	SessionID string          `json:"session_id"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ConfigAuthToken is the config key holding the API bearer token.
const ConfigAuthToken = "auth_token"

var ErrNotFound = errors.New("project not found")

// ValidationError reports an invalid project field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".m4v":  true,
}

func NewID() string {
	return uuid.NewString()
}

func IsVideoFile(filename string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(filename))]
}
