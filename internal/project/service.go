package project

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CreateInput describes a new project. Exactly one of VideoPath or VideoURL
// is set.
type CreateInput struct {
	Name      string  `json:"name"`
	VideoPath string  `json:"video_path,omitempty"`
	VideoURL  string  `json:"video_url,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
}

// DurationProber reads the duration of a local media file.
type DurationProber interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

type Service struct {
	repo   Repository
	prober DurationProber
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// SetProber enables reading the duration of local videos created without
// one.
func (s *Service) SetProber(p DurationProber) {
	s.prober = p
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	hasPath := strings.TrimSpace(in.VideoPath) != ""
	hasURL := strings.TrimSpace(in.VideoURL) != ""
	if hasPath == hasURL {
		return nil, &ValidationError{Field: "video", Message: "provide exactly one of video_path or video_url"}
	}
	if in.Duration < 0 {
		return nil, &ValidationError{Field: "duration", Message: "must be positive"}
	}

	p := &Project{
		ID:        NewID(),
		Name:      name,
		Duration:  in.Duration,
		CreatedAt: s.now(),
	}
	if hasPath {
		absPath, err := filepath.Abs(in.VideoPath)
		if err != nil {
			return nil, &ValidationError{Field: "video_path", Message: err.Error()}
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, &ValidationError{Field: "video_path", Message: "file does not exist"}
		}
		if info.IsDir() || !IsVideoFile(absPath) {
			return nil, &ValidationError{Field: "video_path", Message: "not a video file"}
		}
		p.VideoPath = absPath
		if p.Duration == 0 && s.prober != nil {
			if d, err := s.prober.ProbeDuration(ctx, absPath); err != nil {
				s.logger.Warn("failed to probe video duration", "path", absPath, "error", err)
			} else {
				p.Duration = d
			}
		}
	} else {
		u, err := url.Parse(strings.TrimSpace(in.VideoURL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, &ValidationError{Field: "video_url", Message: "must be an http(s) URL"}
		}
		p.VideoURL = u.String()
	}

	if err := s.repo.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	s.logger.Info("project created", "project_id", p.ID, "name", p.Name)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Project, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]*Project, error) {
	return s.repo.ListProjects(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteProject(ctx, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	s.logger.Info("project deleted", "project_id", id)
	return nil
}

// RecordAnalysis stores v as the latest analysis of kind for the project.
func (s *Service) RecordAnalysis(ctx context.Context, projectID string, kind AnalysisKind, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s analysis: %w", kind, err)
	}
	err = s.repo.SaveAnalysis(ctx, &AnalysisResult{
		ID:        NewID(),
		ProjectID: projectID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("save %s analysis: %w", kind, err)
	}
	return nil
}

// LatestAnalysis decodes the newest analysis of kind into v and reports
// whether one existed.
func (s *Service) LatestAnalysis(ctx context.Context, projectID string, kind AnalysisKind, v any) (bool, error) {
	a, err := s.repo.LatestAnalysis(ctx, projectID, kind)
	if err != nil {
		return false, fmt.Errorf("load %s analysis: %w", kind, err)
	}
	if a == nil {
		return false, nil
	}
	if err := json.Unmarshal(a.Payload, v); err != nil {
		return false, fmt.Errorf("decode %s analysis: %w", kind, err)
	}
	return true, nil
}

func (s *Service) Analyses(ctx context.Context, projectID string) ([]*AnalysisResult, error) {
	return s.repo.ListAnalyses(ctx, projectID)
}

// RecordEdit appends an entry to the project's edit history.
func (s *Service) RecordEdit(ctx context.Context, projectID, sessionID, action string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode edit payload: %w", err)
		}
		raw = b
	}
	err := s.repo.AppendEdit(ctx, &EditEntry{
		ID:        NewID(),
		ProjectID: projectID,
		SessionID: sessionID,
		Action:    action,
		Payload:   raw,
		CreatedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("append edit: %w", err)
	}
	return nil
}

func (s *Service) History(ctx context.Context, projectID string, limit int) ([]*EditEntry, error) {
	if _, err := s.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListEdits(ctx, projectID, limit)
}

func (s *Service) GetConfig(ctx context.Context, key string) (string, error) {
	return s.repo.GetConfig(ctx, key)
}

func (s *Service) SetConfig(ctx context.Context, key, value string) error {
	return s.repo.SetConfig(ctx, key, value)
}

// EnsureAuthToken returns the stored API token, generating one on first run.
func (s *Service) EnsureAuthToken(ctx context.Context) (string, error) {
	token, err := s.repo.GetConfig(ctx, ConfigAuthToken)
	if err != nil {
		return "", fmt.Errorf("load auth token: %w", err)
	}
	if token != "" {
		return token, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	token = hex.EncodeToString(b)
	if err := s.repo.SetConfig(ctx, ConfigAuthToken, token); err != nil {
		return "", fmt.Errorf("store auth token: %w", err)
	}
	s.logger.Info("generated api auth token")
	return token, nil
}
