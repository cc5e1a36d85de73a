package project

import (
	"context"
	"database/sql"
	"time"
)

// Repository persists projects. Getters return nil, nil when the row does not
// exist.
type Repository interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	DeleteProject(ctx context.Context, id string) error

	SaveAnalysis(ctx context.Context, a *AnalysisResult) error
	LatestAnalysis(ctx context.Context, projectID string, kind AnalysisKind) (*AnalysisResult, error)
	ListAnalyses(ctx context.Context, projectID string) ([]*AnalysisResult, error)

	AppendEdit(ctx context.Context, e *EditEntry) error
	ListEdits(ctx context.Context, projectID string, limit int) ([]*EditEntry, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateProject(ctx context.Context, p *Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, video_path, video_url, duration, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, nullString(p.VideoPath), nullString(p.VideoURL), p.Duration, p.CreatedAt.UTC().Format(timeLayout))
	return err
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, video_path, video_url, duration, created_at
		FROM projects WHERE id = ?
	`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*Project, error) {
	var p Project
	var videoPath, videoURL sql.NullString
	var createdAt string
	if err := row.Scan(&p.ID, &p.Name, &videoPath, &videoURL, &p.Duration, &createdAt); err != nil {
		return nil, err
	}
	p.VideoPath = videoPath.String
	p.VideoURL = videoURL.String
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, video_path, video_url, duration, created_at
		FROM projects ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) SaveAnalysis(ctx context.Context, a *AnalysisResult) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analysis_results (id, project_id, kind, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.ProjectID, string(a.Kind), string(a.Payload), a.CreatedAt.UTC().Format(timeLayout))
	return err
}

func (r *SQLiteRepository) LatestAnalysis(ctx context.Context, projectID string, kind AnalysisKind) (*AnalysisResult, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, kind, payload, created_at
		FROM analysis_results WHERE project_id = ? AND kind = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, projectID, string(kind))
	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func scanAnalysis(row scanner) (*AnalysisResult, error) {
	var a AnalysisResult
	var kind, payload, createdAt string
	if err := row.Scan(&a.ID, &a.ProjectID, &kind, &payload, &createdAt); err != nil {
		return nil, err
	}
	a.Kind = AnalysisKind(kind)
	a.Payload = []byte(payload)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func (r *SQLiteRepository) ListAnalyses(ctx context.Context, projectID string) ([]*AnalysisResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, kind, payload, created_at
		FROM analysis_results WHERE project_id = ? ORDER BY created_at DESC, rowid DESC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AnalysisResult
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) AppendEdit(ctx context.Context, e *EditEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO edit_history (id, project_id, session_id, action, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.ProjectID, e.SessionID, e.Action, nullString(string(e.Payload)), e.CreatedAt.UTC().Format(timeLayout))
	return err
}

// ListEdits returns the newest limit entries, newest first.
func (r *SQLiteRepository) ListEdits(ctx context.Context, projectID string, limit int) ([]*EditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, session_id, action, payload, created_at
		FROM edit_history WHERE project_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*EditEntry
	for rows.Next() {
		var e EditEntry
		var payload sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.SessionID, &e.Action, &payload, &createdAt); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.DateTime, s)
	}
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
