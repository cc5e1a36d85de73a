package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type projectModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	VideoPath string
	VideoURL  string
	Duration  float64
	CreatedAt time.Time `gorm:"index"`
}

func (projectModel) TableName() string { return "projects" }

type analysisModel struct {
	ID        string `gorm:"primaryKey"`
	ProjectID string `gorm:"not null;index:idx_analysis_project_kind"`
	Kind      string `gorm:"not null;index:idx_analysis_project_kind"`
	Payload   []byte `gorm:"type:jsonb"`
	CreatedAt time.Time
}

func (analysisModel) TableName() string { return "analysis_results" }

type editModel struct {
	ID        string `gorm:"primaryKey"`
	ProjectID string `gorm:"not null;index"`
	SessionID string `gorm:"not null"`
	Action    string `gorm:"not null"`
	Payload   []byte `gorm:"type:jsonb"`
	CreatedAt time.Time
}

func (editModel) TableName() string { return "edit_history" }

type configModel struct {
	Key   string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}

func (configModel) TableName() string { return "config" }

func projectModelFrom(p *Project) projectModel {
	return projectModel{
		ID:        p.ID,
		Name:      p.Name,
		VideoPath: p.VideoPath,
		VideoURL:  p.VideoURL,
		Duration:  p.Duration,
		CreatedAt: p.CreatedAt.UTC(),
	}
}

func (m projectModel) toProject() *Project {
	return &Project{
		ID:        m.ID,
		Name:      m.Name,
		VideoPath: m.VideoPath,
		VideoURL:  m.VideoURL,
		Duration:  m.Duration,
		CreatedAt: m.CreatedAt,
	}
}

func (m analysisModel) toResult() *AnalysisResult {
	return &AnalysisResult{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		Kind:      AnalysisKind(m.Kind),
		Payload:   m.Payload,
		CreatedAt: m.CreatedAt,
	}
}

func (m editModel) toEntry() *EditEntry {
	return &EditEntry{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		SessionID: m.SessionID,
		Action:    m.Action,
		Payload:   m.Payload,
		CreatedAt: m.CreatedAt,
	}
}

// GormRepository stores projects in Postgres for a managed deployment.
type GormRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// OpenPostgres connects with dsn, migrates the schema and returns the
// repository along with a close function.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*GormRepository, func() error, error) {
	if dsn == "" {
		return nil, nil, errors.New("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("open gorm postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	repo := NewGormRepository(db, logger)
	if err := repo.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}
	return repo, sqlDB.Close, nil
}

func NewGormRepository(db *gorm.DB, logger *slog.Logger) *GormRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &GormRepository{db: db, logger: logger}
}

func (r *GormRepository) Migrate(ctx context.Context) error {
	err := r.db.WithContext(ctx).AutoMigrate(&projectModel{}, &analysisModel{}, &editModel{}, &configModel{})
	if err != nil {
		return fmt.Errorf("migrate postgres schema: %w", err)
	}
	return nil
}

func (r *GormRepository) logError(msg string, err error, attrs ...any) error {
	r.logger.Error(msg, append(attrs, "error", err)...)
	return err
}

func (r *GormRepository) CreateProject(ctx context.Context, p *Project) error {
	row := projectModelFrom(p)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("project_repo_create_failed", err, "project_id", p.ID)
	}
	return nil
}

func (r *GormRepository) GetProject(ctx context.Context, id string) (*Project, error) {
	var row projectModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, r.logError("project_repo_get_failed", err, "project_id", id)
	}
	return row.toProject(), nil
}

func (r *GormRepository) ListProjects(ctx context.Context) ([]*Project, error) {
	var rows []projectModel
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, r.logError("project_repo_list_failed", err)
	}
	out := make([]*Project, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toProject())
	}
	return out, nil
}

// DeleteProject removes the project with its analyses and history.
func (r *GormRepository) DeleteProject(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&analysisModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&editModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&projectModel{}).Error
	})
}

func (r *GormRepository) SaveAnalysis(ctx context.Context, a *AnalysisResult) error {
	row := analysisModel{
		ID:        a.ID,
		ProjectID: a.ProjectID,
		Kind:      string(a.Kind),
		Payload:   a.Payload,
		CreatedAt: a.CreatedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("project_repo_save_analysis_failed", err, "project_id", a.ProjectID, "kind", string(a.Kind))
	}
	return nil
}

func (r *GormRepository) LatestAnalysis(ctx context.Context, projectID string, kind AnalysisKind) (*AnalysisResult, error) {
	var row analysisModel
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND kind = ?", projectID, string(kind)).
		Order("created_at DESC").
		First(&row).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, r.logError("project_repo_latest_analysis_failed", err, "project_id", projectID)
	}
	return row.toResult(), nil
}

func (r *GormRepository) ListAnalyses(ctx context.Context, projectID string) ([]*AnalysisResult, error) {
	var rows []analysisModel
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at DESC").Find(&rows).Error
	if err != nil {
		return nil, r.logError("project_repo_list_analyses_failed", err, "project_id", projectID)
	}
	out := make([]*AnalysisResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toResult())
	}
	return out, nil
}

func (r *GormRepository) AppendEdit(ctx context.Context, e *EditEntry) error {
	row := editModel{
		ID:        e.ID,
		ProjectID: e.ProjectID,
		SessionID: e.SessionID,
		Action:    e.Action,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("project_repo_append_edit_failed", err, "project_id", e.ProjectID, "action", e.Action)
	}
	return nil
}

func (r *GormRepository) ListEdits(ctx context.Context, projectID string, limit int) ([]*EditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []editModel
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).
		Error
	if err != nil {
		return nil, r.logError("project_repo_list_edits_failed", err, "project_id", projectID)
	}
	out := make([]*EditEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntry())
	}
	return out, nil
}

func (r *GormRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var row configModel
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

func (r *GormRepository) SetConfig(ctx context.Context, key, value string) error {
	row := configModel{Key: key, Value: value}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
}
