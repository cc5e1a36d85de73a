package presets

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

const selectPreset = `SELECT id, kind, name, settings, created_at, updated_at FROM presets`

func scanPreset(row interface{ Scan(...any) error }) (*Preset, error) {
	var p Preset
	var kind, settings, createdAt, updatedAt string
	if err := row.Scan(&p.ID, &kind, &p.Name, &settings, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Kind = Kind(kind)
	if err := json.Unmarshal([]byte(settings), &p.Settings); err != nil {
		return nil, fmt.Errorf("decode preset %s settings: %w", p.ID, err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &p, nil
}

func (s *SQLiteStore) List(ctx context.Context, kind Kind) ([]*Preset, error) {
	query := selectPreset + ` ORDER BY kind, name`
	args := []any{}
	if kind != "" {
		query = selectPreset + ` WHERE kind = ? ORDER BY name`
		args = append(args, string(kind))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Preset
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Preset, error) {
	p, err := scanPreset(s.db.QueryRowContext(ctx, selectPreset+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *SQLiteStore) Save(ctx context.Context, p *Preset) error {
	p.Name = strings.TrimSpace(p.Name)
	if err := validate(p); err != nil {
		return err
	}
	if p.Settings == nil {
		p.Settings = map[string]any{}
	}
	settings, err := json.Marshal(p.Settings)
	if err != nil {
		return fmt.Errorf("%w: settings: %v", ErrInvalid, err)
	}

	var taken string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM presets WHERE kind = ? AND name = ? AND id <> ?`,
		string(p.Kind), p.Name, p.ID,
	).Scan(&taken)
	switch {
	case err == nil:
		return ErrDuplicateName
	case err != sql.ErrNoRows:
		return err
	}

	now := s.now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
		p.CreatedAt = now
		p.UpdatedAt = now
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO presets (id, kind, name, settings, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, p.ID, string(p.Kind), p.Name, string(settings), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE presets SET kind = ?, name = ?, settings = ?, updated_at = ? WHERE id = ?
	`, string(p.Kind), p.Name, string(settings), now.Format(time.RFC3339Nano), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	p.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM presets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
