package templates

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps templates in a SQLite table
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (or creates) the template database at path
func NewSQLiteStore(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply busy_timeout: %w", err)
	}

	_, err = db.ExecContext(ctx, `
    CREATE TABLE IF NOT EXISTS prompt_templates (
        name TEXT PRIMARY KEY,
        description TEXT NOT NULL DEFAULT '',
        use_case TEXT NOT NULL,
        template_text TEXT NOT NULL,
        model_provider TEXT NOT NULL DEFAULT '',
        model_id TEXT NOT NULL DEFAULT '',
        max_tokens INTEGER NOT NULL DEFAULT 2048,
        temperature REAL NOT NULL DEFAULT 0.5,
        response_format TEXT NOT NULL DEFAULT '{}',
        is_active INTEGER NOT NULL DEFAULT 1
    );
    CREATE INDEX IF NOT EXISTS idx_prompt_templates_use_case ON prompt_templates(use_case);
    `)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("SQLite template store initialized")
	return &SQLiteStore{db: db, logger: logger}, nil
}

const templateColumns = `name, description, use_case, template_text, model_provider,
    model_id, max_tokens, temperature, response_format, is_active`

func (s *SQLiteStore) Get(ctx context.Context, name string) (*Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM prompt_templates WHERE name = ? AND is_active = 1`, name)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template %q: %w", name, err)
	}
	return t, nil
}

func (s *SQLiteStore) Put(ctx context.Context, t Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	format, err := json.Marshal(t.ResponseFormat)
	if err != nil {
		return fmt.Errorf("encode response_format: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO prompt_templates (`+templateColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET
            description = excluded.description,
            use_case = excluded.use_case,
            template_text = excluded.template_text,
            model_provider = excluded.model_provider,
            model_id = excluded.model_id,
            max_tokens = excluded.max_tokens,
            temperature = excluded.temperature,
            response_format = excluded.response_format,
            is_active = excluded.is_active`,
		t.Name, t.Description, t.UseCase, t.Text, t.Provider,
		t.ModelID, t.MaxTokens, t.Temperature, string(format), t.Active)
	if err != nil {
		return fmt.Errorf("put template %q: %w", t.Name, err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prompt_templates WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("remove template %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove template %q: %w", name, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) List(ctx context.Context, useCase string) ([]Template, error) {
	query := `SELECT ` + templateColumns + ` FROM prompt_templates WHERE is_active = 1`
	var args []any
	if useCase != "" {
		query += ` AND use_case = ?`
		args = append(args, useCase)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	out := []Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Close releases the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*Template, error) {
	var (
		t      Template
		format string
	)
	err := row.Scan(&t.Name, &t.Description, &t.UseCase, &t.Text, &t.Provider,
		&t.ModelID, &t.MaxTokens, &t.Temperature, &format, &t.Active)
	if err != nil {
		return nil, err
	}
	t.ResponseFormat = map[string]any{}
	if format != "" {
		if err := json.Unmarshal([]byte(format), &t.ResponseFormat); err != nil {
			return nil, fmt.Errorf("decode response_format of %q: %w", t.Name, err)
		}
	}
	return &t, nil
}
