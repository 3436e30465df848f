package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/First008/vcare/internal/nutrition"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements NutrientStore on a local SQLite catalog. Similarity
// uses trigram overlap on food names, so no embedding service is needed.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// NewSQLiteStore opens (or creates) the catalog at path. Use ":memory:" for
// a throwaway catalog.
func NewSQLiteStore(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	store := &SQLiteStore{db: db, path: path, logger: logger}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("SQLite nutrient store initialized")
	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS food_nutrients (
        name TEXT PRIMARY KEY,
        carbohydrates REAL NOT NULL DEFAULT 0,
        proteins REAL NOT NULL DEFAULT 0,
        fats REAL NOT NULL DEFAULT 0,
        fibre REAL NOT NULL DEFAULT 0,
        calories REAL NOT NULL DEFAULT 0,
        source TEXT NOT NULL DEFAULT ''
    );

    CREATE TABLE IF NOT EXISTS ingredient_mappings (
        variant TEXT PRIMARY KEY,
        canonical TEXT NOT NULL,
        category TEXT NOT NULL DEFAULT ''
    );
    `
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// LookupExact matches the name directly or through an ingredient mapping
func (s *SQLiteStore) LookupExact(ctx context.Context, name string) (*nutrition.Profile, error) {
	name = nutrition.NormalizeName(name)

	row := s.db.QueryRowContext(ctx, `
        SELECT f.carbohydrates, f.proteins, f.fats, f.fibre, f.calories
        FROM food_nutrients f
        WHERE f.name = ?
           OR f.name = (SELECT canonical FROM ingredient_mappings WHERE variant = ?)
        ORDER BY f.name = ? DESC
        LIMIT 1`, name, name, name)

	var p nutrition.Profile
	err := row.Scan(&p.Carbohydrates, &p.Proteins, &p.Fats, &p.Fibre, &p.Calories)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", name, err)
	}
	return &p, nil
}

// SearchSimilar ranks every stored name by trigram similarity
func (s *SQLiteStore) SearchSimilar(ctx context.Context, name string, k int, threshold float64) ([]nutrition.Match, error) {
	if k <= 0 {
		k = 3
	}
	name = nutrition.NormalizeName(name)

	rows, err := s.db.QueryContext(ctx, `
        SELECT name, carbohydrates, proteins, fats, fibre, calories
        FROM food_nutrients`)
	if err != nil {
		return nil, fmt.Errorf("scan catalog: %w", err)
	}
	defer rows.Close()

	query := trigrams(name)
	var matches []nutrition.Match
	for rows.Next() {
		var (
			food string
			p    nutrition.Profile
		)
		if err := rows.Scan(&food, &p.Carbohydrates, &p.Proteins, &p.Fats, &p.Fibre, &p.Calories); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		score := jaccard(query, trigrams(food))
		if score < threshold {
			continue
		}
		profile := p
		matches = append(matches, nutrition.Match{Name: food, Profile: &profile, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan catalog: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Name < matches[j].Name
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Upsert writes items in one transaction
func (s *SQLiteStore) Upsert(ctx context.Context, items []nutrition.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO food_nutrients (name, carbohydrates, proteins, fats, fibre, calories, source)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET
            carbohydrates = excluded.carbohydrates,
            proteins = excluded.proteins,
            fats = excluded.fats,
            fibre = excluded.fibre,
            calories = excluded.calories,
            source = excluded.source`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		p := item.Profile
		_, err := stmt.ExecContext(ctx, nutrition.NormalizeName(item.Name),
			p.Carbohydrates, p.Proteins, p.Fats, p.Fibre, p.Calories, item.Source)
		if err != nil {
			return fmt.Errorf("upsert %q: %w", item.Name, err)
		}
	}

	return tx.Commit()
}

// AddMapping routes variant spellings of an ingredient to a canonical name
func (s *SQLiteStore) AddMapping(ctx context.Context, canonical string, variants []string, category string) error {
	canonical = nutrition.NormalizeName(canonical)
	for _, v := range variants {
		_, err := s.db.ExecContext(ctx, `
            INSERT INTO ingredient_mappings (variant, canonical, category)
            VALUES (?, ?, ?)
            ON CONFLICT(variant) DO UPDATE SET canonical = excluded.canonical, category = excluded.category`,
			nutrition.NormalizeName(v), canonical, category)
		if err != nil {
			return fmt.Errorf("map %q to %q: %w", v, canonical, err)
		}
	}
	return nil
}

// GetStats counts stored foods
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM food_nutrients`).Scan(&n); err != nil {
		return nil, fmt.Errorf("count foods: %w", err)
	}
	return &Stats{Backend: "sqlite", Collection: s.path, Items: n}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// trigrams follows pg_trgm: each word is padded with two leading spaces
// and one trailing space before slicing.
func trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		padded := []rune("  " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

// jaccard is the share of trigrams two sets have in common
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}
