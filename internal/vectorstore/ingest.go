// Package vectorstore provides the nutrient catalog backends.
//
// The vectorstore package stores per-100g nutrient profiles for foods and
// answers exact and similarity lookups over them, either in Qdrant with
// OpenAI or Ollama embeddings or in a local SQLite catalog with trigram
// similarity. It also ingests CSV catalogs with a worker pool.
package vectorstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/First008/vcare/internal/nutrition"
	"github.com/rs/zerolog"
)

// Writer is the part of a store ingestion needs
type Writer interface {
	Upsert(ctx context.Context, items []nutrition.Item) error
}

// Ingester loads nutrient items into a store in parallel batches
type Ingester struct {
	store  Writer
	config IngestConfig
	logger zerolog.Logger
}

// IngestStats tracks ingestion statistics (thread-safe)
type IngestStats struct {
	Ingested int
	Skipped  int
	Errors   int
	mu       sync.Mutex
}

func (s *IngestStats) addIngested(n int) {
	s.mu.Lock()
	s.Ingested += n
	s.mu.Unlock()
}

func (s *IngestStats) addErrors(n int) {
	s.mu.Lock()
	s.Errors += n
	s.mu.Unlock()
}

// Snapshot returns the counters without the lock
func (s *IngestStats) Snapshot() (ingested, skipped, errors int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Ingested, s.Skipped, s.Errors
}

// NewIngester creates an ingester. Zero config fields take defaults.
func NewIngester(store Writer, config IngestConfig, logger zerolog.Logger) *Ingester {
	return &Ingester{
		store:  store,
		config: config.normalized(),
		logger: logger,
	}
}

// IngestCSV reads a catalog with a header row naming the food column
// ("name" or "food_name") and the five nutrient columns. Rows that cannot be
// parsed are skipped and counted.
func (in *Ingester) IngestCSV(ctx context.Context, r io.Reader, source string) (*IngestStats, error) {
	items, skipped, err := ReadNutrientCSV(r, source, in.logger)
	if err != nil {
		return nil, err
	}

	stats := in.Ingest(ctx, items)
	stats.mu.Lock()
	stats.Skipped += skipped
	stats.mu.Unlock()
	return stats, nil
}

// Ingest writes items using a worker pool, one batch per job
func (in *Ingester) Ingest(ctx context.Context, items []nutrition.Item) *IngestStats {
	stats := &IngestStats{}
	if len(items) == 0 {
		return stats
	}

	var batches [][]nutrition.Item
	for start := 0; start < len(items); start += in.config.BatchSize {
		end := start + in.config.BatchSize
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}

	workerCount := in.config.MaxWorkers
	if workerCount > len(batches) {
		workerCount = len(batches)
	}

	in.logger.Info().
		Int("items", len(items)).
		Int("batches", len(batches)).
		Int("workers", workerCount).
		Msg("Starting parallel ingestion")

	jobs := make(chan []nutrition.Item, len(batches))
	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			in.ingestWorker(ctx, workerID, jobs, stats)
		}(w)
	}

	for _, b := range batches {
		jobs <- b
	}
	close(jobs)
	wg.Wait()

	ingested, skipped, errs := stats.Snapshot()
	in.logger.Info().
		Int("ingested", ingested).
		Int("skipped", skipped).
		Int("errors", errs).
		Msg("Nutrient ingestion completed")

	return stats
}

// ingestWorker writes batches from the job queue
func (in *Ingester) ingestWorker(ctx context.Context, workerID int, jobs <-chan []nutrition.Item, stats *IngestStats) {
	for batch := range jobs {
		if ctx.Err() != nil {
			stats.addErrors(len(batch))
			continue
		}
		if err := in.store.Upsert(ctx, batch); err != nil {
			in.logger.Error().
				Err(err).
				Int("worker", workerID).
				Int("batch_size", len(batch)).
				Str("first", batch[0].Name).
				Msg("Failed to ingest batch")
			stats.addErrors(len(batch))
			continue
		}
		stats.addIngested(len(batch))
	}
}

// ReadNutrientCSV parses a nutrient catalog. It returns the parsed items and
// the number of skipped rows.
func ReadNutrientCSV(r io.Reader, source string, logger zerolog.Logger) ([]nutrition.Item, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("nutrient csv is empty")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	nameCol, ok := columns["name"]
	if !ok {
		if nameCol, ok = columns["food_name"]; !ok {
			return nil, 0, fmt.Errorf("csv header has no name column")
		}
	}

	var (
		items   []nutrition.Item
		skipped int
		line    = 1
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			logger.Warn().Err(err).Int("line", line).Msg("Skipping malformed csv row")
			skipped++
			continue
		}

		item, err := parseRecord(record, columns, nameCol)
		if err != nil {
			logger.Warn().Err(err).Int("line", line).Msg("Skipping csv row")
			skipped++
			continue
		}
		item.Source = source
		items = append(items, item)
	}

	return items, skipped, nil
}

func parseRecord(record []string, columns map[string]int, nameCol int) (nutrition.Item, error) {
	if nameCol >= len(record) || strings.TrimSpace(record[nameCol]) == "" {
		return nutrition.Item{}, fmt.Errorf("missing food name")
	}

	item := nutrition.Item{Name: nutrition.NormalizeName(record[nameCol])}
	for _, n := range nutrition.Nutrients {
		col, ok := columns[n]
		if !ok || col >= len(record) || strings.TrimSpace(record[col]) == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
		if err != nil {
			return nutrition.Item{}, fmt.Errorf("%s for %q: %w", n, item.Name, err)
		}
		item.Profile.Set(n, v)
	}
	return item, nil
}
