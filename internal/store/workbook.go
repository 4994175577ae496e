package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/example/germanbot/pkg/models"
)

// Sheet layout of the backing workbook. The vocabulary sheet is maintained
// by hand in a spreadsheet editor; the progress sheet is owned by the bot.
const (
	vocabSheet    = "Wörter"
	progressSheet = "Fortschritt"
)

var progressHeader = []interface{}{
	"Learner", "Item", "LastReviewed", "NextDue",
	"ConsecutiveCorrect", "Ease", "Attempts", "Correct", "Version",
}

type progressKey struct {
	learner int64
	item    string
}

type rowState struct {
	row     int // 1-based row in the progress sheet
	version int64
}

// Workbook adapts an xlsx workbook to the Store contract. Vocabulary rows
// live on one sheet, review records on another, one row per (learner, item)
// pair with a version column for conflict detection. Writes are staged in
// the in-memory workbook and made durable by Flush.
type Workbook struct {
	path string
	log  *slog.Logger

	mu      sync.Mutex
	f       *excelize.File
	index   map[progressKey]rowState
	lastRow int // last occupied row of the progress sheet
	staged  int // staged writes since the last successful flush
}

// OpenWorkbook opens the workbook at path and indexes the progress sheet.
// The progress sheet is created when absent so a fresh workbook containing
// only vocabulary works out of the box.
func OpenWorkbook(path string, log *slog.Logger) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w: %v", path, ErrUnavailable, err)
	}

	w := &Workbook{
		path:  path,
		log:   log,
		f:     f,
		index: make(map[progressKey]rowState),
	}

	idx, err := f.GetSheetIndex(progressSheet)
	if err != nil {
		return nil, fmt.Errorf("inspect workbook: %w: %v", ErrUnavailable, err)
	}
	if idx < 0 {
		if _, err := f.NewSheet(progressSheet); err != nil {
			return nil, fmt.Errorf("create progress sheet: %w: %v", ErrUnavailable, err)
		}
		if err := f.SetSheetRow(progressSheet, "A1", &progressHeader); err != nil {
			return nil, fmt.Errorf("write progress header: %w: %v", ErrUnavailable, err)
		}
		w.lastRow = 1
		w.staged++
		return w, nil
	}

	rows, err := f.GetRows(progressSheet)
	if err != nil {
		return nil, fmt.Errorf("read progress sheet: %w: %v", ErrUnavailable, err)
	}
	w.lastRow = len(rows)
	if w.lastRow == 0 {
		if err := f.SetSheetRow(progressSheet, "A1", &progressHeader); err != nil {
			return nil, fmt.Errorf("write progress header: %w: %v", ErrUnavailable, err)
		}
		w.lastRow = 1
		w.staged++
	}
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		rec, err := parseProgressRow(row)
		if err != nil {
			log.Warn("skipping malformed progress row", "row", i+1, "error", err)
			continue
		}
		w.index[progressKey{rec.Learner, rec.ItemKey}] = rowState{row: i + 1, version: rec.Version}
	}
	return w, nil
}

// LoadVocabulary reads the vocabulary sheet in order. Malformed rows are
// skipped with a warning; zero usable rows is fatal.
func (w *Workbook) LoadVocabulary(ctx context.Context) ([]models.VocabularyItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	rows, err := w.f.GetRows(vocabSheet)
	w.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("vocabulary sheet %q: %w: %v", vocabSheet, ErrFormat, err)
	}

	var items []models.VocabularyItem
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		item, err := parseVocabRow(row)
		if err != nil {
			w.log.Warn("skipping malformed vocabulary row", "row", i+1, "error", err)
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("vocabulary sheet %q has no usable rows: %w", vocabSheet, ErrFormat)
	}
	return items, nil
}

// LoadReviewRecords returns the learner's records keyed by item key.
func (w *Workbook) LoadReviewRecords(ctx context.Context, learner int64) (map[string]models.ReviewRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	rows, err := w.f.GetRows(progressSheet)
	w.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("read progress sheet: %w: %v", ErrUnavailable, err)
	}

	records := make(map[string]models.ReviewRecord)
	for i, row := range rows {
		if i == 0 {
			continue
		}
		rec, err := parseProgressRow(row)
		if err != nil {
			w.log.Warn("skipping malformed progress row", "row", i+1, "error", err)
			continue
		}
		if rec.Learner == learner {
			records[rec.ItemKey] = rec
		}
	}
	return records, nil
}

// SaveReviewRecord stages one upsert. The record's version must match the
// version last seen for its row, otherwise the row was edited concurrently
// and the caller has to reload and recompute.
func (w *Workbook) SaveReviewRecord(ctx context.Context, rec models.ReviewRecord) (models.ReviewRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.ReviewRecord{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	key := progressKey{rec.Learner, rec.ItemKey}
	st, exists := w.index[key]
	if exists && st.version != rec.Version {
		return models.ReviewRecord{}, fmt.Errorf("row for learner %d item %q is at version %d, have %d: %w",
			rec.Learner, rec.ItemKey, st.version, rec.Version, ErrConflict)
	}
	if !exists && rec.Version != 0 {
		// The row this record came from no longer exists.
		return models.ReviewRecord{}, fmt.Errorf("row for learner %d item %q disappeared: %w",
			rec.Learner, rec.ItemKey, ErrConflict)
	}

	row := st.row
	if !exists {
		row = w.lastRow + 1
	}

	out := rec
	out.Version++
	cells := []interface{}{
		strconv.FormatInt(out.Learner, 10),
		out.ItemKey,
		out.LastReviewed.UTC().Format(time.RFC3339),
		out.NextDue.UTC().Format(time.RFC3339),
		out.ConsecutiveCorrect,
		out.Ease,
		out.Attempts,
		out.Correct,
		out.Version,
	}
	if err := w.f.SetSheetRow(progressSheet, "A"+strconv.Itoa(row), &cells); err != nil {
		return models.ReviewRecord{}, fmt.Errorf("write progress row: %w: %v", ErrUnavailable, err)
	}

	if !exists {
		w.lastRow = row
	}
	w.index[key] = rowState{row: row, version: out.Version}
	w.staged++
	return out, nil
}

// Learners lists every learner present on the progress sheet.
func (w *Workbook) Learners(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	seen := make(map[int64]bool)
	var learners []int64
	for key := range w.index {
		if !seen[key.learner] {
			seen[key.learner] = true
			learners = append(learners, key.learner)
		}
	}
	sort.Slice(learners, func(i, j int) bool { return learners[i] < learners[j] })
	return learners, nil
}

// Flush writes all staged rows to disk. On failure the staged count is
// kept so a retried flush covers the same writes; upserts are
// duplicate-safe so at-least-once delivery is fine.
func (w *Workbook) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.staged == 0 {
		return nil
	}
	if err := w.f.Save(); err != nil {
		return fmt.Errorf("save workbook with %d staged writes: %w: %v", w.staged, ErrUnavailable, err)
	}
	w.staged = 0
	return nil
}

func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

func parseVocabRow(row []string) (models.VocabularyItem, error) {
	if len(row) < 2 {
		return models.VocabularyItem{}, fmt.Errorf("need at least term and translation, got %d cells", len(row))
	}
	item := models.VocabularyItem{
		Key:         strings.TrimSpace(row[0]),
		Translation: strings.TrimSpace(row[1]),
	}
	if item.Key == "" {
		return models.VocabularyItem{}, fmt.Errorf("empty term")
	}
	if item.Translation == "" {
		return models.VocabularyItem{}, fmt.Errorf("empty translation")
	}
	if len(row) > 2 {
		item.English = strings.TrimSpace(row[2])
	}
	if len(row) > 3 {
		item.Example = strings.TrimSpace(row[3])
	}
	if len(row) > 4 {
		item.Mnemonic = strings.TrimSpace(row[4])
	}
	if len(row) > 5 && strings.TrimSpace(row[5]) != "" {
		for _, tag := range strings.Split(row[5], ",") {
			if t := strings.TrimSpace(tag); t != "" {
				item.Tags = append(item.Tags, t)
			}
		}
	}
	return item, nil
}

func parseProgressRow(row []string) (models.ReviewRecord, error) {
	if len(row) < 9 {
		return models.ReviewRecord{}, fmt.Errorf("need 9 cells, got %d", len(row))
	}
	learner, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("learner: %v", err)
	}
	item := strings.TrimSpace(row[1])
	if item == "" {
		return models.ReviewRecord{}, fmt.Errorf("empty item key")
	}
	lastReviewed, err := time.Parse(time.RFC3339, strings.TrimSpace(row[2]))
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("last reviewed: %v", err)
	}
	nextDue, err := time.Parse(time.RFC3339, strings.TrimSpace(row[3]))
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("next due: %v", err)
	}
	consecutive, err := strconv.Atoi(strings.TrimSpace(row[4]))
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("consecutive correct: %v", err)
	}
	ease, err := strconv.ParseFloat(strings.TrimSpace(row[5]), 64)
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("ease: %v", err)
	}
	attempts, err := strconv.Atoi(strings.TrimSpace(row[6]))
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("attempts: %v", err)
	}
	correct, err := strconv.Atoi(strings.TrimSpace(row[7]))
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("correct: %v", err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(row[8]), 10, 64)
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("version: %v", err)
	}
	return models.ReviewRecord{
		Learner:            learner,
		ItemKey:            item,
		LastReviewed:       lastReviewed,
		NextDue:            nextDue,
		ConsecutiveCorrect: consecutive,
		Ease:               ease,
		Attempts:           attempts,
		Correct:            correct,
		Version:            version,
	}, nil
}
