package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xuri/excelize/v2"

	"github.com/example/germanbot/pkg/models"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// writeTestWorkbook creates an xlsx file with a vocabulary sheet holding
// the given rows, the way a human would maintain one in a spreadsheet UI.
func writeTestWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worte.xlsx")

	f := excelize.NewFile()
	_, err := f.NewSheet(vocabSheet)
	require.NoError(t, err)
	header := []interface{}{"German", "Translation", "English", "Example", "Mnemonic", "Tags"}
	require.NoError(t, f.SetSheetRow(vocabSheet, "A1", &header))
	for i, row := range rows {
		cell := "A" + strconv.Itoa(i+2)
		require.NoError(t, f.SetSheetRow(vocabSheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

func TestWorkbookLoadVocabulary(t *testing.T) {
	path := writeTestWorkbook(t, [][]interface{}{
		{"der Hund", "собака", "dog", "Der Hund bellt.", "", "tiere"},
		{"gehen", "йти, ходити", "to go", "", "", "verben,a1"},
		{"", "verwaist"},      // missing term: skipped
		{"kaputt"},            // missing translation: skipped
		{"die Katze", "кішка"},
	})

	w, err := OpenWorkbook(path, testLogger)
	require.NoError(t, err)
	defer w.Close()

	items, err := w.LoadVocabulary(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "der Hund", items[0].Key)
	assert.Equal(t, "собака", items[0].Translation)
	assert.Equal(t, "dog", items[0].English)
	assert.Equal(t, []string{"verben", "a1"}, items[1].Tags)
	assert.Equal(t, "die Katze", items[2].Key)
}

func TestWorkbookLoadVocabularyAllMalformedIsFatal(t *testing.T) {
	path := writeTestWorkbook(t, [][]interface{}{
		{"", ""},
		{"nur-term"},
	})

	w, err := OpenWorkbook(path, testLogger)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.LoadVocabulary(context.Background())
	assert.ErrorIs(t, err, ErrFormat)
}

func TestWorkbookSaveAndReload(t *testing.T) {
	path := writeTestWorkbook(t, [][]interface{}{
		{"der Hund", "собака"},
	})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	w, err := OpenWorkbook(path, testLogger)
	require.NoError(t, err)

	rec := models.ReviewRecord{
		Learner: 42, ItemKey: "der Hund",
		LastReviewed: now, NextDue: now.Add(24 * time.Hour),
		ConsecutiveCorrect: 1, Ease: 2.65, Attempts: 1, Correct: 1,
	}
	saved, err := w.SaveReviewRecord(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)

	require.NoError(t, w.Flush(ctx))
	require.NoError(t, w.Close())

	// A fresh adapter sees the durable row.
	w2, err := OpenWorkbook(path, testLogger)
	require.NoError(t, err)
	defer w2.Close()

	records, err := w2.LoadReviewRecords(ctx, 42)
	require.NoError(t, err)
	require.Contains(t, records, "der Hund")
	got := records["der Hund"]
	assert.Equal(t, saved.NextDue.UTC(), got.NextDue.UTC())
	assert.Equal(t, 1, got.ConsecutiveCorrect)
	assert.InDelta(t, 2.65, got.Ease, 1e-9)
	assert.Equal(t, int64(1), got.Version)

	learners, err := w2.Learners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, learners)
}

func TestWorkbookStaleVersionConflicts(t *testing.T) {
	path := writeTestWorkbook(t, [][]interface{}{
		{"gehen", "йти"},
	})
	now := time.Now()
	ctx := context.Background()

	w, err := OpenWorkbook(path, testLogger)
	require.NoError(t, err)
	defer w.Close()

	rec := models.ReviewRecord{
		Learner: 7, ItemKey: "gehen",
		LastReviewed: now, NextDue: now.Add(time.Hour), Ease: 2.5,
	}
	saved, err := w.SaveReviewRecord(ctx, rec)
	require.NoError(t, err)

	// Re-saving the pre-update record carries a stale version.
	_, err = w.SaveReviewRecord(ctx, rec)
	assert.ErrorIs(t, err, ErrConflict)

	// The returned record carries the fresh version and saves fine.
	saved.Attempts++
	next, err := w.SaveReviewRecord(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Version)
}

func TestWorkbookUpsertDoesNotDuplicateRows(t *testing.T) {
	path := writeTestWorkbook(t, [][]interface{}{
		{"gehen", "йти"},
	})
	now := time.Now()
	ctx := context.Background()

	w, err := OpenWorkbook(path, testLogger)
	require.NoError(t, err)
	defer w.Close()

	rec := models.ReviewRecord{Learner: 7, ItemKey: "gehen", LastReviewed: now, NextDue: now, Ease: 2.5}
	saved, err := w.SaveReviewRecord(ctx, rec)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		saved, err = w.SaveReviewRecord(ctx, saved)
		require.NoError(t, err)
	}

	records, err := w.LoadReviewRecords(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, int64(4), records["gehen"].Version)
}

func TestWorkbookCreatesProgressSheet(t *testing.T) {
	// A vocabulary-only workbook, as a human would hand one over.
	path := writeTestWorkbook(t, [][]interface{}{
		{"der Hund", "собака"},
	})

	w, err := OpenWorkbook(path, testLogger)
	require.NoError(t, err)
	defer w.Close()

	records, err := w.LoadReviewRecords(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, records)
}
