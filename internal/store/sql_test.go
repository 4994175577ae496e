package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/germanbot/pkg/models"
)

func openTestSQL(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQL(":memory:", testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLVocabularyRoundTrip(t *testing.T) {
	s := openTestSQL(t)
	ctx := context.Background()

	seed := []models.VocabularyItem{
		{Key: "der Hund", Translation: "собака", English: "dog", Tags: []string{"tiere"}},
		{Key: "gehen", Translation: "йти, ходити", Example: "Wir gehen nach Hause."},
		{Key: "die Katze", Translation: "кішка"},
	}
	require.NoError(t, s.ImportVocabulary(ctx, seed))

	items, err := s.LoadVocabulary(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	// Import order is preserved.
	assert.Equal(t, "der Hund", items[0].Key)
	assert.Equal(t, "gehen", items[1].Key)
	assert.Equal(t, []string{"tiere"}, items[0].Tags)
	assert.Equal(t, "Wir gehen nach Hause.", items[1].Example)
}

func TestSQLEmptyVocabularyIsFatal(t *testing.T) {
	s := openTestSQL(t)
	_, err := s.LoadVocabulary(context.Background())
	assert.ErrorIs(t, err, ErrFormat)
}

func TestSQLSaveReviewRecord(t *testing.T) {
	s := openTestSQL(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := models.ReviewRecord{
		Learner: 42, ItemKey: "der Hund",
		LastReviewed: now, NextDue: now.Add(24 * time.Hour),
		ConsecutiveCorrect: 2, Ease: 2.8, Attempts: 3, Correct: 2,
	}
	saved, err := s.SaveReviewRecord(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)

	records, err := s.LoadReviewRecords(ctx, 42)
	require.NoError(t, err)
	require.Contains(t, records, "der Hund")
	got := records["der Hund"]
	assert.Equal(t, now.Add(24*time.Hour), got.NextDue.UTC())
	assert.Equal(t, 2, got.ConsecutiveCorrect)
	assert.InDelta(t, 2.8, got.Ease, 1e-9)

	// Unknown learner has the valid "never reviewed" state.
	empty, err := s.LoadReviewRecords(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLStaleVersionConflicts(t *testing.T) {
	s := openTestSQL(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	rec := models.ReviewRecord{Learner: 7, ItemKey: "gehen", LastReviewed: now, NextDue: now, Ease: 2.5}
	saved, err := s.SaveReviewRecord(ctx, rec)
	require.NoError(t, err)

	// Insert of an already-created row conflicts.
	_, err = s.SaveReviewRecord(ctx, rec)
	assert.ErrorIs(t, err, ErrConflict)

	// Update from the fresh version succeeds and bumps it.
	saved.Attempts++
	next, err := s.SaveReviewRecord(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Version)

	// Update from the superseded version conflicts.
	_, err = s.SaveReviewRecord(ctx, saved)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSQLLearners(t *testing.T) {
	s := openTestSQL(t)
	ctx := context.Background()
	now := time.Now()

	seed := []models.ReviewRecord{
		{Learner: 3, ItemKey: "gehen"},
		{Learner: 1, ItemKey: "gehen"},
		{Learner: 3, ItemKey: "laufen"},
	}
	for _, rec := range seed {
		rec.LastReviewed, rec.NextDue, rec.Ease = now, now, 2.5
		_, err := s.SaveReviewRecord(ctx, rec)
		require.NoError(t, err)
	}

	learners, err := s.Learners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, learners)
}
