package srs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/germanbot/pkg/models"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func items(keys ...string) []models.VocabularyItem {
	out := make([]models.VocabularyItem, 0, len(keys))
	for _, k := range keys {
		out = append(out, models.VocabularyItem{Key: k, Translation: "t-" + k})
	}
	return out
}

func TestSelectDueFreshItemsFirstAndLimited(t *testing.T) {
	s := New()
	all := items("der Hund", "die Katze", "das Haus", "gehen", "laufen")

	// No records at all: everything is fresh, ordered by key, capped at 3.
	due := s.SelectDue(all, map[string]models.ReviewRecord{}, testNow, 3)
	require.Len(t, due, 3)
	assert.Equal(t, "das Haus", due[0].Key)
	assert.Equal(t, "der Hund", due[1].Key)
	assert.Equal(t, "die Katze", due[2].Key)
}

func TestSelectDueExcludesFutureItems(t *testing.T) {
	s := New()
	all := items("a", "b", "c")
	records := map[string]models.ReviewRecord{
		"a": {ItemKey: "a", NextDue: testNow.Add(time.Hour)},  // not due
		"b": {ItemKey: "b", NextDue: testNow.Add(-time.Hour)}, // overdue
		"c": {ItemKey: "c", NextDue: testNow},                 // due exactly now
	}

	due := s.SelectDue(all, records, testNow, 10)
	require.Len(t, due, 2)
	assert.Equal(t, "b", due[0].Key)
	assert.Equal(t, "c", due[1].Key)
}

func TestSelectDueOrdersByNextDueThenKey(t *testing.T) {
	s := New()
	all := items("b", "a", "d", "c")
	early := testNow.Add(-2 * time.Hour)
	late := testNow.Add(-time.Hour)
	records := map[string]models.ReviewRecord{
		"a": {ItemKey: "a", NextDue: late},
		"b": {ItemKey: "b", NextDue: early},
		"c": {ItemKey: "c", NextDue: late},
		"d": {ItemKey: "d", NextDue: early},
	}

	due := s.SelectDue(all, records, testNow, 10)
	require.Len(t, due, 4)
	assert.Equal(t, []string{"b", "d", "a", "c"}, []string{due[0].Key, due[1].Key, due[2].Key, due[3].Key})
}

func TestSelectDueNoDuplicates(t *testing.T) {
	s := New()
	all := append(items("a", "b"), items("a")...)

	due := s.SelectDue(all, map[string]models.ReviewRecord{}, testNow, 10)
	assert.Len(t, due, 2)
}

func TestRecordOutcomeCorrect(t *testing.T) {
	s := New()
	rec := models.ReviewRecord{
		Learner: 1, ItemKey: "gehen",
		LastReviewed: testNow.Add(-24 * time.Hour),
		NextDue:      testNow,
		Ease:         2.5,
	}

	out := s.RecordOutcome(rec, true, testNow)

	assert.Equal(t, 1, out.ConsecutiveCorrect)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 1, out.Correct)
	assert.InDelta(t, 2.65, out.Ease, 1e-9)
	assert.Equal(t, testNow, out.LastReviewed)
	// Interval grew from the previous 24h by the new ease factor.
	assert.Equal(t, testNow.Add(time.Duration(float64(24*time.Hour)*2.65)), out.NextDue)
	assert.True(t, out.NextDue.Sub(out.LastReviewed) >= s.MinInterval)

	// The input record is untouched.
	assert.Equal(t, 0, rec.Attempts)
}

func TestRecordOutcomeIncorrectResets(t *testing.T) {
	s := New()
	rec := models.ReviewRecord{
		Learner: 1, ItemKey: "gehen",
		LastReviewed:       testNow.Add(-72 * time.Hour),
		NextDue:            testNow.Add(-time.Hour),
		ConsecutiveCorrect: 3,
		Ease:               2.5,
		Attempts:           3,
		Correct:            3,
	}

	out := s.RecordOutcome(rec, false, testNow)

	assert.Equal(t, 0, out.ConsecutiveCorrect)
	assert.InDelta(t, 2.35, out.Ease, 1e-9)
	assert.Equal(t, 4, out.Attempts)
	assert.Equal(t, 3, out.Correct)
	assert.Equal(t, testNow.Add(s.MinInterval), out.NextDue)
}

func TestRecordOutcomeDeterministic(t *testing.T) {
	s := New()
	rec := models.ReviewRecord{
		LastReviewed: testNow.Add(-48 * time.Hour),
		NextDue:      testNow,
		Ease:         2.0,
	}

	a := s.RecordOutcome(rec, true, testNow)
	b := s.RecordOutcome(rec, true, testNow)
	assert.Equal(t, a, b)
}

func TestRecordOutcomeSeedsEaseForFreshRecord(t *testing.T) {
	s := New()
	out := s.RecordOutcome(models.ReviewRecord{Learner: 7, ItemKey: "neu"}, true, testNow)
	assert.InDelta(t, s.InitialEase+s.EaseStep, out.Ease, 1e-9)
	assert.True(t, out.NextDue.After(testNow))
}

func TestEaseStaysBounded(t *testing.T) {
	s := New()
	rec := models.ReviewRecord{Ease: 2.0, LastReviewed: testNow, NextDue: testNow}

	now := testNow
	for i := 0; i < 100; i++ {
		now = now.Add(time.Hour)
		rec = s.RecordOutcome(rec, true, now)
		require.LessOrEqual(t, rec.Ease, s.MaxEase)
		require.False(t, rec.NextDue.Before(rec.LastReviewed))
	}
	for i := 0; i < 100; i++ {
		now = now.Add(time.Hour)
		rec = s.RecordOutcome(rec, false, now)
		require.GreaterOrEqual(t, rec.Ease, s.MinEase)
		require.False(t, rec.NextDue.Before(rec.LastReviewed))
	}
}

func TestNextDueNeverBeforeLastReviewed(t *testing.T) {
	s := New()
	rec := models.ReviewRecord{}
	now := testNow
	for i := 0; i < 50; i++ {
		now = now.Add(13 * time.Minute)
		rec = s.RecordOutcome(rec, i%3 != 0, now)
		require.False(t, rec.NextDue.Before(rec.LastReviewed),
			"iteration %d: next-due %v before last-reviewed %v", i, rec.NextDue, rec.LastReviewed)
	}
}

func TestMaxIntervalCap(t *testing.T) {
	s := New()
	rec := models.ReviewRecord{
		LastReviewed: testNow.Add(-300 * 24 * time.Hour),
		NextDue:      testNow,
		Ease:         3.0,
	}
	out := s.RecordOutcome(rec, true, testNow)
	assert.Equal(t, testNow.Add(s.MaxInterval), out.NextDue)
}
