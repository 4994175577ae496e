package srs

import (
	"sort"
	"time"

	"github.com/example/germanbot/pkg/models"
)

// Scheduler implements a simplified SM-2 style spaced-repetition policy.
// All methods are pure: identical inputs always yield identical outputs,
// which keeps scheduling decisions testable and independent of storage.
type Scheduler struct {
	// MinEase and MaxEase bound the ease factor so intervals can neither
	// collapse nor grow without limit.
	MinEase float64
	MaxEase float64
	// EaseStep is added on a correct answer and subtracted on an
	// incorrect one, subject to the bounds above.
	EaseStep float64
	// MinInterval is the floor for the next interval, preventing an item
	// from being re-presented immediately after an answer.
	MinInterval time.Duration
	// MaxInterval caps how far out an item can be scheduled.
	MaxInterval time.Duration
	// InitialEase seeds the ease factor of a never-reviewed item.
	InitialEase float64
}

// New returns a scheduler with the default policy.
func New() *Scheduler {
	return &Scheduler{
		MinEase:     1.3,
		MaxEase:     3.0,
		EaseStep:    0.15,
		MinInterval: 10 * time.Minute,
		MaxInterval: 365 * 24 * time.Hour,
		InitialEase: 2.5,
	}
}

// SelectDue returns the items due for review at now, capped at limit.
// Never-reviewed items come first (ordered by key), followed by reviewed
// items in ascending next-due order with the key as tie-break. The result
// contains no duplicates and no item whose next-due is after now.
func (s *Scheduler) SelectDue(items []models.VocabularyItem, records map[string]models.ReviewRecord, now time.Time, limit int) []models.VocabularyItem {
	if limit <= 0 {
		return nil
	}

	var fresh, reviewed []models.VocabularyItem
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item.Key] {
			continue
		}
		seen[item.Key] = true

		rec, ok := records[item.Key]
		if !ok {
			fresh = append(fresh, item)
			continue
		}
		if !rec.NextDue.After(now) {
			reviewed = append(reviewed, item)
		}
	}

	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].Key < fresh[j].Key
	})
	sort.Slice(reviewed, func(i, j int) bool {
		di, dj := records[reviewed[i].Key].NextDue, records[reviewed[j].Key].NextDue
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return reviewed[i].Key < reviewed[j].Key
	})

	due := append(fresh, reviewed...)
	if len(due) > limit {
		due = due[:limit]
	}
	return due
}

// RecordOutcome applies one answer to a review record and returns the
// updated copy. The input record is not mutated.
//
// A correct answer grows the interval by the ease factor; an incorrect one
// resets it to the minimum floor. The ease factor moves by EaseStep in the
// corresponding direction and is clamped to [MinEase, MaxEase].
func (s *Scheduler) RecordOutcome(rec models.ReviewRecord, wasCorrect bool, now time.Time) models.ReviewRecord {
	out := rec

	if out.Ease == 0 {
		out.Ease = s.InitialEase
	}

	var next time.Duration
	if wasCorrect {
		out.ConsecutiveCorrect++
		out.Correct++
		out.Ease = clamp(out.Ease+s.EaseStep, s.MinEase, s.MaxEase)

		prev := rec.NextDue.Sub(rec.LastReviewed)
		if prev < s.MinInterval {
			prev = s.MinInterval
		}
		next = time.Duration(float64(prev) * out.Ease)
		if next > s.MaxInterval {
			next = s.MaxInterval
		}
	} else {
		out.ConsecutiveCorrect = 0
		out.Ease = clamp(out.Ease-s.EaseStep, s.MinEase, s.MaxEase)
		next = s.MinInterval
	}
	out.Attempts++

	out.LastReviewed = now
	out.NextDue = now.Add(next)
	return out
}

// Mastered reports whether a record represents a well-learned item:
// several consecutive correct answers with a comfortably grown interval.
func (s *Scheduler) Mastered(rec models.ReviewRecord) bool {
	return rec.ConsecutiveCorrect >= 5 && rec.NextDue.Sub(rec.LastReviewed) >= 30*24*time.Hour
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
