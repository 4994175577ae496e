package models

import "time"

// ReviewRecord tracks a learner's spaced-repetition state for one vocabulary
// item. Exactly one record exists per (learner, item) pair; a missing record
// means the item was never presented.
type ReviewRecord struct {
	Learner            int64     `json:"learner"`
	ItemKey            string    `json:"item_key"`
	LastReviewed       time.Time `json:"last_reviewed"`
	NextDue            time.Time `json:"next_due"`
	ConsecutiveCorrect int       `json:"consecutive_correct"`
	Ease               float64   `json:"ease"` // interval multiplier, kept within configured bounds
	Attempts           int       `json:"attempts"`
	Correct            int       `json:"correct"`

	// Version is the store's conflict token. It is owned by the store
	// adapter: zero means the record was never persisted, and a save with a
	// stale version fails with ErrStoreConflict.
	Version int64 `json:"version"`
}
