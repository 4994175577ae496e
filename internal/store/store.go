package store

import (
	"context"
	"errors"

	"github.com/example/germanbot/pkg/models"
)

// Sentinel errors for the store adapters.
// Use errors.Is to check: errors.Is(err, store.ErrUnavailable)
var (
	// ErrUnavailable is a transient failure reaching the backing store.
	// Callers retry with backoff before surfacing a degraded warning.
	ErrUnavailable = errors.New("store: unavailable")
	// ErrFormat is a data-quality problem in the backing rows. Offending
	// rows are skipped; it is fatal only when no usable rows remain.
	ErrFormat = errors.New("store: malformed row")
	// ErrConflict means a concurrent external edit invalidated the target
	// row. The caller must reload and recompute, never blindly overwrite.
	ErrConflict = errors.New("store: conflicting edit")
)

// Store is the persistence contract of the quiz engine. Implementations
// translate between the in-memory model and their row representation; the
// engine stays oblivious to the storage technology.
//
// SaveReviewRecord stages one upsert and returns the record with its new
// version. Staged writes become durable on Flush; adapters with immediate
// durability implement Flush as a no-op. Upserts are duplicate-safe, so a
// retried Flush has at-least-once semantics.
type Store interface {
	// LoadVocabulary fetches the full reference list in sheet order.
	LoadVocabulary(ctx context.Context) ([]models.VocabularyItem, error)
	// LoadReviewRecords returns the learner's records keyed by item key.
	// A missing key is the valid "never reviewed" state.
	LoadReviewRecords(ctx context.Context, learner int64) (map[string]models.ReviewRecord, error)
	// SaveReviewRecord upserts one record, failing with ErrConflict when
	// the record's version is stale.
	SaveReviewRecord(ctx context.Context, rec models.ReviewRecord) (models.ReviewRecord, error)
	// Learners lists every learner with at least one review record.
	Learners(ctx context.Context) ([]int64, error)
	// Flush applies all buffered writes durably.
	Flush(ctx context.Context) error
	Close() error
}
