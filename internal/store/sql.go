package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/example/germanbot/pkg/models"
)

// SQLStore implements the Store contract over SQLite or Postgres. It
// exists to prove the engine is oblivious to the storage technology and to
// serve deployments where a real database is available. Writes are applied
// immediately, so Flush is a no-op.
type SQLStore struct {
	db  *sqlx.DB
	log *slog.Logger
}

type vocabRow struct {
	ItemKey     string `db:"item_key"`
	Translation string `db:"translation"`
	English     string `db:"english"`
	Example     string `db:"example"`
	Mnemonic    string `db:"mnemonic"`
	Tags        string `db:"tags"`
	Position    int    `db:"position"`
}

type reviewRow struct {
	Learner            int64   `db:"learner"`
	ItemKey            string  `db:"item_key"`
	LastReviewed       string  `db:"last_reviewed"`
	NextDue            string  `db:"next_due"`
	ConsecutiveCorrect int     `db:"consecutive_correct"`
	Ease               float64 `db:"ease"`
	Attempts           int     `db:"attempts"`
	Correct            int     `db:"correct"`
	Version            int64   `db:"version"`
}

// OpenSQL connects to the database named by dsn. A postgres:// DSN selects
// the Postgres driver, anything else is treated as a SQLite path.
func OpenSQL(dsn string, log *slog.Logger) (*SQLStore, error) {
	driver := "sqlite3"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "postgres"
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w: %v", driver, ErrUnavailable, err)
	}

	if driver == "sqlite3" {
		// SQLite doesn't support multiple writers.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w: %v", ErrUnavailable, err)
		}
	}

	s := &SQLStore{db: db, log: log}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vocabulary (
			item_key TEXT PRIMARY KEY,
			translation TEXT NOT NULL,
			english TEXT NOT NULL DEFAULT '',
			example TEXT NOT NULL DEFAULT '',
			mnemonic TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS review_records (
			learner BIGINT NOT NULL,
			item_key TEXT NOT NULL,
			last_reviewed TEXT NOT NULL,
			next_due TEXT NOT NULL,
			consecutive_correct INTEGER NOT NULL DEFAULT 0,
			ease REAL NOT NULL DEFAULT 2.5,
			attempts INTEGER NOT NULL DEFAULT 0,
			correct INTEGER NOT NULL DEFAULT 0,
			version BIGINT NOT NULL DEFAULT 1,
			PRIMARY KEY (learner, item_key)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("initialize schema: %w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// LoadVocabulary returns the reference list ordered by position. Rows with
// an empty term or translation are skipped with a warning.
func (s *SQLStore) LoadVocabulary(ctx context.Context) ([]models.VocabularyItem, error) {
	var rows []vocabRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT item_key, translation, english, example, mnemonic, tags, position FROM vocabulary ORDER BY position, item_key")
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w: %v", ErrUnavailable, err)
	}

	var items []models.VocabularyItem
	for _, row := range rows {
		if strings.TrimSpace(row.ItemKey) == "" || strings.TrimSpace(row.Translation) == "" {
			s.log.Warn("skipping malformed vocabulary row", "item", row.ItemKey)
			continue
		}
		item := models.VocabularyItem{
			Key:         row.ItemKey,
			Translation: row.Translation,
			English:     row.English,
			Example:     row.Example,
			Mnemonic:    row.Mnemonic,
		}
		if row.Tags != "" {
			for _, tag := range strings.Split(row.Tags, ",") {
				if t := strings.TrimSpace(tag); t != "" {
					item.Tags = append(item.Tags, t)
				}
			}
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("vocabulary table has no usable rows: %w", ErrFormat)
	}
	return items, nil
}

// ImportVocabulary replaces the stored reference list, preserving order.
// Intended for seeding a database from a workbook export.
func (s *SQLStore) ImportVocabulary(ctx context.Context, items []models.VocabularyItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("import vocabulary: %w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM vocabulary"); err != nil {
		return fmt.Errorf("import vocabulary: %w: %v", ErrUnavailable, err)
	}
	insert := tx.Rebind(`INSERT INTO vocabulary (item_key, translation, english, example, mnemonic, tags, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for i, item := range items {
		_, err := tx.ExecContext(ctx, insert,
			item.Key, item.Translation, item.English, item.Example, item.Mnemonic,
			strings.Join(item.Tags, ","), i)
		if err != nil {
			return fmt.Errorf("import vocabulary item %q: %w: %v", item.Key, ErrUnavailable, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("import vocabulary: %w: %v", ErrUnavailable, err)
	}
	return nil
}

// LoadReviewRecords returns the learner's records keyed by item key.
func (s *SQLStore) LoadReviewRecords(ctx context.Context, learner int64) (map[string]models.ReviewRecord, error) {
	var rows []reviewRow
	query := s.db.Rebind("SELECT * FROM review_records WHERE learner = ?")
	if err := s.db.SelectContext(ctx, &rows, query, learner); err != nil {
		return nil, fmt.Errorf("load review records: %w: %v", ErrUnavailable, err)
	}

	records := make(map[string]models.ReviewRecord, len(rows))
	for _, row := range rows {
		rec, err := row.toModel()
		if err != nil {
			s.log.Warn("skipping malformed review row", "learner", learner, "item", row.ItemKey, "error", err)
			continue
		}
		records[rec.ItemKey] = rec
	}
	return records, nil
}

// SaveReviewRecord upserts one record with an optimistic version check.
func (s *SQLStore) SaveReviewRecord(ctx context.Context, rec models.ReviewRecord) (models.ReviewRecord, error) {
	out := rec
	out.Version++

	if rec.Version == 0 {
		insert := s.db.Rebind(`INSERT INTO review_records
			(learner, item_key, last_reviewed, next_due, consecutive_correct, ease, attempts, correct, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err := s.db.ExecContext(ctx, insert,
			out.Learner, out.ItemKey,
			out.LastReviewed.UTC().Format(time.RFC3339), out.NextDue.UTC().Format(time.RFC3339),
			out.ConsecutiveCorrect, out.Ease, out.Attempts, out.Correct, out.Version)
		if err != nil {
			// A concurrent writer may have created the row first.
			if s.rowExists(ctx, rec.Learner, rec.ItemKey) {
				return models.ReviewRecord{}, fmt.Errorf("record for learner %d item %q was created concurrently: %w",
					rec.Learner, rec.ItemKey, ErrConflict)
			}
			return models.ReviewRecord{}, fmt.Errorf("insert review record: %w: %v", ErrUnavailable, err)
		}
		return out, nil
	}

	update := s.db.Rebind(`UPDATE review_records SET
			last_reviewed = ?, next_due = ?, consecutive_correct = ?,
			ease = ?, attempts = ?, correct = ?, version = ?
		WHERE learner = ? AND item_key = ? AND version = ?`)
	res, err := s.db.ExecContext(ctx, update,
		out.LastReviewed.UTC().Format(time.RFC3339), out.NextDue.UTC().Format(time.RFC3339),
		out.ConsecutiveCorrect, out.Ease, out.Attempts, out.Correct, out.Version,
		out.Learner, out.ItemKey, rec.Version)
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("update review record: %w: %v", ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("update review record: %w: %v", ErrUnavailable, err)
	}
	if affected == 0 {
		return models.ReviewRecord{}, fmt.Errorf("record for learner %d item %q changed since last read: %w",
			rec.Learner, rec.ItemKey, ErrConflict)
	}
	return out, nil
}

func (s *SQLStore) rowExists(ctx context.Context, learner int64, item string) bool {
	var version int64
	query := s.db.Rebind("SELECT version FROM review_records WHERE learner = ? AND item_key = ?")
	err := s.db.GetContext(ctx, &version, query, learner, item)
	return !errors.Is(err, sql.ErrNoRows) && err == nil
}

// Learners lists every learner with at least one review record.
func (s *SQLStore) Learners(ctx context.Context) ([]int64, error) {
	var learners []int64
	err := s.db.SelectContext(ctx, &learners,
		"SELECT DISTINCT learner FROM review_records ORDER BY learner")
	if err != nil {
		return nil, fmt.Errorf("list learners: %w: %v", ErrUnavailable, err)
	}
	return learners, nil
}

// Flush is a no-op: SQL writes are durable as soon as they commit.
func (s *SQLStore) Flush(ctx context.Context) error {
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (r reviewRow) toModel() (models.ReviewRecord, error) {
	lastReviewed, err := time.Parse(time.RFC3339, r.LastReviewed)
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("last reviewed: %v", err)
	}
	nextDue, err := time.Parse(time.RFC3339, r.NextDue)
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("next due: %v", err)
	}
	return models.ReviewRecord{
		Learner:            r.Learner,
		ItemKey:            r.ItemKey,
		LastReviewed:       lastReviewed,
		NextDue:            nextDue,
		ConsecutiveCorrect: r.ConsecutiveCorrect,
		Ease:               r.Ease,
		Attempts:           r.Attempts,
		Correct:            r.Correct,
		Version:            r.Version,
	}, nil
}
