package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/example/germanbot/internal/session"
	"github.com/example/germanbot/internal/srs"
	"github.com/example/germanbot/internal/store"
	"github.com/example/germanbot/pkg/models"
)

// ErrNothingDue means the learner has no items waiting for review.
var ErrNothingDue = errors.New("quiz: nothing due for review")

// Config tunes one engine instance.
type Config struct {
	// RoundLimit caps how many due items go into one round.
	RoundLimit int
	// InactivityWindow forces a stalled session to summarize.
	InactivityWindow time.Duration
	// SaveAttempts bounds the retries of one record save.
	SaveAttempts int
	// SaveBackoff is the initial retry delay; it doubles per attempt.
	SaveBackoff time.Duration
	// ChoiceCount is the number of options on a multiple-choice prompt.
	ChoiceCount int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		RoundLimit:       10,
		InactivityWindow: 10 * time.Minute,
		SaveAttempts:     3,
		SaveBackoff:      200 * time.Millisecond,
		ChoiceCount:      4,
	}
}

// Prompt is one quiz question ready to be sent to the learner.
type Prompt struct {
	RoundID  string
	Item     models.VocabularyItem
	Position int // 1-based index within the round
	Total    int
	Text     string
	// Options holds shuffled multiple-choice answers, one of which is the
	// expected translation. The transport renders them as buttons; a
	// picked option is submitted back as plain answer text.
	Options []string
}

// AnswerResult is everything the transport needs after one answer:
// feedback for the graded item, then either the next prompt or the round
// summary.
type AnswerResult struct {
	Verdict     session.Verdict
	Feedback    string
	Next        *Prompt
	Summary     *session.Summary
	SummaryText string
}

// learnerState is the per-learner slot. Its mutex serializes all message
// handling for one learner so concurrent messages cannot double-advance
// the queue; different learners proceed in parallel.
type learnerState struct {
	mu      sync.Mutex
	sess    *session.Session
	records map[string]models.ReviewRecord
	// pending holds records whose save exhausted its retries. They are
	// re-tried by Reconcile on the next successful store access.
	pending []models.ReviewRecord
	// evicted marks a slot that ExpireIdle removed from the map while a
	// handler was between looking it up and locking it. Such a handler
	// must start over with a fresh slot.
	evicted bool
}

// Engine orchestrates quiz rounds: it pulls due items from the scheduler,
// drives the session state machine, persists outcomes after every answer
// and formats the outbound text.
type Engine struct {
	store store.Store
	sched *srs.Scheduler
	cfg   Config
	log   *slog.Logger

	vocabMu sync.RWMutex
	vocab   []models.VocabularyItem

	mu       sync.Mutex
	learners map[int64]*learnerState

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an engine. Call Reload before serving traffic so the
// vocabulary cache is populated; a load yielding zero items is fatal.
func New(st store.Store, sched *srs.Scheduler, cfg Config, log *slog.Logger) *Engine {
	return &Engine{
		store:    st,
		sched:    sched,
		cfg:      cfg,
		log:      log,
		learners: make(map[int64]*learnerState),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Reload refreshes the vocabulary cache from the store.
func (e *Engine) Reload(ctx context.Context) error {
	items, err := e.store.LoadVocabulary(ctx)
	if err != nil {
		return err
	}
	e.vocabMu.Lock()
	e.vocab = items
	e.vocabMu.Unlock()
	e.log.Info("vocabulary loaded", "items", len(items))
	return nil
}

func (e *Engine) vocabulary() []models.VocabularyItem {
	e.vocabMu.RLock()
	defer e.vocabMu.RUnlock()
	return e.vocab
}

func (e *Engine) learner(id int64) *learnerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	ls, ok := e.learners[id]
	if !ok {
		ls = &learnerState{}
		e.learners[id] = ls
	}
	return ls
}

// lockLearner returns the learner's slot with its mutex held.
func (e *Engine) lockLearner(id int64) *learnerState {
	for {
		ls := e.learner(id)
		ls.mu.Lock()
		if !ls.evicted {
			return ls
		}
		ls.mu.Unlock()
	}
}

// StartRound begins a new quiz round for the learner. An active round is
// implicitly abandoned. Returns ErrNothingDue when no items wait.
func (e *Engine) StartRound(ctx context.Context, learner int64) (*Prompt, error) {
	ls := e.lockLearner(learner)
	defer ls.mu.Unlock()

	if ls.sess != nil && ls.sess.State != session.Idle {
		e.log.Info("implicitly abandoning active round", "learner", learner, "round", ls.sess.RoundID)
	}

	records, err := ls.loadRecords(ctx, e.store, learner)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	due := e.sched.SelectDue(e.vocabulary(), records, now, e.cfg.RoundLimit)
	if len(due) == 0 {
		return nil, ErrNothingDue
	}

	sess, err := session.New(learner, due, now)
	if err != nil {
		return nil, err
	}
	ls.sess = sess
	ls.records = records

	return e.nextPrompt(sess, now)
}

// nextPrompt builds the prompt for the session's current item and marks it
// sent. Producing the prompt is the engine's reply; the session moves to
// AwaitingAnswer in the same step.
func (e *Engine) nextPrompt(sess *session.Session, now time.Time) (*Prompt, error) {
	item, ok := sess.Current()
	if !ok {
		return nil, session.ErrUnexpectedMessage
	}
	p := &Prompt{
		RoundID:  sess.RoundID,
		Item:     item,
		Position: sess.Index + 1,
		Total:    len(sess.Queue),
		Text:     formatPrompt(item, sess.Index+1, len(sess.Queue)),
		Options:  e.choices(item),
	}
	if err := sess.PromptSent(now); err != nil {
		return nil, err
	}
	return p, nil
}

// SubmitAnswer grades one answer message, persists the outcome and
// advances the round. A store outage does not abort the round: the answer
// keeps its in-memory effect and the summary carries a warning.
func (e *Engine) SubmitAnswer(ctx context.Context, learner int64, text string) (*AnswerResult, error) {
	ls := e.lockLearner(learner)
	defer ls.mu.Unlock()

	if ls.sess == nil || ls.sess.State == session.Idle {
		return nil, session.ErrNoActiveSession
	}

	now := time.Now()
	verdict, err := ls.sess.Answer(text, now)
	if err != nil {
		return nil, err
	}

	rec, ok := ls.records[verdict.Item.Key]
	if !ok {
		rec = models.ReviewRecord{Learner: learner, ItemKey: verdict.Item.Key}
	}
	updated := e.sched.RecordOutcome(rec, verdict.Correct, now)

	saved, err := e.persist(ctx, ls, updated)
	if err != nil {
		// Durability is degraded but the learner's round goes on.
		e.log.Warn("persisting review record failed, round degraded",
			"learner", learner, "item", updated.ItemKey, "error", err)
		ls.sess.Degraded = true
		ls.pending = append(ls.pending, updated)
		saved = updated
	}
	ls.records[saved.ItemKey] = saved

	result := &AnswerResult{
		Verdict:  verdict,
		Feedback: formatFeedback(verdict),
	}

	switch ls.sess.State {
	case session.Presenting:
		next, err := e.nextPrompt(ls.sess, now)
		if err != nil {
			return nil, err
		}
		result.Next = next
	case session.Summarizing:
		sum, err := ls.sess.Summarize()
		if err != nil {
			return nil, err
		}
		result.Summary = &sum
		result.SummaryText = formatSummary(sum)
		ls.sess = nil
	}
	return result, nil
}

// AbandonRound closes the learner's round early and returns the partial
// summary text.
func (e *Engine) AbandonRound(ctx context.Context, learner int64) (string, error) {
	ls := e.lockLearner(learner)
	defer ls.mu.Unlock()

	if ls.sess == nil || ls.sess.State == session.Idle {
		return "", session.ErrNoActiveSession
	}
	ls.sess.ForceSummarize()
	sum, err := ls.sess.Summarize()
	if err != nil {
		return "", err
	}
	ls.sess = nil
	return formatSummary(sum), nil
}

// Expired is a round that was closed by the inactivity sweep.
type Expired struct {
	Learner int64
	Text    string
}

// ExpireIdle force-summarizes every session that sat inactive past the
// window and returns the partial summaries for delivery. Slots left with
// no session and no pending saves are dropped from the map so it does not
// grow for the lifetime of the process.
func (e *Engine) ExpireIdle(now time.Time) []Expired {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]int64, 0, len(e.learners))
	for id := range e.learners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []Expired
	for _, id := range ids {
		ls := e.learners[id]
		if !ls.mu.TryLock() {
			// A handler is mid-flight, so the learner is not idle.
			continue
		}
		if ls.sess != nil && ls.sess.Expired(now, e.cfg.InactivityWindow) {
			ls.sess.ForceSummarize()
			if sum, err := ls.sess.Summarize(); err == nil {
				out = append(out, Expired{Learner: id, Text: formatTimeoutSummary(sum)})
			}
			ls.sess = nil
		}
		if ls.sess == nil && len(ls.pending) == 0 {
			ls.evicted = true
			delete(e.learners, id)
		}
		ls.mu.Unlock()
	}
	return out
}

// Reconcile retries saves that failed during rounds and flushes the
// store's buffered writes.
func (e *Engine) Reconcile(ctx context.Context) error {
	e.mu.Lock()
	ids := make([]int64, 0, len(e.learners))
	for id := range e.learners {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		ls := e.lockLearner(id)
		var still []models.ReviewRecord
		for _, rec := range ls.pending {
			saved, err := e.saveWithConflictRetry(ctx, rec)
			if err != nil {
				still = append(still, rec)
				continue
			}
			if ls.records != nil {
				ls.records[saved.ItemKey] = saved
			}
			e.log.Info("reconciled degraded review record", "learner", id, "item", saved.ItemKey)
		}
		ls.pending = still
		ls.mu.Unlock()
	}
	return e.store.Flush(ctx)
}

// persist saves one record with bounded exponential backoff, then flushes
// so the answer is durable before the next prompt goes out.
func (e *Engine) persist(ctx context.Context, ls *learnerState, rec models.ReviewRecord) (models.ReviewRecord, error) {
	var lastErr error
	delay := e.cfg.SaveBackoff
	for attempt := 1; attempt <= e.cfg.SaveAttempts; attempt++ {
		saved, err := e.saveWithConflictRetry(ctx, rec)
		if err == nil {
			if err := e.store.Flush(ctx); err != nil {
				lastErr = err
			} else {
				return saved, nil
			}
		} else if !errors.Is(err, store.ErrUnavailable) {
			return models.ReviewRecord{}, err
		} else {
			lastErr = err
		}

		if attempt < e.cfg.SaveAttempts {
			select {
			case <-ctx.Done():
				return models.ReviewRecord{}, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return models.ReviewRecord{}, fmt.Errorf("save after %d attempts: %w", e.cfg.SaveAttempts, lastErr)
}

// saveWithConflictRetry performs one upsert, and on a version conflict
// reloads the row and reapplies our state on top of the fresh version.
// The engine's in-memory record reflects answers actually given, so it
// wins over a concurrent external edit of the scheduling fields.
func (e *Engine) saveWithConflictRetry(ctx context.Context, rec models.ReviewRecord) (models.ReviewRecord, error) {
	saved, err := e.store.SaveReviewRecord(ctx, rec)
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return models.ReviewRecord{}, err
	}

	fresh, err := e.store.LoadReviewRecords(ctx, rec.Learner)
	if err != nil {
		return models.ReviewRecord{}, err
	}
	rec.Version = fresh[rec.ItemKey].Version
	return e.store.SaveReviewRecord(ctx, rec)
}

func (ls *learnerState) loadRecords(ctx context.Context, st store.Store, learner int64) (map[string]models.ReviewRecord, error) {
	records, err := st.LoadReviewRecords(ctx, learner)
	if err != nil {
		return nil, err
	}
	// Unsaved outcomes from a degraded round stay authoritative.
	for _, rec := range ls.pending {
		records[rec.ItemKey] = rec
	}
	return records, nil
}

// choices builds the shuffled multiple-choice options for an item: its
// translation plus distractors drawn from the rest of the vocabulary.
func (e *Engine) choices(item models.VocabularyItem) []string {
	vocab := e.vocabulary()

	e.rngMu.Lock()
	defer e.rngMu.Unlock()

	options := []string{item.Translation}
	seen := map[string]bool{item.Translation: true}
	perm := e.rng.Perm(len(vocab))
	for _, idx := range perm {
		if len(options) >= e.cfg.ChoiceCount {
			break
		}
		w := vocab[idx]
		if w.Key == item.Key || seen[w.Translation] {
			continue
		}
		seen[w.Translation] = true
		options = append(options, w.Translation)
	}

	e.rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return options
}

// RandomWord returns a formatted card for one random vocabulary item.
func (e *Engine) RandomWord(ctx context.Context) (string, error) {
	vocab := e.vocabulary()
	if len(vocab) == 0 {
		return "", fmt.Errorf("no vocabulary available: %w", store.ErrFormat)
	}
	e.rngMu.Lock()
	item := vocab[e.rng.Intn(len(vocab))]
	e.rngMu.Unlock()
	return formatCard(item), nil
}

// Stats returns the learner's progress summary text.
func (e *Engine) Stats(ctx context.Context, learner int64) (string, error) {
	ls := e.lockLearner(learner)
	defer ls.mu.Unlock()

	records, err := ls.loadRecords(ctx, e.store, learner)
	if err != nil {
		return "", err
	}

	now := time.Now()
	total := len(e.vocabulary())
	due := len(e.sched.SelectDue(e.vocabulary(), records, now, total))
	var attempts, correct, mastered int
	for _, rec := range records {
		attempts += rec.Attempts
		correct += rec.Correct
		if e.sched.Mastered(rec) {
			mastered++
		}
	}
	return formatStats(total, len(records), due, mastered, attempts, correct), nil
}

// DueCount reports how many items wait for the learner, for reminders.
func (e *Engine) DueCount(ctx context.Context, learner int64) (int, error) {
	ls := e.lockLearner(learner)
	defer ls.mu.Unlock()

	records, err := ls.loadRecords(ctx, e.store, learner)
	if err != nil {
		return 0, err
	}
	total := len(e.vocabulary())
	return len(e.sched.SelectDue(e.vocabulary(), records, time.Now(), total)), nil
}
