package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/germanbot/pkg/models"
)

// Sentinel errors for session handling.
// Use errors.Is to check: errors.Is(err, session.ErrNoActiveSession)
var (
	// ErrNoActiveSession means a message arrived while no round is running.
	// It is user-facing, not a fault: the caller should show start
	// instructions.
	ErrNoActiveSession = errors.New("session: no active session")
	// ErrUnexpectedMessage means the message is incompatible with the
	// current state of the round.
	ErrUnexpectedMessage = errors.New("session: message not valid in current state")
	// ErrEmptyQueue means a round was started with nothing to review.
	ErrEmptyQueue = errors.New("session: empty question queue")
)

// State is the current activity of one conversation.
type State int

const (
	Idle State = iota
	Presenting
	AwaitingAnswer
	Summarizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Presenting:
		return "presenting"
	case AwaitingAnswer:
		return "awaiting_answer"
	case Summarizing:
		return "summarizing"
	default:
		return "unknown"
	}
}

// Session is the ephemeral state of one learner's quiz round. It is not
// safe for concurrent use; the engine serializes access per learner.
type Session struct {
	Learner      int64
	RoundID      string
	State        State
	Queue        []models.VocabularyItem
	Index        int
	CorrectCount int
	WrongCount   int
	Degraded     bool
	LastActivity time.Time
	Missed       []models.VocabularyItem
}

// Verdict is the outcome of grading one answer.
type Verdict struct {
	Item     models.VocabularyItem
	Correct  bool
	Expected string
}

// Summary is the aggregate result of a finished or abandoned round.
type Summary struct {
	RoundID      string
	CorrectCount int
	WrongCount   int
	Missed       []models.VocabularyItem
	Degraded     bool
	Partial      bool // round ended before all items were answered
}

// New starts a round over the given queue. The queue must be free of
// duplicate item keys; the scheduler guarantees that.
func New(learner int64, queue []models.VocabularyItem, now time.Time) (*Session, error) {
	if len(queue) == 0 {
		return nil, ErrEmptyQueue
	}
	return &Session{
		Learner:      learner,
		RoundID:      uuid.NewString(),
		State:        Presenting,
		Queue:        queue,
		LastActivity: now,
	}, nil
}

// Current returns the item whose prompt is being presented or answered.
func (s *Session) Current() (models.VocabularyItem, bool) {
	if s.Index >= len(s.Queue) {
		return models.VocabularyItem{}, false
	}
	return s.Queue[s.Index], true
}

// PromptSent records that the current item's prompt went out to the
// learner, moving the session from Presenting to AwaitingAnswer.
func (s *Session) PromptSent(now time.Time) error {
	if s.State != Presenting {
		return ErrUnexpectedMessage
	}
	s.State = AwaitingAnswer
	s.LastActivity = now
	return nil
}

// Answer grades one answer message against the current item and advances
// the round. Valid only in AwaitingAnswer.
func (s *Session) Answer(text string, now time.Time) (Verdict, error) {
	if s.State != AwaitingAnswer {
		return Verdict{}, ErrUnexpectedMessage
	}
	item, ok := s.Current()
	if !ok {
		return Verdict{}, ErrUnexpectedMessage
	}

	v := Verdict{
		Item:     item,
		Correct:  Matches(item.Translation, text),
		Expected: item.Translation,
	}
	if v.Correct {
		s.CorrectCount++
	} else {
		s.WrongCount++
		s.Missed = append(s.Missed, item)
	}

	s.Index++
	s.LastActivity = now
	if s.Index < len(s.Queue) {
		s.State = Presenting
	} else {
		s.State = Summarizing
	}
	return v, nil
}

// Expired reports whether the session sat inactive past the window while a
// round was in flight.
func (s *Session) Expired(now time.Time, window time.Duration) bool {
	if s.State == Idle {
		return false
	}
	return now.Sub(s.LastActivity) > window
}

// ForceSummarize moves a stalled session straight to Summarizing so a
// partial summary can be emitted. Sessions cannot be held open forever in
// a conversational medium.
func (s *Session) ForceSummarize() {
	if s.State == Presenting || s.State == AwaitingAnswer {
		s.State = Summarizing
	}
}

// Summarize emits the aggregate results and closes the round.
func (s *Session) Summarize() (Summary, error) {
	if s.State != Summarizing {
		return Summary{}, ErrUnexpectedMessage
	}
	sum := Summary{
		RoundID:      s.RoundID,
		CorrectCount: s.CorrectCount,
		WrongCount:   s.WrongCount,
		Missed:       s.Missed,
		Degraded:     s.Degraded,
		Partial:      s.Index < len(s.Queue),
	}
	s.State = Idle
	return sum, nil
}
