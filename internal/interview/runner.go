package interview

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/verification-service/internal/domain"
	"github.com/spec-kit/verification-service/internal/gateway"
)

// AbortReason explains why an interview ended early.
type AbortReason string

const (
	AbortCancelled     AbortReason = "cancelled"
	AbortTimedOut      AbortReason = "timed_out"
	AbortUndeliverable AbortReason = "undeliverable"
)

// Result is the outcome of a full interview run. When Aborted is false
// Answers holds exactly one entry per configured question, in order.
type Result struct {
	Answers  []domain.Answer
	Aborted  bool
	Reason   AbortReason
	Question int // 1-based index the interview aborted at
}

// Prompter delivers a question prompt to a channel. Implemented by the
// presenter; the runner never formats user-facing text.
type Prompter interface {
	SendQuestion(ctx context.Context, channelID string, index, total int, question string, timeout time.Duration) error
}

// answerCollector is the waiting primitive the runner composes.
type answerCollector interface {
	Await(ctx context.Context, channelID string, filter gateway.MessageFilter, timeout time.Duration) (domain.Answer, error)
}

// Runner drives the collector through the ordered question list for one
// requester. It does not touch the session registry; the caller
// acquires a session before invoking it and releases unconditionally
// afterward.
type Runner struct {
	collector     answerCollector
	prompter      Prompter
	questions     []string
	answerTimeout time.Duration
	logger        *zap.Logger
}

// NewRunner constructs a runner for the configured questions.
func NewRunner(collector answerCollector, prompter Prompter, questions []string, answerTimeout time.Duration, logger *zap.Logger) *Runner {
	return &Runner{
		collector:     collector,
		prompter:      prompter,
		questions:     questions,
		answerTimeout: answerTimeout,
		logger:        logger,
	}
}

// QuestionCount returns the configured question count.
func (r *Runner) QuestionCount() int {
	return len(r.questions)
}

// Run asks each question in order and collects the participant's
// replies. The first timeout, cancel, or delivery failure aborts
// immediately; remaining questions are never asked. Each question gets
// its own fresh deadline.
func (r *Runner) Run(ctx context.Context, participantID, channelID string) Result {
	answers := make([]domain.Answer, 0, len(r.questions))
	total := len(r.questions)

	for i, question := range r.questions {
		index := i + 1
		if err := r.prompter.SendQuestion(ctx, channelID, index, total, question, r.answerTimeout); err != nil {
			// Undeliverable prompts are abandonment, same as a
			// timeout; no retry.
			r.logger.Warn("question prompt undeliverable",
				zap.String("participant_id", participantID),
				zap.Int("question", index),
				zap.Error(err))
			return Result{Aborted: true, Reason: AbortUndeliverable, Question: index}
		}

		answer, err := r.collector.Await(ctx, channelID, gateway.FromAuthor(participantID), r.answerTimeout)
		switch {
		case err == nil:
			answers = append(answers, answer)
		case errors.Is(err, ErrCancelled):
			return Result{Aborted: true, Reason: AbortCancelled, Question: index}
		case errors.Is(err, ErrTimedOut):
			return Result{Aborted: true, Reason: AbortTimedOut, Question: index}
		default:
			r.logger.Warn("answer wait failed",
				zap.String("participant_id", participantID),
				zap.Int("question", index),
				zap.Error(err))
			return Result{Aborted: true, Reason: AbortUndeliverable, Question: index}
		}
	}

	return Result{Answers: answers}
}
