// Package gateway is the boundary to the content generation backend. Every call may
// return fewer records than asked for, partial records, or an error; callers isolate
// failures per call.
package gateway

import (
	"context"
	"errors"

	"capeline/internal/domain"
)

// ErrUnavailable means no backend is configured. Callers treat it like an empty result.
var ErrUnavailable = errors.New("content generation unavailable")

type TaskRequest struct {
	Count          int
	Context        string
	ExistingTitles []string
	Model          string
	Suggestions    []domain.Suggestion
}

// Gateway generates partial content records. Ids, defaults and clamping are the
// caller's job.
type Gateway interface {
	GenerateTasks(ctx context.Context, req TaskRequest) ([]domain.Task, error)
	GenerateItems(ctx context.Context, count int, contextPrompt, model string) ([]domain.Item, error)
	GenerateUpgrades(ctx context.Context, count int, contextPrompt, model string) ([]domain.BaseUpgrade, error)
	GenerateEvents(ctx context.Context, count int, contextPrompt, model string) ([]domain.CalendarEvent, error)
	GenerateNewsIssue(ctx context.Context, day int, contextPrompt, model string) (*domain.NewsIssue, error)
	GenerateLinkedTasks(ctx context.Context, issue domain.NewsIssue, model string) ([]domain.Task, error)
	GenerateWeeklySummary(ctx context.Context, week int, recent []domain.TimelineEntry, model string) (*domain.CodexEntry, error)
}

// Summary is the verdict on a finished freeform transcript.
type Summary struct {
	Level      domain.SuccessLevel `json:"level"`
	Rewards    domain.Reward       `json:"rewards"`
	Reputation map[string]int      `json:"reputation,omitempty"`
	Text       string              `json:"summary"`
}

// Narrator drives freeform scenarios turn by turn.
type Narrator interface {
	NarrateTurn(ctx context.Context, task domain.Task, player domain.Player, transcript []domain.TranscriptTurn, model string) (string, error)
	SummarizeTranscript(ctx context.Context, task domain.Task, transcript []domain.TranscriptTurn, model string) (Summary, error)
}

// Service is a backend that both generates content and narrates.
type Service interface {
	Gateway
	Narrator
}

// Disabled is the backend used when no credentials are configured.
type Disabled struct{}

var _ Service = Disabled{}

func (Disabled) GenerateTasks(context.Context, TaskRequest) ([]domain.Task, error) {
	return nil, ErrUnavailable
}

func (Disabled) GenerateItems(context.Context, int, string, string) ([]domain.Item, error) {
	return nil, ErrUnavailable
}

func (Disabled) GenerateUpgrades(context.Context, int, string, string) ([]domain.BaseUpgrade, error) {
	return nil, ErrUnavailable
}

func (Disabled) GenerateEvents(context.Context, int, string, string) ([]domain.CalendarEvent, error) {
	return nil, ErrUnavailable
}

func (Disabled) GenerateNewsIssue(context.Context, int, string, string) (*domain.NewsIssue, error) {
	return nil, ErrUnavailable
}

func (Disabled) GenerateLinkedTasks(context.Context, domain.NewsIssue, string) ([]domain.Task, error) {
	return nil, ErrUnavailable
}

func (Disabled) GenerateWeeklySummary(context.Context, int, []domain.TimelineEntry, string) (*domain.CodexEntry, error) {
	return nil, ErrUnavailable
}

func (Disabled) NarrateTurn(context.Context, domain.Task, domain.Player, []domain.TranscriptTurn, string) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) SummarizeTranscript(context.Context, domain.Task, []domain.TranscriptTurn, string) (Summary, error) {
	return Summary{}, ErrUnavailable
}
