package engine_test

import (
	"context"
	"sync"

	"capeline/internal/domain"
	"capeline/internal/gateway"
)

// fakeGateway scripts every generation call. Safe for concurrent automators.
type fakeGateway struct {
	mu    sync.Mutex
	calls map[string]int

	tasks     func(req gateway.TaskRequest) ([]domain.Task, error)
	items     []domain.Item
	upgrades  []domain.BaseUpgrade
	events    []domain.CalendarEvent
	news      *domain.NewsIssue
	newsErr   error
	linked    []domain.Task
	weekly    *domain.CodexEntry
	narration string
	summary   gateway.Summary
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{calls: map[string]int{}}
}

func (f *fakeGateway) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeGateway) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeGateway) GenerateTasks(_ context.Context, req gateway.TaskRequest) ([]domain.Task, error) {
	f.count("tasks")
	if f.tasks == nil {
		return nil, nil
	}
	return f.tasks(req)
}

func (f *fakeGateway) GenerateItems(context.Context, int, string, string) ([]domain.Item, error) {
	f.count("items")
	return f.items, nil
}

func (f *fakeGateway) GenerateUpgrades(context.Context, int, string, string) ([]domain.BaseUpgrade, error) {
	f.count("upgrades")
	return f.upgrades, nil
}

func (f *fakeGateway) GenerateEvents(context.Context, int, string, string) ([]domain.CalendarEvent, error) {
	f.count("events")
	return f.events, nil
}

func (f *fakeGateway) GenerateNewsIssue(context.Context, int, string, string) (*domain.NewsIssue, error) {
	f.count("news")
	if f.newsErr != nil {
		return nil, f.newsErr
	}
	if f.news == nil {
		return nil, nil
	}
	issue := *f.news
	return &issue, nil
}

func (f *fakeGateway) GenerateLinkedTasks(context.Context, domain.NewsIssue, string) ([]domain.Task, error) {
	f.count("linked")
	return f.linked, nil
}

func (f *fakeGateway) GenerateWeeklySummary(context.Context, int, []domain.TimelineEntry, string) (*domain.CodexEntry, error) {
	f.count("weekly")
	return f.weekly, nil
}

func (f *fakeGateway) NarrateTurn(context.Context, domain.Task, domain.Player, []domain.TranscriptTurn, string) (string, error) {
	f.count("narrate")
	return f.narration, nil
}

func (f *fakeGateway) SummarizeTranscript(context.Context, domain.Task, []domain.TranscriptTurn, string) (gateway.Summary, error) {
	f.count("summarize")
	return f.summary, nil
}
