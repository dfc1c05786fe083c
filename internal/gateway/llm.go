package gateway

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"capeline/internal/config"
	"capeline/internal/domain"
)

// LLM implements Service on top of a chat-completion Provider.
type LLM struct {
	Provider  Provider
	MaxTokens int
	Timeout   time.Duration
}

var _ Service = (*LLM)(nil)

// FromConfig builds the configured backend. A missing provider or API key yields Disabled.
func FromConfig(cfg config.Gateway) Service {
	key := ""
	if cfg.APIKeyEnv != "" {
		key = strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
	}
	budget := NewBudgetGate(cfg.DailyBudgetUSD, cfg.MonthlyBudgetUSD)
	client := &http.Client{Timeout: cfg.Timeout() + 5*time.Second}
	var p Provider
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		p = &Anthropic{APIKey: key, BaseURL: cfg.BaseURL, Model: cfg.Model, HTTPClient: client, Budget: budget}
	case "openai":
		p = &OpenAI{APIKey: key, BaseURL: cfg.BaseURL, Model: cfg.Model, HTTPClient: client, Budget: budget}
	default:
		return Disabled{}
	}
	if !p.IsAvailable() {
		return Disabled{}
	}
	return &LLM{Provider: p, MaxTokens: cfg.MaxTokens, Timeout: cfg.Timeout()}
}

func (l *LLM) complete(ctx context.Context, model, prompt string) (string, error) {
	if l.Provider == nil || !l.Provider.IsAvailable() {
		return "", ErrUnavailable
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := l.Provider.Complete(ctx, CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   l.MaxTokens,
		Temperature: 0.9,
		Model:       model,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", l.Provider.Name(), err)
	}
	return resp.Content, nil
}

func (l *LLM) GenerateTasks(ctx context.Context, req TaskRequest) ([]domain.Task, error) {
	if req.Count <= 0 {
		return nil, nil
	}
	text, err := l.complete(ctx, req.Model, tasksPrompt(req))
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Task](text, "tasks")
}

func (l *LLM) GenerateItems(ctx context.Context, count int, contextPrompt, model string) ([]domain.Item, error) {
	if count <= 0 {
		return nil, nil
	}
	text, err := l.complete(ctx, model, itemsPrompt(count, contextPrompt))
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Item](text, "items")
}

func (l *LLM) GenerateUpgrades(ctx context.Context, count int, contextPrompt, model string) ([]domain.BaseUpgrade, error) {
	if count <= 0 {
		return nil, nil
	}
	text, err := l.complete(ctx, model, upgradesPrompt(count, contextPrompt))
	if err != nil {
		return nil, err
	}
	return decodeList[domain.BaseUpgrade](text, "upgrades")
}

func (l *LLM) GenerateEvents(ctx context.Context, count int, contextPrompt, model string) ([]domain.CalendarEvent, error) {
	if count <= 0 {
		return nil, nil
	}
	text, err := l.complete(ctx, model, eventsPrompt(count, contextPrompt))
	if err != nil {
		return nil, err
	}
	return decodeList[domain.CalendarEvent](text, "events")
}

func (l *LLM) GenerateNewsIssue(ctx context.Context, day int, contextPrompt, model string) (*domain.NewsIssue, error) {
	text, err := l.complete(ctx, model, newsPrompt(day, contextPrompt))
	if err != nil {
		return nil, err
	}
	issue, err := decodeObject[domain.NewsIssue](text)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(issue.Headline) == "" {
		return nil, fmt.Errorf("news issue has no headline")
	}
	return &issue, nil
}

func (l *LLM) GenerateLinkedTasks(ctx context.Context, issue domain.NewsIssue, model string) ([]domain.Task, error) {
	text, err := l.complete(ctx, model, linkedTasksPrompt(issue))
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Task](text, "tasks")
}

func (l *LLM) GenerateWeeklySummary(ctx context.Context, week int, recent []domain.TimelineEntry, model string) (*domain.CodexEntry, error) {
	text, err := l.complete(ctx, model, weeklySummaryPrompt(week, recent))
	if err != nil {
		return nil, err
	}
	entry, err := decodeObject[domain.CodexEntry](text)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (l *LLM) NarrateTurn(ctx context.Context, task domain.Task, player domain.Player, transcript []domain.TranscriptTurn, model string) (string, error) {
	text, err := l.complete(ctx, model, narratePrompt(task, player, transcript))
	if err != nil {
		return "", err
	}
	reply, err := decodeObject[struct {
		Text string `json:"text"`
	}](text)
	if err != nil || strings.TrimSpace(reply.Text) == "" {
		// plain prose is acceptable for narration
		return strings.TrimSpace(text), nil
	}
	return reply.Text, nil
}

func (l *LLM) SummarizeTranscript(ctx context.Context, task domain.Task, transcript []domain.TranscriptTurn, model string) (Summary, error) {
	text, err := l.complete(ctx, model, summarizePrompt(task, transcript))
	if err != nil {
		return Summary{}, err
	}
	s, err := decodeObject[Summary](text)
	if err != nil {
		return Summary{}, err
	}
	if !s.Level.Valid() {
		return Summary{}, fmt.Errorf("unknown success level %q", s.Level)
	}
	return s, nil
}
