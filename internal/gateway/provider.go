package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	Model       string
}

type CompletionResponse struct {
	Content      string
	Model        string
	PromptTokens int
	OutputTokens int
	Latency      time.Duration
	FinishReason string
}

// Provider is a chat-completion backend.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Name() string
	IsAvailable() bool
}

// BudgetGate caps estimated spend per day and per month. Safe for concurrent use.
type BudgetGate struct {
	DailyLimitUSD   float64
	MonthlyLimitUSD float64
	Now             func() time.Time

	mu         sync.Mutex
	daySpend   float64
	monthSpend float64
	dayMark    time.Time
	monthMark  time.Time
}

func NewBudgetGate(daily, monthly float64) *BudgetGate {
	return &BudgetGate{DailyLimitUSD: daily, MonthlyLimitUSD: monthly}
}

func (b *BudgetGate) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Reserve records cost if it fits both limits. A zero limit is unlimited.
func (b *BudgetGate) Reserve(cost float64) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	if b.DailyLimitUSD > 0 && b.daySpend+cost > b.DailyLimitUSD {
		return fmt.Errorf("daily budget exhausted: $%.2f of $%.2f", b.daySpend, b.DailyLimitUSD)
	}
	if b.MonthlyLimitUSD > 0 && b.monthSpend+cost > b.MonthlyLimitUSD {
		return fmt.Errorf("monthly budget exhausted: $%.2f of $%.2f", b.monthSpend, b.MonthlyLimitUSD)
	}
	b.daySpend += cost
	b.monthSpend += cost
	return nil
}

// Adjust corrects a reservation once the real cost is known.
func (b *BudgetGate) Adjust(estimated, actual float64) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.daySpend += actual - estimated
	b.monthSpend += actual - estimated
}

func (b *BudgetGate) rollover() {
	now := b.now()
	if b.dayMark.IsZero() || now.YearDay() != b.dayMark.YearDay() || now.Year() != b.dayMark.Year() {
		b.daySpend = 0
		b.dayMark = now
	}
	if b.monthMark.IsZero() || now.Month() != b.monthMark.Month() || now.Year() != b.monthMark.Year() {
		b.monthSpend = 0
		b.monthMark = now
	}
}

// Status reports the current spend.
func (b *BudgetGate) Status() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("day $%.2f/%.2f month $%.2f/%.2f", b.daySpend, b.DailyLimitUSD, b.monthSpend, b.MonthlyLimitUSD)
}

// per-token blended rate used for budget estimates.
const costPerToken = 0.00001

func estimateCost(req CompletionRequest) float64 {
	chars := 0
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	return float64(chars/4+req.MaxTokens) * costPerToken
}
