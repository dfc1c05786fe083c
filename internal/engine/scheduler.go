package engine

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"capeline/internal/domain"
	"capeline/internal/gateway"
	"capeline/internal/rules"
)

// isDue reports whether an automator runs when the calendar reaches day.
func isDue(a domain.Automator, day int) bool {
	if !a.Active {
		return false
	}
	if a.StartDay != nil && day < *a.StartDay {
		return false
	}
	if a.EndDay != nil && *a.EndDay != domain.EndDayUnbounded && day > *a.EndDay {
		return false
	}
	return day >= a.NextRunDay
}

func dueAutomators(all []domain.Automator, day int) []domain.Automator {
	var due []domain.Automator
	for _, a := range all {
		if isDue(a, day) {
			due = append(due, a)
		}
	}
	return due
}

// resolveAmount picks the generation count: Amount, or uniformly up to AmountMax.
func resolveAmount(c domain.AutomatorConfig, rng *rand.Rand) int {
	n := c.Amount
	if n < 1 {
		n = 1
	}
	if c.AmountMax > n {
		n += rng.Intn(c.AmountMax - n + 1)
	}
	return n
}

// automatorRun is the read-only snapshot every invocation receives.
type automatorRun struct {
	Day         int
	Model       string
	Titles      []string
	Suggestions []domain.Suggestion
}

type automatorResult struct {
	Index    int
	ID       string
	Type     domain.AutomatorType
	Tasks    []domain.Task
	Items    []domain.Item
	Upgrades []domain.BaseUpgrade
	Events   []domain.CalendarEvent
	Used     []string
	NextRun  int
	Err      error
}

// runAutomators invokes every due automator concurrently and waits for all of them.
// Results come back in automator order regardless of completion order.
func (e Engine) runAutomators(ctx context.Context, due []domain.Automator, run automatorRun, rng *rand.Rand) []automatorResult {
	p := pool.NewWithResults[automatorResult]()
	for i, a := range due {
		amount := resolveAmount(a.Config, rng)
		local := rand.New(rand.NewSource(rng.Int63()))
		p.Go(func() automatorResult {
			res := e.invokeAutomator(ctx, a, amount, run, local)
			res.Index = i
			return res
		})
	}
	results := p.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}

func (e Engine) invokeAutomator(ctx context.Context, a domain.Automator, amount int, run automatorRun, rng *rand.Rand) automatorResult {
	res := automatorResult{ID: a.ID, Type: a.Type}
	gw := e.gateway()
	var err error
	switch a.Type {
	case domain.AutomatorTask:
		var tasks []domain.Task
		tasks, err = gw.GenerateTasks(ctx, gateway.TaskRequest{
			Count:          amount,
			Context:        a.Config.Context,
			ExistingTitles: run.Titles,
			Model:          run.Model,
			Suggestions:    run.Suggestions,
		})
		pending := make(map[string]struct{}, len(run.Suggestions))
		for _, s := range run.Suggestions {
			pending[s.ID] = struct{}{}
		}
		for _, t := range tasks {
			t = e.normalizeTask(t, a.Config, run.Day, rng)
			if t.SourceSuggestionID != "" {
				if _, ok := pending[t.SourceSuggestionID]; ok {
					res.Used = append(res.Used, t.SourceSuggestionID)
				} else {
					t.SourceSuggestionID = ""
				}
			}
			res.Tasks = append(res.Tasks, t)
		}
	case domain.AutomatorItem:
		var items []domain.Item
		items, err = gw.GenerateItems(ctx, amount, a.Config.Context, run.Model)
		for _, it := range items {
			res.Items = append(res.Items, normalizeItem(it))
		}
	case domain.AutomatorUpgrade:
		var ups []domain.BaseUpgrade
		ups, err = gw.GenerateUpgrades(ctx, amount, a.Config.Context, run.Model)
		for _, u := range ups {
			res.Upgrades = append(res.Upgrades, normalizeUpgrade(u))
		}
	case domain.AutomatorEvent:
		var evs []domain.CalendarEvent
		evs, err = gw.GenerateEvents(ctx, amount, a.Config.Context, run.Model)
		for _, ev := range evs {
			res.Events = append(res.Events, normalizeEvent(ev, a.Config, run.Day, rng))
		}
	default:
		err = errors.New("unknown automator type " + string(a.Type))
	}
	if err != nil && !errors.Is(err, gateway.ErrUnavailable) {
		return automatorResult{ID: a.ID, Type: a.Type, Err: err}
	}
	interval := a.IntervalDays
	if interval < 1 {
		interval = 1
	}
	res.NextRun = run.Day + interval
	return res
}

// normalizeTask turns a partial generated record into a playable pool task.
func (e Engine) normalizeTask(t domain.Task, c domain.AutomatorConfig, day int, rng *rand.Rand) domain.Task {
	cfg := e.config()
	t.ID = uuid.NewString()
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		t.Title = "Untitled task"
	}
	if t.Difficulty <= 0 {
		t.Difficulty = c.DifficultyMin
		if t.Difficulty <= 0 {
			t.Difficulty = cfg.Economy.EventTaskDifficulty
		}
	}
	hi := c.DifficultyMax
	if hi <= 0 {
		hi = cfg.Economy.MaxDifficulty
	}
	t.Difficulty = rules.ClampDifficulty(t.Difficulty, c.DifficultyMin, hi)
	if !t.RequiredIdentity.Valid() {
		switch {
		case c.RequiredIdentity.Valid():
			t.RequiredIdentity = c.RequiredIdentity
		case rng.Float64() < 0.7:
			t.RequiredIdentity = domain.IdentitySuper
		default:
			t.RequiredIdentity = domain.IdentityCivilian
		}
	}
	if !t.Type.Valid() {
		switch {
		case t.RequiredIdentity == domain.IdentitySuper:
			t.Type = domain.TaskMission
		case rng.Intn(2) == 0:
			t.Type = domain.TaskWork
		default:
			t.Type = domain.TaskEvent
		}
	}
	t.Mode = domain.ModeFreeform
	if t.Scenario != nil {
		t.Scenario = &domain.Scenario{Opening: t.Scenario.Opening}
	}
	t.Locked = false
	t.IsMandatory = false
	t.CompletedDay = nil
	t.CompletionCount = 0
	t.SourceEventID = ""
	t.Scaling = nil
	if c.Scalable {
		t.Scaling = &domain.ScalingRule{
			BaseDifficulty: t.Difficulty,
			StartDay:       day,
			IntervalDays:   c.ScalingInterval,
			Step:           c.ScalingStep,
			MaxDifficulty:  c.ScalingMax,
		}
	}
	return t
}

func normalizeItem(it domain.Item) domain.Item {
	it.ID = uuid.NewString()
	it.Name = strings.TrimSpace(it.Name)
	if it.Name == "" {
		it.Name = "Unnamed item"
	}
	if !it.Slot.Valid() {
		it.Slot = ""
	}
	if it.Price < 0 {
		it.Price = 0
	}
	return it
}

func normalizeUpgrade(u domain.BaseUpgrade) domain.BaseUpgrade {
	u.ID = uuid.NewString()
	u.Name = strings.TrimSpace(u.Name)
	if u.Name == "" {
		u.Name = "Unnamed upgrade"
	}
	if u.Cost < 0 {
		u.Cost = 0
	}
	u.Owned = false
	return u
}

// normalizeEvent dates a generated event. DaysAhead pins the offset; otherwise it lands
// within the coming week.
func normalizeEvent(ev domain.CalendarEvent, c domain.AutomatorConfig, day int, rng *rand.Rand) domain.CalendarEvent {
	ev.ID = uuid.NewString()
	ev.Title = strings.TrimSpace(ev.Title)
	if ev.Title == "" {
		ev.Title = "Untitled event"
	}
	if !ev.Type.Valid() {
		ev.Type = domain.TaskEvent
	}
	offset := c.DaysAhead
	if offset <= 0 {
		offset = 1 + rng.Intn(7)
	}
	d := day + offset
	ev.Day = &d
	ev.ConditionTriggered = false
	ev.Trigger = nil
	ev.Reset = nil
	ev.LinkedTaskID = ""
	ev.Active = true
	return ev
}
