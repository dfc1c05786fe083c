package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"capeline/internal/domain"
	"capeline/internal/events"
	"capeline/internal/repo"
	"capeline/internal/state"
)

func newID() string { return uuid.NewString() }

func validateConditions(field string, conds []domain.Condition) error {
	for i, c := range conds {
		if err := c.Validate(); err != nil {
			return domain.ValidationError{Field: fmt.Sprintf("%s[%d]", field, i), Reason: err.Error()}
		}
	}
	return nil
}

// validateTask rejects malformed editor input before it reaches the save.
func (e Engine) validateTask(t *domain.Task) error {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return domain.ValidationError{Field: "title", Reason: "required"}
	}
	if t.Type == "" {
		t.Type = domain.TaskMission
	}
	if !t.Type.Valid() {
		return domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown task type %q", t.Type)}
	}
	if t.RequiredIdentity == "" {
		t.RequiredIdentity = domain.IdentitySuper
	}
	if !t.RequiredIdentity.Valid() {
		return domain.ValidationError{Field: "requiredIdentity", Reason: fmt.Sprintf("unknown identity %q", t.RequiredIdentity)}
	}
	if t.Mode == "" {
		t.Mode = domain.ModeFreeform
	}
	switch t.Mode {
	case domain.ModeStructured:
		if t.Scenario == nil {
			return domain.ValidationError{Field: "scenario", Reason: "structured tasks need a scenario"}
		}
		if err := t.Scenario.Validate(); err != nil {
			return err
		}
	case domain.ModeFreeform:
	default:
		return domain.ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", t.Mode)}
	}
	max := e.config().Economy.MaxDifficulty
	if t.Difficulty < 1 || (max > 0 && t.Difficulty > max) {
		return domain.ValidationError{Field: "difficulty", Reason: fmt.Sprintf("must be between 1 and %d", max)}
	}
	if t.Scaling != nil && t.Scaling.IntervalDays < 0 {
		return domain.ValidationError{Field: "scaling.intervalDays", Reason: "must not be negative"}
	}
	return validateConditions("conditions", t.Conditions)
}

// AddTask adds a hand-written task to the master pool.
func (e Engine) AddTask(ctx context.Context, slot string, t domain.Task) (domain.Task, error) {
	if err := e.validateTask(&t); err != nil {
		return domain.Task{}, err
	}
	if t.ID == "" {
		t.ID = newID()
	}
	t.Locked = false
	t.CompletedDay = nil
	t.CompletionCount = 0
	_, err := e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		if _, dup := s.GameState.FindTask(t.ID); dup {
			return change{}, domain.ValidationError{Field: "id", Reason: "task id already exists"}
		}
		return change{
			Transitions: []state.Transition{state.AddTask{Task: t}},
			Event:       "task.created",
			EntityKind:  "task",
			EntityID:    t.ID,
			Payload:     events.EventPayload{"title": t.Title},
		}, nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, slot, id string) error {
	_, err := e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		if _, ok := s.GameState.FindTask(id); !ok {
			return change{}, fmt.Errorf("task %s: %w", id, repo.ErrNotFound)
		}
		return change{
			Transitions: []state.Transition{state.DeleteTask{ID: id}},
			Event:       "task.deleted",
			EntityKind:  "task",
			EntityID:    id,
		}, nil
	})
	return err
}

// AddAutomator registers a generator. It first runs on the next day unless NextRunDay
// says otherwise.
func (e Engine) AddAutomator(ctx context.Context, slot string, a domain.Automator) (domain.Automator, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return domain.Automator{}, domain.ValidationError{Field: "name", Reason: "required"}
	}
	if !a.Type.Valid() {
		return domain.Automator{}, domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown automator type %q", a.Type)}
	}
	if a.IntervalDays < 1 {
		return domain.Automator{}, domain.ValidationError{Field: "intervalDays", Reason: "must be at least 1"}
	}
	c := a.Config
	if c.Amount < 1 {
		return domain.Automator{}, domain.ValidationError{Field: "config.amount", Reason: "must be at least 1"}
	}
	if c.AmountMax != 0 && c.AmountMax < c.Amount {
		return domain.Automator{}, domain.ValidationError{Field: "config.amountMax", Reason: "must not be below amount"}
	}
	if c.DifficultyMax != 0 && c.DifficultyMax < c.DifficultyMin {
		return domain.Automator{}, domain.ValidationError{Field: "config.difficultyMax", Reason: "must not be below difficultyMin"}
	}
	if c.RequiredIdentity != "" && !c.RequiredIdentity.Valid() {
		return domain.Automator{}, domain.ValidationError{Field: "config.requiredIdentity", Reason: fmt.Sprintf("unknown identity %q", c.RequiredIdentity)}
	}
	if a.StartDay != nil && a.EndDay != nil && *a.EndDay != domain.EndDayUnbounded && *a.EndDay < *a.StartDay {
		return domain.Automator{}, domain.ValidationError{Field: "endDay", Reason: "must not be before startDay"}
	}
	if a.ID == "" {
		a.ID = newID()
	}
	_, err := e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		if a.NextRunDay <= s.GameState.Day {
			a.NextRunDay = s.GameState.Day + 1
		}
		return change{
			Transitions: []state.Transition{state.AddAutomator{Automator: a}},
			Event:       "automator.created",
			EntityKind:  "automator",
			EntityID:    a.ID,
			Payload:     events.EventPayload{"type": a.Type, "interval_days": a.IntervalDays},
		}, nil
	})
	if err != nil {
		return domain.Automator{}, err
	}
	return a, nil
}

func findAutomator(g domain.GameState, id string) bool {
	for _, a := range g.Automators {
		if a.ID == id {
			return true
		}
	}
	return false
}

func (e Engine) SetAutomatorActive(ctx context.Context, slot, id string, active bool) error {
	_, err := e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		if !findAutomator(s.GameState, id) {
			return change{}, fmt.Errorf("automator %s: %w", id, repo.ErrNotFound)
		}
		return change{
			Transitions: []state.Transition{state.SetAutomatorActive{ID: id, Active: active}},
			Event:       "automator.toggled",
			EntityKind:  "automator",
			EntityID:    id,
			Payload:     events.EventPayload{"active": active},
		}, nil
	})
	return err
}

func (e Engine) DeleteAutomator(ctx context.Context, slot, id string) error {
	_, err := e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		if !findAutomator(s.GameState, id) {
			return change{}, fmt.Errorf("automator %s: %w", id, repo.ErrNotFound)
		}
		return change{
			Transitions: []state.Transition{state.DeleteAutomator{ID: id}},
			Event:       "automator.deleted",
			EntityKind:  "automator",
			EntityID:    id,
		}, nil
	})
	return err
}

// AddCalendarEvent schedules a dated event or arms a condition-triggered one.
func (e Engine) AddCalendarEvent(ctx context.Context, slot string, ev domain.CalendarEvent) (domain.CalendarEvent, error) {
	ev.Title = strings.TrimSpace(ev.Title)
	if ev.Title == "" {
		return domain.CalendarEvent{}, domain.ValidationError{Field: "title", Reason: "required"}
	}
	if ev.Type == "" {
		ev.Type = domain.TaskEvent
	}
	if !ev.Type.Valid() {
		return domain.CalendarEvent{}, domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown type %q", ev.Type)}
	}
	if ev.ConditionTriggered {
		if len(ev.Trigger) == 0 {
			return domain.CalendarEvent{}, domain.ValidationError{Field: "trigger", Reason: "condition-triggered events need at least one trigger"}
		}
		ev.Day = nil
	} else if ev.Day == nil {
		return domain.CalendarEvent{}, domain.ValidationError{Field: "day", Reason: "required unless the event is condition-triggered"}
	}
	if err := validateConditions("trigger", ev.Trigger); err != nil {
		return domain.CalendarEvent{}, err
	}
	if err := validateConditions("reset", ev.Reset); err != nil {
		return domain.CalendarEvent{}, err
	}
	if ev.ID == "" {
		ev.ID = newID()
	}
	ev.Active = true
	_, err := e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		if ev.Day != nil && *ev.Day <= s.GameState.Day {
			return change{}, domain.ValidationError{Field: "day", Reason: fmt.Sprintf("must be after day %d", s.GameState.Day)}
		}
		if ev.LinkedTaskID != "" {
			if _, ok := s.GameState.FindTask(ev.LinkedTaskID); !ok {
				return change{}, fmt.Errorf("linked task %s: %w", ev.LinkedTaskID, repo.ErrNotFound)
			}
		}
		return change{
			Transitions: []state.Transition{state.AddCalendarEvent{Event: ev}},
			Event:       "event.scheduled",
			EntityKind:  "calendar_event",
			EntityID:    ev.ID,
			Payload:     events.EventPayload{"title": ev.Title},
		}, nil
	})
	if err != nil {
		return domain.CalendarEvent{}, err
	}
	return ev, nil
}

func (e Engine) DeleteCalendarEvent(ctx context.Context, slot, id string) error {
	_, err := e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		found := false
		for _, ev := range s.GameState.CalendarEvents {
			found = found || ev.ID == id
		}
		if !found {
			return change{}, fmt.Errorf("calendar event %s: %w", id, repo.ErrNotFound)
		}
		return change{
			Transitions: []state.Transition{state.DeleteCalendarEvent{ID: id}},
			Event:       "event.deleted",
			EntityKind:  "calendar_event",
			EntityID:    id,
		}, nil
	})
	return err
}

// Suggest queues a player prompt for the next task automator run.
func (e Engine) Suggest(ctx context.Context, slot, prompt string) (domain.Suggestion, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return domain.Suggestion{}, domain.ValidationError{Field: "prompt", Reason: "required"}
	}
	sg := domain.Suggestion{ID: newID(), Prompt: prompt}
	_, err := e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		sg.CreatedDay = s.GameState.Day
		return change{
			Transitions: []state.Transition{state.AddSuggestion{Suggestion: sg}},
			Event:       "suggestion.added",
			EntityKind:  "suggestion",
			EntityID:    sg.ID,
		}, nil
	})
	if err != nil {
		return domain.Suggestion{}, err
	}
	return sg, nil
}

// Settings is a partial update of the per-save pacing knobs.
type Settings struct {
	Daily *domain.DailyConfig  `json:"dailyConfig,omitempty"`
	News  *domain.NewsSettings `json:"newsSettings,omitempty"`
	Model *string              `json:"model,omitempty"`
}

func (e Engine) UpdateSettings(ctx context.Context, slot string, set Settings) (domain.SaveFile, error) {
	if d := set.Daily; d != nil {
		if d.TasksAvailablePerDay < 1 {
			return domain.SaveFile{}, domain.ValidationError{Field: "dailyConfig.tasksAvailablePerDay", Reason: "must be at least 1"}
		}
		if d.EffortLimit < 1 {
			return domain.SaveFile{}, domain.ValidationError{Field: "dailyConfig.effortLimit", Reason: "must be at least 1"}
		}
	}
	if n := set.News; n != nil {
		if n.MinFrequencyDays < 1 || n.MaxFrequencyDays < n.MinFrequencyDays {
			return domain.SaveFile{}, domain.ValidationError{Field: "newsSettings", Reason: "need 1 <= minFrequencyDays <= maxFrequencyDays"}
		}
		if n.RetentionLength < 1 {
			return domain.SaveFile{}, domain.ValidationError{Field: "newsSettings.retentionLength", Reason: "must be at least 1"}
		}
	}
	return e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		return change{
			Transitions: []state.Transition{state.UpdateSettings{Daily: set.Daily, News: set.News, Model: set.Model}},
			Event:       "settings.updated",
			EntityKind:  "save",
			EntityID:    slot,
		}, nil
	})
}
