package state

import (
	"capeline/internal/domain"
)

// ChargeRent subtracts rent from money, never below zero.
type ChargeRent struct{ Amount int }

func (ChargeRent) Name() string { return "charge_rent" }
func (t ChargeRent) Apply(s *domain.SaveFile) {
	if t.Amount == 0 {
		return
	}
	s.Player.Resources.Money -= t.Amount
	s.Player.Resources = s.Player.Resources.Clamped()
}

// ResetDowntime refills the daily action budget.
type ResetDowntime struct{ Tokens int }

func (ResetDowntime) Name() string { return "reset_downtime" }
func (t ResetDowntime) Apply(s *domain.SaveFile) {
	s.Player.DowntimeTokens = t.Tokens
}

// ResetEffort clears the missions-resolved counter.
type ResetEffort struct{}

func (ResetEffort) Name() string { return "reset_effort" }
func (ResetEffort) Apply(s *domain.SaveFile) {
	s.GameState.EffortUsed = 0
}

// AppendUpgrades adds generated upgrades to the catalog as unowned. Known ids are skipped.
type AppendUpgrades struct{ Upgrades []domain.BaseUpgrade }

func (AppendUpgrades) Name() string { return "append_upgrades" }
func (t AppendUpgrades) Apply(s *domain.SaveFile) {
	seen := make(map[string]struct{}, len(s.Player.BaseUpgrades))
	for _, u := range s.Player.BaseUpgrades {
		seen[u.ID] = struct{}{}
	}
	for _, u := range t.Upgrades {
		if _, ok := seen[u.ID]; ok {
			continue
		}
		u.Owned = false
		s.Player.BaseUpgrades = append(s.Player.BaseUpgrades, u)
		seen[u.ID] = struct{}{}
	}
}

// MergeTasks appends tasks to the master pool. Known ids are skipped.
type MergeTasks struct{ Tasks []domain.Task }

func (MergeTasks) Name() string { return "merge_tasks" }
func (t MergeTasks) Apply(s *domain.SaveFile) {
	seen := make(map[string]struct{}, len(s.GameState.TaskPool))
	for _, task := range s.GameState.TaskPool {
		seen[task.ID] = struct{}{}
	}
	for _, task := range t.Tasks {
		if _, ok := seen[task.ID]; ok {
			continue
		}
		s.GameState.TaskPool = append(s.GameState.TaskPool, task)
		seen[task.ID] = struct{}{}
	}
}

// MergeItems appends items to the catalog. Known ids are skipped.
type MergeItems struct{ Items []domain.Item }

func (MergeItems) Name() string { return "merge_items" }
func (t MergeItems) Apply(s *domain.SaveFile) {
	seen := make(map[string]struct{}, len(s.GameState.Items))
	for _, it := range s.GameState.Items {
		seen[it.ID] = struct{}{}
	}
	for _, it := range t.Items {
		if _, ok := seen[it.ID]; ok {
			continue
		}
		s.GameState.Items = append(s.GameState.Items, it)
		seen[it.ID] = struct{}{}
	}
}

// MergeEvents appends calendar events. Known ids are skipped.
type MergeEvents struct{ Events []domain.CalendarEvent }

func (MergeEvents) Name() string { return "merge_events" }
func (t MergeEvents) Apply(s *domain.SaveFile) {
	seen := make(map[string]struct{}, len(s.GameState.CalendarEvents))
	for _, ev := range s.GameState.CalendarEvents {
		seen[ev.ID] = struct{}{}
	}
	for _, ev := range t.Events {
		if _, ok := seen[ev.ID]; ok {
			continue
		}
		s.GameState.CalendarEvents = append(s.GameState.CalendarEvents, ev)
		seen[ev.ID] = struct{}{}
	}
}

// MergeCodex appends codex entries. Known ids are skipped.
type MergeCodex struct{ Entries []domain.CodexEntry }

func (MergeCodex) Name() string { return "merge_codex" }
func (t MergeCodex) Apply(s *domain.SaveFile) {
	seen := make(map[string]struct{}, len(s.GameState.Codex))
	for _, e := range s.GameState.Codex {
		seen[e.ID] = struct{}{}
	}
	for _, e := range t.Entries {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		s.GameState.Codex = append(s.GameState.Codex, e)
		seen[e.ID] = struct{}{}
	}
}

// ReplaceActiveTasks swaps in the day's board wholesale.
type ReplaceActiveTasks struct{ Tasks []domain.Task }

func (ReplaceActiveTasks) Name() string { return "replace_active_tasks" }
func (t ReplaceActiveTasks) Apply(s *domain.SaveFile) {
	board := make([]domain.Task, len(t.Tasks))
	copy(board, t.Tasks)
	s.GameState.ActiveTasks = board
}

// SetDay moves the calendar forward. Earlier days are ignored.
type SetDay struct{ Day int }

func (SetDay) Name() string { return "set_day" }
func (t SetDay) Apply(s *domain.SaveFile) {
	if t.Day > s.GameState.Day {
		s.GameState.Day = t.Day
	}
}

// ArchiveSuggestions moves consumed suggestions from pending to archived.
type ArchiveSuggestions struct {
	IDs []string
	Day int
}

func (ArchiveSuggestions) Name() string { return "archive_suggestions" }
func (t ArchiveSuggestions) Apply(s *domain.SaveFile) {
	if len(t.IDs) == 0 {
		return
	}
	used := make(map[string]struct{}, len(t.IDs))
	for _, id := range t.IDs {
		used[id] = struct{}{}
	}
	pending := make([]domain.Suggestion, 0, len(s.GameState.TaskSuggestions))
	for _, sg := range s.GameState.TaskSuggestions {
		if _, ok := used[sg.ID]; !ok {
			pending = append(pending, sg)
			continue
		}
		sg.ConsumedDay = t.Day
		s.GameState.ArchivedSuggestions = append(s.GameState.ArchivedSuggestions, sg)
	}
	s.GameState.TaskSuggestions = pending
}

// PublishNews prepends an issue to the history, truncates it to the retention length and
// makes the issue both active and pending review.
type PublishNews struct {
	Issue     domain.NewsIssue
	Retention int
}

func (PublishNews) Name() string { return "publish_news" }
func (t PublishNews) Apply(s *domain.SaveFile) {
	g := &s.GameState
	history := append([]domain.NewsIssue{t.Issue}, g.NewsHistory...)
	keep := t.Retention
	if keep <= 0 {
		keep = g.NewsSettings.RetentionLength
	}
	if keep > 0 && len(history) > keep {
		history = history[:keep]
	}
	g.NewsHistory = history
	active := t.Issue
	pending := t.Issue
	g.ActiveNews = &active
	g.PendingNews = &pending
	g.LastNewsDay = t.Issue.Day
}

// RescheduleAutomators sets nextRunDay for the automators that ran.
type RescheduleAutomators struct{ NextRun map[string]int }

func (RescheduleAutomators) Name() string { return "reschedule_automators" }
func (t RescheduleAutomators) Apply(s *domain.SaveFile) {
	for i, a := range s.GameState.Automators {
		if next, ok := t.NextRun[a.ID]; ok {
			s.GameState.Automators[i].NextRunDay = next
		}
	}
}

// CycleEvents disarms condition-triggered events that fired and re-arms the listed ones.
type CycleEvents struct {
	Fired []string
	Rearm []string
}

func (CycleEvents) Name() string { return "cycle_events" }
func (t CycleEvents) Apply(s *domain.SaveFile) {
	fired := toSet(t.Fired)
	rearm := toSet(t.Rearm)
	for i, ev := range s.GameState.CalendarEvents {
		if !ev.ConditionTriggered {
			continue
		}
		if _, ok := fired[ev.ID]; ok {
			s.GameState.CalendarEvents[i].Active = false
			continue
		}
		if _, ok := rearm[ev.ID]; ok {
			s.GameState.CalendarEvents[i].Active = true
		}
	}
}

// AppendTimeline adds narrative log entries.
type AppendTimeline struct{ Entries []domain.TimelineEntry }

func (AppendTimeline) Name() string { return "append_timeline" }
func (t AppendTimeline) Apply(s *domain.SaveFile) {
	s.GameState.Timeline = append(s.GameState.Timeline, t.Entries...)
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
