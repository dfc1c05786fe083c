package state

import "capeline/internal/domain"

type AddTask struct{ Task domain.Task }

func (AddTask) Name() string { return "add_task" }
func (t AddTask) Apply(s *domain.SaveFile) {
	MergeTasks{Tasks: []domain.Task{t.Task}}.Apply(s)
}

// DeleteTask removes a task from the pool. The current board is left alone.
type DeleteTask struct{ ID string }

func (DeleteTask) Name() string { return "delete_task" }
func (t DeleteTask) Apply(s *domain.SaveFile) {
	out := s.GameState.TaskPool[:0]
	for _, task := range s.GameState.TaskPool {
		if task.ID != t.ID {
			out = append(out, task)
		}
	}
	s.GameState.TaskPool = out
}

type AddAutomator struct{ Automator domain.Automator }

func (AddAutomator) Name() string { return "add_automator" }
func (t AddAutomator) Apply(s *domain.SaveFile) {
	for _, a := range s.GameState.Automators {
		if a.ID == t.Automator.ID {
			return
		}
	}
	s.GameState.Automators = append(s.GameState.Automators, t.Automator)
}

type DeleteAutomator struct{ ID string }

func (DeleteAutomator) Name() string { return "delete_automator" }
func (t DeleteAutomator) Apply(s *domain.SaveFile) {
	out := s.GameState.Automators[:0]
	for _, a := range s.GameState.Automators {
		if a.ID != t.ID {
			out = append(out, a)
		}
	}
	s.GameState.Automators = out
}

type SetAutomatorActive struct {
	ID     string
	Active bool
}

func (SetAutomatorActive) Name() string { return "set_automator_active" }
func (t SetAutomatorActive) Apply(s *domain.SaveFile) {
	for i, a := range s.GameState.Automators {
		if a.ID == t.ID {
			s.GameState.Automators[i].Active = t.Active
		}
	}
}

type AddCalendarEvent struct{ Event domain.CalendarEvent }

func (AddCalendarEvent) Name() string { return "add_calendar_event" }
func (t AddCalendarEvent) Apply(s *domain.SaveFile) {
	MergeEvents{Events: []domain.CalendarEvent{t.Event}}.Apply(s)
}

type DeleteCalendarEvent struct{ ID string }

func (DeleteCalendarEvent) Name() string { return "delete_calendar_event" }
func (t DeleteCalendarEvent) Apply(s *domain.SaveFile) {
	out := s.GameState.CalendarEvents[:0]
	for _, ev := range s.GameState.CalendarEvents {
		if ev.ID != t.ID {
			out = append(out, ev)
		}
	}
	s.GameState.CalendarEvents = out
}

type AddSuggestion struct{ Suggestion domain.Suggestion }

func (AddSuggestion) Name() string { return "add_suggestion" }
func (t AddSuggestion) Apply(s *domain.SaveFile) {
	s.GameState.TaskSuggestions = append(s.GameState.TaskSuggestions, t.Suggestion)
}

// BuyUpgrade marks an upgrade owned and deducts its cost.
type BuyUpgrade struct{ ID string }

func (BuyUpgrade) Name() string { return "buy_upgrade" }
func (t BuyUpgrade) Apply(s *domain.SaveFile) {
	for i, u := range s.Player.BaseUpgrades {
		if u.ID != t.ID || u.Owned {
			continue
		}
		s.Player.BaseUpgrades[i].Owned = true
		s.Player.Resources.Money -= u.Cost
		s.Player.Resources = s.Player.Resources.Clamped()
	}
}

// UpgradePower spends skill points to raise a power one level.
type UpgradePower struct {
	ID   string
	Cost int
}

func (UpgradePower) Name() string { return "upgrade_power" }
func (t UpgradePower) Apply(s *domain.SaveFile) {
	if _, idx, ok := s.Player.Power(t.ID); ok {
		s.Player.Powers[idx].Level++
		s.Player.SkillPoints -= t.Cost
	}
}

// Equip puts an owned item into a slot, returning any previous item to the inventory.
type Equip struct {
	Slot   domain.Slot
	ItemID string
}

func (Equip) Name() string { return "equip" }
func (t Equip) Apply(s *domain.SaveFile) {
	p := &s.Player
	for i, id := range p.Inventory {
		if id != t.ItemID {
			continue
		}
		p.Inventory = append(p.Inventory[:i:i], p.Inventory[i+1:]...)
		if prev := p.Equipment[t.Slot]; prev != "" {
			p.Inventory = append(p.Inventory, prev)
		}
		p.Equipment[t.Slot] = t.ItemID
		return
	}
}

type Unequip struct{ Slot domain.Slot }

func (Unequip) Name() string { return "unequip" }
func (t Unequip) Apply(s *domain.SaveFile) {
	p := &s.Player
	if prev := p.Equipment[t.Slot]; prev != "" {
		p.Inventory = append(p.Inventory, prev)
		p.Equipment[t.Slot] = ""
	}
}

type SwitchIdentity struct{ Identity domain.Identity }

func (SwitchIdentity) Name() string { return "switch_identity" }
func (t SwitchIdentity) Apply(s *domain.SaveFile) {
	s.Player.Identity = t.Identity
}

// UpdateSettings replaces whichever settings are set.
type UpdateSettings struct {
	Daily *domain.DailyConfig
	News  *domain.NewsSettings
	Model *string
}

func (UpdateSettings) Name() string { return "update_settings" }
func (t UpdateSettings) Apply(s *domain.SaveFile) {
	if t.Daily != nil {
		s.GameState.DailyConfig = *t.Daily
	}
	if t.News != nil {
		s.GameState.NewsSettings = *t.News
	}
	if t.Model != nil {
		s.GameState.Model = *t.Model
	}
}
