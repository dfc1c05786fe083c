package engine

import (
	"context"
	"fmt"

	"capeline/internal/config"
	"capeline/internal/domain"
	"capeline/internal/events"
	"capeline/internal/repo"
	"capeline/internal/rules"
	"capeline/internal/state"
)

// trainingFor resolves an activity id from the config, or a power id of the player.
func (e Engine) trainingFor(p domain.Player, id string) (rules.TrainingActivity, error) {
	cfg := e.config()
	a, ok := cfg.TrainingActivity(id)
	if !ok {
		if _, _, isPower := p.Power(id); !isPower {
			return rules.TrainingActivity{}, fmt.Errorf("training activity %s: %w", id, repo.ErrNotFound)
		}
		a = config.TrainingActivity{ID: id, Target: id, Power: true}
	}
	act := rules.TrainingActivity{
		Key:         a.Target,
		Power:       a.Power,
		AttributeXP: cfg.Training.AttributeXP,
		PowerXP:     cfg.Training.PowerXP,
	}
	if a.BaseXP > 0 {
		act.AttributeXP = a.BaseXP
		act.PowerXP = a.BaseXP
	}
	return act, nil
}

// Train spends one downtime token on a training activity.
func (e Engine) Train(ctx context.Context, slot, activityID string) (domain.SaveFile, error) {
	return e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		if s.Player.DowntimeTokens <= 0 {
			return change{}, ErrNoDowntime
		}
		act, err := e.trainingFor(s.Player, activityID)
		if err != nil {
			return change{}, err
		}
		xp := rules.TrainingXP(act, s.Player.BaseUpgrades)
		return change{
			Transitions: []state.Transition{state.Train{Key: act.Key, XP: xp, Day: s.GameState.Day, Tuning: e.tuning()}},
			Event:       "player.trained",
			EntityKind:  "player",
			EntityID:    act.Key,
			Payload:     events.EventPayload{"activity": activityID, "xp": xp},
		}, nil
	})
}

// Work spends one downtime token on a paid activity.
func (e Engine) Work(ctx context.Context, slot, activityID string) (domain.SaveFile, error) {
	return e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		if s.Player.DowntimeTokens <= 0 {
			return change{}, ErrNoDowntime
		}
		w, ok := e.config().WorkActivity(activityID)
		if !ok {
			return change{}, fmt.Errorf("work activity %s: %w", activityID, repo.ErrNotFound)
		}
		income := rules.WorkIncome(w.BaseMoney, s.Player.BaseUpgrades)
		name := w.Name
		if name == "" {
			name = w.ID
		}
		return change{
			Transitions: []state.Transition{state.Work{Activity: name, Income: income, Day: s.GameState.Day}},
			Event:       "player.worked",
			EntityKind:  "player",
			EntityID:    w.ID,
			Payload:     events.EventPayload{"income": income},
		}, nil
	})
}

// NewsEdit overrides parts of the pending issue before it is acknowledged.
type NewsEdit struct {
	Impacts      *domain.Reward       `json:"impacts,omitempty"`
	CodexEntries *[]domain.CodexEntry `json:"codexEntries,omitempty"`
}

// AcknowledgeNews applies the pending issue, with any edits, and clears the review.
func (e Engine) AcknowledgeNews(ctx context.Context, slot string, edit NewsEdit) (domain.SaveFile, error) {
	return e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		if s.GameState.PendingNews == nil {
			return change{}, ErrNoPendingNews
		}
		issue := *s.GameState.PendingNews
		if edit.Impacts != nil {
			issue.Impacts = *edit.Impacts
		}
		if edit.CodexEntries != nil {
			entries := make([]domain.CodexEntry, 0, len(*edit.CodexEntries))
			for _, c := range *edit.CodexEntries {
				if c.ID == "" {
					c.ID = newID()
				}
				if c.CreatedDay == 0 {
					c.CreatedDay = issue.Day
				}
				entries = append(entries, c)
			}
			issue.CodexEntries = entries
		}
		return change{
			Transitions: []state.Transition{state.AcknowledgeNews{Issue: issue, Tuning: e.tuning()}},
			Event:       "news.acknowledged",
			EntityKind:  "news",
			EntityID:    issue.ID,
			Payload:     events.EventPayload{"edited": edit.Impacts != nil || edit.CodexEntries != nil},
		}, nil
	})
}

func (e Engine) BuyUpgrade(ctx context.Context, slot, upgradeID string) (domain.SaveFile, error) {
	return e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		var found *domain.BaseUpgrade
		for i := range s.Player.BaseUpgrades {
			if s.Player.BaseUpgrades[i].ID == upgradeID {
				found = &s.Player.BaseUpgrades[i]
			}
		}
		if found == nil {
			return change{}, fmt.Errorf("upgrade %s: %w", upgradeID, repo.ErrNotFound)
		}
		if found.Owned {
			return change{}, domain.ValidationError{Field: "upgrade", Reason: "already owned"}
		}
		if s.Player.Resources.Money < found.Cost {
			return change{}, ErrInsufficientFunds
		}
		return change{
			Transitions: []state.Transition{state.BuyUpgrade{ID: upgradeID}},
			Event:       "upgrade.bought",
			EntityKind:  "upgrade",
			EntityID:    upgradeID,
			Payload:     events.EventPayload{"cost": found.Cost},
		}, nil
	})
}

// UpgradePower spends skill points on one power level.
func (e Engine) UpgradePower(ctx context.Context, slot, powerID string) (domain.SaveFile, error) {
	return e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		pw, _, ok := s.Player.Power(powerID)
		if !ok {
			return change{}, fmt.Errorf("power %s: %w", powerID, repo.ErrNotFound)
		}
		if pw.MaxLevel > 0 && pw.Level >= pw.MaxLevel {
			return change{}, domain.ValidationError{Field: "power", Reason: "already at max level"}
		}
		cost := e.config().Economy.PowerUpgradeCost
		if s.Player.SkillPoints < cost {
			return change{}, domain.ValidationError{Field: "skillPoints", Reason: fmt.Sprintf("need %d skill points", cost)}
		}
		return change{
			Transitions: []state.Transition{state.UpgradePower{ID: powerID, Cost: cost}},
			Event:       "power.upgraded",
			EntityKind:  "power",
			EntityID:    powerID,
			Payload:     events.EventPayload{"level": pw.Level + 1},
		}, nil
	})
}

// Equip moves an owned item into a slot. An empty slot argument uses the item's own slot.
func (e Engine) Equip(ctx context.Context, slot, itemID string, into domain.Slot) (domain.SaveFile, error) {
	return e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		if !s.Player.Owns(itemID) {
			return change{}, fmt.Errorf("item %s in inventory: %w", itemID, repo.ErrNotFound)
		}
		if it, ok := s.GameState.FindItem(itemID); ok && into == "" {
			into = it.Slot
		}
		if !into.Valid() {
			return change{}, domain.ValidationError{Field: "slot", Reason: fmt.Sprintf("unknown slot %q", into)}
		}
		return change{
			Transitions: []state.Transition{state.Equip{Slot: into, ItemID: itemID}},
			Event:       "item.equipped",
			EntityKind:  "item",
			EntityID:    itemID,
			Payload:     events.EventPayload{"slot": into},
		}, nil
	})
}

func (e Engine) Unequip(ctx context.Context, slot string, from domain.Slot) (domain.SaveFile, error) {
	return e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		if !from.Valid() {
			return change{}, domain.ValidationError{Field: "slot", Reason: fmt.Sprintf("unknown slot %q", from)}
		}
		return change{
			Transitions: []state.Transition{state.Unequip{Slot: from}},
			Event:       "item.unequipped",
			EntityKind:  "item",
			EntityID:    s.Player.Equipment[from],
			Payload:     events.EventPayload{"slot": from},
		}, nil
	})
}

func (e Engine) SwitchIdentity(ctx context.Context, slot string, id domain.Identity) (domain.SaveFile, error) {
	return e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		if !id.Valid() {
			return change{}, domain.ValidationError{Field: "identity", Reason: fmt.Sprintf("unknown identity %q", id)}
		}
		return change{
			Transitions: []state.Transition{state.SwitchIdentity{Identity: id}},
			Event:       "identity.switched",
			EntityKind:  "player",
			EntityID:    string(id),
		}, nil
	})
}
