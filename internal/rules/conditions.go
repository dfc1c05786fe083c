// Package rules holds the pure game rules: lock conditions, derived stats and
// the training, work and skill-check calculators. Nothing here mutates its inputs.
package rules

import (
	"strings"

	"capeline/internal/domain"
)

// Evaluate reports whether every condition holds. An empty list is satisfied.
func Evaluate(conds []domain.Condition, p domain.Player, g domain.GameState) bool {
	for _, c := range conds {
		if !Check(c, p, g) {
			return false
		}
	}
	return true
}

// Failing returns the conditions that do not hold, in input order.
func Failing(conds []domain.Condition, p domain.Player, g domain.GameState) []domain.Condition {
	var out []domain.Condition
	for _, c := range conds {
		if !Check(c, p, g) {
			out = append(out, c)
		}
	}
	return out
}

// Check evaluates a single condition. Unknown kinds and keys never hold.
func Check(c domain.Condition, p domain.Player, g domain.GameState) bool {
	switch c.Kind {
	case domain.CondStat:
		v, ok := EffectiveStats(p, g.Items).Get(c.Key)
		return ok && compare(v, c.Operator, c.Value)
	case domain.CondResource:
		v, ok := resourceValue(p, c.Key)
		return ok && compare(v, c.Operator, c.Value)
	case domain.CondMask:
		return compare(float64(p.Resources.Mask), c.Operator, c.Value)
	case domain.CondDay:
		return compare(float64(g.Day), c.Operator, c.Value)
	case domain.CondItem:
		return presence(hasItem(p, c.Key), c.Operator)
	case domain.CondUpgrade:
		return presence(p.OwnsUpgrade(c.Key), c.Operator)
	case domain.CondTag:
		return presence(hasTag(p, g.Items, c.Key), c.Operator)
	case domain.CondTaskCount:
		t, ok := g.FindTask(c.Key)
		if !ok {
			return compare(0, c.Operator, c.Value)
		}
		return compare(float64(t.CompletionCount), c.Operator, c.Value)
	case domain.CondTaskCompleted:
		t, ok := g.FindTask(c.Key)
		done := ok && (t.CompletedDay != nil || t.CompletionCount > 0)
		return presence(done, c.Operator)
	case domain.CondActive:
		return presence(activeFlag(c.Key, p, g), c.Operator)
	}
	return false
}

func compare(v float64, op domain.Operator, target float64) bool {
	switch op {
	case domain.OpGT:
		return v > target
	case domain.OpGTE:
		return v >= target
	case domain.OpLT:
		return v < target
	case domain.OpLTE:
		return v <= target
	case domain.OpEQ:
		return v == target
	}
	return false
}

func presence(has bool, op domain.Operator) bool {
	switch op {
	case domain.OpHas:
		return has
	case domain.OpNotHas:
		return !has
	}
	return false
}

func resourceValue(p domain.Player, key string) (float64, bool) {
	if v, ok := p.Resources.Get(key); ok {
		return v, true
	}
	switch strings.ToLower(key) {
	case "skillpoints", "skill_points":
		return float64(p.SkillPoints), true
	case "downtimetokens", "downtime_tokens", "downtime":
		return float64(p.DowntimeTokens), true
	}
	return 0, false
}

func hasItem(p domain.Player, id string) bool {
	if p.Owns(id) {
		return true
	}
	for _, equipped := range p.Equipment {
		if equipped == id {
			return true
		}
	}
	return false
}

func hasTag(p domain.Player, catalog []domain.Item, tag string) bool {
	owned := make(map[string]struct{}, len(p.Inventory))
	for _, id := range p.Inventory {
		owned[id] = struct{}{}
	}
	for _, id := range p.Equipment {
		if id != "" {
			owned[id] = struct{}{}
		}
	}
	for _, it := range catalog {
		if _, ok := owned[it.ID]; !ok {
			continue
		}
		for _, t := range it.Tags {
			if strings.EqualFold(t, tag) {
				return true
			}
		}
	}
	return false
}

// activeFlag resolves ACTIVE keys: an identity name, "NEWS" for a running news issue,
// or the id of an automator or calendar event.
func activeFlag(key string, p domain.Player, g domain.GameState) bool {
	switch strings.ToUpper(key) {
	case string(domain.IdentitySuper), string(domain.IdentityCivilian):
		return strings.EqualFold(string(p.Identity), key)
	case "NEWS":
		return g.ActiveNews != nil
	}
	for _, a := range g.Automators {
		if a.ID == key {
			return a.Active
		}
	}
	for _, ev := range g.CalendarEvents {
		if ev.ID == key {
			return ev.Active
		}
	}
	return false
}

// WithLocks returns copies of tasks with Locked derived from their conditions.
func WithLocks(tasks []domain.Task, p domain.Player, g domain.GameState) []domain.Task {
	out := make([]domain.Task, len(tasks))
	for i, t := range tasks {
		t.Locked = !Evaluate(t.Conditions, p, g)
		out[i] = t
	}
	return out
}

// UnlockedSecrets lists the secrets of an entry whose conditions currently hold.
func UnlockedSecrets(entry domain.CodexEntry, p domain.Player, g domain.GameState) []domain.Secret {
	var out []domain.Secret
	for _, s := range entry.Secrets {
		if Evaluate(s.Conditions, p, g) {
			out = append(out, s)
		}
	}
	return out
}
