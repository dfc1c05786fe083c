package rules

import (
	"math"

	"capeline/internal/domain"
)

// EffectiveStats adds the bonuses of every equipped item to the base stats.
// Equipped ids missing from the catalog contribute nothing.
func EffectiveStats(p domain.Player, catalog []domain.Item) domain.Stats {
	stats := p.Stats
	for _, slot := range domain.Slots {
		id := p.Equipment[slot]
		if id == "" {
			continue
		}
		for _, it := range catalog {
			if it.ID != id {
				continue
			}
			for name, bonus := range it.StatBonuses {
				stats = stats.Add(name, bonus)
			}
			break
		}
	}
	return stats
}

// TrainingActivity describes one training option. Key is a stat name or a power id.
type TrainingActivity struct {
	Key         string
	Power       bool
	AttributeXP int
	PowerXP     int
}

// TrainingXP is the base XP for the activity plus every owned upgrade modifier keyed on
// the trained stat or power. Modifiers add without a cap.
func TrainingXP(a TrainingActivity, upgrades []domain.BaseUpgrade) int {
	xp := a.AttributeXP
	if a.Power {
		xp = a.PowerXP
	}
	for _, u := range upgrades {
		if !u.Owned {
			continue
		}
		xp += u.TrainingModifiers[a.Key]
	}
	return xp
}

// WorkIncome is the base money of a shift plus every owned upgrade's flat bonus.
func WorkIncome(baseMoney int, upgrades []domain.BaseUpgrade) int {
	income := baseMoney
	for _, u := range upgrades {
		if u.Owned {
			income += u.WorkMoneyBonus
		}
	}
	return income
}

// StatGain converts XP into a fractional stat increase.
func StatGain(xp, xpPerPoint int) float64 {
	if xpPerPoint <= 0 {
		return 0
	}
	return float64(xp) / float64(xpPerPoint)
}

// AddPowerXP accrues XP on a power and levels it while the threshold is met.
// Level-ups stop at MaxLevel; leftover XP is kept.
func AddPowerXP(pw domain.Power, xp, xpPerLevel int) domain.Power {
	pw.XP += xp
	if xpPerLevel <= 0 {
		return pw
	}
	for pw.XP >= xpPerLevel && (pw.MaxLevel <= 0 || pw.Level < pw.MaxLevel) {
		pw.XP -= xpPerLevel
		pw.Level++
	}
	return pw
}

// ScaledDifficulty applies a scaling rule for the given day.
func ScaledDifficulty(rule domain.ScalingRule, day, fallbackMax int) int {
	d := rule.BaseDifficulty
	if rule.IntervalDays > 0 && day > rule.StartDay {
		d += ((day - rule.StartDay) / rule.IntervalDays) * rule.Step
	}
	max := rule.MaxDifficulty
	if max <= 0 {
		max = fallbackMax
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}

// ClampDifficulty forces d into [lo, hi]. A zero bound is open.
func ClampDifficulty(d, lo, hi int) int {
	if lo > 0 && d < lo {
		d = lo
	}
	if hi > 0 && d > hi {
		d = hi
	}
	return d
}

func floorStat(v float64) int {
	return int(math.Floor(v))
}
