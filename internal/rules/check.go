package rules

import "capeline/internal/domain"

// Roller is the slice of *rand.Rand a skill check needs.
type Roller interface {
	Intn(n int) int
}

type CheckConfig struct {
	BaseTarget     int
	DifficultyStep int
	DieSides       int
}

// CheckResult records one dice roll against a target.
type CheckResult struct {
	Roll   int                 `json:"roll"`
	Bonus  int                 `json:"bonus"`
	Target int                 `json:"target"`
	Margin int                 `json:"margin"`
	Level  domain.SuccessLevel `json:"level"`
}

// Target derives the number a roll must reach for a task difficulty.
func (c CheckConfig) Target(difficulty int) int {
	return c.BaseTarget + difficulty*c.DifficultyStep
}

// SkillCheck rolls one die plus the whole part of the stat against the difficulty target.
// A natural one is always a critical failure and a natural maximum a complete success.
func SkillCheck(r Roller, c CheckConfig, stat float64, difficulty int) CheckResult {
	sides := c.DieSides
	if sides < 2 {
		sides = 20
	}
	roll := r.Intn(sides) + 1
	bonus := floorStat(stat)
	target := c.Target(difficulty)
	res := CheckResult{Roll: roll, Bonus: bonus, Target: target, Margin: roll + bonus - target}
	switch {
	case roll == 1:
		res.Level = domain.CriticalFailure
	case roll == sides:
		res.Level = domain.CompleteSuccess
	default:
		res.Level = levelForMargin(res.Margin)
	}
	return res
}

func levelForMargin(m int) domain.SuccessLevel {
	switch {
	case m <= -8:
		return domain.CriticalFailure
	case m <= -3:
		return domain.Failure
	case m < 0:
		return domain.PartialFailure
	case m < 3:
		return domain.PartialSuccess
	case m < 8:
		return domain.Success
	}
	return domain.CompleteSuccess
}
