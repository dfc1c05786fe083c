package rules_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capeline/internal/domain"
	"capeline/internal/rules"
)

func fixture() (domain.Player, domain.GameState) {
	s := domain.NewSave(domain.NewGameOptions{CivilianName: "Dana", SuperName: "Nightjar", StartingMoney: 120, DowntimeTokens: 2})
	s.Player.Stats.Strength = 4.5
	s.Player.Inventory = []string{"goggles"}
	s.Player.Equipment[domain.SlotBody] = "armor"
	s.Player.BaseUpgrades = []domain.BaseUpgrade{
		{ID: "gym", Owned: true, TrainingModifiers: map[string]int{"strength": 5}, WorkMoneyBonus: 10},
		{ID: "lab", Owned: false, TrainingModifiers: map[string]int{"strength": 50}, WorkMoneyBonus: 100},
		{ID: "dojo", Owned: true, TrainingModifiers: map[string]int{"strength": 3, "agility": 9}},
	}
	s.GameState.Day = 6
	s.GameState.Items = []domain.Item{
		{ID: "armor", Slot: domain.SlotBody, StatBonuses: map[string]float64{"strength": 2, "agility": -0.5}, Tags: []string{"heavy"}},
		{ID: "goggles", Slot: domain.SlotHead, Tags: []string{"tech"}},
	}
	done := 3
	s.GameState.TaskPool = []domain.Task{{ID: "t1", CompletedDay: &done, CompletionCount: 2}, {ID: "t2"}}
	s.GameState.Automators = []domain.Automator{{ID: "auto-1", Active: true}}
	return s.Player, s.GameState
}

func TestEvaluateEmptyIsTrue(t *testing.T) {
	p, g := fixture()
	assert.True(t, rules.Evaluate(nil, p, g))
	assert.True(t, rules.Evaluate([]domain.Condition{}, p, g))
}

func TestEvaluateIsConjunction(t *testing.T) {
	p, g := fixture()
	pass := domain.Condition{Kind: domain.CondDay, Operator: domain.OpGTE, Value: 6}
	fail := domain.Condition{Kind: domain.CondMask, Operator: domain.OpLT, Value: 10}
	assert.True(t, rules.Evaluate([]domain.Condition{pass, pass}, p, g))
	assert.False(t, rules.Evaluate([]domain.Condition{pass, fail}, p, g))
	assert.False(t, rules.Evaluate([]domain.Condition{fail, pass}, p, g))
	assert.Equal(t, []domain.Condition{fail}, rules.Failing([]domain.Condition{pass, fail}, p, g))
}

func TestCheckKinds(t *testing.T) {
	p, g := fixture()
	cases := []struct {
		name string
		cond domain.Condition
		want bool
	}{
		{"effective strength", domain.Condition{Kind: domain.CondStat, Key: "strength", Operator: domain.OpGT, Value: 6}, true},
		{"unknown stat", domain.Condition{Kind: domain.CondStat, Key: "luck", Operator: domain.OpGT, Value: 0}, false},
		{"money", domain.Condition{Kind: domain.CondResource, Key: "money", Operator: domain.OpEQ, Value: 120}, true},
		{"skill points", domain.Condition{Kind: domain.CondResource, Key: "skillPoints", Operator: domain.OpLT, Value: 1}, true},
		{"owned item", domain.Condition{Kind: domain.CondItem, Key: "goggles", Operator: domain.OpHas}, true},
		{"equipped item", domain.Condition{Kind: domain.CondItem, Key: "armor", Operator: domain.OpHas}, true},
		{"missing item", domain.Condition{Kind: domain.CondItem, Key: "cape", Operator: domain.OpNotHas}, true},
		{"unowned upgrade", domain.Condition{Kind: domain.CondUpgrade, Key: "lab", Operator: domain.OpHas}, false},
		{"tag", domain.Condition{Kind: domain.CondTag, Key: "TECH", Operator: domain.OpHas}, true},
		{"task count", domain.Condition{Kind: domain.CondTaskCount, Key: "t1", Operator: domain.OpGTE, Value: 2}, true},
		{"task count unknown", domain.Condition{Kind: domain.CondTaskCount, Key: "nope", Operator: domain.OpEQ, Value: 0}, true},
		{"task done", domain.Condition{Kind: domain.CondTaskCompleted, Key: "t1", Operator: domain.OpHas}, true},
		{"task not done", domain.Condition{Kind: domain.CondTaskCompleted, Key: "t2", Operator: domain.OpHas}, false},
		{"mask", domain.Condition{Kind: domain.CondMask, Operator: domain.OpEQ, Value: 100}, true},
		{"civilian active", domain.Condition{Kind: domain.CondActive, Key: "CIVILIAN", Operator: domain.OpHas}, true},
		{"automator active", domain.Condition{Kind: domain.CondActive, Key: "auto-1", Operator: domain.OpHas}, true},
		{"news inactive", domain.Condition{Kind: domain.CondActive, Key: "NEWS", Operator: domain.OpNotHas}, true},
		{"bad kind", domain.Condition{Kind: "WEATHER", Operator: domain.OpHas}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, rules.Check(tc.cond, p, g))
		})
	}
}

func TestWithLocksDoesNotMutateInput(t *testing.T) {
	p, g := fixture()
	tasks := []domain.Task{{ID: "a", Conditions: []domain.Condition{{Kind: domain.CondDay, Operator: domain.OpGT, Value: 10}}}, {ID: "b"}}
	out := rules.WithLocks(tasks, p, g)
	assert.True(t, out[0].Locked)
	assert.False(t, out[1].Locked)
	assert.False(t, tasks[0].Locked)
}

func TestEffectiveStats(t *testing.T) {
	p, g := fixture()
	s := rules.EffectiveStats(p, g.Items)
	assert.InDelta(t, 6.5, s.Strength, 1e-9)
	assert.InDelta(t, 0.5, s.Agility, 1e-9)
	assert.InDelta(t, 4.5, p.Stats.Strength, 1e-9)
}

func TestTrainingXPAddsOwnedModifiers(t *testing.T) {
	p, _ := fixture()
	xp := rules.TrainingXP(rules.TrainingActivity{Key: "strength", AttributeXP: 20, PowerXP: 40}, p.BaseUpgrades)
	assert.Equal(t, 28, xp)
	xp = rules.TrainingXP(rules.TrainingActivity{Key: "flight", Power: true, AttributeXP: 20, PowerXP: 40}, p.BaseUpgrades)
	assert.Equal(t, 40, xp)
}

func TestWorkIncome(t *testing.T) {
	p, _ := fixture()
	assert.Equal(t, 60, rules.WorkIncome(50, p.BaseUpgrades))
	assert.Equal(t, 50, rules.WorkIncome(50, nil))
}

func TestAddPowerXP(t *testing.T) {
	pw := rules.AddPowerXP(domain.Power{Level: 1, MaxLevel: 3, XP: 80}, 250, 100)
	assert.Equal(t, 3, pw.Level)
	assert.Equal(t, 130, pw.XP)
}

func TestScaledDifficulty(t *testing.T) {
	rule := domain.ScalingRule{BaseDifficulty: 2, StartDay: 1, IntervalDays: 3, Step: 1, MaxDifficulty: 4}
	assert.Equal(t, 2, rules.ScaledDifficulty(rule, 1, 10))
	assert.Equal(t, 2, rules.ScaledDifficulty(rule, 3, 10))
	assert.Equal(t, 3, rules.ScaledDifficulty(rule, 4, 10))
	assert.Equal(t, 4, rules.ScaledDifficulty(rule, 30, 10))
	rule.MaxDifficulty = 0
	assert.Equal(t, 10, rules.ScaledDifficulty(rule, 100, 10))
}

func TestClampDifficulty(t *testing.T) {
	assert.Equal(t, 4, rules.ClampDifficulty(9, 2, 4))
	assert.Equal(t, 2, rules.ClampDifficulty(1, 2, 4))
	assert.Equal(t, 9, rules.ClampDifficulty(9, 0, 0))
}

type fixedRoll int

func (f fixedRoll) Intn(int) int { return int(f) - 1 }

func TestSkillCheck(t *testing.T) {
	cfg := rules.CheckConfig{BaseTarget: 8, DifficultyStep: 2, DieSides: 20}
	assert.Equal(t, 14, cfg.Target(3))
	assert.Equal(t, domain.CriticalFailure, rules.SkillCheck(fixedRoll(1), cfg, 50, 1).Level)
	assert.Equal(t, domain.CompleteSuccess, rules.SkillCheck(fixedRoll(20), cfg, 0, 10).Level)
	res := rules.SkillCheck(fixedRoll(10), cfg, 4.9, 3)
	assert.Equal(t, 0, res.Margin)
	assert.Equal(t, domain.PartialSuccess, res.Level)

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		res := rules.SkillCheck(r, cfg, 3, 2)
		require.GreaterOrEqual(t, res.Roll, 1)
		require.LessOrEqual(t, res.Roll, 20)
	}
}
