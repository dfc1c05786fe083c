package engine

import (
	"context"
	"fmt"
	"strings"

	"capeline/internal/domain"
	"capeline/internal/events"
	"capeline/internal/repo"
	"capeline/internal/rules"
	"capeline/internal/state"
)

// Resolution is the result of playing a task. A structured walk that has not reached a
// terminal option returns the node to choose from next and commits nothing.
type Resolution struct {
	Outcome *domain.Outcome      `json:"outcome,omitempty"`
	Check   *rules.CheckResult   `json:"check,omitempty"`
	Node    *domain.ScenarioNode `json:"node,omitempty"`
	Options []OptionView         `json:"options,omitempty"`
	Save    *domain.SaveFile     `json:"-"`
}

// OptionView is a scenario option with its availability for the current player.
type OptionView struct {
	Index     int    `json:"index"`
	Label     string `json:"label"`
	Available bool   `json:"available"`
}

// playable enforces authority at the edge: the task must be on today's board, unlocked
// under the current state, match the active identity, not be done today and fit the
// remaining effort.
func playable(s domain.SaveFile, taskID string) (domain.Task, error) {
	g := s.GameState
	t, ok := g.FindActiveTask(taskID)
	if !ok {
		return domain.Task{}, fmt.Errorf("task %s on today's board: %w", taskID, repo.ErrNotFound)
	}
	if failing := rules.Failing(t.Conditions, s.Player, g); len(failing) > 0 {
		parts := make([]string, len(failing))
		for i, c := range failing {
			parts[i] = c.String()
		}
		return domain.Task{}, fmt.Errorf("%w: %s", ErrTaskLocked, strings.Join(parts, ", "))
	}
	if t.RequiredIdentity.Valid() && t.RequiredIdentity != s.Player.Identity {
		return domain.Task{}, fmt.Errorf("%w: switch to %s", ErrIdentityMismatch, t.RequiredIdentity)
	}
	if t.CompletedDay != nil && *t.CompletedDay >= g.Day {
		return domain.Task{}, ErrAlreadyCompleted
	}
	if g.DailyConfig.EffortLimit > 0 && g.EffortUsed >= g.DailyConfig.EffortLimit {
		return domain.Task{}, ErrEffortExhausted
	}
	return t, nil
}

// defaultCheckStat is the stat a skill check uses when the caller names none.
func defaultCheckStat(t domain.TaskType) string {
	switch t {
	case domain.TaskMission:
		return domain.StatAgility
	case domain.TaskWork:
		return domain.StatIntellect
	case domain.TaskSocial:
		return domain.StatCharisma
	}
	return domain.StatStrength
}

// scaleReward trims a reward for a partial success.
func scaleReward(r domain.Reward, level domain.SuccessLevel) domain.Reward {
	if level != domain.PartialSuccess {
		return r
	}
	r.Money /= 2
	r.Fame /= 2
	r.PublicOpinion /= 2
	return r
}

func (e Engine) commitOutcome(ctx context.Context, slot string, o domain.Outcome, via string) (domain.SaveFile, error) {
	return e.apply(ctx, slot, func(s domain.SaveFile) (change, error) {
		t, err := playable(s, o.TaskID)
		if err != nil {
			return change{}, err
		}
		return change{
			Transitions: []state.Transition{state.ApplyOutcome{Outcome: o, Title: t.Title, Day: s.GameState.Day, Tuning: e.tuning()}},
			Event:       "task.resolved",
			EntityKind:  "task",
			EntityID:    o.TaskID,
			Payload: events.EventPayload{
				"via":     via,
				"level":   o.Level,
				"success": o.Success,
			},
		}, nil
	})
}

// ResolveCheck plays a task with one skill check against the effective value of stat.
func (e Engine) ResolveCheck(ctx context.Context, slot, taskID, stat string) (Resolution, error) {
	s, err := e.Repo.GetSave(ctx, slot)
	if err != nil {
		return Resolution{}, err
	}
	t, err := playable(s, taskID)
	if err != nil {
		return Resolution{}, err
	}
	if stat == "" {
		stat = defaultCheckStat(t.Type)
	}
	value, ok := rules.EffectiveStats(s.Player, s.GameState.Items).Get(stat)
	if !ok {
		return Resolution{}, domain.ValidationError{Field: "stat", Reason: fmt.Sprintf("unknown stat %q", stat)}
	}
	c := e.config().Checks
	check := rules.SkillCheck(e.rng(), rules.CheckConfig{BaseTarget: c.BaseTarget, DifficultyStep: c.DifficultyStep, DieSides: c.DieSides}, value, t.Difficulty)
	o := domain.Outcome{
		TaskID:  t.ID,
		Success: check.Level.Succeeded(),
		Level:   check.Level,
		Summary: fmt.Sprintf("%s: rolled %d%+d against %d (%s)", t.Title, check.Roll, check.Bonus, check.Target, strings.ToLower(strings.ReplaceAll(string(check.Level), "_", " "))),
	}
	if o.Success {
		o.Rewards = scaleReward(t.Rewards, check.Level)
	}
	next, err := e.commitOutcome(ctx, slot, o, "check")
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Outcome: &o, Check: &check, Save: &next}, nil
}

func meetsRequirement(r *domain.Requirement, p domain.Player, catalog []domain.Item) bool {
	if r == nil {
		return true
	}
	switch r.Kind {
	case "STAT":
		v, ok := rules.EffectiveStats(p, catalog).Get(r.Key)
		return ok && v >= r.Min
	case "POWER":
		pw, _, ok := p.Power(r.Key)
		return ok && float64(pw.Level) >= r.Min
	}
	return false
}

func optionViews(n domain.ScenarioNode, p domain.Player, catalog []domain.Item) []OptionView {
	out := make([]OptionView, len(n.Options))
	for i, o := range n.Options {
		out[i] = OptionView{Index: i, Label: o.Label, Available: meetsRequirement(o.Requirement, p, catalog)}
	}
	return out
}

// PlayStructured walks a structured scenario along choices, each an option index at the
// current node. Reaching a terminal option commits its outcome.
func (e Engine) PlayStructured(ctx context.Context, slot, taskID string, choices []int) (Resolution, error) {
	s, err := e.Repo.GetSave(ctx, slot)
	if err != nil {
		return Resolution{}, err
	}
	t, err := playable(s, taskID)
	if err != nil {
		return Resolution{}, err
	}
	if t.Mode != domain.ModeStructured || t.Scenario == nil {
		return Resolution{}, domain.ValidationError{Field: "mode", Reason: "task is not a structured scenario"}
	}
	sc := *t.Scenario
	node, ok := sc.Node(sc.StartNodeID)
	if !ok {
		return Resolution{}, domain.ValidationError{Field: "scenario.startNodeId", Reason: "start node missing"}
	}
	for step, choice := range choices {
		if choice < 0 || choice >= len(node.Options) {
			return Resolution{}, domain.ValidationError{Field: "choices", Reason: fmt.Sprintf("choice %d at node %q is out of range", choice, node.ID)}
		}
		opt := node.Options[choice]
		if !meetsRequirement(opt.Requirement, s.Player, s.GameState.Items) {
			return Resolution{}, fmt.Errorf("%w: %s needs %s %s >= %g", ErrOptionUnavailable, opt.Label, opt.Requirement.Kind, opt.Requirement.Key, opt.Requirement.Min)
		}
		if opt.Outcome != nil {
			if step != len(choices)-1 {
				return Resolution{}, domain.ValidationError{Field: "choices", Reason: "choices continue past the end of the scenario"}
			}
			level := domain.Failure
			if opt.Outcome.Success {
				level = domain.Success
			}
			o := domain.Outcome{
				TaskID:     t.ID,
				Success:    opt.Outcome.Success,
				Level:      level,
				Reputation: opt.Outcome.Reputation,
				Summary:    opt.Outcome.Summary,
			}
			if o.Success {
				o.Rewards = opt.Outcome.Rewards
			}
			next, err := e.commitOutcome(ctx, slot, o, "structured")
			if err != nil {
				return Resolution{}, err
			}
			return Resolution{Outcome: &o, Save: &next}, nil
		}
		node, ok = sc.Node(opt.NextNodeID)
		if !ok {
			return Resolution{}, domain.ValidationError{Field: "scenario.nodes", Reason: fmt.Sprintf("node %q not found", opt.NextNodeID)}
		}
	}
	return Resolution{Node: &node, Options: optionViews(node, s.Player, s.GameState.Items)}, nil
}

// NarrateTurn asks the narrator for the next beat of a freeform scene. Nothing is saved;
// the caller keeps the transcript.
func (e Engine) NarrateTurn(ctx context.Context, slot, taskID string, transcript []domain.TranscriptTurn) (string, error) {
	s, err := e.Repo.GetSave(ctx, slot)
	if err != nil {
		return "", err
	}
	t, err := playable(s, taskID)
	if err != nil {
		return "", err
	}
	if t.Mode == domain.ModeStructured {
		return "", domain.ValidationError{Field: "mode", Reason: "task is a structured scenario"}
	}
	text, err := e.gateway().NarrateTurn(ctx, t, s.Player, transcript, s.GameState.Model)
	if err != nil {
		return "", fmt.Errorf("narrate: %w", err)
	}
	return text, nil
}

// CompleteFreeform ends a freeform scene: the narrator judges the transcript and the
// verdict is committed like any other outcome.
func (e Engine) CompleteFreeform(ctx context.Context, slot, taskID string, transcript []domain.TranscriptTurn) (Resolution, error) {
	s, err := e.Repo.GetSave(ctx, slot)
	if err != nil {
		return Resolution{}, err
	}
	t, err := playable(s, taskID)
	if err != nil {
		return Resolution{}, err
	}
	if t.Mode == domain.ModeStructured {
		return Resolution{}, domain.ValidationError{Field: "mode", Reason: "task is a structured scenario"}
	}
	sum, err := e.gateway().SummarizeTranscript(ctx, t, transcript, s.GameState.Model)
	if err != nil {
		return Resolution{}, fmt.Errorf("summarize: %w", err)
	}
	o := domain.Outcome{
		TaskID:     t.ID,
		Success:    sum.Level.Succeeded(),
		Level:      sum.Level,
		Reputation: sum.Reputation,
		Summary:    sum.Text,
	}
	if o.Success {
		o.Rewards = sum.Rewards
		if o.Rewards.IsZero() {
			o.Rewards = scaleReward(t.Rewards, sum.Level)
		}
	}
	next, err := e.commitOutcome(ctx, slot, o, "freeform")
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Outcome: &o, Save: &next}, nil
}
