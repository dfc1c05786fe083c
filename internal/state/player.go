package state

import (
	"fmt"
	"strings"

	"capeline/internal/domain"
	"capeline/internal/rules"
)

// grantReward applies a sparse reward to the player.
func grantReward(p *domain.Player, r domain.Reward, tune Tuning) {
	p.Resources.Money += r.Money
	p.Resources.Fame += r.Fame
	p.Resources.PublicOpinion += r.PublicOpinion
	p.Resources.Mask += r.Mask
	p.Resources = p.Resources.Clamped()
	for name, delta := range r.Stats {
		p.Stats = p.Stats.Add(name, delta)
	}
	p.SkillPoints += r.SkillPoints
	if p.SkillPoints < 0 {
		p.SkillPoints = 0
	}
	p.Inventory = append(p.Inventory, r.ItemIDs...)
	if r.TargetXP != nil && r.TargetXP.Amount != 0 {
		train(p, r.TargetXP.Target, r.TargetXP.Amount, tune)
	}
}

func train(p *domain.Player, key string, xp int, tune Tuning) {
	if domain.IsStat(key) {
		p.Stats = p.Stats.Add(key, rules.StatGain(xp, tune.StatXPPerPoint))
		return
	}
	if pw, idx, ok := p.Power(key); ok {
		p.Powers[idx] = rules.AddPowerXP(pw, xp, tune.PowerXPPerLevel)
	}
}

// applyReputation routes deltas to codex relationships when an entry matches by id or
// title, falling back to the flat reputation map.
func applyReputation(s *domain.SaveFile, deltas map[string]int) {
	for target, delta := range deltas {
		if delta == 0 {
			continue
		}
		matched := false
		for i, e := range s.GameState.Codex {
			if e.Relationship == nil {
				continue
			}
			if e.ID != target && !strings.EqualFold(e.Title, target) {
				continue
			}
			rel := *e.Relationship
			if s.Player.Identity == domain.IdentitySuper {
				rel.Super += delta
			} else {
				rel.Civilian += delta
			}
			s.GameState.Codex[i].Relationship = &rel
			matched = true
			break
		}
		if !matched {
			s.Player.Reputations[target] += delta
		}
	}
}

// ApplyOutcome feeds a resolved task back into the save: rewards on success, reputation
// always, completion bookkeeping on success, one effort point and a timeline entry.
type ApplyOutcome struct {
	Outcome domain.Outcome
	Title   string
	Day     int
	Tuning  Tuning
}

func (ApplyOutcome) Name() string { return "apply_outcome" }
func (t ApplyOutcome) Apply(s *domain.SaveFile) {
	o := t.Outcome
	if o.Success {
		grantReward(&s.Player, o.Rewards, t.Tuning)
		markCompleted(s.GameState.TaskPool, o.TaskID, t.Day)
		markCompleted(s.GameState.ActiveTasks, o.TaskID, t.Day)
	}
	if s.Player.Reputations == nil {
		s.Player.Reputations = map[string]int{}
	}
	applyReputation(s, o.Reputation)
	s.GameState.EffortUsed++
	text := o.Summary
	if text == "" {
		verdict := "failed"
		if o.Success {
			verdict = "succeeded"
		}
		text = fmt.Sprintf("%s %s", t.Title, verdict)
	}
	s.GameState.Timeline = append(s.GameState.Timeline, domain.TimelineEntry{Day: t.Day, Kind: "mission", Text: text})
}

func markCompleted(tasks []domain.Task, id string, day int) {
	for i := range tasks {
		if tasks[i].ID != id {
			continue
		}
		d := day
		tasks[i].CompletedDay = &d
		tasks[i].CompletionCount++
	}
}

// Train spends one downtime token and grants XP to a stat or power.
type Train struct {
	Key    string
	XP     int
	Day    int
	Tuning Tuning
}

func (Train) Name() string { return "train" }
func (t Train) Apply(s *domain.SaveFile) {
	s.Player.DowntimeTokens--
	train(&s.Player, t.Key, t.XP, t.Tuning)
	s.GameState.Timeline = append(s.GameState.Timeline, domain.TimelineEntry{
		Day: t.Day, Kind: "training", Text: fmt.Sprintf("Trained %s (+%d xp)", t.Key, t.XP),
	})
}

// Work spends one downtime token and pays a shift.
type Work struct {
	Activity string
	Income   int
	Day      int
}

func (Work) Name() string { return "work" }
func (t Work) Apply(s *domain.SaveFile) {
	s.Player.DowntimeTokens--
	s.Player.Resources.Money += t.Income
	s.Player.Resources = s.Player.Resources.Clamped()
	s.GameState.Timeline = append(s.GameState.Timeline, domain.TimelineEntry{
		Day: t.Day, Kind: "work", Text: fmt.Sprintf("Worked %s (+%d)", t.Activity, t.Income),
	})
}

// AcknowledgeNews applies the reviewed impacts and codex entries of the pending issue
// and clears the review.
type AcknowledgeNews struct {
	Issue  domain.NewsIssue
	Tuning Tuning
}

func (AcknowledgeNews) Name() string { return "acknowledge_news" }
func (t AcknowledgeNews) Apply(s *domain.SaveFile) {
	issue := t.Issue
	issue.Acknowledged = true
	grantReward(&s.Player, issue.Impacts, t.Tuning)
	MergeCodex{Entries: issue.CodexEntries}.Apply(s)
	for i, n := range s.GameState.NewsHistory {
		if n.ID == issue.ID {
			s.GameState.NewsHistory[i] = issue
		}
	}
	if s.GameState.ActiveNews != nil && s.GameState.ActiveNews.ID == issue.ID {
		active := issue
		s.GameState.ActiveNews = &active
	}
	s.GameState.PendingNews = nil
	s.GameState.Timeline = append(s.GameState.Timeline, domain.TimelineEntry{
		Day: s.GameState.Day, Kind: "news", Text: issue.Headline,
	})
}
