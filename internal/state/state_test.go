package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capeline/internal/domain"
	"capeline/internal/state"
)

func newSave() domain.SaveFile {
	return domain.NewSave(domain.NewGameOptions{CivilianName: "Dana", SuperName: "Nightjar", StartingMoney: 30, DowntimeTokens: 0})
}

func TestReduceLeavesInputUntouched(t *testing.T) {
	s := newSave()
	s.GameState.TaskPool = []domain.Task{{ID: "a", Title: "A"}}
	next, names := state.Reduce(s,
		state.MergeTasks{Tasks: []domain.Task{{ID: "b", Title: "B"}, {ID: "a", Title: "dup"}}},
		state.SetDay{Day: 1},
	)
	assert.Equal(t, []string{"merge_tasks", "set_day"}, names)
	require.Len(t, next.GameState.TaskPool, 2)
	assert.Equal(t, "A", next.GameState.TaskPool[0].Title)
	assert.Len(t, s.GameState.TaskPool, 1)
	assert.Equal(t, 0, s.GameState.Day)
}

func TestChargeRentClampsAtZero(t *testing.T) {
	next, _ := state.Reduce(newSave(), state.ChargeRent{Amount: 100})
	assert.Equal(t, 0, next.Player.Resources.Money)
}

func TestArchiveSuggestionsMovesOnce(t *testing.T) {
	s := newSave()
	s.GameState.TaskSuggestions = []domain.Suggestion{{ID: "s1", Prompt: "rooftop chase"}, {ID: "s2", Prompt: "bank job"}}
	next, _ := state.Reduce(s, state.ArchiveSuggestions{IDs: []string{"s1", "s1"}, Day: 3})
	require.Len(t, next.GameState.TaskSuggestions, 1)
	assert.Equal(t, "s2", next.GameState.TaskSuggestions[0].ID)
	require.Len(t, next.GameState.ArchivedSuggestions, 1)
	assert.Equal(t, 3, next.GameState.ArchivedSuggestions[0].ConsumedDay)

	again, _ := state.Reduce(next, state.ArchiveSuggestions{IDs: []string{"s1"}, Day: 4})
	assert.Len(t, again.GameState.ArchivedSuggestions, 1)
}

func TestPublishNewsRotatesHistory(t *testing.T) {
	s := newSave()
	s.GameState.NewsSettings.RetentionLength = 2
	for day := 1; day <= 3; day++ {
		s, _ = state.Reduce(s, state.PublishNews{Issue: domain.NewsIssue{ID: string(rune('a' + day)), Day: day}})
	}
	require.Len(t, s.GameState.NewsHistory, 2)
	assert.Equal(t, 3, s.GameState.NewsHistory[0].Day)
	assert.Equal(t, 2, s.GameState.NewsHistory[1].Day)
	require.NotNil(t, s.GameState.ActiveNews)
	assert.Equal(t, 3, s.GameState.ActiveNews.Day)
	require.NotNil(t, s.GameState.PendingNews)
	assert.Equal(t, 3, s.GameState.LastNewsDay)
}

func TestRescheduleOnlyListedAutomators(t *testing.T) {
	s := newSave()
	s.GameState.Automators = []domain.Automator{{ID: "a", NextRunDay: 1}, {ID: "b", NextRunDay: 1}}
	next, _ := state.Reduce(s, state.RescheduleAutomators{NextRun: map[string]int{"a": 4}})
	assert.Equal(t, 4, next.GameState.Automators[0].NextRunDay)
	assert.Equal(t, 1, next.GameState.Automators[1].NextRunDay)
}

func TestCycleEvents(t *testing.T) {
	s := newSave()
	s.GameState.CalendarEvents = []domain.CalendarEvent{
		{ID: "fired", ConditionTriggered: true, Active: true},
		{ID: "dormant", ConditionTriggered: true, Active: false},
		{ID: "dated", Active: true},
	}
	next, _ := state.Reduce(s, state.CycleEvents{Fired: []string{"fired", "dated"}, Rearm: []string{"dormant"}})
	assert.False(t, next.GameState.CalendarEvents[0].Active)
	assert.True(t, next.GameState.CalendarEvents[1].Active)
	assert.True(t, next.GameState.CalendarEvents[2].Active)
}

func TestApplyOutcome(t *testing.T) {
	s := newSave()
	s.Player.Identity = domain.IdentitySuper
	s.Player.Powers = []domain.Power{{ID: "flight", Level: 1, MaxLevel: 5}}
	s.GameState.Codex = []domain.CodexEntry{{ID: "c1", Title: "Captain Vex", Relationship: &domain.Relationship{}}}
	s.GameState.TaskPool = []domain.Task{{ID: "t1", Title: "Stop the heist"}}
	s.GameState.ActiveTasks = []domain.Task{{ID: "t1", Title: "Stop the heist"}}
	tune := state.Tuning{StatXPPerPoint: 100, PowerXPPerLevel: 50}

	next, _ := state.Reduce(s, state.ApplyOutcome{
		Outcome: domain.Outcome{
			TaskID:  "t1",
			Success: true,
			Rewards: domain.Reward{
				Money: 50, Fame: 200, Stats: map[string]float64{"agility": 0.25},
				ItemIDs: []string{"grapple"}, TargetXP: &domain.TargetXP{Target: "flight", Amount: 60},
			},
			Reputation: map[string]int{"captain vex": -3, "Mayor": 2},
		},
		Title:  "Stop the heist",
		Day:    5,
		Tuning: tune,
	})
	p := next.Player
	assert.Equal(t, 80, p.Resources.Money)
	assert.Equal(t, 100, p.Resources.Fame)
	assert.InDelta(t, 1.25, p.Stats.Agility, 1e-9)
	assert.Equal(t, []string{"grapple"}, p.Inventory)
	assert.Equal(t, 2, p.Powers[0].Level)
	assert.Equal(t, 10, p.Powers[0].XP)
	assert.Equal(t, -3, next.GameState.Codex[0].Relationship.Super)
	assert.Equal(t, 2, p.Reputations["Mayor"])
	require.NotNil(t, next.GameState.TaskPool[0].CompletedDay)
	assert.Equal(t, 5, *next.GameState.TaskPool[0].CompletedDay)
	assert.Equal(t, 1, next.GameState.ActiveTasks[0].CompletionCount)
	assert.Equal(t, 1, next.GameState.EffortUsed)
	require.Len(t, next.GameState.Timeline, 1)
	assert.Equal(t, "Stop the heist succeeded", next.GameState.Timeline[0].Text)
}

func TestApplyOutcomeFailureKeepsRewards(t *testing.T) {
	s := newSave()
	s.GameState.TaskPool = []domain.Task{{ID: "t1"}}
	next, _ := state.Reduce(s, state.ApplyOutcome{
		Outcome: domain.Outcome{TaskID: "t1", Success: false, Rewards: domain.Reward{Money: 500}, Reputation: map[string]int{"Mayor": -1}},
		Day:     2,
	})
	assert.Equal(t, 30, next.Player.Resources.Money)
	assert.Equal(t, -1, next.Player.Reputations["Mayor"])
	assert.Nil(t, next.GameState.TaskPool[0].CompletedDay)
}

func TestEquipSwapsItems(t *testing.T) {
	s := newSave()
	s.Player.Inventory = []string{"helmet", "visor"}
	s, _ = state.Reduce(s, state.Equip{Slot: domain.SlotHead, ItemID: "helmet"})
	s, _ = state.Reduce(s, state.Equip{Slot: domain.SlotHead, ItemID: "visor"})
	assert.Equal(t, "visor", s.Player.Equipment[domain.SlotHead])
	assert.Equal(t, []string{"helmet"}, s.Player.Inventory)
	s, _ = state.Reduce(s, state.Unequip{Slot: domain.SlotHead})
	assert.ElementsMatch(t, []string{"helmet", "visor"}, s.Player.Inventory)
	assert.Equal(t, "", s.Player.Equipment[domain.SlotHead])
}

func TestAcknowledgeNews(t *testing.T) {
	s := newSave()
	issue := domain.NewsIssue{ID: "n1", Day: 3, Headline: "Masked vigilante spotted", Impacts: domain.Reward{Fame: 5, PublicOpinion: -4}}
	s, _ = state.Reduce(s, state.PublishNews{Issue: issue})
	edited := issue
	edited.Impacts.PublicOpinion = 2
	edited.CodexEntries = []domain.CodexEntry{{ID: "c9", Title: "The Daily Bolt"}}
	s, _ = state.Reduce(s, state.AcknowledgeNews{Issue: edited})
	assert.Nil(t, s.GameState.PendingNews)
	assert.Equal(t, 5, s.Player.Resources.Fame)
	assert.Equal(t, 2, s.Player.Resources.PublicOpinion)
	assert.True(t, s.GameState.NewsHistory[0].Acknowledged)
	assert.True(t, s.GameState.ActiveNews.Acknowledged)
	assert.Len(t, s.GameState.Codex, 1)
}
