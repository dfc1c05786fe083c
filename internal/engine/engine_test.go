package engine_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capeline/internal/config"
	"capeline/internal/db"
	"capeline/internal/domain"
	"capeline/internal/engine"
	"capeline/internal/gateway"
	"capeline/internal/migrate"
	"capeline/internal/repo"
)

const slot = "default"

type testEnv struct {
	Engine  engine.Engine
	Gateway *fakeGateway
	Ctx     context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	gw := newFakeGateway()
	eng := engine.New(conn, config.Default(), gw)
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	eng.Dice = engine.NewDice(7)
	eng.Logger = log.New(io.Discard, "", 0)
	ctx := context.Background()
	_, err = eng.NewGame(ctx, slot, domain.NewGameOptions{CivilianName: "Dana Cruz", SuperName: "Nightjar"}, false)
	require.NoError(t, err)
	env := testEnv{Engine: eng, Gateway: gw, Ctx: ctx}
	env.rewrite(t, func(s *domain.SaveFile) { s.GameState.NewsSettings.Enabled = false })
	return env
}

// rewrite edits the stored save directly through export and import.
func (env testEnv) rewrite(t *testing.T, edit func(s *domain.SaveFile)) {
	t.Helper()
	s, err := env.Engine.Repo.GetSave(env.Ctx, slot)
	require.NoError(t, err)
	edit(&s)
	data, err := engine.EncodeSave(s)
	require.NoError(t, err)
	_, err = env.Engine.Import(env.Ctx, slot, data, true)
	require.NoError(t, err)
}

func (env testEnv) save(t *testing.T) domain.SaveFile {
	t.Helper()
	s, err := env.Engine.Repo.GetSave(env.Ctx, slot)
	require.NoError(t, err)
	return s
}

func (env testEnv) advance(t *testing.T) engine.DayResult {
	t.Helper()
	res, err := env.Engine.AdvanceDay(env.Ctx, slot)
	require.NoError(t, err)
	return res
}

func poolTask(title string, identity domain.Identity) domain.Task {
	return domain.Task{
		Title:            title,
		Type:             domain.TaskMission,
		RequiredIdentity: identity,
		Difficulty:       2,
		Rewards:          domain.Reward{Money: 20},
	}
}

func taskAutomator(name, context string, interval int) domain.Automator {
	return domain.Automator{
		Name:         name,
		Type:         domain.AutomatorTask,
		IntervalDays: interval,
		Active:       true,
		Config:       domain.AutomatorConfig{Amount: 1, Context: context},
	}
}

func TestAdvanceDayWithoutContent(t *testing.T) {
	env := newTestEnv(t)
	res := env.advance(t)
	assert.Equal(t, 1, res.Report.Day)
	assert.Equal(t, 0, res.Report.Financials.Rent)
	assert.False(t, res.Report.NewsPublished)
	assert.NotNil(t, res.Report.AutomatorResults.NewTasks)

	s := env.save(t)
	assert.Equal(t, 1, s.GameState.Day)
	assert.Equal(t, 3, s.Player.DowntimeTokens)

	p := env.Engine.Progress(slot)
	assert.Equal(t, engine.PhaseReportReady, p.Phase)
	assert.NotEmpty(t, p.Lines)

	reports, err := env.Engine.Reports(env.Ctx, slot, 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Report.Day)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 5, slot, "day.advanced")
	require.NoError(t, err)
	require.Len(t, evts, 1)
}

func TestAutomatorNotDueMakesNoCalls(t *testing.T) {
	env := newTestEnv(t)
	a := taskAutomator("later", "", 1)
	a.NextRunDay = 5
	_, err := env.Engine.AddAutomator(env.Ctx, slot, a)
	require.NoError(t, err)

	inactive := taskAutomator("off", "", 1)
	created, err := env.Engine.AddAutomator(env.Ctx, slot, inactive)
	require.NoError(t, err)
	require.NoError(t, env.Engine.SetAutomatorActive(env.Ctx, slot, created.ID, false))

	start, end := 3, 4
	windowed := taskAutomator("windowed", "", 1)
	windowed.StartDay = &start
	windowed.EndDay = &end
	_, err = env.Engine.AddAutomator(env.Ctx, slot, windowed)
	require.NoError(t, err)

	env.advance(t)
	assert.Equal(t, 0, env.Gateway.Calls("tasks"))
	env.advance(t)
	assert.Equal(t, 0, env.Gateway.Calls("tasks"))
	env.advance(t)
	assert.Equal(t, 1, env.Gateway.Calls("tasks"), "windowed automator runs on day 3")
}

func TestTwoAutomatorsRunIndependently(t *testing.T) {
	env := newTestEnv(t)
	env.Gateway.tasks = func(req gateway.TaskRequest) ([]domain.Task, error) {
		return []domain.Task{{Title: "Job from " + req.Context, Difficulty: 3}}, nil
	}
	a, err := env.Engine.AddAutomator(env.Ctx, slot, taskAutomator("a", "alpha", 2))
	require.NoError(t, err)
	b, err := env.Engine.AddAutomator(env.Ctx, slot, taskAutomator("b", "beta", 3))
	require.NoError(t, err)

	res := env.advance(t)
	assert.Equal(t, 2, res.Report.AutomatorResults.TasksGenerated)
	titles := []string{res.Report.AutomatorResults.NewTasks[0].Title, res.Report.AutomatorResults.NewTasks[1].Title}
	assert.ElementsMatch(t, []string{"Job from alpha", "Job from beta"}, titles)

	s := env.save(t)
	assert.Len(t, s.GameState.TaskPool, 2)
	next := map[string]int{}
	for _, au := range s.GameState.Automators {
		next[au.ID] = au.NextRunDay
	}
	assert.Equal(t, 3, next[a.ID])
	assert.Equal(t, 4, next[b.ID])
}

func TestFailingAutomatorIsIsolated(t *testing.T) {
	env := newTestEnv(t)
	env.Gateway.tasks = func(req gateway.TaskRequest) ([]domain.Task, error) {
		if req.Context == "broken" {
			return []domain.Task{{Title: "never saved"}}, errors.New("upstream exploded")
		}
		return []domain.Task{{Title: "Patrol the docks", Difficulty: 2}}, nil
	}
	bad, err := env.Engine.AddAutomator(env.Ctx, slot, taskAutomator("bad", "broken", 1))
	require.NoError(t, err)
	_, err = env.Engine.AddAutomator(env.Ctx, slot, taskAutomator("good", "docks", 1))
	require.NoError(t, err)

	res := env.advance(t)
	assert.Equal(t, []string{bad.ID}, res.Report.AutomatorResults.Failed)

	s := env.save(t)
	assert.Equal(t, 1, s.GameState.Day)
	require.Len(t, s.GameState.TaskPool, 1)
	assert.Equal(t, "Patrol the docks", s.GameState.TaskPool[0].Title)
	for _, au := range s.GameState.Automators {
		if au.ID == bad.ID {
			assert.Equal(t, 1, au.NextRunDay, "failed automator keeps its schedule")
		} else {
			assert.Equal(t, 2, au.NextRunDay)
		}
	}
}

func TestUnavailableGatewayCountsAsEmpty(t *testing.T) {
	env := newTestEnv(t)
	env.Gateway.tasks = func(gateway.TaskRequest) ([]domain.Task, error) { return nil, gateway.ErrUnavailable }
	_, err := env.Engine.AddAutomator(env.Ctx, slot, taskAutomator("offline", "", 2))
	require.NoError(t, err)

	res := env.advance(t)
	assert.Empty(t, res.Report.AutomatorResults.Failed)
	assert.Equal(t, 0, res.Report.AutomatorResults.TasksGenerated)
	assert.Equal(t, 3, env.save(t).GameState.Automators[0].NextRunDay)
}

func TestGeneratedDifficultyIsClamped(t *testing.T) {
	env := newTestEnv(t)
	env.Gateway.tasks = func(gateway.TaskRequest) ([]domain.Task, error) {
		return []domain.Task{{Title: "Stop the tank", Difficulty: 9, Mode: domain.ModeStructured}}, nil
	}
	a := taskAutomator("hard", "", 1)
	a.Config.DifficultyMin = 2
	a.Config.DifficultyMax = 4
	a.Config.Scalable = true
	a.Config.ScalingInterval = 5
	a.Config.ScalingStep = 1
	_, err := env.Engine.AddAutomator(env.Ctx, slot, a)
	require.NoError(t, err)

	env.advance(t)
	s := env.save(t)
	require.Len(t, s.GameState.TaskPool, 1)
	task := s.GameState.TaskPool[0]
	assert.Equal(t, 4, task.Difficulty)
	assert.Equal(t, domain.ModeFreeform, task.Mode)
	assert.True(t, task.RequiredIdentity.Valid())
	assert.True(t, task.Type.Valid())
	assert.NotEmpty(t, task.ID)
	require.NotNil(t, task.Scaling)
	assert.Equal(t, 4, task.Scaling.BaseDifficulty)
	assert.Equal(t, 1, task.Scaling.StartDay)
}

func TestRentChargedOnSeventhDay(t *testing.T) {
	env := newTestEnv(t)
	env.rewrite(t, func(s *domain.SaveFile) {
		s.GameState.Day = 6
		s.Player.Resources.Money = 100
		for i := 0; i < 5; i++ {
			task := poolTask("Pool task", domain.IdentityCivilian)
			task.ID = string(rune('a' + i))
			s.GameState.TaskPool = append(s.GameState.TaskPool, task)
		}
	})
	day := 7
	_, err := env.Engine.AddCalendarEvent(env.Ctx, slot, domain.CalendarEvent{Title: "Gala night", Type: domain.TaskEvent, Day: &day})
	require.NoError(t, err)

	res := env.advance(t)
	assert.Equal(t, 150, res.Report.Financials.Rent)
	assert.Equal(t, 1, res.Report.EventsTriggered)

	s := env.save(t)
	assert.Equal(t, 0, s.Player.Resources.Money, "rent never drives money negative")
	board := s.GameState.ActiveTasks
	assert.Len(t, board, 1+s.GameState.DailyConfig.TasksAvailablePerDay)
	var mandatory []domain.Task
	for _, task := range board {
		if task.IsMandatory {
			mandatory = append(mandatory, task)
		}
	}
	require.Len(t, mandatory, 1)
	assert.Equal(t, "Gala night", mandatory[0].Title)
	assert.Equal(t, domain.IdentitySuper, mandatory[0].RequiredIdentity)
	assert.Equal(t, 25, mandatory[0].Rewards.Money)
	assert.Len(t, s.GameState.TaskPool, 5, "event tasks never join the pool")

	res = env.advance(t)
	assert.Equal(t, 0, res.Report.Financials.Rent)
}

func TestBoardNeverOffersMandatoryTasks(t *testing.T) {
	env := newTestEnv(t)
	env.rewrite(t, func(s *domain.SaveFile) {
		s.GameState.DailyConfig.TasksAvailablePerDay = 10
		m := poolTask("Mandatory", domain.IdentityCivilian)
		m.ID = "m"
		m.IsMandatory = true
		o := poolTask("Optional", domain.IdentityCivilian)
		o.ID = "o"
		s.GameState.TaskPool = append(s.GameState.TaskPool, m, o)
	})
	for i := 0; i < 3; i++ {
		env.advance(t)
		board := env.save(t).GameState.ActiveTasks
		require.Len(t, board, 1)
		assert.Equal(t, "o", board[0].ID)
	}
}

func TestSuggestionArchivedOnce(t *testing.T) {
	env := newTestEnv(t)
	sg, err := env.Engine.Suggest(env.Ctx, slot, "a rooftop chase")
	require.NoError(t, err)
	env.Gateway.tasks = func(req gateway.TaskRequest) ([]domain.Task, error) {
		task := domain.Task{Title: "Rooftop chase", Difficulty: 3}
		if len(req.Suggestions) > 0 {
			task.SourceSuggestionID = req.Suggestions[0].ID
		}
		return []domain.Task{task, {Title: "Second take", Difficulty: 2, SourceSuggestionID: sg.ID}}, nil
	}
	_, err = env.Engine.AddAutomator(env.Ctx, slot, taskAutomator("suggested", "", 1))
	require.NoError(t, err)

	env.advance(t)
	s := env.save(t)
	assert.Empty(t, s.GameState.TaskSuggestions)
	require.Len(t, s.GameState.ArchivedSuggestions, 1)
	assert.Equal(t, sg.ID, s.GameState.ArchivedSuggestions[0].ID)
	assert.Equal(t, 1, s.GameState.ArchivedSuggestions[0].ConsumedDay)

	env.advance(t)
	s = env.save(t)
	assert.Empty(t, s.GameState.TaskSuggestions)
	assert.Len(t, s.GameState.ArchivedSuggestions, 1)
}

func TestImportWithoutSuggestionsCanAdvance(t *testing.T) {
	env := newTestEnv(t)
	raw := []byte(`{"player":{"identity":"CIVILIAN","civilianName":"Dana","resources":{"money":50}},"gameState":{"day":3,"newsSettings":{"enabled":false}}}`)
	s, err := env.Engine.Import(env.Ctx, "legacy", raw, false)
	require.NoError(t, err)
	require.NotNil(t, s.GameState.TaskSuggestions)
	assert.Empty(t, s.GameState.TaskSuggestions)

	res, err := env.Engine.AdvanceDay(env.Ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Report.Day)

	_, err = env.Engine.Import(env.Ctx, "legacy", raw, false)
	require.ErrorIs(t, err, engine.ErrSaveExists)
}

func TestExportImportRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Suggest(env.Ctx, slot, "more heists")
	require.NoError(t, err)
	_, err = env.Engine.AddTask(env.Ctx, slot, poolTask("Bank job", domain.IdentitySuper))
	require.NoError(t, err)
	env.advance(t)

	first, err := env.Engine.Export(env.Ctx, slot)
	require.NoError(t, err)
	_, err = env.Engine.Import(env.Ctx, "copy", first, false)
	require.NoError(t, err)
	second, err := env.Engine.Export(env.Ctx, "copy")
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	_, err = env.Engine.Import(env.Ctx, "bad", []byte(`{"player":{}}`), false)
	var verr domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestNewsPublishedAndAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	env.rewrite(t, func(s *domain.SaveFile) {
		s.GameState.NewsSettings = domain.NewsSettings{Enabled: true, MinFrequencyDays: 1, MaxFrequencyDays: 1, RetentionLength: 2, GenerateRelatedTasks: true}
	})
	env.Gateway.news = &domain.NewsIssue{
		Headline: "Masked vigilante spotted",
		Impacts:  domain.Reward{Fame: 2},
		CodexEntries: []domain.CodexEntry{
			{Title: "Daily Bugle", Category: domain.CodexFaction},
		},
	}
	env.Gateway.linked = []domain.Task{{Title: "Find the photographer", Difficulty: 3}}

	res := env.advance(t)
	require.True(t, res.Report.NewsPublished)
	require.NotNil(t, res.PendingNews)
	assert.Equal(t, 1, res.PendingNews.Day)
	assert.Equal(t, 1, res.Report.AutomatorResults.TasksGenerated)

	s := env.save(t)
	require.NotNil(t, s.GameState.PendingNews)
	require.NotNil(t, s.GameState.ActiveNews)
	assert.Equal(t, 1, s.GameState.LastNewsDay)
	assert.Len(t, s.GameState.TaskPool, 1)
	assert.Empty(t, s.GameState.Codex, "codex entries wait for review")

	fame := s.Player.Resources.Fame
	edited := domain.Reward{Fame: 5}
	s, err := env.Engine.AcknowledgeNews(env.Ctx, slot, engine.NewsEdit{Impacts: &edited})
	require.NoError(t, err)
	assert.Equal(t, fame+5, s.Player.Resources.Fame)
	assert.Nil(t, s.GameState.PendingNews)
	assert.True(t, s.GameState.ActiveNews.Acknowledged)
	require.Len(t, s.GameState.Codex, 1)
	assert.Equal(t, "Daily Bugle", s.GameState.Codex[0].Title)

	_, err = env.Engine.AcknowledgeNews(env.Ctx, slot, engine.NewsEdit{})
	require.ErrorIs(t, err, engine.ErrNoPendingNews)

	env.advance(t)
	_, err = env.Engine.AcknowledgeNews(env.Ctx, slot, engine.NewsEdit{})
	require.NoError(t, err)
	env.advance(t)
	assert.Len(t, env.save(t).GameState.NewsHistory, 2, "history is truncated to the retention length")
}

func TestPendingNewsHoldsBackNextIssue(t *testing.T) {
	env := newTestEnv(t)
	env.rewrite(t, func(s *domain.SaveFile) {
		s.GameState.NewsSettings = domain.NewsSettings{Enabled: true, MinFrequencyDays: 1, MaxFrequencyDays: 1, RetentionLength: 5}
	})
	env.Gateway.news = &domain.NewsIssue{Headline: "Bank heist foiled", Impacts: domain.Reward{Fame: 7}}

	first := env.advance(t)
	require.NotNil(t, first.PendingNews)

	second := env.advance(t)
	assert.False(t, second.Report.NewsPublished)
	assert.Nil(t, second.PendingNews)
	assert.Equal(t, 1, env.Gateway.Calls("news"), "no issue is requested while one awaits review")
	assert.Contains(t, env.Engine.Progress(slot).Lines, "The last issue is still waiting for review; no news today")

	s := env.save(t)
	require.NotNil(t, s.GameState.PendingNews)
	assert.Equal(t, first.PendingNews.ID, s.GameState.PendingNews.ID)
	assert.Len(t, s.GameState.NewsHistory, 1)

	fame := s.Player.Resources.Fame
	s, err := env.Engine.AcknowledgeNews(env.Ctx, slot, engine.NewsEdit{})
	require.NoError(t, err)
	assert.Equal(t, fame+7, s.Player.Resources.Fame)

	third := env.advance(t)
	assert.True(t, third.Report.NewsPublished)
	assert.Equal(t, 2, env.Gateway.Calls("news"))
}

func TestBoardLocksUseTheNewDay(t *testing.T) {
	env := newTestEnv(t)
	env.rewrite(t, func(s *domain.SaveFile) {
		late := poolTask("Night patrol", domain.IdentityCivilian)
		late.ID = "late"
		late.Conditions = []domain.Condition{{Kind: domain.CondDay, Operator: domain.OpGTE, Value: 1}}
		s.GameState.TaskPool = append(s.GameState.TaskPool, late)
	})
	env.advance(t)
	board := env.save(t).GameState.ActiveTasks
	require.Len(t, board, 1)
	assert.False(t, board[0].Locked, "a DAY >= 1 lock is open on day 1")
}

func TestNewsFailureDoesNotBlockDay(t *testing.T) {
	env := newTestEnv(t)
	env.rewrite(t, func(s *domain.SaveFile) {
		s.GameState.NewsSettings = domain.NewsSettings{Enabled: true, MinFrequencyDays: 1, MaxFrequencyDays: 1, RetentionLength: 3}
	})
	env.Gateway.newsErr = errors.New("printer on fire")
	res := env.advance(t)
	assert.False(t, res.Report.NewsPublished)
	assert.Equal(t, 1, env.Gateway.Calls("news"))
	assert.Equal(t, 1, env.save(t).GameState.Day)
}

func TestWeeklySummaryOnSeventhDay(t *testing.T) {
	env := newTestEnv(t)
	env.rewrite(t, func(s *domain.SaveFile) { s.GameState.Day = 6 })
	env.Gateway.weekly = &domain.CodexEntry{Content: "A quiet week."}
	res := env.advance(t)
	require.NotNil(t, res.Report.WeeklySummary)
	assert.Equal(t, "Week 1", res.Report.WeeklySummary.Title)

	s := env.save(t)
	require.Len(t, s.GameState.Codex, 1)
	assert.Equal(t, domain.CodexWeeklySummary, s.GameState.Codex[0].Category)
}

func TestConditionTriggeredEventRearms(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.AddCalendarEvent(env.Ctx, slot, domain.CalendarEvent{
		Title:              "Crime wave",
		Type:               domain.TaskMission,
		ConditionTriggered: true,
		Trigger:            []domain.Condition{{Kind: domain.CondDay, Operator: domain.OpGTE, Value: 0}},
	})
	require.NoError(t, err)

	counts := []int{}
	for i := 0; i < 3; i++ {
		counts = append(counts, env.advance(t).Report.EventsTriggered)
	}
	assert.Equal(t, []int{1, 0, 1}, counts)
	task := env.save(t).GameState.ActiveTasks[0]
	assert.Equal(t, domain.IdentityCivilian, task.RequiredIdentity)
}

func TestLinkedTemplateIsCloned(t *testing.T) {
	env := newTestEnv(t)
	tmpl, err := env.Engine.AddTask(env.Ctx, slot, poolTask("Heist template", domain.IdentitySuper))
	require.NoError(t, err)
	env.rewrite(t, func(s *domain.SaveFile) {
		done := 0
		s.GameState.TaskPool[0].CompletedDay = &done
		s.GameState.TaskPool[0].CompletionCount = 2
		s.GameState.TaskPool[0].Conditions = []domain.Condition{{Kind: domain.CondStat, Key: "strength", Operator: domain.OpGT, Value: 50}}
	})
	day := 1
	_, err = env.Engine.AddCalendarEvent(env.Ctx, slot, domain.CalendarEvent{Title: "Heist", Day: &day, LinkedTaskID: tmpl.ID})
	require.NoError(t, err)

	env.advance(t)
	var clone *domain.Task
	for _, task := range env.save(t).GameState.ActiveTasks {
		if task.IsMandatory {
			task := task
			clone = &task
		}
	}
	require.NotNil(t, clone)
	assert.NotEqual(t, tmpl.ID, clone.ID)
	assert.Equal(t, "Heist template", clone.Title)
	assert.False(t, clone.Locked)
	assert.Nil(t, clone.CompletedDay)
	assert.Equal(t, 0, clone.CompletionCount)
}

func TestConcurrentAdvanceAndCancel(t *testing.T) {
	env := newTestEnv(t)
	release := make(chan struct{})
	started := make(chan struct{})
	env.Gateway.tasks = func(gateway.TaskRequest) ([]domain.Task, error) {
		close(started)
		<-release
		return []domain.Task{{Title: "Late", Difficulty: 1}}, nil
	}
	_, err := env.Engine.AddAutomator(env.Ctx, slot, taskAutomator("slow", "", 1))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := env.Engine.AdvanceDay(env.Ctx, slot)
		done <- err
	}()
	<-started

	_, err = env.Engine.AdvanceDay(env.Ctx, slot)
	require.ErrorIs(t, err, engine.ErrTransitionInProgress)
	_, err = env.Engine.Suggest(env.Ctx, slot, "blocked")
	require.ErrorIs(t, err, engine.ErrTransitionInProgress)
	require.True(t, env.Engine.CancelDay(slot))
	close(release)

	require.ErrorIs(t, <-done, engine.ErrTransitionCancelled)
	s := env.save(t)
	assert.Equal(t, 0, s.GameState.Day)
	assert.Empty(t, s.GameState.TaskPool)
	p := env.Engine.Progress(slot)
	assert.Equal(t, engine.PhaseIdle, p.Phase)
	assert.NotEmpty(t, p.Warning)
	assert.False(t, env.Engine.CancelDay(slot))
}

func TestStartDayClaimsSlotBeforeReturning(t *testing.T) {
	env := newTestEnv(t)
	release := make(chan struct{})
	env.Gateway.tasks = func(gateway.TaskRequest) ([]domain.Task, error) {
		<-release
		return nil, nil
	}
	_, err := env.Engine.AddAutomator(env.Ctx, slot, taskAutomator("slow", "", 1))
	require.NoError(t, err)

	updates, stop := env.Engine.SubscribeProgress(slot)
	defer stop()
	<-updates

	p, err := env.Engine.StartDay(env.Ctx, slot)
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseProcessing, p.Phase)

	_, err = env.Engine.StartDay(env.Ctx, slot)
	require.ErrorIs(t, err, engine.ErrTransitionInProgress)
	close(release)

	for p := range updates {
		if p.Phase == engine.PhaseReportReady {
			break
		}
	}
	assert.Equal(t, 1, env.save(t).GameState.Day)
}

func TestPanicAbortsWithoutCommit(t *testing.T) {
	env := newTestEnv(t)
	env.Gateway.tasks = func(gateway.TaskRequest) ([]domain.Task, error) { panic("nil map") }
	_, err := env.Engine.AddAutomator(env.Ctx, slot, taskAutomator("buggy", "", 1))
	require.NoError(t, err)

	_, err = env.Engine.AdvanceDay(env.Ctx, slot)
	var terr *engine.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 1, terr.Day)
	assert.Equal(t, 0, env.save(t).GameState.Day)

	p := env.Engine.Progress(slot)
	assert.Equal(t, engine.PhaseError, p.Phase)
	assert.Empty(t, p.Lines)
	assert.NotEmpty(t, p.Error)

	env.Gateway.tasks = nil
	env.advance(t)
	assert.Equal(t, 1, env.save(t).GameState.Day)
}

func TestAdvanceMissingSave(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.AdvanceDay(env.Ctx, "nope")
	require.ErrorIs(t, err, repo.ErrNotFound)
}
