package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"capeline/internal/domain"
	"capeline/internal/events"
	"capeline/internal/rules"
	"capeline/internal/state"
)

const (
	stageFinances = iota + 1
	stageAutomators
	stageNews
	stageEvents
	stageBoard
	stageWeekly
	stageCommit
	dayStages = stageCommit
)

// newsFloor is the minimum publication chance once the minimum gap has passed.
const newsFloor = 0.10

// DayResult is what a committed transition hands back to the caller.
type DayResult struct {
	Report      domain.DailyReport `json:"report"`
	PendingNews *domain.NewsIssue  `json:"pending_news,omitempty"`
}

// dayContext accumulates everything a transition produces. Nothing in it touches the
// persisted save until commit.
type dayContext struct {
	slot     string
	before   domain.SaveFile
	nextDay  int
	rng      *rand.Rand
	rent     int
	tasks    []domain.Task
	items    []domain.Item
	upgrades []domain.BaseUpgrade
	events   []domain.CalendarEvent
	codex    []domain.CodexEntry
	used     []string
	nextRun  map[string]int
	failed   []string
	news     *domain.NewsIssue
	board    []domain.Task
	fired    []string
	rearm    []string
	timeline []domain.TimelineEntry
	weekly   *domain.CodexEntry
	eventsN  int
}

// AdvanceDay runs the daily transition for a slot. All generated content is collected
// first and committed in one transaction; any failure outside the isolated generation
// steps leaves the save untouched.
func (e Engine) AdvanceDay(ctx context.Context, slot string) (DayResult, error) {
	if err := e.runtime().begin(slot, dayStages); err != nil {
		return DayResult{}, err
	}
	return e.runDay(ctx, slot)
}

// StartDay claims the slot and runs the transition in the background. The returned
// snapshot is taken after the claim, so it is always PROCESSING. The transition outlives
// ctx cancellation; follow it with Progress or SubscribeProgress.
func (e Engine) StartDay(ctx context.Context, slot string) (Progress, error) {
	rt := e.runtime()
	if err := rt.begin(slot, dayStages); err != nil {
		return Progress{}, err
	}
	p := rt.Progress(slot)
	bg := context.WithoutCancel(ctx)
	go func() {
		if _, err := e.runDay(bg, slot); err != nil && !errors.Is(err, ErrTransitionCancelled) {
			e.logger().Printf("day %s: %v", slot, err)
		}
	}()
	return p, nil
}

// runDay is the transition body. The caller has already claimed the slot.
func (e Engine) runDay(ctx context.Context, slot string) (res DayResult, err error) {
	rt := e.runtime()
	var day int
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		switch {
		case err == nil:
			rt.finish(slot, res.Report)
		case errors.Is(err, ErrTransitionCancelled):
			rt.abandon(slot)
		default:
			var te *TransitionError
			if !errors.As(err, &te) {
				err = &TransitionError{Slot: slot, Day: day, Err: err}
			}
			rt.fail(slot, err)
			res = DayResult{}
		}
	}()

	before, err := e.Repo.GetSave(ctx, slot)
	if err != nil {
		return DayResult{}, err
	}
	dc := &dayContext{
		slot:    slot,
		before:  before,
		nextDay: before.GameState.Day + 1,
		rng:     e.rng(),
		nextRun: map[string]int{},
	}
	day = dc.nextDay

	e.stepFinances(dc)
	e.stepAutomators(ctx, dc)
	e.stepNews(ctx, dc)
	e.stepEvents(dc)
	e.stepBoard(dc)
	e.stepWeekly(ctx, dc)

	if rt.cancelRequested(slot) {
		return DayResult{}, ErrTransitionCancelled
	}
	rt.step(slot, stageCommit, "Saving the day")
	report, err := e.commitDay(ctx, dc)
	if err != nil {
		return DayResult{}, err
	}
	res = DayResult{Report: report}
	if dc.news != nil {
		issue := *dc.news
		res.PendingNews = &issue
	}
	return res, nil
}

func (e Engine) stepFinances(dc *dayContext) {
	if dc.nextDay%7 == 0 {
		dc.rent = e.config().Economy.WeeklyRent
	}
	line := fmt.Sprintf("Day %d: no rent due", dc.nextDay)
	if dc.rent > 0 {
		line = fmt.Sprintf("Day %d: rent of %d due", dc.nextDay, dc.rent)
		dc.timeline = append(dc.timeline, domain.TimelineEntry{Day: dc.nextDay, Kind: "finance", Text: fmt.Sprintf("Paid %d in rent", dc.rent)})
	}
	e.runtime().step(dc.slot, stageFinances, line)
}

func (e Engine) stepAutomators(ctx context.Context, dc *dayContext) {
	rt := e.runtime()
	g := dc.before.GameState
	due := dueAutomators(g.Automators, dc.nextDay)
	if len(due) == 0 {
		rt.step(dc.slot, stageAutomators, "No automators due")
		return
	}
	rt.step(dc.slot, stageAutomators, fmt.Sprintf("Running %d automator(s)", len(due)))
	suggestions := make([]domain.Suggestion, len(g.TaskSuggestions))
	copy(suggestions, g.TaskSuggestions)
	results := e.runAutomators(ctx, due, automatorRun{
		Day:         dc.nextDay,
		Model:       g.Model,
		Titles:      g.TaskTitles(),
		Suggestions: suggestions,
	}, dc.rng)

	used := map[string]struct{}{}
	for _, r := range results {
		if r.Err != nil {
			e.logger().Printf("automator %s: %v", r.ID, r.Err)
			dc.failed = append(dc.failed, r.ID)
			rt.step(dc.slot, stageAutomators, fmt.Sprintf("Automator %s failed", r.ID))
			continue
		}
		dc.tasks = append(dc.tasks, r.Tasks...)
		dc.items = append(dc.items, r.Items...)
		dc.upgrades = append(dc.upgrades, r.Upgrades...)
		dc.events = append(dc.events, r.Events...)
		for _, id := range r.Used {
			if _, dup := used[id]; !dup {
				used[id] = struct{}{}
				dc.used = append(dc.used, id)
			}
		}
		dc.nextRun[r.ID] = r.NextRun
	}
	rt.step(dc.slot, stageAutomators, fmt.Sprintf("Generated %d task(s), %d item(s), %d upgrade(s), %d event(s)",
		len(dc.tasks), len(dc.items), len(dc.upgrades), len(dc.events)))
}

// newsChance is the publication probability after since days without news: a linear
// ramp from the minimum to the maximum gap, floored at newsFloor.
func newsChance(ns domain.NewsSettings, since int) float64 {
	if since < ns.MinFrequencyDays {
		return 0
	}
	p := 1.0
	if span := ns.MaxFrequencyDays - ns.MinFrequencyDays; span > 0 {
		p = float64(since-ns.MinFrequencyDays) / float64(span)
	}
	if p < newsFloor {
		p = newsFloor
	}
	if p > 1 {
		p = 1
	}
	return p
}

func (e Engine) stepNews(ctx context.Context, dc *dayContext) {
	rt := e.runtime()
	g := dc.before.GameState
	ns := g.NewsSettings
	if !ns.Enabled {
		rt.step(dc.slot, stageNews, "News is disabled")
		return
	}
	if g.PendingNews != nil {
		rt.step(dc.slot, stageNews, "The last issue is still waiting for review; no news today")
		return
	}
	chance := newsChance(ns, dc.nextDay-g.LastNewsDay)
	if chance == 0 || dc.rng.Float64() >= chance {
		rt.step(dc.slot, stageNews, "No news today")
		return
	}
	rt.step(dc.slot, stageNews, "Printing the newspaper")
	issue, err := e.gateway().GenerateNewsIssue(ctx, dc.nextDay, ns.Context, g.Model)
	if err != nil {
		e.logger().Printf("news: %v", err)
		rt.step(dc.slot, stageNews, "The presses jammed; no news today")
		return
	}
	if issue == nil || strings.TrimSpace(issue.Headline) == "" {
		e.logger().Printf("news: no issue generated for day %d", dc.nextDay)
		rt.step(dc.slot, stageNews, "No news today")
		return
	}
	n := normalizeNews(*issue, dc.nextDay)
	dc.news = &n
	rt.step(dc.slot, stageNews, "Headline: "+n.Headline)
	if !ns.GenerateRelatedTasks {
		return
	}
	linked, err := e.gateway().GenerateLinkedTasks(ctx, n, g.Model)
	if err != nil {
		e.logger().Printf("news: linked tasks: %v", err)
		return
	}
	for _, t := range linked {
		dc.tasks = append(dc.tasks, e.normalizeTask(t, domain.AutomatorConfig{}, dc.nextDay, dc.rng))
	}
}

func normalizeNews(issue domain.NewsIssue, day int) domain.NewsIssue {
	issue.ID = uuid.NewString()
	issue.Day = day
	issue.Acknowledged = false
	for i := range issue.CodexEntries {
		issue.CodexEntries[i].ID = uuid.NewString()
		issue.CodexEntries[i].CreatedDay = day
	}
	return issue
}

// stepEvents materializes the day's calendar events into mandatory tasks. Condition
// triggers are evaluated against the save as it was before this transition.
func (e Engine) stepEvents(dc *dayContext) {
	rt := e.runtime()
	p, g := dc.before.Player, dc.before.GameState
	var eventTasks []domain.Task
	for _, ev := range g.CalendarEvents {
		var fires bool
		if ev.ConditionTriggered {
			if ev.Active {
				fires = rules.Evaluate(ev.Trigger, p, g)
			} else if rules.Evaluate(ev.Reset, p, g) {
				dc.rearm = append(dc.rearm, ev.ID)
			}
			if fires {
				dc.fired = append(dc.fired, ev.ID)
			}
		} else {
			fires = ev.Day != nil && *ev.Day == dc.nextDay
		}
		if !fires {
			continue
		}
		eventTasks = append(eventTasks, e.eventTask(ev, g))
		dc.timeline = append(dc.timeline, domain.TimelineEntry{Day: dc.nextDay, Kind: "event", Text: ev.Title})
	}
	dc.eventsN = len(eventTasks)
	dc.board = eventTasks
	if len(eventTasks) == 0 {
		rt.step(dc.slot, stageEvents, "No events today")
		return
	}
	rt.step(dc.slot, stageEvents, fmt.Sprintf("%d event(s) today", len(eventTasks)))
}

// eventTask clones the linked template when there is one and otherwise builds a generic
// single-scene task from the event itself.
func (e Engine) eventTask(ev domain.CalendarEvent, g domain.GameState) domain.Task {
	if ev.LinkedTaskID != "" {
		if tmpl, ok := g.FindTask(ev.LinkedTaskID); ok {
			t := tmpl
			t.ID = uuid.NewString()
			t.IsMandatory = true
			t.Locked = false
			t.CompletedDay = nil
			t.CompletionCount = 0
			t.SourceEventID = ev.ID
			t.SourceSuggestionID = ""
			return t
		}
		e.logger().Printf("event %s: linked task %s not found, using a generic task", ev.ID, ev.LinkedTaskID)
	}
	cfg := e.config()
	identity := domain.IdentityCivilian
	if ev.Type == domain.TaskEvent {
		identity = domain.IdentitySuper
	}
	typ := ev.Type
	if !typ.Valid() {
		typ = domain.TaskEvent
	}
	return domain.Task{
		ID:               uuid.NewString(),
		Title:            ev.Title,
		Description:      ev.Description,
		Type:             typ,
		RequiredIdentity: identity,
		Difficulty:       cfg.Economy.EventTaskDifficulty,
		Mode:             domain.ModeFreeform,
		Scenario:         &domain.Scenario{Opening: ev.Description},
		Rewards: domain.Reward{
			Money: cfg.Economy.EventTaskReward.Money,
			Fame:  cfg.Economy.EventTaskReward.Fame,
		},
		IsMandatory:   true,
		SourceEventID: ev.ID,
	}
}

// boardCandidates is the pool plus today's new tasks, without mandatory tasks and
// without tasks already completed on or after day.
func boardCandidates(pool, fresh []domain.Task, day int) []domain.Task {
	seen := map[string]struct{}{}
	var out []domain.Task
	for _, list := range [][]domain.Task{pool, fresh} {
		for _, t := range list {
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			if t.IsMandatory {
				continue
			}
			if t.CompletedDay != nil && *t.CompletedDay >= day {
				continue
			}
			out = append(out, t)
		}
	}
	return out
}

func (e Engine) stepBoard(dc *dayContext) {
	p, g := dc.before.Player, dc.before.GameState
	candidates := boardCandidates(g.TaskPool, dc.tasks, dc.nextDay)
	dc.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	n := g.DailyConfig.TasksAvailablePerDay
	if n > len(candidates) {
		n = len(candidates)
	}
	picked := candidates[:n]
	for i := range picked {
		if picked[i].Scaling != nil {
			picked[i].Difficulty = rules.ScaledDifficulty(*picked[i].Scaling, dc.nextDay, e.config().Economy.MaxDifficulty)
		}
	}
	// Locks are judged as of the day the board is dealt for.
	g.Day = dc.nextDay
	dc.board = append(dc.board, rules.WithLocks(picked, p, g)...)
	e.runtime().step(dc.slot, stageBoard, fmt.Sprintf("%d task(s) on today's board", len(dc.board)))
}

func (e Engine) stepWeekly(ctx context.Context, dc *dayContext) {
	rt := e.runtime()
	if dc.nextDay%7 != 0 {
		rt.step(dc.slot, stageWeekly, "No weekly summary today")
		return
	}
	week := dc.nextDay / 7
	var recent []domain.TimelineEntry
	for _, t := range dc.before.GameState.Timeline {
		if t.Day > dc.nextDay-7 {
			recent = append(recent, t)
		}
	}
	recent = append(recent, dc.timeline...)
	entry, err := e.gateway().GenerateWeeklySummary(ctx, week, recent, dc.before.GameState.Model)
	if err != nil || entry == nil {
		if err != nil {
			e.logger().Printf("weekly summary: %v", err)
		}
		rt.step(dc.slot, stageWeekly, "Weekly summary skipped")
		return
	}
	w := *entry
	w.ID = uuid.NewString()
	w.Category = domain.CodexWeeklySummary
	w.CreatedDay = dc.nextDay
	if strings.TrimSpace(w.Title) == "" {
		w.Title = fmt.Sprintf("Week %d", week)
	}
	dc.weekly = &w
	dc.codex = append(dc.codex, w)
	rt.step(dc.slot, stageWeekly, "Wrote "+w.Title)
}

func (dc *dayContext) report() domain.DailyReport {
	newTasks := dc.tasks
	if newTasks == nil {
		newTasks = []domain.Task{}
	}
	return domain.DailyReport{
		Day:        dc.nextDay,
		Financials: domain.Financials{Rent: dc.rent},
		AutomatorResults: domain.AutomatorResults{
			TasksGenerated:    len(dc.tasks),
			ItemsGenerated:    len(dc.items),
			UpgradesGenerated: len(dc.upgrades),
			EventsGenerated:   len(dc.events),
			NewTasks:          newTasks,
			Failed:            dc.failed,
		},
		NewsPublished:   dc.news != nil,
		EventsTriggered: dc.eventsN,
		WeeklySummary:   dc.weekly,
	}
}

func (dc *dayContext) transitions(downtime int) []state.Transition {
	ts := []state.Transition{
		state.ChargeRent{Amount: dc.rent},
		state.ResetDowntime{Tokens: downtime},
		state.ResetEffort{},
		state.AppendUpgrades{Upgrades: dc.upgrades},
		state.MergeTasks{Tasks: dc.tasks},
		state.MergeItems{Items: dc.items},
		state.MergeEvents{Events: dc.events},
		state.MergeCodex{Entries: dc.codex},
		state.ReplaceActiveTasks{Tasks: dc.board},
		state.SetDay{Day: dc.nextDay},
		state.ArchiveSuggestions{IDs: dc.used, Day: dc.nextDay},
		state.RescheduleAutomators{NextRun: dc.nextRun},
		state.CycleEvents{Fired: dc.fired, Rearm: dc.rearm},
		state.AppendTimeline{Entries: dc.timeline},
	}
	if dc.news != nil {
		ts = append(ts, state.PublishNews{Issue: *dc.news, Retention: dc.before.GameState.NewsSettings.RetentionLength})
	}
	return ts
}

func (e Engine) commitDay(ctx context.Context, dc *dayContext) (domain.DailyReport, error) {
	report := dc.report()
	next, applied := state.Reduce(dc.before, dc.transitions(e.config().Economy.DowntimeTokens)...)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DailyReport{}, err
	}
	defer tx.Rollback()

	current, err := e.Repo.GetSaveTx(ctx, tx, dc.slot)
	if err != nil {
		return domain.DailyReport{}, err
	}
	if !sameSave(current, dc.before) {
		return domain.DailyReport{}, errors.New("save changed while the day was processing")
	}
	now := e.stamp()
	if err := e.Repo.UpsertSaveTx(ctx, tx, dc.slot, next, now); err != nil {
		return domain.DailyReport{}, fmt.Errorf("save %s: %w", dc.slot, err)
	}
	if err := e.Repo.InsertReportTx(ctx, tx, dc.slot, report, now); err != nil {
		return domain.DailyReport{}, fmt.Errorf("store report: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "day.advanced", dc.slot, "save", dc.slot, actorFrom(ctx), events.EventPayload{
		"day":              dc.nextDay,
		"rent":             dc.rent,
		"tasks_generated":  report.AutomatorResults.TasksGenerated,
		"items_generated":  report.AutomatorResults.ItemsGenerated,
		"news_published":   report.NewsPublished,
		"events_triggered": report.EventsTriggered,
		"failed":           dc.failed,
		"transitions":      applied,
	}); err != nil {
		return domain.DailyReport{}, err
	}
	if dc.news != nil {
		if err := e.Events.Append(ctx, tx, "news.published", dc.slot, "news", dc.news.ID, actorFrom(ctx), events.EventPayload{
			"headline": dc.news.Headline,
		}); err != nil {
			return domain.DailyReport{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.DailyReport{}, err
	}
	return report, nil
}

