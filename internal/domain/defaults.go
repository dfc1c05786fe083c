package domain

// Defaults applied to new games and to saves missing the corresponding fields.
const (
	DefaultTasksPerDay      = 3
	DefaultEffortLimit      = 3
	DefaultNewsMinFrequency = 3
	DefaultNewsMaxFrequency = 7
	DefaultNewsRetention    = 10
	DefaultMask             = 100
)

type NewGameOptions struct {
	CivilianName   string
	SuperName      string
	StartingMoney  int
	DowntimeTokens int
	Model          string
}

// NewSave builds a day-zero game.
func NewSave(opts NewGameOptions) SaveFile {
	p := Player{
		Identity:     IdentityCivilian,
		CivilianName: opts.CivilianName,
		SuperName:    opts.SuperName,
		Stats:        Stats{Strength: 1, Agility: 1, Intellect: 1, Charisma: 1},
		Resources: Resources{
			Money: opts.StartingMoney,
			Mask:  DefaultMask,
		},
		DowntimeTokens: opts.DowntimeTokens,
	}
	g := GameState{
		Day:   0,
		Model: opts.Model,
		NewsSettings: NewsSettings{
			Enabled:          true,
			MinFrequencyDays: DefaultNewsMinFrequency,
			MaxFrequencyDays: DefaultNewsMaxFrequency,
			RetentionLength:  DefaultNewsRetention,
		},
		DailyConfig: DailyConfig{
			TasksAvailablePerDay: DefaultTasksPerDay,
			EffortLimit:          DefaultEffortLimit,
		},
	}
	s := SaveFile{Player: p, GameState: g}
	Normalize(&s)
	return s
}

// Normalize merges a decoded save against defaults: collections are never nil, equipment
// carries every slot, pacing knobs fall back to defaults and resources are clamped.
// Normalize is idempotent.
func Normalize(s *SaveFile) {
	p := &s.Player
	if !p.Identity.Valid() {
		p.Identity = IdentityCivilian
	}
	if p.Inventory == nil {
		p.Inventory = []string{}
	}
	if p.Equipment == nil {
		p.Equipment = map[Slot]string{}
	}
	for _, slot := range Slots {
		if _, ok := p.Equipment[slot]; !ok {
			p.Equipment[slot] = ""
		}
	}
	if p.BaseUpgrades == nil {
		p.BaseUpgrades = []BaseUpgrade{}
	}
	if p.Powers == nil {
		p.Powers = []Power{}
	}
	if p.Reputations == nil {
		p.Reputations = map[string]int{}
	}
	if p.DowntimeTokens < 0 {
		p.DowntimeTokens = 0
	}
	p.Resources = p.Resources.Clamped()

	g := &s.GameState
	if g.TaskPool == nil {
		g.TaskPool = []Task{}
	}
	if g.ActiveTasks == nil {
		g.ActiveTasks = []Task{}
	}
	if g.CalendarEvents == nil {
		g.CalendarEvents = []CalendarEvent{}
	}
	if g.Automators == nil {
		g.Automators = []Automator{}
	}
	if g.Codex == nil {
		g.Codex = []CodexEntry{}
	}
	if g.Items == nil {
		g.Items = []Item{}
	}
	if g.NewsHistory == nil {
		g.NewsHistory = []NewsIssue{}
	}
	if g.Timeline == nil {
		g.Timeline = []TimelineEntry{}
	}
	if g.TaskSuggestions == nil {
		g.TaskSuggestions = []Suggestion{}
	}
	if g.ArchivedSuggestions == nil {
		g.ArchivedSuggestions = []Suggestion{}
	}
	if g.DailyConfig.TasksAvailablePerDay <= 0 {
		g.DailyConfig.TasksAvailablePerDay = DefaultTasksPerDay
	}
	if g.DailyConfig.EffortLimit <= 0 {
		g.DailyConfig.EffortLimit = DefaultEffortLimit
	}
	ns := &g.NewsSettings
	if ns.MinFrequencyDays <= 0 && ns.MaxFrequencyDays <= 0 {
		ns.MinFrequencyDays = DefaultNewsMinFrequency
		ns.MaxFrequencyDays = DefaultNewsMaxFrequency
	}
	if ns.MaxFrequencyDays < ns.MinFrequencyDays {
		ns.MaxFrequencyDays = ns.MinFrequencyDays
	}
	if ns.RetentionLength <= 0 {
		ns.RetentionLength = DefaultNewsRetention
	}
	if g.Day < 0 {
		g.Day = 0
	}
}
