package domain

type TaskType string

const (
	TaskMission TaskType = "MISSION"
	TaskWork    TaskType = "WORK"
	TaskEvent   TaskType = "EVENT"
	TaskSocial  TaskType = "SOCIAL"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskMission, TaskWork, TaskEvent, TaskSocial:
		return true
	}
	return false
}

type ScenarioMode string

const (
	ModeFreeform   ScenarioMode = "FREEFORM"
	ModeStructured ScenarioMode = "STRUCTURED"
)

// TargetXP is a fixed training payload granted on completion.
type TargetXP struct {
	Target string `json:"target"`
	Amount int    `json:"amount"`
}

// Reward is a sparse delta. Absent fields have no effect.
type Reward struct {
	Money         int                `json:"money,omitempty"`
	Fame          int                `json:"fame,omitempty"`
	PublicOpinion int                `json:"publicOpinion,omitempty"`
	Mask          int                `json:"mask,omitempty"`
	Stats         map[string]float64 `json:"stats,omitempty"`
	SkillPoints   int                `json:"skillPoints,omitempty"`
	ItemIDs       []string           `json:"itemIds,omitempty"`
	TargetXP      *TargetXP          `json:"targetXp,omitempty"`
}

func (r Reward) IsZero() bool {
	return r.Money == 0 && r.Fame == 0 && r.PublicOpinion == 0 && r.Mask == 0 &&
		len(r.Stats) == 0 && r.SkillPoints == 0 && len(r.ItemIDs) == 0 && r.TargetXP == nil
}

// ScalingRule raises difficulty by Step every IntervalDays since StartDay, up to MaxDifficulty.
type ScalingRule struct {
	BaseDifficulty int `json:"baseDifficulty"`
	StartDay       int `json:"startDay"`
	IntervalDays   int `json:"intervalDays"`
	Step           int `json:"step"`
	MaxDifficulty  int `json:"maxDifficulty"`
}

type Task struct {
	ID                 string       `json:"id"`
	Title              string       `json:"title"`
	Description        string       `json:"description,omitempty"`
	Type               TaskType     `json:"type"`
	RequiredIdentity   Identity     `json:"requiredIdentity"`
	Difficulty         int          `json:"difficulty"`
	Mode               ScenarioMode `json:"mode"`
	Scenario           *Scenario    `json:"scenario,omitempty"`
	Rewards            Reward       `json:"rewards"`
	Conditions         []Condition  `json:"conditions,omitempty"`
	Locked             bool         `json:"locked"`
	IsMandatory        bool         `json:"isMandatory,omitempty"`
	CompletedDay       *int         `json:"completedDay,omitempty"`
	CompletionCount    int          `json:"completionCount,omitempty"`
	Scaling            *ScalingRule `json:"scaling,omitempty"`
	SourceSuggestionID string       `json:"sourceSuggestionId,omitempty"`
	SourceEventID      string       `json:"sourceEventId,omitempty"`
}

type AutomatorType string

const (
	AutomatorTask    AutomatorType = "TASK"
	AutomatorItem    AutomatorType = "ITEM"
	AutomatorEvent   AutomatorType = "EVENT"
	AutomatorUpgrade AutomatorType = "UPGRADE"
)

func (t AutomatorType) Valid() bool {
	switch t {
	case AutomatorTask, AutomatorItem, AutomatorEvent, AutomatorUpgrade:
		return true
	}
	return false
}

type AutomatorConfig struct {
	Amount           int      `json:"amount"`
	AmountMax        int      `json:"amountMax,omitempty"`
	Context          string   `json:"context,omitempty"`
	DifficultyMin    int      `json:"difficultyMin,omitempty"`
	DifficultyMax    int      `json:"difficultyMax,omitempty"`
	RequiredIdentity Identity `json:"requiredIdentity,omitempty"`
	Scalable         bool     `json:"scalable,omitempty"`
	ScalingInterval  int      `json:"scalingInterval,omitempty"`
	ScalingStep      int      `json:"scalingStep,omitempty"`
	ScalingMax       int      `json:"scalingMax,omitempty"`
	DaysAhead        int      `json:"daysAhead,omitempty"`
}

// EndDayUnbounded marks an automator window with no end.
const EndDayUnbounded = -1

type Automator struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Type         AutomatorType   `json:"type"`
	IntervalDays int             `json:"intervalDays"`
	NextRunDay   int             `json:"nextRunDay"`
	Active       bool            `json:"active"`
	StartDay     *int            `json:"startDay,omitempty"`
	EndDay       *int            `json:"endDay,omitempty"`
	Config       AutomatorConfig `json:"config"`
}

type CalendarEvent struct {
	ID                 string      `json:"id"`
	Title              string      `json:"title"`
	Description        string      `json:"description,omitempty"`
	Type               TaskType    `json:"type"`
	Day                *int        `json:"day,omitempty"`
	ConditionTriggered bool        `json:"conditionTriggered,omitempty"`
	Active             bool        `json:"active"`
	Trigger            []Condition `json:"trigger,omitempty"`
	Reset              []Condition `json:"reset,omitempty"`
	LinkedTaskID       string      `json:"linkedTaskId,omitempty"`
}

type CodexCategory string

const (
	CodexLore          CodexCategory = "LORE"
	CodexNPC           CodexCategory = "NPC"
	CodexFaction       CodexCategory = "FACTION"
	CodexLocation      CodexCategory = "LOCATION"
	CodexWeeklySummary CodexCategory = "WEEKLY_SUMMARY"
)

// Relationship tracks how an entry regards each identity separately.
type Relationship struct {
	Civilian int `json:"civilian"`
	Super    int `json:"super"`
}

type Secret struct {
	ID         string      `json:"id"`
	Text       string      `json:"text"`
	Conditions []Condition `json:"conditions,omitempty"`
}

type CodexEntry struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Category     CodexCategory `json:"category"`
	Content      string        `json:"content"`
	Relationship *Relationship `json:"relationship,omitempty"`
	Secrets      []Secret      `json:"secrets,omitempty"`
	CreatedDay   int           `json:"createdDay"`
}

type Article struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type NewsIssue struct {
	ID            string       `json:"id"`
	Day           int          `json:"day"`
	Headline      string       `json:"headline"`
	Articles      []Article    `json:"articles,omitempty"`
	Impacts       Reward       `json:"impacts"`
	CodexEntries  []CodexEntry `json:"codexEntries,omitempty"`
	WorldModifier string       `json:"worldModifier,omitempty"`
	Acknowledged  bool         `json:"acknowledged"`
}

type Suggestion struct {
	ID          string `json:"id"`
	Prompt      string `json:"prompt"`
	CreatedDay  int    `json:"createdDay"`
	ConsumedDay int    `json:"consumedDay,omitempty"`
}

type TimelineEntry struct {
	Day  int    `json:"day"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

type DailyConfig struct {
	TasksAvailablePerDay int `json:"tasksAvailablePerDay"`
	EffortLimit          int `json:"effortLimit"`
}

type NewsSettings struct {
	Enabled              bool   `json:"enabled"`
	MinFrequencyDays     int    `json:"minFrequencyDays"`
	MaxFrequencyDays     int    `json:"maxFrequencyDays"`
	GenerateRelatedTasks bool   `json:"generateRelatedTasks"`
	RetentionLength      int    `json:"retentionLength"`
	Context              string `json:"context,omitempty"`
}

type GameState struct {
	Day                 int             `json:"day"`
	TaskPool            []Task          `json:"taskPool"`
	ActiveTasks         []Task          `json:"activeTasks"`
	CalendarEvents      []CalendarEvent `json:"calendarEvents"`
	Automators          []Automator     `json:"automators"`
	Codex               []CodexEntry    `json:"codex"`
	Items               []Item          `json:"items"`
	NewsHistory         []NewsIssue     `json:"newsHistory"`
	ActiveNews          *NewsIssue      `json:"activeNews"`
	PendingNews         *NewsIssue      `json:"pendingNews"`
	LastNewsDay         int             `json:"lastNewsDay"`
	NewsSettings        NewsSettings    `json:"newsSettings"`
	Timeline            []TimelineEntry `json:"timeline"`
	TaskSuggestions     []Suggestion    `json:"taskSuggestions"`
	ArchivedSuggestions []Suggestion    `json:"archivedSuggestions"`
	DailyConfig         DailyConfig     `json:"dailyConfig"`
	EffortUsed          int             `json:"effortUsed"`
	Model               string          `json:"model"`
}

// TaskTitles lists the titles of every pooled task.
func (g GameState) TaskTitles() []string {
	titles := make([]string, 0, len(g.TaskPool))
	for _, t := range g.TaskPool {
		titles = append(titles, t.Title)
	}
	return titles
}

func (g GameState) FindTask(id string) (Task, bool) {
	for _, t := range g.TaskPool {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

func (g GameState) FindActiveTask(id string) (Task, bool) {
	for _, t := range g.ActiveTasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

func (g GameState) FindItem(id string) (Item, bool) {
	for _, it := range g.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// SaveFile is the exported pair of documents.
type SaveFile struct {
	Player    Player    `json:"player"`
	GameState GameState `json:"gameState"`
}
