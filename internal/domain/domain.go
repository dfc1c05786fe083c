package domain

type Financials struct {
	Rent int `json:"rent"`
}

type AutomatorResults struct {
	TasksGenerated    int      `json:"tasksGenerated"`
	ItemsGenerated    int      `json:"itemsGenerated"`
	UpgradesGenerated int      `json:"upgradesGenerated"`
	EventsGenerated   int      `json:"eventsGenerated"`
	NewTasks          []Task   `json:"newTasks"`
	Failed            []string `json:"failed,omitempty"`
}

type DailyReport struct {
	Day              int              `json:"day"`
	Financials       Financials       `json:"financials"`
	AutomatorResults AutomatorResults `json:"automatorResults"`
	NewsPublished    bool             `json:"newsPublished"`
	EventsTriggered  int              `json:"eventsTriggered"`
	WeeklySummary    *CodexEntry      `json:"weeklySummary,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	Slot       string `json:"slot"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type SaveSummary struct {
	Slot      string `json:"slot"`
	Day       int    `json:"day"`
	Name      string `json:"name"`
	Money     int    `json:"money"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type StoredReport struct {
	Slot      string      `json:"slot"`
	Day       int         `json:"day"`
	Report    DailyReport `json:"report"`
	CreatedAt string      `json:"created_at" format:"date-time"`
}
