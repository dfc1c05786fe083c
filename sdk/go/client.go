package capelinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Capeline HTTP API client bound to one save slot.
type Client struct {
	BaseURL     string
	Slot        string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, slot string) *Client {
	if slot == "" {
		slot = "default"
	}
	return &Client{
		BaseURL: baseURL,
		Slot:    slot,
		Timeout: 30 * time.Second,
	}
}

// Reward represents a sparse reward delta (partial).
type Reward struct {
	Money         int `json:"money,omitempty"`
	Fame          int `json:"fame,omitempty"`
	PublicOpinion int `json:"publicOpinion,omitempty"`
	Mask          int `json:"mask,omitempty"`
	SkillPoints   int `json:"skillPoints,omitempty"`
}

// Task represents the API task model (partial).
type Task struct {
	ID               string `json:"id,omitempty"`
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	Type             string `json:"type,omitempty"`
	RequiredIdentity string `json:"requiredIdentity,omitempty"`
	Difficulty       int    `json:"difficulty"`
	Mode             string `json:"mode,omitempty"`
	Rewards          Reward `json:"rewards"`
	Locked           bool   `json:"locked,omitempty"`
	CompletedDay     *int   `json:"completedDay,omitempty"`
}

// Player represents the player half of a save (partial).
type Player struct {
	Identity     string `json:"identity"`
	CivilianName string `json:"civilianName"`
	SuperName    string `json:"superName"`
	Resources    struct {
		Money         int `json:"money"`
		Mask          int `json:"mask"`
		Fame          int `json:"fame"`
		PublicOpinion int `json:"publicOpinion"`
	} `json:"resources"`
	SkillPoints    int `json:"skillPoints"`
	DowntimeTokens int `json:"downtimeTokens"`
}

// GameState represents the world half of a save (partial).
type GameState struct {
	Day         int    `json:"day"`
	ActiveTasks []Task `json:"activeTasks"`
	EffortUsed  int    `json:"effortUsed"`
}

// Save is a full game as returned by the API.
type Save struct {
	Player    Player    `json:"player"`
	GameState GameState `json:"gameState"`
}

// DailyReport summarises one day transition (partial).
type DailyReport struct {
	Day        int `json:"day"`
	Financials struct {
		Rent int `json:"rent"`
	} `json:"financials"`
	NewsPublished   bool `json:"newsPublished"`
	EventsTriggered int  `json:"eventsTriggered"`
}

// Progress is the observable state of a day transition.
type Progress struct {
	Slot    string   `json:"slot"`
	Phase   string   `json:"phase"`
	Step    int      `json:"step"`
	Steps   int      `json:"steps"`
	Lines   []string `json:"lines"`
	Error   string   `json:"error,omitempty"`
	Warning string   `json:"warning,omitempty"`
}

// DayResult is returned by AdvanceDay. Progress is set instead of Report for async runs.
type DayResult struct {
	Report   *DailyReport `json:"report,omitempty"`
	Progress *Progress    `json:"progress,omitempty"`
}

// Outcome is the result of a resolved task.
type Outcome struct {
	TaskID     string         `json:"taskId"`
	Success    bool           `json:"success"`
	Level      string         `json:"level,omitempty"`
	Rewards    Reward         `json:"rewards"`
	Reputation map[string]int `json:"reputation,omitempty"`
	Summary    string         `json:"summary,omitempty"`
}

// Resolution is returned by the mission endpoints.
type Resolution struct {
	Outcome *Outcome `json:"outcome,omitempty"`
	Check   *struct {
		Roll   int    `json:"roll"`
		Bonus  int    `json:"bonus"`
		Target int    `json:"target"`
		Margin int    `json:"margin"`
		Level  string `json:"level"`
	} `json:"check,omitempty"`
	Node *struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"node,omitempty"`
	Options []struct {
		Index     int    `json:"index"`
		Label     string `json:"label"`
		Available bool   `json:"available"`
	} `json:"options,omitempty"`
	Day int `json:"day"`
}

// TranscriptTurn is one line of a freeform scene.
type TranscriptTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	Slot       string         `json:"slot"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Save loads the slot.
func (c *Client) Save(ctx context.Context) (Save, error) {
	var resp Save
	err := c.do(ctx, http.MethodGet, c.slotPath(""), nil, &resp)
	return resp, err
}

// AdvanceDay runs the day transition. With async the call returns as soon as it starts.
func (c *Client) AdvanceDay(ctx context.Context, async bool) (DayResult, error) {
	endpoint := c.slotPath("day/advance")
	if async {
		endpoint += "?async=true"
	}
	var resp DayResult
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Progress returns the current transition progress.
func (c *Client) Progress(ctx context.Context) (Progress, error) {
	var resp Progress
	err := c.do(ctx, http.MethodGet, c.slotPath("progress"), nil, &resp)
	return resp, err
}

// CancelDay asks a running transition to stop.
func (c *Client) CancelDay(ctx context.Context) (bool, error) {
	var resp struct {
		Cancelled bool `json:"cancelled"`
	}
	err := c.do(ctx, http.MethodPost, c.slotPath("day/cancel"), nil, &resp)
	return resp.Cancelled, err
}

// CreateTask adds a task to the pool.
func (c *Client) CreateTask(ctx context.Context, t Task) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.slotPath("tasks"), t, &resp)
	return resp, err
}

// ResolveCheck resolves a board task with a skill check. An empty stat uses the default.
func (c *Client) ResolveCheck(ctx context.Context, taskID, stat string) (Resolution, error) {
	body := map[string]any{}
	if stat != "" {
		body["stat"] = stat
	}
	var resp Resolution
	err := c.do(ctx, http.MethodPost, c.slotPath(fmt.Sprintf("tasks/%s/check", url.PathEscape(taskID))), body, &resp)
	return resp, err
}

// PlayStructured walks a structured scenario with the given option indexes.
func (c *Client) PlayStructured(ctx context.Context, taskID string, choices []int) (Resolution, error) {
	if choices == nil {
		choices = []int{}
	}
	var resp Resolution
	err := c.do(ctx, http.MethodPost, c.slotPath(fmt.Sprintf("tasks/%s/play", url.PathEscape(taskID))), map[string]any{"choices": choices}, &resp)
	return resp, err
}

// Narrate returns the narrator's next beat for a freeform scene.
func (c *Client) Narrate(ctx context.Context, taskID string, transcript []TranscriptTurn) (string, error) {
	if transcript == nil {
		transcript = []TranscriptTurn{}
	}
	var resp struct {
		Text string `json:"text"`
	}
	err := c.do(ctx, http.MethodPost, c.slotPath(fmt.Sprintf("tasks/%s/narrate", url.PathEscape(taskID))), map[string]any{"transcript": transcript}, &resp)
	return resp.Text, err
}

// CompleteScene has a freeform scene judged and committed.
func (c *Client) CompleteScene(ctx context.Context, taskID string, transcript []TranscriptTurn) (Resolution, error) {
	if transcript == nil {
		transcript = []TranscriptTurn{}
	}
	var resp Resolution
	err := c.do(ctx, http.MethodPost, c.slotPath(fmt.Sprintf("tasks/%s/complete", url.PathEscape(taskID))), map[string]any{"transcript": transcript}, &resp)
	return resp, err
}

// Train spends a downtime token on a training activity.
func (c *Client) Train(ctx context.Context, activity string) (Save, error) {
	var resp Save
	err := c.do(ctx, http.MethodPost, c.slotPath("train"), map[string]any{"activity": activity}, &resp)
	return resp, err
}

// Work spends a downtime token on a paid shift.
func (c *Client) Work(ctx context.Context, activity string) (Save, error) {
	var resp Save
	err := c.do(ctx, http.MethodPost, c.slotPath("work"), map[string]any{"activity": activity}, &resp)
	return resp, err
}

// SwitchIdentity switches between CIVILIAN and SUPER.
func (c *Client) SwitchIdentity(ctx context.Context, identity string) (Save, error) {
	var resp Save
	err := c.do(ctx, http.MethodPost, c.slotPath("identity"), map[string]any{"identity": strings.ToUpper(identity)}, &resp)
	return resp, err
}

// Export returns the save as exported JSON.
func (c *Client) Export(ctx context.Context) ([]byte, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, c.slotPath("export"), nil, &raw)
	return raw, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.slotPath("events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) slotPath(p string) string {
	slot := url.PathEscape(c.Slot)
	if p == "" {
		return fmt.Sprintf("v0/saves/%s", slot)
	}
	return fmt.Sprintf("v0/saves/%s/%s", slot, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
