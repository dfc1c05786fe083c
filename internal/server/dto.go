package server

import (
	"encoding/json"

	"capeline/internal/domain"
	"capeline/internal/engine"
)

// Request payloads

type CreateSaveRequest struct {
	Slot         string `json:"slot"`
	CivilianName string `json:"civilian_name,omitempty"`
	SuperName    string `json:"super_name,omitempty"`
	Model        string `json:"model,omitempty"`
	Overwrite    bool   `json:"overwrite,omitempty"`
}

type CheckRequest struct {
	Stat string `json:"stat,omitempty" enum:"strength,agility,intellect,charisma"`
}

type PlayRequest struct {
	Choices []int `json:"choices"`
}

type TranscriptRequest struct {
	Transcript []domain.TranscriptTurn `json:"transcript"`
}

type ActivityRequest struct {
	Activity string `json:"activity"`
}

type EquipRequest struct {
	ItemID string      `json:"item_id"`
	Slot   domain.Slot `json:"slot,omitempty" enum:"HEAD,BODY,GADGET,ACCESSORY"`
}

type UnequipRequest struct {
	Slot domain.Slot `json:"slot" enum:"HEAD,BODY,GADGET,ACCESSORY"`
}

type IdentityRequest struct {
	Identity domain.Identity `json:"identity" enum:"CIVILIAN,SUPER"`
}

type AutomatorActiveRequest struct {
	Active bool `json:"active"`
}

type SuggestionRequest struct {
	Prompt string `json:"prompt"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source"`
}

type ResolutionResponse struct {
	Outcome *domain.Outcome      `json:"outcome,omitempty"`
	Check   *CheckResponse       `json:"check,omitempty"`
	Node    *domain.ScenarioNode `json:"node,omitempty"`
	Options []engine.OptionView  `json:"options,omitempty"`
	Day     int                  `json:"day"`
}

type CheckResponse struct {
	Roll   int    `json:"roll"`
	Bonus  int    `json:"bonus"`
	Target int    `json:"target"`
	Margin int    `json:"margin"`
	Level  string `json:"level"`
}

type NarrationResponse struct {
	Text string `json:"text"`
}

// DayResponse carries the report of a finished transition, or the progress of one that
// was started in the background.
type DayResponse struct {
	Report      *domain.DailyReport `json:"report,omitempty"`
	PendingNews *domain.NewsIssue   `json:"pending_news,omitempty"`
	Progress    *engine.Progress    `json:"progress,omitempty"`
}

type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	Slot       string         `json:"slot,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func resolutionResponse(r engine.Resolution, day int) ResolutionResponse {
	res := ResolutionResponse{Outcome: r.Outcome, Node: r.Node, Options: r.Options, Day: day}
	if r.Save != nil {
		res.Day = r.Save.GameState.Day
	}
	if c := r.Check; c != nil {
		res.Check = &CheckResponse{Roll: c.Roll, Bonus: c.Bonus, Target: c.Target, Margin: c.Margin, Level: string(c.Level)}
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		Slot:       e.Slot,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(strPtr(e.Payload)),
	}
}

// JSON helpers

func decodeJSONMap(raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(*raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func strPtr(in string) *string {
	return &in
}
