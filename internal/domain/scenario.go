package domain

import "fmt"

// Requirement gates a scenario option on a stat or power level.
type Requirement struct {
	Kind string  `json:"kind" enum:"STAT,POWER"`
	Key  string  `json:"key"`
	Min  float64 `json:"min"`
}

type TerminalOutcome struct {
	Success    bool           `json:"success"`
	Rewards    Reward         `json:"rewards"`
	Reputation map[string]int `json:"reputation,omitempty"`
	Summary    string         `json:"summary,omitempty"`
}

type ScenarioOption struct {
	Label       string           `json:"label"`
	Requirement *Requirement     `json:"requirement,omitempty"`
	NextNodeID  string           `json:"nextNodeId,omitempty"`
	Outcome     *TerminalOutcome `json:"outcome,omitempty"`
}

type ScenarioNode struct {
	ID      string           `json:"id"`
	Text    string           `json:"text"`
	Options []ScenarioOption `json:"options"`
}

// Scenario is either a node graph (STRUCTURED) or an opening prompt (FREEFORM).
type Scenario struct {
	Opening     string         `json:"opening,omitempty"`
	StartNodeID string         `json:"startNodeId,omitempty"`
	Nodes       []ScenarioNode `json:"nodes,omitempty"`
}

func (s Scenario) Node(id string) (ScenarioNode, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return ScenarioNode{}, false
}

// Validate checks that the graph is walkable: the start node exists, node ids are unique,
// and every option either points at a known node or terminates.
func (s Scenario) Validate() error {
	if len(s.Nodes) == 0 {
		return ValidationError{Field: "scenario.nodes", Reason: "structured scenario needs at least one node"}
	}
	ids := make(map[string]struct{}, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.ID == "" {
			return ValidationError{Field: "scenario.nodes", Reason: "node id is required"}
		}
		if _, dup := ids[n.ID]; dup {
			return ValidationError{Field: "scenario.nodes", Reason: fmt.Sprintf("duplicate node id %q", n.ID)}
		}
		ids[n.ID] = struct{}{}
	}
	if _, ok := ids[s.StartNodeID]; !ok {
		return ValidationError{Field: "scenario.startNodeId", Reason: fmt.Sprintf("start node %q not found", s.StartNodeID)}
	}
	for _, n := range s.Nodes {
		if len(n.Options) == 0 {
			return ValidationError{Field: "scenario.nodes", Reason: fmt.Sprintf("node %q has no options", n.ID)}
		}
		for i, opt := range n.Options {
			hasNext := opt.NextNodeID != ""
			hasOutcome := opt.Outcome != nil
			if hasNext == hasOutcome {
				return ValidationError{Field: "scenario.nodes", Reason: fmt.Sprintf("node %q option %d must have exactly one of nextNodeId or outcome", n.ID, i)}
			}
			if hasNext {
				if _, ok := ids[opt.NextNodeID]; !ok {
					return ValidationError{Field: "scenario.nodes", Reason: fmt.Sprintf("node %q option %d points at unknown node %q", n.ID, i, opt.NextNodeID)}
				}
			}
			if r := opt.Requirement; r != nil {
				switch r.Kind {
				case "STAT":
					if !IsStat(r.Key) {
						return ValidationError{Field: "scenario.nodes", Reason: fmt.Sprintf("node %q option %d requires unknown stat %q", n.ID, i, r.Key)}
					}
				case "POWER":
					if r.Key == "" {
						return ValidationError{Field: "scenario.nodes", Reason: fmt.Sprintf("node %q option %d requires a power id", n.ID, i)}
					}
				default:
					return ValidationError{Field: "scenario.nodes", Reason: fmt.Sprintf("node %q option %d has unknown requirement kind %q", n.ID, i, r.Kind)}
				}
			}
		}
	}
	return nil
}

type SuccessLevel string

const (
	CriticalFailure SuccessLevel = "CRITICAL_FAILURE"
	Failure         SuccessLevel = "FAILURE"
	PartialFailure  SuccessLevel = "PARTIAL_FAILURE"
	PartialSuccess  SuccessLevel = "PARTIAL_SUCCESS"
	Success         SuccessLevel = "SUCCESS"
	CompleteSuccess SuccessLevel = "COMPLETE_SUCCESS"
)

var successRank = map[SuccessLevel]int{
	CriticalFailure: 0,
	Failure:         1,
	PartialFailure:  2,
	PartialSuccess:  3,
	Success:         4,
	CompleteSuccess: 5,
}

func (l SuccessLevel) Valid() bool {
	_, ok := successRank[l]
	return ok
}

// Succeeded is true from PARTIAL_SUCCESS upwards.
func (l SuccessLevel) Succeeded() bool {
	return successRank[l] >= successRank[PartialSuccess]
}

// Outcome is what every resolution mode produces.
type Outcome struct {
	TaskID     string         `json:"taskId"`
	Success    bool           `json:"success"`
	Level      SuccessLevel   `json:"level,omitempty"`
	Rewards    Reward         `json:"rewards"`
	Reputation map[string]int `json:"reputation,omitempty"`
	Summary    string         `json:"summary,omitempty"`
}

type TranscriptTurn struct {
	Role string `json:"role" enum:"player,narrator"`
	Text string `json:"text"`
}
