package domain

import (
	"fmt"
	"strings"
)

type ConditionKind string

const (
	CondStat          ConditionKind = "STAT"
	CondResource      ConditionKind = "RESOURCE"
	CondItem          ConditionKind = "ITEM"
	CondUpgrade       ConditionKind = "UPGRADE"
	CondTag           ConditionKind = "TAG"
	CondTaskCount     ConditionKind = "TASK_COUNT"
	CondTaskCompleted ConditionKind = "TASK_COMPLETED"
	CondDay           ConditionKind = "DAY"
	CondMask          ConditionKind = "MASK"
	CondActive        ConditionKind = "ACTIVE"
)

type Operator string

const (
	OpGT     Operator = "GT"
	OpGTE    Operator = "GTE"
	OpLT     Operator = "LT"
	OpLTE    Operator = "LTE"
	OpEQ     Operator = "EQ"
	OpHas    Operator = "HAS"
	OpNotHas Operator = "NOT_HAS"
)

// Condition is a single lock predicate. Key names the stat, resource, item, upgrade,
// tag, task or flag being checked, depending on Kind.
type Condition struct {
	Kind     ConditionKind `json:"kind"`
	Key      string        `json:"key,omitempty"`
	Operator Operator      `json:"operator"`
	Value    float64       `json:"value,omitempty"`
}

func (c Condition) String() string {
	switch c.Operator {
	case OpHas, OpNotHas:
		return fmt.Sprintf("%s %s %s", c.Kind, c.Operator, c.Key)
	}
	return fmt.Sprintf("%s %s %s %g", c.Kind, c.Key, c.Operator, c.Value)
}

// Validate checks the kind/operator pairing.
func (c Condition) Validate() error {
	numeric := map[Operator]bool{OpGT: true, OpGTE: true, OpLT: true, OpLTE: true, OpEQ: true}
	presence := map[Operator]bool{OpHas: true, OpNotHas: true}
	switch c.Kind {
	case CondStat, CondResource, CondTaskCount:
		if strings.TrimSpace(c.Key) == "" {
			return ValidationError{Field: "key", Reason: fmt.Sprintf("%s condition requires a key", c.Kind)}
		}
		if !numeric[c.Operator] {
			return ValidationError{Field: "operator", Reason: fmt.Sprintf("%s condition requires a numeric operator", c.Kind)}
		}
		if c.Kind == CondStat && !IsStat(c.Key) {
			return ValidationError{Field: "key", Reason: fmt.Sprintf("unknown stat %q", c.Key)}
		}
	case CondDay, CondMask:
		if !numeric[c.Operator] {
			return ValidationError{Field: "operator", Reason: fmt.Sprintf("%s condition requires a numeric operator", c.Kind)}
		}
	case CondItem, CondUpgrade, CondTag, CondTaskCompleted, CondActive:
		if strings.TrimSpace(c.Key) == "" {
			return ValidationError{Field: "key", Reason: fmt.Sprintf("%s condition requires a key", c.Kind)}
		}
		if !presence[c.Operator] {
			return ValidationError{Field: "operator", Reason: fmt.Sprintf("%s condition requires HAS or NOT_HAS", c.Kind)}
		}
	default:
		return ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown condition kind %q", c.Kind)}
	}
	return nil
}

// ValidationError rejects malformed input at the edit boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
