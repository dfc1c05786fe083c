// Package state applies named transitions to a save. Every change the engine makes to a
// persisted player or game state goes through Reduce, so the full set of fields an
// operation may touch is visible in the transitions it builds.
package state

import (
	"encoding/json"

	"capeline/internal/domain"
)

// Transition is one named, self-contained mutation of a save.
type Transition interface {
	Name() string
	Apply(s *domain.SaveFile)
}

// Reduce applies transitions in order to a deep copy of s and returns the new save and the
// names of the applied transitions. The input is never modified.
func Reduce(s domain.SaveFile, ts ...Transition) (domain.SaveFile, []string) {
	next := Clone(s)
	names := make([]string, 0, len(ts))
	for _, t := range ts {
		if t == nil {
			continue
		}
		t.Apply(&next)
		names = append(names, t.Name())
	}
	domain.Normalize(&next)
	return next, names
}

// Clone deep-copies a save through its JSON form.
func Clone(s domain.SaveFile) domain.SaveFile {
	data, err := json.Marshal(s)
	if err != nil {
		panic("state: save is not serializable: " + err.Error())
	}
	var out domain.SaveFile
	if err := json.Unmarshal(data, &out); err != nil {
		panic("state: save does not round-trip: " + err.Error())
	}
	return out
}

// Tuning carries the economy constants transitions need to convert XP.
type Tuning struct {
	StatXPPerPoint  int
	PowerXPPerLevel int
}
