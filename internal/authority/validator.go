package authority

import (
	"fmt"

	"github.com/hirewire/decree/pkg/types"
)

// Lookup resolves an actor's authority level. Implementations front the
// external authority table; an unreachable table or unresolvable actor
// surfaces as an error, never as a silent false.
type Lookup interface {
	Level(actorID string) (string, error)
}

// Validator answers whether an actor's authority level permits a decision
// type. It is a pure predicate: repeated calls for the same pair are
// idempotent and side-effect-free.
type Validator struct {
	Lookup Lookup
	Levels map[string]LevelEntry
}

func NewValidator(lookup Lookup, table Table) *Validator {
	levels := make(map[string]LevelEntry, len(table.Levels))
	for _, lvl := range table.Levels {
		levels[lvl.Level] = lvl
	}
	return &Validator{Lookup: lookup, Levels: levels}
}

// Validate returns false (not an error) for a recognized actor whose level
// does not permit decisionType. It fails with ErrAuthorityLookup when the
// actor cannot be resolved at all.
func (v *Validator) Validate(actorID string, decisionType types.DecisionType) (bool, error) {
	if actorID == "" {
		return false, fmt.Errorf("%w: empty actor id", types.ErrAuthorityLookup)
	}

	level, err := v.Lookup.Level(actorID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrAuthorityLookup, err)
	}

	entry, ok := v.Levels[level]
	if !ok {
		return false, nil
	}
	for _, permitted := range entry.Permits {
		if permitted == string(decisionType) {
			return true, nil
		}
	}
	return false, nil
}

// Rank returns the ordering rank of a level, or -1 when unknown.
func (v *Validator) Rank(level string) int {
	entry, ok := v.Levels[level]
	if !ok {
		return -1
	}
	return entry.Rank
}

// TableLookup resolves levels from the static actor assignments in a loaded
// authority table.
type TableLookup struct {
	byActor map[string]string
}

func NewTableLookup(table Table) *TableLookup {
	byActor := make(map[string]string, len(table.Actors))
	for _, actor := range table.Actors {
		byActor[actor.ID] = actor.Level
	}
	return &TableLookup{byActor: byActor}
}

func (l *TableLookup) Level(actorID string) (string, error) {
	level, ok := l.byActor[actorID]
	if !ok {
		return "", fmt.Errorf("unknown actor: %s", actorID)
	}
	return level, nil
}
