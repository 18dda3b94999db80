package automation

import (
	"sort"
	"strings"

	"github.com/wt7141789/ST-Manager/pkg/models"
)

// ExecutionPlan is the merged, per-card set of mutations to apply. Batch
// scoped: created from one card's fired actions and discarded after Apply.
type ExecutionPlan struct {
	// Move is the target category, nil when no move fired.
	Move *string
	// AddTags and RemoveTags are disjoint after MergeActions.
	AddTags    map[string]struct{}
	RemoveTags map[string]struct{}
	// Favorite is a tri-state override: nil leaves the flag untouched.
	Favorite *bool
}

// Empty reports whether applying the plan would do nothing.
func (p *ExecutionPlan) Empty() bool {
	return p == nil ||
		(p.Move == nil && len(p.AddTags) == 0 && len(p.RemoveTags) == 0 && p.Favorite == nil)
}

// AddList returns the tags to add, sorted.
func (p *ExecutionPlan) AddList() []string { return sortedKeys(p.AddTags) }

// RemoveList returns the tags to remove, sorted.
func (p *ExecutionPlan) RemoveList() []string { return sortedKeys(p.RemoveTags) }

// MergeActions folds a fired action list into one plan. Move and favorite are
// last-wins (later rules override earlier ones); tag actions accumulate.
// After folding, a tag present in both sets is dropped from the add set: an
// explicit remove always wins over an earlier add. Returns nil for an empty
// action list so the caller can skip the card entirely.
func MergeActions(actions []models.Action) *ExecutionPlan {
	if len(actions) == 0 {
		return nil
	}
	plan := &ExecutionPlan{
		AddTags:    make(map[string]struct{}),
		RemoveTags: make(map[string]struct{}),
	}
	for _, act := range actions {
		switch act.Type {
		case models.ActionMoveFolder:
			v := act.Value
			plan.Move = &v
		case models.ActionAddTag:
			if act.Value != "" {
				plan.AddTags[act.Value] = struct{}{}
			}
		case models.ActionRemoveTag:
			if act.Value != "" {
				plan.RemoveTags[act.Value] = struct{}{}
			}
		case models.ActionSetFavorite:
			v := strings.EqualFold(strings.TrimSpace(act.Value), "true")
			plan.Favorite = &v
		}
	}
	for tag := range plan.RemoveTags {
		delete(plan.AddTags, tag)
	}
	return plan
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
