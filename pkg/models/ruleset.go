package models

// Condition operators understood by the evaluation engine.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpGreaterThan = "gt"
	OpGreaterOrEq = "gte"
	OpLessThan    = "lt"
	OpLessOrEq    = "lte"
)

// Action types a matched rule can contribute.
const (
	ActionMoveFolder  = "move_folder"
	ActionAddTag      = "add_tag"
	ActionRemoveTag   = "remove_tag"
	ActionSetFavorite = "set_favorite"
)

// Condition is a single field test inside a condition group.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// ConditionGroup combines its conditions with AND.
type ConditionGroup struct {
	Conditions []Condition `json:"conditions"`
}

// Action is one mutation contributed by a matched rule.
type Action struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Rule is one entry of a ruleset. Groups combine with OR. Enabled defaults
// to true when absent. Legacy documents carry a flat Conditions list instead
// of Groups; Normalized() folds it into a single group.
type Rule struct {
	Enabled    *bool            `json:"enabled,omitempty"`
	Groups     []ConditionGroup `json:"groups,omitempty"`
	Conditions []Condition      `json:"conditions,omitempty"`
	Actions    []Action         `json:"actions,omitempty"`
}

// IsEnabled reports the rule's enabled flag, defaulting to true.
func (r *Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// NormalizedGroups returns the rule's condition groups, converting a legacy
// flat conditions list into a single group.
func (r *Rule) NormalizedGroups() []ConditionGroup {
	if len(r.Groups) > 0 {
		return r.Groups
	}
	if len(r.Conditions) > 0 {
		return []ConditionGroup{{Conditions: r.Conditions}}
	}
	return nil
}

// RulesetMeta carries display metadata of a ruleset document.
type RulesetMeta struct {
	Name string `json:"name"`
}

// Ruleset is a named, ordered collection of rules.
type Ruleset struct {
	ID    string      `json:"id,omitempty"`
	Meta  RulesetMeta `json:"meta"`
	Rules []Rule      `json:"rules"`
}

// RulesetSummary is the list-endpoint projection of a ruleset.
type RulesetSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	RuleCount int    `json:"rule_count"`
	UpdatedAt int64  `json:"updated_at"`
}

// ExecuteRequest is the batch execution request body. Recursive defaults to
// true when the field is absent.
type ExecuteRequest struct {
	CardIDs   []string `json:"card_ids"`
	Category  *string  `json:"category"`
	Recursive *bool    `json:"recursive"`
	RulesetID string   `json:"ruleset_id"`
}

// IsRecursive reports whether the category selection includes subcategories.
func (r *ExecuteRequest) IsRecursive() bool {
	return r.Recursive == nil || *r.Recursive
}

// ExecuteSummary aggregates what a batch actually changed.
type ExecuteSummary struct {
	Moves      int `json:"moves"`
	TagChanges int `json:"tag_changes"`
}
