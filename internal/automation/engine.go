package automation

import (
	"strconv"
	"strings"

	"github.com/wt7141789/ST-Manager/pkg/models"
)

// Evaluate runs every enabled rule of the ruleset against one card's context
// and returns the actions of all matching rules, in ruleset order. Rules are
// independent: an earlier match never gates a later rule. Within a rule,
// groups combine with OR and a group's conditions with AND. Pure function of
// its inputs.
func Evaluate(ctx *Context, rs *models.Ruleset) []models.Action {
	var actions []models.Action
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if !r.IsEnabled() {
			continue
		}
		if ruleMatches(ctx, r) {
			actions = append(actions, r.Actions...)
		}
	}
	return actions
}

func ruleMatches(ctx *Context, r *models.Rule) bool {
	groups := r.NormalizedGroups()
	if len(groups) == 0 {
		return false
	}
	for _, g := range groups {
		if groupMatches(ctx, g) {
			return true
		}
	}
	return false
}

func groupMatches(ctx *Context, g models.ConditionGroup) bool {
	if len(g.Conditions) == 0 {
		return false
	}
	for _, cond := range g.Conditions {
		if !conditionMatches(ctx, cond) {
			return false
		}
	}
	return true
}

// conditionMatches evaluates one condition. A field absent from the record
// never matches, regardless of operator.
func conditionMatches(ctx *Context, cond models.Condition) bool {
	v, ok := ctx.Field(InternalKey(cond.Field))
	if !ok {
		return false
	}

	switch cond.Operator {
	case models.OpEquals:
		return equals(v, cond.Value)
	case models.OpNotEquals:
		return !equals(v, cond.Value)
	case models.OpContains:
		return contains(v, cond.Value)
	case models.OpNotContains:
		return !contains(v, cond.Value)
	case models.OpGreaterThan, models.OpGreaterOrEq, models.OpLessThan, models.OpLessOrEq:
		return compareNumeric(v, cond.Operator, cond.Value)
	default:
		return false
	}
}

func equals(v fieldValue, want string) bool {
	switch v.kind {
	case kindString:
		return v.str == want
	case kindNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(want), 64)
		return err == nil && v.num == n
	case kindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(want))
		return err == nil && v.b == b
	case kindSet:
		// a set equals a single value only when it is exactly that value
		return len(v.set) == 1 && v.set[0] == want
	}
	return false
}

// contains is set membership for tag-like fields and case-insensitive
// substring search for strings.
func contains(v fieldValue, want string) bool {
	switch v.kind {
	case kindSet:
		for _, item := range v.set {
			if strings.EqualFold(item, want) {
				return true
			}
		}
		return false
	case kindString:
		return strings.Contains(strings.ToLower(v.str), strings.ToLower(want))
	}
	return false
}

func compareNumeric(v fieldValue, op, want string) bool {
	if v.kind != kindNumber {
		return false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(want), 64)
	if err != nil {
		return false
	}
	switch op {
	case models.OpGreaterThan:
		return v.num > n
	case models.OpGreaterOrEq:
		return v.num >= n
	case models.OpLessThan:
		return v.num < n
	case models.OpLessOrEq:
		return v.num <= n
	}
	return false
}
