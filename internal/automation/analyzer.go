package automation

import "github.com/wt7141789/ST-Manager/pkg/models"

// NeedsDeepScan inspects a ruleset's conditions and reports whether batch
// execution must load deep data per card. The decision is made once per
// ruleset, not per card: one deep condition anywhere in an enabled rule
// flags the whole batch. Exits on the first hit.
func NeedsDeepScan(rs *models.Ruleset) bool {
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if !r.IsEnabled() {
			continue
		}
		for _, g := range r.NormalizedGroups() {
			for _, cond := range g.Conditions {
				if IsDeepField(cond.Field) {
					return true
				}
			}
		}
	}
	return false
}
