package ingest

import (
	"sort"

	"newsdesk/app/database"
	"newsdesk/app/policy"
)

// SelectRotation picks a bounded, fair rotation of sources across sections.
// The input must already be in repository rotation order
// (last_fetched_at asc nulls first, trust_score desc, created_at asc); that
// order is preserved within each section. Per section the trust-filtered
// pool (trust_score >= min_trust_score) is used, falling back to the
// unfiltered pool when the filter empties a section. Sections are then
// interleaved round-robin until max sources are selected.
func SelectRotation(sources []database.Source, policies policy.Table, max int) []database.Source {
	if max <= 0 {
		return nil
	}

	pools := make(map[string][]database.Source)
	unfiltered := make(map[string][]database.Source)
	var order []string

	for _, src := range sources {
		section := policy.NormalizeSection(src.Section)
		pol := policies.Get(section)
		if pol == nil {
			continue
		}

		if _, seen := unfiltered[section]; !seen {
			order = append(order, section)
		}
		unfiltered[section] = append(unfiltered[section], src)

		if src.TrustScore >= pol.MinTrustScore {
			pools[section] = append(pools[section], src)
		}
	}

	for _, section := range order {
		if len(pools[section]) == 0 {
			pools[section] = unfiltered[section]
		}
	}
	sort.Strings(order)

	var selected []database.Source
	for len(selected) < max {
		progressed := false
		for _, section := range order {
			pool := pools[section]
			if len(pool) == 0 {
				continue
			}
			selected = append(selected, pool[0])
			pools[section] = pool[1:]
			progressed = true
			if len(selected) == max {
				break
			}
		}
		if !progressed {
			break
		}
	}

	return selected
}
