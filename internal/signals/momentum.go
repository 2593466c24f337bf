package signals

import "sort"

const (
	TrendRising    = "rising"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// Momentum compares a category's article count across two equal windows.
type Momentum struct {
	Category string  `json:"category"`
	Current  int     `json:"current"`
	Prior    int     `json:"prior"`
	Change   float64 `json:"change_pct"`
	Trend    string  `json:"trend"`
}

// TrendFor classifies the change from prior to current. Counts within 10%
// of each other are stable. A category appearing from zero counts as +100%
// and is rising; one vanishing to zero is -100% and declining.
func TrendFor(current, prior int) (string, float64) {
	switch {
	case prior == 0 && current == 0:
		return TrendStable, 0
	case prior == 0:
		return TrendRising, 100
	case current == 0:
		return TrendDeclining, -100
	}

	change := float64(current-prior) / float64(prior) * 100
	// Band edges compare in integers so exactly +-10% is stable regardless
	// of float rounding.
	delta := (current - prior) * 10
	switch {
	case delta > prior:
		return TrendRising, change
	case delta < -prior:
		return TrendDeclining, change
	default:
		return TrendStable, change
	}
}

// ComputeMomentum merges the two windows' category counts into per-category
// momentum entries, most active first.
func ComputeMomentum(current, prior map[string]int) []Momentum {
	categories := map[string]struct{}{}
	for c := range current {
		categories[c] = struct{}{}
	}
	for c := range prior {
		categories[c] = struct{}{}
	}

	entries := make([]Momentum, 0, len(categories))
	for category := range categories {
		cur, pri := current[category], prior[category]
		trend, change := TrendFor(cur, pri)
		entries = append(entries, Momentum{
			Category: category,
			Current:  cur,
			Prior:    pri,
			Change:   change,
			Trend:    trend,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Current != entries[j].Current {
			return entries[i].Current > entries[j].Current
		}
		return entries[i].Category < entries[j].Category
	})
	return entries
}
