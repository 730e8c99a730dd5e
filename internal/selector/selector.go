// Package selector picks the plan pages worth sending to the model.
package selector

import (
	"slices"
	"strings"

	"github.com/joseph-ayodele/plan-intel/internal/entity"
)

// DefaultFallbackPages is how many leading pages are analyzed when no keyword matched.
const DefaultFallbackPages = 10

// Categorize classifies pages by keyword. A page lands in every category it matches.
func Categorize(texts []string) entity.PageCategorization {
	return CategorizeWith(Keywords, texts)
}

// CategorizeWith is Categorize over an explicit keyword table.
func CategorizeWith(table []KeywordSet, texts []string) entity.PageCategorization {
	byCat := make(map[string][]int, len(table))
	for i, text := range texts {
		lower := strings.ToLower(text)
		for _, set := range table {
			if matchesAny(lower, set.Phrases) {
				byCat[set.Category] = append(byCat[set.Category], i)
			}
		}
	}

	c := entity.PageCategorization{
		Schedule:  normalize(byCat[CategorySchedule]),
		Legend:    normalize(byCat[CategoryLegend]),
		FloorPlan: normalize(byCat[CategoryFloorPlan]),
	}
	all := make([]int, 0, len(c.Schedule)+len(c.Legend)+len(c.FloorPlan))
	all = append(all, c.Schedule...)
	all = append(all, c.Legend...)
	all = append(all, c.FloorPlan...)
	c.AllRelevant = normalize(all)
	return c
}

func matchesAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// normalize sorts and dedups, returning a non-nil slice.
func normalize(pages []int) []int {
	out := slices.Clone(pages)
	if out == nil {
		out = []int{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// PriorityOrder lists schedules first, then legends, then floor plans, each page once.
func PriorityOrder(c entity.PageCategorization) []int {
	seen := make(map[int]struct{})
	out := make([]int, 0, len(c.AllRelevant))
	for _, group := range [][]int{c.Schedule, c.Legend, c.FloorPlan} {
		for _, p := range group {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// ShouldProcessAllPages reports whether no page matched any keyword.
func ShouldProcessAllPages(c entity.PageCategorization) bool {
	return len(c.AllRelevant) == 0
}

// EffectiveSelection is the priority order, or pages 0..min(fallback, totalPages)-1
// when nothing matched. fallback <= 0 means DefaultFallbackPages.
func EffectiveSelection(c entity.PageCategorization, totalPages, fallback int) []int {
	if !ShouldProcessAllPages(c) {
		return PriorityOrder(c)
	}
	if fallback <= 0 {
		fallback = DefaultFallbackPages
	}
	n := min(fallback, totalPages)
	out := make([]int, 0, max(n, 0))
	for i := 0; i < n; i++ {
		out = append(out, i)
	}
	return out
}

// CategoriesOf names the categories a page landed in, in table order.
func CategoriesOf(c entity.PageCategorization, page int) []string {
	out := []string{}
	for _, g := range []struct {
		name  string
		pages []int
	}{
		{CategorySchedule, c.Schedule},
		{CategoryLegend, c.Legend},
		{CategoryFloorPlan, c.FloorPlan},
	} {
		if _, found := slices.BinarySearch(g.pages, page); found {
			out = append(out, g.name)
		}
	}
	return out
}
