package selector

// Category names used as keys of a page categorization.
const (
	CategorySchedule  = "schedule"
	CategoryLegend    = "legend"
	CategoryFloorPlan = "floor_plan"
)

// KeywordSet binds a category to the lowercase phrases that mark a page as belonging to it.
type KeywordSet struct {
	Category string
	Phrases  []string
}

// Keywords is the page classification table, in priority order.
var Keywords = []KeywordSet{
	{Category: CategorySchedule, Phrases: []string{"door schedule", "window schedule", "fixture schedule", "finish schedule"}},
	{Category: CategoryLegend, Phrases: []string{"legend", "symbols", "key", "notes"}},
	{Category: CategoryFloorPlan, Phrases: []string{"floor plan", "first floor", "second floor", "ground floor", "plan view"}},
}
