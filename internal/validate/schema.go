package validate

import (
	"github.com/joseph-ayodele/plan-intel/constants"
)

// Section names of an extraction result, in document order.
const (
	SectionMeta          = "meta"
	SectionDoors         = "doors"
	SectionWindows       = "windows"
	SectionKitchen       = "kitchen"
	SectionBathrooms     = "bathrooms"
	SectionOtherFixtures = "other_fixtures"
	SectionReview        = "review"
)

var requiredSections = []string{
	SectionMeta, SectionDoors, SectionWindows, SectionKitchen,
	SectionBathrooms, SectionOtherFixtures, SectionReview,
}

// BuildPlanJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// Extra keys are tolerated; the typed decode drops them.
func BuildPlanJSONSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": requiredSections,
		"properties": map[string]any{
			SectionMeta: object(map[string]any{
				"floors_detected": countProp(),
				"plan_type":       map[string]any{"type": "string"},
				"units":           map[string]any{"type": "string"},
				"notes":           map[string]any{"type": "string"},
			}, "floors_detected", "plan_type", "units"),
			SectionDoors: fixture(map[string]any{
				"total":   countProp(),
				"by_type": counts("entry", "interior", "sliding", "bifold", "other"),
			}, "total", "by_type"),
			SectionWindows: fixture(map[string]any{
				"total":   countProp(),
				"by_type": counts("fixed", "casement", "sliding", "other"),
			}, "total", "by_type"),
			SectionKitchen: fixture(map[string]any{
				"cabinets_count_est": countProp(),
				"linear_ft_est":      map[string]any{"type": "number", "minimum": 0},
			}, "cabinets_count_est", "linear_ft_est"),
			SectionBathrooms: fixture(map[string]any{
				"bathroom_count": countProp(),
				"toilets":        countProp(),
				"sinks":          countProp(),
				"showers":        countProp(),
				"bathtubs":       countProp(),
			}, "bathroom_count", "toilets", "sinks", "showers", "bathtubs"),
			SectionOtherFixtures: fixture(map[string]any{
				"wardrobes":      countProp(),
				"closets":        countProp(),
				"shelving_units": countProp(),
			}, "wardrobes", "closets", "shelving_units"),
			SectionReview: object(map[string]any{
				"needs_review": map[string]any{"type": "boolean"},
				"flags":        stringList(),
				"assumptions":  stringList(),
			}, "needs_review", "flags", "assumptions"),
		},
	}
}

func object(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// fixture adds the confidence and evidence every fixture section carries.
func fixture(props map[string]any, required ...string) map[string]any {
	props["confidence"] = map[string]any{"type": "string", "enum": constants.ConfidenceValues()}
	props["evidence"] = map[string]any{"type": "array", "items": evidenceProp()}
	return object(props, append(required, "confidence", "evidence")...)
}

func counts(keys ...string) map[string]any {
	props := make(map[string]any, len(keys))
	for _, k := range keys {
		props[k] = countProp()
	}
	return object(props, keys...)
}

func countProp() map[string]any {
	return map[string]any{"type": "integer", "minimum": 0}
}

func stringList() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

func evidenceProp() map[string]any {
	return object(map[string]any{
		"page_no":     countProp(),
		"artifact_id": map[string]any{"type": "string"},
		"source":      map[string]any{"type": "string", "minLength": 1},
		"note":        map[string]any{"type": "string"},
	}, "page_no", "source", "note")
}
