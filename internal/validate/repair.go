package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"slices"
	"strconv"

	"github.com/joseph-ayodele/plan-intel/constants"
	"github.com/joseph-ayodele/plan-intel/internal/entity"
)

var ErrRepairFailed = errors.New("repair failed")

// maxCount bounds every count and page number taken from a model response.
const maxCount = math.MaxInt32

var maxCountRat = new(big.Rat).SetInt64(maxCount)

// Outcome is a schema-conformant result and whether repair was needed to get it.
type Outcome struct {
	Result   entity.ExtractionResult
	Repaired bool
}

// ValidateWithRepair validates raw and repairs it only if validation fails.
// It returns either a fully conformant result or an error, never a partial one.
func (v *Validator) ValidateWithRepair(raw map[string]any) (Outcome, error) {
	res, err := v.Validate(raw)
	if err == nil {
		return Outcome{Result: res}, nil
	}
	res, rerr := v.Repair(raw)
	if rerr != nil {
		return Outcome{}, rerr
	}
	return Outcome{Result: res, Repaired: true}, nil
}

// Repair applies the fixed correction sequence to a copy of raw and validates once more.
func (v *Validator) Repair(raw map[string]any) (entity.ExtractionResult, error) {
	doc, err := canonical(raw)
	if err != nil {
		return entity.ExtractionResult{}, fmt.Errorf("%w: %v", ErrRepairFailed, err)
	}
	repairDocument(doc)

	res, err := v.validateCanonical(doc)
	if err != nil {
		return entity.ExtractionResult{}, fmt.Errorf("%w: %w", ErrRepairFailed, err)
	}
	return res, nil
}

func repairDocument(doc map[string]any) {
	// meta
	ensureSection(doc, SectionMeta, defaultMeta())

	// fixture sections
	for _, name := range constants.Sections {
		ensureSection(doc, name, sectionStub(name))
	}

	// evidence before numbers, so an unusable page_no is dropped rather than clamped
	for _, name := range constants.Sections {
		sec := doc[name].(map[string]any)
		sec["evidence"] = cleanEvidence(sec["evidence"])
	}

	// numbers
	for _, name := range append([]string{SectionMeta}, constants.Sections...) {
		clampNumbers(doc[name], "")
	}

	// confidence
	for _, name := range constants.Sections {
		sec := doc[name].(map[string]any)
		if s, ok := sec["confidence"].(string); !ok || !constants.Confidence(s).Valid() {
			sec["confidence"] = string(constants.ConfidenceLow)
		}
	}

	// review
	review, ok := doc[SectionReview].(map[string]any)
	if !ok {
		review = map[string]any{"needs_review": true}
		doc[SectionReview] = review
	}
	if _, ok := review["needs_review"].(bool); !ok {
		review["needs_review"] = true
	}
	flags := stringsOnly(review["flags"])
	if !slices.Contains(flags, constants.RepairMarker) {
		flags = append(flags, constants.RepairMarker)
	}
	review["flags"] = toAnySlice(flags)
	review["assumptions"] = toAnySlice(stringsOnly(review["assumptions"]))
}

// ensureSection installs stub when the section is absent or not an object,
// and otherwise fills missing or wrongly typed keys from it.
func ensureSection(doc map[string]any, name string, stub map[string]any) {
	sec, ok := doc[name].(map[string]any)
	if !ok {
		doc[name] = stub
		return
	}
	fillFrom(sec, stub)
}

func fillFrom(dst, stub map[string]any) {
	for k, def := range stub {
		cur, present := dst[k]
		if !present || !sameKind(cur, def) {
			dst[k] = def
			continue
		}
		if sub, ok := def.(map[string]any); ok {
			fillFrom(cur.(map[string]any), sub)
		}
	}
}

func sameKind(a, b any) bool {
	switch b.(type) {
	case map[string]any:
		_, ok := a.(map[string]any)
		return ok
	case []any:
		_, ok := a.([]any)
		return ok
	case json.Number:
		_, ok := a.(json.Number)
		return ok
	case string:
		_, ok := a.(string)
		return ok
	case bool:
		_, ok := a.(bool)
		return ok
	}
	return false
}

// clampNumbers sets negative numbers to zero, caps values at maxCount and truncates
// fractional counts. linear_ft_est is the only field allowed a fraction.
func clampNumbers(v any, key string) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = clampNumbers(val, k)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = clampNumbers(val, key)
		}
		return t
	case json.Number:
		r, ok := new(big.Rat).SetString(t.String())
		if !ok {
			return json.Number("0")
		}
		if r.Sign() < 0 {
			return json.Number("0")
		}
		if r.Cmp(maxCountRat) > 0 {
			return json.Number(strconv.Itoa(maxCount))
		}
		if key != "linear_ft_est" && !r.IsInt() {
			return json.Number(new(big.Int).Quo(r.Num(), r.Denom()).String())
		}
		return t
	default:
		return v
	}
}

// cleanEvidence drops entries without a usable page_no and source.
// A page_no beyond maxCount cannot point at a page and is treated as unusable.
func cleanEvidence(v any) []any {
	items, _ := v.([]any)
	out := make([]any, 0, len(items))
	for _, it := range items {
		ev, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if n, ok := ev["page_no"].(json.Number); !ok || !withinCount(n) {
			continue
		}
		if s, ok := ev["source"].(string); !ok || s == "" {
			continue
		}
		if _, ok := ev["note"].(string); !ok {
			ev["note"] = ""
		}
		if id, present := ev["artifact_id"]; present {
			if _, ok := id.(string); !ok {
				delete(ev, "artifact_id")
			}
		}
		out = append(out, ev)
	}
	return out
}

func withinCount(n json.Number) bool {
	r, ok := new(big.Rat).SetString(n.String())
	if !ok {
		return false
	}
	return new(big.Rat).Abs(r).Cmp(maxCountRat) <= 0
}

func stringsOnly(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func defaultMeta() map[string]any {
	return map[string]any{
		"floors_detected": json.Number("1"),
		"plan_type":       "unknown",
		"units":           "unknown",
		"notes":           "",
	}
}

func zero() json.Number { return json.Number("0") }

func fixtureStub(fields map[string]any) map[string]any {
	fields["confidence"] = string(constants.ConfidenceLow)
	fields["evidence"] = []any{}
	return fields
}

// sectionStub is the empty, low-confidence form of a fixture section.
func sectionStub(name string) map[string]any {
	switch name {
	case SectionDoors:
		return fixtureStub(map[string]any{
			"total": zero(),
			"by_type": map[string]any{
				"entry": zero(), "interior": zero(), "sliding": zero(), "bifold": zero(), "other": zero(),
			},
		})
	case SectionWindows:
		return fixtureStub(map[string]any{
			"total": zero(),
			"by_type": map[string]any{
				"fixed": zero(), "casement": zero(), "sliding": zero(), "other": zero(),
			},
		})
	case SectionKitchen:
		return fixtureStub(map[string]any{"cabinets_count_est": zero(), "linear_ft_est": zero()})
	case SectionBathrooms:
		return fixtureStub(map[string]any{
			"bathroom_count": zero(), "toilets": zero(), "sinks": zero(), "showers": zero(), "bathtubs": zero(),
		})
	case SectionOtherFixtures:
		return fixtureStub(map[string]any{"wardrobes": zero(), "closets": zero(), "shelving_units": zero()})
	}
	return map[string]any{}
}
