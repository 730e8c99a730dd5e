package entity

import "github.com/joseph-ayodele/plan-intel/constants"

// ExtractionResult is the canonical, schema-checked quantity takeoff for a plan.
type ExtractionResult struct {
	Meta          Meta          `json:"meta"`
	Doors         Doors         `json:"doors"`
	Windows       Windows       `json:"windows"`
	Kitchen       Kitchen       `json:"kitchen"`
	Bathrooms     Bathrooms     `json:"bathrooms"`
	OtherFixtures OtherFixtures `json:"other_fixtures"`
	Review        Review        `json:"review"`
}

type Meta struct {
	FloorsDetected int    `json:"floors_detected"`
	PlanType       string `json:"plan_type"` // residential|commercial|mixed|unknown
	Units          string `json:"units"`     // imperial|metric|unknown
	Notes          string `json:"notes"`
}

// Evidence points at the page (and artifact) a count was read from.
type Evidence struct {
	PageNo     int    `json:"page_no"`
	ArtifactID string `json:"artifact_id,omitempty"`
	Source     string `json:"source"`
	Note       string `json:"note"`
}

type DoorsByType struct {
	Entry    int `json:"entry"`
	Interior int `json:"interior"`
	Sliding  int `json:"sliding"`
	Bifold   int `json:"bifold"`
	Other    int `json:"other"`
}

func (b DoorsByType) Sum() int {
	return b.Entry + b.Interior + b.Sliding + b.Bifold + b.Other
}

type Doors struct {
	Total      int                  `json:"total"`
	ByType     DoorsByType          `json:"by_type"`
	Confidence constants.Confidence `json:"confidence"`
	Evidence   []Evidence           `json:"evidence"`
}

type WindowsByType struct {
	Fixed    int `json:"fixed"`
	Casement int `json:"casement"`
	Sliding  int `json:"sliding"`
	Other    int `json:"other"`
}

func (b WindowsByType) Sum() int {
	return b.Fixed + b.Casement + b.Sliding + b.Other
}

type Windows struct {
	Total      int                  `json:"total"`
	ByType     WindowsByType        `json:"by_type"`
	Confidence constants.Confidence `json:"confidence"`
	Evidence   []Evidence           `json:"evidence"`
}

type Kitchen struct {
	CabinetsCountEst int                  `json:"cabinets_count_est"`
	LinearFtEst      float64              `json:"linear_ft_est"`
	Confidence       constants.Confidence `json:"confidence"`
	Evidence         []Evidence           `json:"evidence"`
}

type Bathrooms struct {
	BathroomCount int                  `json:"bathroom_count"`
	Toilets       int                  `json:"toilets"`
	Sinks         int                  `json:"sinks"`
	Showers       int                  `json:"showers"`
	Bathtubs      int                  `json:"bathtubs"`
	Confidence    constants.Confidence `json:"confidence"`
	Evidence      []Evidence           `json:"evidence"`
}

type OtherFixtures struct {
	Wardrobes     int                  `json:"wardrobes"`
	Closets       int                  `json:"closets"`
	ShelvingUnits int                  `json:"shelving_units"`
	Confidence    constants.Confidence `json:"confidence"`
	Evidence      []Evidence           `json:"evidence"`
}

type Review struct {
	NeedsReview bool     `json:"needs_review"`
	Flags       []string `json:"flags"`
	Assumptions []string `json:"assumptions"`
}

// ConfidenceSummary returns one level per fixture section, keyed by section name.
func (r ExtractionResult) ConfidenceSummary() map[string]constants.Confidence {
	return map[string]constants.Confidence{
		"doors":          r.Doors.Confidence,
		"windows":        r.Windows.Confidence,
		"kitchen":        r.Kitchen.Confidence,
		"bathrooms":      r.Bathrooms.Confidence,
		"other_fixtures": r.OtherFixtures.Confidence,
	}
}

// EnsureSlices replaces nil slices with empty ones so the JSON form always carries arrays.
func (r *ExtractionResult) EnsureSlices() {
	for _, ev := range []*[]Evidence{
		&r.Doors.Evidence, &r.Windows.Evidence, &r.Kitchen.Evidence,
		&r.Bathrooms.Evidence, &r.OtherFixtures.Evidence,
	} {
		if *ev == nil {
			*ev = []Evidence{}
		}
	}
	if r.Review.Flags == nil {
		r.Review.Flags = []string{}
	}
	if r.Review.Assumptions == nil {
		r.Review.Assumptions = []string{}
	}
}
