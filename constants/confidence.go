package constants

// Confidence is the three-level estimate attached to each fixture section.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

var allConfidences = []Confidence{ConfidenceLow, ConfidenceMedium, ConfidenceHigh}

func (c Confidence) Valid() bool {
	for _, v := range allConfidences {
		if c == v {
			return true
		}
	}
	return false
}

// ConfidenceValues returns the enum as strings, in ascending order.
func ConfidenceValues() []string {
	out := make([]string, len(allConfidences))
	for i, c := range allConfidences {
		out[i] = string(c)
	}
	return out
}

// Sections lists the fixture sections that carry a confidence, in report order.
var Sections = []string{"doors", "windows", "kitchen", "bathrooms", "other_fixtures"}

// EvidenceSources are the source kinds the model is asked to use for evidence.
var EvidenceSources = []string{"schedule", "legend", "plan_symbols", "ocr_text"}

// RepairMarker is appended to review.flags whenever a result had to be auto-repaired.
const RepairMarker = "Auto-repaired from validation errors"
