package llm

import (
	"fmt"
	"strings"
)

// ExtractSystemPrompt is the Pass 1 instruction; it spells out the exact output shape.
const ExtractSystemPrompt = `You are analyzing a construction plan. Extract quantities for doors, windows, kitchen fixtures, bathrooms, and other items.

IMPORTANT:
- Return ONLY valid JSON matching the schema below
- Use schedules/tables if present (most accurate)
- Use legends for interpretation help
- Use symbol counting from floor plans if no schedules exist (mark as low confidence)
- If you cannot find information, return 0 with low confidence
- All counts are non-negative integers; linear_ft_est may be a decimal

JSON Schema:
{
  "meta": {
    "floors_detected": <number>,
    "plan_type": "residential|commercial|mixed|unknown",
    "units": "imperial|metric|unknown",
    "notes": "<any important notes>"
  },
  "doors": {
    "total": <number>,
    "by_type": {"entry": <number>, "interior": <number>, "sliding": <number>, "bifold": <number>, "other": <number>},
    "confidence": "low|medium|high",
    "evidence": [
      {"page_no": <number>, "artifact_id": "<uuid>", "source": "schedule|legend|plan_symbols|ocr_text", "note": "<brief description>"}
    ]
  },
  "windows": {
    "total": <number>,
    "by_type": {"fixed": <number>, "casement": <number>, "sliding": <number>, "other": <number>},
    "confidence": "low|medium|high",
    "evidence": []
  },
  "kitchen": {
    "cabinets_count_est": <number>,
    "linear_ft_est": <number>,
    "confidence": "low|medium|high",
    "evidence": []
  },
  "bathrooms": {
    "bathroom_count": <number>,
    "toilets": <number>,
    "sinks": <number>,
    "showers": <number>,
    "bathtubs": <number>,
    "confidence": "low|medium|high",
    "evidence": []
  },
  "other_fixtures": {
    "wardrobes": <number>,
    "closets": <number>,
    "shelving_units": <number>,
    "confidence": "low|medium|high",
    "evidence": []
  },
  "review": {
    "needs_review": <boolean>,
    "flags": ["<flag>"],
    "assumptions": ["<assumption>"]
  }
}

Return ONLY the JSON, no other text.`

// AuditSystemPrompt is the Pass 2 instruction.
const AuditSystemPrompt = `You are auditing a construction plan quantity extraction.

Review the JSON output for internal consistency:
- Do the totals add up? (e.g., doors.total should equal sum of doors.by_type)
- Are there obvious errors or contradictions?
- Should any confidence levels be adjusted?
- Are there missing review flags?

If you find issues:
- Correct the JSON
- Add appropriate flags to review.flags
- Update confidence levels if needed

Keep exactly the same structure and keys. Return ONLY the corrected JSON, no other text.`

// BuildExtractUserText is the text part that precedes the images in Pass 1.
func BuildExtractUserText(images []Image, hint *PageHint) string {
	var b strings.Builder
	b.WriteString("Analyze these construction plan pages and extract quantities.")
	if hint != nil {
		if hint.HasSchedules {
			b.WriteString(" IMPORTANT: Door/window schedules are present - use them for accurate counts.")
		}
		if hint.HasLegend {
			b.WriteString(" A legend/symbol key is provided - use it to interpret symbols.")
		}
	}

	// Page map so evidence can cite real page numbers and artifacts.
	if len(images) > 0 {
		b.WriteString("\n\nImages are attached in this order:")
		for i, img := range images {
			fmt.Fprintf(&b, "\n- image %d = page_no %d", i+1, img.PageNo)
			if img.ArtifactID != "" {
				fmt.Fprintf(&b, " (artifact_id %s)", img.ArtifactID)
			}
		}
	}
	return b.String()
}

// BuildAuditUserText wraps the Pass 1 JSON for review.
func BuildAuditUserText(pass1JSON string) string {
	return "Review this extraction for errors:\n\n" + pass1JSON
}
