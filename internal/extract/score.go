package extract

import "unicode/utf8"

// baseScore is the per-strategy confidence floor, decreasing with
// reliability of the source.
var baseScore = map[Method]float64{
	MethodMetaTag:    0.9,
	MethodAppHub:     0.8,
	MethodJSONLD:     0.7,
	MethodBreadcrumb: 0.6,
	MethodDocTitle:   0.5,
	MethodURLSegment: 0.4,
	MethodHeading:    0.3,
}

// Score computes the detection confidence: strategy base, +0.1 for a found
// identifier, +0.05 per metadata richness signal, −0.3 for a degenerate
// title, clamped to [0,1].
func Score(method Method, hasIdentifier bool, meta Metadata, title string) float64 {
	score := baseScore[method]
	if hasIdentifier {
		score += 0.1
	}
	if meta.Developer != "" {
		score += 0.05
	}
	if meta.ReleaseDate != "" {
		score += 0.05
	}
	if len(meta.Tags) > 0 {
		score += 0.05
	}
	if utf8.RuneCountInString(title) < 3 {
		score -= 0.3
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
