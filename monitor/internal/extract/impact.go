package extract

import "strings"

// Impact levels, lowest to highest.
const (
	ImpactLow      = "LOW"
	ImpactMedium   = "MEDIUM"
	ImpactHigh     = "HIGH"
	ImpactCritical = "CRITICAL"
)

var criticalTerms = []string{
	"enforcement action", "emergency", "immediate effect", "cease and desist",
	"suspension of", "fraud",
}

var highTerms = []string{
	"final rule", "penalty", "sanction", "fine", "deadline",
	"mandatory", "prohibition", "compliance date",
}

var lowTerms = []string{
	"speech", "consultation", "minutes", "webinar", "newsletter",
	"annual report", "statistics",
}

// classifyImpact assigns an impact level from title and description
// keywords. Unmatched documents default to MEDIUM: a regulatory change
// with no recognizable markers still warrants review.
func classifyImpact(title, description string) string {
	text := strings.ToLower(title + " " + description)
	for _, term := range criticalTerms {
		if strings.Contains(text, term) {
			return ImpactCritical
		}
	}
	for _, term := range highTerms {
		if strings.Contains(text, term) {
			return ImpactHigh
		}
	}
	for _, term := range lowTerms {
		if strings.Contains(text, term) {
			return ImpactLow
		}
	}
	return ImpactMedium
}
