package assessment

// PlacementRule maps a minimum overall score to a recommended level.
// Rules are evaluated top-down; the first match wins.
type PlacementRule struct {
	MinOverall int
	Level      Level
	Rationale  string
}

// DefaultPlacementRules is the standard policy table. Thresholds are
// inclusive; the catch-all Beginner rule always matches.
var DefaultPlacementRules = []PlacementRule{
	{MinOverall: 80, Level: LevelAdvanced, Rationale: "overall_score ≥ 80"},
	{MinOverall: 50, Level: LevelIntermediate, Rationale: "overall_score ≥ 50"},
	{MinOverall: 0, Level: LevelBeginner, Rationale: "overall_score < 50"},
}

// Recommend derives a placement from a score result by walking the rule
// table. It is idempotent: the same result always yields the same placement.
func Recommend(res ScoreResult, rules ...PlacementRule) PlacementRecommendation {
	if rules == nil {
		rules = DefaultPlacementRules
	}
	for _, rule := range rules {
		if res.Overall >= rule.MinOverall {
			return PlacementRecommendation{
				SessionID: res.SessionID,
				Level:     rule.Level,
				Rationale: rule.Rationale,
			}
		}
	}
	// an exhaustive rule table always has a catch-all; fall back to Beginner
	// for custom tables that do not.
	return PlacementRecommendation{
		SessionID: res.SessionID,
		Level:     LevelBeginner,
		Rationale: "no rule matched",
	}
}
