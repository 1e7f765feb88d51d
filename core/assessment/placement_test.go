package assessment

import "testing"

func TestRecommend(t *testing.T) {
	tests := []struct {
		name          string
		overall       int
		wantLevel     Level
		wantRationale string
	}{
		{"zero", 0, LevelBeginner, "overall_score < 50"},
		{"just below intermediate", 49, LevelBeginner, "overall_score < 50"},
		{"intermediate threshold is inclusive", 50, LevelIntermediate, "overall_score ≥ 50"},
		{"mid intermediate", 65, LevelIntermediate, "overall_score ≥ 50"},
		{"just below advanced", 79, LevelIntermediate, "overall_score ≥ 50"},
		{"advanced threshold is inclusive", 80, LevelAdvanced, "overall_score ≥ 80"},
		{"perfect", 100, LevelAdvanced, "overall_score ≥ 80"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ScoreResult{SessionID: "sess", Overall: tt.overall}
			rec := Recommend(res)
			if rec.SessionID != "sess" {
				t.Errorf("SessionID = %q, want %q", rec.SessionID, "sess")
			}
			if rec.Level != tt.wantLevel {
				t.Errorf("Level = %q, want %q", rec.Level, tt.wantLevel)
			}
			if rec.Rationale != tt.wantRationale {
				t.Errorf("Rationale = %q, want %q", rec.Rationale, tt.wantRationale)
			}
		})
	}
}

// recommended level never decreases as the overall score increases
func TestRecommend_monotonic(t *testing.T) {
	prev := Recommend(ScoreResult{Overall: 0})
	for score := 1; score <= 100; score++ {
		rec := Recommend(ScoreResult{Overall: score})
		if rec.Level.Rank() < prev.Level.Rank() {
			t.Fatalf("level decreased from %q to %q at score %d", prev.Level, rec.Level, score)
		}
		prev = rec
	}
}

func TestRecommend_customRules(t *testing.T) {
	rules := []PlacementRule{
		{MinOverall: 90, Level: LevelAdvanced, Rationale: "strict"},
	}

	rec := Recommend(ScoreResult{SessionID: "s1", Overall: 95}, rules...)
	if rec.Level != LevelAdvanced {
		t.Errorf("Level = %q, want %q", rec.Level, LevelAdvanced)
	}

	// table without a catch-all falls back to Beginner
	rec = Recommend(ScoreResult{SessionID: "s1", Overall: 42}, rules...)
	if rec.Level != LevelBeginner {
		t.Errorf("Level = %q, want %q", rec.Level, LevelBeginner)
	}
	if rec.Rationale != "no rule matched" {
		t.Errorf("Rationale = %q, want %q", rec.Rationale, "no rule matched")
	}
}
