package assessment

import (
	"hash/fnv"
	"math/rand"
	"sort"
)

// SessionSeed derives the deterministic shuffle seed for a session id.
// The same session always sees the same question order.
func SessionSeed(sessionID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sessionID))
	return int64(h.Sum64())
}

// pickQuestions selects `count` questions from the candidates without
// replacement. Candidates are sorted by id first so that selection is fully
// reproducible for a given seed regardless of storage order.
func pickQuestions(candidates []Question, count int, seed int64) ([]Question, error) {
	if count <= 0 || len(candidates) < count {
		return nil, ErrNotEnoughQuestions
	}

	picked := make([]Question, len(candidates))
	copy(picked, candidates)
	sort.Slice(picked, func(i, j int) bool { return picked[i].ID < picked[j].ID })

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked[:count], nil
}

// validateQuestionSet enforces the session invariant: a non-empty ordered
// question set with no duplicate ids.
func validateQuestionSet(questionIDs []string) error {
	if len(questionIDs) == 0 {
		return ErrInvalidQuestionSet
	}
	seen := make(map[string]struct{}, len(questionIDs))
	for _, id := range questionIDs {
		if id == "" {
			return ErrInvalidQuestionSet
		}
		if _, dup := seen[id]; dup {
			return ErrInvalidQuestionSet
		}
		seen[id] = struct{}{}
	}
	return nil
}
