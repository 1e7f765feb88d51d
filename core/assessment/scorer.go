package assessment

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// ErrUnknownQuestion signals a session whose answers or question ids reference
// questions missing from the bank. Scoring fails loudly rather than producing
// a partial or NaN result.
var ErrUnknownQuestion = errors.New("session references an unknown question")

// Score computes the per-category and overall percentages for a session.
//
// Answers are compared to the correct answer with an exact, case-sensitive
// string match. Unanswered questions count as incorrect. Categories without
// any question in the session are omitted from the per-category map.
// Percentages are rounded half-up. The function is pure: the same frozen
// session and question set always yield an identical result.
func Score(sess TestSession, questions []Question, at time.Time) (ScoreResult, error) {
	byID := make(map[string]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	type tally struct{ correct, total int }
	perCat := make(map[Category]*tally, len(AllCategories))

	var correct, total int
	for _, qid := range sess.QuestionIDs {
		q, ok := byID[qid]
		if !ok {
			return ScoreResult{}, errors.Wrapf(ErrUnknownQuestion, "question %s", qid)
		}
		t, ok := perCat[q.Category]
		if !ok {
			t = &tally{}
			perCat[q.Category] = t
		}
		total++
		t.total++
		if answer, answered := sess.Answers[qid]; answered && answer == q.CorrectAnswer {
			correct++
			t.correct++
		}
	}
	for qid := range sess.Answers {
		if _, ok := byID[qid]; !ok {
			return ScoreResult{}, errors.Wrapf(ErrUnknownQuestion, "answer for question %s", qid)
		}
	}
	if total == 0 {
		return ScoreResult{}, errors.Wrap(ErrInvalidQuestionSet, "scoring")
	}

	res := ScoreResult{
		SessionID:   sess.ID,
		PerCategory: make(map[Category]int, len(perCat)),
		Overall:     percent(correct, total),
		Correct:     correct,
		Total:       total,
		ComputedAt:  at.UTC(),
	}
	for cat, t := range perCat {
		res.PerCategory[cat] = percent(t.correct, t.total)
	}
	return res, nil
}

// percent rounds half-up to the nearest integer percentage.
func percent(correct, total int) int {
	return int(math.Floor(float64(correct)/float64(total)*100 + 0.5))
}
