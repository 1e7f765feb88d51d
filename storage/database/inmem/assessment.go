package inmemdb

import (
	"sort"
	"strings"
	"time"

	"github.com/trezcool/academia/core/assessment"
)

// Question repository

type questionRepository struct {
	db       *questionTable
	sessions *sessionTable
}

func NewQuestionRepository(db *DB) assessment.QuestionRepository {
	return &questionRepository{db: db.question, sessions: db.session}
}

func (repo *questionRepository) query() []assessment.Question {
	questions := make([]assessment.Question, 0, len(repo.db.table))
	for _, q := range repo.db.table {
		questions = append(questions, *q)
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].CreatedAt.Before(questions[j].CreatedAt) })
	return questions
}

func (repo *questionRepository) CreateQuestion(q assessment.Question) (assessment.Question, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.table[q.ID] = &q
	return q, nil
}

func (repo *questionRepository) GetQuestionByID(id string) (assessment.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if q, ok := repo.db.table[id]; ok {
		return *q, nil
	}
	return assessment.Question{}, assessment.ErrQuestionNotFound
}

func (repo *questionRepository) GetQuestionsByID(ids ...string) ([]assessment.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	questions := make([]assessment.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := repo.db.table[id]; ok {
			questions = append(questions, *q)
		}
	}
	return questions, nil
}

func (repo *questionRepository) QueryAllQuestions() ([]assessment.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(), nil
}

func (repo *questionRepository) FilterQuestions(filter assessment.QuestionFilter) ([]assessment.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var questions []assessment.Question
	for _, q := range repo.query() {
		if matchesQuestionFilter(q, filter) {
			questions = append(questions, q)
		}
	}
	return questions, nil
}

func matchesQuestionFilter(q assessment.Question, filter assessment.QuestionFilter) bool {
	if filter.Category != "" && q.Category != filter.Category {
		return false
	}
	if filter.Type != "" && q.Type != filter.Type {
		return false
	}
	if filter.Difficulty != 0 && q.Difficulty != filter.Difficulty {
		return false
	}
	if filter.Search != "" && !strings.Contains(strings.ToLower(q.Content), strings.ToLower(filter.Search)) {
		return false
	}
	return true
}

func (repo *questionRepository) UpdateQuestion(q assessment.Question) (assessment.Question, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[q.ID]; !ok {
		return assessment.Question{}, assessment.ErrQuestionNotFound
	}
	repo.db.table[q.ID] = &q
	return q, nil
}

func (repo *questionRepository) DeleteQuestionsByID(ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}

func (repo *questionRepository) QuestionHasSubmissions(id string) (bool, error) {
	repo.sessions.mutex.RLock()
	defer repo.sessions.mutex.RUnlock()

	for _, sess := range repo.sessions.table {
		if sess.Status != assessment.StatusSubmitted {
			continue
		}
		for _, qid := range sess.QuestionIDs {
			if qid == id {
				return true, nil
			}
		}
	}
	return false, nil
}

// Session repository

type sessionRepository struct {
	db *sessionTable
}

func NewSessionRepository(db *DB) assessment.SessionRepository {
	return &sessionRepository{db: db.session}
}

// copySession deep-copies the Answers map so callers cannot mutate stored state.
func copySession(sess assessment.TestSession) assessment.TestSession {
	answers := make(map[string]string, len(sess.Answers))
	for k, v := range sess.Answers {
		answers[k] = v
	}
	sess.Answers = answers
	sess.QuestionIDs = append([]string(nil), sess.QuestionIDs...)
	return sess
}

func (repo *sessionRepository) CreateSession(sess assessment.TestSession) (assessment.TestSession, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := copySession(sess)
	repo.db.table[sess.ID] = &stored
	return copySession(stored), nil
}

func (repo *sessionRepository) GetSessionByID(id string) (assessment.TestSession, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sess, ok := repo.db.table[id]; ok {
		return copySession(*sess), nil
	}
	return assessment.TestSession{}, assessment.ErrSessionNotFound
}

func (repo *sessionRepository) SaveAnswer(sessionID, questionID, answer string) (assessment.TestSession, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sess, ok := repo.db.table[sessionID]
	if !ok {
		return assessment.TestSession{}, assessment.ErrSessionNotFound
	}
	if sess.Answers == nil {
		sess.Answers = make(map[string]string)
	}
	sess.Answers[questionID] = answer
	return copySession(*sess), nil
}

func (repo *sessionRepository) TransitionSessionStatus(id string, from, to assessment.Status, at time.Time) (assessment.TestSession, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sess, ok := repo.db.table[id]
	if !ok {
		return assessment.TestSession{}, assessment.ErrSessionNotFound
	}
	if sess.Status != from {
		return assessment.TestSession{}, assessment.ErrStatusConflict
	}
	sess.Status = to
	if to == assessment.StatusSubmitted {
		sess.SubmittedAt.SetValid(at.UTC())
	}
	return copySession(*sess), nil
}

func (repo *sessionRepository) FilterSessions(filter assessment.SessionFilter) ([]assessment.TestSession, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var sessions []assessment.TestSession
	for _, sess := range repo.db.table {
		if matchesSessionFilter(*sess, filter) {
			sessions = append(sessions, copySession(*sess))
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.Before(sessions[j].StartedAt) })
	return sessions, nil
}

func matchesSessionFilter(sess assessment.TestSession, filter assessment.SessionFilter) bool {
	if filter.TestTakerID != "" && sess.TestTakerID != filter.TestTakerID {
		return false
	}
	if filter.Status != "" && sess.Status != filter.Status {
		return false
	}
	if !filter.StartedFrom.IsZero() && sess.StartedAt.Before(filter.StartedFrom) {
		return false
	}
	if !filter.StartedTo.IsZero() && sess.StartedAt.After(filter.StartedTo) {
		return false
	}
	return true
}

// Result repository

type resultRepository struct {
	db       *resultTable
	sessions *sessionTable
}

func NewResultRepository(db *DB) assessment.ResultRepository {
	return &resultRepository{db: db.result, sessions: db.session}
}

func (repo *resultRepository) SaveResult(res assessment.ScoreResult, rec assessment.PlacementRecommendation) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.table[res.SessionID] = &result{score: res, placement: rec}
	return nil
}

func (repo *resultRepository) GetResultBySessionID(sessionID string) (assessment.ScoreResult, assessment.PlacementRecommendation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.table[sessionID]; ok {
		return r.score, r.placement, nil
	}
	return assessment.ScoreResult{}, assessment.PlacementRecommendation{}, assessment.ErrResultNotFound
}

func (repo *resultRepository) FilterResults(filter assessment.ResultFilter) ([]assessment.SessionResult, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var results []assessment.SessionResult
	for _, r := range repo.db.table {
		if !matchesResultFilter(*r, filter) {
			continue
		}
		sr := assessment.SessionResult{Score: r.score, Recommendation: r.placement}

		repo.sessions.mutex.RLock()
		if sess, ok := repo.sessions.table[r.score.SessionID]; ok {
			sr.Session = copySession(*sess)
		}
		repo.sessions.mutex.RUnlock()

		results = append(results, sr)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score.ComputedAt.Before(results[j].Score.ComputedAt)
	})
	return results, nil
}

func matchesResultFilter(r result, filter assessment.ResultFilter) bool {
	if filter.Level != "" && r.placement.Level != filter.Level {
		return false
	}
	if !filter.ComputedFrom.IsZero() && r.score.ComputedAt.Before(filter.ComputedFrom) {
		return false
	}
	if !filter.ComputedTo.IsZero() && r.score.ComputedAt.After(filter.ComputedTo) {
		return false
	}
	return true
}
