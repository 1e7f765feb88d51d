package assessment

import (
	"errors"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
)

var (
	// errors
	ErrSessionNotFound  = errors.New("test session not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrResultNotFound   = errors.New("result not found")

	ErrInvalidQuestionSet = errors.New("question set is empty or contains duplicates")
	ErrNotEnoughQuestions = errors.New("not enough questions in the bank")

	ErrSessionExpired   = errors.New("test session has expired")
	ErrSessionClosed    = errors.New("test session is closed")
	ErrAlreadySubmitted = errors.New("test session has already been submitted")

	ErrQuestionInUse = errors.New("question is referenced by a submitted session and cannot be changed")

	// ErrStatusConflict is returned by repositories when an atomic status
	// transition finds the session no longer in the expected state.
	ErrStatusConflict = errors.New("session status changed concurrently")

	NowFunc = time.Now // mockable
)

type (
	QuestionRepository interface {
		CreateQuestion(q Question) (Question, error)
		GetQuestionByID(id string) (Question, error)
		GetQuestionsByID(ids ...string) ([]Question, error)
		QueryAllQuestions() ([]Question, error)
		// FilterQuestions applies AND operation on available QuestionFilter fields.
		FilterQuestions(filter QuestionFilter) ([]Question, error)
		UpdateQuestion(q Question) (Question, error)
		DeleteQuestionsByID(ids ...string) error
		// QuestionHasSubmissions reports whether any submitted session references this question.
		QuestionHasSubmissions(id string) (bool, error)
	}

	SessionRepository interface {
		CreateSession(sess TestSession) (TestSession, error)
		GetSessionByID(id string) (TestSession, error)
		// SaveAnswer overwrites the answer for a question (last-write-wins).
		SaveAnswer(sessionID, questionID, answer string) (TestSession, error)
		// TransitionSessionStatus atomically moves a session from `from` to `to`,
		// stamping `at` as the submission time when `to` is StatusSubmitted.
		// Fails with ErrStatusConflict when the session is no longer in `from`.
		TransitionSessionStatus(id string, from, to Status, at time.Time) (TestSession, error)
		FilterSessions(filter SessionFilter) ([]TestSession, error)
	}

	ResultRepository interface {
		SaveResult(res ScoreResult, rec PlacementRecommendation) error
		GetResultBySessionID(sessionID string) (ScoreResult, PlacementRecommendation, error)
		FilterResults(filter ResultFilter) ([]SessionResult, error)
	}

	Service interface {
		// question bank
		CreateQuestion(nq NewQuestion) (Question, error)
		GetQuestion(id string) (Question, error)
		QueryQuestions(filter *QuestionFilter) ([]Question, error)
		PickQuestions(filter QuestionFilter, count int, seed int64) ([]Question, error)
		UpdateQuestion(id string, uq UpdateQuestion) (Question, error)
		DeleteQuestions(ids ...string) error

		// test sessions
		Start(testTakerID string, in Intake) (TestSession, []Question, error)
		GetSession(id, takerID string) (TestSession, error)
		GetSessionQuestions(sess TestSession) ([]Question, error)
		RecordAnswer(id, takerID, questionID, answer string) (TestSession, error)
		Submit(id, takerID string) (SessionResult, error)
		Withdraw(id, takerID string) (TestSession, error)

		// results
		GetResult(sessionID, takerID string) (SessionResult, error)
		QuerySessions(filter SessionFilter) ([]TestSession, error)
		QueryResults(filter ResultFilter) ([]SessionResult, error)
	}

	service struct {
		questionRepo QuestionRepository
		sessionRepo  SessionRepository
		resultRepo   ResultRepository
		mailSvc      core.EmailService
		conf         *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	questionRepo QuestionRepository,
	sessionRepo SessionRepository,
	resultRepo ResultRepository,
	mailSvc core.EmailService,
	conf *core.Config,
) Service {
	return &service{
		questionRepo: questionRepo,
		sessionRepo:  sessionRepo,
		resultRepo:   resultRepo,
		mailSvc:      mailSvc,
		conf:         conf,
	}
}

// Question Bank

func (svc *service) CreateQuestion(nq NewQuestion) (Question, error) {
	now := NowFunc().UTC()
	q := Question{
		ID:            uuid.New().String(),
		Content:       nq.Content,
		Type:          nq.Type,
		Category:      nq.Category,
		Difficulty:    nq.Difficulty,
		Options:       nq.Options,
		CorrectAnswer: nq.CorrectAnswer,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if nq.Explanation != "" {
		q.Explanation.SetValid(nq.Explanation)
	}
	return svc.questionRepo.CreateQuestion(q)
}

func (svc *service) GetQuestion(id string) (Question, error) {
	return svc.questionRepo.GetQuestionByID(id)
}

func (svc *service) QueryQuestions(filter *QuestionFilter) ([]Question, error) {
	if filter == nil || filter.IsEmpty() {
		return svc.questionRepo.QueryAllQuestions()
	}
	return svc.questionRepo.FilterQuestions(*filter)
}

// PickQuestions selects `count` bank questions matching the filter, without
// replacement. Selection order is reproducible for a given seed.
func (svc *service) PickQuestions(filter QuestionFilter, count int, seed int64) ([]Question, error) {
	candidates, err := svc.QueryQuestions(&filter)
	if err != nil {
		return nil, err
	}
	return pickQuestions(candidates, count, seed)
}

func (svc *service) UpdateQuestion(id string, uq UpdateQuestion) (Question, error) {
	orig, err := svc.questionRepo.GetQuestionByID(id)
	if err != nil {
		return Question{}, err
	}
	if err = uq.Validate(orig); err != nil {
		return Question{}, err
	}

	// questions referenced by a submitted session are frozen
	inUse, err := svc.questionRepo.QuestionHasSubmissions(id)
	if err != nil {
		return Question{}, err
	}
	if inUse {
		return Question{}, ErrQuestionInUse
	}

	orig.Content = uq.Content
	orig.Type = uq.Type
	orig.Category = uq.Category
	orig.Difficulty = uq.Difficulty
	orig.Options = uq.Options
	orig.CorrectAnswer = uq.CorrectAnswer
	if uq.Explanation != nil {
		if *uq.Explanation == "" {
			orig.Explanation = null.String{}
		} else {
			orig.Explanation.SetValid(*uq.Explanation)
		}
	}
	orig.Version++
	orig.UpdatedAt = NowFunc().UTC()
	return svc.questionRepo.UpdateQuestion(orig)
}

func (svc *service) DeleteQuestions(ids ...string) error {
	for _, id := range ids {
		inUse, err := svc.questionRepo.QuestionHasSubmissions(id)
		if err != nil {
			return err
		}
		if inUse {
			return ErrQuestionInUse
		}
	}
	return svc.questionRepo.DeleteQuestionsByID(ids...)
}

// Test Sessions

// Start validates the intake record, selects the session's question set and
// creates the session. No session row is created when validation fails.
func (svc *service) Start(testTakerID string, in Intake) (TestSession, []Question, error) {
	if err := in.Validate(); err != nil {
		return TestSession{}, nil, err
	}

	id := uuid.New().String()
	questions, err := svc.PickQuestions(QuestionFilter{}, svc.conf.Assessment.QuestionCount, SessionSeed(id))
	if err != nil {
		return TestSession{}, nil, err
	}

	qids := make([]string, len(questions))
	for i, q := range questions {
		qids[i] = q.ID
	}
	if err = validateQuestionSet(qids); err != nil {
		return TestSession{}, nil, err
	}

	sess := TestSession{
		ID:           id,
		TestTakerID:  testTakerID,
		QuestionIDs:  qids,
		Answers:      make(map[string]string),
		Status:       StatusInProgress,
		TimeLimitSec: int(svc.conf.Assessment.TimeLimit / time.Second),
		StartedAt:    NowFunc().UTC(),
		Intake: IntakeInfo{
			Name:        in.Name,
			Email:       in.Email,
			DateOfBirth: in.DateOfBirth,
		},
	}
	sess, err = svc.sessionRepo.CreateSession(sess)
	if err != nil {
		return TestSession{}, nil, err
	}

	taker := make([]Question, len(questions))
	for i, q := range questions {
		taker[i] = q.TakerView()
	}
	return sess, taker, nil
}

// GetSession loads a session on behalf of its owner, lazily expiring it when
// the deadline has passed.
func (svc *service) GetSession(id, takerID string) (TestSession, error) {
	sess, err := svc.getOwnedSession(id, takerID)
	if err != nil {
		return TestSession{}, err
	}
	return svc.lazyExpire(sess)
}

// GetSessionQuestions returns the session's questions in their frozen order,
// stripped of answer keys.
func (svc *service) GetSessionQuestions(sess TestSession) ([]Question, error) {
	questions, err := svc.questionRepo.GetQuestionsByID(sess.QuestionIDs...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	ordered := make([]Question, 0, len(sess.QuestionIDs))
	for _, qid := range sess.QuestionIDs {
		q, ok := byID[qid]
		if !ok {
			return nil, ErrUnknownQuestion
		}
		ordered = append(ordered, q.TakerView())
	}
	return ordered, nil
}

// RecordAnswer overwrites the answer for a question (last-write-wins) while
// the session is in progress and within its deadline.
func (svc *service) RecordAnswer(id, takerID, questionID, answer string) (TestSession, error) {
	sess, err := svc.getOwnedSession(id, takerID)
	if err != nil {
		return TestSession{}, err
	}
	if sess, err = svc.checkWritable(sess); err != nil {
		return TestSession{}, err
	}
	if !containsID(sess.QuestionIDs, questionID) {
		return TestSession{}, ErrQuestionNotFound
	}
	return svc.sessionRepo.SaveAnswer(sess.ID, questionID, answer)
}

// Submit atomically transitions the session to submitted, freezes its
// answers, computes the score and placement and persists both.
// A duplicate submit fails with ErrAlreadySubmitted: exactly one caller wins.
func (svc *service) Submit(id, takerID string) (SessionResult, error) {
	sess, err := svc.getOwnedSession(id, takerID)
	if err != nil {
		return SessionResult{}, err
	}
	if sess, err = svc.checkWritable(sess); err != nil {
		return SessionResult{}, err
	}

	now := NowFunc().UTC()
	submitted, err := svc.sessionRepo.TransitionSessionStatus(sess.ID, StatusInProgress, StatusSubmitted, now)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return SessionResult{}, svc.conflictError(sess.ID)
		}
		return SessionResult{}, err
	}

	res, err := svc.computeResult(submitted)
	if err != nil {
		return SessionResult{}, err
	}
	svc.sendPlacementMail(submitted, res)
	return res, nil
}

// Withdraw expires an in-progress session early. Downstream treats it the
// same as natural expiry.
func (svc *service) Withdraw(id, takerID string) (TestSession, error) {
	sess, err := svc.getOwnedSession(id, takerID)
	if err != nil {
		return TestSession{}, err
	}
	if sess.Status != StatusInProgress {
		return TestSession{}, svc.conflictError(sess.ID)
	}
	expired, err := svc.sessionRepo.TransitionSessionStatus(sess.ID, StatusInProgress, StatusExpired, NowFunc().UTC())
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return TestSession{}, svc.conflictError(sess.ID)
		}
		return TestSession{}, err
	}
	return expired, nil
}

// Results

func (svc *service) GetResult(sessionID, takerID string) (SessionResult, error) {
	sess, err := svc.getOwnedSession(sessionID, takerID)
	if err != nil {
		return SessionResult{}, err
	}
	score, rec, err := svc.resultRepo.GetResultBySessionID(sess.ID)
	if err != nil {
		// a failed save after a winning submit leaves the session terminally
		// submitted with no stored result; scoring is deterministic, so
		// rebuild it from the frozen answers.
		if errors.Is(err, ErrResultNotFound) && sess.Status == StatusSubmitted {
			return svc.computeResult(sess)
		}
		return SessionResult{}, err
	}
	return SessionResult{Session: sess, Score: score, Recommendation: rec}, nil
}

func (svc *service) QuerySessions(filter SessionFilter) ([]TestSession, error) {
	return svc.sessionRepo.FilterSessions(filter)
}

func (svc *service) QueryResults(filter ResultFilter) ([]SessionResult, error) {
	return svc.resultRepo.FilterResults(filter)
}

// helpers

// getOwnedSession loads a session and enforces single-owner access.
// A mismatched owner gets ErrSessionNotFound: the session's existence is not
// revealed to anyone but its test-taker (admins use QuerySessions).
func (svc *service) getOwnedSession(id, takerID string) (TestSession, error) {
	sess, err := svc.sessionRepo.GetSessionByID(id)
	if err != nil {
		return TestSession{}, err
	}
	if takerID != "" && sess.TestTakerID != takerID {
		return TestSession{}, ErrSessionNotFound
	}
	return sess, nil
}

// lazyExpire transitions an overdue in-progress session to expired.
// Expiry is computed on demand from wall-clock time; there is no timer.
func (svc *service) lazyExpire(sess TestSession) (TestSession, error) {
	if sess.Status != StatusInProgress || !sess.IsPastDeadline(NowFunc().UTC()) {
		return sess, nil
	}
	expired, err := svc.sessionRepo.TransitionSessionStatus(sess.ID, StatusInProgress, StatusExpired, NowFunc().UTC())
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			// a concurrent access expired or submitted it first; reload
			return svc.sessionRepo.GetSessionByID(sess.ID)
		}
		return TestSession{}, err
	}
	return expired, nil
}

// checkWritable rejects writes to terminal or overdue sessions,
// expiring the latter first.
func (svc *service) checkWritable(sess TestSession) (TestSession, error) {
	sess, err := svc.lazyExpire(sess)
	if err != nil {
		return TestSession{}, err
	}
	switch sess.Status {
	case StatusInProgress:
		return sess, nil
	case StatusExpired:
		return TestSession{}, ErrSessionExpired
	case StatusSubmitted:
		return TestSession{}, ErrAlreadySubmitted
	}
	return TestSession{}, ErrSessionClosed
}

// computeResult scores a submitted session, derives its placement and
// persists both. ScoreResult is a value object recomputable from the frozen
// session, so this is safe to call again if an earlier save failed.
func (svc *service) computeResult(sess TestSession) (SessionResult, error) {
	questions, err := svc.questionRepo.GetQuestionsByID(sess.QuestionIDs...)
	if err != nil {
		return SessionResult{}, err
	}
	score, err := Score(sess, questions, sess.SubmittedAt.Time)
	if err != nil {
		return SessionResult{}, err
	}
	rec := Recommend(score)
	if err = svc.resultRepo.SaveResult(score, rec); err != nil {
		return SessionResult{}, err
	}
	return SessionResult{Session: sess, Score: score, Recommendation: rec}, nil
}

// conflictError reloads a session to report the precise terminal-state error.
func (svc *service) conflictError(id string) error {
	sess, err := svc.sessionRepo.GetSessionByID(id)
	if err != nil {
		return err
	}
	switch sess.Status {
	case StatusSubmitted:
		return ErrAlreadySubmitted
	case StatusExpired:
		return ErrSessionExpired
	}
	return ErrSessionClosed
}

func (svc *service) sendPlacementMail(sess TestSession, res SessionResult) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: sess.Intake.Name, Address: sess.Intake.Email}},
		Subject:      "Your Entrance Test Result",
		TemplateName: "placement-result",
		TemplateData: struct {
			Name      string
			Overall   int
			Level     string
			Rationale string
		}{sess.Intake.Name, res.Score.Overall, string(res.Recommendation.Level), res.Recommendation.Rationale},
	})
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
