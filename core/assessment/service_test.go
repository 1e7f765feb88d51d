package assessment_test

import (
	"errors"
	"fmt"
	"log"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/assessment"
	emailsvc "github.com/trezcool/academia/services/email"
	logsvc "github.com/trezcool/academia/services/logger"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
)

var conf *core.Config

func TestMain(m *testing.M) {
	conf = core.NewConfig()
	conf.Assessment.QuestionCount = 5
	core.ParseEmailTemplates(conf, logsvc.NewStdLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags)))
	os.Exit(m.Run())
}

type fixture struct {
	svc         assessment.Service
	sessionRepo assessment.SessionRepository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	emailsvc.ClearSentMessages()

	db := inmemdb.NewDB()
	fix := &fixture{
		sessionRepo: inmemdb.NewSessionRepository(db),
	}
	fix.svc = assessment.NewService(
		inmemdb.NewQuestionRepository(db),
		fix.sessionRepo,
		inmemdb.NewResultRepository(db),
		emailsvc.NewConsoleServiceMock(conf),
		conf,
	)
	return fix
}

// seedQuestions adds n fill-in-the-blank reading questions to the bank.
// Question i's correct answer is "answer-i".
func seedQuestions(t *testing.T, svc assessment.Service, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		nq := assessment.NewQuestion{
			Content:       fmt.Sprintf("Fill in the blank #%d", i),
			Type:          assessment.QuestionFillBlank,
			Category:      assessment.CategoryReading,
			Difficulty:    3,
			CorrectAnswer: fmt.Sprintf("answer-%d", i),
		}
		if _, err := svc.CreateQuestion(nq); err != nil {
			t.Fatalf("CreateQuestion() unexpected error = %v", err)
		}
	}
}

func mockNow(t *testing.T, at time.Time) {
	t.Helper()
	assessment.NowFunc = func() time.Time { return at }
	t.Cleanup(func() { assessment.NowFunc = time.Now })
}

func validIntake() assessment.Intake {
	return assessment.Intake{
		Name:        "Jane Doe",
		Email:       "jane@test.cd",
		DateOfBirth: time.Date(2000, 3, 15, 0, 0, 0, 0, time.UTC),
		AgreeTerms:  true,
	}
}

func TestService_Start(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mockNow(t, now)

	t.Run("invalid intake creates no session", func(t *testing.T) {
		fix := setup(t)
		seedQuestions(t, fix.svc, 5)

		in := validIntake()
		in.AgreeTerms = false
		if _, _, err := fix.svc.Start("taker1", in); err == nil {
			t.Fatal("Start() expected a validation error")
		}

		sessions, err := fix.svc.QuerySessions(assessment.SessionFilter{})
		if err != nil {
			t.Fatalf("QuerySessions() unexpected error = %v", err)
		}
		if len(sessions) != 0 {
			t.Errorf("found %d sessions, want 0", len(sessions))
		}
	})

	t.Run("not enough questions in the bank", func(t *testing.T) {
		fix := setup(t)
		seedQuestions(t, fix.svc, 3) // conf wants 5

		if _, _, err := fix.svc.Start("taker1", validIntake()); err != assessment.ErrNotEnoughQuestions {
			t.Errorf("Start() error = %v, want %v", err, assessment.ErrNotEnoughQuestions)
		}
	})

	t.Run("ok", func(t *testing.T) {
		fix := setup(t)
		seedQuestions(t, fix.svc, 8)

		sess, questions, err := fix.svc.Start("taker1", validIntake())
		if err != nil {
			t.Fatalf("Start() unexpected error = %v", err)
		}
		if sess.Status != assessment.StatusInProgress {
			t.Errorf("Status = %q, want %q", sess.Status, assessment.StatusInProgress)
		}
		if len(sess.QuestionIDs) != 5 {
			t.Errorf("session has %d questions, want 5", len(sess.QuestionIDs))
		}
		if sess.TimeLimitSec != int(conf.Assessment.TimeLimit/time.Second) {
			t.Errorf("TimeLimitSec = %d, want %d", sess.TimeLimitSec, int(conf.Assessment.TimeLimit/time.Second))
		}
		if !sess.StartedAt.Equal(now) {
			t.Errorf("StartedAt = %v, want %v", sess.StartedAt, now)
		}
		if sess.Intake.Name != "Jane Doe" || sess.Intake.Email != "jane@test.cd" {
			t.Errorf("intake snapshot = %+v", sess.Intake)
		}
		for i, q := range questions {
			if q.ID != sess.QuestionIDs[i] {
				t.Errorf("question %d out of order: %s != %s", i, q.ID, sess.QuestionIDs[i])
			}
			if q.CorrectAnswer != "" {
				t.Errorf("question %s leaked its answer key", q.ID)
			}
			if q.Explanation.Valid {
				t.Errorf("question %s leaked its explanation", q.ID)
			}
		}
	})
}

func TestService_GetSessionQuestions_frozenOrder(t *testing.T) {
	mockNow(t, time.Now().UTC())
	fix := setup(t)
	seedQuestions(t, fix.svc, 10)

	sess, first, err := fix.svc.Start("taker1", validIntake())
	if err != nil {
		t.Fatalf("Start() unexpected error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := fix.svc.GetSessionQuestions(sess)
		if err != nil {
			t.Fatalf("GetSessionQuestions() unexpected error = %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatal("question order changed between calls")
		}
	}
}

func TestService_RecordAnswer(t *testing.T) {
	mockNow(t, time.Now().UTC())
	fix := setup(t)
	seedQuestions(t, fix.svc, 5)

	sess, _, err := fix.svc.Start("taker1", validIntake())
	if err != nil {
		t.Fatalf("Start() unexpected error = %v", err)
	}
	qid := sess.QuestionIDs[0]

	t.Run("last write wins", func(t *testing.T) {
		if _, err := fix.svc.RecordAnswer(sess.ID, "taker1", qid, "first"); err != nil {
			t.Fatalf("RecordAnswer() unexpected error = %v", err)
		}
		got, err := fix.svc.RecordAnswer(sess.ID, "taker1", qid, "second")
		if err != nil {
			t.Fatalf("RecordAnswer() unexpected error = %v", err)
		}
		if got.Answers[qid] != "second" {
			t.Errorf("Answers[%s] = %q, want %q", qid, got.Answers[qid], "second")
		}
	})

	t.Run("question not in session", func(t *testing.T) {
		if _, err := fix.svc.RecordAnswer(sess.ID, "taker1", "ghost", "x"); err != assessment.ErrQuestionNotFound {
			t.Errorf("RecordAnswer() error = %v, want %v", err, assessment.ErrQuestionNotFound)
		}
	})

	t.Run("another taker cannot see the session", func(t *testing.T) {
		if _, err := fix.svc.RecordAnswer(sess.ID, "intruder", qid, "x"); err != assessment.ErrSessionNotFound {
			t.Errorf("RecordAnswer() error = %v, want %v", err, assessment.ErrSessionNotFound)
		}
		if _, err := fix.svc.GetSession(sess.ID, "intruder"); err != assessment.ErrSessionNotFound {
			t.Errorf("GetSession() error = %v, want %v", err, assessment.ErrSessionNotFound)
		}
	})
}

func TestService_lazyExpiry(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mockNow(t, start)
	fix := setup(t)
	seedQuestions(t, fix.svc, 5)

	sess, _, err := fix.svc.Start("taker1", validIntake())
	if err != nil {
		t.Fatalf("Start() unexpected error = %v", err)
	}

	// exactly at the deadline: still writable
	assessment.NowFunc = func() time.Time { return sess.Deadline() }
	if _, err := fix.svc.RecordAnswer(sess.ID, "taker1", sess.QuestionIDs[0], "x"); err != nil {
		t.Fatalf("RecordAnswer() at deadline unexpected error = %v", err)
	}

	// past the deadline: writes fail and the session flips to expired
	assessment.NowFunc = func() time.Time { return sess.Deadline().Add(time.Second) }
	if _, err := fix.svc.RecordAnswer(sess.ID, "taker1", sess.QuestionIDs[0], "x"); err != assessment.ErrSessionExpired {
		t.Fatalf("RecordAnswer() error = %v, want %v", err, assessment.ErrSessionExpired)
	}
	if _, err := fix.svc.Submit(sess.ID, "taker1"); err != assessment.ErrSessionExpired {
		t.Errorf("Submit() error = %v, want %v", err, assessment.ErrSessionExpired)
	}

	got, err := fix.sessionRepo.GetSessionByID(sess.ID)
	if err != nil {
		t.Fatalf("GetSessionByID() unexpected error = %v", err)
	}
	if got.Status != assessment.StatusExpired {
		t.Errorf("Status = %q, want %q", got.Status, assessment.StatusExpired)
	}
}

func TestService_Submit(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mockNow(t, now)
	fix := setup(t)
	seedQuestions(t, fix.svc, 5)

	sess, questions, err := fix.svc.Start("taker1", validIntake())
	if err != nil {
		t.Fatalf("Start() unexpected error = %v", err)
	}

	// answer 3 of 5 correctly; answer keys were stripped so look them up by content
	for i, q := range questions {
		answer := "wrong"
		if i < 3 {
			full, err := fix.svc.GetQuestion(q.ID)
			if err != nil {
				t.Fatalf("GetQuestion() unexpected error = %v", err)
			}
			answer = full.CorrectAnswer
		}
		if _, err := fix.svc.RecordAnswer(sess.ID, "taker1", q.ID, answer); err != nil {
			t.Fatalf("RecordAnswer() unexpected error = %v", err)
		}
	}

	res, err := fix.svc.Submit(sess.ID, "taker1")
	if err != nil {
		t.Fatalf("Submit() unexpected error = %v", err)
	}
	if res.Session.Status != assessment.StatusSubmitted {
		t.Errorf("Status = %q, want %q", res.Session.Status, assessment.StatusSubmitted)
	}
	if !res.Session.SubmittedAt.Valid || !res.Session.SubmittedAt.Time.Equal(now) {
		t.Errorf("SubmittedAt = %v, want %v", res.Session.SubmittedAt, now)
	}
	if res.Score.Overall != 60 || res.Score.Correct != 3 || res.Score.Total != 5 {
		t.Errorf("Score = %+v, want 3/5 = 60%%", res.Score)
	}
	if res.Recommendation.Level != assessment.LevelIntermediate {
		t.Errorf("Level = %q, want %q", res.Recommendation.Level, assessment.LevelIntermediate)
	}

	t.Run("placement mail is sent", func(t *testing.T) {
		if len(emailsvc.SentMessages) != 1 {
			t.Fatalf("sent %d mails, want 1", len(emailsvc.SentMessages))
		}
		msg := emailsvc.SentMessages[0]
		if msg.TemplateName != "placement-result" {
			t.Errorf("TemplateName = %q, want %q", msg.TemplateName, "placement-result")
		}
		if len(msg.To) != 1 || msg.To[0].Address != "jane@test.cd" {
			t.Errorf("To = %v, want jane@test.cd", msg.To)
		}
	})

	t.Run("result is retrievable by its owner only", func(t *testing.T) {
		got, err := fix.svc.GetResult(sess.ID, "taker1")
		if err != nil {
			t.Fatalf("GetResult() unexpected error = %v", err)
		}
		if !reflect.DeepEqual(got.Score, res.Score) {
			t.Errorf("GetResult() score = %+v, want %+v", got.Score, res.Score)
		}
		if _, err := fix.svc.GetResult(sess.ID, "intruder"); err != assessment.ErrSessionNotFound {
			t.Errorf("GetResult() error = %v, want %v", err, assessment.ErrSessionNotFound)
		}
	})

	t.Run("double submit", func(t *testing.T) {
		if _, err := fix.svc.Submit(sess.ID, "taker1"); err != assessment.ErrAlreadySubmitted {
			t.Errorf("Submit() error = %v, want %v", err, assessment.ErrAlreadySubmitted)
		}
	})

	t.Run("answers are frozen after submit", func(t *testing.T) {
		if _, err := fix.svc.RecordAnswer(sess.ID, "taker1", sess.QuestionIDs[0], "late"); err != assessment.ErrAlreadySubmitted {
			t.Errorf("RecordAnswer() error = %v, want %v", err, assessment.ErrAlreadySubmitted)
		}
	})

	t.Run("submitted questions are frozen", func(t *testing.T) {
		qid := sess.QuestionIDs[0]
		uq := assessment.UpdateQuestion{Content: "edited"}
		if _, err := fix.svc.UpdateQuestion(qid, uq); err != assessment.ErrQuestionInUse {
			t.Errorf("UpdateQuestion() error = %v, want %v", err, assessment.ErrQuestionInUse)
		}
		if err := fix.svc.DeleteQuestions(qid); err != assessment.ErrQuestionInUse {
			t.Errorf("DeleteQuestions() error = %v, want %v", err, assessment.ErrQuestionInUse)
		}
	})
}

func TestService_Submit_concurrent(t *testing.T) {
	mockNow(t, time.Now().UTC())
	fix := setup(t)
	seedQuestions(t, fix.svc, 5)

	sess, _, err := fix.svc.Start("taker1", validIntake())
	if err != nil {
		t.Fatalf("Start() unexpected error = %v", err)
	}

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := fix.svc.Submit(sess.ID, "taker1"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if err != assessment.ErrAlreadySubmitted {
				t.Errorf("Submit() error = %v, want %v", err, assessment.ErrAlreadySubmitted)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("%d submits succeeded, want exactly 1", successes)
	}
	results, err := fix.svc.QueryResults(assessment.ResultFilter{})
	if err != nil {
		t.Fatalf("QueryResults() unexpected error = %v", err)
	}
	if len(results) != 1 {
		t.Errorf("found %d results, want 1", len(results))
	}
}

// rivalSessionRepo makes the first status transition lose to a rival
// transition slipped in just before it.
type rivalSessionRepo struct {
	assessment.SessionRepository
	rivalTo assessment.Status
	once    sync.Once
}

func (r *rivalSessionRepo) TransitionSessionStatus(id string, from, to assessment.Status, at time.Time) (assessment.TestSession, error) {
	r.once.Do(func() {
		_, _ = r.SessionRepository.TransitionSessionStatus(id, from, r.rivalTo, at)
	})
	return r.SessionRepository.TransitionSessionStatus(id, from, to, at)
}

func TestService_lostStatusRace(t *testing.T) {
	mockNow(t, time.Now().UTC())

	setupRival := func(t *testing.T, rivalTo assessment.Status) (assessment.Service, assessment.TestSession) {
		t.Helper()
		emailsvc.ClearSentMessages()
		db := inmemdb.NewDB()
		svc := assessment.NewService(
			inmemdb.NewQuestionRepository(db),
			&rivalSessionRepo{SessionRepository: inmemdb.NewSessionRepository(db), rivalTo: rivalTo},
			inmemdb.NewResultRepository(db),
			emailsvc.NewConsoleServiceMock(conf),
			conf,
		)
		seedQuestions(t, svc, 5)
		sess, _, err := svc.Start("taker1", validIntake())
		if err != nil {
			t.Fatalf("Start() unexpected error = %v", err)
		}
		return svc, sess
	}

	t.Run("submit loses to a rival submit", func(t *testing.T) {
		svc, sess := setupRival(t, assessment.StatusSubmitted)
		if _, err := svc.Submit(sess.ID, "taker1"); err != assessment.ErrAlreadySubmitted {
			t.Errorf("Submit() after lost race error = %v, want %v", err, assessment.ErrAlreadySubmitted)
		}
	})

	t.Run("withdraw loses to a rival submit", func(t *testing.T) {
		svc, sess := setupRival(t, assessment.StatusSubmitted)
		if _, err := svc.Withdraw(sess.ID, "taker1"); err != assessment.ErrAlreadySubmitted {
			t.Errorf("Withdraw() after lost race error = %v, want %v", err, assessment.ErrAlreadySubmitted)
		}
	})

	t.Run("submit loses to a rival expiry", func(t *testing.T) {
		svc, sess := setupRival(t, assessment.StatusExpired)
		if _, err := svc.Submit(sess.ID, "taker1"); err != assessment.ErrSessionExpired {
			t.Errorf("Submit() after lost race error = %v, want %v", err, assessment.ErrSessionExpired)
		}
	})
}

// flakyResultRepo fails saves on demand.
type flakyResultRepo struct {
	assessment.ResultRepository
	fail bool
}

var errSaveFailed = errors.New("result store unavailable")

func (r *flakyResultRepo) SaveResult(res assessment.ScoreResult, rec assessment.PlacementRecommendation) error {
	if r.fail {
		return errSaveFailed
	}
	return r.ResultRepository.SaveResult(res, rec)
}

func TestService_GetResult_recomputesAfterFailedSave(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mockNow(t, now)
	emailsvc.ClearSentMessages()

	db := inmemdb.NewDB()
	resultRepo := &flakyResultRepo{ResultRepository: inmemdb.NewResultRepository(db), fail: true}
	svc := assessment.NewService(
		inmemdb.NewQuestionRepository(db),
		inmemdb.NewSessionRepository(db),
		resultRepo,
		emailsvc.NewConsoleServiceMock(conf),
		conf,
	)
	seedQuestions(t, svc, 5)

	sess, questions, err := svc.Start("taker1", validIntake())
	if err != nil {
		t.Fatalf("Start() unexpected error = %v", err)
	}
	for i, q := range questions {
		answer := "wrong"
		if i < 3 {
			full, err := svc.GetQuestion(q.ID)
			if err != nil {
				t.Fatalf("GetQuestion() unexpected error = %v", err)
			}
			answer = full.CorrectAnswer
		}
		if _, err := svc.RecordAnswer(sess.ID, "taker1", q.ID, answer); err != nil {
			t.Fatalf("RecordAnswer() unexpected error = %v", err)
		}
	}

	// the submit wins the status transition but cannot persist its result
	if _, err := svc.Submit(sess.ID, "taker1"); !errors.Is(err, errSaveFailed) {
		t.Fatalf("Submit() error = %v, want %v", err, errSaveFailed)
	}
	if _, err := svc.Submit(sess.ID, "taker1"); err != assessment.ErrAlreadySubmitted {
		t.Fatalf("Submit() retry error = %v, want %v", err, assessment.ErrAlreadySubmitted)
	}

	// still unavailable: the rebuild fails too
	if _, err := svc.GetResult(sess.ID, "taker1"); !errors.Is(err, errSaveFailed) {
		t.Fatalf("GetResult() error = %v, want %v", err, errSaveFailed)
	}

	// once the store recovers, the result is rebuilt from the frozen answers
	resultRepo.fail = false
	res, err := svc.GetResult(sess.ID, "taker1")
	if err != nil {
		t.Fatalf("GetResult() unexpected error = %v", err)
	}
	if res.Score.Overall != 60 || res.Score.Correct != 3 || res.Score.Total != 5 {
		t.Errorf("Score = %+v, want 3/5 = 60%%", res.Score)
	}
	if res.Recommendation.Level != assessment.LevelIntermediate {
		t.Errorf("Level = %q, want %q", res.Recommendation.Level, assessment.LevelIntermediate)
	}
	if !res.Score.ComputedAt.Equal(res.Session.SubmittedAt.Time) {
		t.Errorf("ComputedAt = %v, want the submission time %v", res.Score.ComputedAt, res.Session.SubmittedAt.Time)
	}

	t.Run("rebuilt result is persisted", func(t *testing.T) {
		results, err := svc.QueryResults(assessment.ResultFilter{})
		if err != nil {
			t.Fatalf("QueryResults() unexpected error = %v", err)
		}
		if len(results) != 1 {
			t.Errorf("found %d results, want 1", len(results))
		}
	})
}

func TestService_Withdraw(t *testing.T) {
	mockNow(t, time.Now().UTC())
	fix := setup(t)
	seedQuestions(t, fix.svc, 5)

	sess, _, err := fix.svc.Start("taker1", validIntake())
	if err != nil {
		t.Fatalf("Start() unexpected error = %v", err)
	}

	got, err := fix.svc.Withdraw(sess.ID, "taker1")
	if err != nil {
		t.Fatalf("Withdraw() unexpected error = %v", err)
	}
	if got.Status != assessment.StatusExpired {
		t.Errorf("Status = %q, want %q", got.Status, assessment.StatusExpired)
	}

	// a withdrawn session behaves exactly like an expired one
	if _, err := fix.svc.Submit(sess.ID, "taker1"); err != assessment.ErrSessionExpired {
		t.Errorf("Submit() error = %v, want %v", err, assessment.ErrSessionExpired)
	}
	if _, err := fix.svc.Withdraw(sess.ID, "taker1"); err != assessment.ErrSessionExpired {
		t.Errorf("Withdraw() error = %v, want %v", err, assessment.ErrSessionExpired)
	}
}

func TestIntake_Validate(t *testing.T) {
	dob := time.Date(2000, 3, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		intake  assessment.Intake
		wantErr bool
	}{
		{"ok", assessment.Intake{Name: "Jane", Email: "jane@test.cd", DateOfBirth: dob, AgreeTerms: true}, false},
		{"missing name", assessment.Intake{Email: "jane@test.cd", DateOfBirth: dob, AgreeTerms: true}, true},
		{"invalid email", assessment.Intake{Name: "Jane", Email: "not-an-email", DateOfBirth: dob, AgreeTerms: true}, true},
		{"missing date of birth", assessment.Intake{Name: "Jane", Email: "jane@test.cd", AgreeTerms: true}, true},
		{"terms not agreed", assessment.Intake{Name: "Jane", Email: "jane@test.cd", DateOfBirth: dob}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.intake.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("email is lowercased", func(t *testing.T) {
		in := assessment.Intake{Name: "Jane", Email: "JANE@Test.CD", DateOfBirth: dob, AgreeTerms: true}
		if err := in.Validate(); err != nil {
			t.Fatalf("Validate() unexpected error = %v", err)
		}
		if in.Email != "jane@test.cd" {
			t.Errorf("Email = %q, want %q", in.Email, "jane@test.cd")
		}
	})
}
