package scheduler

import (
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/assessment"
	emailsvc "github.com/trezcool/academia/services/email"
	logsvc "github.com/trezcool/academia/services/logger"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
)

func Test_expireOverdueSessions(t *testing.T) {
	conf := core.NewConfig()
	conf.Assessment.QuestionCount = 2

	db := inmemdb.NewDB()
	sessionRepo := inmemdb.NewSessionRepository(db)
	svc := assessment.NewService(
		inmemdb.NewQuestionRepository(db),
		sessionRepo,
		inmemdb.NewResultRepository(db),
		emailsvc.NewDummyService(),
		conf,
	)
	for i := 0; i < 2; i++ {
		nq := assessment.NewQuestion{
			Content:       fmt.Sprintf("Fill in the blank #%d", i),
			Type:          assessment.QuestionFillBlank,
			Category:      assessment.CategoryGrammar,
			Difficulty:    2,
			CorrectAnswer: "is",
		}
		if _, err := svc.CreateQuestion(nq); err != nil {
			t.Fatalf("CreateQuestion() unexpected error = %v", err)
		}
	}

	intake := assessment.Intake{
		Name:        "Jane Doe",
		Email:       "jane@test.cd",
		DateOfBirth: time.Date(2000, 3, 15, 0, 0, 0, 0, time.UTC),
		AgreeTerms:  true,
	}

	// one session started well past its deadline, one fresh
	assessment.NowFunc = func() time.Time { return time.Now().UTC().Add(-2 * time.Hour) }
	overdue, _, err := svc.Start("taker1", intake)
	if err != nil {
		t.Fatalf("Start() unexpected error = %v", err)
	}
	assessment.NowFunc = time.Now
	t.Cleanup(func() { assessment.NowFunc = time.Now })
	fresh, _, err := svc.Start("taker2", intake)
	if err != nil {
		t.Fatalf("Start() unexpected error = %v", err)
	}

	s := New(svc, nil, emailsvc.NewDummyService(), logsvc.NewStdLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags)), conf)
	s.expireOverdueSessions()

	got, err := sessionRepo.GetSessionByID(overdue.ID)
	if err != nil {
		t.Fatalf("GetSessionByID() unexpected error = %v", err)
	}
	if got.Status != assessment.StatusExpired {
		t.Errorf("overdue session status = %q, want %q", got.Status, assessment.StatusExpired)
	}

	got, err = sessionRepo.GetSessionByID(fresh.ID)
	if err != nil {
		t.Fatalf("GetSessionByID() unexpected error = %v", err)
	}
	if got.Status != assessment.StatusInProgress {
		t.Errorf("fresh session status = %q, want %q", got.Status, assessment.StatusInProgress)
	}
}
