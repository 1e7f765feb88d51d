package tests

import (
	"log"
	"net/http"
	"os"
	"testing"

	"github.com/trezcool/academia/core"
	userpkg "github.com/trezcool/academia/core/user"
	logsvc "github.com/trezcool/academia/services/logger"
)

var (
	conf   *core.Config
	logger *logsvc.StdLogger
)

func TestMain(m *testing.M) {
	conf = core.NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.Assessment.QuestionCount = 5

	logger = logsvc.NewStdLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags|log.Lshortfile))
	core.ParseEmailTemplates(conf, logger)
	userpkg.LoadCommonPasswords(conf, logger)

	os.Exit(m.Run())
}

func Test_home(t *testing.T) {
	app := setup(t)

	req, rec := newRequest(http.MethodGet, "/")
	app.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusOK)
	}
	if want := "Welcome to Academia API!"; rec.Body.String() != want {
		t.Errorf("failed! body = %q; want %q", rec.Body.String(), want)
	}
}
