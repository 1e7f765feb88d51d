package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core/assessment"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	server        Server
	usrRepo       user.Repository
	usrSvc        user.Service
	assessmentSvc assessment.Service
	courseSvc     course.Service
}

func setup(t *testing.T) *testApp {
	t.Helper()
	emailsvc.ClearSentMessages()

	db := inmemdb.NewDB()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	app := &testApp{
		usrRepo: inmemdb.NewUserRepository(db),
	}
	app.usrSvc = user.NewServiceMock(app.usrRepo, mailSvc, conf)
	app.assessmentSvc = assessment.NewService(
		inmemdb.NewQuestionRepository(db),
		inmemdb.NewSessionRepository(db),
		inmemdb.NewResultRepository(db),
		mailSvc,
		conf,
	)
	app.courseSvc = course.NewService(inmemdb.NewCourseRepository(db))

	app.server = NewServer(
		&Options{
			DisableReqLogs: true,
			UserSvc:        app.usrSvc,
			AssessmentSvc:  app.assessmentSvc,
			CourseSvc:      app.courseSvc,
			Logger:         logger,
			Conf:           conf,
		},
	)
	return app
}

func createUser(t *testing.T, repo user.Repository, name, uname, email, pwd string, roles []string, isActive bool) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Username:  uname,
		Email:     email,
		IsActive:  isActive,
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func createQuestions(t *testing.T, svc assessment.Service, n int) []assessment.Question {
	t.Helper()
	questions := make([]assessment.Question, n)
	for i := 0; i < n; i++ {
		q, err := svc.CreateQuestion(assessment.NewQuestion{
			Content:       "Complete the sentence: the weather ___ nice today.",
			Type:          assessment.QuestionFillBlank,
			Category:      assessment.CategoryGrammar,
			Difficulty:    2,
			CorrectAnswer: "is",
		})
		if err != nil {
			t.Fatalf("createQuestions() failed: %v", err)
		}
		questions[i] = q
	}
	return questions
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(conf, usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

// nolint
func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
