package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core/assessment"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
)

func intakeBody(t *testing.T) []byte {
	return marchallObj(t, map[string]interface{}{
		"name":          "Jane Doe",
		"email":         "jane@test.cd",
		"date_of_birth": "2000-03-15T00:00:00Z",
		"agree_terms":   true,
	})
}

func startSession(t *testing.T, app *testApp, token string) echoapi.StartSessionResponse {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPost, "/v1/assessment/sessions", token, intakeBody(t))
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("startSession() code = %v; want %v: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var resp echoapi.StartSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("startSession() unmarshal: %v", err)
	}
	return resp
}

func Test_assessmentApi_sessionFlow(t *testing.T) {
	app := setup(t)
	createQuestions(t, app.assessmentSvc, 8)

	student := createUser(t, app.usrRepo, "Hero", "heroic", "hero@test.cd", "", []string{user.RoleStudent}, true)
	token := getToken(t, student)

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/assessment/sessions", intakeBody(t))
		app.server.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("intake must agree to terms", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"name": "Jane", "email": "jane@test.cd", "date_of_birth": "2000-03-15T00:00:00Z", "agree_terms": false,
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/assessment/sessions", token, body)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusBadRequest)
		}
	})

	resp := startSession(t, app, token)
	sess := resp.Session

	t.Run("session is scoped to its taker", func(t *testing.T) {
		if sess.TestTakerID != student.ID {
			t.Errorf("TestTakerID = %q, want %q", sess.TestTakerID, student.ID)
		}
		if sess.Status != assessment.StatusInProgress {
			t.Errorf("Status = %q, want %q", sess.Status, assessment.StatusInProgress)
		}
		if len(resp.Questions) != 5 {
			t.Fatalf("got %d questions, want 5", len(resp.Questions))
		}
		for _, q := range resp.Questions {
			if q.CorrectAnswer != "" {
				t.Errorf("question %s leaked its answer key", q.ID)
			}
		}

		other := createUser(t, app.usrRepo, "Other", "othero", "other@test.cd", "", []string{user.RoleStudent}, true)
		req, rec := newAuthRequest(http.MethodGet, "/v1/assessment/sessions/"+sess.ID, getToken(t, other))
		app.server.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: assessment.ErrSessionNotFound.Error()})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("questions come back in frozen order", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assessment/sessions/"+sess.ID+"/questions", token)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusOK)
		}
		var questions []assessment.Question
		if err := json.Unmarshal(rec.Body.Bytes(), &questions); err != nil {
			t.Fatalf("unmarshalling questions: %v", err)
		}
		for i, q := range questions {
			if q.ID != sess.QuestionIDs[i] {
				t.Errorf("question %d out of order: %s != %s", i, q.ID, sess.QuestionIDs[i])
			}
		}
	})

	t.Run("record answers", func(t *testing.T) {
		// all bank questions expect "is"; get 3 of 5 right
		for i, qid := range sess.QuestionIDs {
			answer := "was"
			if i < 3 {
				answer = "is"
			}
			body := marchallObj(t, map[string]string{"question_id": qid, "answer": answer})
			req, rec := newAuthRequest(http.MethodPut, "/v1/assessment/sessions/"+sess.ID+"/answers", token, body)
			app.server.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("failed! code = %v; wantCode %v: %s", rec.Code, http.StatusOK, rec.Body.String())
			}
		}
	})

	t.Run("record answer requires a payload", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"question_id": sess.QuestionIDs[0]})
		req, rec := newAuthRequest(http.MethodPut, "/v1/assessment/sessions/"+sess.ID+"/answers", token, body)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("submit", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/assessment/sessions/"+sess.ID+"/submit", token)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var res assessment.SessionResult
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("unmarshalling result: %v", err)
		}
		if res.Score.Overall != 60 {
			t.Errorf("Overall = %d, want 60", res.Score.Overall)
		}
		if res.Recommendation.Level != assessment.LevelIntermediate {
			t.Errorf("Level = %q, want %q", res.Recommendation.Level, assessment.LevelIntermediate)
		}
		if len(emailsvc.SentMessages) != 1 || emailsvc.SentMessages[0].TemplateName != "placement-result" {
			t.Errorf("outbox = %+v; want a single placement-result mail", emailsvc.SentMessages)
		}
	})

	t.Run("double submit", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/assessment/sessions/"+sess.ID+"/submit", token)
		app.server.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: assessment.ErrAlreadySubmitted.Error()})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("withdraw after submit", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/assessment/sessions/"+sess.ID+"/withdraw", token)
		app.server.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: assessment.ErrAlreadySubmitted.Error()})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("retrieve result", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assessment/sessions/"+sess.ID+"/result", token)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusOK)
		}
		var res assessment.SessionResult
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("unmarshalling result: %v", err)
		}
		if res.Score.Overall != 60 || res.Recommendation.Level != assessment.LevelIntermediate {
			t.Errorf("result = %+v; want 60%% intermediate", res)
		}
	})
}

func Test_assessmentApi_start_emptyBank(t *testing.T) {
	app := setup(t)
	student := createUser(t, app.usrRepo, "Hero", "heroic", "hero@test.cd", "", []string{user.RoleStudent}, true)

	req, rec := newAuthRequest(http.MethodPost, "/v1/assessment/sessions", getToken(t, student), intakeBody(t))
	app.server.ServeHTTP(rec, req)

	tt := httpTest{
		wantCode: http.StatusUnprocessableEntity,
		wantData: marchallObj(t, httpErr{Error: assessment.ErrNotEnoughQuestions.Error()}),
	}
	checkCodeAndData(t, tt, rec)
}

func Test_assessmentApi_questionBank(t *testing.T) {
	app := setup(t)

	student := createUser(t, app.usrRepo, "Hero", "heroic", "hero@test.cd", "", []string{user.RoleStudent}, true)
	teacher := createUser(t, app.usrRepo, "Teacher", "teachme", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	admin := createUser(t, app.usrRepo, "Admin", "theadmin", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	teacherToken := getToken(t, teacher)
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})

	newQ := map[string]interface{}{
		"content":        "Pick the synonym of 'big'.",
		"type":           string(assessment.QuestionMultipleChoice),
		"category":       string(assessment.CategoryVocabulary),
		"difficulty":     2,
		"options":        []string{"large", "tiny", "narrow"},
		"correct_answer": "large",
	}

	var created assessment.Question

	t.Run("staff required", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/assessment/questions", getToken(t, student), marchallObj(t, newQ))
		app.server.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusForbidden, wantData: forbidden}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/assessment/questions", teacherToken, marchallObj(t, newQ))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; wantCode %v: %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
			t.Fatalf("unmarshalling question: %v", err)
		}
		if created.ID == "" || created.Version != 1 {
			t.Errorf("created = %+v; want a versioned question with an id", created)
		}
	})

	t.Run("answer must be one of the options", func(t *testing.T) {
		bad := map[string]interface{}{
			"content":        "Pick one.",
			"type":           string(assessment.QuestionMultipleChoice),
			"category":       string(assessment.CategoryVocabulary),
			"difficulty":     2,
			"options":        []string{"a", "b"},
			"correct_answer": "z",
		}
		req, rec := newAuthRequest(http.MethodPost, "/v1/assessment/questions", teacherToken, marchallObj(t, bad))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("filter by category", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assessment/questions?category=vocabulary", teacherToken)
		app.server.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusOK, wantData: marchallList(t, created)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("update bumps the version", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"content": "Pick the synonym of 'huge'."})
		req, rec := newAuthRequest(http.MethodPut, "/v1/assessment/questions/"+created.ID, teacherToken, body)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var updated assessment.Question
		if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
			t.Fatalf("unmarshalling question: %v", err)
		}
		if updated.Version != 2 {
			t.Errorf("Version = %d, want 2", updated.Version)
		}
		if updated.Content != "Pick the synonym of 'huge'." {
			t.Errorf("Content = %q", updated.Content)
		}
	})

	t.Run("delete requires admin", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/assessment/questions?id="+created.ID, teacherToken)
		app.server.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusForbidden, wantData: forbidden}
		checkCodeAndData(t, tt, rec)

		req, rec = newAuthRequest(http.MethodDelete, "/v1/assessment/questions?id="+created.ID, getToken(t, admin))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusNoContent)
		}
	})
}

func Test_assessmentApi_reporting(t *testing.T) {
	app := setup(t)
	createQuestions(t, app.assessmentSvc, 5)

	student := createUser(t, app.usrRepo, "Hero", "heroic", "hero@test.cd", "", []string{user.RoleStudent}, true)
	teacher := createUser(t, app.usrRepo, "Teacher", "teachme", "teacher@test.cd", "", []string{user.RoleTeacher}, true)

	resp := startSession(t, app, getToken(t, student))
	req, rec := newAuthRequest(http.MethodPost, "/v1/assessment/sessions/"+resp.Session.ID+"/submit", getToken(t, student))
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: code = %v; want %v", rec.Code, http.StatusOK)
	}

	t.Run("staff required", func(t *testing.T) {
		for _, path := range []string{"/v1/assessment/all-sessions", "/v1/assessment/results"} {
			req, rec := newAuthRequest(http.MethodGet, path, getToken(t, student))
			app.server.ServeHTTP(rec, req)
			if rec.Code != http.StatusForbidden {
				t.Errorf("%s: code = %v; want %v", path, rec.Code, http.StatusForbidden)
			}
		}
	})

	t.Run("sessions", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assessment/all-sessions?status=submitted", getToken(t, teacher))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusOK)
		}
		var sessions []assessment.TestSession
		if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
			t.Fatalf("unmarshalling sessions: %v", err)
		}
		if len(sessions) != 1 || sessions[0].ID != resp.Session.ID {
			t.Errorf("sessions = %+v; want the submitted session only", sessions)
		}
	})

	t.Run("results", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assessment/results?level=beginner", getToken(t, teacher))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusOK)
		}
		var results []assessment.SessionResult
		if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
			t.Fatalf("unmarshalling results: %v", err)
		}
		// no answers recorded: 0% places the taker at beginner
		if len(results) != 1 || results[0].Recommendation.Level != assessment.LevelBeginner {
			t.Errorf("results = %+v; want a single beginner placement", results)
		}
	})
}
