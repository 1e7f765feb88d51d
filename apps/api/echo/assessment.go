package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/assessment"
)

type assessmentApi struct {
	svc assessment.Service
}

func registerAssessmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc assessment.Service) {
	api := assessmentApi{svc: svc}

	ag := g.Group("/assessment", jwt)

	// test-taker endpoints
	sg := ag.Group("/sessions")
	sg.POST("", api.start)
	sg.GET("/:id", api.retrieveSession)
	sg.GET("/:id/questions", api.sessionQuestions)
	sg.PUT("/:id/answers", api.recordAnswer)
	sg.POST("/:id/submit", api.submit)
	sg.POST("/:id/withdraw", api.withdraw)
	sg.GET("/:id/result", api.retrieveResult)

	// question bank management
	qg := ag.Group("/questions", staffMiddleware())
	qg.POST("", api.createQuestion)
	qg.GET("", api.queryQuestions)
	qg.GET("/:id", api.retrieveQuestion)
	qg.PUT("/:id", api.updateQuestion)
	qg.DELETE("", api.destroyQuestions, adminMiddleware())

	// reporting
	ag.GET("/all-sessions", api.querySessions, staffMiddleware())
	ag.GET("/results", api.queryResults, staffMiddleware())
}

// Test-taker handlers

func (api *assessmentApi) start(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data assessment.Intake
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Intake")
	}

	sess, questions, err := api.svc.Start(claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	return ctx.JSON(http.StatusCreated, StartSessionResponse{Session: sess, Questions: questions})
}

func (api *assessmentApi) retrieveSession(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	sess, err := api.svc.GetSession(ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "getting session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *assessmentApi) sessionQuestions(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	sess, err := api.svc.GetSession(ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "getting session")
	}
	questions, err := api.svc.GetSessionQuestions(sess)
	if err != nil {
		return errors.Wrap(err, "getting session questions")
	}
	return ctx.JSON(http.StatusOK, questions)
}

func (api *assessmentApi) recordAnswer(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data RecordAnswerRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecordAnswerRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	sess, err := api.svc.RecordAnswer(ctx.Param("id"), claims.Subject, data.QuestionID, data.Answer)
	if err != nil {
		return errors.Wrap(err, "recording answer")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *assessmentApi) submit(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	res, err := api.svc.Submit(ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "submitting session")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *assessmentApi) withdraw(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	sess, err := api.svc.Withdraw(ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "withdrawing session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *assessmentApi) retrieveResult(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	res, err := api.svc.GetResult(ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "getting result")
	}
	return ctx.JSON(http.StatusOK, res)
}

// Question bank handlers

func (api *assessmentApi) createQuestion(ctx echo.Context) error {
	var data assessment.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}

	q, err := api.svc.CreateQuestion(data)
	if err != nil {
		return errors.Wrap(err, "creating question")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *assessmentApi) queryQuestions(ctx echo.Context) error {
	filter := new(assessment.QuestionFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []assessment.Question{})
	}
	filter.Clean()

	questions, err := api.svc.QueryQuestions(filter)
	if err != nil {
		return errors.Wrap(err, "querying questions")
	}
	if questions == nil {
		questions = []assessment.Question{}
	}
	return ctx.JSON(http.StatusOK, questions)
}

func (api *assessmentApi) retrieveQuestion(ctx echo.Context) error {
	q, err := api.svc.GetQuestion(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting question")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *assessmentApi) updateQuestion(ctx echo.Context) error {
	var data assessment.UpdateQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateQuestion")
	}

	q, err := api.svc.UpdateQuestion(ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating question")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *assessmentApi) destroyQuestions(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.DeleteQuestions(query.IDs...); err != nil {
		return errors.Wrap(err, "deleting questions")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Reporting handlers

func (api *assessmentApi) querySessions(ctx echo.Context) error {
	filter := new(assessment.SessionFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []assessment.TestSession{})
	}

	sessions, err := api.svc.QuerySessions(*filter)
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	if sessions == nil {
		sessions = []assessment.TestSession{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *assessmentApi) queryResults(ctx echo.Context) error {
	filter := new(assessment.ResultFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []assessment.SessionResult{})
	}

	results, err := api.svc.QueryResults(*filter)
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	if results == nil {
		results = []assessment.SessionResult{}
	}
	return ctx.JSON(http.StatusOK, results)
}

type (
	StartSessionResponse struct {
		Session   assessment.TestSession `json:"session"`
		Questions []assessment.Question  `json:"questions"`
	}

	RecordAnswerRequest struct {
		QuestionID string `json:"question_id" validate:"required"`
		Answer     string `json:"answer" validate:"required"`
	}
)

func (ra *RecordAnswerRequest) Validate() error {
	ra.Answer = core.CleanString(ra.Answer)
	return core.Validate.Struct(ra)
}
