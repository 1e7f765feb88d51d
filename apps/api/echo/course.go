package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/course"
)

type courseApi struct {
	svc course.Service
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc course.Service) {
	api := courseApi{svc: svc}

	cg := g.Group("/courses", jwt)

	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)
	cg.GET("/:id/classes", api.queryClasses)

	// staff endpoints
	cg.POST("", api.create, staffMiddleware())
	cg.PUT("/:id", api.update, staffMiddleware())
	cg.DELETE("", api.destroyMultiple, adminMiddleware())
	cg.POST("/:id/classes", api.addClass, staffMiddleware())
	cg.GET("/:id/enrollments", api.queryEnrollments, staffMiddleware())

	// student endpoints
	cg.POST("/:id/enroll", api.enroll)
	cg.POST("/:id/withdraw", api.withdraw)
	g.GET("/enrollments", api.myEnrollments, jwt)
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	c, err := api.svc.Create(data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.Filter(filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.GetByID(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) update(ctx echo.Context) error {
	orig, err := api.svc.GetByID(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}

	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err := data.Validate(orig); err != nil {
		return err
	}

	c, err := api.svc.Update(orig.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.Delete(query.IDs...); err != nil {
		return errors.Wrap(err, "deleting courses")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) addClass(ctx echo.Context) error {
	var data course.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	cl, err := api.svc.AddClass(ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding class")
	}
	return ctx.JSON(http.StatusCreated, cl)
}

func (api *courseApi) queryClasses(ctx echo.Context) error {
	classes, err := api.svc.Classes(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []course.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *courseApi) enroll(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	e, err := api.svc.Enroll(ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *courseApi) withdraw(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	e, err := api.svc.WithdrawEnrollment(ctx.Param("id"), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "withdrawing enrollment")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *courseApi) queryEnrollments(ctx echo.Context) error {
	enrollments, err := api.svc.Enrollments(ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if enrollments == nil {
		enrollments = []course.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *courseApi) myEnrollments(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	enrollments, err := api.svc.StudentEnrollments(claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying student enrollments")
	}
	if enrollments == nil {
		enrollments = []course.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}
