package course

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
)

var (
	// errors
	ErrNotFound        = errors.New("course not found")
	ErrCodeExists      = errors.New("a course with this code already exists")
	ErrCourseInactive  = errors.New("course is not open for enrollment")
	ErrCourseFull      = errors.New("course is at capacity")
	ErrAlreadyEnrolled = errors.New("student is already enrolled in this course")
	ErrNotEnrolled     = errors.New("student is not enrolled in this course")
)

type (
	Repository interface {
		CheckCourseCodeUniqueness(code string) error
		CreateCourse(c Course) (Course, error)
		QueryAllCourses() ([]Course, error)
		GetCourseByID(id string) (Course, error)
		GetCourseByCode(code string) (Course, error)
		// FilterCourses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Course.Code or Course.Title.
		FilterCourses(filter QueryFilter, orderings ...core.DBOrdering) ([]Course, error)
		UpdateCourse(c Course, isActive *bool) (Course, error)
		DeleteCoursesByID(ids ...string) error

		CreateClass(cl Class) (Class, error)
		QueryClassesByCourseID(courseID string) ([]Class, error)
		DeleteClassesByID(ids ...string) error

		CreateEnrollment(e Enrollment) (Enrollment, error)
		GetEnrollment(courseID, studentID string) (Enrollment, error)
		QueryEnrollmentsByCourseID(courseID string) ([]Enrollment, error)
		QueryEnrollmentsByStudentID(studentID string) ([]Enrollment, error)
		CountActiveEnrollments(courseID string) (int, error)
		UpdateEnrollmentStatus(id string, status EnrollmentStatus) (Enrollment, error)
	}

	Service interface {
		CheckCodeUniqueness(code string) error
		Create(nc NewCourse) (Course, error)
		QueryAll() ([]Course, error)
		GetByID(id string) (Course, error)
		GetByCode(code string) (Course, error)
		Filter(filter *QueryFilter, orderings ...core.DBOrdering) ([]Course, error)
		Update(id string, uc UpdateCourse) (Course, error)
		Delete(ids ...string) error

		AddClass(courseID string, nc NewClass) (Class, error)
		Classes(courseID string) ([]Class, error)

		Enroll(courseID, studentID string) (Enrollment, error)
		WithdrawEnrollment(courseID, studentID string) (Enrollment, error)
		Enrollments(courseID string) ([]Enrollment, error)
		StudentEnrollments(studentID string) ([]Enrollment, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) CheckCodeUniqueness(code string) error {
	if err := svc.repo.CheckCourseCodeUniqueness(code); err != nil {
		if err == ErrCodeExists {
			return core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Create(nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	c := Course{
		ID:        uuid.New().String(),
		Code:      nc.Code,
		Title:     nc.Title,
		Level:     nc.Level,
		Capacity:  nc.Capacity,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if nc.Description != "" {
		c.Description.SetValid(nc.Description)
	}
	if nc.TeacherID != "" {
		c.TeacherID.SetValid(nc.TeacherID)
	}
	return svc.repo.CreateCourse(c)
}

func (svc *service) QueryAll() ([]Course, error) {
	return svc.repo.QueryAllCourses()
}

func (svc *service) GetByID(id string) (Course, error) {
	return svc.repo.GetCourseByID(id)
}

func (svc *service) GetByCode(code string) (Course, error) {
	return svc.repo.GetCourseByCode(core.CleanString(code, true /* lower */))
}

func (svc *service) Filter(filter *QueryFilter, orderings ...core.DBOrdering) ([]Course, error) {
	if filter == nil || (filter.IsEmpty() && len(orderings) == 0) {
		return svc.repo.QueryAllCourses()
	}
	return svc.repo.FilterCourses(*filter, orderings...)
}

func (svc *service) Update(id string, uc UpdateCourse) (Course, error) {
	orig, err := svc.repo.GetCourseByID(id)
	if err != nil {
		return Course{}, err
	}
	orig.Title = uc.Title
	orig.Level = uc.Level
	orig.Capacity = uc.Capacity
	if uc.Description != nil {
		if *uc.Description == "" {
			orig.Description = null.String{}
		} else {
			orig.Description.SetValid(*uc.Description)
		}
	}
	if uc.TeacherID != nil {
		if *uc.TeacherID == "" {
			orig.TeacherID = null.String{}
		} else {
			orig.TeacherID.SetValid(*uc.TeacherID)
		}
	}
	orig.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(orig, uc.IsActive)
}

func (svc *service) Delete(ids ...string) error {
	return svc.repo.DeleteCoursesByID(ids...)
}

func (svc *service) AddClass(courseID string, nc NewClass) (Class, error) {
	if _, err := svc.repo.GetCourseByID(courseID); err != nil {
		return Class{}, err
	}
	cl := Class{
		ID:       uuid.New().String(),
		CourseID: courseID,
		Name:     nc.Name,
		Schedule: nc.Schedule,
	}
	return svc.repo.CreateClass(cl)
}

func (svc *service) Classes(courseID string) ([]Class, error) {
	return svc.repo.QueryClassesByCourseID(courseID)
}

// Enroll registers a student on an active course, enforcing capacity and
// duplicate checks.
func (svc *service) Enroll(courseID, studentID string) (Enrollment, error) {
	c, err := svc.repo.GetCourseByID(courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if !c.IsActive {
		return Enrollment{}, ErrCourseInactive
	}

	if e, err := svc.repo.GetEnrollment(courseID, studentID); err == nil && e.Status == EnrollmentActive {
		return Enrollment{}, ErrAlreadyEnrolled
	} else if err != nil && err != ErrNotEnrolled {
		return Enrollment{}, err
	}

	if c.Capacity > 0 {
		count, err := svc.repo.CountActiveEnrollments(courseID)
		if err != nil {
			return Enrollment{}, err
		}
		if count >= c.Capacity {
			return Enrollment{}, ErrCourseFull
		}
	}

	e := Enrollment{
		ID:         uuid.New().String(),
		CourseID:   courseID,
		StudentID:  studentID,
		Status:     EnrollmentActive,
		EnrolledAt: time.Now().UTC(),
	}
	return svc.repo.CreateEnrollment(e)
}

func (svc *service) WithdrawEnrollment(courseID, studentID string) (Enrollment, error) {
	e, err := svc.repo.GetEnrollment(courseID, studentID)
	if err != nil {
		return Enrollment{}, err
	}
	if e.Status != EnrollmentActive {
		return Enrollment{}, ErrNotEnrolled
	}
	return svc.repo.UpdateEnrollmentStatus(e.ID, EnrollmentWithdrawn)
}

func (svc *service) Enrollments(courseID string) ([]Enrollment, error) {
	return svc.repo.QueryEnrollmentsByCourseID(courseID)
}

func (svc *service) StudentEnrollments(studentID string) ([]Enrollment, error) {
	return svc.repo.QueryEnrollmentsByStudentID(studentID)
}
