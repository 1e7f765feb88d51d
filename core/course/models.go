package course

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/assessment"
)

// Enrollment statuses
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentWithdrawn EnrollmentStatus = "withdrawn"
)

type Course struct {
	ID          string           `json:"id"`
	Code        string           `json:"code"`
	Title       string           `json:"title"`
	Description null.String      `json:"description,omitempty"`
	Level       assessment.Level `json:"level"`
	TeacherID   null.String      `json:"teacher_id,omitempty"`
	Capacity    int              `json:"capacity"` // 0 = unlimited
	IsActive    bool             `json:"is_active"`
	CreatedAt   time.Time        `json:"created_at"` // UTC
	UpdatedAt   time.Time        `json:"updated_at"` // UTC
}

type Class struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	Name     string `json:"name"`
	Schedule string `json:"schedule"` // e.g. "Mon/Wed 18:00-19:30"
}

type Enrollment struct {
	ID         string           `json:"id"`
	CourseID   string           `json:"course_id"`
	StudentID  string           `json:"student_id"`
	Status     EnrollmentStatus `json:"status"`
	EnrolledAt time.Time        `json:"enrolled_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Code        string           `json:"code" validate:"required,alphanum_"`
	Title       string           `json:"title" validate:"required"`
	Description string           `json:"description"`
	Level       assessment.Level `json:"level" validate:"required,courselevel"`
	TeacherID   string           `json:"teacher_id"`
	Capacity    int              `json:"capacity" validate:"omitempty,min=1"`
}

func (nc *NewCourse) Validate(svc Service) error {
	nc.Code = core.CleanString(nc.Code, true /* lower */)
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)

	if err := core.Validate.Struct(nc); err != nil {
		return err
	}
	return svc.CheckCodeUniqueness(nc.Code)
}

// UpdateCourse defines what may be modified on an existing Course.
type UpdateCourse struct {
	Title       string           `json:"title"`
	Description *string          `json:"description"`
	Level       assessment.Level `json:"level" validate:"omitempty,courselevel"`
	TeacherID   *string          `json:"teacher_id"`
	Capacity    int              `json:"capacity" validate:"omitempty,min=1"`
	IsActive    *bool            `json:"is_active"`
}

func (uc *UpdateCourse) Validate(orig Course) error {
	title := core.CleanString(uc.Title)
	if title != "" {
		uc.Title = title
	} else {
		uc.Title = orig.Title
	}
	if uc.Level == "" {
		uc.Level = orig.Level
	}
	if uc.Capacity == 0 {
		uc.Capacity = orig.Capacity
	}
	return core.Validate.Struct(uc)
}

// NewClass contains information needed to schedule a Class for a Course.
type NewClass struct {
	Name     string `json:"name" validate:"required"`
	Schedule string `json:"schedule" validate:"required"`
}

func (nc *NewClass) Validate() error {
	nc.Name = core.CleanString(nc.Name)
	nc.Schedule = core.CleanString(nc.Schedule)
	return core.Validate.Struct(nc)
}

type QueryFilter struct {
	Search   string           `query:"search"`
	Level    assessment.Level `query:"level"`
	IsActive *bool            `query:"is_active"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Level == "" && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
