package sqlxrepos

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/assessment"
	"github.com/trezcool/academia/core/course"
)

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

// dbCourse mirrors the "course" table.
type dbCourse struct {
	ID          string      `db:"id"`
	Code        string      `db:"code"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	Level       string      `db:"level"`
	TeacherID   null.String `db:"teacher_id"`
	Capacity    int         `db:"capacity"`
	IsActive    bool        `db:"is_active"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

type dbClass struct {
	ID       string `db:"id"`
	CourseID string `db:"course_id"`
	Name     string `db:"name"`
	Schedule string `db:"schedule"`
}

type dbEnrollment struct {
	ID         string    `db:"id"`
	CourseID   string    `db:"course_id"`
	StudentID  string    `db:"student_id"`
	Status     string    `db:"status"`
	EnrolledAt time.Time `db:"enrolled_at"`
}

func (repo courseRepository) marshal(c course.Course) dbCourse {
	return dbCourse{
		ID:          c.ID,
		Code:        c.Code,
		Title:       c.Title,
		Description: c.Description,
		Level:       string(c.Level),
		TeacherID:   c.TeacherID,
		Capacity:    c.Capacity,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) unmarshal(c dbCourse) course.Course {
	return course.Course{
		ID:          c.ID,
		Code:        c.Code,
		Title:       c.Title,
		Description: c.Description,
		Level:       assessment.Level(c.Level),
		TeacherID:   c.TeacherID,
		Capacity:    c.Capacity,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (repo courseRepository) unmarshalSlice(rows []dbCourse) []course.Course {
	courses := make([]course.Course, 0, len(rows))
	for _, c := range rows {
		courses = append(courses, repo.unmarshal(c))
	}
	return courses
}

func (repo courseRepository) unmarshalClass(cl dbClass) course.Class {
	return course.Class{ID: cl.ID, CourseID: cl.CourseID, Name: cl.Name, Schedule: cl.Schedule}
}

func (repo courseRepository) unmarshalEnrollment(e dbEnrollment) course.Enrollment {
	return course.Enrollment{
		ID:         e.ID,
		CourseID:   e.CourseID,
		StudentID:  e.StudentID,
		Status:     course.EnrollmentStatus(e.Status),
		EnrolledAt: e.EnrolledAt,
	}
}

func (repo courseRepository) unmarshalEnrollmentSlice(rows []dbEnrollment) []course.Enrollment {
	enrollments := make([]course.Enrollment, 0, len(rows))
	for _, e := range rows {
		enrollments = append(enrollments, repo.unmarshalEnrollment(e))
	}
	return enrollments
}

func (repo courseRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return course.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo courseRepository) CheckCourseCodeUniqueness(code string) error {
	var exists bool
	err := repo.db.Get(&exists, `SELECT EXISTS (SELECT 1 FROM course WHERE code = $1)`, code)
	if err != nil {
		return errors.Wrap(err, "checking course code uniqueness")
	}
	if exists {
		return course.ErrCodeExists
	}
	return nil
}

func (repo courseRepository) CreateCourse(c course.Course) (course.Course, error) {
	row := repo.marshal(c)
	_, err := repo.db.NamedExec(`
		INSERT INTO course (id, code, title, description, level, teacher_id, capacity, is_active, created_at, updated_at)
		VALUES (:id, :code, :title, :description, :level, :teacher_id, :capacity, :is_active, :created_at, :updated_at)`, row)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return repo.unmarshal(row), nil
}

func (repo courseRepository) QueryAllCourses() ([]course.Course, error) {
	var rows []dbCourse
	if err := repo.db.Select(&rows, `SELECT * FROM course ORDER BY code`); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	return repo.unmarshalSlice(rows), nil
}

func (repo courseRepository) GetCourseByID(id string) (course.Course, error) {
	var c dbCourse
	if err := repo.db.Get(&c, `SELECT * FROM course WHERE id = $1`, id); err != nil {
		return course.Course{}, repo.trapNoRowsErr(err, "getting course by id")
	}
	return repo.unmarshal(c), nil
}

func (repo courseRepository) GetCourseByCode(code string) (course.Course, error) {
	var c dbCourse
	if err := repo.db.Get(&c, `SELECT * FROM course WHERE code = $1`, code); err != nil {
		return course.Course{}, repo.trapNoRowsErr(err, "getting course by code")
	}
	return repo.unmarshal(c), nil
}

func (repo courseRepository) FilterCourses(filter course.QueryFilter, orderings ...core.DBOrdering) ([]course.Course, error) {
	qb := newQueryBuilder(`SELECT * FROM course`)

	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		qb.where("(code ILIKE ? OR title ILIKE ?)", val, val)
	}
	if filter.Level != "" {
		qb.where("level = ?", string(filter.Level))
	}
	if filter.IsActive != nil {
		qb.where("is_active = ?", *filter.IsActive)
	}
	qb.orderBy(orderings, "code")

	var rows []dbCourse
	if err := repo.db.Select(&rows, qb.query(), qb.args...); err != nil {
		return nil, errors.Wrap(err, "filtering courses")
	}
	return repo.unmarshalSlice(rows), nil
}

func (repo courseRepository) UpdateCourse(c course.Course, isActive *bool) (course.Course, error) {
	row := repo.marshal(c)
	if isActive != nil {
		row.IsActive = *isActive
	}
	res, err := repo.db.NamedExec(`
		UPDATE course
		SET title = :title, description = :description, level = :level, teacher_id = :teacher_id,
		    capacity = :capacity, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return repo.GetCourseByID(c.ID)
}

func (repo courseRepository) DeleteCoursesByID(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.db.Exec(`DELETE FROM course WHERE id = ANY($1)`, pq.StringArray(ids))
	return errors.Wrap(err, "deleting courses")
}

func (repo courseRepository) CreateClass(cl course.Class) (course.Class, error) {
	_, err := repo.db.Exec(`
		INSERT INTO class (id, course_id, name, schedule)
		VALUES ($1, $2, $3, $4)`, cl.ID, cl.CourseID, cl.Name, cl.Schedule)
	if err != nil {
		return course.Class{}, errors.Wrap(err, "inserting class")
	}
	return cl, nil
}

func (repo courseRepository) QueryClassesByCourseID(courseID string) ([]course.Class, error) {
	var rows []dbClass
	err := repo.db.Select(&rows, `SELECT * FROM class WHERE course_id = $1 ORDER BY name`, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]course.Class, 0, len(rows))
	for _, cl := range rows {
		classes = append(classes, repo.unmarshalClass(cl))
	}
	return classes, nil
}

func (repo courseRepository) DeleteClassesByID(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.db.Exec(`DELETE FROM class WHERE id = ANY($1)`, pq.StringArray(ids))
	return errors.Wrap(err, "deleting classes")
}

func (repo courseRepository) CreateEnrollment(e course.Enrollment) (course.Enrollment, error) {
	_, err := repo.db.Exec(`
		INSERT INTO enrollment (id, course_id, student_id, status, enrolled_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.CourseID, e.StudentID, string(e.Status), e.EnrolledAt.UTC())
	if err != nil {
		return course.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return e, nil
}

func (repo courseRepository) GetEnrollment(courseID, studentID string) (course.Enrollment, error) {
	var e dbEnrollment
	err := repo.db.Get(&e, `SELECT * FROM enrollment WHERE course_id = $1 AND student_id = $2`, courseID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return course.Enrollment{}, course.ErrNotEnrolled
		}
		return course.Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return repo.unmarshalEnrollment(e), nil
}

func (repo courseRepository) QueryEnrollmentsByCourseID(courseID string) ([]course.Enrollment, error) {
	var rows []dbEnrollment
	err := repo.db.Select(&rows, `SELECT * FROM enrollment WHERE course_id = $1 ORDER BY enrolled_at`, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments by course")
	}
	return repo.unmarshalEnrollmentSlice(rows), nil
}

func (repo courseRepository) QueryEnrollmentsByStudentID(studentID string) ([]course.Enrollment, error) {
	var rows []dbEnrollment
	err := repo.db.Select(&rows, `SELECT * FROM enrollment WHERE student_id = $1 ORDER BY enrolled_at`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments by student")
	}
	return repo.unmarshalEnrollmentSlice(rows), nil
}

func (repo courseRepository) CountActiveEnrollments(courseID string) (int, error) {
	var count int
	err := repo.db.Get(&count, `
		SELECT COUNT(*) FROM enrollment
		WHERE course_id = $1 AND status = $2`, courseID, string(course.EnrollmentActive))
	if err != nil {
		return 0, errors.Wrap(err, "counting active enrollments")
	}
	return count, nil
}

func (repo courseRepository) UpdateEnrollmentStatus(id string, status course.EnrollmentStatus) (course.Enrollment, error) {
	var e dbEnrollment
	err := repo.db.Get(&e, `
		UPDATE enrollment SET status = $2
		WHERE id = $1
		RETURNING *`, id, string(status))
	if err != nil {
		if err == sql.ErrNoRows {
			return course.Enrollment{}, course.ErrNotEnrolled
		}
		return course.Enrollment{}, errors.Wrap(err, "updating enrollment status")
	}
	return repo.unmarshalEnrollment(e), nil
}
