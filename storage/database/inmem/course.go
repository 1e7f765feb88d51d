package inmemdb

import (
	"sort"
	"strings"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

type courseRepository struct {
	db          *courseTable
	classes     *classTable
	enrollments *enrollmentTable
}

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db.course, classes: db.class, enrollments: db.enrollment}
}

func (repo *courseRepository) query() []course.Course {
	courses := make([]course.Course, 0, len(repo.db.table))
	for _, c := range repo.db.table {
		courses = append(courses, *c)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].Code < courses[j].Code })
	return courses
}

func (repo *courseRepository) CheckCourseCodeUniqueness(code string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, c := range repo.db.table {
		if c.Code == code {
			return course.ErrCodeExists
		}
	}
	return nil
}

func (repo *courseRepository) CreateCourse(c course.Course) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.table[c.ID] = &c
	return c, nil
}

func (repo *courseRepository) QueryAllCourses() ([]course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(), nil
}

func (repo *courseRepository) GetCourseByID(id string) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.table[id]; ok {
		return *c, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) GetCourseByCode(code string) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, c := range repo.db.table {
		if c.Code == code {
			return *c, nil
		}
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) FilterCourses(filter course.QueryFilter, orderings ...core.DBOrdering) ([]course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var courses []course.Course
	for _, c := range repo.query() {
		if matchesCourseFilter(c, filter) {
			courses = append(courses, c)
		}
	}
	return courses, nil
}

func matchesCourseFilter(c course.Course, filter course.QueryFilter) bool {
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(c.Code), search) &&
			!strings.Contains(strings.ToLower(c.Title), search) {
			return false
		}
	}
	if filter.Level != "" && c.Level != filter.Level {
		return false
	}
	if filter.IsActive != nil && c.IsActive != *filter.IsActive {
		return false
	}
	return true
}

func (repo *courseRepository) UpdateCourse(c course.Course, isActive *bool) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[c.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	orig.Title = c.Title
	orig.Description = c.Description
	orig.Level = c.Level
	orig.TeacherID = c.TeacherID
	orig.Capacity = c.Capacity
	orig.UpdatedAt = c.UpdatedAt
	if isActive != nil {
		orig.IsActive = *isActive
	}
	return *orig, nil
}

func (repo *courseRepository) DeleteCoursesByID(ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}

func (repo *courseRepository) CreateClass(cl course.Class) (course.Class, error) {
	repo.classes.mutex.Lock()
	defer repo.classes.mutex.Unlock()
	repo.classes.table[cl.ID] = &cl
	return cl, nil
}

func (repo *courseRepository) QueryClassesByCourseID(courseID string) ([]course.Class, error) {
	repo.classes.mutex.RLock()
	defer repo.classes.mutex.RUnlock()

	var classes []course.Class
	for _, cl := range repo.classes.table {
		if cl.CourseID == courseID {
			classes = append(classes, *cl)
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes, nil
}

func (repo *courseRepository) DeleteClassesByID(ids ...string) error {
	repo.classes.mutex.Lock()
	defer repo.classes.mutex.Unlock()
	for _, id := range ids {
		delete(repo.classes.table, id)
	}
	return nil
}

func (repo *courseRepository) CreateEnrollment(e course.Enrollment) (course.Enrollment, error) {
	repo.enrollments.mutex.Lock()
	defer repo.enrollments.mutex.Unlock()
	repo.enrollments.table[e.ID] = &e
	return e, nil
}

func (repo *courseRepository) GetEnrollment(courseID, studentID string) (course.Enrollment, error) {
	repo.enrollments.mutex.RLock()
	defer repo.enrollments.mutex.RUnlock()

	for _, e := range repo.enrollments.table {
		if e.CourseID == courseID && e.StudentID == studentID {
			return *e, nil
		}
	}
	return course.Enrollment{}, course.ErrNotEnrolled
}

func (repo *courseRepository) QueryEnrollmentsByCourseID(courseID string) ([]course.Enrollment, error) {
	repo.enrollments.mutex.RLock()
	defer repo.enrollments.mutex.RUnlock()

	var enrollments []course.Enrollment
	for _, e := range repo.enrollments.table {
		if e.CourseID == courseID {
			enrollments = append(enrollments, *e)
		}
	}
	sortEnrollments(enrollments)
	return enrollments, nil
}

func (repo *courseRepository) QueryEnrollmentsByStudentID(studentID string) ([]course.Enrollment, error) {
	repo.enrollments.mutex.RLock()
	defer repo.enrollments.mutex.RUnlock()

	var enrollments []course.Enrollment
	for _, e := range repo.enrollments.table {
		if e.StudentID == studentID {
			enrollments = append(enrollments, *e)
		}
	}
	sortEnrollments(enrollments)
	return enrollments, nil
}

func sortEnrollments(enrollments []course.Enrollment) {
	sort.Slice(enrollments, func(i, j int) bool {
		return enrollments[i].EnrolledAt.Before(enrollments[j].EnrolledAt)
	})
}

func (repo *courseRepository) CountActiveEnrollments(courseID string) (int, error) {
	repo.enrollments.mutex.RLock()
	defer repo.enrollments.mutex.RUnlock()

	var count int
	for _, e := range repo.enrollments.table {
		if e.CourseID == courseID && e.Status == course.EnrollmentActive {
			count++
		}
	}
	return count, nil
}

func (repo *courseRepository) UpdateEnrollmentStatus(id string, status course.EnrollmentStatus) (course.Enrollment, error) {
	repo.enrollments.mutex.Lock()
	defer repo.enrollments.mutex.Unlock()

	e, ok := repo.enrollments.table[id]
	if !ok {
		return course.Enrollment{}, course.ErrNotEnrolled
	}
	e.Status = status
	return *e, nil
}
