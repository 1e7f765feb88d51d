// Package inmemdb provides mutex-guarded in-memory repositories for tests.
package inmemdb

import (
	"sync"

	"github.com/trezcool/academia/core/assessment"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
)

type DB struct {
	user       *userTable
	question   *questionTable
	session    *sessionTable
	result     *resultTable
	course     *courseTable
	class      *classTable
	enrollment *enrollmentTable
}

func NewDB() *DB {
	return &DB{
		user:       &userTable{table: make(map[string]*user.User)},
		question:   &questionTable{table: make(map[string]*assessment.Question)},
		session:    &sessionTable{table: make(map[string]*assessment.TestSession)},
		result:     &resultTable{table: make(map[string]*result)},
		course:     &courseTable{table: make(map[string]*course.Course)},
		class:      &classTable{table: make(map[string]*course.Class)},
		enrollment: &enrollmentTable{table: make(map[string]*course.Enrollment)},
	}
}

type userTable struct {
	mutex sync.RWMutex
	table map[string]*user.User
}

type questionTable struct {
	mutex sync.RWMutex
	table map[string]*assessment.Question
}

type sessionTable struct {
	mutex sync.RWMutex
	table map[string]*assessment.TestSession
}

// result pairs a score with its placement, keyed by session ID.
type result struct {
	score     assessment.ScoreResult
	placement assessment.PlacementRecommendation
}

type resultTable struct {
	mutex sync.RWMutex
	table map[string]*result
}

type courseTable struct {
	mutex sync.RWMutex
	table map[string]*course.Course
}

type classTable struct {
	mutex sync.RWMutex
	table map[string]*course.Class
}

type enrollmentTable struct {
	mutex sync.RWMutex
	table map[string]*course.Enrollment
}
