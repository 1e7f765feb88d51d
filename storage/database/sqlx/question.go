package sqlxrepos

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core/assessment"
)

type questionRepository struct {
	db *sqlx.DB
}

var _ assessment.QuestionRepository = (*questionRepository)(nil) // interface compliance check

func NewQuestionRepository(db *sqlx.DB) *questionRepository {
	return &questionRepository{db: db}
}

// dbQuestion mirrors the "question" table.
type dbQuestion struct {
	ID            string         `db:"id"`
	Content       string         `db:"content"`
	Type          string         `db:"type"`
	Category      string         `db:"category"`
	Difficulty    int            `db:"difficulty"`
	Options       pq.StringArray `db:"options"`
	CorrectAnswer string         `db:"correct_answer"`
	Explanation   null.String    `db:"explanation"`
	Version       int            `db:"version"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (repo questionRepository) marshal(q assessment.Question) dbQuestion {
	return dbQuestion{
		ID:            q.ID,
		Content:       q.Content,
		Type:          string(q.Type),
		Category:      string(q.Category),
		Difficulty:    q.Difficulty,
		Options:       pq.StringArray(q.Options),
		CorrectAnswer: q.CorrectAnswer,
		Explanation:   q.Explanation,
		Version:       q.Version,
		CreatedAt:     q.CreatedAt.UTC(),
		UpdatedAt:     q.UpdatedAt.UTC(),
	}
}

func (repo questionRepository) unmarshal(q dbQuestion) assessment.Question {
	return assessment.Question{
		ID:            q.ID,
		Content:       q.Content,
		Type:          assessment.QuestionType(q.Type),
		Category:      assessment.Category(q.Category),
		Difficulty:    q.Difficulty,
		Options:       []string(q.Options),
		CorrectAnswer: q.CorrectAnswer,
		Explanation:   q.Explanation,
		Version:       q.Version,
		CreatedAt:     q.CreatedAt,
		UpdatedAt:     q.UpdatedAt,
	}
}

func (repo questionRepository) unmarshalSlice(rows []dbQuestion) []assessment.Question {
	questions := make([]assessment.Question, 0, len(rows))
	for _, q := range rows {
		questions = append(questions, repo.unmarshal(q))
	}
	return questions
}

func (repo questionRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return assessment.ErrQuestionNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo questionRepository) CreateQuestion(q assessment.Question) (assessment.Question, error) {
	row := repo.marshal(q)
	_, err := repo.db.NamedExec(`
		INSERT INTO question (id, content, type, category, difficulty, options, correct_answer, explanation, version, created_at, updated_at)
		VALUES (:id, :content, :type, :category, :difficulty, :options, :correct_answer, :explanation, :version, :created_at, :updated_at)`, row)
	if err != nil {
		return assessment.Question{}, errors.Wrap(err, "inserting question")
	}
	return repo.unmarshal(row), nil
}

func (repo questionRepository) GetQuestionByID(id string) (assessment.Question, error) {
	var q dbQuestion
	if err := repo.db.Get(&q, `SELECT * FROM question WHERE id = $1`, id); err != nil {
		return assessment.Question{}, repo.trapNoRowsErr(err, "getting question by id")
	}
	return repo.unmarshal(q), nil
}

func (repo questionRepository) GetQuestionsByID(ids ...string) ([]assessment.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []dbQuestion
	err := repo.db.Select(&rows, `SELECT * FROM question WHERE id = ANY($1)`, pq.StringArray(ids))
	if err != nil {
		return nil, errors.Wrap(err, "getting questions by id")
	}
	return repo.unmarshalSlice(rows), nil
}

func (repo questionRepository) QueryAllQuestions() ([]assessment.Question, error) {
	var rows []dbQuestion
	if err := repo.db.Select(&rows, `SELECT * FROM question ORDER BY created_at`); err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	return repo.unmarshalSlice(rows), nil
}

func (repo questionRepository) FilterQuestions(filter assessment.QuestionFilter) ([]assessment.Question, error) {
	qb := newQueryBuilder(`SELECT * FROM question`)

	if filter.Category != "" {
		qb.where("category = ?", string(filter.Category))
	}
	if filter.Type != "" {
		qb.where("type = ?", string(filter.Type))
	}
	if filter.Difficulty != 0 {
		qb.where("difficulty = ?", filter.Difficulty)
	}
	if filter.Search != "" {
		qb.where("content ILIKE ?", "%"+filter.Search+"%")
	}
	qb.orderBy(nil, "created_at")

	var rows []dbQuestion
	if err := repo.db.Select(&rows, qb.query(), qb.args...); err != nil {
		return nil, errors.Wrap(err, "filtering questions")
	}
	return repo.unmarshalSlice(rows), nil
}

func (repo questionRepository) UpdateQuestion(q assessment.Question) (assessment.Question, error) {
	row := repo.marshal(q)
	res, err := repo.db.NamedExec(`
		UPDATE question
		SET content = :content, type = :type, category = :category, difficulty = :difficulty,
		    options = :options, correct_answer = :correct_answer, explanation = :explanation,
		    version = :version, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return assessment.Question{}, errors.Wrap(err, "updating question")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return assessment.Question{}, assessment.ErrQuestionNotFound
	}
	return repo.GetQuestionByID(q.ID)
}

func (repo questionRepository) DeleteQuestionsByID(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.db.Exec(`DELETE FROM question WHERE id = ANY($1)`, pq.StringArray(ids))
	return errors.Wrap(err, "deleting questions")
}

func (repo questionRepository) QuestionHasSubmissions(id string) (bool, error) {
	var exists bool
	err := repo.db.Get(&exists, `
		SELECT EXISTS (
			SELECT 1 FROM test_session
			WHERE status = $1 AND question_ids @> ARRAY[$2]::text[]
		)`, string(assessment.StatusSubmitted), id)
	if err != nil {
		return false, errors.Wrap(err, "checking question submissions")
	}
	return exists, nil
}
