package sqlxrepos

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core/assessment"
)

type sessionRepository struct {
	db *sqlx.DB
}

var _ assessment.SessionRepository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *sqlx.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

// dbSession mirrors the "test_session" table. Answers are stored as JSONB.
type dbSession struct {
	ID             string         `db:"id"`
	TestTakerID    string         `db:"test_taker_id"`
	QuestionIDs    pq.StringArray `db:"question_ids"`
	Answers        []byte         `db:"answers"`
	Status         string         `db:"status"`
	TimeLimitSec   int            `db:"time_limit_sec"`
	StartedAt      time.Time      `db:"started_at"`
	SubmittedAt    null.Time      `db:"submitted_at"`
	TakerName      string         `db:"taker_name"`
	TakerEmail     string         `db:"taker_email"`
	TakerBirthDate time.Time      `db:"taker_birth_date"`
}

func (repo sessionRepository) marshal(sess assessment.TestSession) (dbSession, error) {
	answers := sess.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return dbSession{}, errors.Wrap(err, "encoding answers")
	}
	return dbSession{
		ID:             sess.ID,
		TestTakerID:    sess.TestTakerID,
		QuestionIDs:    pq.StringArray(sess.QuestionIDs),
		Answers:        raw,
		Status:         string(sess.Status),
		TimeLimitSec:   sess.TimeLimitSec,
		StartedAt:      sess.StartedAt.UTC(),
		SubmittedAt:    sess.SubmittedAt,
		TakerName:      sess.Intake.Name,
		TakerEmail:     sess.Intake.Email,
		TakerBirthDate: sess.Intake.DateOfBirth.UTC(),
	}, nil
}

func (repo sessionRepository) unmarshal(s dbSession) (assessment.TestSession, error) {
	answers := map[string]string{}
	if len(s.Answers) > 0 {
		if err := json.Unmarshal(s.Answers, &answers); err != nil {
			return assessment.TestSession{}, errors.Wrap(err, "decoding answers")
		}
	}
	return assessment.TestSession{
		ID:           s.ID,
		TestTakerID:  s.TestTakerID,
		QuestionIDs:  []string(s.QuestionIDs),
		Answers:      answers,
		Status:       assessment.Status(s.Status),
		TimeLimitSec: s.TimeLimitSec,
		StartedAt:    s.StartedAt,
		SubmittedAt:  s.SubmittedAt,
		Intake: assessment.IntakeInfo{
			Name:        s.TakerName,
			Email:       s.TakerEmail,
			DateOfBirth: s.TakerBirthDate,
		},
	}, nil
}

func (repo sessionRepository) unmarshalSlice(rows []dbSession) ([]assessment.TestSession, error) {
	sessions := make([]assessment.TestSession, 0, len(rows))
	for _, s := range rows {
		sess, err := repo.unmarshal(s)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (repo sessionRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return assessment.ErrSessionNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo sessionRepository) CreateSession(sess assessment.TestSession) (assessment.TestSession, error) {
	row, err := repo.marshal(sess)
	if err != nil {
		return assessment.TestSession{}, err
	}
	_, err = repo.db.NamedExec(`
		INSERT INTO test_session (id, test_taker_id, question_ids, answers, status, time_limit_sec, started_at, submitted_at, taker_name, taker_email, taker_birth_date)
		VALUES (:id, :test_taker_id, :question_ids, :answers, :status, :time_limit_sec, :started_at, :submitted_at, :taker_name, :taker_email, :taker_birth_date)`, row)
	if err != nil {
		return assessment.TestSession{}, errors.Wrap(err, "inserting session")
	}
	return repo.unmarshal(row)
}

func (repo sessionRepository) GetSessionByID(id string) (assessment.TestSession, error) {
	var s dbSession
	if err := repo.db.Get(&s, `SELECT * FROM test_session WHERE id = $1`, id); err != nil {
		return assessment.TestSession{}, repo.trapNoRowsErr(err, "getting session by id")
	}
	return repo.unmarshal(s)
}

func (repo sessionRepository) SaveAnswer(sessionID, questionID, answer string) (assessment.TestSession, error) {
	// jsonb_set overwrites the previous answer for the question, if any.
	raw, err := json.Marshal(answer)
	if err != nil {
		return assessment.TestSession{}, errors.Wrap(err, "encoding answer")
	}
	res, err := repo.db.Exec(`
		UPDATE test_session
		SET answers = jsonb_set(answers, ARRAY[$2]::text[], $3::jsonb)
		WHERE id = $1`, sessionID, questionID, raw)
	if err != nil {
		return assessment.TestSession{}, errors.Wrap(err, "saving answer")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return assessment.TestSession{}, assessment.ErrSessionNotFound
	}
	return repo.GetSessionByID(sessionID)
}

func (repo sessionRepository) TransitionSessionStatus(id string, from, to assessment.Status, at time.Time) (assessment.TestSession, error) {
	var submittedAt null.Time
	if to == assessment.StatusSubmitted {
		submittedAt.SetValid(at.UTC())
	}
	res, err := repo.db.Exec(`
		UPDATE test_session
		SET status = $3, submitted_at = COALESCE($4, submitted_at)
		WHERE id = $1 AND status = $2`, id, string(from), string(to), submittedAt)
	if err != nil {
		return assessment.TestSession{}, errors.Wrap(err, "transitioning session status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// distinguish a missing session from a lost race
		if _, err := repo.GetSessionByID(id); err != nil {
			return assessment.TestSession{}, err
		}
		return assessment.TestSession{}, assessment.ErrStatusConflict
	}
	return repo.GetSessionByID(id)
}

func (repo sessionRepository) FilterSessions(filter assessment.SessionFilter) ([]assessment.TestSession, error) {
	qb := newQueryBuilder(`SELECT * FROM test_session`)

	if filter.TestTakerID != "" {
		qb.where("test_taker_id = ?", filter.TestTakerID)
	}
	if filter.Status != "" {
		qb.where("status = ?", string(filter.Status))
	}
	if !filter.StartedFrom.IsZero() {
		qb.where("started_at >= ?", filter.StartedFrom.UTC())
	}
	if !filter.StartedTo.IsZero() {
		qb.where("started_at <= ?", filter.StartedTo.UTC())
	}
	qb.orderBy(nil, "started_at")

	var rows []dbSession
	if err := repo.db.Select(&rows, qb.query(), qb.args...); err != nil {
		return nil, errors.Wrap(err, "filtering sessions")
	}
	return repo.unmarshalSlice(rows)
}
