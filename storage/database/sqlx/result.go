package sqlxrepos

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/assessment"
)

type resultRepository struct {
	db          *sqlx.DB
	sessionRepo *sessionRepository
}

var _ assessment.ResultRepository = (*resultRepository)(nil) // interface compliance check

func NewResultRepository(db *sqlx.DB) *resultRepository {
	return &resultRepository{db: db, sessionRepo: NewSessionRepository(db)}
}

// dbResult mirrors the "score_result" table joined with its "placement" row.
type dbResult struct {
	SessionID   string    `db:"session_id"`
	PerCategory []byte    `db:"per_category"`
	Overall     int       `db:"overall"`
	Correct     int       `db:"correct"`
	Total       int       `db:"total"`
	ComputedAt  time.Time `db:"computed_at"`
	Level       string    `db:"level"`
	Rationale   string    `db:"rationale"`
}

func (repo resultRepository) unmarshal(r dbResult) (assessment.ScoreResult, assessment.PlacementRecommendation, error) {
	perCategory := map[assessment.Category]int{}
	if len(r.PerCategory) > 0 {
		if err := json.Unmarshal(r.PerCategory, &perCategory); err != nil {
			return assessment.ScoreResult{}, assessment.PlacementRecommendation{}, errors.Wrap(err, "decoding category scores")
		}
	}
	res := assessment.ScoreResult{
		SessionID:   r.SessionID,
		PerCategory: perCategory,
		Overall:     r.Overall,
		Correct:     r.Correct,
		Total:       r.Total,
		ComputedAt:  r.ComputedAt,
	}
	rec := assessment.PlacementRecommendation{
		SessionID: r.SessionID,
		Level:     assessment.Level(r.Level),
		Rationale: r.Rationale,
	}
	return res, rec, nil
}

func (repo resultRepository) SaveResult(res assessment.ScoreResult, rec assessment.PlacementRecommendation) error {
	raw, err := json.Marshal(res.PerCategory)
	if err != nil {
		return errors.Wrap(err, "encoding category scores")
	}

	tx, err := repo.db.Beginx()
	if err != nil {
		return errors.Wrap(err, "beginning tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO score_result (session_id, per_category, overall, correct, total, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		res.SessionID, raw, res.Overall, res.Correct, res.Total, res.ComputedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "inserting score result")
	}
	_, err = tx.Exec(`
		INSERT INTO placement (session_id, level, rationale)
		VALUES ($1, $2, $3)`,
		rec.SessionID, string(rec.Level), rec.Rationale)
	if err != nil {
		return errors.Wrap(err, "inserting placement")
	}
	return errors.Wrap(tx.Commit(), "committing result")
}

func (repo resultRepository) GetResultBySessionID(sessionID string) (assessment.ScoreResult, assessment.PlacementRecommendation, error) {
	var r dbResult
	err := repo.db.Get(&r, `
		SELECT sr.*, p.level, p.rationale
		FROM score_result sr
		JOIN placement p ON p.session_id = sr.session_id
		WHERE sr.session_id = $1`, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return assessment.ScoreResult{}, assessment.PlacementRecommendation{}, assessment.ErrResultNotFound
		}
		return assessment.ScoreResult{}, assessment.PlacementRecommendation{}, errors.Wrap(err, "getting result by session id")
	}
	return repo.unmarshal(r)
}

func (repo resultRepository) FilterResults(filter assessment.ResultFilter) ([]assessment.SessionResult, error) {
	qb := newQueryBuilder(`
		SELECT sr.*, p.level, p.rationale
		FROM score_result sr
		JOIN placement p ON p.session_id = sr.session_id`)

	if filter.Level != "" {
		qb.where("p.level = ?", string(filter.Level))
	}
	if !filter.ComputedFrom.IsZero() {
		qb.where("sr.computed_at >= ?", filter.ComputedFrom.UTC())
	}
	if !filter.ComputedTo.IsZero() {
		qb.where("sr.computed_at <= ?", filter.ComputedTo.UTC())
	}
	qb.orderBy(nil, "sr.computed_at")

	var rows []dbResult
	if err := repo.db.Select(&rows, qb.query(), qb.args...); err != nil {
		return nil, errors.Wrap(err, "filtering results")
	}

	results := make([]assessment.SessionResult, 0, len(rows))
	for _, r := range rows {
		res, rec, err := repo.unmarshal(r)
		if err != nil {
			return nil, err
		}
		sess, err := repo.sessionRepo.GetSessionByID(r.SessionID)
		if err != nil {
			return nil, err
		}
		results = append(results, assessment.SessionResult{Session: sess, Score: res, Recommendation: rec})
	}
	return results, nil
}
