package assessment

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
)

// Question types
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionFillBlank      QuestionType = "fill_blank"
)

var AllQuestionTypes = []QuestionType{QuestionMultipleChoice, QuestionTrueFalse, QuestionFillBlank}

// Skill categories used for sub-scoring
type Category string

const (
	CategoryReading    Category = "reading"
	CategoryGrammar    Category = "grammar"
	CategoryVocabulary Category = "vocabulary"
	CategoryListening  Category = "listening"
)

var AllCategories = []Category{CategoryReading, CategoryGrammar, CategoryVocabulary, CategoryListening}

// Placement levels
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

var AllLevels = []Level{LevelBeginner, LevelIntermediate, LevelAdvanced}

// levelRanks orders levels for monotonicity comparisons; higher is better.
var levelRanks = map[Level]int{
	LevelBeginner:     1,
	LevelIntermediate: 2,
	LevelAdvanced:     3,
}

func (l Level) Rank() int { return levelRanks[l] }

// Session statuses. in_progress is the only non-terminal state.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusExpired    Status = "expired"
)

func (s Status) IsTerminal() bool { return s == StatusSubmitted || s == StatusExpired }

type Question struct {
	ID            string       `json:"id"`
	Content       string       `json:"content"`
	Type          QuestionType `json:"type"`
	Category      Category     `json:"category"`
	Difficulty    int          `json:"difficulty"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer,omitempty"` // stripped on test-taker endpoints
	Explanation   null.String  `json:"explanation,omitempty"`
	Version       int          `json:"version"`
	CreatedAt     time.Time    `json:"created_at"` // UTC
	UpdatedAt     time.Time    `json:"updated_at"` // UTC
}

// TakerView returns a copy safe to show to a test-taker mid-session.
func (q Question) TakerView() Question {
	q.CorrectAnswer = ""
	q.Explanation = null.String{}
	return q
}

// IntakeInfo is the registration snapshot captured when a session starts.
type IntakeInfo struct {
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	DateOfBirth time.Time `json:"date_of_birth"`
}

type TestSession struct {
	ID           string            `json:"id"`
	TestTakerID  string            `json:"test_taker_id"`
	QuestionIDs  []string          `json:"question_ids"` // ordered, fixed at creation
	Answers      map[string]string `json:"answers"`      // question_id -> submitted answer
	Status       Status            `json:"status"`
	TimeLimitSec int               `json:"time_limit_seconds"`
	StartedAt    time.Time         `json:"started_at"` // UTC
	SubmittedAt  null.Time         `json:"submitted_at,omitempty"`
	Intake       IntakeInfo        `json:"intake"`
}

func (s *TestSession) Deadline() time.Time {
	return s.StartedAt.Add(time.Duration(s.TimeLimitSec) * time.Second)
}

func (s *TestSession) IsPastDeadline(now time.Time) bool {
	return now.After(s.Deadline())
}

// ScoreResult is a value object recomputable from (TestSession, question bank);
// it is never mutated once computed.
type ScoreResult struct {
	SessionID   string           `json:"session_id"`
	PerCategory map[Category]int `json:"per_category_score"` // percentage; categories without questions are omitted
	Overall     int              `json:"overall_score"`      // percentage, rounded half-up
	Correct     int              `json:"correct"`
	Total       int              `json:"total"`
	ComputedAt  time.Time        `json:"computed_at"` // UTC
}

type PlacementRecommendation struct {
	SessionID string `json:"session_id"`
	Level     Level  `json:"level"`
	Rationale string `json:"rationale"` // the threshold rule that fired
}

// SessionResult is the reporting join of a submitted session and its outcome.
type SessionResult struct {
	Session        TestSession             `json:"session"`
	Score          ScoreResult             `json:"score"`
	Recommendation PlacementRecommendation `json:"recommendation"`
}

// Inputs

// NewQuestion contains information needed to add a Question to the bank.
type NewQuestion struct {
	Content       string       `json:"content" validate:"required"`
	Type          QuestionType `json:"type" validate:"required,questiontype"`
	Category      Category     `json:"category" validate:"required,skillcategory"`
	Difficulty    int          `json:"difficulty" validate:"required,min=1,max=5"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correct_answer" validate:"required"`
	Explanation   string       `json:"explanation"`
}

func (nq *NewQuestion) Validate() error {
	nq.Content = core.CleanString(nq.Content)
	nq.CorrectAnswer = core.CleanString(nq.CorrectAnswer)
	for i, opt := range nq.Options {
		nq.Options[i] = core.CleanString(opt)
	}
	return core.Validate.Struct(nq)
}

// UpdateQuestion defines what may be modified on an existing Question.
// Questions referenced by a submitted session are immutable; edits are rejected.
type UpdateQuestion struct {
	Content       string       `json:"content"`
	Type          QuestionType `json:"type" validate:"omitempty,questiontype"`
	Category      Category     `json:"category" validate:"omitempty,skillcategory"`
	Difficulty    int          `json:"difficulty" validate:"omitempty,min=1,max=5"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correct_answer"`
	Explanation   *string      `json:"explanation"`
}

func (uq *UpdateQuestion) Validate(orig Question) error {
	uq.Content = core.CleanString(uq.Content)
	if uq.Content == "" {
		uq.Content = orig.Content
	}
	if uq.Type == "" {
		uq.Type = orig.Type
	}
	if uq.Category == "" {
		uq.Category = orig.Category
	}
	if uq.Difficulty == 0 {
		uq.Difficulty = orig.Difficulty
	}
	if uq.Options == nil {
		uq.Options = orig.Options
	}
	uq.CorrectAnswer = core.CleanString(uq.CorrectAnswer)
	if uq.CorrectAnswer == "" {
		uq.CorrectAnswer = orig.CorrectAnswer
	}
	return core.Validate.Struct(uq)
}

// Intake collects test-taker registration before a session starts.
type Intake struct {
	Name        string    `json:"name" validate:"required"`
	Email       string    `json:"email" validate:"required,email"`
	DateOfBirth time.Time `json:"date_of_birth" validate:"required"`
	AgreeTerms  bool      `json:"agree_terms" validate:"agreeterms"`
}

func (in *Intake) Validate() error {
	in.Name = core.CleanString(in.Name)
	in.Email = core.CleanString(in.Email, true /* lower */)
	return core.Validate.Struct(in)
}

// Filters

type QuestionFilter struct {
	Category   Category     `query:"category"`
	Type       QuestionType `query:"type"`
	Difficulty int          `query:"difficulty"`
	Search     string       `query:"search"`
}

func (qf *QuestionFilter) IsEmpty() bool {
	return qf.Category == "" && qf.Type == "" && qf.Difficulty == 0 && qf.Search == ""
}

func (qf *QuestionFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

type SessionFilter struct {
	TestTakerID string    `query:"test_taker_id"`
	Status      Status    `query:"status"`
	StartedFrom time.Time `query:"started_from"`
	StartedTo   time.Time `query:"started_to"`
}

type ResultFilter struct {
	Level        Level     `query:"level"`
	ComputedFrom time.Time `query:"computed_from"`
	ComputedTo   time.Time `query:"computed_to"`
}
