package assessment

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

var (
	questionTypeTag  = "questiontype"
	questionTypeText = "invalid question type"

	skillCategoryTag  = "skillcategory"
	skillCategoryText = "invalid category"

	agreeTermsTag  = "agreeterms"
	agreeTermsText = "you must agree to the terms to take the test"

	optionsUniqueTag  = "optionsunique"
	optionsUniqueText = "options must be unique and non-empty"

	answerInOptionsTag  = "answerinoptions"
	answerInOptionsText = "correct answer must be one of the options"
)

func init() {
	// register validators
	_ = core.Validate.RegisterValidation(questionTypeTag, questionTypeValidation)
	core.RegisterCustomTranslation(questionTypeTag, questionTypeText)

	_ = core.Validate.RegisterValidation(skillCategoryTag, skillCategoryValidation)
	core.RegisterCustomTranslation(skillCategoryTag, skillCategoryText)

	_ = core.Validate.RegisterValidation(agreeTermsTag, agreeTermsValidation)
	core.RegisterCustomTranslation(agreeTermsTag, agreeTermsText)

	core.Validate.RegisterStructValidation(questionStructValidation, NewQuestion{})
	core.Validate.RegisterStructValidation(questionStructValidation, UpdateQuestion{})
	core.RegisterCustomTranslation(optionsUniqueTag, optionsUniqueText)
	core.RegisterCustomTranslation(answerInOptionsTag, answerInOptionsText)
}

// questionTypeValidation checks that the value is a known QuestionType.
func questionTypeValidation(fl validator.FieldLevel) bool {
	qt := QuestionType(fl.Field().String())
	for _, t := range AllQuestionTypes {
		if qt == t {
			return true
		}
	}
	return false
}

// skillCategoryValidation checks that the value is a known Category.
func skillCategoryValidation(fl validator.FieldLevel) bool {
	cat := Category(fl.Field().String())
	for _, c := range AllCategories {
		if cat == c {
			return true
		}
	}
	return false
}

// agreeTermsValidation requires the agreement checkbox to be ticked.
func agreeTermsValidation(fl validator.FieldLevel) bool {
	return fl.Field().Bool()
}

// questionStructValidation enforces the bank invariants:
// options are unique, and for choice-based types the correct answer is one of the options.
func questionStructValidation(sl validator.StructLevel) {
	var (
		qType   QuestionType
		options []string
		answer  string
	)
	switch q := sl.Current().Interface().(type) {
	case NewQuestion:
		qType, options, answer = q.Type, q.Options, q.CorrectAnswer
	case UpdateQuestion:
		qType, options, answer = q.Type, q.Options, q.CorrectAnswer
	default:
		return
	}

	seen := make(map[string]struct{}, len(options))
	for _, opt := range options {
		if opt == "" {
			sl.ReportError(options, "options", "Options", optionsUniqueTag, "")
			return
		}
		if _, dup := seen[opt]; dup {
			sl.ReportError(options, "options", "Options", optionsUniqueTag, "")
			return
		}
		seen[opt] = struct{}{}
	}

	switch qType {
	case QuestionMultipleChoice, QuestionTrueFalse:
		if len(options) < 2 {
			sl.ReportError(options, "options", "Options", optionsUniqueTag, "")
			return
		}
		if _, ok := seen[answer]; !ok && answer != "" {
			sl.ReportError(answer, "correct_answer", "CorrectAnswer", answerInOptionsTag, "")
		}
	}
}
