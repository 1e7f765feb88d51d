package course

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/assessment"
)

var (
	courseLevelTag  = "courselevel"
	courseLevelText = "invalid course level"
)

func init() {
	_ = core.Validate.RegisterValidation(courseLevelTag, courseLevelValidation)
	core.RegisterCustomTranslation(courseLevelTag, courseLevelText)
}

// courseLevelValidation checks that the value is a known placement level.
func courseLevelValidation(fl validator.FieldLevel) bool {
	lvl := assessment.Level(fl.Field().String())
	for _, l := range assessment.AllLevels {
		if lvl == l {
			return true
		}
	}
	return false
}
