package attendance

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/quangdn/vibecheck/core"
)

var (
	sessionCodeTag   = "sessioncode"
	sessionCodeText  = "must be an uppercase alphanumeric session code"
	sessionCodeRegex = regexp.MustCompile(`^[A-Z0-9]{4,10}$`)
)

// InitValidators registers the attendance custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(sessionCodeTag, sessionCodeValidation)
	core.RegisterCustomTranslation(validate, translator, sessionCodeTag, sessionCodeText)
}

func sessionCodeValidation(fl validator.FieldLevel) bool {
	return sessionCodeRegex.MatchString(fl.Field().String())
}
