package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	phoneRegex = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{5,}$`)

	// messages overriding the default english ones
	overrides = map[string]string{
		"required":      "this field is required",
		"required_with": "this field is required",
	}

	// tags shared by all domains
	customValidators = []struct {
		tag  string
		text string
		fn   validator.Func
	}{
		{tag: "notblank", text: "this field cannot be blank", fn: notBlank},
		{tag: "phone", text: "invalid phone number", fn: phoneNumber},
	}
)

// NewTranslator returns the english translator used for validation messages.
func NewTranslator() ut.Translator {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	return translator
}

// InitValidators registers the json field names, the english messages and the shared tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)
	validate.RegisterTagNameFunc(jsonFieldName)

	for tag, text := range overrides {
		RegisterCustomTranslation(validate, translator, tag, text, true)
	}
	for _, cv := range customValidators {
		_ = validate.RegisterValidation(cv.tag, cv.fn)
		RegisterCustomTranslation(validate, translator, cv.tag, cv.text)
	}
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	ovrd := len(override) > 0 && override[0]
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func phoneNumber(fl validator.FieldLevel) bool {
	return phoneRegex.MatchString(fl.Field().String())
}
