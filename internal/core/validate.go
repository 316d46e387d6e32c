package core

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	// custom validation tags & texts
	scheduleEntryTag  = "schedule_entry"
	scheduleEntryText = "{0} must be a date like 2006-01-02, optionally followed by \" (Test Fit)\""
	testFitEntryTag   = "testfit_entry"
	testFitEntryText  = "{0} may only hold test fit entries when TestFit is yes"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError carries per-field messages for a rejected input.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err *ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	msgs := make([]string, 0, len(err.Fields))
	for _, f := range err.Fields {
		msgs = append(msgs, f.Error)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (err *ValidationError) Unwrap() error {
	return err.Err
}

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Report JSON names so messages match the request body.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(scheduleEntryTag, scheduleEntryValidation)
	registerCustomTranslation(scheduleEntryTag, scheduleEntryText)

	validate.RegisterStructValidation(jobStructValidation, Job{})
	registerCustomTranslation(testFitEntryTag, testFitEntryText)
}

func registerCustomTranslation(tag, text string) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

func scheduleEntryValidation(fl validator.FieldLevel) bool {
	_, err := ParseScheduleEntry(fl.Field().String())
	return err == nil
}

// jobStructValidation rejects test fit entries on a job that does not allow
// a test fit.
func jobStructValidation(sl validator.StructLevel) {
	j := sl.Current().Interface().(Job)
	if j.TestFit.Yes() {
		return
	}
	for _, raw := range j.Schedule {
		if e, err := ParseScheduleEntry(raw); err == nil && e.TestFit {
			sl.ReportError(j.Schedule, "Schedule", "Schedule", testFitEntryTag, "")
			return
		}
	}
}

// ValidateStruct runs the struct tags of v and translates failures into a
// *ValidationError.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Error: fe.Translate(translator)})
	}
	return NewValidationError(nil, fields...)
}
