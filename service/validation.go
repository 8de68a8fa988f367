package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

type validation struct {
	validate *validator.Validate
	trans    ut.Translator
}

func newValidation() *validation {
	locale := en.New()
	uni := ut.New(locale, locale)
	trans, _ := uni.GetTranslator("en")

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		panic(err)
	}

	return &validation{validate: validate, trans: trans}
}

// Struct validates s and converts failures into a *ValidationError keyed by
// json field name.
func (v *validation) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}

	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		if _, exists := fields[fe.Field()]; !exists {
			fields[fe.Field()] = fe.Translate(v.trans)
		}
	}
	return &ValidationError{Fields: fields}
}
