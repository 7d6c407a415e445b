package utils

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/karmashop-resbrevis/karmapurgex/model"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate     *validator.Validate
	translator   ut.Translator
	validateOnce sync.Once
)

// GetValidator returns the shared validator and its English translator.
func GetValidator() (*validator.Validate, ut.Translator) {
	validateOnce.Do(func() {
		validate, translator = newValidator()
	})
	return validate, translator
}

func newValidator() (*validator.Validate, ut.Translator) {
	v := validator.New()

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	v.RegisterValidation("liveness", func(fl validator.FieldLevel) bool {
		return model.LivenessStatus(fl.Field().String()).Valid()
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	en_translations.RegisterDefaultTranslations(v, trans)

	v.RegisterTranslation("liveness", trans, func(ut ut.Translator) error {
		return ut.Add("liveness", "{0} must be one of LIVE, DEAD or RED FLAG", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("liveness", fe.Field())
		return t
	})

	return v, trans
}

// Validate checks s and returns every violation as one readable message.
func Validate(s interface{}) (string, error) {
	v, trans := GetValidator()
	err := v.Struct(s)
	if err == nil {
		return "", nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error(), err
	}
	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		messages = append(messages, e.Translate(trans))
	}
	return strings.Join(messages, "; "), err
}
