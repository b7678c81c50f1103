package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/library-circulation/internal/model"
)

var validate = newValidator()

// newValidator возвращает валидатор, который называет поля по их json-тегам.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Struct проверяет теги validate у структуры запроса и возвращает первую найденную ошибку
// в виде *model.ValidationError.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return model.NewValidationError(strings.ToLower(fe.Field()), "failed on '"+fe.Tag()+"'")
	}

	return model.NewValidationError("", err.Error())
}
