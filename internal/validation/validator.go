// Package validation проверяет входные структуры через go-playground/validator.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/beereshbc/influencaa-backend/internal/domain/valueobject"
	"github.com/beereshbc/influencaa-backend/internal/pkg/apperror"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
		return valueobject.Platform(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return isStrongPassword(fl.Field().String())
	})
	return v
}

// Struct проверяет структуру и возвращает VALIDATION_ERROR со списком полей, не прошедших проверку.
func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return apperror.Wrap(err, apperror.ErrCodeValidation, "некорректные данные запроса")
	}

	fields := make([]string, 0, len(errs))
	seen := make(map[string]struct{}, len(errs))
	for _, fe := range errs {
		name := fieldPath(fe.Namespace())
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		fields = append(fields, name)
	}

	return apperror.Validation("отсутствуют или некорректны обязательные поля", fields...)
}

// fieldPath отбрасывает имя корневой структуры: "CreateOrderInput.orderDetails.email" -> "orderDetails.email".
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

// isStrongPassword: минимум 8 символов, заглавная и строчная буквы, цифра.
func isStrongPassword(password string) bool {
	if len(password) < 8 {
		return false
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}
	return hasUpper && hasLower && hasNumber
}
