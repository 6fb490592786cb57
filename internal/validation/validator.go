package validation

import (
	"context"
	"errors"
	"strings"
	"sync"

	"ms-fest/internal/apperr"

	"github.com/go-playground/validator/v10"
)

var (
	once   sync.Once
	global *validator.Validate
)

func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		global = v
	})
	return global
}

// Validate checks struct tags and reports the first failure as a
// VALIDATION error naming the field.
func Validate(ctx context.Context, s interface{}) error {
	err := Validator().StructCtx(ctx, s)
	if err == nil {
		return nil
	}
	var vErrors validator.ValidationErrors
	if !errors.As(err, &vErrors) || len(vErrors) == 0 {
		return apperr.Validationf("invalid request: %v", err)
	}
	ve := vErrors[0]
	field := ve.Field()
	switch ve.Tag() {
	case "required", "notblank":
		return apperr.Validationf("%s is required", field)
	case "min", "gte", "gt":
		return apperr.Validationf("%s must be at least %s", field, ve.Param())
	case "max", "lte", "lt":
		return apperr.Validationf("%s must be at most %s", field, ve.Param())
	case "oneof":
		return apperr.Validationf("%s must be one of [%s]", field, ve.Param())
	case "email":
		return apperr.Validationf("%s must be a valid email", field)
	case "url":
		return apperr.Validationf("%s must be a valid URL", field)
	default:
		return apperr.Validationf("%s is invalid", field)
	}
}
