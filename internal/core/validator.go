package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"emailer/internal/types"
)

// Validator wraps go-playground/validator for request DTOs.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator reporting fields by their json names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// ValidateStruct returns a validation_invalid_request AppError listing every
// failing field, or nil.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return types.NewAppError(types.ErrCodeValidationInvalidRequest, "invalid request", err)
	}

	fields := make(map[string]any, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		path := fieldPath(fe)
		fields[path] = fe.Tag()
		msgs = append(msgs, fmt.Sprintf("%s failed %q", path, fe.Tag()))
	}
	return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidRequest,
		strings.Join(msgs, "; "), err, map[string]any{"fields": fields})
}

// fieldPath drops the root struct name from the namespace, e.g.
// "batchRequest.requests[0].path" becomes "requests[0].path".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
