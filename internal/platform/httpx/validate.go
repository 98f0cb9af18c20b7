package httpx

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/larrabee/ceph/internal/shared"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// Bind decodes the JSON request body into target and validates it. Failures
// are reported as invalid_request errors of component.
func Bind(r *http.Request, component string, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return shared.InvalidRequest(component, "malformed JSON body: "+err.Error())
	}
	if err := validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return shared.InvalidRequest(component, err.Error())
		}
		parts := make([]string, 0, len(fieldErrs))
		for _, fieldErr := range fieldErrs {
			parts = append(parts, fieldErr.Field()+" failed on "+fieldErr.Tag())
		}
		return shared.InvalidRequest(component, strings.Join(parts, "; "))
	}
	return nil
}
