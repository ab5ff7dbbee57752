package issue

import (
	"errors"
	"strings"

	"civic-api/internal/apperr"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateInput reports the first problem as an apperr.Validation error.
func ValidateInput(in Input) error {
	if err := validate.Struct(in); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fe := ve[0]
			return apperr.E(apperr.Validation, "field %s failed %q", lowerFirst(fe.Field()), fe.Tag())
		}
		return apperr.Wrap(apperr.Validation, err, "invalid issue")
	}
	if strings.TrimSpace(in.Type) == "" {
		return apperr.E(apperr.Validation, "field type is blank")
	}
	if strings.TrimSpace(in.Address) == "" {
		return apperr.E(apperr.Validation, "field address is blank")
	}
	if err := in.Coordinate().Validate(); err != nil {
		return err
	}
	if in.Status != nil && !in.Status.Valid() {
		return apperr.E(apperr.Validation, "unknown status %q", *in.Status)
	}
	return nil
}

// ValidateDeviceID accepts any opaque, non-empty id up to 128 bytes.
func ValidateDeviceID(id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.E(apperr.Validation, "device id is required")
	}
	if len(id) > 128 {
		return apperr.E(apperr.Validation, "device id longer than 128 bytes")
	}
	return nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
