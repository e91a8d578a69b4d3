package auth

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tazhibayda/learnpath-auth/internal/apperrors"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their JSON names, which is what clients send
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// checkPassword rejects passwords bcrypt would refuse to hash.
func checkPassword(pw string) error {
	if len(pw) > maxPasswordBytes {
		return apperrors.Validation(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}

// check validates in and returns a ValidationError naming the first bad field.
func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return apperrors.Wrap(apperrors.KindValidation, "invalid input", err)
	}
	fe := ve[0]
	switch fe.Tag() {
	case "required":
		return apperrors.Validation(fmt.Sprintf("%s is required", fe.Field()))
	case "email":
		return apperrors.Validation("invalid email address")
	default:
		return apperrors.Validation(fmt.Sprintf("%s is invalid", fe.Field()))
	}
}
