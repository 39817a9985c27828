package domain

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report field errors by their JSON names so they match the request body.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a submission before it is committed or queued. Blank
// free-text fields are trimmed first so whitespace-only input is rejected.
func (s Submission) Validate() error {
	s.Barangay = strings.TrimSpace(s.Barangay)
	s.Description = strings.TrimSpace(s.Description)
	s.IncidentType = strings.TrimSpace(s.IncidentType)
	s.SubmittedBy = strings.TrimSpace(s.SubmittedBy)

	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []FieldError{{Field: "report", Rule: err.Error()}}}
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		// Namespace is "Submission.location.lat"; drop the type prefix.
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		out.Fields = append(out.Fields, FieldError{Field: field, Rule: fe.Tag()})
	}
	return out
}
