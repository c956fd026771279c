// Package validation checks incoming task payloads before they reach the store.
//
// The exported functions are pure: they never mutate their input and never touch
// the store. A failed check yields an *Error listing one Violation per field.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/Antonioedwardsd/devlab/internal/models"

	"github.com/go-playground/validator/v10"
)

const (
	TitleMaxLength       = 100
	DescriptionMaxLength = 500
)

// CreateTaskRequest is the full schema used when creating a task.
type CreateTaskRequest struct {
	Title       *string `json:"title,omitempty" validate:"required,min=1,max=100,notblank"`
	Description *string `json:"description,omitempty" validate:"required,min=1,max=500"`
	Completed   *bool   `json:"completed,omitempty"`
}

// UpdateTaskRequest is the partial schema: every field is optional but keeps
// the same bounds when present.
type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=1,max=100,notblank"`
	Description *string `json:"description,omitempty" validate:"omitempty,min=1,max=500"`
	Completed   *bool   `json:"completed,omitempty"`
}

// Violation describes one failed field constraint.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is returned when a payload violates its schema.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewError builds an *Error from the given violations.
func NewError(violations ...Violation) *Error {
	return &Error{Violations: violations}
}

// AsError reports whether err is (or wraps) a validation error.
func AsError(err error) (*Error, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimFunc(fl.Field().String(), unicode.IsSpace) != ""
	})

	return v
}

// ValidateCreate checks req against the full schema.
func ValidateCreate(req CreateTaskRequest) (models.TaskDraft, error) {
	if err := check(req); err != nil {
		return models.TaskDraft{}, err
	}

	draft := models.TaskDraft{
		Title:       *req.Title,
		Description: *req.Description,
	}
	if req.Completed != nil {
		draft.Completed = *req.Completed
	}
	return draft, nil
}

// ValidateUpdate checks req against the partial schema.
func ValidateUpdate(req UpdateTaskRequest) (models.TaskPatch, error) {
	if err := check(req); err != nil {
		return models.TaskPatch{}, err
	}

	return models.TaskPatch{
		Title:       cloneString(req.Title),
		Description: cloneString(req.Description),
		Completed:   cloneBool(req.Completed),
	}, nil
}

// ParseBoolParam parses an optional boolean query parameter.
func ParseBoolParam(field, raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, NewError(Violation{Field: field, Message: "Expected boolean, received " + strconv.Quote(raw)})
	}
	return &value, nil
}

func check(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate payload: %w", err)
	}

	violations := make([]Violation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		violations = append(violations, Violation{
			Field:   fe.Field(),
			Message: message(fe),
		})
	}
	return NewError(violations...)
}

func message(fe validator.FieldError) string {
	label := capitalize(fe.Field())

	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "min":
		if fe.Param() == "1" {
			return label + " is required"
		}
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return label + " is too long"
	case "notblank":
		return label + " must not be blank"
	default:
		return label + " is invalid"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
