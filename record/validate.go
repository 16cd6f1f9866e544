package record

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ValidationResult is the per-item outcome reported by a Validator.
// Invalid items are logged as warnings by the coordinator, not dropped.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Issues  []string `json:"issues,omitempty"`
}

// Validator checks one record before it is committed to storage.
type Validator interface {
	Validate(ctx context.Context, rec BookRecord) (ValidationResult, error)
}

// StructValidator validates records with go-playground/validator tags
// declared on BookRecord.
type StructValidator struct {
	validate *validator.Validate
}

// NewStructValidator creates a tag-based record validator.
func NewStructValidator() *StructValidator {
	return &StructValidator{validate: validator.New()}
}

// Validate implements Validator. Tag violations become issues; only an
// internal validator failure is returned as an error.
func (v *StructValidator) Validate(ctx context.Context, rec BookRecord) (ValidationResult, error) {
	err := v.validate.StructCtx(ctx, rec)
	if err == nil {
		return ValidationResult{IsValid: true}, nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ValidationResult{}, fmt.Errorf("record validation: %w", err)
	}

	issues := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, fmt.Sprintf("field %s failed %q validation", fe.Field(), fe.Tag()))
	}
	return ValidationResult{IsValid: false, Issues: issues}, nil
}
