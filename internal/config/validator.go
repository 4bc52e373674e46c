package config

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/compositor/internal/model"
	compositorerrors "github.com/alexisbeaulieu97/compositor/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	stepIDPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
	stages        = map[Stage]struct{}{StagePre: {}, StageMain: {}, StagePost: {}}
)

// validatorInstance configures and returns the shared validator instance used across the config package.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("step_id", func(fl validator.FieldLevel) bool {
			return stepIDPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("stage", func(fl validator.FieldLevel) bool {
			_, ok := stages[Stage(fl.Field().String())]
			return ok
		})

		validateInst = v
	})

	return validateInst
}

// ValidateManifest performs schema and cross-field validation on a manifest.
func ValidateManifest(m *Manifest, opts Options) error {
	if m == nil {
		return compositorerrors.NewValidationError("manifest", "manifest is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(m); err != nil {
		return convertValidationError(err)
	}

	seen := make(map[string]int, len(m.Runs.Steps))
	for i, step := range m.Runs.Steps {
		if err := ValidateStep(step, i, opts); err != nil {
			return err
		}
		if step.ID == "" {
			continue
		}
		if prev, exists := seen[step.ID]; exists {
			return compositorerrors.NewValidationError(fieldForStep(i, "id"),
				fmt.Sprintf("duplicate step id %q (first declared at runs.steps[%d])", step.ID, prev), nil)
		}
		seen[step.ID] = i
	}

	for _, out := range m.Outputs {
		if strings.TrimSpace(out.Value) == "" {
			return compositorerrors.NewValidationError("outputs."+out.Name+".value", "value is required", nil)
		}
	}

	return nil
}

// ValidateStep checks a single step independent of its siblings.
func ValidateStep(step StepSpec, index int, opts Options) error {
	if err := validatorInstance().Struct(step); err != nil {
		return convertStepError(index, err)
	}

	if strings.HasPrefix(step.ID, model.HiddenStepPrefix) {
		return compositorerrors.NewValidationError(fieldForStep(index, "id"),
			fmt.Sprintf("step id %q uses the reserved prefix %q", step.ID, model.HiddenStepPrefix), nil)
	}

	if step.Run != "" && step.Shell == "" && opts.DefaultShell == "" {
		return compositorerrors.NewValidationError(fieldForStep(index, "shell"),
			"shell is required for run steps", nil)
	}

	if step.Uses != "" && step.Shell != "" {
		return compositorerrors.NewValidationError(fieldForStep(index, "shell"),
			"shell is only valid for run steps", nil)
	}

	return nil
}

// convertValidationError normalizes validator errors into compositor validation errors.
func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return compositorerrors.NewValidationError(field, msg, err)
	}

	return compositorerrors.NewValidationError("manifest", err.Error(), err)
}

func convertStepError(index int, err error) error {
	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := fieldForStep(index, strings.ToLower(ve.Field()))
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return compositorerrors.NewValidationError(field, msg, err)
	}
	return convertValidationError(err)
}

func yamlishFieldName(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	parts := strings.Split(ns, ".")
	var lowered []string
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}

func fieldForStep(index int, field string) string {
	return fmt.Sprintf("runs.steps[%d].%s", index, field)
}
