package enums

import "fmt"

// ValidationOutcome maps to the outcome column on validation_logs.
type ValidationOutcome string

const (
	ValidationOutcomeSuccess ValidationOutcome = "success"
	ValidationOutcomeFailed  ValidationOutcome = "failed"
	ValidationOutcomeGrace   ValidationOutcome = "grace_period"
)

var validValidationOutcomes = []ValidationOutcome{
	ValidationOutcomeSuccess,
	ValidationOutcomeFailed,
	ValidationOutcomeGrace,
}

// String implements fmt.Stringer.
func (v ValidationOutcome) String() string {
	return string(v)
}

// IsValid reports whether the value matches a known outcome.
func (v ValidationOutcome) IsValid() bool {
	for _, candidate := range validValidationOutcomes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseValidationOutcome converts raw input into ValidationOutcome.
func ParseValidationOutcome(value string) (ValidationOutcome, error) {
	for _, candidate := range validValidationOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid validation outcome %q", value)
}
