package validation

import (
	"time"

	"github.com/google/uuid"
)

// Status is the top-level outcome class of a validation.
type Status int

const (
	StatusValid Status = iota
	StatusInvalid
	StatusTransient
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	case StatusTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Reason narrows an Invalid verdict, or marks a grace-window Valid. The set
// is closed; callers switch over it exhaustively.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonMalformed         Reason = "malformed"
	ReasonBadSignature      Reason = "bad_signature"
	ReasonRevoked           Reason = "revoked"
	ReasonExpired           Reason = "expired"
	ReasonScopeMismatch     Reason = "scope_mismatch"
	ReasonSeatLimitExceeded Reason = "seat_limit_exceeded"
	ReasonGracePeriod       Reason = "grace_period"
)

// Verdict is the structured outcome of validating a key against a usage
// context. Payload fields are only populated once the signature has been
// verified.
type Verdict struct {
	Status Status `json:"status"`
	Reason Reason `json:"reason,omitempty"`

	LicenseID    *uuid.UUID `json:"license_id,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	FeatureFlags []string   `json:"feature_flags,omitempty"`
	DeviceToken  string     `json:"device_token,omitempty"`
}

// Valid reports whether the license may be used.
func (v Verdict) Valid() bool {
	return v.Status == StatusValid
}

// MetricLabel flattens the verdict for the prometheus counter.
func (v Verdict) MetricLabel() string {
	if v.Status == StatusValid && v.Reason == ReasonGracePeriod {
		return string(ReasonGracePeriod)
	}
	if v.Status == StatusInvalid {
		return string(v.Reason)
	}
	return v.Status.String()
}
