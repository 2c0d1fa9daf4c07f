package model

import (
	"errors"
	"strings"
	"time"
)

// SubmissionStatus is the lifecycle state of a lead submission.
type SubmissionStatus string

const (
	SubmissionStatusReceived   SubmissionStatus = "received"
	SubmissionStatusDelivering SubmissionStatus = "delivering"
	SubmissionStatusDelivered  SubmissionStatus = "delivered"
	SubmissionStatusFailed     SubmissionStatus = "failed"
)

// AddressingScheme selects which pair of target identifiers a tenant uses.
// Legacy tenants address campuses under schools; current tenants address
// locations under accounts. The scheme is resolved once when the target is
// built and never re-derived from optional-field presence.
type AddressingScheme string

const (
	SchemeLegacy  AddressingScheme = "legacy"
	SchemeAccount AddressingScheme = "account"
)

// TargetRef is the resolved delivery target of a submission.
type TargetRef struct {
	Scheme AddressingScheme `json:"scheme"`

	// legacy scheme
	SchoolID string `json:"school_id,omitempty"`
	CampusID string `json:"campus_id,omitempty"`

	// account scheme
	AccountID  string `json:"account_id,omitempty"`
	LocationID string `json:"location_id,omitempty"`

	ProgramID string `json:"program_id"`
}

// NewTargetRef classifies raw identifiers into a TargetRef. Exactly one
// scheme's pair must be present.
func NewTargetRef(schoolID, campusID, accountID, locationID, programID string) (TargetRef, error) {
	legacy := schoolID != "" && campusID != ""
	account := accountID != "" && locationID != ""

	switch {
	case legacy && account:
		return TargetRef{}, errors.New("ambiguous target: both legacy and account identifiers present")
	case legacy:
		return TargetRef{Scheme: SchemeLegacy, SchoolID: schoolID, CampusID: campusID, ProgramID: programID}, nil
	case account:
		return TargetRef{Scheme: SchemeAccount, AccountID: accountID, LocationID: locationID, ProgramID: programID}, nil
	default:
		return TargetRef{}, errors.New("incomplete target identifiers")
	}
}

// ParentRef is the school or account component, depending on scheme.
func (t TargetRef) ParentRef() string {
	if t.Scheme == SchemeLegacy {
		return t.SchoolID
	}
	return t.AccountID
}

// LocationRef is the campus or location component, depending on scheme.
func (t TargetRef) LocationRef() string {
	if t.Scheme == SchemeLegacy {
		return t.CampusID
	}
	return t.LocationID
}

func (t TargetRef) Equal(o TargetRef) bool {
	return t.Scheme == o.Scheme &&
		t.ParentRef() == o.ParentRef() &&
		t.LocationRef() == o.LocationRef() &&
		t.ProgramID == o.ProgramID
}

// Consent is the recorded marketing-consent state of a submission.
type Consent struct {
	Granted     bool      `json:"granted"`
	TextVersion string    `json:"text_version"`
	Timestamp   time.Time `json:"timestamp"`
}

type Submission struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenant_id"`
	Target   TargetRef `json:"target"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`

	Answers  map[string]interface{} `json:"answers"`
	Metadata map[string]interface{} `json:"metadata"`
	Consent  Consent                `json:"consent"`

	IdempotencyKey    string           `json:"idempotency_key"`
	Status            SubmissionStatus `json:"status"`
	CrmLeadID         string           `json:"crm_lead_id,omitempty"`
	LastStepCompleted int              `json:"last_step_completed"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// SubmissionCreateRequest is the input of the new-lead intake operation.
type SubmissionCreateRequest struct {
	TenantID  string
	FirstName string
	LastName  string
	Email     string
	Phone     string

	SchoolID   string
	CampusID   string
	AccountID  string
	LocationID string
	ProgramID  string

	Answers  map[string]interface{}
	Metadata map[string]interface{}
	Consent  Consent

	// Honeypot is a hidden form field; any value means a bot filled it.
	Honeypot string
}

func (p SubmissionCreateRequest) Validate() error {
	if p.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return errors.New("email is required")
	}
	if strings.TrimSpace(p.FirstName) == "" {
		return errors.New("first_name is required")
	}
	if strings.TrimSpace(p.LastName) == "" {
		return errors.New("last_name is required")
	}
	if p.ProgramID == "" {
		return errors.New("program_id is required")
	}
	return nil
}

// SubmissionStepRequest is the input of the step-update intake operation.
type SubmissionStepRequest struct {
	SubmissionID string
	TenantID     string
	StepIndex    int
	Answers      map[string]interface{}
}

func (p SubmissionStepRequest) Validate() error {
	if p.SubmissionID == "" {
		return errors.New("submission_id is required")
	}
	if p.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if p.StepIndex < 1 {
		return errors.New("step_index must be >= 1")
	}
	if len(p.Answers) == 0 {
		return errors.New("answers are required")
	}
	return nil
}
