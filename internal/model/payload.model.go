package model

// DeliveryContact is the contact block of the canonical payload.
type DeliveryContact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// DeliveryPayload is the channel-agnostic shape handed to every adapter.
// Adapters translate it into whatever their external system expects.
type DeliveryPayload struct {
	SubmissionID   string  `json:"submission_id"`
	IdempotencyKey string  `json:"idempotency_key"`
	Action         JobType `json:"action"`
	CrmLeadID      string  `json:"crm_lead_id,omitempty"`
	StepIndex      int     `json:"step_index"`

	Target TargetRef `json:"target"`

	Contact  DeliveryContact        `json:"contact"`
	Answers  map[string]interface{} `json:"answers"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Consent  Consent                `json:"consent"`

	RoutingTags []string `json:"routing_tags,omitempty"`
}
