package model

import "errors"

// ConnectionType selects the adapter used for a tenant's deliveries.
type ConnectionType string

const (
	ConnectionTypeWebhook ConnectionType = "webhook"
	ConnectionTypeGeneric ConnectionType = "generic"
)

func (t ConnectionType) Valid() bool {
	return t == ConnectionTypeWebhook || t == ConnectionTypeGeneric
}

// CrmConnection is a tenant's delivery channel configuration.
type CrmConnection struct {
	ID       string         `json:"id"`
	TenantID string         `json:"tenant_id"`
	Type     ConnectionType `json:"type"`

	Endpoint string `json:"endpoint"`

	// AuthHeaderValue is either a literal or "env:NAME", resolved from the
	// process environment at call time.
	AuthHeaderName  string `json:"auth_header_name,omitempty"`
	AuthHeaderValue string `json:"auth_header_value,omitempty"`

	// ResponseIDPath is the dot-path into the response JSON where the
	// external lead id lives. Empty means "id".
	ResponseIDPath string `json:"response_id_path,omitempty"`

	// FieldMap drives the generic adapter's request construction:
	// destination field -> dot-path into the canonical payload, or a
	// "lit:" literal.
	FieldMap map[string]string `json:"field_map,omitempty"`
}

func (c *CrmConnection) Validate() error {
	if c.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if !c.Type.Valid() {
		return errors.New("unknown connection type: " + string(c.Type))
	}
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	return nil
}

// Location is one campus (legacy) or location (account scheme) of a tenant,
// carrying the routing tags the CRM expects and the lead-notification
// settings for that site.
type Location struct {
	ID          string           `json:"id"`
	TenantID    string           `json:"tenant_id"`
	Scheme      AddressingScheme `json:"scheme"`
	ParentRef   string           `json:"parent_ref"`
	LocationRef string           `json:"location_ref"`
	Name        string           `json:"name"`

	RoutingTags  []string `json:"routing_tags,omitempty"`
	NotifyOnLead bool     `json:"notify_on_lead"`
	NotifyEmails []string `json:"notify_emails,omitempty"`
}

// Program is one offering a lead can apply to.
type Program struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Ref      string `json:"ref"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
}
