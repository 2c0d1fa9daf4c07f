package repository

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"

	"github.com/voxleads/lead-relay/internal/model"
)

type CrmConnectionEntity struct {
	ID       string `gorm:"primaryKey;type:uuid;column:id"`
	TenantID string `gorm:"column:tenant_id;not null;uniqueIndex"`
	Type     string `gorm:"column:type;not null"`

	Endpoint        string `gorm:"column:endpoint;not null"`
	AuthHeaderName  string `gorm:"column:auth_header_name"`
	AuthHeaderValue string `gorm:"column:auth_header_value"`
	ResponseIDPath  string `gorm:"column:response_id_path"`

	FieldMap datatypes.JSONMap `gorm:"column:field_map"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CrmConnectionEntity) TableName() string { return "crm_connections" }

func toCrmConnectionEntity(m *model.CrmConnection) *CrmConnectionEntity {
	if m == nil {
		return nil
	}
	fieldMap := datatypes.JSONMap{}
	for k, v := range m.FieldMap {
		fieldMap[k] = v
	}
	return &CrmConnectionEntity{
		ID:              m.ID,
		TenantID:        m.TenantID,
		Type:            string(m.Type),
		Endpoint:        m.Endpoint,
		AuthHeaderName:  m.AuthHeaderName,
		AuthHeaderValue: m.AuthHeaderValue,
		ResponseIDPath:  m.ResponseIDPath,
		FieldMap:        fieldMap,
	}
}

func toCrmConnectionModel(e *CrmConnectionEntity) *model.CrmConnection {
	if e == nil {
		return nil
	}
	fieldMap := map[string]string{}
	for k, v := range e.FieldMap {
		if s, ok := v.(string); ok {
			fieldMap[k] = s
		}
	}
	return &model.CrmConnection{
		ID:              e.ID,
		TenantID:        e.TenantID,
		Type:            model.ConnectionType(e.Type),
		Endpoint:        e.Endpoint,
		AuthHeaderName:  e.AuthHeaderName,
		AuthHeaderValue: e.AuthHeaderValue,
		ResponseIDPath:  e.ResponseIDPath,
		FieldMap:        fieldMap,
	}
}

type LocationEntity struct {
	ID          string `gorm:"primaryKey;type:uuid;column:id"`
	TenantID    string `gorm:"column:tenant_id;not null;uniqueIndex:ux_location_ref"`
	Scheme      string `gorm:"column:scheme;not null;uniqueIndex:ux_location_ref"`
	ParentRef   string `gorm:"column:parent_ref;not null;uniqueIndex:ux_location_ref"`
	LocationRef string `gorm:"column:location_ref;not null;uniqueIndex:ux_location_ref"`
	Name        string `gorm:"column:name"`

	RoutingTags  pq.StringArray `gorm:"column:routing_tags;type:text[]"`
	NotifyOnLead bool           `gorm:"column:notify_on_lead"`
	NotifyEmails pq.StringArray `gorm:"column:notify_emails;type:text[]"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (LocationEntity) TableName() string { return "locations" }

func toLocationEntity(m *model.Location) *LocationEntity {
	if m == nil {
		return nil
	}
	return &LocationEntity{
		ID:           m.ID,
		TenantID:     m.TenantID,
		Scheme:       string(m.Scheme),
		ParentRef:    m.ParentRef,
		LocationRef:  m.LocationRef,
		Name:         m.Name,
		RoutingTags:  pq.StringArray(m.RoutingTags),
		NotifyOnLead: m.NotifyOnLead,
		NotifyEmails: pq.StringArray(m.NotifyEmails),
	}
}

func toLocationModel(e *LocationEntity) *model.Location {
	if e == nil {
		return nil
	}
	return &model.Location{
		ID:           e.ID,
		TenantID:     e.TenantID,
		Scheme:       model.AddressingScheme(e.Scheme),
		ParentRef:    e.ParentRef,
		LocationRef:  e.LocationRef,
		Name:         e.Name,
		RoutingTags:  []string(e.RoutingTags),
		NotifyOnLead: e.NotifyOnLead,
		NotifyEmails: []string(e.NotifyEmails),
	}
}

type ProgramEntity struct {
	ID       string `gorm:"primaryKey;type:uuid;column:id"`
	TenantID string `gorm:"column:tenant_id;not null;uniqueIndex:ux_program_ref"`
	Ref      string `gorm:"column:ref;not null;uniqueIndex:ux_program_ref"`
	Name     string `gorm:"column:name"`
	Active   bool   `gorm:"column:active;not null;default:true"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProgramEntity) TableName() string { return "programs" }

func toProgramEntity(m *model.Program) *ProgramEntity {
	if m == nil {
		return nil
	}
	return &ProgramEntity{
		ID:       m.ID,
		TenantID: m.TenantID,
		Ref:      m.Ref,
		Name:     m.Name,
		Active:   m.Active,
	}
}

func toProgramModel(e *ProgramEntity) *model.Program {
	if e == nil {
		return nil
	}
	return &model.Program{
		ID:       e.ID,
		TenantID: e.TenantID,
		Ref:      e.Ref,
		Name:     e.Name,
		Active:   e.Active,
	}
}
