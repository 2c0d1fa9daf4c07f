package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxleads/lead-relay/internal/model"
)

func testConnection(tenantID string) *model.CrmConnection {
	return &model.CrmConnection{
		TenantID:        tenantID,
		Type:            model.ConnectionTypeWebhook,
		Endpoint:        "https://crm.example.com/leads",
		AuthHeaderName:  "X-Api-Key",
		AuthHeaderValue: "env:CRM_API_KEY",
		ResponseIDPath:  "data.lead_id",
		FieldMap:        map[string]string{"email": "contact.email"},
	}
}

func TestConnectionRepository_Connection(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewConnectionRepository(db)
	ctx := context.Background()

	t.Run("missing tenant", func(t *testing.T) {
		_, err := repo.GetByTenant(ctx, "nobody")
		assert.ErrorIs(t, err, ErrConnectionNotFound)
	})

	t.Run("upsert then get", func(t *testing.T) {
		created, err := repo.UpsertConnection(ctx, testConnection("tenant-1"))
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)

		got, err := repo.GetByTenant(ctx, "tenant-1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, model.ConnectionTypeWebhook, got.Type)
		assert.Equal(t, "data.lead_id", got.ResponseIDPath)
		assert.Equal(t, "contact.email", got.FieldMap["email"])
	})

	t.Run("upsert replaces in place", func(t *testing.T) {
		conn := testConnection("tenant-1")
		conn.Type = model.ConnectionTypeGeneric
		conn.Endpoint = "https://crm.example.com/v2/leads"

		updated, err := repo.UpsertConnection(ctx, conn)
		require.NoError(t, err)

		got, err := repo.GetByTenant(ctx, "tenant-1")
		require.NoError(t, err)
		assert.Equal(t, updated.ID, got.ID)
		assert.Equal(t, model.ConnectionTypeGeneric, got.Type)
		assert.Equal(t, "https://crm.example.com/v2/leads", got.Endpoint)
	})

	t.Run("invalid connection rejected", func(t *testing.T) {
		conn := testConnection("tenant-1")
		conn.Type = "soap"
		_, err := repo.UpsertConnection(ctx, conn)
		assert.Error(t, err)
	})
}

func TestConnectionRepository_ResolveLocation(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewConnectionRepository(db)
	ctx := context.Background()

	_, err := repo.CreateLocation(ctx, &model.Location{
		TenantID:     "tenant-1",
		Scheme:       model.SchemeLegacy,
		ParentRef:    "school-1",
		LocationRef:  "campus-1",
		Name:         "Main Campus",
		RoutingTags:  []string{"west", "priority"},
		NotifyOnLead: true,
		NotifyEmails: []string{"admissions@example.com"},
	})
	require.NoError(t, err)

	legacy := model.TargetRef{
		Scheme: model.SchemeLegacy, SchoolID: "school-1", CampusID: "campus-1", ProgramID: "p",
	}

	t.Run("resolves by scheme and refs", func(t *testing.T) {
		loc, err := repo.ResolveLocation(ctx, "tenant-1", legacy)
		require.NoError(t, err)
		assert.Equal(t, "Main Campus", loc.Name)
		assert.Equal(t, []string{"west", "priority"}, loc.RoutingTags)
		assert.True(t, loc.NotifyOnLead)
		assert.Equal(t, []string{"admissions@example.com"}, loc.NotifyEmails)
	})

	t.Run("scheme mismatch does not resolve", func(t *testing.T) {
		account := model.TargetRef{
			Scheme: model.SchemeAccount, AccountID: "school-1", LocationID: "campus-1", ProgramID: "p",
		}
		_, err := repo.ResolveLocation(ctx, "tenant-1", account)
		assert.ErrorIs(t, err, ErrLocationNotFound)
	})

	t.Run("tenant scoped", func(t *testing.T) {
		_, err := repo.ResolveLocation(ctx, "tenant-2", legacy)
		assert.ErrorIs(t, err, ErrLocationNotFound)
	})

	t.Run("values with commas survive the round trip", func(t *testing.T) {
		_, err := repo.CreateLocation(ctx, &model.Location{
			TenantID:     "tenant-1",
			Scheme:       model.SchemeLegacy,
			ParentRef:    "school-1",
			LocationRef:  "campus-2",
			RoutingTags:  []string{"west, evening", "nursing"},
			NotifyOnLead: true,
			NotifyEmails: []string{"Lee, Admissions <lee@example.com>"},
		})
		require.NoError(t, err)

		loc, err := repo.ResolveLocation(ctx, "tenant-1", model.TargetRef{
			Scheme: model.SchemeLegacy, SchoolID: "school-1", CampusID: "campus-2", ProgramID: "p",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"west, evening", "nursing"}, loc.RoutingTags)
		assert.Equal(t, []string{"Lee, Admissions <lee@example.com>"}, loc.NotifyEmails)
	})
}

func TestConnectionRepository_ResolveProgram(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewConnectionRepository(db)
	ctx := context.Background()

	_, err := repo.CreateProgram(ctx, &model.Program{
		TenantID: "tenant-1", Ref: "prog-1", Name: "Nursing", Active: true,
	})
	require.NoError(t, err)
	_, err = repo.CreateProgram(ctx, &model.Program{
		TenantID: "tenant-1", Ref: "prog-old", Name: "Retired", Active: false,
	})
	require.NoError(t, err)

	t.Run("active program resolves", func(t *testing.T) {
		prog, err := repo.ResolveProgram(ctx, "tenant-1", "prog-1")
		require.NoError(t, err)
		assert.Equal(t, "Nursing", prog.Name)
	})

	t.Run("inactive program does not resolve", func(t *testing.T) {
		_, err := repo.ResolveProgram(ctx, "tenant-1", "prog-old")
		assert.ErrorIs(t, err, ErrProgramNotFound)
	})

	t.Run("unknown ref", func(t *testing.T) {
		_, err := repo.ResolveProgram(ctx, "tenant-1", "prog-404")
		assert.ErrorIs(t, err, ErrProgramNotFound)
	})
}

func TestAuditRepository_Append(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewAuditRepository(db)
	ctx := context.Background()

	_, err := repo.Append(ctx, &model.AuditEvent{
		TenantID:     "tenant-1",
		SubmissionID: "sub-1",
		Actor:        "api",
		Action:       model.AuditLeadReceived,
		Detail:       map[string]interface{}{"idempotency_key": "abc"},
	})
	require.NoError(t, err)

	_, err = repo.Append(ctx, &model.AuditEvent{
		TenantID:     "tenant-1",
		SubmissionID: "sub-1",
		Actor:        "worker",
		Action:       model.AuditDeliverySucceeded,
	})
	require.NoError(t, err)

	events, err := repo.ListBySubmission(ctx, "tenant-1", "sub-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.AuditLeadReceived, events[0].Action)
	assert.Equal(t, model.AuditDeliverySucceeded, events[1].Action)
	assert.Equal(t, "abc", events[0].Detail["idempotency_key"])
}
