package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voxleads/lead-relay/internal/model"
	"github.com/voxleads/lead-relay/pkg/pg"
)

var (
	// ErrConnectionNotFound means the tenant has no delivery channel
	// configured. The worker treats this as a fatal job error.
	ErrConnectionNotFound = errors.New("crm connection not found")

	// ErrLocationNotFound means the addressed location does not exist for
	// the tenant, or exists under a different tenant.
	ErrLocationNotFound = errors.New("location not found")

	// ErrProgramNotFound covers both unknown and inactive programs.
	ErrProgramNotFound = errors.New("program not found")
)

type ConnectionRepository struct {
	*pg.DB
}

func NewConnectionRepository(db *pg.DB) *ConnectionRepository {
	return &ConnectionRepository{db}
}

func (r *ConnectionRepository) GetByTenant(ctx context.Context, tenantID string) (*model.CrmConnection, error) {
	var entity CrmConnectionEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, err
	}
	return toCrmConnectionModel(&entity), nil
}

func (r *ConnectionRepository) UpsertConnection(ctx context.Context, conn *model.CrmConnection) (*model.CrmConnection, error) {
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	entity := toCrmConnectionEntity(conn)

	var existing CrmConnectionEntity
	err := r.Write(ctx).WithContext(ctx).
		Where("tenant_id = ?", conn.TenantID).
		First(&existing).Error
	switch {
	case err == nil:
		entity.ID = existing.ID
		entity.CreatedAt = existing.CreatedAt
		if err := r.Write(ctx).WithContext(ctx).Save(entity).Error; err != nil {
			return nil, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if entity.ID == "" {
			entity.ID = uuid.NewString()
		}
		if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return toCrmConnectionModel(entity), nil
}

// ResolveLocation finds the tenant's location for the addressed target.
// Lookups are by (scheme, parent_ref, location_ref) so the two addressing
// schemes never collide.
func (r *ConnectionRepository) ResolveLocation(ctx context.Context, tenantID string, target model.TargetRef) (*model.Location, error) {
	var entity LocationEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("tenant_id = ? AND scheme = ? AND parent_ref = ? AND location_ref = ?",
			tenantID, string(target.Scheme), target.ParentRef(), target.LocationRef()).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLocationNotFound
		}
		return nil, err
	}
	return toLocationModel(&entity), nil
}

// ResolveProgram returns the tenant's program by ref. Inactive programs
// resolve the same as missing ones.
func (r *ConnectionRepository) ResolveProgram(ctx context.Context, tenantID, ref string) (*model.Program, error) {
	var entity ProgramEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("tenant_id = ? AND ref = ? AND active = ?", tenantID, ref, true).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProgramNotFound
		}
		return nil, err
	}
	return toProgramModel(&entity), nil
}

func (r *ConnectionRepository) CreateLocation(ctx context.Context, loc *model.Location) (*model.Location, error) {
	entity := toLocationEntity(loc)
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toLocationModel(entity), nil
}

func (r *ConnectionRepository) CreateProgram(ctx context.Context, prog *model.Program) (*model.Program, error) {
	entity := toProgramEntity(prog)
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toProgramModel(entity), nil
}
