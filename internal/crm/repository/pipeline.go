package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/database"
)

const stageColumns = `id, tenant_id, pipeline_id, name, position, probability, status`

// PipelineRepository handles pipeline and stage persistence
type PipelineRepository struct {
	db *database.DB
}

// NewPipelineRepository creates a new pipeline repository
func NewPipelineRepository(db *database.DB) *PipelineRepository {
	return &PipelineRepository{db: db}
}

// List returns the tenant's pipelines, oldest first, without stages.
func (r *PipelineRepository) List(ctx context.Context, tenantID string) ([]domain.Pipeline, error) {
	query := `SELECT id, tenant_id, name, created_at FROM pipelines WHERE tenant_id = $1 ORDER BY created_at, id`

	pipelines := []domain.Pipeline{}
	if err := r.db.Q(ctx).SelectContext(ctx, &pipelines, query, tenantID); err != nil {
		return nil, err
	}
	return pipelines, nil
}

// Get returns one pipeline of the tenant.
func (r *PipelineRepository) Get(ctx context.Context, tenantID, id string) (*domain.Pipeline, error) {
	query := `SELECT id, tenant_id, name, created_at FROM pipelines WHERE id = $1 AND tenant_id = $2`

	var p domain.Pipeline
	if err := r.db.Q(ctx).GetContext(ctx, &p, query, id, tenantID); err != nil {
		return nil, notFound(err, "pipeline")
	}
	return &p, nil
}

// Oldest returns the tenant's first pipeline.
func (r *PipelineRepository) Oldest(ctx context.Context, tenantID string) (*domain.Pipeline, error) {
	query := `SELECT id, tenant_id, name, created_at FROM pipelines WHERE tenant_id = $1 ORDER BY created_at, id LIMIT 1`

	var p domain.Pipeline
	if err := r.db.Q(ctx).GetContext(ctx, &p, query, tenantID); err != nil {
		return nil, notFound(err, "pipeline")
	}
	return &p, nil
}

// Create inserts a pipeline and its stages. Callers wrap it in a transaction.
func (r *PipelineRepository) Create(ctx context.Context, p *domain.Pipeline) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `INSERT INTO pipelines (id, tenant_id, name) VALUES ($1, $2, $3) RETURNING created_at`
	if err := r.db.Q(ctx).QueryRowxContext(ctx, query, p.ID, p.TenantID, p.Name).Scan(&p.CreatedAt); err != nil {
		return mapWriteErr(err)
	}

	if len(p.Stages) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("stages").Cols("id", "tenant_id", "pipeline_id", "name", "position", "probability", "status")
	for i := range p.Stages {
		s := &p.Stages[i]
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		s.TenantID = p.TenantID
		s.PipelineID = p.ID
		ib.Values(s.ID, s.TenantID, s.PipelineID, s.Name, s.Position, s.Probability, string(s.Status))
	}
	query, args := ib.Build()

	_, err := r.db.Q(ctx).ExecContext(ctx, query, args...)
	return mapWriteErr(err)
}

// ListStages returns a pipeline's stages by position.
func (r *PipelineRepository) ListStages(ctx context.Context, tenantID, pipelineID string) ([]domain.Stage, error) {
	query := `SELECT ` + stageColumns + ` FROM stages WHERE tenant_id = $1 AND pipeline_id = $2 ORDER BY position`

	stages := []domain.Stage{}
	if err := r.db.Q(ctx).SelectContext(ctx, &stages, query, tenantID, pipelineID); err != nil {
		return nil, err
	}
	return stages, nil
}

// ListTenantStages returns every stage of the tenant.
func (r *PipelineRepository) ListTenantStages(ctx context.Context, tenantID string) ([]domain.Stage, error) {
	query := `SELECT ` + stageColumns + ` FROM stages WHERE tenant_id = $1 ORDER BY pipeline_id, position`

	stages := []domain.Stage{}
	if err := r.db.Q(ctx).SelectContext(ctx, &stages, query, tenantID); err != nil {
		return nil, err
	}
	return stages, nil
}

// GetStage returns one stage of the tenant.
func (r *PipelineRepository) GetStage(ctx context.Context, tenantID, id string) (*domain.Stage, error) {
	query := `SELECT ` + stageColumns + ` FROM stages WHERE id = $1 AND tenant_id = $2`

	var s domain.Stage
	if err := r.db.Q(ctx).GetContext(ctx, &s, query, id, tenantID); err != nil {
		return nil, notFound(err, "stage")
	}
	return &s, nil
}

// FirstStage returns the lowest-position stage of a pipeline.
func (r *PipelineRepository) FirstStage(ctx context.Context, tenantID, pipelineID string) (*domain.Stage, error) {
	query := `SELECT ` + stageColumns + ` FROM stages WHERE tenant_id = $1 AND pipeline_id = $2 ORDER BY position LIMIT 1`

	var s domain.Stage
	if err := r.db.Q(ctx).GetContext(ctx, &s, query, tenantID, pipelineID); err != nil {
		return nil, notFound(err, "stage")
	}
	return &s, nil
}
