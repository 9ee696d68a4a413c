package service

import (
	"context"
	"fmt"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/permissions"
)

// DefaultStages is the stage layout of the pipeline created at sign-up.
var DefaultStages = []domain.StageInput{
	{Name: "Lead", Position: 0, Probability: 0.1, Status: domain.StageOpen},
	{Name: "Qualified", Position: 1, Probability: 0.3, Status: domain.StageOpen},
	{Name: "Proposal", Position: 2, Probability: 0.6, Status: domain.StageOpen},
	{Name: "Won", Position: 3, Probability: 1, Status: domain.StageWon},
	{Name: "Lost", Position: 4, Probability: 0, Status: domain.StageLost},
}

// PipelineService handles pipelines and their stages
type PipelineService struct {
	tx        TxRunner
	roles     *RoleResolver
	pipelines PipelineStore
	logger    *logger.Logger
}

// NewPipelineService creates a new pipeline service
func NewPipelineService(tx TxRunner, roles *RoleResolver, pipelines PipelineStore, log *logger.Logger) *PipelineService {
	return &PipelineService{
		tx:        tx,
		roles:     roles,
		pipelines: pipelines,
		logger:    log.WithComponent("pipelines"),
	}
}

// List returns the tenant's pipelines with their stages.
func (s *PipelineService) List(ctx context.Context, caller *actor.Actor) ([]domain.Pipeline, error) {
	if _, err := s.roles.RequirePermission(ctx, caller, permissions.PipelinesRead); err != nil {
		return nil, err
	}

	pipelines, err := s.pipelines.List(ctx, caller.TenantID)
	if err != nil {
		return nil, err
	}
	stages, err := s.pipelines.ListTenantStages(ctx, caller.TenantID)
	if err != nil {
		return nil, err
	}

	byPipeline := make(map[string][]domain.Stage)
	for _, st := range stages {
		byPipeline[st.PipelineID] = append(byPipeline[st.PipelineID], st)
	}
	for i := range pipelines {
		pipelines[i].Stages = byPipeline[pipelines[i].ID]
	}
	return pipelines, nil
}

// Get returns one pipeline with its stages.
func (s *PipelineService) Get(ctx context.Context, caller *actor.Actor, id string) (*domain.Pipeline, error) {
	if _, err := s.roles.RequirePermission(ctx, caller, permissions.PipelinesRead); err != nil {
		return nil, err
	}
	p, err := s.pipelines.Get(ctx, caller.TenantID, id)
	if err != nil {
		return nil, err
	}
	if p.Stages, err = s.pipelines.ListStages(ctx, caller.TenantID, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// Create adds a pipeline with its stages. Requires ADMIN.
func (s *PipelineService) Create(ctx context.Context, caller *actor.Actor, in domain.PipelineInput) (*domain.Pipeline, error) {
	if _, err := s.roles.RequireAtLeast(ctx, caller, domain.RoleAdmin); err != nil {
		return nil, err
	}

	p, err := NewPipeline(caller.TenantID, in)
	if err != nil {
		return nil, err
	}
	if err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.pipelines.Create(ctx, p)
	}); err != nil {
		return nil, err
	}

	s.logger.Info().Str("pipeline_id", p.ID).Int("stages", len(p.Stages)).Msg("pipeline created")
	return p, nil
}

// NewPipeline builds a pipeline from input, rejecting duplicate positions.
func NewPipeline(tenantID string, in domain.PipelineInput) (*domain.Pipeline, error) {
	if len(in.Stages) == 0 {
		return nil, errors.BadRequest("a pipeline needs at least one stage")
	}

	p := &domain.Pipeline{TenantID: tenantID, Name: in.Name}
	positions := make(map[int]bool, len(in.Stages))
	for _, st := range in.Stages {
		if positions[st.Position] {
			return nil, errors.BadRequest(fmt.Sprintf("duplicate stage position %d", st.Position))
		}
		positions[st.Position] = true

		status := st.Status
		if status == "" {
			status = domain.StageOpen
		}
		p.Stages = append(p.Stages, domain.Stage{
			TenantID:    tenantID,
			Name:        st.Name,
			Position:    st.Position,
			Probability: st.Probability,
			Status:      status,
		})
	}
	return p, nil
}
