package service

import (
	"context"
	"math"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/internal/fx"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/permissions"
)

// ForecastService computes probability-weighted pipeline totals in USD.
type ForecastService struct {
	caps      CapsSource
	roles     *RoleResolver
	pipelines PipelineStore
	deals     DealStore
	tenants   TenantStore
	fx        FXSource
	logger    *logger.Logger
}

// NewForecastService creates a new forecast service
func NewForecastService(
	caps CapsSource,
	roles *RoleResolver,
	pipelines PipelineStore,
	deals DealStore,
	tenants TenantStore,
	rates FXSource,
	log *logger.Logger,
) *ForecastService {
	return &ForecastService{
		caps:      caps,
		roles:     roles,
		pipelines: pipelines,
		deals:     deals,
		tenants:   tenants,
		fx:        rates,
		logger:    log.WithComponent("forecast"),
	}
}

// Forecast returns the forecast for pipelineID, or for the tenant's default
// pipeline when empty. An unavailable FX provider degrades to face values.
func (s *ForecastService) Forecast(ctx context.Context, caller *actor.Actor, pipelineID string) (*domain.Forecast, error) {
	role, err := s.roles.RequirePermission(ctx, caller, permissions.ReportsRead)
	if err != nil {
		return nil, err
	}
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return nil, err
	}

	pipeline, err := resolvePipeline(ctx, s.pipelines, s.tenants, caps, caller.TenantID, pipelineID, s.logger)
	if err != nil {
		return nil, err
	}
	stages, err := s.pipelines.ListStages(ctx, caller.TenantID, pipeline.ID)
	if err != nil {
		return nil, err
	}

	f := visibility(caps, caller, role, s.logger)
	f.PipelineID = pipeline.ID
	deals, err := s.deals.List(ctx, caps, f)
	if err != nil {
		return nil, err
	}

	snap := snapshotOrNil(ctx, s.fx, s.logger)
	forecast := computeForecast(*pipeline, stages, deals, snap)
	return &forecast, nil
}

// resolvePipeline picks the explicit pipeline, else the tenant default,
// else the oldest pipeline.
func resolvePipeline(
	ctx context.Context,
	pipelines PipelineStore,
	tenants TenantStore,
	caps domain.Caps,
	tenantID, pipelineID string,
	log *logger.Logger,
) (*domain.Pipeline, error) {
	if pipelineID != "" {
		return pipelines.Get(ctx, tenantID, pipelineID)
	}

	if caps.HasTenantSettings && tenants != nil {
		settings, err := tenants.Settings(ctx, tenantID)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("tenant_id", tenantID).Msg("failed to read tenant settings")
		case settings.DefaultPipelineID != nil:
			p, err := pipelines.Get(ctx, tenantID, *settings.DefaultPipelineID)
			if err == nil {
				return p, nil
			}
			if !errors.Is(err, errors.ErrNotFound) {
				return nil, err
			}
			log.Warn().Str("pipeline_id", *settings.DefaultPipelineID).Msg("default pipeline no longer exists")
		}
	}

	return pipelines.Oldest(ctx, tenantID)
}

func snapshotOrNil(ctx context.Context, rates FXSource, log *logger.Logger) *fx.Snapshot {
	if rates == nil {
		return nil
	}
	snap, err := rates.Snapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("fx rates unavailable, using face values")
		return nil
	}
	return snap
}

// computeForecast weights each deal's USD value by its stage. With a nil
// snapshot values are taken at face value. With a snapshot, deals whose
// currency cannot be converted are left out and counted.
func computeForecast(p domain.Pipeline, stages []domain.Stage, deals []domain.Deal, snap *fx.Snapshot) domain.Forecast {
	out := domain.Forecast{
		Pipeline:    p,
		Currency:    domain.ReportingCurrency,
		FXAvailable: snap != nil,
		ByStage:     make([]domain.StageForecast, len(stages)),
	}

	index := make(map[string]int, len(stages))
	for i, st := range stages {
		index[st.ID] = i
		out.ByStage[i] = domain.StageForecast{
			StageID:     st.ID,
			Name:        st.Name,
			Status:      st.Status,
			Probability: st.Probability,
			Weight:      st.Weight(),
		}
	}

	for _, d := range deals {
		i, ok := index[d.StageID]
		if !ok {
			continue
		}

		value := d.Value
		if snap != nil {
			usd, ok := snap.ToUSD(d.Value, d.Currency)
			if !ok {
				out.ExcludedDeals++
				continue
			}
			value = usd
		}

		sf := &out.ByStage[i]
		sf.DealCount++
		sf.Total += value
		sf.WeightedTotal += value * sf.Weight
	}

	for i := range out.ByStage {
		sf := &out.ByStage[i]
		out.Total += sf.Total
		out.WeightedTotal += sf.WeightedTotal
		sf.Total = roundCents(sf.Total)
		sf.WeightedTotal = roundCents(sf.WeightedTotal)
	}
	out.Total = roundCents(out.Total)
	out.WeightedTotal = roundCents(out.WeightedTotal)

	return out
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
