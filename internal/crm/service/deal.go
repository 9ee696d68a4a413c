package service

import (
	"context"
	stderrors "errors"
	"io"
	"sort"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/internal/crm/repository"
	"github.com/brightdesk/crm-backend/internal/storage"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/messaging"
	"github.com/brightdesk/crm-backend/pkg/permissions"
)

const proposalCategory = "proposals"

// DealService handles deal business logic
type DealService struct {
	caps      CapsSource
	tx        TxRunner
	roles     *RoleResolver
	deals     DealStore
	pipelines PipelineStore
	clients   ClientStore
	products  ProductStore
	users     UserStore
	tenants   TenantStore
	files     FileStore
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// DealDeps groups the collaborators of a DealService.
type DealDeps struct {
	Caps      CapsSource
	Tx        TxRunner
	Roles     *RoleResolver
	Deals     DealStore
	Pipelines PipelineStore
	Clients   ClientStore
	Products  ProductStore
	Users     UserStore
	Tenants   TenantStore
	Files     FileStore
	Publisher messaging.EventPublisher
}

// NewDealService creates a new deal service
func NewDealService(deps DealDeps, log *logger.Logger) *DealService {
	return &DealService{
		caps:      deps.Caps,
		tx:        deps.Tx,
		roles:     deps.Roles,
		deals:     deps.Deals,
		pipelines: deps.Pipelines,
		clients:   deps.Clients,
		products:  deps.Products,
		users:     deps.Users,
		tenants:   deps.Tenants,
		files:     deps.Files,
		publisher: orNop(deps.Publisher),
		logger:    log.WithComponent("deals"),
	}
}

// scope resolves the caller's role and capabilities and builds the
// visibility filter every deal read and write goes through.
func (s *DealService) scope(ctx context.Context, caller *actor.Actor, permission string) (domain.Caps, repository.DealFilter, error) {
	role, err := s.roles.RequirePermission(ctx, caller, permission)
	if err != nil {
		return domain.Caps{}, repository.DealFilter{}, err
	}
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return domain.Caps{}, repository.DealFilter{}, err
	}
	return caps, visibility(caps, caller, role, s.logger), nil
}

// Create creates a deal with optional line items in one transaction.
// Without a stage the deal starts in the pipeline's first stage.
func (s *DealService) Create(ctx context.Context, caller *actor.Actor, in domain.CreateDealInput) (*domain.Deal, error) {
	if _, err := s.roles.RequirePermission(ctx, caller, permissions.DealsWrite); err != nil {
		return nil, err
	}
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return nil, err
	}

	if in.ClientID != nil && *in.ClientID != "" && !caps.HasClientID {
		return nil, errors.SchemaUpgradePending("linking a client to a deal")
	}
	if len(in.Items) > 0 && !caps.HasProductTables {
		return nil, errors.SchemaUpgradePending("deal line items")
	}

	pipeline, err := s.pipelines.Get(ctx, caller.TenantID, in.PipelineID)
	if err != nil {
		return nil, err
	}
	stage, err := s.initialStage(ctx, caller.TenantID, pipeline.ID, in.StageID)
	if err != nil {
		return nil, err
	}

	deal := &domain.Deal{
		TenantID:   caller.TenantID,
		PipelineID: pipeline.ID,
		StageID:    stage.ID,
		Title:      in.Title,
		Value:      in.Value,
		Currency:   in.Currency,
	}
	if deal.Currency == "" {
		deal.Currency = s.defaultCurrency(ctx, caps, caller.TenantID)
	}

	if in.ClientID != nil && *in.ClientID != "" {
		if err := s.checkClient(ctx, caller.TenantID, *in.ClientID); err != nil {
			return nil, err
		}
		deal.ClientID = in.ClientID
	}
	if caps.HasOwnerID {
		deal.OwnerID = ptr(caller.ID)
	}

	items, err := s.resolveItems(ctx, caller.TenantID, in.Items)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.deals.Insert(ctx, caps, deal); err != nil {
			return err
		}
		for i := range items {
			items[i].DealID = deal.ID
		}
		return s.deals.InsertItems(ctx, items)
	})
	if err != nil {
		return nil, err
	}
	deal.Items = items

	s.logger.Info().
		Str("deal_id", deal.ID).
		Str("tenant_id", deal.TenantID).
		Int("items", len(items)).
		Msg("deal created")

	publish(ctx, s.publisher, s.logger, messaging.EventDealCreated, messaging.DealEvent{
		DealID:     deal.ID,
		TenantID:   deal.TenantID,
		PipelineID: deal.PipelineID,
		ActorID:    caller.ID,
	})

	return deal, nil
}

func (s *DealService) initialStage(ctx context.Context, tenantID, pipelineID string, stageID *string) (*domain.Stage, error) {
	if stageID == nil || *stageID == "" {
		stage, err := s.pipelines.FirstStage(ctx, tenantID, pipelineID)
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.BadRequest("pipeline has no stages")
		}
		return stage, err
	}

	stage, err := s.pipelines.GetStage(ctx, tenantID, *stageID)
	if err != nil {
		return nil, err
	}
	if stage.PipelineID != pipelineID {
		return nil, errors.BadRequest("stage does not belong to the deal's pipeline")
	}
	return stage, nil
}

func (s *DealService) defaultCurrency(ctx context.Context, caps domain.Caps, tenantID string) string {
	if caps.HasTenantSettings && s.tenants != nil {
		settings, err := s.tenants.Settings(ctx, tenantID)
		if err == nil && settings.DefaultCurrency != nil && *settings.DefaultCurrency != "" {
			return *settings.DefaultCurrency
		}
	}
	return domain.ReportingCurrency
}

func (s *DealService) checkClient(ctx context.Context, tenantID, clientID string) error {
	ok, err := s.clients.Exists(ctx, tenantID, clientID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NotFound("client")
	}
	return nil
}

// resolveItems checks that every referenced product is active and belongs
// to the tenant, and fills in catalog prices.
func (s *DealService) resolveItems(ctx context.Context, tenantID string, in []domain.DealItemInput) ([]domain.DealItem, error) {
	if len(in) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(in))
	ids := make([]string, 0, len(in))
	for _, it := range in {
		if it.Quantity < 1 {
			return nil, errors.BadRequest("item quantity must be at least 1")
		}
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}

	products, err := s.products.FindActive(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	if len(products) != len(ids) {
		return nil, errors.BadRequest("invalid product references")
	}
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]domain.DealItem, 0, len(in))
	for _, it := range in {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, errors.BadRequest("invalid product references")
		}
		price := p.Price
		if it.UnitPrice != nil {
			price = *it.UnitPrice
		}
		items = append(items, domain.DealItem{
			TenantID:  tenantID,
			ProductID: p.ID,
			Quantity:  it.Quantity,
			UnitPrice: price,
		})
	}
	return items, nil
}

// FindAll lists the deals visible to the caller, optionally for one pipeline.
func (s *DealService) FindAll(ctx context.Context, caller *actor.Actor, pipelineID string) ([]domain.Deal, error) {
	caps, f, err := s.scope(ctx, caller, permissions.DealsRead)
	if err != nil {
		return nil, err
	}
	f.PipelineID = pipelineID
	return s.deals.List(ctx, caps, f)
}

// FindOne returns a visible deal with its line items.
func (s *DealService) FindOne(ctx context.Context, caller *actor.Actor, id string) (*domain.Deal, error) {
	caps, f, err := s.scope(ctx, caller, permissions.DealsRead)
	if err != nil {
		return nil, err
	}
	deal, err := s.deals.Get(ctx, caps, f, id)
	if err != nil {
		return nil, err
	}
	if caps.HasProductTables {
		items, err := s.deals.ListItems(ctx, caller.TenantID, deal.ID)
		if err != nil {
			return nil, err
		}
		deal.Items = items
	}
	return deal, nil
}

// Update applies a partial update. Stage changes go through MoveStage and
// line items are fixed at creation.
func (s *DealService) Update(ctx context.Context, caller *actor.Actor, id string, in domain.UpdateDealInput) (*domain.Deal, error) {
	if in.Items != nil {
		return nil, errors.BadRequest("line items cannot be changed on update")
	}

	role, err := s.roles.RequirePermission(ctx, caller, permissions.DealsWrite)
	if err != nil {
		return nil, err
	}
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return nil, err
	}
	f := visibility(caps, caller, role, s.logger)

	if _, err := s.deals.Get(ctx, caps, f, id); err != nil {
		return nil, err
	}

	patch := repository.DealPatch{
		Title:    in.Title,
		Value:    in.Value,
		Currency: in.Currency,
	}

	if in.ClientID != nil {
		if !caps.HasClientID {
			return nil, errors.SchemaUpgradePending("linking a client to a deal")
		}
		patch.ClientIDSet = true
		if *in.ClientID != "" {
			if err := s.checkClient(ctx, caller.TenantID, *in.ClientID); err != nil {
				return nil, err
			}
			patch.ClientID = in.ClientID
		}
	}

	if in.OwnerID != nil {
		if !caps.HasOwnerID {
			return nil, errors.SchemaUpgradePending("deal ownership")
		}
		if !role.AtLeast(domain.RoleAdmin) {
			return nil, errors.Forbidden("only admins can reassign deals")
		}
		if _, err := s.users.Get(ctx, caps, caller.TenantID, *in.OwnerID); err != nil {
			return nil, err
		}
		patch.OwnerIDSet = true
		patch.OwnerID = in.OwnerID
	}

	if !patch.Empty() {
		if err := s.deals.Update(ctx, caps, caller.TenantID, id, patch); err != nil {
			return nil, err
		}
		publish(ctx, s.publisher, s.logger, messaging.EventDealUpdated, messaging.DealEvent{
			DealID:   id,
			TenantID: caller.TenantID,
			ActorID:  caller.ID,
		})
	}

	// Reassigning a deal away from a member hides it from them, so read it
	// back without the owner predicate.
	return s.deals.Get(ctx, caps, repository.DealFilter{TenantID: caller.TenantID}, id)
}

// MoveStage moves a deal to another stage of its pipeline and records the
// move. Moving to the current stage changes nothing.
func (s *DealService) MoveStage(ctx context.Context, caller *actor.Actor, id, stageID string) (*domain.Deal, error) {
	caps, f, err := s.scope(ctx, caller, permissions.DealsWrite)
	if err != nil {
		return nil, err
	}

	deal, err := s.deals.Get(ctx, caps, f, id)
	if err != nil {
		return nil, err
	}
	stage, err := s.pipelines.GetStage(ctx, caller.TenantID, stageID)
	if err != nil {
		return nil, err
	}
	if stage.PipelineID != deal.PipelineID {
		return nil, errors.BadRequest("stage does not belong to the deal's pipeline")
	}
	if deal.StageID == stage.ID {
		return deal, nil
	}

	from := deal.StageID
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.deals.InsertHistory(ctx, &domain.StageHistory{
			TenantID:    caller.TenantID,
			DealID:      deal.ID,
			FromStageID: ptr(from),
			ToStageID:   stage.ID,
			ChangedBy:   ptr(caller.ID),
		}); err != nil {
			return err
		}
		return s.deals.SetStage(ctx, caller.TenantID, deal.ID, stage.ID)
	})
	if err != nil {
		return nil, err
	}
	deal.StageID = stage.ID

	s.logger.Info().
		Str("deal_id", deal.ID).
		Str("from_stage_id", from).
		Str("to_stage_id", stage.ID).
		Msg("deal stage changed")

	publish(ctx, s.publisher, s.logger, messaging.EventDealStageChanged, messaging.DealStageChangedEvent{
		DealID:      deal.ID,
		TenantID:    caller.TenantID,
		FromStageID: from,
		ToStageID:   stage.ID,
		ActorID:     caller.ID,
	})

	return deal, nil
}

// History returns the stage moves of a visible deal, newest first.
func (s *DealService) History(ctx context.Context, caller *actor.Actor, id string) ([]domain.StageHistory, error) {
	caps, f, err := s.scope(ctx, caller, permissions.DealsRead)
	if err != nil {
		return nil, err
	}
	if _, err := s.deals.Get(ctx, caps, f, id); err != nil {
		return nil, err
	}
	history, err := s.deals.ListHistory(ctx, caller.TenantID, id)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].ChangedAt.After(history[j].ChangedAt)
	})
	return history, nil
}

// Remove deletes a deal with its items and history.
func (s *DealService) Remove(ctx context.Context, caller *actor.Actor, id string) error {
	caps, f, err := s.scope(ctx, caller, permissions.DealsWrite)
	if err != nil {
		return err
	}
	deal, err := s.deals.Get(ctx, caps, f, id)
	if err != nil {
		return err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if caps.HasProductTables {
			if err := s.deals.DeleteItems(ctx, caller.TenantID, id); err != nil {
				return err
			}
		}
		if err := s.deals.DeleteHistory(ctx, caller.TenantID, id); err != nil {
			return err
		}
		return s.deals.Delete(ctx, caller.TenantID, id)
	})
	if err != nil {
		return err
	}

	if deal.ProposalFilePath != nil {
		s.removeFile(*deal.ProposalFilePath)
	}

	publish(ctx, s.publisher, s.logger, messaging.EventDealDeleted, messaging.DealEvent{
		DealID:     id,
		TenantID:   caller.TenantID,
		PipelineID: deal.PipelineID,
		ActorID:    caller.ID,
	})
	return nil
}

// UploadProposal stores a proposal document for a deal. A previous
// document is removed once the new one is recorded.
func (s *DealService) UploadProposal(ctx context.Context, caller *actor.Actor, id, filename string, r io.Reader) (*domain.Deal, error) {
	caps, f, err := s.scope(ctx, caller, permissions.DealsWrite)
	if err != nil {
		return nil, err
	}
	if !caps.HasProposalFilePath {
		return nil, errors.SchemaUpgradePending("proposal uploads")
	}
	if !storage.AllowedExtension(filename) {
		return nil, errors.BadRequest("unsupported proposal file type")
	}

	deal, err := s.deals.Get(ctx, caps, f, id)
	if err != nil {
		return nil, err
	}

	path, err := s.files.Save(ctx, caller.TenantID, proposalCategory, filename, r)
	if err != nil {
		if stderrors.Is(err, storage.ErrTooLarge) {
			return nil, errors.BadRequest("proposal file is too large")
		}
		return nil, err
	}

	if err := s.deals.SetProposalPath(ctx, caller.TenantID, deal.ID, path); err != nil {
		s.removeFile(path)
		return nil, err
	}

	if previous := deal.ProposalFilePath; previous != nil && *previous != path {
		s.removeFile(*previous)
	}
	deal.ProposalFilePath = ptr(path)
	deal.HasProposal = true

	publish(ctx, s.publisher, s.logger, messaging.EventProposalUploaded, messaging.DealEvent{
		DealID:     deal.ID,
		TenantID:   caller.TenantID,
		PipelineID: deal.PipelineID,
		ActorID:    caller.ID,
	})
	return deal, nil
}

// ProposalFile returns the stored proposal path of a visible deal.
func (s *DealService) ProposalFile(ctx context.Context, caller *actor.Actor, id string) (string, error) {
	caps, f, err := s.scope(ctx, caller, permissions.DealsRead)
	if err != nil {
		return "", err
	}
	if !caps.HasProposalFilePath {
		return "", errors.SchemaUpgradePending("proposal downloads")
	}
	deal, err := s.deals.Get(ctx, caps, f, id)
	if err != nil {
		return "", err
	}
	if deal.ProposalFilePath == nil {
		return "", errors.NotFound("proposal")
	}
	return *deal.ProposalFilePath, nil
}

func (s *DealService) removeFile(path string) {
	if err := s.files.Remove(path); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove stored file")
	}
}
