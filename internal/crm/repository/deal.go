package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/database"
)

// DealFilter narrows a deal listing. TenantID is mandatory. OwnerID, when
// set, restricts to deals owned by that user and must only be set when the
// owner column exists.
type DealFilter struct {
	TenantID   string
	PipelineID string
	OwnerID    string
}

// DealPatch lists the fields an update writes. Set* flags distinguish
// "clear" from "leave alone" for nullable references.
type DealPatch struct {
	Title       *string
	Value       *float64
	Currency    *string
	ClientIDSet bool
	ClientID    *string
	OwnerIDSet  bool
	OwnerID     *string
}

// Empty reports whether the patch writes nothing.
func (p DealPatch) Empty() bool {
	return p.Title == nil && p.Value == nil && p.Currency == nil && !p.ClientIDSet && !p.OwnerIDSet
}

// DealRepository handles deal persistence
type DealRepository struct {
	db *database.DB
}

// NewDealRepository creates a new deal repository
func NewDealRepository(db *database.DB) *DealRepository {
	return &DealRepository{db: db}
}

// DealColumns returns the deal columns the live schema has.
func DealColumns(caps domain.Caps) []string {
	cols := []string{"id", "tenant_id", "pipeline_id", "stage_id", "title", "value", "currency", "created_at", "updated_at"}
	if caps.HasClientID {
		cols = append(cols, "client_id")
	}
	if caps.HasOwnerID {
		cols = append(cols, "owner_id")
	}
	if caps.HasProposalFilePath {
		cols = append(cols, "proposal_file_path")
	}
	return cols
}

func (r *DealRepository) selectDeals(caps domain.Caps, f DealFilter) *sqlbuilder.SelectBuilder {
	sb := database.TenantSelect("deals", f.TenantID, DealColumns(caps)...)
	if f.PipelineID != "" {
		sb.Where(sb.Equal("pipeline_id", f.PipelineID))
	}
	if f.OwnerID != "" && caps.HasOwnerID {
		sb.Where(sb.Equal("owner_id", f.OwnerID))
	}
	return sb
}

// List returns the deals matching f, newest first.
func (r *DealRepository) List(ctx context.Context, caps domain.Caps, f DealFilter) ([]domain.Deal, error) {
	sb := r.selectDeals(caps, f)
	sb.OrderBy("created_at").Desc()
	query, args := sb.Build()

	deals := []domain.Deal{}
	if err := r.db.Q(ctx).SelectContext(ctx, &deals, query, args...); err != nil {
		return nil, err
	}
	for i := range deals {
		deals[i].HasProposal = deals[i].ProposalFilePath != nil
	}
	return deals, nil
}

// Get returns one deal visible under f.
func (r *DealRepository) Get(ctx context.Context, caps domain.Caps, f DealFilter, id string) (*domain.Deal, error) {
	sb := r.selectDeals(caps, f)
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	var deal domain.Deal
	if err := r.db.Q(ctx).GetContext(ctx, &deal, query, args...); err != nil {
		return nil, notFound(err, "deal")
	}
	deal.HasProposal = deal.ProposalFilePath != nil
	return &deal, nil
}

// Insert creates a deal, writing only the optional columns that exist.
func (r *DealRepository) Insert(ctx context.Context, caps domain.Caps, deal *domain.Deal) error {
	if deal.ID == "" {
		deal.ID = uuid.New().String()
	}

	cols := []string{"id", "tenant_id", "pipeline_id", "stage_id", "title", "value", "currency"}
	vals := []any{deal.ID, deal.TenantID, deal.PipelineID, deal.StageID, deal.Title, deal.Value, deal.Currency}
	if caps.HasClientID {
		cols = append(cols, "client_id")
		vals = append(vals, deal.ClientID)
	}
	if caps.HasOwnerID {
		cols = append(cols, "owner_id")
		vals = append(vals, deal.OwnerID)
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("deals").Cols(cols...).Values(vals...)
	ib.Returning("created_at", "updated_at")
	query, args := ib.Build()

	err := r.db.Q(ctx).QueryRowxContext(ctx, query, args...).Scan(&deal.CreatedAt, &deal.UpdatedAt)
	return mapWriteErr(err)
}

// Update writes the patch. Optional columns are only touched when present.
func (r *DealRepository) Update(ctx context.Context, caps domain.Caps, tenantID, id string, p DealPatch) error {
	ub := database.TenantUpdate("deals", id, tenantID)
	assignments := []string{}
	if p.Title != nil {
		assignments = append(assignments, ub.Assign("title", *p.Title))
	}
	if p.Value != nil {
		assignments = append(assignments, ub.Assign("value", *p.Value))
	}
	if p.Currency != nil {
		assignments = append(assignments, ub.Assign("currency", *p.Currency))
	}
	if p.ClientIDSet && caps.HasClientID {
		assignments = append(assignments, ub.Assign("client_id", p.ClientID))
	}
	if p.OwnerIDSet && caps.HasOwnerID {
		assignments = append(assignments, ub.Assign("owner_id", p.OwnerID))
	}
	assignments = append(assignments, ub.Assign("updated_at", sqlbuilder.Raw("NOW()")))
	ub.Set(assignments...)

	query, args := ub.Build()
	res, err := r.db.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectOne(res, "deal")
}

// SetStage moves a deal to stageID.
func (r *DealRepository) SetStage(ctx context.Context, tenantID, id, stageID string) error {
	query := `UPDATE deals SET stage_id = $1, updated_at = NOW() WHERE id = $2 AND tenant_id = $3`
	res, err := r.db.Q(ctx).ExecContext(ctx, query, stageID, id, tenantID)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectOne(res, "deal")
}

// SetProposalPath records the stored proposal file.
func (r *DealRepository) SetProposalPath(ctx context.Context, tenantID, id, path string) error {
	query := `UPDATE deals SET proposal_file_path = $1, updated_at = NOW() WHERE id = $2 AND tenant_id = $3`
	res, err := r.db.Q(ctx).ExecContext(ctx, query, path, id, tenantID)
	if err != nil {
		return err
	}
	return expectOne(res, "deal")
}

// Delete removes the deal row. Items and history must be gone first.
func (r *DealRepository) Delete(ctx context.Context, tenantID, id string) error {
	query := `DELETE FROM deals WHERE id = $1 AND tenant_id = $2`
	res, err := r.db.Q(ctx).ExecContext(ctx, query, id, tenantID)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectOne(res, "deal")
}

// InsertItems adds line items to a deal in one statement.
func (r *DealRepository) InsertItems(ctx context.Context, items []domain.DealItem) error {
	if len(items) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("deal_items").Cols("id", "tenant_id", "deal_id", "product_id", "quantity", "unit_price")
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.New().String()
		}
		it := items[i]
		ib.Values(it.ID, it.TenantID, it.DealID, it.ProductID, it.Quantity, it.UnitPrice)
	}
	query, args := ib.Build()

	_, err := r.db.Q(ctx).ExecContext(ctx, query, args...)
	return mapWriteErr(err)
}

// ListItems returns a deal's line items.
func (r *DealRepository) ListItems(ctx context.Context, tenantID, dealID string) ([]domain.DealItem, error) {
	query := `SELECT id, tenant_id, deal_id, product_id, quantity, unit_price
		FROM deal_items WHERE tenant_id = $1 AND deal_id = $2 ORDER BY id`

	items := []domain.DealItem{}
	if err := r.db.Q(ctx).SelectContext(ctx, &items, query, tenantID, dealID); err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteItems removes all line items of a deal.
func (r *DealRepository) DeleteItems(ctx context.Context, tenantID, dealID string) error {
	_, err := r.db.Q(ctx).ExecContext(ctx, `DELETE FROM deal_items WHERE tenant_id = $1 AND deal_id = $2`, tenantID, dealID)
	return err
}

// InsertHistory appends a stage move.
func (r *DealRepository) InsertHistory(ctx context.Context, h *domain.StageHistory) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	query := `INSERT INTO deal_stage_history (id, tenant_id, deal_id, from_stage_id, to_stage_id, changed_by)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING changed_at`

	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		h.ID, h.TenantID, h.DealID, h.FromStageID, h.ToStageID, h.ChangedBy,
	).Scan(&h.ChangedAt)
	return mapWriteErr(err)
}

// ListHistory returns a deal's stage moves, newest first.
func (r *DealRepository) ListHistory(ctx context.Context, tenantID, dealID string) ([]domain.StageHistory, error) {
	query := `SELECT id, tenant_id, deal_id, from_stage_id, to_stage_id, changed_by, changed_at
		FROM deal_stage_history WHERE tenant_id = $1 AND deal_id = $2 ORDER BY changed_at DESC`

	history := []domain.StageHistory{}
	if err := r.db.Q(ctx).SelectContext(ctx, &history, query, tenantID, dealID); err != nil {
		return nil, err
	}
	return history, nil
}

// DeleteHistory removes a deal's stage moves. Only called when the deal
// itself is being removed.
func (r *DealRepository) DeleteHistory(ctx context.Context, tenantID, dealID string) error {
	_, err := r.db.Q(ctx).ExecContext(ctx, `DELETE FROM deal_stage_history WHERE tenant_id = $1 AND deal_id = $2`, tenantID, dealID)
	return err
}
