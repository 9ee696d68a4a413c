package domain

import "time"

// StageStatus marks a stage as open or terminal.
type StageStatus string

const (
	StageOpen StageStatus = "OPEN"
	StageWon  StageStatus = "WON"
	StageLost StageStatus = "LOST"
)

// Tenant is an isolated customer workspace.
type Tenant struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TenantSettings holds branding and CRM defaults.
type TenantSettings struct {
	LogoURL           *string `json:"logo_url" db:"logo_url"`
	PrimaryColor      *string `json:"primary_color" db:"primary_color"`
	DefaultPipelineID *string `json:"default_pipeline_id" db:"default_pipeline_id"`
	DefaultCurrency   *string `json:"default_currency" db:"default_currency"`
}

// User belongs to exactly one tenant.
type User struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"tenant_id" db:"tenant_id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	Role         Role      `json:"role" db:"role"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Pipeline is an ordered set of stages deals move through.
type Pipeline struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Stages    []Stage   `json:"stages,omitempty" db:"-"`
}

// Stage is a step of a pipeline. Positions are unique per pipeline.
type Stage struct {
	ID          string      `json:"id" db:"id"`
	TenantID    string      `json:"tenant_id" db:"tenant_id"`
	PipelineID  string      `json:"pipeline_id" db:"pipeline_id"`
	Name        string      `json:"name" db:"name"`
	Position    int         `json:"position" db:"position"`
	Probability float64     `json:"probability" db:"probability"`
	Status      StageStatus `json:"status" db:"status"`
}

// Weight is the factor applied to deal values in this stage when forecasting.
func (s Stage) Weight() float64 {
	switch s.Status {
	case StageWon:
		return 1
	case StageLost:
		return 0
	}
	switch {
	case s.Probability < 0:
		return 0
	case s.Probability > 1:
		return 1
	}
	return s.Probability
}

// Deal is a sales opportunity. ClientID, OwnerID and ProposalFilePath are
// only populated when the database has the matching columns.
type Deal struct {
	ID               string     `json:"id" db:"id"`
	TenantID         string     `json:"tenant_id" db:"tenant_id"`
	PipelineID       string     `json:"pipeline_id" db:"pipeline_id"`
	StageID          string     `json:"stage_id" db:"stage_id"`
	Title            string     `json:"title" db:"title"`
	Value            float64    `json:"value" db:"value"`
	Currency         string     `json:"currency" db:"currency"`
	ClientID         *string    `json:"client_id,omitempty" db:"client_id"`
	OwnerID          *string    `json:"owner_id,omitempty" db:"owner_id"`
	ProposalFilePath *string    `json:"-" db:"proposal_file_path"`
	HasProposal      bool       `json:"has_proposal" db:"-"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
	Items            []DealItem `json:"items,omitempty" db:"-"`
}

// DealItem is a product line on a deal.
type DealItem struct {
	ID        string  `json:"id" db:"id"`
	TenantID  string  `json:"tenant_id" db:"tenant_id"`
	DealID    string  `json:"deal_id" db:"deal_id"`
	ProductID string  `json:"product_id" db:"product_id"`
	Quantity  int     `json:"quantity" db:"quantity"`
	UnitPrice float64 `json:"unit_price" db:"unit_price"`
}

// StageHistory is an append-only record of one stage move.
type StageHistory struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	DealID      string    `json:"deal_id" db:"deal_id"`
	FromStageID *string   `json:"from_stage_id" db:"from_stage_id"`
	ToStageID   string    `json:"to_stage_id" db:"to_stage_id"`
	ChangedBy   *string   `json:"changed_by" db:"changed_by"`
	ChangedAt   time.Time `json:"changed_at" db:"changed_at"`
}

// Client is a customer record. Profile fields need HasClientProfile.
type Client struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	Email     *string   `json:"email" db:"email"`
	Company   *string   `json:"company" db:"company"`
	Phone     *string   `json:"phone,omitempty" db:"phone"`
	Website   *string   `json:"website,omitempty" db:"website"`
	Address   *string   `json:"address,omitempty" db:"address"`
	Notes     *string   `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Product is a catalog entry deals can reference.
type Product struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	SKU       *string   `json:"sku" db:"sku"`
	Price     float64   `json:"price" db:"price"`
	Currency  string    `json:"currency" db:"currency"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// InvoiceStatus is the billing state of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft InvoiceStatus = "DRAFT"
	InvoiceSent  InvoiceStatus = "SENT"
	InvoicePaid  InvoiceStatus = "PAID"
	InvoiceVoid  InvoiceStatus = "VOID"
)

// Invoice bills a client, optionally for a deal.
type Invoice struct {
	ID        string        `json:"id" db:"id"`
	TenantID  string        `json:"tenant_id" db:"tenant_id"`
	ClientID  string        `json:"client_id" db:"client_id"`
	DealID    *string       `json:"deal_id" db:"deal_id"`
	Number    string        `json:"number" db:"number"`
	Amount    float64       `json:"amount" db:"amount"`
	Currency  string        `json:"currency" db:"currency"`
	Status    InvoiceStatus `json:"status" db:"status"`
	IssuedAt  *time.Time    `json:"issued_at" db:"issued_at"`
	DueAt     *time.Time    `json:"due_at" db:"due_at"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// Task is a to-do item, optionally tied to a deal and an assignee.
type Task struct {
	ID         string     `json:"id" db:"id"`
	TenantID   string     `json:"tenant_id" db:"tenant_id"`
	DealID     *string    `json:"deal_id" db:"deal_id"`
	AssigneeID *string    `json:"assignee_id" db:"assignee_id"`
	Title      string     `json:"title" db:"title"`
	DueAt      *time.Time `json:"due_at" db:"due_at"`
	Done       bool       `json:"done" db:"done"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Subscription is the tenant's billing plan.
type Subscription struct {
	ID               string     `json:"id" db:"id"`
	TenantID         string     `json:"tenant_id" db:"tenant_id"`
	Plan             string     `json:"plan" db:"plan"`
	Status           string     `json:"status" db:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end" db:"current_period_end"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}
