package domain

import "time"

// CreateDealInput is the payload for creating a deal.
type CreateDealInput struct {
	Title      string          `json:"title" validate:"required,max=255"`
	Value      float64         `json:"value" validate:"gte=0"`
	Currency   string          `json:"currency" validate:"omitempty,len=3"`
	PipelineID string          `json:"pipeline_id" validate:"required,uuid"`
	StageID    *string         `json:"stage_id" validate:"omitempty,uuid"`
	ClientID   *string         `json:"client_id" validate:"omitempty,uuid"`
	Items      []DealItemInput `json:"items" validate:"omitempty,dive"`
}

// DealItemInput references a product on a deal. UnitPrice defaults to the
// product's catalog price.
type DealItemInput struct {
	ProductID string   `json:"product_id" validate:"required,uuid"`
	Quantity  int      `json:"quantity" validate:"gte=1"`
	UnitPrice *float64 `json:"unit_price" validate:"omitempty,gte=0"`
}

// UpdateDealInput is a partial deal update. An empty ClientID unlinks the
// client. Items is only present to reject it.
type UpdateDealInput struct {
	Title    *string         `json:"title" validate:"omitempty,min=1,max=255"`
	Value    *float64        `json:"value" validate:"omitempty,gte=0"`
	Currency *string         `json:"currency" validate:"omitempty,len=3"`
	ClientID *string         `json:"client_id" validate:"omitempty,uuid"`
	OwnerID  *string         `json:"owner_id" validate:"omitempty,uuid"`
	Items    []DealItemInput `json:"items"`
}

// ClientInput creates or replaces a client.
type ClientInput struct {
	Name    string  `json:"name" validate:"required,max=255"`
	Email   *string `json:"email" validate:"omitempty,email"`
	Company *string `json:"company" validate:"omitempty,max=255"`
	Phone   *string `json:"phone" validate:"omitempty,max=50"`
	Website *string `json:"website" validate:"omitempty,url"`
	Address *string `json:"address" validate:"omitempty,max=500"`
	Notes   *string `json:"notes"`
}

// HasProfile reports whether any profile field is set.
func (in ClientInput) HasProfile() bool {
	return in.Phone != nil || in.Website != nil || in.Address != nil || in.Notes != nil
}

// ProductInput creates or updates a product.
type ProductInput struct {
	Name     string  `json:"name" validate:"required,max=255"`
	SKU      *string `json:"sku" validate:"omitempty,max=100"`
	Price    float64 `json:"price" validate:"gte=0"`
	Currency string  `json:"currency" validate:"omitempty,len=3"`
	Active   *bool   `json:"active"`
}

// StageInput describes a stage when creating a pipeline.
type StageInput struct {
	Name        string      `json:"name" validate:"required,max=100"`
	Position    int         `json:"position" validate:"gte=0"`
	Probability float64     `json:"probability" validate:"gte=0,lte=1"`
	Status      StageStatus `json:"status" validate:"omitempty,oneof=OPEN WON LOST"`
}

// PipelineInput creates a pipeline with its stages.
type PipelineInput struct {
	Name   string       `json:"name" validate:"required,max=255"`
	Stages []StageInput `json:"stages" validate:"required,min=1,dive"`
}

// InviteUserInput adds a user to the caller's tenant.
type InviteUserInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=255"`
	Password string `json:"password" validate:"required,min=8"`
	Role     Role   `json:"role" validate:"omitempty,oneof=OWNER ADMIN MEMBER"`
}

// SettingsInput replaces tenant settings.
type SettingsInput struct {
	LogoURL           *string `json:"logo_url" validate:"omitempty,url"`
	PrimaryColor      *string `json:"primary_color" validate:"omitempty,hexcolor"`
	DefaultPipelineID *string `json:"default_pipeline_id" validate:"omitempty,uuid"`
	DefaultCurrency   *string `json:"default_currency" validate:"omitempty,len=3"`
}

// InvoiceInput creates an invoice.
type InvoiceInput struct {
	ClientID string     `json:"client_id" validate:"required,uuid"`
	DealID   *string    `json:"deal_id" validate:"omitempty,uuid"`
	Number   string     `json:"number" validate:"required,max=50"`
	Amount   float64    `json:"amount" validate:"gte=0"`
	Currency string     `json:"currency" validate:"omitempty,len=3"`
	IssuedAt *time.Time `json:"issued_at"`
	DueAt    *time.Time `json:"due_at"`
}

// TaskInput creates or updates a task.
type TaskInput struct {
	Title      string     `json:"title" validate:"required,max=255"`
	DealID     *string    `json:"deal_id" validate:"omitempty,uuid"`
	AssigneeID *string    `json:"assignee_id" validate:"omitempty,uuid"`
	DueAt      *time.Time `json:"due_at"`
	Done       bool       `json:"done"`
}
