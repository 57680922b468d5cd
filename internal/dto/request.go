package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/models"
)

// CostItemInput is one line of a funding breakdown.
type CostItemInput struct {
	Description string          `json:"description" validate:"required,max=200"`
	Quantity    int             `json:"quantity" validate:"gte=1"`
	UnitCost    decimal.Decimal `json:"unitCost"`
}

// CreateFundingRequest payload for submitting a funding request.
type CreateFundingRequest struct {
	Title         string             `json:"title" validate:"required,max=200"`
	Description   string             `json:"description" validate:"max=4000"`
	Type          models.FundingType `json:"type" validate:"required,oneof=BUDGET LIQUIDATION REIMBURSEMENT"`
	Amount        decimal.Decimal    `json:"amount"`
	CostBreakdown []CostItemInput    `json:"costBreakdown" validate:"required,min=1,dive"`
}

// EquipmentInput is one piece of requested venue equipment.
type EquipmentInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

// CreateVenueRequest payload for booking a venue.
type CreateVenueRequest struct {
	Title       string           `json:"title" validate:"required,max=200"`
	Description string           `json:"description" validate:"max=4000"`
	VenueName   string           `json:"venueName" validate:"required,max=200"`
	StartsAt    time.Time        `json:"startsAt" validate:"required"`
	EndsAt      time.Time        `json:"endsAt" validate:"required"`
	Equipment   []EquipmentInput `json:"equipment" validate:"dive"`
}

// MyRequestsQuery mirrors officer listing filters.
type MyRequestsQuery struct {
	Kind approval.Kind
	Page int
}

// RequestDetail is a request with its rendered approval chain.
type RequestDetail struct {
	models.Request
	Stages   []approval.StageView `json:"stages"`
	NextRole *approval.Role       `json:"nextRole,omitempty"`
}
