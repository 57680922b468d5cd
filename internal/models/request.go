package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
)

// FundingType enumerates the kinds of funding requests.
type FundingType string

const (
	FundingTypeBudget        FundingType = "BUDGET"
	FundingTypeLiquidation   FundingType = "LIQUIDATION"
	FundingTypeReimbursement FundingType = "REIMBURSEMENT"
)

// Valid reports whether t is a known funding type.
func (t FundingType) Valid() bool {
	switch t {
	case FundingTypeBudget, FundingTypeLiquidation, FundingTypeReimbursement:
		return true
	}
	return false
}

// CostItem is one line of an itemized funding breakdown.
type CostItem struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unitCost"`
}

// Total returns quantity times unit cost.
func (c CostItem) Total() decimal.Decimal {
	return c.UnitCost.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

// FundingDetails is the payload specific to funding requests.
type FundingDetails struct {
	Type          FundingType     `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	CostBreakdown []CostItem      `json:"costBreakdown"`
}

// BreakdownTotal sums every cost item.
func (f FundingDetails) BreakdownTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range f.CostBreakdown {
		total = total.Add(item.Total())
	}
	return total
}

// EquipmentItem is requested venue equipment.
type EquipmentItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// VenueDetails is the payload specific to venue bookings.
type VenueDetails struct {
	VenueName string          `json:"venueName"`
	StartsAt  time.Time       `json:"startsAt"`
	EndsAt    time.Time       `json:"endsAt"`
	Equipment []EquipmentItem `json:"equipment"`
}

// Request is a submitted funding or venue request together with its approval state.
type Request struct {
	ID             int64             `json:"id"`
	Kind           approval.Kind     `json:"kind"`
	OwnerID        int64             `json:"ownerId"`
	OrganizationID *int64            `json:"organizationId,omitempty"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Funding        *FundingDetails   `json:"funding,omitempty"`
	Venue          *VenueDetails     `json:"venue,omitempty"`
	Approval       approval.Snapshot `json:"approval"`
	SubmittedAt    time.Time         `json:"submittedAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	Version        int               `json:"version"`
}

// QueueTarget pairs a request kind with the stage a role owns in that kind's chain. Requires lists
// the stages that must already be approved before the stage is actionable.
type QueueTarget struct {
	Kind     approval.Kind
	Stage    approval.Stage
	Requires []approval.Stage
}

// QueueFilter narrows candidate requests for a signatory queue.
type QueueFilter struct {
	Targets        []QueueTarget
	OrganizationID *int64
}

// HistoryFilter selects requests a signatory stage has already decided.
type HistoryFilter struct {
	Targets        []QueueTarget
	OrganizationID *int64
	Outcome        approval.Status
	Search         string
	Limit          int
	Offset         int
}

// OwnerFilter lists an officer's own submissions.
type OwnerFilter struct {
	OwnerID int64
	Kind    approval.Kind
	Limit   int
	Offset  int
}
