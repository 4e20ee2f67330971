// internal/domain/boost/dto.go
package boost

import "time"

// Quote is an authoritative price returned by the upstream calculation.
type Quote struct {
	Type         Type    `json:"type"`
	DurationDays int     `json:"durationDays"`
	Price        float64 `json:"price"`
	PricePerDay  float64 `json:"pricePerDay"`
}

// CreateBoostRequest is the upstream create-boost payload.
type CreateBoostRequest struct {
	ListingID     string `json:"listingId"`
	Type          Type   `json:"type"`
	DurationDays  int    `json:"durationDays"`
	PaymentMethod string `json:"paymentMethod"`
	AutoRenew     bool   `json:"autoRenew"`
}

// CreateBoostResult carries exactly one of a created boost or a redirect URL.
type CreateBoostResult struct {
	Boost       *Boost `json:"boost,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// Partition is the active/expired split of a boost list at one clock reading.
type Partition struct {
	Active     []Boost   `json:"active"`
	Expired    []Boost   `json:"expired"`
	ComputedAt time.Time `json:"computed_at"`
}

type AttemptListFilters struct {
	Status   *AttemptStatus `form:"status"`
	Page     int            `form:"page" binding:"omitempty,min=1"`
	PageSize int            `form:"page_size" binding:"omitempty,min=1,max=100"`
}

type AttemptListResponse struct {
	Attempts   []PurchaseAttempt `json:"attempts"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}
