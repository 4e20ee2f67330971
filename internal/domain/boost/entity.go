// internal/domain/boost/entity.go
package boost

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// Type is a promotion type. The pricing catalog decides which types exist.
type Type string

const (
	TypeFeatured    Type = "featured"
	TypeTopSearch   Type = "top_search"
	TypeHomepage    Type = "homepage"
	TypeCategoryTop Type = "category_top"
	TypeUrgent      Type = "urgent"
	TypeHighlight   Type = "highlight"
)

// Payment method values understood by the upstream create-boost call.
// External providers are addressed by their provider id instead.
const (
	PaymentMethodSubscription = "subscription"
	PaymentMethodWallet       = "wallet"
)

// PricingTier is immutable reference data: one tier per promotion type.
type PricingTier struct {
	Type        Type    `json:"type"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	PricePerDay float64 `json:"pricePerDay"`
	MinDays     int     `json:"minDays"`
	MaxDays     int     `json:"maxDays"`
}

// AllowsDuration reports whether days is inside [MinDays, MaxDays].
func (t PricingTier) AllowsDuration(days int) bool {
	return days >= t.MinDays && days <= t.MaxDays
}

// SubscriptionCredit is the caller's rationed free promotion entitlement.
type SubscriptionCredit struct {
	HasActiveSubscription    bool   `json:"hasActiveSubscription"`
	PlanName                 string `json:"planName,omitempty"`
	CanUseSubscriptionCredit bool   `json:"canUseSubscriptionCredit"`
	TotalCredits             int    `json:"totalCredits"`
	UsedCredits              int    `json:"usedCredits"`
	RemainingCredits         int    `json:"remainingCredits"`
}

// Consistent checks used + remaining == total.
func (c SubscriptionCredit) Consistent() bool {
	return c.UsedCredits+c.RemainingCredits == c.TotalCredits
}

// Wallet is a spendable balance. It is only ever read here.
type Wallet struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency,omitempty"`
}

// Boost is a purchased, time-bounded promotion of one listing.
type Boost struct {
	ID            string     `json:"id"`
	ListingID     string     `json:"listingId"`
	Type          Type       `json:"type"`
	PaymentMethod string     `json:"paymentMethod,omitempty"`
	StartsAt      *time.Time `json:"startsAt,omitempty"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// IsActive is true while now is strictly before ExpiresAt.
func (b Boost) IsActive(now time.Time) bool {
	return now.Before(b.ExpiresAt)
}

// PaymentProvider is an external mobile-money gateway.
type PaymentProvider struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	VendorType string `json:"vendorType,omitempty"`
}

type AttemptStatus string

const (
	AttemptSubmitting      AttemptStatus = "submitting"
	AttemptConfirmed       AttemptStatus = "confirmed"
	AttemptRedirectPending AttemptStatus = "redirect_pending"
	AttemptFailed          AttemptStatus = "failed"
	AttemptObserved        AttemptStatus = "observed"
)

// PurchaseAttempt journals one submission of a promotion purchase.
type PurchaseAttempt struct {
	ID              int64          `json:"id" db:"id"`
	Reference       string         `json:"reference" db:"reference"`
	WorkflowID      string         `json:"workflow_id" db:"workflow_id"`
	IdentityID      int64          `json:"identity_id" db:"identity_id"`
	ListingID       string         `json:"listing_id" db:"listing_id"`
	BoostType       Type           `json:"boost_type" db:"boost_type"`
	DurationDays    int            `json:"duration_days" db:"duration_days"`
	Price           float64        `json:"price" db:"price"`
	PaymentMethod   string         `json:"payment_method" db:"payment_method"`
	OfferedChannels pq.StringArray `json:"offered_channels" db:"offered_channels"`
	Status          AttemptStatus  `json:"status" db:"status"`
	BoostID         sql.NullString `json:"boost_id,omitempty" db:"boost_id"`
	RedirectURL     sql.NullString `json:"redirect_url,omitempty" db:"redirect_url"`
	FailureReason   sql.NullString `json:"failure_reason,omitempty" db:"failure_reason"`
	ResolvedAt      sql.NullTime   `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}
