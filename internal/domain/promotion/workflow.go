// internal/domain/promotion/workflow.go
package promotion

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"boost-service/internal/domain/boost"
	xerrors "boost-service/internal/pkg/errors"
)

// State is a node of the promotion purchase state machine.
type State string

const (
	StateConfiguring     State = "configuring"
	StatePriceCalculated State = "price_calculated"
	StateChannelSelected State = "channel_selected"
	StateSubmitting      State = "submitting"
	StateConfirmed       State = "confirmed"
	StateRedirectPending State = "redirect_pending"
	StateCancelled       State = "cancelled"
)

// IsTerminal is true once the workflow can no longer change.
func (s State) IsTerminal() bool {
	return s == StateConfirmed || s == StateRedirectPending || s == StateCancelled
}

// Outcome of the most recent submission.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeRedirect  Outcome = "redirect_pending"
	OutcomeFailed    Outcome = "failed"
)

// PurchaseIntent is what the user is configuring. The price is only usable while
// PricedType/PricedDays match the current Type/DurationDays.
type PurchaseIntent struct {
	ListingID       string     `json:"listing_id"`
	Type            boost.Type `json:"type,omitempty"`
	DurationDays    int        `json:"duration_days,omitempty"`
	AutoRenew       bool       `json:"auto_renew"`
	CalculatedPrice *float64   `json:"calculated_price,omitempty"`
	PricedType      boost.Type `json:"priced_type,omitempty"`
	PricedDays      int        `json:"priced_days,omitempty"`
	Channel         *Channel   `json:"channel,omitempty"`
}

// HasFreshPrice reports whether the calculated price belongs to the current selection.
func (i PurchaseIntent) HasFreshPrice() bool {
	return i.CalculatedPrice != nil &&
		i.PricedType == i.Type &&
		i.PricedDays == i.DurationDays
}

// AmountDue is what the selected channel will be charged. Credit purchases are free.
func (i PurchaseIntent) AmountDue() *float64 {
	if !i.HasFreshPrice() {
		return nil
	}
	due := *i.CalculatedPrice
	if i.Channel != nil && i.Channel.Kind == ChannelCredit {
		due = 0
	}
	return &due
}

// Failure is the user-visible record of the last error.
type Failure struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func failureFrom(err error) *Failure {
	return &Failure{
		Code:      xerrors.Code(err),
		Message:   err.Error(),
		Retryable: xerrors.IsRetryable(err),
	}
}

// Workflow is one user's in-progress promotion purchase. RetryReference is kept after
// a failure whose upstream effect is unknown and is resent on the next submit of the
// same selection.
type Workflow struct {
	ID             string         `json:"id"`
	IdentityID     int64          `json:"identity_id"`
	State          State          `json:"state"`
	Intent         PurchaseIntent `json:"intent"`
	SourceBoostID  string         `json:"source_boost_id,omitempty"`
	Reference      string         `json:"reference,omitempty"`
	RetryReference string         `json:"retry_reference,omitempty"`
	BoostID        string         `json:"boost_id,omitempty"`
	RedirectURL    string         `json:"redirect_url,omitempty"`
	LastOutcome    Outcome        `json:"last_outcome,omitempty"`
	LastError      *Failure       `json:"last_error,omitempty"`
	SubmittedAt    *time.Time     `json:"submitted_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// New starts a workflow in the configuring state.
func New(id string, identityID int64, listingID string, now time.Time) (*Workflow, error) {
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return nil, xerrors.Validation("listing is required")
	}
	if identityID == 0 {
		return nil, xerrors.ErrUnauthorized
	}

	return &Workflow{
		ID:         id,
		IdentityID: identityID,
		State:      StateConfiguring,
		Intent:     PurchaseIntent{ListingID: listingID},
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// NewReboost starts a workflow for renewing an expired boost. Listing and type are
// carried over; the duration is chosen again.
func NewReboost(id string, identityID int64, source boost.Boost, now time.Time) (*Workflow, error) {
	w, err := New(id, identityID, source.ListingID, now)
	if err != nil {
		return nil, err
	}
	w.Intent.Type = source.Type
	w.SourceBoostID = source.ID
	return w, nil
}

func (w *Workflow) transitionError(action string) error {
	return fmt.Errorf("%w: cannot %s while %s", xerrors.ErrInvalidTransition, action, w.State)
}

// Editable is true in the pre-submit states, where the user may still change or abandon the purchase.
func (w *Workflow) Editable() bool {
	switch w.State {
	case StateConfiguring, StatePriceCalculated, StateChannelSelected:
		return true
	}
	return false
}

func (w *Workflow) invalidatePrice() {
	w.Intent.CalculatedPrice = nil
	w.Intent.PricedType = ""
	w.Intent.PricedDays = 0
	w.Intent.Channel = nil
	w.RetryReference = ""
	w.State = StateConfiguring
}

// Configure sets type and duration. Any change drops the price and the channel.
func (w *Workflow) Configure(t boost.Type, days int, autoRenew bool) error {
	if !w.Editable() {
		return w.transitionError("configure")
	}
	if strings.TrimSpace(string(t)) == "" {
		return xerrors.Validation("promotion type is required")
	}
	if days <= 0 {
		return xerrors.Validation("duration must be at least one day")
	}

	if autoRenew != w.Intent.AutoRenew {
		w.RetryReference = ""
	}
	w.Intent.AutoRenew = autoRenew
	if t == w.Intent.Type && days == w.Intent.DurationDays {
		return nil
	}

	w.Intent.Type = t
	w.Intent.DurationDays = days
	w.invalidatePrice()
	return nil
}

// ApplyPrice stores a quote computed for the current selection.
func (w *Workflow) ApplyPrice(q boost.Quote) error {
	if !w.Editable() {
		return w.transitionError("apply a price")
	}
	if q.Type != w.Intent.Type || q.DurationDays != w.Intent.DurationDays {
		return xerrors.Validation("price was calculated for %s/%d days but selection is %s/%d days",
			q.Type, q.DurationDays, w.Intent.Type, w.Intent.DurationDays)
	}

	price := q.Price
	w.Intent.CalculatedPrice = &price
	w.Intent.PricedType = q.Type
	w.Intent.PricedDays = q.DurationDays
	w.LastError = nil
	if w.State == StateConfiguring {
		w.State = StatePriceCalculated
	}
	return nil
}

// RejectPrice keeps the workflow in configuring and records why pricing failed.
func (w *Workflow) RejectPrice(err error) error {
	if !w.Editable() {
		return w.transitionError("reject a price")
	}
	w.invalidatePrice()
	w.LastError = failureFrom(err)
	return nil
}

// SelectChannel picks one of the offered channels for a freshly priced intent.
func (w *Workflow) SelectChannel(ch Channel, offered []ChannelOption) error {
	if w.State != StatePriceCalculated && w.State != StateChannelSelected {
		return w.transitionError("select a channel")
	}
	if !w.Intent.HasFreshPrice() {
		return xerrors.Validation("price must be calculated before choosing a channel")
	}
	if err := ch.Validate(); err != nil {
		return err
	}
	if !containsChannel(offered, ch) {
		return xerrors.Validation("channel %s is not available for this purchase", ch)
	}

	if w.Intent.Channel == nil || !w.Intent.Channel.Equal(ch) {
		w.RetryReference = ""
	}
	selected := ch
	w.Intent.Channel = &selected
	w.State = StateChannelSelected
	w.LastError = nil
	return nil
}

func containsChannel(offered []ChannelOption, ch Channel) bool {
	for _, o := range offered {
		if o.Channel.Equal(ch) {
			return true
		}
	}
	return false
}

// CanSubmit is true only with a channel and a price computed for the current selection.
func (w *Workflow) CanSubmit() bool {
	return w.State == StateChannelSelected && w.Intent.HasFreshPrice() && w.Intent.Channel != nil
}

// BeginSubmit moves to submitting. It returns started=false with no error when a
// submission is already in flight so that a repeated submit is a no-op. After an
// ambiguous failure the previous reference is sent again instead of reference.
func (w *Workflow) BeginSubmit(reference string, now time.Time) (bool, error) {
	if w.State == StateSubmitting {
		return false, nil
	}
	if w.State != StateChannelSelected {
		return false, w.transitionError("submit")
	}
	if !w.Intent.HasFreshPrice() {
		return false, xerrors.Validation("price is stale, recalculate before submitting")
	}
	if w.Intent.Channel == nil {
		return false, xerrors.Validation("payment channel is required")
	}

	if w.RetryReference != "" && w.SubmittedAt != nil {
		// A resent reference keeps its first send time
		reference = w.RetryReference
		now = *w.SubmittedAt
	}
	w.RetryReference = ""
	w.State = StateSubmitting
	w.Reference = reference
	w.SubmittedAt = &now
	w.LastError = nil
	w.LastOutcome = ""
	return true, nil
}

// Confirm records a synchronously created boost.
func (w *Workflow) Confirm(b boost.Boost) error {
	if w.State != StateSubmitting {
		return w.transitionError("confirm")
	}
	w.State = StateConfirmed
	w.BoostID = b.ID
	w.LastOutcome = OutcomeConfirmed
	return nil
}

// Redirect hands control to an external gateway. No boost exists yet.
func (w *Workflow) Redirect(redirectURL string) error {
	if w.State != StateSubmitting {
		return w.transitionError("redirect")
	}
	if strings.TrimSpace(redirectURL) == "" {
		return xerrors.Validation("redirect url is required")
	}
	w.State = StateRedirectPending
	w.RedirectURL = redirectURL
	w.LastOutcome = OutcomeRedirect
	return nil
}

// ObserveBoost records the boost created after an external redirect settled.
func (w *Workflow) ObserveBoost(b boost.Boost) error {
	if w.State != StateRedirectPending {
		return w.transitionError("observe a boost")
	}
	w.BoostID = b.ID
	return nil
}

// Fail returns to channel selection so the user can retry without re-entering type
// and duration. A credit channel that was raced away is dropped. A network failure
// may have reached upstream, so its reference is kept for the retry.
func (w *Workflow) Fail(err error) error {
	if w.State != StateSubmitting {
		return w.transitionError("fail")
	}
	w.LastError = failureFrom(err)
	w.LastOutcome = OutcomeFailed
	w.RetryReference = ""
	if errors.Is(err, xerrors.ErrNetwork) {
		w.RetryReference = w.Reference
	}

	if errors.Is(err, xerrors.ErrCreditExhausted) && w.Intent.Channel != nil && w.Intent.Channel.Kind == ChannelCredit {
		w.Intent.Channel = nil
		w.State = StatePriceCalculated
		return nil
	}
	w.State = StateChannelSelected
	return nil
}

// Cancel abandons the purchase. Not possible once a submission was sent.
func (w *Workflow) Cancel() error {
	if !w.Editable() {
		return w.transitionError("cancel")
	}
	w.State = StateCancelled
	return nil
}

// View is the client-facing projection of a workflow.
type View struct {
	*Workflow
	CanSubmit bool     `json:"can_submit"`
	AmountDue *float64 `json:"amount_due,omitempty"`
}

func (w *Workflow) View() View {
	return View{
		Workflow:  w,
		CanSubmit: w.CanSubmit(),
		AmountDue: w.Intent.AmountDue(),
	}
}
