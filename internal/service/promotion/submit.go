// internal/service/promotion/submit.go
package promotion

import (
	"context"
	"errors"

	"boost-service/internal/domain/boost"
	"boost-service/internal/domain/promotion"
	xerrors "boost-service/internal/pkg/errors"
	"boost-service/internal/pkg/events"

	"go.uber.org/zap"
)

// ========== Submission ==========

// Submit purchases the configured boost exactly once. A workflow that already has an
// outcome, or that another request is submitting, is returned as-is. A failed purchase
// returns the updated workflow together with the classified error.
func (s *PromotionService) Submit(ctx context.Context, identityID int64, id string) (*promotion.View, error) {
	wf, err := s.store.Get(ctx, identityID, id)
	if err != nil {
		return nil, err
	}
	if wf.State == promotion.StateConfirmed || wf.State == promotion.StateRedirectPending {
		return s.view(wf), nil
	}

	token := newID()
	acquired, err := s.locker.Acquire(ctx, wf.ID, token)
	if err != nil {
		return nil, err
	}
	if !acquired {
		s.logger.Info("submission already in progress", zap.String("workflow_id", wf.ID))
		return s.Get(ctx, identityID, id)
	}
	defer s.unlock(ctx, wf.ID, token)

	// Re-read under the lock; the previous holder may have finished
	wf, err = s.store.Get(ctx, identityID, id)
	if err != nil {
		return nil, err
	}
	if wf.State == promotion.StateConfirmed || wf.State == promotion.StateRedirectPending {
		return s.view(wf), nil
	}

	resumed := wf.State == promotion.StateSubmitting
	retrying := wf.RetryReference != ""
	if resumed {
		// A submitter died mid-flight. Its reference is the idempotency key, so
		// sending again cannot buy twice.
		s.logger.Warn("resuming interrupted submission",
			zap.String("workflow_id", wf.ID),
			zap.String("reference", wf.Reference))
	} else {
		if _, err := wf.BeginSubmit(newID(), s.now()); err != nil {
			return nil, err
		}
		if retrying {
			s.logger.Info("resending submission after network failure",
				zap.String("workflow_id", wf.ID),
				zap.String("reference", wf.Reference))
		}
		if err := s.persist(ctx, wf); err != nil {
			return nil, err
		}
	}

	// The purchase must run to completion even if the client goes away
	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.submitTimeout)
	defer cancel()

	if !resumed && !retrying {
		s.journalCreate(work, wf)
	}

	purchased, redirectURL, purchaseErr := s.purchase(work, wf)
	s.settle(work, wf, purchased, redirectURL, purchaseErr)

	if err := s.saveOutcome(work, wf); err != nil {
		return nil, err
	}

	return s.view(wf), purchaseErr
}

// purchase sends the order through the selected channel. Exactly one of the boost,
// the redirect URL or the error is set.
func (s *PromotionService) purchase(ctx context.Context, wf *promotion.Workflow) (*boost.Boost, string, error) {
	ch := wf.Intent.Channel

	if ch.IsExternal() {
		order, err := s.gateway.CreateOrder(ctx, wf.Intent, wf.Reference)
		if err != nil {
			return nil, "", err
		}
		if order.Boost != nil {
			return order.Boost, "", nil
		}
		return nil, order.RedirectURL, nil
	}

	res, err := s.purchaser.CreateBoost(ctx, boost.CreateBoostRequest{
		ListingID:     wf.Intent.ListingID,
		Type:          wf.Intent.Type,
		DurationDays:  wf.Intent.DurationDays,
		PaymentMethod: ch.PaymentMethod(),
		AutoRenew:     wf.Intent.AutoRenew,
	}, wf.Reference)
	if err != nil {
		return nil, "", err
	}
	if res.Boost != nil {
		return res.Boost, "", nil
	}
	if err := s.gateway.ValidateRedirect(res.RedirectURL); err != nil {
		return nil, "", err
	}
	return nil, res.RedirectURL, nil
}

// settle applies the purchase outcome to the workflow, drops the ledgers it made
// stale, journals it and publishes it.
func (s *PromotionService) settle(ctx context.Context, wf *promotion.Workflow, purchased *boost.Boost, redirectURL string, purchaseErr error) {
	ch := wf.Intent.Channel
	logger := s.logger.With(
		zap.String("workflow_id", wf.ID),
		zap.String("reference", wf.Reference),
		zap.String("channel", ch.String()))

	var outcome promotion.Outcome
	switch {
	case purchaseErr != nil:
		outcome = promotion.OutcomeFailed
	case purchased != nil:
		outcome = promotion.OutcomeConfirmed
	default:
		outcome = promotion.OutcomeRedirect
	}

	var err error
	switch outcome {
	case promotion.OutcomeConfirmed:
		if err = wf.Confirm(*purchased); err == nil {
			switch ch.Kind {
			case promotion.ChannelCredit:
				s.invalidate(ctx, "credits", s.credits.Invalidate)
			case promotion.ChannelWallet:
				s.invalidate(ctx, "wallet", s.wallets.Invalidate)
			}
			s.invalidate(ctx, "boosts", s.boosts.Invalidate)
			s.journalMark(ctx, wf, "confirmed", s.journal.MarkConfirmed(ctx, wf.Reference, purchased.ID))
			s.publish(ctx, events.KeyPurchaseConfirmed, wf, "")
			logger.Info("promotion purchase confirmed", zap.String("boost_id", purchased.ID))
		}

	case promotion.OutcomeRedirect:
		if err = wf.Redirect(redirectURL); err == nil {
			s.journalMark(ctx, wf, "redirect_pending", s.journal.MarkRedirectPending(ctx, wf.Reference, redirectURL))
			s.publish(ctx, events.KeyPurchaseRedirect, wf, "")
			logger.Info("promotion purchase redirected to provider")
		}

	case promotion.OutcomeFailed:
		if err = wf.Fail(purchaseErr); err == nil {
			switch {
			case errors.Is(purchaseErr, xerrors.ErrInsufficientFunds):
				s.invalidate(ctx, "wallet", s.wallets.Invalidate)
			case errors.Is(purchaseErr, xerrors.ErrCreditExhausted):
				s.invalidate(ctx, "credits", s.credits.Invalidate)
			}
			s.journalMark(ctx, wf, "failed", s.journal.MarkFailed(ctx, wf.Reference, xerrors.Code(purchaseErr)))
			s.publish(ctx, events.KeyPurchaseFailed, wf, purchaseErr.Error())
			logger.Warn("promotion purchase failed",
				zap.String("code", xerrors.Code(purchaseErr)),
				zap.Bool("retryable", xerrors.IsRetryable(purchaseErr)),
				zap.Error(purchaseErr))
		}
	}
	if err != nil {
		logger.Error("failed to apply purchase outcome", zap.String("outcome", string(outcome)), zap.Error(err))
		return
	}

	s.recorder.RecordPurchase(string(ch.Kind), string(outcome))
}

// saveOutcome persists a settled workflow, retrying once. The purchase already
// happened, so a lost save is logged loudly.
func (s *PromotionService) saveOutcome(ctx context.Context, wf *promotion.Workflow) error {
	err := s.persist(ctx, wf)
	if err == nil {
		return nil
	}
	s.logger.Warn("retrying workflow save", zap.String("workflow_id", wf.ID), zap.Error(err))

	if err = s.persist(ctx, wf); err != nil {
		s.logger.Error("failed to save purchase outcome",
			zap.String("workflow_id", wf.ID),
			zap.String("reference", wf.Reference),
			zap.String("state", string(wf.State)),
			zap.Error(err))
		return err
	}
	return nil
}

// ========== External Return ==========

// HandleReturn runs when the user comes back from an external provider. It refreshes
// the wallet and, when the provider has settled, records the boost it created. Only
// boosts created at or after submission and not paid from wallet or credit count.
func (s *PromotionService) HandleReturn(ctx context.Context, identityID int64, id string) (*promotion.View, error) {
	wf, err := s.store.Get(ctx, identityID, id)
	if err != nil {
		return nil, err
	}
	if wf.State != promotion.StateRedirectPending {
		return s.view(wf), nil
	}

	s.invalidate(ctx, "wallet", s.wallets.Invalidate)
	if _, err := s.wallets.GetWallet(ctx); err != nil {
		s.logger.Warn("failed to refetch wallet after return", zap.String("workflow_id", wf.ID), zap.Error(err))
	}

	if wf.BoostID != "" {
		return s.view(wf), nil
	}

	err = s.locked(ctx, id, func() error {
		current, err := s.store.Get(ctx, identityID, id)
		if err != nil {
			return err
		}
		wf = current
		if wf.BoostID != "" {
			return nil
		}
		return s.observe(ctx, wf)
	})
	if errors.Is(err, xerrors.ErrConflict) {
		return s.Get(ctx, identityID, id)
	}
	if err != nil {
		return nil, err
	}
	return s.view(wf), nil
}

func (s *PromotionService) observe(ctx context.Context, wf *promotion.Workflow) error {
	since := wf.CreatedAt
	if wf.SubmittedAt != nil {
		since = *wf.SubmittedAt
	}

	found, err := s.boosts.FindPurchased(ctx, wf.Intent.ListingID, wf.Intent.Type, since)
	if err != nil {
		if !errors.Is(err, xerrors.ErrNotFound) {
			s.logger.Warn("failed to look up settled boost", zap.String("workflow_id", wf.ID), zap.Error(err))
		}
		return nil
	}

	if err := wf.ObserveBoost(*found); err != nil {
		return err
	}
	s.journalMark(ctx, wf, "observed", s.journal.MarkObserved(ctx, wf.Reference, found.ID))
	s.publish(ctx, events.KeyPurchaseObserved, wf, "")

	if err := s.persist(ctx, wf); err != nil {
		return err
	}

	s.logger.Info("external purchase observed",
		zap.String("workflow_id", wf.ID),
		zap.String("reference", wf.Reference),
		zap.String("boost_id", found.ID))
	return nil
}

// ========== Journal Helpers ==========

func (s *PromotionService) journalCreate(ctx context.Context, wf *promotion.Workflow) {
	attempt := &boost.PurchaseAttempt{
		Reference:     wf.Reference,
		WorkflowID:    wf.ID,
		IdentityID:    wf.IdentityID,
		ListingID:     wf.Intent.ListingID,
		BoostType:     wf.Intent.Type,
		DurationDays:  wf.Intent.DurationDays,
		PaymentMethod: wf.Intent.Channel.PaymentMethod(),
		Status:        boost.AttemptSubmitting,
	}
	if wf.Intent.CalculatedPrice != nil {
		attempt.Price = *wf.Intent.CalculatedPrice
	}
	for _, o := range s.channelOptions(ctx, wf.Intent) {
		attempt.OfferedChannels = append(attempt.OfferedChannels, o.Channel.String())
	}

	if err := s.journal.Create(ctx, attempt); err != nil {
		s.logger.Warn("failed to journal purchase attempt",
			zap.String("workflow_id", wf.ID),
			zap.String("reference", wf.Reference),
			zap.Error(err))
	}
}

func (s *PromotionService) journalMark(ctx context.Context, wf *promotion.Workflow, status string, err error) {
	if err == nil {
		return
	}
	s.logger.Warn("failed to update purchase attempt",
		zap.String("reference", wf.Reference),
		zap.String("status", status),
		zap.Error(err))
}

func (s *PromotionService) invalidate(ctx context.Context, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		s.logger.Warn("failed to invalidate ledger", zap.String("ledger", name), zap.Error(err))
	}
}
