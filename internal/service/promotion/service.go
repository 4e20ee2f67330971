// internal/service/promotion/service.go
package promotion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"boost-service/internal/domain/boost"
	"boost-service/internal/domain/promotion"
	xerrors "boost-service/internal/pkg/errors"
	"boost-service/internal/pkg/events"
	"boost-service/internal/service/channel"
	"boost-service/internal/service/gateway"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// ========== Collaborators ==========

type Pricing interface {
	CalculatePrice(ctx context.Context, t boost.Type, durationDays int) (*boost.Quote, error)
}

type Credits interface {
	GetCredits(ctx context.Context) (*boost.SubscriptionCredit, error)
	Invalidate(ctx context.Context) error
}

type Wallets interface {
	GetWallet(ctx context.Context) (*boost.Wallet, error)
	Invalidate(ctx context.Context) error
}

type Gateway interface {
	ListProviders(ctx context.Context) ([]boost.PaymentProvider, error)
	CreateOrder(ctx context.Context, intent promotion.PurchaseIntent, reference string) (*gateway.Order, error)
	ValidateRedirect(raw string) error
}

type Boosts interface {
	Find(ctx context.Context, boostID string) (*boost.Boost, error)
	FindPurchased(ctx context.Context, listingID string, t boost.Type, since time.Time) (*boost.Boost, error)
	Invalidate(ctx context.Context) error
}

// Purchaser creates boosts funded by credit or wallet.
type Purchaser interface {
	CreateBoost(ctx context.Context, req boost.CreateBoostRequest, idempotencyKey string) (*boost.CreateBoostResult, error)
}

type Store interface {
	Save(ctx context.Context, wf *promotion.Workflow) error
	Get(ctx context.Context, identityID int64, id string) (*promotion.Workflow, error)
	ListByIdentity(ctx context.Context, identityID int64) ([]*promotion.Workflow, error)
}

type Locker interface {
	Acquire(ctx context.Context, workflowID, token string) (bool, error)
	Release(ctx context.Context, workflowID, token string) error
}

// Journal is the durable record of purchase attempts.
type Journal interface {
	Create(ctx context.Context, a *boost.PurchaseAttempt) error
	MarkConfirmed(ctx context.Context, reference, boostID string) error
	MarkRedirectPending(ctx context.Context, reference, redirectURL string) error
	MarkFailed(ctx context.Context, reference, reason string) error
	MarkObserved(ctx context.Context, reference, boostID string) error
	ListByIdentity(ctx context.Context, identityID int64, filters *boost.AttemptListFilters) ([]boost.PurchaseAttempt, int64, error)
}

// Notifier pushes workflow snapshots to the owner's live connections.
type Notifier interface {
	BroadcastWorkflow(identityID int64, view promotion.View)
}

type Recorder interface {
	RecordTransition(state string)
	RecordPurchase(channel, outcome string)
}

// Deps groups everything the promotion service talks to. Events, Notifier, Recorder
// and Journal are optional.
type Deps struct {
	Pricing   Pricing
	Credits   Credits
	Wallets   Wallets
	Gateway   Gateway
	Boosts    Boosts
	Purchaser Purchaser
	Store     Store
	Locker    Locker
	Journal   Journal
	Events    events.Publisher
	Notifier  Notifier
	Recorder  Recorder
}

type PromotionService struct {
	pricing   Pricing
	credits   Credits
	wallets   Wallets
	gateway   Gateway
	boosts    Boosts
	purchaser Purchaser
	store     Store
	locker    Locker
	journal   Journal
	events    events.Publisher
	notifier  Notifier
	recorder  Recorder

	validate      *validator.Validate
	submitTimeout time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

func NewPromotionService(deps Deps, submitTimeout time.Duration, logger *zap.Logger) *PromotionService {
	if submitTimeout <= 0 {
		submitTimeout = 30 * time.Second
	}
	s := &PromotionService{
		pricing:       deps.Pricing,
		credits:       deps.Credits,
		wallets:       deps.Wallets,
		gateway:       deps.Gateway,
		boosts:        deps.Boosts,
		purchaser:     deps.Purchaser,
		store:         deps.Store,
		locker:        deps.Locker,
		journal:       deps.Journal,
		events:        deps.Events,
		notifier:      deps.Notifier,
		recorder:      deps.Recorder,
		validate:      newValidator(),
		submitTimeout: submitTimeout,
		now:           time.Now,
		logger:        logger,
	}
	if s.events == nil {
		s.events = events.NewFallback(logger)
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.journal == nil {
		s.journal = nopJournal{}
	}
	return s
}

// SetClock replaces the wall clock, for tests.
func (s *PromotionService) SetClock(now func() time.Time) { s.now = now }

// ========== Workflow Lifecycle ==========

// Start opens a new workflow for one of the caller's listings.
func (s *PromotionService) Start(ctx context.Context, identityID int64, req *StartRequest) (*promotion.View, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	wf, err := promotion.New(newID(), identityID, req.ListingID, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.persist(ctx, wf); err != nil {
		return nil, err
	}

	s.logger.Info("promotion workflow started",
		zap.String("workflow_id", wf.ID),
		zap.Int64("identity_id", identityID),
		zap.String("listing_id", wf.Intent.ListingID))

	return s.view(wf), nil
}

// Reboost opens a workflow that renews an expired boost on the same listing and type.
func (s *PromotionService) Reboost(ctx context.Context, identityID int64, boostID string) (*promotion.View, error) {
	source, err := s.boosts.Find(ctx, boostID)
	if err != nil {
		return nil, err
	}
	if source.IsActive(s.now()) {
		return nil, xerrors.Validation("boost %s is still active until %s", source.ID, source.ExpiresAt.Format(time.RFC3339))
	}

	wf, err := promotion.NewReboost(newID(), identityID, *source, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.persist(ctx, wf); err != nil {
		return nil, err
	}

	s.logger.Info("reboost workflow started",
		zap.String("workflow_id", wf.ID),
		zap.String("source_boost_id", source.ID),
		zap.Int64("identity_id", identityID))

	return s.view(wf), nil
}

// Get returns the caller's workflow.
func (s *PromotionService) Get(ctx context.Context, identityID int64, id string) (*promotion.View, error) {
	wf, err := s.store.Get(ctx, identityID, id)
	if err != nil {
		return nil, err
	}
	return s.view(wf), nil
}

// List returns the caller's live workflows, most recently updated first.
func (s *PromotionService) List(ctx context.Context, identityID int64) ([]promotion.View, error) {
	workflows, err := s.store.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].UpdatedAt.After(workflows[j].UpdatedAt)
	})

	views := make([]promotion.View, 0, len(workflows))
	for _, wf := range workflows {
		views = append(views, wf.View())
	}
	return views, nil
}

// Configure sets promotion type, duration and auto-renew. Changing type or duration
// drops any calculated price and chosen channel.
func (s *PromotionService) Configure(ctx context.Context, identityID int64, id string, req *ConfigureRequest) (*promotion.View, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	var wf *promotion.Workflow
	err := s.locked(ctx, id, func() error {
		var err error
		if wf, err = s.store.Get(ctx, identityID, id); err != nil {
			return err
		}
		if err := wf.Configure(req.Type, req.DurationDays, req.AutoRenew); err != nil {
			return err
		}
		return s.persist(ctx, wf)
	})
	if err != nil {
		return nil, err
	}
	return s.view(wf), nil
}

// CalculatePrice asks upstream for the authoritative price of the current selection.
// When subscription credit covers the purchase the credit channel is preselected.
func (s *PromotionService) CalculatePrice(ctx context.Context, identityID int64, id string) (*promotion.View, error) {
	var wf *promotion.Workflow
	var quote *boost.Quote
	err := s.locked(ctx, id, func() error {
		var err error
		if wf, err = s.store.Get(ctx, identityID, id); err != nil {
			return err
		}
		if !wf.Editable() {
			return xerrors.Wrap(xerrors.ErrInvalidTransition, "price can only be calculated before submission")
		}
		if wf.Intent.Type == "" || wf.Intent.DurationDays == 0 {
			return xerrors.Validation("choose a promotion type and duration first")
		}

		quote, err = s.pricing.CalculatePrice(ctx, wf.Intent.Type, wf.Intent.DurationDays)
		if err != nil {
			if !errors.Is(err, xerrors.ErrValidation) {
				// Network and upstream failures leave the workflow as it was
				return err
			}
			if rejectErr := wf.RejectPrice(err); rejectErr != nil {
				return rejectErr
			}
			if saveErr := s.persist(ctx, wf); saveErr != nil {
				s.logger.Error("failed to save rejected price", zap.String("workflow_id", wf.ID), zap.Error(saveErr))
			}
			return err
		}

		if err := wf.ApplyPrice(*quote); err != nil {
			return err
		}

		if wf.State == promotion.StatePriceCalculated && wf.Intent.Channel == nil {
			options := s.channelOptions(ctx, wf.Intent)
			if ch, ok := channel.DefaultChannel(options); ok {
				if err := wf.SelectChannel(ch, options); err != nil {
					s.logger.Warn("failed to preselect channel", zap.String("workflow_id", wf.ID), zap.Error(err))
				}
			}
		}

		return s.persist(ctx, wf)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("price calculated",
		zap.String("workflow_id", wf.ID),
		zap.String("type", string(quote.Type)),
		zap.Int("duration_days", quote.DurationDays),
		zap.Float64("price", quote.Price))

	return s.view(wf), nil
}

// Channels lists the payment channels available for the priced selection.
func (s *PromotionService) Channels(ctx context.Context, identityID int64, id string) (*ChannelsResponse, error) {
	wf, err := s.store.Get(ctx, identityID, id)
	if err != nil {
		return nil, err
	}
	if !wf.Intent.HasFreshPrice() {
		return nil, xerrors.Validation("price must be calculated before choosing a channel")
	}

	return &ChannelsResponse{
		Options:  s.channelOptions(ctx, wf.Intent),
		Selected: wf.Intent.Channel,
	}, nil
}

// SelectChannel picks the funding channel. Only offered channels are accepted.
func (s *PromotionService) SelectChannel(ctx context.Context, identityID int64, id string, req *SelectChannelRequest) (*promotion.View, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	var wf *promotion.Workflow
	err := s.locked(ctx, id, func() error {
		var err error
		if wf, err = s.store.Get(ctx, identityID, id); err != nil {
			return err
		}
		options := s.channelOptions(ctx, wf.Intent)
		if err := wf.SelectChannel(req.Channel(), options); err != nil {
			return err
		}
		return s.persist(ctx, wf)
	})
	if err != nil {
		return nil, err
	}
	return s.view(wf), nil
}

// Cancel abandons a workflow that was not submitted.
func (s *PromotionService) Cancel(ctx context.Context, identityID int64, id string) (*promotion.View, error) {
	var wf *promotion.Workflow
	err := s.locked(ctx, id, func() error {
		var err error
		if wf, err = s.store.Get(ctx, identityID, id); err != nil {
			return err
		}
		if err := wf.Cancel(); err != nil {
			return err
		}
		return s.persist(ctx, wf)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.KeyWorkflowCancelled, wf, "")
	return s.view(wf), nil
}

// ========== Attempt History ==========

// ListAttempts pages through the caller's journaled purchase attempts.
func (s *PromotionService) ListAttempts(ctx context.Context, identityID int64, filters *boost.AttemptListFilters) (*boost.AttemptListResponse, error) {
	if filters == nil {
		filters = &boost.AttemptListFilters{}
	}

	attempts, total, err := s.journal.ListByIdentity(ctx, identityID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchase attempts: %w", err)
	}

	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}

	totalPages := int(total) / filters.PageSize
	if int(total)%filters.PageSize != 0 {
		totalPages++
	}

	return &boost.AttemptListResponse{
		Attempts:   attempts,
		Total:      total,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
		TotalPages: totalPages,
	}, nil
}

// ========== Helpers ==========

// channelOptions never fails: a missing credit, wallet or provider snapshot just
// narrows what is offered.
func (s *PromotionService) channelOptions(ctx context.Context, intent promotion.PurchaseIntent) []promotion.ChannelOption {
	credits, err := s.credits.GetCredits(ctx)
	if err != nil {
		s.logger.Warn("subscription credits unavailable", zap.Error(err))
		credits = nil
	}

	wallet, err := s.wallets.GetWallet(ctx)
	if err != nil {
		s.logger.Warn("wallet unavailable", zap.Error(err))
		wallet = nil
	}

	providers, err := s.gateway.ListProviders(ctx)
	if err != nil {
		s.logger.Warn("payment providers unavailable", zap.Error(err))
		providers = nil
	}

	return channel.AvailableChannels(intent, credits, wallet, providers)
}

// locked runs fn while holding the workflow lock that Submit also takes, so no edit
// lands while a purchase is in flight.
func (s *PromotionService) locked(ctx context.Context, workflowID string, fn func() error) error {
	token := newID()
	acquired, err := s.locker.Acquire(ctx, workflowID, token)
	if err != nil {
		return err
	}
	if !acquired {
		return xerrors.Wrap(xerrors.ErrConflict, "promotion is being submitted")
	}
	defer s.unlock(ctx, workflowID, token)
	return fn()
}

func (s *PromotionService) unlock(ctx context.Context, workflowID, token string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.locker.Release(releaseCtx, workflowID, token); err != nil {
		s.logger.Warn("failed to release workflow lock", zap.String("workflow_id", workflowID), zap.Error(err))
	}
}

// persist stamps, saves and announces the workflow.
func (s *PromotionService) persist(ctx context.Context, wf *promotion.Workflow) error {
	wf.UpdatedAt = s.now()
	if err := s.store.Save(ctx, wf); err != nil {
		return err
	}
	s.recorder.RecordTransition(string(wf.State))
	s.notifier.BroadcastWorkflow(wf.IdentityID, wf.View())
	return nil
}

func (s *PromotionService) view(wf *promotion.Workflow) *promotion.View {
	v := wf.View()
	return &v
}

func (s *PromotionService) publish(ctx context.Context, routingKey string, wf *promotion.Workflow, reason string) {
	evt := events.PurchaseEvent{
		WorkflowID:   wf.ID,
		Reference:    wf.Reference,
		IdentityID:   wf.IdentityID,
		ListingID:    wf.Intent.ListingID,
		BoostType:    string(wf.Intent.Type),
		DurationDays: wf.Intent.DurationDays,
		Outcome:      string(wf.State),
		BoostID:      wf.BoostID,
		RedirectURL:  wf.RedirectURL,
		Reason:       reason,
		Timestamp:    s.now(),
	}
	if wf.Intent.CalculatedPrice != nil {
		evt.Price = *wf.Intent.CalculatedPrice
	}
	if wf.Intent.Channel != nil {
		evt.Channel = wf.Intent.Channel.String()
	}

	if err := s.events.Publish(ctx, routingKey, evt); err != nil {
		s.logger.Warn("failed to publish promotion event",
			zap.String("routing_key", routingKey),
			zap.String("workflow_id", wf.ID),
			zap.Error(err))
	}
}

func newID() string {
	return ulid.Make().String()
}

type nopNotifier struct{}

func (nopNotifier) BroadcastWorkflow(int64, promotion.View) {}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(string) {}
func (nopRecorder) RecordPurchase(string, string) {}

type nopJournal struct{}

func (nopJournal) Create(context.Context, *boost.PurchaseAttempt) error      { return nil }
func (nopJournal) MarkConfirmed(context.Context, string, string) error       { return nil }
func (nopJournal) MarkRedirectPending(context.Context, string, string) error { return nil }
func (nopJournal) MarkFailed(context.Context, string, string) error          { return nil }
func (nopJournal) MarkObserved(context.Context, string, string) error        { return nil }
func (nopJournal) ListByIdentity(context.Context, int64, *boost.AttemptListFilters) ([]boost.PurchaseAttempt, int64, error) {
	return []boost.PurchaseAttempt{}, 0, nil
}
