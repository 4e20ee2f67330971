// internal/websocket/handler/promotion.go
package handlers

import (
	"context"
	"fmt"

	"boost-service/internal/domain/boost"
	"boost-service/internal/domain/promotion"
	wstypes "boost-service/internal/domain/websocket"
	xerrors "boost-service/internal/pkg/errors"
	ws "boost-service/internal/websocket"

	"go.uber.org/zap"
)

type WorkflowReader interface {
	Get(ctx context.Context, identityID int64, id string) (*promotion.View, error)
}

type WalletReader interface {
	GetWallet(ctx context.Context) (*boost.Wallet, error)
}

// PromotionHandler answers snapshot requests so a client that reconnects, or missed
// a push, can catch up.
type PromotionHandler struct {
	workflows WorkflowReader
	wallets   WalletReader
	logger    *zap.Logger
}

func NewPromotionHandler(workflows WorkflowReader, wallets WalletReader, logger *zap.Logger) *PromotionHandler {
	return &PromotionHandler{
		workflows: workflows,
		wallets:   wallets,
		logger:    logger,
	}
}

// SupportedEvents returns events this handler supports
func (h *PromotionHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{
		wstypes.EventTypePromotionGet,
		wstypes.EventTypeWalletGet,
	}
}

// HandleMessage processes promotion-related messages
func (h *PromotionHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	switch msg.Type {
	case wstypes.EventTypePromotionGet:
		return h.handleGetWorkflow(ctx, client, msg)

	case wstypes.EventTypeWalletGet:
		return h.handleGetWallet(ctx, client)

	default:
		return fmt.Errorf("%w: %s", ws.ErrUnknownEvent, msg.Type)
	}
}

// handleGetWorkflow sends the current snapshot of one of the client's workflows
func (h *PromotionHandler) handleGetWorkflow(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	var req wstypes.PromotionGetRequest
	if err := ws.DecodeData(msg.Data, &req); err != nil || req.WorkflowID == "" {
		client.SendError("invalid_request", "workflow_id is required", "")
		return nil
	}

	view, err := h.workflows.Get(ctx, client.GetIdentityID(), req.WorkflowID)
	if err != nil {
		client.SendError(xerrors.Code(err), "Failed to load promotion", err.Error())
		return nil
	}

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypePromotionState, view))
	return nil
}

// handleGetWallet sends the wallet balance as the ledger currently holds it
func (h *PromotionHandler) handleGetWallet(ctx context.Context, client *ws.Client) error {
	wallet, err := h.wallets.GetWallet(ctx)
	if err != nil {
		h.logger.Warn("websocket wallet read failed",
			zap.Int64("identity_id", client.GetIdentityID()),
			zap.Error(err))
		client.SendError(xerrors.Code(err), "Failed to load wallet", err.Error())
		return nil
	}

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeWalletBalance, wallet))
	return nil
}
