// internal/service/wallet/wallet.go
package wallet

import (
	"context"
	"fmt"
	"time"

	"boost-service/internal/domain/boost"
	"boost-service/internal/ledger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const walletLedger = "wallet"

type API interface {
	GetWallet(ctx context.Context) (*boost.Wallet, error)
}

// WalletService only reads the balance. Deductions happen upstream as part of the
// purchase; afterwards the snapshot is invalidated.
type WalletService struct {
	wallet *ledger.Ledger[boost.Wallet]
	logger *zap.Logger
}

func NewWalletLedger(client *redis.Client, api API, ttl time.Duration, logger *zap.Logger, opts ...ledger.Option[boost.Wallet]) *ledger.Ledger[boost.Wallet] {
	load := func(ctx context.Context) (boost.Wallet, error) {
		w, err := api.GetWallet(ctx)
		if err != nil {
			return boost.Wallet{}, err
		}
		return *w, nil
	}
	return ledger.New(client, walletLedger, ledger.PerUser(walletLedger), load, ttl, logger, opts...)
}

func NewWalletService(wallet *ledger.Ledger[boost.Wallet], logger *zap.Logger) *WalletService {
	return &WalletService{
		wallet: wallet,
		logger: logger,
	}
}

func (s *WalletService) GetWallet(ctx context.Context) (*boost.Wallet, error) {
	w, err := s.wallet.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	return &w, nil
}

func (s *WalletService) Invalidate(ctx context.Context) error {
	return s.wallet.Invalidate(ctx)
}
