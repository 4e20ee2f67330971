// internal/service/channel/selector.go
//
// Package channel decides which payment channels a purchase may use. It is pure:
// callers pass in the snapshots they already hold.
package channel

import (
	"fmt"

	"boost-service/internal/domain/boost"
	"boost-service/internal/domain/promotion"
	"boost-service/internal/service/credit"
)

// AvailableChannels lists the offered channels in display order: credit (when the
// credit rule allows it), wallet (always, balance shown but not checked), then one
// external channel per provider.
func AvailableChannels(intent promotion.PurchaseIntent, credits *boost.SubscriptionCredit, wallet *boost.Wallet, providers []boost.PaymentProvider) []promotion.ChannelOption {
	options := make([]promotion.ChannelOption, 0, len(providers)+2)

	if credit.CanUseCreditFor(intent.Type, credits) {
		options = append(options, promotion.ChannelOption{
			Channel: promotion.CreditChannel(),
			Label:   fmt.Sprintf("Subscription credit (%d remaining)", credits.RemainingCredits),
			Free:    true,
		})
	}

	walletOpt := promotion.ChannelOption{
		Channel: promotion.WalletChannel(),
		Label:   "Wallet",
	}
	if wallet != nil {
		balance := wallet.Balance
		walletOpt.Balance = &balance
	}
	options = append(options, walletOpt)

	for _, p := range providers {
		if p.ID == "" {
			continue
		}
		label := p.Name
		if label == "" {
			label = p.ID
		}
		options = append(options, promotion.ChannelOption{
			Channel: promotion.ExternalChannel(p.ID),
			Label:   label,
		})
	}

	return options
}

// DefaultChannel pre-selects the free credit channel when it is offered.
func DefaultChannel(options []promotion.ChannelOption) (promotion.Channel, bool) {
	for _, o := range options {
		if o.Channel.Kind == promotion.ChannelCredit {
			return o.Channel, true
		}
	}
	return promotion.Channel{}, false
}
