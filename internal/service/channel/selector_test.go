package channel

import (
	"testing"

	"boost-service/internal/domain/boost"
	"boost-service/internal/domain/promotion"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(options []promotion.ChannelOption) []string {
	out := make([]string, 0, len(options))
	for _, o := range options {
		out = append(out, o.Channel.String())
	}
	return out
}

func TestAvailableChannels(t *testing.T) {
	providers := []boost.PaymentProvider{{ID: "mpesa", Name: "M-Pesa"}, {ID: "airtel", Name: "Airtel Money"}}
	withCredits := &boost.SubscriptionCredit{TotalCredits: 5, UsedCredits: 2, RemainingCredits: 3}
	noCredits := &boost.SubscriptionCredit{TotalCredits: 5, UsedCredits: 5, RemainingCredits: 0}
	wallet := &boost.Wallet{Balance: 120}

	tests := []struct {
		name      string
		typ       boost.Type
		credits   *boost.SubscriptionCredit
		providers []boost.PaymentProvider
		want      []string
	}{
		{"featured with credits", boost.TypeFeatured, withCredits, providers, []string{"credit", "wallet", "external:mpesa", "external:airtel"}},
		{"featured without credits", boost.TypeFeatured, noCredits, providers, []string{"wallet", "external:mpesa", "external:airtel"}},
		{"urgent never gets credit", boost.TypeUrgent, withCredits, providers, []string{"wallet", "external:mpesa", "external:airtel"}},
		{"credits unknown", boost.TypeFeatured, nil, nil, []string{"wallet"}},
		{"no providers", boost.TypeHighlight, withCredits, nil, []string{"wallet"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := promotion.PurchaseIntent{Type: tt.typ, DurationDays: 7}
			options := AvailableChannels(intent, tt.credits, wallet, tt.providers)
			assert.Equal(t, tt.want, kinds(options))
		})
	}
}

func TestWalletOfferedRegardlessOfBalance(t *testing.T) {
	intent := promotion.PurchaseIntent{Type: boost.TypeFeatured, DurationDays: 30}
	options := AvailableChannels(intent, nil, &boost.Wallet{Balance: 0}, nil)

	require.Len(t, options, 1)
	require.NotNil(t, options[0].Balance)
	assert.Zero(t, *options[0].Balance)
}

func TestDefaultChannelPrefersCredit(t *testing.T) {
	intent := promotion.PurchaseIntent{Type: boost.TypeFeatured}
	credits := &boost.SubscriptionCredit{TotalCredits: 1, RemainingCredits: 1}

	ch, ok := DefaultChannel(AvailableChannels(intent, credits, nil, nil))
	require.True(t, ok)
	assert.Equal(t, promotion.ChannelCredit, ch.Kind)

	_, ok = DefaultChannel(AvailableChannels(intent, nil, nil, nil))
	assert.False(t, ok)
}
