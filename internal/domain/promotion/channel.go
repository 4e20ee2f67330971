// internal/domain/promotion/channel.go
package promotion

import (
	"fmt"
	"strings"

	"boost-service/internal/domain/boost"
	xerrors "boost-service/internal/pkg/errors"
)

// ChannelKind tags the Channel variant.
type ChannelKind string

const (
	ChannelCredit   ChannelKind = "credit"
	ChannelWallet   ChannelKind = "wallet"
	ChannelExternal ChannelKind = "external"
)

// Channel is the funding source of one purchase. ProviderID is set only for
// ChannelExternal; use the constructors rather than building it by hand.
type Channel struct {
	Kind       ChannelKind `json:"kind"`
	ProviderID string      `json:"provider_id,omitempty"`
}

func CreditChannel() Channel { return Channel{Kind: ChannelCredit} }

func WalletChannel() Channel { return Channel{Kind: ChannelWallet} }

func ExternalChannel(providerID string) Channel {
	return Channel{Kind: ChannelExternal, ProviderID: providerID}
}

// Validate rejects malformed variants such as an external channel without a provider.
func (c Channel) Validate() error {
	switch c.Kind {
	case ChannelCredit, ChannelWallet:
		if c.ProviderID != "" {
			return xerrors.Validation("%s channel does not take a provider", c.Kind)
		}
		return nil
	case ChannelExternal:
		if strings.TrimSpace(c.ProviderID) == "" {
			return xerrors.Validation("external channel requires a provider id")
		}
		return nil
	case "":
		return xerrors.Validation("payment channel is required")
	default:
		return xerrors.Validation("unknown payment channel %q", c.Kind)
	}
}

// PaymentMethod is the value sent as paymentMethod on create-boost.
func (c Channel) PaymentMethod() string {
	switch c.Kind {
	case ChannelCredit:
		return boost.PaymentMethodSubscription
	case ChannelWallet:
		return boost.PaymentMethodWallet
	default:
		return c.ProviderID
	}
}

// IsExternal reports whether submission leaves the application through a redirect.
func (c Channel) IsExternal() bool {
	return c.Kind == ChannelExternal
}

func (c Channel) Equal(other Channel) bool {
	return c.Kind == other.Kind && c.ProviderID == other.ProviderID
}

func (c Channel) String() string {
	if c.Kind == ChannelExternal {
		return fmt.Sprintf("external:%s", c.ProviderID)
	}
	return string(c.Kind)
}

// ChannelOption is a channel offered to the user together with display data.
type ChannelOption struct {
	Channel Channel  `json:"channel"`
	Label   string   `json:"label"`
	Balance *float64 `json:"balance,omitempty"`
	Free    bool     `json:"free,omitempty"`
}
