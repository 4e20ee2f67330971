// internal/service/promotion/dto.go
package promotion

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"boost-service/internal/domain/boost"
	"boost-service/internal/domain/promotion"
	xerrors "boost-service/internal/pkg/errors"

	"github.com/go-playground/validator/v10"
)

type StartRequest struct {
	ListingID string `json:"listing_id" validate:"required,max=64"`
}

type ConfigureRequest struct {
	Type         boost.Type `json:"type" validate:"required,max=32"`
	DurationDays int        `json:"duration_days" validate:"required,min=1"`
	AutoRenew    bool       `json:"auto_renew"`
}

type SelectChannelRequest struct {
	Kind       promotion.ChannelKind `json:"kind" validate:"required,oneof=credit wallet external"`
	ProviderID string                `json:"provider_id" validate:"required_if=Kind external,max=64"`
}

func (r SelectChannelRequest) Channel() promotion.Channel {
	if r.Kind == promotion.ChannelExternal {
		return promotion.ExternalChannel(strings.TrimSpace(r.ProviderID))
	}
	return promotion.Channel{Kind: r.Kind, ProviderID: strings.TrimSpace(r.ProviderID)}
}

// ChannelsResponse lists the offered channels and the current selection.
type ChannelsResponse struct {
	Options  []promotion.ChannelOption `json:"options"`
	Selected *promotion.Channel        `json:"selected,omitempty"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateStruct runs validator tags and folds failures into ErrValidation.
func validateStruct(v *validator.Validate, req interface{}) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return xerrors.Validation("%v", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return xerrors.Validation("%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
