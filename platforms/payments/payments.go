// Package payments wraps the few outbound Stripe calls the platform
// makes. Everything else billing-related arrives via webhooks.
package payments

import (
	"errors"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"

	"github.com/foodtrend/foodtrend/config"
	"github.com/foodtrend/foodtrend/internal/common"
)

var (
	ErrNoSubscription = errors.New("no active subscription found")
	ErrInvalidTier    = errors.New("invalid subscription tier")
)

func Init(cfg *config.Config) {
	stripe.Key = cfg.Stripe.Key
}

func PriceIDForTier(cfg *config.Config, tier string) (string, error) {
	switch tier {
	case common.TierMomentum:
		return cfg.Stripe.PriceMomentum, nil
	case common.TierVelocity:
		return cfg.Stripe.PriceVelocity, nil
	case common.TierDominance:
		return cfg.Stripe.PriceDominance, nil
	}
	return "", ErrInvalidTier
}

func TierForPriceID(cfg *config.Config, priceId string) string {
	switch priceId {
	case cfg.Stripe.PriceMomentum:
		return common.TierMomentum
	case cfg.Stripe.PriceVelocity:
		return common.TierVelocity
	case cfg.Stripe.PriceDominance:
		return common.TierDominance
	}
	return ""
}

// CreateCustomer registers the restaurant with Stripe and returns the
// customer id. The metadata keeps attribution visible in the Stripe
// dashboard.
func CreateCustomer(cfg *config.Config, r *common.Restaurant) (string, error) {
	if cfg.Sandbox {
		return "cus_sandbox_" + r.Id, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(r.Email),
		Name:  stripe.String(r.Name),
	}
	if r.Phone != "" {
		params.Phone = stripe.String(r.Phone)
	}
	params.AddMetadata("restaurant_id", r.Id)
	if r.ReferredByInfluencerId != "" {
		params.AddMetadata("referred_by", r.ReferredByInfluencerId)
	} else {
		params.AddMetadata("referred_by", "direct")
	}

	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}

func CancelSubscription(cfg *config.Config, subId string) error {
	if subId == "" {
		return ErrNoSubscription
	}
	if cfg.Sandbox {
		return nil
	}
	_, err := subscription.Cancel(subId, nil)
	return err
}
