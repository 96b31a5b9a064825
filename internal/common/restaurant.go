package common

import (
	"encoding/json"
	"log"
	"time"

	"github.com/boltdb/bolt"
	"github.com/foodtrend/foodtrend/config"
	"github.com/foodtrend/foodtrend/misc"
)

const (
	RestaurantPending   = "pending"
	RestaurantActive    = "active"
	RestaurantCancelled = "cancelled"
)

// Subscription tiers with their monthly price in dollars
const (
	TierMomentum  = "momentum"
	TierVelocity  = "velocity"
	TierDominance = "dominance"
)

var TierPrices = map[string]float64{
	TierMomentum:  799,
	TierVelocity:  1299,
	TierDominance: 2499,
}

type Restaurant struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`

	Status string `json:"status"`

	Tier         string  `json:"tier,omitempty"`
	MonthlyPrice float64 `json:"monthly_price,omitempty"`

	StripeCustomerId     string `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionId string `json:"stripe_subscription_id,omitempty"`
	PaymentStatus        string `json:"payment_status,omitempty"`

	// Set once by the referral attributer, immutable afterwards
	ReferredByInfluencerId string `json:"referred_by_influencer_id,omitempty"`
	ReferralCodeUsed       string `json:"referral_code_used,omitempty"`

	SignupDate       time.Time  `json:"signup_date,omitempty"`
	FirstPaymentDate *time.Time `json:"first_payment_date,omitempty"`
	LastPaymentDate  *time.Time `json:"last_payment_date,omitempty"`
	CancellationDate *time.Time `json:"cancellation_date,omitempty"`

	GooglePlaceId   string `json:"google_place_id,omitempty"`
	GoogleReviewUrl string `json:"google_review_url,omitempty"`

	GHLContactId string `json:"ghl_contact_id,omitempty"`
}

// CurrentMonth is the restaurant's elapsed subscription month via
// calendar-month subtraction, floored at 1. Zero without a first payment.
func (r *Restaurant) CurrentMonth(now time.Time) int {
	if r.FirstPaymentDate == nil {
		return 0
	}
	months := MonthsBetween(*r.FirstPaymentDate, now)
	if months < 0 {
		months = 0
	}
	return max(1, months+1)
}

func GetRestaurantTx(tx *bolt.Tx, cfg *config.Config, id string) *Restaurant {
	var r Restaurant
	if misc.GetTxJson(tx, cfg.Bucket.Restaurant, id, &r) != nil || r.Id == "" {
		return nil
	}
	return &r
}

func GetRestaurant(id string, db *bolt.DB, cfg *config.Config) (r *Restaurant) {
	db.View(func(tx *bolt.Tx) error {
		r = GetRestaurantTx(tx, cfg, id)
		return nil
	})
	return
}

func SaveRestaurant(tx *bolt.Tx, r *Restaurant, cfg *config.Config) error {
	return misc.PutTxJson(tx, cfg.Bucket.Restaurant, r.Id, r)
}

func ForEachRestaurant(tx *bolt.Tx, cfg *config.Config, fn func(r *Restaurant) error) error {
	return misc.GetBucket(tx, cfg.Bucket.Restaurant).ForEach(func(k, v []byte) error {
		var r Restaurant
		if err := json.Unmarshal(v, &r); err != nil {
			log.Println("error when unmarshalling restaurant", string(k))
			return nil
		}
		return fn(&r)
	})
}

// GetRestaurantBySubscription walks the bucket looking for the Stripe
// subscription id carried by webhook events.
func GetRestaurantBySubscription(subId string, db *bolt.DB, cfg *config.Config) (out *Restaurant) {
	db.View(func(tx *bolt.Tx) error {
		return ForEachRestaurant(tx, cfg, func(r *Restaurant) error {
			if r.StripeSubscriptionId == subId {
				out = r
			}
			return nil
		})
	})
	return
}

func GetRestaurantByCustomerTx(tx *bolt.Tx, cfg *config.Config, custId string) (out *Restaurant) {
	ForEachRestaurant(tx, cfg, func(r *Restaurant) error {
		if r.StripeCustomerId == custId {
			out = r
		}
		return nil
	})
	return
}
