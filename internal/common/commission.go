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
	CommissionPending   = "pending"
	CommissionReady     = "ready_for_payout"
	CommissionPaid      = "paid"
	CommissionCancelled = "cancelled"
)

// Commission is one scheduled monthly payout for a referral.
// Exactly one schedule exists per referred restaurant, extended in
// 12-month increments as it nears exhaustion.
type Commission struct {
	Id           string `json:"id"`
	InfluencerId string `json:"influencer_id"`
	RestaurantId string `json:"restaurant_id"`

	MonthNumber int     `json:"month_number"`
	Amount      float64 `json:"amount"`

	DueDate       time.Time  `json:"due_date"`
	ProcessedDate *time.Time `json:"processed_date,omitempty"`

	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

func (cm *Commission) IsOutstanding() bool {
	return cm.Status == CommissionPending || cm.Status == CommissionReady
}

func SaveCommission(tx *bolt.Tx, cm *Commission, cfg *config.Config) error {
	return misc.PutTxJson(tx, cfg.Bucket.Commission, cm.Id, cm)
}

func ForEachCommission(tx *bolt.Tx, cfg *config.Config, fn func(cm *Commission) error) error {
	return misc.GetBucket(tx, cfg.Bucket.Commission).ForEach(func(k, v []byte) error {
		var cm Commission
		if err := json.Unmarshal(v, &cm); err != nil {
			log.Println("error when unmarshalling commission", string(k))
			return nil
		}
		return fn(&cm)
	})
}

func GetCommissionsByRestaurant(restaurantId string, db *bolt.DB, cfg *config.Config) (out []*Commission) {
	db.View(func(tx *bolt.Tx) error {
		return ForEachCommission(tx, cfg, func(cm *Commission) error {
			if cm.RestaurantId == restaurantId {
				out = append(out, cm)
			}
			return nil
		})
	})
	return
}

func GetCommissionsByInfluencer(influencerId string, db *bolt.DB, cfg *config.Config) (out []*Commission) {
	db.View(func(tx *bolt.Tx) error {
		return ForEachCommission(tx, cfg, func(cm *Commission) error {
			if cm.InfluencerId == influencerId {
				out = append(out, cm)
			}
			return nil
		})
	})
	return
}
