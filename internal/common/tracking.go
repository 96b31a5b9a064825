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
	ReferralClick      = "click"
	ReferralSignup     = "signup"
	ReferralConversion = "conversion" // first payment landed
)

// ReferralEvent is one touch on a referral code, from link click
// through paid conversion. Rows are append-only.
type ReferralEvent struct {
	Id           string `json:"id"`
	ReferralCode string `json:"referral_code"`
	InfluencerId string `json:"influencer_id"`

	EventType string `json:"event_type"`
	Source    string `json:"source,omitempty"` // qr, link, manual

	RestaurantId string `json:"restaurant_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func SaveReferralEvent(tx *bolt.Tx, ev *ReferralEvent, cfg *config.Config) error {
	return misc.PutTxJson(tx, cfg.Bucket.Tracking, ev.Id, ev)
}

func ForEachReferralEvent(tx *bolt.Tx, cfg *config.Config, fn func(ev *ReferralEvent) error) error {
	return misc.GetBucket(tx, cfg.Bucket.Tracking).ForEach(func(k, v []byte) error {
		var ev ReferralEvent
		if err := json.Unmarshal(v, &ev); err != nil {
			log.Println("error when unmarshalling referral event", string(k))
			return nil
		}
		return fn(&ev)
	})
}

func GetReferralEventsByCode(code string, db *bolt.DB, cfg *config.Config) (out []*ReferralEvent) {
	db.View(func(tx *bolt.Tx) error {
		return ForEachReferralEvent(tx, cfg, func(ev *ReferralEvent) error {
			if ev.ReferralCode == code {
				out = append(out, ev)
			}
			return nil
		})
	})
	return
}
