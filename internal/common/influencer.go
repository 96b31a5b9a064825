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
	InfluencerActive    = "active"
	InfluencerSuspended = "suspended"
	InfluencerRemoved   = "removed"
)

type Influencer struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`

	InstagramHandle string `json:"instagram_handle,omitempty"`
	TikTokHandle    string `json:"tiktok_handle,omitempty"`
	FollowerCount   int64  `json:"follower_count,omitempty"`

	ReferralCode string `json:"referral_code,omitempty"`
	// Base64 PNG fallback when there's no uploaded asset
	QRCode string `json:"qr_code,omitempty"`

	Status string `json:"status"`

	// Compliance ladder state, owned by the performance monitor
	StrikeCount       int        `json:"strike_count"`
	FlaggedVisits     int        `json:"flagged_visits,omitempty"`
	FailedVisits      int        `json:"failed_visits,omitempty"`
	Suspended         bool       `json:"suspended,omitempty"`
	SuspensionEndDate *time.Time `json:"suspension_end_date,omitempty"`
	Removed           bool       `json:"removed,omitempty"`
	RemovedReason     string     `json:"removed_reason,omitempty"`
	RemovedAt         *time.Time `json:"removed_at,omitempty"`

	// Earnings, owned by the commission engine
	PendingEarnings float64 `json:"pending_earnings"`
	TotalEarnings   float64 `json:"total_earnings"`
	PaidEarnings    float64 `json:"paid_earnings"`

	TotalReferrals     int `json:"total_referrals,omitempty"`
	ActiveReferrals    int `json:"active_referrals,omitempty"`
	CancelledReferrals int `json:"cancelled_referrals,omitempty"`

	GHLContactId string `json:"ghl_contact_id,omitempty"`

	SignupDate time.Time `json:"signup_date,omitempty"`
}

func (inf *Influencer) IsActive() bool {
	return !inf.Suspended && !inf.Removed
}

func GetInfluencerTx(tx *bolt.Tx, cfg *config.Config, id string) *Influencer {
	var inf Influencer
	if misc.GetTxJson(tx, cfg.Bucket.Influencer, id, &inf) != nil || inf.Id == "" {
		return nil
	}
	return &inf
}

func GetInfluencer(id string, db *bolt.DB, cfg *config.Config) (inf *Influencer) {
	db.View(func(tx *bolt.Tx) error {
		inf = GetInfluencerTx(tx, cfg, id)
		return nil
	})
	return
}

func SaveInfluencer(tx *bolt.Tx, inf *Influencer, cfg *config.Config) error {
	return misc.PutTxJson(tx, cfg.Bucket.Influencer, inf.Id, inf)
}

// ForEachInfluencer iterates the bucket, skipping rows that fail to
// unmarshal so one bad row can't kill a sweep.
func ForEachInfluencer(tx *bolt.Tx, cfg *config.Config, fn func(inf *Influencer) error) error {
	return misc.GetBucket(tx, cfg.Bucket.Influencer).ForEach(func(k, v []byte) error {
		var inf Influencer
		if err := json.Unmarshal(v, &inf); err != nil {
			log.Println("error when unmarshalling influencer", string(k))
			return nil
		}
		return fn(&inf)
	})
}

func GetInfluencerByCode(code string, db *bolt.DB, cfg *config.Config) (out *Influencer) {
	db.View(func(tx *bolt.Tx) error {
		return ForEachInfluencer(tx, cfg, func(inf *Influencer) error {
			if inf.ReferralCode == code {
				out = inf
			}
			return nil
		})
	})
	return
}

func GetInfluencerByEmail(email string, db *bolt.DB, cfg *config.Config) (out *Influencer) {
	email = misc.TrimEmail(email)
	db.View(func(tx *bolt.Tx) error {
		return ForEachInfluencer(tx, cfg, func(inf *Influencer) error {
			if misc.TrimEmail(inf.Email) == email {
				out = inf
			}
			return nil
		})
	})
	return
}
