package common

import (
	"encoding/json"
	"log"
	"time"

	"github.com/boltdb/bolt"
	"github.com/foodtrend/foodtrend/config"
	"github.com/foodtrend/foodtrend/misc"
)

// PerformanceStrike rows are append-only. A strike is never deleted,
// only marked resolved.
type PerformanceStrike struct {
	Id           string `json:"id"`
	InfluencerId string `json:"influencer_id"`
	VisitId      string `json:"creator_visit_id"`
	RestaurantId string `json:"restaurant_id"`

	StrikeType string `json:"strike_type"`
	Severity   string `json:"severity"`
	Reason     string `json:"reason"`

	IssuedAt time.Time `json:"issued_at"`
	Resolved bool      `json:"resolved"`

	SuspensionApplied   bool       `json:"suspension_applied,omitempty"`
	SuspensionDays      int        `json:"suspension_days,omitempty"`
	SuspensionEndDate   *time.Time `json:"suspension_end_date,omitempty"`
	RemovedFromPlatform bool       `json:"removed_from_platform,omitempty"`
}

func SaveStrike(tx *bolt.Tx, st *PerformanceStrike, cfg *config.Config) error {
	return misc.PutTxJson(tx, cfg.Bucket.Strike, st.Id, st)
}

func ForEachStrike(tx *bolt.Tx, cfg *config.Config, fn func(st *PerformanceStrike) error) error {
	return misc.GetBucket(tx, cfg.Bucket.Strike).ForEach(func(k, v []byte) error {
		var st PerformanceStrike
		if err := json.Unmarshal(v, &st); err != nil {
			log.Println("error when unmarshalling strike", string(k))
			return nil
		}
		return fn(&st)
	})
}

func GetStrikesByInfluencer(influencerId string, db *bolt.DB, cfg *config.Config) (out []*PerformanceStrike) {
	db.View(func(tx *bolt.Tx) error {
		return ForEachStrike(tx, cfg, func(st *PerformanceStrike) error {
			if st.InfluencerId == influencerId {
				out = append(out, st)
			}
			return nil
		})
	})
	return
}
