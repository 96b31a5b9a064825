package common

import (
	"encoding/json"
	"log"
	"time"

	"github.com/boltdb/bolt"
	"github.com/foodtrend/foodtrend/config"
	"github.com/foodtrend/foodtrend/misc"
)

// Feedback routing destinations. Only google_posted is ever public.
const (
	FeedbackInternal      = "internal"
	FeedbackNeutral       = "neutral"
	FeedbackGooglePending = "google_pending"
	FeedbackGooglePosted  = "google_posted"
)

type Feedback struct {
	Id           string `json:"id"`
	InfluencerId string `json:"influencer_id"`
	RestaurantId string `json:"restaurant_id"`
	VisitId      string `json:"creator_visit_id"`

	StarRating int    `json:"star_rating"`
	Comment    string `json:"comment,omitempty"`

	FeedbackType string `json:"feedback_type"`
	IsPublic     bool   `json:"is_public"`

	// Pre-filled review link handed back to 5-star diners.
	GoogleReviewUrl string `json:"google_review_url,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	GooglePostedAt *time.Time `json:"google_posted_at,omitempty"`
}

func GetFeedbackTx(tx *bolt.Tx, cfg *config.Config, id string) *Feedback {
	var fb Feedback
	if misc.GetTxJson(tx, cfg.Bucket.Feedback, id, &fb) != nil || fb.Id == "" {
		return nil
	}
	return &fb
}

func SaveFeedback(tx *bolt.Tx, fb *Feedback, cfg *config.Config) error {
	return misc.PutTxJson(tx, cfg.Bucket.Feedback, fb.Id, fb)
}

func GetFeedbackByRestaurant(restaurantId string, db *bolt.DB, cfg *config.Config) (out []*Feedback) {
	db.View(func(tx *bolt.Tx) error {
		return misc.GetBucket(tx, cfg.Bucket.Feedback).ForEach(func(k, v []byte) error {
			var fb Feedback
			if err := json.Unmarshal(v, &fb); err != nil {
				log.Println("error when unmarshalling feedback", string(k))
				return nil
			}
			if fb.RestaurantId == restaurantId {
				out = append(out, &fb)
			}
			return nil
		})
	})
	return
}
