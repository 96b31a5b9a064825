package common

import (
	"encoding/json"
	"log"
	"time"

	"github.com/boltdb/bolt"
	"github.com/foodtrend/foodtrend/config"
	"github.com/foodtrend/foodtrend/misc"
	"github.com/foodtrend/foodtrend/platforms/instagram"
	"github.com/foodtrend/foodtrend/platforms/tiktok"
)

// CreatorVisit states. A visit starts completed (the meal happened)
// and moves through the compliance ladder if content never shows up.
const (
	VisitCompleted   = "completed"
	VisitFlagged     = "flagged"
	VisitWarningSent = "warning_sent"
	VisitCompliant   = "compliant"
	VisitFailed      = "failed"
)

// Content must be live on both platforms within this window.
const PostingWindow = 48 * time.Hour

type CreatorVisit struct {
	Id           string `json:"id"`
	InfluencerId string `json:"influencer_id"`
	RestaurantId string `json:"restaurant_id"`

	VisitDate       time.Time `json:"visit_date"`
	PostingDeadline time.Time `json:"posting_deadline"`

	TikTokPosted    bool `json:"tiktok_posted"`
	InstagramPosted bool `json:"instagram_posted"`

	// Submitted posts, refreshed by the metrics sweep
	TikTokPost    *tiktok.Post    `json:"tiktok_post,omitempty"`
	InstagramPost *instagram.Post `json:"instagram_post,omitempty"`

	Status        string     `json:"status"`
	FlaggedAt     *time.Time `json:"flagged_at,omitempty"`
	WarningSentAt *time.Time `json:"warning_sent_at,omitempty"`

	ReviewCollected bool   `json:"review_collected,omitempty"`
	ReviewRating    int    `json:"review_rating,omitempty"`
	ReviewType      string `json:"review_type,omitempty"`
}

func (cv *CreatorVisit) FullyPosted() bool {
	return cv.TikTokPosted && cv.InstagramPosted
}

func (cv *CreatorVisit) SetTikTokPost(postURL string, now time.Time) {
	cv.TikTokPost = &tiktok.Post{
		Id:          cv.Id,
		PostURL:     postURL,
		Published:   now.Unix(),
		LastUpdated: now.Unix(),
	}
	cv.TikTokPosted = true
}

func (cv *CreatorVisit) SetInstagramPost(postURL string, now time.Time) {
	cv.InstagramPost = &instagram.Post{
		Id:          cv.Id,
		PostURL:     postURL,
		Published:   now.Unix(),
		LastUpdated: now.Unix(),
	}
	cv.InstagramPosted = true
}

func NewVisit(id, influencerId, restaurantId string, visitDate time.Time) *CreatorVisit {
	return &CreatorVisit{
		Id:              id,
		InfluencerId:    influencerId,
		RestaurantId:    restaurantId,
		VisitDate:       visitDate,
		PostingDeadline: visitDate.Add(PostingWindow),
		Status:          VisitCompleted,
	}
}

func GetVisitTx(tx *bolt.Tx, cfg *config.Config, id string) *CreatorVisit {
	var cv CreatorVisit
	if misc.GetTxJson(tx, cfg.Bucket.Visit, id, &cv) != nil || cv.Id == "" {
		return nil
	}
	return &cv
}

func GetVisit(id string, db *bolt.DB, cfg *config.Config) (cv *CreatorVisit) {
	db.View(func(tx *bolt.Tx) error {
		cv = GetVisitTx(tx, cfg, id)
		return nil
	})
	return
}

func SaveVisit(tx *bolt.Tx, cv *CreatorVisit, cfg *config.Config) error {
	return misc.PutTxJson(tx, cfg.Bucket.Visit, cv.Id, cv)
}

func ForEachVisit(tx *bolt.Tx, cfg *config.Config, fn func(cv *CreatorVisit) error) error {
	return misc.GetBucket(tx, cfg.Bucket.Visit).ForEach(func(k, v []byte) error {
		var cv CreatorVisit
		if err := json.Unmarshal(v, &cv); err != nil {
			log.Println("error when unmarshalling visit", string(k))
			return nil
		}
		return fn(&cv)
	})
}
