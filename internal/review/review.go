// Package review routes diner ratings collected after creator visits:
// unhappy diners go to private recovery, happy ones get nudged toward a
// public Google review.
package review

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/foodtrend/foodtrend/config"
	"github.com/foodtrend/foodtrend/internal/common"
	"github.com/foodtrend/foodtrend/platforms/highlevel"
)

// Google's review form, keyed by Place ID.
const googleReviewBase = "https://search.google.com/local/writereview?placeid="

var (
	ErrBadRating       = errors.New("star rating must be between 1 and 5")
	ErrUnknownVisit    = errors.New("unknown creator visit")
	ErrAlreadyReviewed = errors.New("visit already has a review")
)

type Router struct {
	db  *bolt.DB
	cfg *config.Config
}

func New(db *bolt.DB, cfg *config.Config) *Router {
	return &Router{db: db, cfg: cfg}
}

// routeFor maps a star rating to its destination. 1-3 stay internal,
// 4 is filed but never pushed anywhere, 5 earns a Google review ask.
func routeFor(rating int) (feedbackType string, isPublic bool) {
	switch {
	case rating <= 3:
		return common.FeedbackInternal, false
	case rating == 4:
		return common.FeedbackNeutral, false
	default:
		return common.FeedbackGooglePending, false
	}
}

// ProcessReview files the diner's rating against a visit and routes it.
// One review per visit; replays get ErrAlreadyReviewed.
func (rt *Router) ProcessReview(visitId string, rating int, comment string, now time.Time) (*common.Feedback, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrBadRating
	}

	fbType, isPublic := routeFor(rating)
	fb := &common.Feedback{
		Id:           uuid.NewString(),
		VisitId:      visitId,
		StarRating:   rating,
		Comment:      comment,
		FeedbackType: fbType,
		IsPublic:     isPublic,
		CreatedAt:    now,
	}

	if err := rt.db.Update(func(tx *bolt.Tx) error {
		cv := common.GetVisitTx(tx, rt.cfg, visitId)
		if cv == nil {
			return ErrUnknownVisit
		}
		if cv.ReviewCollected {
			return ErrAlreadyReviewed
		}

		fb.InfluencerId = cv.InfluencerId
		fb.RestaurantId = cv.RestaurantId

		cv.ReviewCollected = true
		cv.ReviewRating = rating
		cv.ReviewType = fbType
		if err := common.SaveVisit(tx, cv, rt.cfg); err != nil {
			return err
		}

		if fbType == common.FeedbackGooglePending {
			if r := common.GetRestaurantTx(tx, rt.cfg, cv.RestaurantId); r != nil {
				fb.GoogleReviewUrl = reviewURLFor(r)
			}
		}
		return common.SaveFeedback(tx, fb, rt.cfg)
	}); err != nil {
		return nil, err
	}

	log.Printf("Review for visit %s: %d stars routed to %s", visitId, rating, fbType)

	switch fbType {
	case common.FeedbackInternal:
		rt.alertRestaurant(fb)
	case common.FeedbackGooglePending:
		rt.requestGoogleReview(fb)
	}

	return fb, nil
}

// alertRestaurant pushes low ratings into the restaurant's CRM pipeline
// so the owner can respond privately. CRM failures are logged, never
// surfaced to the diner.
func (rt *Router) alertRestaurant(fb *common.Feedback) {
	r := common.GetRestaurant(fb.RestaurantId, rt.db, rt.cfg)
	if r == nil || r.GHLContactId == "" {
		return
	}

	fields := map[string]string{
		"last_feedback_rating": fmt.Sprintf("%d", fb.StarRating),
		"last_feedback_text":   fb.Comment,
	}
	if err := highlevel.UpdateContactFields(rt.cfg, r.GHLContactId, fields); err != nil && err != highlevel.ErrNotConfigured {
		log.Println("Error updating CRM fields for restaurant", r.Id, err)
	}
	if err := highlevel.AddTag(rt.cfg, r.GHLContactId, highlevel.TagContentUrgent); err != nil && err != highlevel.ErrNotConfigured {
		log.Println("Error tagging restaurant in CRM", r.Id, err)
	}
}

// requestGoogleReview kicks off the CRM workflow that asks a delighted
// diner to repost on Google. Needs the restaurant's Place ID.
func (rt *Router) requestGoogleReview(fb *common.Feedback) {
	r := common.GetRestaurant(fb.RestaurantId, rt.db, rt.cfg)
	if r == nil || r.GHLContactId == "" {
		return
	}
	if fb.GoogleReviewUrl == "" {
		log.Println("No Google Place ID for restaurant", r.Id)
		return
	}

	if err := highlevel.TriggerReviewRequest(rt.cfg, r.GHLContactId, r.Name, fb.GoogleReviewUrl, fb.Comment); err != nil && err != highlevel.ErrNotConfigured {
		log.Println("Error triggering review request for restaurant", r.Id, err)
	}
}

// reviewURLFor prefers the restaurant's stored link over one built from
// the Place ID.
func reviewURLFor(r *common.Restaurant) string {
	if r.GoogleReviewUrl != "" {
		return r.GoogleReviewUrl
	}
	if r.GooglePlaceId == "" {
		return ""
	}
	return GoogleReviewURL(r.GooglePlaceId)
}

func GoogleReviewURL(placeId string) string {
	return googleReviewBase + placeId
}

// MarkGooglePosted records that a pending Google review went live.
// Re-marking a posted review is a no-op.
func (rt *Router) MarkGooglePosted(feedbackId string, now time.Time) (*common.Feedback, error) {
	var fb *common.Feedback
	err := rt.db.Update(func(tx *bolt.Tx) error {
		if fb = common.GetFeedbackTx(tx, rt.cfg, feedbackId); fb == nil {
			return fmt.Errorf("unknown feedback %s", feedbackId)
		}
		if fb.FeedbackType == common.FeedbackGooglePosted {
			return nil
		}
		if fb.FeedbackType != common.FeedbackGooglePending {
			return fmt.Errorf("feedback %s is %s, not pending a Google post", feedbackId, fb.FeedbackType)
		}

		fb.FeedbackType = common.FeedbackGooglePosted
		fb.IsPublic = true
		ts := now
		fb.GooglePostedAt = &ts
		return common.SaveFeedback(tx, fb, rt.cfg)
	})
	return fb, err
}

type Summary struct {
	Total         int     `json:"total"`
	AverageRating float64 `json:"average_rating"`

	Internal      int `json:"internal"`
	Neutral       int `json:"neutral"`
	GooglePending int `json:"google_pending"`
	GooglePosted  int `json:"google_posted"`
}

// SummaryForRestaurant rolls up a restaurant's collected feedback.
func (rt *Router) SummaryForRestaurant(restaurantId string) *Summary {
	var (
		sum   Summary
		stars int
	)
	for _, fb := range common.GetFeedbackByRestaurant(restaurantId, rt.db, rt.cfg) {
		sum.Total++
		stars += fb.StarRating
		switch fb.FeedbackType {
		case common.FeedbackInternal:
			sum.Internal++
		case common.FeedbackNeutral:
			sum.Neutral++
		case common.FeedbackGooglePending:
			sum.GooglePending++
		case common.FeedbackGooglePosted:
			sum.GooglePosted++
		}
	}
	if sum.Total > 0 {
		sum.AverageRating = float64(stars) / float64(sum.Total)
	}
	return &sum
}
