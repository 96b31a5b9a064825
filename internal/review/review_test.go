package review

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boltdb/bolt"

	"github.com/foodtrend/foodtrend/config"
	"github.com/foodtrend/foodtrend/internal/common"
	"github.com/foodtrend/foodtrend/misc"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()

	dir, err := os.MkdirTemp("", "review-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := config.NewSandbox(dir+string(filepath.Separator), "test.db")
	db := misc.OpenDB(cfg.DBPath, cfg.DBName)
	t.Cleanup(func() { db.Close() })

	if err := misc.EnsureBuckets(db, cfg.Bucket.All); err != nil {
		t.Fatal(err)
	}
	return New(db, cfg)
}

func seedVisit(t *testing.T, rt *Router, visitId string) {
	t.Helper()

	cv := common.NewVisit(visitId, "inf-1", "rest-1", time.Now())
	r := &common.Restaurant{Id: "rest-1", Name: "Testaurant", GooglePlaceId: "ChIJtest"}

	if err := rt.db.Update(func(tx *bolt.Tx) error {
		if err := common.SaveVisit(tx, cv, rt.cfg); err != nil {
			return err
		}
		return common.SaveRestaurant(tx, r, rt.cfg)
	}); err != nil {
		t.Fatal(err)
	}
}

func TestRatingRouting(t *testing.T) {
	tests := []struct {
		rating   int
		wantType string
	}{
		{1, common.FeedbackInternal},
		{2, common.FeedbackInternal},
		{3, common.FeedbackInternal},
		{4, common.FeedbackNeutral},
		{5, common.FeedbackGooglePending},
	}

	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		rt := newTestRouter(t)
		seedVisit(t, rt, "visit-1")

		fb, err := rt.ProcessReview("visit-1", tt.rating, "the food", now)
		if err != nil {
			t.Fatalf("rating %d: %v", tt.rating, err)
		}
		if fb.FeedbackType != tt.wantType {
			t.Errorf("rating %d routed to %q, want %q", tt.rating, fb.FeedbackType, tt.wantType)
		}
		if fb.IsPublic {
			t.Errorf("rating %d public before Google confirmation", tt.rating)
		}

		wantURL := ""
		if tt.wantType == common.FeedbackGooglePending {
			wantURL = GoogleReviewURL("ChIJtest")
		}
		if fb.GoogleReviewUrl != wantURL {
			t.Errorf("rating %d review url %q, want %q", tt.rating, fb.GoogleReviewUrl, wantURL)
		}

		cv := common.GetVisit("visit-1", rt.db, rt.cfg)
		if !cv.ReviewCollected || cv.ReviewRating != tt.rating || cv.ReviewType != tt.wantType {
			t.Errorf("rating %d: visit not updated: %+v", tt.rating, cv)
		}
	}
}

func TestProcessReviewValidation(t *testing.T) {
	rt := newTestRouter(t)
	seedVisit(t, rt, "visit-1")
	now := time.Now()

	for _, rating := range []int{0, -1, 6} {
		if _, err := rt.ProcessReview("visit-1", rating, "", now); err != ErrBadRating {
			t.Errorf("rating %d: err=%v, want ErrBadRating", rating, err)
		}
	}

	if _, err := rt.ProcessReview("no-such-visit", 5, "", now); err != ErrUnknownVisit {
		t.Errorf("err=%v, want ErrUnknownVisit", err)
	}

	if _, err := rt.ProcessReview("visit-1", 5, "", now); err != nil {
		t.Fatal(err)
	}
	if _, err := rt.ProcessReview("visit-1", 4, "", now); err != ErrAlreadyReviewed {
		t.Errorf("err=%v, want ErrAlreadyReviewed", err)
	}
}

func TestMarkGooglePosted(t *testing.T) {
	rt := newTestRouter(t)
	seedVisit(t, rt, "visit-1")
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	fb, err := rt.ProcessReview("visit-1", 5, "amazing", now)
	if err != nil {
		t.Fatal(err)
	}

	posted, err := rt.MarkGooglePosted(fb.Id, now.AddDate(0, 0, 2))
	if err != nil {
		t.Fatal(err)
	}
	if posted.FeedbackType != common.FeedbackGooglePosted || !posted.IsPublic || posted.GooglePostedAt == nil {
		t.Fatalf("after marking: %+v", posted)
	}

	// Idempotent
	again, err := rt.MarkGooglePosted(fb.Id, now.AddDate(0, 0, 5))
	if err != nil {
		t.Fatal(err)
	}
	if !again.GooglePostedAt.Equal(*posted.GooglePostedAt) {
		t.Error("replay changed the posted timestamp")
	}
}

func TestMarkGooglePostedWrongState(t *testing.T) {
	rt := newTestRouter(t)
	seedVisit(t, rt, "visit-1")

	fb, err := rt.ProcessReview("visit-1", 2, "cold fries", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.MarkGooglePosted(fb.Id, time.Now()); err == nil {
		t.Error("internal feedback must not be markable as Google-posted")
	}
}

func TestSummaryForRestaurant(t *testing.T) {
	rt := newTestRouter(t)
	now := time.Now()

	ratings := []int{1, 3, 4, 5, 5}
	for i, rating := range ratings {
		id := "visit-" + string(rune('a'+i))
		seedVisit(t, rt, id)
		if _, err := rt.ProcessReview(id, rating, "", now); err != nil {
			t.Fatal(err)
		}
	}

	sum := rt.SummaryForRestaurant("rest-1")
	if sum.Total != 5 {
		t.Fatalf("total %d, want 5", sum.Total)
	}
	if sum.Internal != 2 || sum.Neutral != 1 || sum.GooglePending != 2 {
		t.Errorf("breakdown: %+v", sum)
	}
	if want := 18.0 / 5; sum.AverageRating != want {
		t.Errorf("average %v, want %v", sum.AverageRating, want)
	}
}

func TestStoredReviewURLPreferred(t *testing.T) {
	rt := newTestRouter(t)
	seedVisit(t, rt, "visit-1")

	if err := rt.db.Update(func(tx *bolt.Tx) error {
		r := common.GetRestaurantTx(tx, rt.cfg, "rest-1")
		r.GoogleReviewUrl = "https://g.page/r/testaurant/review"
		return common.SaveRestaurant(tx, r, rt.cfg)
	}); err != nil {
		t.Fatal(err)
	}

	fb, err := rt.ProcessReview("visit-1", 5, "", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if fb.GoogleReviewUrl != "https://g.page/r/testaurant/review" {
		t.Errorf("review url %q, want the restaurant's stored link", fb.GoogleReviewUrl)
	}
}

func TestGoogleReviewURL(t *testing.T) {
	got := GoogleReviewURL("ChIJabc123")
	want := "https://search.google.com/local/writereview?placeid=ChIJabc123"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
