package server

import (
	"errors"
	"time"

	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/foodtrend/foodtrend/internal/common"
	"github.com/foodtrend/foodtrend/internal/referral"
	"github.com/foodtrend/foodtrend/internal/review"
	"github.com/foodtrend/foodtrend/misc"
	"github.com/foodtrend/foodtrend/platforms/highlevel"
	"github.com/foodtrend/foodtrend/platforms/payments"
)

func ping(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(200, "pong")
	}
}

///////// Influencers /////////

// Qualified signups must bring a real audience with them.
const MinFollowers = 10000

func postInfluencer(srv *Server, qualified bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var inf common.Influencer
		if err := misc.BindJSON(c, &inf); err != nil {
			c.JSON(400, misc.StatusErr("Error unmarshalling request body"))
			return
		}

		if qualified && inf.FollowerCount < MinFollowers {
			c.JSON(400, misc.StatusErr("a minimum combined following of 10k is required"))
			return
		}

		if err := srv.Referral.CreateInfluencer(&inf); err != nil {
			switch err {
			case referral.ErrMissingFields, referral.ErrEmailExists:
				c.JSON(400, misc.StatusErr(err.Error()))
			default:
				c.JSON(500, misc.StatusErr(err.Error()))
			}
			return
		}

		srv.Audit("influencer.created", inf.Id)
		c.JSON(200, gin.H{
			"id":            inf.Id,
			"referral_code": inf.ReferralCode,
			"referral_link": srv.Referral.ReferralLink(inf.ReferralCode),
			"qr_code":       inf.QRCode,
		})
	}
}

func getInfluencerDashboard(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		inf := common.GetInfluencer(c.Param("id"), srv.db, srv.Cfg)
		if inf == nil {
			c.JSON(404, misc.StatusErr("influencer not found"))
			return
		}

		var visits []*common.CreatorVisit
		srv.db.View(func(tx *bolt.Tx) error {
			return common.ForEachVisit(tx, srv.Cfg, func(cv *common.CreatorVisit) error {
				if cv.InfluencerId == inf.Id {
					visits = append(visits, cv)
				}
				return nil
			})
		})

		c.JSON(200, gin.H{
			"influencer":  inf,
			"earnings":    srv.Commission.SummaryForInfluencer(inf.Id, time.Now()),
			"commissions": common.GetCommissionsByInfluencer(inf.Id, srv.db, srv.Cfg),
			"visits":      visits,
			"strikes":     common.GetStrikesByInfluencer(inf.Id, srv.db, srv.Cfg),
			"funnel":      srv.Referral.Funnel(inf.ReferralCode),
		})
	}
}

///////// Referrals /////////

// referralClick is the public link behind the QR codes. Unknown codes
// still land on the site, just unattributed.
func referralClick(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Param("code")
		if _, err := srv.Referral.TrackClick(code, c.Query("src"), time.Now()); err != nil {
			c.Redirect(302, srv.Cfg.BaseURL)
			return
		}
		c.Redirect(302, srv.Cfg.BaseURL+"/signup?ref="+code)
	}
}

func postReferralClick(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Code   string `json:"referral_code"`
			Source string `json:"source"`
		}
		if err := misc.BindJSON(c, &req); err != nil || req.Code == "" {
			c.JSON(400, misc.StatusErr("referral_code is required"))
			return
		}

		ev, err := srv.Referral.TrackClick(req.Code, req.Source, time.Now())
		if err != nil {
			// Bad codes are expected in the wild; report, don't error
			c.JSON(200, gin.H{"tracked": false})
			return
		}
		c.JSON(200, gin.H{"tracked": true, "id": ev.Id})
	}
}

func attributeSignup(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			RestaurantId string `json:"restaurant_id"`
			Code         string `json:"referral_code"`
		}
		if err := misc.BindJSON(c, &req); err != nil || req.RestaurantId == "" || req.Code == "" {
			c.JSON(400, misc.StatusErr("restaurant_id and referral_code are required"))
			return
		}

		inf, err := srv.Referral.AttributeSignup(req.RestaurantId, req.Code, time.Now())
		if err != nil {
			if err == referral.ErrUnknownCode {
				c.JSON(400, misc.StatusErr(err.Error()))
			} else {
				c.JSON(500, misc.StatusErr(err.Error()))
			}
			return
		}
		if inf == nil {
			// Already attributed; first touch wins
			c.JSON(200, misc.StatusOK(req.RestaurantId))
			return
		}

		srv.Audit("referral.attributed", req.RestaurantId+" -> "+inf.Id)
		c.JSON(200, misc.StatusOK(req.RestaurantId))
	}
}

func getFunnel(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Param("code")
		if common.GetInfluencerByCode(code, srv.db, srv.Cfg) == nil {
			c.JSON(404, misc.StatusErr("unknown referral code"))
			return
		}
		c.JSON(200, srv.Referral.Funnel(code))
	}
}

///////// Restaurants /////////

func postRestaurant(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var r common.Restaurant
		if err := misc.BindJSON(c, &r); err != nil {
			c.JSON(400, misc.StatusErr("Error unmarshalling request body"))
			return
		}
		if r.Name == "" || r.Email == "" {
			c.JSON(400, misc.StatusErr("name and email are required"))
			return
		}
		if r.Tier != "" {
			price, ok := common.TierPrices[r.Tier]
			if !ok {
				c.JSON(400, misc.StatusErr("unknown tier "+r.Tier))
				return
			}
			r.MonthlyPrice = price
		}

		r.Id = uuid.NewString()
		r.Email = misc.TrimEmail(r.Email)
		r.Status = common.RestaurantPending
		r.SignupDate = time.Now()
		if r.GooglePlaceId != "" {
			r.GoogleReviewUrl = review.GoogleReviewURL(r.GooglePlaceId)
		}

		custId, err := payments.CreateCustomer(srv.Cfg, &r)
		if err != nil {
			srv.Alert("Stripe customer create failed for "+r.Email, err)
			c.JSON(500, misc.StatusErr("payment setup failed"))
			return
		}
		r.StripeCustomerId = custId

		if err := srv.db.Update(func(tx *bolt.Tx) error {
			return common.SaveRestaurant(tx, &r, srv.Cfg)
		}); err != nil {
			c.JSON(500, misc.StatusErr(err.Error()))
			return
		}

		if r.GHLContactId != "" {
			if err := highlevel.AddTag(srv.Cfg, r.GHLContactId, highlevel.TagRestaurantNew); err != nil && err != highlevel.ErrNotConfigured {
				srv.Alert("Error tagging new restaurant in CRM", err)
			}
		}

		srv.Audit("restaurant.created", r.Id)
		c.JSON(200, misc.StatusOK(r.Id))
	}
}

func getRestaurantDashboard(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := common.GetRestaurant(c.Param("id"), srv.db, srv.Cfg)
		if r == nil {
			c.JSON(404, misc.StatusErr("restaurant not found"))
			return
		}

		var visits []*common.CreatorVisit
		srv.db.View(func(tx *bolt.Tx) error {
			return common.ForEachVisit(tx, srv.Cfg, func(cv *common.CreatorVisit) error {
				if cv.RestaurantId == r.Id {
					visits = append(visits, cv)
				}
				return nil
			})
		})

		c.JSON(200, gin.H{
			"restaurant":    r,
			"current_month": r.CurrentMonth(time.Now()),
			"visits":        visits,
			"feedback":      srv.Review.SummaryForRestaurant(r.Id),
		})
	}
}

///////// Creator visits /////////

func postVisit(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			InfluencerId string     `json:"influencer_id"`
			RestaurantId string     `json:"restaurant_id"`
			VisitDate    *time.Time `json:"visit_date"`
		}
		if err := misc.BindJSON(c, &req); err != nil || req.InfluencerId == "" || req.RestaurantId == "" {
			c.JSON(400, misc.StatusErr("influencer_id and restaurant_id are required"))
			return
		}

		inf := common.GetInfluencer(req.InfluencerId, srv.db, srv.Cfg)
		if inf == nil {
			c.JSON(404, misc.StatusErr("influencer not found"))
			return
		}
		if !inf.IsActive() {
			c.JSON(403, misc.StatusErr("influencer cannot accept visits right now"))
			return
		}
		if common.GetRestaurant(req.RestaurantId, srv.db, srv.Cfg) == nil {
			c.JSON(404, misc.StatusErr("restaurant not found"))
			return
		}

		visitDate := time.Now()
		if req.VisitDate != nil {
			visitDate = *req.VisitDate
		}

		cv := common.NewVisit(uuid.NewString(), req.InfluencerId, req.RestaurantId, visitDate)
		if err := srv.db.Update(func(tx *bolt.Tx) error {
			return common.SaveVisit(tx, cv, srv.Cfg)
		}); err != nil {
			c.JSON(500, misc.StatusErr(err.Error()))
			return
		}

		if inf.GHLContactId != "" {
			if err := highlevel.AddTag(srv.Cfg, inf.GHLContactId, highlevel.TagContentPending); err != nil && err != highlevel.ErrNotConfigured {
				srv.Alert("Error tagging visit in CRM", err)
			}
		}

		srv.Audit("visit.created", cv.Id)
		c.JSON(200, gin.H{"id": cv.Id, "posting_deadline": cv.PostingDeadline})
	}
}

func getVisit(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		cv := common.GetVisit(c.Param("id"), srv.db, srv.Cfg)
		if cv == nil {
			c.JSON(404, misc.StatusErr("visit not found"))
			return
		}
		c.JSON(200, cv)
	}
}

// putVisitPosts records the submitted content links. A visit inside its
// window that now has both posts is closed out as compliant on the
// spot; flagged or warned visits get the same treatment on the next
// grace sweep.
func putVisitPosts(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			TikTokURL    string `json:"tiktok_url"`
			InstagramURL string `json:"instagram_url"`
		}
		if err := misc.BindJSON(c, &req); err != nil || (req.TikTokURL == "" && req.InstagramURL == "") {
			c.JSON(400, misc.StatusErr("at least one post url is required"))
			return
		}

		var (
			updated *common.CreatorVisit
			now     = time.Now()
		)
		if err := srv.db.Update(func(tx *bolt.Tx) error {
			cv := common.GetVisitTx(tx, srv.Cfg, c.Param("id"))
			if cv == nil {
				return errors.New("visit not found")
			}

			if req.TikTokURL != "" {
				cv.SetTikTokPost(req.TikTokURL, now)
			}
			if req.InstagramURL != "" {
				cv.SetInstagramPost(req.InstagramURL, now)
			}
			if cv.FullyPosted() && cv.Status == common.VisitCompleted {
				cv.Status = common.VisitCompliant
			}

			updated = cv
			return common.SaveVisit(tx, cv, srv.Cfg)
		}); err != nil {
			c.JSON(404, misc.StatusErr(err.Error()))
			return
		}

		if updated.FullyPosted() {
			if inf := common.GetInfluencer(updated.InfluencerId, srv.db, srv.Cfg); inf != nil && inf.GHLContactId != "" {
				if err := highlevel.AddTag(srv.Cfg, inf.GHLContactId, highlevel.TagContentDelivered); err != nil && err != highlevel.ErrNotConfigured {
					srv.Alert("Error tagging delivered content in CRM", err)
				}
			}
		}

		srv.Audit("visit.posts", updated.Id)
		c.JSON(200, updated)
	}
}

///////// Reviews /////////

func postReview(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			VisitId string `json:"visit_id"`
			Rating  int    `json:"rating"`
			Comment string `json:"comment"`
		}
		if err := misc.BindJSON(c, &req); err != nil || req.VisitId == "" {
			c.JSON(400, misc.StatusErr("visit_id is required"))
			return
		}

		fb, err := srv.Review.ProcessReview(req.VisitId, req.Rating, req.Comment, time.Now())
		if err != nil {
			switch err {
			case review.ErrBadRating, review.ErrAlreadyReviewed:
				c.JSON(400, misc.StatusErr(err.Error()))
			case review.ErrUnknownVisit:
				c.JSON(404, misc.StatusErr(err.Error()))
			default:
				c.JSON(500, misc.StatusErr(err.Error()))
			}
			return
		}

		srv.Audit("review.collected", fb.Id)
		resp := gin.H{"status": "success", "id": fb.Id, "feedback_type": fb.FeedbackType}
		if fb.GoogleReviewUrl != "" {
			resp["google_review_url"] = fb.GoogleReviewUrl
			resp["message"] = "Thank you! We'd love it if you shared this on Google."
		}
		c.JSON(200, resp)
	}
}

func markGooglePosted(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		fb, err := srv.Review.MarkGooglePosted(c.Param("feedbackId"), time.Now())
		if err != nil {
			c.JSON(400, misc.StatusErr(err.Error()))
			return
		}
		c.JSON(200, fb)
	}
}

func getRestaurantFeedback(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if common.GetRestaurant(id, srv.db, srv.Cfg) == nil {
			c.JSON(404, misc.StatusErr("restaurant not found"))
			return
		}

		out := common.GetFeedbackByRestaurant(id, srv.db, srv.Cfg)
		if out == nil {
			out = []*common.Feedback{}
		}
		c.JSON(200, out)
	}
}

func getReviewSummary(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if common.GetRestaurant(id, srv.db, srv.Cfg) == nil {
			c.JSON(404, misc.StatusErr("restaurant not found"))
			return
		}
		c.JSON(200, srv.Review.SummaryForRestaurant(id))
	}
}
