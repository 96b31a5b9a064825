package server

import (
	"log"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/foodtrend/foodtrend/config"
	"github.com/foodtrend/foodtrend/internal/commission"
	"github.com/foodtrend/foodtrend/internal/monitor"
	"github.com/foodtrend/foodtrend/internal/referral"
	"github.com/foodtrend/foodtrend/internal/review"
	"github.com/foodtrend/foodtrend/internal/templates"
	"github.com/foodtrend/foodtrend/misc"
	"github.com/foodtrend/foodtrend/platforms/payments"
)

type Server struct {
	Cfg *config.Config
	r   *gin.Engine
	db  *bolt.DB

	Commission *commission.Engine
	Monitor    *monitor.Monitor
	Review     *review.Router
	Referral   *referral.System

	// Wakes the webhook worker without waiting for the next tick
	jobKick chan struct{}
	// One drain at a time, so a kicked drain can't race the ticker
	jobMu sync.Mutex
}

func New(cfg *config.Config, r *gin.Engine) (*Server, error) {
	db := misc.OpenDB(cfg.DBPath, cfg.DBName)

	srv := &Server{
		Cfg:     cfg,
		r:       r,
		db:      db,
		jobKick: make(chan struct{}, 1),
	}

	srv.Commission = commission.New(db, cfg)
	srv.Monitor = monitor.New(db, cfg)
	srv.Review = review.New(db, cfg)
	srv.Referral = referral.New(db, cfg)

	if err := srv.initializeDB(); err != nil {
		return nil, err
	}

	payments.Init(cfg)

	if !cfg.Sandbox && cfg.HighLevel.APIKey != "" {
		if err := misc.Ping(cfg.HighLevel.Endpoint); err != nil {
			log.Println("HighLevel endpoint unreachable at startup", err)
		}
	}

	if cfg.DashboardURL != "" {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = []string{cfg.DashboardURL, cfg.BaseURL}
		corsCfg.AllowCredentials = true
		r.Use(cors.New(corsCfg))
	}

	srv.initializeRoutes(r)
	srv.startEngine()

	return srv, nil
}

func (srv *Server) initializeDB() error {
	return misc.EnsureBuckets(srv.db, srv.Cfg.Bucket.All)
}

func (srv *Server) initializeRoutes(r *gin.Engine) {
	r.GET("/ping", ping(srv))

	// Webhooks (signed, no auth layer of their own)
	r.POST("/webhooks/stripe", stripeWebhook(srv))
	r.POST("/webhooks/highlevel", highLevelWebhook(srv))

	// Referral link target, also what the QR codes encode
	r.GET("/r/:code", referralClick(srv))

	api := r.Group("/api")

	// Influencer onboarding and referrals
	api.POST("/influencer/signup", postInfluencer(srv, false))
	api.POST("/influencer/signup-qualified", postInfluencer(srv, true))
	api.GET("/influencer/:id/dashboard", getInfluencerDashboard(srv))
	api.POST("/referral/click", postReferralClick(srv))
	api.POST("/referral/attribute", attributeSignup(srv))
	api.GET("/referral/funnel/:code", getFunnel(srv))

	// Restaurants
	api.POST("/restaurant", postRestaurant(srv))
	api.GET("/restaurant/:id/dashboard", getRestaurantDashboard(srv))

	// Creator visits and their content
	api.POST("/visit", postVisit(srv))
	api.GET("/visit/:id", getVisit(srv))
	api.PUT("/visit/:id/posts", putVisitPosts(srv))

	// Diner reviews
	api.POST("/reviews/submit", postReview(srv))
	api.POST("/reviews/:feedbackId/mark-posted", markGooglePosted(srv))
	api.GET("/reviews/restaurant/:id/feedback", getRestaurantFeedback(srv))
	api.GET("/reviews/restaurant/:id/stats", getReviewSummary(srv))
}

func (srv *Server) Run() error {
	return srv.r.Run(srv.Cfg.Host + ":" + srv.Cfg.Port)
}

func (srv *Server) Close() error {
	return srv.db.Close()
}

// Alert emails the admin about an internal failure. Logging always
// happens; the email is best effort.
func (srv *Server) Alert(msg string, err error) {
	log.Println("ALERT", msg, err)

	mc := srv.Cfg.MailClient()
	if mc == nil || srv.Cfg.Sandbox || srv.Cfg.AdminEmail == "" {
		return
	}

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	email := templates.ErrorEmail.Render(map[string]interface{}{
		"msg":   msg,
		"error": errMsg,
	})
	if resp, mErr := mc.SendMessage(email, "FoodTrend server alert", srv.Cfg.AdminEmail, "Admin", []string{"alert"}); mErr != nil || len(resp) != 1 || resp[0].RejectReason != "" {
		log.Println("Failed to mail alert", mErr)
	}
}

type auditEntry struct {
	Id     string `json:"id"`
	TS     string `json:"ts"`
	Action string `json:"action"`
	Detail string `json:"detail,omitempty"`
}

// Audit appends an entry to the audit log. Failures are logged and
// swallowed so auditing never breaks the caller.
func (srv *Server) Audit(action, detail string) {
	if err := srv.db.Update(func(tx *bolt.Tx) error {
		id, err := misc.GetNextIndex(tx, srv.Cfg.Bucket.Audit)
		if err != nil {
			return err
		}
		return misc.PutTxJson(tx, srv.Cfg.Bucket.Audit, id, &auditEntry{
			Id:     id,
			TS:     time.Now().Format("2006-01-02 15:04:05"),
			Action: action,
			Detail: detail,
		})
	}); err != nil {
		log.Println("Error writing audit entry", err)
	}
}
