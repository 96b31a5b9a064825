package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/foodtrend/foodtrend/internal/common"
	"github.com/foodtrend/foodtrend/internal/referral"
	"github.com/foodtrend/foodtrend/misc"
	"github.com/foodtrend/foodtrend/platforms/highlevel"
	"github.com/foodtrend/foodtrend/platforms/payments"
)

// Stripe caps webhook payloads well under this.
const maxWebhookBody = 1 << 16

// A job that keeps failing gets alerted on and dropped.
const maxJobAttempts = 10

const (
	sourceStripe    = "stripe"
	sourceHighLevel = "highlevel"
)

// webhookJob is one accepted webhook event, parked in bolt until the
// worker gets to it. The bucket is the durable queue: a crash between
// accept and process replays it on the next drain.
type webhookJob struct {
	Id     string `json:"id"`
	Source string `json:"source"`
	Type   string `json:"type"`

	Payload json.RawMessage `json:"payload"`

	Received  time.Time `json:"received"`
	Attempts  int       `json:"attempts,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

func stripeWebhook(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(400, misc.StatusErr("error reading payload"))
			return
		}

		var event stripe.Event
		if secret := srv.Cfg.Stripe.WebhookSecret; secret != "" {
			if event, err = webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), secret); err != nil {
				log.Println("Stripe signature rejected", err)
				c.JSON(400, misc.StatusErr("invalid signature"))
				return
			}
		} else if err = json.Unmarshal(payload, &event); err != nil {
			c.JSON(400, misc.StatusErr("error unmarshalling event"))
			return
		}

		if event.ID == "" || event.Data == nil {
			c.JSON(400, misc.StatusErr("malformed event"))
			return
		}

		srv.acceptWebhook(c, &webhookJob{
			Id:       event.ID,
			Source:   sourceStripe,
			Type:     string(event.Type),
			Payload:  event.Data.Raw,
			Received: time.Now(),
		})
	}
}

type highLevelEvent struct {
	Id   string `json:"id"`
	Type string `json:"type"`

	FeedbackId string `json:"feedback_id"`

	ContactId     string `json:"contact_id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	FollowerCount int64  `json:"follower_count"`
}

func highLevelWebhook(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(400, misc.StatusErr("error reading payload"))
			return
		}

		if secret := srv.Cfg.HighLevel.WebhookSecret; secret != "" {
			if !highlevel.VerifySignature(c.Request.Header, payload, secret) {
				log.Println("HighLevel signature rejected")
				c.JSON(400, misc.StatusErr("invalid signature"))
				return
			}
		}

		var ev highLevelEvent
		if err := json.Unmarshal(payload, &ev); err != nil || ev.Type == "" {
			c.JSON(400, misc.StatusErr("error unmarshalling event"))
			return
		}

		// GHL doesn't always carry an event id; the body hash keeps
		// replays deduplicated either way.
		id := ev.Id
		if id == "" {
			sum := sha256.Sum256(payload)
			id = hex.EncodeToString(sum[:16])
		}

		srv.acceptWebhook(c, &webhookJob{
			Id:       id,
			Source:   sourceHighLevel,
			Type:     ev.Type,
			Payload:  payload,
			Received: time.Now(),
		})
	}
}

// acceptWebhook runs the idempotency check and parks the job. The
// processed_events mark and the queue write share one transaction, so
// an event is either fully accepted or not at all.
func (srv *Server) acceptWebhook(c *gin.Context, job *webhookJob) {
	var duplicate bool
	if err := srv.db.Update(func(tx *bolt.Tx) error {
		key := job.Source + ":" + job.Id
		if misc.GetBucket(tx, srv.Cfg.Bucket.Event).Get([]byte(key)) != nil {
			duplicate = true
			return nil
		}
		if err := misc.PutBucketBytes(tx, srv.Cfg.Bucket.Event, key, []byte(job.Received.Format(time.RFC3339))); err != nil {
			return err
		}
		return misc.PutTxJson(tx, srv.Cfg.Bucket.Job, key, job)
	}); err != nil {
		srv.Alert("Error accepting "+job.Source+" webhook "+job.Id, err)
		c.JSON(500, misc.StatusErr("error accepting event"))
		return
	}

	if duplicate {
		c.JSON(200, gin.H{"received": true, "duplicate": true})
		return
	}

	select {
	case srv.jobKick <- struct{}{}:
	default:
	}

	c.JSON(200, gin.H{"received": true})
}

// drainJobs works through the queue. Jobs that fail stay parked with
// their attempt count bumped; the next drain retries them.
func (srv *Server) drainJobs() {
	srv.jobMu.Lock()
	defer srv.jobMu.Unlock()

	var (
		keys []string
		jobs []*webhookJob
	)
	if err := srv.db.View(func(tx *bolt.Tx) error {
		return misc.GetBucket(tx, srv.Cfg.Bucket.Job).ForEach(func(k, v []byte) error {
			var job webhookJob
			if err := json.Unmarshal(v, &job); err != nil {
				log.Println("error when unmarshalling job", string(k))
				return nil
			}
			keys = append(keys, string(k))
			jobs = append(jobs, &job)
			return nil
		})
	}); err != nil {
		srv.Alert("Error reading job queue", err)
		return
	}

	for i, job := range jobs {
		err := srv.processJob(job)
		if err == nil {
			srv.removeJob(keys[i])
			continue
		}

		job.Attempts++
		job.LastError = err.Error()
		log.Printf("Job %s failed (attempt %d): %v", keys[i], job.Attempts, err)

		if job.Attempts >= maxJobAttempts {
			srv.Alert(fmt.Sprintf("Dropping %s job %s after %d attempts", job.Source, job.Id, job.Attempts), err)
			srv.removeJob(keys[i])
			continue
		}
		if err := srv.db.Update(func(tx *bolt.Tx) error {
			return misc.PutTxJson(tx, srv.Cfg.Bucket.Job, keys[i], job)
		}); err != nil {
			log.Println("Error saving job", keys[i], err)
		}
	}
}

func (srv *Server) removeJob(key string) {
	if err := srv.db.Update(func(tx *bolt.Tx) error {
		return misc.DelBucketBytes(tx, srv.Cfg.Bucket.Job, key)
	}); err != nil {
		log.Println("Error removing job", key, err)
	}
}

func (srv *Server) processJob(job *webhookJob) error {
	switch job.Source {
	case sourceStripe:
		return srv.processStripeJob(job)
	case sourceHighLevel:
		return srv.processHighLevelJob(job)
	}
	return fmt.Errorf("unknown job source %q", job.Source)
}

func (srv *Server) processStripeJob(job *webhookJob) error {
	switch job.Type {
	case "invoice.payment_succeeded", "invoice.paid":
		var inv stripe.Invoice
		if err := json.Unmarshal(job.Payload, &inv); err != nil {
			return err
		}
		return srv.handlePaymentSucceeded(&inv, job.Received)

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(job.Payload, &inv); err != nil {
			return err
		}
		return srv.handlePaymentFailed(&inv)

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(job.Payload, &sub); err != nil {
			return err
		}
		return srv.handleSubscriptionUpdated(&sub)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(job.Payload, &sub); err != nil {
			return err
		}
		return srv.handleSubscriptionDeleted(&sub, job.Received)
	}

	// Stripe sends plenty of event types we don't subscribe to
	log.Println("Ignoring stripe event", job.Type)
	return nil
}

func (srv *Server) handlePaymentSucceeded(inv *stripe.Invoice, now time.Time) error {
	if inv.Customer == nil {
		return errors.New("invoice missing customer")
	}

	var (
		r     *common.Restaurant
		first bool
	)
	if err := srv.db.Update(func(tx *bolt.Tx) error {
		if r = common.GetRestaurantByCustomerTx(tx, srv.Cfg, inv.Customer.ID); r == nil {
			return fmt.Errorf("no restaurant for stripe customer %s", inv.Customer.ID)
		}

		ts := now
		if first = r.FirstPaymentDate == nil; first {
			r.FirstPaymentDate = &ts
		}
		r.LastPaymentDate = &ts
		r.Status = common.RestaurantActive
		r.PaymentStatus = "paid"
		if inv.Subscription != nil {
			r.StripeSubscriptionId = inv.Subscription.ID
		}
		return common.SaveRestaurant(tx, r, srv.Cfg)
	}); err != nil {
		return err
	}

	if first {
		log.Println("First payment landed for restaurant", r.Id)
		if _, err := srv.Commission.CreateSchedule(r); err != nil {
			return err
		}
		if err := srv.Referral.RecordConversion(r, now); err != nil {
			log.Println("Error recording conversion for", r.Id, err)
		}
		srv.bumpReferralCounts(r.ReferredByInfluencerId, +1, 0)
	} else {
		if _, err := srv.Commission.ProcessDue(r, now); err != nil {
			return err
		}
	}

	srv.Audit("payment.succeeded", r.Id)
	return nil
}

func (srv *Server) handlePaymentFailed(inv *stripe.Invoice) error {
	if inv.Customer == nil {
		return errors.New("invoice missing customer")
	}

	var r *common.Restaurant
	if err := srv.db.Update(func(tx *bolt.Tx) error {
		if r = common.GetRestaurantByCustomerTx(tx, srv.Cfg, inv.Customer.ID); r == nil {
			return fmt.Errorf("no restaurant for stripe customer %s", inv.Customer.ID)
		}
		r.PaymentStatus = "failed"
		return common.SaveRestaurant(tx, r, srv.Cfg)
	}); err != nil {
		return err
	}

	srv.Alert("Payment failed for restaurant "+r.Id, nil)
	return nil
}

func (srv *Server) handleSubscriptionUpdated(sub *stripe.Subscription) error {
	if sub.Customer == nil {
		return errors.New("subscription missing customer")
	}

	return srv.db.Update(func(tx *bolt.Tx) error {
		r := common.GetRestaurantByCustomerTx(tx, srv.Cfg, sub.Customer.ID)
		if r == nil {
			return fmt.Errorf("no restaurant for stripe customer %s", sub.Customer.ID)
		}

		r.StripeSubscriptionId = sub.ID
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			if tier := payments.TierForPriceID(srv.Cfg, sub.Items.Data[0].Price.ID); tier != "" && tier != r.Tier {
				log.Printf("Restaurant %s moved from %s to %s", r.Id, r.Tier, tier)
				r.Tier = tier
				r.MonthlyPrice = common.TierPrices[tier]
			}
		}
		return common.SaveRestaurant(tx, r, srv.Cfg)
	})
}

func (srv *Server) handleSubscriptionDeleted(sub *stripe.Subscription, now time.Time) error {
	if sub.Customer == nil {
		return errors.New("subscription missing customer")
	}

	var (
		r       *common.Restaurant
		already bool
	)
	if err := srv.db.Update(func(tx *bolt.Tx) error {
		if r = common.GetRestaurantByCustomerTx(tx, srv.Cfg, sub.Customer.ID); r == nil {
			return fmt.Errorf("no restaurant for stripe customer %s", sub.Customer.ID)
		}
		if already = r.Status == common.RestaurantCancelled; already {
			return nil
		}

		r.Status = common.RestaurantCancelled
		ts := now
		r.CancellationDate = &ts
		return common.SaveRestaurant(tx, r, srv.Cfg)
	}); err != nil {
		return err
	}
	if already {
		return nil
	}

	if _, err := srv.Commission.CancelPending(r.Id); err != nil {
		return err
	}
	srv.bumpReferralCounts(r.ReferredByInfluencerId, -1, +1)

	srv.Audit("subscription.cancelled", r.Id)
	return nil
}

func (srv *Server) bumpReferralCounts(influencerId string, active, cancelled int) {
	if influencerId == "" {
		return
	}
	if err := srv.db.Update(func(tx *bolt.Tx) error {
		inf := common.GetInfluencerTx(tx, srv.Cfg, influencerId)
		if inf == nil {
			return nil
		}
		inf.ActiveReferrals += active
		inf.CancelledReferrals += cancelled
		if inf.ActiveReferrals < 0 {
			inf.ActiveReferrals = 0
		}
		return common.SaveInfluencer(tx, inf, srv.Cfg)
	}); err != nil {
		log.Println("Error updating referral counts for", influencerId, err)
	}
}

func (srv *Server) processHighLevelJob(job *webhookJob) error {
	var ev highLevelEvent
	if err := json.Unmarshal(job.Payload, &ev); err != nil {
		return err
	}

	switch ev.Type {
	case "review.posted":
		// The CRM workflow confirms the diner actually posted on Google
		if ev.FeedbackId == "" {
			return errors.New("review.posted missing feedback_id")
		}
		_, err := srv.Review.MarkGooglePosted(ev.FeedbackId, job.Received)
		return err

	case "influencer.qualified":
		inf := &common.Influencer{
			Name:          ev.Name,
			Email:         ev.Email,
			Phone:         ev.Phone,
			FollowerCount: ev.FollowerCount,
			GHLContactId:  ev.ContactId,
		}
		err := srv.Referral.CreateInfluencer(inf)
		if err == referral.ErrEmailExists {
			// CRM resending a contact we already have
			return nil
		}
		if err == nil {
			srv.Audit("influencer.created", inf.Id)
		}
		return err
	}

	log.Println("Ignoring highlevel event", ev.Type)
	return nil
}
