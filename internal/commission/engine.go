// Package commission creates and advances referral payout schedules
// tied to a restaurant's subscription lifecycle.
package commission

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/foodtrend/foodtrend/config"
	"github.com/foodtrend/foodtrend/internal/common"
	"github.com/foodtrend/foodtrend/internal/templates"
)

// Commission structure: $250/month for months 1-6, then $100/month
// ongoing. 18 months are scheduled upfront and the tail is refilled
// in 12-month increments as the restaurant approaches it.
const (
	EarlyRate           = 250.00
	OngoingRate         = 100.00
	EarlyMonths         = 6
	ScheduleMonthsAhead = 18
	ExtendThreshold     = 6
	ExtendByMonths      = 12
)

var (
	ErrNoFirstPayment = errors.New("cannot create schedule without first payment date")
)

func RateForMonth(month int) float64 {
	if month <= EarlyMonths {
		return EarlyRate
	}
	return OngoingRate
}

type Engine struct {
	db  *bolt.DB
	cfg *config.Config
}

func New(db *bolt.DB, cfg *config.Config) *Engine {
	return &Engine{db: db, cfg: cfg}
}

// CreateSchedule generates the upfront payout schedule on a referred
// restaurant's first payment. A restaurant without a referrer is a
// logged no-op; exactly one schedule is ever created per restaurant.
func (e *Engine) CreateSchedule(r *common.Restaurant) ([]*common.Commission, error) {
	if r.ReferredByInfluencerId == "" {
		log.Println("No referrer - skipping commission schedule", r.Id)
		return nil, nil
	}
	if r.FirstPaymentDate == nil {
		return nil, ErrNoFirstPayment
	}

	if existing := common.GetCommissionsByRestaurant(r.Id, e.db, e.cfg); len(existing) > 0 {
		log.Println("Schedule already exists for restaurant", r.Id)
		return nil, nil
	}

	start := *r.FirstPaymentDate
	rows := make([]*common.Commission, 0, ScheduleMonthsAhead)
	for month := 1; month <= ScheduleMonthsAhead; month++ {
		rows = append(rows, &common.Commission{
			Id:           uuid.NewString(),
			InfluencerId: r.ReferredByInfluencerId,
			RestaurantId: r.Id,
			MonthNumber:  month,
			Amount:       RateForMonth(month),
			DueDate:      common.AddMonths(start, month),
			Status:       common.CommissionPending,
		})
	}

	if err := e.db.Update(func(tx *bolt.Tx) error {
		for _, cm := range rows {
			if err := common.SaveCommission(tx, cm, e.cfg); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	log.Printf("Created %d commission records for restaurant %s", len(rows), r.Id)
	e.notifyNewReferral(r)

	return rows, nil
}

// ProcessDue flips every due pending row to ready_for_payout and
// credits the influencer's earnings. Re-running moves nothing, so
// webhook replays can't double-credit.
func (e *Engine) ProcessDue(r *common.Restaurant, now time.Time) (int, error) {
	if r.ReferredByInfluencerId == "" {
		return 0, nil
	}

	var processed int
	if err := e.db.Update(func(tx *bolt.Tx) error {
		var due []*common.Commission
		if err := common.ForEachCommission(tx, e.cfg, func(cm *common.Commission) error {
			if cm.RestaurantId == r.Id && cm.Status == common.CommissionPending && !cm.DueDate.After(now) {
				due = append(due, cm)
			}
			return nil
		}); err != nil {
			return err
		}

		if len(due) == 0 {
			return nil
		}

		inf := common.GetInfluencerTx(tx, e.cfg, r.ReferredByInfluencerId)
		if inf == nil {
			return fmt.Errorf("missing influencer %s for restaurant %s", r.ReferredByInfluencerId, r.Id)
		}

		for _, cm := range due {
			cm.Status = common.CommissionReady
			ts := now
			cm.ProcessedDate = &ts
			if err := common.SaveCommission(tx, cm, e.cfg); err != nil {
				return err
			}

			inf.PendingEarnings += cm.Amount
			inf.TotalEarnings += cm.Amount
			processed++
		}

		return common.SaveInfluencer(tx, inf, e.cfg)
	}); err != nil {
		return processed, err
	}

	if processed > 0 {
		log.Printf("Processed %d commissions for restaurant %s", processed, r.Id)
	}

	if _, err := e.ExtendIfNeeded(r, now); err != nil {
		// The refill failing shouldn't fail the payout run; the next
		// payment will retry it.
		log.Println("Error extending schedule for", r.Id, err)
	}

	return processed, nil
}

// ExtendIfNeeded appends 12 more months at the ongoing rate once the
// restaurant is within 6 months of its last scheduled payout. This is
// the lazy-refill policy for an open-ended subscription, not an error.
func (e *Engine) ExtendIfNeeded(r *common.Restaurant, now time.Time) (int, error) {
	if r.ReferredByInfluencerId == "" || r.FirstPaymentDate == nil {
		return 0, nil
	}

	var lastMonth int
	rows := common.GetCommissionsByRestaurant(r.Id, e.db, e.cfg)
	if len(rows) == 0 {
		return 0, nil
	}
	for _, cm := range rows {
		if cm.MonthNumber > lastMonth {
			lastMonth = cm.MonthNumber
		}
	}

	if lastMonth-r.CurrentMonth(now) >= ExtendThreshold {
		return 0, nil
	}

	log.Println("Extending commission schedule for restaurant", r.Id)

	start := *r.FirstPaymentDate
	added := 0
	if err := e.db.Update(func(tx *bolt.Tx) error {
		for month := lastMonth + 1; month <= lastMonth+ExtendByMonths; month++ {
			cm := &common.Commission{
				Id:           uuid.NewString(),
				InfluencerId: r.ReferredByInfluencerId,
				RestaurantId: r.Id,
				MonthNumber:  month,
				Amount:       OngoingRate,
				DueDate:      common.AddMonths(start, month),
				Status:       common.CommissionPending,
			}
			if err := common.SaveCommission(tx, cm, e.cfg); err != nil {
				return err
			}
			added++
		}
		return nil
	}); err != nil {
		return added, err
	}

	return added, nil
}

// CancelPending bulk-cancels a restaurant's outstanding rows on
// subscription cancellation. Paid rows are never touched; there is no
// clawback.
func (e *Engine) CancelPending(restaurantId string) (int, error) {
	log.Println("Cancelling pending commissions for restaurant", restaurantId)
	return e.cancelWhere(func(cm *common.Commission) bool {
		return cm.RestaurantId == restaurantId
	}, "Restaurant subscription cancelled")
}

// CancelForInfluencer cancels every outstanding row an influencer has,
// across all restaurants. Used when an influencer is removed from the
// platform.
func (e *Engine) CancelForInfluencer(influencerId string) (int, error) {
	log.Println("Cancelling pending commissions for influencer", influencerId)
	return e.cancelWhere(func(cm *common.Commission) bool {
		return cm.InfluencerId == influencerId
	}, "Influencer removed from platform for performance violations")
}

func (e *Engine) cancelWhere(match func(cm *common.Commission) bool, note string) (int, error) {
	var cancelled int
	err := e.db.Update(func(tx *bolt.Tx) error {
		return common.ForEachCommission(tx, e.cfg, func(cm *common.Commission) error {
			if !match(cm) || !cm.IsOutstanding() {
				return nil
			}
			cm.Status = common.CommissionCancelled
			cm.Notes = note
			cancelled++
			return common.SaveCommission(tx, cm, e.cfg)
		})
	})
	return cancelled, err
}

type Summary struct {
	TotalPending     float64 `json:"total_pending"`
	TotalReady       float64 `json:"total_ready"`
	TotalPaid        float64 `json:"total_paid"`
	MonthlyRecurring float64 `json:"monthly_recurring"`
	LifetimeValue    float64 `json:"lifetime_value"`
}

// SummaryForInfluencer rolls up an influencer's commissions for their
// dashboard.
func (e *Engine) SummaryForInfluencer(influencerId string, now time.Time) *Summary {
	sum := &Summary{
		// Estimate over an average 24-month retention: the early
		// months plus 18 more at the ongoing rate.
		LifetimeValue: EarlyRate*EarlyMonths + OngoingRate*18,
	}

	for _, cm := range common.GetCommissionsByInfluencer(influencerId, e.db, e.cfg) {
		switch cm.Status {
		case common.CommissionPending:
			sum.TotalPending += cm.Amount
		case common.CommissionReady:
			sum.TotalReady += cm.Amount
		case common.CommissionPaid:
			sum.TotalPaid += cm.Amount
		}
	}

	e.db.View(func(tx *bolt.Tx) error {
		return common.ForEachRestaurant(tx, e.cfg, func(r *common.Restaurant) error {
			if r.ReferredByInfluencerId == influencerId && r.Status == common.RestaurantActive {
				sum.MonthlyRecurring += RateForMonth(r.CurrentMonth(now))
			}
			return nil
		})
	})

	return sum
}

func (e *Engine) notifyNewReferral(r *common.Restaurant) {
	inf := common.GetInfluencer(r.ReferredByInfluencerId, e.db, e.cfg)
	if inf == nil {
		log.Println("Missing influencer for new referral notify", r.ReferredByInfluencerId)
		return
	}

	if mc := e.cfg.ReplyMailClient(); mc != nil && !e.cfg.Sandbox {
		email := templates.NewReferralEmail.Render(map[string]interface{}{
			"Name":         inf.Name,
			"Restaurant":   r.Name,
			"EarlyRate":    EarlyRate,
			"EarlyMonths":  EarlyMonths,
			"OngoingRate":  OngoingRate,
			"DashboardURL": e.cfg.DashboardURL,
		})
		resp, err := mc.SendMessage(email, "You just earned a new restaurant referral!", inf.Email, inf.Name, []string{"referral"})
		if err != nil || len(resp) != 1 || resp[0].RejectReason != "" {
			log.Println("Failed to mail influencer about new referral", inf.Id, err)
		}
	}
}
