// Package monitor enforces the 48-hour content window for creator
// visits and runs the strike ladder for influencers who miss it.
package monitor

import (
	"fmt"
	"log"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/foodtrend/foodtrend/config"
	"github.com/foodtrend/foodtrend/internal/common"
	"github.com/foodtrend/foodtrend/internal/templates"
)

// After the warning lands, the influencer gets one grace period before
// the visit fails and a strike is issued.
const (
	GracePeriod = 24 * time.Hour

	SuspensionDays = 7
	MaxStrikes     = 3
)

const (
	StrikeMissedDeadline = "missed_deadline"

	SeverityWarning    = "warning"
	SeveritySuspension = "suspension"
	SeverityRemoval    = "removal"
)

type Monitor struct {
	db  *bolt.DB
	cfg *config.Config
}

func New(db *bolt.DB, cfg *config.Config) *Monitor {
	return &Monitor{db: db, cfg: cfg}
}

// CheckDeadlines flags every completed visit whose posting deadline has
// passed without content on both platforms. Visits that did get their
// content are closed out as compliant. Errors on one visit never stop
// the sweep.
func (m *Monitor) CheckDeadlines(now time.Time) (flagged int, err error) {
	err = m.db.Update(func(tx *bolt.Tx) error {
		return common.ForEachVisit(tx, m.cfg, func(cv *common.CreatorVisit) error {
			if cv.Status != common.VisitCompleted {
				return nil
			}

			if cv.FullyPosted() {
				cv.Status = common.VisitCompliant
				if err := common.SaveVisit(tx, cv, m.cfg); err != nil {
					log.Println("Error closing out visit", cv.Id, err)
				}
				return nil
			}

			if now.Before(cv.PostingDeadline) {
				return nil
			}

			// Suspended or removed influencers are out of the ladder;
			// their open visits wait until reinstatement.
			inf := common.GetInfluencerTx(tx, m.cfg, cv.InfluencerId)
			if inf == nil || !inf.IsActive() {
				return nil
			}

			cv.Status = common.VisitFlagged
			ts := now
			cv.FlaggedAt = &ts
			if err := common.SaveVisit(tx, cv, m.cfg); err != nil {
				log.Println("Error flagging visit", cv.Id, err)
				return nil
			}

			inf.FlaggedVisits++
			if err := common.SaveInfluencer(tx, inf, m.cfg); err != nil {
				log.Println("Error saving influencer", inf.Id, err)
			}

			flagged++
			return nil
		})
	})
	return
}

// SendWarnings mails every flagged influencer their final deadline. A
// visit only advances to warning_sent when the email actually goes out,
// so delivery failures are retried on the next sweep.
func (m *Monitor) SendWarnings(now time.Time) (sent int, err error) {
	err = m.db.Update(func(tx *bolt.Tx) error {
		return common.ForEachVisit(tx, m.cfg, func(cv *common.CreatorVisit) error {
			if cv.Status != common.VisitFlagged {
				return nil
			}

			inf := common.GetInfluencerTx(tx, m.cfg, cv.InfluencerId)
			if inf == nil {
				log.Println("Missing influencer for flagged visit", cv.Id)
				return nil
			}
			if !inf.IsActive() {
				return nil
			}

			if err := m.sendWarningEmail(tx, inf, cv, now); err != nil {
				log.Println("Error mailing warning for visit", cv.Id, err)
				return nil
			}

			cv.Status = common.VisitWarningSent
			ts := now
			cv.WarningSentAt = &ts
			if err := common.SaveVisit(tx, cv, m.cfg); err != nil {
				log.Println("Error saving visit", cv.Id, err)
				return nil
			}

			sent++
			return nil
		})
	})
	return
}

// CheckGracePeriods resolves warned visits once the grace period runs
// out: compliant if the content showed up, failed plus a strike if it
// didn't.
func (m *Monitor) CheckGracePeriods(now time.Time) (failed int, err error) {
	err = m.db.Update(func(tx *bolt.Tx) error {
		return common.ForEachVisit(tx, m.cfg, func(cv *common.CreatorVisit) error {
			if cv.Status != common.VisitWarningSent || cv.WarningSentAt == nil {
				return nil
			}

			if cv.FullyPosted() {
				cv.Status = common.VisitCompliant
				return common.SaveVisit(tx, cv, m.cfg)
			}

			if now.Before(cv.WarningSentAt.Add(GracePeriod)) {
				return nil
			}

			cv.Status = common.VisitFailed
			if err := common.SaveVisit(tx, cv, m.cfg); err != nil {
				log.Println("Error failing visit", cv.Id, err)
				return nil
			}

			if err := m.issueStrike(tx, cv, now); err != nil {
				log.Println("Error issuing strike for visit", cv.Id, err)
				return nil
			}

			failed++
			return nil
		})
	})
	return
}

// issueStrike runs the ladder: first strike warns, second suspends for
// 7 days, third removes the influencer and cancels their outstanding
// commissions.
func (m *Monitor) issueStrike(tx *bolt.Tx, cv *common.CreatorVisit, now time.Time) error {
	inf := common.GetInfluencerTx(tx, m.cfg, cv.InfluencerId)
	if inf == nil {
		return fmt.Errorf("missing influencer %s", cv.InfluencerId)
	}

	inf.StrikeCount++
	inf.FailedVisits++

	st := &common.PerformanceStrike{
		Id:           uuid.NewString(),
		InfluencerId: inf.Id,
		VisitId:      cv.Id,
		RestaurantId: cv.RestaurantId,
		StrikeType:   StrikeMissedDeadline,
		Reason:       "Content not posted within the required window",
		IssuedAt:     now,
	}

	switch {
	case inf.StrikeCount == 1:
		st.Severity = SeverityWarning
		m.sendStrikeEmail(inf)
	case inf.StrikeCount == 2:
		st.Severity = SeveritySuspension
		st.SuspensionApplied = true
		st.SuspensionDays = SuspensionDays
		end := now.AddDate(0, 0, SuspensionDays)
		st.SuspensionEndDate = &end

		inf.Suspended = true
		inf.SuspensionEndDate = &end
		inf.Status = common.InfluencerSuspended
		m.sendSuspensionEmail(inf, end)
	default:
		st.Severity = SeverityRemoval
		st.RemovedFromPlatform = true

		inf.Removed = true
		inf.RemovedReason = "Three performance strikes"
		ts := now
		inf.RemovedAt = &ts
		inf.Status = common.InfluencerRemoved

		if n, err := m.cancelCommissionsTx(tx, inf.Id); err != nil {
			log.Println("Error cancelling commissions for removed influencer", inf.Id, err)
		} else if n > 0 {
			log.Printf("Cancelled %d commissions for removed influencer %s", n, inf.Id)
		}
		m.sendRemovalEmail(inf, now)
	}

	log.Printf("Strike %d (%s) issued to influencer %s", inf.StrikeCount, st.Severity, inf.Id)

	if err := common.SaveStrike(tx, st, m.cfg); err != nil {
		return err
	}
	return common.SaveInfluencer(tx, inf, m.cfg)
}

// cancelCommissionsTx mirrors the commission engine's removal path so
// the monitor stays independent of it; they share only the data store.
func (m *Monitor) cancelCommissionsTx(tx *bolt.Tx, influencerId string) (cancelled int, err error) {
	err = common.ForEachCommission(tx, m.cfg, func(cm *common.Commission) error {
		if cm.InfluencerId != influencerId || !cm.IsOutstanding() {
			return nil
		}
		cm.Status = common.CommissionCancelled
		cm.Notes = "Influencer removed from platform for performance violations"
		cancelled++
		return common.SaveCommission(tx, cm, m.cfg)
	})
	return
}

// CheckSuspensions reinstates influencers whose suspensions have run
// their course. Strike counts persist through reinstatement.
func (m *Monitor) CheckSuspensions(now time.Time) (reinstated int, err error) {
	err = m.db.Update(func(tx *bolt.Tx) error {
		return common.ForEachInfluencer(tx, m.cfg, func(inf *common.Influencer) error {
			if !inf.Suspended || inf.Removed || inf.SuspensionEndDate == nil || now.Before(*inf.SuspensionEndDate) {
				return nil
			}

			inf.Suspended = false
			inf.SuspensionEndDate = nil
			inf.Status = common.InfluencerActive
			if err := common.SaveInfluencer(tx, inf, m.cfg); err != nil {
				log.Println("Error reinstating influencer", inf.Id, err)
				return nil
			}

			m.sendReinstatementEmail(inf)
			reinstated++
			return nil
		})
	})
	return
}

// SendDailySummaries mails each active influencer with open visits a
// digest of what's still owed.
func (m *Monitor) SendDailySummaries() (sent int, err error) {
	type counts struct{ pending, flagged int }
	open := map[string]*counts{}

	if err = m.db.View(func(tx *bolt.Tx) error {
		return common.ForEachVisit(tx, m.cfg, func(cv *common.CreatorVisit) error {
			c := open[cv.InfluencerId]
			if c == nil {
				c = &counts{}
				open[cv.InfluencerId] = c
			}
			switch cv.Status {
			case common.VisitCompleted:
				c.pending++
			case common.VisitFlagged, common.VisitWarningSent:
				c.flagged++
			}
			return nil
		})
	}); err != nil {
		return
	}

	for infId, c := range open {
		if c.pending == 0 && c.flagged == 0 {
			continue
		}
		inf := common.GetInfluencer(infId, m.db, m.cfg)
		if inf == nil || !inf.IsActive() {
			continue
		}

		email := templates.DailySummaryEmail.Render(map[string]interface{}{
			"Name":          inf.Name,
			"PendingVisits": c.pending,
			"FlaggedVisits": c.flagged,
			"DashboardURL":  m.cfg.DashboardURL,
		})
		if m.deliver(email, "Your FoodTrend content summary", inf) {
			sent++
		}
	}
	return
}

func nextConsequence(strikeCount int) string {
	switch strikeCount {
	case 0:
		return "a formal warning"
	case 1:
		return fmt.Sprintf("a %d-day suspension", SuspensionDays)
	default:
		return "removal from the platform"
	}
}

func (m *Monitor) sendWarningEmail(tx *bolt.Tx, inf *common.Influencer, cv *common.CreatorVisit, now time.Time) error {
	r := common.GetRestaurantTx(tx, m.cfg, cv.RestaurantId)
	restName := cv.RestaurantId
	if r != nil {
		restName = r.Name
	}

	email := templates.WarningEmail.Render(map[string]interface{}{
		"Name":             inf.Name,
		"Restaurant":       restName,
		"VisitDate":        common.GetDateFromTime(cv.VisitDate),
		"OriginalDeadline": cv.PostingDeadline.Format(time.RFC1123),
		"FinalDeadline":    now.Add(GracePeriod).Format(time.RFC1123),
		"TikTokMissing":    !cv.TikTokPosted,
		"InstagramMissing": !cv.InstagramPosted,
		"StrikeCount":      inf.StrikeCount,
		"NextConsequence":  nextConsequence(inf.StrikeCount),
		"SubmitURL":        m.cfg.DashboardURL + "/visits/" + cv.Id,
	})
	if !m.deliver(email, "Action needed: your content deadline has passed", inf) {
		return fmt.Errorf("warning email rejected for %s", inf.Email)
	}
	return nil
}

func (m *Monitor) sendStrikeEmail(inf *common.Influencer) {
	email := templates.StrikeEmail.Render(map[string]interface{}{
		"Name":            inf.Name,
		"StrikeNumber":    inf.StrikeCount,
		"NextConsequence": "One more missed deadline means " + nextConsequence(inf.StrikeCount) + ".",
		"DashboardURL":    m.cfg.DashboardURL,
	})
	m.deliver(email, "A strike has been issued on your account", inf)
}

func (m *Monitor) sendSuspensionEmail(inf *common.Influencer, end time.Time) {
	email := templates.SuspensionEmail.Render(map[string]interface{}{
		"Name":          inf.Name,
		"Days":          SuspensionDays,
		"Reason":        "second missed posting deadline",
		"SuspensionEnd": common.GetDateFromTime(end),
	})
	m.deliver(email, "Your account has been suspended", inf)
}

func (m *Monitor) sendRemovalEmail(inf *common.Influencer, now time.Time) {
	email := templates.RemovalEmail.Render(map[string]interface{}{
		"Name":           inf.Name,
		"Reason":         inf.RemovedReason,
		"AppealDeadline": common.GetDateFromTime(now.AddDate(0, 0, 14)),
	})
	m.deliver(email, "Your account has been removed", inf)
}

func (m *Monitor) sendReinstatementEmail(inf *common.Influencer) {
	email := templates.ReinstatementEmail.Render(map[string]interface{}{
		"Name":        inf.Name,
		"StrikeCount": inf.StrikeCount,
	})
	m.deliver(email, "Welcome back to FoodTrend", inf)
}

// deliver reports whether the email went out. In sandbox mode nothing
// is sent and delivery is treated as successful.
func (m *Monitor) deliver(html, subject string, inf *common.Influencer) bool {
	if m.cfg.Sandbox {
		return true
	}
	mc := m.cfg.ReplyMailClient()
	if mc == nil {
		log.Println("No mail client configured, dropping email to", inf.Email)
		return false
	}
	resp, err := mc.SendMessage(html, subject, inf.Email, inf.Name, []string{"compliance"})
	if err != nil || len(resp) != 1 || resp[0].RejectReason != "" {
		log.Println("Error mailing influencer", inf.Id, err)
		return false
	}
	return true
}
