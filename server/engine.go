package server

import (
	"log"
	"time"
)

// startEngine kicks off the background sweeps. Each sweep body takes an
// explicit time so tests can drive them directly; the tickers only
// supply the clock.
func (srv *Server) startEngine() {
	// Compliance: flag blown deadlines, warn, then resolve grace periods
	deadlineTicker := time.NewTicker(srv.Cfg.DeadlineSweep * time.Hour)
	go func() {
		for range deadlineTicker.C {
			srv.RunComplianceSweep(time.Now())
		}
	}()

	// Refresh post engagement numbers
	metricsTicker := time.NewTicker(srv.Cfg.MetricsUpdate * time.Hour)
	go func() {
		for range metricsTicker.C {
			if err := srv.Monitor.UpdateMetrics(); err != nil {
				srv.Alert("Error updating content metrics", err)
			}
		}
	}()

	// Daily jobs fire once when the configured hour comes around
	var lastDaily string
	dailyTicker := time.NewTicker(30 * time.Minute)
	go func() {
		for range dailyTicker.C {
			now := time.Now().UTC()
			day := now.Format("2006-01-02")
			if now.Hour() != srv.Cfg.DailySweepHour || day == lastDaily {
				continue
			}
			lastDaily = day
			srv.RunDailySweep(now)
		}
	}()

	// Webhook queue: drain every minute, or sooner when kicked
	go func() {
		drainTicker := time.NewTicker(time.Minute)
		for {
			select {
			case <-drainTicker.C:
			case <-srv.jobKick:
			}
			srv.drainJobs()
		}
	}()
}

// RunComplianceSweep runs the full deadline pipeline for one tick.
func (srv *Server) RunComplianceSweep(now time.Time) {
	if flagged, err := srv.Monitor.CheckDeadlines(now); err != nil {
		srv.Alert("Error checking posting deadlines", err)
	} else if flagged > 0 {
		log.Println("Flagged", flagged, "overdue visits")
	}

	if _, err := srv.Monitor.SendWarnings(now); err != nil {
		srv.Alert("Error sending deadline warnings", err)
	}

	if failed, err := srv.Monitor.CheckGracePeriods(now); err != nil {
		srv.Alert("Error resolving grace periods", err)
	} else if failed > 0 {
		log.Println(failed, "visits failed their grace period")
	}
}

// RunDailySweep handles the once-a-day work: suspension expirations and
// summary emails.
func (srv *Server) RunDailySweep(now time.Time) {
	if reinstated, err := srv.Monitor.CheckSuspensions(now); err != nil {
		srv.Alert("Error checking suspensions", err)
	} else if reinstated > 0 {
		log.Println("Reinstated", reinstated, "influencers")
	}

	if _, err := srv.Monitor.SendDailySummaries(); err != nil {
		srv.Alert("Error sending daily summaries", err)
	}
}
