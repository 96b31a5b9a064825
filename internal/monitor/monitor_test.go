package monitor

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

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()

	dir, err := os.MkdirTemp("", "monitor-test")
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

func seedVisit(t *testing.T, m *Monitor, visitId, infId string, visitDate time.Time) *common.CreatorVisit {
	t.Helper()

	cv := common.NewVisit(visitId, infId, "rest-1", visitDate)
	inf := &common.Influencer{Id: infId, Name: "Casey", Email: "casey@test.com", Status: common.InfluencerActive}

	if err := m.db.Update(func(tx *bolt.Tx) error {
		if err := common.SaveVisit(tx, cv, m.cfg); err != nil {
			return err
		}
		if existing := common.GetInfluencerTx(tx, m.cfg, infId); existing != nil {
			return nil
		}
		return common.SaveInfluencer(tx, inf, m.cfg)
	}); err != nil {
		t.Fatal(err)
	}
	return cv
}

func saveVisit(t *testing.T, m *Monitor, cv *common.CreatorVisit) {
	t.Helper()
	if err := m.db.Update(func(tx *bolt.Tx) error {
		return common.SaveVisit(tx, cv, m.cfg)
	}); err != nil {
		t.Fatal(err)
	}
}

// Runs the flag -> warn -> fail pipeline up to the grace cutoff for one
// visit and returns the warn timestamp.
func escalateToWarned(t *testing.T, m *Monitor, cv *common.CreatorVisit) time.Time {
	t.Helper()

	past := cv.PostingDeadline.Add(time.Hour)
	if _, err := m.CheckDeadlines(past); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SendWarnings(past); err != nil {
		t.Fatal(err)
	}
	return past
}

func TestCheckDeadlines(t *testing.T) {
	m := newTestMonitor(t)
	visitDate := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	late := seedVisit(t, m, "visit-late", "inf-1", visitDate)
	posted := seedVisit(t, m, "visit-posted", "inf-2", visitDate)
	posted.TikTokPosted = true
	posted.InstagramPosted = true
	saveVisit(t, m, posted)
	seedVisit(t, m, "visit-fresh", "inf-3", visitDate.Add(47*time.Hour))

	now := late.PostingDeadline.Add(time.Minute)
	flagged, err := m.CheckDeadlines(now)
	if err != nil {
		t.Fatal(err)
	}
	if flagged != 1 {
		t.Fatalf("flagged %d, want 1", flagged)
	}

	if got := common.GetVisit("visit-late", m.db, m.cfg); got.Status != common.VisitFlagged || got.FlaggedAt == nil {
		t.Errorf("late visit: %+v", got)
	}
	if got := common.GetVisit("visit-posted", m.db, m.cfg); got.Status != common.VisitCompliant {
		t.Errorf("posted visit status %q, want compliant", got.Status)
	}
	if got := common.GetVisit("visit-fresh", m.db, m.cfg); got.Status != common.VisitCompleted {
		t.Errorf("fresh visit status %q, want completed", got.Status)
	}
	if inf := common.GetInfluencer("inf-1", m.db, m.cfg); inf.FlaggedVisits != 1 {
		t.Errorf("flagged visits %d, want 1", inf.FlaggedVisits)
	}
}

func TestSuspendedInfluencerNotEscalated(t *testing.T) {
	m := newTestMonitor(t)
	visitDate := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := visitDate.AddDate(0, 0, SuspensionDays)

	if err := m.db.Update(func(tx *bolt.Tx) error {
		return common.SaveInfluencer(tx, &common.Influencer{
			Id: "inf-susp", Name: "Casey", Email: "casey@test.com",
			Suspended: true, SuspensionEndDate: &end, StrikeCount: 2,
			Status: common.InfluencerSuspended,
		}, m.cfg)
	}); err != nil {
		t.Fatal(err)
	}
	cv := seedVisit(t, m, "visit-susp", "inf-susp", visitDate)

	now := cv.PostingDeadline.Add(time.Hour)
	flagged, err := m.CheckDeadlines(now)
	if err != nil {
		t.Fatal(err)
	}
	if flagged != 0 {
		t.Fatalf("flagged %d visits of a suspended influencer, want 0", flagged)
	}
	if got := common.GetVisit("visit-susp", m.db, m.cfg); got.Status != common.VisitCompleted {
		t.Fatalf("visit status %q, want completed", got.Status)
	}

	// A visit flagged before the suspension does not advance either.
	cv.Status = common.VisitFlagged
	saveVisit(t, m, cv)
	sent, err := m.SendWarnings(now)
	if err != nil {
		t.Fatal(err)
	}
	if sent != 0 {
		t.Fatalf("warned %d suspended influencers, want 0", sent)
	}
	if got := common.GetVisit("visit-susp", m.db, m.cfg); got.Status != common.VisitFlagged {
		t.Errorf("visit status %q, want flagged", got.Status)
	}
	if inf := common.GetInfluencer("inf-susp", m.db, m.cfg); inf.StrikeCount != 2 || inf.FlaggedVisits != 0 {
		t.Errorf("influencer escalated during suspension: %+v", inf)
	}
}

func TestWarningThenCompliance(t *testing.T) {
	m := newTestMonitor(t)
	cv := seedVisit(t, m, "visit-1", "inf-1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	warnedAt := escalateToWarned(t, m, cv)

	got := common.GetVisit("visit-1", m.db, m.cfg)
	if got.Status != common.VisitWarningSent || got.WarningSentAt == nil {
		t.Fatalf("after warning: %+v", got)
	}

	// Content shows up during grace: no strike
	got.TikTokPosted = true
	got.InstagramPosted = true
	saveVisit(t, m, got)

	failed, err := m.CheckGracePeriods(warnedAt.Add(GracePeriod + time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if failed != 0 {
		t.Fatalf("failed %d, want 0", failed)
	}
	if got = common.GetVisit("visit-1", m.db, m.cfg); got.Status != common.VisitCompliant {
		t.Errorf("status %q, want compliant", got.Status)
	}
	if inf := common.GetInfluencer("inf-1", m.db, m.cfg); inf.StrikeCount != 0 {
		t.Errorf("strike count %d, want 0", inf.StrikeCount)
	}
}

func TestGraceNotExpired(t *testing.T) {
	m := newTestMonitor(t)
	cv := seedVisit(t, m, "visit-1", "inf-1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	warnedAt := escalateToWarned(t, m, cv)

	failed, err := m.CheckGracePeriods(warnedAt.Add(GracePeriod - time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if failed != 0 {
		t.Fatalf("failed %d inside grace period", failed)
	}
}

func TestStrikeLadder(t *testing.T) {
	m := newTestMonitor(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	failVisit := func(n int) {
		cv := seedVisit(t, m, "visit-"+string(rune('0'+n)), "inf-1", base.AddDate(0, 0, n*10))
		warnedAt := escalateToWarned(t, m, cv)
		if failed, err := m.CheckGracePeriods(warnedAt.Add(GracePeriod + time.Hour)); err != nil || failed != 1 {
			t.Fatalf("strike %d: failed=%d err=%v", n, failed, err)
		}
	}

	// Strike 1: warning only
	failVisit(1)
	inf := common.GetInfluencer("inf-1", m.db, m.cfg)
	if inf.StrikeCount != 1 || inf.Suspended || inf.Removed {
		t.Fatalf("after strike 1: %+v", inf)
	}

	// Strike 2: 7-day suspension
	failVisit(2)
	inf = common.GetInfluencer("inf-1", m.db, m.cfg)
	if inf.StrikeCount != 2 || !inf.Suspended || inf.SuspensionEndDate == nil {
		t.Fatalf("after strike 2: %+v", inf)
	}
	if inf.Status != common.InfluencerSuspended {
		t.Errorf("status %q, want suspended", inf.Status)
	}

	// Strike 3: removal
	failVisit(3)
	inf = common.GetInfluencer("inf-1", m.db, m.cfg)
	if inf.StrikeCount != 3 || !inf.Removed || inf.Status != common.InfluencerRemoved {
		t.Fatalf("after strike 3: %+v", inf)
	}

	strikes := common.GetStrikesByInfluencer("inf-1", m.db, m.cfg)
	if len(strikes) != 3 {
		t.Fatalf("strike records %d, want 3", len(strikes))
	}
	severities := map[string]bool{}
	for _, st := range strikes {
		severities[st.Severity] = true
	}
	for _, want := range []string{SeverityWarning, SeveritySuspension, SeverityRemoval} {
		if !severities[want] {
			t.Errorf("missing severity %q", want)
		}
	}
}

func TestRemovalCancelsCommissions(t *testing.T) {
	m := newTestMonitor(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := m.db.Update(func(tx *bolt.Tx) error {
		for i, status := range []string{common.CommissionPending, common.CommissionReady, common.CommissionPaid} {
			cm := &common.Commission{
				Id:           "cm-" + string(rune('0'+i)),
				InfluencerId: "inf-1",
				RestaurantId: "rest-1",
				MonthNumber:  i + 1,
				Amount:       250,
				Status:       status,
			}
			if err := common.SaveCommission(tx, cm, m.cfg); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	for n := 1; n <= 3; n++ {
		cv := seedVisit(t, m, "visit-"+string(rune('0'+n)), "inf-1", base.AddDate(0, 0, n*10))
		warnedAt := escalateToWarned(t, m, cv)
		if _, err := m.CheckGracePeriods(warnedAt.Add(GracePeriod + time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	var byStatus map[string]int
	m.db.View(func(tx *bolt.Tx) error {
		byStatus = map[string]int{}
		return common.ForEachCommission(tx, m.cfg, func(cm *common.Commission) error {
			byStatus[cm.Status]++
			return nil
		})
	})
	if byStatus[common.CommissionCancelled] != 2 {
		t.Errorf("cancelled %d, want 2 (pending + ready)", byStatus[common.CommissionCancelled])
	}
	if byStatus[common.CommissionPaid] != 1 {
		t.Errorf("paid rows must survive removal, got %d", byStatus[common.CommissionPaid])
	}
}

func TestCheckSuspensions(t *testing.T) {
	m := newTestMonitor(t)
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 3)

	if err := m.db.Update(func(tx *bolt.Tx) error {
		for _, inf := range []*common.Influencer{
			{Id: "inf-done", Email: "a@test.com", Suspended: true, SuspensionEndDate: &past, StrikeCount: 2, Status: common.InfluencerSuspended},
			{Id: "inf-serving", Email: "b@test.com", Suspended: true, SuspensionEndDate: &future, StrikeCount: 2, Status: common.InfluencerSuspended},
			{Id: "inf-removed", Email: "c@test.com", Suspended: true, SuspensionEndDate: &past, Removed: true, Status: common.InfluencerRemoved},
		} {
			if err := common.SaveInfluencer(tx, inf, m.cfg); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	reinstated, err := m.CheckSuspensions(now)
	if err != nil {
		t.Fatal(err)
	}
	if reinstated != 1 {
		t.Fatalf("reinstated %d, want 1", reinstated)
	}

	if inf := common.GetInfluencer("inf-done", m.db, m.cfg); inf.Suspended || inf.Status != common.InfluencerActive || inf.StrikeCount != 2 {
		t.Errorf("reinstated influencer: %+v", inf)
	}
	if inf := common.GetInfluencer("inf-serving", m.db, m.cfg); !inf.Suspended {
		t.Error("serving influencer was reinstated early")
	}
	if inf := common.GetInfluencer("inf-removed", m.db, m.cfg); !inf.Removed || inf.Status != common.InfluencerRemoved {
		t.Error("removed influencer must stay removed")
	}
}
