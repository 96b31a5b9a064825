package commission

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

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	dir, err := os.MkdirTemp("", "commission-test")
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

func seedRestaurant(t *testing.T, e *Engine, id, infId string, firstPayment time.Time) *common.Restaurant {
	t.Helper()

	r := &common.Restaurant{
		Id:                     id,
		Name:                   "Testaurant",
		Status:                 common.RestaurantActive,
		Tier:                   common.TierMomentum,
		ReferredByInfluencerId: infId,
		FirstPaymentDate:       &firstPayment,
	}
	inf := &common.Influencer{Id: infId, Name: "Casey", Email: "casey@test.com"}

	if err := e.db.Update(func(tx *bolt.Tx) error {
		if err := common.SaveRestaurant(tx, r, e.cfg); err != nil {
			return err
		}
		return common.SaveInfluencer(tx, inf, e.cfg)
	}); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestCreateSchedule(t *testing.T) {
	e := newTestEngine(t)
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	r := seedRestaurant(t, e, "rest-1", "inf-1", start)

	rows, err := e.CreateSchedule(r)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != ScheduleMonthsAhead {
		t.Fatalf("expected %d rows, got %d", ScheduleMonthsAhead, len(rows))
	}

	for _, cm := range rows {
		want := OngoingRate
		if cm.MonthNumber <= EarlyMonths {
			want = EarlyRate
		}
		if cm.Amount != want {
			t.Errorf("month %d: amount %v, want %v", cm.MonthNumber, cm.Amount, want)
		}
		if cm.Status != common.CommissionPending {
			t.Errorf("month %d: status %q", cm.MonthNumber, cm.Status)
		}
		if got, want := cm.DueDate, common.AddMonths(start, cm.MonthNumber); !got.Equal(want) {
			t.Errorf("month %d: due %v, want %v", cm.MonthNumber, got, want)
		}
	}

	// A second call must not create a second schedule
	rows, err = e.CreateSchedule(r)
	if err != nil || rows != nil {
		t.Fatalf("duplicate schedule: rows=%v err=%v", rows, err)
	}
	if got := len(common.GetCommissionsByRestaurant(r.Id, e.db, e.cfg)); got != ScheduleMonthsAhead {
		t.Fatalf("expected %d rows after replay, got %d", ScheduleMonthsAhead, got)
	}
}

func TestCreateScheduleUnreferred(t *testing.T) {
	e := newTestEngine(t)
	start := time.Now()
	r := &common.Restaurant{Id: "rest-organic", FirstPaymentDate: &start}

	rows, err := e.CreateSchedule(r)
	if err != nil || rows != nil {
		t.Fatalf("organic signup should be a no-op: rows=%v err=%v", rows, err)
	}
}

func TestCreateScheduleNoPayment(t *testing.T) {
	e := newTestEngine(t)
	r := &common.Restaurant{Id: "rest-2", ReferredByInfluencerId: "inf-2"}

	if _, err := e.CreateSchedule(r); err != ErrNoFirstPayment {
		t.Fatalf("expected ErrNoFirstPayment, got %v", err)
	}
}

func TestProcessDue(t *testing.T) {
	e := newTestEngine(t)
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	r := seedRestaurant(t, e, "rest-1", "inf-1", start)
	if _, err := e.CreateSchedule(r); err != nil {
		t.Fatal(err)
	}

	// Three months in: months 1-3 are due
	now := start.AddDate(0, 3, 1)
	n, err := e.ProcessDue(r, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("processed %d, want 3", n)
	}

	inf := common.GetInfluencer("inf-1", e.db, e.cfg)
	if inf.PendingEarnings != 3*EarlyRate {
		t.Errorf("pending earnings %v, want %v", inf.PendingEarnings, 3*EarlyRate)
	}
	if inf.TotalEarnings != 3*EarlyRate {
		t.Errorf("total earnings %v, want %v", inf.TotalEarnings, 3*EarlyRate)
	}

	// Replaying the same webhook moves nothing
	n, err = e.ProcessDue(r, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("replay processed %d, want 0", n)
	}
	if inf = common.GetInfluencer("inf-1", e.db, e.cfg); inf.PendingEarnings != 3*EarlyRate {
		t.Errorf("replay changed earnings to %v", inf.PendingEarnings)
	}
}

func TestExtendIfNeeded(t *testing.T) {
	e := newTestEngine(t)
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	r := seedRestaurant(t, e, "rest-1", "inf-1", start)
	if _, err := e.CreateSchedule(r); err != nil {
		t.Fatal(err)
	}

	// Month 5: 13 months of runway left, nothing to do
	added, err := e.ExtendIfNeeded(r, start.AddDate(0, 4, 0))
	if err != nil {
		t.Fatal(err)
	}
	if added != 0 {
		t.Fatalf("extended too early: added %d", added)
	}

	// Month 13: 5 months left, refill kicks in
	added, err = e.ExtendIfNeeded(r, start.AddDate(0, 12, 0))
	if err != nil {
		t.Fatal(err)
	}
	if added != ExtendByMonths {
		t.Fatalf("added %d, want %d", added, ExtendByMonths)
	}

	rows := common.GetCommissionsByRestaurant(r.Id, e.db, e.cfg)
	if len(rows) != ScheduleMonthsAhead+ExtendByMonths {
		t.Fatalf("total rows %d, want %d", len(rows), ScheduleMonthsAhead+ExtendByMonths)
	}
	for _, cm := range rows {
		if cm.MonthNumber > ScheduleMonthsAhead && cm.Amount != OngoingRate {
			t.Errorf("extension month %d at rate %v", cm.MonthNumber, cm.Amount)
		}
	}
}

func TestCancelPending(t *testing.T) {
	e := newTestEngine(t)
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	r := seedRestaurant(t, e, "rest-1", "inf-1", start)
	if _, err := e.CreateSchedule(r); err != nil {
		t.Fatal(err)
	}

	// Pay out two months, then cancel
	if _, err := e.ProcessDue(r, start.AddDate(0, 2, 1)); err != nil {
		t.Fatal(err)
	}
	rows := common.GetCommissionsByRestaurant(r.Id, e.db, e.cfg)
	if err := e.db.Update(func(tx *bolt.Tx) error {
		for _, cm := range rows {
			if cm.Status == common.CommissionReady {
				cm.Status = common.CommissionPaid
				if err := common.SaveCommission(tx, cm, e.cfg); err != nil {
					return err
				}
			}
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	n, err := e.CancelPending(r.Id)
	if err != nil {
		t.Fatal(err)
	}
	if n != ScheduleMonthsAhead-2 {
		t.Fatalf("cancelled %d, want %d", n, ScheduleMonthsAhead-2)
	}

	for _, cm := range common.GetCommissionsByRestaurant(r.Id, e.db, e.cfg) {
		switch {
		case cm.MonthNumber <= 2 && cm.Status != common.CommissionPaid:
			t.Errorf("paid month %d was touched: %q", cm.MonthNumber, cm.Status)
		case cm.MonthNumber > 2 && cm.Status != common.CommissionCancelled:
			t.Errorf("month %d not cancelled: %q", cm.MonthNumber, cm.Status)
		}
	}
}

func TestCancelForInfluencer(t *testing.T) {
	e := newTestEngine(t)
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	r1 := seedRestaurant(t, e, "rest-1", "inf-1", start)
	r2 := seedRestaurant(t, e, "rest-2", "inf-1", start)
	other := seedRestaurant(t, e, "rest-3", "inf-2", start)

	for _, r := range []*common.Restaurant{r1, r2, other} {
		if _, err := e.CreateSchedule(r); err != nil {
			t.Fatal(err)
		}
	}

	n, err := e.CancelForInfluencer("inf-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2*ScheduleMonthsAhead {
		t.Fatalf("cancelled %d, want %d", n, 2*ScheduleMonthsAhead)
	}

	for _, cm := range common.GetCommissionsByInfluencer("inf-2", e.db, e.cfg) {
		if cm.Status != common.CommissionPending {
			t.Errorf("unrelated influencer's commission touched: %q", cm.Status)
		}
	}
}

func TestSummaryForInfluencer(t *testing.T) {
	e := newTestEngine(t)
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	r := seedRestaurant(t, e, "rest-1", "inf-1", start)
	if _, err := e.CreateSchedule(r); err != nil {
		t.Fatal(err)
	}

	now := start.AddDate(0, 2, 1)
	if _, err := e.ProcessDue(r, now); err != nil {
		t.Fatal(err)
	}

	sum := e.SummaryForInfluencer("inf-1", now)
	if sum.TotalReady != 2*EarlyRate {
		t.Errorf("ready %v, want %v", sum.TotalReady, 2*EarlyRate)
	}
	if want := 4*EarlyRate + 12*OngoingRate; sum.TotalPending != want {
		t.Errorf("pending %v, want %v", sum.TotalPending, float64(want))
	}
	// Month 3 of an active restaurant earns the early rate
	if sum.MonthlyRecurring != EarlyRate {
		t.Errorf("monthly recurring %v, want %v", sum.MonthlyRecurring, EarlyRate)
	}
	// 6 early months plus 18 ongoing months of retention
	if want := float64(6*EarlyRate + 18*OngoingRate); sum.LifetimeValue != want {
		t.Errorf("lifetime value %v, want %v", sum.LifetimeValue, want)
	}
}
