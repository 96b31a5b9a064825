package referral

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/boltdb/bolt"

	"github.com/foodtrend/foodtrend/config"
	"github.com/foodtrend/foodtrend/internal/common"
	"github.com/foodtrend/foodtrend/misc"
)

func newTestSystem(t *testing.T) *System {
	t.Helper()

	dir, err := os.MkdirTemp("", "referral-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := config.NewSandbox(dir+string(filepath.Separator), "test.db")
	cfg.BaseURL = "https://foodtrend.test"
	db := misc.OpenDB(cfg.DBPath, cfg.DBName)
	t.Cleanup(func() { db.Close() })

	if err := misc.EnsureBuckets(db, cfg.Bucket.All); err != nil {
		t.Fatal(err)
	}
	return New(db, cfg)
}

func TestGenerateCode(t *testing.T) {
	never := func(string) bool { return false }

	code := GenerateCode("Sarah Mitchell", never)
	if !strings.HasPrefix(code, "SARAH") || len(code) != len("SARAH")+4 {
		t.Errorf("code %q should be SARAH plus a 4-char suffix", code)
	}

	// First name caps at six letters
	code = GenerateCode("Alexandria Jones", never)
	if !strings.HasPrefix(code, "ALEXAN") || len(code) != len("ALEXAN")+4 {
		t.Errorf("code %q should be ALEXAN plus a 4-char suffix", code)
	}

	// Non-letters are stripped
	code = GenerateCode("j0-e!", never)
	if !strings.HasPrefix(code, "JE") {
		t.Errorf("code %q should start with JE", code)
	}

	// Nothing usable in the name
	code = GenerateCode("123", never)
	if !strings.HasPrefix(code, "CREATOR") {
		t.Errorf("code %q should fall back to CREATOR", code)
	}

	// Every candidate taken: fall back to a timestamp code
	code = GenerateCode("Sarah", func(string) bool { return true })
	if strings.HasPrefix(code, "SARAH") {
		t.Errorf("fallback code %q must leave the name space", code)
	}
	if code == "" {
		t.Error("fallback produced an empty code")
	}
}

func TestCreateInfluencer(t *testing.T) {
	s := newTestSystem(t)

	inf := &common.Influencer{Name: "Sarah Mitchell", Email: " Sarah@Test.com "}
	if err := s.CreateInfluencer(inf); err != nil {
		t.Fatal(err)
	}

	if inf.Id == "" || inf.ReferralCode == "" {
		t.Fatalf("missing id or code: %+v", inf)
	}
	if inf.Email != "sarah@test.com" {
		t.Errorf("email not normalized: %q", inf.Email)
	}
	if inf.Status != common.InfluencerActive {
		t.Errorf("status %q, want active", inf.Status)
	}
	if inf.QRCode == "" {
		t.Error("missing QR code")
	}

	if got := common.GetInfluencerByCode(inf.ReferralCode, s.db, s.cfg); got == nil || got.Id != inf.Id {
		t.Error("influencer not findable by code")
	}

	// Same email, different case: rejected
	dup := &common.Influencer{Name: "Sarah M", Email: "SARAH@test.com"}
	if err := s.CreateInfluencer(dup); err != ErrEmailExists {
		t.Errorf("err=%v, want ErrEmailExists", err)
	}

	if err := s.CreateInfluencer(&common.Influencer{Name: "No Email"}); err != ErrMissingFields {
		t.Errorf("err=%v, want ErrMissingFields", err)
	}
}

func TestTrackClick(t *testing.T) {
	s := newTestSystem(t)
	inf := &common.Influencer{Name: "Casey", Email: "casey@test.com"}
	if err := s.CreateInfluencer(inf); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	ev, err := s.TrackClick(inf.ReferralCode, "qr", now)
	if err != nil {
		t.Fatal(err)
	}
	if ev.InfluencerId != inf.Id || ev.EventType != common.ReferralClick || ev.Source != "qr" {
		t.Errorf("event: %+v", ev)
	}

	if _, err := s.TrackClick("NOPE99", "link", now); err != ErrUnknownCode {
		t.Errorf("err=%v, want ErrUnknownCode", err)
	}
}

func TestAttributeSignup(t *testing.T) {
	s := newTestSystem(t)
	first := &common.Influencer{Name: "Casey", Email: "casey@test.com"}
	second := &common.Influencer{Name: "Riley", Email: "riley@test.com"}
	for _, inf := range []*common.Influencer{first, second} {
		if err := s.CreateInfluencer(inf); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		return common.SaveRestaurant(tx, &common.Restaurant{Id: "rest-1", Name: "Testaurant"}, s.cfg)
	}); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	inf, err := s.AttributeSignup("rest-1", first.ReferralCode, now)
	if err != nil {
		t.Fatal(err)
	}
	if inf == nil || inf.Id != first.Id {
		t.Fatalf("attributed to %+v", inf)
	}

	r := common.GetRestaurant("rest-1", s.db, s.cfg)
	if r.ReferredByInfluencerId != first.Id || r.ReferralCodeUsed != first.ReferralCode {
		t.Fatalf("restaurant: %+v", r)
	}
	if got := common.GetInfluencer(first.Id, s.db, s.cfg); got.TotalReferrals != 1 {
		t.Errorf("total referrals %d, want 1", got.TotalReferrals)
	}

	// First touch wins: a second code can't steal the attribution
	inf, err = s.AttributeSignup("rest-1", second.ReferralCode, now)
	if err != nil {
		t.Fatal(err)
	}
	if inf != nil {
		t.Error("second attribution should be a no-op")
	}
	if r = common.GetRestaurant("rest-1", s.db, s.cfg); r.ReferredByInfluencerId != first.Id {
		t.Errorf("attribution changed to %s", r.ReferredByInfluencerId)
	}
	if got := common.GetInfluencer(second.Id, s.db, s.cfg); got.TotalReferrals != 0 {
		t.Errorf("second influencer credited %d referrals", got.TotalReferrals)
	}
}

func TestFunnel(t *testing.T) {
	s := newTestSystem(t)
	inf := &common.Influencer{Name: "Casey", Email: "casey@test.com"}
	if err := s.CreateInfluencer(inf); err != nil {
		t.Fatal(err)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return common.SaveRestaurant(tx, &common.Restaurant{Id: "rest-1"}, s.cfg)
	}); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := s.TrackClick(inf.ReferralCode, "link", now); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.AttributeSignup("rest-1", inf.ReferralCode, now); err != nil {
		t.Fatal(err)
	}
	r := common.GetRestaurant("rest-1", s.db, s.cfg)
	if err := s.RecordConversion(r, now); err != nil {
		t.Fatal(err)
	}

	stats := s.Funnel(inf.ReferralCode)
	if stats.Clicks != 3 || stats.Signups != 1 || stats.Conversions != 1 {
		t.Errorf("funnel: %+v", stats)
	}
}
