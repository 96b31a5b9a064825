// Package referral handles influencer onboarding, referral codes and
// the attribution trail from link click to paying restaurant.
package referral

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/foodtrend/foodtrend/config"
	"github.com/foodtrend/foodtrend/internal/common"
	"github.com/foodtrend/foodtrend/misc"
	"github.com/foodtrend/foodtrend/platforms/highlevel"
)

const (
	codeAttempts = 10
	qrSize       = 256
)

var (
	ErrEmailExists   = errors.New("an influencer with this email already exists")
	ErrMissingFields = errors.New("name and email are required")
	ErrUnknownCode   = errors.New("unknown referral code")
)

type System struct {
	db  *bolt.DB
	cfg *config.Config
}

func New(db *bolt.DB, cfg *config.Config) *System {
	return &System{db: db, cfg: cfg}
}

// GenerateCode builds a human-readable referral code: the influencer's
// first name plus a short random suffix, e.g. SARAH3F. After ten
// collisions it falls back to a base36 timestamp, which cannot collide
// with the name-based space.
func GenerateCode(name string, taken func(code string) bool) string {
	base := codeBase(name)
	for i := 0; i < codeAttempts; i++ {
		var buf [2]byte
		rand.Read(buf[:])
		code := base + strings.ToUpper(hex.EncodeToString(buf[:]))
		if !taken(code) {
			return code
		}
	}
	return strings.ToUpper(strconv.FormatInt(time.Now().UnixNano(), 36))
}

func codeBase(name string) string {
	first := name
	if i := strings.IndexByte(first, ' '); i != -1 {
		first = first[:i]
	}

	var b strings.Builder
	for _, r := range strings.ToUpper(first) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
		if b.Len() >= 6 {
			break
		}
	}
	if b.Len() == 0 {
		return "CREATOR"
	}
	return b.String()
}

// CreateInfluencer registers a new creator: unique email, a referral
// code, and a QR code pointing at their signup link.
func (s *System) CreateInfluencer(inf *common.Influencer) error {
	if inf.Name == "" || inf.Email == "" {
		return ErrMissingFields
	}
	inf.Email = misc.TrimEmail(inf.Email)

	if existing := common.GetInfluencerByEmail(inf.Email, s.db, s.cfg); existing != nil {
		return ErrEmailExists
	}

	if inf.Id == "" {
		inf.Id = uuid.NewString()
	}
	inf.Status = common.InfluencerActive
	inf.SignupDate = time.Now()
	inf.ReferralCode = GenerateCode(inf.Name, func(code string) bool {
		return common.GetInfluencerByCode(code, s.db, s.cfg) != nil
	})

	if png, err := qrcode.Encode(s.ReferralLink(inf.ReferralCode), qrcode.Medium, qrSize); err != nil {
		log.Println("Error generating QR code for", inf.Id, err)
	} else {
		inf.QRCode = base64.StdEncoding.EncodeToString(png)
	}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		return common.SaveInfluencer(tx, inf, s.cfg)
	}); err != nil {
		return err
	}

	log.Printf("Influencer %s registered with code %s", inf.Id, inf.ReferralCode)

	if inf.GHLContactId != "" {
		if err := highlevel.AddTag(s.cfg, inf.GHLContactId, highlevel.TagInfluencerNew); err != nil && err != highlevel.ErrNotConfigured {
			log.Println("Error tagging new influencer in CRM", inf.Id, err)
		}
	}

	return nil
}

// ReferralLink is the public signup URL carrying the code, also what
// the QR encodes.
func (s *System) ReferralLink(code string) string {
	return s.cfg.BaseURL + "/r/" + code
}

// TrackClick records a hit on a referral link or QR scan.
func (s *System) TrackClick(code, source string, now time.Time) (*common.ReferralEvent, error) {
	inf := common.GetInfluencerByCode(code, s.db, s.cfg)
	if inf == nil {
		return nil, ErrUnknownCode
	}

	ev := &common.ReferralEvent{
		Id:           uuid.NewString(),
		ReferralCode: code,
		InfluencerId: inf.Id,
		EventType:    common.ReferralClick,
		Source:       source,
		CreatedAt:    now,
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return common.SaveReferralEvent(tx, ev, s.cfg)
	}); err != nil {
		return nil, err
	}
	return ev, nil
}

// AttributeSignup ties a restaurant to the influencer whose code it
// signed up with. Attribution is first-touch and immutable: once a
// restaurant carries a referrer, later codes are ignored.
func (s *System) AttributeSignup(restaurantId, code string, now time.Time) (*common.Influencer, error) {
	inf := common.GetInfluencerByCode(code, s.db, s.cfg)
	if inf == nil {
		return nil, ErrUnknownCode
	}

	var attributed bool
	if err := s.db.Update(func(tx *bolt.Tx) error {
		r := common.GetRestaurantTx(tx, s.cfg, restaurantId)
		if r == nil {
			return errors.New("unknown restaurant " + restaurantId)
		}
		if r.ReferredByInfluencerId != "" {
			log.Printf("Restaurant %s already attributed to %s, ignoring code %s",
				restaurantId, r.ReferredByInfluencerId, code)
			return nil
		}

		r.ReferredByInfluencerId = inf.Id
		r.ReferralCodeUsed = code
		if err := common.SaveRestaurant(tx, r, s.cfg); err != nil {
			return err
		}

		inf.TotalReferrals++
		if err := common.SaveInfluencer(tx, inf, s.cfg); err != nil {
			return err
		}

		ev := &common.ReferralEvent{
			Id:           uuid.NewString(),
			ReferralCode: code,
			InfluencerId: inf.Id,
			EventType:    common.ReferralSignup,
			RestaurantId: restaurantId,
			CreatedAt:    now,
		}
		if err := common.SaveReferralEvent(tx, ev, s.cfg); err != nil {
			return err
		}

		attributed = true
		return nil
	}); err != nil {
		return nil, err
	}

	if !attributed {
		return nil, nil
	}
	return inf, nil
}

// RecordConversion logs a referred restaurant's first payment against
// the code's funnel.
func (s *System) RecordConversion(r *common.Restaurant, now time.Time) error {
	if r.ReferredByInfluencerId == "" {
		return nil
	}
	ev := &common.ReferralEvent{
		Id:           uuid.NewString(),
		ReferralCode: r.ReferralCodeUsed,
		InfluencerId: r.ReferredByInfluencerId,
		EventType:    common.ReferralConversion,
		RestaurantId: r.Id,
		CreatedAt:    now,
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return common.SaveReferralEvent(tx, ev, s.cfg)
	})
}

type FunnelStats struct {
	Clicks      int `json:"clicks"`
	Signups     int `json:"signups"`
	Conversions int `json:"conversions"`
}

// Funnel rolls up a code's click-to-conversion trail.
func (s *System) Funnel(code string) *FunnelStats {
	var stats FunnelStats
	for _, ev := range common.GetReferralEventsByCode(code, s.db, s.cfg) {
		switch ev.EventType {
		case common.ReferralClick:
			stats.Clicks++
		case common.ReferralSignup:
			stats.Signups++
		case common.ReferralConversion:
			stats.Conversions++
		}
	}
	return &stats
}
