package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"time"

	"github.com/missionMeteora/mandrill"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
)

func New(loc string) (*Config, error) {
	var c Config

	f, err := os.Open(loc)
	if err != nil {
		log.Println("Config error", err)
		return nil, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&c); err != nil {
		log.Println("Config error", err)
		return nil, err
	}

	c.setDefaults()
	return &c, nil
}

// NewSandbox returns a config with defaults filled in and every
// outbound side effect suppressed. Used by tests.
func NewSandbox(dbPath, dbName string) *Config {
	c := &Config{Sandbox: true, DBPath: dbPath, DBName: dbName}
	c.setDefaults()
	return c
}

type Config struct {
	Host string `json:"host"`
	Port string `json:"port"`

	DBPath string `json:"dbPath"`
	DBName string `json:"dbName"`

	// Sandbox suppresses all outbound email, CRM and Stripe side effects.
	Sandbox bool `json:"sandbox"`

	BaseURL      string `json:"baseUrl"`      // public site, used in referral links and emails
	DashboardURL string `json:"dashboardUrl"` // creator dashboard origin, allowed by CORS

	AdminEmail string `json:"adminEmail"` // alert recipient

	DeadlineSweep  time.Duration `json:"deadlineSweep"`  // In hours
	MetricsUpdate  time.Duration `json:"metricsUpdate"`  // In hours
	DailySweepHour int           `json:"dailySweepHour"` // Hour of day (UTC) for daily jobs
	StatsInterval  time.Duration `json:"statsInterval"`  // In seconds, sleep between social API calls

	Mandrill struct {
		APIKey     string `json:"apiKey"`
		SubAccount string `json:"subAccount"`
		FromEmail  string `json:"fromEmail"`
		FromName   string `json:"fromName"`
		ReplyEmail string `json:"replyEmail"`
		ReplyName  string `json:"replyName"`
	} `json:"mandrill"`

	Stripe struct {
		Key           string `json:"key"`
		WebhookSecret string `json:"webhookSecret"`
		// Price IDs per subscription tier, from the Stripe dashboard
		PriceMomentum  string `json:"priceMomentum"`
		PriceVelocity  string `json:"priceVelocity"`
		PriceDominance string `json:"priceDominance"`
	} `json:"stripe"`

	HighLevel struct {
		Endpoint      string `json:"endpoint"`
		APIKey        string `json:"apiKey"`
		LocationID    string `json:"locationId"`
		WebhookSecret string `json:"webhookSecret"`
		// Workflow IDs configured in the GHL dashboard
		ReviewRequestWorkflow string `json:"reviewRequestWorkflow"`
	} `json:"highLevel"`

	TikTok struct {
		Endpoint string `json:"endpoint"`
		Key      string `json:"key"`
	} `json:"tiktok"`

	Instagram struct {
		Endpoint string `json:"endpoint"`
		ClientId string `json:"clientId"`
	} `json:"instagram"`

	Bucket struct {
		Restaurant string   `json:"restaurant"`
		Influencer string   `json:"influencer"`
		Commission string   `json:"commission"`
		Visit      string   `json:"visit"`
		Strike     string   `json:"strike"`
		Feedback   string   `json:"feedback"`
		Tracking   string   `json:"tracking"`
		Event      string   `json:"event"`
		Job        string   `json:"job"`
		Audit      string   `json:"audit"`
		All        []string `json:"all"`
	} `json:"bucket"`
}

func (c *Config) setDefaults() {
	b := &c.Bucket
	if b.Restaurant == "" {
		b.Restaurant = "restaurants"
	}
	if b.Influencer == "" {
		b.Influencer = "influencers"
	}
	if b.Commission == "" {
		b.Commission = "commissions"
	}
	if b.Visit == "" {
		b.Visit = "creator_visits"
	}
	if b.Strike == "" {
		b.Strike = "performance_strikes"
	}
	if b.Feedback == "" {
		b.Feedback = "restaurant_feedback"
	}
	if b.Tracking == "" {
		b.Tracking = "referral_tracking"
	}
	if b.Event == "" {
		b.Event = "processed_events"
	}
	if b.Job == "" {
		b.Job = "jobs"
	}
	if b.Audit == "" {
		b.Audit = "audit_log"
	}
	b.All = []string{b.Restaurant, b.Influencer, b.Commission, b.Visit,
		b.Strike, b.Feedback, b.Tracking, b.Event, b.Job, b.Audit}

	if c.DeadlineSweep == 0 {
		c.DeadlineSweep = 1
	}
	if c.MetricsUpdate == 0 {
		c.MetricsUpdate = 6
	}
	if c.StatsInterval == 0 {
		c.StatsInterval = 1
	}
	if c.HighLevel.Endpoint == "" {
		c.HighLevel.Endpoint = "https://rest.gohighlevel.com/v1"
	}
}

// MailClient is the transactional sender (billing, invoices, alerts).
func (c *Config) MailClient() *mandrill.Client {
	if c.Mandrill.APIKey == "" {
		return nil
	}
	return mandrill.New(c.Mandrill.APIKey, c.Mandrill.SubAccount, c.Mandrill.FromEmail, c.Mandrill.FromName)
}

// ReplyMailClient sends from the address influencers can reply to.
func (c *Config) ReplyMailClient() *mandrill.Client {
	if c.Mandrill.APIKey == "" {
		return nil
	}
	return mandrill.New(c.Mandrill.APIKey, c.Mandrill.SubAccount, c.Mandrill.ReplyEmail, c.Mandrill.ReplyName)
}
