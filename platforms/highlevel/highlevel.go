// Package highlevel is a thin client for the GoHighLevel REST API.
// Workflows are configured in the GHL dashboard to trigger on tag
// additions, so most automation here is just tagging contacts.
package highlevel

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/foodtrend/foodtrend/config"
)

// Tags that trigger GHL workflows
const (
	TagRestaurantNew    = "restaurant-new"
	TagInfluencerNew    = "influencer-new"
	TagContentPending   = "content-pending"
	TagContentDelivered = "content-delivered"
	TagContentUrgent    = "content-urgent"
	TagReviewRequest    = "review-request"
)

var (
	ErrNotConfigured = errors.New("highlevel api key not configured")
	ErrBadStatus     = errors.New("unexpected status from highlevel")
)

var apiClient = &http.Client{Timeout: 15 * time.Second}

func do(cfg *config.Config, method, path string, body interface{}, out interface{}) error {
	if cfg.HighLevel.APIKey == "" {
		return ErrNotConfigured
	}
	if cfg.Sandbox {
		return nil
	}

	var rd io.Reader
	if body != nil {
		j, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(j)
	}

	req, err := http.NewRequest(method, cfg.HighLevel.Endpoint+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.HighLevel.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := apiClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Println("HighLevel error", resp.StatusCode, string(msg))
		return ErrBadStatus
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// AddTag tags a contact, which kicks off any workflow listening on it.
func AddTag(cfg *config.Config, contactId, tag string) error {
	return do(cfg, "PUT", "/contacts/"+contactId, map[string]interface{}{
		"tags": []string{tag},
	}, nil)
}

func UpdateContactFields(cfg *config.Config, contactId string, fields map[string]string) error {
	return do(cfg, "PUT", "/contacts/"+contactId, map[string]interface{}{
		"customField": fields,
	}, nil)
}

// TriggerWorkflow adds a contact to a workflow by id (legacy method).
func TriggerWorkflow(cfg *config.Config, contactId, workflowId string) error {
	if workflowId == "" {
		return ErrNotConfigured
	}
	return do(cfg, "POST", fmt.Sprintf("/contacts/%s/workflow/%s", contactId, workflowId), nil, nil)
}

// TriggerReviewRequest starts the Google review follow-up flow for a
// 5-star submission.
func TriggerReviewRequest(cfg *config.Config, contactId, restaurantName, reviewUrl, prefilled string) error {
	if err := UpdateContactFields(cfg, contactId, map[string]string{
		"review_restaurant": restaurantName,
		"google_review_url": reviewUrl,
		"review_prefill":    prefilled,
	}); err != nil {
		return err
	}
	if cfg.HighLevel.ReviewRequestWorkflow != "" {
		return TriggerWorkflow(cfg, contactId, cfg.HighLevel.ReviewRequestWorkflow)
	}
	return AddTag(cfg, contactId, TagReviewRequest)
}

// VerifySignature checks the HMAC-SHA256 HighLevel sends in
// x-ghl-signature (or x-wh-signature) against the raw body.
func VerifySignature(header http.Header, payload []byte, secret string) bool {
	sig := header.Get("x-ghl-signature")
	if sig == "" {
		sig = header.Get("x-wh-signature")
	}
	if sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}
