package gocardless

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// SignatureHeader carries the HMAC digest on webhook deliveries.
const SignatureHeader = "Webhook-Signature"

// Event is one entry in a webhook delivery batch.
type Event struct {
	ID           string       `json:"id"`
	ResourceType string       `json:"resource_type"`
	Action       string       `json:"action"`
	Links        EventLinks   `json:"links"`
	Details      EventDetails `json:"details"`
}

// EventLinks points at the resource the event concerns.
type EventLinks struct {
	Payment      string `json:"payment"`
	Mandate      string `json:"mandate"`
	Subscription string `json:"subscription"`
	Refund       string `json:"refund"`
}

// EventDetails carries the provider's cause metadata.
type EventDetails struct {
	Origin      string `json:"origin"`
	Cause       string `json:"cause"`
	Description string `json:"description"`
}

// WebhookBody is the batch envelope posted to the webhook endpoint.
type WebhookBody struct {
	Events []Event `json:"events"`
}

// ValidateSignature checks the Webhook-Signature digest over the raw body.
func ValidateSignature(body []byte, secret, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the Webhook-Signature digest for a body. Used by tests and
// outbound delivery simulation.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseWebhookBody decodes the batch envelope after signature validation.
func ParseWebhookBody(body []byte) (*WebhookBody, error) {
	var parsed WebhookBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}
