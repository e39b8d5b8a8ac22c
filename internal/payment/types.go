package payment

import "encoding/json"

// CreateIntentParams are the inputs for intent creation. Amount is in minor
// units (cents) to avoid floating-point drift on the wire.
type CreateIntentParams struct {
	AmountMinor int64
	Currency    string
	OrderID     string
	UserID      string
}

// Intent is a processor-side handle for an in-progress payment
type Intent struct {
	ID             string            `json:"id"`
	ClientSecret   string            `json:"client_secret"`
	Status         string            `json:"status"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata"`
}

// Refund is the processor's record of a reversal
type Refund struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
}

// Intent statuses reported by the processor
const (
	IntentStatusSucceeded = "succeeded"
)

// Event kinds delivered over the webhook
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded   = "charge.refunded"
)

// Event is one asynchronous notification from the processor, delivered
// at-least-once.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Created int64     `json:"created"`
	Data    EventData `json:"data"`
}

// EventData wraps the event payload object
type EventData struct {
	Object EventObject `json:"object"`
}

// EventObject is the intent or charge the event describes
type EventObject struct {
	ID            string            `json:"id"`
	Amount        int64             `json:"amount"`
	PaymentIntent string            `json:"payment_intent,omitempty"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata"`
}

// ParseEvent decodes a raw webhook payload. Signature verification must
// happen before calling this.
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// MinorUnits converts a dollar amount to integer cents
func MinorUnits(amount float64) int64 {
	return int64(amount*100 + 0.5)
}

// MajorUnits converts integer cents to a dollar amount
func MajorUnits(minor int64) float64 {
	return float64(minor) / 100
}
