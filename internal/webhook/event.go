package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	EventCheckoutSessionCompleted             = "checkout.session.completed"
	EventCheckoutSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutCompletedAlias               = "checkout.completed"
	EventCheckoutAsyncPaymentSucceededAlias   = "checkout.async_payment_succeeded"
	metadataUserIdKey                         = "user_id"
)

var ErrMalformedEvent = errors.New("malformed webhook event")

type Event struct {
	Id   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object CheckoutSession `json:"object"`
	} `json:"data"`
}

type CheckoutSession struct {
	Id              string                     `json:"id"`
	Metadata        map[string]json.RawMessage `json:"metadata"`
	AmountTotal     int64                      `json:"amount_total"`
	Currency        string                     `json:"currency"`
	CustomerEmail   string                     `json:"customer_email"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// MaterializesOrder reports whether events of this type create orders.
func (e *Event) MaterializesOrder() bool {
	switch e.Type {
	case EventCheckoutSessionCompleted,
		EventCheckoutSessionAsyncPaymentSucceeded,
		EventCheckoutCompletedAlias,
		EventCheckoutAsyncPaymentSucceededAlias:
		return true
	}
	return false
}

// UserId returns the user id from the session metadata, if any. The id may
// arrive as a JSON string or number.
func (s *CheckoutSession) UserId() *int {
	raw, ok := s.Metadata[metadataUserIdKey]
	if !ok {
		return nil
	}

	var id int
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		parsed, err := strconv.Atoi(strings.TrimSpace(str))
		if err != nil {
			return nil
		}
		id = parsed
	} else if err := json.Unmarshal(raw, &id); err != nil {
		return nil
	}

	if id <= 0 {
		return nil
	}
	return &id
}

// Email returns the best-effort customer email carried by the session.
func (s *CheckoutSession) Email() string {
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		return s.CustomerDetails.Email
	}
	return s.CustomerEmail
}

func ParseEvent(payload []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	if e.MaterializesOrder() && e.Data.Object.Id == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrMalformedEvent)
	}

	return &e, nil
}
