package stripe

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	stripego "github.com/stripe/stripe-go/v81"

	"github.com/dmitrymomot/studyhub/pkg/subscription"
)

// eventObject is the union of the checkout session, subscription and
// invoice fields reconciliation reads from data.object.
type eventObject struct {
	ID              string            `json:"id"`
	Object          string            `json:"object"`
	Customer        expandableID      `json:"customer"`
	Subscription    expandableID      `json:"subscription"`
	Status          string            `json:"status"`
	Metadata        map[string]string `json:"metadata"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// expandableID accepts both a bare id and an expanded object.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*e = expandableID(id)
		return nil
	}

	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

func decodeEvent(event stripego.Event) (*subscription.Event, error) {
	out := &subscription.Event{
		ID:        event.ID,
		Type:      subscription.EventType(event.Type),
		CreatedAt: time.Unix(event.Created, 0).UTC(),
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}

	var obj eventObject
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}

	out.CustomerID = string(obj.Customer)
	out.Metadata = obj.Metadata

	switch out.Type {
	case subscription.EventSubscriptionUpdated, subscription.EventSubscriptionDeleted:
		out.SubscriptionID = obj.ID
		out.Status = obj.Status
	default:
		out.SubscriptionID = string(obj.Subscription)
	}

	switch {
	case obj.CustomerDetails != nil && obj.CustomerDetails.Email != "":
		out.CustomerEmail = obj.CustomerDetails.Email
	default:
		out.CustomerEmail = obj.CustomerEmail
	}

	return out, nil
}
