package models

import (
	"encoding/json"
)

// DeliveryJob is the wire message that drives the delivery consumer.
// The JSON field names are a stable contract; unknown fields are
// tolerated on decode so older consumers keep working.
//
// PayloadJSON carries the raw inbound webhook body as a string, not a
// nested object. Republished jobs must stay byte-identical apart from
// the attempt counter, so the payload is never re-encoded.
type DeliveryJob struct {
	DeliveryID    string `json:"deliveryId"`
	EventID       string `json:"eventId"`
	DestinationID string `json:"destinationId"`
	TargetURL     string `json:"targetUrl"`
	PayloadJSON   string `json:"payloadJson"`
	Attempt       int    `json:"attempt"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// NewDeliveryJob builds the attempt=1 job published by ingest.
func NewDeliveryJob(delivery Delivery, event Event, destination Destination) DeliveryJob {
	return DeliveryJob{
		DeliveryID:    delivery.ID.String(),
		EventID:       event.ID.String(),
		DestinationID: destination.ID.String(),
		TargetURL:     destination.TargetURL,
		PayloadJSON:   event.Payload,
		Attempt:       1,
		CorrelationID: event.ID.String(),
	}
}

// Next returns the job republished to the retry queue, with the
// attempt counter advanced. Everything else is preserved verbatim.
func (j DeliveryJob) Next() DeliveryJob {
	next := j
	next.Attempt = j.Attempt + 1
	return next
}

func (j *DeliveryJob) Body() ([]byte, error) {
	return json.Marshal(j)
}

func (j *DeliveryJob) FromBody(body []byte) error {
	return json.Unmarshal(body, j)
}
