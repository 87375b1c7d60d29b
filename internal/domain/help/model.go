// Package help carries requests for attention from a person to the providers
// they are linked to. A request is an observation that starts ACTIVE and is
// moved to RESOLVED by its provider.
package help

import (
	"time"

	"github.com/saude/saude/internal/domain/observation"
)

const MsgNotFound = "Help request not found, not directed to you, or from non-linked person."

// SendItem is one element of a batch send.
type SendItem struct {
	ProviderID         int64  `json:"provider_id"`
	Message            string `json:"value_as_string"`
	SharedWithProvider *bool  `json:"shared_with_provider"`
}

// Request is the API view of a help observation.
type Request struct {
	ID                 int64     `json:"observation_id"`
	PersonID           int64     `json:"person_id"`
	PersonName         string    `json:"person_name,omitempty"`
	ProviderID         int64     `json:"provider_id"`
	ProviderName       string    `json:"provider_name,omitempty"`
	Status             string    `json:"status"`
	Message            string    `json:"value_as_string"`
	SharedWithProvider bool      `json:"shared_with_provider"`
	Date               time.Time `json:"observation_date"`
}

func fromDocument(d *observation.Document) *Request {
	r := &Request{
		ID:                 d.ID,
		SharedWithProvider: d.Shared(),
		Date:               d.Date,
	}
	if d.PersonID != nil {
		r.PersonID = *d.PersonID
	}
	if d.ProviderID != nil {
		r.ProviderID = *d.ProviderID
	}
	if p, ok := d.Payload.(*observation.HelpPayload); ok {
		r.Status = p.Status
		r.Message = p.Message
	}
	return r
}

type Count struct {
	HelpCount int `json:"help_count"`
}
