// Package observation stores scalar and JSON-document observations. One
// table carries diary entries, interest areas, link codes and help requests;
// observation_concept_id selects the payload schema.
package observation

import "time"

// MaxPayloadLength is the capacity of value_as_string, in characters.
const MaxPayloadLength = 1000

type Observation struct {
	ID                 int64     `json:"observation_id"`
	PersonID           *int64    `json:"person_id"`
	ProviderID         *int64    `json:"provider_id"`
	ConceptID          int64     `json:"observation_concept_id"`
	ValueAsConceptID   *int64    `json:"value_as_concept_id,omitempty"`
	ValueAsString      *string   `json:"value_as_string,omitempty"`
	Date               time.Time `json:"observation_date"`
	TypeConceptID      *int64    `json:"observation_type_concept_id,omitempty"`
	SourceValue        *string   `json:"observation_source_value,omitempty"`
	SharedWithProvider *bool     `json:"shared_with_provider,omitempty"`
	Version            int       `json:"version"`
}

// Shared reports shared_with_provider, treating NULL as false.
func (o *Observation) Shared() bool {
	return o.SharedWithProvider != nil && *o.SharedWithProvider
}

// Subject is the person and/or provider an observation belongs to. A link
// code has only a provider until it is redeemed; a help request has both.
type Subject struct {
	PersonID   *int64
	ProviderID *int64
}

func PersonSubject(id int64) Subject   { return Subject{PersonID: &id} }
func ProviderSubject(id int64) Subject { return Subject{ProviderID: &id} }

// Filter selects observations for List and Count. Zero values do not filter.
type Filter struct {
	PersonID       *int64
	ProviderID     *int64
	ConceptID      int64
	ValueConceptID *int64
	SharedOnly     bool
	Since          *time.Time
	Until          *time.Time
	Limit          int
}

// Document is an observation together with its decoded payload.
type Document struct {
	*Observation
	Payload Payload `json:"payload"`
}
