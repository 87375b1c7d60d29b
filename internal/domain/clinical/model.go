// Package clinical stores the structured clinical records of a person:
// measurements, drug exposures with their recurrence rules, and visits.
package clinical

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecurrenceRule describes how often a drug is taken. WeekdayBinary has one
// digit per weekday starting on Monday, e.g. "1010100".
type RecurrenceRule struct {
	ID                 int64      `json:"recurrence_rule_id"`
	FrequencyConceptID *int64     `json:"frequency_concept_id,omitempty"`
	Interval           int        `json:"interval"`
	WeekdayBinary      *string    `json:"weekday_binary,omitempty"`
	ValidStartDate     *time.Time `json:"valid_start_date,omitempty"`
	ValidEndDate       *time.Time `json:"valid_end_date,omitempty"`
}

type DrugExposure struct {
	ID               int64               `json:"drug_exposure_id"`
	PersonID         int64               `json:"person_id"`
	DrugConceptID    *int64              `json:"drug_concept_id,omitempty"`
	StartDate        *time.Time          `json:"drug_exposure_start_date,omitempty"`
	EndDate          *time.Time          `json:"drug_exposure_end_date,omitempty"`
	StopReason       *string             `json:"stop_reason,omitempty"`
	Quantity         decimal.NullDecimal `json:"quantity"`
	Sig              *string             `json:"sig,omitempty"`
	RecurrenceRuleID *int64              `json:"recurrence_rule_id,omitempty"`
	RecurrenceRule   *RecurrenceRule     `json:"recurrence_rule,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

type Measurement struct {
	ID            int64               `json:"measurement_id"`
	PersonID      int64               `json:"person_id"`
	ConceptID     int64               `json:"measurement_concept_id"`
	Date          time.Time           `json:"measurement_date"`
	ValueAsNumber decimal.NullDecimal `json:"value_as_number"`
	UnitConceptID *int64              `json:"unit_concept_id,omitempty"`
	TypeConceptID *int64              `json:"measurement_type_concept_id,omitempty"`
}

type Visit struct {
	ID             int64      `json:"visit_occurrence_id"`
	PersonID       int64      `json:"person_id"`
	ProviderID     *int64     `json:"provider_id,omitempty"`
	VisitConceptID *int64     `json:"visit_concept_id,omitempty"`
	StartDate      time.Time  `json:"visit_start_date"`
	EndDate        *time.Time `json:"visit_end_date,omitempty"`
	CareSiteID     *int64     `json:"care_site_id,omitempty"`
}

// BodyMetrics are the optional weight (kg) and height (cm) recorded at
// onboarding.
type BodyMetrics struct {
	Weight decimal.NullDecimal `json:"weight"`
	Height decimal.NullDecimal `json:"height"`
}
