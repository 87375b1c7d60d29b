package vocabulary

import "time"

// Concept is a controlled-vocabulary value. Rows are written only by the
// seeder and never updated afterwards.
type Concept struct {
	ID             int64     `db:"concept_id" json:"concept_id"`
	Name           string    `db:"concept_name" json:"concept_name"`
	DomainID       *string   `db:"domain_id" json:"domain_id,omitempty"`
	VocabularyID   *string   `db:"vocabulary_id" json:"vocabulary_id,omitempty"`
	ConceptClassID *string   `db:"concept_class_id" json:"concept_class_id,omitempty"`
	Code           string    `db:"concept_code" json:"concept_code"`
	ValidStartDate time.Time `db:"valid_start_date" json:"valid_start_date"`
	ValidEndDate   time.Time `db:"valid_end_date" json:"valid_end_date"`
	// TranslatedName is filled from concept_synonym for the requested language.
	TranslatedName *string `db:"-" json:"translated_name,omitempty"`
}

// DisplayName prefers the translated synonym.
func (c *Concept) DisplayName() string {
	if c.TranslatedName != nil && *c.TranslatedName != "" {
		return *c.TranslatedName
	}
	return c.Name
}

type Domain struct {
	ID        string `db:"domain_id" json:"domain_id"`
	Name      string `db:"domain_name" json:"domain_name"`
	ConceptID *int64 `db:"domain_concept_id" json:"domain_concept_id,omitempty"`
}

type Vocabulary struct {
	ID        string `db:"vocabulary_id" json:"vocabulary_id"`
	Name      string `db:"vocabulary_name" json:"vocabulary_name"`
	ConceptID *int64 `db:"vocabulary_concept_id" json:"vocabulary_concept_id,omitempty"`
}

type ConceptClass struct {
	ID        string `db:"concept_class_id" json:"concept_class_id"`
	Name      string `db:"concept_class_name" json:"concept_class_name"`
	ConceptID *int64 `db:"concept_class_concept_id" json:"concept_class_concept_id,omitempty"`
}

type ConceptSynonym struct {
	ConceptID         int64  `db:"concept_id" json:"concept_id"`
	Name              string `db:"concept_synonym_name" json:"concept_synonym_name"`
	LanguageConceptID int64  `db:"language_concept_id" json:"language_concept_id"`
}

// ConceptFilter narrows ListConcepts. Empty slices mean no filter.
type ConceptFilter struct {
	ClassIDs []string
	Codes    []string
	// LanguageCode is the concept_code of the language concept used to pick
	// translated names (SNOMED 297504001 is Portuguese).
	LanguageCode string
}

// DefaultLanguageCode is Portuguese.
const DefaultLanguageCode = "297504001"

// Codes of the concepts the application addresses by name. They form a closed
// namespace: every one of them must be present before the server starts.
const (
	CodePerson             = "PERSON"
	CodeProvider           = "PROVIDER"
	CodePersonProvider     = "PERSON_PROVIDER"
	CodeProviderLinkCode   = "PROVIDER_LINK_CODE"
	CodeClinicianGenerated = "CLINICIAN_GENERATED"
	CodePersonGenerated    = "PERSON_GENERATED"
	CodeSelfReported       = "SR"
	CodeHelp               = "HELP"
	CodeActive             = "ACTIVE"
	CodeResolved           = "RESOLVED"
	CodeInterestArea       = "INTEREST_AREA"
	CodeTrigger            = "TRIGGER"
	CodeInterestTrigger    = "AOI_TRIGGER"
	CodeInterestDiary      = "AOI_DIARY"
	CodeDiaryEntry         = "diary_entry"
	CodeBodyWeight         = "BW"
	CodeBodyHeight         = "BH"
)

// RequiredCodes is validated by Load at startup.
var RequiredCodes = []string{
	CodePerson,
	CodeProvider,
	CodePersonProvider,
	CodeProviderLinkCode,
	CodeClinicianGenerated,
	CodePersonGenerated,
	CodeSelfReported,
	CodeHelp,
	CodeActive,
	CodeResolved,
	CodeInterestArea,
	CodeTrigger,
	CodeInterestTrigger,
	CodeInterestDiary,
	CodeDiaryEntry,
	CodeBodyWeight,
	CodeBodyHeight,
}
