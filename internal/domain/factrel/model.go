// Package factrel stores typed edges between arbitrary entities in the
// fact_relationship table.
package factrel

import (
	"fmt"
	"time"

	"github.com/saude/saude/internal/domain/vocabulary"
)

// Kind tags the entity an EntityRef points at.
type Kind int

const (
	KindPerson Kind = iota + 1
	KindObservation
	KindInterestArea
	KindTrigger
	KindProvider
)

var kindCodes = map[Kind]string{
	KindPerson:       vocabulary.CodePerson,
	KindObservation:  vocabulary.CodeDiaryEntry,
	KindInterestArea: vocabulary.CodeInterestArea,
	KindTrigger:      vocabulary.CodeTrigger,
	KindProvider:     vocabulary.CodeProvider,
}

func (k Kind) String() string {
	switch k {
	case KindPerson:
		return "person"
	case KindObservation:
		return "observation"
	case KindInterestArea:
		return "interest_area"
	case KindTrigger:
		return "trigger"
	case KindProvider:
		return "provider"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DomainCode is the concept code stored in domain_concept_{1,2}_id.
func (k Kind) DomainCode() (string, bool) {
	c, ok := kindCodes[k]
	return c, ok
}

// EntityRef identifies one end of an edge.
type EntityRef struct {
	Kind Kind
	ID   int64
}

func Person(id int64) EntityRef       { return EntityRef{Kind: KindPerson, ID: id} }
func Provider(id int64) EntityRef     { return EntityRef{Kind: KindProvider, ID: id} }
func InterestArea(id int64) EntityRef { return EntityRef{Kind: KindInterestArea, ID: id} }
func Trigger(id int64) EntityRef      { return EntityRef{Kind: KindTrigger, ID: id} }
func Observation(id int64) EntityRef  { return EntityRef{Kind: KindObservation, ID: id} }

func (e EntityRef) String() string {
	return fmt.Sprintf("%s/%d", e.Kind, e.ID)
}

// orient puts the lower-ranked kind on side 1. A person is always side 1 and
// a provider always side 2, so person->provider links read fact_id_1 = person.
func orient(a, b EntityRef) (EntityRef, EntityRef) {
	if b.Kind < a.Kind {
		return b, a
	}
	return a, b
}

// Edge is one fact_relationship row.
type Edge struct {
	ID                    int64     `json:"id"`
	DomainConcept1ID      int64     `json:"domain_concept_1"`
	FactID1               int64     `json:"fact_id_1"`
	DomainConcept2ID      int64     `json:"domain_concept_2"`
	FactID2               int64     `json:"fact_id_2"`
	RelationshipConceptID int64     `json:"relationship_concept"`
	CreatedAt             time.Time `json:"created_at"`
}
