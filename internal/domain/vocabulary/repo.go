package vocabulary

import "context"

type Repository interface {
	CodeFinder
	GetConcept(ctx context.Context, id int64, languageCode string) (*Concept, error)
	ListConcepts(ctx context.Context, f ConceptFilter, limit, offset int) ([]*Concept, int, error)
	ListDomains(ctx context.Context) ([]*Domain, error)
	ListVocabularies(ctx context.Context) ([]*Vocabulary, error)
}

// Seeder writes reference rows. Every method inserts when the natural key is
// absent and leaves an existing row untouched, reporting whether it wrote.
type Seeder interface {
	EnsureVocabulary(ctx context.Context, v *Vocabulary) (bool, error)
	EnsureDomain(ctx context.Context, d *Domain) (bool, error)
	EnsureConceptClass(ctx context.Context, cc *ConceptClass) (bool, error)
	EnsureConcept(ctx context.Context, c *Concept) (bool, error)
	EnsureSynonym(ctx context.Context, s *ConceptSynonym) (bool, error)
}
