package vocabulary

import (
	"context"
	"fmt"

	"github.com/saude/saude/internal/platform/apperr"
)

type Service struct {
	repo      Repository
	templates []InterestTemplate
}

func NewService(repo Repository, templates []InterestTemplate) *Service {
	return &Service{repo: repo, templates: templates}
}

func (s *Service) GetConcept(ctx context.Context, id int64, languageCode string) (*Concept, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: invalid concept id", apperr.ErrValidation)
	}
	if languageCode == "" {
		languageCode = DefaultLanguageCode
	}
	return s.repo.GetConcept(ctx, id, languageCode)
}

func (s *Service) ListConcepts(ctx context.Context, f ConceptFilter, limit, offset int) ([]*Concept, int, error) {
	if f.LanguageCode == "" {
		f.LanguageCode = DefaultLanguageCode
	}
	return s.repo.ListConcepts(ctx, f, limit, offset)
}

func (s *Service) ListDomains(ctx context.Context) ([]*Domain, error) {
	return s.repo.ListDomains(ctx)
}

func (s *Service) ListVocabularies(ctx context.Context) ([]*Vocabulary, error) {
	return s.repo.ListVocabularies(ctx)
}

// InterestTemplates returns the seeded interest-area catalogue.
func (s *Service) InterestTemplates() []InterestTemplate {
	return s.templates
}
