package factrel

import (
	"context"
	"fmt"

	"github.com/saude/saude/internal/domain/vocabulary"
	"github.com/saude/saude/internal/platform/apperr"
)

type Service struct {
	repo     Repository
	entities EntityChecker
	concepts vocabulary.Resolver
}

func NewService(repo Repository, entities EntityChecker, concepts vocabulary.Resolver) *Service {
	return &Service{repo: repo, entities: entities, concepts: concepts}
}

func (s *Service) domainID(k Kind) (int64, error) {
	code, ok := k.DomainCode()
	if !ok {
		return 0, fmt.Errorf("%w: unknown entity kind %s", apperr.ErrValidation, k)
	}
	return s.concepts.Resolve(code)
}

func (s *Service) checkEntities(ctx context.Context, refs ...EntityRef) error {
	for _, ref := range refs {
		if ref.ID <= 0 {
			return fmt.Errorf("%w: invalid %s id", apperr.ErrValidation, ref.Kind)
		}
		ok, err := s.entities.EntityExists(ctx, ref)
		if err != nil {
			return fmt.Errorf("check %s: %w", ref, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s %d", apperr.ErrNotFound, ref.Kind, ref.ID)
		}
	}
	return nil
}

// edge resolves the concepts for an a-b edge of type relCode, oriented so
// that side 1 holds the lower-ranked kind.
func (s *Service) edge(a, b EntityRef, relCode string) (*Edge, error) {
	if a.Kind == b.Kind {
		return nil, fmt.Errorf("%w: cannot relate two %s entities", apperr.ErrValidation, a.Kind)
	}
	one, two := orient(a, b)
	d1, err := s.domainID(one.Kind)
	if err != nil {
		return nil, err
	}
	d2, err := s.domainID(two.Kind)
	if err != nil {
		return nil, err
	}
	rel, err := s.concepts.Resolve(relCode)
	if err != nil {
		return nil, err
	}
	return &Edge{
		DomainConcept1ID:      d1,
		FactID1:               one.ID,
		DomainConcept2ID:      d2,
		FactID2:               two.ID,
		RelationshipConceptID: rel,
	}, nil
}

// Link creates the a-b edge. Linking an existing pair returns the stored edge
// with created=false.
func (s *Service) Link(ctx context.Context, a, b EntityRef, relCode string) (*Edge, bool, error) {
	e, err := s.edge(a, b, relCode)
	if err != nil {
		return nil, false, err
	}
	if err := s.checkEntities(ctx, a, b); err != nil {
		return nil, false, err
	}
	created, err := s.repo.Insert(ctx, e)
	if err != nil {
		return nil, false, fmt.Errorf("link %s %s: %w", a, b, err)
	}
	return e, created, nil
}

// FindBy lists the ids of other-kind entities related to self.
func (s *Service) FindBy(ctx context.Context, self EntityRef, other Kind, relCode string) ([]int64, error) {
	if self.Kind == other {
		return nil, fmt.Errorf("%w: cannot relate two %s entities", apperr.ErrValidation, other)
	}
	selfDomain, err := s.domainID(self.Kind)
	if err != nil {
		return nil, err
	}
	otherDomain, err := s.domainID(other)
	if err != nil {
		return nil, err
	}
	rel, err := s.concepts.Resolve(relCode)
	if err != nil {
		return nil, err
	}
	if self.Kind < other {
		return s.repo.Targets(ctx, selfDomain, self.ID, otherDomain, rel)
	}
	return s.repo.Sources(ctx, selfDomain, self.ID, otherDomain, rel)
}

// Linked reports whether the a-b edge exists. It does not check that the
// entities themselves exist.
func (s *Service) Linked(ctx context.Context, a, b EntityRef, relCode string) (bool, error) {
	e, err := s.edge(a, b, relCode)
	if err != nil {
		return false, err
	}
	return s.repo.Exists(ctx, e.FactID1, e.FactID2, e.RelationshipConceptID)
}

// Unlink removes the a-b edge and returns the number of rows removed. Zero
// means the pair was already unlinked and is not an error.
func (s *Service) Unlink(ctx context.Context, a, b EntityRef, relCode string) (int64, error) {
	e, err := s.edge(a, b, relCode)
	if err != nil {
		return 0, err
	}
	if err := s.checkEntities(ctx, a, b); err != nil {
		return 0, err
	}
	n, err := s.repo.Delete(ctx, e.FactID1, e.FactID2, e.RelationshipConceptID)
	if err != nil {
		return 0, fmt.Errorf("unlink %s %s: %w", a, b, err)
	}
	return n, nil
}

// UnlinkAll removes every edge that touches ref, whatever its type. It is
// used when an account is deleted.
func (s *Service) UnlinkAll(ctx context.Context, ref EntityRef) (int64, error) {
	domain, err := s.domainID(ref.Kind)
	if err != nil {
		return 0, err
	}
	n, err := s.repo.DeleteByEntity(ctx, domain, ref.ID)
	if err != nil {
		return 0, fmt.Errorf("unlink all %s: %w", ref, err)
	}
	return n, nil
}
