package factrel

import (
	"context"
	"errors"
	"testing"

	"github.com/saude/saude/internal/domain/vocabulary"
	"github.com/saude/saude/internal/platform/apperr"
)

type edgeKey struct{ id1, id2, rel int64 }

type mockRepo struct {
	edges  map[edgeKey]*Edge
	nextID int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{edges: make(map[edgeKey]*Edge)}
}

func (m *mockRepo) Insert(_ context.Context, e *Edge) (bool, error) {
	k := edgeKey{e.FactID1, e.FactID2, e.RelationshipConceptID}
	if existing, ok := m.edges[k]; ok {
		*e = *existing
		return false, nil
	}
	m.nextID++
	e.ID = m.nextID
	stored := *e
	m.edges[k] = &stored
	return true, nil
}

func (m *mockRepo) Targets(_ context.Context, d1, id1, d2, rel int64) ([]int64, error) {
	var out []int64
	for _, e := range m.edges {
		if e.DomainConcept1ID == d1 && e.FactID1 == id1 && e.DomainConcept2ID == d2 && e.RelationshipConceptID == rel {
			out = append(out, e.FactID2)
		}
	}
	return out, nil
}

func (m *mockRepo) Sources(_ context.Context, d2, id2, d1, rel int64) ([]int64, error) {
	var out []int64
	for _, e := range m.edges {
		if e.DomainConcept2ID == d2 && e.FactID2 == id2 && e.DomainConcept1ID == d1 && e.RelationshipConceptID == rel {
			out = append(out, e.FactID1)
		}
	}
	return out, nil
}

func (m *mockRepo) Exists(_ context.Context, id1, id2, rel int64) (bool, error) {
	_, ok := m.edges[edgeKey{id1, id2, rel}]
	return ok, nil
}

func (m *mockRepo) Delete(_ context.Context, id1, id2, rel int64) (int64, error) {
	k := edgeKey{id1, id2, rel}
	if _, ok := m.edges[k]; !ok {
		return 0, nil
	}
	delete(m.edges, k)
	return 1, nil
}

func (m *mockRepo) DeleteByEntity(_ context.Context, domain, id int64) (int64, error) {
	var n int64
	for k, e := range m.edges {
		if (e.DomainConcept1ID == domain && e.FactID1 == id) || (e.DomainConcept2ID == domain && e.FactID2 == id) {
			delete(m.edges, k)
			n++
		}
	}
	return n, nil
}

type mockEntities map[EntityRef]bool

func (m mockEntities) EntityExists(_ context.Context, ref EntityRef) (bool, error) {
	return m[ref], nil
}

func testRegistry() *vocabulary.Registry {
	return vocabulary.NewRegistry(map[string]int64{
		vocabulary.CodePerson:         2000005001,
		vocabulary.CodeProvider:       2000005002,
		vocabulary.CodePersonProvider: 2000004002,
		vocabulary.CodeInterestArea:   2000008000,
		vocabulary.CodeTrigger:        2000008001,
		vocabulary.CodeDiaryEntry:     2000006000,
		vocabulary.CodeInterestDiary:  2000009001,
	})
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	entities := mockEntities{
		Person(1): true, Person(2): true,
		Provider(10): true, Provider(11): true,
		Observation(100): true, InterestArea(200): true,
	}
	return NewService(repo, entities, testRegistry()), repo
}

func TestLink_Idempotent(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	first, created, err := svc.Link(ctx, Person(1), Provider(10), vocabulary.CodePersonProvider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected first link to be created")
	}

	second, created, err := svc.Link(ctx, Person(1), Provider(10), vocabulary.CodePersonProvider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected second link to report an existing edge")
	}
	if first.ID != second.ID {
		t.Errorf("expected same edge, got %d and %d", first.ID, second.ID)
	}
	if len(repo.edges) != 1 {
		t.Errorf("expected one edge, got %d", len(repo.edges))
	}
}

func TestLink_OrientsPersonFirst(t *testing.T) {
	svc, _ := newTestService()

	e, _, err := svc.Link(context.Background(), Provider(10), Person(1), vocabulary.CodePersonProvider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.FactID1 != 1 || e.DomainConcept1ID != 2000005001 {
		t.Errorf("expected person on side 1, got %+v", e)
	}
	if e.FactID2 != 10 || e.DomainConcept2ID != 2000005002 {
		t.Errorf("expected provider on side 2, got %+v", e)
	}
}

func TestLink_MissingEntity(t *testing.T) {
	svc, repo := newTestService()

	_, _, err := svc.Link(context.Background(), Person(99), Provider(10), vocabulary.CodePersonProvider)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(repo.edges) != 0 {
		t.Error("no edge should be written for a missing entity")
	}
}

func TestLink_SameKind(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.Link(context.Background(), Person(1), Person(2), vocabulary.CodePersonProvider)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestLink_UnknownRelationship(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.Link(context.Background(), Person(1), Provider(10), "NOPE")
	if !errors.Is(err, vocabulary.ErrConceptNotFound) {
		t.Fatalf("expected ErrConceptNotFound, got %v", err)
	}
}

func TestFindBy_BothDirections(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	svc.Link(ctx, Person(1), Provider(10), vocabulary.CodePersonProvider)
	svc.Link(ctx, Person(1), Provider(11), vocabulary.CodePersonProvider)
	svc.Link(ctx, Person(2), Provider(10), vocabulary.CodePersonProvider)

	providers, err := svc.FindBy(ctx, Person(1), KindProvider, vocabulary.CodePersonProvider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(providers) != 2 {
		t.Errorf("expected 2 providers, got %v", providers)
	}

	persons, err := svc.FindBy(ctx, Provider(10), KindPerson, vocabulary.CodePersonProvider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(persons) != 2 {
		t.Errorf("expected 2 persons, got %v", persons)
	}

	none, _ := svc.FindBy(ctx, Provider(11), KindInterestArea, vocabulary.CodePersonProvider)
	if len(none) != 0 {
		t.Errorf("expected kind filter to exclude person edges, got %v", none)
	}
}

func TestFindBy_DiaryInterestAreas(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if _, _, err := svc.Link(ctx, InterestArea(200), Observation(100), vocabulary.CodeInterestDiary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	areas, err := svc.FindBy(ctx, Observation(100), KindInterestArea, vocabulary.CodeInterestDiary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(areas) != 1 || areas[0] != 200 {
		t.Errorf("expected [200], got %v", areas)
	}
}

func TestUnlink(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	svc.Link(ctx, Person(1), Provider(10), vocabulary.CodePersonProvider)

	n, err := svc.Unlink(ctx, Provider(10), Person(1), vocabulary.CodePersonProvider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}

	n, err = svc.Unlink(ctx, Person(1), Provider(10), vocabulary.CodePersonProvider)
	if err != nil {
		t.Fatalf("already unlinked must not be an error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 removed, got %d", n)
	}

	linked, _ := svc.Linked(ctx, Person(1), Provider(10), vocabulary.CodePersonProvider)
	if linked {
		t.Error("expected pair to be unlinked")
	}
}

func TestEntityRef_String(t *testing.T) {
	if got := Provider(7).String(); got != "provider/7" {
		t.Errorf("unexpected string %q", got)
	}
	if got := Kind(42).String(); got != "kind(42)" {
		t.Errorf("unexpected string %q", got)
	}
}

func TestUnlinkAll(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	for _, p := range []EntityRef{Provider(10), Provider(11)} {
		if _, _, err := svc.Link(ctx, Person(1), p, vocabulary.CodePersonProvider); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := svc.Link(ctx, Person(2), Provider(10), vocabulary.CodePersonProvider); err != nil {
		t.Fatal(err)
	}

	n, err := svc.UnlinkAll(ctx, Person(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 edges removed, got %d", n)
	}
	if len(repo.edges) != 1 {
		t.Errorf("expected person 2 edge to remain, got %d edges", len(repo.edges))
	}

	n, err = svc.UnlinkAll(ctx, Provider(10))
	if err != nil || n != 1 {
		t.Errorf("expected 1 provider edge removed, got %d (%v)", n, err)
	}
}
