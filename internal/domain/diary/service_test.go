package diary

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/saude/saude/internal/domain/factrel"
	"github.com/saude/saude/internal/domain/observation"
	"github.com/saude/saude/internal/domain/vocabulary"
	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/internal/platform/db"
)

const (
	ana    int64 = 1
	bruno  int64 = 2
	drBeto int64 = 10
)

type edge struct {
	a, b factrel.EntityRef
	rel  string
}

type mockRelations struct {
	edges   []edge
	removed []factrel.EntityRef
}

func (m *mockRelations) Link(_ context.Context, a, b factrel.EntityRef, rel string) (*factrel.Edge, bool, error) {
	m.edges = append(m.edges, edge{a, b, rel})
	return &factrel.Edge{}, true, nil
}

func (m *mockRelations) UnlinkAll(_ context.Context, ref factrel.EntityRef) (int64, error) {
	m.removed = append(m.removed, ref)
	return 1, nil
}

type mockLinks map[[2]int64]bool

func (m mockLinks) IsLinked(_ context.Context, personID, providerID int64) (bool, error) {
	return m[[2]int64{personID, providerID}], nil
}

type testEnv struct {
	svc       *Service
	docs      *observation.Service
	repo      *observation.MemoryRepo
	relations *mockRelations
}

func newTestEnv() *testEnv {
	repo := observation.NewMemoryRepo()
	registry := vocabulary.NewRegistry(map[string]int64{
		vocabulary.CodeInterestArea:    2000006000,
		vocabulary.CodeDiaryEntry:      2000008000,
		vocabulary.CodePersonGenerated: 2000004003,
	})
	docs := observation.NewService(repo, db.InlineTxRunner{}, registry, zerolog.Nop())
	rel := &mockRelations{}
	links := mockLinks{{ana, drBeto}: true}
	return &testEnv{
		svc:       NewService(docs, rel, links, db.InlineTxRunner{}, zerolog.Nop()),
		docs:      docs,
		repo:      repo,
		relations: rel,
	}
}

func (env *testEnv) area(t *testing.T, personID int64, name string, markedBy ...string) int64 {
	t.Helper()
	doc, err := env.docs.CreateDocument(context.Background(), observation.PersonSubject(personID),
		&observation.InterestAreaPayload{
			Name:             name,
			IsAttentionPoint: len(markedBy) > 0,
			MarkedBy:         markedBy,
			Triggers:         []observation.Trigger{{Name: "Dormiu bem?", Type: "boolean"}},
		}, observation.CreateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return doc.ID
}

func strPtr(s string) *string { return &s }

func TestCreate(t *testing.T) {
	env := newTestEnv()
	sono := env.area(t, ana, "Sono", "10")
	humor := env.area(t, ana, "Humor")

	e, err := env.svc.Create(context.Background(), ana, &Input{
		DateRangeType: observation.DateRangeToday,
		Text:          " Dia difícil ",
		InterestAreas: []AreaInput{
			{InterestAreaID: sono, SharedWithProvider: true, Triggers: []TriggerAnswer{{Name: "Dormiu bem?", Response: strPtr("não")}}},
			{InterestAreaID: humor},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if e.Text != "Dia difícil" || e.TextShared || !e.DiaryShared {
		t.Errorf("unexpected entry %+v", e)
	}
	if len(e.InterestAreas) != 2 {
		t.Fatalf("expected 2 areas, got %d", len(e.InterestAreas))
	}
	first := e.InterestAreas[0]
	if first.Name != "Sono" || !first.IsAttentionPoint || first.Triggers[0].Type != "boolean" || *first.Triggers[0].Response != "não" {
		t.Errorf("snapshot not taken from the stored area: %+v", first)
	}
	if e.InterestAreas[1].IsAttentionPoint {
		t.Error("Humor was never marked")
	}

	if len(env.relations.edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(env.relations.edges))
	}
	got := env.relations.edges[0]
	if got.a != factrel.InterestArea(sono) || got.b != factrel.Observation(e.ID) || got.rel != vocabulary.CodeInterestDiary {
		t.Errorf("unexpected edge %+v", got)
	}
}

func TestCreate_SkipsForeignAreas(t *testing.T) {
	env := newTestEnv()
	other := env.area(t, bruno, "Dor")
	e, err := env.svc.Create(context.Background(), ana, &Input{
		DateRangeType: observation.DateRangeSinceLast,
		InterestAreas: []AreaInput{{InterestAreaID: other, SharedWithProvider: true}, {InterestAreaID: 999}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(e.InterestAreas) != 0 || e.DiaryShared || len(env.relations.edges) != 0 {
		t.Errorf("foreign areas must be skipped: %+v", e)
	}
}

func TestCreate_InvalidDateRange(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.Create(context.Background(), ana, &Input{DateRangeType: "yesterday"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestListGetDelete(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	var ids []int64
	for i := 0; i < 3; i++ {
		e, err := env.svc.Create(ctx, ana, &Input{DateRangeType: observation.DateRangeToday, Text: "x"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, e.ID)
	}

	all, _ := env.svc.List(ctx, ana, 0)
	limited, _ := env.svc.List(ctx, ana, 2)
	if len(all) != 3 || len(limited) != 2 {
		t.Errorf("expected 3 and 2 entries, got %d and %d", len(all), len(limited))
	}
	if all[0].ID != ids[2] {
		t.Errorf("expected newest first, got %d", all[0].ID)
	}

	if _, err := env.svc.Get(ctx, bruno, ids[0]); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("another person must not read, got %v", err)
	}
	if err := env.svc.Delete(ctx, bruno, ids[0]); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("another person must not delete, got %v", err)
	}
	if err := env.svc.Delete(ctx, ana, ids[0]); err != nil {
		t.Fatal(err)
	}
	if len(env.relations.removed) != 1 || env.relations.removed[0] != factrel.Observation(ids[0]) {
		t.Errorf("edges not removed: %v", env.relations.removed)
	}
	if _, err := env.svc.Get(ctx, ana, ids[0]); apperr.Message(err) != MsgNotFound {
		t.Errorf("expected %q, got %v", MsgNotFound, err)
	}
}

func TestSharedWith(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	sono := env.area(t, ana, "Sono")
	humor := env.area(t, ana, "Humor")

	private, _ := env.svc.Create(ctx, ana, &Input{DateRangeType: observation.DateRangeToday, Text: "só meu"})
	shared, err := env.svc.Create(ctx, ana, &Input{
		DateRangeType: observation.DateRangeToday,
		Text:          "segredo",
		InterestAreas: []AreaInput{{InterestAreaID: sono, SharedWithProvider: true}, {InterestAreaID: humor}},
	})
	if err != nil {
		t.Fatal(err)
	}

	entries, err := env.svc.SharedWith(ctx, drBeto, ana, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ID != shared.ID {
		t.Fatalf("expected only the shared entry, got %+v", entries)
	}
	e := entries[0]
	if e.Text != "" {
		t.Errorf("private text leaked: %q", e.Text)
	}
	if len(e.InterestAreas) != 1 || e.InterestAreas[0].InterestAreaID != sono {
		t.Errorf("private areas leaked: %+v", e.InterestAreas)
	}

	if _, err := env.svc.GetShared(ctx, drBeto, ana, private.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("private entry must be hidden, got %v", err)
	}
	if _, err := env.svc.GetShared(ctx, drBeto, ana, shared.ID); err != nil {
		t.Errorf("shared entry: %v", err)
	}
	if _, err := env.svc.SharedWith(ctx, drBeto, bruno, 0); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for a non-linked person, got %v", err)
	}
}
