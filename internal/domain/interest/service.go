package interest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/saude/saude/internal/domain/factrel"
	"github.com/saude/saude/internal/domain/identity"
	"github.com/saude/saude/internal/domain/observation"
	"github.com/saude/saude/internal/domain/vocabulary"
	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/internal/platform/db"
	"github.com/saude/saude/internal/platform/events"
	"github.com/saude/saude/internal/platform/middleware"
)

type Documents interface {
	CreateDocument(ctx context.Context, subject observation.Subject, payload observation.Payload, opts observation.CreateOptions) (*observation.Document, error)
	ReadDocument(ctx context.Context, id int64) (*observation.Document, error)
	Lookup(ctx context.Context, id int64, typeCode string) (*observation.Observation, error)
	ListDocuments(ctx context.Context, f observation.DocumentFilter) ([]*observation.Document, error)
	ReplaceDocument(ctx context.Context, id int64, payload observation.Payload, shared *bool, check func(*observation.Observation) error) (*observation.Document, error)
	Mark(ctx context.Context, docID int64, markerID string, present bool) (*observation.MarkResult, error)
	Delete(ctx context.Context, id int64, typeCode string, personID int64) error
}

// Relations removes the edges of a deleted area.
type Relations interface {
	UnlinkAll(ctx context.Context, ref factrel.EntityRef) (int64, error)
}

type Links interface {
	IsLinked(ctx context.Context, personID, providerID int64) (bool, error)
}

type Directory interface {
	GetProvider(ctx context.Context, id int64) (*identity.Provider, error)
	ListProviders(ctx context.Context, ids []int64) ([]*identity.Provider, error)
}

type Service struct {
	docs      Documents
	relations Relations
	links     Links
	directory Directory
	tx        db.TxRunner
	events    events.Publisher
	logger    zerolog.Logger
}

func NewService(docs Documents, relations Relations, links Links, directory Directory, tx db.TxRunner, pub events.Publisher, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop
	}
	return &Service{docs: docs, relations: relations, links: links, directory: directory, tx: tx, events: pub, logger: logger}
}

var errNotFound = fmt.Errorf("%w: %s", apperr.ErrNotFound, MsgNotFound)

func (in *Input) payload() (*observation.InterestAreaPayload, error) {
	name := middleware.CleanText(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", apperr.ErrValidation)
	}
	p := &observation.InterestAreaPayload{Name: name, Triggers: make([]observation.Trigger, 0, len(in.Triggers))}
	for i, t := range in.Triggers {
		t.Name = middleware.CleanText(t.Name)
		if t.Name == "" {
			return nil, fmt.Errorf("%w: trigger %d: name is required", apperr.ErrValidation, i)
		}
		if t.Type == "" {
			t.Type = TriggerText
		}
		if !triggerTypes[t.Type] {
			return nil, fmt.Errorf("%w: trigger %d: unknown type %q", apperr.ErrValidation, i, t.Type)
		}
		t.Response = nil
		p.Triggers = append(p.Triggers, t)
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, personID int64, in *Input) (*Area, error) {
	p, err := in.payload()
	if err != nil {
		return nil, err
	}
	shared := in.SharedWithProvider
	if shared == nil {
		f := false
		shared = &f
	}
	doc, err := s.docs.CreateDocument(ctx, observation.PersonSubject(personID), p, observation.CreateOptions{
		Shared:          shared,
		TypeConceptCode: vocabulary.CodePersonGenerated,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("person_id", personID).Int64("interest_area_id", doc.ID).Msg("interest area created")
	return fromDocument(doc), nil
}

// List returns the person's areas newest first.
func (s *Service) List(ctx context.Context, personID int64) ([]*Area, error) {
	return s.list(ctx, observation.DocumentFilter{
		Subject:  observation.PersonSubject(personID),
		TypeCode: vocabulary.CodeInterestArea,
	})
}

// Shared returns the areas a linked provider may see, with marker names.
func (s *Service) Shared(ctx context.Context, providerID, personID int64) ([]*Area, error) {
	if err := s.requireLink(ctx, personID, providerID, MsgNotLinked); err != nil {
		return nil, err
	}
	areas, err := s.list(ctx, observation.DocumentFilter{
		Subject:    observation.PersonSubject(personID),
		TypeCode:   vocabulary.CodeInterestArea,
		SharedOnly: true,
	})
	if err != nil {
		return nil, err
	}
	return areas, s.nameMarkers(ctx, areas)
}

func (s *Service) list(ctx context.Context, f observation.DocumentFilter) ([]*Area, error) {
	docs, err := s.docs.ListDocuments(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]*Area, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDocument(d))
	}
	return out, nil
}

func (s *Service) nameMarkers(ctx context.Context, areas []*Area) error {
	set := map[int64]bool{}
	for _, a := range areas {
		for _, m := range a.MarkedBy {
			if id, err := strconv.ParseInt(m, 10, 64); err == nil {
				set[id] = true
			}
		}
	}
	if len(set) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	providers, err := s.directory.ListProviders(ctx, ids)
	if err != nil {
		return err
	}
	names := make(map[string]string, len(providers))
	for _, p := range providers {
		names[strconv.FormatInt(p.ID, 10)] = p.DisplayName()
	}
	for _, a := range areas {
		a.MarkedByNames = make([]string, 0, len(a.MarkedBy))
		for _, m := range a.MarkedBy {
			if n, ok := names[m]; ok {
				a.MarkedByNames = append(a.MarkedByNames, n)
			}
		}
	}
	return nil
}

// Get returns one of the person's areas.
func (s *Service) Get(ctx context.Context, personID, id int64) (*Area, error) {
	o, err := s.docs.Lookup(ctx, id, vocabulary.CodeInterestArea)
	if err != nil {
		return nil, s.notFound(err)
	}
	if o.PersonID == nil || *o.PersonID != personID {
		return nil, errNotFound
	}
	doc, err := s.docs.ReadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromDocument(doc), nil
}

// Update replaces name, triggers and sharing. Provider marks are kept.
func (s *Service) Update(ctx context.Context, personID, id int64, in *Input) (*Area, error) {
	p, err := in.payload()
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.ReplaceDocument(ctx, id, p, in.SharedWithProvider, func(o *observation.Observation) error {
		if o.PersonID == nil || *o.PersonID != personID {
			return errNotFound
		}
		if o.ValueAsString == nil {
			return nil
		}
		stored, err := observation.DecodeInterestArea(*o.ValueAsString)
		if err != nil {
			s.logger.Warn().Err(err).Int64("interest_area_id", id).Msg("stored interest area unreadable, marks dropped")
			return nil
		}
		p.MarkedBy = stored.MarkedBy
		p.IsAttentionPoint = stored.IsAttentionPoint
		return nil
	})
	if err != nil {
		return nil, s.notFound(err)
	}
	return fromDocument(doc), nil
}

// Delete removes the area and every edge that points at it.
func (s *Service) Delete(ctx context.Context, personID, id int64) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.docs.Delete(ctx, id, vocabulary.CodeInterestArea, personID); err != nil {
			return err
		}
		_, err := s.relations.UnlinkAll(ctx, factrel.InterestArea(id))
		return err
	})
	if err != nil {
		return s.notFound(err)
	}
	s.logger.Info().Int64("person_id", personID).Int64("interest_area_id", id).Msg("interest area deleted")
	return nil
}

// Mark records or withdraws providerID's attention-point mark on an area
// owned by a linked person.
func (s *Service) Mark(ctx context.Context, providerID, id int64, req MarkRequest) (*MarkResponse, error) {
	present := true
	if req.IsAttentionPoint != nil {
		present = *req.IsAttentionPoint
	}
	o, err := s.docs.Lookup(ctx, id, vocabulary.CodeInterestArea)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, MsgMarkNotFound)
	}
	if err != nil {
		return nil, err
	}
	provider, err := s.directory.GetProvider(ctx, providerID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, MsgMarkNotFound)
	}
	if err != nil {
		return nil, err
	}
	if o.PersonID == nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, MsgMarkNotFound)
	}
	personID := *o.PersonID
	if err := s.requireLink(ctx, personID, providerID, MsgMarkForbidden); err != nil {
		return nil, err
	}

	res, err := s.docs.Mark(ctx, id, strconv.FormatInt(providerID, 10), present)
	if err != nil {
		return nil, err
	}
	if res.Action == observation.MarkAdded || res.Action == observation.MarkRemoved {
		events.Emit(ctx, s.events, s.logger, events.New(events.InterestAreaMarked, personID, providerID, id,
			map[string]interface{}{"action": res.Action, "total_markers": res.TotalMarkers}))
	}
	s.logger.Info().Int64("interest_area_id", id).Int64("provider_id", providerID).Str("action", res.Action).Msg("attention point")
	return &MarkResponse{
		ProviderName:  provider.DisplayName(),
		IsMarked:      res.IsMarked,
		TotalMarkers:  res.TotalMarkers,
		MarkingAction: res.Action,
	}, nil
}

func (s *Service) requireLink(ctx context.Context, personID, providerID int64, msg string) error {
	ok, err := s.links.IsLinked(ctx, personID, providerID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", apperr.ErrForbidden, msg)
	}
	return nil
}

func (s *Service) notFound(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return errNotFound
	}
	return err
}
