package diary

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/saude/saude/internal/domain/factrel"
	"github.com/saude/saude/internal/domain/observation"
	"github.com/saude/saude/internal/domain/vocabulary"
	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/internal/platform/db"
	"github.com/saude/saude/internal/platform/middleware"
)

type Documents interface {
	CreateDocument(ctx context.Context, subject observation.Subject, payload observation.Payload, opts observation.CreateOptions) (*observation.Document, error)
	ReadDocument(ctx context.Context, id int64) (*observation.Document, error)
	Lookup(ctx context.Context, id int64, typeCode string) (*observation.Observation, error)
	ListDocuments(ctx context.Context, f observation.DocumentFilter) ([]*observation.Document, error)
	Delete(ctx context.Context, id int64, typeCode string, personID int64) error
}

type Relations interface {
	Link(ctx context.Context, a, b factrel.EntityRef, relCode string) (*factrel.Edge, bool, error)
	UnlinkAll(ctx context.Context, ref factrel.EntityRef) (int64, error)
}

type Links interface {
	IsLinked(ctx context.Context, personID, providerID int64) (bool, error)
}

type Service struct {
	docs      Documents
	relations Relations
	links     Links
	tx        db.TxRunner
	logger    zerolog.Logger
}

func NewService(docs Documents, relations Relations, links Links, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{docs: docs, relations: relations, links: links, tx: tx, logger: logger}
}

var errNotFound = fmt.Errorf("%w: %s", apperr.ErrNotFound, MsgNotFound)

// snapshot copies the current name and attention state of an interest area
// the person owns. ok is false when the area is missing or belongs to
// someone else.
func (s *Service) snapshot(ctx context.Context, personID int64, in AreaInput) (observation.DiaryInterestArea, bool, error) {
	out := observation.DiaryInterestArea{
		InterestAreaID:     in.InterestAreaID,
		SharedWithProvider: in.SharedWithProvider,
		Triggers:           make([]observation.Trigger, 0, len(in.Triggers)),
	}
	o, err := s.docs.Lookup(ctx, in.InterestAreaID, vocabulary.CodeInterestArea)
	if errors.Is(err, apperr.ErrNotFound) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	if o.PersonID == nil || *o.PersonID != personID {
		return out, false, nil
	}

	types := map[string]string{}
	if o.ValueAsString != nil {
		if area, err := observation.DecodeInterestArea(*o.ValueAsString); err == nil {
			out.Name = area.Name
			out.IsAttentionPoint = area.IsAttentionPoint
			for _, t := range area.Triggers {
				types[t.Name] = t.Type
			}
		} else {
			s.logger.Warn().Err(err).Int64("interest_area_id", o.ID).Msg("interest area unreadable, snapshot without name")
		}
	}
	for _, t := range in.Triggers {
		name := middleware.CleanText(t.Name)
		if name == "" {
			continue
		}
		typ := t.Type
		if typ == "" {
			typ = types[name]
		}
		if typ == "" {
			typ = "text"
		}
		var response *string
		if t.Response != nil {
			r := middleware.CleanText(*t.Response)
			response = &r
		}
		out.Triggers = append(out.Triggers, observation.Trigger{Name: name, Type: typ, Response: response})
	}
	return out, true, nil
}

// Create stores a new entry and joins it to every interest area it answers.
// Areas that do not exist or belong to another person are skipped.
func (s *Service) Create(ctx context.Context, personID int64, in *Input) (*Entry, error) {
	if in.DateRangeType != observation.DateRangeToday && in.DateRangeType != observation.DateRangeSinceLast {
		return nil, fmt.Errorf("%w: date_range_type must be %q or %q", apperr.ErrValidation,
			observation.DateRangeToday, observation.DateRangeSinceLast)
	}
	payload := &observation.DiaryPayload{
		DateRangeType: in.DateRangeType,
		Text:          middleware.CleanText(in.Text),
		TextShared:    in.TextShared,
		InterestAreas: make([]observation.DiaryInterestArea, 0, len(in.InterestAreas)),
	}
	payload.DiaryShared = payload.TextShared

	var doc *observation.Document
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		seen := map[int64]bool{}
		for _, a := range in.InterestAreas {
			if seen[a.InterestAreaID] {
				continue
			}
			seen[a.InterestAreaID] = true
			snap, ok, err := s.snapshot(ctx, personID, a)
			if err != nil {
				return err
			}
			if !ok {
				s.logger.Warn().Int64("person_id", personID).Int64("interest_area_id", a.InterestAreaID).
					Msg("diary skipped unknown interest area")
				continue
			}
			payload.InterestAreas = append(payload.InterestAreas, snap)
			if snap.SharedWithProvider {
				payload.DiaryShared = true
			}
		}

		var err error
		doc, err = s.docs.CreateDocument(ctx, observation.PersonSubject(personID), payload, observation.CreateOptions{
			Shared:          &payload.DiaryShared,
			TypeConceptCode: vocabulary.CodePersonGenerated,
		})
		if err != nil {
			return err
		}
		for _, a := range payload.InterestAreas {
			if _, _, err := s.relations.Link(ctx, factrel.InterestArea(a.InterestAreaID), factrel.Observation(doc.ID), vocabulary.CodeInterestDiary); err != nil {
				return fmt.Errorf("link diary %d to interest area %d: %w", doc.ID, a.InterestAreaID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("person_id", personID).Int64("diary_id", doc.ID).
		Int("interest_areas", len(payload.InterestAreas)).Bool("shared", payload.DiaryShared).Msg("diary created")
	return fromDocument(doc), nil
}

// List returns the person's entries newest first. limit <= 0 returns all.
func (s *Service) List(ctx context.Context, personID int64, limit int) ([]*Entry, error) {
	return s.list(ctx, personID, false, limit)
}

func (s *Service) list(ctx context.Context, personID int64, sharedOnly bool, limit int) ([]*Entry, error) {
	docs, err := s.docs.ListDocuments(ctx, observation.DocumentFilter{
		Subject:    observation.PersonSubject(personID),
		TypeCode:   vocabulary.CodeDiaryEntry,
		SharedOnly: sharedOnly,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Entry, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDocument(d))
	}
	return out, nil
}

func (s *Service) owned(ctx context.Context, personID, id int64, sharedOnly bool) (*Entry, error) {
	o, err := s.docs.Lookup(ctx, id, vocabulary.CodeDiaryEntry)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.PersonID == nil || *o.PersonID != personID || (sharedOnly && !o.Shared()) {
		return nil, errNotFound
	}
	doc, err := s.docs.ReadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromDocument(doc), nil
}

func (s *Service) Get(ctx context.Context, personID, id int64) (*Entry, error) {
	return s.owned(ctx, personID, id, false)
}

// Delete removes the entry and its interest-area edges.
func (s *Service) Delete(ctx context.Context, personID, id int64) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.docs.Delete(ctx, id, vocabulary.CodeDiaryEntry, personID); err != nil {
			return err
		}
		_, err := s.relations.UnlinkAll(ctx, factrel.Observation(id))
		return err
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return errNotFound
	}
	if err != nil {
		return err
	}
	s.logger.Info().Int64("person_id", personID).Int64("diary_id", id).Msg("diary deleted")
	return nil
}

// SharedWith lists the entries personID shared, as seen by a linked provider.
func (s *Service) SharedWith(ctx context.Context, providerID, personID int64, limit int) ([]*Entry, error) {
	if err := s.requireLink(ctx, personID, providerID); err != nil {
		return nil, err
	}
	entries, err := s.list(ctx, personID, true, limit)
	if err != nil {
		return nil, err
	}
	for i, e := range entries {
		entries[i] = e.redacted()
	}
	return entries, nil
}

// GetShared returns one shared entry as seen by a linked provider.
func (s *Service) GetShared(ctx context.Context, providerID, personID, id int64) (*Entry, error) {
	if err := s.requireLink(ctx, personID, providerID); err != nil {
		return nil, err
	}
	e, err := s.owned(ctx, personID, id, true)
	if err != nil {
		return nil, err
	}
	return e.redacted(), nil
}

func (s *Service) requireLink(ctx context.Context, personID, providerID int64) error {
	ok, err := s.links.IsLinked(ctx, personID, providerID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", apperr.ErrForbidden, MsgNotLinked)
	}
	return nil
}
