package observation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/saude/saude/internal/domain/vocabulary"
	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/internal/platform/db"
)

var (
	ErrAlreadyResolved = fmt.Errorf("%w: Help request is already resolved.", apperr.ErrConflict)
	ErrHelpNotActive   = fmt.Errorf("%w: Help request is not active.", apperr.ErrConflict)
)

// Concepts is the registry view the service needs.
type Concepts interface {
	vocabulary.Resolver
	Code(id int64) (string, bool)
}

type Service struct {
	repo     Repository
	tx       db.TxRunner
	concepts Concepts
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, concepts Concepts, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		concepts: concepts,
		logger:   logger.With().Str("component", "observation").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateOptions carries the optional columns of a new document.
type CreateOptions struct {
	Dated           time.Time
	Shared          *bool
	TypeConceptCode string
	SourceValue     *string
}

// CreateDocument stores payload for subject under the payload's concept.
func (s *Service) CreateDocument(ctx context.Context, subject Subject, payload Payload, opts CreateOptions) (*Document, error) {
	if subject.PersonID == nil && subject.ProviderID == nil {
		return nil, fmt.Errorf("%w: observation needs a person or a provider", apperr.ErrValidation)
	}
	conceptID, err := s.concepts.Resolve(payload.TypeCode())
	if err != nil {
		return nil, err
	}
	value, err := Encode(payload)
	if err != nil {
		return nil, err
	}
	o := &Observation{
		PersonID:           subject.PersonID,
		ProviderID:         subject.ProviderID,
		ConceptID:          conceptID,
		Date:               opts.Dated,
		SourceValue:        opts.SourceValue,
		SharedWithProvider: opts.Shared,
	}
	if o.Date.IsZero() {
		o.Date = s.now()
	}
	if value != "" {
		o.ValueAsString = &value
	}
	if h, ok := payload.(*HelpPayload); ok {
		id, err := s.concepts.Resolve(h.Status)
		if err != nil {
			return nil, err
		}
		o.ValueAsConceptID = &id
	}
	if opts.TypeConceptCode != "" {
		id, err := s.concepts.Resolve(opts.TypeConceptCode)
		if err != nil {
			return nil, err
		}
		o.TypeConceptID = &id
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create %s observation: %w", payload.TypeCode(), err)
	}
	return &Document{Observation: o, Payload: payload}, nil
}

// documentCodes are the concepts whose value_as_string holds a typed
// payload. RecordScalar refuses them.
var documentCodes = map[string]bool{
	vocabulary.CodeDiaryEntry:       true,
	vocabulary.CodeInterestArea:     true,
	vocabulary.CodeProviderLinkCode: true,
	vocabulary.CodeHelp:             true,
}

// RecordScalar stores a plain observation that carries a concept value or a
// short string rather than a document.
func (s *Service) RecordScalar(ctx context.Context, o *Observation) error {
	if o.PersonID == nil && o.ProviderID == nil {
		return fmt.Errorf("%w: observation needs a person or a provider", apperr.ErrValidation)
	}
	if o.ConceptID == 0 {
		return fmt.Errorf("%w: observation_concept_id is required", apperr.ErrValidation)
	}
	if code, ok := s.concepts.Code(o.ConceptID); ok && documentCodes[code] {
		return fmt.Errorf("%w: %s observations are documents", apperr.ErrValidation, code)
	}
	if o.ValueAsString != nil {
		if err := checkLength(*o.ValueAsString); err != nil {
			return err
		}
	}
	if o.Date.IsZero() {
		o.Date = s.now()
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return fmt.Errorf("create observation: %w", err)
	}
	return nil
}

// decode parses o's payload according to its concept.
func (s *Service) decode(o *Observation) (Payload, error) {
	code, ok := s.concepts.Code(o.ConceptID)
	if !ok {
		return nil, fmt.Errorf("%w: observation %d has unregistered concept %d", ErrMalformedPayload, o.ID, o.ConceptID)
	}
	value := ""
	if o.ValueAsString != nil {
		value = *o.ValueAsString
	}
	switch code {
	case vocabulary.CodeDiaryEntry:
		return DecodeDiary(value)
	case vocabulary.CodeInterestArea:
		return DecodeInterestArea(value)
	case vocabulary.CodeProviderLinkCode:
		return DecodeLinkCode(value)
	case vocabulary.CodeHelp:
		status := ""
		if o.ValueAsConceptID != nil {
			status, _ = s.concepts.Code(*o.ValueAsConceptID)
		}
		return DecodeHelp(status, value)
	}
	return nil, fmt.Errorf("%w: concept %s does not carry a document", ErrMalformedPayload, code)
}

// emptyPayload is what a malformed document degrades to in listings.
func emptyPayload(code string) Payload {
	switch code {
	case vocabulary.CodeDiaryEntry:
		return &DiaryPayload{}
	case vocabulary.CodeInterestArea:
		return &InterestAreaPayload{}
	case vocabulary.CodeProviderLinkCode:
		return &LinkCodePayload{}
	case vocabulary.CodeHelp:
		return &HelpPayload{}
	}
	return nil
}

// ReadDocument is strict: a malformed payload is an error.
func (s *Service) ReadDocument(ctx context.Context, id int64) (*Document, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.decode(o)
	if err != nil {
		return nil, err
	}
	return &Document{Observation: o, Payload: p}, nil
}

// Lookup returns the stored row of a document of the given type without
// decoding its payload. A row of another type is reported as not found.
func (s *Service) Lookup(ctx context.Context, id int64, typeCode string) (*Observation, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if code, _ := s.concepts.Code(o.ConceptID); code != typeCode {
		return nil, fmt.Errorf("%w: %s %d", apperr.ErrNotFound, strings.ToLower(typeCode), id)
	}
	return o, nil
}

// DocumentFilter is the typed form of Filter used by ListDocuments.
type DocumentFilter struct {
	Subject    Subject
	TypeCode   string
	StatusCode string
	SharedOnly bool
	Since      *time.Time
	Until      *time.Time
	Limit      int
}

func (s *Service) filter(f DocumentFilter) (Filter, error) {
	out := Filter{
		PersonID:   f.Subject.PersonID,
		ProviderID: f.Subject.ProviderID,
		SharedOnly: f.SharedOnly,
		Since:      f.Since,
		Until:      f.Until,
		Limit:      f.Limit,
	}
	if f.TypeCode == "" {
		return out, fmt.Errorf("%w: document type is required", apperr.ErrValidation)
	}
	id, err := s.concepts.Resolve(f.TypeCode)
	if err != nil {
		return out, err
	}
	out.ConceptID = id
	if f.StatusCode != "" {
		sid, err := s.concepts.Resolve(f.StatusCode)
		if err != nil {
			return out, err
		}
		out.ValueConceptID = &sid
	}
	return out, nil
}

// ListDocuments returns matching documents newest first. It is fail-soft: a
// document whose payload does not decode is returned with an empty payload
// and a warning is logged.
func (s *Service) ListDocuments(ctx context.Context, f DocumentFilter) ([]*Document, error) {
	filter, err := s.filter(f)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list %s observations: %w", f.TypeCode, err)
	}
	docs := make([]*Document, 0, len(items))
	for _, o := range items {
		p, err := s.decode(o)
		if err != nil {
			s.logger.Warn().Err(err).Int64("observation_id", o.ID).Str("type", f.TypeCode).
				Msg("malformed payload recovered as empty document")
			p = emptyPayload(f.TypeCode)
		}
		docs = append(docs, &Document{Observation: o, Payload: p})
	}
	return docs, nil
}

func (s *Service) CountDocuments(ctx context.Context, f DocumentFilter) (int, error) {
	filter, err := s.filter(f)
	if err != nil {
		return 0, err
	}
	filter.Limit = 0
	return s.repo.Count(ctx, filter)
}

// LatestDate returns the observation_date of the newest matching document.
func (s *Service) LatestDate(ctx context.Context, f DocumentFilter) (*time.Time, error) {
	filter, err := s.filter(f)
	if err != nil {
		return nil, err
	}
	filter.Limit = 0
	return s.repo.LatestDate(ctx, filter)
}

// ReplaceDocument overwrites the payload of an existing document of the same
// type under a row lock. The caller's check function runs on the locked row
// before the payload is encoded; it may veto the write or carry fields of the
// stored document over into payload.
func (s *Service) ReplaceDocument(ctx context.Context, id int64, payload Payload, shared *bool, check func(*Observation) error) (*Document, error) {
	var doc *Document
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if code, _ := s.concepts.Code(o.ConceptID); code != payload.TypeCode() {
			return fmt.Errorf("%w: %s %d", apperr.ErrNotFound, strings.ToLower(payload.TypeCode()), id)
		}
		if check != nil {
			if err := check(o); err != nil {
				return err
			}
		}
		value, err := Encode(payload)
		if err != nil {
			return err
		}
		o.ValueAsString = &value
		if shared != nil {
			o.SharedWithProvider = shared
		}
		o.Date = s.now()
		if err := s.repo.UpdateValue(ctx, o); err != nil {
			return err
		}
		doc = &Document{Observation: o, Payload: payload}
		return nil
	})
	return doc, err
}

// UpdateDocumentField sets one top-level key of a JSON document. Keys the
// typed payload does not know about are preserved.
func (s *Service) UpdateDocumentField(ctx context.Context, id int64, field string, value interface{}) (*Document, error) {
	if field == "" {
		return nil, fmt.Errorf("%w: field is required", apperr.ErrValidation)
	}
	encodedValue, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	var doc *Document
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		raw, err := s.rawDocument(o, false)
		if err != nil {
			return err
		}
		raw[field] = encodedValue
		if err := s.writeRaw(ctx, o, raw); err != nil {
			return err
		}
		p, err := s.decode(o)
		if err != nil {
			return err
		}
		doc = &Document{Observation: o, Payload: p}
		return nil
	})
	return doc, err
}

// rawDocument returns the top-level keys of o's JSON payload. With lenient
// set, an unparsable payload yields an empty map instead of an error.
func (s *Service) rawDocument(o *Observation, lenient bool) (map[string]json.RawMessage, error) {
	code, _ := s.concepts.Code(o.ConceptID)
	if code != vocabulary.CodeDiaryEntry && code != vocabulary.CodeInterestArea {
		return nil, fmt.Errorf("%w: observation %d is not a JSON document", apperr.ErrValidation, o.ID)
	}
	raw := map[string]json.RawMessage{}
	value := ""
	if o.ValueAsString != nil {
		value = *o.ValueAsString
	}
	err := decodeJSON(value, &raw)
	if err == nil && raw == nil {
		err = fmt.Errorf("%w: null document", ErrMalformedPayload)
	}
	if err != nil {
		if !lenient {
			return nil, err
		}
		s.logger.Warn().Err(err).Int64("observation_id", o.ID).Msg("malformed payload recovered as empty document")
		raw = map[string]json.RawMessage{}
	}
	return raw, nil
}

func (s *Service) writeRaw(ctx context.Context, o *Observation, raw map[string]json.RawMessage) error {
	value, err := marshal(raw)
	if err != nil {
		return err
	}
	if err := checkLength(value); err != nil {
		return err
	}
	o.ValueAsString = &value
	return s.repo.UpdateValue(ctx, o)
}

// Marking outcomes.
const (
	MarkAdded         = "added"
	MarkRemoved       = "removed"
	MarkAlreadyMarked = "already_marked"
	MarkNotMarked     = "not_marked"
)

type MarkResult struct {
	Action       string
	IsMarked     bool
	TotalMarkers int
	Document     *Observation
}

// Mark adds or removes markerID from the marked_by list of an interest area.
// Concurrent marks on the same document serialize on the row lock. A stored
// payload that does not parse is treated as {}.
func (s *Service) Mark(ctx context.Context, docID int64, markerID string, present bool) (*MarkResult, error) {
	if markerID == "" {
		return nil, fmt.Errorf("%w: marker is required", apperr.ErrValidation)
	}
	var res *MarkResult
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if code, _ := s.concepts.Code(o.ConceptID); code != vocabulary.CodeInterestArea {
			return fmt.Errorf("%w: interest area %d", apperr.ErrNotFound, docID)
		}
		raw, err := s.rawDocument(o, true)
		if err != nil {
			return err
		}
		var markedBy []string
		if v, ok := raw["marked_by"]; ok {
			if err := json.Unmarshal(v, &markedBy); err != nil {
				s.logger.Warn().Err(err).Int64("observation_id", o.ID).Msg("malformed marked_by reset")
				markedBy = nil
			}
		}

		action, markedBy := applyMark(markedBy, markerID, present)
		if action == MarkAdded || action == MarkRemoved {
			raw["marked_by"], _ = json.Marshal(markedBy)
			raw["is_attention_point"], _ = json.Marshal(len(markedBy) > 0)
			if err := s.writeRaw(ctx, o, raw); err != nil {
				return err
			}
		}
		res = &MarkResult{Action: action, IsMarked: present, TotalMarkers: len(markedBy), Document: o}
		return nil
	})
	return res, err
}

func applyMark(markedBy []string, markerID string, present bool) (string, []string) {
	idx := -1
	for i, m := range markedBy {
		if m == markerID {
			idx = i
			break
		}
	}
	switch {
	case present && idx >= 0:
		return MarkAlreadyMarked, markedBy
	case present:
		return MarkAdded, append(markedBy, markerID)
	case idx >= 0:
		return MarkRemoved, append(markedBy[:idx:idx], markedBy[idx+1:]...)
	default:
		return MarkNotMarked, markedBy
	}
}

// CreateHelp records an ACTIVE help request from a person to a provider.
func (s *Service) CreateHelp(ctx context.Context, personID, providerID int64, message string, shared *bool) (*Document, error) {
	subject := Subject{PersonID: &personID, ProviderID: &providerID}
	return s.CreateDocument(ctx, subject, &HelpPayload{Status: HelpActive, Message: message}, CreateOptions{
		Shared:          shared,
		TypeConceptCode: vocabulary.CodePersonGenerated,
	})
}

// ResolveHelp moves a help request addressed to providerID from ACTIVE to
// RESOLVED. Requests addressed to someone else, or whose sender allow
// rejects, are reported as not found before the state is looked at. A nil
// allow accepts every sender.
func (s *Service) ResolveHelp(ctx context.Context, helpID, providerID int64, allow func(personID int64) bool) (*Document, error) {
	activeID, err := s.concepts.Resolve(HelpActive)
	if err != nil {
		return nil, err
	}
	resolvedID, err := s.concepts.Resolve(HelpResolved)
	if err != nil {
		return nil, err
	}
	var doc *Document
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, helpID)
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("%w: help request %d", apperr.ErrNotFound, helpID)
		}
		if err != nil {
			return err
		}
		code, _ := s.concepts.Code(o.ConceptID)
		if code != vocabulary.CodeHelp || o.ProviderID == nil || *o.ProviderID != providerID {
			return fmt.Errorf("%w: help request %d", apperr.ErrNotFound, helpID)
		}
		if allow != nil && (o.PersonID == nil || !allow(*o.PersonID)) {
			return fmt.Errorf("%w: help request %d", apperr.ErrNotFound, helpID)
		}
		switch {
		case o.ValueAsConceptID == nil:
			return ErrHelpNotActive
		case *o.ValueAsConceptID == resolvedID:
			return ErrAlreadyResolved
		case *o.ValueAsConceptID != activeID:
			return ErrHelpNotActive
		}
		o.ValueAsConceptID = &resolvedID
		if err := s.repo.UpdateValue(ctx, o); err != nil {
			return err
		}
		message := ""
		if o.ValueAsString != nil {
			message = *o.ValueAsString
		}
		doc = &Document{Observation: o, Payload: &HelpPayload{Status: HelpResolved, Message: message}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("help_id", helpID).Int64("provider_id", providerID).Msg("help resolved")
	return doc, nil
}

// Delete removes a document owned by personID.
func (s *Service) Delete(ctx context.Context, id int64, typeCode string, personID int64) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		code, _ := s.concepts.Code(o.ConceptID)
		if code != typeCode || o.PersonID == nil || *o.PersonID != personID {
			return fmt.Errorf("%w: %s %d", apperr.ErrNotFound, typeCode, id)
		}
		return s.repo.Delete(ctx, id)
	})
}
