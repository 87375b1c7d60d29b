package help

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/saude/saude/internal/domain/identity"
	"github.com/saude/saude/internal/domain/observation"
	"github.com/saude/saude/internal/domain/vocabulary"
	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/internal/platform/db"
	"github.com/saude/saude/internal/platform/events"
	"github.com/saude/saude/internal/platform/middleware"
)

type Documents interface {
	CreateHelp(ctx context.Context, personID, providerID int64, message string, shared *bool) (*observation.Document, error)
	ResolveHelp(ctx context.Context, helpID, providerID int64, allow func(personID int64) bool) (*observation.Document, error)
	ListDocuments(ctx context.Context, f observation.DocumentFilter) ([]*observation.Document, error)
	CountDocuments(ctx context.Context, f observation.DocumentFilter) (int, error)
}

type Links interface {
	LinkedPersonIDs(ctx context.Context, providerID int64) ([]int64, error)
	LinkedProviderIDs(ctx context.Context, personID int64) ([]int64, error)
}

type Directory interface {
	ListPersons(ctx context.Context, ids []int64) ([]*identity.Person, error)
	ListProviders(ctx context.Context, ids []int64) ([]*identity.Provider, error)
}

type Service struct {
	docs      Documents
	links     Links
	directory Directory
	tx        db.TxRunner
	events    events.Publisher
	logger    zerolog.Logger
}

func NewService(docs Documents, links Links, directory Directory, tx db.TxRunner, pub events.Publisher, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop
	}
	return &Service{docs: docs, links: links, directory: directory, tx: tx, events: pub, logger: logger}
}

func idSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// Send creates one ACTIVE request per item. Either all are stored or none;
// any provider not linked to the person rejects the whole batch.
func (s *Service) Send(ctx context.Context, personID int64, items []SendItem) ([]*Request, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one help request is required", apperr.ErrValidation)
	}
	linked, err := s.links.LinkedProviderIDs(ctx, personID)
	if err != nil {
		return nil, err
	}
	allowed := idSet(linked)

	var denied []string
	seen := map[int64]bool{}
	for i, it := range items {
		if it.ProviderID <= 0 {
			return nil, fmt.Errorf("%w: item %d: provider_id is required", apperr.ErrValidation, i)
		}
		if !allowed[it.ProviderID] && !seen[it.ProviderID] {
			denied = append(denied, strconv.FormatInt(it.ProviderID, 10))
		}
		seen[it.ProviderID] = true
	}
	if len(denied) > 0 {
		s.logger.Warn().Int64("person_id", personID).Strs("providers", denied).Msg("help to non-linked providers refused")
		return nil, fmt.Errorf("%w: Cannot send help requests to non-linked providers: %s",
			apperr.ErrForbidden, strings.Join(denied, ", "))
	}

	out := make([]*Request, 0, len(items))
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, it := range items {
			doc, err := s.docs.CreateHelp(ctx, personID, it.ProviderID, middleware.CleanText(it.Message), it.SharedWithProvider)
			if err != nil {
				return err
			}
			out = append(out, fromDocument(doc))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range out {
		events.Emit(ctx, s.events, s.logger, events.New(events.HelpCreated, r.PersonID, r.ProviderID, r.ID,
			map[string]interface{}{"message": r.Message}))
	}
	s.logger.Info().Int64("person_id", personID).Int("count", len(out)).Msg("help requests sent")
	return out, nil
}

// Sent lists the person's requests newest first, naming each provider.
func (s *Service) Sent(ctx context.Context, personID int64) ([]*Request, error) {
	docs, err := s.docs.ListDocuments(ctx, observation.DocumentFilter{
		Subject:  observation.PersonSubject(personID),
		TypeCode: vocabulary.CodeHelp,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Request, 0, len(docs))
	var providerIDs []int64
	for _, d := range docs {
		r := fromDocument(d)
		out = append(out, r)
		providerIDs = append(providerIDs, r.ProviderID)
	}
	if len(out) == 0 {
		return out, nil
	}
	providers, err := s.directory.ListProviders(ctx, unique(providerIDs))
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(providers))
	for _, p := range providers {
		names[p.ID] = p.DisplayName()
	}
	for _, r := range out {
		r.ProviderName = names[r.ProviderID]
	}
	return out, nil
}

// Received lists requests addressed to the provider from persons still
// linked to it, newest first.
func (s *Service) Received(ctx context.Context, providerID int64) ([]*Request, error) {
	linked, err := s.links.LinkedPersonIDs(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if len(linked) == 0 {
		return []*Request{}, nil
	}
	allowed := idSet(linked)
	docs, err := s.docs.ListDocuments(ctx, observation.DocumentFilter{
		Subject:  observation.ProviderSubject(providerID),
		TypeCode: vocabulary.CodeHelp,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Request, 0, len(docs))
	for _, d := range docs {
		r := fromDocument(d)
		if allowed[r.PersonID] {
			out = append(out, r)
		}
	}
	persons, err := s.directory.ListPersons(ctx, linked)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(persons))
	for _, p := range persons {
		names[p.ID] = p.DisplayName()
	}
	for _, r := range out {
		r.PersonName = names[r.PersonID]
	}
	return out, nil
}

// ActiveCount counts ACTIVE requests to the provider from linked persons.
func (s *Service) ActiveCount(ctx context.Context, providerID int64) (int, error) {
	linked, err := s.links.LinkedPersonIDs(ctx, providerID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, personID := range linked {
		pid, prov := personID, providerID
		n, err := s.docs.CountDocuments(ctx, observation.DocumentFilter{
			Subject:    observation.Subject{PersonID: &pid, ProviderID: &prov},
			TypeCode:   vocabulary.CodeHelp,
			StatusCode: observation.HelpActive,
		})
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Resolve moves an ACTIVE request to RESOLVED. Requests addressed to another
// provider or sent by a person no longer linked are reported as not found.
func (s *Service) Resolve(ctx context.Context, providerID, helpID int64) (*Request, error) {
	linked, err := s.links.LinkedPersonIDs(ctx, providerID)
	if err != nil {
		return nil, err
	}
	allowed := idSet(linked)

	var req *Request
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		doc, err := s.docs.ResolveHelp(ctx, helpID, providerID, func(personID int64) bool { return allowed[personID] })
		if err != nil {
			return err
		}
		req = fromDocument(doc)
		return nil
	})
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, MsgNotFound)
	case err != nil:
		return nil, err
	}
	events.Emit(ctx, s.events, s.logger, events.New(events.HelpResolved, req.PersonID, req.ProviderID, req.ID, nil))
	return req, nil
}

func unique(ids []int64) []int64 {
	set := idSet(ids)
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
