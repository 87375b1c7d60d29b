package linking

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/saude/saude/internal/domain/factrel"
	"github.com/saude/saude/internal/domain/identity"
	"github.com/saude/saude/internal/domain/observation"
	"github.com/saude/saude/internal/domain/vocabulary"
	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/internal/platform/db"
	"github.com/saude/saude/internal/platform/events"
)

// Linker is the subset of the fact-relationship store used for links.
type Linker interface {
	Link(ctx context.Context, a, b factrel.EntityRef, relCode string) (*factrel.Edge, bool, error)
	Linked(ctx context.Context, a, b factrel.EntityRef, relCode string) (bool, error)
	Unlink(ctx context.Context, a, b factrel.EntityRef, relCode string) (int64, error)
	FindBy(ctx context.Context, self factrel.EntityRef, other factrel.Kind, relCode string) ([]int64, error)
}

// Directory resolves profiles.
type Directory interface {
	GetProvider(ctx context.Context, id int64) (*identity.Provider, error)
	ListPersons(ctx context.Context, ids []int64) ([]*identity.Person, error)
	ListProviders(ctx context.Context, ids []int64) ([]*identity.Provider, error)
}

type VisitHistory interface {
	LastVisit(ctx context.Context, personID, providerID int64) (*time.Time, error)
}

type HelpHistory interface {
	LatestDate(ctx context.Context, f observation.DocumentFilter) (*time.Time, error)
}

type Deps struct {
	Codes     CodeRepository
	Links     Linker
	Directory Directory
	Visits    VisitHistory
	Help      HelpHistory
	Concepts  vocabulary.Resolver
	Tx        db.TxRunner
	Limiter   AttemptLimiter
	Events    events.Publisher
	Logger    zerolog.Logger
}

type Service struct {
	Deps
	now    func() time.Time
	random io.Reader
}

func NewService(d Deps) *Service {
	if d.Events == nil {
		d.Events = events.Nop
	}
	return &Service{Deps: d, now: time.Now, random: rand.Reader}
}

// maxCodeDraws bounds the retries when a drawn code is live for another
// provider.
const maxCodeDraws = 5

func (s *Service) newCode() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(observation.LinkCodeAlphabet)))
	for i := 0; i < observation.LinkCodeLength; i++ {
		n, err := rand.Int(s.random, limit)
		if err != nil {
			return "", fmt.Errorf("draw link code: %w", err)
		}
		b.WriteByte(observation.LinkCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func (s *Service) codeConcepts() (conceptID, typeID int64, err error) {
	if conceptID, err = s.Concepts.Resolve(vocabulary.CodeProviderLinkCode); err != nil {
		return 0, 0, err
	}
	if typeID, err = s.Concepts.Resolve(vocabulary.CodeClinicianGenerated); err != nil {
		return 0, 0, err
	}
	return conceptID, typeID, nil
}

// Generate issues a fresh code for the provider, replacing the previous one.
func (s *Service) Generate(ctx context.Context, providerID int64) (*GeneratedCode, error) {
	conceptID, typeID, err := s.codeConcepts()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	var rec *CodeRecord
	err = s.Tx.InTx(ctx, func(ctx context.Context) error {
		for draw := 0; draw < maxCodeDraws; draw++ {
			code, err := s.newCode()
			if err != nil {
				return err
			}
			if err := s.Codes.Reserve(ctx, conceptID, code); err != nil {
				return err
			}
			existing, err := s.Codes.FindLatest(ctx, conceptID, code)
			switch {
			case err == nil && existing.ProviderID != providerID && now.Sub(existing.GeneratedAt) <= CodeTTL:
				continue
			case err != nil && !errors.Is(err, apperr.ErrNotFound):
				return err
			}
			rec, err = s.Codes.Upsert(ctx, conceptID, typeID, providerID, code, now)
			return err
		}
		return errors.New("no free link code after repeated draws")
	})
	if err != nil {
		return nil, fmt.Errorf("generate link code: %w", err)
	}

	s.Logger.Info().Int64("provider_id", providerID).Msg("link code generated")
	return &GeneratedCode{
		Code:             rec.Code,
		ExpiresAt:        rec.ExpiresAt(),
		ExpiresInMinutes: int(CodeTTL / time.Minute),
	}, nil
}

func normalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", ErrCodeRequired
	}
	return code, nil
}

func (s *Service) allow(ctx context.Context, personID int64) error {
	if s.Limiter == nil {
		return nil
	}
	ok, err := s.Limiter.Allow(ctx, "person:"+strconv.FormatInt(personID, 10))
	if err != nil {
		s.Logger.Warn().Err(err).Msg("link code limiter unavailable")
		return nil
	}
	if !ok {
		s.Logger.Warn().Int64("person_id", personID).Msg("link code attempts exceeded")
		return ErrTooManyAttempts
	}
	return nil
}

// Preview shows the provider behind a code without consuming it. A used code
// stays previewable until it expires.
func (s *Service) Preview(ctx context.Context, personID int64, code string) (*Preview, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}
	if err := s.allow(ctx, personID); err != nil {
		return nil, err
	}
	if !observation.ValidLinkCode(code) {
		return nil, ErrInvalidCode
	}
	conceptID, err := s.Concepts.Resolve(vocabulary.CodeProviderLinkCode)
	if err != nil {
		return nil, err
	}
	rec, err := s.Codes.FindLatest(ctx, conceptID, code)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("find link code: %w", err)
	}
	if s.now().Sub(rec.GeneratedAt) > CodeTTL {
		return nil, ErrCodeExpired
	}
	provider, err := s.Directory.GetProvider(ctx, rec.ProviderID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}
	return &Preview{
		PublicProvider: provider.Public(),
		CodeStatus: CodeStatus{
			IsUsed:      rec.Used(),
			GeneratedAt: rec.GeneratedAt,
			ExpiresAt:   rec.ExpiresAt(),
		},
	}, nil
}

// classify explains why a claim matched nothing.
func (s *Service) classify(ctx context.Context, conceptID int64, code string) error {
	rec, err := s.Codes.FindLatest(ctx, conceptID, code)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return ErrInvalidCode
	case err != nil:
		return fmt.Errorf("find link code: %w", err)
	case rec.Used():
		return ErrCodeConsumed
	case s.now().Sub(rec.GeneratedAt) > CodeTTL:
		return ErrCodeExpired
	default:
		// Unused and fresh means a concurrent redeem won the row.
		return ErrCodeConsumed
	}
}

// Redeem consumes a code and links the person to its provider. The claim and
// the edge are written in one transaction.
func (s *Service) Redeem(ctx context.Context, personID int64, code string) (*RedeemResult, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}
	if err := s.allow(ctx, personID); err != nil {
		return nil, err
	}
	if !observation.ValidLinkCode(code) {
		return nil, ErrInvalidCode
	}
	conceptID, err := s.Concepts.Resolve(vocabulary.CodeProviderLinkCode)
	if err != nil {
		return nil, err
	}

	var providerID int64
	var created bool
	err = s.Tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		providerID, err = s.Codes.Claim(ctx, conceptID, code, personID, s.now().Add(-CodeTTL))
		if errors.Is(err, apperr.ErrNotFound) {
			return s.classify(ctx, conceptID, code)
		}
		if err != nil {
			return err
		}
		_, created, err = s.Links.Link(ctx, factrel.Person(personID), factrel.Provider(providerID), vocabulary.CodePersonProvider)
		return err
	})
	if err != nil {
		return nil, err
	}

	res := &RedeemResult{Status: StatusLinked, AlreadyExisted: !created, ProviderID: providerID}
	if p, err := s.Directory.GetProvider(ctx, providerID); err == nil {
		res.ProviderName = p.DisplayName()
	}
	s.Logger.Info().Int64("person_id", personID).Int64("provider_id", providerID).
		Bool("already_existed", res.AlreadyExisted).Msg("link code redeemed")
	events.Emit(ctx, s.Events, s.Logger, events.New(events.LinkRedeemed, personID, providerID, 0,
		map[string]interface{}{"already_existed": res.AlreadyExisted, "provider_name": res.ProviderName}))
	return res, nil
}

// Unlink removes the person-provider edge. Callers may only remove their own
// links. Removing an absent edge is not an error.
func (s *Service) Unlink(ctx context.Context, caller Caller, req UnlinkRequest) (*UnlinkResult, error) {
	if req.PersonID <= 0 || req.ProviderID <= 0 {
		return nil, fmt.Errorf("%w: person_id and provider_id are required", apperr.ErrValidation)
	}
	switch {
	case caller.PersonID > 0:
		if caller.PersonID != req.PersonID {
			return nil, fmt.Errorf("%w: %s", apperr.ErrForbidden, MsgNotOwnPersonLink)
		}
	case caller.ProviderID > 0:
		if caller.ProviderID != req.ProviderID {
			return nil, fmt.Errorf("%w: %s", apperr.ErrForbidden, MsgNotOwnPatientLink)
		}
	default:
		return nil, fmt.Errorf("%w: profile", apperr.ErrNotFound)
	}

	removed, err := s.Links.Unlink(ctx, factrel.Person(req.PersonID), factrel.Provider(req.ProviderID), vocabulary.CodePersonProvider)
	if err != nil {
		return nil, err
	}
	res := &UnlinkResult{
		Status:               StatusUnlinked,
		RelationshipsRemoved: removed,
		PersonID:             req.PersonID,
		ProviderID:           req.ProviderID,
	}
	if removed == 0 {
		res.Status = StatusAlreadyUnlinked
		return res, nil
	}
	s.Logger.Info().Int64("person_id", req.PersonID).Int64("provider_id", req.ProviderID).
		Int64("removed", removed).Msg("link removed")
	events.Emit(ctx, s.Events, s.Logger, events.New(events.LinkUnlinked, req.PersonID, req.ProviderID, 0, nil))
	return res, nil
}

func (s *Service) IsLinked(ctx context.Context, personID, providerID int64) (bool, error) {
	return s.Links.Linked(ctx, factrel.Person(personID), factrel.Provider(providerID), vocabulary.CodePersonProvider)
}

func (s *Service) LinkedPersonIDs(ctx context.Context, providerID int64) ([]int64, error) {
	return s.Links.FindBy(ctx, factrel.Provider(providerID), factrel.KindPerson, vocabulary.CodePersonProvider)
}

func (s *Service) LinkedProviderIDs(ctx context.Context, personID int64) ([]int64, error) {
	return s.Links.FindBy(ctx, factrel.Person(personID), factrel.KindProvider, vocabulary.CodePersonProvider)
}

// LinkedProviders lists the person's providers ordered by social name.
func (s *Service) LinkedProviders(ctx context.Context, personID int64) ([]*identity.PublicProvider, error) {
	ids, err := s.LinkedProviderIDs(ctx, personID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*identity.PublicProvider{}, nil
	}
	providers, err := s.Directory.ListProviders(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list linked providers: %w", err)
	}
	out := make([]*identity.PublicProvider, 0, len(providers))
	for _, p := range providers {
		out = append(out, p.Public())
	}
	return out, nil
}

// LinkedPersons lists the provider's patients with their latest visit and
// help request to this provider.
func (s *Service) LinkedPersons(ctx context.Context, providerID int64) ([]*PersonSummary, error) {
	ids, err := s.LinkedPersonIDs(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*PersonSummary{}, nil
	}
	persons, err := s.Directory.ListPersons(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list linked persons: %w", err)
	}
	now := s.now()
	out := make([]*PersonSummary, 0, len(persons))
	for _, p := range persons {
		sum := &PersonSummary{
			PersonID:       p.ID,
			Name:           p.DisplayName(),
			Age:            p.Age(now),
			ProfilePicture: p.ProfilePicture,
		}
		if sum.LastVisitDate, err = s.Visits.LastVisit(ctx, p.ID, providerID); err != nil {
			return nil, fmt.Errorf("last visit of person %d: %w", p.ID, err)
		}
		pid, prov := p.ID, providerID
		sum.LastHelpDate, err = s.Help.LatestDate(ctx, observation.DocumentFilter{
			Subject:  observation.Subject{PersonID: &pid, ProviderID: &prov},
			TypeCode: vocabulary.CodeHelp,
		})
		if err != nil {
			return nil, fmt.Errorf("last help of person %d: %w", p.ID, err)
		}
		out = append(out, sum)
	}
	return out, nil
}
