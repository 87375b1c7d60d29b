package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/saude/saude/internal/domain/clinical"
	"github.com/saude/saude/internal/domain/observation"
	"github.com/saude/saude/internal/domain/vocabulary"
	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/internal/platform/auth"
	"github.com/saude/saude/internal/platform/db"
	"github.com/saude/saude/internal/platform/middleware"
)

// ClinicalRecorder stores the clinical data collected at onboarding.
type ClinicalRecorder interface {
	RecordBodyMetrics(ctx context.Context, personID int64, bm clinical.BodyMetrics) ([]*clinical.Measurement, error)
	CreateDrugExposure(ctx context.Context, d *clinical.DrugExposure) error
}

// ObservationRecorder stores the self-reported answers collected at
// onboarding.
type ObservationRecorder interface {
	RecordScalar(ctx context.Context, o *observation.Observation) error
}

type Service struct {
	persons      PersonRepository
	providers    ProviderRepository
	locations    LocationRepository
	roles        AccountRoleRepository
	tx           db.TxRunner
	clinical     ClinicalRecorder
	observations ObservationRecorder
	concepts     vocabulary.Resolver
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(persons PersonRepository, providers ProviderRepository, locations LocationRepository,
	roles AccountRoleRepository, tx db.TxRunner, clinical ClinicalRecorder, observations ObservationRecorder,
	concepts vocabulary.Resolver, logger zerolog.Logger) *Service {
	return &Service{
		persons:      persons,
		providers:    providers,
		locations:    locations,
		roles:        roles,
		tx:           tx,
		clinical:     clinical,
		observations: observations,
		concepts:     concepts,
		logger:       logger.With().Str("component", "identity").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// -- Lookups --

func (s *Service) Profile(ctx context.Context, accountID uuid.UUID) (*Profile, error) {
	return s.roles.Lookup(ctx, accountID)
}

// AuthProfile adapts Profile to auth.ProfileLookup.
func (s *Service) AuthProfile(ctx context.Context, accountID string) (*auth.Profile, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return &auth.Profile{}, nil
	}
	p, err := s.roles.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return &auth.Profile{Role: p.Role, PersonID: p.PersonID, ProviderID: p.ProviderID}, nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, msg)
	}
	return err
}

func (s *Service) PersonByAccount(ctx context.Context, accountID uuid.UUID) (*Person, error) {
	p, err := s.persons.GetByAccount(ctx, accountID)
	if err != nil {
		return nil, notFound(err, auth.MsgNoPersonProfile)
	}
	return s.withLocation(ctx, p)
}

func (s *Service) ProviderByAccount(ctx context.Context, accountID uuid.UUID) (*Provider, error) {
	p, err := s.providers.GetByAccount(ctx, accountID)
	if err != nil {
		return nil, notFound(err, auth.MsgNoProviderProfile)
	}
	return p, nil
}

func (s *Service) GetPerson(ctx context.Context, id int64) (*Person, error) {
	p, err := s.persons.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, auth.MsgNoPersonProfile)
	}
	return p, nil
}

func (s *Service) GetProvider(ctx context.Context, id int64) (*Provider, error) {
	p, err := s.providers.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, auth.MsgNoProviderProfile)
	}
	return p, nil
}

func (s *Service) PersonName(ctx context.Context, id int64) (string, error) {
	p, err := s.GetPerson(ctx, id)
	if err != nil {
		return "", err
	}
	return p.DisplayName(), nil
}

func (s *Service) ListPersons(ctx context.Context, ids []int64) ([]*Person, error) {
	return s.persons.ListByIDs(ctx, ids)
}

func (s *Service) ListProviders(ctx context.Context, ids []int64) ([]*Provider, error) {
	return s.providers.ListByIDs(ctx, ids)
}

func (s *Service) withLocation(ctx context.Context, p *Person) (*Person, error) {
	if p.LocationID == nil {
		return p, nil
	}
	l, err := s.locations.GetByID(ctx, *p.LocationID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	p.Location = l
	return p, nil
}

// -- Profile maintenance --

func cleanName(name string) string {
	return strings.TrimSpace(middleware.CleanText(name))
}

func (s *Service) UpdatePerson(ctx context.Context, accountID uuid.UUID, patch *PersonPatch) (*Person, error) {
	var out *Person
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.PersonByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if patch.SocialName != nil {
			name := cleanName(*patch.SocialName)
			if name == "" {
				return ErrSocialNameRequired
			}
			taken, err := s.persons.SocialNameExists(ctx, name, p.ID)
			if err != nil {
				return err
			}
			if taken {
				return ErrSocialNameTaken
			}
			p.SocialName = &name
		}
		if patch.BirthDatetime != nil {
			if patch.BirthDatetime.After(s.now()) {
				return fmt.Errorf("%w: birth_datetime is in the future", apperr.ErrValidation)
			}
			p.BirthDatetime = patch.BirthDatetime
		}
		if patch.YearOfBirth != nil {
			p.YearOfBirth = patch.YearOfBirth
		}
		if patch.GenderConceptID != nil {
			p.GenderConceptID = patch.GenderConceptID
		}
		if patch.RaceConceptID != nil {
			p.RaceConceptID = patch.RaceConceptID
		}
		if patch.EthnicityConceptID != nil {
			p.EthnicityConceptID = patch.EthnicityConceptID
		}
		if patch.UseDarkMode != nil {
			p.UseDarkMode = *patch.UseDarkMode
		}
		if patch.Location != nil {
			l := *patch.Location
			if p.LocationID != nil {
				l.ID = *p.LocationID
				err = s.locations.Update(ctx, &l)
			} else {
				err = s.locations.Create(ctx, &l)
				p.LocationID = &l.ID
			}
			if err != nil {
				return fmt.Errorf("save location: %w", err)
			}
			p.Location = &l
		}
		if err := s.persons.Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *Service) UpdateProvider(ctx context.Context, accountID uuid.UUID, patch *ProviderPatch) (*Provider, error) {
	var out *Provider
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.ProviderByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if patch.SocialName != nil {
			name := cleanName(*patch.SocialName)
			if name == "" {
				return ErrSocialNameRequired
			}
			taken, err := s.providers.SocialNameExists(ctx, name, p.ID)
			if err != nil {
				return err
			}
			if taken {
				return ErrProviderSocialNameTaken
			}
			p.SocialName = &name
		}
		if patch.ProfessionalRegistration != nil {
			reg := strings.TrimSpace(*patch.ProfessionalRegistration)
			if reg != "" {
				taken, err := s.providers.RegistrationExists(ctx, reg, p.ID)
				if err != nil {
					return err
				}
				if taken {
					return ErrRegistrationTaken
				}
				p.ProfessionalRegistration = &reg
			} else {
				p.ProfessionalRegistration = nil
			}
		}
		if patch.BirthDatetime != nil {
			p.BirthDatetime = patch.BirthDatetime
		}
		if patch.SpecialtyConceptID != nil {
			p.SpecialtyConceptID = patch.SpecialtyConceptID
		}
		if patch.CareSiteID != nil {
			p.CareSiteID = patch.CareSiteID
		}
		if patch.UseDarkMode != nil {
			p.UseDarkMode = *patch.UseDarkMode
		}
		if err := s.providers.Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// ToggleDarkMode flips use_dark_mode on the account's profile and returns
// the new value.
func (s *Service) ToggleDarkMode(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var enabled bool
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		prof, err := s.roles.Lookup(ctx, accountID)
		if err != nil {
			return err
		}
		switch {
		case prof.PersonID > 0:
			p, err := s.persons.GetByID(ctx, prof.PersonID)
			if err != nil {
				return err
			}
			p.UseDarkMode = !p.UseDarkMode
			enabled = p.UseDarkMode
			return s.persons.Update(ctx, p)
		case prof.ProviderID > 0:
			p, err := s.providers.GetByID(ctx, prof.ProviderID)
			if err != nil {
				return err
			}
			p.UseDarkMode = !p.UseDarkMode
			enabled = p.UseDarkMode
			return s.providers.Update(ctx, p)
		}
		return fmt.Errorf("%w: User profile not found. Cannot update dark mode setting.", apperr.ErrNotFound)
	})
	return enabled, err
}

// SetProfilePicture stores url on the account's profile and returns the
// previous value, if any.
func (s *Service) SetProfilePicture(ctx context.Context, accountID uuid.UUID, url string) (*string, error) {
	var previous *string
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		prof, err := s.roles.Lookup(ctx, accountID)
		if err != nil {
			return err
		}
		switch {
		case prof.PersonID > 0:
			p, err := s.persons.GetByID(ctx, prof.PersonID)
			if err != nil {
				return err
			}
			previous, p.ProfilePicture = p.ProfilePicture, &url
			return s.persons.Update(ctx, p)
		case prof.ProviderID > 0:
			p, err := s.providers.GetByID(ctx, prof.ProviderID)
			if err != nil {
				return err
			}
			previous, p.ProfilePicture = p.ProfilePicture, &url
			return s.providers.Update(ctx, p)
		}
		return fmt.Errorf("%w: User profile not found.", apperr.ErrNotFound)
	})
	return previous, err
}

// Anonymize strips the identifying fields of the account's profile. The row
// itself stays so that the clinical history keeps its foreign keys.
func (s *Service) Anonymize(ctx context.Context, accountID uuid.UUID) (*Profile, error) {
	prof, err := s.roles.Lookup(ctx, accountID)
	if err != nil {
		return nil, err
	}
	switch {
	case prof.PersonID > 0:
		p, err := s.persons.GetByID(ctx, prof.PersonID)
		if err != nil {
			return nil, err
		}
		p.SocialName, p.BirthDatetime, p.ProfilePicture = nil, nil, nil
		if err := s.persons.Update(ctx, p); err != nil {
			return nil, err
		}
	case prof.ProviderID > 0:
		p, err := s.providers.GetByID(ctx, prof.ProviderID)
		if err != nil {
			return nil, err
		}
		p.SocialName, p.BirthDatetime, p.ProfilePicture, p.ProfessionalRegistration = nil, nil, nil, nil
		if err := s.providers.Update(ctx, p); err != nil {
			return nil, err
		}
	}
	return prof, nil
}
