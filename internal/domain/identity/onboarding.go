package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saude/saude/internal/domain/clinical"
	"github.com/saude/saude/internal/domain/observation"
	"github.com/saude/saude/internal/domain/vocabulary"
	"github.com/saude/saude/internal/platform/apperr"
)

// AnswerInput is one self-reported onboarding answer.
type AnswerInput struct {
	ConceptID        int64      `json:"observation_concept_id"`
	ValueAsConceptID *int64     `json:"value_as_concept_id"`
	ValueAsString    *string    `json:"value_as_string"`
	Date             *time.Time `json:"observation_date"`
}

// PersonOnboarding is the body of POST /onboarding/person.
type PersonOnboarding struct {
	SocialName         string     `json:"social_name"`
	BirthDatetime      *time.Time `json:"birth_datetime"`
	YearOfBirth        *int       `json:"year_of_birth"`
	GenderConceptID    *int64     `json:"gender_concept_id"`
	RaceConceptID      *int64     `json:"race_concept_id"`
	EthnicityConceptID *int64     `json:"ethnicity_concept_id"`
	UseDarkMode        bool       `json:"use_dark_mode"`
	Location           *Location  `json:"location"`
	clinical.BodyMetrics
	DrugExposures []*clinical.DrugExposure `json:"drug_exposures"`
	Observations  []AnswerInput            `json:"observations"`
}

// ProviderOnboarding is the body of POST /onboarding/provider.
type ProviderOnboarding struct {
	SocialName               string     `json:"social_name"`
	BirthDatetime            *time.Time `json:"birth_datetime"`
	ProfessionalRegistration *string    `json:"professional_registration"`
	SpecialtyConceptID       *int64     `json:"specialty_concept_id"`
	CareSiteID               *int64     `json:"care_site_id"`
	UseDarkMode              bool       `json:"use_dark_mode"`
}

// Disposable mail domains refused at provider onboarding.
var suspiciousDomains = map[string]bool{
	"10minutemail.com":  true,
	"tempmail.org":      true,
	"guerrillamail.com": true,
	"mailinator.com":    true,
	"throwaway.email":   true,
}

func emailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return strings.ToLower(email[i+1:])
	}
	return ""
}

// ensureNoProfile fails when the account already owns either profile kind.
func (s *Service) ensureNoProfile(ctx context.Context, accountID uuid.UUID) error {
	prof, err := s.roles.Lookup(ctx, accountID)
	if err != nil {
		return err
	}
	switch {
	case prof.PersonID > 0 || prof.Role == RolePerson:
		return ErrHasPersonProfile
	case prof.ProviderID > 0 || prof.Role == RoleProvider:
		return ErrHasProviderProfile
	}
	return nil
}

// OnboardPerson creates the person profile of an account together with its
// location, body metrics, drug exposures and self-reported answers. Nothing
// is stored unless all of it is.
func (s *Service) OnboardPerson(ctx context.Context, accountID uuid.UUID, req *PersonOnboarding) (*Person, error) {
	name := cleanName(req.SocialName)
	if name == "" {
		return nil, ErrSocialNameRequired
	}
	if req.BirthDatetime != nil && req.BirthDatetime.After(s.now()) {
		return nil, fmt.Errorf("%w: birth_datetime is in the future", apperr.ErrValidation)
	}
	for i, a := range req.Observations {
		if a.ConceptID == 0 {
			return nil, fmt.Errorf("%w: observations[%d].observation_concept_id is required", apperr.ErrValidation, i)
		}
	}
	srType, err := s.concepts.Resolve(vocabulary.CodeSelfReported)
	if err != nil {
		return nil, err
	}

	p := &Person{
		AccountID:          accountID,
		SocialName:         &name,
		BirthDatetime:      req.BirthDatetime,
		YearOfBirth:        req.YearOfBirth,
		GenderConceptID:    req.GenderConceptID,
		RaceConceptID:      req.RaceConceptID,
		EthnicityConceptID: req.EthnicityConceptID,
		UseDarkMode:        req.UseDarkMode,
	}
	if p.YearOfBirth == nil && p.BirthDatetime != nil {
		y := p.BirthDatetime.Year()
		p.YearOfBirth = &y
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.ensureNoProfile(ctx, accountID); err != nil {
			return err
		}
		taken, err := s.persons.SocialNameExists(ctx, name, 0)
		if err != nil {
			return err
		}
		if taken {
			return ErrSocialNameTaken
		}
		if err := s.roles.Assign(ctx, accountID, RolePerson); err != nil {
			return err
		}
		if req.Location != nil {
			l := *req.Location
			if err := s.locations.Create(ctx, &l); err != nil {
				return fmt.Errorf("create location: %w", err)
			}
			p.LocationID = &l.ID
			p.Location = &l
		}
		if err := s.persons.Create(ctx, p); err != nil {
			return err
		}
		if _, err := s.clinical.RecordBodyMetrics(ctx, p.ID, req.BodyMetrics); err != nil {
			return err
		}
		for _, d := range req.DrugExposures {
			if d == nil {
				continue
			}
			d.ID, d.PersonID, d.RecurrenceRuleID = 0, p.ID, nil
			if err := s.clinical.CreateDrugExposure(ctx, d); err != nil {
				return err
			}
		}
		for _, a := range req.Observations {
			o := &observation.Observation{
				PersonID:         &p.ID,
				ConceptID:        a.ConceptID,
				ValueAsConceptID: a.ValueAsConceptID,
				ValueAsString:    a.ValueAsString,
				TypeConceptID:    &srType,
			}
			if a.Date != nil {
				o.Date = a.Date.UTC()
			}
			if err := s.observations.RecordScalar(ctx, o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("account_id", accountID.String()).Msg("person onboarding failed")
		return nil, err
	}
	s.logger.Info().Str("account_id", accountID.String()).Int64("person_id", p.ID).
		Int("drug_exposures", len(req.DrugExposures)).Int("observations", len(req.Observations)).
		Msg("person onboarded")
	return p, nil
}

// OnboardProvider creates the provider profile of an account.
func (s *Service) OnboardProvider(ctx context.Context, accountID uuid.UUID, req *ProviderOnboarding) (*Provider, error) {
	name := cleanName(req.SocialName)
	if name == "" {
		return nil, ErrSocialNameRequired
	}
	var registration *string
	if req.ProfessionalRegistration != nil {
		if reg := strings.TrimSpace(*req.ProfessionalRegistration); reg != "" {
			registration = &reg
		}
	}
	p := &Provider{
		AccountID:                accountID,
		SocialName:               &name,
		BirthDatetime:            req.BirthDatetime,
		ProfessionalRegistration: registration,
		SpecialtyConceptID:       req.SpecialtyConceptID,
		CareSiteID:               req.CareSiteID,
		UseDarkMode:              req.UseDarkMode,
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		email, err := s.roles.Email(ctx, accountID)
		if err != nil {
			return err
		}
		if suspiciousDomains[emailDomain(email)] {
			return ErrSuspiciousEmail
		}
		if err := s.ensureNoProfile(ctx, accountID); err != nil {
			return err
		}
		taken, err := s.providers.SocialNameExists(ctx, name, 0)
		if err != nil {
			return err
		}
		if taken {
			return ErrProviderSocialNameTaken
		}
		if registration != nil {
			taken, err := s.providers.RegistrationExists(ctx, *registration, 0)
			if err != nil {
				return err
			}
			if taken {
				return ErrRegistrationTaken
			}
		}
		if err := s.roles.Assign(ctx, accountID, RoleProvider); err != nil {
			return err
		}
		return s.providers.Create(ctx, p)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("account_id", accountID.String()).Msg("provider onboarding failed")
		return nil, err
	}
	s.logger.Info().Str("account_id", accountID.String()).Int64("provider_id", p.ID).Msg("provider onboarded")
	return p, nil
}
