// Package identity holds the two profile kinds an account can own, Person
// and Provider, together with onboarding and profile maintenance.
package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saude/saude/internal/platform/apperr"
)

// Client-facing messages in the language of the app.
const (
	MsgSocialNameRequired      = "Nome social é obrigatório."
	MsgSocialNameTaken         = "Este nome social já está em uso."
	MsgProviderSocialNameTaken = "Este nome social já está em uso por outro profissional."
	MsgRegistrationTaken       = "Já existe um profissional com este registro."
	MsgHasPersonProfile        = "Você já possui um perfil de paciente no sistema."
	MsgHasProviderProfile      = "Você já possui um perfil de profissional no sistema."
	MsgSuspiciousEmail         = "Domínio de email não permitido."
)

var (
	ErrSocialNameRequired      = fmt.Errorf("%w: %s", apperr.ErrValidation, MsgSocialNameRequired)
	ErrSocialNameTaken         = fmt.Errorf("%w: %s", apperr.ErrConflict, MsgSocialNameTaken)
	ErrProviderSocialNameTaken = fmt.Errorf("%w: %s", apperr.ErrConflict, MsgProviderSocialNameTaken)
	ErrRegistrationTaken       = fmt.Errorf("%w: %s", apperr.ErrConflict, MsgRegistrationTaken)
	ErrHasPersonProfile        = fmt.Errorf("%w: %s", apperr.ErrConflict, MsgHasPersonProfile)
	ErrHasProviderProfile      = fmt.Errorf("%w: %s", apperr.ErrConflict, MsgHasProviderProfile)
	ErrSuspiciousEmail         = fmt.Errorf("%w: %s", apperr.ErrValidation, MsgSuspiciousEmail)
)

// Roles stored in account_role.
const (
	RolePerson   = "person"
	RoleProvider = "provider"
)

// AccountInfo is the read-only slice of the owning account shown with a
// profile.
type AccountInfo struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// FullName joins first and last name.
func (a AccountInfo) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

type Location struct {
	ID               int64   `json:"location_id"`
	Address1         *string `json:"address_1,omitempty"`
	Address2         *string `json:"address_2,omitempty"`
	City             *string `json:"city,omitempty"`
	StateConceptID   *int64  `json:"state_concept_id,omitempty"`
	Zip              *string `json:"zip,omitempty"`
	CountryConceptID *int64  `json:"country_concept_id,omitempty"`
}

type Person struct {
	ID                 int64      `json:"person_id"`
	AccountID          uuid.UUID  `json:"user_id"`
	SocialName         *string    `json:"social_name"`
	BirthDatetime      *time.Time `json:"birth_datetime,omitempty"`
	YearOfBirth        *int       `json:"year_of_birth,omitempty"`
	GenderConceptID    *int64     `json:"gender_concept_id,omitempty"`
	RaceConceptID      *int64     `json:"race_concept_id,omitempty"`
	EthnicityConceptID *int64     `json:"ethnicity_concept_id,omitempty"`
	LocationID         *int64     `json:"location_id,omitempty"`
	ProfilePicture     *string    `json:"profile_picture"`
	UseDarkMode        bool       `json:"use_dark_mode"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	AccountInfo
	Location *Location `json:"location,omitempty"`
}

// DisplayName prefers the social name, then the account's full name, then
// its username.
func (p *Person) DisplayName() string {
	return displayName(p.SocialName, p.AccountInfo)
}

// Age in whole years at now, from birth_datetime or else year_of_birth.
func (p *Person) Age(now time.Time) *int {
	var age int
	switch {
	case p.BirthDatetime != nil:
		b := p.BirthDatetime.UTC()
		age = now.Year() - b.Year()
		if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
			age--
		}
	case p.YearOfBirth != nil:
		age = now.Year() - *p.YearOfBirth
	default:
		return nil
	}
	if age < 0 {
		return nil
	}
	return &age
}

type Provider struct {
	ID                       int64      `json:"provider_id"`
	AccountID                uuid.UUID  `json:"user_id"`
	SocialName               *string    `json:"social_name"`
	BirthDatetime            *time.Time `json:"birth_datetime,omitempty"`
	ProfessionalRegistration *string    `json:"professional_registration,omitempty"`
	SpecialtyConceptID       *int64     `json:"specialty_concept_id,omitempty"`
	CareSiteID               *int64     `json:"care_site_id,omitempty"`
	ProfilePicture           *string    `json:"profile_picture"`
	UseDarkMode              bool       `json:"use_dark_mode"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
	AccountInfo
}

func (p *Provider) DisplayName() string {
	return displayName(p.SocialName, p.AccountInfo)
}

func displayName(social *string, a AccountInfo) string {
	if social != nil && strings.TrimSpace(*social) != "" {
		return *social
	}
	if n := a.FullName(); n != "" {
		return n
	}
	return a.Username
}

// PublicProvider is what any authenticated caller may see of a provider.
type PublicProvider struct {
	ID                       int64   `json:"provider_id"`
	SocialName               *string `json:"social_name"`
	Name                     string  `json:"name"`
	ProfessionalRegistration *string `json:"professional_registration,omitempty"`
	SpecialtyConceptID       *int64  `json:"specialty_concept_id,omitempty"`
	ProfilePicture           *string `json:"profile_picture"`
}

func (p *Provider) Public() *PublicProvider {
	return &PublicProvider{
		ID:                       p.ID,
		SocialName:               p.SocialName,
		Name:                     p.DisplayName(),
		ProfessionalRegistration: p.ProfessionalRegistration,
		SpecialtyConceptID:       p.SpecialtyConceptID,
		ProfilePicture:           p.ProfilePicture,
	}
}

// Profile names the single profile of an account.
type Profile struct {
	Role       string
	PersonID   int64
	ProviderID int64
}

// PersonPatch carries the fields PATCH /persons/me may change. Nil means
// unchanged.
type PersonPatch struct {
	SocialName         *string    `json:"social_name"`
	BirthDatetime      *time.Time `json:"birth_datetime"`
	YearOfBirth        *int       `json:"year_of_birth"`
	GenderConceptID    *int64     `json:"gender_concept_id"`
	RaceConceptID      *int64     `json:"race_concept_id"`
	EthnicityConceptID *int64     `json:"ethnicity_concept_id"`
	UseDarkMode        *bool      `json:"use_dark_mode"`
	Location           *Location  `json:"location"`
}

// ProviderPatch carries the fields PATCH /providers/me may change.
type ProviderPatch struct {
	SocialName               *string    `json:"social_name"`
	BirthDatetime            *time.Time `json:"birth_datetime"`
	ProfessionalRegistration *string    `json:"professional_registration"`
	SpecialtyConceptID       *int64     `json:"specialty_concept_id"`
	CareSiteID               *int64     `json:"care_site_id"`
	UseDarkMode              *bool      `json:"use_dark_mode"`
}
