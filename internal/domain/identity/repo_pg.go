package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// -- Person --

type personRepoPG struct{ pool *pgxpool.Pool }

func NewPersonRepoPG(pool *pgxpool.Pool) PersonRepository {
	return &personRepoPG{pool: pool}
}

const personCols = `p.person_id, p.account_id, p.social_name, p.birth_datetime, p.year_of_birth,
	p.gender_concept_id, p.race_concept_id, p.ethnicity_concept_id, p.location_id,
	p.profile_picture, p.use_dark_mode, p.created_at, p.updated_at,
	a.username, a.email, a.first_name, a.last_name`

const personFrom = ` FROM person p JOIN account a ON a.id = p.account_id`

func (r *personRepoPG) scanRow(row pgx.Row) (*Person, error) {
	var p Person
	err := row.Scan(&p.ID, &p.AccountID, &p.SocialName, &p.BirthDatetime, &p.YearOfBirth,
		&p.GenderConceptID, &p.RaceConceptID, &p.EthnicityConceptID, &p.LocationID,
		&p.ProfilePicture, &p.UseDarkMode, &p.CreatedAt, &p.UpdatedAt,
		&p.Username, &p.Email, &p.FirstName, &p.LastName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: person", apperr.ErrNotFound)
	}
	return &p, err
}

func (r *personRepoPG) Create(ctx context.Context, p *Person) error {
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO person (account_id, social_name, birth_datetime, year_of_birth,
			gender_concept_id, race_concept_id, ethnicity_concept_id, location_id,
			profile_picture, use_dark_mode)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING person_id, created_at, updated_at`,
		p.AccountID, p.SocialName, p.BirthDatetime, p.YearOfBirth,
		p.GenderConceptID, p.RaceConceptID, p.EthnicityConceptID, p.LocationID,
		p.ProfilePicture, p.UseDarkMode).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err, "person_social_name_key") {
		return ErrSocialNameTaken
	}
	if db.IsUniqueViolation(err, "person_account_id_key") {
		return ErrHasPersonProfile
	}
	return err
}

func (r *personRepoPG) GetByID(ctx context.Context, id int64) (*Person, error) {
	return r.scanRow(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+personCols+personFrom+` WHERE p.person_id = $1`, id))
}

func (r *personRepoPG) GetByAccount(ctx context.Context, accountID uuid.UUID) (*Person, error) {
	return r.scanRow(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+personCols+personFrom+` WHERE p.account_id = $1`, accountID))
}

func (r *personRepoPG) ListByIDs(ctx context.Context, ids []int64) ([]*Person, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := connFor(ctx, r.pool).Query(ctx, `SELECT `+personCols+personFrom+`
		WHERE p.person_id = ANY($1) ORDER BY p.social_name NULLS LAST, p.person_id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Person
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *personRepoPG) Update(ctx context.Context, p *Person) error {
	p.UpdatedAt = time.Now().UTC()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE person SET social_name = $2, birth_datetime = $3, year_of_birth = $4,
			gender_concept_id = $5, race_concept_id = $6, ethnicity_concept_id = $7, location_id = $8,
			profile_picture = $9, use_dark_mode = $10, updated_at = $11
		WHERE person_id = $1`,
		p.ID, p.SocialName, p.BirthDatetime, p.YearOfBirth,
		p.GenderConceptID, p.RaceConceptID, p.EthnicityConceptID, p.LocationID,
		p.ProfilePicture, p.UseDarkMode, p.UpdatedAt)
	if db.IsUniqueViolation(err, "person_social_name_key") {
		return ErrSocialNameTaken
	}
	return err
}

func (r *personRepoPG) SocialNameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	var ok bool
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM person WHERE social_name = $1 AND person_id <> $2)`,
		name, excludeID).Scan(&ok)
	return ok, err
}

// -- Provider --

type providerRepoPG struct{ pool *pgxpool.Pool }

func NewProviderRepoPG(pool *pgxpool.Pool) ProviderRepository {
	return &providerRepoPG{pool: pool}
}

const providerCols = `p.provider_id, p.account_id, p.social_name, p.birth_datetime, p.professional_registration,
	p.specialty_concept_id, p.care_site_id, p.profile_picture, p.use_dark_mode, p.created_at, p.updated_at,
	a.username, a.email, a.first_name, a.last_name`

const providerFrom = ` FROM provider p JOIN account a ON a.id = p.account_id`

func (r *providerRepoPG) scanRow(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.AccountID, &p.SocialName, &p.BirthDatetime, &p.ProfessionalRegistration,
		&p.SpecialtyConceptID, &p.CareSiteID, &p.ProfilePicture, &p.UseDarkMode, &p.CreatedAt, &p.UpdatedAt,
		&p.Username, &p.Email, &p.FirstName, &p.LastName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: provider", apperr.ErrNotFound)
	}
	return &p, err
}

func (r *providerRepoPG) uniqueErr(err error) error {
	switch {
	case db.IsUniqueViolation(err, "provider_social_name_key"):
		return ErrProviderSocialNameTaken
	case db.IsUniqueViolation(err, "provider_professional_registration_key"):
		return ErrRegistrationTaken
	case db.IsUniqueViolation(err, "provider_account_id_key"):
		return ErrHasProviderProfile
	}
	return err
}

func (r *providerRepoPG) Create(ctx context.Context, p *Provider) error {
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO provider (account_id, social_name, birth_datetime, professional_registration,
			specialty_concept_id, care_site_id, profile_picture, use_dark_mode)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING provider_id, created_at, updated_at`,
		p.AccountID, p.SocialName, p.BirthDatetime, p.ProfessionalRegistration,
		p.SpecialtyConceptID, p.CareSiteID, p.ProfilePicture, p.UseDarkMode).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return r.uniqueErr(err)
}

func (r *providerRepoPG) GetByID(ctx context.Context, id int64) (*Provider, error) {
	return r.scanRow(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+providerCols+providerFrom+` WHERE p.provider_id = $1`, id))
}

func (r *providerRepoPG) GetByAccount(ctx context.Context, accountID uuid.UUID) (*Provider, error) {
	return r.scanRow(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+providerCols+providerFrom+` WHERE p.account_id = $1`, accountID))
}

func (r *providerRepoPG) ListByIDs(ctx context.Context, ids []int64) ([]*Provider, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := connFor(ctx, r.pool).Query(ctx, `SELECT `+providerCols+providerFrom+`
		WHERE p.provider_id = ANY($1) ORDER BY p.social_name NULLS LAST, p.provider_id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Provider
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *providerRepoPG) Update(ctx context.Context, p *Provider) error {
	p.UpdatedAt = time.Now().UTC()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE provider SET social_name = $2, birth_datetime = $3, professional_registration = $4,
			specialty_concept_id = $5, care_site_id = $6, profile_picture = $7, use_dark_mode = $8, updated_at = $9
		WHERE provider_id = $1`,
		p.ID, p.SocialName, p.BirthDatetime, p.ProfessionalRegistration,
		p.SpecialtyConceptID, p.CareSiteID, p.ProfilePicture, p.UseDarkMode, p.UpdatedAt)
	return r.uniqueErr(err)
}

func (r *providerRepoPG) SocialNameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	var ok bool
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM provider WHERE social_name = $1 AND provider_id <> $2)`,
		name, excludeID).Scan(&ok)
	return ok, err
}

func (r *providerRepoPG) RegistrationExists(ctx context.Context, registration string, excludeID int64) (bool, error) {
	var ok bool
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM provider WHERE professional_registration = $1 AND provider_id <> $2)`,
		registration, excludeID).Scan(&ok)
	return ok, err
}

// -- Location --

type locationRepoPG struct{ pool *pgxpool.Pool }

func NewLocationRepoPG(pool *pgxpool.Pool) LocationRepository {
	return &locationRepoPG{pool: pool}
}

func (r *locationRepoPG) Create(ctx context.Context, l *Location) error {
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO location (address_1, address_2, city, state_concept_id, zip, country_concept_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING location_id`,
		l.Address1, l.Address2, l.City, l.StateConceptID, l.Zip, l.CountryConceptID).Scan(&l.ID)
}

func (r *locationRepoPG) GetByID(ctx context.Context, id int64) (*Location, error) {
	var l Location
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT location_id, address_1, address_2, city, state_concept_id, zip, country_concept_id
		FROM location WHERE location_id = $1`, id).
		Scan(&l.ID, &l.Address1, &l.Address2, &l.City, &l.StateConceptID, &l.Zip, &l.CountryConceptID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: location", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *locationRepoPG) Update(ctx context.Context, l *Location) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE location SET address_1 = $2, address_2 = $3, city = $4, state_concept_id = $5,
			zip = $6, country_concept_id = $7
		WHERE location_id = $1`,
		l.ID, l.Address1, l.Address2, l.City, l.StateConceptID, l.Zip, l.CountryConceptID)
	return err
}

// -- AccountRole --

type accountRoleRepoPG struct{ pool *pgxpool.Pool }

func NewAccountRoleRepoPG(pool *pgxpool.Pool) AccountRoleRepository {
	return &accountRoleRepoPG{pool: pool}
}

func (r *accountRoleRepoPG) Assign(ctx context.Context, accountID uuid.UUID, role string) error {
	_, err := connFor(ctx, r.pool).Exec(ctx,
		`INSERT INTO account_role (account_id, role) VALUES ($1, $2)`, accountID, role)
	if db.IsUniqueViolation(err, "") {
		return fmt.Errorf("%w: account already has a profile", apperr.ErrConflict)
	}
	return err
}

func (r *accountRoleRepoPG) Lookup(ctx context.Context, accountID uuid.UUID) (*Profile, error) {
	var (
		role                 *string
		personID, providerID *int64
	)
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT ar.role, pe.person_id, pr.provider_id
		FROM account a
		LEFT JOIN account_role ar ON ar.account_id = a.id
		LEFT JOIN person pe ON pe.account_id = a.id
		LEFT JOIN provider pr ON pr.account_id = a.id
		WHERE a.id = $1 AND a.is_active`, accountID).Scan(&role, &personID, &providerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, err
	}
	p := &Profile{}
	if role != nil {
		p.Role = *role
	}
	if personID != nil {
		p.PersonID = *personID
	}
	if providerID != nil {
		p.ProviderID = *providerID
	}
	return p, nil
}

func (r *accountRoleRepoPG) Email(ctx context.Context, accountID uuid.UUID) (string, error) {
	var email string
	err := connFor(ctx, r.pool).QueryRow(ctx, `SELECT email FROM account WHERE id = $1`, accountID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: account", apperr.ErrNotFound)
	}
	return email, err
}
