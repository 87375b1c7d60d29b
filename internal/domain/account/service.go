package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/saude/saude/internal/domain/factrel"
	"github.com/saude/saude/internal/domain/identity"
	"github.com/saude/saude/internal/platform/apperr"
	"github.com/saude/saude/internal/platform/auth"
	"github.com/saude/saude/internal/platform/blobstore"
	"github.com/saude/saude/internal/platform/db"
)

// Profiles is the part of the identity service the account endpoints use.
type Profiles interface {
	Profile(ctx context.Context, accountID uuid.UUID) (*identity.Profile, error)
	PersonByAccount(ctx context.Context, accountID uuid.UUID) (*identity.Person, error)
	ProviderByAccount(ctx context.Context, accountID uuid.UUID) (*identity.Provider, error)
	Anonymize(ctx context.Context, accountID uuid.UUID) (*identity.Profile, error)
	ToggleDarkMode(ctx context.Context, accountID uuid.UUID) (bool, error)
	SetProfilePicture(ctx context.Context, accountID uuid.UUID, url string) (*string, error)
}

// Unlinker drops every relationship an entity takes part in.
type Unlinker interface {
	UnlinkAll(ctx context.Context, ref factrel.EntityRef) (int64, error)
}

// IDTokenVerifier checks a third-party ID token.
type IDTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*auth.GoogleIdentity, error)
}

type Options struct {
	// Development enables password-less login by email.
	Development bool
	RefreshTTL  time.Duration
	// MediaURL prefixes blob keys to form the public picture URL.
	MediaURL string
}

type Service struct {
	accounts    Repository
	profiles    Profiles
	links       Unlinker
	tx          db.TxRunner
	issuer      *auth.Issuer
	revocations auth.RevocationStore
	google      IDTokenVerifier
	blobs       blobstore.Store
	opts        Options
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(accounts Repository, profiles Profiles, links Unlinker, tx db.TxRunner,
	issuer *auth.Issuer, revocations auth.RevocationStore, google IDTokenVerifier,
	blobs blobstore.Store, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		accounts:    accounts,
		profiles:    profiles,
		links:       links,
		tx:          tx,
		issuer:      issuer,
		revocations: revocations,
		google:      google,
		blobs:       blobs,
		opts:        opts,
		logger:      logger.With().Str("component", "account").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// -- Login --

// session issues tokens for a and describes its profile.
func (s *Service) session(ctx context.Context, a *Account) (*LoginResponse, error) {
	if !a.IsActive {
		return nil, ErrInactive
	}
	if err := s.accounts.TouchLogin(ctx, a.ID, s.now()); err != nil {
		return nil, fmt.Errorf("touch last_login: %w", err)
	}
	prof, err := s.profiles.Profile(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	var roles []string
	if prof.Role != "" {
		roles = append(roles, prof.Role)
	}
	if a.IsAdmin {
		roles = append(roles, auth.RoleAdmin)
	}
	pair, err := s.issuer.Issue(a.ID.String(), roles)
	if err != nil {
		return nil, err
	}
	resp := &LoginResponse{
		Access:    pair.Access,
		Refresh:   pair.Refresh,
		ExpiresAt: pair.AccessExpiresAt,
		Role:      roleName(prof),
		UserID:    a.ID,
		FullName:  strings.TrimSpace(a.FirstName + " " + a.LastName),
		Email:     a.Email,
	}
	switch {
	case prof.PersonID > 0:
		p, err := s.profiles.PersonByAccount(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		resp.PersonID = &p.ID
		resp.SocialName, resp.ProfilePicture, resp.UseDarkMode = p.SocialName, p.ProfilePicture, p.UseDarkMode
	case prof.ProviderID > 0:
		p, err := s.profiles.ProviderByAccount(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		resp.ProviderID = &p.ID
		resp.SocialName, resp.ProfilePicture, resp.UseDarkMode = p.SocialName, p.ProfilePicture, p.UseDarkMode
	}
	return resp, nil
}

func roleName(p *identity.Profile) string {
	if p.Role == "" {
		return RoleNone
	}
	return p.Role
}

// findOrCreate returns the account registered under email, creating it from
// the template when absent.
func (s *Service) findOrCreate(ctx context.Context, email string, tmpl Account) (*Account, bool, error) {
	a, err := s.accounts.GetByEmail(ctx, email)
	if err == nil {
		return a, false, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, false, err
	}
	tmpl.Email = strings.ToLower(email)
	if tmpl.Username == "" {
		tmpl.Username = strings.SplitN(tmpl.Email, "@", 2)[0]
	}
	tmpl.IsActive = true
	if err := s.accounts.Create(ctx, &tmpl); err != nil {
		return nil, false, err
	}
	return &tmpl, true, nil
}

type DevLoginRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// DevLogin signs in by email alone, creating the account on first use.
func (s *Service) DevLogin(ctx context.Context, req *DevLoginRequest) (*LoginResponse, error) {
	if !s.opts.Development {
		return nil, fmt.Errorf("%w: development login is disabled", apperr.ErrNotFound)
	}
	email := strings.TrimSpace(req.Email)
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", apperr.ErrValidation)
	}
	a, created, err := s.findOrCreate(ctx, email, Account{
		Username: req.Username, FirstName: req.FirstName, LastName: req.LastName,
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info().Str("account_id", a.ID.String()).Msg("development account created")
	}
	return s.session(ctx, a)
}

// GoogleLogin signs in with a Google ID token.
func (s *Service) GoogleLogin(ctx context.Context, idToken string) (*LoginResponse, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, fmt.Errorf("%w: id_token is required", apperr.ErrValidation)
	}
	id, err := s.google.Verify(ctx, idToken)
	if err != nil {
		s.logger.Warn().Err(err).Msg("google id token rejected")
		return nil, ErrInvalidCredentials
	}
	if !id.EmailVerified {
		return nil, ErrInvalidCredentials
	}
	a, created, err := s.findOrCreate(ctx, id.Email, Account{FirstName: id.GivenName, LastName: id.FamilyName})
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info().Str("account_id", a.ID.String()).Msg("account created from google login")
	}
	return s.session(ctx, a)
}

type AdminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AdminLogin signs in an administrator by email and password.
func (s *Service) AdminLogin(ctx context.Context, req *AdminLoginRequest) (*LoginResponse, error) {
	a, err := s.accounts.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !a.IsAdmin || a.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(*a.PasswordHash), []byte(req.Password)) != nil {
		s.logger.Warn().Str("account_id", a.ID.String()).Msg("admin login failed")
		return nil, ErrInvalidCredentials
	}
	return s.session(ctx, a)
}

// EnsureAdmin creates or promotes the account under email to administrator
// with the given password.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (*Account, error) {
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must have at least 8 characters", apperr.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	var out *Account
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		a, _, err := s.findOrCreate(ctx, email, Account{})
		if err != nil {
			return err
		}
		if err := s.accounts.SetAdminPassword(ctx, a.ID, string(hash)); err != nil {
			return err
		}
		h := string(hash)
		a.PasswordHash, a.IsAdmin = &h, true
		out = a
		return nil
	})
	return out, err
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked.
func (s *Service) Refresh(ctx context.Context, refresh string) (*auth.TokenPair, error) {
	claims, err := s.issuer.ParseRefresh(refresh)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidCredentials
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	a, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !a.IsActive {
		return nil, ErrInactive
	}
	if err := s.revokeClaims(ctx, claims); err != nil {
		return nil, err
	}
	return s.issuer.Issue(claims.Subject, claims.Roles)
}

// Logout revokes the given refresh token. An unparsable token is ignored.
func (s *Service) Logout(ctx context.Context, refresh string) error {
	claims, err := s.issuer.ParseRefresh(refresh)
	if err != nil {
		return nil
	}
	return s.revokeClaims(ctx, claims)
}

func (s *Service) revokeClaims(ctx context.Context, claims *auth.Claims) error {
	exp := s.now().Add(s.opts.RefreshTTL)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return s.revocations.Revoke(ctx, claims.ID, claims.Subject, exp)
}

// -- Account endpoints --

func (s *Service) Role(ctx context.Context, accountID uuid.UUID) (string, error) {
	prof, err := s.profiles.Profile(ctx, accountID)
	if err != nil {
		return "", err
	}
	return roleName(prof), nil
}

func (s *Service) Get(ctx context.Context, accountID uuid.UUID) (*Details, error) {
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	prof, err := s.profiles.Profile(ctx, accountID)
	if err != nil {
		return nil, err
	}
	d := &Details{Account: a, Role: roleName(prof)}
	if prof.PersonID > 0 {
		d.PersonID = &prof.PersonID
	}
	if prof.ProviderID > 0 {
		d.ProviderID = &prof.ProviderID
	}
	return d, nil
}

// Delete anonymizes the account and its profile, drops every relationship
// of the profile and revokes all tokens of the account. Clinical rows stay.
func (s *Service) Delete(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var removed int64
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		prof, err := s.profiles.Anonymize(ctx, accountID)
		if err != nil {
			return err
		}
		if prof.PersonID > 0 {
			n, err := s.links.UnlinkAll(ctx, factrel.Person(prof.PersonID))
			if err != nil {
				return err
			}
			removed += n
		}
		if prof.ProviderID > 0 {
			n, err := s.links.UnlinkAll(ctx, factrel.Provider(prof.ProviderID))
			if err != nil {
				return err
			}
			removed += n
		}
		stamp := s.now().Unix()
		return s.accounts.Deactivate(ctx, accountID,
			fmt.Sprintf("deleted_%d_%s@deleted.local", stamp, accountID),
			fmt.Sprintf("deleted_%d_%s", stamp, accountID))
	})
	if err != nil {
		return 0, err
	}
	if err := s.revocations.RevokeUser(ctx, accountID.String(), s.now().Add(s.opts.RefreshTTL)); err != nil {
		s.logger.Error().Err(err).Str("account_id", accountID.String()).Msg("revoke tokens of deleted account")
	}
	s.logger.Info().Str("account_id", accountID.String()).Int64("relationships_removed", removed).Msg("account deleted")
	return removed, nil
}

func (s *Service) ToggleDarkMode(ctx context.Context, accountID uuid.UUID) (bool, error) {
	return s.profiles.ToggleDarkMode(ctx, accountID)
}

// ProfilePictureKey is the blob key under which an upload is stored.
func ProfilePictureKey(accountID uuid.UUID, ext string) string {
	return fmt.Sprintf("profile-pictures/%s/%s%s", accountID, uuid.NewString(), ext)
}

// SetProfilePicture stores the image and points the profile at it. The
// previous picture is removed from the store.
func (s *Service) SetProfilePicture(ctx context.Context, accountID uuid.UUID, contentType string, content io.Reader) (string, error) {
	ext, err := blobstore.ValidateImage(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: profile picture must be PNG, JPEG or WebP", apperr.ErrValidation)
	}
	prof, err := s.profiles.Profile(ctx, accountID)
	if err != nil {
		return "", err
	}
	if prof.PersonID == 0 && prof.ProviderID == 0 {
		return "", fmt.Errorf("%w: User profile not found.", apperr.ErrNotFound)
	}
	obj, err := s.blobs.Put(ctx, ProfilePictureKey(accountID, ext), contentType, content)
	if errors.Is(err, blobstore.ErrTooLarge) {
		return "", fmt.Errorf("%w: profile picture exceeds 5 MB", apperr.ErrValidation)
	}
	if err != nil {
		return "", fmt.Errorf("store profile picture: %w", err)
	}
	url := s.opts.MediaURL + obj.Key
	previous, err := s.profiles.SetProfilePicture(ctx, accountID, url)
	if err != nil {
		_ = s.blobs.Delete(ctx, obj.Key)
		return "", err
	}
	if previous != nil && s.opts.MediaURL != "" && strings.HasPrefix(*previous, s.opts.MediaURL) {
		if err := s.blobs.Delete(ctx, strings.TrimPrefix(*previous, s.opts.MediaURL)); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", *previous).Msg("remove previous profile picture")
		}
	}
	return url, nil
}
