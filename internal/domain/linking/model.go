package linking

import (
	"fmt"
	"time"

	"github.com/saude/saude/internal/domain/identity"
	"github.com/saude/saude/internal/platform/apperr"
)

// CodeTTL is how long a generated link code can be previewed or redeemed.
const CodeTTL = 10 * time.Minute

const (
	MsgInvalidCode       = "Invalid or expired code."
	MsgCodeRequired      = "Code is required."
	MsgTooManyAttempts   = "Too many attempts. Try again later."
	MsgNotOwnPersonLink  = "Você só pode remover seus próprios vínculos."
	MsgNotOwnPatientLink = "Você só pode remover vínculos de seus próprios pacientes."
)

// Expired and consumed codes answer with the same message as unknown ones so
// that the response does not reveal which codes exist.
var (
	ErrCodeRequired    = fmt.Errorf("%w: %s", apperr.ErrValidation, MsgCodeRequired)
	ErrInvalidCode     = fmt.Errorf("%w: %s", apperr.ErrValidation, MsgInvalidCode)
	ErrCodeExpired     = fmt.Errorf("%w: %s", apperr.ErrExpired, MsgInvalidCode)
	ErrCodeConsumed    = fmt.Errorf("%w: %s", apperr.ErrAlreadyConsumed, MsgInvalidCode)
	ErrTooManyAttempts = fmt.Errorf("%w: %s", apperr.ErrTooManyAttempts, MsgTooManyAttempts)
)

// CodeRecord is the provider's link-code observation.
type CodeRecord struct {
	ObservationID int64
	ProviderID    int64
	PersonID      *int64
	Code          string
	GeneratedAt   time.Time
}

func (r *CodeRecord) ExpiresAt() time.Time { return r.GeneratedAt.Add(CodeTTL) }

func (r *CodeRecord) Used() bool { return r.PersonID != nil }

type GeneratedCode struct {
	Code             string    `json:"code"`
	ExpiresAt        time.Time `json:"expires_at"`
	ExpiresInMinutes int       `json:"expires_in_minutes"`
}

type CodeStatus struct {
	IsUsed      bool      `json:"is_used"`
	GeneratedAt time.Time `json:"generated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Preview shows a person who issued a code before they commit to it.
type Preview struct {
	*identity.PublicProvider
	CodeStatus CodeStatus `json:"code_status"`
}

type RedeemResult struct {
	Status         string `json:"status"`
	AlreadyExisted bool   `json:"already_existed"`
	ProviderID     int64  `json:"provider_id"`
	ProviderName   string `json:"provider_name"`
}

// Unlink outcomes.
const (
	StatusLinked          = "linked"
	StatusUnlinked        = "unlinked"
	StatusAlreadyUnlinked = "already_unlinked"
)

type UnlinkRequest struct {
	PersonID   int64 `json:"person_id"`
	ProviderID int64 `json:"provider_id"`
}

type UnlinkResult struct {
	Status               string `json:"status"`
	RelationshipsRemoved int64  `json:"relationships_removed"`
	PersonID             int64  `json:"person_id"`
	ProviderID           int64  `json:"provider_id"`
}

// PersonSummary is one row of a provider's patient list.
type PersonSummary struct {
	PersonID       int64      `json:"person_id"`
	Name           string     `json:"name"`
	Age            *int       `json:"age"`
	ProfilePicture *string    `json:"profile_picture"`
	LastVisitDate  *time.Time `json:"last_visit_date"`
	LastHelpDate   *time.Time `json:"last_help_date"`
}

// Caller identifies who is acting on a link; exactly one id is set.
type Caller struct {
	PersonID   int64
	ProviderID int64
}
