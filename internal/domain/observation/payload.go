package observation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saude/saude/internal/domain/vocabulary"
	"github.com/saude/saude/internal/platform/apperr"
)

var (
	ErrPayloadTooLarge  = fmt.Errorf("%w: payload exceeds %d characters", apperr.ErrValidation, MaxPayloadLength)
	ErrMalformedPayload = fmt.Errorf("%w: malformed payload", apperr.ErrValidation)
)

// Payload is one of the typed document schemas. The set is closed.
type Payload interface {
	TypeCode() string
	encode() (string, error)
}

type Trigger struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Response *string `json:"response,omitempty"`
}

// Date range types accepted for diary entries.
const (
	DateRangeToday     = "today"
	DateRangeSinceLast = "since_last"
)

type DiaryInterestArea struct {
	InterestAreaID     int64     `json:"interest_area_id"`
	Name               string    `json:"name"`
	IsAttentionPoint   bool      `json:"is_attention_point"`
	SharedWithProvider bool      `json:"shared_with_provider"`
	Triggers           []Trigger `json:"triggers"`
}

type DiaryPayload struct {
	DateRangeType string              `json:"date_range_type"`
	Text          string              `json:"text"`
	TextShared    bool                `json:"text_shared"`
	DiaryShared   bool                `json:"diary_shared"`
	InterestAreas []DiaryInterestArea `json:"interest_areas"`
}

func (p *DiaryPayload) TypeCode() string { return vocabulary.CodeDiaryEntry }

func (p *DiaryPayload) encode() (string, error) {
	out := *p
	out.InterestAreas = append([]DiaryInterestArea{}, p.InterestAreas...)
	for i := range out.InterestAreas {
		if out.InterestAreas[i].Triggers == nil {
			out.InterestAreas[i].Triggers = []Trigger{}
		}
	}
	return marshal(out)
}

// InterestAreaPayload is stored as given. Mark keeps is_attention_point in
// step with marked_by; other writers own the flag themselves.
type InterestAreaPayload struct {
	Name             string    `json:"name"`
	IsAttentionPoint bool      `json:"is_attention_point"`
	MarkedBy         []string  `json:"marked_by"`
	Triggers         []Trigger `json:"triggers"`
}

func (p *InterestAreaPayload) TypeCode() string { return vocabulary.CodeInterestArea }

func (p *InterestAreaPayload) encode() (string, error) {
	out := *p
	if out.MarkedBy == nil {
		out.MarkedBy = []string{}
	}
	if out.Triggers == nil {
		out.Triggers = []Trigger{}
	}
	return marshal(out)
}

// LinkCodePayload is stored raw, not as JSON.
type LinkCodePayload struct {
	Code string
}

func (p *LinkCodePayload) TypeCode() string { return vocabulary.CodeProviderLinkCode }

func (p *LinkCodePayload) encode() (string, error) { return p.Code, nil }

// Help states.
const (
	HelpActive   = vocabulary.CodeActive
	HelpResolved = vocabulary.CodeResolved
)

// HelpPayload keeps its state in value_as_concept_id and the optional
// message in value_as_string.
type HelpPayload struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (p *HelpPayload) TypeCode() string { return vocabulary.CodeHelp }

func (p *HelpPayload) encode() (string, error) { return p.Message, nil }

// marshal encodes v without HTML escaping so non-ASCII and markup characters
// are stored as typed.
func marshal(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Encode renders p as the value_as_string it is stored under, enforcing the
// column capacity. Oversize payloads are rejected, never truncated.
func Encode(p Payload) (string, error) {
	s, err := p.encode()
	if err != nil {
		return "", err
	}
	if err := checkLength(s); err != nil {
		return "", err
	}
	return s, nil
}

func checkLength(s string) error {
	if n := utf8.RuneCountInString(s); n > MaxPayloadLength {
		return fmt.Errorf("%w (%d)", ErrPayloadTooLarge, n)
	}
	return nil
}

func decodeJSON(s string, v interface{}) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: empty", ErrMalformedPayload)
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func DecodeDiary(s string) (*DiaryPayload, error) {
	var p DiaryPayload
	if err := decodeJSON(s, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func DecodeInterestArea(s string) (*InterestAreaPayload, error) {
	var p InterestAreaPayload
	if err := decodeJSON(s, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func DecodeLinkCode(s string) (*LinkCodePayload, error) {
	if !ValidLinkCode(s) {
		return nil, fmt.Errorf("%w: link code %q", ErrMalformedPayload, s)
	}
	return &LinkCodePayload{Code: s}, nil
}

// DecodeHelp builds a HelpPayload from the state code resolved from
// value_as_concept_id and the stored message.
func DecodeHelp(statusCode string, message string) (*HelpPayload, error) {
	if statusCode != HelpActive && statusCode != HelpResolved {
		return nil, fmt.Errorf("%w: help status %q", ErrMalformedPayload, statusCode)
	}
	return &HelpPayload{Status: statusCode, Message: message}, nil
}

// LinkCodeLength and LinkCodeAlphabet define the shape of provider link codes.
const (
	LinkCodeLength   = 6
	LinkCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

func ValidLinkCode(s string) bool {
	if len(s) != LinkCodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(LinkCodeAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
