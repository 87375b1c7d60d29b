// Package interest manages a person's interest areas: named topics with
// trigger questions that the person answers in diary entries and that linked
// providers can mark as attention points.
package interest

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/saude/saude/internal/domain/observation"
)

const (
	MsgNotFound      = "Interest area not found or you don't have permission to update it."
	MsgMarkNotFound  = "Interest area or provider not found."
	MsgMarkForbidden = "You can only mark attention points for interest areas of linked persons."
	MsgNotLinked     = "Esta pessoa não está vinculada a este profissional."
	MsgMarkFlag      = "is_attention_point must be a boolean."
)

// Trigger types accepted on input.
const (
	TriggerBoolean = "boolean"
	TriggerText    = "text"
	TriggerScale   = "scale"
)

var triggerTypes = map[string]bool{TriggerBoolean: true, TriggerText: true, TriggerScale: true}

type Input struct {
	Name               string                `json:"name"`
	Triggers           []observation.Trigger `json:"triggers"`
	SharedWithProvider *bool                 `json:"shared_with_provider"`
}

// Area is the API view of an interest area.
type Area struct {
	ID                 int64                 `json:"interest_area_id"`
	PersonID           int64                 `json:"person_id"`
	Name               string                `json:"name"`
	IsAttentionPoint   bool                  `json:"is_attention_point"`
	MarkedBy           []string              `json:"marked_by"`
	MarkedByNames      []string              `json:"marked_by_names,omitempty"`
	Triggers           []observation.Trigger `json:"triggers"`
	SharedWithProvider bool                  `json:"shared_with_provider"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

func fromDocument(d *observation.Document) *Area {
	a := &Area{
		ID:                 d.ID,
		SharedWithProvider: d.Shared(),
		UpdatedAt:          d.Date,
		MarkedBy:           []string{},
		Triggers:           []observation.Trigger{},
	}
	if d.PersonID != nil {
		a.PersonID = *d.PersonID
	}
	if p, ok := d.Payload.(*observation.InterestAreaPayload); ok {
		a.Name = p.Name
		a.IsAttentionPoint = p.IsAttentionPoint
		if p.MarkedBy != nil {
			a.MarkedBy = p.MarkedBy
		}
		if p.Triggers != nil {
			a.Triggers = p.Triggers
		}
	}
	return a
}

// MarkRequest is the body of a mark call. Service callers may leave the flag
// nil to mark; the HTTP handler requires it.
type MarkRequest struct {
	IsAttentionPoint *bool `json:"is_attention_point"`
}

var errNotBoolean = errors.New("not a boolean")

// Flag decodes a boolean sent as a JSON bool, as 1 or 0, or as one of the
// usual form strings ("true", "false", "yes", "off", ...).
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var v string
	switch {
	case len(b) > 0 && b[0] == '"':
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		v = strings.ToLower(strings.TrimSpace(v))
	default:
		v = string(b)
	}
	switch v {
	case "true", "t", "yes", "y", "on", "1":
		*f = true
	case "false", "f", "no", "n", "off", "0":
		*f = false
	default:
		return errNotBoolean
	}
	return nil
}

// markBody is the wire form of MarkRequest.
type markBody struct {
	IsAttentionPoint *Flag `json:"is_attention_point"`
}

// ParseMarkRequest rejects a body that is not a JSON object or that lacks a
// boolean is_attention_point.
func ParseMarkRequest(body []byte) (MarkRequest, error) {
	var mb markBody
	if err := json.Unmarshal(body, &mb); err != nil || mb.IsAttentionPoint == nil {
		return MarkRequest{}, errNotBoolean
	}
	present := bool(*mb.IsAttentionPoint)
	return MarkRequest{IsAttentionPoint: &present}, nil
}

type MarkResponse struct {
	ProviderName  string `json:"provider_name"`
	IsMarked      bool   `json:"is_marked"`
	TotalMarkers  int    `json:"total_markers"`
	MarkingAction string `json:"marking_action"`
}
