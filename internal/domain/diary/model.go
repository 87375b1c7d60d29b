// Package diary stores a person's diary entries. An entry snapshots the
// interest areas it answers, so later edits to an area do not rewrite
// history, and is joined to each area by an AOI_DIARY edge.
package diary

import (
	"time"

	"github.com/saude/saude/internal/domain/observation"
)

const (
	MsgNotFound  = "Diary entry not found."
	MsgNotLinked = "Esta pessoa não está vinculada a este profissional."
)

type TriggerAnswer struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Response *string `json:"response"`
}

type AreaInput struct {
	InterestAreaID     int64           `json:"interest_area_id"`
	SharedWithProvider bool            `json:"shared_with_provider"`
	Triggers           []TriggerAnswer `json:"triggers"`
}

type Input struct {
	DateRangeType string      `json:"date_range_type"`
	Text          string      `json:"text"`
	TextShared    bool        `json:"text_shared"`
	InterestAreas []AreaInput `json:"interest_areas"`
}

// Entry is the API view of a diary entry.
type Entry struct {
	ID            int64                           `json:"diary_id"`
	PersonID      int64                           `json:"person_id"`
	Date          time.Time                       `json:"date"`
	DateRangeType string                          `json:"date_range_type"`
	Text          string                          `json:"text"`
	TextShared    bool                            `json:"text_shared"`
	DiaryShared   bool                            `json:"diary_shared"`
	InterestAreas []observation.DiaryInterestArea `json:"interest_areas"`
}

func fromDocument(d *observation.Document) *Entry {
	e := &Entry{ID: d.ID, Date: d.Date, InterestAreas: []observation.DiaryInterestArea{}}
	if d.PersonID != nil {
		e.PersonID = *d.PersonID
	}
	if p, ok := d.Payload.(*observation.DiaryPayload); ok {
		e.DateRangeType = p.DateRangeType
		e.Text = p.Text
		e.TextShared = p.TextShared
		e.DiaryShared = p.DiaryShared
		if p.InterestAreas != nil {
			e.InterestAreas = p.InterestAreas
		}
	}
	return e
}

// redacted is the view a linked provider gets: private text is blanked and
// private areas are dropped.
func (e *Entry) redacted() *Entry {
	out := *e
	if !out.TextShared {
		out.Text = ""
	}
	out.InterestAreas = make([]observation.DiaryInterestArea, 0, len(e.InterestAreas))
	for _, a := range e.InterestAreas {
		if a.SharedWithProvider {
			out.InterestAreas = append(out.InterestAreas, a)
		}
	}
	return &out
}
