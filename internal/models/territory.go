package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/territory-studio/engine/internal/geometry"
)

// Territory is a long-lived administrative unit. A territory with a
// non-empty polygon is placed on the map.
type Territory struct {
	ID          int              `json:"id"`
	Number      string           `json:"number"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	GroupID     *int             `json:"groupId,omitempty"`
	Group       string           `json:"group,omitempty"` // legacy group name
	Polygon     geometry.Polygon `json:"polygon"`
	Assignments []Assignment     `json:"assignments"`
}

// Placed reports whether the territory has a polygon.
func (t *Territory) Placed() bool { return len(t.Polygon) > 0 }

// FindAssignment returns the index of the assignment with id, or -1.
func (t *Territory) FindAssignment(id int64) int {
	for i := range t.Assignments {
		if t.Assignments[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the territory.
func (t Territory) Clone() Territory {
	out := t
	out.Polygon = geometry.Clone(t.Polygon)
	if t.GroupID != nil {
		id := *t.GroupID
		out.GroupID = &id
	}
	if t.Assignments != nil {
		out.Assignments = make([]Assignment, len(t.Assignments))
		for i, a := range t.Assignments {
			out.Assignments[i] = a.Clone()
		}
	}
	return out
}

// Assignment is one publisher's custody of a territory. A nil DateCompleted
// means the assignment is ongoing.
type Assignment struct {
	ID            int64  `json:"id"`
	Publisher     string `json:"publisher"`
	DateAssigned  Date   `json:"dateAssigned"`
	DateCompleted *Date  `json:"dateCompleted,omitempty"`
}

// Ongoing reports whether the assignment has no completion date.
func (a Assignment) Ongoing() bool { return a.DateCompleted == nil }

func (a Assignment) Clone() Assignment {
	out := a
	if a.DateCompleted != nil {
		d := *a.DateCompleted
		out.DateCompleted = &d
	}
	return out
}

// DateLayout is the wire format of Date.
const DateLayout = "2006-01-02"

// Date is a calendar day without time of day, encoded as "YYYY-MM-DD".
type Date struct {
	time.Time
}

// NewDate builds a Date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses "YYYY-MM-DD" and, for legacy records, full RFC 3339 timestamps.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("date %q: expected YYYY-MM-DD", s)
	}
	y, m, d := t.Date()
	return NewDate(y, m, d), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
