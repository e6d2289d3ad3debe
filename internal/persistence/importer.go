package persistence

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/territory-studio/engine/internal/geometry"
	"github.com/territory-studio/engine/internal/models"
	appErr "github.com/territory-studio/engine/pkg/errors"
)

// groupPalette colours groups created from legacy group names.
var groupPalette = []string{"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4", "#46f0f0", "#f032e6", "#bcf60c"}

const maxCacheNesting = 3

// ImportSnapshot normalises a stored or exported snapshot into a canonical
// document. Accepted shapes are the canonical document, a bare array of
// territories, an object with a territoryData wrapper, an object with a
// cache wrapper around any of these, a flat {territories, groups} object and
// the output of region extraction ({extractedRegions, ...}). The returned
// document keeps the format version of its source, 0 when it has none.
func ImportSnapshot(raw []byte) (*models.Document, error) {
	return importValue(raw, 0)
}

type rawDocument struct {
	Cache                json.RawMessage  `json:"cache"`
	TerritoryData        json.RawMessage  `json:"territoryData"`
	Territories          json.RawMessage  `json:"territories"`
	Groups               []models.Group   `json:"groups"`
	Metadata             map[string]any   `json:"metadata"`
	ExtractedRegions     []models.Region  `json:"extractedRegions"`
	CongregationBoundary geometry.Polygon `json:"congregationBoundary"`
	ImageWidth           int              `json:"imageWidth"`
	ImageHeight          int              `json:"imageHeight"`
	SourceImage          string           `json:"sourceImage"`
	LastUpdated          json.RawMessage  `json:"lastUpdated"`
	Version              int              `json:"version"`
}

type rawTerritoryData struct {
	Territories json.RawMessage `json:"territories"`
	Groups      []models.Group  `json:"groups"`
	Metadata    map[string]any  `json:"metadata"`
}

type rawTerritory struct {
	ID          flexInt          `json:"id"`
	Number      flexString       `json:"number"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	GroupID     *int             `json:"groupId"`
	Group       string           `json:"group"`
	Polygon     geometry.Polygon `json:"polygon"`
	Assignments []rawAssignment  `json:"assignments"`
}

type rawAssignment struct {
	ID            flexInt      `json:"id"`
	Publisher     string       `json:"publisher"`
	DateAssigned  models.Date  `json:"dateAssigned"`
	DateCompleted *models.Date `json:"dateCompleted"`
}

func importValue(raw []byte, depth int) (*models.Document, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, appErr.New(appErr.CodeValidation, "empty snapshot")
	}
	if raw[0] == '[' {
		ts, err := decodeTerritories(raw)
		if err != nil {
			return nil, err
		}
		doc := models.EmptyDocument()
		doc.TerritoryData.Territories = ts
		doc.Version = 0
		return normalize(doc), nil
	}
	if raw[0] != '{' {
		return nil, appErr.New(appErr.CodeValidation, "snapshot must be a JSON object or array")
	}

	var rd rawDocument
	if err := json.Unmarshal(raw, &rd); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeValidation, "decode snapshot")
	}
	if isPresent(rd.Cache) {
		if depth >= maxCacheNesting {
			return nil, appErr.New(appErr.CodeValidation, "cache wrappers nested too deeply")
		}
		return importValue(rd.Cache, depth+1)
	}

	doc := models.EmptyDocument()
	switch {
	case isPresent(rd.TerritoryData):
		td := bytes.TrimSpace(rd.TerritoryData)
		if td[0] == '[' {
			ts, err := decodeTerritories(td)
			if err != nil {
				return nil, err
			}
			doc.TerritoryData.Territories = ts
			doc.TerritoryData.Groups = rd.Groups
			doc.TerritoryData.Metadata = rd.Metadata
			break
		}
		var inner rawTerritoryData
		if err := json.Unmarshal(td, &inner); err != nil {
			return nil, appErr.Wrap(err, appErr.CodeValidation, "decode territoryData")
		}
		ts, err := decodeTerritories(inner.Territories)
		if err != nil {
			return nil, err
		}
		doc.TerritoryData.Territories = ts
		doc.TerritoryData.Groups = inner.Groups
		doc.TerritoryData.Metadata = inner.Metadata
	case isPresent(rd.Territories):
		ts, err := decodeTerritories(rd.Territories)
		if err != nil {
			return nil, err
		}
		doc.TerritoryData.Territories = ts
		doc.TerritoryData.Groups = rd.Groups
		doc.TerritoryData.Metadata = rd.Metadata
	case rd.ExtractedRegions != nil:
	default:
		return nil, appErr.New(appErr.CodeValidation, "unrecognised snapshot shape")
	}

	doc.ExtractedRegions = rd.ExtractedRegions
	doc.CongregationBoundary = rd.CongregationBoundary
	doc.ImageWidth = rd.ImageWidth
	doc.ImageHeight = rd.ImageHeight
	doc.SourceImage = rd.SourceImage
	doc.LastUpdated = parseTimestamp(rd.LastUpdated)
	doc.Version = rd.Version
	return normalize(doc), nil
}

func decodeTerritories(raw json.RawMessage) ([]models.Territory, error) {
	if !isPresent(raw) {
		return []models.Territory{}, nil
	}
	var rts []rawTerritory
	if err := json.Unmarshal(raw, &rts); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeValidation, "decode territories")
	}
	out := make([]models.Territory, 0, len(rts))
	for _, rt := range rts {
		t := models.Territory{
			ID:          int(rt.ID),
			Number:      strings.TrimSpace(string(rt.Number)),
			Name:        rt.Name,
			Description: rt.Description,
			GroupID:     rt.GroupID,
			Group:       strings.TrimSpace(rt.Group),
			Polygon:     rt.Polygon,
			Assignments: make([]models.Assignment, 0, len(rt.Assignments)),
		}
		for _, ra := range rt.Assignments {
			a := models.Assignment{
				ID:           int64(ra.ID),
				Publisher:    ra.Publisher,
				DateAssigned: ra.DateAssigned,
			}
			if ra.DateCompleted != nil && !ra.DateCompleted.IsZero() {
				d := *ra.DateCompleted
				a.DateCompleted = &d
			}
			t.Assignments = append(t.Assignments, a)
		}
		out = append(out, t)
	}
	return out, nil
}

// normalize fills missing collections and ids, resolves legacy group names
// (creating groups that do not exist) and recomputes region geometry.
func normalize(doc *models.Document) *models.Document {
	td := &doc.TerritoryData
	if td.Territories == nil {
		td.Territories = []models.Territory{}
	}
	if td.Groups == nil {
		td.Groups = []models.Group{}
	}
	if td.Metadata == nil {
		td.Metadata = map[string]any{}
	}
	if doc.ExtractedRegions == nil {
		doc.ExtractedRegions = []models.Region{}
	}

	maxGroup := 0
	for _, g := range td.Groups {
		if g.ID > maxGroup {
			maxGroup = g.ID
		}
	}
	for i := range td.Groups {
		if td.Groups[i].ID == 0 {
			maxGroup++
			td.Groups[i].ID = maxGroup
		}
	}

	maxTerritory := 0
	for _, t := range td.Territories {
		if t.ID > maxTerritory {
			maxTerritory = t.ID
		}
	}
	var nextAssignment int64
	for _, t := range td.Territories {
		for _, a := range t.Assignments {
			if a.ID > nextAssignment {
				nextAssignment = a.ID
			}
		}
	}

	for i := range td.Territories {
		t := &td.Territories[i]
		if t.ID == 0 {
			maxTerritory++
			t.ID = maxTerritory
		}
		if t.Polygon == nil {
			t.Polygon = geometry.Polygon{}
		}
		for j := range t.Assignments {
			if t.Assignments[j].ID == 0 {
				nextAssignment++
				t.Assignments[j].ID = nextAssignment
			}
		}
		if t.GroupID == nil && t.Group != "" {
			gid := groupByName(td, t.Group)
			if gid == 0 {
				maxGroup++
				gid = maxGroup
				td.Groups = append(td.Groups, models.Group{
					ID:    gid,
					Name:  t.Group,
					Color: groupPalette[(gid-1)%len(groupPalette)],
				})
			}
			t.GroupID = &gid
		}
		if t.GroupID != nil {
			t.Group = ""
		}
	}

	for i := range doc.ExtractedRegions {
		doc.ExtractedRegions[i].Refresh()
	}
	return doc
}

// RenumberByArea sorts regions largest first and renumbers them from 1.
// Region links travel with the regions.
func RenumberByArea(regions []models.Region) {
	for i := range regions {
		regions[i].Refresh()
	}
	sort.SliceStable(regions, func(i, j int) bool { return regions[i].Area > regions[j].Area })
	for i := range regions {
		regions[i].RegionID = i + 1
	}
}

func groupByName(td *models.TerritoryData, name string) int {
	for _, g := range td.Groups {
		if strings.EqualFold(g.Name, name) {
			return g.ID
		}
	}
	return 0
}

func isPresent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func parseTimestamp(raw json.RawMessage) time.Time {
	if !isPresent(raw) {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		return time.Time{}
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

// flexInt accepts JSON numbers, including floats, and numeric strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeValidation, "expected a numeric id")
	}
	*f = flexInt(n)
	return nil
}

// flexString accepts JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}
