package models

import (
	"time"

	"github.com/territory-studio/engine/internal/geometry"
)

// DocumentVersion is written into every saved document. Older versions and
// documents without a version predate region back-references.
const DocumentVersion = 2

// Document is the single persisted object holding all map state.
type Document struct {
	TerritoryData        TerritoryData    `json:"territoryData"`
	ExtractedRegions     []Region         `json:"extractedRegions"`
	CongregationBoundary geometry.Polygon `json:"congregationBoundary"`
	ImageWidth           int              `json:"imageWidth"`
	ImageHeight          int              `json:"imageHeight"`
	SourceImage          string           `json:"sourceImage,omitempty"`
	Version              int              `json:"version"`
	LastUpdated          time.Time        `json:"lastUpdated"`
}

// TerritoryData groups the administrative records of a Document.
type TerritoryData struct {
	Territories []Territory    `json:"territories"`
	Groups      []Group        `json:"groups"`
	Metadata    map[string]any `json:"metadata"`
}

// Clone returns a deep copy of the document. Metadata values are copied
// shallowly.
func (d *Document) Clone() *Document {
	out := *d
	out.TerritoryData.Territories = make([]Territory, len(d.TerritoryData.Territories))
	for i, t := range d.TerritoryData.Territories {
		out.TerritoryData.Territories[i] = t.Clone()
	}
	out.TerritoryData.Groups = append([]Group(nil), d.TerritoryData.Groups...)
	if d.TerritoryData.Metadata != nil {
		out.TerritoryData.Metadata = make(map[string]any, len(d.TerritoryData.Metadata))
		for k, v := range d.TerritoryData.Metadata {
			out.TerritoryData.Metadata[k] = v
		}
	}
	out.ExtractedRegions = make([]Region, len(d.ExtractedRegions))
	for i, r := range d.ExtractedRegions {
		out.ExtractedRegions[i] = r.Clone()
	}
	out.CongregationBoundary = geometry.Clone(d.CongregationBoundary)
	return &out
}

// EmptyDocument returns a document with no regions, territories or groups.
func EmptyDocument() *Document {
	return &Document{
		TerritoryData: TerritoryData{
			Territories: []Territory{},
			Groups:      []Group{},
			Metadata:    map[string]any{},
		},
		ExtractedRegions: []Region{},
		Version:          DocumentVersion,
	}
}
