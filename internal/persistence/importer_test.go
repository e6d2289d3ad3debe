package persistence

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/territory-studio/engine/internal/geometry"
	"github.com/territory-studio/engine/internal/models"
	appErr "github.com/territory-studio/engine/pkg/errors"
	"github.com/territory-studio/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

const legacyTerritories = `[
  {"id": 1, "number": 12, "name": "Hill", "group": "North", "polygon": [[0,0],[10,0],[10,10]],
   "assignments": [{"id": 1700000000000, "publisher": "Ann", "dateAssigned": "2024-09-01", "dateCompleted": ""}]},
  {"number": "13", "group": "south", "assignments": [{"publisher": "Bo", "dateAssigned": "2024-10-01T00:00:00Z"}]}
]`

func TestImportBareArray(t *testing.T) {
	doc, err := ImportSnapshot([]byte(legacyTerritories))
	require.NoError(t, err)

	ts := doc.TerritoryData.Territories
	require.Len(t, ts, 2)
	require.Equal(t, "12", ts[0].Number)
	require.Equal(t, 2, ts[1].ID)
	require.Nil(t, ts[0].Assignments[0].DateCompleted)
	require.Equal(t, int64(1700000000001), ts[1].Assignments[0].ID)
	require.Equal(t, models.NewDate(2024, time.October, 1), ts[1].Assignments[0].DateAssigned)
	require.NotNil(t, ts[1].Polygon)

	groups := doc.TerritoryData.Groups
	require.Len(t, groups, 2)
	require.Equal(t, "North", groups[0].Name)
	require.Equal(t, groups[0].ID, *ts[0].GroupID)
	require.Equal(t, groups[1].ID, *ts[1].GroupID)
	require.Empty(t, ts[0].Group)
	require.Zero(t, doc.Version)
	require.NotNil(t, doc.ExtractedRegions)
}

func TestImportWrappers(t *testing.T) {
	shapes := map[string]string{
		"territoryData": `{"territoryData": {"territories": ` + legacyTerritories + `, "groups": [{"id": 4, "name": "North", "color": "#111111"}]}}`,
		"cache":         `{"cache": {"territoryData": {"territories": ` + legacyTerritories + `, "groups": [{"id": 4, "name": "North", "color": "#111111"}]}}}`,
		"cache array":   `{"cache": ` + legacyTerritories + `}`,
		"flat":          `{"territories": ` + legacyTerritories + `, "groups": [{"id": 4, "name": "North", "color": "#111111"}]}`,
	}
	for name, raw := range shapes {
		t.Run(name, func(t *testing.T) {
			doc, err := ImportSnapshot([]byte(raw))
			require.NoError(t, err)
			require.Len(t, doc.TerritoryData.Territories, 2)
			require.Len(t, doc.TerritoryData.Groups, 2)
			if name != "cache array" {
				require.Equal(t, 4, *doc.TerritoryData.Territories[0].GroupID)
			}
		})
	}
}

func TestImportCanonicalDocumentRecomputesRegions(t *testing.T) {
	raw := `{
	  "territoryData": {"territories": [], "groups": [], "metadata": {"congregation": "East"}},
	  "extractedRegions": [{"regionId": 3, "polygon": [{"x":0,"y":0},{"x":10,"y":0},{"x":10,"y":10},{"x":0,"y":10}], "area": 1, "centroid": [0,0], "assignedTerritoryId": 9}],
	  "congregationBoundary": [[0,0],[100,0],[100,100]],
	  "imageWidth": 800, "imageHeight": 600, "sourceImage": "Map/Real Boundary.png",
	  "version": 1, "lastUpdated": "2025-01-02T03:04:05Z"
	}`
	doc, err := ImportSnapshot([]byte(raw))
	require.NoError(t, err)
	r := doc.ExtractedRegions[0]
	require.Equal(t, 100.0, r.Area)
	require.Equal(t, geometry.Pt(5, 5), *r.Centroid)
	require.Equal(t, 9, *r.AssignedTerritoryID)
	require.Equal(t, 800, doc.ImageWidth)
	require.Len(t, doc.CongregationBoundary, 3)
	require.Equal(t, "East", doc.TerritoryData.Metadata["congregation"])
	require.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), doc.LastUpdated.UTC())
	require.Equal(t, 1, doc.Version)
}

func TestImportExtractionOutput(t *testing.T) {
	raw := `{"extractedRegions": [{"regionId": 1, "polygon": [[0,0],[4,0],[4,4]]}], "imageWidth": 10, "imageHeight": 10, "extractionDate": null}`
	doc, err := ImportSnapshot([]byte(raw))
	require.NoError(t, err)
	require.Len(t, doc.ExtractedRegions, 1)
	require.Empty(t, doc.TerritoryData.Territories)
}

func TestImportRejectsUnknownShapes(t *testing.T) {
	for _, raw := range []string{``, `null`, `42`, `{"foo": 1}`, `{"territories": {"oops": true}}`} {
		_, err := ImportSnapshot([]byte(raw))
		require.True(t, appErr.IsCode(err, appErr.CodeValidation), raw)
	}
}

func TestRenumberByArea(t *testing.T) {
	tid := 4
	regions := []models.Region{
		{RegionID: 1, Polygon: geometry.Polygon{geometry.Pt(0, 0), geometry.Pt(1, 0), geometry.Pt(1, 1)}},
		{RegionID: 2, Polygon: geometry.Polygon{geometry.Pt(0, 0), geometry.Pt(10, 0), geometry.Pt(10, 10)}, AssignedTerritoryID: &tid},
	}
	RenumberByArea(regions)
	require.Equal(t, 1, regions[0].RegionID)
	require.Equal(t, 50.0, regions[0].Area)
	require.Equal(t, 4, *regions[0].AssignedTerritoryID)
	require.Equal(t, 2, regions[1].RegionID)
}
