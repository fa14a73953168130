package source

import (
	"testing"
	"time"

	stac "github.com/planetlabs/go-stac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rionegro-oan/matchup-cli/internal/model"
)

func stacItem(id string, props map[string]any, assets map[string]*stac.Asset) *stac.Item {
	return &stac.Item{
		Id:         id,
		Collection: "sentinel-2-l2a",
		Properties: props,
		Assets:     assets,
		Bbox:       []float64{-61, -4, -59, -2},
	}
}

func TestNormalizeItem(t *testing.T) {
	item := stacItem("S2A_X1",
		map[string]any{
			"datetime":       "2023-05-10T14:03:22Z",
			"platform":       " Sentinel-2A ",
			"eo:cloud_cover": 7.5,
		},
		map[string]*stac.Asset{
			"product": {Href: "https://assets.example/x1/product.zip"},
			"scl":     {Href: "https://assets.example/x1/scl.tif"},
		},
	)

	rec, err := normalizeItem(item, model.SourceEarthSearch, model.LevelL2A, earthSearchPrefs)
	require.NoError(t, err)

	assert.Equal(t, "S2A_X1", rec.ProductID)
	assert.Equal(t, model.SourceEarthSearch, rec.Source)
	assert.Equal(t, model.LevelL2A, rec.Level)
	assert.Equal(t, "sentinel-2a", rec.Platform)
	assert.Equal(t, time.Date(2023, 5, 10, 14, 3, 22, 0, time.UTC), rec.AcquiredAt)
	require.NotNil(t, rec.CloudCover)
	assert.Equal(t, 7.5, *rec.CloudCover)
	assert.Equal(t, model.BBox{MinLon: -61, MinLat: -4, MaxLon: -59, MaxLat: -2}, rec.Footprint.BBox)
	assert.Equal(t, "https://assets.example/x1/product.zip", rec.AssetRefs[model.AssetProduct])
	assert.Equal(t, "https://assets.example/x1/scl.tif", rec.AssetRefs[model.AssetMask])
}

func TestNormalizeAssetPreferenceOrder(t *testing.T) {
	// CDSE L1C items carry the archive under "data"; "product" is the fallback.
	item := stacItem("S2A_Y1",
		map[string]any{"datetime": "2023-05-10T14:00:00Z", "platform": "sentinel-2a"},
		map[string]*stac.Asset{
			"data":    {Href: "https://eodata.example/y1.zip"},
			"product": {Href: "https://eodata.example/y1-alt.zip"},
		},
	)

	rec, err := normalizeItem(item, model.SourceCDSE, model.LevelL1C, cdsePrefs)
	require.NoError(t, err)
	assert.Equal(t, "https://eodata.example/y1.zip", rec.AssetRefs[model.AssetProduct])
	assert.NotContains(t, rec.AssetRefs, model.AssetMask)
}

func TestNormalizeStartDatetimeFallback(t *testing.T) {
	item := stacItem("S2A_Y2",
		map[string]any{"start_datetime": "2023-05-10T14:00:00Z"},
		map[string]*stac.Asset{"data": {Href: "https://eodata.example/y2.zip"}},
	)

	rec, err := normalizeItem(item, model.SourceCDSE, model.LevelL1C, cdsePrefs)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 5, 10, 14, 0, 0, 0, time.UTC), rec.AcquiredAt)
}

func TestNormalizeMissingCloudCoverIsNil(t *testing.T) {
	item := stacItem("S2A_Y3",
		map[string]any{"datetime": "2023-05-10T14:00:00Z"},
		map[string]*stac.Asset{"data": {Href: "https://eodata.example/y3.zip"}},
	)

	rec, err := normalizeItem(item, model.SourceCDSE, model.LevelL1C, cdsePrefs)
	require.NoError(t, err)
	assert.Nil(t, rec.CloudCover)
	assert.False(t, rec.CloudKnown())
}

func TestNormalizeRejects(t *testing.T) {
	goodProps := map[string]any{"datetime": "2023-05-10T14:00:00Z"}
	goodAssets := map[string]*stac.Asset{"data": {Href: "https://eodata.example/z.zip"}}

	cases := []struct {
		name string
		item *stac.Item
	}{
		{"nil item", nil},
		{"no id", stacItem("", goodProps, goodAssets)},
		{"no datetime", stacItem("Z1", map[string]any{}, goodAssets)},
		{"bad datetime", stacItem("Z2", map[string]any{"datetime": "yesterday"}, goodAssets)},
		{"no product asset", stacItem("Z3", goodProps, map[string]*stac.Asset{"thumbnail": {Href: "https://x/t.png"}})},
		{"empty product href", stacItem("Z4", goodProps, map[string]*stac.Asset{"data": {Href: ""}})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := normalizeItem(tc.item, model.SourceCDSE, model.LevelL1C, cdsePrefs)
			assert.Error(t, err)
		})
	}
}

func TestNormalizePolygonRing(t *testing.T) {
	item := stacItem("S2A_G1",
		map[string]any{"datetime": "2023-05-10T14:00:00Z"},
		map[string]*stac.Asset{"data": {Href: "https://eodata.example/g1.zip"}},
	)
	// Geometry as it comes out of encoding/json: []any all the way down.
	item.Geometry = map[string]any{
		"type": "Polygon",
		"coordinates": []any{
			[]any{
				[]any{-61.0, -2.0},
				[]any{-59.0, -2.0},
				[]any{-59.0, -4.0},
				[]any{-61.0, -4.0},
				[]any{-61.0, -2.0},
			},
		},
	}

	rec, err := normalizeItem(item, model.SourceCDSE, model.LevelL1C, cdsePrefs)
	require.NoError(t, err)
	require.Len(t, rec.Footprint.Ring, 5)
	assert.Equal(t, []float64{-61, -2}, rec.Footprint.Ring[0])
}

func TestNormalizeRingDerivesBBoxWhenAbsent(t *testing.T) {
	item := stacItem("S2A_G2",
		map[string]any{"datetime": "2023-05-10T14:00:00Z"},
		map[string]*stac.Asset{"data": {Href: "https://eodata.example/g2.zip"}},
	)
	item.Bbox = nil
	item.Geometry = map[string]any{
		"type": "Polygon",
		"coordinates": []any{
			[]any{
				[]any{-61.0, -2.0},
				[]any{-59.0, -2.0},
				[]any{-60.0, -4.0},
				[]any{-61.0, -2.0},
			},
		},
	}

	rec, err := normalizeItem(item, model.SourceCDSE, model.LevelL1C, cdsePrefs)
	require.NoError(t, err)
	assert.Equal(t, model.BBox{MinLon: -61, MinLat: -4, MaxLon: -59, MaxLat: -2}, rec.Footprint.BBox)
}

func TestNormalizeNonPolygonGeometryKeepsBBox(t *testing.T) {
	item := stacItem("S2A_G3",
		map[string]any{"datetime": "2023-05-10T14:00:00Z"},
		map[string]*stac.Asset{"data": {Href: "https://eodata.example/g3.zip"}},
	)
	item.Geometry = map[string]any{
		"type":        "Point",
		"coordinates": []any{-60.0, -3.0},
	}

	rec, err := normalizeItem(item, model.SourceCDSE, model.LevelL1C, cdsePrefs)
	require.NoError(t, err)
	assert.Empty(t, rec.Footprint.Ring)
	assert.Equal(t, model.BBox{MinLon: -61, MinLat: -4, MaxLon: -59, MaxLat: -2}, rec.Footprint.BBox)
}
