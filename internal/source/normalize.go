package source

import (
	"strings"
	"time"

	stac "github.com/planetlabs/go-stac"
	"github.com/rotisserie/eris"

	"github.com/rionegro-oan/matchup-cli/internal/model"
)

// assetPreference maps each common asset kind to the STAC asset keys that may
// carry it, in preference order. The two backends use different vocabularies
// for the same payloads.
type assetPreference map[model.AssetKind][]string

// normalizeItem converts one raw STAC item into an acquisition record.
// Pure: no I/O, no mutation of the input item. Items without an id, a
// timestamp, or a resolvable product asset are rejected.
func normalizeItem(item *stac.Item, src model.Source, level model.Level, prefs assetPreference) (model.AcquisitionRecord, error) {
	if item == nil || item.Id == "" {
		return model.AcquisitionRecord{}, eris.New("item has no id")
	}

	acquiredAt, err := itemDatetime(item)
	if err != nil {
		return model.AcquisitionRecord{}, eris.Wrapf(err, "item %s", item.Id)
	}

	rec := model.AcquisitionRecord{
		Source:     src,
		ProductID:  item.Id,
		Platform:   itemPlatform(item),
		AcquiredAt: acquiredAt,
		CloudCover: itemCloudCover(item),
		Footprint:  itemFootprint(item),
		Level:      level,
		AssetRefs:  make(map[model.AssetKind]string),
	}

	for kind, keys := range prefs {
		for _, key := range keys {
			if a, ok := item.Assets[key]; ok && a != nil && a.Href != "" {
				rec.AssetRefs[kind] = a.Href
				break
			}
		}
	}

	if rec.AssetRefs[model.AssetProduct] == "" {
		return model.AcquisitionRecord{}, eris.Errorf("item %s has no product asset", item.Id)
	}

	return rec, nil
}

// itemDatetime resolves the acquisition timestamp regardless of the source's
// native encoding: single datetime first, start_datetime as fallback.
func itemDatetime(item *stac.Item) (time.Time, error) {
	for _, key := range []string{"datetime", "start_datetime"} {
		raw, ok := item.Properties[key].(string)
		if !ok || raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, eris.Wrapf(err, "parse %s %q", key, raw)
		}
		return t.UTC(), nil
	}
	return time.Time{}, eris.New("no datetime property")
}

func itemPlatform(item *stac.Item) string {
	if p, ok := item.Properties["platform"].(string); ok {
		return strings.ToLower(strings.TrimSpace(p))
	}
	return ""
}

// itemCloudCover returns nil when the source did not report cloud cover;
// such records are retained and flagged, never dropped.
func itemCloudCover(item *stac.Item) *float64 {
	if v, ok := item.Properties["eo:cloud_cover"].(float64); ok {
		return &v
	}
	return nil
}

// itemFootprint extracts the bbox, plus the exact polygon outer ring when the
// item geometry is a GeoJSON Polygon.
func itemFootprint(item *stac.Item) model.Footprint {
	var fp model.Footprint

	if len(item.Bbox) >= 4 {
		fp.BBox = model.BBox{
			MinLon: item.Bbox[0],
			MinLat: item.Bbox[1],
			MaxLon: item.Bbox[2],
			MaxLat: item.Bbox[3],
		}
	}

	geomMap, ok := item.Geometry.(map[string]any)
	if !ok {
		return fp
	}
	if t, _ := geomMap["type"].(string); t != "Polygon" {
		return fp
	}
	rings, ok := geomMap["coordinates"].([]any)
	if !ok || len(rings) == 0 {
		return fp
	}
	outer, ok := rings[0].([]any)
	if !ok {
		return fp
	}

	ring := make([][]float64, 0, len(outer))
	for _, p := range outer {
		pair, ok := p.([]any)
		if !ok || len(pair) < 2 {
			return fp
		}
		lon, lonOK := pair[0].(float64)
		lat, latOK := pair[1].(float64)
		if !lonOK || !latOK {
			return fp
		}
		ring = append(ring, []float64{lon, lat})
	}
	fp.Ring = ring

	// Derive the bbox from the ring when the item carried none.
	if len(item.Bbox) < 4 && len(ring) > 0 {
		fp.BBox = ringBBox(ring)
	}
	return fp
}

func ringBBox(ring [][]float64) model.BBox {
	b := model.BBox{
		MinLon: ring[0][0], MaxLon: ring[0][0],
		MinLat: ring[0][1], MaxLat: ring[0][1],
	}
	for _, p := range ring[1:] {
		if p[0] < b.MinLon {
			b.MinLon = p[0]
		}
		if p[0] > b.MaxLon {
			b.MaxLon = p[0]
		}
		if p[1] < b.MinLat {
			b.MinLat = p[1]
		}
		if p[1] > b.MaxLat {
			b.MaxLat = p[1]
		}
	}
	return b
}
