package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rionegro-oan/matchup-cli/internal/config"
	"github.com/rionegro-oan/matchup-cli/internal/fetcher"
	"github.com/rionegro-oan/matchup-cli/internal/model"
	"github.com/rionegro-oan/matchup-cli/internal/resilience"
)

func testFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	})
}

func featureJSON(id, datetime string) string {
	return fmt.Sprintf(`{
		"type": "Feature",
		"stac_version": "1.0.0",
		"id": %q,
		"collection": "sentinel-2-l2a",
		"bbox": [-61, -4, -59, -2],
		"geometry": {"type": "Polygon", "coordinates": [[[-61,-2],[-59,-2],[-59,-4],[-61,-4],[-61,-2]]]},
		"properties": {"datetime": %q, "platform": "sentinel-2a", "eo:cloud_cover": 4.2},
		"assets": {
			"product": {"href": "https://assets.example/%s/product.zip"},
			"scl": {"href": "https://assets.example/%s/scl.tif"}
		},
		"links": []
	}`, id, datetime, id, id)
}

func testQuery() Query {
	return Query{
		Lon:           -60.02,
		Lat:           -3.12,
		Date:          time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC),
		TimeDeltaDays: 1,
		MaxCloudCover: 10,
	}
}

func TestSearchFollowsPagination(t *testing.T) {
	var gotBody searchBody
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/geo+json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/search":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			fmt.Fprintf(w, `{
				"type": "FeatureCollection",
				"features": [%s],
				"links": [{"rel": "next", "href": %q, "method": "GET"}]
			}`, featureJSON("PAGE1_ITEM", "2023-05-10T14:03:22Z"), srv.URL+"/search?page=2")
		case r.Method == http.MethodGet && r.URL.Query().Get("page") == "2":
			fmt.Fprintf(w, `{
				"type": "FeatureCollection",
				"features": [%s],
				"links": []
			}`, featureJSON("PAGE2_ITEM", "2023-05-11T14:05:00Z"))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	adapter := NewEarthSearchAdapter(config.EarthSearchConfig{
		BaseURL:    srv.URL,
		Collection: "sentinel-2-l2a",
	}, testFetcher())

	records, err := adapter.Search(context.Background(), testQuery())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "PAGE1_ITEM", records[0].ProductID)
	assert.Equal(t, "PAGE2_ITEM", records[1].ProductID)
	assert.Equal(t, model.LevelL2A, records[0].Level)
	assert.Contains(t, records[0].AssetRefs, model.AssetMask)

	// The request carried the inclusive window, the sample point, and the
	// cloud ceiling.
	assert.Equal(t, []string{"sentinel-2-l2a"}, gotBody.Collections)
	assert.Equal(t, "2023-05-09T00:00:00Z/2023-05-11T23:59:59Z", gotBody.Datetime)
	assert.Equal(t, "Point", gotBody.Intersects["type"])
	assert.Equal(t, map[string]any{"lte": 10.0}, gotBody.Query["eo:cloud_cover"].(map[string]any))
}

func TestSearchBoundsPageFollowing(t *testing.T) {
	var pages atomic.Int64
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := pages.Add(1)
		// Always hand back a next link: a broken backend must not loop us.
		fmt.Fprintf(w, `{
			"type": "FeatureCollection",
			"features": [%s],
			"links": [{"rel": "next", "href": %q, "method": "GET"}]
		}`, featureJSON(fmt.Sprintf("ITEM_%d", n), "2023-05-10T14:00:00Z"), srv.URL+"/search")
	}))
	defer srv.Close()

	adapter := NewEarthSearchAdapter(config.EarthSearchConfig{
		BaseURL:    srv.URL,
		Collection: "sentinel-2-l2a",
	}, testFetcher())

	records, err := adapter.Search(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Len(t, records, maxPages)
}

func TestSearchUnavailableBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	adapter := NewCDSEAdapter(config.CDSEConfig{
		BaseURL:    srv.URL,
		Collection: "sentinel-2-l1c",
	}, testFetcher())

	_, err := adapter.Search(context.Background(), testQuery())
	var unavailable *resilience.SourceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, string(model.SourceCDSE), unavailable.Source)
}

func TestBuildSearchBodyWithAOI(t *testing.T) {
	q := testQuery()
	q.AOI = &model.BBox{MinLon: -61, MinLat: -4, MaxLon: -59, MaxLat: -2}

	body := buildSearchBody(q, "sentinel-2-l1c")
	assert.Equal(t, []float64{-61, -4, -59, -2}, body.BBox)
	assert.Nil(t, body.Intersects)
}

func TestTokenProviderCachesUntilExpiry(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "test-client", r.PostForm.Get("client_id"))
		fmt.Fprintf(w, `{"access_token": "tok-%d", "expires_in": 3600}`, hits.Load())
	}))
	defer srv.Close()

	p := NewTokenProvider(config.CDSEConfig{
		TokenURL:     srv.URL,
		ClientID:     "test-client",
		ClientSecret: "test-secret",
	})

	tok1, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok1)

	tok2, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tok1, tok2)
	assert.Equal(t, int64(1), hits.Load())
}

func TestTokenProviderAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewTokenProvider(config.CDSEConfig{TokenURL: srv.URL, ClientID: "x", ClientSecret: "y"})

	_, err := p.Token(context.Background())
	require.True(t, resilience.IsAuth(err))
	assert.False(t, resilience.IsTransient(err))
}

func TestAuthorizerAttachesBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token": "bearer-tok", "expires_in": 3600}`)
	}))
	defer srv.Close()

	p := NewTokenProvider(config.CDSEConfig{TokenURL: srv.URL, ClientID: "x", ClientSecret: "y"})

	req, err := http.NewRequest(http.MethodGet, "https://example.test/asset", nil)
	require.NoError(t, err)
	require.NoError(t, p.Authorizer()(context.Background(), req))
	assert.Equal(t, "Bearer bearer-tok", req.Header.Get("Authorization"))
}
