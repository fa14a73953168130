package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	stac "github.com/planetlabs/go-stac"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rionegro-oan/matchup-cli/internal/fetcher"
	"github.com/rionegro-oan/matchup-cli/internal/model"
	"github.com/rionegro-oan/matchup-cli/internal/resilience"
)

// maxPages bounds link-following so a misbehaving backend cannot loop us.
const maxPages = 10

// searchBody is a STAC item-search request.
type searchBody struct {
	Collections []string       `json:"collections"`
	BBox        []float64      `json:"bbox,omitempty"`
	Intersects  map[string]any `json:"intersects,omitempty"`
	Datetime    string         `json:"datetime"`
	Query       map[string]any `json:"query,omitempty"`
	Limit       int            `json:"limit"`
}

// searchLink is a pagination link. Unlike core STAC links it may carry a
// method and a follow-up request body.
type searchLink struct {
	Rel    string          `json:"rel"`
	Href   string          `json:"href"`
	Method string          `json:"method,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// searchResponse is a STAC item-search page.
type searchResponse struct {
	Features []*stac.Item `json:"features"`
	Links    []searchLink `json:"links"`
}

// stacClient performs item searches against one STAC API endpoint.
type stacClient struct {
	name    model.Source
	baseURL string
	http    *fetcher.HTTPFetcher
}

func newSTACClient(name model.Source, baseURL string, f *fetcher.HTTPFetcher) *stacClient {
	return &stacClient{name: name, baseURL: baseURL, http: f}
}

// search runs a STAC item search, following next links, and returns all
// matching items. Failures are wrapped as SourceUnavailableError so the
// caller can degrade gracefully.
func (c *stacClient) search(ctx context.Context, body searchBody) ([]*stac.Item, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "encode search body")
	}

	var items []*stac.Item
	url := c.baseURL + "/search"
	method := http.MethodPost

	for page := 0; page < maxPages; page++ {
		resp, err := c.post(ctx, method, url, payload)
		if err != nil {
			return nil, &resilience.SourceUnavailableError{Source: string(c.name), Err: err}
		}

		items = append(items, resp.Features...)

		next := nextLink(resp.Links)
		if next == nil {
			break
		}
		url = next.Href
		if next.Method != "" {
			method = next.Method
		} else {
			method = http.MethodGet
		}
		if len(next.Body) > 0 {
			payload = next.Body
		} else if method == http.MethodGet {
			payload = nil
		}
	}

	zap.L().Debug("stac search complete",
		zap.String("source", string(c.name)),
		zap.String("datetime", body.Datetime),
		zap.Int("items", len(items)),
	)
	return items, nil
}

func (c *stacClient) post(ctx context.Context, method, url string, payload []byte) (*searchResponse, error) {
	var reader io.Reader
	if len(payload) > 0 && method != http.MethodGet {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, eris.Wrap(err, "create search request")
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, eris.Errorf("search returned status %d: %s", resp.StatusCode, string(raw))
	}

	var page searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, eris.Wrap(err, "decode search response")
	}
	return &page, nil
}

func nextLink(links []searchLink) *searchLink {
	for i := range links {
		if links[i].Rel == "next" && links[i].Href != "" {
			return &links[i]
		}
	}
	return nil
}

// buildSearchBody translates a Query into a STAC item-search request for the
// given collection. The window is inclusive on both boundary dates and the
// cloud ceiling is pushed server-side via the query extension.
func buildSearchBody(q Query, collection string) searchBody {
	start, end := model.FieldSample{Date: q.Date}.Window(q.TimeDeltaDays)

	body := searchBody{
		Collections: []string{collection},
		Datetime:    fmt.Sprintf("%s/%s", start.UTC().Format("2006-01-02T15:04:05Z"), end.UTC().Format("2006-01-02T15:04:05Z")),
		Limit:       200,
	}

	if q.AOI != nil {
		body.BBox = []float64{q.AOI.MinLon, q.AOI.MinLat, q.AOI.MaxLon, q.AOI.MaxLat}
	} else {
		body.Intersects = map[string]any{
			"type":        "Point",
			"coordinates": []float64{q.Lon, q.Lat},
		}
	}

	if q.MaxCloudCover > 0 {
		body.Query = map[string]any{
			"eo:cloud_cover": map[string]any{"lte": q.MaxCloudCover},
		}
	}

	return body
}
