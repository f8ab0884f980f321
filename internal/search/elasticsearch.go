package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/drafts/config"
	"example.com/backstage/services/drafts/internal/draft"
	"example.com/backstage/services/drafts/internal/reconcile"
)

// Filter keys understood by the material catalog
const (
	FilterQuery     = "q"
	FilterProgram   = "program_id"
	FilterActivity  = "activity_id"
	FilterParent    = "parent_id"
	FilterCategory  = "category"
	FilterBatchOnly = "batch_managed"
	FilterColdChain = "temperature_sensitive"
)

var termFilters = []string{FilterProgram, FilterActivity, FilterParent, FilterCategory, FilterBatchOnly, FilterColdChain}

// Material is one entry of the remote material catalog
type Material struct {
	ID                   int64   `json:"id"`
	Code                 string  `json:"code"`
	Name                 string  `json:"name"`
	Category             string  `json:"category"`
	ParentID             int64   `json:"parent_id"`
	ProgramID            int64   `json:"program_id"`
	ActivityID           int64   `json:"activity_id"`
	Available            float64 `json:"available"`
	BatchManaged         bool    `json:"batch_managed"`
	TemperatureSensitive bool    `json:"temperature_sensitive"`
	Min                  float64 `json:"min"`
	Max                  float64 `json:"max"`
	Recommended          float64 `json:"recommended"`
}

// MaterialID is the id function used to deduplicate and overlay materials
func MaterialID(m Material) string {
	return strconv.FormatInt(m.ID, 10)
}

// CatalogClient reads materials and hierarchy definitions from Elasticsearch
type CatalogClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewCatalogClient creates a new Elasticsearch client
func NewCatalogClient(cfg config.ElasticConfig) (*CatalogClient, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &CatalogClient{
		client: client,
		config: cfg,
	}, nil
}

// Fetch reads one page of materials. It satisfies reconcile.Fetcher.
func (c *CatalogClient) Fetch(ctx context.Context, q reconcile.Query) (reconcile.Result[Material], error) {
	body, err := json.Marshal(materialQuery(q))
	if err != nil {
		return reconcile.Result[Material]{}, errors.Wrap(err, "failed to marshal search query")
	}

	res, err := c.search(ctx, c.config.MaterialIndex, body)
	if err != nil {
		return reconcile.Result[Material]{}, err
	}
	defer res.Body.Close()

	log.Debug().Int("page", q.Page).Str("filters", q.Filters.Fingerprint()).Msg("material page fetched")
	return decodeMaterialPage(res.Body, q.PageSize)
}

// Hierarchies returns the parent/child material definitions of a program
func (c *CatalogClient) Hierarchies(ctx context.Context, programID int64) ([]draft.HierarchyDef, error) {
	query := map[string]interface{}{
		"size": 1000,
		"query": map[string]interface{}{
			"term": map[string]interface{}{"program_id": programID},
		},
		"sort": []interface{}{
			map[string]interface{}{"parent.id": "asc"},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal hierarchy query")
	}

	res, err := c.search(ctx, c.config.HierarchyIndex, body)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	defs, _, err := decodeHits[draft.HierarchyDef](res.Body)
	return defs, err
}

// Capacity returns the cold-chain capacity reported for an activity. An
// activity without a capacity document yields an empty Capacity.
func (c *CatalogClient) Capacity(ctx context.Context, programID, activityID int64) (draft.Capacity, error) {
	body, err := json.Marshal(capacityQuery(programID, activityID))
	if err != nil {
		return draft.Capacity{}, errors.Wrap(err, "failed to marshal capacity query")
	}

	res, err := c.search(ctx, c.config.CapacityIndex, body)
	if err != nil {
		return draft.Capacity{}, err
	}
	defer res.Body.Close()

	docs, _, err := decodeHits[draft.Capacity](res.Body)
	if err != nil || len(docs) == 0 {
		return draft.Capacity{}, err
	}
	return docs[0], nil
}

// Ping checks that the cluster answers
func (c *CatalogClient) Ping(ctx context.Context) error {
	res, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "failed to ping Elasticsearch")
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.Errorf("Elasticsearch ping failed: %s", res.Status())
	}
	return nil
}

func (c *CatalogClient) search(ctx context.Context, index string, body []byte) (*esapi.Response, error) {
	req := esapi.SearchRequest{
		Index: []string{config.FormatIndex(c.config, index)},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}

	if res.IsError() {
		defer res.Body.Close()
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return nil, errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return nil, errors.Errorf("Elasticsearch search error: %v", e)
	}
	return res, nil
}

// materialQuery builds the search body for one page
func materialQuery(q reconcile.Query) map[string]interface{} {
	var filters []interface{}
	for _, key := range termFilters {
		if v, ok := q.Filters[key]; ok && v != "" {
			filters = append(filters, map[string]interface{}{
				"term": map[string]interface{}{key: v},
			})
		}
	}

	boolQuery := map[string]interface{}{"filter": filters}
	if text := q.Filters[FilterQuery]; text != "" {
		boolQuery["must"] = []interface{}{
			map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":  text,
					"fields": []string{"name", "code"},
				},
			},
		}
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	return map[string]interface{}{
		"from":             (page - 1) * q.PageSize,
		"size":             q.PageSize,
		"track_total_hits": true,
		"query":            map[string]interface{}{"bool": boolQuery},
		"sort": []interface{}{
			map[string]interface{}{"name.keyword": "asc"},
			map[string]interface{}{"id": "asc"},
		},
	}
}

func capacityQuery(programID, activityID int64) map[string]interface{} {
	return map[string]interface{}{
		"size": 1,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{FilterProgram: programID}},
					map[string]interface{}{"term": map[string]interface{}{FilterActivity: activityID}},
				},
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"updated_at": map[string]interface{}{"order": "desc", "unmapped_type": "date"}},
		},
	}
}

type searchResponse[T any] struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source T `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func decodeHits[T any](r io.Reader) ([]T, int, error) {
	var resp searchResponse[T]
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, 0, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	docs := make([]T, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		docs = append(docs, hit.Source)
	}
	return docs, resp.Hits.Total.Value, nil
}

func decodeMaterialPage(r io.Reader, pageSize int) (reconcile.Result[Material], error) {
	items, total, err := decodeHits[Material](r)
	if err != nil {
		return reconcile.Result[Material]{}, err
	}

	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return reconcile.Result[Material]{Items: items, TotalPage: pages, TotalItem: total}, nil
}
