package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/onebox/pkg/types"
)

const elasticIndex = "emails"

// ElasticStore implements Store against an Elasticsearch-compatible API
// (works with Zinc and friends) using plain HTTP.
type ElasticStore struct {
	endpoint string
	username string
	password string
	client   *http.Client
	logger   *logrus.Logger
}

// NewElasticStore creates a new Elasticsearch-backed store
func NewElasticStore(endpoint, username, password string, logger *logrus.Logger) *ElasticStore {
	return &ElasticStore{
		endpoint: endpoint,
		username: username,
		password: password,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// elasticMapping declares field types up front so keyword filters and the
// category aggregation behave predictably.
var elasticMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"id":         map[string]interface{}{"type": "keyword"},
			"account_id": map[string]interface{}{"type": "keyword"},
			"folder":     map[string]interface{}{"type": "keyword"},
			"category":   map[string]interface{}{"type": "keyword"},
			"headers": map[string]interface{}{
				"properties": map[string]interface{}{
					"from":       map[string]interface{}{"type": "text"},
					"to":         map[string]interface{}{"type": "text"},
					"subject":    map[string]interface{}{"type": "text"},
					"message_id": map[string]interface{}{"type": "keyword"},
					"date":       map[string]interface{}{"type": "date"},
				},
			},
			"body": map[string]interface{}{
				"properties": map[string]interface{}{
					"text": map[string]interface{}{"type": "text"},
					"html": map[string]interface{}{"type": "text"},
				},
			},
			"is_read":       map[string]interface{}{"type": "boolean"},
			"is_flagged":    map[string]interface{}{"type": "boolean"},
			"received_date": map[string]interface{}{"type": "date"},
			"synced_at":     map[string]interface{}{"type": "date"},
		},
	},
}

// EnsureIndex creates the emails index with its mapping if it does not exist.
func (es *ElasticStore) EnsureIndex(ctx context.Context) error {
	resp, err := es.do(ctx, http.MethodHead, "/"+elasticIndex, nil)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	resp, err = es.do(ctx, http.MethodPut, "/"+elasticIndex, elasticMapping)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("failed to create index: %s", readError(resp))
	}
	es.logger.WithField("index", elasticIndex).Info("Search index created")
	return nil
}

// IndexEmail upserts the email document, refreshing immediately so reads see
// it. The partial update omits category: an existing row keeps its assigned
// label across re-ingest, and UpdateCategory stays the only writer of that
// field after initial insert.
func (es *ElasticStore) IndexEmail(ctx context.Context, email *types.Email) error {
	full, err := emailDoc(email)
	if err != nil {
		return fmt.Errorf("failed to index email: %w", err)
	}
	partial := make(map[string]interface{}, len(full))
	for field, value := range full {
		if field != "category" {
			partial[field] = value
		}
	}

	path := fmt.Sprintf("/%s/_update/%s?refresh=true", elasticIndex, url.PathEscape(email.ID))
	body := map[string]interface{}{
		"doc":    partial,
		"upsert": full,
	}
	resp, err := es.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return fmt.Errorf("failed to index email: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("failed to index email: %s", readError(resp))
	}
	return nil
}

// emailDoc flattens the email into its JSON document form.
func emailDoc(email *types.Email) (map[string]interface{}, error) {
	data, err := json.Marshal(email)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateCategory writes the label as a partial document update.
func (es *ElasticStore) UpdateCategory(ctx context.Context, id string, category types.Category) error {
	path := fmt.Sprintf("/%s/_update/%s?refresh=true", elasticIndex, url.PathEscape(id))
	body := map[string]interface{}{
		"doc": map[string]interface{}{"category": category},
	}
	resp, err := es.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("failed to update category: %s", readError(resp))
	}
	return nil
}

// GetByID fetches one email document.
func (es *ElasticStore) GetByID(ctx context.Context, id string) (*types.Email, error) {
	path := fmt.Sprintf("/%s/_doc/%s", elasticIndex, url.PathEscape(id))
	resp, err := es.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to get email: %s", readError(resp))
	}

	var doc struct {
		Source *types.Email `json:"_source"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode email: %w", err)
	}
	if doc.Source == nil {
		return nil, ErrNotFound
	}
	return doc.Source, nil
}

// Search runs a bool query built from the filters, newest first.
func (es *ElasticStore) Search(ctx context.Context, filters types.SearchFilters) (*types.SearchResult, error) {
	normalizePage(&filters)

	var must []interface{}

	if filters.Query != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query": filters.Query,
				"fields": []string{
					"headers.subject^2",
					"headers.from",
					"headers.to",
					"body.text",
				},
			},
		})
	}
	for field, value := range map[string]string{
		"account_id": filters.AccountID,
		"folder":     filters.Folder,
		"category":   filters.Category,
	} {
		if value != "" {
			must = append(must, map[string]interface{}{
				"term": map[string]interface{}{field: value},
			})
		}
	}
	if filters.From != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"headers.from": filters.From},
		})
	}
	if filters.To != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"headers.to": filters.To},
		})
	}
	if filters.StartDate != nil || filters.EndDate != nil {
		dateRange := map[string]interface{}{}
		if filters.StartDate != nil {
			dateRange["gte"] = filters.StartDate.Format(time.RFC3339)
		}
		if filters.EndDate != nil {
			dateRange["lte"] = filters.EndDate.Format(time.RFC3339)
		}
		must = append(must, map[string]interface{}{
			"range": map[string]interface{}{"received_date": dateRange},
		})
	}
	if must == nil {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
		"sort": []interface{}{
			map[string]interface{}{"received_date": map[string]interface{}{"order": "desc"}},
		},
		"from": (filters.Page - 1) * filters.Size,
		"size": filters.Size,
	}

	resp, err := es.do(ctx, http.MethodPost, "/"+elasticIndex+"/_search", query)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to search emails: %s", readError(resp))
	}

	var result struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source *types.Email `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	out := &types.SearchResult{
		Total:  result.Hits.Total.Value,
		Emails: make([]*types.Email, 0, len(result.Hits.Hits)),
	}
	for _, hit := range result.Hits.Hits {
		if hit.Source != nil {
			out.Emails = append(out.Emails, hit.Source)
		}
	}
	return out, nil
}

// CountsByCategory aggregates document counts per label, zero-filling every
// label so callers always see the full set.
func (es *ElasticStore) CountsByCategory(ctx context.Context) (map[types.Category]int, error) {
	query := map[string]interface{}{
		"size": 0,
		"aggs": map[string]interface{}{
			"categories": map[string]interface{}{
				"terms": map[string]interface{}{
					"field": "category",
					"size":  len(types.Categories()),
				},
			},
		},
	}

	resp, err := es.do(ctx, http.MethodPost, "/"+elasticIndex+"/_search", query)
	if err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to count categories: %s", readError(resp))
	}

	var result struct {
		Aggregations struct {
			Categories struct {
				Buckets []struct {
					Key      string `json:"key"`
					DocCount int    `json:"doc_count"`
				} `json:"buckets"`
			} `json:"categories"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode aggregation: %w", err)
	}

	counts := zeroFilled()
	for _, bucket := range result.Aggregations.Categories.Buckets {
		if types.ValidCategory(bucket.Key) {
			counts[types.Category(bucket.Key)] = bucket.DocCount
		}
	}
	return counts, nil
}

// HealthCheck verifies the search endpoint responds.
func (es *ElasticStore) HealthCheck(ctx context.Context) error {
	resp, err := es.do(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("search backend unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// do issues one JSON request against the backend.
func (es *ElasticStore) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, es.endpoint+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if es.username != "" {
		req.SetBasicAuth(es.username, es.password)
	}

	return es.client.Do(req)
}

func readError(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Sprintf("status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
}
