package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/codevault/codevault/store"
)

// DefaultIndex is the index snippets are written to.
const DefaultIndex = "codevault-snippets"

// DefaultLimit caps the number of search hits.
const DefaultLimit = 50

// ElasticConfig configures an Elastic indexer.
type ElasticConfig struct {
	// Addresses lists the cluster nodes.
	Addresses []string

	// Username and Password enable basic auth.
	Username string
	Password string

	// Index is the index name. Defaults to DefaultIndex.
	Index string

	// Limit caps the number of hits per search. Defaults to DefaultLimit.
	Limit int

	// Transport overrides the HTTP transport. Used by tests.
	Transport http.RoundTripper
}

// Elastic indexes snippets in Elasticsearch.
type Elastic struct {
	client *elasticsearch.Client
	index  string
	limit  int
}

// NewElastic creates an Elasticsearch-backed indexer.
func NewElastic(cfg ElasticConfig) (*Elastic, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("search: create client: %w", err)
	}

	index := cfg.Index
	if index == "" {
		index = DefaultIndex
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Elastic{client: client, index: index, limit: limit}, nil
}

// document is the indexed form of a snippet.
type document struct {
	OwnerID     int64     `json:"owner_id"`
	Title       string    `json:"title"`
	Language    string    `json:"language"`
	Description string    `json:"description"`
	Code        string    `json:"code"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
}

// IndexSnippet adds or replaces a snippet document.
func (e *Elastic) IndexSnippet(ctx context.Context, sn *store.Snippet) error {
	body, err := json.Marshal(document{
		OwnerID:     sn.OwnerID,
		Title:       sn.Title,
		Language:    sn.Language,
		Description: sn.Description,
		Code:        sn.Code,
		Tags:        sn.TagList(),
		CreatedAt:   sn.CreatedAt,
	})
	if err != nil {
		return err
	}

	res, err := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: strconv.FormatInt(sn.ID, 10),
		Body:       bytes.NewReader(body),
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("search: index snippet %d: %w", sn.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("index snippet", res)
	}
	return nil
}

// DeleteSnippet removes a snippet document.
func (e *Elastic) DeleteSnippet(ctx context.Context, id int64) error {
	res, err := esapi.DeleteRequest{
		Index:      e.index,
		DocumentID: strconv.FormatInt(id, 10),
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("search: delete snippet %d: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return responseError("delete snippet", res)
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs a multi_match query restricted to ownerID.
func (e *Elastic) Search(ctx context.Context, ownerID int64, query string) ([]int64, error) {
	body, err := json.Marshal(map[string]any{
		"size": e.limit,
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query":  query,
							"fields": []string{"title^3", "tags^2", "description", "code", "language"},
						},
					},
				},
				"filter": []any{
					map[string]any{"term": map[string]any{"owner_id": ownerID}},
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, responseError("search", res))
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	ids := make([]int64, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func responseError(op string, res *esapi.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	return fmt.Errorf("search: %s: %s: %s", op, res.Status(), bytes.TrimSpace(msg))
}
