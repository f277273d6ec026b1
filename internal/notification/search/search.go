// Package search mirrors notifications into Elasticsearch for full-text
// history queries.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"billing-workers/internal/common/logger"
	"billing-workers/internal/notification"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

type Indexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	return &Indexer{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "search", "index": index}),
	}
}

// NotificationChanged upserts n's document. It implements dispatch.Listener.
func (i *Indexer) NotificationChanged(ctx context.Context, n *notification.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: n.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("index notification: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index notification: %s", res.String())
	}
	return nil
}

// Search runs a full-text query over subject and body, narrowed by filter.
func (i *Indexer) Search(ctx context.Context, query string, filter notification.Filter, page notification.Page) (*notification.HistoryPage, error) {
	page = page.Normalize()
	from, size := page.Offset(), page.Limit

	body, _ := json.Marshal(buildQuery(query, filter, from, size))
	req := esapi.SearchRequest{
		Index: []string{i.index},
		Body:  strings.NewReader(string(body)),
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return nil, fmt.Errorf("search notifications: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.String())
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]*notification.Notification, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		n := hit.Source
		items = append(items, &n)
	}
	return &notification.HistoryPage{
		Items:      items,
		Total:      r.Hits.Total.Value,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: (r.Hits.Total.Value + page.Limit - 1) / page.Limit,
	}, nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source notification.Notification `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func buildQuery(query string, filter notification.Filter, from, size int) map[string]interface{} {
	must := []interface{}{}
	if q := strings.TrimSpace(query); q != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q,
				"fields": []string{"subject^2", "body"},
			},
		})
	} else {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	filters := []interface{}{}
	term := func(field, value string) {
		if value != "" {
			filters = append(filters, map[string]interface{}{
				"term": map[string]interface{}{field: value},
			})
		}
	}
	term("recipientId", filter.RecipientID)
	term("status", string(filter.Status))
	term("type", string(filter.Type))

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   must,
				"filter": filters,
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"createdAt": map[string]interface{}{"order": "desc"}},
		},
		"from": from,
		"size": size,
	}
}
