package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"billing-workers/internal/common/logger"
	"billing-workers/internal/notification"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndexer(t *testing.T, handler http.HandlerFunc) *Indexer {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return NewIndexer(client, "notifications", logger.NewTestLogger(t))
}

func TestIndexer_NotificationChanged(t *testing.T) {
	var path string
	var doc map[string]interface{}
	indexer := newTestIndexer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &doc)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	err := indexer.NotificationChanged(context.Background(), &notification.Notification{
		ID:     "n-1",
		Status: notification.StatusSent,
		Body:   "rent due",
	})
	require.NoError(t, err)
	assert.Equal(t, "/notifications/_doc/n-1", path)
	assert.Equal(t, "sent", doc["status"])
	assert.Equal(t, "rent due", doc["body"])
}

func TestIndexer_NotificationChanged_Error(t *testing.T) {
	indexer := newTestIndexer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	})

	err := indexer.NotificationChanged(context.Background(), &notification.Notification{ID: "n-1"})
	assert.Error(t, err)
}

func TestIndexer_Search(t *testing.T) {
	var query map[string]interface{}
	indexer := newTestIndexer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/notifications/_search"))
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &query))
		_, _ = w.Write([]byte(`{
			"hits": {
				"total": {"value": 12},
				"hits": [
					{"_source": {"id": "n-1", "status": "sent", "body": "rent due", "recipientId": "tenant-1"}},
					{"_source": {"id": "n-2", "status": "failed", "body": "rent overdue", "recipientId": "tenant-1"}}
				]
			}
		}`))
	})

	page, err := indexer.Search(context.Background(), "rent", notification.Filter{RecipientID: "tenant-1"}, notification.Page{Page: 2, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 12, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, notification.StatusFailed, page.Items[1].Status)

	assert.EqualValues(t, 5, query["from"])
	assert.EqualValues(t, 5, query["size"])
	boolQuery := query["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.Len(t, boolQuery["filter"], 1)
	must := boolQuery["must"].([]interface{})
	assert.Contains(t, must[0], "multi_match")
}

func TestBuildQuery_MatchAll(t *testing.T) {
	q := buildQuery("  ", notification.Filter{Status: notification.StatusSent, Type: notification.TypeTest}, 0, 20)
	boolQuery := q["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.Len(t, boolQuery["filter"], 2)
	assert.Contains(t, boolQuery["must"].([]interface{})[0], "match_all")
}
