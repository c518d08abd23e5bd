package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"feedrelay/internal/backend"
	"feedrelay/internal/config"
	"feedrelay/internal/models"
	"feedrelay/internal/poller"
	"feedrelay/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type stubExtractor struct{}

func (stubExtractor) Extract(ctx context.Context, rawURL string) (string, error) {
	return "<p>extracted</p>", nil
}

func newTestServer(t *testing.T) (*Server, *storage.SQLiteStorage, []int64) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	devID, err := store.UpsertSource(ctx, models.FeedSource{Name: "golang", URL: "https://go.dev/blog/feed.atom", Groups: []string{"dev"}})
	if err != nil {
		t.Fatalf("Failed to create source: %v", err)
	}
	newsID, err := store.UpsertSource(ctx, models.FeedSource{Name: "npr", URL: "https://feeds.npr.org/1001/rss.xml", Groups: []string{"news"}})
	if err != nil {
		t.Fatalf("Failed to create source: %v", err)
	}

	now := time.Now().Unix()
	store.UpsertItems(ctx, devID, []models.Item{
		{ExternalID: "go-1", Title: "Go 1.24", URL: "https://go.dev/blog/go1.24", CreatedAt: now - 30},
		{ExternalID: "go-2", Title: "Range funcs", URL: "https://go.dev/blog/range", CreatedAt: now - 20},
	})
	store.UpsertItems(ctx, newsID, []models.Item{
		{ExternalID: "npr-1", Title: "Headline", URL: "https://npr.org/1", CreatedAt: now - 10},
	})

	items, err := store.GetItems(ctx, models.ItemQuery{})
	if err != nil || len(items) != 3 {
		t.Fatalf("Expected 3 seeded items, got %d (%v)", len(items), err)
	}
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}

	cfg := &config.Config{
		Port:     8080,
		Security: config.SecurityConfig{MaxRequestSize: 1 << 20},
	}
	p := poller.New(store, stubExtractor{}, []models.FeedSource{{Name: "golang", URL: "http://127.0.0.1:1/feed"}}, poller.Options{})

	return NewServer(store, p, cfg), store, ids
}

func doRequest(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, _ := http.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	return w
}

func TestServer_New(t *testing.T) {
	server, _, _ := newTestServer(t)

	if server == nil {
		t.Fatal("Expected server to be created, got nil")
	}
	if server.router == nil {
		t.Error("Expected router to be initialized")
	}
}

func TestServer_HealthCheck(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := doRequest(t, server, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	if response["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", response["status"])
	}
	if response["poller_active"] != false {
		t.Errorf("Expected inactive poller, got %v", response["poller_active"])
	}
}

func TestServer_GetItems(t *testing.T) {
	server, _, _ := newTestServer(t)

	tests := []struct {
		name     string
		path     string
		expected int
	}{
		{"all items", "/api/v1/items", 3},
		{"by group", "/api/v1/items?group=dev", 2},
		{"group names win over group", "/api/v1/items?group=dev&group_names=news", 1},
		{"by state", "/api/v1/items?state=unread", 3},
		{"no matches", "/api/v1/items?state=archived", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, server, "GET", tt.path, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}

			var response struct {
				Items []models.Item `json:"items"`
				Count int           `json:"count"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if response.Count != tt.expected || len(response.Items) != tt.expected {
				t.Errorf("Expected %d items, got %d", tt.expected, response.Count)
			}
		})
	}
}

func TestServer_GetItemsNewestFirst(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := doRequest(t, server, "GET", "/api/v1/items", nil)
	var response struct {
		Items []models.Item `json:"items"`
	}
	json.Unmarshal(w.Body.Bytes(), &response)

	if len(response.Items) != 3 || response.Items[0].ExternalID != "npr-1" {
		t.Errorf("Expected newest item first, got %+v", response.Items)
	}
	if response.Items[0].SourceName != "npr" || response.Items[0].SourceGroup != "news" {
		t.Errorf("Expected source metadata on items, got %+v", response.Items[0])
	}
}

func TestServer_GetItemsInvalidFilter(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := doRequest(t, server, "GET", "/api/v1/items?state=starred", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestServer_GetItem(t *testing.T) {
	server, _, ids := newTestServer(t)

	w := doRequest(t, server, "GET", "/api/v1/items/"+itoa(ids[0]), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var item models.Item
	json.Unmarshal(w.Body.Bytes(), &item)
	if item.ID != ids[0] {
		t.Errorf("Expected item %d, got %d", ids[0], item.ID)
	}

	w = doRequest(t, server, "GET", "/api/v1/items/999999", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_UpdateItemState(t *testing.T) {
	server, store, ids := newTestServer(t)

	w := doRequest(t, server, "PUT", "/api/v1/items/"+itoa(ids[0])+"/state", map[string]string{"state": "read"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	item, _ := store.GetItem(context.Background(), ids[0])
	if item.State != models.StateRead {
		t.Errorf("Expected read state, got %s", item.State)
	}

	w = doRequest(t, server, "PUT", "/api/v1/items/"+itoa(ids[0])+"/state", map[string]string{"state": "starred"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid state, got %d", w.Code)
	}

	w = doRequest(t, server, "PUT", "/api/v1/items/999999/state", map[string]string{"state": "read"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown item, got %d", w.Code)
	}
}

func TestServer_BulkUpdateItemState(t *testing.T) {
	server, store, ids := newTestServer(t)

	w := doRequest(t, server, "POST", "/api/v1/items/state", map[string]interface{}{
		"ids":   []int64{ids[0], ids[1], 999999},
		"state": "archived",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	archived, _ := store.GetItems(context.Background(), models.ItemQuery{State: "archived"})
	if len(archived) != 2 {
		t.Errorf("Expected 2 archived items, got %d", len(archived))
	}

	w = doRequest(t, server, "POST", "/api/v1/items/state", map[string]interface{}{"ids": []int64{ids[0]}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without state, got %d", w.Code)
	}
}

func TestServer_TriggerExtraction(t *testing.T) {
	server, store, ids := newTestServer(t)

	w := doRequest(t, server, "POST", "/api/v1/items/"+itoa(ids[0])+"/extract", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", w.Code)
	}
	item, _ := store.GetItem(context.Background(), ids[0])
	if item.ContentStatus != models.ContentStatusFetching {
		t.Errorf("Expected fetching status, got %s", item.ContentStatus)
	}

	w = doRequest(t, server, "POST", "/api/v1/items/999999/extract", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_Preferences(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := doRequest(t, server, "GET", "/api/v1/preferences/items_per_page", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	if v, present := response["value"]; !present || v != nil {
		t.Errorf("Expected null value for unset key, got %v", response)
	}

	w = doRequest(t, server, "PUT", "/api/v1/preferences/items_per_page", map[string]string{"value": "50"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	w = doRequest(t, server, "GET", "/api/v1/preferences/items_per_page", nil)
	json.Unmarshal(w.Body.Bytes(), &response)
	if response["value"] != "50" {
		t.Errorf("Expected saved value, got %v", response["value"])
	}

	w = doRequest(t, server, "PUT", "/api/v1/preferences/items_per_page", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without value, got %d", w.Code)
	}
}

func TestServer_SourcesAndStats(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := doRequest(t, server, "GET", "/api/v1/sources", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var sources struct {
		Count int `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &sources)
	if sources.Count != 2 {
		t.Errorf("Expected 2 sources, got %d", sources.Count)
	}

	w = doRequest(t, server, "GET", "/api/v1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var stats map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &stats)
	if stats["total_items"] != float64(3) {
		t.Errorf("Expected 3 total items, got %v", stats["total_items"])
	}

	w = doRequest(t, server, "POST", "/api/v1/storage/optimize", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestServer_Poller(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := doRequest(t, server, "GET", "/api/v1/poller/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var status map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &status)
	if status["is_polling"] != false {
		t.Errorf("Expected poller to be idle, got %v", status["is_polling"])
	}

	w = doRequest(t, server, "POST", "/api/v1/poller/force-poll/unknown", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown source, got %d", w.Code)
	}

	w = doRequest(t, server, "GET", "/api/v1/poller/last-polled", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

// The HTTP client and the server agree on the wire format
func TestServer_BackendClientRoundTrip(t *testing.T) {
	server, _, ids := newTestServer(t)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	client := backend.NewClient(ts.URL, 5*time.Second)
	ctx := context.Background()

	items, err := client.GetItems(ctx, models.ItemQuery{GroupNames: []string{"dev"}})
	if err != nil {
		t.Fatalf("GetItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("Expected 2 dev items, got %d", len(items))
	}

	if err := client.UpdateItemState(ctx, ids[0], models.StateRead); err != nil {
		t.Fatalf("UpdateItemState failed: %v", err)
	}
	item, err := client.GetItem(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if item.State != models.StateRead {
		t.Errorf("Expected read state, got %s", item.State)
	}

	if err := client.BulkUpdateItemState(ctx, ids[1:], models.StateDeleted); err != nil {
		t.Fatalf("BulkUpdateItemState failed: %v", err)
	}
	deleted, _ := client.GetItems(ctx, models.ItemQuery{State: string(models.StateDeleted)})
	if len(deleted) != 2 {
		t.Errorf("Expected 2 deleted items, got %d", len(deleted))
	}

	if _, err := client.GetItem(ctx, 999999); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := client.TriggerExtraction(ctx, ids[0]); err != nil {
		t.Errorf("TriggerExtraction failed: %v", err)
	}

	if _, found, err := client.GetUserPreference(ctx, models.PrefArticleViewMode); err != nil || found {
		t.Errorf("Expected unset preference, got found=%v err=%v", found, err)
	}
	if err := client.SetUserPreference(ctx, models.PrefArticleViewMode, "feed_only"); err != nil {
		t.Fatalf("SetUserPreference failed: %v", err)
	}
	value, found, err := client.GetUserPreference(ctx, models.PrefArticleViewMode)
	if err != nil || !found || value != "feed_only" {
		t.Errorf("Expected saved preference, got %q found=%v err=%v", value, found, err)
	}

	if err := client.UpdateItemState(ctx, ids[0], models.ItemState("starred")); err == nil {
		t.Error("Expected server to reject an invalid state")
	}

	viewID, err := client.CreateView(ctx, models.CustomViewInput{Name: "Dev", GroupNames: []string{"dev"}})
	if err != nil {
		t.Fatalf("CreateView failed: %v", err)
	}
	if err := client.UpdateView(ctx, viewID, models.CustomViewInput{Name: "Dev only", GroupNames: []string{"dev"}}); err != nil {
		t.Fatalf("UpdateView failed: %v", err)
	}
	view, err := client.GetView(ctx, viewID)
	if err != nil || view.Name != "Dev only" || len(view.GroupNames) != 1 {
		t.Errorf("Expected renamed view, got %+v (%v)", view, err)
	}
	views, err := client.ListViews(ctx)
	if err != nil || len(views) != 1 {
		t.Errorf("Expected 1 view, got %d (%v)", len(views), err)
	}
	if err := client.DeleteView(ctx, viewID); err != nil {
		t.Fatalf("DeleteView failed: %v", err)
	}
	if _, err := client.GetView(ctx, viewID); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestServer_Views(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := doRequest(t, server, "POST", "/api/v1/views", map[string]interface{}{
		"name":        "Go",
		"source_ids":  []int64{1},
		"group_names": []string{"dev"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID int64 `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &created)
	if created.ID == 0 {
		t.Fatal("Expected a view id in the response")
	}
	path := "/api/v1/views/" + itoa(created.ID)

	w = doRequest(t, server, "GET", path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var view models.CustomView
	json.Unmarshal(w.Body.Bytes(), &view)
	if view.Name != "Go" || len(view.SourceIDs) != 1 || view.SourceIDs[0] != 1 {
		t.Errorf("Expected stored filters, got %+v", view)
	}

	w = doRequest(t, server, "GET", "/api/v1/views", nil)
	var list struct {
		Views []models.CustomView `json:"views"`
		Count int                 `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &list)
	if list.Count != 1 || len(list.Views) != 1 {
		t.Errorf("Expected 1 view, got %+v", list)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"empty name", "POST", "/api/v1/views", map[string]string{"name": "  "}, http.StatusBadRequest},
		{"update empty name", "PUT", path, map[string]string{"name": ""}, http.StatusBadRequest},
		{"update unknown", "PUT", "/api/v1/views/999999", map[string]string{"name": "x"}, http.StatusNotFound},
		{"get unknown", "GET", "/api/v1/views/999999", nil, http.StatusNotFound},
		{"bad id", "GET", "/api/v1/views/abc", nil, http.StatusBadRequest},
		{"delete", "DELETE", path, nil, http.StatusNoContent},
		{"delete again", "DELETE", path, nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, server, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
