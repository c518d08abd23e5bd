package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"feedrelay/internal/models"
)

// Client talks to the api server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var (
	_ Backend = (*Client)(nil)
	_ Views   = (*Client)(nil)
)

// NewClient creates a client for the server rooted at baseURL (e.g. http://localhost:8080)
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v1",
		httpClient: &http.Client{Timeout: timeout},
	}
}

type itemsResponse struct {
	Items []models.Item `json:"items"`
	Count int           `json:"count"`
}

type stateRequest struct {
	State models.ItemState `json:"state"`
}

type bulkStateRequest struct {
	IDs   []int64          `json:"ids"`
	State models.ItemState `json:"state"`
}

type preferenceResponse struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

type preferenceRequest struct {
	Value string `json:"value"`
}

type viewsResponse struct {
	Views []models.CustomView `json:"views"`
}

type createdResponse struct {
	ID int64 `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) GetItems(ctx context.Context, query models.ItemQuery) ([]models.Item, error) {
	params := url.Values{}
	if query.State != "" {
		params.Set("state", query.State)
	}
	if query.Group != "" {
		params.Set("group", query.Group)
	}
	if len(query.SourceIDs) > 0 {
		ids := make([]string, len(query.SourceIDs))
		for i, id := range query.SourceIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		params.Set("source_ids", strings.Join(ids, ","))
	}
	if len(query.GroupNames) > 0 {
		params.Set("group_names", strings.Join(query.GroupNames, ","))
	}

	path := "/items"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var resp itemsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	var item models.Item
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/items/%d", id), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) UpdateItemState(ctx context.Context, id int64, state models.ItemState) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/items/%d/state", id), stateRequest{State: state}, nil)
}

func (c *Client) BulkUpdateItemState(ctx context.Context, ids []int64, state models.ItemState) error {
	return c.do(ctx, http.MethodPost, "/items/state", bulkStateRequest{IDs: ids, State: state}, nil)
}

func (c *Client) TriggerExtraction(ctx context.Context, itemID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/items/%d/extract", itemID), nil, nil)
}

func (c *Client) GetUserPreference(ctx context.Context, key string) (string, bool, error) {
	var resp preferenceResponse
	if err := c.do(ctx, http.MethodGet, "/preferences/"+url.PathEscape(key), nil, &resp); err != nil {
		return "", false, err
	}
	if resp.Value == nil {
		return "", false, nil
	}
	return *resp.Value, true, nil
}

func (c *Client) SetUserPreference(ctx context.Context, key, value string) error {
	return c.do(ctx, http.MethodPut, "/preferences/"+url.PathEscape(key), preferenceRequest{Value: value}, nil)
}

func (c *Client) ListViews(ctx context.Context) ([]models.CustomView, error) {
	var resp viewsResponse
	if err := c.do(ctx, http.MethodGet, "/views", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Views, nil
}

func (c *Client) GetView(ctx context.Context, id int64) (*models.CustomView, error) {
	var view models.CustomView
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/views/%d", id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) CreateView(ctx context.Context, in models.CustomViewInput) (int64, error) {
	var resp createdResponse
	if err := c.do(ctx, http.MethodPost, "/views", in, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

func (c *Client) UpdateView(ctx context.Context, id int64, in models.CustomViewInput) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/views/%d", id), in, nil)
}

func (c *Client) DeleteView(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/views/%d", id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError turns an error body into an opaque error; 404 maps to ErrNotFound
func decodeError(resp *http.Response) error {
	var payload errorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(data))
	}
	if payload.Error == "" {
		payload.Error = resp.Status
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, payload.Error)
	}
	return errors.New(payload.Error)
}
