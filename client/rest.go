package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// APIError is the typed failure a REST call raises when the server
// envelope reports success=false, carrying the server-supplied message.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// NotificationPage is the normalized list result. Every list-shaped
// endpoint resolves to this regardless of the wire shape.
type NotificationPage struct {
	Data       []Notification `json:"data"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

// ListFilters narrow a notification list request.
type ListFilters struct {
	Type     string
	Priority string
	Status   string
	IsRead   *bool
	Page     int
	Limit    int
}

// RESTClient is the typed wrapper over the notification HTTP endpoints.
// Every call threads its context into the request so callers can cancel.
type RESTClient struct {
	baseURL string
	token   func() string
	http    *http.Client
}

// NewRESTClient builds a client rooted at baseURL (e.g.
// "https://api.school.example/api/v1"). tokenFn supplies the bearer token
// per request so rotation needs no new client.
func NewRESTClient(baseURL string, tokenFn func() string, httpClient *http.Client) (*RESTClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if tokenFn == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RESTClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   tokenFn,
		http:    httpClient,
	}, nil
}

// List fetches a filtered notification page.
func (c *RESTClient) List(ctx context.Context, filters ListFilters) (*NotificationPage, error) {
	query := url.Values{}
	if filters.Type != "" {
		query.Set("type", filters.Type)
	}
	if filters.Priority != "" {
		query.Set("priority", filters.Priority)
	}
	if filters.Status != "" {
		query.Set("status", filters.Status)
	}
	if filters.IsRead != nil {
		query.Set("isRead", strconv.FormatBool(*filters.IsRead))
	}
	if filters.Page > 0 {
		query.Set("page", strconv.Itoa(filters.Page))
	}
	if filters.Limit > 0 {
		query.Set("limit", strconv.Itoa(filters.Limit))
	}

	data, err := c.do(ctx, http.MethodGet, "/notifications", query, nil)
	if err != nil {
		return nil, err
	}
	return normalizeListPayload(data)
}

// Recent fetches the most-recent-first feed used for initial and panel loads.
func (c *RESTClient) Recent(ctx context.Context, limit, offset int) (*NotificationPage, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	data, err := c.do(ctx, http.MethodGet, "/notifications/realtime", query, nil)
	if err != nil {
		return nil, err
	}
	return normalizeListPayload(data)
}

// UnreadCount fetches the authoritative unread badge count.
func (c *RESTClient) UnreadCount(ctx context.Context) (int64, error) {
	data, err := c.do(ctx, http.MethodGet, "/notifications/unread/count", nil, nil)
	if err != nil {
		return 0, err
	}
	var payload struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, fmt.Errorf("decode count payload: %w", err)
	}
	return payload.Count, nil
}

// MarkRead persists a single read flip.
func (c *RESTClient) MarkRead(ctx context.Context, notificationID string) error {
	_, err := c.do(ctx, http.MethodPut, "/notifications/"+notificationID+"/read", nil, nil)
	return err
}

// MarkManyRead persists a bulk read flip. An empty id list marks all.
func (c *RESTClient) MarkManyRead(ctx context.Context, notificationIDs []string) error {
	if notificationIDs == nil {
		notificationIDs = []string{}
	}
	body := map[string][]string{"notificationIds": notificationIDs}
	_, err := c.do(ctx, http.MethodPost, "/notifications/mark-read", nil, body)
	return err
}

// Delete removes one notification.
func (c *RESTClient) Delete(ctx context.Context, notificationID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/notifications/"+notificationID, nil, nil)
	return err
}

func (c *RESTClient) do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var envelope struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}

	if !envelope.Success || resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: envelope.Message}
		if envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			if apiErr.Message == "" {
				apiErr.Message = envelope.Error.Message
			}
		}
		return nil, apiErr
	}
	return envelope.Data, nil
}

// normalizeListPayload folds the three list shapes the server family has
// produced over time (paginated envelope, bare array, empty) into one.
func normalizeListPayload(data json.RawMessage) (*NotificationPage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &NotificationPage{Data: []Notification{}}, nil
	}

	if trimmed[0] == '[' {
		var items []Notification
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode notification array: %w", err)
		}
		return &NotificationPage{
			Data:       items,
			Total:      int64(len(items)),
			Page:       1,
			Limit:      len(items),
			TotalPages: 1,
		}, nil
	}

	var page NotificationPage
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("decode notification page: %w", err)
	}
	if page.Data == nil {
		page.Data = []Notification{}
	}
	return &page, nil
}
