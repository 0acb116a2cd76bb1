package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestRESTClient(t *testing.T, handler http.HandlerFunc) (*RESTClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := NewRESTClient(server.URL+"/api/v1", func() string { return "test-token" }, server.Client())
	if err != nil {
		t.Fatalf("new rest client: %v", err)
	}
	return c, server
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": success,
		"message": message,
		"data":    data,
	})
}

func TestRESTClientSendsBearerAndQuery(t *testing.T) {
	var gotAuth, gotQuery string
	c, _ := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		writeEnvelope(w, http.StatusOK, true, "ok", map[string]any{"data": []any{}})
	})

	isRead := false
	_, err := c.List(context.Background(), ListFilters{Type: "PAYMENT", IsRead: &isRead, Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	for _, fragment := range []string{"type=PAYMENT", "isRead=false", "page=2", "limit=10"} {
		if !containsQuery(gotQuery, fragment) {
			t.Fatalf("query %q missing %q", gotQuery, fragment)
		}
	}
}

func containsQuery(query, fragment string) bool {
	for _, part := range splitQuery(query) {
		if part == fragment {
			return true
		}
	}
	return false
}

func splitQuery(query string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(query); i++ {
		if i == len(query) || query[i] == '&' {
			parts = append(parts, query[start:i])
			start = i + 1
		}
	}
	return parts
}

func TestRESTClientNormalizesPaginatedEnvelope(t *testing.T) {
	c, _ := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "ok", map[string]any{
			"data":       []map[string]any{{"id": "n1"}, {"id": "n2"}},
			"total":      12,
			"page":       2,
			"limit":      2,
			"totalPages": 6,
		})
	})

	page, err := c.Recent(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(page.Data) != 2 || page.Total != 12 || page.Page != 2 || page.TotalPages != 6 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestRESTClientNormalizesBareArray(t *testing.T) {
	c, _ := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "ok", []map[string]any{{"id": "n1"}, {"id": "n2"}, {"id": "n3"}})
	})

	page, err := c.Recent(context.Background(), 3, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(page.Data) != 3 || page.Total != 3 || page.Page != 1 || page.TotalPages != 1 {
		t.Fatalf("unexpected normalization %+v", page)
	}
}

func TestRESTClientNormalizesEmptyData(t *testing.T) {
	c, _ := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "ok", nil)
	})

	page, err := c.Recent(context.Background(), 5, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if page.Data == nil || len(page.Data) != 0 {
		t.Fatalf("expected empty slice, got %+v", page.Data)
	}
}

func TestRESTClientUnreadCount(t *testing.T) {
	c, _ := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "ok", map[string]int64{"count": 9})
	})

	count, err := c.UnreadCount(context.Background())
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 9 {
		t.Fatalf("expected 9 got %d", count)
	}
}

func TestRESTClientCarriesServerMessageOnFailure(t *testing.T) {
	c, _ := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "notification not found",
			"error":   map[string]string{"code": "NOT_FOUND", "message": "notification not found"},
		})
	})

	err := c.MarkRead(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "notification not found" || apiErr.Code != "NOT_FOUND" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestRESTClientMarkManyReadSendsIDs(t *testing.T) {
	var gotBody map[string][]string
	c, _ := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeEnvelope(w, http.StatusOK, true, "ok", map[string]int64{"updated": 2})
	})

	if err := c.MarkManyRead(context.Background(), []string{"n1", "n2"}); err != nil {
		t.Fatalf("mark many: %v", err)
	}
	ids := gotBody["notificationIds"]
	if len(ids) != 2 || ids[0] != "n1" || ids[1] != "n2" {
		t.Fatalf("unexpected body %v", gotBody)
	}
}

func TestRESTClientHonorsContextCancellation(t *testing.T) {
	started := make(chan struct{})
	c, _ := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.UnreadCount(ctx)
		errCh <- err
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected cancellation error")
		}
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled in chain, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("request did not cancel")
	}
}

func TestRESTClientDeletePath(t *testing.T) {
	var gotPath, gotMethod string
	c, _ := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		writeEnvelope(w, http.StatusOK, true, "ok", map[string]bool{"deleted": true})
	})

	if err := c.Delete(context.Background(), "n9"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/api/v1/notifications/n9" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
}
