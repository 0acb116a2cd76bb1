package idempotency

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) {
	return f.data[key], nil
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, exists := f.data[key]; exists {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "smis:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func TestCheckAndMarkProcessed(t *testing.T) {
	mgr, err := NewManager(newFakeStore(), time.Hour)
	if err != nil {
		t.Fatalf("unexpected manager error: %v", err)
	}
	eventID := uuid.New()

	already, err := mgr.CheckAndMarkProcessed(context.Background(), "notifications", eventID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if already {
		t.Fatal("first check should not report processed")
	}

	already, err = mgr.CheckAndMarkProcessed(context.Background(), "notifications", eventID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !already {
		t.Fatal("second check should report processed")
	}
}

func TestDeleteAllowsReprocessing(t *testing.T) {
	mgr, _ := NewManager(newFakeStore(), time.Hour)
	eventID := uuid.New()

	if _, err := mgr.CheckAndMarkProcessed(context.Background(), "notifications", eventID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mgr.Delete(context.Background(), "notifications", eventID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	already, err := mgr.CheckAndMarkProcessed(context.Background(), "notifications", eventID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if already {
		t.Fatal("delete should clear the processed marker")
	}
}

func TestManagerValidation(t *testing.T) {
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatal("expected error for nil store")
	}
	mgr, _ := NewManager(newFakeStore(), time.Hour)
	if _, err := mgr.CheckAndMarkProcessed(context.Background(), "", uuid.New()); err == nil {
		t.Fatal("expected error for empty consumer")
	}
	if _, err := mgr.CheckAndMarkProcessed(context.Background(), "notifications", uuid.Nil); err == nil {
		t.Fatal("expected error for nil event id")
	}
}
