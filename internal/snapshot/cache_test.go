package snapshot

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"turnhub/api/internal/orgdoc"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := Open(filepath.Join(t.TempDir(), "agent", "snapshot.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestUserRoundTrip(t *testing.T) {
	cache := openTestCache(t)

	if _, err := cache.LoadUser(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadUser on empty cache = %v, want ErrNotFound", err)
	}

	user := json.RawMessage(`{"id":"u1","name":"Mara","role":"manager"}`)
	if err := cache.SaveUser(user); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	got, err := cache.LoadUser()
	if err != nil {
		t.Fatalf("LoadUser: %v", err)
	}
	if string(got) != string(user) {
		t.Fatalf("LoadUser = %s, want %s", got, user)
	}
}

func TestDocumentRoundTripNormalizes(t *testing.T) {
	cache := openTestCache(t)

	doc := orgdoc.New("org_1")
	doc.Settings = json.RawMessage(`{"name":"Shine Co"}`)
	doc.SetCollection("shifts", []orgdoc.Entity{orgdoc.Entity(`{"id":"s1"}`)})
	// Simulate a legacy snapshot missing a collection.
	doc.Tutorials = nil

	if err := cache.SaveDocument(doc); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	got, err := cache.LoadDocument()
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if got.ID != "org_1" {
		t.Errorf("id = %q", got.ID)
	}
	if len(got.Shifts) != 1 {
		t.Errorf("shifts = %d entities, want 1", len(got.Shifts))
	}
	if got.Tutorials == nil {
		t.Error("tutorials not backfilled on load")
	}
}

func TestOverwriteKeepsLatestDocument(t *testing.T) {
	cache := openTestCache(t)

	first := orgdoc.New("org_1")
	second := orgdoc.New("org_1")
	second.SetCollection("invoices", []orgdoc.Entity{orgdoc.Entity(`{"id":"inv1"}`)})

	if err := cache.SaveDocument(first); err != nil {
		t.Fatalf("SaveDocument first: %v", err)
	}
	if err := cache.SaveDocument(second); err != nil {
		t.Fatalf("SaveDocument second: %v", err)
	}

	got, err := cache.LoadDocument()
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if len(got.Invoices) != 1 {
		t.Fatalf("invoices = %d entities, want the latest write", len(got.Invoices))
	}
}

func TestClearDeletesSession(t *testing.T) {
	cache := openTestCache(t)

	if err := cache.SaveUser(json.RawMessage(`{"id":"u1"}`)); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if err := cache.SaveDocument(orgdoc.New("org_1")); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	if err := cache.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := cache.LoadUser(); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadUser after Clear = %v, want ErrNotFound", err)
	}
	if _, err := cache.LoadDocument(); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadDocument after Clear = %v, want ErrNotFound", err)
	}
}

func TestCorruptDocumentSurfacesParseError(t *testing.T) {
	cache := openTestCache(t)

	if err := cache.put(keyDocument, []byte(`{"users": [`)); err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}
	if _, err := cache.LoadDocument(); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadDocument on corrupt payload = %v, want parse error", err)
	}
}
