//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleConversion() Conversion {
	return Conversion{
		ContentHash: "abc123",
		Target:      TargetJSON,
		Strategy:    "page_by_page_json_direct",
		SpecHash:    SpecHash("ctx", "job", "spec"),
		JSON:        `[{"questions":["q1"]}]`,
		UnitErrors:  `["unit 2: timeout"]`,
		Filename:    "survey.pdf",
		Model:       "gpt-4o",
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "dir", "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestMigrations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.Version(ctx)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("version = %d, want %d", v, len(migrations))
	}

	// Re-running is a no-op.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if v2, _ := s.Version(ctx); v2 != v {
		t.Errorf("version changed to %d", v2)
	}
}

func TestPutAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := sampleConversion()
	id, err := s.Put(ctx, c)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	got, ok, err := s.Lookup(ctx, c.ContentHash, c.Target, c.SpecHash)
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if got.ID != id || got.JSON != c.JSON || got.UnitErrors != c.UnitErrors ||
		got.Strategy != c.Strategy || got.Filename != "survey.pdf" || got.Model != "gpt-4o" {
		t.Errorf("Lookup = %+v", got)
	}
	if got.Markdown != "" {
		t.Errorf("Markdown = %q, want empty", got.Markdown)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestLookupMiss(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Put(ctx, sampleConversion()); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tests := []struct{ hash, target, spec string }{
		{"other", TargetJSON, SpecHash("ctx", "job", "spec")},
		{"abc123", TargetMarkdown, SpecHash("ctx", "job", "spec")},
		{"abc123", TargetJSON, SpecHash("ctx", "job", "different")},
	}
	for _, tt := range tests {
		_, ok, err := s.Lookup(ctx, tt.hash, tt.target, tt.spec)
		if err != nil || ok {
			t.Errorf("Lookup(%v) ok=%v err=%v, want miss", tt, ok, err)
		}
	}
}

func TestPutReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := sampleConversion()
	id1, err := s.Put(ctx, c)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	c.JSON = `[{"questions":["q1","q2"]}]`
	c.UnitErrors = ""
	id2, err := s.Put(ctx, c)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if id1 != id2 {
		t.Errorf("upsert changed id: %d -> %d", id1, id2)
	}

	got, _, _ := s.Lookup(ctx, c.ContentHash, c.Target, c.SpecHash)
	if got.JSON != c.JSON || got.UnitErrors != "" {
		t.Errorf("Lookup after replace = %+v", got)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Conversions != 1 || st.ByTarget[TargetJSON] != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestPutValidation(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Put(context.Background(), Conversion{Target: TargetMarkdown}); err == nil {
		t.Error("expected error for missing content hash")
	}
}

func TestPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	md := Conversion{ContentHash: "h1", Target: TargetMarkdown, Strategy: "plain_parse", Markdown: "# Hi"}
	if _, err := s.Put(ctx, md); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Put(ctx, sampleConversion()); err != nil {
		t.Fatalf("Put: %v", err)
	}

	n, err := s.Purge(ctx, time.Hour)
	if err != nil || n != 0 {
		t.Errorf("Purge(1h) = %d, %v; want 0 fresh rows removed", n, err)
	}

	n, err = s.Purge(ctx, -time.Hour)
	if err != nil || n != 2 {
		t.Errorf("Purge(-1h) = %d, %v; want 2", n, err)
	}
	st, _ := s.Stats(ctx)
	if st.Conversions != 0 {
		t.Errorf("Stats after purge = %+v", st)
	}
}

func TestSpecHash(t *testing.T) {
	if SpecHash() != "" {
		t.Error("empty parts should give empty hash")
	}
	a := SpecHash("ab", "c")
	b := SpecHash("a", "bc")
	if a == b {
		t.Error("part boundaries must affect the hash")
	}
	if SpecHash("ab", "c") != a || len(a) != 64 {
		t.Errorf("SpecHash not stable: %q", a)
	}
}
