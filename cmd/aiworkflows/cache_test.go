//go:build cgo

package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestCacheCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cache.db")
	cfgPath := writeFile(t, "config.yaml", "db_path: "+db+"\n")
	doc := writeFile(t, "notes.txt", "Cached notes.")

	if _, _, err := run(t, "", "--config", cfgPath, "--cache", "markdown", doc); err != nil {
		t.Fatalf("markdown: %v", err)
	}
	_, errOut, err := run(t, "", "--config", cfgPath, "--cache", "markdown", doc)
	if err != nil {
		t.Fatalf("second markdown: %v", err)
	}
	if !strings.Contains(errOut, "cached") {
		t.Errorf("second run not served from cache: %q", errOut)
	}

	out, _, err := run(t, "", "--config", cfgPath, "cache", "stats")
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	if !strings.Contains(out, "1") || !strings.Contains(out, "markdown:") {
		t.Errorf("stats = %q", out)
	}

	out, _, err = run(t, "", "--config", cfgPath, "cache", "purge", "--older-than", "1h")
	if err != nil {
		t.Fatalf("cache purge: %v", err)
	}
	if !strings.Contains(out, "0") {
		t.Errorf("purge of recent entries = %q, want 0", out)
	}
}
