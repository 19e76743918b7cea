package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/graphscape/graph"
)

const testGraphDoc = `{
	"nodes": [{"id": "a"}, {"id": "b"}],
	"edges": [{"id": "ab", "source": "a", "target": "b", "strength": 0.7}]
}`

func TestLoadGraphFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")
	if err := os.WriteFile(path, []byte(testGraphDoc), 0o644); err != nil {
		t.Fatalf("write graph file: %v", err)
	}

	store := graph.NewStore(nil)
	loadGraphFile(context.Background(), nil, store, path)

	nodes, edges := store.Counts()
	if nodes != 2 || edges != 1 {
		t.Fatalf("counts = (%d, %d), want (2, 1)", nodes, edges)
	}
}

func TestLoadGraphFileMissingPathIsNonFatal(t *testing.T) {
	store := graph.NewStore(nil)
	loadGraphFile(context.Background(), nil, store, filepath.Join(t.TempDir(), "absent.json"))

	nodes, edges := store.Counts()
	if nodes != 0 || edges != 0 {
		t.Fatalf("counts = (%d, %d), want (0, 0)", nodes, edges)
	}
}

func TestWatchGraphFileReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")
	if err := os.WriteFile(path, []byte(testGraphDoc), 0o644); err != nil {
		t.Fatalf("write graph file: %v", err)
	}

	store := graph.NewStore(nil)
	watcher, err := watchGraphFile(context.Background(), nil, store, path)
	if err != nil {
		t.Fatalf("watchGraphFile: %v", err)
	}
	defer watcher.Close()

	before := store.Version()

	updated := `{
		"nodes": [{"id": "a"}, {"id": "b"}, {"id": "c"}],
		"edges": []
	}`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite graph file: %v", err)
	}

	deadline := time.After(10 * time.Second)
	for {
		if store.Version() > before {
			nodes, _ := store.Counts()
			if nodes != 3 {
				t.Fatalf("nodes after reload = %d, want 3", nodes)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("graph file change never triggered a reload")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
