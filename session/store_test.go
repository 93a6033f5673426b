package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "show", "session.json")
	store := NewStore(path)

	if store.Exists() {
		t.Error("store should not exist before save")
	}

	state := State{
		SavedAt:         time.Now().UTC(),
		SampleRate:      48000,
		BlockSize:       512,
		OutputDeviceUID: "scarlett",
		Workspaces:      json.RawMessage(`{"active":2}`),
	}
	if err := store.Save(&state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !store.Exists() {
		t.Error("store should exist after save")
	}

	var loaded State
	if err := store.Load(&loaded); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.SampleRate != 48000 || loaded.BlockSize != 512 {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.OutputDeviceUID != "scarlett" {
		t.Errorf("device UID = %q", loaded.OutputDeviceUID)
	}
	// MarshalIndent re-indents the embedded raw message, so compare the
	// decoded value rather than the bytes.
	var ws struct {
		Active int `json:"active"`
	}
	if err := json.Unmarshal(loaded.Workspaces, &ws); err != nil {
		t.Fatalf("decoding workspaces: %v", err)
	}
	if ws.Active != 2 {
		t.Errorf("workspaces active = %d, want 2", ws.Active)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "session.json"))

	for i := 0; i < 3; i++ {
		if err := store.Save(&State{BlockSize: i}); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 file, found %d", len(entries))
	}

	var loaded State
	if err := store.Load(&loaded); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.BlockSize != 2 {
		t.Errorf("last save should win, got blockSize %d", loaded.BlockSize)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	missing := NewStore(filepath.Join(dir, "missing.json"))
	var state State
	if err := missing.Load(&state); err == nil {
		t.Error("expected error for missing file")
	}

	corruptPath := filepath.Join(dir, "corrupt.json")
	os.WriteFile(corruptPath, []byte("{not json"), 0o644)
	corrupt := NewStore(corruptPath)
	if err := corrupt.Load(&state); err == nil {
		t.Error("expected error for corrupt file")
	}
}
