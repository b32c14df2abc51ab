package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/franksops/trickle/engine"
	"github.com/franksops/trickle/store"
)

func TestFormatSpeed(t *testing.T) {
	tests := []struct {
		bytesPerSec float64
		expected    string
	}{
		{500, "500 B/s"},
		{1024, "1.00 KB/s"},
		{2048, "2.00 KB/s"},
		{1048576, "1.00 MB/s"},
		{1572864, "1.50 MB/s"},
		{1073741824, "1.00 GB/s"},
	}

	for _, tt := range tests {
		result := formatSpeed(tt.bytesPerSec)
		if result != tt.expected {
			t.Errorf("formatSpeed(%v) = %v; want %v", tt.bytesPerSec, result, tt.expected)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n        int64
		expected string
	}{
		{0, "0 B"},
		{600, "600 B"},
		{1536, "1.50 KB"},
		{2 * 1024 * 1024, "2.00 MB"},
	}

	for _, tt := range tests {
		if result := formatBytes(tt.n); result != tt.expected {
			t.Errorf("formatBytes(%d) = %v; want %v", tt.n, result, tt.expected)
		}
	}
}

func TestNewState(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stats := engine.Stats{
		Queued:    3,
		Capacity:  10,
		Completed: 2,
		Failed:    1,
		Active: &engine.ActiveTransfer{
			ID:           7,
			Kind:         engine.KindUpload,
			State:        "streaming-body",
			ResourcePath: "/up",
			LocalPath:    "/data/blob",
			Bytes:        2048,
			StartedAt:    start,
		},
	}

	results := make([]Result, maxResults+5)
	for i := range results {
		results[i] = Result{ID: uint64(i + 1), Text: "{}", Parsed: true}
	}

	state := NewState(stats, results, 4, true, start.Add(2*time.Second))

	if state.Queued != 3 || state.Capacity != 10 || state.Remaining != 4 {
		t.Errorf("unexpected queue fields: %+v", state)
	}
	if state.Active == nil || state.Active.Kind != "upload" {
		t.Fatalf("expected an active upload, got %+v", state.Active)
	}
	if state.Active.BytesSec != 1024 {
		t.Errorf("expected 1024 B/s, got %v", state.Active.BytesSec)
	}
	if len(state.Results) != maxResults {
		t.Errorf("expected %d results, got %d", maxResults, len(state.Results))
	}
	if state.Results[0].ID != 6 {
		t.Errorf("expected oldest results to be dropped, first is %d", state.Results[0].ID)
	}
}

func TestTUIModelInitialization(t *testing.T) {
	state := &UIState{
		Capacity: 10,
	}
	model := NewTUIModel(state)

	if model.engineState.Capacity != 10 {
		t.Errorf("Expected Capacity 10, got %d", model.engineState.Capacity)
	}

	view := model.View()
	if view == "" {
		t.Errorf("View rendered empty string")
	}

	if !strings.Contains(view, "Initializing...") {
		t.Errorf("Expected Initializing view when width is 0")
	}
}

func TestTUIModelRendersState(t *testing.T) {
	model := NewTUIModel(&UIState{})
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})

	state := &UIState{
		Queued:   2,
		Capacity: 10,
		LinkUp:   true,
		Active: &ActiveTransfer{
			ID:        3,
			Kind:      "download",
			State:     "awaiting-response",
			Resource:  "/status",
			LocalPath: "/data/status.json",
		},
		Results: []Result{{ID: 2, Text: `{"ok":true}`, Parsed: true}},
	}
	updated, _ = updated.Update(TUIUpdateMsg{State: state})

	view := updated.View()
	for _, want := range []string{"Queue: 2/10", "#3", "/data/status.json", `{"ok":true}`} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestTUIModelQuitsWhenDone(t *testing.T) {
	model := NewTUIModel(&UIState{})
	_, cmd := model.Update(TUIUpdateMsg{State: &UIState{Done: true}})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("expected tea.QuitMsg")
	}
}

func TestHistoryTable(t *testing.T) {
	records := []*store.TransferRecord{
		{RequestID: 2, Kind: "download", State: store.StateFailed, Host: "device", Port: 80, ResourcePath: "/b", LocalPath: "/data/b", Error: "connect failed"},
		{RequestID: 1, Kind: "upload", State: store.StateCompleted, Host: "device", Port: 80, ResourcePath: "/a", LocalPath: "/data/a", Bytes: 600},
	}

	out := HistoryTable(records)
	for _, want := range []string{"ID", "device:80/b", "connect failed", "600 B", "Completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected table to contain %q", want)
		}
	}
}
