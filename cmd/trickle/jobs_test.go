package main

import (
	"strings"
	"testing"

	"github.com/franksops/trickle/engine"
)

func TestParseJob(t *testing.T) {
	j, err := parseJob([]string{"put", "device.local:8080", "upload/blob", "/data/blob.bin", "dXNlcjpwYXNz"})
	if err != nil {
		t.Fatalf("parseJob returned error: %v", err)
	}
	want := job{
		Kind:       engine.KindUpload,
		Host:       "device.local",
		Port:       8080,
		Path:       "/upload/blob",
		LocalPath:  "/data/blob.bin",
		Credential: "dXNlcjpwYXNz",
	}
	if j != want {
		t.Fatalf("parseJob = %+v, want %+v", j, want)
	}
}

func TestParseJob_Errors(t *testing.T) {
	tests := [][]string{
		{"put", "device:80", "/a"},
		{"move", "device:80", "/a", "/b"},
		{"get", "device", "/a", "/b"},
		{"get", "device:http", "/a", "/b"},
		{"get", "device:70000", "/a", "/b"},
	}
	for _, fields := range tests {
		if _, err := parseJob(fields); err == nil {
			t.Errorf("parseJob(%q) expected an error", fields)
		}
	}
}

func TestParseBatch(t *testing.T) {
	input := `
# nightly sync
get device:80 /logs/today /data/today.log
PUT device:80 /upload/cfg /data/cfg.json b3RoZXI6Y3JlZA==

`
	jobs, err := parseBatch(strings.NewReader(input), "ZGVmYXVsdA==")
	if err != nil {
		t.Fatalf("parseBatch returned error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Kind != engine.KindDownload || jobs[0].Credential != "ZGVmYXVsdA==" {
		t.Errorf("unexpected first job %+v", jobs[0])
	}
	if jobs[1].Kind != engine.KindUpload || jobs[1].Credential != "b3RoZXI6Y3JlZA==" {
		t.Errorf("unexpected second job %+v", jobs[1])
	}
}

func TestParseBatch_ReportsLine(t *testing.T) {
	_, err := parseBatch(strings.NewReader("get device:80 /a /b\nget nope\n"), "")
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected a line 2 error, got %v", err)
	}
}
