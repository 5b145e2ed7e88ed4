package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/loykin/procman"
)

func sampleRecord() procman.Record {
	created := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	return procman.Record{
		ID:         "rec-1",
		Name:       "web",
		Command:    "python",
		Args:       []string{"app.py"},
		EnvVars:    map[string]string{"PORT": "9000", "DEBUG": "1"},
		WorkingDir: "/srv/web",
		PID:        4242,
		Status:     procman.StatusRunning,
		CreatedAt:  created,
		UpdatedAt:  created.Add(time.Minute),
		LogPath:    "/srv/logs/web.log",
	}
}

func TestNewFormatterRejectsUnknownFormat(t *testing.T) {
	if _, err := newFormatter("yaml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
	for _, f := range []string{formatText, formatJSON} {
		if _, err := newFormatter(f); err != nil {
			t.Fatalf("format %q: %v", f, err)
		}
	}
}

func TestProcessListText(t *testing.T) {
	fm, _ := newFormatter(formatText)
	out := fm.ProcessList([]procman.Record{sampleRecord()})
	for _, want := range []string{"NAME", "STATUS", "PID", "web", "running", "4242", "python app.py", "2025-03-14 09:30:00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestProcessListTextDashForNoPid(t *testing.T) {
	fm, _ := newFormatter(formatText)
	rec := sampleRecord()
	rec.PID = 0
	rec.Status = procman.StatusStopped
	out := fm.ProcessList([]procman.Record{rec})
	if !strings.Contains(out, " - ") {
		t.Fatalf("expected dash placeholder for missing pid:\n%s", out)
	}
}

func TestProcessListJSON(t *testing.T) {
	fm, _ := newFormatter(formatJSON)
	out := fm.ProcessList([]procman.Record{sampleRecord()})
	var parsed struct {
		Processes []procman.Record `json:"processes"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(parsed.Processes) != 1 || parsed.Processes[0].Name != "web" {
		t.Fatalf("unexpected parsed output: %+v", parsed)
	}
}

func TestProcessStatusText(t *testing.T) {
	fm, _ := newFormatter(formatText)
	out := fm.ProcessStatus(sampleRecord())
	for _, want := range []string{
		"Process: web",
		"Status: running",
		"PID: 4242",
		"Command: python app.py",
		"Working Directory: /srv/web",
		"Log File: /srv/logs/web.log",
		"Environment Variables:",
		"  DEBUG=1",
		"  PORT=9000",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	// Env keys are sorted for stable output.
	if strings.Index(out, "DEBUG=1") > strings.Index(out, "PORT=9000") {
		t.Fatalf("env vars not sorted:\n%s", out)
	}
}

func TestProcessStatusTextNoPid(t *testing.T) {
	fm, _ := newFormatter(formatText)
	rec := sampleRecord()
	rec.PID = 0
	out := fm.ProcessStatus(rec)
	if !strings.Contains(out, "PID: N/A") {
		t.Fatalf("expected N/A pid:\n%s", out)
	}
}

func TestRotatedLogsText(t *testing.T) {
	fm, _ := newFormatter(formatText)
	if got := fm.RotatedLogs("web", nil); !strings.Contains(got, "No rotated log files found for process 'web'") {
		t.Fatalf("unexpected empty-list output: %q", got)
	}
	got := fm.RotatedLogs("web", []string{"/l/web.1.log", "/l/web.2.log"})
	if got != "/l/web.1.log\n/l/web.2.log" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestClearResultText(t *testing.T) {
	fm, _ := newFormatter(formatText)

	empty := fm.ClearResult(procman.ClearResult{OperationType: "stopped/failed processes"})
	if empty != "No stopped/failed processes to clear." {
		t.Fatalf("unexpected empty output: %q", empty)
	}

	out := fm.ClearResult(procman.ClearResult{
		ClearedCount:  2,
		ClearedNames:  []string{"a", "b"},
		FailedNames:   []string{"c"},
		OperationType: "all processes",
	})
	for _, want := range []string{
		"Cleared 2 all processes (2 processes):",
		"  - a",
		"  - b",
		"Failed to clear 1 processes:",
		"  - c",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.HasSuffix(out, "\n") {
		t.Fatalf("trailing newline not trimmed: %q", out)
	}
}

func TestClearResultJSON(t *testing.T) {
	fm, _ := newFormatter(formatJSON)
	out := fm.ClearResult(procman.ClearResult{ClearedCount: 1, ClearedNames: []string{"a"}, OperationType: "all processes"})
	var parsed procman.ClearResult
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if parsed.ClearedCount != 1 || parsed.OperationType != "all processes" {
		t.Fatalf("unexpected parsed result: %+v", parsed)
	}
}

func TestTokenListText(t *testing.T) {
	fm, _ := newFormatter(formatText)
	out := fm.TokenList([]procman.Token{
		{Name: "ci", Value: "tok-value", CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), IsActive: true},
	})
	for _, want := range []string{"NAME", "TOKEN", "ci", "tok-value", "never"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSuccessJSON(t *testing.T) {
	fm, _ := newFormatter(formatJSON)
	out := fm.Success("done")
	var parsed struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !parsed.Success || parsed.Message != "done" {
		t.Fatalf("unexpected parsed output: %+v", parsed)
	}
}
