package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/loykin/procman"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// formatter renders command output as plain text or pretty JSON.
type formatter struct {
	format string
}

func newFormatter(format string) (formatter, error) {
	switch format {
	case formatText, formatJSON:
		return formatter{format: format}, nil
	default:
		return formatter{}, fmt.Errorf("unknown output format %q (expected text or json)", format)
	}
}

func (f formatter) ProcessList(records []procman.Record) string {
	if f.format == formatJSON {
		return marshalIndent(map[string]any{"processes": records})
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-10s %-10s %-30s %-20s\n", "NAME", "STATUS", "PID", "COMMAND", "CREATED")
	b.WriteString(strings.Repeat("-", 90))
	b.WriteByte('\n')
	for _, r := range records {
		pid := "-"
		if r.PID != 0 {
			pid = fmt.Sprintf("%d", r.PID)
		}
		cmdline := strings.TrimSpace(r.Command + " " + strings.Join(r.Args, " "))
		fmt.Fprintf(&b, "%-20s %-10s %-10s %-30s %-20s\n",
			r.Name, r.Status, pid, cmdline, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func (f formatter) ProcessStatus(r procman.Record) string {
	if f.format == formatJSON {
		return marshalIndent(r)
	}
	pid := "N/A"
	if r.PID != 0 {
		pid = fmt.Sprintf("%d", r.PID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Process: %s\n", r.Name)
	fmt.Fprintf(&b, "Status: %s\n", r.Status)
	fmt.Fprintf(&b, "PID: %s\n", pid)
	fmt.Fprintf(&b, "Command: %s\n", strings.TrimSpace(r.Command+" "+strings.Join(r.Args, " ")))
	fmt.Fprintf(&b, "Working Directory: %s\n", r.WorkingDir)
	fmt.Fprintf(&b, "Created: %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Updated: %s\n", r.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Log File: %s\n", r.LogPath)
	if len(r.EnvVars) > 0 {
		b.WriteString("Environment Variables:\n")
		for _, k := range sortedKeys(r.EnvVars) {
			fmt.Fprintf(&b, "  %s=%s\n", k, r.EnvVars[k])
		}
	}
	return b.String()
}

func (f formatter) Logs(name, logs string) string {
	if f.format == formatJSON {
		return marshalIndent(map[string]string{"process_name": name, "logs": logs})
	}
	return logs
}

func (f formatter) RotatedLogs(name string, paths []string) string {
	if f.format == formatJSON {
		if paths == nil {
			paths = []string{}
		}
		return marshalIndent(map[string]any{"process_name": name, "rotated_logs": paths})
	}
	if len(paths) == 0 {
		return fmt.Sprintf("No rotated log files found for process '%s'", name)
	}
	return strings.Join(paths, "\n")
}

func (f formatter) ClearResult(res procman.ClearResult) string {
	if f.format == formatJSON {
		return marshalIndent(res)
	}
	var b strings.Builder
	if res.ClearedCount == 0 {
		fmt.Fprintf(&b, "No %s to clear.", res.OperationType)
	} else {
		fmt.Fprintf(&b, "Cleared %d %s (%d processes):\n", res.ClearedCount, res.OperationType, res.ClearedCount)
		for _, name := range res.ClearedNames {
			fmt.Fprintf(&b, "  - %s\n", name)
		}
	}
	if len(res.FailedNames) > 0 {
		fmt.Fprintf(&b, "\nFailed to clear %d processes:\n", len(res.FailedNames))
		for _, name := range res.FailedNames {
			fmt.Fprintf(&b, "  - %s\n", name)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (f formatter) Token(tok procman.Token) string {
	if f.format == formatJSON {
		return marshalIndent(tok)
	}
	expires := "never"
	if !tok.ExpiresAt.IsZero() {
		expires = tok.ExpiresAt.Format("2006-01-02 15:04:05")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Token generated for '%s':\n", tok.Name)
	fmt.Fprintf(&b, "  %s\n", tok.Value)
	fmt.Fprintf(&b, "Expires: %s\n", expires)
	return b.String()
}

func (f formatter) TokenList(tokens []procman.Token) string {
	if f.format == formatJSON {
		return marshalIndent(map[string]any{"tokens": tokens})
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-46s %-8s %-20s %-20s\n", "NAME", "TOKEN", "ACTIVE", "CREATED", "EXPIRES")
	b.WriteString(strings.Repeat("-", 116))
	b.WriteByte('\n')
	for _, tok := range tokens {
		expires := "never"
		if !tok.ExpiresAt.IsZero() {
			expires = tok.ExpiresAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(&b, "%-20s %-46s %-8t %-20s %-20s\n",
			tok.Name, tok.Value, tok.IsActive, tok.CreatedAt.Format("2006-01-02 15:04:05"), expires)
	}
	return b.String()
}

func (f formatter) Success(message string) string {
	if f.format == formatJSON {
		return marshalIndent(map[string]any{"success": true, "message": message})
	}
	return message
}

func marshalIndent(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
