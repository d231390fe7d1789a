package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
}

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")

	l, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if l.maxSize != DefaultMaxLogSize {
		t.Errorf("maxSize = %d, want %d", l.maxSize, DefaultMaxLogSize)
	}
	if l.Path() != path {
		t.Errorf("Path() = %q, want %q", l.Path(), path)
	}
}

func TestLog_LiftsQueryFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	l.now = fixedClock()

	err = l.Log("query_resolved", map[string]interface{}{
		"query_id":    "qry_1700000000_abcdef01",
		"start":       "73",
		"goal":        "94",
		"path_length": 4,
		"route_found": true,
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.EventType != "query_resolved" {
		t.Errorf("EventType = %q", e.EventType)
	}
	if e.QueryID != "qry_1700000000_abcdef01" || e.Start != "73" || e.Goal != "94" {
		t.Errorf("query fields not lifted: %+v", e)
	}
	if _, ok := e.Details["query_id"]; ok {
		t.Error("query_id should not remain in details")
	}
	if e.Details["path_length"] != float64(4) {
		t.Errorf("path_length = %v", e.Details["path_length"])
	}
	if !e.Timestamp.Equal(fixedClock()()) {
		t.Errorf("Timestamp = %v", e.Timestamp)
	}
	if e.Checksum != "" {
		t.Error("checksum written while disabled")
	}
}

func TestWrite_AfterClose(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "audit.jsonl"), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := l.Log("query_failed", nil); err == nil {
		t.Fatal("expected error writing to closed log")
	}
}

func TestLog_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Log("query_resolved", map[string]interface{}{"start": "1", "goal": "2"}); err != nil {
				t.Errorf("Log: %v", err)
			}
		}()
	}
	wg.Wait()
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := len(readEntries(t, path)); got != n {
		t.Errorf("got %d entries, want %d", got, n)
	}
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	l, err := Open(path, 200)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	l.now = fixedClock()

	for i := 0; i < 5; i++ {
		if err := l.Log("query_resolved", map[string]interface{}{
			"query_id": "qry_1700000000_abcdef01",
			"start":    "1",
			"goal":     "2",
			"path":     "1,2",
		}); err != nil {
			t.Fatalf("Log %d: %v", i, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	archived, err := os.ReadDir(filepath.Join(dir, ArchiveDir))
	if err != nil {
		t.Fatalf("read archive dir: %v", err)
	}
	if len(archived) == 0 {
		t.Fatal("expected archived logs after rotation")
	}
	for _, a := range archived {
		if !strings.HasPrefix(a.Name(), "audit.20260304_050607.") || !strings.HasSuffix(a.Name(), LogFileExtension) {
			t.Errorf("unexpected archive name %q", a.Name())
		}
	}

	total := len(readEntries(t, path))
	for _, a := range archived {
		total += len(readEntries(t, filepath.Join(dir, ArchiveDir, a.Name())))
	}
	if total != 5 {
		t.Errorf("entries across current and archive = %d, want 5", total)
	}
}

func TestReopenKeepsSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Log("query_resolved", nil); err != nil {
		t.Fatalf("Log: %v", err)
	}
	size := l.Size()
	l.Close()

	l2, err := Open(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()
	if l2.Size() != size {
		t.Errorf("Size after reopen = %d, want %d", l2.Size(), size)
	}
}

func TestVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	l.EnableChecksum(true)
	for _, goal := range []string{"2", "3", "4"} {
		if err := l.Log("query_resolved", map[string]interface{}{"start": "1", "goal": goal}); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	l.Close()

	rep, err := Verify(path)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rep.Total != 3 || rep.Valid != 3 || rep.Malformed != 0 {
		t.Fatalf("clean log report = %+v", rep)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	tampered := strings.Replace(string(data), `"goal":"3"`, `"goal":"9"`, 1)
	tampered += "not json\n"
	if err := os.WriteFile(path, []byte(tampered), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rep, err = Verify(path)
	if err != nil {
		t.Fatalf("Verify tampered: %v", err)
	}
	if rep.Total != 4 || rep.Valid != 2 || rep.Malformed != 1 {
		t.Errorf("tampered log report = %+v, want total 4 valid 2 malformed 1", rep)
	}
}

func TestVerify_MissingFile(t *testing.T) {
	if _, err := Verify(filepath.Join(t.TempDir(), "absent.jsonl")); err == nil {
		t.Fatal("expected error for missing log")
	}
}
