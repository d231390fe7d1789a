// Package audit keeps an append-only JSONL record of every query.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxLogSize = 10 * 1024 * 1024
	LogFileExtension  = ".jsonl"
	ArchiveDir        = "archive"
)

// Entry is one line of the audit log.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	QueryID   string                 `json:"query_id,omitempty"`
	Start     string                 `json:"start,omitempty"`
	Goal      string                 `json:"goal,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Checksum  string                 `json:"checksum,omitempty"`
}

// Logger appends entries to a JSONL file and rotates it into ArchiveDir
// once it would grow past maxSize. It is safe for concurrent use.
type Logger struct {
	mu              sync.Mutex
	file            *os.File
	currentSize     int64
	maxSize         int64
	logPath         string
	checksum        bool
	rotationCounter int
	now             func() time.Time
}

// Open creates or appends to the log at logPath. maxSize <= 0 uses
// DefaultMaxLogSize.
func Open(logPath string, maxSize int64) (*Logger, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}

	l := &Logger{
		logPath: logPath,
		maxSize: maxSize,
		now:     time.Now,
	}
	if err := l.openFile(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) openFile() error {
	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	l.file = file
	l.currentSize = stat.Size()
	return nil
}

// EnableChecksum adds a content checksum to every subsequent entry.
func (l *Logger) EnableChecksum(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checksum = enable
}

// Log writes an entry of eventType. The query_id, start and goal keys of
// details are lifted into the entry; the rest stay in Details.
func (l *Logger) Log(eventType string, details map[string]interface{}) error {
	entry := Entry{
		Timestamp: l.now().UTC(),
		EventType: eventType,
	}
	rest := make(map[string]interface{}, len(details))
	for k, v := range details {
		s, isString := v.(string)
		switch {
		case k == "query_id" && isString:
			entry.QueryID = s
		case k == "start" && isString:
			entry.Start = s
		case k == "goal" && isString:
			entry.Goal = s
		default:
			rest[k] = v
		}
	}
	if len(rest) > 0 {
		entry.Details = rest
	}
	return l.Write(&entry)
}

// Write appends entry as one JSON line and syncs the file.
func (l *Logger) Write(entry *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit log %s is closed", l.logPath)
	}
	if l.checksum {
		sum, err := checksum(entry)
		if err != nil {
			return err
		}
		entry.Checksum = sum
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	if l.currentSize > 0 && l.currentSize+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotate audit log: %w", err)
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	l.currentSize += int64(n)
	return nil
}

// rotate moves the current file to ArchiveDir/<name>.<timestamp>.<n>.jsonl
// and starts a new one. Caller holds l.mu.
func (l *Logger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close current log: %w", err)
	}

	archiveDir := filepath.Join(filepath.Dir(l.logPath), ArchiveDir)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	l.rotationCounter++
	base := strings.TrimSuffix(filepath.Base(l.logPath), LogFileExtension)
	archiveName := fmt.Sprintf("%s.%s.%d%s", base, l.now().Format("20060102_150405"), l.rotationCounter, LogFileExtension)
	if err := os.Rename(l.logPath, filepath.Join(archiveDir, archiveName)); err != nil {
		return fmt.Errorf("archive log: %w", err)
	}
	return l.openFile()
}

func (l *Logger) Path() string {
	return l.logPath
}

func (l *Logger) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentSize
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func checksum(entry *Entry) (string, error) {
	c := *entry
	c.Checksum = ""
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal audit entry for checksum: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}

// VerifyReport is the result of Verify.
type VerifyReport struct {
	Total     int
	Valid     int
	Malformed int
}

// Verify re-checks every entry in logPath. Entries without a checksum count
// as valid; lines that are not JSON count as malformed.
func Verify(logPath string) (VerifyReport, error) {
	var rep VerifyReport

	file, err := os.Open(logPath)
	if err != nil {
		return rep, fmt.Errorf("open audit log: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		rep.Total++

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			rep.Malformed++
			continue
		}
		if entry.Checksum == "" {
			rep.Valid++
			continue
		}
		want, err := checksum(&entry)
		if err == nil && want == entry.Checksum {
			rep.Valid++
		}
	}
	if err := scanner.Err(); err != nil {
		return rep, fmt.Errorf("read audit log: %w", err)
	}
	return rep, nil
}
