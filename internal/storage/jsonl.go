package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"statsScope/internal/model"
)

// JsonlStorage appends events as JSON lines. Events that failed to decode are
// written to a separate file when errorsPath is set.
type JsonlStorage struct {
	path       string
	errorsPath string
	mu         sync.Mutex
}

func NewJsonlStorage(path, errorsPath string) *JsonlStorage {
	return &JsonlStorage{path: path, errorsPath: errorsPath}
}

// PutEvents appends a batch of events.
func (s *JsonlStorage) PutEvents(events []model.LogEvent) error {
	if len(events) == 0 {
		return nil
	}

	records := make([]any, 0, len(events))
	var decodeErrs []any
	for _, ev := range events {
		if ev.DecodeErr != "" && s.errorsPath != "" {
			decodeErrs = append(decodeErrs, model.NewDecodeError(ev))
			continue
		}
		records = append(records, ev)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := appendLines(s.path, records); err != nil {
		return err
	}
	return appendLines(s.errorsPath, decodeErrs)
}

func appendLines(path string, records []any) error {
	if len(records) == 0 || path == "" {
		return nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
