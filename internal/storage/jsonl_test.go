package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"statsScope/internal/model"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer file.Close()

	var out []map[string]any
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var row map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			t.Fatalf("parse line: %v", err)
		}
		out = append(out, row)
	}
	return out
}

func TestJsonlStorageSplitsDecodeErrors(t *testing.T) {
	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "out", "events.jsonl")
	errorsPath := filepath.Join(dir, "out", "errors.jsonl")
	sink := NewJsonlStorage(eventsPath, errorsPath)

	args := model.NewArgs()
	args.Set(model.FieldPrizeAmount, "100")
	events := []model.LogEvent{
		{Name: model.EventPrizeClaimed, BlockNumber: 10, TxHash: "0x1", Args: args},
		{Name: model.EventTicketsPurchased, BlockNumber: 11, TxHash: "0x2", Args: model.NewArgs(), DecodeErr: "bad data"},
	}
	if err := sink.PutEvents(events); err != nil {
		t.Fatalf("put events: %v", err)
	}
	if err := sink.PutEvents(events[:1]); err != nil {
		t.Fatalf("put events: %v", err)
	}

	rows := readLines(t, eventsPath)
	if len(rows) != 2 {
		t.Fatalf("expected 2 event rows, got %d", len(rows))
	}
	if rows[0]["name"] != model.EventPrizeClaimed {
		t.Fatalf("name mismatch: %v", rows[0]["name"])
	}

	errRows := readLines(t, errorsPath)
	if len(errRows) != 1 || errRows[0]["error"] != "bad data" {
		t.Fatalf("decode error rows mismatch: %+v", errRows)
	}
}
