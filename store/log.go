package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/arcreliability/engine/opserr"
)

// EventLog is an append-only JSON-lines writer for events.jsonl. Each
// record is written as a single JSON line and fsynced before returning,
// so a writer never reports success for a record the reader can't later
// see: writes are atomic at the record level and readers never observe
// partial records.
type EventLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenEventLog opens (creating if needed) the append-only event log at
// path.
func OpenEventLog(path string) (*EventLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, opserr.New("store", "open_event_log", opserr.CodePersistenceWrite,
			fmt.Sprintf("failed to open event log %s", path)).WithCause(err)
	}
	return &EventLog{file: f}, nil
}

// Append writes one event as a single JSON line, serialised at the write
// site to satisfy the multiple-writer, append-only contract.
func (l *EventLog) Append(kind EventKind, payload any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
	data, err := json.Marshal(entry)
	if err != nil {
		return opserr.New("store", "append", opserr.CodePersistenceWrite,
			"failed to marshal event").WithCause(err)
	}

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return opserr.New("store", "append", opserr.CodePersistenceWrite,
			"failed to write event").WithCause(err)
	}
	if err := l.file.Sync(); err != nil {
		return opserr.New("store", "append", opserr.CodePersistenceWrite,
			"failed to flush event log").WithCause(err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
