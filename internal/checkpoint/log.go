package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLog appends one JSON object per line to a training log file.
type JSONLog struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenJSONLog creates or appends to path.
func OpenJSONLog(path string) (*JSONLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	return &JSONLog{file: f, enc: json.NewEncoder(f)}, nil
}

// Write appends entry. A nil log drops it.
func (l *JSONLog) Write(entry any) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(entry)
}

func (l *JSONLog) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}
