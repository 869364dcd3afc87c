package execlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/manthysbr/auleagent/internal/core/ports"
)

var header = []string{"action", "result", "success"}

// CSVLog is the append-only tabular execution log. The file is created with
// a header row when absent and is never truncated.
type CSVLog struct {
	mu   sync.Mutex
	path string
}

var _ ports.ExecutionLog = (*CSVLog)(nil)

// NewCSVLog prepares the log file at path.
func NewCSVLog(path string) (*CSVLog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open execution log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat execution log: %w", err)
	}
	if info.Size() == 0 {
		if err := writeRow(f, header); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return &CSVLog{path: path}, nil
}

// Path returns the log file location.
func (l *CSVLog) Path() string {
	return l.path
}

// Append writes one row: action JSON, result text and 0/1 success.
func (l *CSVLog) Append(_ context.Context, rec domain.ExecutionLogRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open execution log: %w", err)
	}
	defer f.Close()

	success := "0"
	if rec.Success {
		success = "1"
	}
	return writeRow(f, []string{rec.Action, rec.Result, success})
}

func writeRow(f *os.File, row []string) error {
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Tee fans one record out to several logs. Every log is attempted and the
// errors are joined.
type Tee []ports.ExecutionLog

var _ ports.ExecutionLog = Tee(nil)

func (t Tee) Append(ctx context.Context, rec domain.ExecutionLogRecord) error {
	var errs []error
	for _, l := range t {
		if l == nil {
			continue
		}
		if err := l.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
