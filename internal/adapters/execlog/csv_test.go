package execlog

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVLog_AppendsWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "execution_log.csv")
	log, err := NewCSVLog(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, log.Append(ctx, domain.ExecutionLogRecord{
		Action:  `{"name":"create","arguments":{"name":"A"}}`,
		Result:  "created, at (0,1,0)",
		Success: true,
	}))
	require.NoError(t, log.Append(ctx, domain.ExecutionLogRecord{
		Action: `{"name":"delete","arguments":{}}`,
		Result: "Tool execution error: not found\nsecond line",
	}))

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"action", "result", "success"}, rows[0])
	assert.Equal(t, `{"name":"create","arguments":{"name":"A"}}`, rows[1][0])
	assert.Equal(t, "created, at (0,1,0)", rows[1][1])
	assert.Equal(t, "1", rows[1][2])
	assert.Equal(t, "Tool execution error: not found\nsecond line", rows[2][1])
	assert.Equal(t, "0", rows[2][2])
}

func TestCSVLog_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "execution_log.csv")

	first, err := NewCSVLog(path)
	require.NoError(t, err)
	require.NoError(t, first.Append(context.Background(), domain.ExecutionLogRecord{Action: "{}", Result: "r1"}))

	second, err := NewCSVLog(path)
	require.NoError(t, err)
	require.NoError(t, second.Append(context.Background(), domain.ExecutionLogRecord{Action: "{}", Result: "r2"}))

	rows := readRows(t, path)
	require.Len(t, rows, 3, "header is written once")
	assert.Equal(t, "r2", rows[2][1])
}

type failingLog struct{ err error }

func (f failingLog) Append(context.Context, domain.ExecutionLogRecord) error { return f.err }

type countingLog struct{ n int }

func (c *countingLog) Append(context.Context, domain.ExecutionLogRecord) error {
	c.n++
	return nil
}

func TestTee(t *testing.T) {
	boom := errors.New("disk full")
	counter := &countingLog{}
	tee := Tee{failingLog{err: boom}, nil, counter}

	err := tee.Append(context.Background(), domain.ExecutionLogRecord{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, counter.n, "later logs still receive the record")
}
