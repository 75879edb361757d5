package testutils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Chichichkin/LokiLoggerHandler/internal/logging"
	"github.com/Chichichkin/LokiLoggerHandler/internal/logging/loki"
)

// MockSender records every request it is asked to push.
type MockSender struct {
	SentRequests []*loki.Request
	mu           sync.Mutex
	ShouldFail   bool
	FailTimes    int
	Delay        time.Duration
	calls        int
}

func (m *MockSender) Send(ctx context.Context, req *loki.Request) error {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.ShouldFail || m.calls <= m.FailTimes {
		return fmt.Errorf("mock send failed")
	}

	m.SentRequests = append(m.SentRequests, req)
	return nil
}

func (m *MockSender) GetSentRequests() []*loki.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*loki.Request(nil), m.SentRequests...)
}

func (m *MockSender) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// SentLines returns every line pushed so far, in push order.
func (m *MockSender) SentLines() []string {
	var lines []string
	for _, req := range m.GetSentRequests() {
		for _, s := range req.Streams {
			for _, v := range s.Values {
				lines = append(lines, v.Line)
			}
		}
	}
	return lines
}

// MockSenderT is a testify mock for call expectations.
type MockSenderT struct {
	mock.Mock
}

func (m *MockSenderT) Send(ctx context.Context, req *loki.Request) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// MockEmitter stores records passed to Emit.
type MockEmitter struct {
	Records    []logging.Record
	mu         sync.Mutex
	ShouldFail bool
	EmitCalls  int
}

func (m *MockEmitter) Emit(r logging.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.EmitCalls++
	if m.ShouldFail {
		return fmt.Errorf("mock emit failed")
	}

	m.Records = append(m.Records, r)
	return nil
}

func (m *MockEmitter) GetRecords() []logging.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]logging.Record(nil), m.Records...)
}

func CreateTempLogStructure(t *testing.T) string {
	tempDir := t.TempDir()

	structure := map[string]string{
		"api/app.log":             "api starting\nERROR failed to bind\n",
		"api/access.log":          "GET /health 200\n",
		"worker/worker.log":       "WARNING queue is slow\n",
		"worker/nested/debug.log": "DEBUG tick\n",
		"db/postgres.log":         "checkpoint complete\n",
		"db/readme.txt":           "not a log\n",
	}

	for path, content := range structure {
		fullPath := filepath.Join(tempDir, path)
		dir := filepath.Dir(fullPath)

		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}

		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write file %s: %v", fullPath, err)
		}
	}

	return tempDir
}
